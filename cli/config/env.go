package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Environment variable names read by ApplyEnv.
const (
	EnvAPIKey       = "WPT_API_KEY"
	EnvHost         = "WPT_HOST"
	EnvLocation     = "WPT_LOCATION"
	EnvConnectivity = "WPT_CONNECTIVITY"
	EnvMobile       = "WPT_MOBILE"
	EnvBodies       = "WPT_BODIES"
	EnvTimeline     = "WPT_TIMELINE"
	EnvTCPDump      = "WPT_TCPDUMP"
	EnvLabels       = "WPT_LABELS"
	EnvURLs         = "WPT_URLS"
	EnvPrivate      = "WPT_PRIVATE"
	EnvLogLevel     = "WPT_LOG_LEVEL"
)

// LookupFunc matches os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// FromEnv applies the process environment to cfg.
func FromEnv(cfg *Config) error {
	return ApplyEnv(cfg, os.LookupEnv)
}

// ApplyEnv overrides cfg with every WPT_* variable that is set and non-empty.
// WPT_URLS and WPT_LABELS are whitespace separated lists.
func ApplyEnv(cfg *Config, lookup LookupFunc) error {
	strs := []struct {
		key string
		dst *string
	}{
		{EnvAPIKey, &cfg.APIKey},
		{EnvHost, &cfg.Host},
		{EnvLocation, &cfg.Test.Location},
		{EnvConnectivity, &cfg.Test.Connectivity},
		{EnvLogLevel, &cfg.LogLevel},
	}
	for _, s := range strs {
		if v, ok := lookupSet(lookup, s.key); ok {
			*s.dst = v
		}
	}

	bools := []struct {
		key string
		dst *bool
	}{
		{EnvMobile, &cfg.Test.Mobile},
		{EnvBodies, &cfg.Test.Bodies},
		{EnvTimeline, &cfg.Test.Timeline},
		{EnvTCPDump, &cfg.Test.TCPDump},
		{EnvPrivate, &cfg.Private},
	}
	for _, b := range bools {
		v, ok := lookupSet(lookup, b.key)
		if !ok {
			continue
		}
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s: invalid boolean %q", b.key, v)
		}
		*b.dst = parsed
	}

	if v, ok := lookupSet(lookup, EnvURLs); ok {
		cfg.URLs = strings.Fields(v)
	}
	if v, ok := lookupSet(lookup, EnvLabels); ok {
		cfg.Labels = strings.Fields(v)
	}
	return nil
}

func lookupSet(lookup LookupFunc, key string) (string, bool) {
	v, ok := lookup(key)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}
