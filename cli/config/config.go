// Package config loads wptdiff settings from a YAML file and the environment.
//
// Precedence, highest first: command-line flags, WPT_* environment
// variables, the config file, built-in defaults. This package covers the
// last three; flags are applied by the run command.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/pithecene-io/wptdiff/types"
)

// Config represents a wptdiff.yaml file. All values are optional.
type Config struct {
	Host     string        `yaml:"host"`
	APIKey   string        `yaml:"api_key"`
	URLs     []string      `yaml:"urls"`
	Labels   []string      `yaml:"labels"`
	Label    string        `yaml:"label"`
	Private  bool          `yaml:"private"`
	LogLevel string        `yaml:"log_level"`
	Test     TestConfig    `yaml:"test"`
	Video    VideoConfig   `yaml:"video"`
	Poll     PollConfig    `yaml:"poll"`
	Report   ReportConfig  `yaml:"report"`
	Adapter  AdapterConfig `yaml:"adapter"`
}

// Default returns the settings used when neither the file nor the
// environment says otherwise. Tests are private and capture response
// bodies and the timeline.
func Default() *Config {
	return &Config{
		Private: true,
		Test: TestConfig{
			Bodies:   true,
			Timeline: true,
		},
	}
}

// TestConfig holds the per-test knobs.
type TestConfig struct {
	Location     string `yaml:"location"`
	Connectivity string `yaml:"connectivity"`
	Mobile       bool   `yaml:"mobile"`
	Bodies       bool   `yaml:"bodies"`
	Timeline     bool   `yaml:"timeline"`
	TCPDump      bool   `yaml:"tcpdump"`
}

// Options converts the section into service test options.
func (t TestConfig) Options() types.TestOptions {
	return types.TestOptions{
		Location:     t.Location,
		Connectivity: t.Connectivity,
		Mobile:       t.Mobile,
		Bodies:       t.Bodies,
		Timeline:     t.Timeline,
		TCPDump:      t.TCPDump,
	}
}

// VideoConfig configures the comparison video.
type VideoConfig struct {
	End string `yaml:"end"`
}

// PollConfig configures status polling.
type PollConfig struct {
	Interval    Duration `yaml:"interval"`
	MaxAttempts int      `yaml:"max_attempts"`
	// Timeout bounds the whole run. Zero means no deadline.
	Timeout Duration `yaml:"timeout"`
}

// ReportConfig configures the run report destination.
type ReportConfig struct {
	// Path is a file path, "-" or s3://bucket/key; "{run_id}" is substituted.
	Path        string `yaml:"path"`
	Region      string `yaml:"region"`
	Endpoint    string `yaml:"endpoint"`
	S3PathStyle bool   `yaml:"s3_path_style"`
}

// AdapterConfig configures the completion notification adapter.
type AdapterConfig struct {
	Type    string            `yaml:"type"`
	URL     string            `yaml:"url"`
	Channel string            `yaml:"channel,omitempty"`
	ListKey string            `yaml:"list_key,omitempty"`
	Codec   string            `yaml:"codec,omitempty"`
	Headers map[string]string `yaml:"headers,omitempty"`
	Timeout Duration          `yaml:"timeout,omitempty"`
	Retries *int              `yaml:"retries,omitempty"`
}

// Validate checks values that cannot be checked by YAML decoding alone.
// URL count is validated per run, after flags are merged.
func (c *Config) Validate() error {
	if c.Poll.Interval.Duration < 0 {
		return fmt.Errorf("poll.interval must not be negative, got %s", c.Poll.Interval)
	}
	if c.Poll.MaxAttempts < 0 {
		return fmt.Errorf("poll.max_attempts must be >= 0, got %d", c.Poll.MaxAttempts)
	}
	switch c.Video.End {
	case "", "visual", "doc", "full":
	default:
		return fmt.Errorf("video.end must be visual, doc or full, got %q", c.Video.End)
	}
	switch c.Adapter.Type {
	case "", "webhook", "redis":
	default:
		return fmt.Errorf("adapter.type must be webhook or redis, got %q", c.Adapter.Type)
	}
	if c.Adapter.Type != "" && c.Adapter.URL == "" {
		return errors.New("adapter.url is required when adapter.type is set")
	}
	return nil
}

// Duration wraps time.Duration for YAML string parsing (e.g. "10s", "5m").
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses a duration string like "10s" or "5m30s".
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}
