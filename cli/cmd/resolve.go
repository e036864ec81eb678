package cmd

import (
	"time"

	"github.com/urfave/cli/v2"
)

// Flag values win only when explicitly set; otherwise the lower layer
// (environment, then config file) supplies the value.

func resolveString(c *cli.Context, name, fallback string) string {
	if c.IsSet(name) || fallback == "" {
		return c.String(name)
	}
	return fallback
}

func resolveStrings(c *cli.Context, name string, fallback []string) []string {
	if c.IsSet(name) {
		return c.StringSlice(name)
	}
	return fallback
}

func resolveInt(c *cli.Context, name string, fallback int) int {
	if c.IsSet(name) {
		return c.Int(name)
	}
	return fallback
}

func resolveBool(c *cli.Context, name string, fallback bool) bool {
	if c.IsSet(name) {
		return c.Bool(name)
	}
	return fallback
}

func resolveDuration(c *cli.Context, name string, fallback time.Duration) time.Duration {
	if c.IsSet(name) || fallback == 0 {
		return c.Duration(name)
	}
	return fallback
}
