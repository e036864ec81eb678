package cmd

import (
	"testing"
	"time"

	"github.com/urfave/cli/v2"
)

// runWithFlags runs a throwaway app with the given args and hands the
// parsed context to check.
func runWithFlags(t *testing.T, args []string, check func(c *cli.Context)) {
	t.Helper()
	app := &cli.App{
		Name: "test",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "host"},
			&cli.StringSliceFlag{Name: "url"},
			&cli.IntFlag{Name: "attempts"},
			&cli.BoolFlag{Name: "mobile"},
			&cli.DurationFlag{Name: "interval", Value: time.Second},
		},
		Action: func(c *cli.Context) error {
			check(c)
			return nil
		},
	}
	if err := app.Run(append([]string{"test"}, args...)); err != nil {
		t.Fatalf("app.Run: %v", err)
	}
}

func TestResolve_FlagUnsetUsesFallback(t *testing.T) {
	runWithFlags(t, nil, func(c *cli.Context) {
		if got := resolveString(c, "host", "wpt.internal"); got != "wpt.internal" {
			t.Errorf("resolveString = %q, want wpt.internal", got)
		}
		if got := resolveStrings(c, "url", []string{"a", "b"}); len(got) != 2 {
			t.Errorf("resolveStrings = %v, want fallback", got)
		}
		if got := resolveInt(c, "attempts", 7); got != 7 {
			t.Errorf("resolveInt = %d, want 7", got)
		}
		if got := resolveBool(c, "mobile", true); !got {
			t.Error("resolveBool = false, want fallback true")
		}
		if got := resolveDuration(c, "interval", 5*time.Second); got != 5*time.Second {
			t.Errorf("resolveDuration = %v, want 5s", got)
		}
	})
}

func TestResolve_FlagSetWins(t *testing.T) {
	args := []string{
		"--host", "flag.example",
		"--url", "x", "--url", "y", "--url", "z",
		"--attempts", "0",
		"--mobile=false",
		"--interval", "250ms",
	}
	runWithFlags(t, args, func(c *cli.Context) {
		if got := resolveString(c, "host", "wpt.internal"); got != "flag.example" {
			t.Errorf("resolveString = %q, want flag.example", got)
		}
		if got := resolveStrings(c, "url", []string{"a", "b"}); len(got) != 3 || got[0] != "x" {
			t.Errorf("resolveStrings = %v, want [x y z]", got)
		}
		// An explicit zero still overrides the fallback.
		if got := resolveInt(c, "attempts", 7); got != 0 {
			t.Errorf("resolveInt = %d, want 0", got)
		}
		if got := resolveBool(c, "mobile", true); got {
			t.Error("resolveBool = true, want explicit false")
		}
		if got := resolveDuration(c, "interval", 5*time.Second); got != 250*time.Millisecond {
			t.Errorf("resolveDuration = %v, want 250ms", got)
		}
	})
}

func TestResolve_EmptyFallbackUsesFlagDefault(t *testing.T) {
	runWithFlags(t, nil, func(c *cli.Context) {
		if got := resolveDuration(c, "interval", 0); got != time.Second {
			t.Errorf("resolveDuration = %v, want flag default 1s", got)
		}
		if got := resolveString(c, "host", ""); got != "" {
			t.Errorf("resolveString = %q, want empty", got)
		}
	})
}

func TestParseHeaders(t *testing.T) {
	got := parseHeaders([]string{"Authorization=Bearer a=b", " X-Team =perf", "malformed"})
	want := map[string]string{
		"Authorization": "Bearer a=b",
		"X-Team":        "perf",
	}
	if len(got) != len(want) {
		t.Fatalf("parseHeaders = %v, want %v", got, want)
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("header %q = %q, want %q", k, got[k], v)
		}
	}
}
