package types

import (
	"errors"
	"fmt"
	"strings"
)

// MinURLs is the minimum number of pages a comparison needs.
const MinURLs = 2

// Sentinel validation errors. Use errors.Is for typed assertions.
var (
	// ErrTooFewURLs indicates fewer than MinURLs target URLs.
	ErrTooFewURLs = errors.New("at least two urls are required")
	// ErrLabelCount indicates labels were given but do not pair with the URLs.
	ErrLabelCount = errors.New("label count must equal url count")
	// ErrEmptyURL indicates a blank entry in the URL list.
	ErrEmptyURL = errors.New("url must not be empty")
	// ErrConnectivityWithoutLocation indicates a connection profile with no
	// location to attach it to.
	ErrConnectivityWithoutLocation = errors.New("connectivity requires a location")
)

// TestOptions are the per-test knobs passed to the remote service.
type TestOptions struct {
	// Location is the test agent location, e.g. "Dulles:Chrome".
	Location string `json:"location,omitempty" yaml:"location,omitempty"`
	// Connectivity is the connection profile, e.g. "Cable" or "3G".
	Connectivity string `json:"connectivity,omitempty" yaml:"connectivity,omitempty"`
	// Mobile emulates a mobile browser.
	Mobile bool `json:"mobile,omitempty" yaml:"mobile,omitempty"`
	// Bodies captures response bodies.
	Bodies bool `json:"bodies,omitempty" yaml:"bodies,omitempty"`
	// Timeline captures the dev tools timeline.
	Timeline bool `json:"timeline,omitempty" yaml:"timeline,omitempty"`
	// TCPDump captures a network packet trace.
	TCPDump bool `json:"tcpdump,omitempty" yaml:"tcpdump,omitempty"`
}

// Merge returns o with unset fields filled from defaults.
// Boolean capture flags are enabled if either side enables them, so an
// override cannot turn off a capture the defaults enable.
func (o TestOptions) Merge(defaults TestOptions) TestOptions {
	if o.Location == "" {
		o.Location = defaults.Location
	}
	if o.Connectivity == "" {
		o.Connectivity = defaults.Connectivity
	}
	o.Mobile = o.Mobile || defaults.Mobile
	o.Bodies = o.Bodies || defaults.Bodies
	o.Timeline = o.Timeline || defaults.Timeline
	o.TCPDump = o.TCPDump || defaults.TCPDump
	return o
}

// Validate checks that the options can be expressed as runtest.php
// parameters. Connectivity is sent as a suffix of the location.
func (o TestOptions) Validate() error {
	if o.Connectivity != "" && o.Location == "" {
		return fmt.Errorf("%w (connectivity %q)", ErrConnectivityWithoutLocation, o.Connectivity)
	}
	return nil
}

// LaunchOptions is the fully resolved option set for one start-test call.
type LaunchOptions struct {
	TestOptions
	// Label is the display label for this test.
	Label string
	// Private hides the test from the public history.
	Private bool
	// Video is always requested; the comparison video depends on it.
	Video bool
}

// RunRequest is the validated input of a comparison run.
type RunRequest struct {
	// URLs are the pages to compare, in display order.
	URLs []string
	// Labels optionally names each URL; len(Labels) must equal len(URLs).
	Labels []string
	// Options overrides the orchestrator's default test options.
	Options *TestOptions
	// Private overrides the orchestrator's default visibility.
	Private *bool
	// Label is the display label used when Labels is empty.
	Label string
}

// Validate checks request invariants.
func (r *RunRequest) Validate() error {
	if len(r.URLs) < MinURLs {
		return fmt.Errorf("%w: got %d", ErrTooFewURLs, len(r.URLs))
	}
	for i, u := range r.URLs {
		if strings.TrimSpace(u) == "" {
			return fmt.Errorf("%w (index %d)", ErrEmptyURL, i)
		}
	}
	if len(r.Labels) > 0 && len(r.Labels) != len(r.URLs) {
		return fmt.Errorf("%w: %d labels for %d urls", ErrLabelCount, len(r.Labels), len(r.URLs))
	}
	return nil
}

// LabelFor returns the label of the i-th URL, falling back to the display label.
func (r *RunRequest) LabelFor(i int) string {
	if i < len(r.Labels) && r.Labels[i] != "" {
		return r.Labels[i]
	}
	return r.Label
}

// VideoOptions configures comparison video creation.
type VideoOptions struct {
	// End selects where each filmstrip stops: "visual", "doc" or "full".
	// Empty leaves the service default.
	End string `json:"end,omitempty" yaml:"end,omitempty"`
}
