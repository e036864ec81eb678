// Package poll waits for remote resources to become ready.
//
// A Probe is a named status check returning a types.Envelope. AwaitReady runs
// every probe on its own fixed-interval loop until the envelope classifies as
// Ready or Failed. The first failure rejects the whole call immediately; the
// remaining probes keep polling until they settle or ctx is done, and their
// results are discarded.
package poll

import (
	"context"
	"fmt"
	"time"

	"github.com/pithecene-io/wptdiff/log"
	"github.com/pithecene-io/wptdiff/types"
)

// DefaultInterval is the delay before every probe invocation.
const DefaultInterval = time.Second

// CheckFunc performs one status check.
type CheckFunc func(ctx context.Context) (types.Envelope, error)

// Probe is a named status check.
type Probe struct {
	// ID identifies the probe in logs and errors.
	ID string
	// Check is invoked once per interval.
	Check CheckFunc
}

// Options configures a polling call.
type Options struct {
	// Interval is the fixed delay before each invocation (default 1s).
	Interval time.Duration
	// MaxAttempts bounds invocations per probe. Zero means unbounded.
	MaxAttempts int
	// Logger receives per-attempt debug lines. Nil disables logging.
	Logger *log.SugaredLogger
}

func (o Options) interval() time.Duration {
	if o.Interval <= 0 {
		return DefaultInterval
	}
	return o.Interval
}

func (o Options) debugf(template string, args ...any) {
	if o.Logger != nil {
		o.Logger.Debugf(template, args...)
	}
}

// branchResult is what one probe loop reports back to AwaitReady.
type branchResult struct {
	index    int
	envelope types.Envelope
	err      error
}

// AwaitReady polls every probe until all are Ready and returns their final
// envelopes in input order. It returns on the first failing probe without
// stopping the others.
func AwaitReady(ctx context.Context, probes []Probe, opts Options) ([]types.Envelope, error) {
	if len(probes) == 0 {
		return nil, nil
	}

	opts.debugf("[poll] start polling for %d resources", len(probes))

	// Buffered to len(probes) so orphaned loops never block on send
	// after AwaitReady has returned.
	done := make(chan branchResult, len(probes))
	for i, p := range probes {
		if p.ID == "" {
			p.ID = fmt.Sprintf("probe-%d", i)
		}
		go func(index int, probe Probe) {
			env, err := pollOne(ctx, probe, opts)
			done <- branchResult{index: index, envelope: env, err: err}
		}(i, p)
	}

	results := make([]types.Envelope, len(probes))
	for range probes {
		r := <-done
		if r.err != nil {
			return nil, r.err
		}
		results[r.index] = r.envelope
	}
	return results, nil
}

// Await polls a single probe until it is Ready.
func Await(ctx context.Context, probe Probe, opts Options) (types.Envelope, error) {
	results, err := AwaitReady(ctx, []Probe{probe}, opts)
	if err != nil {
		return types.Envelope{}, err
	}
	return results[0], nil
}

func pollOne(ctx context.Context, probe Probe, opts Options) (types.Envelope, error) {
	interval := opts.interval()
	opts.debugf("[poll] start polling for %s", probe.ID)

	timer := time.NewTimer(interval)
	defer timer.Stop()

	for attempt := 1; ; attempt++ {
		select {
		case <-ctx.Done():
			return types.Envelope{}, ctx.Err()
		case <-timer.C:
		}

		opts.debugf("[poll] poll %s status (attempt %d)", probe.ID, attempt)
		env, err := probe.Check(ctx)
		if err != nil {
			return types.Envelope{}, &ProbeError{ProbeID: probe.ID, Err: err}
		}
		opts.debugf("[poll] resource %s status: %d", probe.ID, env.StatusCode)

		switch env.Readiness() {
		case types.Ready:
			return env, nil
		case types.Failed:
			return env, &FailedError{ProbeID: probe.ID, Envelope: env}
		}

		if opts.MaxAttempts > 0 && attempt >= opts.MaxAttempts {
			return env, &ExhaustedError{ProbeID: probe.ID, Attempts: attempt, Last: env}
		}
		timer.Reset(interval)
	}
}
