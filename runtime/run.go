// Package runtime orchestrates comparison runs against WebPageTest.
//
// A run launches one test per URL, waits for all of them to complete, then
// fetches the result details while building the comparison video, and
// returns the aggregate RunResult.
package runtime

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/pithecene-io/wptdiff/log"
	"github.com/pithecene-io/wptdiff/metrics"
	"github.com/pithecene-io/wptdiff/poll"
	"github.com/pithecene-io/wptdiff/types"
	"github.com/pithecene-io/wptdiff/wpt"
)

// Service is the remote test service the pipeline drives.
// wpt.Client implements it.
type Service interface {
	StartTest(ctx context.Context, pageURL string, opts types.LaunchOptions) (types.Envelope, error)
	GetStatus(ctx context.Context, testID string) (types.Envelope, error)
	GetResults(ctx context.Context, testID string) (types.Envelope, error)
	CreateVideo(ctx context.Context, testIDs string, opts types.VideoOptions) (types.Envelope, error)
	FetchJSON(ctx context.Context, rawURL string) (types.Envelope, error)
}

// Config configures an Orchestrator. It is fixed at construction.
type Config struct {
	// Host is the service host, used for web report URLs (default www.webpagetest.org).
	Host string
	// APIKey is the credential passed through to the service.
	APIKey string
	// Options are the default test options; RunRequest.Options overrides them.
	Options types.TestOptions
	// Label is the default display label.
	Label string
	// Private is the default visibility. Nil means private.
	Private *bool
	// Video configures comparison video creation.
	Video types.VideoOptions
	// PollInterval is the delay between status checks (default 1s).
	PollInterval time.Duration
	// PollMaxAttempts bounds status checks per resource. Zero means unbounded.
	PollMaxAttempts int
	// Logger receives pipeline logs. If nil, logging is disabled.
	Logger *log.Logger
	// Collector records run metrics. If nil, no metrics are recorded.
	Collector *metrics.Collector
}

// Orchestrator runs comparisons. One instance runs at most one comparison
// at a time; separate instances are fully independent.
type Orchestrator struct {
	service Service
	config  Config
	logger  *log.Logger
	running atomic.Bool
	lastRun atomic.Pointer[string]
}

// New creates an orchestrator over service.
func New(service Service, config Config) *Orchestrator {
	if config.Host == "" {
		config.Host = wpt.DefaultHost
	}
	logger := config.Logger
	if logger == nil {
		logger = log.NewNop()
	}
	return &Orchestrator{
		service: service,
		config:  config,
		logger:  logger,
	}
}

// Host returns the configured service host.
func (o *Orchestrator) Host() string {
	return o.config.Host
}

// APIKey returns the configured credential.
func (o *Orchestrator) APIKey() string {
	return o.config.APIKey
}

// Running reports whether a run is in progress.
func (o *Orchestrator) Running() bool {
	return o.running.Load()
}

// LastRunID returns the id of the most recently started run, or "" if no run
// has passed the guard yet.
func (o *Orchestrator) LastRunID() string {
	if id := o.lastRun.Load(); id != nil {
		return *id
	}
	return ""
}

// runState is owned by exactly one Run call from acquire to release.
type runState struct {
	id     string
	req    types.RunRequest
	result *types.RunResult
	logger *log.Logger
}

// acquire takes the run lock and returns fresh run state plus its release func.
// It fails with ErrAlreadyRunning without touching the in-flight run.
func (o *Orchestrator) acquire(req types.RunRequest) (*runState, func(), error) {
	if !o.running.CompareAndSwap(false, true) {
		return nil, nil, ErrAlreadyRunning
	}
	id := uuid.New().String()
	o.lastRun.Store(&id)
	st := &runState{
		id:     id,
		req:    req,
		result: types.NewRunResult(id),
		logger: o.logger.WithRunID(id),
	}
	return st, func() { o.running.Store(false) }, nil
}

// Run executes one comparison end to end.
//
// Execution flow:
//  1. Take the run lock (ErrAlreadyRunning if held)
//  2. Launch one test per URL
//  3. Poll until every test is complete
//  4. Concurrently fetch result details and build the comparison video
//  5. Release the lock and return the result
//
// The lock is released on every path, including panics. On error the
// partial result is discarded.
func (o *Orchestrator) Run(ctx context.Context, req types.RunRequest) (*types.RunResult, error) {
	st, release, err := o.acquire(req)
	if err != nil {
		o.config.Collector.IncRunRejected()
		return nil, err
	}
	defer release()

	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("invalid run request: %w", err)
	}
	if err := o.launchOptions(req).Validate(); err != nil {
		return nil, fmt.Errorf("invalid run request: %w", err)
	}

	o.config.Collector.IncRunStarted()
	start := time.Now()
	st.logger.Info("starting comparison", map[string]any{
		"urls": req.URLs,
		"host": o.config.Host,
	})

	if err := o.executePipeline(ctx, st); err != nil {
		o.config.Collector.IncRunFailed()
		st.logger.Error("comparison failed", map[string]any{
			"error":       err.Error(),
			"duration_ms": time.Since(start).Milliseconds(),
		})
		return nil, err
	}

	o.config.Collector.IncRunCompleted()
	st.logger.Info("comparison complete", map[string]any{
		"tests":       len(st.result.Tasks),
		"duration_ms": time.Since(start).Milliseconds(),
	})
	return st.result, nil
}

func (o *Orchestrator) executePipeline(ctx context.Context, st *runState) error {
	if err := o.launchTests(ctx, st); err != nil {
		return err
	}
	if err := o.waitComplete(ctx, st); err != nil {
		return err
	}
	return join(
		func() error { return o.fetchResults(ctx, st) },
		func() error { return o.buildVideo(ctx, st) },
	)
}

// launchOptions resolves the per-run option set shared by every test.
func (o *Orchestrator) launchOptions(req types.RunRequest) types.LaunchOptions {
	opts := o.config.Options
	if req.Options != nil {
		opts = req.Options.Merge(o.config.Options)
	}
	private := true
	if o.config.Private != nil {
		private = *o.config.Private
	}
	if req.Private != nil {
		private = *req.Private
	}
	return types.LaunchOptions{
		TestOptions: opts,
		Private:     private,
		Video:       true,
	}
}

// labelFor resolves the label of the i-th URL.
func (o *Orchestrator) labelFor(req types.RunRequest, i int) string {
	if label := req.LabelFor(i); label != "" {
		return label
	}
	return o.config.Label
}

// pollOptions builds poll options bound to the run's logger.
func (o *Orchestrator) pollOptions(st *runState) poll.Options {
	return poll.Options{
		Interval:    o.config.PollInterval,
		MaxAttempts: o.config.PollMaxAttempts,
		Logger:      st.logger.Sugar(),
	}
}

// webReportURL is the human-facing result page of a test.
func (o *Orchestrator) webReportURL(testID string) string {
	host := strings.TrimRight(o.config.Host, "/")
	if !strings.Contains(host, "://") {
		host = "http://" + host
	}
	return host + "/result/" + testID + "/"
}
