// Package metrics provides per-run metrics collection.
//
// The Collector accumulates counters during comparison runs. It is a leaf
// package with no internal dependencies and every method is nil-receiver safe,
// so callers that do not care about metrics pass nil.
package metrics

import "sync"

// Snapshot is an immutable point-in-time view of all counters.
type Snapshot struct {
	// Run lifecycle
	RunsStarted   int64 `json:"runs_started" yaml:"runs_started"`
	RunsCompleted int64 `json:"runs_completed" yaml:"runs_completed"`
	RunsFailed    int64 `json:"runs_failed" yaml:"runs_failed"`
	RunsRejected  int64 `json:"runs_rejected" yaml:"runs_rejected"`

	// Remote tests
	TestsLaunched  int64 `json:"tests_launched" yaml:"tests_launched"`
	LaunchFailures int64 `json:"launch_failures" yaml:"launch_failures"`
	ResultsFetched int64 `json:"results_fetched" yaml:"results_fetched"`

	// Polling
	StatusPolls  int64 `json:"status_polls" yaml:"status_polls"`
	PollFailures int64 `json:"poll_failures" yaml:"poll_failures"`

	// Comparison video
	VideosCreated  int64 `json:"videos_created" yaml:"videos_created"`
	VideoFailures  int64 `json:"video_failures" yaml:"video_failures"`
	PlayersFetched int64 `json:"players_fetched" yaml:"players_fetched"`

	// Dimensions (informational, set at construction)
	Host  string `json:"host" yaml:"host"`
	RunID string `json:"run_id,omitempty" yaml:"run_id,omitempty"`
}

// Collector accumulates counters. Thread-safe via sync.Mutex.
type Collector struct {
	mu sync.Mutex

	runsStarted   int64
	runsCompleted int64
	runsFailed    int64
	runsRejected  int64

	testsLaunched  int64
	launchFailures int64
	resultsFetched int64

	statusPolls  int64
	pollFailures int64

	videosCreated  int64
	videoFailures  int64
	playersFetched int64

	host  string
	runID string
}

// NewCollector creates a Collector with dimension labels.
// runID may be empty when one collector spans several runs.
func NewCollector(host, runID string) *Collector {
	return &Collector{host: host, runID: runID}
}

// add increments one counter under the lock.
func (c *Collector) add(counter *int64, n int64) {
	c.mu.Lock()
	*counter += n
	c.mu.Unlock()
}

// --- Run lifecycle ---

// IncRunStarted records a run that passed the re-entrancy guard.
func (c *Collector) IncRunStarted() {
	if c == nil {
		return
	}
	c.add(&c.runsStarted, 1)
}

// IncRunCompleted records a successful run.
func (c *Collector) IncRunCompleted() {
	if c == nil {
		return
	}
	c.add(&c.runsCompleted, 1)
}

// IncRunFailed records a run that ended with an error.
func (c *Collector) IncRunFailed() {
	if c == nil {
		return
	}
	c.add(&c.runsFailed, 1)
}

// IncRunRejected records a run refused by the re-entrancy guard.
func (c *Collector) IncRunRejected() {
	if c == nil {
		return
	}
	c.add(&c.runsRejected, 1)
}

// --- Remote tests ---

// IncTestLaunched records an accepted start-test call.
func (c *Collector) IncTestLaunched() {
	if c == nil {
		return
	}
	c.add(&c.testsLaunched, 1)
}

// IncLaunchFailure records a rejected or failed start-test call.
func (c *Collector) IncLaunchFailure() {
	if c == nil {
		return
	}
	c.add(&c.launchFailures, 1)
}

// IncResultFetched records a fetched result detail.
func (c *Collector) IncResultFetched() {
	if c == nil {
		return
	}
	c.add(&c.resultsFetched, 1)
}

// --- Polling ---
// Poll counters are per-invocation: a probe that stays pending for N
// intervals counts N status polls.

// IncStatusPoll records one probe invocation.
func (c *Collector) IncStatusPoll() {
	if c == nil {
		return
	}
	c.add(&c.statusPolls, 1)
}

// IncPollFailure records a polling phase that ended in failure.
func (c *Collector) IncPollFailure() {
	if c == nil {
		return
	}
	c.add(&c.pollFailures, 1)
}

// --- Comparison video ---

// IncVideoCreated records an accepted create-video call.
func (c *Collector) IncVideoCreated() {
	if c == nil {
		return
	}
	c.add(&c.videosCreated, 1)
}

// IncVideoFailure records a rejected or failed create-video call.
func (c *Collector) IncVideoFailure() {
	if c == nil {
		return
	}
	c.add(&c.videoFailures, 1)
}

// IncPlayerFetched records a player descriptor read to readiness.
func (c *Collector) IncPlayerFetched() {
	if c == nil {
		return
	}
	c.add(&c.playersFetched, 1)
}

// --- Snapshot ---

// Snapshot returns an immutable point-in-time view of all metrics.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	return Snapshot{
		RunsStarted:   c.runsStarted,
		RunsCompleted: c.runsCompleted,
		RunsFailed:    c.runsFailed,
		RunsRejected:  c.runsRejected,

		TestsLaunched:  c.testsLaunched,
		LaunchFailures: c.launchFailures,
		ResultsFetched: c.resultsFetched,

		StatusPolls:  c.statusPolls,
		PollFailures: c.pollFailures,

		VideosCreated:  c.videosCreated,
		VideoFailures:  c.videoFailures,
		PlayersFetched: c.playersFetched,

		Host:  c.host,
		RunID: c.runID,
	}
}
