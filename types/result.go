package types

// TaskState is the lifecycle state of one remote test.
type TaskState string

const (
	// TaskQueued means the test has not been submitted yet.
	TaskQueued TaskState = "queued"
	// TaskLaunched means the service accepted the test.
	TaskLaunched TaskState = "launched"
	// TaskPolling means the pipeline is waiting for the test to finish.
	TaskPolling TaskState = "polling"
	// TaskComplete is terminal: the test finished and its detail is known.
	TaskComplete TaskState = "complete"
	// TaskFailed is terminal: launching or polling the test failed.
	TaskFailed TaskState = "failed"
)

// IsTerminal reports whether no further transitions are possible.
func (s TaskState) IsTerminal() bool {
	return s == TaskComplete || s == TaskFailed
}

// TaskHandle tracks one remote test through the pipeline.
type TaskHandle struct {
	// ID is the identity assigned by the service at launch.
	ID string `json:"id" yaml:"id"`
	// URL is the page under test.
	URL string `json:"url" yaml:"url"`
	// Label is the display label the test was launched with.
	Label string `json:"label,omitempty" yaml:"label,omitempty"`
	// State is the current lifecycle state.
	State TaskState `json:"state" yaml:"state"`
	// Launch is the start-test payload.
	Launch *LaunchData `json:"launch,omitempty" yaml:"launch,omitempty"`
	// Detail is the final status payload, set once the test is complete.
	Detail map[string]any `json:"detail,omitempty" yaml:"detail,omitempty"`
}

// RunResult is the aggregated output of a comparison run.
type RunResult struct {
	// RunID identifies this run in logs and reports.
	RunID string `json:"runId" yaml:"run_id"`
	// IDs maps each tested URL to its test id.
	IDs map[string]string `json:"ids" yaml:"ids"`
	// Tests maps test id to its final status detail.
	Tests map[string]map[string]any `json:"tests" yaml:"tests"`
	// Results maps test id to the full result detail.
	Results map[string]map[string]any `json:"results" yaml:"results"`
	// Video is the comparison video creation detail.
	Video map[string]any `json:"video" yaml:"video"`
	// Player is the video player descriptor read once the video is ready.
	Player map[string]any `json:"player" yaml:"player"`
	// Tasks lists the handles in input order.
	Tasks []*TaskHandle `json:"tasks" yaml:"tasks"`
}

// NewRunResult returns an empty result with all maps allocated.
func NewRunResult(runID string) *RunResult {
	return &RunResult{
		RunID:   runID,
		IDs:     make(map[string]string),
		Tests:   make(map[string]map[string]any),
		Results: make(map[string]map[string]any),
	}
}
