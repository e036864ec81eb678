package runtime

import (
	"errors"
	"fmt"

	"github.com/pithecene-io/wptdiff/types"
)

// ErrAlreadyRunning is returned when Run is called on an orchestrator whose
// previous run has not finished.
var ErrAlreadyRunning = errors.New("already running")

// IsInvalidRequest reports whether err is a RunRequest validation failure.
func IsInvalidRequest(err error) bool {
	return errors.Is(err, types.ErrTooFewURLs) ||
		errors.Is(err, types.ErrLabelCount) ||
		errors.Is(err, types.ErrEmptyURL) ||
		errors.Is(err, types.ErrConnectivityWithoutLocation)
}

// Stage names a polling phase of the pipeline.
type Stage string

const (
	// StageTests waits for every launched test to complete.
	StageTests Stage = "tests"
	// StageVideo waits for the comparison video player descriptor.
	StageVideo Stage = "video"
)

// LaunchError is returned when the service rejects or fails a start-test call.
type LaunchError struct {
	URL        string
	StatusCode int
	StatusText string
	// Err is set for transport failures; StatusCode/StatusText are then zero.
	Err error
}

func (e *LaunchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("launch test for %s: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("launch test for %s: %s", e.URL, e.StatusText)
}

// Unwrap returns the underlying transport error, if any.
func (e *LaunchError) Unwrap() error {
	return e.Err
}

// PollFailure is returned when a polling phase ends without readiness:
// the service reported a failed status, a probe errored, or attempts ran out.
type PollFailure struct {
	Stage Stage
	// ProbeID is the test or video id whose probe ended the phase, if known.
	ProbeID string
	Err     error
}

func (e *PollFailure) Error() string {
	if e.ProbeID != "" {
		return fmt.Sprintf("wait for %s (%s): %v", e.Stage, e.ProbeID, e.Err)
	}
	return fmt.Sprintf("wait for %s: %v", e.Stage, e.Err)
}

// Unwrap exposes the poll error (poll.FailedError, poll.ProbeError, poll.ExhaustedError).
func (e *PollFailure) Unwrap() error {
	return e.Err
}

// ArtifactError is returned when comparison video creation is rejected or fails.
type ArtifactError struct {
	StatusCode int
	StatusText string
	Err        error
}

func (e *ArtifactError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("create video: %v", e.Err)
	}
	return fmt.Sprintf("create video: %s", e.StatusText)
}

// Unwrap returns the underlying error, if any.
func (e *ArtifactError) Unwrap() error {
	return e.Err
}

// ResultError is returned when fetching a finished test's result detail fails.
type ResultError struct {
	TestID     string
	StatusCode int
	StatusText string
	Err        error
}

func (e *ResultError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("fetch results for %s: %v", e.TestID, e.Err)
	}
	return fmt.Sprintf("fetch results for %s: %s", e.TestID, e.StatusText)
}

// Unwrap returns the underlying error, if any.
func (e *ResultError) Unwrap() error {
	return e.Err
}
