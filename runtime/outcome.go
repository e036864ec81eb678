package runtime

import (
	"context"
	"errors"
)

// OutcomeStatus classifies how a comparison run ended.
type OutcomeStatus string

const (
	// OutcomeSuccess means every stage completed.
	OutcomeSuccess OutcomeStatus = "success"
	// OutcomeRejected means the run never started: the orchestrator was busy
	// or the request was invalid.
	OutcomeRejected OutcomeStatus = "rejected"
	// OutcomeLaunchFailed means the service refused to start a test.
	OutcomeLaunchFailed OutcomeStatus = "launch_failed"
	// OutcomePollFailed means a test or the video reported a failed status.
	OutcomePollFailed OutcomeStatus = "poll_failed"
	// OutcomeResultFailed means a result detail could not be fetched.
	OutcomeResultFailed OutcomeStatus = "result_failed"
	// OutcomeArtifactFailed means the comparison video could not be created.
	OutcomeArtifactFailed OutcomeStatus = "artifact_failed"
	// OutcomeCanceled means the run context was cancelled or timed out.
	OutcomeCanceled OutcomeStatus = "canceled"
	// OutcomeError covers anything else.
	OutcomeError OutcomeStatus = "error"
)

// Outcome is the terminal status of a run plus a human readable message.
type Outcome struct {
	Status  OutcomeStatus `json:"status" yaml:"status"`
	Message string        `json:"message" yaml:"message"`
}

// DetermineOutcome maps the error returned by Run to an Outcome.
// A nil error is success.
func DetermineOutcome(err error) Outcome {
	if err == nil {
		return Outcome{Status: OutcomeSuccess, Message: "comparison completed"}
	}

	var (
		launchErr   *LaunchError
		pollErr     *PollFailure
		resultErr   *ResultError
		artifactErr *ArtifactError
	)
	status := OutcomeError
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		status = OutcomeCanceled
	case errors.Is(err, ErrAlreadyRunning), IsInvalidRequest(err):
		status = OutcomeRejected
	case errors.As(err, &launchErr):
		status = OutcomeLaunchFailed
	case errors.As(err, &pollErr):
		status = OutcomePollFailed
	case errors.As(err, &resultErr):
		status = OutcomeResultFailed
	case errors.As(err, &artifactErr):
		status = OutcomeArtifactFailed
	}
	return Outcome{Status: status, Message: err.Error()}
}
