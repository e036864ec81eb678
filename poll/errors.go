package poll

import (
	"errors"
	"fmt"

	"github.com/pithecene-io/wptdiff/types"
)

// ErrAttemptsExhausted is matched by ExhaustedError via errors.Is.
var ErrAttemptsExhausted = errors.New("poll attempts exhausted")

// FailedError is returned when a probe reports a Failed status.
// Its message is exactly the remote status text.
type FailedError struct {
	ProbeID  string
	Envelope types.Envelope
}

func (e *FailedError) Error() string {
	return e.Envelope.StatusText
}

// StatusCode returns the remote status code that failed the probe.
func (e *FailedError) StatusCode() int {
	return e.Envelope.StatusCode
}

// ProbeError wraps a transport or decode error raised by a probe's check.
type ProbeError struct {
	ProbeID string
	Err     error
}

func (e *ProbeError) Error() string {
	return fmt.Sprintf("probe %s: %v", e.ProbeID, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As chain traversal.
func (e *ProbeError) Unwrap() error {
	return e.Err
}

// ExhaustedError is returned when a probe stays Pending past Options.MaxAttempts.
type ExhaustedError struct {
	ProbeID  string
	Attempts int
	Last     types.Envelope
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("probe %s still pending after %d attempts (last status %d %q)",
		e.ProbeID, e.Attempts, e.Last.StatusCode, e.Last.StatusText)
}

// Is reports whether target is ErrAttemptsExhausted.
func (e *ExhaustedError) Is(target error) bool {
	return target == ErrAttemptsExhausted
}
