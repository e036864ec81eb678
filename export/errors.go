package export

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for export failure classification.
var (
	// ErrPermissionDenied indicates a local permission failure (EACCES).
	ErrPermissionDenied = errors.New("permission denied")
	// ErrNotFound indicates a missing bucket or directory.
	ErrNotFound = errors.New("not found")
	// ErrDiskFull indicates local storage is out of space.
	ErrDiskFull = errors.New("no space left on device")
	// ErrTimeout indicates the write timed out.
	ErrTimeout = errors.New("operation timed out")
	// ErrThrottled indicates rate limiting (429, SlowDown).
	ErrThrottled = errors.New("rate limited")
	// ErrAuth indicates missing or invalid credentials.
	ErrAuth = errors.New("authentication failed")
	// ErrAccessDenied indicates valid credentials without permission.
	ErrAccessDenied = errors.New("access denied")
	// ErrNetwork indicates a network-level failure.
	ErrNetwork = errors.New("network error")
	// ErrUnclassified is the kind of any other failure.
	ErrUnclassified = errors.New("export error")
)

// Error is a classified export failure. errors.Is matches both Kind and the
// wrapped error.
type Error struct {
	Kind error
	Op   string
	Path string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s %s: %v: %v", e.Op, e.Path, e.Kind, e.Err)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is the classification sentinel.
func (e *Error) Is(target error) bool {
	return e.Kind == target
}

// Wrap classifies err and wraps it. It returns nil if err is nil.
func Wrap(err error, op, path string) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: classify(err), Op: op, Path: path, Err: err}
}

type classRule struct {
	kind     error
	patterns []string
}

// Order matters: access denied before permission denied, auth before network.
var classRules = []classRule{
	{ErrAccessDenied, []string{"accessdenied", "forbidden", "403"}},
	{ErrPermissionDenied, []string{"permission denied", "eacces"}},
	{ErrNotFound, []string{"no such file", "does not exist", "nosuchbucket", "not found", "404"}},
	{ErrDiskFull, []string{"no space left", "disk full", "enospc", "quota exceeded"}},
	{ErrTimeout, []string{"timeout", "timed out", "deadline exceeded"}},
	{ErrThrottled, []string{"slowdown", "rate exceeded", "throttl", "429", "toomanyrequests"}},
	{ErrAuth, []string{"nocredentialproviders", "failed to retrieve credentials", "invalidaccesskeyid",
		"signaturedoesnotmatch", "expiredtoken", "401", "unauthorized"}},
	{ErrNetwork, []string{"connection refused", "no route to host", "network unreachable",
		"no such host", "dial tcp"}},
}

func classify(err error) error {
	var timeoutErr interface{ Timeout() bool }
	if errors.As(err, &timeoutErr) && timeoutErr.Timeout() {
		return ErrTimeout
	}

	msg := strings.ToLower(err.Error())
	for _, rule := range classRules {
		for _, p := range rule.patterns {
			if strings.Contains(msg, p) {
				return rule.kind
			}
		}
	}
	return ErrUnclassified
}
