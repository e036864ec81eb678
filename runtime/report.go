package runtime

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/pithecene-io/wptdiff/metrics"
	"github.com/pithecene-io/wptdiff/types"
)

// RunReport is the structured summary written by --report.
type RunReport struct {
	RunID      string        `json:"run_id" yaml:"run_id"`
	Version    string        `json:"version" yaml:"version"`
	Host       string        `json:"host" yaml:"host"`
	URLs       []string      `json:"urls" yaml:"urls"`
	Outcome    OutcomeStatus `json:"outcome" yaml:"outcome"`
	Message    string        `json:"message" yaml:"message"`
	ExitCode   int           `json:"exit_code" yaml:"exit_code"`
	StartedAt  time.Time     `json:"started_at" yaml:"started_at"`
	DurationMs int64         `json:"duration_ms" yaml:"duration_ms"`
	TaskCount  int           `json:"task_count" yaml:"task_count"`

	Metrics *metrics.Snapshot `json:"metrics" yaml:"metrics"`
	Result  *types.RunResult  `json:"result,omitempty" yaml:"result,omitempty"`
}

// ReportInput carries everything BuildRunReport needs from the caller.
type ReportInput struct {
	RunID     string
	Host      string
	Request   types.RunRequest
	Result    *types.RunResult
	Err       error
	ExitCode  int
	StartedAt time.Time
	Duration  time.Duration
	Metrics   metrics.Snapshot
}

// BuildRunReport composes a RunReport. Result is nil for failed runs.
func BuildRunReport(in ReportInput) *RunReport {
	outcome := DetermineOutcome(in.Err)
	snap := in.Metrics
	report := &RunReport{
		RunID:      in.RunID,
		Version:    types.Version,
		Host:       in.Host,
		URLs:       in.Request.URLs,
		Outcome:    outcome.Status,
		Message:    outcome.Message,
		ExitCode:   in.ExitCode,
		StartedAt:  in.StartedAt.UTC(),
		DurationMs: in.Duration.Milliseconds(),
		Metrics:    &snap,
	}
	if in.Result != nil {
		if report.RunID == "" {
			report.RunID = in.Result.RunID
		}
		report.TaskCount = len(in.Result.Tasks)
		report.Result = in.Result
	}
	return report
}

// Marshal encodes the report as indented JSON with a trailing newline.
func (r *RunReport) Marshal() ([]byte, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal report: %w", err)
	}
	return append(data, '\n'), nil
}
