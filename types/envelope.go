// Package types defines core domain types for wptdiff.
//
//nolint:revive // types is a common Go package naming convention
package types

import (
	"encoding/json"
	"fmt"
)

// Envelope is the status envelope returned by every remote service call.
// Data is kept raw; callers decode only the fields they need.
type Envelope struct {
	StatusCode int             `json:"statusCode" yaml:"status_code"`
	StatusText string          `json:"statusText" yaml:"status_text"`
	Data       json.RawMessage `json:"data,omitempty" yaml:"-"`
}

// Readiness is the three-state classification of an Envelope.
type Readiness int

const (
	// Pending means the resource is not ready yet; poll again.
	Pending Readiness = iota
	// Ready means the resource is available.
	Ready
	// Failed means the remote side reported a terminal failure.
	Failed
)

// String returns the readiness name.
func (r Readiness) String() string {
	switch r {
	case Pending:
		return "pending"
	case Ready:
		return "ready"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("readiness(%d)", int(r))
	}
}

// Classify maps a status code to a Readiness.
// 200-299 is Ready, 300 and above is Failed, anything lower is Pending
// (WebPageTest reports 100/101 while a test is queued or running).
func Classify(statusCode int) Readiness {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return Ready
	case statusCode >= 300:
		return Failed
	default:
		return Pending
	}
}

// Readiness classifies the envelope's status code.
func (e Envelope) Readiness() Readiness {
	return Classify(e.StatusCode)
}

// DecodeData unmarshals the envelope payload into v.
// An absent payload is an error so callers never work with zero values by accident.
func (e Envelope) DecodeData(v any) error {
	if len(e.Data) == 0 || string(e.Data) == "null" {
		return fmt.Errorf("envelope has no data (status %d %q)", e.StatusCode, e.StatusText)
	}
	if err := json.Unmarshal(e.Data, v); err != nil {
		return fmt.Errorf("decode envelope data: %w", err)
	}
	return nil
}

// Detail returns the payload as a generic JSON object.
// Non-object payloads are wrapped under the "value" key.
func (e Envelope) Detail() (map[string]any, error) {
	var raw any
	if err := e.DecodeData(&raw); err != nil {
		return nil, err
	}
	if m, ok := raw.(map[string]any); ok {
		return m, nil
	}
	return map[string]any{"value": raw}, nil
}

// LaunchData is the payload of a start-test response.
type LaunchData struct {
	TestID  string `json:"testId"`
	UserURL string `json:"userUrl,omitempty"`
	JSONURL string `json:"jsonUrl,omitempty"`
}

// StatusData is the subset of a test status payload the pipeline reads.
type StatusData struct {
	ID       string `json:"id"`
	TestInfo struct {
		URL string `json:"url"`
	} `json:"testInfo"`
}

// VideoData is the payload of a create-video response.
// Older WebPageTest builds use artifactId instead of videoId.
type VideoData struct {
	VideoID    string `json:"videoId,omitempty"`
	ArtifactID string `json:"artifactId,omitempty"`
	JSONURL    string `json:"jsonUrl"`
}

// ID returns whichever artifact identifier the service supplied.
func (v VideoData) ID() string {
	if v.VideoID != "" {
		return v.VideoID
	}
	return v.ArtifactID
}
