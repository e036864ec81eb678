// Package adapter defines the notification boundary for finished comparisons.
//
// Adapters publish a comparison_completed event to downstream systems after a
// run ends. The CLI owns adapter lifecycle; users provide configuration only.
package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// EventTypeComparisonCompleted is the only event type published.
const EventTypeComparisonCompleted = "comparison_completed"

// ComparisonCompletedEvent is the payload published when a run finishes.
type ComparisonCompletedEvent struct {
	ContractVersion string            `json:"contract_version" msgpack:"contract_version"`
	EventType       string            `json:"event_type" msgpack:"event_type"`
	RunID           string            `json:"run_id" msgpack:"run_id"`
	Host            string            `json:"host" msgpack:"host"`
	Outcome         string            `json:"outcome" msgpack:"outcome"`
	Message         string            `json:"message,omitempty" msgpack:"message,omitempty"`
	URLs            []string          `json:"urls" msgpack:"urls"`
	TestIDs         map[string]string `json:"test_ids,omitempty" msgpack:"test_ids,omitempty"`
	VideoID         string            `json:"video_id,omitempty" msgpack:"video_id,omitempty"`
	ReportLocation  string            `json:"report_location,omitempty" msgpack:"report_location,omitempty"`
	Timestamp       string            `json:"timestamp" msgpack:"timestamp"`
	DurationMs      int64             `json:"duration_ms" msgpack:"duration_ms"`
}

// Adapter publishes comparison completion events to a downstream system.
type Adapter interface {
	// Publish sends one event. It must respect ctx cancellation and deadlines.
	Publish(ctx context.Context, event *ComparisonCompletedEvent) error

	// Close releases adapter resources.
	Close() error
}

// Codec selects the wire encoding of published events.
type Codec string

const (
	// CodecJSON encodes events as JSON (default).
	CodecJSON Codec = "json"
	// CodecMsgpack encodes events as MessagePack.
	CodecMsgpack Codec = "msgpack"
)

// ParseCodec validates a codec name. Empty selects CodecJSON.
func ParseCodec(s string) (Codec, error) {
	switch Codec(s) {
	case "", CodecJSON:
		return CodecJSON, nil
	case CodecMsgpack:
		return CodecMsgpack, nil
	default:
		return "", fmt.Errorf("unknown codec %q (want json or msgpack)", s)
	}
}

// Encode serializes event with the codec.
func (c Codec) Encode(event *ComparisonCompletedEvent) ([]byte, error) {
	switch c {
	case "", CodecJSON:
		return json.Marshal(event)
	case CodecMsgpack:
		return msgpack.Marshal(event)
	default:
		return nil, fmt.Errorf("unknown codec %q", string(c))
	}
}

// ContentType is the HTTP media type of the codec's output.
func (c Codec) ContentType() string {
	if c == CodecMsgpack {
		return "application/msgpack"
	}
	return "application/json"
}

// BaseBackoff is the delay before the first retry.
const BaseBackoff = 500 * time.Millisecond

// Backoff returns the exponential delay before retry n (n >= 1).
func Backoff(base time.Duration, n int) time.Duration {
	if n < 1 {
		return 0
	}
	return time.Duration(1<<uint(n-1)) * base
}

// Sleep waits d or until ctx is done, whichever comes first.
func Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
