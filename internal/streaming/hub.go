// Package streaming fans engine events out to live subscribers: the editor's
// run view subscribes here to animate nodes and edges as a sequence executes.
package streaming

import "context"

// StreamEvent is a real-time event emitted during a sequence run.
type StreamEvent struct {
	RunID     string `json:"run_id"`
	Sequence  string `json:"sequence"`
	NodeID    string `json:"node_id,omitempty"`
	EventType string `json:"event_type"`
	Payload   any    `json:"payload,omitempty"`
}

// EventFilter specifies which events a subscriber wants to receive. Zero
// fields do not filter; a subscriber watching one editor tab typically sets
// Sequence, a run detail view sets RunID.
type EventFilter struct {
	RunID      string   `json:"run_id,omitempty"`
	Sequence   string   `json:"sequence,omitempty"`
	EventTypes []string `json:"event_types,omitempty"`
}

// EventHub provides pub/sub for real-time run events.
type EventHub interface {
	Publish(ctx context.Context, event StreamEvent) error
	Subscribe(ctx context.Context, filter EventFilter) (<-chan StreamEvent, func(), error)
}
