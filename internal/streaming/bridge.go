package streaming

import (
	"context"

	"github.com/sequent-io/sequent/internal/engine"
	"github.com/sequent-io/sequent/pkg/schema"
)

// Bridge forwards engine events into an EventHub. Subscribe it to an engine
// to expose runs as a live stream.
type Bridge struct {
	hub EventHub
}

var _ engine.Observer = (*Bridge)(nil)

// NewBridge creates a Bridge publishing into hub.
func NewBridge(hub EventHub) *Bridge {
	return &Bridge{hub: hub}
}

func (b *Bridge) publish(e StreamEvent) {
	_ = b.hub.Publish(context.Background(), e)
}

func (b *Bridge) OnRunStarted(runID, sequence string) {
	b.publish(StreamEvent{RunID: runID, Sequence: sequence, EventType: schema.EventRunStarted})
}

func (b *Bridge) OnRunFinished(runID, sequence string, wasStopped bool, err error) {
	payload := map[string]any{"stopped": wasStopped}
	if err != nil {
		payload["error"] = err.Error()
	}
	b.publish(StreamEvent{RunID: runID, Sequence: sequence, EventType: schema.EventRunFinished, Payload: payload})
}

func (b *Bridge) OnRunPaused(runID, sequence, nodeID string) {
	b.publish(StreamEvent{RunID: runID, Sequence: sequence, NodeID: nodeID, EventType: schema.EventRunPaused})
}

func (b *Bridge) OnNodeState(runID, sequence, nodeID string, state schema.NodeState) {
	var event string
	switch state {
	case schema.NodeRunning:
		event = schema.EventNodeRunning
	case schema.NodeSuccess:
		event = schema.EventNodeSuccess
	case schema.NodeFailed:
		event = schema.EventNodeFailed
	default:
		return
	}
	b.publish(StreamEvent{RunID: runID, Sequence: sequence, NodeID: nodeID, EventType: event})
}

func (b *Bridge) OnEdgeState(runID, sequence, source, target string, state schema.LinkState) {
	event := schema.EventEdgeIdle
	if state == schema.LinkActive {
		event = schema.EventEdgeActive
	}
	b.publish(StreamEvent{
		RunID:     runID,
		Sequence:  sequence,
		NodeID:    source,
		EventType: event,
		Payload:   map[string]any{"target": target},
	})
}

func (b *Bridge) OnVariableChanged(runID, name string, value any) {
	b.publish(StreamEvent{
		RunID:     runID,
		EventType: schema.EventVariableChanged,
		Payload:   map[string]any{"name": name, "value": value},
	})
}
