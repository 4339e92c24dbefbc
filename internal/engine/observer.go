package engine

import (
	"github.com/sequent-io/sequent/pkg/schema"
)

// Observer receives run lifecycle notifications. The editor uses these to
// recolor nodes and links; the run log persists them. Callbacks fire on
// walker goroutines and must not block.
type Observer interface {
	OnRunStarted(runID, sequence string)
	// OnRunFinished fires once per run. wasStopped distinguishes an
	// operator stop from a normal or failed completion; err carries the
	// failure, nil on success or stop.
	OnRunFinished(runID, sequence string, wasStopped bool, err error)
	OnRunPaused(runID, sequence, nodeID string)
	OnNodeState(runID, sequence, nodeID string, state schema.NodeState)
	OnEdgeState(runID, sequence, source, target string, state schema.LinkState)
	OnVariableChanged(runID, name string, value any)
}

// NopObserver implements Observer with no-ops. Embed it to implement only
// the callbacks you care about.
type NopObserver struct{}

func (NopObserver) OnRunStarted(runID, sequence string) {}
func (NopObserver) OnRunFinished(runID, sequence string, wasStopped bool, err error) {}
func (NopObserver) OnRunPaused(runID, sequence, nodeID string) {}
func (NopObserver) OnNodeState(runID, sequence, nodeID string, state schema.NodeState) {}
func (NopObserver) OnEdgeState(runID, sequence, source, target string, state schema.LinkState) {}
func (NopObserver) OnVariableChanged(runID, name string, value any) {}

// multiObserver fans notifications out to a fixed set of observers.
type multiObserver []Observer

func (m multiObserver) OnRunStarted(runID, sequence string) {
	for _, o := range m {
		o.OnRunStarted(runID, sequence)
	}
}

func (m multiObserver) OnRunFinished(runID, sequence string, wasStopped bool, err error) {
	for _, o := range m {
		o.OnRunFinished(runID, sequence, wasStopped, err)
	}
}

func (m multiObserver) OnRunPaused(runID, sequence, nodeID string) {
	for _, o := range m {
		o.OnRunPaused(runID, sequence, nodeID)
	}
}

func (m multiObserver) OnNodeState(runID, sequence, nodeID string, state schema.NodeState) {
	for _, o := range m {
		o.OnNodeState(runID, sequence, nodeID, state)
	}
}

func (m multiObserver) OnEdgeState(runID, sequence, source, target string, state schema.LinkState) {
	for _, o := range m {
		o.OnEdgeState(runID, sequence, source, target, state)
	}
}

func (m multiObserver) OnVariableChanged(runID, name string, value any) {
	for _, o := range m {
		o.OnVariableChanged(runID, name, value)
	}
}

var (
	_ Observer = (multiObserver)(nil)
	_ Observer = (*NopObserver)(nil)
)
