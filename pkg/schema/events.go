package schema

// Event type constants for the run log.
const (
	EventRunStarted  = "run_started"
	EventRunFinished = "run_finished"
	EventRunPaused   = "run_paused"

	EventNodeRunning = "node_running"
	EventNodeSuccess = "node_success"
	EventNodeFailed  = "node_failed"

	EventEdgeActive = "edge_active"
	EventEdgeIdle   = "edge_idle"

	EventVariableChanged = "variable_changed"
)

// NodeState is the observer-visible state of a node during a run.
type NodeState string

const (
	NodeIdle    NodeState = "idle"
	NodeRunning NodeState = "running"
	NodeSuccess NodeState = "success"
	NodeFailed  NodeState = "failed"
	NodePaused  NodeState = "paused"
)

// LinkState is the observer-visible state of an execution edge.
type LinkState string

const (
	LinkIdle   LinkState = "idle"
	LinkActive LinkState = "active"
)

// DebugState is the engine's debug lifecycle state.
type DebugState string

const (
	DebugIdle    DebugState = "idle"
	DebugRunning DebugState = "running"
	DebugPaused  DebugState = "paused"
)
