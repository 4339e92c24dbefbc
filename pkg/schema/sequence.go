package schema

import "encoding/json"

// SequenceDefinition is the JSON-serializable graph format produced by the
// node editor. The engine only ever reads it.
type SequenceDefinition struct {
	Name      string         `json:"name"`
	Nodes     []Node         `json:"nodes"`
	ExecEdges []ExecEdge     `json:"exec_edges"`
	DataEdges []DataEdge     `json:"data_edges"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Project is the full set of named sequences loaded from project storage.
// Sequences may reference each other by name; cycles are legal.
type Project map[string]*SequenceDefinition

// Node is one typed step in a sequence.
type Node struct {
	ID         string          `json:"id"`
	Kind       NodeKind        `json:"kind"`
	Label      string          `json:"label,omitempty"`
	Config     json.RawMessage `json:"config,omitempty"`
	Breakpoint bool            `json:"breakpoint,omitempty"`
}

// NodeKind enumerates the kinds of nodes in a sequence.
type NodeKind string

const (
	KindMethodCall    NodeKind = "method_call"
	KindDelay         NodeKind = "delay"
	KindWriteValue    NodeKind = "write_value"
	KindStaticValue   NodeKind = "static_value"
	KindRunSequence   NodeKind = "run_sequence"
	KindForLoop       NodeKind = "for_loop"
	KindWhileLoop     NodeKind = "while_loop"
	KindCompute       NodeKind = "compute"
	KindFork          NodeKind = "fork"
	KindJoin          NodeKind = "join"
	KindSetVariable   NodeKind = "set_variable"
	KindGetVariable   NodeKind = "get_variable"
	KindScript        NodeKind = "script"
	KindDatabaseRead  NodeKind = "database_read"
	KindDatabaseWrite NodeKind = "database_write"
	KindComment       NodeKind = "comment"
)

// ExecEdge is a directed control-flow link between two nodes. The condition
// decides, from the source node's produced value, whether the edge fires.
type ExecEdge struct {
	Source    string     `json:"source"`
	Target    string     `json:"target"`
	Condition *Condition `json:"condition,omitempty"`
}

// DataEdge is an unconditional value-flow link feeding one labeled input
// socket of the target from the source node's output.
type DataEdge struct {
	ID     string `json:"id,omitempty"`
	Source string `json:"source"`
	Target string `json:"target"`
	Socket string `json:"socket,omitempty"`
}

// ConditionType selects how an ExecEdge condition is evaluated.
type ConditionType string

const (
	ConditionSimple     ConditionType = "simple"
	ConditionExpression ConditionType = "expression"
)

// Condition gates an ExecEdge. A nil Condition always fires.
//
// Simple conditions carry an operator and a literal compared against the
// produced value with runtime-type coercion. Loop nodes emit the sentinel
// strings "Loop Body" and "Finished", matched via the operator field.
// Expression conditions evaluate a CEL expression with the produced value
// bound as `input`.
type Condition struct {
	Type       ConditionType `json:"type,omitempty"`
	Operator   string        `json:"operator,omitempty"`
	Value      string        `json:"value,omitempty"`
	Expression string        `json:"expression,omitempty"`
}

// Loop sentinel values produced by ForLoop and WhileLoop nodes and matched
// by edge conditions.
const (
	LoopBody     = "Loop Body"
	LoopFinished = "Finished"
)

// --- Per-kind node configs ---
//
// Node.Config is decoded into exactly one of these at graph-load time.

// ArgumentConfig is embedded by node kinds that take one resolvable input.
// A connected data edge always wins; the literal is the fallback when no
// edge feeds the node.
type ArgumentConfig struct {
	ArgumentValue string `json:"argument_value,omitempty"`
}

// MethodCallConfig configures a MethodCall node.
type MethodCallConfig struct {
	Identifier  string `json:"identifier"`
	Method      string `json:"method"`
	HasArgument bool   `json:"has_argument,omitempty"`
	ArgumentConfig
}

// DelayConfig configures a Delay node.
type DelayConfig struct {
	DelaySeconds float64 `json:"delay_seconds"`
}

// WriteValueConfig configures a WriteValue node. TypeHint names the server
// datatype the value is encoded as; empty lets the point client infer it.
type WriteValueConfig struct {
	NodeID   string `json:"node_id"`
	TypeHint string `json:"type_hint,omitempty"`
	ArgumentConfig
}

// StaticValueConfig configures a StaticValue node.
type StaticValueConfig struct {
	Value string `json:"value"`
}

// RunSequenceConfig configures a RunSequence node.
type RunSequenceConfig struct {
	Sequence string `json:"sequence"`
}

// ForLoopConfig configures a ForLoop node.
type ForLoopConfig struct {
	Iterations int `json:"iterations"`
}

// WhileLoopConfig configures a WhileLoop node. The condition value is
// compared against the live value of the node's data-edge source, re-executed
// before every iteration. Negate true means "loop while not equal".
type WhileLoopConfig struct {
	ConditionValue string `json:"condition_value"`
	Negate         bool   `json:"negate,omitempty"`
}

// ComputeConfig configures a Compute node. Engine selects the evaluator:
// "expr" (default) or "jq".
type ComputeConfig struct {
	Expression string `json:"expression"`
	Engine     string `json:"engine,omitempty"`
}

// VariableConfig configures SetVariable and GetVariable nodes.
type VariableConfig struct {
	Name string `json:"name"`
	ArgumentConfig
}

// ScriptConfig configures a Script node.
type ScriptConfig struct {
	Source string `json:"source"`
	ArgumentConfig
}

// DatabaseReadConfig configures a DatabaseRead node. Query is a
// parameterized SELECT; the node's resolved argument, if any, binds the
// single placeholder.
type DatabaseReadConfig struct {
	Query string `json:"query"`
	ArgumentConfig
}

// DatabaseWriteConfig configures a DatabaseWrite node. Labeled data-edge
// sockets map to column names. When KeyColumn names one of the sockets, the
// write becomes an UPSERT on that column.
type DatabaseWriteConfig struct {
	Table     string `json:"table"`
	KeyColumn string `json:"key_column,omitempty"`
}

// DecodeConfig unmarshals a node's raw config into the given typed struct.
// An absent config decodes as the zero value.
func DecodeConfig(n *Node, out any) error {
	if len(n.Config) == 0 {
		return nil
	}
	if err := json.Unmarshal(n.Config, out); err != nil {
		return NewErrorf(ErrCodeValidation, "node %s: invalid %s config: %s", n.ID, n.Kind, err.Error()).
			WithNode(n.ID).WithCause(err)
	}
	return nil
}
