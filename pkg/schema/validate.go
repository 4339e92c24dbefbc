package schema

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"
)

// sequenceSchemaJSON is the JSON Schema for SequenceDefinition validation.
// Embedded as a constant to avoid filesystem dependencies.
const sequenceSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://sequent.dev/schemas/sequence.json",
  "type": "object",
  "required": ["name", "nodes"],
  "properties": {
    "name": { "type": "string", "minLength": 1 },
    "nodes": {
      "type": "array",
      "items": { "$ref": "#/$defs/node" }
    },
    "exec_edges": {
      "type": "array",
      "items": { "$ref": "#/$defs/exec_edge" }
    },
    "data_edges": {
      "type": "array",
      "items": { "$ref": "#/$defs/data_edge" }
    },
    "metadata": { "type": "object" }
  },
  "additionalProperties": false,
  "$defs": {
    "node": {
      "type": "object",
      "required": ["id", "kind"],
      "properties": {
        "id": { "type": "string", "minLength": 1 },
        "kind": {
          "type": "string",
          "enum": ["method_call", "delay", "write_value", "static_value",
                   "run_sequence", "for_loop", "while_loop", "compute",
                   "fork", "join", "set_variable", "get_variable",
                   "script", "database_read", "database_write", "comment"]
        },
        "label": { "type": "string" },
        "config": {},
        "breakpoint": { "type": "boolean" }
      },
      "additionalProperties": false
    },
    "exec_edge": {
      "type": "object",
      "required": ["source", "target"],
      "properties": {
        "source": { "type": "string", "minLength": 1 },
        "target": { "type": "string", "minLength": 1 },
        "condition": { "$ref": "#/$defs/condition" }
      },
      "additionalProperties": false
    },
    "data_edge": {
      "type": "object",
      "required": ["source", "target"],
      "properties": {
        "id": { "type": "string" },
        "source": { "type": "string", "minLength": 1 },
        "target": { "type": "string", "minLength": 1 },
        "socket": { "type": "string" }
      },
      "additionalProperties": false
    },
    "condition": {
      "type": "object",
      "properties": {
        "type": { "type": "string", "enum": ["simple", "expression"] },
        "operator": { "type": "string" },
        "value": { "type": "string" },
        "expression": { "type": "string" }
      },
      "additionalProperties": false
    }
  }
}`

var (
	compileOnce    sync.Once
	sequenceSchema *jsonschema.Schema
	compileErr     error
)

func compiledSchema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		c := jsonschema.NewCompiler()
		c.AssertFormat()

		doc, err := jsonschema.UnmarshalJSON(strings.NewReader(sequenceSchemaJSON))
		if err != nil {
			compileErr = fmt.Errorf("unmarshal sequence schema: %w", err)
			return
		}
		if err := c.AddResource("https://sequent.dev/schemas/sequence.json", doc); err != nil {
			compileErr = fmt.Errorf("add sequence schema resource: %w", err)
			return
		}
		sequenceSchema, compileErr = c.Compile("https://sequent.dev/schemas/sequence.json")
	})
	return sequenceSchema, compileErr
}

// ValidateDefinition validates a SequenceDefinition against the embedded
// JSON Schema, then applies structural checks the schema cannot express:
// duplicate node IDs, edges referencing unknown nodes, edges touching
// comment nodes, more than one data edge terminating at a socket, and
// per-kind config constraints.
func ValidateDefinition(def *SequenceDefinition) error {
	if def == nil {
		return NewError(ErrCodeValidation, "sequence definition is nil")
	}

	compiled, err := compiledSchema()
	if err != nil {
		return NewError(ErrCodeValidation, "sequence schema unavailable").WithCause(err)
	}

	doc, err := toJSONValue(def)
	if err != nil {
		return NewError(ErrCodeValidation, "failed to serialize sequence definition").WithCause(err)
	}
	if err := compiled.Validate(doc); err != nil {
		return toSequenceError(err)
	}

	nodes := make(map[string]*Node, len(def.Nodes))
	for i := range def.Nodes {
		n := &def.Nodes[i]
		if _, exists := nodes[n.ID]; exists {
			return NewErrorf(ErrCodeValidation, "duplicate node id %q", n.ID)
		}
		nodes[n.ID] = n
	}

	for _, e := range def.ExecEdges {
		src, ok := nodes[e.Source]
		if !ok {
			return NewErrorf(ErrCodeValidation, "exec edge references unknown source node %q", e.Source)
		}
		tgt, ok := nodes[e.Target]
		if !ok {
			return NewErrorf(ErrCodeValidation, "exec edge references unknown target node %q", e.Target)
		}
		if src.Kind == KindComment || tgt.Kind == KindComment {
			return NewErrorf(ErrCodeValidation, "exec edge %s -> %s touches a comment node", e.Source, e.Target)
		}
	}

	sockets := make(map[string]struct{}, len(def.DataEdges))
	for _, e := range def.DataEdges {
		if _, ok := nodes[e.Source]; !ok {
			return NewErrorf(ErrCodeValidation, "data edge references unknown source node %q", e.Source)
		}
		if _, ok := nodes[e.Target]; !ok {
			return NewErrorf(ErrCodeValidation, "data edge references unknown target node %q", e.Target)
		}
		key := e.Target + "\x00" + e.Socket
		if _, dup := sockets[key]; dup {
			return NewErrorf(ErrCodeValidation, "node %s socket %q has more than one data edge", e.Target, e.Socket)
		}
		sockets[key] = struct{}{}
	}

	for _, n := range nodes {
		if err := validateNodeConfig(n); err != nil {
			return err
		}
	}
	return nil
}

// validateNodeConfig checks kind-specific constraints on a node definition.
// Catches misconfiguration at load time instead of mid-run.
func validateNodeConfig(n *Node) error {
	switch n.Kind {
	case KindMethodCall:
		var cfg MethodCallConfig
		if err := DecodeConfig(n, &cfg); err != nil {
			return err
		}
		if cfg.Identifier == "" || cfg.Method == "" {
			return NewErrorf(ErrCodeValidation, "method_call node %s requires identifier and method", n.ID).WithNode(n.ID)
		}

	case KindDelay:
		var cfg DelayConfig
		if err := DecodeConfig(n, &cfg); err != nil {
			return err
		}
		if cfg.DelaySeconds < 0 {
			return NewErrorf(ErrCodeValidation, "delay node %s has negative delay", n.ID).WithNode(n.ID)
		}

	case KindWriteValue:
		var cfg WriteValueConfig
		if err := DecodeConfig(n, &cfg); err != nil {
			return err
		}
		if cfg.NodeID == "" {
			return NewErrorf(ErrCodeValidation, "write_value node %s has no target node_id", n.ID).WithNode(n.ID)
		}

	case KindRunSequence:
		var cfg RunSequenceConfig
		if err := DecodeConfig(n, &cfg); err != nil {
			return err
		}
		if cfg.Sequence == "" {
			return NewErrorf(ErrCodeValidation, "run_sequence node %s has no sequence name", n.ID).WithNode(n.ID)
		}

	case KindForLoop:
		var cfg ForLoopConfig
		if err := DecodeConfig(n, &cfg); err != nil {
			return err
		}
		if cfg.Iterations < 0 {
			return NewErrorf(ErrCodeValidation, "for_loop node %s has negative iterations", n.ID).WithNode(n.ID)
		}

	case KindCompute:
		var cfg ComputeConfig
		if err := DecodeConfig(n, &cfg); err != nil {
			return err
		}
		if cfg.Expression == "" {
			return NewErrorf(ErrCodeValidation, "compute node %s has no expression", n.ID).WithNode(n.ID)
		}
		if cfg.Engine != "" && cfg.Engine != "expr" && cfg.Engine != "jq" {
			return NewErrorf(ErrCodeValidation, "compute node %s has unknown engine %q", n.ID, cfg.Engine).WithNode(n.ID)
		}

	case KindSetVariable, KindGetVariable:
		var cfg VariableConfig
		if err := DecodeConfig(n, &cfg); err != nil {
			return err
		}
		if cfg.Name == "" {
			return NewErrorf(ErrCodeValidation, "%s node %s has no variable name", n.Kind, n.ID).WithNode(n.ID)
		}

	case KindScript:
		var cfg ScriptConfig
		if err := DecodeConfig(n, &cfg); err != nil {
			return err
		}
		if cfg.Source == "" {
			return NewErrorf(ErrCodeValidation, "script node %s has no source", n.ID).WithNode(n.ID)
		}

	case KindDatabaseRead:
		var cfg DatabaseReadConfig
		if err := DecodeConfig(n, &cfg); err != nil {
			return err
		}
		if cfg.Query == "" {
			return NewErrorf(ErrCodeValidation, "database_read node %s has no query", n.ID).WithNode(n.ID)
		}

	case KindDatabaseWrite:
		var cfg DatabaseWriteConfig
		if err := DecodeConfig(n, &cfg); err != nil {
			return err
		}
		if cfg.Table == "" {
			return NewErrorf(ErrCodeValidation, "database_write node %s has no table", n.ID).WithNode(n.ID)
		}
	}
	return nil
}

// toJSONValue round-trips a Go value through JSON encoding/decoding so that
// numeric values become json.Number (required by the jsonschema library).
func toJSONValue(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return jsonschema.UnmarshalJSON(strings.NewReader(string(b)))
}

// toSequenceError converts a jsonschema.ValidationError into a SequenceError
// with clear messages for the editor to surface.
func toSequenceError(err error) *SequenceError {
	verr, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return NewError(ErrCodeValidation, err.Error())
	}

	violations := collectViolations(verr)
	if len(violations) == 0 {
		return NewError(ErrCodeValidation, verr.Error())
	}
	if len(violations) == 1 {
		return NewError(ErrCodeValidation, violations[0]).
			WithDetails(map[string]any{"violations": violations})
	}
	msg := fmt.Sprintf("validation failed with %d errors", len(violations))
	return NewError(ErrCodeValidation, msg).
		WithDetails(map[string]any{"violations": violations})
}

// collectViolations walks a ValidationError tree and collects leaf error
// messages with their instance locations.
func collectViolations(verr *jsonschema.ValidationError) []string {
	if len(verr.Causes) == 0 {
		loc := "/"
		if len(verr.InstanceLocation) > 0 {
			loc = "/" + strings.Join(verr.InstanceLocation, "/")
		}
		return []string{fmt.Sprintf("%s: %s", loc, verr.Error())}
	}

	var violations []string
	for _, cause := range verr.Causes {
		violations = append(violations, collectViolations(cause)...)
	}
	return violations
}
