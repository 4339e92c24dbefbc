package expressions

import (
	"context"
	"regexp"
	"strings"

	"github.com/sequent-io/sequent/pkg/schema"
)

// ScriptRunner executes small line-oriented scripts on top of the Expr
// engine. Each non-empty line is an assignment:
//
//	name = expression
//
// Right-hand sides are full Expr expressions evaluated against an
// environment holding the node's resolved input (as `input`), the run's
// named variables, and every name assigned by earlier lines. Lines starting
// with '#' are comments.
//
// The value assigned to `output` becomes the node's produced value; when no
// line assigns `output`, the last assigned value is produced. Every other
// assigned name is reported back to the caller so the engine can fold it
// into the run's variables.
type ScriptRunner struct {
	engine *ExprEngine
}

// ScriptResult is the outcome of one script execution.
type ScriptResult struct {
	// Output is the node's produced value.
	Output any
	// Assigned holds every assignment except input and output, in final state.
	Assigned map[string]any
}

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// NewScriptRunner creates a runner backed by the given Expr engine.
func NewScriptRunner(engine *ExprEngine) *ScriptRunner {
	return &ScriptRunner{engine: engine}
}

// Run executes the script source against the given environment. The env map
// is not mutated; assignments land in the result.
func (r *ScriptRunner) Run(ctx context.Context, source string, env map[string]any) (*ScriptResult, error) {
	scope := make(map[string]any, len(env)+4)
	for k, v := range env {
		scope[k] = v
	}

	result := &ScriptResult{Assigned: make(map[string]any)}
	hasOutput := false
	var lastValue any
	hasAny := false

	for lineNo, raw := range strings.Split(source, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		name, rhs, err := splitAssignment(line)
		if err != nil {
			return nil, schema.NewErrorf(schema.ErrCodeValidation,
				"script line %d: %s", lineNo+1, err.Error()).
				WithDetails(map[string]any{"line": line})
		}

		val, err := r.engine.Evaluate(ctx, rhs, scope)
		if err != nil {
			return nil, schema.NewErrorf(schema.ErrCodeExecution,
				"script line %d failed", lineNo+1).
				WithCause(err).
				WithDetails(map[string]any{"line": line})
		}

		scope[name] = val
		lastValue = val
		hasAny = true

		switch name {
		case "output":
			result.Output = val
			hasOutput = true
		case "input":
			// local rebinding only, never propagated
		default:
			result.Assigned[name] = val
		}
	}

	if !hasOutput && hasAny {
		result.Output = lastValue
	}
	return result, nil
}

// splitAssignment splits "name = expression" at the first top-level '='.
// Comparison operators (==, !=, <=, >=) on the right-hand side are left
// intact because the split requires a bare '=' not part of an operator.
func splitAssignment(line string) (name, rhs string, err error) {
	for i := 0; i < len(line); i++ {
		if line[i] != '=' {
			continue
		}
		// skip ==, !=, <=, >= occurrences
		if i+1 < len(line) && line[i+1] == '=' {
			i++
			continue
		}
		if i > 0 && (line[i-1] == '!' || line[i-1] == '<' || line[i-1] == '>') {
			continue
		}

		name = strings.TrimSpace(line[:i])
		rhs = strings.TrimSpace(line[i+1:])
		if !identRe.MatchString(name) {
			return "", "", schema.NewErrorf(schema.ErrCodeValidation, "invalid assignment target %q", name)
		}
		if rhs == "" {
			return "", "", schema.NewError(schema.ErrCodeValidation, "empty right-hand side")
		}
		return name, rhs, nil
	}
	return "", "", schema.NewError(schema.ErrCodeValidation, "expected assignment of the form name = expression")
}
