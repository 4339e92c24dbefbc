package engine

import (
	"context"
	"strconv"
	"strings"

	"github.com/sequent-io/sequent/internal/expressions"
	"github.com/sequent-io/sequent/pkg/schema"
)

// conditionEvaluator decides whether an execution edge fires for a given
// produced value. Pure for a fixed value and condition: repeated calls
// yield the same choice. Evaluation failures gate the edge closed instead
// of failing the run.
type conditionEvaluator struct {
	cel *expressions.CELEngine
}

func newConditionEvaluator(cel *expressions.CELEngine) *conditionEvaluator {
	return &conditionEvaluator{cel: cel}
}

// matches reports whether the edge condition passes for the produced value.
// A nil condition always fires.
func (ev *conditionEvaluator) matches(ctx context.Context, cond *schema.Condition, produced any) bool {
	if cond == nil {
		return true
	}

	if cond.Type == schema.ConditionExpression || (cond.Type == "" && cond.Expression != "") {
		return ev.matchExpression(ctx, cond.Expression, produced)
	}
	return matchSimple(cond, produced)
}

// matchExpression evaluates a sandboxed expression with the produced value
// bound as input. An empty expression is pass-through, like a nil condition.
// Non-boolean results coerce to their truthiness; errors are treated as
// false.
func (ev *conditionEvaluator) matchExpression(ctx context.Context, expression string, produced any) bool {
	if strings.TrimSpace(expression) == "" {
		return true
	}
	out, err := ev.cel.Evaluate(ctx, expression, map[string]any{"input": produced})
	if err != nil {
		return false
	}
	return truthy(out)
}

func matchSimple(cond *schema.Condition, produced any) bool {
	switch cond.Operator {
	case "is True":
		b, ok := produced.(bool)
		return ok && b
	case "is False":
		b, ok := produced.(bool)
		return ok && !b
	case schema.LoopBody, schema.LoopFinished:
		// label match for loop sentinels
		s, ok := produced.(string)
		return ok && s == cond.Operator
	}
	return compare(cond.Operator, produced, cond.Value)
}

// compare coerces the edge literal to the produced value's runtime type and
// applies the operator. Unsupported operators and coercion failures are
// false, never errors.
func compare(op string, produced any, literal string) bool {
	switch v := produced.(type) {
	case bool:
		lit, err := strconv.ParseBool(strings.ToLower(strings.TrimSpace(literal)))
		if err != nil {
			return false
		}
		switch op {
		case "==":
			return v == lit
		case "!=":
			return v != lit
		}
		return false
	case string:
		return compareOrdered(op, v, literal)
	default:
		f, ok := asFloat(produced)
		if !ok {
			return false
		}
		lit, err := strconv.ParseFloat(strings.TrimSpace(literal), 64)
		if err != nil {
			return false
		}
		return compareOrdered(op, f, lit)
	}
}

func compareOrdered[T float64 | string](op string, a, b T) bool {
	switch op {
	case "==":
		return a == b
	case "!=":
		return a != b
	case ">":
		return a > b
	case "<":
		return a < b
	case ">=":
		return a >= b
	case "<=":
		return a <= b
	}
	return false
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}

// truthy reduces an arbitrary value to a boolean: nil, false, zero numbers
// and empty strings are false, everything else true.
func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	default:
		if f, ok := asFloat(v); ok {
			return f != 0
		}
		return true
	}
}
