package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sequent-io/sequent/internal/expressions"
	"github.com/sequent-io/sequent/pkg/schema"
)

func newEvaluator(t *testing.T) *conditionEvaluator {
	t.Helper()
	cel, err := expressions.NewCELEngine()
	require.NoError(t, err)
	return newConditionEvaluator(cel)
}

func TestConditionNilAlwaysFires(t *testing.T) {
	ev := newEvaluator(t)
	assert.True(t, ev.matches(context.Background(), nil, nil))
	assert.True(t, ev.matches(context.Background(), nil, 42.0))
}

func TestConditionSimpleComparisons(t *testing.T) {
	ev := newEvaluator(t)
	ctx := context.Background()

	tests := []struct {
		name     string
		operator string
		literal  string
		produced any
		want     bool
	}{
		{"is true on true", "is True", "", true, true},
		{"is true on false", "is True", "", false, false},
		{"is true on non-bool", "is True", "", "true", false},
		{"is false on false", "is False", "", false, true},
		{"loop body sentinel", schema.LoopBody, "", schema.LoopBody, true},
		{"loop body against finished", schema.LoopBody, "", schema.LoopFinished, false},
		{"finished sentinel", schema.LoopFinished, "", schema.LoopFinished, true},
		{"numeric equal", "==", "5", 5.0, true},
		{"numeric equal int produced", "==", "5", 5, true},
		{"numeric greater", ">", "3", 4.0, true},
		{"numeric less-equal", "<=", "3", 4.0, false},
		{"numeric not-equal", "!=", "3", 4.0, true},
		{"numeric literal unparseable", ">", "abc", 4.0, false},
		{"string equal", "==", "ready", "ready", true},
		{"string ordering", "<", "b", "a", true},
		{"bool equal", "==", "true", true, true},
		{"bool ordering unsupported", ">", "true", true, false},
		{"unknown operator", "~=", "5", 5.0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cond := &schema.Condition{Type: schema.ConditionSimple, Operator: tt.operator, Value: tt.literal}
			assert.Equal(t, tt.want, ev.matches(ctx, cond, tt.produced))
		})
	}
}

func TestConditionExpression(t *testing.T) {
	ev := newEvaluator(t)
	ctx := context.Background()

	tests := []struct {
		name       string
		expression string
		produced   any
		want       bool
	}{
		{"empty expression is pass-through", "", 12.0, true},
		{"blank expression is pass-through", "   ", false, true},
		{"boolean result", "input > 10.0", 12.0, true},
		{"boolean false", "input > 10.0", 9.0, false},
		{"non-boolean coerced truthy", "input", 1.0, true},
		{"non-boolean coerced falsy", "input", 0.0, false},
		{"string truthy", "input", "x", true},
		{"evaluation error is false", "input.field", 5.0, false},
		{"compile error is false", "input >", 5.0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cond := &schema.Condition{Type: schema.ConditionExpression, Expression: tt.expression}
			assert.Equal(t, tt.want, ev.matches(ctx, cond, tt.produced))
		})
	}
}

// Repeated evaluation with a fixed value and condition is pure.
func TestConditionDeterminism(t *testing.T) {
	ev := newEvaluator(t)
	ctx := context.Background()

	conds := []*schema.Condition{
		{Type: schema.ConditionSimple, Operator: ">", Value: "2"},
		{Type: schema.ConditionSimple, Operator: "<=", Value: "2"},
		{Type: schema.ConditionExpression, Expression: "input != 3.0"},
	}

	first := make([]bool, len(conds))
	for i, c := range conds {
		first[i] = ev.matches(ctx, c, 3.0)
	}
	for trial := 0; trial < 50; trial++ {
		for i, c := range conds {
			assert.Equal(t, first[i], ev.matches(ctx, c, 3.0))
		}
	}
}
