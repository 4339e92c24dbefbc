package expressions

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScriptRunnerAssignments(t *testing.T) {
	r := NewScriptRunner(NewExprEngine())

	src := `
# doubled feeds the next line
doubled = input * 2
output = doubled + 1
`
	res, err := r.Run(context.Background(), src, map[string]any{"input": 10})
	require.NoError(t, err)

	assert.EqualValues(t, 21, res.Output)
	assert.EqualValues(t, 20, res.Assigned["doubled"])
	assert.NotContains(t, res.Assigned, "output")
}

func TestScriptRunnerLastValueWhenNoOutput(t *testing.T) {
	r := NewScriptRunner(NewExprEngine())

	res, err := r.Run(context.Background(), "a = 1\nb = a + 2", map[string]any{})
	require.NoError(t, err)
	assert.EqualValues(t, 3, res.Output)
	assert.EqualValues(t, 1, res.Assigned["a"])
	assert.EqualValues(t, 3, res.Assigned["b"])
}

func TestScriptRunnerInputRebindingNotPropagated(t *testing.T) {
	r := NewScriptRunner(NewExprEngine())

	res, err := r.Run(context.Background(), "input = 5\noutput = input * 2", map[string]any{"input": 1})
	require.NoError(t, err)
	assert.EqualValues(t, 10, res.Output)
	assert.NotContains(t, res.Assigned, "input")
}

func TestScriptRunnerComparisonOperatorsInRHS(t *testing.T) {
	r := NewScriptRunner(NewExprEngine())

	res, err := r.Run(context.Background(), "ok = input >= 10\noutput = ok != false", map[string]any{"input": 12})
	require.NoError(t, err)
	assert.Equal(t, true, res.Output)
	assert.Equal(t, true, res.Assigned["ok"])
}

func TestScriptRunnerErrors(t *testing.T) {
	r := NewScriptRunner(NewExprEngine())

	tests := []struct {
		name string
		src  string
	}{
		{"no assignment", "just an expression"},
		{"bad target", "1bad = 2"},
		{"empty rhs", "x ="},
		{"runtime failure", "x = input.missing.deep"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Run(context.Background(), tt.src, map[string]any{"input": 1})
			require.Error(t, err)
		})
	}
}

func TestScriptRunnerEnvNotMutated(t *testing.T) {
	r := NewScriptRunner(NewExprEngine())

	env := map[string]any{"input": 1, "counter": 5}
	_, err := r.Run(context.Background(), "counter = counter + 1", env)
	require.NoError(t, err)
	assert.EqualValues(t, 5, env["counter"])
}
