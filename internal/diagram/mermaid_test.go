package diagram

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sequent-io/sequent/pkg/schema"
)

func TestRenderMermaidBasicShape(t *testing.T) {
	def := &schema.SequenceDefinition{
		Name: "startup",
		Nodes: []schema.Node{
			{ID: "read", Kind: schema.KindMethodCall, Label: "Read Temperature"},
			{ID: "check", Kind: schema.KindWhileLoop},
			{ID: "log", Kind: schema.KindDatabaseWrite, Breakpoint: true},
		},
		ExecEdges: []schema.ExecEdge{
			{Source: "read", Target: "check"},
			{Source: "check", Target: "log", Condition: &schema.Condition{
				Type: schema.ConditionSimple, Operator: schema.LoopFinished,
			}},
		},
		DataEdges: []schema.DataEdge{
			{Source: "read", Target: "log", Socket: "temperature"},
		},
	}

	out := RenderMermaid(def)

	assert.True(t, strings.HasPrefix(out, "graph TD\n"))
	assert.Contains(t, out, "%% startup")
	assert.Contains(t, out, `read["Read Temperature"]`)
	assert.Contains(t, out, `check{"while_loop check"}`)
	assert.Contains(t, out, `log[("database_write log")]`)
	assert.Contains(t, out, `read --> check`)
	assert.Contains(t, out, `check -->|"Finished"| log`)
	assert.Contains(t, out, `read -.->|"temperature"| log`)
	assert.Contains(t, out, "class log breakpoint")
}

func TestRenderMermaidConditionLabels(t *testing.T) {
	tests := []struct {
		name string
		cond *schema.Condition
		want string
	}{
		{"nil condition", nil, ""},
		{"simple comparison", &schema.Condition{Type: schema.ConditionSimple, Operator: ">", Value: "5"}, "> 5"},
		{"is true", &schema.Condition{Type: schema.ConditionSimple, Operator: "is True"}, "is True"},
		{"loop body", &schema.Condition{Type: schema.ConditionSimple, Operator: schema.LoopBody}, "Loop Body"},
		{"expression", &schema.Condition{Type: schema.ConditionExpression, Expression: "input > 10.0"}, "input > 10.0"},
		{"multiline expression trimmed", &schema.Condition{Type: schema.ConditionExpression, Expression: "input\n> 10.0"}, "input"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, conditionLabel(tt.cond))
		})
	}
}

func TestRenderMermaidSanitizesIDs(t *testing.T) {
	def := &schema.SequenceDefinition{
		Name: "ids",
		Nodes: []schema.Node{
			{ID: "node-1.a", Kind: schema.KindStaticValue},
			{ID: "node 2", Kind: schema.KindStaticValue},
		},
		ExecEdges: []schema.ExecEdge{{Source: "node-1.a", Target: "node 2"}},
	}

	out := RenderMermaid(def)
	assert.Contains(t, out, "node_1_a")
	assert.Contains(t, out, "node_2")
	assert.NotContains(t, out, "node-1.a -->")
}
