package graph

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sequent-io/sequent/pkg/schema"
)

func mustConfig(t *testing.T, v any) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

func TestBuildExcludesCommentNodes(t *testing.T) {
	def := &schema.SequenceDefinition{
		Name: "with-comment",
		Nodes: []schema.Node{
			{ID: "a", Kind: schema.KindStaticValue, Config: mustConfig(t, schema.StaticValueConfig{Value: "1"})},
			{ID: "note", Kind: schema.KindComment},
		},
	}

	g, err := Build(def)
	require.NoError(t, err)

	assert.Nil(t, g.Node("note"))
	assert.NotNil(t, g.Node("a"))
	assert.Equal(t, []string{"a"}, g.Nodes())
}

func TestStartNodeResolution(t *testing.T) {
	def := &schema.SequenceDefinition{
		Name: "linear",
		Nodes: []schema.Node{
			{ID: "first", Kind: schema.KindStaticValue, Config: mustConfig(t, schema.StaticValueConfig{Value: "1"})},
			{ID: "second", Kind: schema.KindDelay, Config: mustConfig(t, schema.DelayConfig{DelaySeconds: 0.1})},
		},
		ExecEdges: []schema.ExecEdge{
			{Source: "first", Target: "second"},
		},
	}

	g, err := Build(def)
	require.NoError(t, err)

	start, err := g.StartNode()
	require.NoError(t, err)
	assert.Equal(t, "first", start)
}

func TestStartNodeAllNodesHaveIncomingEdges(t *testing.T) {
	def := &schema.SequenceDefinition{
		Name: "cycle",
		Nodes: []schema.Node{
			{ID: "a", Kind: schema.KindStaticValue, Config: mustConfig(t, schema.StaticValueConfig{Value: "1"})},
			{ID: "b", Kind: schema.KindStaticValue, Config: mustConfig(t, schema.StaticValueConfig{Value: "2"})},
		},
		ExecEdges: []schema.ExecEdge{
			{Source: "a", Target: "b"},
			{Source: "b", Target: "a"},
		},
	}

	g, err := Build(def)
	require.NoError(t, err)

	_, err = g.StartNode()
	require.Error(t, err)

	var serr *schema.SequenceError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, schema.ErrCodeNoStartNode, serr.Code)
}

func TestOutgoingExecPreservesDefinitionOrder(t *testing.T) {
	def := &schema.SequenceDefinition{
		Name: "branching",
		Nodes: []schema.Node{
			{ID: "src", Kind: schema.KindStaticValue, Config: mustConfig(t, schema.StaticValueConfig{Value: "x"})},
			{ID: "t1", Kind: schema.KindDelay},
			{ID: "t2", Kind: schema.KindDelay},
			{ID: "t3", Kind: schema.KindDelay},
		},
		ExecEdges: []schema.ExecEdge{
			{Source: "src", Target: "t2"},
			{Source: "src", Target: "t1"},
			{Source: "src", Target: "t3"},
		},
	}

	g, err := Build(def)
	require.NoError(t, err)

	out := g.OutgoingExec("src")
	require.Len(t, out, 3)
	assert.Equal(t, "t2", out[0].Target)
	assert.Equal(t, "t1", out[1].Target)
	assert.Equal(t, "t3", out[2].Target)
	assert.Equal(t, 3, g.FanOut("src"))
}

func TestDataSourcePrefersUnlabeledSocket(t *testing.T) {
	def := &schema.SequenceDefinition{
		Name: "data",
		Nodes: []schema.Node{
			{ID: "v1", Kind: schema.KindStaticValue, Config: mustConfig(t, schema.StaticValueConfig{Value: "1"})},
			{ID: "v2", Kind: schema.KindStaticValue, Config: mustConfig(t, schema.StaticValueConfig{Value: "2"})},
			{ID: "sink", Kind: schema.KindCompute, Config: mustConfig(t, schema.ComputeConfig{Expression: "input"})},
		},
		DataEdges: []schema.DataEdge{
			{Source: "v1", Target: "sink", Socket: "aux"},
			{Source: "v2", Target: "sink"},
		},
	}

	g, err := Build(def)
	require.NoError(t, err)

	assert.Equal(t, "v2", g.DataSource("sink"))
	assert.Equal(t, "", g.DataSource("v1"))
	assert.Len(t, g.IncomingData("sink"), 2)
}

func TestFanInCountsIncomingExecEdges(t *testing.T) {
	def := &schema.SequenceDefinition{
		Name: "join-fan-in",
		Nodes: []schema.Node{
			{ID: "fork", Kind: schema.KindFork},
			{ID: "b1", Kind: schema.KindDelay},
			{ID: "b2", Kind: schema.KindDelay},
			{ID: "join", Kind: schema.KindJoin},
		},
		ExecEdges: []schema.ExecEdge{
			{Source: "fork", Target: "b1"},
			{Source: "fork", Target: "b2"},
			{Source: "b1", Target: "join"},
			{Source: "b2", Target: "join"},
		},
	}

	g, err := Build(def)
	require.NoError(t, err)
	assert.Equal(t, 2, g.FanIn("join"))
	assert.Equal(t, 0, g.FanIn("fork"))
}

func TestBuildRejectsInvalidDefinitions(t *testing.T) {
	tests := []struct {
		name string
		def  *schema.SequenceDefinition
	}{
		{
			name: "duplicate node ids",
			def: &schema.SequenceDefinition{
				Name: "dup",
				Nodes: []schema.Node{
					{ID: "a", Kind: schema.KindDelay},
					{ID: "a", Kind: schema.KindDelay},
				},
			},
		},
		{
			name: "edge to unknown node",
			def: &schema.SequenceDefinition{
				Name:      "dangling",
				Nodes:     []schema.Node{{ID: "a", Kind: schema.KindDelay}},
				ExecEdges: []schema.ExecEdge{{Source: "a", Target: "ghost"}},
			},
		},
		{
			name: "exec edge into comment",
			def: &schema.SequenceDefinition{
				Name: "comment-edge",
				Nodes: []schema.Node{
					{ID: "a", Kind: schema.KindDelay},
					{ID: "c", Kind: schema.KindComment},
				},
				ExecEdges: []schema.ExecEdge{{Source: "a", Target: "c"}},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Build(tt.def)
			require.Error(t, err)
		})
	}
}
