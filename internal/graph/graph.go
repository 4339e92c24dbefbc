// Package graph builds an executable view of a sequence definition: fast
// node lookup, outgoing edge indexes, and start-node resolution.
package graph

import (
	"github.com/sequent-io/sequent/pkg/schema"
)

// Graph is the executable form of a SequenceDefinition. Comment nodes are
// excluded; they are editor annotations and never execute.
type Graph struct {
	Name  string
	nodes map[string]*schema.Node

	// outgoing exec edges keyed by source node, in definition order
	execOut map[string][]schema.ExecEdge
	// incoming data edges keyed by target node, in definition order
	dataIn map[string][]schema.DataEdge

	hasIncomingExec map[string]bool

	nodeOrder []string
}

// Build validates a definition and constructs its executable graph.
func Build(def *schema.SequenceDefinition) (*Graph, error) {
	if err := schema.ValidateDefinition(def); err != nil {
		return nil, err
	}

	g := &Graph{
		Name:            def.Name,
		nodes:           make(map[string]*schema.Node, len(def.Nodes)),
		execOut:         make(map[string][]schema.ExecEdge),
		dataIn:          make(map[string][]schema.DataEdge),
		hasIncomingExec: make(map[string]bool),
	}

	for i := range def.Nodes {
		n := &def.Nodes[i]
		if n.Kind == schema.KindComment {
			continue
		}
		g.nodes[n.ID] = n
		g.nodeOrder = append(g.nodeOrder, n.ID)
	}

	for _, e := range def.ExecEdges {
		g.execOut[e.Source] = append(g.execOut[e.Source], e)
		g.hasIncomingExec[e.Target] = true
	}
	for _, e := range def.DataEdges {
		g.dataIn[e.Target] = append(g.dataIn[e.Target], e)
	}

	return g, nil
}

// Node returns the node with the given ID, or nil.
func (g *Graph) Node(id string) *schema.Node {
	return g.nodes[id]
}

// Nodes returns the executable node IDs in definition order.
func (g *Graph) Nodes() []string {
	return g.nodeOrder
}

// OutgoingExec returns the outgoing execution edges of a node in
// definition order. The walker follows the first edge whose condition
// passes; authors control precedence through edge ordering.
func (g *Graph) OutgoingExec(nodeID string) []schema.ExecEdge {
	return g.execOut[nodeID]
}

// IncomingData returns the incoming data edges of a node in definition order.
func (g *Graph) IncomingData(nodeID string) []schema.DataEdge {
	return g.dataIn[nodeID]
}

// DataSource returns the source node feeding the target's unlabeled input
// socket (or any socket when only one data edge exists). Returns "" when the
// node has no incoming data edge.
func (g *Graph) DataSource(nodeID string) string {
	edges := g.dataIn[nodeID]
	if len(edges) == 0 {
		return ""
	}
	for _, e := range edges {
		if e.Socket == "" {
			return e.Source
		}
	}
	return edges[0].Source
}

// FanOut reports the number of outgoing exec edges of a node.
func (g *Graph) FanOut(nodeID string) int {
	return len(g.execOut[nodeID])
}

// FanIn reports the number of incoming exec edges of a node.
func (g *Graph) FanIn(nodeID string) int {
	n := 0
	for _, edges := range g.execOut {
		for _, e := range edges {
			if e.Target == nodeID {
				n++
			}
		}
	}
	return n
}

// StartNode resolves the entry point: the first executable node, in
// definition order, with no incoming execution edge. Sequences with no such
// node (every node is a loop target) are not runnable.
func (g *Graph) StartNode() (string, error) {
	for _, id := range g.nodeOrder {
		if !g.hasIncomingExec[id] {
			return id, nil
		}
	}
	return "", schema.NewErrorf(schema.ErrCodeNoStartNode,
		"sequence %q has no start node: every node has an incoming execution edge", g.Name)
}
