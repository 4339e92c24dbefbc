// Package diagram renders sequence definitions as Mermaid flowcharts for
// documentation and review outside the node editor.
package diagram

import (
	"fmt"
	"strings"

	"github.com/sequent-io/sequent/pkg/schema"
)

// RenderMermaid renders a sequence definition as a Mermaid flowchart.
// Execution edges are solid arrows labeled with their condition; data edges
// are dotted arrows labeled with the target socket.
func RenderMermaid(def *schema.SequenceDefinition) string {
	var b strings.Builder

	b.WriteString("graph TD\n")
	if def.Name != "" {
		b.WriteString(fmt.Sprintf("    %%%% %s\n", def.Name))
	}

	for i := range def.Nodes {
		b.WriteString(fmt.Sprintf("    %s\n", mermaidNodeDef(&def.Nodes[i])))
	}

	for _, edge := range def.ExecEdges {
		label := ""
		if text := conditionLabel(edge.Condition); text != "" {
			label = fmt.Sprintf("|%q|", text)
		}
		b.WriteString(fmt.Sprintf("    %s -->%s %s\n",
			mermaidSafeID(edge.Source), label, mermaidSafeID(edge.Target)))
	}

	for _, edge := range def.DataEdges {
		label := ""
		if edge.Socket != "" {
			label = fmt.Sprintf("|%q|", edge.Socket)
		}
		b.WriteString(fmt.Sprintf("    %s -.->%s %s\n",
			mermaidSafeID(edge.Source), label, mermaidSafeID(edge.Target)))
	}

	// Breakpoint markers.
	b.WriteString("\n")
	b.WriteString("    classDef breakpoint stroke:#8b1a1a,stroke-width:3px\n")
	for i := range def.Nodes {
		if def.Nodes[i].Breakpoint {
			b.WriteString(fmt.Sprintf("    class %s breakpoint\n", mermaidSafeID(def.Nodes[i].ID)))
		}
	}

	return b.String()
}

// mermaidNodeDef returns a Mermaid node definition shaped by node kind.
func mermaidNodeDef(node *schema.Node) string {
	id := mermaidSafeID(node.ID)
	label := nodeLabel(node)

	switch node.Kind {
	case schema.KindFork, schema.KindJoin:
		return fmt.Sprintf("%s[[%q]]", id, label)
	case schema.KindForLoop, schema.KindWhileLoop:
		return fmt.Sprintf("%s{%q}", id, label)
	case schema.KindDelay:
		return fmt.Sprintf("%s([%q])", id, label)
	case schema.KindRunSequence:
		return fmt.Sprintf("%s[/%q/]", id, label)
	case schema.KindDatabaseRead, schema.KindDatabaseWrite:
		return fmt.Sprintf("%s[(%q)]", id, label)
	case schema.KindComment:
		return fmt.Sprintf("%s[%q]:::comment", id, label)
	default:
		return fmt.Sprintf("%s[%q]", id, label)
	}
}

// nodeLabel prefers the editor label, falling back to kind and ID.
func nodeLabel(node *schema.Node) string {
	if node.Label != "" {
		return firstLine(node.Label)
	}
	return fmt.Sprintf("%s %s", node.Kind, node.ID)
}

// conditionLabel compresses an edge condition into a short edge caption.
func conditionLabel(cond *schema.Condition) string {
	if cond == nil {
		return ""
	}
	if cond.Type == schema.ConditionExpression {
		return firstLine(cond.Expression)
	}
	switch cond.Operator {
	case "is True", "is False", schema.LoopBody, schema.LoopFinished:
		return cond.Operator
	default:
		return strings.TrimSpace(cond.Operator + " " + cond.Value)
	}
}

// mermaidSafeID converts a node ID to a Mermaid-safe identifier.
func mermaidSafeID(id string) string {
	r := strings.NewReplacer(".", "_", "-", "_", " ", "_")
	return r.Replace(id)
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
