package expressions

import "context"

// Engine evaluates expressions within sequence nodes and edge conditions.
// Three implementations: CEL (edge conditions), Expr (compute nodes and
// scripts), GoJQ (data transforms).
type Engine interface {
	Name() string
	Evaluate(ctx context.Context, expression string, data map[string]any) (any, error)
}
