package engine

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/sequent-io/sequent/internal/graph"
	"github.com/sequent-io/sequent/pkg/schema"
)

// executeNode dispatches one node to its kind-specific executor and returns
// the produced value. Fork is handled by the walker, Comment never reaches
// the executable graph.
func (r *run) executeNode(ctx context.Context, g *graph.Graph, node *schema.Node) (any, error) {
	switch node.Kind {
	case schema.KindMethodCall:
		return r.execMethodCall(ctx, g, node)
	case schema.KindDelay:
		return r.execDelay(ctx, node)
	case schema.KindWriteValue:
		return r.execWriteValue(ctx, g, node)
	case schema.KindStaticValue:
		return r.execStaticValue(node)
	case schema.KindRunSequence:
		return r.execRunSequence(ctx, node)
	case schema.KindForLoop:
		return r.execForLoop(ctx, g, node)
	case schema.KindWhileLoop:
		return r.execWhileLoop(ctx, g, node)
	case schema.KindCompute:
		return r.execCompute(ctx, g, node)
	case schema.KindJoin:
		return r.execJoin(g, node)
	case schema.KindSetVariable:
		return r.execSetVariable(g, node)
	case schema.KindGetVariable:
		return r.execGetVariable(node)
	case schema.KindScript:
		return r.execScript(ctx, g, node)
	case schema.KindDatabaseRead:
		return r.execDatabaseRead(ctx, g, node)
	case schema.KindDatabaseWrite:
		return r.execDatabaseWrite(ctx, g, node)
	}
	return nil, schema.NewErrorf(schema.ErrCodeExecution,
		"no executor for node kind %q", node.Kind).WithNode(node.ID)
}

// resolveArgument applies the shared argument-resolution rule: a connected
// data edge wins and pulls the source node's last produced value; without
// one the node's literal is used, parsed as a number when possible.
func (r *run) resolveArgument(g *graph.Graph, node *schema.Node, cfg schema.ArgumentConfig) (any, error) {
	if src := g.DataSource(node.ID); src != "" {
		v, ok := r.rc.value(src)
		if !ok {
			return nil, schema.NewErrorf(schema.ErrCodeNotExecuted,
				"input source %q has not executed yet", src).WithNode(node.ID)
		}
		return v, nil
	}
	return parseLiteral(cfg.ArgumentValue), nil
}

// parseLiteral turns a config literal into a float64 when it parses as a
// number, otherwise keeps the raw string.
func parseLiteral(s string) any {
	if f, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
		return f
	}
	return s
}

func (r *run) execMethodCall(ctx context.Context, g *graph.Graph, node *schema.Node) (any, error) {
	var cfg schema.MethodCallConfig
	if err := schema.DecodeConfig(node, &cfg); err != nil {
		return nil, err
	}
	if cfg.Identifier == "" || cfg.Method == "" {
		return nil, schema.NewError(schema.ErrCodeConfig,
			"method call requires an identifier and a method name").WithNode(node.ID)
	}

	var args []any
	if cfg.HasArgument {
		v, err := r.resolveArgument(g, node, cfg.ArgumentConfig)
		if err != nil {
			return nil, err
		}
		args = append(args, v)
	}

	outs, err := r.eng.points.CallMethod(ctx, cfg.Identifier, cfg.Method, args...)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodePoint,
			"method %s.%s failed", cfg.Identifier, cfg.Method).WithNode(node.ID).WithCause(err)
	}
	switch len(outs) {
	case 0:
		return nil, nil
	case 1:
		return outs[0], nil
	default:
		return outs, nil
	}
}

func (r *run) execDelay(ctx context.Context, node *schema.Node) (any, error) {
	var cfg schema.DelayConfig
	if err := schema.DecodeConfig(node, &cfg); err != nil {
		return nil, err
	}
	d := time.Duration(cfg.DelaySeconds * float64(time.Second))
	if d > 0 {
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return nil, schema.NewError(schema.ErrCodeStopped, "run stopped").WithNode(node.ID)
		}
	}
	return true, nil
}

func (r *run) execWriteValue(ctx context.Context, g *graph.Graph, node *schema.Node) (any, error) {
	var cfg schema.WriteValueConfig
	if err := schema.DecodeConfig(node, &cfg); err != nil {
		return nil, err
	}
	if cfg.NodeID == "" {
		return nil, schema.NewError(schema.ErrCodeConfig,
			"write value requires a target identifier").WithNode(node.ID)
	}

	v, err := r.resolveArgument(g, node, cfg.ArgumentConfig)
	if err != nil {
		return nil, err
	}
	if err := r.eng.points.WriteValue(ctx, cfg.NodeID, v, cfg.TypeHint); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodePoint,
			"write to %q failed", cfg.NodeID).WithNode(node.ID).WithCause(err)
	}
	return v, nil
}

func (r *run) execStaticValue(node *schema.Node) (any, error) {
	var cfg schema.StaticValueConfig
	if err := schema.DecodeConfig(node, &cfg); err != nil {
		return nil, err
	}
	return parseLiteral(cfg.Value), nil
}

// execRunSequence recursively walks the named sequence. The sub-run's final
// value becomes this node's produced value; sub-run failure fails the node.
// Recursion depth is bounded only by the runtime.
func (r *run) execRunSequence(ctx context.Context, node *schema.Node) (any, error) {
	var cfg schema.RunSequenceConfig
	if err := schema.DecodeConfig(node, &cfg); err != nil {
		return nil, err
	}

	sub, err := r.graphFor(cfg.Sequence)
	if err != nil {
		return nil, err
	}
	start, err := sub.StartNode()
	if err != nil {
		return nil, err
	}
	return r.walk(ctx, sub, start, true)
}

// execForLoop walks the "Loop Body" branch a fixed number of times, each
// iteration as a fresh sub-walk, then produces the "Finished" sentinel.
func (r *run) execForLoop(ctx context.Context, g *graph.Graph, node *schema.Node) (any, error) {
	var cfg schema.ForLoopConfig
	if err := schema.DecodeConfig(node, &cfg); err != nil {
		return nil, err
	}

	body := r.loopBodyTarget(ctx, g, node.ID, schema.LoopBody)
	for i := 0; i < cfg.Iterations; i++ {
		if ctx.Err() != nil || r.dbg.isStopped() {
			return nil, schema.NewError(schema.ErrCodeStopped, "run stopped").WithNode(node.ID)
		}
		if body == "" {
			break
		}
		if _, err := r.walk(ctx, g, body, true); err != nil {
			return nil, err
		}
	}
	return schema.LoopFinished, nil
}

// execWhileLoop re-executes the node's data-edge source before every
// iteration, compares the fresh value against the configured literal
// (optionally negated), and walks the "Loop Body" branch while it matches.
// The iteration cap stops runaway loops; hitting it fires "Finished" like a
// normal exit.
func (r *run) execWhileLoop(ctx context.Context, g *graph.Graph, node *schema.Node) (any, error) {
	var cfg schema.WhileLoopConfig
	if err := schema.DecodeConfig(node, &cfg); err != nil {
		return nil, err
	}

	srcID := g.DataSource(node.ID)
	if srcID == "" {
		return nil, schema.NewError(schema.ErrCodeConfig,
			"while loop requires a connected condition source").WithNode(node.ID)
	}
	src := g.Node(srcID)
	if src == nil {
		return nil, schema.NewErrorf(schema.ErrCodeExecution,
			"condition source %q is not executable", srcID).WithNode(node.ID)
	}

	body := r.loopBodyTarget(ctx, g, node.ID, schema.LoopBody)
	for i := 0; i < r.eng.cfg.WhileLoopMax; i++ {
		if ctx.Err() != nil || r.dbg.isStopped() {
			return nil, schema.NewError(schema.ErrCodeStopped, "run stopped").WithNode(node.ID)
		}

		// Always a fresh read, never a cached value.
		fresh, err := r.executeNode(ctx, g, src)
		if err != nil {
			return nil, err
		}
		r.rc.setValue(srcID, fresh)

		match := compare("==", fresh, cfg.ConditionValue)
		if cfg.Negate {
			match = !match
		}
		if !match {
			break
		}
		if body != "" {
			if _, err := r.walk(ctx, g, body, true); err != nil {
				return nil, err
			}
		}
	}
	return schema.LoopFinished, nil
}

// execCompute gathers labeled data-edge inputs into a variable environment
// and evaluates the configured expression. An unlabeled socket binds as
// "input". Fails when a feeding node has not executed.
func (r *run) execCompute(ctx context.Context, g *graph.Graph, node *schema.Node) (any, error) {
	var cfg schema.ComputeConfig
	if err := schema.DecodeConfig(node, &cfg); err != nil {
		return nil, err
	}

	env := make(map[string]any)
	for _, e := range g.IncomingData(node.ID) {
		v, ok := r.rc.value(e.Source)
		if !ok {
			return nil, schema.NewErrorf(schema.ErrCodeNotExecuted,
				"input source %q has not executed yet", e.Source).WithNode(node.ID)
		}
		name := e.Socket
		if name == "" {
			name = "input"
		}
		env[name] = v
	}

	var eng interface {
		Evaluate(ctx context.Context, expression string, data map[string]any) (any, error)
	}
	switch cfg.Engine {
	case "", "expr":
		eng = r.eng.expr
	case "jq":
		eng = r.eng.jq
	default:
		return nil, schema.NewErrorf(schema.ErrCodeConfig,
			"unknown compute engine %q", cfg.Engine).WithNode(node.ID)
	}

	out, err := eng.Evaluate(ctx, cfg.Expression, env)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// execJoin counts this arrival. Every branch except the last parks with the
// waiting sentinel; the last one produces true and carries the merged path
// forward.
func (r *run) execJoin(g *graph.Graph, node *schema.Node) (any, error) {
	expected := g.FanIn(node.ID)
	if expected == 0 {
		return true, nil
	}
	if !r.rc.arriveJoin(node.ID, expected) {
		return waitingForJoin, nil
	}
	return true, nil
}

func (r *run) execSetVariable(g *graph.Graph, node *schema.Node) (any, error) {
	var cfg schema.VariableConfig
	if err := schema.DecodeConfig(node, &cfg); err != nil {
		return nil, err
	}
	if cfg.Name == "" {
		return nil, schema.NewError(schema.ErrCodeConfig,
			"set variable requires a name").WithNode(node.ID)
	}

	v, err := r.resolveArgument(g, node, cfg.ArgumentConfig)
	if err != nil {
		return nil, err
	}
	if r.eng.vars.set(cfg.Name, v) {
		r.eng.observers().OnVariableChanged(r.id, cfg.Name, v)
	}
	return v, nil
}

func (r *run) execGetVariable(node *schema.Node) (any, error) {
	var cfg schema.VariableConfig
	if err := schema.DecodeConfig(node, &cfg); err != nil {
		return nil, err
	}
	if cfg.Name == "" {
		return nil, schema.NewError(schema.ErrCodeConfig,
			"get variable requires a name").WithNode(node.ID)
	}
	v, _ := r.eng.vars.get(cfg.Name)
	return v, nil
}

// execScript runs the node's script against an environment seeded with the
// resolved input and the current named variables. Assignments that differ
// from the variable store are propagated and change-notified; the script's
// output becomes the produced value.
func (r *run) execScript(ctx context.Context, g *graph.Graph, node *schema.Node) (any, error) {
	var cfg schema.ScriptConfig
	if err := schema.DecodeConfig(node, &cfg); err != nil {
		return nil, err
	}

	input, err := r.resolveArgument(g, node, cfg.ArgumentConfig)
	if err != nil {
		return nil, err
	}

	env := r.eng.vars.snapshot()
	env["input"] = input

	res, err := r.eng.script.Run(ctx, cfg.Source, env)
	if err != nil {
		return nil, err
	}

	for name, v := range res.Assigned {
		if r.eng.vars.set(name, v) {
			r.eng.observers().OnVariableChanged(r.id, name, v)
		}
	}
	return res.Output, nil
}

func (r *run) execDatabaseRead(ctx context.Context, g *graph.Graph, node *schema.Node) (any, error) {
	var cfg schema.DatabaseReadConfig
	if err := schema.DecodeConfig(node, &cfg); err != nil {
		return nil, err
	}
	if r.eng.db == nil {
		return nil, schema.NewError(schema.ErrCodeConfig,
			"no database client configured").WithNode(node.ID)
	}

	var args []any
	if g.DataSource(node.ID) != "" || cfg.ArgumentValue != "" {
		v, err := r.resolveArgument(g, node, cfg.ArgumentConfig)
		if err != nil {
			return nil, err
		}
		args = append(args, v)
	}

	rows, err := r.eng.db.Query(ctx, cfg.Query, args...)
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeDatabase, "query failed").
			WithNode(node.ID).WithCause(err)
	}
	return rows, nil
}

// execDatabaseWrite maps labeled data-edge sockets to columns and writes
// one row, upserting when the key column is among them. Missing tables and
// columns are provisioned by the client (schema-on-write).
func (r *run) execDatabaseWrite(ctx context.Context, g *graph.Graph, node *schema.Node) (any, error) {
	var cfg schema.DatabaseWriteConfig
	if err := schema.DecodeConfig(node, &cfg); err != nil {
		return nil, err
	}
	if r.eng.db == nil {
		return nil, schema.NewError(schema.ErrCodeConfig,
			"no database client configured").WithNode(node.ID)
	}

	row := make(map[string]any)
	for _, e := range g.IncomingData(node.ID) {
		if e.Socket == "" {
			continue
		}
		v, ok := r.rc.value(e.Source)
		if !ok {
			return nil, schema.NewErrorf(schema.ErrCodeNotExecuted,
				"input source %q has not executed yet", e.Source).WithNode(node.ID)
		}
		row[e.Socket] = v
	}
	if len(row) == 0 {
		return nil, schema.NewError(schema.ErrCodeConfig,
			"database write has no column inputs").WithNode(node.ID)
	}

	if err := r.eng.db.WriteRow(ctx, cfg.Table, row, cfg.KeyColumn); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeDatabase,
			"write to table %q failed", cfg.Table).WithNode(node.ID).WithCause(err)
	}
	return true, nil
}
