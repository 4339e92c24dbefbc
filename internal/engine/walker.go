package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/sequent-io/sequent/internal/graph"
	"github.com/sequent-io/sequent/internal/logging"
	"github.com/sequent-io/sequent/pkg/schema"
)

// waitingForJoin is the internal sentinel a parked fork branch's walk ends
// with. Never user-visible and never stored in the execution context.
var waitingForJoin = new(struct{})

// run is one top-level execution of a sequence, including every sub-walk it
// spawns. All walks share the run's execution context and debug controller.
type run struct {
	id       string
	sequence string
	eng      *Engine
	project  schema.Project
	dbg      *debugController
	loop     bool
	done     chan struct{}

	gmu    sync.Mutex
	graphs map[string]*graph.Graph

	rc *runContext
}

// graphFor builds (and caches) the executable graph of a named sequence.
func (r *run) graphFor(name string) (*graph.Graph, error) {
	r.gmu.Lock()
	defer r.gmu.Unlock()
	if g, ok := r.graphs[name]; ok {
		return g, nil
	}
	def, ok := r.project[name]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeSequenceNotFound, "sequence %q not found", name)
	}
	g, err := graph.Build(def)
	if err != nil {
		return nil, err
	}
	r.graphs[name] = g
	return g, nil
}

// drive runs the sequence, restarting it when looping, and reports the
// final outcome.
func (r *run) drive(ctx context.Context) {
	log := logging.LogWith(ctx, r.eng.logger)

	var runErr error
	for {
		r.rc = newRunContext()

		g, err := r.graphFor(r.sequence)
		if err != nil {
			runErr = err
			break
		}
		start, err := g.StartNode()
		if err != nil {
			runErr = err
			break
		}

		if _, err := r.walk(ctx, g, start, false); err != nil {
			runErr = err
			break
		}
		if !r.loop || r.dbg.isStopped() {
			break
		}
	}

	wasStopped := r.dbg.isStopped() || isStoppedErr(runErr) || ctx.Err() != nil
	if wasStopped {
		runErr = nil
	}
	if runErr != nil {
		log.Error("run failed", slog.String("error", runErr.Error()))
	} else {
		log.Info("run finished", slog.Bool("was_stopped", wasStopped))
	}
	r.eng.finishRun(r, wasStopped, runErr)
}

// walk executes the graph from startID until no outgoing edge fires,
// returning the last produced value. isSub marks fork branches, loop
// bodies, and called sequences; the debug controller treats those
// differently from the top-level walk.
func (r *run) walk(ctx context.Context, g *graph.Graph, startID string, isSub bool) (any, error) {
	obs := r.eng.observers()
	current := startID
	var last any

	// The highlighted edge resets to idle when the walk moves past it, and
	// on every exit so observers never keep a stale highlight.
	var activeSource, activeTarget string
	defer func() {
		if activeSource != "" {
			obs.OnEdgeState(r.id, g.Name, activeSource, activeTarget, schema.LinkIdle)
		}
	}()

	for current != "" {
		if ctx.Err() != nil || r.dbg.isStopped() {
			return nil, schema.NewError(schema.ErrCodeStopped, "run stopped")
		}

		node := g.Node(current)
		if node == nil {
			return nil, schema.NewErrorf(schema.ErrCodeExecution,
				"edge leads to unknown node %q in sequence %q", current, g.Name)
		}

		err := r.dbg.checkpoint(node.Breakpoint, isSub, func() {
			obs.OnNodeState(r.id, g.Name, node.ID, schema.NodePaused)
			obs.OnRunPaused(r.id, g.Name, node.ID)
		})
		if err != nil {
			return nil, err
		}

		nodeCtx := logging.WithNodeID(ctx, node.ID)
		obs.OnNodeState(r.id, g.Name, node.ID, schema.NodeRunning)

		// Fork ends this walk: each branch carries on independently and
		// the merged path resumes through the join's last arrival.
		if node.Kind == schema.KindFork {
			if err := r.runFork(nodeCtx, g, node); err != nil {
				obs.OnNodeState(r.id, g.Name, node.ID, schema.NodeFailed)
				return nil, err
			}
			r.rc.setValue(node.ID, true)
			obs.OnNodeState(r.id, g.Name, node.ID, schema.NodeSuccess)
			return true, nil
		}

		value, err := r.executeNode(nodeCtx, g, node)
		if err != nil {
			obs.OnNodeState(r.id, g.Name, node.ID, schema.NodeFailed)
			if isStoppedErr(err) {
				return nil, err
			}
			logging.LogWith(nodeCtx, r.eng.logger).Error("node failed",
				slog.String("kind", string(node.Kind)),
				slog.String("error", err.Error()))
			if serr, ok := err.(*schema.SequenceError); ok && serr.NodeID == "" {
				serr.WithNode(node.ID)
			}
			return nil, err
		}

		// A parked join branch finishes contributing without failing.
		if value == waitingForJoin {
			return last, nil
		}

		r.rc.setValue(node.ID, value)
		obs.OnNodeState(r.id, g.Name, node.ID, schema.NodeSuccess)
		last = value

		next := ""
		for _, e := range g.OutgoingExec(node.ID) {
			if r.eng.cond.matches(nodeCtx, e.Condition, value) {
				if activeSource != "" {
					obs.OnEdgeState(r.id, g.Name, activeSource, activeTarget, schema.LinkIdle)
				}
				obs.OnEdgeState(r.id, g.Name, e.Source, e.Target, schema.LinkActive)
				activeSource, activeTarget = e.Source, e.Target
				next = e.Target
				break
			}
		}

		if next != "" && r.eng.cfg.StepDelay > 0 {
			select {
			case <-time.After(r.eng.cfg.StepDelay):
			case <-ctx.Done():
				return nil, schema.NewError(schema.ErrCodeStopped, "run stopped")
			}
		}
		current = next
	}

	return last, nil
}

// runFork spawns one concurrent sub-walk per outgoing edge and awaits all
// of them. A fork with no outgoing edges trivially succeeds. The first
// branch failure fails the fork.
func (r *run) runFork(ctx context.Context, g *graph.Graph, node *schema.Node) error {
	edges := g.OutgoingExec(node.ID)
	if len(edges) == 0 {
		return nil
	}

	obs := r.eng.observers()
	errs := make([]error, len(edges))
	var wg sync.WaitGroup
	for i, e := range edges {
		obs.OnEdgeState(r.id, g.Name, e.Source, e.Target, schema.LinkActive)
		wg.Add(1)
		go func(i int, target string) {
			defer wg.Done()
			_, errs[i] = r.walk(ctx, g, target, true)
		}(i, e.Target)
	}
	wg.Wait()
	for _, e := range edges {
		obs.OnEdgeState(r.id, g.Name, e.Source, e.Target, schema.LinkIdle)
	}

	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// loopBodyTarget finds the outgoing edge wired to the given loop sentinel
// and returns its target, or "" when the loop has no such branch.
func (r *run) loopBodyTarget(ctx context.Context, g *graph.Graph, nodeID, sentinel string) string {
	for _, e := range g.OutgoingExec(nodeID) {
		if e.Condition != nil && r.eng.cond.matches(ctx, e.Condition, sentinel) {
			return e.Target
		}
	}
	return ""
}
