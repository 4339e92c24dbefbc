// Package engine interprets sequence graphs: it walks nodes, evaluates edge
// conditions, runs fork branches concurrently, and exposes the debug
// control surface (stop, resume, step over, step into).
package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sequent-io/sequent/internal/expressions"
	"github.com/sequent-io/sequent/internal/graph"
	"github.com/sequent-io/sequent/internal/logging"
	"github.com/sequent-io/sequent/internal/points"
	"github.com/sequent-io/sequent/pkg/schema"
)

// Database is the engine's view of the relational client. DatabaseRead and
// DatabaseWrite nodes are the only callers.
type Database interface {
	// Query runs a parameterized SELECT and returns the rows as maps keyed
	// by column name.
	Query(ctx context.Context, query string, args ...any) ([]map[string]any, error)

	// WriteRow inserts a row, provisioning missing tables and columns
	// first. When keyColumn names a column of the row the write is an
	// upsert on that column.
	WriteRow(ctx context.Context, table string, row map[string]any, keyColumn string) error
}

// Config tunes engine behavior.
type Config struct {
	// StepDelay is an artificial pause between nodes so the editor's
	// visual replay stays legible. Zero disables it.
	StepDelay time.Duration

	// WhileLoopMax caps while-loop iterations as a runaway-loop safety
	// valve. Defaults to 1000.
	WhileLoopMax int
}

// Engine runs one sequence at a time against a live point server. The
// named-variable store is engine-wide and survives across runs; execution
// contexts do not.
type Engine struct {
	cfg    Config
	points points.Client
	db     Database
	logger *slog.Logger

	cel    *expressions.CELEngine
	expr   *expressions.ExprEngine
	jq     *expressions.GoJQEngine
	script *expressions.ScriptRunner
	cond   *conditionEvaluator

	vars *varStore

	obsMu sync.RWMutex
	obs   multiObserver

	mu     sync.Mutex
	active *run
}

// New creates an engine. db may be nil when no relational client is
// configured; database nodes then fail with a configuration error.
func New(cfg Config, pts points.Client, db Database, logger *slog.Logger) (*Engine, error) {
	if pts == nil {
		return nil, schema.NewError(schema.ErrCodeConfig, "point client is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.WhileLoopMax <= 0 {
		cfg.WhileLoopMax = 1000
	}

	cel, err := expressions.NewCELEngine()
	if err != nil {
		return nil, err
	}
	exprEng := expressions.NewExprEngine()

	return &Engine{
		cfg:    cfg,
		points: pts,
		db:     db,
		logger: logger,
		cel:    cel,
		expr:   exprEng,
		jq:     expressions.NewGoJQEngine(),
		script: expressions.NewScriptRunner(exprEng),
		cond:   newConditionEvaluator(cel),
		vars:   newVarStore(),
	}, nil
}

// Subscribe registers an observer for all subsequent runs.
func (e *Engine) Subscribe(o Observer) {
	e.obsMu.Lock()
	defer e.obsMu.Unlock()
	e.obs = append(e.obs, o)
}

func (e *Engine) observers() multiObserver {
	e.obsMu.RLock()
	defer e.obsMu.RUnlock()
	return e.obs
}

// Variable reads a named variable from the engine-wide store.
func (e *Engine) Variable(name string) (any, bool) {
	return e.vars.get(name)
}

// SetVariable writes a named variable and notifies observers on change.
func (e *Engine) SetVariable(name string, value any) {
	if e.vars.set(name, value) {
		e.observers().OnVariableChanged(e.activeRunID(), name, value)
	}
}

// Run starts executing the named sequence from the given project. Only one
// run may be active per engine; starting while busy fails. With loop set,
// the sequence restarts from a fresh execution context after each
// successful pass until stopped.
//
// Structural errors (unknown sequence, no start node) are reported through
// OnRunFinished and returned; the walk never starts.
func (e *Engine) Run(ctx context.Context, sequenceName string, project schema.Project, loop bool) (string, error) {
	runID := uuid.NewString()

	e.mu.Lock()
	if e.active != nil {
		e.mu.Unlock()
		return "", schema.NewErrorf(schema.ErrCodeExecution,
			"a run is already active for sequence %q", e.active.sequence)
	}

	r := &run{
		id:       runID,
		sequence: sequenceName,
		eng:      e,
		project:  project,
		graphs:   make(map[string]*graph.Graph),
		dbg:      newDebugController(),
		loop:     loop,
		done:     make(chan struct{}),
	}
	e.active = r
	e.mu.Unlock()

	ctx = logging.WithRunID(ctx, runID)
	ctx = logging.WithSequence(ctx, sequenceName)
	log := logging.LogWith(ctx, e.logger)

	g, err := r.graphFor(sequenceName)
	if err == nil {
		_, err = g.StartNode()
	}
	if err != nil {
		log.Error("run rejected", slog.String("error", err.Error()))
		e.finishRun(r, false, err)
		return runID, err
	}

	e.observers().OnRunStarted(runID, sequenceName)
	log.Info("run started", slog.Bool("loop", loop))

	go r.drive(ctx)
	return runID, nil
}

// finishRun clears the active slot and emits the finished event.
func (e *Engine) finishRun(r *run, wasStopped bool, err error) {
	e.mu.Lock()
	if e.active == r {
		e.active = nil
	}
	e.mu.Unlock()

	e.observers().OnRunFinished(r.id, r.sequence, wasStopped, err)
	close(r.done)
}

func (e *Engine) activeRun() *run {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.active
}

func (e *Engine) activeRunID() string {
	if r := e.activeRun(); r != nil {
		return r.id
	}
	return ""
}

// Stop requests the active run to halt. The currently executing node runs
// to completion; no further node starts. No-op when idle.
func (e *Engine) Stop() {
	if r := e.activeRun(); r != nil {
		r.dbg.stop()
	}
}

// Resume continues a paused run until the next breakpoint.
func (e *Engine) Resume() {
	if r := e.activeRun(); r != nil {
		r.dbg.resume()
	}
}

// StepOver executes exactly one more node, skipping pauses inside
// sub-sequences and fork branches, then pauses again.
func (e *Engine) StepOver() {
	if r := e.activeRun(); r != nil {
		r.dbg.stepOver()
	}
}

// StepInto executes exactly one more node and honors breakpoints inside
// sub-sequences and fork branches, then pauses again.
func (e *Engine) StepInto() {
	if r := e.activeRun(); r != nil {
		r.dbg.stepInto()
	}
}

// State reports the debug lifecycle state of the active run, or idle.
func (e *Engine) State() schema.DebugState {
	if r := e.activeRun(); r != nil {
		return r.dbg.state()
	}
	return schema.DebugIdle
}

// Wait blocks until the active run finishes. Returns immediately when idle.
func (e *Engine) Wait(ctx context.Context) error {
	r := e.activeRun()
	if r == nil {
		return nil
	}
	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// isStoppedErr reports whether err is the cooperative-stop signal.
func isStoppedErr(err error) bool {
	var serr *schema.SequenceError
	return errors.As(err, &serr) && serr.Code == schema.ErrCodeStopped
}
