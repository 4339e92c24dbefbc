// Command sequent runs sequence projects: validate a project file, execute
// one sequence to completion, or serve the cron-scheduled triggers.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sequent-io/sequent/internal/diagram"
	"github.com/sequent-io/sequent/internal/engine"
	"github.com/sequent-io/sequent/internal/logging"
	"github.com/sequent-io/sequent/internal/points"
	"github.com/sequent-io/sequent/internal/scheduler"
	"github.com/sequent-io/sequent/internal/store"
	"github.com/sequent-io/sequent/internal/streaming"
	"github.com/sequent-io/sequent/pkg/schema"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	cfg := loadConfig()
	logger := newLogger(cfg.LogLevel)

	var err error
	switch os.Args[1] {
	case "run":
		err = cmdRun(cfg, logger, os.Args[2:])
	case "validate":
		err = cmdValidate(cfg)
	case "diagram":
		err = cmdDiagram(cfg, os.Args[2:])
	case "serve":
		err = cmdServe(cfg, logger)
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: sequent <command>

commands:
  run <sequence> [-loop]   execute one sequence from the project
  validate                 check every sequence in the project
  diagram <sequence>       print a Mermaid flowchart of one sequence
  serve                    run scheduled sequences until interrupted`)
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	inner := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	return slog.New(logging.NewCorrelationHandler(inner))
}

// newEngine wires the engine with the configured point seed and, when a
// database path is set, the relational client plus the run log observer.
func newEngine(cfg Config, logger *slog.Logger) (*engine.Engine, func(), error) {
	sim := points.NewSimClient()
	for id, value := range cfg.Points {
		sim.Seed(id, value)
	}

	var db engine.Database
	cleanup := func() {}
	if cfg.DBPath != "" {
		client, err := store.Open("file:" + cfg.DBPath)
		if err != nil {
			return nil, nil, err
		}
		if err := client.Migrate(context.Background()); err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		db = client
		cleanup = func() { _ = client.Close() }

		eng, err := engine.New(engineConfig(cfg), sim, db, logger)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		eng.Subscribe(store.NewRunLog(client, logger))
		return eng, cleanup, nil
	}

	eng, err := engine.New(engineConfig(cfg), sim, nil, logger)
	if err != nil {
		return nil, nil, err
	}
	return eng, cleanup, nil
}

func engineConfig(cfg Config) engine.Config {
	return engine.Config{
		StepDelay:    time.Duration(cfg.StepDelayMs) * time.Millisecond,
		WhileLoopMax: cfg.WhileLoopMax,
	}
}

func cmdRun(cfg Config, logger *slog.Logger, args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	loop := fs.Bool("loop", false, "restart the sequence after each pass until interrupted")
	_ = fs.Parse(args)
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: sequent run <sequence> [-loop]")
	}
	sequence := fs.Arg(0)

	project, err := loadProject(cfg.ProjectPath)
	if err != nil {
		return err
	}

	eng, cleanup, err := newEngine(cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if _, err := eng.Run(ctx, sequence, project, *loop); err != nil {
		return err
	}

	go func() {
		<-ctx.Done()
		eng.Stop()
	}()
	return eng.Wait(context.Background())
}

func cmdValidate(cfg Config) error {
	project, err := loadProject(cfg.ProjectPath)
	if err != nil {
		return err
	}
	fmt.Printf("project ok: %d sequence(s)\n", len(project))
	return nil
}

func cmdDiagram(cfg Config, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: sequent diagram <sequence>")
	}
	project, err := loadProject(cfg.ProjectPath)
	if err != nil {
		return err
	}
	def, ok := project[args[0]]
	if !ok {
		return fmt.Errorf("unknown sequence %q", args[0])
	}
	fmt.Print(diagram.RenderMermaid(def))
	return nil
}

// engineRunner adapts the engine to the scheduler: each trigger is a full
// blocking run of the named sequence.
type engineRunner struct {
	eng     *engine.Engine
	project schema.Project
}

func (r *engineRunner) RunSequence(ctx context.Context, sequence string) error {
	if _, err := r.eng.Run(ctx, sequence, r.project, false); err != nil {
		return err
	}
	return r.eng.Wait(ctx)
}

func cmdServe(cfg Config, logger *slog.Logger) error {
	if len(cfg.Schedules) == 0 {
		return fmt.Errorf("no schedules configured")
	}

	project, err := loadProject(cfg.ProjectPath)
	if err != nil {
		return err
	}
	for _, entry := range cfg.Schedules {
		if _, ok := project[entry.Sequence]; !ok {
			return fmt.Errorf("schedule references unknown sequence %q", entry.Sequence)
		}
	}

	eng, cleanup, err := newEngine(cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	sched, err := scheduler.New(cfg.Schedules, &engineRunner{eng: eng, project: project}, logger)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Live event feed. The hub is where an attached editor would subscribe;
	// until one does, a debug-level subscriber keeps the feed observable.
	hub := streaming.NewMemoryHub()
	eng.Subscribe(streaming.NewBridge(hub))
	events, unsubscribe, err := hub.Subscribe(ctx, streaming.EventFilter{})
	if err != nil {
		return err
	}
	defer unsubscribe()
	go func() {
		for ev := range events {
			logger.Debug("run event",
				"run_id", ev.RunID,
				"sequence", ev.Sequence,
				"node_id", ev.NodeID,
				"event", ev.EventType)
		}
	}()

	if err := sched.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()

	eng.Stop()
	return sched.Stop()
}
