// Package scheduler triggers sequences on cron expressions. Entries are
// static, loaded from configuration at startup.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// SequenceRunner runs one sequence to completion. Satisfied by a thin
// wrapper over the engine (avoids import cycle).
type SequenceRunner interface {
	RunSequence(ctx context.Context, sequence string) error
}

// Entry is one scheduled trigger: run Sequence whenever Cron fires.
type Entry struct {
	Sequence string `json:"sequence"`
	Cron     string `json:"cron"`
}

type job struct {
	entry      Entry
	schedule   cron.Schedule
	nextRun    time.Time
	lastRun    time.Time
	lastStatus string
}

// Scheduler ticks once a minute and runs every entry that has come due.
type Scheduler struct {
	runner SequenceRunner
	logger *slog.Logger
	jobs   []*job
	cancel context.CancelFunc
	done   chan struct{}
	mu     sync.Mutex

	inflightMu sync.Mutex
	inflight   map[string]struct{} // sequences currently executing (dedup)
}

// New creates a Scheduler from the configured entries. Invalid cron
// expressions fail construction.
func New(entries []Entry, runner SequenceRunner, logger *slog.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

	now := time.Now().UTC()
	jobs := make([]*job, 0, len(entries))
	for _, e := range entries {
		schedule, err := parser.Parse(e.Cron)
		if err != nil {
			return nil, fmt.Errorf("parse cron expression %q for %q: %w", e.Cron, e.Sequence, err)
		}
		jobs = append(jobs, &job{entry: e, schedule: schedule, nextRun: schedule.Next(now)})
	}

	return &Scheduler{
		runner:   runner,
		logger:   logger,
		jobs:     jobs,
		inflight: make(map[string]struct{}),
	}, nil
}

// Start launches the background scheduling loop with a 60s ticker.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.done != nil {
		s.mu.Unlock()
		return fmt.Errorf("scheduler already started")
	}

	schedCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.mu.Unlock()

	go s.loop(schedCtx)
	s.logger.Info("scheduler started", slog.Int("entries", len(s.jobs)))
	return nil
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(60 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx, time.Now().UTC())
		}
	}
}

// tick runs every job that has come due and advances its next-run time.
func (s *Scheduler) tick(ctx context.Context, now time.Time) {
	for _, j := range s.jobs {
		if j.nextRun.After(now) {
			continue
		}
		j.nextRun = j.schedule.Next(now)
		if !s.tryAcquire(j.entry.Sequence) {
			continue // previous trigger still executing
		}
		s.runJob(ctx, j, now)
		s.release(j.entry.Sequence)
	}
}

// runJob executes one trigger and records the outcome.
func (s *Scheduler) runJob(ctx context.Context, j *job, now time.Time) {
	s.logger.Info("running scheduled sequence", slog.String("sequence", j.entry.Sequence))

	j.lastRun = now
	j.lastStatus = "success"
	if err := s.runner.RunSequence(ctx, j.entry.Sequence); err != nil {
		j.lastStatus = "error"
		s.logger.Error("scheduled sequence failed",
			slog.String("sequence", j.entry.Sequence),
			slog.String("error", err.Error()),
		)
	}
}

// tryAcquire returns true and marks the sequence as in-flight if it is not
// already running.
func (s *Scheduler) tryAcquire(sequence string) bool {
	s.inflightMu.Lock()
	defer s.inflightMu.Unlock()
	if _, ok := s.inflight[sequence]; ok {
		return false
	}
	s.inflight[sequence] = struct{}{}
	return true
}

func (s *Scheduler) release(sequence string) {
	s.inflightMu.Lock()
	defer s.inflightMu.Unlock()
	delete(s.inflight, sequence)
}

// NextRun computes the next fire time for a cron expression.
func NextRun(cronExpr string, from time.Time) (time.Time, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	schedule, err := parser.Parse(cronExpr)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse cron expression %q: %w", cronExpr, err)
	}
	return schedule.Next(from), nil
}

// Stop gracefully shuts down the scheduler.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel == nil {
		return nil
	}

	s.cancel()
	<-s.done
	s.cancel = nil
	s.done = nil

	s.logger.Info("scheduler stopped")
	return nil
}
