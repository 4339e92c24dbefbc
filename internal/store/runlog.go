package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/sequent-io/sequent/internal/engine"
	"github.com/sequent-io/sequent/pkg/schema"
)

// Run is one row of the run history.
type Run struct {
	ID         string     `json:"id"`
	Sequence   string     `json:"sequence"`
	Status     string     `json:"status"`
	Error      string     `json:"error,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// RunEvent is one entry of a run's event stream, ordered by Seq.
type RunEvent struct {
	RunID     string         `json:"run_id"`
	Seq       int64          `json:"seq"`
	EventType string         `json:"event_type"`
	NodeID    string         `json:"node_id,omitempty"`
	Payload   map[string]any `json:"payload,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// Run statuses.
const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusStopped   = "stopped"
	RunStatusFailed    = "failed"
)

// RunLog persists engine events to the run history tables. It implements
// engine.Observer; persistence failures are logged and never surface into
// the run.
type RunLog struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ engine.Observer = (*RunLog)(nil)

// NewRunLog creates a RunLog over an opened client. Call Client.Migrate
// before the first write.
func NewRunLog(c *Client, logger *slog.Logger) *RunLog {
	if logger == nil {
		logger = slog.Default()
	}
	return &RunLog{db: c.DB(), logger: logger}
}

func (l *RunLog) OnRunStarted(runID, sequence string) {
	ctx := context.Background()
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO runs (id, sequence_name, status, started_at) VALUES (?, ?, ?, ?)`,
		runID, sequence, RunStatusRunning, time.Now().UTC())
	if err != nil {
		l.logger.Error("run log insert failed", slog.String("run_id", runID), slog.String("error", err.Error()))
		return
	}
	l.append(runID, schema.EventRunStarted, "", map[string]any{"sequence": sequence})
}

func (l *RunLog) OnRunFinished(runID, sequence string, wasStopped bool, err error) {
	status := RunStatusCompleted
	errMsg := ""
	switch {
	case wasStopped:
		status = RunStatusStopped
	case err != nil:
		status = RunStatusFailed
		errMsg = err.Error()
	}
	_, dbErr := l.db.ExecContext(context.Background(),
		`UPDATE runs SET status = ?, error = NULLIF(?, ''), finished_at = ? WHERE id = ?`,
		status, errMsg, time.Now().UTC(), runID)
	if dbErr != nil {
		l.logger.Error("run log update failed", slog.String("run_id", runID), slog.String("error", dbErr.Error()))
	}
	payload := map[string]any{"sequence": sequence, "status": status}
	if errMsg != "" {
		payload["error"] = errMsg
	}
	l.append(runID, schema.EventRunFinished, "", payload)
}

func (l *RunLog) OnRunPaused(runID, sequence, nodeID string) {
	l.append(runID, schema.EventRunPaused, nodeID, nil)
}

func (l *RunLog) OnNodeState(runID, sequence, nodeID string, state schema.NodeState) {
	var event string
	switch state {
	case schema.NodeRunning:
		event = schema.EventNodeRunning
	case schema.NodeSuccess:
		event = schema.EventNodeSuccess
	case schema.NodeFailed:
		event = schema.EventNodeFailed
	default:
		return
	}
	l.append(runID, event, nodeID, nil)
}

func (l *RunLog) OnEdgeState(runID, sequence, source, target string, state schema.LinkState) {
	event := schema.EventEdgeIdle
	if state == schema.LinkActive {
		event = schema.EventEdgeActive
	}
	l.append(runID, event, source, map[string]any{"target": target})
}

func (l *RunLog) OnVariableChanged(runID, name string, value any) {
	l.append(runID, schema.EventVariableChanged, "", map[string]any{
		"name":  name,
		"value": value,
	})
}

// append writes one event with the run's next ordinal. The MAX(seq)+1 read
// and the insert share a transaction; the single-connection pool makes this
// race-free in practice and the unique index backstops it.
func (l *RunLog) append(runID, eventType, nodeID string, payload map[string]any) {
	ctx := context.Background()
	var body []byte
	if payload != nil {
		var err error
		if body, err = json.Marshal(payload); err != nil {
			l.logger.Error("run event payload encode failed", slog.String("run_id", runID), slog.String("error", err.Error()))
			return
		}
	}

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		l.logger.Error("run event append failed", slog.String("run_id", runID), slog.String("error", err.Error()))
		return
	}
	var next int64
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq), 0) + 1 FROM run_events WHERE run_id = ?`, runID).Scan(&next); err != nil {
		_ = tx.Rollback()
		l.logger.Error("run event append failed", slog.String("run_id", runID), slog.String("error", err.Error()))
		return
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO run_events (run_id, seq, event_type, node_id, payload, created_at)
		 VALUES (?, ?, ?, NULLIF(?, ''), ?, ?)`,
		runID, next, eventType, nodeID, nullBytes(body), time.Now().UTC())
	if err == nil {
		err = tx.Commit()
	} else {
		_ = tx.Rollback()
	}
	if err != nil {
		l.logger.Error("run event append failed", slog.String("run_id", runID), slog.String("error", err.Error()))
	}
}

// ListRuns returns the most recent runs, newest first.
func (l *RunLog) ListRuns(ctx context.Context, limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := l.db.QueryContext(ctx,
		`SELECT id, sequence_name, status, COALESCE(error, ''), started_at, finished_at
		 FROM runs ORDER BY started_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []*Run
	for rows.Next() {
		var r Run
		var finished sql.NullTime
		if err := rows.Scan(&r.ID, &r.Sequence, &r.Status, &r.Error, &r.StartedAt, &finished); err != nil {
			return nil, err
		}
		if finished.Valid {
			t := finished.Time
			r.FinishedAt = &t
		}
		out = append(out, &r)
	}
	return out, rows.Err()
}

// GetRun returns a single run by ID.
func (l *RunLog) GetRun(ctx context.Context, runID string) (*Run, error) {
	var r Run
	var finished sql.NullTime
	err := l.db.QueryRowContext(ctx,
		`SELECT id, sequence_name, status, COALESCE(error, ''), started_at, finished_at
		 FROM runs WHERE id = ?`, runID).
		Scan(&r.ID, &r.Sequence, &r.Status, &r.Error, &r.StartedAt, &finished)
	if err == sql.ErrNoRows {
		return nil, schema.NewErrorf(schema.ErrCodeDatabase, "run %q not found", runID)
	}
	if err != nil {
		return nil, err
	}
	if finished.Valid {
		t := finished.Time
		r.FinishedAt = &t
	}
	return &r, nil
}

// ListEvents returns a run's events in order.
func (l *RunLog) ListEvents(ctx context.Context, runID string) ([]*RunEvent, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT run_id, seq, event_type, COALESCE(node_id, ''), payload, created_at
		 FROM run_events WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("list run events: %w", err)
	}
	defer rows.Close()

	var out []*RunEvent
	for rows.Next() {
		var ev RunEvent
		var body []byte
		if err := rows.Scan(&ev.RunID, &ev.Seq, &ev.EventType, &ev.NodeID, &body, &ev.CreatedAt); err != nil {
			return nil, err
		}
		if len(body) > 0 {
			if err := json.Unmarshal(body, &ev.Payload); err != nil {
				return nil, fmt.Errorf("decode event payload: %w", err)
			}
		}
		out = append(out, &ev)
	}
	return out, rows.Err()
}

func nullBytes(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return b
}
