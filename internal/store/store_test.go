package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sequent-io/sequent/pkg/schema"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.db")
	c, err := Open("file:" + dbPath)
	require.NoError(t, err)
	require.NoError(t, c.Migrate(context.Background()))
	t.Cleanup(func() {
		_ = c.Close()
		_ = os.RemoveAll(dir)
	})
	return c
}

func TestWriteRowProvisionsTable(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, c.WriteRow(ctx, "readings", map[string]any{
		"temperature": 21.5,
		"tag":         "reactor-1",
	}, ""))

	cols, err := c.GetColumns(ctx, "readings")
	require.NoError(t, err)
	assert.Contains(t, cols, "temperature")
	assert.Contains(t, cols, "tag")
	assert.Contains(t, cols, "created_at")

	rows, err := c.Query(ctx, `SELECT temperature, tag FROM readings`)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 21.5, rows[0]["temperature"])
	assert.Equal(t, "reactor-1", rows[0]["tag"])
}

func TestWriteRowAddsColumnsOnLaterWrites(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, c.WriteRow(ctx, "readings", map[string]any{"temperature": 20.0}, ""))
	require.NoError(t, c.WriteRow(ctx, "readings", map[string]any{"temperature": 22.0, "operator": "alice"}, ""))

	rows, err := c.Query(ctx, `SELECT temperature, operator FROM readings ORDER BY id`)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Nil(t, rows[0]["operator"])
	assert.Equal(t, "alice", rows[1]["operator"])
}

func TestWriteRowUpsertsOnKeyColumn(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, c.WriteRow(ctx, "setpoints", map[string]any{"tag": "valve-1", "value": 10.0}, "tag"))
	require.NoError(t, c.WriteRow(ctx, "setpoints", map[string]any{"tag": "valve-1", "value": 15.0}, "tag"))
	require.NoError(t, c.WriteRow(ctx, "setpoints", map[string]any{"tag": "valve-2", "value": 3.0}, "tag"))

	rows, err := c.Query(ctx, `SELECT tag, value FROM setpoints ORDER BY tag`)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, 15.0, rows[0]["value"])
	assert.Equal(t, "valve-2", rows[1]["tag"])
}

func TestQueryWithParameters(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	for i, tag := range []string{"a", "b", "c"} {
		require.NoError(t, c.WriteRow(ctx, "batches", map[string]any{"tag": tag, "count": float64(i)}, ""))
	}

	rows, err := c.Query(ctx, `SELECT tag FROM batches WHERE count > ?`, 0.5)
	require.NoError(t, err)
	require.Len(t, rows, 2)
}

func TestInvalidIdentifiersRejected(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	err := c.WriteRow(ctx, "bad name; DROP TABLE runs", map[string]any{"x": 1.0}, "")
	require.Error(t, err)
	var serr *schema.SequenceError
	require.True(t, errors.As(err, &serr))
	assert.Equal(t, schema.ErrCodeDatabase, serr.Code)

	err = c.WriteRow(ctx, "ok", map[string]any{"bad-col": 1.0}, "")
	require.Error(t, err)

	require.NoError(t, c.WriteRow(ctx, "ok", map[string]any{"x": 1.0}, ""))
}

func TestEmptyRowRejected(t *testing.T) {
	c := newTestClient(t)
	err := c.WriteRow(context.Background(), "t", map[string]any{}, "")
	require.Error(t, err)
}

func TestRunLogRecordsLifecycle(t *testing.T) {
	c := newTestClient(t)
	log := NewRunLog(c, nil)
	ctx := context.Background()
	runID := uuid.New().String()

	log.OnRunStarted(runID, "startup")
	log.OnNodeState(runID, "startup", "n1", schema.NodeRunning)
	log.OnNodeState(runID, "startup", "n1", schema.NodeSuccess)
	log.OnEdgeState(runID, "startup", "n1", "n2", schema.LinkActive)
	log.OnVariableChanged(runID, "count", 3.0)
	log.OnRunFinished(runID, "startup", false, nil)

	run, err := log.GetRun(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, "startup", run.Sequence)
	assert.Equal(t, RunStatusCompleted, run.Status)
	require.NotNil(t, run.FinishedAt)

	events, err := log.ListEvents(ctx, runID)
	require.NoError(t, err)
	require.Len(t, events, 6)
	assert.Equal(t, schema.EventRunStarted, events[0].EventType)
	assert.Equal(t, schema.EventRunFinished, events[5].EventType)
	for i, ev := range events {
		assert.Equal(t, int64(i+1), ev.Seq)
	}
	assert.Equal(t, "n2", events[3].Payload["target"])
	assert.Equal(t, "count", events[4].Payload["name"])
}

func TestRunLogStoppedAndFailedStatuses(t *testing.T) {
	c := newTestClient(t)
	log := NewRunLog(c, nil)
	ctx := context.Background()

	stopped := uuid.New().String()
	log.OnRunStarted(stopped, "s")
	log.OnRunFinished(stopped, "s", true, schema.NewError(schema.ErrCodeStopped, "stopped by operator"))

	failed := uuid.New().String()
	log.OnRunStarted(failed, "s")
	log.OnRunFinished(failed, "s", false, schema.NewError(schema.ErrCodeExecution, "boom"))

	run, err := log.GetRun(ctx, stopped)
	require.NoError(t, err)
	assert.Equal(t, RunStatusStopped, run.Status)
	assert.Empty(t, run.Error)

	run, err = log.GetRun(ctx, failed)
	require.NoError(t, err)
	assert.Equal(t, RunStatusFailed, run.Status)
	assert.Contains(t, run.Error, "boom")
}

func TestListRunsNewestFirst(t *testing.T) {
	c := newTestClient(t)
	log := NewRunLog(c, nil)
	ctx := context.Background()

	ids := []string{uuid.New().String(), uuid.New().String(), uuid.New().String()}
	for _, id := range ids {
		log.OnRunStarted(id, "s")
	}

	runs, err := log.ListRuns(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, runs, 2)

	runs, err = log.ListRuns(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, runs, 3)
}

func TestGetRunNotFound(t *testing.T) {
	c := newTestClient(t)
	log := NewRunLog(c, nil)

	_, err := log.GetRun(context.Background(), "missing")
	require.Error(t, err)
	var serr *schema.SequenceError
	require.True(t, errors.As(err, &serr))
	assert.Equal(t, schema.ErrCodeDatabase, serr.Code)
}
