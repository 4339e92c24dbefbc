package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sequent-io/sequent/pkg/schema"
)

func waitFinished(t *testing.T, e *Engine) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, e.Wait(ctx))
}

func waitPausedAt(t *testing.T, e *Engine, rec *recorder, nodeID string) {
	t.Helper()
	require.Eventually(t, func() bool {
		if e.State() != schema.DebugPaused {
			return false
		}
		paused := rec.pausedNodes()
		return len(paused) > 0 && paused[len(paused)-1] == nodeID
	}, 5*time.Second, time.Millisecond)
}

func linearProject(t *testing.T) schema.Project {
	return schema.Project{
		"linear": {
			Name: "linear",
			Nodes: []schema.Node{
				{ID: "n1", Kind: schema.KindStaticValue, Config: cfg(t, schema.StaticValueConfig{Value: "1"})},
				{ID: "n2", Kind: schema.KindStaticValue, Config: cfg(t, schema.StaticValueConfig{Value: "2"}), Breakpoint: true},
				{ID: "n3", Kind: schema.KindStaticValue, Config: cfg(t, schema.StaticValueConfig{Value: "3"})},
				{ID: "n4", Kind: schema.KindStaticValue, Config: cfg(t, schema.StaticValueConfig{Value: "4"})},
			},
			ExecEdges: []schema.ExecEdge{
				{Source: "n1", Target: "n2"},
				{Source: "n2", Target: "n3"},
				{Source: "n3", Target: "n4"},
			},
		},
	}
}

// A breakpoint pauses before the node executes; resume continues to the end.
func TestBreakpointPauseAndResume(t *testing.T) {
	e, _, rec := newTestEngine(t, nil)

	_, err := e.Run(context.Background(), "linear", linearProject(t), false)
	require.NoError(t, err)

	waitPausedAt(t, e, rec, "n2")
	assert.Equal(t, 0, rec.stateCount("n2", schema.NodeSuccess))
	assert.Equal(t, 1, rec.stateCount("n1", schema.NodeSuccess))

	e.Resume()
	waitFinished(t, e)

	assert.Equal(t, 1, rec.stateCount("n2", schema.NodeSuccess))
	assert.Equal(t, 1, rec.stateCount("n4", schema.NodeSuccess))
	assert.Equal(t, schema.DebugIdle, e.State())
}

// StepOver executes exactly one node per step, re-pausing before the next.
func TestStepOverAdvancesOneNode(t *testing.T) {
	e, _, rec := newTestEngine(t, nil)

	_, err := e.Run(context.Background(), "linear", linearProject(t), false)
	require.NoError(t, err)

	waitPausedAt(t, e, rec, "n2")

	e.StepOver()
	waitPausedAt(t, e, rec, "n3")
	assert.Equal(t, 1, rec.stateCount("n2", schema.NodeSuccess))
	assert.Equal(t, 0, rec.stateCount("n3", schema.NodeSuccess))

	e.StepOver()
	waitPausedAt(t, e, rec, "n4")
	assert.Equal(t, 1, rec.stateCount("n3", schema.NodeSuccess))

	e.Resume()
	waitFinished(t, e)
	assert.Equal(t, 1, rec.stateCount("n4", schema.NodeSuccess))
}

// Stopping while paused wakes the walker and unwinds as a stopped run.
func TestStopWhilePaused(t *testing.T) {
	e, _, rec := newTestEngine(t, nil)

	_, err := e.Run(context.Background(), "linear", linearProject(t), false)
	require.NoError(t, err)

	waitPausedAt(t, e, rec, "n2")
	e.Stop()
	waitFinished(t, e)

	fins := rec.finishEvents()
	require.Len(t, fins, 1)
	assert.True(t, fins[0].wasStopped)
	assert.Equal(t, 0, rec.stateCount("n2", schema.NodeSuccess))
}

func subSequenceProject(t *testing.T) schema.Project {
	return schema.Project{
		"main": {
			Name: "main",
			Nodes: []schema.Node{
				{ID: "top", Kind: schema.KindStaticValue, Config: cfg(t, schema.StaticValueConfig{Value: "1"}), Breakpoint: true},
				{ID: "call", Kind: schema.KindRunSequence, Config: cfg(t, schema.RunSequenceConfig{Sequence: "sub"})},
				{ID: "tail", Kind: schema.KindStaticValue, Config: cfg(t, schema.StaticValueConfig{Value: "9"})},
			},
			ExecEdges: []schema.ExecEdge{
				{Source: "top", Target: "call"},
				{Source: "call", Target: "tail"},
			},
		},
		"sub": {
			Name: "sub",
			Nodes: []schema.Node{
				{ID: "s1", Kind: schema.KindStaticValue, Config: cfg(t, schema.StaticValueConfig{Value: "5"}), Breakpoint: true},
				{ID: "s2", Kind: schema.KindStaticValue, Config: cfg(t, schema.StaticValueConfig{Value: "6"})},
			},
			ExecEdges: []schema.ExecEdge{{Source: "s1", Target: "s2"}},
		},
	}
}

// A breakpoint inside a called sequence is ignored under plain resume:
// reusable sub-sequences must not halt every caller.
func TestSubSequenceBreakpointIgnoredOnResume(t *testing.T) {
	e, _, rec := newTestEngine(t, nil)

	_, err := e.Run(context.Background(), "main", subSequenceProject(t), false)
	require.NoError(t, err)

	waitPausedAt(t, e, rec, "top")
	e.Resume()
	waitFinished(t, e)

	paused := rec.pausedNodes()
	assert.Equal(t, []string{"top"}, paused)
	assert.Equal(t, 1, rec.stateCount("s1", schema.NodeSuccess))
	assert.Equal(t, 1, rec.stateCount("tail", schema.NodeSuccess))
}

// StepInto descends into the called sequence and pauses at its first node;
// a later resume ignores the remaining sub-sequence nodes.
func TestStepIntoDescendsIntoSubSequence(t *testing.T) {
	e, _, rec := newTestEngine(t, nil)

	_, err := e.Run(context.Background(), "main", subSequenceProject(t), false)
	require.NoError(t, err)

	waitPausedAt(t, e, rec, "top")

	// One step executes "top" and pauses before the RunSequence node.
	e.StepInto()
	waitPausedAt(t, e, rec, "call")
	assert.Equal(t, 1, rec.stateCount("top", schema.NodeSuccess))

	// The next step enters the sub-walk and pauses at its first node.
	e.StepInto()
	waitPausedAt(t, e, rec, "s1")
	assert.Equal(t, 0, rec.stateCount("s1", schema.NodeSuccess))

	e.Resume()
	waitFinished(t, e)
	assert.Equal(t, 1, rec.stateCount("s1", schema.NodeSuccess))
	assert.Equal(t, 1, rec.stateCount("s2", schema.NodeSuccess))
	assert.Equal(t, 1, rec.stateCount("tail", schema.NodeSuccess))
}

// StepOver at a RunSequence node executes the whole sub-run as one step.
func TestStepOverSkipsSubSequencePauses(t *testing.T) {
	e, _, rec := newTestEngine(t, nil)

	_, err := e.Run(context.Background(), "main", subSequenceProject(t), false)
	require.NoError(t, err)

	waitPausedAt(t, e, rec, "top")

	e.StepOver()
	waitPausedAt(t, e, rec, "call")

	e.StepOver()
	waitPausedAt(t, e, rec, "tail")
	assert.Equal(t, 1, rec.stateCount("s1", schema.NodeSuccess))
	assert.Equal(t, 1, rec.stateCount("s2", schema.NodeSuccess))

	e.Resume()
	waitFinished(t, e)
}
