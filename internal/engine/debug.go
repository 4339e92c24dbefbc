package engine

import (
	"sync"

	"github.com/sequent-io/sequent/pkg/schema"
)

// debugController coordinates breakpoints, pause/resume, and stepping for
// one run. All walkers of the run (main walk, fork branches, loop bodies,
// sub-sequences) share the controller and block on the same gate.
//
// Sub-walk asymmetry: breakpoints and stepping inside sub-walks are honored
// only while step-into is armed. Plain continuation never pauses inside a
// reusable sub-sequence, which would otherwise halt every caller of it.
type debugController struct {
	mu   sync.Mutex
	cond *sync.Cond

	paused   bool
	stepping bool
	into     bool
	stopped  bool
}

func newDebugController() *debugController {
	d := &debugController{}
	d.cond = sync.NewCond(&d.mu)
	return d
}

// checkpoint gates one node execution. Called by a walker before executing
// a node; blocks while the run is paused. onPause fires once when this
// checkpoint transitions the run into the paused state.
func (d *debugController) checkpoint(breakpoint, isSub bool, onPause func()) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return schema.NewError(schema.ErrCodeStopped, "run stopped")
	}

	shouldPause := (breakpoint || d.stepping) && !(isSub && !d.into)
	if !shouldPause {
		return nil
	}

	if !d.paused {
		d.paused = true
		if onPause != nil {
			onPause()
		}
	}
	for d.paused && !d.stopped {
		d.cond.Wait()
	}
	if d.stopped {
		return schema.NewError(schema.ErrCodeStopped, "run stopped")
	}
	return nil
}

// resume opens the gate fully: stepping is cleared and the run continues
// until the next top-level breakpoint.
func (d *debugController) resume() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.paused = false
	d.stepping = false
	d.into = false
	d.cond.Broadcast()
}

// stepOver releases the gate for exactly one node execution; sub-walks keep
// running without pausing.
func (d *debugController) stepOver() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stepping = true
	d.into = false
	d.paused = false
	d.cond.Broadcast()
}

// stepInto releases the gate for exactly one node execution and arms
// pausing inside sub-walks.
func (d *debugController) stepInto() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stepping = true
	d.into = true
	d.paused = false
	d.cond.Broadcast()
}

// stop aborts the run. Blocked walkers wake up and fail with a stopped error.
func (d *debugController) stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	d.paused = false
	d.cond.Broadcast()
}

func (d *debugController) isStopped() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stopped
}

func (d *debugController) state() schema.DebugState {
	d.mu.Lock()
	defer d.mu.Unlock()
	switch {
	case d.stopped:
		return schema.DebugIdle
	case d.paused:
		return schema.DebugPaused
	default:
		return schema.DebugRunning
	}
}
