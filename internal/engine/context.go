package engine

import (
	"reflect"
	"sync"
)

// varStore is the process-wide named-variable store. It outlives individual
// runs: sequences communicate across runs through it.
type varStore struct {
	mu sync.RWMutex
	m  map[string]any
}

func newVarStore() *varStore {
	return &varStore{m: make(map[string]any)}
}

func (s *varStore) get(name string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.m[name]
	return v, ok
}

// set stores a value and reports whether it differs from the previous one.
func (s *varStore) set(name string, value any) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, had := s.m[name]
	s.m[name] = value
	return !had || !reflect.DeepEqual(prev, value)
}

func (s *varStore) snapshot() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]any, len(s.m))
	for k, v := range s.m {
		out[k] = v
	}
	return out
}

// runContext is the per-run execution state: each node's last produced
// value and the join arrival counters. Created fresh for every top-level
// run and shared by all of that run's walks — fork branches and
// sub-sequence recursion included, since Join counters and data-edge
// lookups rely on one shared view. Node IDs are process-unique, so values
// from different sequences never collide.
type runContext struct {
	mu       sync.Mutex
	values   map[string]any
	executed map[string]bool
	joins    map[string]int
}

func newRunContext() *runContext {
	return &runContext{
		values:   make(map[string]any),
		executed: make(map[string]bool),
		joins:    make(map[string]int),
	}
}

// setValue records a node's produced value, overwriting any previous one
// (loop iterations re-execute nodes).
func (rc *runContext) setValue(nodeID string, value any) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.values[nodeID] = value
	rc.executed[nodeID] = true
}

// value returns a node's produced value and whether the node has executed
// in this run.
func (rc *runContext) value(nodeID string) (any, bool) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if !rc.executed[nodeID] {
		return nil, false
	}
	return rc.values[nodeID], true
}

// arriveJoin records one branch arriving at a join node. The counter is
// created lazily on first arrival and deleted once the expected count is
// reached, so the join is reusable across loop iterations. Exactly one of
// the racing branches sees true and continues past the join.
func (rc *runContext) arriveJoin(nodeID string, expected int) bool {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.joins[nodeID]++
	if rc.joins[nodeID] < expected {
		return false
	}
	delete(rc.joins, nodeID)
	return true
}
