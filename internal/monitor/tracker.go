package monitor

import (
	"sync"
	"time"

	"github.com/randomizedcoder/streamwatch/internal/model"
)

// PollState is the transient per-stream state carried between cycles. It is
// never persisted and is lost on restart.
type PollState struct {
	LastPollTime      time.Time
	LastMediaSequence int64
	ConsecutiveStales int
}

// Initial reports whether no cycle has completed for the stream yet.
func (p PollState) Initial() bool {
	return p.LastMediaSequence == model.InitialSequence
}

// Tracker owns the poll state of every stream, keyed by stream id. Entries
// are created lazily and removed when a stream disappears.
//
// Only the scheduler writes to the tracker; the mutex exists so that
// reconciliation and tests may read and prune it from other goroutines.
type Tracker struct {
	mu     sync.Mutex
	states map[string]PollState
}

// NewTracker returns an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{states: make(map[string]PollState)}
}

// Get returns the poll state for id, creating the initial state on first
// sight.
func (t *Tracker) Get(id string) PollState {
	t.mu.Lock()
	defer t.mu.Unlock()

	st, ok := t.states[id]
	if !ok {
		st = PollState{LastMediaSequence: model.InitialSequence}
		t.states[id] = st
	}
	return st
}

// Set stores the poll state for id.
func (t *Tracker) Set(id string, st PollState) {
	t.mu.Lock()
	t.states[id] = st
	t.mu.Unlock()
}

// Forget tears down the poll state for id.
func (t *Tracker) Forget(id string) {
	t.mu.Lock()
	delete(t.states, id)
	t.mu.Unlock()
}

// Retain drops every entry whose id is not in ids and returns how many were
// removed.
func (t *Tracker) Retain(ids []string) int {
	keep := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		keep[id] = struct{}{}
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	removed := 0
	for id := range t.states {
		if _, ok := keep[id]; !ok {
			delete(t.states, id)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked streams.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.states)
}
