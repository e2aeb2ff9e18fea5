package store

import "sync"

// entityLocks hands out one mutex per stream id. Entries are reference
// counted and removed when no goroutine holds or waits for them.
type entityLocks struct {
	mu    sync.Mutex
	locks map[string]*entityLock
}

type entityLock struct {
	mu   sync.Mutex
	refs int
}

func newEntityLocks() *entityLocks {
	return &entityLocks{locks: make(map[string]*entityLock)}
}

// lock acquires the mutex for id and returns its release function.
func (l *entityLocks) lock(id string) func() {
	l.mu.Lock()
	el, ok := l.locks[id]
	if !ok {
		el = &entityLock{}
		l.locks[id] = el
	}
	el.refs++
	l.mu.Unlock()

	el.mu.Lock()
	return func() {
		el.mu.Unlock()
		l.mu.Lock()
		el.refs--
		if el.refs == 0 {
			delete(l.locks, id)
		}
		l.mu.Unlock()
	}
}

func (l *entityLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
