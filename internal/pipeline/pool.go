// Package pipeline runs deep segment analysis (probing and thumbnail
// extraction) on a bounded pool, decoupled from the polling cycle.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
)

// DefaultConcurrency is the number of external tool invocations allowed at
// once across all streams.
const DefaultConcurrency = 4

// Kind names a class of analysis task.
type Kind string

const (
	KindProbe     Kind = "probe"
	KindThumbnail Kind = "thumbnail"
)

// Task is one unit of analysis work.
type Task struct {
	StreamID string
	Kind     Kind
	Run      func(ctx context.Context) error
}

type taskKey struct {
	streamID string
	kind     Kind
}

// slot serializes the tasks of one (stream, kind) pair. next is the task
// waiting to start; a newer submission replaces it.
type slot struct {
	next *Task
}

// Observer receives pool measurements.
type Observer interface {
	TaskQueued(kind Kind)
	TaskDropped(kind Kind)
	TaskFinished(kind Kind, d time.Duration, err error)
	InFlightChanged(n int)
}

type nopObserver struct{}

func (nopObserver) TaskQueued(Kind)                         {}
func (nopObserver) TaskDropped(Kind)                        {}
func (nopObserver) TaskFinished(Kind, time.Duration, error) {}
func (nopObserver) InFlightChanged(int)                     {}

// Pool executes tasks with at most size running at once. Excess tasks wait
// for a slot. Each (stream, kind) pair has at most one running and one
// waiting task; submitting while a task waits replaces it, so the newest
// segment is the one analyzed.
type Pool struct {
	ctx      context.Context
	sem      *semaphore.Weighted
	size     int
	observer Observer
	logger   *slog.Logger

	mu      sync.Mutex
	pending map[taskKey]*slot

	wg       sync.WaitGroup
	inFlight atomic.Int64
	peak     atomic.Int64
}

// NewPool creates a pool whose tasks run under ctx. Cancelling ctx stops
// queued tasks from starting and is passed to running ones.
func NewPool(ctx context.Context, size int, observer Observer, logger *slog.Logger) *Pool {
	if size < 1 {
		size = DefaultConcurrency
	}
	if observer == nil {
		observer = nopObserver{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pool{
		ctx:      ctx,
		sem:      semaphore.NewWeighted(int64(size)),
		size:     size,
		observer: observer,
		logger:   logger,
		pending:  make(map[taskKey]*slot),
	}
}

// Submit queues t without blocking. A task of the same (stream, kind) that
// has not started yet is superseded and counted as dropped. Submit reports
// false once the pool is shut down.
func (p *Pool) Submit(t Task) bool {
	if p.ctx.Err() != nil {
		return false
	}

	key := taskKey{t.StreamID, t.Kind}
	p.mu.Lock()
	if s, ok := p.pending[key]; ok {
		superseded := s.next != nil
		s.next = &t
		p.mu.Unlock()
		if superseded {
			p.observer.TaskDropped(t.Kind)
		}
		p.observer.TaskQueued(t.Kind)
		return true
	}
	s := &slot{next: &t}
	p.pending[key] = s
	p.wg.Add(1)
	p.mu.Unlock()

	p.observer.TaskQueued(t.Kind)
	go p.drain(key, s)
	return true
}

// drain runs the tasks of one slot until none is waiting.
func (p *Pool) drain(key taskKey, s *slot) {
	defer p.wg.Done()

	for {
		if err := p.sem.Acquire(p.ctx, 1); err != nil {
			p.release(key)
			return
		}
		if p.ctx.Err() != nil {
			p.sem.Release(1)
			p.release(key)
			return
		}

		p.mu.Lock()
		t := s.next
		s.next = nil
		p.mu.Unlock()

		p.execute(*t)
		p.sem.Release(1)

		p.mu.Lock()
		if s.next == nil {
			delete(p.pending, key)
			p.mu.Unlock()
			return
		}
		p.mu.Unlock()
	}
}

func (p *Pool) release(key taskKey) {
	p.mu.Lock()
	delete(p.pending, key)
	p.mu.Unlock()
}

func (p *Pool) execute(t Task) {
	n := p.inFlight.Add(1)
	for {
		peak := p.peak.Load()
		if n <= peak || p.peak.CompareAndSwap(peak, n) {
			break
		}
	}
	p.observer.InFlightChanged(int(n))
	defer func() {
		p.observer.InFlightChanged(int(p.inFlight.Add(-1)))
	}()

	start := time.Now()
	err := p.safeRun(t)
	p.observer.TaskFinished(t.Kind, time.Since(start), err)
}

func (p *Pool) safeRun(t Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
			p.logger.Error("analysis_task_panic",
				"stream_id", t.StreamID,
				"kind", t.Kind,
				"panic", r,
			)
		}
	}()
	return t.Run(p.ctx)
}

// Wait blocks until every submitted task has finished or been abandoned.
func (p *Pool) Wait() {
	p.wg.Wait()
}

// Size returns the concurrency limit.
func (p *Pool) Size() int {
	return p.size
}

// InFlight returns the number of running tasks.
func (p *Pool) InFlight() int {
	return int(p.inFlight.Load())
}

// Peak returns the highest number of tasks that ran at once.
func (p *Pool) Peak() int {
	return int(p.peak.Load())
}

// Pending returns the number of (stream, kind) pairs with queued or running
// work.
func (p *Pool) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pending)
}
