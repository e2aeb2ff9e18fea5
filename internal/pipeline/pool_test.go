package pipeline

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/randomizedcoder/streamwatch/internal/logging"
)

type countingObserver struct {
	mu       sync.Mutex
	queued   int
	dropped  int
	finished int
	failed   int
}

func (o *countingObserver) TaskQueued(Kind) {
	o.mu.Lock()
	o.queued++
	o.mu.Unlock()
}

func (o *countingObserver) TaskDropped(Kind) {
	o.mu.Lock()
	o.dropped++
	o.mu.Unlock()
}

func (o *countingObserver) TaskFinished(_ Kind, _ time.Duration, err error) {
	o.mu.Lock()
	o.finished++
	if err != nil {
		o.failed++
	}
	o.mu.Unlock()
}

func (o *countingObserver) InFlightChanged(int) {}

func TestPool_BoundsConcurrency(t *testing.T) {
	obs := &countingObserver{}
	p := NewPool(context.Background(), 4, obs, logging.Discard())

	var running, maxSeen atomic.Int64
	for i := 0; i < 10; i++ {
		for _, kind := range []Kind{KindProbe, KindThumbnail} {
			p.Submit(Task{
				StreamID: fmt.Sprintf("s%d", i),
				Kind:     kind,
				Run: func(context.Context) error {
					n := running.Add(1)
					for {
						m := maxSeen.Load()
						if n <= m || maxSeen.CompareAndSwap(m, n) {
							break
						}
					}
					time.Sleep(10 * time.Millisecond)
					running.Add(-1)
					return nil
				},
			})
		}
	}
	p.Wait()

	if got := maxSeen.Load(); got > 4 {
		t.Errorf("max concurrent tasks = %d, want <= 4", got)
	}
	if p.Peak() > 4 || p.Peak() < 1 {
		t.Errorf("Peak = %d", p.Peak())
	}
	if obs.finished != 20 {
		t.Errorf("finished = %d, want 20", obs.finished)
	}
	if p.InFlight() != 0 || p.Pending() != 0 {
		t.Errorf("InFlight = %d, Pending = %d after Wait", p.InFlight(), p.Pending())
	}
}

func TestPool_NewestWaitingTaskWins(t *testing.T) {
	obs := &countingObserver{}
	p := NewPool(context.Background(), 1, obs, logging.Discard())

	started := make(chan struct{})
	release := make(chan struct{})
	var mu sync.Mutex
	var ran []string
	record := func(name string) func(context.Context) error {
		return func(context.Context) error {
			mu.Lock()
			ran = append(ran, name)
			mu.Unlock()
			return nil
		}
	}

	p.Submit(Task{StreamID: "s1", Kind: KindProbe, Run: func(ctx context.Context) error {
		close(started)
		<-release
		return record("seg1")(ctx)
	}})
	<-started

	// seg2 waits behind the running seg1 and is replaced by seg3.
	for _, seg := range []string{"seg2", "seg3"} {
		if !p.Submit(Task{StreamID: "s1", Kind: KindProbe, Run: record(seg)}) {
			t.Fatalf("Submit %s rejected", seg)
		}
	}
	if p.Pending() != 1 {
		t.Errorf("Pending = %d, want 1", p.Pending())
	}
	close(release)
	p.Wait()

	if len(ran) != 2 || ran[0] != "seg1" || ran[1] != "seg3" {
		t.Errorf("ran = %v, want [seg1 seg3]", ran)
	}
	if obs.dropped != 1 || obs.queued != 3 || obs.finished != 2 {
		t.Errorf("queued = %d dropped = %d finished = %d", obs.queued, obs.dropped, obs.finished)
	}
	if p.Pending() != 0 {
		t.Errorf("Pending = %d after Wait", p.Pending())
	}
}

func TestPool_KindsQueueIndependently(t *testing.T) {
	p := NewPool(context.Background(), 2, nil, logging.Discard())

	var ran atomic.Int64
	run := func(context.Context) error { ran.Add(1); return nil }
	p.Submit(Task{StreamID: "s1", Kind: KindProbe, Run: run})
	p.Submit(Task{StreamID: "s1", Kind: KindThumbnail, Run: run})
	p.Wait()

	if ran.Load() != 2 {
		t.Errorf("ran = %d, want 2", ran.Load())
	}
	if !p.Submit(Task{StreamID: "s1", Kind: KindProbe, Run: run}) {
		t.Error("Submit rejected after previous task finished")
	}
	p.Wait()
	if ran.Load() != 3 {
		t.Errorf("ran = %d, want 3", ran.Load())
	}
}

func TestPool_RecoversPanics(t *testing.T) {
	obs := &countingObserver{}
	p := NewPool(context.Background(), 2, obs, logging.Discard())

	p.Submit(Task{StreamID: "s1", Kind: KindProbe, Run: func(context.Context) error {
		panic("boom")
	}})
	p.Wait()

	if obs.failed != 1 {
		t.Errorf("failed = %d, want 1", obs.failed)
	}
}

func TestPool_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := NewPool(ctx, 1, nil, nil)

	release := make(chan struct{})
	var ran atomic.Int64
	p.Submit(Task{StreamID: "s1", Kind: KindProbe, Run: func(context.Context) error {
		<-release
		ran.Add(1)
		return nil
	}})
	p.Submit(Task{StreamID: "s2", Kind: KindProbe, Run: func(context.Context) error {
		ran.Add(1)
		return nil
	}})

	// Give the first task time to take the only slot.
	time.Sleep(20 * time.Millisecond)
	cancel()
	close(release)
	p.Wait()

	if ran.Load() != 1 {
		t.Errorf("ran = %d, want 1 (queued task must not start after cancel)", ran.Load())
	}
	if p.Submit(Task{StreamID: "s3", Kind: KindProbe, Run: func(context.Context) error { return nil }}) {
		t.Error("Submit accepted after cancel")
	}
}

func TestPool_DefaultSize(t *testing.T) {
	if got := NewPool(context.Background(), 0, nil, nil).Size(); got != DefaultConcurrency {
		t.Errorf("Size = %d, want %d", got, DefaultConcurrency)
	}
}
