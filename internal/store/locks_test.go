package store

import (
	"sync"
	"testing"
)

func TestEntityLocks_ReleasesEntries(t *testing.T) {
	l := newEntityLocks()

	var wg sync.WaitGroup
	counter := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := l.lock("s1")
			counter++
			unlock()
		}()
	}
	wg.Wait()

	if counter != 50 {
		t.Errorf("counter = %d, want 50", counter)
	}
	if n := l.size(); n != 0 {
		t.Errorf("size = %d after release, want 0", n)
	}
}
