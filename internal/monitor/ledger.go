package monitor

import (
	"time"

	"github.com/google/uuid"

	"github.com/randomizedcoder/streamwatch/internal/model"
)

// MaxErrorLog is the number of ledger entries kept per stream.
const MaxErrorLog = 1000

// Ledger appends entries to a stream's bounded error log.
type Ledger struct {
	capacity int
	newID    func() string
	observer Observer
}

// NewLedger returns a ledger with the default capacity. A nil observer is
// allowed.
func NewLedger(observer Observer) *Ledger {
	if observer == nil {
		observer = NopObserver{}
	}
	return &Ledger{
		capacity: MaxErrorLog,
		newID:    uuid.NewString,
		observer: observer,
	}
}

// Append adds an entry to s.ErrorLog, evicting the oldest entries beyond
// capacity. The entry gets a fresh id and timestamp; totalErrors is
// incremented and timeSinceLastError reset.
func (l *Ledger) Append(s *model.Stream, now time.Time, e model.StreamError) model.StreamError {
	e.ID = l.newID()
	e.Timestamp = now.UTC()

	s.ErrorLog = append(s.ErrorLog, e)
	if over := len(s.ErrorLog) - l.capacity; over > 0 {
		// Copy so the evicted prefix is not pinned by the backing array.
		kept := make([]model.StreamError, l.capacity)
		copy(kept, s.ErrorLog[over:])
		s.ErrorLog = kept
	}

	s.Health.TotalErrors++
	s.Health.TimeSinceLastError = 0
	l.observer.StreamErrorRecorded(e.ErrorType)
	return e
}

// RefreshAges recomputes the elapsed-time fields of s relative to now.
func RefreshAges(s *model.Stream, now time.Time) {
	if !s.Health.LastManifestUpdate.IsZero() {
		s.Health.TimeSinceLastUpdate = now.Sub(s.Health.LastManifestUpdate)
	}
	if n := len(s.ErrorLog); n > 0 {
		s.Health.TimeSinceLastError = now.Sub(s.ErrorLog[n-1].Timestamp)
	}
}
