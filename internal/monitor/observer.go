package monitor

import (
	"time"

	"github.com/randomizedcoder/streamwatch/internal/model"
)

// Observer receives engine measurements. The Prometheus collector is the
// production implementation.
type Observer interface {
	CycleCompleted(d time.Duration, streams int)
	FetchCompleted(d time.Duration, failed model.MediaType)
	StreamErrorRecorded(t model.ErrorType)
	ScoresUpdated(streamID string, scores model.Scores)
	StreamRemoved(streamID string)
}

// NopObserver discards all measurements.
type NopObserver struct{}

func (NopObserver) CycleCompleted(time.Duration, int)            {}
func (NopObserver) FetchCompleted(time.Duration, model.MediaType) {}
func (NopObserver) StreamErrorRecorded(model.ErrorType)           {}
func (NopObserver) ScoresUpdated(string, model.Scores)            {}
func (NopObserver) StreamRemoved(string)                          {}
