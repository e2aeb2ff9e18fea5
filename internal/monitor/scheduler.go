package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Defaults for the polling schedule.
const (
	DefaultInterval     = 7 * time.Second
	DefaultStartupDelay = 2 * time.Second
)

// StreamLister enumerates the streams to poll, in polling order.
type StreamLister interface {
	ListIDs(ctx context.Context) ([]string, error)
}

// SchedulerConfig wires a Scheduler.
type SchedulerConfig struct {
	Streams      StreamLister
	Checker      *Checker
	Interval     time.Duration
	StartupDelay time.Duration
	Observer     Observer
	Logger       *slog.Logger
}

// CycleResult summarizes one polling cycle.
type CycleResult struct {
	Streams  int
	Failed   int
	Duration time.Duration
}

// Scheduler drives polling cycles. Cycles never overlap and streams within a
// cycle are checked one after another in listing order.
type Scheduler struct {
	streams      StreamLister
	checker      *Checker
	interval     time.Duration
	startupDelay time.Duration
	observer     Observer
	logger       *slog.Logger
}

// NewScheduler creates a scheduler.
func NewScheduler(cfg SchedulerConfig) *Scheduler {
	s := &Scheduler{
		streams:      cfg.Streams,
		checker:      cfg.Checker,
		interval:     cfg.Interval,
		startupDelay: cfg.StartupDelay,
		observer:     cfg.Observer,
		logger:       cfg.Logger,
	}
	if s.interval <= 0 {
		s.interval = DefaultInterval
	}
	if s.startupDelay < 0 {
		s.startupDelay = 0
	}
	if s.observer == nil {
		s.observer = NopObserver{}
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// Run polls until ctx is cancelled. The first cycle starts after the startup
// delay; each following cycle starts one interval after the previous one
// started, or immediately if that cycle overran.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("scheduler_started",
		"interval", s.interval,
		"startup_delay", s.startupDelay,
	)

	timer := time.NewTimer(s.startupDelay)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler_stopped")
			return nil
		case <-timer.C:
		}

		start := time.Now()
		s.RunCycle(ctx)

		wait := s.interval - time.Since(start)
		if wait < 0 {
			wait = 0
		}
		timer.Reset(wait)
	}
}

// RunCycle checks every stream once, sequentially.
func (s *Scheduler) RunCycle(ctx context.Context) CycleResult {
	start := time.Now()
	var res CycleResult

	ids, err := s.streams.ListIDs(ctx)
	if err != nil {
		s.logger.Error("stream_list_failed", "error", err)
		return res
	}

	tracker := s.checker.Tracker()
	if removed := tracker.Retain(ids); removed > 0 {
		s.logger.Debug("poll_state_pruned", "count", removed)
	}

	for _, id := range ids {
		if ctx.Err() != nil {
			break
		}
		res.Streams++
		if err := s.checkIsolated(ctx, id); err != nil {
			res.Failed++
			s.logger.Error("stream_check_failed",
				"stream_id", id,
				"error", err,
			)
		}
	}

	res.Duration = time.Since(start)
	s.observer.CycleCompleted(res.Duration, res.Streams)
	s.logger.Debug("cycle_complete",
		"streams", res.Streams,
		"failed", res.Failed,
		"duration", res.Duration,
	)
	return res
}

// checkIsolated runs one stream's check and converts a panic into a
// recorded failure so the rest of the cycle proceeds.
func (s *Scheduler) checkIsolated(ctx context.Context, id string) (err error) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		err = fmt.Errorf("panic: %v", r)
		s.logger.Error("stream_check_panic", "stream_id", id, "panic", r)
		if ferr := s.safeFail(ctx, id, err); ferr != nil {
			s.logger.Error("stream_failure_not_recorded", "stream_id", id, "error", ferr)
		}
	}()
	return s.checker.Check(ctx, id)
}

func (s *Scheduler) safeFail(ctx context.Context, id string, cause error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic while recording failure: %v", r)
		}
	}()
	return s.checker.Fail(ctx, id, cause)
}
