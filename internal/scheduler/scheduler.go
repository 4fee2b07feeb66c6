package scheduler

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync/atomic"
	"time"

	"ethpulse/internal/logger"
)

// Task is one unit of scheduled work. Errors are logged; the schedule keeps going.
type Task func(ctx context.Context) error

// IntervalScheduler runs a named task every Interval until ctx is cancelled.
// With Align the wake-ups land on interval boundaries (plus Offset), e.g. every full 5m.
type IntervalScheduler struct {
	Name           string
	Interval       time.Duration
	Offset         time.Duration
	Align          bool
	RunImmediately bool

	nowFn func() time.Time
	runs  atomic.Int64
	fails atomic.Int64
}

func NewIntervalScheduler(name string, interval time.Duration) *IntervalScheduler {
	return &IntervalScheduler{Name: name, Interval: interval, nowFn: time.Now}
}

func (s *IntervalScheduler) WithClock(now func() time.Time) *IntervalScheduler {
	if now != nil {
		s.nowFn = now
	}
	return s
}

// Runs reports how many times the task has been invoked (including failed/panicked runs).
func (s *IntervalScheduler) Runs() int64 { return s.runs.Load() }

// Failures reports how many runs returned an error or panicked.
func (s *IntervalScheduler) Failures() int64 { return s.fails.Load() }

// Run blocks until ctx is done. It returns nil on cancellation so it can sit in an errgroup
// next to the HTTP server without tearing the group down on shutdown.
func (s *IntervalScheduler) Run(ctx context.Context, task Task) error {
	if task == nil {
		return fmt.Errorf("scheduler %s: task is nil", s.Name)
	}
	if s.Interval <= 0 {
		return fmt.Errorf("scheduler %s: invalid interval=%s", s.Name, s.Interval)
	}
	if s.Offset < 0 {
		logger.Warnf("[scheduler][%s] negative offset=%s, clamp to 0", s.Name, s.Offset)
		s.Offset = 0
	}
	if s.nowFn == nil {
		s.nowFn = time.Now
	}

	startAt := s.nowFn().UTC()
	logger.Infof("[scheduler][%s] started interval=%s align=%v offset=%s run_immediately=%v at=%s",
		s.Name, s.Interval, s.Align, s.Offset, s.RunImmediately, startAt.Format(time.RFC3339))

	if s.RunImmediately {
		s.runOnce(ctx, task)
	}
	for {
		now := s.nowFn().UTC()
		wakeAt := s.NextRun(now)
		logger.Debugf("[scheduler][%s] 下次执行=%s (in %s) | uptime=%s",
			s.Name, wakeAt.Format(time.RFC3339), wakeAt.Sub(now).Truncate(time.Second), now.Sub(startAt).Truncate(time.Second))
		if !waitUntil(ctx, wakeAt.Sub(now)) {
			logger.Infof("[scheduler][%s] ctx done, exit after %d runs", s.Name, s.Runs())
			return nil
		}
		s.runOnce(ctx, task)
	}
}

// NextRun returns the next wake-up time after now.
func (s *IntervalScheduler) NextRun(now time.Time) time.Time {
	now = now.UTC()
	if !s.Align {
		return now.Add(s.Interval)
	}
	nextClose := now.Truncate(s.Interval).Add(s.Interval)
	if wake := nextClose.Add(s.Offset - s.Interval); wake.After(now) {
		return wake
	}
	return nextClose.Add(s.Offset)
}

func (s *IntervalScheduler) runOnce(ctx context.Context, task Task) {
	s.runs.Add(1)
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			s.fails.Add(1)
			logger.Errorf("[scheduler][%s] task panic: %v\n%s", s.Name, r, debug.Stack())
		}
	}()
	if err := task(ctx); err != nil {
		s.fails.Add(1)
		if ctx.Err() != nil {
			return
		}
		logger.Errorf("[scheduler][%s] task failed after %s: %v", s.Name, time.Since(start).Truncate(time.Millisecond), err)
		return
	}
	logger.Debugf("[scheduler][%s] task done in %s", s.Name, time.Since(start).Truncate(time.Millisecond))
}

func waitUntil(ctx context.Context, wait time.Duration) bool {
	if wait <= 0 {
		select {
		case <-ctx.Done():
			return false
		default:
			return true
		}
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
