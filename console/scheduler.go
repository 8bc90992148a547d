package console

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DefaultRefreshInterval is the auto-refresh period.
const DefaultRefreshInterval = 60 * time.Second

// RefreshFunc runs one pipeline cycle.
type RefreshFunc func(ctx context.Context) error

// Scheduler drives periodic refreshes. At most one timer loop runs at a
// time; manual refreshes go around it without resetting the interval.
type Scheduler struct {
	refresh  RefreshFunc
	interval time.Duration
	logger   *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	loops  sync.WaitGroup
}

// NewScheduler creates a disabled Scheduler. A non-positive interval falls
// back to DefaultRefreshInterval.
func NewScheduler(refresh RefreshFunc, interval time.Duration, logger *slog.Logger) *Scheduler {
	if interval <= 0 {
		interval = DefaultRefreshInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{refresh: refresh, interval: interval, logger: logger}
}

// Enable starts auto-refresh: one refresh right away, then one per interval.
// Calling Enable while enabled does nothing.
func (s *Scheduler) Enable(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		return
	}
	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.loops.Add(1)
	go s.loop(loopCtx)

	s.logger.Info("auto-refresh enabled", "interval", s.interval)
}

// Disable stops the timer and returns without waiting. A refresh already
// running is allowed to finish; its loop exits afterwards.
func (s *Scheduler) Disable() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()

	s.logger.Info("auto-refresh disabled")
}

// Shutdown disables auto-refresh and waits for every loop to exit, or for
// ctx to be done. Call it after http.Server.Shutdown.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.Disable()

	drained := make(chan struct{})
	go func() {
		s.loops.Wait()
		close(drained)
	}()

	select {
	case <-drained:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Enabled reports whether auto-refresh is on.
func (s *Scheduler) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel != nil
}

// SetEnabled enables or disables auto-refresh.
func (s *Scheduler) SetEnabled(ctx context.Context, on bool) {
	if on {
		s.Enable(ctx)
		return
	}
	s.Disable()
}

// RefreshNow runs one refresh immediately. The timer, if any, keeps its
// schedule.
func (s *Scheduler) RefreshNow(ctx context.Context) error {
	return s.run(ctx)
}

func (s *Scheduler) loop(ctx context.Context) {
	defer s.loops.Done()

	// The in-flight fetch outlives Disable; only the timer is cancelled.
	fetchCtx := context.WithoutCancel(ctx)

	_ = s.run(fetchCtx)
	if ctx.Err() != nil {
		return
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if ctx.Err() != nil {
				return
			}
			// A failed cycle is not retried; the next tick runs as usual.
			_ = s.run(fetchCtx)
		}
	}
}

func (s *Scheduler) run(ctx context.Context) error {
	err := s.refresh(ctx)
	if err != nil {
		s.logger.Warn("log refresh failed", "error", err)
	}
	return err
}
