package debounce

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// WakeupFunc is invoked when a scheduled timer fires. The fencing token
// decides at drain time whether the wakeup is still current, so stale
// invocations are harmless.
type WakeupFunc func(ctx context.Context, contact string, fencing float64)

// TimerScheduler runs wakeups on in-process timers. Each ScheduleWakeup
// spawns an independent timer; superseded ones fire anyway and no-op on the
// fencing check, which keeps the scheduler free of per-contact bookkeeping.
type TimerScheduler struct {
	fire WakeupFunc

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewTimerScheduler(fire WakeupFunc) *TimerScheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &TimerScheduler{fire: fire, ctx: ctx, cancel: cancel}
}

func (s *TimerScheduler) ScheduleWakeup(_ context.Context, contact string, fencing float64, delay time.Duration) error {
	s.mu.Lock()
	if s.ctx.Err() != nil {
		s.mu.Unlock()
		return s.ctx.Err()
	}
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-timer.C:
			s.fire(s.ctx, contact, fencing)
		case <-s.ctx.Done():
			slog.Debug("wakeup timer cancelled by shutdown", "contact", contact)
		}
	}()
	return nil
}

// Close cancels outstanding timers and waits for in-flight wakeups.
func (s *TimerScheduler) Close() {
	s.mu.Lock()
	s.cancel()
	s.mu.Unlock()
	s.wg.Wait()
}
