package automation

import (
	"context"
	"sync"
	"time"
)

// Runner executes a pass. *Engine satisfies it.
type Runner interface {
	RunPass(ctx context.Context) PassReport
}

// Scheduler runs a pass on a fixed interval until its context ends.
type Scheduler struct {
	runner   Runner
	interval time.Duration
	logger   Logger
	done     chan struct{}
}

// NewScheduler constructs a scheduler. A non-positive interval disables it.
func NewScheduler(runner Runner, interval time.Duration, logger Logger) *Scheduler {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Scheduler{runner: runner, interval: interval, logger: logger, done: make(chan struct{})}
}

// Start launches the ticker loop in a goroutine and returns immediately. The
// first pass runs one interval after Start.
func (s *Scheduler) Start(ctx context.Context) {
	if s.interval <= 0 {
		close(s.done)
		return
	}
	go func() {
		defer close(s.done)
		s.logger.Info("automation scheduler started", "interval", s.interval)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				s.logger.Info("automation scheduler stopped")
				return
			case <-ticker.C:
				s.runner.RunPass(ctx)
			}
		}
	}()
}

// Done is closed once the loop has exited.
func (s *Scheduler) Done() <-chan struct{} { return s.done }

// Throttle runs at most one pass per interval for on-access triggers.
type Throttle struct {
	runner   Runner
	interval time.Duration
	clock    Clock

	mu   sync.Mutex
	last time.Time
}

// NewThrottle constructs a throttle. A zero interval runs a pass on every
// call; a nil clock uses time.Now.
func NewThrottle(runner Runner, interval time.Duration, clock Clock) *Throttle {
	if clock == nil {
		clock = ClockFunc(time.Now)
	}
	return &Throttle{runner: runner, interval: interval, clock: clock}
}

// Trigger runs a pass unless one started less than the interval ago. It
// reports whether a pass ran. Concurrent callers wait for an in-flight pass
// rather than starting another.
func (t *Throttle) Trigger(ctx context.Context) (PassReport, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.clock.Now()
	if !t.last.IsZero() && now.Sub(t.last) < t.interval {
		return PassReport{}, false
	}
	t.last = now
	return t.runner.RunPass(ctx), true
}
