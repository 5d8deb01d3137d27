package bridge

import (
	"fmt"
	"sync"
	"time"
)

// Rate limit defaults: per-action sliding window, process-local. State
// resets on process restart, which is the intended behavior for a
// short-lived hook binary that may also run long in server mode.
const (
	rateLimitMaxExecutions = 10
	rateLimitWindow        = 60 * time.Second
)

// RateLimiter enforces a per-action execution cap over a sliding window.
// A rejected attempt records nothing; it does not extend the lockout.
type RateLimiter struct {
	mu         sync.Mutex
	max        int
	window     time.Duration
	executions map[string][]time.Time
	now        func() time.Time
}

// NewRateLimiter returns a limiter with the default cap and window.
func NewRateLimiter() *RateLimiter {
	return &RateLimiter{
		max:        rateLimitMaxExecutions,
		window:     rateLimitWindow,
		executions: make(map[string][]time.Time),
		now:        time.Now,
	}
}

// Allow records an execution of name if it is within limits. Returns an
// error message suitable for the outcome's reason field when rate limited.
func (l *RateLimiter) Allow(name string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	kept := l.executions[name][:0]
	for _, t := range l.executions[name] {
		if now.Sub(t) < l.window {
			kept = append(kept, t)
		}
	}
	l.executions[name] = kept

	if len(kept) >= l.max {
		return fmt.Errorf("rate limited: %s exceeded %d executions per minute", name, l.max)
	}

	l.executions[name] = append(kept, now)
	return nil
}
