package ratelimit

import (
	"sync"
	"time"
)

// Defaults for outbound AI calls.
const (
	DefaultMaxCalls = 10
	DefaultWindow   = time.Minute
)

// Limiter is an advisory in-process sliding-window gate. Call timestamps
// are kept in insertion order, so purging expired entries is a prefix
// trim. State resets on restart.
type Limiter struct {
	maxCalls int
	window   time.Duration

	mu    sync.Mutex
	calls []time.Time
	now   func() time.Time
}

// New creates a Limiter allowing maxCalls per window. Non-positive
// arguments fall back to the defaults.
func New(maxCalls int, window time.Duration) *Limiter {
	if maxCalls <= 0 {
		maxCalls = DefaultMaxCalls
	}
	if window <= 0 {
		window = DefaultWindow
	}
	return &Limiter{
		maxCalls: maxCalls,
		window:   window,
		now:      time.Now,
	}
}

// Allow reports whether another call may be made right now. Expired
// timestamps are purged on every check.
func (l *Limiter) Allow() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.purge()
	return len(l.calls) < l.maxCalls
}

// Record registers a call at the current time.
func (l *Limiter) Record() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, l.now())
}

// purge drops timestamps older than now minus the window. Callers must
// hold the mutex.
func (l *Limiter) purge() {
	cutoff := l.now().Add(-l.window)
	i := 0
	for i < len(l.calls) && !l.calls[i].After(cutoff) {
		i++
	}
	if i > 0 {
		l.calls = l.calls[i:]
	}
}
