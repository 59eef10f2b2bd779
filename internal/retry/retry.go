// Package retry wraps outbound calls with a fixed-attempt, fixed-delay
// retry policy for transient failures.
package retry

import (
	"context"
	"time"
)

// Config controls the retry behaviour.
type Config struct {
	// Attempts is the total number of attempts including the first.
	// Zero or negative means 1 (no retries).
	Attempts int
	// Delay is the fixed wait between attempts.
	Delay time.Duration
	// ShouldRetry optionally classifies errors as retryable. When nil,
	// every non-nil error is retried.
	ShouldRetry func(err error) bool
}

// DefaultConfig retries twice with a one-second pause, the discipline
// used for outbound AI gateway calls.
var DefaultConfig = Config{
	Attempts: 3,
	Delay:    time.Second,
}

// Do calls fn up to cfg.Attempts times, waiting cfg.Delay between
// attempts. It stops early when ctx is cancelled or fn succeeds, and
// returns the last error otherwise.
func Do(ctx context.Context, cfg Config, fn func() error) error {
	if cfg.Attempts <= 0 {
		cfg.Attempts = 1
	}
	if cfg.Delay <= 0 {
		cfg.Delay = DefaultConfig.Delay
	}
	shouldRetry := cfg.ShouldRetry
	if shouldRetry == nil {
		shouldRetry = func(error) bool { return true }
	}

	var lastErr error
	for attempt := 1; attempt <= cfg.Attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !shouldRetry(lastErr) || attempt == cfg.Attempts {
			return lastErr
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(cfg.Delay):
		}
	}
	return lastErr
}
