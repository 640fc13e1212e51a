package pipeline

import (
	"math"
	"time"

	"archivist/internal/config"
)

// Backoff computes retry delays. The schedule is configuration, not contract:
// operators tune the shape, the pipeline only promises that delays never
// shrink below the initial value or grow past the cap.
type Backoff struct {
	initial    time.Duration
	multiplier float64
	max        time.Duration
}

// NewBackoff builds a backoff schedule from pipeline configuration.
func NewBackoff(cfg config.Pipeline) Backoff {
	return Backoff{
		initial:    time.Duration(cfg.RetryBackoffInitial) * time.Second,
		multiplier: cfg.RetryBackoffMultiplier,
		max:        time.Duration(cfg.RetryBackoffMax) * time.Second,
	}
}

// Delay returns the wait before the given retry attempt. Attempts are
// 1-based: the first retry waits the initial delay.
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := float64(b.initial) * math.Pow(b.multiplier, float64(attempt-1))
	if delay > float64(b.max) || math.IsInf(delay, 1) {
		return b.max
	}
	return time.Duration(delay)
}
