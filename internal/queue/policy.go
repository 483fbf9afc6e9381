package queue

import (
	"time"

	"github.com/cenkalti/backoff/v5"
)

// RetryPolicy bounds attempts and computes exponential backoff with jitter.
type RetryPolicy struct {
	MaxAttempts int
	Base        time.Duration
	Max         time.Duration
}

// Exhausted reports whether attempt was the last one allowed.
func (p RetryPolicy) Exhausted(attempt int) bool {
	return attempt >= p.MaxAttempts
}

// Delay returns the wait before attempt+1. Attempt 1 waits roughly Base,
// each further attempt doubles it, randomized by ±50% and capped at Max.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.Base
	b.Multiplier = 2
	b.RandomizationFactor = 0.5
	b.MaxInterval = p.Max
	if b.MaxInterval <= 0 {
		b.MaxInterval = 10 * time.Minute
	}
	b.Reset()

	var d time.Duration
	for i := 0; i < max(attempt, 1); i++ {
		d = b.NextBackOff()
	}
	return d
}
