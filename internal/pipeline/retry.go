package pipeline

import (
	"time"
)

// RetryPolicy bounds sink write retries: exponential backoff from Base,
// doubling per attempt, capped at Cap, at most MaxAttempts attempts per
// batch.
type RetryPolicy struct {
	Base        time.Duration
	Cap         time.Duration
	MaxAttempts int
}

// DefaultRetryPolicy is the standard sink retry schedule.
var DefaultRetryPolicy = RetryPolicy{
	Base:        500 * time.Millisecond,
	Cap:         30 * time.Second,
	MaxAttempts: 5,
}

// Delay returns how long to wait after the given 1-based failed attempt.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	d := p.Base << (attempt - 1)
	if d > p.Cap || d <= 0 {
		return p.Cap
	}
	return d
}
