package ingest

import (
	"math"
	"time"

	"finset/internal/config"
)

// RetryPolicy bounds fetch attempts. Delay is a pure function of the attempt
// number and a jitter sample, so the schedule is testable without sleeping.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Jitter      time.Duration
}

// NewRetryPolicy combines the transport settings with a domain's attempt budget
func NewRetryPolicy(fetch config.FetchConfig, attempts int) RetryPolicy {
	if attempts < 1 {
		attempts = config.DefaultRetry
	}
	return RetryPolicy{
		MaxAttempts: attempts,
		BaseDelay:   fetch.BaseDelay,
		MaxDelay:    fetch.MaxDelay,
		Jitter:      fetch.Jitter,
	}
}

// Delay is the wait after failed attempt n (0-based): BaseDelay*2^n capped
// at MaxDelay, plus u*Jitter for u in [0,1).
func (p RetryPolicy) Delay(attempt int, u float64) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	backoff := float64(p.BaseDelay) * math.Pow(2, float64(attempt))
	if p.MaxDelay > 0 && backoff > float64(p.MaxDelay) {
		backoff = float64(p.MaxDelay)
	}
	if u < 0 {
		u = 0
	}
	if u >= 1 {
		u = math.Nextafter(1, 0)
	}
	return time.Duration(backoff) + time.Duration(u*float64(p.Jitter))
}

// ShouldRetry reports whether another attempt follows failed attempt n
func (p RetryPolicy) ShouldRetry(attempt int) bool {
	return attempt+1 < p.MaxAttempts
}
