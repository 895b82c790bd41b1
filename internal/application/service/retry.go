package service

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"net"
	"time"

	"github.com/haulwise/rebate-claims/internal/application/port"
)

// RetryStrategy defines exponential backoff for transient enrichment failures
type RetryStrategy struct {
	MaxAttempts int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
	Jitter      bool
}

// DefaultRetryStrategy returns two attempts with a 2s base backoff
func DefaultRetryStrategy() RetryStrategy {
	return RetryStrategy{
		MaxAttempts: 2,
		BaseBackoff: 2 * time.Second,
		MaxBackoff:  20 * time.Second,
		Jitter:      true,
	}
}

// CalculateBackoff returns the wait before the retry that follows attempt n: base, 2×base, 4×base, capped.
func (s RetryStrategy) CalculateBackoff(attempt int) time.Duration {
	if attempt <= 0 {
		return s.BaseBackoff
	}

	backoff := time.Duration(math.Pow(2, float64(attempt-1))) * s.BaseBackoff
	if s.MaxBackoff > 0 && backoff > s.MaxBackoff {
		backoff = s.MaxBackoff
	}

	if s.Jitter {
		// ±10%
		if jitterRange := backoff / 10; jitterRange > 0 {
			backoff += time.Duration(rand.Int63n(int64(jitterRange*2))) - jitterRange
			if backoff < s.BaseBackoff {
				backoff = s.BaseBackoff
			}
		}
	}

	return backoff
}

// IsTemporaryError reports whether err is worth another attempt. The caller's
// own deadline is never retried.
func (s RetryStrategy) IsTemporaryError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, port.ErrTransient) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return false
}
