package client

import (
	"math/rand"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// maxRetryAfter caps how long a Retry-After hint from the daemon can hold
// up a read. The daemon sends one while its document store is unavailable.
const maxRetryAfter = 5 * time.Second

// BackoffStrategy decides how long to wait before retrying a read.
type BackoffStrategy interface {
	Next(attempt int) time.Duration
}

// ExponentialBackoff grows the delay by Factor per attempt up to Max, then
// spreads it by ±Jitter.
type ExponentialBackoff struct {
	Base   time.Duration
	Max    time.Duration
	Factor float64
	Jitter float64 // 0.0 to 1.0
}

// DefaultBackoff suits an interactive navigator: 100ms, 200ms, 400ms ...
// capped at 2s, ±20%.
func DefaultBackoff() *ExponentialBackoff {
	return &ExponentialBackoff{
		Base:   100 * time.Millisecond,
		Max:    2 * time.Second,
		Factor: 2.0,
		Jitter: 0.2,
	}
}

// Next returns the wait before retry number attempt (0-based).
func (b *ExponentialBackoff) Next(attempt int) time.Duration {
	delay := float64(b.Base)
	for i := 0; i < attempt && delay < float64(b.Max); i++ {
		delay *= b.Factor
	}
	delay = min(delay, float64(b.Max))
	if b.Jitter > 0 {
		delay += delay * (rand.Float64()*2 - 1) * b.Jitter
	}
	return time.Duration(max(delay, 0))
}

// ConstantBackoff always waits the same duration.
type ConstantBackoff time.Duration

func (c ConstantBackoff) Next(int) time.Duration { return time.Duration(c) }

// retryAfter reads the Retry-After header of a 5xx answer, in either the
// delta-seconds or the HTTP-date form. Unusable values yield zero.
func retryAfter(h http.Header, now time.Time) time.Duration {
	v := strings.TrimSpace(h.Get("Retry-After"))
	if v == "" {
		return 0
	}
	var d time.Duration
	if secs, err := strconv.Atoi(v); err == nil {
		d = time.Duration(secs) * time.Second
	} else if at, err := http.ParseTime(v); err == nil {
		d = at.Sub(now)
	}
	return min(max(d, 0), maxRetryAfter)
}

// retryDelay is the wait before retry number attempt: the backoff delay,
// stretched to the daemon's hint when that is longer.
func retryDelay(b BackoffStrategy, attempt int, hint time.Duration) time.Duration {
	return max(b.Next(attempt), hint)
}
