package httpx

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/0xsequence/token-directory/internal/domain"
)

// Default retry settings for rate-limited sources.
const (
	DefaultMaxRetries = 3
	DefaultMaxBackoff = 30 * time.Second
)

// RetryPolicy decides whether and when a failed attempt is repeated.
type RetryPolicy struct {
	MaxRetries int
	Backoff    func(attempt int) time.Duration                  // attempt is 0-based
	Retryable  func(err error) bool                             // nil retries nothing
	Sleep      func(ctx context.Context, d time.Duration) error // nil uses a timer
}

// DefaultRetryPolicy retries 429 responses up to three times, waiting
// 2^(attempt+1) seconds between attempts.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: DefaultMaxRetries,
		Backoff:    ExponentialBackoff(time.Second, DefaultMaxBackoff),
		Retryable:  IsRateLimited,
	}
}

// NoRetry runs every request exactly once.
func NoRetry() RetryPolicy {
	return RetryPolicy{}
}

// ExponentialBackoff returns base * 2^(attempt+1), capped at max.
func ExponentialBackoff(base, max time.Duration) func(int) time.Duration {
	return func(attempt int) time.Duration {
		d := time.Duration(float64(base) * math.Pow(2, float64(attempt+1)))
		if d > max || d <= 0 {
			return max
		}
		return d
	}
}

// IsRateLimited reports whether err is a 429 transport error.
func IsRateLimited(err error) bool {
	var te *domain.TransportError
	return errors.As(err, &te) && te.RateLimited()
}

// Do runs fn, repeating it while the policy allows.
// onRetry, when non-nil, is called before each repeated attempt.
func (p RetryPolicy) Do(ctx context.Context, fn func(ctx context.Context) error, onRetry func(attempt int, err error)) error {
	var err error
	for attempt := 0; ; attempt++ {
		err = fn(ctx)
		if err == nil {
			return nil
		}
		if attempt >= p.MaxRetries || p.Retryable == nil || !p.Retryable(err) {
			return err
		}
		if onRetry != nil {
			onRetry(attempt, err)
		}
		var d time.Duration
		if p.Backoff != nil {
			d = p.Backoff(attempt)
		}
		if serr := p.sleep(ctx, d); serr != nil {
			return serr
		}
	}
}

func (p RetryPolicy) sleep(ctx context.Context, d time.Duration) error {
	if p.Sleep != nil {
		return p.Sleep(ctx, d)
	}
	return Sleep(ctx, d)
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
