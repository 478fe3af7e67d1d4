package clients

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/tapstream-io/tap-sailthru/pkg/config"
	"github.com/tapstream-io/tap-sailthru/pkg/errors"
	"github.com/tapstream-io/tap-sailthru/pkg/metrics"
)

// RetryAfterDetail is the error detail key carrying a server-supplied
// wait, in seconds, attached to rate limit errors.
const RetryAfterDetail = "retry_after_seconds"

// RetryPolicy defines retry behavior for transient failures
type RetryPolicy struct {
	MaxAttempts     int
	InitialDelay    time.Duration
	MaxDelay        time.Duration
	Multiplier      float64
	RandomizeFactor float64
}

// NewRetryPolicy creates a retry policy from the tap configuration
func NewRetryPolicy(cfg config.RetryConfig) *RetryPolicy {
	return &RetryPolicy{
		MaxAttempts:     cfg.MaxAttempts,
		InitialDelay:    cfg.InitialDelay,
		MaxDelay:        cfg.MaxDelay,
		Multiplier:      cfg.Multiplier,
		RandomizeFactor: cfg.RandomizeFactor,
	}
}

// DefaultRetryPolicy returns the policy used when none is configured
func DefaultRetryPolicy() *RetryPolicy {
	return &RetryPolicy{
		MaxAttempts:     5,
		InitialDelay:    time.Second,
		MaxDelay:        2 * time.Minute,
		Multiplier:      2.0,
		RandomizeFactor: 0.25,
	}
}

// Execute runs fn, retrying transient errors with exponential backoff.
// A success on any attempt short-circuits immediately. Non-retryable
// errors are surfaced as-is; exhausting every attempt wraps the last
// error as retry_exhausted.
func (rp *RetryPolicy) Execute(ctx context.Context, fn func() error) error {
	return rp.ExecuteWithCondition(ctx, fn, errors.IsRetryable)
}

// ExecuteWithCondition runs fn with retry only when shouldRetry allows it
func (rp *RetryPolicy) ExecuteWithCondition(ctx context.Context, fn func() error, shouldRetry func(error) bool) error {
	var lastErr error

	for attempt := 0; attempt < rp.MaxAttempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}

		lastErr = err

		if !shouldRetry(err) {
			return err
		}

		// Don't retry on the last attempt
		if attempt == rp.MaxAttempts-1 {
			break
		}

		metrics.RetryAttempts.WithLabelValues(string(errors.TypeOf(err))).Inc()

		delay := rp.delayFor(attempt, err)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return errors.Wrap(ctx.Err(), errors.ErrorTypeConnection, "retry cancelled")
		case <-timer.C:
		}
	}

	return errors.Wrap(lastErr, errors.ErrorTypeRetryExhausted,
		"all retry attempts failed").WithDetail("max_attempts", rp.MaxAttempts)
}

// delayFor computes the wait before the next attempt. Rate limit errors
// carrying a server-supplied retry-after override the backoff schedule.
func (rp *RetryPolicy) delayFor(attempt int, err error) time.Duration {
	if after, ok := retryAfter(err); ok {
		return after
	}
	return rp.calculateDelay(attempt)
}

func retryAfter(err error) (time.Duration, bool) {
	if !errors.IsType(err, errors.ErrorTypeRateLimit) {
		return 0, false
	}
	e, ok := errors.AsError(err)
	if !ok {
		return 0, false
	}
	if v, ok := e.Detail(RetryAfterDetail); ok {
		if secs, ok := v.(float64); ok && secs >= 0 {
			return time.Duration(secs * float64(time.Second)), true
		}
	}
	return 0, false
}

// calculateDelay calculates the backoff delay for a given attempt
func (rp *RetryPolicy) calculateDelay(attempt int) time.Duration {
	delay := float64(rp.InitialDelay) * math.Pow(rp.Multiplier, float64(attempt))

	if rp.MaxDelay > 0 && delay > float64(rp.MaxDelay) {
		delay = float64(rp.MaxDelay)
	}

	if rp.RandomizeFactor > 0 {
		delta := delay * rp.RandomizeFactor
		minDelay := delay - delta
		maxDelay := delay + delta
		delay = minDelay + (rand.Float64() * (maxDelay - minDelay))
	}

	return time.Duration(delay)
}

// GetDelay returns the delay for a specific attempt (for testing/preview)
func (rp *RetryPolicy) GetDelay(attempt int) time.Duration {
	return rp.calculateDelay(attempt)
}
