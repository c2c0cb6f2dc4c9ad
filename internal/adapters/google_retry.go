package adapters

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/time/rate"
	"google.golang.org/api/googleapi"

	"github.com/trevor-commits/proactive-outreach-crm/internal/model"
)

// RetryPolicy controls backoff for rate-limited Google API calls.
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.MaxRetries <= 0 {
		p.MaxRetries = 8
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = 500 * time.Millisecond
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = 30 * time.Second
	}
	return p
}

func newLimiter(qps float64) *rate.Limiter {
	if qps <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Limit(qps), 1)
}

func isGoogleRateLimited(err error) bool {
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		return false
	}
	if gerr.Code == http.StatusTooManyRequests {
		return true
	}
	if gerr.Code == http.StatusForbidden {
		for _, item := range gerr.Errors {
			if item.Reason == "rateLimitExceeded" || item.Reason == "userRateLimitExceeded" {
				return true
			}
		}
	}
	return false
}

// classifyGoogleErr maps a revoked or invalid token to model.ErrAuthExpired.
func classifyGoogleErr(op string, err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && gerr.Code == http.StatusUnauthorized {
		return fmt.Errorf("%w: %s: %w", model.ErrAuthExpired, op, err)
	}
	return fmt.Errorf("failed to %s: %w", op, err)
}

// callWithRetry waits for the limiter, runs call, and retries with capped
// exponential backoff while Google reports rate limiting.
func callWithRetry[T any](ctx context.Context, limiter *rate.Limiter, p RetryPolicy, call func() (T, error)) (T, error) {
	var zero T
	backoff := p.BaseDelay
	for attempt := 0; attempt <= p.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return zero, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > p.MaxDelay {
				backoff = p.MaxDelay
			}
		}
		if err := limiter.Wait(ctx); err != nil {
			return zero, err
		}

		v, err := call()
		if err == nil {
			return v, nil
		}
		if isGoogleRateLimited(err) {
			continue
		}
		return zero, err
	}
	return zero, fmt.Errorf("rate limit retries exceeded after %d attempts", p.MaxRetries+1)
}
