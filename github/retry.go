package github_handler

import (
	"context"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// RetryPolicy bounds how often and how long the executor retries.
type RetryPolicy struct {
	// MaxAttempts counts the initial attempt. The one-shot auth refresh is not counted.
	// Default: 3
	MaxAttempts int

	// InitialDelay is the backoff before the first retry.
	// Default: 500ms
	InitialDelay time.Duration

	// MaxDelay caps computed backoff. Server-requested waits are not capped by it.
	// Default: 30s
	MaxDelay time.Duration

	// Backoff computes the wait between InitialDelay and MaxDelay for a zero-based retry number.
	// Use retryablehttp.LinearJitterBackoff to spread concurrent clients.
	// Default: retryablehttp.DefaultBackoff
	Backoff retryablehttp.Backoff

	// MaxRateLimitWait is the longest Retry-After or rate limit reset the executor sleeps through.
	// Longer waits surface the RateLimit error immediately.
	// Default: 60s
	MaxRateLimitWait time.Duration
}

// DefaultRetryPolicy returns the policy used when none is configured.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:      3,
		InitialDelay:     500 * time.Millisecond,
		MaxDelay:         30 * time.Second,
		Backoff:          retryablehttp.DefaultBackoff,
		MaxRateLimitWait: 60 * time.Second,
	}
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	def := DefaultRetryPolicy()
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = def.MaxAttempts
	}
	if p.InitialDelay <= 0 {
		p.InitialDelay = def.InitialDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = def.MaxDelay
	}
	if p.Backoff == nil {
		p.Backoff = def.Backoff
	}
	if p.MaxRateLimitWait < 0 {
		p.MaxRateLimitWait = 0
	}
	return p
}

// backoff returns the computed delay after the given failed attempt (1-based).
func (p RetryPolicy) backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	backoff := p.Backoff
	if backoff == nil {
		backoff = retryablehttp.DefaultBackoff
	}
	return backoff(p.InitialDelay, p.MaxDelay, attempt-1, nil)
}

// delay picks the wait before retrying apiErr. A server-requested wait longer than
// MaxRateLimitWait reports ok=false.
func (p RetryPolicy) delay(apiErr *APIError, attempt int, now time.Time) (time.Duration, bool) {
	switch {
	case apiErr.RetryAfter > 0:
		return apiErr.RetryAfter, apiErr.RetryAfter <= p.MaxRateLimitWait
	case apiErr.Kind == KindRateLimit && !apiErr.ResetAt.IsZero():
		wait := apiErr.ResetAt.Sub(now)
		if wait < 0 {
			wait = 0
		}
		return wait, wait <= p.MaxRateLimitWait
	default:
		return p.backoff(attempt), true
	}
}

// retryAfter returns the Retry-After wait sent with a 429 or 503.
// Zero bounds leave DefaultBackoff nothing to compute but the header value.
func retryAfter(resp *http.Response) time.Duration {
	return retryablehttp.DefaultBackoff(0, 0, 0, resp)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
