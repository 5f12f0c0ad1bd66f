package remote

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"
)

const (
	defaultBaseDelay = time.Second
	defaultMaxJitter = time.Second
	defaultMaxDelay  = 30 * time.Second
)

// RetryPolicy retries transient failures with exponential backoff and jitter:
// min(2^attempt * BaseDelay + rand(0, MaxJitter), MaxDelay).
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxJitter  time.Duration
	MaxDelay   time.Duration

	// sleep and jitter are replaced in tests.
	sleep  func(ctx context.Context, d time.Duration) error
	jitter func(max time.Duration) time.Duration
}

// DefaultRetryPolicy returns the policy used when nothing is configured.
func DefaultRetryPolicy(maxRetries int) RetryPolicy {
	return RetryPolicy{
		MaxRetries: maxRetries,
		BaseDelay:  defaultBaseDelay,
		MaxJitter:  defaultMaxJitter,
		MaxDelay:   defaultMaxDelay,
	}
}

// Backoff returns the wait before retry number attempt (0 based).
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	base := p.BaseDelay
	if base <= 0 {
		base = defaultBaseDelay
	}
	maxDelay := p.MaxDelay
	if maxDelay <= 0 {
		maxDelay = defaultMaxDelay
	}

	wait := maxDelay
	if attempt < 31 {
		wait = base << attempt
	}
	if wait <= 0 || wait > maxDelay {
		wait = maxDelay
	}
	wait += p.randomJitter()
	return min(wait, maxDelay)
}

func (p RetryPolicy) randomJitter() time.Duration {
	if p.MaxJitter <= 0 {
		return 0
	}
	if p.jitter != nil {
		return p.jitter(p.MaxJitter)
	}
	return rand.N(p.MaxJitter)
}

func (p RetryPolicy) wait(ctx context.Context, d time.Duration) error {
	if p.sleep != nil {
		return p.sleep(ctx, d)
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

// retry runs fn until it succeeds, fails permanently or the retry budget is spent.
func retry[T any](ctx context.Context, p RetryPolicy, logger *slog.Logger, op, id string, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error

	for attempt := 0; attempt <= p.MaxRetries; attempt++ {
		res, err := fn(ctx)
		if err == nil {
			return res, nil
		}
		if !IsTransient(err) || ctx.Err() != nil {
			return zero, err
		}
		lastErr = err
		if attempt == p.MaxRetries {
			break
		}

		wait := p.Backoff(attempt)
		logger.Warn("remote call failed, retrying",
			"op", op,
			"id", id,
			"attempt", attempt+1,
			"maxRetries", p.MaxRetries,
			"wait", wait,
			"error", err,
		)
		if err := p.wait(ctx, wait); err != nil {
			return zero, &Error{Op: op, ID: id, Err: err}
		}
	}

	return zero, &Error{
		Op:  op,
		ID:  id,
		Err: fmt.Errorf("%w after %d attempts: %w", ErrMaxRetriesExceeded, p.MaxRetries+1, lastErr),
	}
}
