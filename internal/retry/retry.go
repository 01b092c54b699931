package retry

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/mattjoyce/uploader/internal/config"
	"github.com/mattjoyce/uploader/internal/fault"
)

const (
	defaultMaxAttempts = 3
	defaultBaseDelay   = 1 * time.Second
	defaultMaxDelay    = 30 * time.Second
)

// Policy bounds how many times and how far apart an operation is retried.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Jitter      float64 // fraction of the delay added at random, 0..1
}

// FromConfig builds a Policy from retry configuration.
func FromConfig(cfg config.RetryConfig) Policy {
	return Policy{
		MaxAttempts: cfg.MaxAttempts,
		BaseDelay:   cfg.BaseDelay,
		MaxDelay:    cfg.MaxDelay,
		Jitter:      cfg.Jitter,
	}
}

func (p Policy) normalized() Policy {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = defaultMaxAttempts
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = defaultBaseDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = defaultMaxDelay
	}
	if p.Jitter < 0 {
		p.Jitter = 0
	}
	if p.Jitter > 1 {
		p.Jitter = 1
	}
	return p
}

// Backoff returns the delay before the retry that follows attempt
// (1-based): BaseDelay doubled per attempt, capped at MaxDelay.
func (p Policy) Backoff(attempt int) time.Duration {
	p = p.normalized()
	delay := p.BaseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if delay > p.MaxDelay {
		return p.MaxDelay
	}
	return delay
}

// Option customizes a single Do call.
type Option func(*runner)

// WithSleeper overrides how retry sleeps are performed (useful for tests).
func WithSleeper(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(r *runner) {
		r.sleep = sleep
	}
}

// WithOnRetry registers a callback invoked before each retry sleep.
func WithOnRetry(fn func(attempt int, delay time.Duration, err error)) Option {
	return func(r *runner) {
		r.onRetry = fn
	}
}

// WithClock overrides the time source used for deadline budgeting.
func WithClock(now func() time.Time) Option {
	return func(r *runner) {
		r.now = now
	}
}

type runner struct {
	sleep   func(ctx context.Context, d time.Duration) error
	onRetry func(attempt int, delay time.Duration, err error)
	now     func() time.Time
	jitter  func() float64
}

// Do runs fn until it succeeds, fails permanently, runs out of attempts or
// runs out of deadline. It returns the number of attempts made.
//
// Only transient failures are retried. A retry is skipped when its backoff
// would end at or after ctx's deadline.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context, attempt int) error, opts ...Option) (int, error) {
	p = p.normalized()
	r := &runner{
		sleep:  Sleep,
		now:    time.Now,
		jitter: rand.Float64,
	}
	for _, opt := range opts {
		opt(r)
	}

	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr == nil {
				lastErr = err
			}
			return attempt - 1, fault.Wrap(fault.ErrDeadline, "before attempt", lastErr)
		}

		err := fn(ctx, attempt)
		if err == nil {
			return attempt, nil
		}
		lastErr = err

		if fault.IsDeadline(err) {
			return attempt, fault.Wrap(fault.ErrDeadline, "", err)
		}
		if fault.KindOf(err) != fault.Transient {
			return attempt, err
		}
		if attempt == p.MaxAttempts {
			break
		}

		delay := p.Backoff(attempt)
		if p.Jitter > 0 {
			delay += time.Duration(float64(delay) * p.Jitter * r.jitter())
		}
		if deadline, ok := ctx.Deadline(); ok && !r.now().Add(delay).Before(deadline) {
			return attempt, fault.Wrap(fault.ErrDeadline,
				fmt.Sprintf("no time left to retry after attempt %d", attempt), err)
		}

		if r.onRetry != nil {
			r.onRetry(attempt, delay, err)
		}
		if err := r.sleep(ctx, delay); err != nil {
			return attempt, fault.Wrap(fault.ErrDeadline, "retry backoff", lastErr)
		}
	}

	return p.MaxAttempts, fmt.Errorf("failed after %d attempts: %w", p.MaxAttempts, lastErr)
}

// Sleep waits for d or until ctx ends.
func Sleep(ctx context.Context, d time.Duration) error {
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
