package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mattjoyce/uploader/internal/fault"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noSleep(context.Context, time.Duration) error { return nil }

func TestDoTransientThenSuccess(t *testing.T) {
	calls := 0
	var delays []time.Duration

	attempts, err := Do(context.Background(), Policy{MaxAttempts: 3, BaseDelay: 10 * time.Millisecond},
		func(ctx context.Context, attempt int) error {
			calls++
			if calls < 3 {
				return &fault.StatusError{Code: 503}
			}
			return nil
		},
		WithSleeper(noSleep),
		WithOnRetry(func(_ int, d time.Duration, _ error) { delays = append(delays, d) }),
	)

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, []time.Duration{10 * time.Millisecond, 20 * time.Millisecond}, delays)
}

func TestDoPermanentFailsFast(t *testing.T) {
	calls := 0
	attempts, err := Do(context.Background(), Policy{MaxAttempts: 3},
		func(ctx context.Context, attempt int) error {
			calls++
			return &fault.StatusError{Code: 401, Body: "bad key"}
		},
		WithSleeper(noSleep),
	)

	require.Error(t, err)
	assert.Equal(t, 1, attempts)
	assert.Equal(t, 1, calls)
	var statusErr *fault.StatusError
	assert.ErrorAs(t, err, &statusErr)
}

func TestDoExhaustsAttempts(t *testing.T) {
	attempts, err := Do(context.Background(), Policy{MaxAttempts: 3},
		func(ctx context.Context, attempt int) error {
			return fault.Transientf("connection reset on attempt %d", attempt)
		},
		WithSleeper(noSleep),
	)

	require.Error(t, err)
	assert.Equal(t, 3, attempts)
	assert.ErrorIs(t, err, fault.ErrTransient)
	assert.Contains(t, err.Error(), "failed after 3 attempts")
}

func TestDoSkipsRetryPastDeadline(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	slept := false
	attempts, err := Do(ctx, Policy{MaxAttempts: 5, BaseDelay: time.Second},
		func(ctx context.Context, attempt int) error {
			return &fault.StatusError{Code: 502}
		},
		WithSleeper(func(context.Context, time.Duration) error {
			slept = true
			return nil
		}),
	)

	require.Error(t, err)
	assert.Equal(t, 1, attempts)
	assert.False(t, slept, "a retry that cannot finish before the deadline must not sleep")
	assert.ErrorIs(t, err, fault.ErrDeadline)
}

func TestDoBudgetsAgainstClock(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Hour)
	defer cancel()
	deadline, _ := ctx.Deadline()

	// The clock says only 500ms of the hour is left, so a 1s backoff cannot fit.
	attempts, err := Do(ctx, Policy{MaxAttempts: 3, BaseDelay: time.Second},
		func(ctx context.Context, attempt int) error {
			return &fault.StatusError{Code: 503}
		},
		WithSleeper(noSleep),
		WithClock(func() time.Time { return deadline.Add(-500 * time.Millisecond) }),
	)
	assert.Equal(t, 1, attempts)
	assert.ErrorIs(t, err, fault.ErrDeadline)

	// With the real budget available the same policy uses every attempt.
	attempts, err = Do(ctx, Policy{MaxAttempts: 3, BaseDelay: time.Second},
		func(ctx context.Context, attempt int) error {
			return &fault.StatusError{Code: 503}
		},
		WithSleeper(noSleep),
		WithClock(func() time.Time { return deadline.Add(-time.Minute) }),
	)
	assert.Equal(t, 3, attempts)
	assert.NotErrorIs(t, err, fault.ErrDeadline)
}

func TestDoDeadlineErrorFromFn(t *testing.T) {
	attempts, err := Do(context.Background(), Policy{MaxAttempts: 3},
		func(ctx context.Context, attempt int) error {
			return context.DeadlineExceeded
		},
		WithSleeper(noSleep),
	)
	assert.Equal(t, 1, attempts)
	assert.ErrorIs(t, err, fault.ErrDeadline)
}

func TestDoCancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	attempts, err := Do(ctx, Policy{}, func(ctx context.Context, attempt int) error {
		called = true
		return nil
	})
	assert.False(t, called)
	assert.Equal(t, 0, attempts)
	assert.ErrorIs(t, err, fault.ErrDeadline)
}

func TestDoSleepInterrupted(t *testing.T) {
	attempts, err := Do(context.Background(), Policy{MaxAttempts: 3},
		func(ctx context.Context, attempt int) error {
			return fault.ErrTransient
		},
		WithSleeper(func(context.Context, time.Duration) error { return context.Canceled }),
	)
	assert.Equal(t, 1, attempts)
	assert.ErrorIs(t, err, fault.ErrDeadline)
	assert.ErrorIs(t, err, fault.ErrTransient)
}

func TestBackoff(t *testing.T) {
	p := Policy{BaseDelay: time.Second, MaxDelay: 5 * time.Second}
	assert.Equal(t, 1*time.Second, p.Backoff(1))
	assert.Equal(t, 2*time.Second, p.Backoff(2))
	assert.Equal(t, 4*time.Second, p.Backoff(3))
	assert.Equal(t, 5*time.Second, p.Backoff(4))
	assert.Equal(t, 5*time.Second, p.Backoff(10))
}

func TestJitterStaysWithinFraction(t *testing.T) {
	var got time.Duration
	_, _ = Do(context.Background(), Policy{MaxAttempts: 2, BaseDelay: 100 * time.Millisecond, Jitter: 0.5},
		func(ctx context.Context, attempt int) error { return fault.ErrTransient },
		WithSleeper(noSleep),
		WithOnRetry(func(_ int, d time.Duration, _ error) { got = d }),
	)
	assert.GreaterOrEqual(t, got, 100*time.Millisecond)
	assert.LessOrEqual(t, got, 150*time.Millisecond)
}

func TestSleep(t *testing.T) {
	require.NoError(t, Sleep(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Sleep(ctx, time.Hour)
	assert.True(t, errors.Is(err, context.Canceled))
}
