package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/mattjoyce/uploader/internal/config"
	"github.com/mattjoyce/uploader/internal/fault"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func testConfig() config.RateLimitConfig {
	return config.RateLimitConfig{
		Default: config.Bucket{RPS: 2, Burst: 5},
		Targets: map[string]config.Bucket{
			"vipergirls.to": {RPS: 1, Burst: 3},
		},
	}
}

func TestAcquireReturnsSameInstance(t *testing.T) {
	r := New(testConfig())

	a := r.Acquire("pixhost.to")
	b := r.Acquire(" PixHost.to ")
	c := r.Acquire("imx.to")

	assert.Same(t, a, b)
	assert.NotSame(t, a, c)
	assert.Equal(t, 2, r.Len())
	assert.Equal(t, []string{"imx.to", "pixhost.to"}, r.Targets())
}

func TestAcquireUsesTargetBucket(t *testing.T) {
	r := New(testConfig())

	vg := r.Acquire("vipergirls.to")
	assert.Equal(t, rate.Limit(1), vg.Limit())
	assert.Equal(t, 3, vg.Burst())

	unknown := r.Acquire("somewhere.example")
	assert.Equal(t, rate.Limit(2), unknown.Limit())
	assert.Equal(t, 5, unknown.Burst())
}

func TestConcurrentCreation(t *testing.T) {
	r := New(testConfig())

	const callers = 50
	targets := []string{"a", "b", "c", "d", "e"}

	var mu sync.Mutex
	seen := make(map[string]map[*rate.Limiter]bool)
	start := make(chan struct{})

	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			target := targets[i%len(targets)]
			lim := r.Acquire(target)

			mu.Lock()
			if seen[target] == nil {
				seen[target] = make(map[*rate.Limiter]bool)
			}
			seen[target][lim] = true
			mu.Unlock()
		}(i)
	}
	close(start)
	wg.Wait()

	assert.Equal(t, len(targets), r.Len())
	for _, target := range targets {
		assert.Len(t, seen[target], 1, "target %s saw more than one limiter", target)
	}
}

func TestWaitRespectsDeadline(t *testing.T) {
	r := New(config.RateLimitConfig{Default: config.Bucket{RPS: 0.1, Burst: 1}})
	lim := r.Acquire("slow")

	// Drain the single burst token.
	require.NoError(t, Wait(context.Background(), lim))

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := Wait(ctx, lim)
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.ErrorIs(t, err, fault.ErrDeadline)
	assert.Less(t, elapsed, 150*time.Millisecond, "wait must not outlive the deadline")
}

func TestWaitTargetIndependentBuckets(t *testing.T) {
	r := New(config.RateLimitConfig{Default: config.Bucket{RPS: 0.1, Burst: 1}})

	// Exhaust "busy".
	require.NoError(t, r.WaitTarget(context.Background(), "busy"))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.Error(t, r.WaitTarget(ctx, "busy"))

	// Another target is unaffected.
	ctx2, cancel2 := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel2()
	assert.NoError(t, r.WaitTarget(ctx2, "idle"))
}

func TestGlobalLimiter(t *testing.T) {
	cfg := testConfig()
	cfg.Global = &config.Bucket{RPS: 0.1, Burst: 2}
	r := New(cfg)

	for i := 0; i < 2; i++ {
		require.NoError(t, r.WaitTarget(context.Background(), fmt.Sprintf("t%d", i)))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := r.WaitTarget(ctx, "t3")
	assert.ErrorIs(t, err, fault.ErrDeadline)
}

func TestWaitNilLimiter(t *testing.T) {
	assert.NoError(t, Wait(context.Background(), nil))
}
