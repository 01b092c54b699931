package ratelimit

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/mattjoyce/uploader/internal/config"
	"github.com/mattjoyce/uploader/internal/fault"
	"golang.org/x/time/rate"
)

// Registry hands out one token bucket per target, created on first use
// and kept for the life of the process. The registry lock only guards the
// map; waiting on a bucket never touches it.
type Registry struct {
	mu       sync.RWMutex
	limiters map[string]*rate.Limiter

	defaults config.Bucket
	targets  map[string]config.Bucket
	global   *rate.Limiter
}

// New creates a Registry from rate limit configuration.
func New(cfg config.RateLimitConfig) *Registry {
	r := &Registry{
		limiters: make(map[string]*rate.Limiter),
		defaults: cfg.Default,
		targets:  make(map[string]config.Bucket, len(cfg.Targets)),
	}
	for name, b := range cfg.Targets {
		r.targets[normalize(name)] = b
	}
	if cfg.Global != nil {
		r.global = newLimiter(*cfg.Global)
	}
	return r
}

// Acquire returns the limiter for target, creating it if absent.
func (r *Registry) Acquire(target string) *rate.Limiter {
	key := normalize(target)

	r.mu.RLock()
	lim, ok := r.limiters[key]
	r.mu.RUnlock()
	if ok {
		return lim
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if lim, ok := r.limiters[key]; ok {
		return lim
	}
	lim = newLimiter(r.bucketFor(key))
	r.limiters[key] = lim
	return lim
}

// Wait blocks until lim issues a token or ctx ends. When the token cannot
// arrive before the deadline it fails at once instead of sleeping into it.
func Wait(ctx context.Context, lim *rate.Limiter) error {
	if lim == nil {
		return nil
	}
	if err := lim.Wait(ctx); err != nil {
		return fault.Wrap(fault.ErrDeadline, "rate limit wait", err)
	}
	return nil
}

// WaitTarget waits on the global limiter and then on the target's own.
func (r *Registry) WaitTarget(ctx context.Context, target string) error {
	if err := Wait(ctx, r.global); err != nil {
		return err
	}
	return Wait(ctx, r.Acquire(target))
}

// Len returns how many per-target limiters exist.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.limiters)
}

// Targets lists the targets that have a limiter, sorted.
func (r *Registry) Targets() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.limiters))
	for name := range r.limiters {
		names = append(names, name)
	}
	r.mu.RUnlock()
	sort.Strings(names)
	return names
}

func (r *Registry) bucketFor(key string) config.Bucket {
	if b, ok := r.targets[key]; ok {
		return b
	}
	return r.defaults
}

func newLimiter(b config.Bucket) *rate.Limiter {
	return rate.NewLimiter(rate.Limit(b.RPS), b.Burst)
}

func normalize(target string) string {
	return strings.ToLower(strings.TrimSpace(target))
}
