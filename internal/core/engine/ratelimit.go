package engine

import (
	"context"
	"sync"
	"time"

	"github.com/zeebo/xxh3"

	"github.com/astrowidget/astroproxy/internal/core"
)

const (
	DefaultRateLimit  = 20
	DefaultRateWindow = 10 * time.Minute

	lockStripes = 64
)

// WindowStore keeps one rate window per client key. Implementations must
// drop or ignore expired windows; the limiter treats them as absent either way.
type WindowStore interface {
	GetWindow(ctx context.Context, key string) (*core.RateWindow, error)
	PutWindow(ctx context.Context, key string, window core.RateWindow) error
}

// WindowAdmitter is implemented by stores that can apply a hit atomically,
// across processes if they are shared.
type WindowAdmitter interface {
	AdmitWindow(ctx context.Context, key string, now time.Time, limit int, window time.Duration) (core.RateWindow, bool, error)
}

// Decision is the outcome of one Admit call.
type Decision struct {
	Allowed    bool
	Count      int
	Limit      int
	Remaining  int
	ResetAt    time.Time
	RetryAfter time.Duration
}

// RateLimiter enforces a fixed-window request limit per client key.
type RateLimiter struct {
	Store  WindowStore
	Limit  int
	Window time.Duration
	Clock  func() time.Time

	locks [lockStripes]sync.Mutex
}

// Admit records a hit for key when it fits in the current window.
// Rejected hits leave the stored count unchanged. On a store failure the
// hit is admitted and the error returned so the caller can log it.
func (r *RateLimiter) Admit(ctx context.Context, key string) (Decision, error) {
	if r == nil || r.Store == nil {
		return Decision{Allowed: true}, nil
	}
	if ctx == nil {
		ctx = context.Background()
	}

	now := r.now()
	limit := r.limit()
	window := r.window()

	if admitter, ok := r.Store.(WindowAdmitter); ok {
		next, allowed, err := admitter.AdmitWindow(ctx, key, now, limit, window)
		if err != nil {
			return Decision{Allowed: true, Limit: limit}, err
		}
		return r.decide(next, allowed, now, limit), nil
	}

	mu := r.lockFor(key)
	mu.Lock()
	defer mu.Unlock()

	current, err := r.Store.GetWindow(ctx, key)
	if err != nil {
		return Decision{Allowed: true, Limit: limit}, err
	}

	next, allowed := core.AdvanceWindow(current, now, limit, window)
	if allowed {
		if err := r.Store.PutWindow(ctx, key, next); err != nil {
			return Decision{Allowed: true, Limit: limit}, err
		}
	}
	return r.decide(next, allowed, now, limit), nil
}

func (r *RateLimiter) decide(w core.RateWindow, allowed bool, now time.Time, limit int) Decision {
	remaining := limit - w.Count
	if remaining < 0 {
		remaining = 0
	}
	d := Decision{
		Allowed:   allowed,
		Count:     w.Count,
		Limit:     limit,
		Remaining: remaining,
		ResetAt:   w.ExpiresAt,
	}
	if !allowed {
		d.RetryAfter = w.ExpiresAt.Sub(now)
		if d.RetryAfter < 0 {
			d.RetryAfter = 0
		}
	}
	return d
}

func (r *RateLimiter) lockFor(key string) *sync.Mutex {
	return &r.locks[xxh3.HashString(key)%lockStripes]
}

func (r *RateLimiter) limit() int {
	if r.Limit > 0 {
		return r.Limit
	}
	return DefaultRateLimit
}

func (r *RateLimiter) window() time.Duration {
	if r.Window > 0 {
		return r.Window
	}
	return DefaultRateWindow
}

func (r *RateLimiter) now() time.Time {
	if r != nil && r.Clock != nil {
		return r.Clock()
	}
	return time.Now().UTC()
}
