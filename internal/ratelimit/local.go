package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/adamara/apiserver/config"
	"golang.org/x/time/rate"
)

// LocalLimiter keeps one x/time/rate limiter per key in memory. Buckets
// idle for longer than the configured TTL are dropped by Cleanup.
type LocalLimiter struct {
	limit rate.Limit
	burst int
	ttl   time.Duration
	now   func() time.Time

	mu       sync.Mutex
	visitors map[string]*visitor
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func NewLocalLimiter(cfg config.RateLimitConfig) *LocalLimiter {
	perSecond := float64(cfg.RefillTokens) / cfg.RefillInterval.Seconds()
	return &LocalLimiter{
		limit:    rate.Limit(perSecond),
		burst:    cfg.Capacity,
		ttl:      cfg.TTL,
		now:      time.Now,
		visitors: map[string]*visitor{},
	}
}

func (l *LocalLimiter) Take(ctx context.Context, key string) (Decision, error) {
	now := l.now()

	l.mu.Lock()
	v, ok := l.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.visitors[key] = v
	}
	v.lastSeen = now
	l.mu.Unlock()

	reservation := v.limiter.ReserveN(now, 1)
	if !reservation.OK() {
		return Decision{Allowed: false, RetryAfter: time.Second}, nil
	}
	if delay := reservation.DelayFrom(now); delay > 0 {
		reservation.CancelAt(now)
		return Decision{Allowed: false, RetryAfter: delay}, nil
	}
	remaining := int64(v.limiter.TokensAt(now))
	if remaining < 0 {
		remaining = 0
	}
	return Decision{Allowed: true, Remaining: remaining}, nil
}

// Cleanup drops idle buckets every interval until ctx is done.
func (l *LocalLimiter) Cleanup(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.sweep()
		}
	}
}

func (l *LocalLimiter) sweep() {
	cutoff := l.now().Add(-l.ttl)
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, v := range l.visitors {
		if v.lastSeen.Before(cutoff) {
			delete(l.visitors, key)
		}
	}
}
