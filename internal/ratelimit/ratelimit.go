// Package ratelimit throttles HTTP clients with a token bucket kept in
// Redis, or in process memory when no Redis is configured.
package ratelimit

import (
	"context"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/adamara/apiserver/config"
)

// Decision is the outcome of taking one token for a key.
type Decision struct {
	Allowed    bool
	Remaining  int64
	RetryAfter time.Duration
}

// Limiter takes one token from the bucket identified by key.
type Limiter interface {
	Take(ctx context.Context, key string) (Decision, error)
}

// Middleware rejects requests with 429 once their bucket is empty.
// Limiter errors let the request through.
type Middleware struct {
	limiter   Limiter
	cfg       config.RateLimitConfig
	logger    *slog.Logger
	onLimited func()
}

func NewMiddleware(limiter Limiter, cfg config.RateLimitConfig, logger *slog.Logger, onLimited func()) *Middleware {
	if onLimited == nil {
		onLimited = func() {}
	}
	return &Middleware{
		limiter:   limiter,
		cfg:       cfg,
		logger:    logger,
		onLimited: onLimited,
	}
}

func (m *Middleware) Handler(next http.Handler) http.Handler {
	if !m.cfg.Enabled || m.limiter == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := m.key(r)
		decision, err := m.limiter.Take(r.Context(), key)
		if err != nil {
			m.logger.WarnContext(r.Context(), "rate limiter unavailable", "key", key, "error", err)
			next.ServeHTTP(w, r)
			return
		}

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(m.cfg.Capacity))
		w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(decision.Remaining, 10))

		if !decision.Allowed {
			secs := int(math.Ceil(decision.RetryAfter.Seconds()))
			if secs < 1 {
				secs = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(secs))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":"Too many requests from this IP, please try again later"}` + "\n"))
			m.onLimited()
			return
		}
		next.ServeHTTP(w, r)
	})
}

// key builds the bucket key from the configured strategy: "ip",
// "route" or "ip_route".
func (m *Middleware) key(r *http.Request) string {
	ip := clientIP(r)
	route := r.Method + " " + r.URL.Path

	parts := []string{m.cfg.Prefix}
	switch strings.ToLower(m.cfg.KeyStrategy) {
	case "route":
		parts = append(parts, "route", route)
	case "ip_route":
		parts = append(parts, "ip", ip, "route", route)
	default:
		parts = append(parts, "ip", ip)
	}
	return strings.Join(parts, ":")
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = strings.Trim(r.RemoteAddr, "[]")
	}
	if host == "" {
		return "unknown"
	}
	return host
}
