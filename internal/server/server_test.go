package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/adamara/apiserver/config"
	"github.com/adamara/apiserver/internal/auth"
	"github.com/adamara/apiserver/internal/logging"
	"github.com/adamara/apiserver/internal/metrics"
	"github.com/adamara/apiserver/internal/ratelimit"
	"github.com/adamara/apiserver/internal/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRouter(limit config.RateLimitConfig) http.Handler {
	logger := logging.Discard()
	var limiter ratelimit.Limiter
	if limit.Enabled {
		limiter = ratelimit.NewLocalLimiter(limit)
	}
	return NewRouter(Deps{
		Config:  config.Config{CORSOrigins: []string{"https://app.example.com"}, RateLimit: limit},
		Logger:  logger,
		Metrics: metrics.New(),
		Tokens:  auth.NewTokenIssuer("secret", time.Hour),
		Users:   services.NewUserService(nil, logger),
		Limiter: limiter,
	})
}

func TestRouter_HealthAndMetrics(t *testing.T) {
	router := testRouter(config.RateLimitConfig{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "adamara_ad_requests_created_total")
}

func TestRouter_CORSPreflight(t *testing.T) {
	router := testRouter(config.RateLimitConfig{})

	req := httptest.NewRequest(http.MethodOptions, "/requests", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRouter_RateLimitsAPI(t *testing.T) {
	router := testRouter(config.RateLimitConfig{
		Enabled:        true,
		Capacity:       2,
		RefillTokens:   1,
		RefillInterval: time.Hour,
		TTL:            time.Hour,
		Prefix:         "rl",
	})

	codes := []int{}
	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader("")))
		codes = append(codes, rec.Code)
	}
	assert.Equal(t, []int{http.StatusBadRequest, http.StatusBadRequest, http.StatusTooManyRequests}, codes)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRouter_ProtectedRoutesNeedToken(t *testing.T) {
	router := testRouter(config.RateLimitConfig{})

	for _, path := range []string{"/requests", "/requests/export/csv", "/users", "/files/x.pdf", "/auth/current"} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code, path)
	}
}

func TestNew_RequiresSecret(t *testing.T) {
	_, err := New(context.Background(), config.Config{}, logging.Discard())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_SECRET")
}
