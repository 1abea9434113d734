package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/wyfcoding/cryptocustody/pkg/config"
	"github.com/wyfcoding/cryptocustody/pkg/ratelimit"
)

// stubLimiter 固定判定结果的限流器
type stubLimiter struct {
	result *ratelimit.Result
	err    error
	keys   []string
}

func (s *stubLimiter) Allow(ctx context.Context, key string, limit ratelimit.Limit) (*ratelimit.Result, error) {
	s.keys = append(s.keys, key)
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

func newRateLimitedRouter(limiter ratelimit.RateLimiter, cfg config.RateLimitConfig) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(RateLimit(limiter, cfg))
	router.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })
	return router
}

func TestRateLimit_AllowsWithinQuota(t *testing.T) {
	limiter := &stubLimiter{result: &ratelimit.Result{Allowed: true, Remaining: 42}}
	router := newRateLimitedRouter(limiter, config.RateLimitConfig{Enabled: true, QPS: 100, Burst: 200})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "42", w.Header().Get("X-RateLimit-Remaining"))
	assert.Len(t, limiter.keys, 1)
	assert.True(t, strings.HasPrefix(limiter.keys[0], "ratelimit:"))
}

func TestRateLimit_RejectsWhenQuotaExhausted(t *testing.T) {
	limiter := &stubLimiter{result: &ratelimit.Result{Allowed: false, RetryAfter: 2 * time.Second}}
	router := newRateLimitedRouter(limiter, config.RateLimitConfig{Enabled: true, QPS: 100, Burst: 200})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "2", w.Header().Get("Retry-After"))
}

func TestRateLimit_DisabledSkipsLimiter(t *testing.T) {
	limiter := &stubLimiter{result: &ratelimit.Result{Allowed: false}}
	router := newRateLimitedRouter(limiter, config.RateLimitConfig{Enabled: false})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, limiter.keys)
}

// 限流器故障时放行而不是拒绝
func TestRateLimit_FailsOpenOnLimiterError(t *testing.T) {
	limiter := &stubLimiter{err: errors.New("redis down")}
	router := newRateLimitedRouter(limiter, config.RateLimitConfig{Enabled: true, QPS: 100, Burst: 200})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))

	assert.Equal(t, http.StatusOK, w.Code)
}
