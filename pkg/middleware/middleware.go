// Package middleware 提供 Gin 通用中间件（日志、panic recover、CORS、限流、指标）
package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/wyfcoding/cryptocustody/pkg/config"
	"github.com/wyfcoding/cryptocustody/pkg/logger"
	"github.com/wyfcoding/cryptocustody/pkg/metrics"
	"github.com/wyfcoding/cryptocustody/pkg/ratelimit"
)

// RequestIDKey gin context key for request ID
const RequestIDKey = "request_id"

// TraceIDKey gin context key for trace ID
const TraceIDKey = "trace_id"

// Logging Gin 日志中间件，注入 request_id/trace_id 并记录请求始末
func Logging() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := uuid.New().String()
		traceID := c.GetHeader("X-Trace-ID")
		if traceID == "" {
			traceID = uuid.New().String()
		}

		c.Set(RequestIDKey, requestID)
		c.Set(TraceIDKey, traceID)

		ctx := context.WithValue(c.Request.Context(), logger.TraceIDContextKey, traceID)
		ctx = context.WithValue(ctx, logger.RequestIDContextKey, requestID)
		c.Request = c.Request.WithContext(ctx)

		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		logger.Info(ctx, "HTTP request started",
			"method", method,
			"path", path,
			"client_ip", c.ClientIP(),
		)

		c.Next()

		logger.Info(ctx, "HTTP request completed",
			"method", method,
			"path", path,
			"status_code", c.Writer.Status(),
			"response_size", c.Writer.Size(),
			"duration", time.Since(start),
		)
	}
}

// Recovery Gin panic 恢复中间件
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				requestID, _ := c.Get(RequestIDKey)

				logger.Error(c.Request.Context(), "HTTP request panicked",
					"request_id", requestID,
					"panic", err,
				)

				c.AbortWithStatusJSON(500, gin.H{
					"success":    false,
					"message":    "Internal server error",
					"request_id": requestID,
				})
			}
		}()
		c.Next()
	}
}

// CORS Gin CORS 中间件
func CORS() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With, X-Trace-ID")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE, PATCH")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}

// Metrics 记录 HTTP 指标
func Metrics(m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		m.HTTPRequestsTotal.WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).Inc()
		m.HTTPRequestDuration.Observe(time.Since(start).Seconds())
	}
}

// RateLimit Gin 限流中间件，按客户端 IP 计数
// 限流器自身故障时放行，Redis 抖动不拖垮入口。
func RateLimit(limiter ratelimit.RateLimiter, cfg config.RateLimitConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !cfg.Enabled {
			c.Next()
			return
		}

		key := fmt.Sprintf("ratelimit:%s", c.ClientIP())
		limit := ratelimit.Limit{
			Rate:   cfg.QPS,
			Period: time.Second,
			Burst:  cfg.Burst,
		}

		res, err := limiter.Allow(c.Request.Context(), key, limit)
		if err != nil {
			logger.Warn(c.Request.Context(), "Rate limiter unavailable, failing open", "error", err)
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(limit.Burst))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(int64(res.ResetAfter/time.Second), 10))

		if !res.Allowed {
			c.Header("Retry-After", strconv.FormatInt(int64(res.RetryAfter/time.Second), 10))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"success":     false,
				"message":     "Too many requests",
				"retry_after": res.RetryAfter.String(),
			})
			return
		}

		c.Next()
	}
}
