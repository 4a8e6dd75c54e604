package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/medqa-sponsor-engine/internal/domain"
)

// CorrelationIDKey is the gin context key holding the request's correlation id.
const CorrelationIDKey = "correlation_id"

// maxTrackedClients bounds the number of per-IP limiters kept in memory.
const maxTrackedClients = 10000

// SecurityHeaders adds security headers to all responses. hsts enables
// Strict-Transport-Security, which production deployments always set.
func SecurityHeaders(hsts bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		// Prevent MIME type sniffing
		c.Header("X-Content-Type-Options", "nosniff")

		// Prevent clickjacking
		c.Header("X-Frame-Options", "DENY")

		// Enforce HTTPS (only in production)
		if hsts {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		c.Header("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")

		// Questions may carry health details; never leak them through the referrer.
		c.Header("Referrer-Policy", "no-referrer")
		c.Header("Cache-Control", "no-store")

		c.Next()
	}
}

// CorrelationID adds a unique correlation ID to each request for audit trails
func CorrelationID() gin.HandlerFunc {
	return func(c *gin.Context) {
		correlationID := c.GetHeader("X-Correlation-ID")
		if correlationID == "" {
			correlationID = uuid.New().String()
		}

		c.Set(CorrelationIDKey, correlationID)
		c.Header("X-Correlation-ID", correlationID)

		c.Next()
	}
}

// RequestTimeout bounds the request context. Handlers observe the deadline
// through c.Request.Context() and abort their external calls.
func RequestTimeout(timeout time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if timeout <= 0 {
			c.Next()
			return
		}
		ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
		defer cancel()

		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// RateLimit throttles each client IP to rps requests per second with the given burst.
// A non-positive rps disables limiting.
func RateLimit(rps float64, burst int, logger *logrus.Logger) gin.HandlerFunc {
	if rps <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	if burst <= 0 {
		burst = int(rps) + 1
	}

	limiters, err := lru.New[string, *rate.Limiter](maxTrackedClients)
	if err != nil {
		panic(err)
	}

	return func(c *gin.Context) {
		ip := c.ClientIP()
		limiter, ok := limiters.Get(ip)
		if !ok {
			limiter = rate.NewLimiter(rate.Limit(rps), burst)
			limiters.Add(ip, limiter)
		}

		if !limiter.Allow() {
			logger.WithFields(logrus.Fields{
				"client_ip":      ip,
				"path":           c.Request.URL.Path,
				"correlation_id": c.GetString(CorrelationIDKey),
			}).Warn("Rate limit exceeded")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, domain.NewAPIError(
				domain.ErrRateLimit, "Too many requests", "", c.GetString(CorrelationIDKey)))
			return
		}
		c.Next()
	}
}

// AuditLogger writes one structured access log entry per request. Request
// bodies are never logged since questions may contain health information.
func AuditLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		entry := logger.WithFields(logrus.Fields{
			"correlation_id": c.GetString(CorrelationIDKey),
			"method":         c.Request.Method,
			"path":           c.FullPath(),
			"status":         c.Writer.Status(),
			"latency_ms":     time.Since(start).Milliseconds(),
			"client_ip":      c.ClientIP(),
			"user_agent":     c.Request.UserAgent(),
			"response_size":  c.Writer.Size(),
		})
		switch {
		case c.Writer.Status() >= http.StatusInternalServerError:
			entry.Error("Request failed")
		case c.Writer.Status() >= http.StatusBadRequest:
			entry.Warn("Request rejected")
		default:
			entry.Info("Request completed")
		}
	}
}
