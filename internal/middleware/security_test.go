package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medqa-sponsor-engine/internal/domain"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newRouter(handlers ...gin.HandlerFunc) *gin.Engine {
	router := gin.New()
	router.Use(handlers...)
	router.GET("/ping", func(c *gin.Context) {
		c.String(http.StatusOK, "pong")
	})
	return router
}

func get(router http.Handler, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestSecurityHeaders(t *testing.T) {
	tests := []struct {
		name     string
		hsts     bool
		wantHSTS string
	}{
		{name: "development", hsts: false, wantHSTS: ""},
		{name: "production", hsts: true, wantHSTS: "max-age=31536000; includeSubDomains"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := get(newRouter(SecurityHeaders(tt.hsts)), nil)

			assert.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
			assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
			assert.Equal(t, "no-referrer", rec.Header().Get("Referrer-Policy"))
			assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
			assert.Equal(t, tt.wantHSTS, rec.Header().Get("Strict-Transport-Security"))
		})
	}
}

func TestCorrelationID(t *testing.T) {
	t.Run("generated", func(t *testing.T) {
		rec := get(newRouter(CorrelationID()), nil)
		assert.Len(t, rec.Header().Get("X-Correlation-ID"), 36)
	})

	t.Run("propagated", func(t *testing.T) {
		rec := get(newRouter(CorrelationID()), http.Header{"X-Correlation-Id": {"abc-123"}})
		assert.Equal(t, "abc-123", rec.Header().Get("X-Correlation-ID"))
	})
}

func TestRequestTimeout(t *testing.T) {
	router := gin.New()
	router.Use(RequestTimeout(10 * time.Millisecond))
	router.GET("/slow", func(c *gin.Context) {
		select {
		case <-c.Request.Context().Done():
			c.Status(http.StatusGatewayTimeout)
		case <-time.After(time.Second):
			c.Status(http.StatusOK)
		}
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/slow", nil))

	assert.Equal(t, http.StatusGatewayTimeout, rec.Code)
}

func TestRateLimit(t *testing.T) {
	logger, _ := test.NewNullLogger()
	router := newRouter(CorrelationID(), RateLimit(1, 2, logger))

	tests := []struct {
		name   string
		ip     string
		status int
	}{
		{name: "first request", ip: "10.0.0.1:1000", status: http.StatusOK},
		{name: "within burst", ip: "10.0.0.1:1001", status: http.StatusOK},
		{name: "burst exhausted", ip: "10.0.0.1:1002", status: http.StatusTooManyRequests},
		{name: "other client unaffected", ip: "10.0.0.2:1000", status: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/ping", nil)
			req.RemoteAddr = tt.ip
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			require.Equal(t, tt.status, rec.Code)
			if tt.status == http.StatusTooManyRequests {
				var apiErr domain.APIError
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &apiErr))
				assert.Equal(t, domain.ErrRateLimit, apiErr.Code)
				assert.Equal(t, rec.Header().Get("X-Correlation-ID"), apiErr.RequestID)
			}
		})
	}

	t.Run("disabled", func(t *testing.T) {
		router := newRouter(RateLimit(0, 0, logger))
		for i := 0; i < 5; i++ {
			assert.Equal(t, http.StatusOK, get(router, nil).Code)
		}
	})
}

func TestAuditLogger(t *testing.T) {
	logger, hook := test.NewNullLogger()
	router := newRouter(CorrelationID(), AuditLogger(logger))

	rec := get(router, http.Header{"User-Agent": {"medqa-test"}})
	require.Equal(t, http.StatusOK, rec.Code)

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, logrus.InfoLevel, entry.Level)
	assert.Equal(t, "/ping", entry.Data["path"])
	assert.Equal(t, http.StatusOK, entry.Data["status"])
	assert.Equal(t, "medqa-test", entry.Data["user_agent"])
	assert.Equal(t, rec.Header().Get("X-Correlation-ID"), entry.Data["correlation_id"])
}
