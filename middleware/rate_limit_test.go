package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestUploadThrottle_Allow(t *testing.T) {
	clock := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	th := NewUploadThrottle(4) // one token per 15s, burst 2
	th.now = func() time.Time { return clock }

	assert.True(t, th.Allow("10.0.0.1"))
	assert.True(t, th.Allow("10.0.0.1"))
	assert.False(t, th.Allow("10.0.0.1"))
	assert.True(t, th.Allow("10.0.0.2"), "buckets are per IP")

	clock = clock.Add(15 * time.Second)
	assert.True(t, th.Allow("10.0.0.1"))
	assert.False(t, th.Allow("10.0.0.1"))
}

func TestUploadThrottle_EvictsIdleBuckets(t *testing.T) {
	clock := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	th := NewUploadThrottle(4)
	th.now = func() time.Time { return clock }

	th.Allow("10.0.0.1")
	clock = clock.Add(limiterIdleTTL + time.Second)
	th.Allow("10.0.0.2")

	th.mu.Lock()
	defer th.mu.Unlock()
	assert.NotContains(t, th.limiters, "10.0.0.1")
	assert.Contains(t, th.limiters, "10.0.0.2")
}

func TestUploadThrottle_Handler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	th := NewUploadThrottle(2) // burst 1

	r := gin.New()
	r.Use(RequestMetrics())
	r.POST("/api/images", th.Handler(), func(c *gin.Context) { c.Status(http.StatusCreated) })

	first := httptest.NewRecorder()
	r.ServeHTTP(first, httptest.NewRequest(http.MethodPost, "/api/images", nil))
	assert.Equal(t, http.StatusCreated, first.Code)

	second := httptest.NewRecorder()
	r.ServeHTTP(second, httptest.NewRequest(http.MethodPost, "/api/images", nil))
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.Contains(t, second.Body.String(), `"code":42901`)
}
