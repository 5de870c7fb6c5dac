package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/cppla/imgdrop/utils"
)

const (
	CodeTooManyRequests = 42901
	limiterIdleTTL      = 5 * time.Minute
)

type rateLimiter struct {
	limiter *rate.Limiter
	expires time.Time
}

// UploadThrottle is a per-IP token bucket in front of the upload route. It only smooths
// request bursts; the hourly quotas are enforced by the upload service.
type UploadThrottle struct {
	limit rate.Limit
	burst int

	mu       sync.Mutex
	limiters map[string]*rateLimiter
	now      func() time.Time
}

// NewUploadThrottle allows perMinute requests per IP with bursts of half that.
func NewUploadThrottle(perMinute int) *UploadThrottle {
	perMinute = max(perMinute, 1)
	return &UploadThrottle{
		limit:    rate.Every(time.Minute / time.Duration(perMinute)),
		burst:    max(perMinute/2, 1),
		limiters: map[string]*rateLimiter{},
		now:      time.Now,
	}
}

// Handler returns the gin middleware.
func (t *UploadThrottle) Handler() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		if !t.Allow(ctx.ClientIP()) {
			utils.Error(ctx, http.StatusTooManyRequests, CodeTooManyRequests, "Too many requests. Slow down.")
			ctx.Abort()
			return
		}
		ctx.Next()
	}
}

// Allow takes one token from the bucket of ip.
func (t *UploadThrottle) Allow(ip string) bool {
	now := t.now()
	return t.getLimiter(ip, now).AllowN(now, 1)
}

func (t *UploadThrottle) getLimiter(key string, now time.Time) *rate.Limiter {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.cleanupExpiredLocked(now)

	if l, ok := t.limiters[key]; ok {
		l.expires = now.Add(limiterIdleTTL)
		return l.limiter
	}
	l := &rateLimiter{
		limiter: rate.NewLimiter(t.limit, t.burst),
		expires: now.Add(limiterIdleTTL),
	}
	t.limiters[key] = l
	return l.limiter
}

func (t *UploadThrottle) cleanupExpiredLocked(now time.Time) {
	for key, l := range t.limiters {
		if now.After(l.expires) {
			delete(t.limiters, key)
		}
	}
}
