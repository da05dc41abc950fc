package middleware

import (
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/vitalog/points-engine/config"
	"github.com/vitalog/points-engine/utils"
)

const limiterRetention = 5 * time.Minute

type readLimiter struct {
	bucket  *rate.Limiter
	expires time.Time
	mu      sync.Mutex
}

var (
	readLimiters   = map[string]*readLimiter{}
	readLimitersMu sync.Mutex
)

// RateLimitMiddleware applies a token bucket per caller to the read API.
// Authenticated callers are keyed by user id so clients behind a shared
// NAT do not throttle each other; anything else falls back to the client
// IP. The award path is service-to-service and is never rate limited.
func RateLimitMiddleware() gin.HandlerFunc {
	perMinute := max(config.Get().RateLimitPerMinute, 1)
	limit := rate.Every(time.Minute / time.Duration(perMinute))
	burst := max(perMinute/2, 1)

	return func(ctx *gin.Context) {
		l := limiterFor(limiterKey(ctx), limit, burst)

		l.mu.Lock()
		allowed := l.bucket.Allow()
		l.mu.Unlock()

		if !allowed {
			utils.Error(ctx, 429, 42901, "rate limit exceeded")
			ctx.Abort()
			return
		}

		ctx.Next()
	}
}

// limiterKey prefers the JWT identity set by AuthRequired, which runs
// before this middleware on every rate-limited group.
func limiterKey(ctx *gin.Context) string {
	if v, ok := ctx.Get(ContextUserIDKey); ok {
		if id, ok := v.(uint); ok {
			return "user:" + strconv.FormatUint(uint64(id), 10)
		}
	}
	return "ip:" + ctx.ClientIP()
}

func limiterFor(key string, limit rate.Limit, burst int) *readLimiter {
	readLimitersMu.Lock()
	defer readLimitersMu.Unlock()

	now := time.Now()
	for k, l := range readLimiters {
		if now.After(l.expires) {
			delete(readLimiters, k)
		}
	}

	l, ok := readLimiters[key]
	if !ok {
		l = &readLimiter{bucket: rate.NewLimiter(limit, burst)}
		readLimiters[key] = l
	}
	l.expires = now.Add(limiterRetention)
	return l
}
