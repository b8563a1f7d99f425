package api

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

const rateLimitWindow = time.Hour

// rateLimiter is a per-key sliding window counter. It lives in process
// memory; with multiple API replicas each replica enforces its own share.
type rateLimiter struct {
	mu     sync.Mutex
	limit  int
	window time.Duration
	hits   map[string][]time.Time
	now    func() time.Time
}

func newRateLimiter(limit int, window time.Duration) *rateLimiter {
	return &rateLimiter{
		limit:  limit,
		window: window,
		hits:   make(map[string][]time.Time),
		now:    time.Now,
	}
}

// allow records a hit for key. When the limit is exceeded it returns false
// and how long until the oldest hit ages out.
func (l *rateLimiter) allow(key string) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-l.window)

	kept := l.hits[key][:0]
	for _, hit := range l.hits[key] {
		if hit.After(cutoff) {
			kept = append(kept, hit)
		}
	}

	if len(kept) >= l.limit {
		l.hits[key] = kept
		return false, kept[0].Sub(cutoff)
	}

	l.hits[key] = append(kept, now)
	return true, 0
}

// RateLimitMiddleware limits authenticated requests per agent. It must run
// after AgentAuthMiddleware. A non-positive limit disables it.
func RateLimitMiddleware(limit int) gin.HandlerFunc {
	if limit <= 0 {
		return func(c *gin.Context) {
			c.Next()
		}
	}

	limiter := newRateLimiter(limit, rateLimitWindow)
	return func(c *gin.Context) {
		agent := mustAgentFromContext(c)
		ok, retryAfter := limiter.allow(agent.ID)
		if !ok {
			c.Header("Retry-After", strconv.Itoa(int(retryAfter.Seconds())+1))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, ErrorResponse{
				Message: "rate limit exceeded",
			})
			return
		}
		c.Next()
	}
}
