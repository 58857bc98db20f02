package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter keeps one token bucket per user (or client IP before authentication).
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*limiterEntry
	requests int
	window   time.Duration
	now      func() time.Time
}

func NewRateLimiter(requests int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		limiters: make(map[string]*limiterEntry),
		requests: requests,
		window:   window,
		now:      time.Now,
	}
}

func (rl *RateLimiter) limiter(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	entry, exists := rl.limiters[key]
	if !exists {
		perSecond := float64(rl.requests) / rl.window.Seconds()
		entry = &limiterEntry{limiter: rate.NewLimiter(rate.Limit(perSecond), rl.requests)}
		rl.limiters[key] = entry
	}
	entry.lastSeen = rl.now()
	return entry.limiter
}

func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.ClientIP()
		if principal, ok := MustPrincipal(c); ok && principal.UserID != "" {
			key = "user:" + principal.UserID
		}

		if !rl.limiter(key).Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"success":   false,
				"message":   "Too many requests, please try again shortly.",
				"retryable": true,
			})
			return
		}
		c.Next()
	}
}

// Prune forgets buckets idle for longer than idle and returns how many were dropped.
func (rl *RateLimiter) Prune(idle time.Duration) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := rl.now().Add(-idle)
	dropped := 0
	for key, entry := range rl.limiters {
		if entry.lastSeen.Before(cutoff) {
			delete(rl.limiters, key)
			dropped++
		}
	}
	return dropped
}
