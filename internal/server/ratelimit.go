package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/time/rate"
)

const (
	rateLimitEntries  = 8192
	rateLimitEntryTTL = 15 * time.Minute
)

// userRateLimiter hands out one token bucket per user. Idle buckets expire so
// the table stays bounded.
type userRateLimiter struct {
	limit   rate.Limit
	burst   int
	buckets *expirable.LRU[string, *rate.Limiter]
}

func newUserRateLimiter(perMinute, burst int) *userRateLimiter {
	if perMinute <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = 1
	}
	return &userRateLimiter{
		limit:   rate.Every(time.Minute / time.Duration(perMinute)),
		burst:   burst,
		buckets: expirable.NewLRU[string, *rate.Limiter](rateLimitEntries, nil, rateLimitEntryTTL),
	}
}

func (l *userRateLimiter) allow(key string) bool {
	if l == nil || key == "" {
		return true
	}
	limiter, ok := l.buckets.Get(key)
	if !ok {
		limiter = rate.NewLimiter(l.limit, l.burst)
		// A concurrent first request may also add one; the later Add wins and
		// at most one extra token is granted.
		l.buckets.Add(key, limiter)
	}
	return limiter.Allow()
}

// rateLimitMiddleware runs after authMiddleware and keys on the user id.
func (a *App) rateLimitMiddleware() gin.HandlerFunc {
	limiter := newUserRateLimiter(a.cfg.RateLimitPerMinute, a.cfg.RateLimitBurst)
	return func(c *gin.Context) {
		user, ok := authUserFromContext(c)
		if ok && !limiter.allow("user:"+user.ID) {
			writeError(c, http.StatusTooManyRequests, "Too many requests, please slow down")
			return
		}
		c.Next()
	}
}
