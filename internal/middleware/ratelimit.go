package middleware

import (
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/agenciateixeira/t3-sub001/pkg/errors"
	"github.com/agenciateixeira/t3-sub001/pkg/response"
)

const limiterIdleTTL = 10 * time.Minute

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimit allows maxRequests per window for each (caller, route) pair using a token bucket.
// Authenticated callers are keyed by user id, anonymous ones by client IP.
func RateLimit(maxRequests int, window time.Duration) gin.HandlerFunc {
	if maxRequests <= 0 || window <= 0 {
		return func(c *gin.Context) { c.Next() }
	}

	every := rate.Every(window / time.Duration(maxRequests))

	var (
		mu       sync.Mutex
		limiters = make(map[string]*clientLimiter)
		sweptAt  = time.Now()
	)

	return func(c *gin.Context) {
		caller := c.GetString(CtxUserIDKey)
		if caller == "" {
			caller = c.ClientIP()
		}
		key := caller + "|" + c.FullPath()
		now := time.Now()

		mu.Lock()
		if now.Sub(sweptAt) > limiterIdleTTL {
			for k, v := range limiters {
				if now.Sub(v.lastSeen) > limiterIdleTTL {
					delete(limiters, k)
				}
			}
			sweptAt = now
		}
		entry, ok := limiters[key]
		if !ok {
			entry = &clientLimiter{limiter: rate.NewLimiter(every, maxRequests)}
			limiters[key] = entry
		}
		entry.lastSeen = now
		reservation := entry.limiter.ReserveN(now, 1)
		delay := reservation.DelayFrom(now)
		if delay > 0 {
			reservation.CancelAt(now)
		}
		remaining := int(math.Max(0, math.Floor(entry.limiter.TokensAt(now))))
		mu.Unlock()

		c.Header("X-RateLimit-Limit", strconv.Itoa(maxRequests))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))

		if delay > 0 {
			c.Header("Retry-After", strconv.Itoa(int(math.Ceil(delay.Seconds()))))
			response.Error(c, errors.ErrRateLimit)
			c.Abort()
			return
		}

		c.Next()
	}
}
