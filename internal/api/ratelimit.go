package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/rileyhilliard/dozer/internal/clock"
)

// limiterIdle is how long a client's limiter lives without traffic.
const limiterIdle = 10 * time.Minute

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter allows perMinute wake/sleep calls per client IP, with a burst
// of the same size. A zero rate disables it.
type RateLimiter struct {
	mu        sync.Mutex
	limiters  map[string]*clientLimiter
	limit     rate.Limit
	burst     int
	clock     clock.Clock
	lastSweep time.Time
}

// NewRateLimiter creates a limiter for perMinute calls per client.
func NewRateLimiter(perMinute int, clk clock.Clock) *RateLimiter {
	if clk == nil {
		clk = clock.Real()
	}
	rl := &RateLimiter{
		limiters: make(map[string]*clientLimiter),
		burst:    perMinute,
		clock:    clk,
	}
	if perMinute > 0 {
		rl.limit = rate.Every(time.Minute / time.Duration(perMinute))
	}
	return rl
}

// Allow reports whether client may make a call now.
func (rl *RateLimiter) Allow(client string) bool {
	if rl.burst <= 0 {
		return true
	}
	now := rl.clock.Now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	if now.Sub(rl.lastSweep) > limiterIdle {
		for ip, cl := range rl.limiters {
			if now.Sub(cl.lastSeen) > limiterIdle {
				delete(rl.limiters, ip)
			}
		}
		rl.lastSweep = now
	}

	cl, ok := rl.limiters[client]
	if !ok {
		cl = &clientLimiter{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.limiters[client] = cl
	}
	cl.lastSeen = now
	return cl.limiter.AllowN(now, 1)
}

// Middleware rejects over-limit calls with 429.
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !rl.Allow(c.ClientIP()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, APIError{
				Error:   "Rate limit exceeded",
				Details: "Too many wake/sleep requests; try again shortly",
			})
			return
		}
		c.Next()
	}
}
