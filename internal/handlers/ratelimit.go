package handlers

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/imrishuroy/go-scoped-orderflow/internal/auth"
)

const (
	limiterSweepEvery = 5 * time.Minute
	limiterIdleAfter  = 30 * time.Minute
)

type principalLimiter struct {
	limiter *rate.Limiter
	last    atomic.Int64 // unix nanos of the last request
}

// RateLimiter keeps one token bucket per principal. It must run after
// auth.Authenticate; requests without a principal fall back to the client IP.
type RateLimiter struct {
	rps      rate.Limit
	burst    int
	limiters sync.Map // map[string]*principalLimiter
}

func NewRateLimiter(rps float64, burst int) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{rps: rate.Limit(rps), burst: burst}
}

func (rl *RateLimiter) get(key string) *principalLimiter {
	if v, ok := rl.limiters.Load(key); ok {
		return v.(*principalLimiter)
	}
	v, _ := rl.limiters.LoadOrStore(key, &principalLimiter{limiter: rate.NewLimiter(rl.rps, rl.burst)})
	return v.(*principalLimiter)
}

// Middleware answers 429 once a principal exceeds its bucket. A non-positive
// rate disables limiting.
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if rl.rps <= 0 {
			c.Next()
			return
		}
		key := c.ClientIP()
		if p, ok := auth.PrincipalFrom(c); ok {
			key = p.ID
		}
		pl := rl.get(key)
		pl.last.Store(time.Now().UnixNano())
		if !pl.limiter.Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":   "rate_limited",
				"message": "rate limit exceeded",
			})
			return
		}
		c.Next()
	}
}

// Run drops idle buckets until ctx is done.
func (rl *RateLimiter) Run(ctx context.Context) {
	t := time.NewTicker(limiterSweepEvery)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			rl.sweep(now)
		}
	}
}

func (rl *RateLimiter) sweep(now time.Time) {
	rl.limiters.Range(func(key, val any) bool {
		if now.Sub(time.Unix(0, val.(*principalLimiter).last.Load())) > limiterIdleAfter {
			rl.limiters.Delete(key)
		}
		return true
	})
}
