// Package ratelimit throttles abuse-prone public endpoints per client IP.
package ratelimit

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	apierrors "github.com/casaolivo/bnb-server/internal/errors"
	"github.com/casaolivo/bnb-server/internal/logger"
)

type client struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Limiter keeps one token bucket per key and forgets keys idle longer than
// the idle timeout.
type Limiter struct {
	scope string
	rate  rate.Limit
	burst int
	idle  time.Duration

	mu      sync.Mutex
	clients map[string]*client
	now     func() time.Time
}

// PerHour builds a limiter allowing n requests per hour per key, all of them
// usable in a burst.
func PerHour(scope string, n int) *Limiter {
	if n < 1 {
		n = 1
	}
	return New(scope, rate.Limit(float64(n)/3600), n, 2*time.Hour)
}

func New(scope string, r rate.Limit, burst int, idle time.Duration) *Limiter {
	return &Limiter{
		scope:   scope,
		rate:    r,
		burst:   burst,
		idle:    idle,
		clients: make(map[string]*client),
		now:     time.Now,
	}
}

// Allow takes a token for key. When none is left it returns how long until
// the next one.
func (l *Limiter) Allow(key string) (bool, time.Duration) {
	now := l.now()

	l.mu.Lock()
	c, ok := l.clients[key]
	if !ok {
		c = &client{limiter: rate.NewLimiter(l.rate, l.burst)}
		l.clients[key] = c
	}
	c.lastSeen = now
	l.mu.Unlock()

	r := c.limiter.ReserveN(now, 1)
	if !r.OK() {
		return false, l.idle
	}
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		return false, delay
	}
	return true, 0
}

// Evict drops keys not seen within the idle timeout and returns how many.
func (l *Limiter) Evict() int {
	cutoff := l.now().Add(-l.idle)
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for key, c := range l.clients {
		if c.lastSeen.Before(cutoff) {
			delete(l.clients, key)
			n++
		}
	}
	return n
}

// Size is the number of tracked keys.
func (l *Limiter) Size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.clients)
}

// Run evicts idle keys every interval until ctx ends.
func (l *Limiter) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Evict()
		}
	}
}

// Middleware rejects requests over the limit with 429 and Retry-After.
func (l *Limiter) Middleware(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		ok, wait := l.Allow(ip)
		if !ok {
			log.WithContext(c.Request.Context()).Warn("rate limit exceeded",
				"scope", l.scope, "client_ip", ip, "path", c.FullPath())
			apierrors.AbortWithRateLimit(c, apierrors.TooManyRequests(l.scope, int(math.Ceil(wait.Seconds()))))
			return
		}
		c.Next()
	}
}
