package httpapi

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	logx "crontask/pkg/logx"
)

func requestLogger(log logx.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug("request",
			logx.String("method", c.Request.Method),
			logx.String("path", c.Request.URL.Path),
			logx.Int("status", c.Writer.Status()),
			logx.Duration("took", time.Since(start)),
			logx.String("client", c.ClientIP()),
		)
	}
}

// rateLimiter applies a token bucket per client IP. Buckets are pruned after
// an hour of inactivity so the map cannot grow without bound.
func rateLimiter(perSec, burst int) gin.HandlerFunc {
	if burst <= 0 {
		burst = perSec
	}

	type client struct {
		lim  *rate.Limiter
		seen time.Time
	}
	var (
		mu      sync.Mutex
		clients = map[string]*client{}
	)

	const staleAfter = time.Hour
	lastPrune := time.Now()

	return func(c *gin.Context) {
		ip := c.ClientIP()
		now := time.Now()

		mu.Lock()
		cl, ok := clients[ip]
		if !ok {
			cl = &client{lim: rate.NewLimiter(rate.Limit(perSec), burst)}
			clients[ip] = cl
		}
		cl.seen = now
		if now.Sub(lastPrune) > staleAfter {
			for k, v := range clients {
				if now.Sub(v.seen) > staleAfter {
					delete(clients, k)
				}
			}
			lastPrune = now
		}
		mu.Unlock()

		if !cl.lim.Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}
