package middleware

import (
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	apperrors "github.com/classable/classable/pkg/errors"
	"github.com/classable/classable/pkg/response"
)

// RateLimit applies a fixed-window per-IP limit. Used on the public invite
// validation and redemption endpoints to slow down code guessing; the code
// entropy does the real work.
func RateLimit(limit int, window time.Duration) gin.HandlerFunc {
	type bucket struct {
		count   int
		resetAt time.Time
	}

	var (
		mu      sync.Mutex
		buckets = make(map[string]*bucket)
	)

	return func(c *gin.Context) {
		now := time.Now()
		ip := c.ClientIP()

		mu.Lock()
		b, ok := buckets[ip]
		if !ok || now.After(b.resetAt) {
			b = &bucket{resetAt: now.Add(window)}
			buckets[ip] = b
		}
		b.count++
		over := b.count > limit

		// Opportunistic cleanup keeps the map from growing unbounded.
		if len(buckets) > 10000 {
			for key, stale := range buckets {
				if now.After(stale.resetAt) {
					delete(buckets, key)
				}
			}
		}
		mu.Unlock()

		if over {
			response.Error(c, apperrors.ErrRateLimit)
			c.Abort()
			return
		}
		c.Next()
	}
}
