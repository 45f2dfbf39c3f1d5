package middleware

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// UserHeader carries the authenticated user id set by the upstream gateway.
const UserHeader = "X-User-ID"

const userIDKey = "__user_id"

// UserIdentity rejects requests without a user id and stores it on the context.
func UserIdentity() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := strings.TrimSpace(c.GetHeader(UserHeader))
		if userID == "" || len(userID) > 64 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing user id"})
			return
		}
		c.Set(userIDKey, userID)
		c.Next()
	}
}

// UserID returns the id stored by UserIdentity.
func UserID(c *gin.Context) string {
	return c.GetString(userIDKey)
}

type rateLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimit allows perMinute requests per user, with bursts of the same size.
// Zero or less disables the limit.
func RateLimit(perMinute int) gin.HandlerFunc {
	if perMinute <= 0 {
		return func(c *gin.Context) { c.Next() }
	}

	clients := make(map[string]*rateLimiter)
	var mu sync.Mutex

	return func(c *gin.Context) {
		key := UserID(c)
		if key == "" {
			key = c.ClientIP()
		}

		mu.Lock()
		now := time.Now()
		client, exists := clients[key]
		if !exists {
			client = &rateLimiter{limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), perMinute)}
			clients[key] = client
		}
		client.lastSeen = now
		allowed := client.limiter.Allow()

		for id, other := range clients {
			if now.Sub(other.lastSeen) > 30*time.Minute {
				delete(clients, id)
			}
		}
		mu.Unlock()

		if !allowed {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "Too many scans, please wait a moment"})
			return
		}
		c.Next()
	}
}
