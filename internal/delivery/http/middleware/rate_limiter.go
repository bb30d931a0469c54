package middleware

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// RateLimiter applique une fenêtre fixe par clé (IP du client).
type RateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	rate     int           // Nombre max de requêtes
	window   time.Duration // Fenêtre temporelle
	now      func() time.Time
}

type visitor struct {
	tokens    int
	lastReset time.Time
}

func NewRateLimiter(maxRequests int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		visitors: make(map[string]*visitor),
		rate:     maxRequests,
		window:   window,
		now:      time.Now,
	}
}

// Run purge les visiteurs expirés jusqu'à l'annulation du contexte.
func (rl *RateLimiter) Run(ctx context.Context) {
	ticker := time.NewTicker(rl.window * 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rl.purge()
		}
	}
}

func (rl *RateLimiter) purge() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	now := rl.now()
	for key, v := range rl.visitors {
		if now.Sub(v.lastReset) > rl.window*2 {
			delete(rl.visitors, key)
		}
	}
}

// Allow consomme un jeton pour key ; en cas de refus, retourne l'attente
// avant la prochaine fenêtre.
func (rl *RateLimiter) Allow(key string) (bool, time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	v, exists := rl.visitors[key]
	if !exists || now.Sub(v.lastReset) > rl.window {
		v = &visitor{tokens: rl.rate, lastReset: now}
		rl.visitors[key] = v
	}
	if v.tokens <= 0 {
		return false, v.lastReset.Add(rl.window).Sub(now)
	}
	v.tokens--
	return true, 0
}

// Middleware limite les requêtes par IP.
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ok, retryAfter := rl.Allow(c.ClientIP())
		if !ok {
			seconds := int(retryAfter.Seconds() + 0.5)
			if seconds < 1 {
				seconds = 1
			}
			c.Header("Retry-After", strconv.Itoa(seconds))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "RATE_LIMITED",
					"message": "too many requests",
					"details": gin.H{"retry_after": seconds},
				},
			})
			return
		}
		c.Next()
	}
}
