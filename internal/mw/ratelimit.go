package mw

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"

	"parkir-status-backend/config"
	"parkir-status-backend/internal/metrics"
)

// RateLimitedMessage is returned to clients over the limit.
const RateLimitedMessage = "Terlalu banyak permintaan, coba lagi nanti"

// WindowLimiter counts requests per client in fixed windows. A client's
// window opens with its first request; the counter expires with the window,
// which also evicts idle clients.
type WindowLimiter struct {
	clients *cache.Cache
	mu      sync.Mutex
	window  time.Duration
	limit   int
}

// NewWindowLimiter admits at most limit requests per client within window.
func NewWindowLimiter(window time.Duration, limit int) *WindowLimiter {
	if limit <= 0 {
		limit = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &WindowLimiter{
		clients: cache.New(window, window),
		window:  window,
		limit:   limit,
	}
}

// Allow counts one request for key and reports whether it is within the cap.
// Rejected requests are counted too.
func (l *WindowLimiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	// Add fails while the client's window is still open.
	_ = l.clients.Add(key, 0, l.window)
	n, err := l.clients.IncrementInt(key, 1)
	if err != nil {
		// The window closed between Add and IncrementInt.
		l.clients.Set(key, 1, l.window)
		n = 1
	}
	return n <= l.limit
}

// Clients returns the number of clients with an open window.
func (l *WindowLimiter) Clients() int {
	return l.clients.ItemCount()
}

// RateLimiter is a middleware for per-client rate limiting. When ipHeader is
// set, its first value identifies the client instead of the peer address.
func RateLimiter(limiter *WindowLimiter, ipHeader string, m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !limiter.Allow(clientKey(c, ipHeader)) {
			m.RateLimitedTotal.Inc()
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": RateLimitedMessage})
			return
		}
		c.Next()
	}
}

// RateLimiterFromConfig builds the limiter and middleware from configuration.
func RateLimiterFromConfig(cfg config.RateLimitConfig, ipHeader string, m *metrics.Metrics) gin.HandlerFunc {
	return RateLimiter(NewWindowLimiter(cfg.Window, cfg.MaxRequests), ipHeader, m)
}

func clientKey(c *gin.Context, ipHeader string) string {
	if ipHeader != "" {
		if v := c.GetHeader(ipHeader); v != "" {
			first, _, _ := strings.Cut(v, ",")
			if first = strings.TrimSpace(first); first != "" {
				return first
			}
		}
	}
	return c.ClientIP()
}
