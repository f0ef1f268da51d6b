package api

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"parkir-status-backend/config"
	"parkir-status-backend/internal/broadcast"
	"parkir-status-backend/internal/cache"
	"parkir-status-backend/internal/metrics"
	"parkir-status-backend/internal/mw"
)

// StatisticsPath is cached by response and dropped whenever a report commits.
const StatisticsPath = "/api/statistik"

// RouterConfig carries the HTTP-layer settings and shared infrastructure.
type RouterConfig struct {
	Server    config.ServerConfig
	RateLimit config.RateLimitConfig
	CacheTTL  time.Duration
	Backend   cache.Backend
	Hub       *broadcast.Hub
	Metrics   *metrics.Metrics
	Log       *zap.Logger
}

// NewRouter creates and configures a new Gin router.
func NewRouter(h *Handler, rc RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), mw.Logger(rc.Log))
	r.Use(corsMiddleware(rc.Server.AllowedOrigins))

	rateLimiter := mw.RateLimiterFromConfig(rc.RateLimit, rc.Server.RequestIPHeader, rc.Metrics)
	caching := mw.Cache(rc.Backend, rc.CacheTTL, rc.Log)

	// API group
	api := r.Group("/api")
	api.Use(rateLimiter)
	{
		api.GET("/lokasi-parkir", h.GetLocations)
		api.GET("/lokasi-parkir/filter", h.FilterLocations)
		api.POST("/lapor", h.PostReport)
		api.GET("/prediksi/:lokasiId", h.GetPrediction)
		api.GET("/statistik", caching, h.GetStatistics)
		api.GET("/health", h.Health)
		api.GET("/ws", gin.WrapH(broadcast.NewWSHandler(rc.Hub, rc.Server.AllowedOrigins, rc.Log)))

		api.GET("/subscriptions", h.GetSubscription)
		api.PUT("/subscriptions", h.PutSubscription)
		api.DELETE("/subscriptions", h.DeleteSubscription)
		api.GET("/vapid_public_key", h.GetVAPIDPublicKey)
	}

	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(rc.Metrics.Registry, promhttp.HandlerOpts{})))

	for _, route := range r.Routes() {
		rc.Log.Debug("route registered", zap.String("method", route.Method), zap.String("path", route.Path))
	}
	return r
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{"Content-Type", "Authorization"},
		MaxAge:       12 * time.Hour,
	}
	if len(origins) == 0 {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	return cors.New(cfg)
}
