package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"parkir-status-backend/config"
	"parkir-status-backend/internal/api"
	"parkir-status-backend/internal/broadcast"
	"parkir-status-backend/internal/cache"
	"parkir-status-backend/internal/db"
	"parkir-status-backend/internal/logging"
	"parkir-status-backend/internal/metrics"
	"parkir-status-backend/internal/mw"
	"parkir-status-backend/internal/notification"
	"parkir-status-backend/internal/prediction"
	"parkir-status-backend/internal/report"
	"parkir-status-backend/internal/store"
)

func main() {
	// Load configuration
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config/config.yaml" // Default path for local development
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration from %s: %v\n", configPath, err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format, "parkird")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()
	logger.Info("configuration loaded", zap.String("path", configPath), zap.String("mode", cfg.Server.Mode))

	if cfg.Server.Production() {
		gin.SetMode(gin.ReleaseMode)
	}

	tz, err := time.LoadLocation(cfg.Server.Timezone)
	if err != nil {
		logger.Fatal("invalid timezone", zap.String("timezone", cfg.Server.Timezone), zap.Error(err))
	}

	// Initialize database
	gormDB, err := db.Init(&cfg.Database, logger)
	if err != nil {
		logger.Fatal("failed to initialize database", zap.Error(err))
	}
	appStore := store.NewGormStore(gormDB, cfg.Database.QueryTimeout)

	m := metrics.New()

	backend, closeBackend, err := newCacheBackend(cfg.Cache)
	if err != nil {
		logger.Fatal("failed to initialize cache", zap.String("driver", cfg.Cache.Driver), zap.Error(err))
	}
	defer closeBackend()
	listing := cache.NewListing(backend, appStore, cfg.Cache.TTL, logger, m,
		cache.WithDependentKeys(mw.CacheKey(api.StatisticsPath)))
	logger.Info("cache initialized", zap.String("backend", backend.Name()), zap.Duration("ttl", cfg.Cache.TTL))

	var sinks []broadcast.Sink
	if cfg.Broadcast.MQTT.Enabled {
		sink, err := broadcast.NewMQTTSink(cfg.Broadcast.MQTT)
		if err != nil {
			logger.Fatal("failed to connect MQTT sink", zap.Error(err))
		}
		defer sink.Close()
		sinks = append(sinks, sink)
		logger.Info("mirroring broadcasts to MQTT", zap.String("topic", cfg.Broadcast.MQTT.Topic))
	}
	hub := broadcast.NewHub(appStore, cfg.Broadcast.SendBuffer, logger, m, sinks...)

	// Create a context that can be cancelled
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var webpushOptions *webpush.Options
	var notifier *notification.WorkerPool
	reportOpts := []report.Option{}
	if cfg.Push.Enabled {
		if cfg.Push.PublicKey == "" || cfg.Push.PrivateKey == "" {
			logger.Fatal("push is enabled but VAPID keys are not configured")
		}
		webpushOptions = &webpush.Options{
			VAPIDPublicKey:  cfg.Push.PublicKey,
			VAPIDPrivateKey: cfg.Push.PrivateKey,
			Subscriber:      cfg.Push.Subject,
			TTL:             cfg.Push.TTL,
		}
		var poolOpts []notification.Option
		if cfg.WorkerPool.SendsPerSecond > 0 {
			poolOpts = append(poolOpts, notification.WithSendRate(rate.Limit(cfg.WorkerPool.SendsPerSecond), cfg.WorkerPool.Size))
		}
		notifier = notification.NewWorkerPool(cfg.WorkerPool.Size, appStore, webpushOptions, logger, poolOpts...)
		notifier.Start(ctx)
		reportOpts = append(reportOpts, report.WithNotifier(notifier))
		logger.Info("push notifications enabled", zap.Int("workers", cfg.WorkerPool.Size))
	}
	reports := report.NewService(appStore, listing, hub, logger, m, reportOpts...)

	scorer := prediction.NewProcessScorer(cfg.Prediction.Command, cfg.Prediction.Args, cfg.Prediction.Dir)
	bridge := prediction.NewBridge(scorer, cfg.Prediction, logger, m)
	bridge.Start(ctx)

	handler := api.NewHandler(api.Dependencies{
		Store:     appStore,
		Listing:   listing,
		Reports:   reports,
		Predictor: bridge,
		WebPush:   webpushOptions,
		Policy:    api.ErrorPolicy{Production: cfg.Server.Production()},
		Location:  tz,
		Log:       logger,
	})
	router := api.NewRouter(handler, api.RouterConfig{
		Server:    cfg.Server,
		RateLimit: cfg.RateLimit,
		CacheTTL:  cfg.Cache.TTL,
		Backend:   backend,
		Hub:       hub,
		Metrics:   m,
		Log:       logger,
	})
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Start the server in a goroutine
	go func() {
		logger.Info("HTTP server starting", zap.Int("port", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP server ListenAndServe", zap.Error(err))
		}
	}()

	// Setup signal handling for graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	// Block until a signal is received.
	<-stop
	logger.Info("shutdown signal received, stopping services")

	// Create a deadline to wait for.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	// Live connections are hijacked and not tracked by Shutdown.
	hub.Close()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server Shutdown", zap.Error(err))
	}

	cancel()
	bridge.Wait()
	if notifier != nil {
		notifier.Wait()
	}

	logger.Info("server gracefully stopped")
}

func newCacheBackend(cfg config.CacheConfig) (cache.Backend, func(), error) {
	switch cfg.Driver {
	case "memory":
		return cache.NewMemoryBackend(cfg.TTL), func() {}, nil
	case "redis":
		backend, err := cache.NewRedisBackendFromURL(cfg.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		return backend, func() { _ = backend.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unsupported cache driver %q", cfg.Driver)
	}
}
