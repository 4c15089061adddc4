// Package main is the entry point for the security service binary. It
// dispatches two subcommands — serve and version — via a simple switch on
// os.Args so the binary's full CLI surface is readable in one place without
// requiring a cobra dependency.
package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/anuraag2601/ai-travel-planner-sub001/internal/api"
	"github.com/anuraag2601/ai-travel-planner-sub001/internal/config"
	"github.com/anuraag2601/ai-travel-planner-sub001/internal/jobs"
	"github.com/anuraag2601/ai-travel-planner-sub001/internal/keys"
	"github.com/anuraag2601/ai-travel-planner-sub001/internal/notify"
	"github.com/anuraag2601/ai-travel-planner-sub001/internal/safego"
	"github.com/anuraag2601/ai-travel-planner-sub001/internal/security"
	"github.com/anuraag2601/ai-travel-planner-sub001/internal/store"
	"github.com/anuraag2601/ai-travel-planner-sub001/internal/telemetry"
)

const (
	version = "0.1.0"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Error: %v\n", err)
	}
}

func run() error {
	// Parse command from args
	command := "serve"
	if len(os.Args) > 1 {
		command = os.Args[1]
	}

	// Load configuration
	configPath := os.Getenv("CONFIG_PATH")
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Execute command
	switch command {
	case "serve":
		return serve(cfg)
	case "version":
		fmt.Printf("Security Service v%s\n", version)
		return nil
	default:
		return fmt.Errorf("unknown command: %s\nAvailable commands: serve, version", command)
	}
}

func serve(cfg *config.Config) error {
	// Initialise structured logger as early as possible so all subsequent log
	// output uses the configured format (json / text) and level.
	telemetry.SetupLogger(cfg.Logging.Format, cfg.Logging.Level)

	// Set Gin mode
	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	// Connect to the backing store. An empty Redis addr selects the in-memory
	// store: single instance only, state lost on restart.
	var (
		st          store.Store
		redisClient *redis.Client
	)
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		redisStore := store.NewRedisStore(redisClient)

		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := redisStore.Ping(pingCtx)
		cancel()
		if err != nil {
			return fmt.Errorf("failed to connect to redis at %s: %w", cfg.Redis.Addr, err)
		}
		slog.Info("connected to redis", "addr", cfg.Redis.Addr, "db", cfg.Redis.DB)
		st = redisStore
	} else {
		slog.Warn("redis.addr is empty, using in-memory store (not for production)")
		st = store.NewMemoryStore()
	}

	// Outbound notification channels. When disabled, the alert sink stays nil
	// and alerts are log-only.
	var (
		notifier    *notify.MultiNotifier
		alertRouter *notify.AlertRouter
		sink        security.AlertSink
	)
	if cfg.Notifications.Enabled {
		var err error
		notifier, err = notify.NewMultiNotifier(cfg.Notifications)
		if err != nil {
			return fmt.Errorf("failed to initialise notification channels: %w", err)
		}
		alertRouter = notify.NewAlertRouter(notifier)
		sink = alertRouter
		slog.Info("notifications enabled", "channels", len(cfg.Notifications.Channels))
	}

	// Assemble the engine: alerts, recorder with inline detectors, the
	// scheduled pattern engine, and the key manager.
	alerts := security.NewAlertManager(st, cfg.Security.Retention(), sink)
	recorder := security.NewRecorder(st, alerts, cfg.Security)
	recorder.RegisterDetector(security.NewFailedLoginDetector(recorder, alerts, cfg.Security.Detectors))
	recorder.RegisterDetector(security.NewHighRiskDetector(alerts, cfg.Security.Detectors))
	recorder.RegisterDetector(security.NewDataAccessDetector(recorder, alerts, cfg.Security.Detectors))

	patternEngine := security.NewPatternEngine(recorder, alerts, security.DefaultPatterns(), cfg.Security.Patterns)
	keyManager := keys.NewManager(st, cfg.APIKeys)

	// Background jobs. jobCtx stops all loops during shutdown.
	jobCtx, stopJobs := context.WithCancel(context.Background())
	defer stopJobs()

	sweeper := jobs.NewPatternSweeper(patternEngine, cfg.Security.Patterns.SweepInterval)
	keyMaintenance := jobs.NewKeyMaintenance(keyManager, cfg.Jobs.KeyMaintenanceInterval, cfg.Jobs.RotationSweepInterval)
	reporter := jobs.NewDailyReporter(recorder, alerts, alertRouter, cfg.Notifications.Enabled, cfg.Jobs.DailyReportInterval)
	snapshot := jobs.NewMetricsSnapshot(recorder, cfg.Jobs.MetricsSnapshotInterval)

	safego.Go(func() { sweeper.Start(jobCtx) })
	safego.Go(func() { keyMaintenance.Start(jobCtx) })
	safego.Go(func() { reporter.Start(jobCtx) })
	safego.Go(func() { snapshot.Start(jobCtx) })

	// Expiry warnings only make sense with somewhere to send them.
	var expiryNotifier *jobs.KeyExpiryNotifier
	if notifier != nil {
		expiryNotifier = jobs.NewKeyExpiryNotifier(keyManager, notifier,
			cfg.Jobs.ExpiryNotifierInterval, cfg.APIKeys.ExpiryWarningDays)
		safego.Go(func() { expiryNotifier.Start(jobCtx) })
	}

	// Start Prometheus metrics endpoint on a dedicated port so it is not
	// reachable through the public API ingress path.
	if cfg.Telemetry.Metrics.Enabled {
		metricsAddr := fmt.Sprintf(":%d", cfg.Telemetry.Metrics.PrometheusPort)
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			slog.Info("starting Prometheus metrics server", "addr", metricsAddr)
			srv := &http.Server{
				Addr:         metricsAddr,
				Handler:      mux,
				ReadTimeout:  10 * time.Second,
				WriteTimeout: 10 * time.Second,
			}
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				slog.Error("metrics server error", "error", err)
			}
		}()
	}

	// Create router
	router := api.NewRouter(cfg, api.Deps{
		Store:       st,
		RedisClient: redisClient,
		Recorder:    recorder,
		Alerts:      alerts,
		Keys:        keyManager,
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         cfg.Server.GetAddress(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server in a goroutine
	go func() {
		slog.Info("starting server",
			"addr", cfg.Server.GetAddress(),
			"retention", cfg.Security.Retention(),
			"rate_limiting", cfg.RateLimiting.Enabled)

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	// Stop background jobs, then flush notification channels
	stopJobs()
	sweeper.Stop()
	keyMaintenance.Stop()
	reporter.Stop()
	snapshot.Stop()
	if expiryNotifier != nil {
		expiryNotifier.Stop()
	}
	if notifier != nil {
		if err := notifier.Close(); err != nil {
			slog.Warn("notification channel close failed", "error", err)
		}
	}

	slog.Info("server stopped gracefully")
	return nil
}
