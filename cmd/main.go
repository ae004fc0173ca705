package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"canteen/internal/api"
	"canteen/internal/config"
	"canteen/internal/database"
	"canteen/internal/events"
	"canteen/internal/lock"
	"canteen/internal/monitoring"
	"canteen/internal/ordering"
	"canteen/internal/store"
	"canteen/internal/sweeper"

	"github.com/gin-gonic/gin"
)

var (
	port        = flag.Int("port", 0, "API server port (overrides config)")
	metricsPort = flag.Int("metrics-port", 0, "Metrics server port (overrides config, 0 keeps it)")
	configFile  = flag.String("config", "configs/config.yaml", "Path to configuration file")
)

func main() {
	flag.Parse()

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

// run wires the service and blocks until the API server stops. Returning
// instead of exiting lets the deferred closes flush Kafka and release the
// database and redis connections.
func run() error {
	// Load configuration
	cfg, err := config.Load(*configFile)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *metricsPort != 0 {
		cfg.Server.MetricsPort = *metricsPort
	}

	logger := setupLogger(cfg.LogLevel)
	slog.SetDefault(logger)
	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Initialize context
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize database
	db, err := database.Open(cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to initialize %s database: %w", cfg.Database.Driver, err)
	}
	defer database.Close(db)
	if err := database.Migrate(db); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	metrics := monitoring.NewMetrics()
	hub := events.NewHub(logger, allowOrigins(cfg.Server.CORSOrigins))

	// Order events go to websocket subscribers and, when configured, Kafka
	publishers := events.Multi{hub}
	if len(cfg.Kafka.Brokers) > 0 {
		kafkaPub := events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic, logger)
		defer func() {
			if err := kafkaPub.Close(); err != nil {
				logger.Error("Failed to flush Kafka publisher", "error", err)
			}
		}()
		publishers = append(publishers, kafkaPub)
		logger.Info("Publishing order events to Kafka", "brokers", cfg.Kafka.Brokers, "topic", cfg.Kafka.Topic)
	}

	svc := ordering.NewService(store.New(db),
		ordering.WithExpiry(cfg.Ordering.Expiry),
		ordering.WithPublisher(publishers),
		ordering.WithMetrics(metrics),
		ordering.WithLogger(logger),
	)

	// Start expiry sweeper
	var locker lock.Locker = lock.Noop{}
	if cfg.Redis.URL != "" {
		redisLocker, err := lock.NewRedisLocker(cfg.Redis.URL)
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		defer redisLocker.Close()
		locker = redisLocker
	}
	sw := sweeper.New(svc, cfg.Ordering.SweepInterval,
		sweeper.WithLocker(locker),
		sweeper.WithMetrics(metrics),
		sweeper.WithLogger(logger),
	)
	go sw.Run(ctx)

	// Initialize API server
	canteen := api.NewCanteenAPI(svc, hub, metrics, cfg.Server, logger)

	// Start metrics server
	var metricsServer *http.Server
	if cfg.Server.MetricsPort > 0 {
		metricsServer = startMetricsServer(cfg.Server.MetricsPort, metrics, logger)
	}

	// Start API server
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           canteen.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown
	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		select {
		case <-sigChan:
		case <-ctx.Done():
			return
		}

		logger.Info("Shutting down servers...")
		cancel() // stop the sweeper

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("API server shutdown error", "error", err)
		}
		if metricsServer != nil {
			if err := metricsServer.Shutdown(shutdownCtx); err != nil {
				logger.Error("Metrics server shutdown error", "error", err)
			}
		}
	}()

	logger.Info("Starting API server", "port", cfg.Server.Port, "expiry", cfg.Ordering.Expiry)
	if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		if metricsServer != nil {
			metricsServer.Close()
		}
		return fmt.Errorf("API server error: %w", err)
	}
	<-shutdownDone
	return nil
}

func setupLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}

// allowOrigins lets browsers on the configured origins open order streams
func allowOrigins(origins []string) func(*http.Request) bool {
	if len(origins) == 0 {
		return nil
	}
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		allowed[o] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || allowed["*"] || allowed[origin]
	}
}

func startMetricsServer(port int, metrics *monitoring.Metrics, logger *slog.Logger) *http.Server {
	metricsRouter := gin.New()
	metricsRouter.Use(gin.Recovery())
	metricsRouter.GET("/metrics", gin.WrapH(metrics.Handler()))

	metricsServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: metricsRouter,
	}

	go func() {
		logger.Info("Starting metrics server", "port", port)
		if err := metricsServer.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("Metrics server error", "error", err)
		}
	}()
	return metricsServer
}
