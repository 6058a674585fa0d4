package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aescanero/bago/internal/application/batch"
	"github.com/aescanero/bago/internal/application/correlation"
	"github.com/aescanero/bago/internal/application/permissions"
	"github.com/aescanero/bago/internal/application/ratelimit"
	"github.com/aescanero/bago/internal/config"
	"github.com/aescanero/bago/pkg/adapters/delivery"
	redisevents "github.com/aescanero/bago/pkg/adapters/events/redis"
	"github.com/aescanero/bago/pkg/adapters/metrics/prometheus"
	redisstorage "github.com/aescanero/bago/pkg/adapters/storage/redis"
	"github.com/aescanero/bago/pkg/api/grpc"
	"github.com/aescanero/bago/pkg/api/http"
	"github.com/aescanero/bago/pkg/api/websocket"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// Version is set by build flags
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger := initLogger(cfg.LogLevel)
	defer logger.Sync()

	logger.Info("starting Batch Agent Orchestrator",
		zap.String("version", Version),
		zap.String("build_time", BuildTime))

	// Initialize Redis client
	redisClient := goredis.NewClient(&goredis.Options{
		Addr:         cfg.Redis.Addr,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
		MaxRetries:   cfg.Redis.MaxRetries,
		DialTimeout:  cfg.Redis.DialTimeout,
		ReadTimeout:  cfg.Redis.ReadTimeout,
		WriteTimeout: cfg.Redis.WriteTimeout,
	})

	// Test Redis connection
	ctx := context.Background()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal("failed to connect to Redis", zap.Error(err))
	}
	logger.Info("connected to Redis", zap.String("addr", cfg.Redis.Addr))

	// Initialize adapters
	eventBus, err := redisevents.NewStreamsEventBus(
		redisClient,
		"bago-consumers",
		fmt.Sprintf("bago-%d", os.Getpid()),
		logger,
	)
	if err != nil {
		logger.Fatal("failed to create event bus", zap.Error(err))
	}

	responseStore := redisstorage.NewResponseStore(
		redisClient,
		24*time.Hour, // 24 hour TTL for archived responses
		logger,
	)

	deliverer, err := delivery.NewDeliverer(&delivery.Config{
		Provider:       cfg.Delivery.Provider,
		APIKey:         cfg.Delivery.APIKey,
		Model:          cfg.Delivery.Model,
		MaxTokens:      cfg.Delivery.MaxTokens,
		RequestTimeout: cfg.Delivery.RequestTimeout,
		Logger:         logger,
	})
	if err != nil {
		logger.Fatal("failed to create deliverer", zap.Error(err))
	}

	metricsCollector := prometheus.NewCollector()

	// Initialize application components
	configStore, err := config.NewStore(cfg)
	if err != nil {
		logger.Fatal("failed to load orchestration config", zap.Error(err))
	}

	tracker := correlation.NewTracker(
		cfg.Defaults.MaxPendingResponses,
		cfg.Defaults.ResponseCleanupInterval,
		logger,
	)
	tracker.Start()

	executor := batch.NewExecutor(
		configStore,
		tracker,
		permissions.NewResolver(),
		batch.NewValidator(),
		ratelimit.NewLimiter(cfg.RateLimit),
		eventBus,
		metricsCollector,
		responseStore,
		logger,
	)

	// Initialize API servers
	httpServer := http.NewServer(&http.Config{
		Port:      cfg.HTTPPort,
		Executor:  executor,
		Tracker:   tracker,
		Deliverer: deliverer,
		Responses: responseStore,
		Logger:    logger,
	})

	// Add WebSocket handler to HTTP server
	wsHandler := websocket.NewHandler(eventBus, logger)
	httpServer.SetupWebSocket(wsHandler)

	grpcServer, err := grpc.NewServer(&grpc.Config{
		Port:     cfg.GRPCPort,
		Executor: executor,
		Logger:   logger,
	})
	if err != nil {
		logger.Fatal("failed to create gRPC server", zap.Error(err))
	}

	// Start servers
	go func() {
		if err := httpServer.Start(); err != nil {
			logger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	go func() {
		if err := grpcServer.Start(); err != nil {
			logger.Fatal("gRPC server failed", zap.Error(err))
		}
	}()

	logger.Info("Batch Agent Orchestrator started",
		zap.Int("http_port", cfg.HTTPPort),
		zap.Int("grpc_port", cfg.GRPCPort),
		zap.Int("max_concurrent_batches", cfg.Defaults.MaxConcurrentBatches))

	// Reload project overrides on SIGHUP, shut down on interrupt
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)

	for sig := range sigCh {
		if sig == syscall.SIGHUP {
			if err := configStore.Reload(); err != nil {
				logger.Error("config reload failed", zap.Error(err))
			} else {
				logger.Info("config reloaded")
			}
			continue
		}
		break
	}

	logger.Info("received shutdown signal")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Timeouts.ShutdownTimeout)
	defer cancel()

	// Shutdown components
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}

	if err := grpcServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("gRPC server shutdown error", zap.Error(err))
	}

	if err := executor.Shutdown(shutdownCtx); err != nil {
		logger.Error("batch executor shutdown error", zap.Error(err))
	}

	tracker.Stop()

	if err := redisClient.Close(); err != nil {
		logger.Error("Redis close error", zap.Error(err))
	}

	logger.Info("Batch Agent Orchestrator shut down complete")
}

// initLogger initializes the logger based on log level
func initLogger(level string) *zap.Logger {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "info":
		zapLevel = zapcore.InfoLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	config := zap.NewProductionConfig()
	config.Level = zap.NewAtomicLevelAt(zapLevel)
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := config.Build()
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}

	return logger
}
