package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/yourorg/coinscope/internal/client"
	"github.com/yourorg/coinscope/internal/config"
	"github.com/yourorg/coinscope/internal/events"
	"github.com/yourorg/coinscope/internal/handler"
	"github.com/yourorg/coinscope/internal/ratelimit"
	"github.com/yourorg/coinscope/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to the config file")
	flag.Parse()

	// Load configuration
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Set up logger
	logger, err := createLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Event delivery
	publisher := createPublisher(cfg.Events, logger)
	dispatcher := events.NewDispatcher(publisher, cfg.Events.BufferSize, logger)

	// Upstream client and sessions
	coinGecko := client.NewCoinGeckoClient(cfg.CoinGecko, logger)
	sessions := service.NewSessionManager(coinGecko, dispatcher, cfg.Session, logger)
	sessions.StartReaper(cfg.Session.SweepInterval)
	tokens := service.NewTokenService(cfg.Auth, logger)

	sessionHandler := handler.NewSessionHandler(sessions, tokens, logger)

	limiter, redisClient, err := createLimiter(cfg.RateLimit, logger)
	if err != nil {
		logger.Fatal("Failed to set up rate limiting", zap.Error(err))
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	router := handler.NewRouter(sessionHandler, tokens, limiter, logger)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start the server in a goroutine
	go func() {
		logger.Info("Starting server",
			zap.String("port", cfg.Server.Port),
			zap.String("upstream", cfg.CoinGecko.BaseURL),
			zap.String("publisher", cfg.Events.Publisher))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	// Sessions first so their last reports still reach the dispatcher
	sessions.Shutdown()
	if err := dispatcher.Close(ctx); err != nil {
		logger.Error("Failed to close event publisher", zap.Error(err))
	}

	logger.Info("Server exited properly")
}

func createPublisher(cfg config.EventsConfig, logger *zap.Logger) events.Publisher {
	if cfg.Publisher == "kafka" {
		logger.Info("Publishing events to Kafka",
			zap.Strings("brokers", cfg.Kafka.Brokers),
			zap.String("topic", cfg.Kafka.Topic))
		return events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Kafka.ClientID, cfg.Kafka.MaxElapsedTime, logger)
	}
	return events.NewLogPublisher(logger)
}

// createLimiter returns a nil limiter when rate limiting is disabled. The redis
// client is returned so it can be closed on shutdown.
func createLimiter(cfg config.RateLimitConfig, logger *zap.Logger) (ratelimit.Limiter, *redis.Client, error) {
	if !cfg.Enabled {
		return nil, nil, nil
	}

	if cfg.Backend != "redis" {
		logger.Info("Rate limiting in memory",
			zap.Int("requestsPerMinute", cfg.RequestsPerMinute),
			zap.Int("burst", cfg.BurstSize))
		return ratelimit.NewMemoryLimiter(cfg.RequestsPerMinute, cfg.BurstSize), nil, nil
	}

	opts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		return nil, nil, err
	}
	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, nil, err
	}

	logger.Info("Rate limiting in redis",
		zap.String("addr", opts.Addr),
		zap.Int("requestsPerMinute", cfg.RequestsPerMinute))
	return ratelimit.NewRedisLimiter(rdb, cfg.Redis.KeyPrefix, cfg.RequestsPerMinute), rdb, nil
}

func createLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	// Parse log level
	var zapLevel zap.AtomicLevel
	switch cfg.Level {
	case "debug":
		zapLevel = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "info":
		zapLevel = zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn":
		zapLevel = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		zapLevel = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		zapLevel = zap.NewAtomicLevelAt(zap.InfoLevel)
	}

	encoding := "json"
	if cfg.Format == "console" {
		encoding = "console"
	}

	zapConfig := zap.Config{
		Level:            zapLevel,
		Development:      false,
		Encoding:         encoding,
		EncoderConfig:    zap.NewProductionEncoderConfig(),
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	return zapConfig.Build()
}
