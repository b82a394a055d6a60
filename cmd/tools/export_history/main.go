package main

import (
	"bytes"
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/yourorg/coinscope/internal/client"
	"github.com/yourorg/coinscope/internal/config"
	"github.com/yourorg/coinscope/internal/export"
	"github.com/yourorg/coinscope/internal/model"
	"github.com/yourorg/coinscope/internal/storage"

	"go.uber.org/zap"
)

func main() {
	coinID := flag.String("coin", "", "CoinGecko coin id, e.g. bitcoin")
	days := flag.Int("days", model.DefaultChartPeriod, "window in days (7, 30, 90, 180 or 365)")
	configPath := flag.String("config", "config/config.yaml", "path to the config file")
	flag.Parse()

	if *coinID == "" {
		log.Fatal("-coin is required")
	}
	if !model.IsChartPeriod(*days) {
		log.Fatalf("-days must be one of %v", model.ChartPeriods)
	}

	// Load configuration
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Set up logger
	logger, err := createLogger(cfg.Logging.Level)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	store, err := storage.NewStorage(cfg.Export.Storage)
	if err != nil {
		logger.Fatal("Failed to create storage", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	coinGecko := client.NewCoinGeckoClient(cfg.CoinGecko, logger)

	location, err := exportHistory(ctx, coinGecko, store, model.Coin{ID: *coinID}, *days, logger)
	if err != nil {
		logger.Fatal("Export failed", zap.String("coinID", *coinID), zap.Error(err))
	}

	logger.Info("Export written",
		zap.String("coinID", *coinID),
		zap.Int("days", *days),
		zap.String("location", location))
}

func exportHistory(
	ctx context.Context,
	coinGecko *client.CoinGeckoClient,
	store storage.Storage,
	coin model.Coin,
	days int,
	logger *zap.Logger,
) (string, error) {
	history, err := coinGecko.FetchHistory(ctx, coin.ID)
	if err != nil {
		return "", err
	}

	window := history.Window(days)
	logger.Info("History fetched",
		zap.String("coinID", coin.ID),
		zap.Int("points", len(history.Prices)),
		zap.Int("windowPoints", len(window.Prices)))

	var buf bytes.Buffer
	if err := export.WriteHistoryCSV(&buf, coin, window); err != nil {
		return "", err
	}

	return store.Store(ctx, export.ObjectKey(coin, days, time.Now()), export.ContentType, &buf)
}

func createLogger(level string) (*zap.Logger, error) {
	var zapLevel zap.AtomicLevel
	switch level {
	case "debug":
		zapLevel = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "warn":
		zapLevel = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		zapLevel = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		zapLevel = zap.NewAtomicLevelAt(zap.InfoLevel)
	}

	zapConfig := zap.Config{
		Level:            zapLevel,
		Development:      false,
		Encoding:         "console",
		EncoderConfig:    zap.NewDevelopmentEncoderConfig(),
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
	}

	return zapConfig.Build()
}
