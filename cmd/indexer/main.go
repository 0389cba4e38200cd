// Package main provides the chain indexer entry point. It polls the
// configured registry deployment for contract logs and maintains the live
// rollups and daily snapshots in Postgres.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/position-scanner/internal/chain"
	"github.com/position-scanner/internal/config"
	"github.com/position-scanner/internal/indexer"
	"github.com/position-scanner/internal/logging"
	"github.com/position-scanner/internal/pricing"
	"github.com/position-scanner/internal/service"
	"github.com/position-scanner/internal/storage"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize structured logging
	logLevel := logging.ParseLogLevel(cfg.Logging.Level)
	logFormat := logging.ParseLogFormat(cfg.Logging.Format)
	logging.InitGlobalLogger(logLevel, logFormat)

	logger := logging.GetGlobalLogger()
	logger.WithFields(map[string]interface{}{
		"chain":    cfg.Chain.Name,
		"registry": cfg.Registry.Registry.Hex(),
	}).Info("Starting indexer")

	// Connect to Postgres
	postgres, err := storage.NewPostgresDB(&cfg.Database.Postgres)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Postgres")
	}
	defer postgres.Close()

	// Connect to Redis
	redis, err := storage.NewRedisCache(&cfg.Database.Redis)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Redis")
	}
	defer redis.Close()

	// Connect to the chain RPC
	client, err := chain.NewClient(&cfg.Chain)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to chain RPC")
	}
	defer client.Close()

	reader := chain.NewReader(client)

	// Initialize repositories
	registryRepo := storage.NewRegistryRepository(postgres)
	accountRepo := storage.NewSmartAccountRepository(postgres)
	positionRepo := storage.NewPositionRepository(postgres)
	strategyRepo := storage.NewStrategyRepository(postgres)
	dailyRepo := storage.NewDailyDataRepository(postgres)
	syncRepo := storage.NewSyncStatusRepository(postgres)
	decimalsCache := storage.NewDecimalsCache(redis)

	// Valuation and aggregation pipeline
	valuer := pricing.NewResolver(reader, cfg.Registry.MasterOracle, cfg.Registry.TokenFeeds, decimalsCache, logger)
	dailyAgg := service.NewDailyAggregator(accountRepo, positionRepo, dailyRepo, valuer, logger)
	liveAgg := service.NewLiveAggregator(registryRepo, accountRepo, positionRepo, dailyRepo, valuer, logger)
	updater := service.NewUpdater(registryRepo, cfg.Registry.Registry, dailyAgg, liveAgg, logger)
	lifecycle := service.NewLifecycle(
		registryRepo,
		accountRepo,
		positionRepo,
		strategyRepo,
		reader,
		valuer,
		updater,
		cfg.Registry.Registry,
		logger,
	)

	poller := indexer.NewPoller(client, lifecycle, syncRepo, positionRepo, cfg, logger)

	// Run until interrupted
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		logger.Info("Shutting down indexer...")
		cancel()
	}()

	if err := poller.Run(ctx); err != nil && err != context.Canceled {
		logger.WithError(err).Fatal("Indexer stopped with error")
	}

	logger.Info("Indexer exited")
}
