package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"coinex-trade-bot-go/internal/config"
	"coinex-trade-bot-go/internal/engine"
	"coinex-trade-bot-go/internal/exchange/coinex"
	"coinex-trade-bot-go/internal/logger"
	"coinex-trade-bot-go/internal/store"
)

func main() {
	// Load application configuration
	cfg, err := config.LoadConfig("./configs")
	if err != nil {
		// We can't use the logger here because it's not initialized yet.
		panic(fmt.Sprintf("could not load config: %v", err))
	}

	// Initialize logger
	log, err := logger.NewLogger(cfg.Logger.Level, cfg.Logger.Format)
	if err != nil {
		panic(err)
	}
	defer log.Sync()
	log.Info("Configuration loaded",
		zap.String("label", cfg.Label),
		zap.String("exchange", cfg.Exchange),
		zap.String("pair", cfg.Pair))

	// Initialize database
	db, err := store.Open(cfg.Database.DSN)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	log.Info("Database connection successful and schema migrated.")

	orders := store.NewOrderRepository(db)
	executed := store.NewExecutedRepository(db)
	cursors := store.NewFillCursorRepository(db)

	// Initialize CoinEx client and adapter
	client := coinex.NewClient(cfg.Client, cfg.Trading.RateLimit, cfg.Trading.RateLimitBurst, log)
	adapter := coinex.NewAPI(&cfg, client, orders, log)

	// Setup context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		sigchan := make(chan os.Signal, 1)
		signal.Notify(sigchan, syscall.SIGINT, syscall.SIGTERM)
		<-sigchan
		log.Info("Shutdown signal received, gracefully shutting down...")
		cancel()
	}()

	// Initialize and run the trading engine
	tradeEngine := engine.New(log, &cfg, adapter, engine.Collaborators{
		Orders:   orders,
		Executed: executed,
		Cursors:  cursors,
	})
	tradeEngine.Run(ctx)

	log.Info("Bot has been shut down.")
}
