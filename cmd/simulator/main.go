package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"investafrik-messaging/internal/config"
	"investafrik-messaging/internal/database"
	"investafrik-messaging/internal/logging"
	"investafrik-messaging/simulator"
)

func main() {
	defaults := simulator.DefaultConfig()
	pairs := flag.Int("pairs", defaults.NumPairs, "number of conversations to drive")
	messages := flag.Int("messages", defaults.MessagesPerUser, "maximum messages per user")
	interval := flag.Duration("interval", defaults.SendInterval, "pause between messages from one user")
	settle := flag.Duration("settle", defaults.SettleTimeout, "how long to wait for deliveries")
	engineURL := flag.String("engine", defaults.EngineURL, "engine WebSocket base URL")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	logger := logging.Setup(cfg.LogLevel)

	// Counters are read back from the engine's store, so the simulator has
	// to share it.
	if cfg.Database.Type == config.StoreTypeMemory {
		logger.Error("the simulator needs the engine's postgres or mongo store; DB_TYPE=memory is process local")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := database.Open(ctx, cfg.Database, logger)
	if err != nil {
		logger.Error("open store", "error", err)
		os.Exit(1)
	}
	defer store.Close(context.Background())

	simCfg := defaults
	simCfg.NumPairs = *pairs
	simCfg.MessagesPerUser = *messages
	simCfg.SendInterval = *interval
	simCfg.SettleTimeout = *settle
	simCfg.EngineURL = *engineURL
	simCfg.JWTSecret = cfg.Auth.JWTSecret
	simCfg.JWTIssuer = cfg.Auth.JWTIssuer

	report, err := simulator.NewSimulator(simCfg, store, logger).Run(ctx)
	if err != nil {
		logger.Error("simulation failed", "error", err)
		os.Exit(1)
	}

	logger.Info("simulation completed",
		"pairs", report.Pairs,
		"sent", report.MessagesSent,
		"delivered", report.Delivered,
		"errors", report.Errors,
		"avg_latency", report.AverageLatency,
		"duration", report.Duration.Round(time.Millisecond))
	for _, m := range report.Mismatches {
		logger.Error("unread counter mismatch", "conversation", m.ConversationID, "user", m.UserID, "expected", m.Expected, "stored", m.Stored)
	}
	if !report.Consistent() {
		os.Exit(2)
	}
}
