package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"

	"github.com/soraai/credits-bot/internal/chain"
	"github.com/soraai/credits-bot/internal/config"
	"github.com/soraai/credits-bot/internal/httpapi"
	"github.com/soraai/credits-bot/internal/media"
	"github.com/soraai/credits-bot/internal/notifier"
	"github.com/soraai/credits-bot/internal/payment"
	"github.com/soraai/credits-bot/internal/storage"
	"github.com/soraai/credits-bot/internal/telegram"
)

func main() {
	// Setup logger
	log := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(log)

	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Debug("no .env file found")
	}

	// Load config
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Error("invalid config", "error", err)
		os.Exit(1)
	}

	// Initialize storage
	store, err := storage.New(cfg.DBPath, cfg.InitialCredits)
	if err != nil {
		log.Error("init storage", "error", err)
		os.Exit(1)
	}
	defer store.Close()
	log.Info("storage initialized", "path", cfg.DBPath)

	// Initialize chain client and decoder
	chainClient, err := chain.Dial(cfg.NodeRPCURL)
	if err != nil {
		log.Error("connect to node", "error", err)
		os.Exit(1)
	}
	defer chainClient.Close()
	decoder := chain.NewDecoder(common.HexToAddress(cfg.TokenContractAddr))
	log.Info("chain client initialized", "token", cfg.TokenContractAddr)

	// Initialize notifier; the bot is bound below once it exists
	notify := notifier.New(log)

	// Initialize payment monitor
	monitor := payment.NewMonitor(cfg, chainClient, decoder, store, notify, log)

	// Initialize media client
	mediaClient := media.NewClient(cfg.StabilityBaseURL, cfg.StabilityAPIKey)

	// Initialize telegram bot
	bot, err := telegram.New(cfg, store, monitor, mediaClient, log)
	if err != nil {
		log.Error("init telegram bot", "error", err)
		os.Exit(1)
	}
	notify.Bind(bot)
	log.Info("telegram bot initialized")

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Start payment verification workers
	go monitor.Run(ctx, cfg.MonitorWorkers)
	log.Info("payment monitor started", "workers", cfg.MonitorWorkers)

	// Start HTTP server
	httpServer := httpapi.NewServer(chainClient, decoder, common.HexToAddress(cfg.CollectionAddr), log)
	go func() {
		if err := httpServer.Start(ctx, cfg.HTTPPort); err != nil && err != http.ErrServerClosed {
			log.Error("http server", "error", err)
		}
	}()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		log.Info("shutting down...")
		cancel()
	}()

	// Start bot polling
	log.Info("starting bot polling...")
	bot.Start(ctx)
}
