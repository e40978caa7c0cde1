package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/roblox-funapp/internal/assets"
	"github.com/roblox-funapp/internal/config"
	"github.com/roblox-funapp/internal/handler"
	"github.com/roblox-funapp/internal/kafka"
	"github.com/roblox-funapp/internal/llm"
	"github.com/roblox-funapp/internal/patch"
	"github.com/roblox-funapp/internal/prompt"
	"github.com/roblox-funapp/internal/roblox"
	"github.com/roblox-funapp/internal/service"
	"github.com/roblox-funapp/internal/session"
	"github.com/roblox-funapp/internal/websocket"
	"github.com/roblox-funapp/internal/worker"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	flag.Parse()

	// Setup structured logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Warn("failed to load config file, using defaults", "error", err)
		cfg = config.DefaultConfig()
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Load the base game every session renders from
	gameText, err := assets.LoadGame(cfg.Game.BasePath)
	if err != nil {
		logger.Error("failed to load base game", "path", cfg.Game.BasePath, "error", err)
		os.Exit(1)
	}
	baseGame := patch.Parse(gameText)
	for _, slot := range []patch.Slot{patch.SlotConfig, patch.SlotObstacles, patch.SlotPowerUps, patch.SlotCustomCode} {
		if err := baseGame.Err(slot); err != nil {
			logger.Warn("base game slot unavailable, edits to it will be skipped", "slot", slot.String(), "error", err)
		}
	}

	// Initialize the language model provider
	provider, err := llm.New(ctx, &cfg.LLM, logger)
	if err != nil {
		logger.Error("failed to initialize LLM provider", "provider", cfg.LLM.Provider, "error", err)
		os.Exit(1)
	}
	if closer, ok := provider.(io.Closer); ok {
		defer closer.Close()
	}
	logger.Info("LLM provider initialized", "provider", cfg.LLM.Provider, "chat_model", cfg.LLM.ChatModel)

	// Initialize Roblox client with its profile cache
	profileCache := roblox.NewProfileCache(cfg.Roblox.CacheTTL, cfg.Roblox.CacheMaxEntries, nil)
	robloxClient := roblox.NewClient(&cfg.Roblox, profileCache, logger)

	// Initialize WebSocket hub
	wsHub := websocket.NewHub(logger)
	go wsHub.Run()
	logger.Info("WebSocket hub initialized")

	// Initialize services
	sessions := session.NewStore(&cfg.Session, logger, nil)
	funService := service.NewFunService(
		robloxClient,
		prompt.NewComposer(&cfg.LLM),
		provider,
		sessions,
		baseGame,
		wsHub,
		logger,
	)

	// Start session janitor
	janitor := worker.NewJanitor(sessions, &cfg.Session, logger)
	if cfg.Session.SweepEnabled {
		if err := janitor.Start(ctx); err != nil {
			logger.Error("failed to start session janitor", "error", err)
			os.Exit(1)
		}
	}

	// Initialize Kafka consumer for game edit intents
	var kafkaConsumer *kafka.Consumer
	if cfg.Kafka.Enabled {
		logger.Info("initializing Kafka consumer",
			"brokers", cfg.Kafka.Brokers,
			"topic", cfg.Kafka.Topic,
		)
		var err error
		kafkaConsumer, err = kafka.NewConsumer(&cfg.Kafka, funService, logger)
		if err != nil {
			logger.Warn("failed to create Kafka consumer, continuing without Kafka", "error", err)
		} else {
			if err := kafkaConsumer.Start(); err != nil {
				logger.Warn("failed to start Kafka consumer, continuing without Kafka", "error", err)
				kafkaConsumer = nil
			} else {
				logger.Info("Kafka consumer started successfully")
			}
		}
	}

	// Initialize HTTP handler with WebSocket hub
	httpHandler := handler.NewHandler(funService, wsHub, logger)

	// Create HTTP server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      httpHandler.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server in goroutine
	go func() {
		logger.Info("starting HTTP server", "port", cfg.Server.Port)
		logger.Info("game reload WebSocket available at /ws/game-session")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	// Create shutdown context with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	// Stop WebSocket hub
	wsHub.Stop()

	// Stop Kafka consumer
	if kafkaConsumer != nil {
		if err := kafkaConsumer.Stop(); err != nil {
			logger.Error("failed to stop Kafka consumer", "error", err)
		}
	}

	// Stop session janitor
	if err := janitor.Stop(); err != nil {
		logger.Error("failed to stop session janitor", "error", err)
	}

	// Shutdown HTTP server
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown server", "error", err)
	}

	logger.Info("server stopped")
}
