package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/relaypost/relaypost-backend/internal/api"
	"github.com/relaypost/relaypost-backend/internal/config"
	"github.com/relaypost/relaypost-backend/internal/database"
	"github.com/relaypost/relaypost-backend/internal/provider"
	"github.com/relaypost/relaypost-backend/internal/repository"
	"github.com/relaypost/relaypost-backend/internal/services"
	"github.com/relaypost/relaypost-backend/internal/websocket"
)

func main() {
	// .env is optional; real deployments set the environment directly
	_ = godotenv.Load()

	cfg, err := config.LoadWithValidation()
	if err != nil {
		slog.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.LogLevel),
	}))
	slog.SetDefault(logger)

	logger.Info("starting relaypost backend")
	cfg.LogConfig(logger)

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer database.Close(db)

	if err := database.Migrate(db); err != nil {
		logger.Error("failed to run migrations", slog.Any("error", err))
		os.Exit(1)
	}

	// Repositories
	connectionRepo := repository.NewConnectionRepository(db)
	emailLogRepo := repository.NewEmailLogRepository(db)
	webhookRepo := repository.NewWebhookRepository(db)
	attemptRepo := repository.NewDeliveryAttemptRepository(db)

	// Provider client, with the connection repository persisting refreshed
	// tokens
	providerClient := provider.NewClient(provider.Config{
		BaseURL:           cfg.ProviderBaseURL,
		Topic:             cfg.ProviderTopic,
		OAuthClientID:     cfg.OAuthClientID,
		OAuthClientSecret: cfg.OAuthClientSecret,
		OAuthTokenURL:     cfg.OAuthTokenURL,
	}, connectionRepo, logger)

	// WebSocket hub
	hub := websocket.NewHub(logger)
	go hub.Run()

	// Notification pipeline
	dispatcher := services.NewDispatcher(webhookRepo, attemptRepo, cfg.WebhookTimeout, logger)
	syncEngine := services.NewSyncEngine(connectionRepo, emailLogRepo, providerClient, dispatcher, hub, logger)

	// Watch lifecycle
	watchManager := services.NewWatchManager(connectionRepo, providerClient, services.WatchManagerConfig{
		RenewalThreshold: cfg.WatchRenewalThreshold,
		CheckInterval:    cfg.WatchCheckInterval,
	}, logger)
	watchManager.Start()
	defer watchManager.Stop()

	e := api.NewRouter(&api.RouterConfig{
		DB:             db,
		Provider:       providerClient,
		Processor:      syncEngine,
		Watches:        watchManager,
		Dispatcher:     dispatcher,
		Hub:            hub,
		Logger:         logger,
		APIKey:         cfg.APIKey,
		CronSecret:     cfg.CronSecret,
		AllowedOrigins: cfg.AllowedOrigins,
	})

	go func() {
		addr := fmt.Sprintf(":%d", cfg.APIPort)
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Error("server stopped", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		logger.Error("forced shutdown", slog.Any("error", err))
	}

	logger.Info("server stopped")
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
