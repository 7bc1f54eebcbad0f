package api

import (
	"log/slog"

	"github.com/labstack/echo/v4"
	"github.com/relaypost/relaypost-backend/internal/api/handlers"
	"github.com/relaypost/relaypost-backend/internal/api/middleware"
	"github.com/relaypost/relaypost-backend/internal/provider"
	"github.com/relaypost/relaypost-backend/internal/repository"
	"github.com/relaypost/relaypost-backend/internal/services"
	"github.com/relaypost/relaypost-backend/internal/websocket"
	"gorm.io/gorm"
)

// RouterConfig holds dependencies for the router
type RouterConfig struct {
	DB         *gorm.DB
	Provider   provider.Client
	Processor  handlers.NotificationProcessor
	Watches    *services.WatchManager
	Dispatcher services.EventDispatcher
	Hub        *websocket.Hub
	Logger     *slog.Logger
	// Security configuration
	APIKey         string   // API key for authentication (empty = disabled)
	CronSecret     string   // Shared secret for scheduler endpoints
	AllowedOrigins []string // Allowed CORS and websocket origins
}

// NewRouter creates and configures the Echo router with all routes
func NewRouter(cfg *RouterConfig) *echo.Echo {
	e := echo.New()
	e.HideBanner = true

	e.Use(middleware.Recover())
	e.Use(middleware.CORS(cfg.AllowedOrigins))
	if cfg.Logger != nil {
		e.Use(middleware.RequestLogger(cfg.Logger))
	}

	// Initialize repositories
	connectionRepo := repository.NewConnectionRepository(cfg.DB)
	emailLogRepo := repository.NewEmailLogRepository(cfg.DB)
	webhookRepo := repository.NewWebhookRepository(cfg.DB)
	attemptRepo := repository.NewDeliveryAttemptRepository(cfg.DB)

	// Initialize handlers
	var renewal handlers.RenewalService
	if cfg.Watches != nil {
		renewal = cfg.Watches
	}
	healthHandler := handlers.NewHealthHandler(cfg.DB, renewal)
	notificationHandler := handlers.NewNotificationHandler(cfg.Processor, cfg.Logger)
	watchHandler := handlers.NewWatchHandler(cfg.Watches)
	connectionHandler := handlers.NewConnectionHandler(connectionRepo, cfg.Watches, cfg.Logger)
	messageHandler := handlers.NewMessageHandler(emailLogRepo, connectionRepo)
	sendHandler := handlers.NewSendHandler(connectionRepo, emailLogRepo, cfg.Provider, cfg.Dispatcher, cfg.Logger)
	webhookHandler := handlers.NewWebhookHandler(webhookRepo, connectionRepo, attemptRepo)

	// Health routes (no auth required)
	e.GET("/health", healthHandler.Health)
	e.GET("/ready", healthHandler.Ready)

	// Provider push endpoint. The provider cannot carry our API key, so the
	// route stays open; decode failures answer 400 and everything else 200.
	e.POST("/notifications", notificationHandler.Receive)

	// Scheduler endpoint guarded by its own shared secret
	cron := e.Group("/cron")
	cron.Use(middleware.BearerSecret(cfg.CronSecret, cfg.Logger))
	cron.GET("/refresh-watches", watchHandler.Refresh)

	// API routes
	api := e.Group("/api")
	api.Use(middleware.APIKeyAuth(cfg.APIKey, cfg.Logger))

	// Connection routes
	connections := api.Group("/connections")
	connections.POST("", connectionHandler.Create)
	connections.GET("", connectionHandler.List)
	connections.GET("/:id", connectionHandler.Get)
	connections.DELETE("/:id", connectionHandler.Delete)

	// Watch routes
	api.POST("/watch", watchHandler.Start)
	api.DELETE("/watch/:address", watchHandler.Stop)

	// Message routes
	messages := api.Group("/messages")
	messages.GET("", messageHandler.List)
	messages.POST("/send", sendHandler.Send)
	messages.GET("/:id", messageHandler.Get)

	// Thread routes
	api.GET("/threads/:thread_id", messageHandler.Thread)

	// Webhook routes
	webhooks := api.Group("/webhooks")
	webhooks.POST("", webhookHandler.Create)
	webhooks.GET("", webhookHandler.List)
	webhooks.DELETE("/:id", webhookHandler.Delete)
	webhooks.GET("/:id/attempts", webhookHandler.Attempts)

	// WebSocket route
	if cfg.Hub != nil {
		wsHandler := handlers.NewWSHandler(cfg.Hub, websocket.NewSecureUpgrader(cfg.AllowedOrigins, cfg.Logger), cfg.Logger)
		api.GET("/ws", wsHandler.Serve)
	}

	return e
}
