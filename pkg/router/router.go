package router

import (
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"ivar-voice-assistant/backend/internal/api"
	"ivar-voice-assistant/backend/internal/models"
	"ivar-voice-assistant/backend/internal/ws"
	"ivar-voice-assistant/backend/pkg/config"
	"ivar-voice-assistant/backend/pkg/di"
	"ivar-voice-assistant/backend/pkg/errors"
	"ivar-voice-assistant/backend/pkg/logger"
	"ivar-voice-assistant/backend/pkg/middleware"
)

// Track server start time for uptime calculations
var startTime = time.Now()

// Router is the main router for the application
type Router struct {
	Engine    *gin.Engine
	Container *di.Container
	Logger    *logger.Logger
	Config    *config.Config
}

// New creates a new router with the given container
func New(container *di.Container) *Router {
	cfg := container.Config

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()

	// Logger middleware first so every request is captured
	engine.Use(logger.Middleware(container.Logger))
	engine.Use(errors.ErrorHandler())
	engine.Use(errors.RecoveryWithLogger())
	engine.Use(corsMiddleware())

	rateLimiter := middleware.NewRateLimiter(container.Logger, middleware.RateLimiterOptions{
		Limit:          rate.Limit(cfg.Security.RateLimit),
		Burst:          cfg.Security.RateLimitBurst,
		ExpiryDuration: time.Hour,
		KeyFunc: func(c *gin.Context) string {
			return c.ClientIP()
		},
	})
	engine.Use(rateLimiter.Middleware())

	go container.Hub.Run()

	return &Router{
		Engine:    engine,
		Container: container,
		Logger:    container.Logger,
		Config:    cfg,
	}
}

// SetupRoutes registers all application routes
func (r *Router) SetupRoutes() {
	healthController := api.NewHealthController(r.Container.Health)
	chatController := api.NewChatController(r.Container.Sessions, r.Container.DefaultChatID)
	chatsController := api.NewChatsController(r.Container.Store, r.Container.Sessions)
	settingsController := api.NewSettingsController(r.Container.Store, r.Container.Sessions, r.Container.ProviderOpts...)
	storageController := api.NewStorageController(r.Container.Store)
	voiceController := api.NewVoiceController(r.Container.Transcriber, r.Container.TTS, r.Container.Sessions)

	sessions := r.Container.Sessions
	settingsController.ApplyPreferences = func(prefs models.UserPreferences) {
		sessions.SetVoiceEnabled(prefs.VoiceEnabled)
	}

	apiGroup := r.Engine.Group("/api")
	{
		healthController.RegisterRoutes(apiGroup)
		chatController.RegisterRoutes(apiGroup)
		chatsController.RegisterRoutes(apiGroup)
		settingsController.RegisterRoutes(apiGroup)
		storageController.RegisterRoutes(apiGroup)
		voiceController.RegisterRoutes(apiGroup)
	}

	r.setupStatusRoute()

	// WebSocket route
	r.Engine.GET("/ws", func(c *gin.Context) {
		ws.ServeWs(r.Container.Hub, c)
	})
}

// corsMiddleware allows the browser frontend to reach the relay,
// including websocket upgrade headers
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}

		c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept, Accept-Encoding, Origin, Upgrade, Connection, Cache-Control")
		c.Writer.Header().Set("Access-Control-Expose-Headers", "Upgrade, Connection")
		c.Writer.Header().Set("Access-Control-Max-Age", "86400")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}
