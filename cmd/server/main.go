package main

import (
	"context"
	stdlog "log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"ivar-voice-assistant/backend/pkg/config"
	"ivar-voice-assistant/backend/pkg/di"
	"ivar-voice-assistant/backend/pkg/observability"
	"ivar-voice-assistant/backend/pkg/router"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		stdlog.Println("No .env file found")
	}

	cfg := config.New()

	// Initialize dependency injection container
	container, err := di.New(cfg)
	if err != nil {
		stdlog.Fatalf("failed to initialize dependency container: %v", err)
	}
	log := container.Logger

	log.Info("Starting application", "version", os.Getenv("APP_VERSION"))

	// Observability
	if cfg.Observability.TracingEnabled {
		shutdownTracing := observability.SetupTracing("ivar-voice-assistant")
		defer shutdownTracing()
	}
	if cfg.Observability.MetricsEnabled {
		observability.SetupPrometheusMetrics(cfg.Observability.MetricsAddr)
		log.Info("Metrics endpoint enabled", "addr", cfg.Observability.MetricsAddr)
	}

	// Background health checks
	container.Health.Start()

	// Conversation used by relay requests without a chat id
	container.EnsureDefaultChat(context.Background())

	// Initialize router. Validation middleware must be registered before
	// the routes: gin snapshots each route's handler chain at registration.
	r := router.New(container)

	schemaPath := os.Getenv("OPENAPI_SCHEMA_PATH")
	if schemaPath == "" {
		schemaPath = "api/openapi.yaml"
	}
	r.AddOpenAPIValidation(schemaPath)

	r.SetupRoutes()

	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: r.Engine,
	}

	// Start the server in a goroutine
	go func() {
		log.Info("Server starting", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.LogError(err, "Server failed to start")
			os.Exit(1)
		}
	}()

	// Setup graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	<-quit
	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.LogError(err, "Server forced to shutdown")
	}

	log.Info("Server exited gracefully")
}
