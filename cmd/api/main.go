package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"hotel-rate-monitor/internal/app"
	"hotel-rate-monitor/internal/config"
	"hotel-rate-monitor/internal/handlers"
	"hotel-rate-monitor/internal/logging"
	"hotel-rate-monitor/internal/scheduler"
)

func main() {
	log := logging.Logger

	// Load configuration
	configPath := getEnv("CONFIG_PATH", "/app/config/monitor_config.yaml")
	appConfig, err := config.LoadConfig(configPath)
	if err != nil {
		log.Fatalf("Failed to load config from %s: %v", configPath, err)
	}
	logging.Init("rate-monitor", appConfig.Logging.Level)
	log.Infof("Loaded configuration from %s", configPath)

	application, err := app.New(appConfig)
	if err != nil {
		log.Fatalf("Failed to initialize: %v", err)
	}
	defer application.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	appScheduler := scheduler.NewScheduler(application.Orchestrator, application.Reconciler, appConfig)
	if err := appScheduler.Start(); err != nil {
		log.Warnf("Failed to start scheduler: %v", err)
	}
	defer appScheduler.Stop()

	// Setup Gin router
	r := gin.Default()

	// CORS configuration
	r.Use(cors.New(cors.Config{
		AllowOrigins:     appConfig.Server.AllowOrigins,
		AllowMethods:     []string{"GET", "POST"},
		AllowHeaders:     []string{"Origin", "Content-Type"},
		AllowCredentials: true,
	}))

	r.GET("/health", healthCheck)

	adminHandler := handlers.NewAdminHandler(ctx, handlers.AdminDeps{
		Sessions:   application.Store,
		Snapshots:  application.Snapshots,
		Selector:   application.Selector,
		Sweeper:    application.Orchestrator,
		Reconciler: application.Reconciler,
		Limiter:    application.Limiter,
		Breaker:    application.Breaker,
		Permits:    application.Permits,
	})
	adminHandler.RegisterRoutes(r)
	log.Info("Admin API routes registered at /api/admin/*")

	srv := &http.Server{
		Addr:              ":" + appConfig.Server.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Infof("Server starting on port %s", appConfig.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorf("Server shutdown failed: %v", err)
	}
}

func healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now(),
	})
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
