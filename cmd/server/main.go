package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kmoreland/leasepulse/internal/broadcast"
	"github.com/kmoreland/leasepulse/internal/config"
	"github.com/kmoreland/leasepulse/internal/database"
	"github.com/kmoreland/leasepulse/internal/handlers"
	"github.com/kmoreland/leasepulse/internal/logger"
	"github.com/kmoreland/leasepulse/internal/middleware"
	"github.com/kmoreland/leasepulse/internal/repository"
	"github.com/kmoreland/leasepulse/internal/scoring"
	"github.com/kmoreland/leasepulse/internal/services"
)

const (
	shutdownTimeout = 30 * time.Second
)

func main() {
	// Load configuration from environment variables
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize structured logger
	log := logger.New(cfg.Server.Env)
	log.Info("Starting LeasePulse API", map[string]interface{}{
		"version":     handlers.APIVersion,
		"environment": cfg.Server.Env,
		"port":        cfg.Server.Port,
	})

	// Create database connection pool
	ctx := context.Background()
	db, err := database.NewPostgresPool(ctx, cfg.Database)
	if err != nil {
		log.Fatal("Failed to connect to database", err, map[string]interface{}{
			"host": cfg.Database.Host,
			"port": cfg.Database.Port,
			"name": cfg.Database.Name,
		})
	}
	defer db.Close()

	log.Info("Database connection established", map[string]interface{}{
		"host":     cfg.Database.Host,
		"port":     cfg.Database.Port,
		"database": cfg.Database.Name,
		"pool_min": cfg.Database.PoolMin,
		"pool_max": cfg.Database.PoolMax,
	})

	// Setup Gin router
	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	// Add middleware in order: RequestID -> Logger -> Recovery -> CORS
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger(log))
	router.Use(middleware.Recovery(log))
	router.Use(middleware.CORS(cfg.CORS.Origins))

	// Broadcast hub fans out every committed mutation to connected observers
	hub := broadcast.NewHub(cfg.Broadcast.SendTimeout, log.WithComponent("broadcast"))

	// Register health check routes
	healthHandler := handlers.NewHealthHandler(db, hub, cfg.Server.Env)
	router.GET("/health", healthHandler.Health)
	router.GET("/health/ready", healthHandler.Ready)
	router.GET("/api/v1/info", healthHandler.Info)

	// Initialize repository and service layers
	unitRepo := repository.NewUnitRepository(db)
	engine := scoring.NewEngine(scoring.LocationRules{
		PrimeZips:  cfg.Scoring.PrimeZips,
		TargetCity: cfg.Scoring.TargetCity,
	})
	unitService := services.NewUnitService(unitRepo, engine, hub, log.WithComponent("units"))
	analyticsService := services.NewAnalyticsService(unitRepo, log.WithComponent("analytics"))

	// Initialize handlers
	unitHandler := handlers.NewUnitHandler(unitService)
	analyticsHandler := handlers.NewAnalyticsHandler(analyticsService)
	leadsHandler := handlers.NewLeadsHandler(unitService)
	streamHandler := handlers.NewStreamHandler(hub, cfg.Broadcast.BufferSize)

	// Register API v1 routes
	v1 := router.Group("/api/v1")
	{
		units := v1.Group("/units")
		{
			units.GET("", unitHandler.List)
			units.GET("/stream", streamHandler.Stream)
			units.GET("/:id", unitHandler.Get)
			units.POST("", unitHandler.Create)
			units.PATCH("/:id", unitHandler.Update)
			units.DELETE("/:id", unitHandler.Delete)
		}

		analytics := v1.Group("/analytics")
		{
			analytics.GET("", analyticsHandler.Dashboard)
			analytics.GET("/trends", analyticsHandler.Trends)
			analytics.GET("/distribution", analyticsHandler.Distribution)
			analytics.GET("/performance", analyticsHandler.Performance)
		}

		leads := v1.Group("/leads")
		{
			leads.GET("/score/:id", leadsHandler.Score)
			leads.GET("/prioritized", leadsHandler.Prioritized)
			leads.POST("/recalculate", leadsHandler.Recalculate)
		}
	}

	// Create HTTP server
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	// Start server in goroutine
	go func() {
		log.Info("Server listening", map[string]interface{}{
			"port": cfg.Server.Port,
			"addr": srv.Addr,
		})
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Server failed to start", err, nil)
		}
	}()

	// Wait for interrupt signal (SIGINT or SIGTERM)
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	// Graceful shutdown
	log.Info("Shutting down server...", nil)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", err, map[string]interface{}{
			"timeout": shutdownTimeout.String(),
		})
	}

	log.Info("Server exited", nil)
}
