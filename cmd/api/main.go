package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Laellekoenig/tables/internal/api"
	"github.com/Laellekoenig/tables/internal/api/middleware"
	"github.com/Laellekoenig/tables/internal/config"
	"github.com/Laellekoenig/tables/internal/logger"
	"github.com/Laellekoenig/tables/internal/repository"
	"github.com/Laellekoenig/tables/internal/service"
)

func main() {
	// Load configuration
	// Support CONFIG_PATH environment variable for production deployments
	configPath := os.Getenv("CONFIG_PATH")
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	appLogger := logger.NewDefault()
	logger.SetDefaultLogger(appLogger)
	defer logger.Sync()

	// Initialize database
	db, err := repository.InitDB(&cfg.Database)
	if err != nil {
		appLogger.Fatalf("Failed to initialize database: %v", err)
	}

	// Initialize repositories
	projectRepo := repository.NewProjectRepository(db)
	transformationRepo := repository.NewTransformationRepository(db)

	// Initialize services
	generationService := service.NewGenerationService(&service.GenerationConfig{
		Provider: cfg.Generation.Provider,
		Model:    cfg.Generation.Model,
		APIKey:   cfg.Generation.APIKey,
		BaseURL:  cfg.Generation.BaseURL,
		Timeout:  cfg.Generation.Timeout,
	})

	sandboxService := service.NewSandboxService(&service.SandboxServiceConfig{
		BaseURL:        cfg.Sandbox.BaseURL,
		APIKey:         cfg.Sandbox.APIKey,
		Snapshot:       cfg.Sandbox.Snapshot,
		ExecTimeout:    cfg.Sandbox.ExecTimeout,
		RequestTimeout: cfg.Sandbox.RequestTimeout,
	})

	lineageService := service.NewLineageService(projectRepo, transformationRepo)
	projectService := service.NewProjectService(projectRepo, appLogger)
	transformationService := service.NewTransformationService(
		projectRepo,
		transformationRepo,
		lineageService,
		generationService,
		sandboxService,
		appLogger,
	)
	progressService := service.NewProgressService(transformationRepo, cfg.Progress.PollInterval, appLogger)

	// Initialize authentication
	auth := middleware.NewStaticTokenAuthenticator(cfg.Auth.Tokens)

	// Setup router
	router := api.SetupRouter(projectService, transformationService, progressService, auth, cfg, appLogger)

	// Create HTTP server
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	// Start server in goroutine
	go func() {
		appLogger.Infof("Starting API server: port=%d, mode=%s", cfg.Server.Port, cfg.Server.Mode)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.Fatalf("Server forced to shutdown: %v", err)
	}

	appLogger.Info("Server exited")
}
