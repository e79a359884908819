package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/BestAchadirect/Project-WebChat-sub001/internal/api"
	"github.com/BestAchadirect/Project-WebChat-sub001/internal/api/handler"
	"github.com/BestAchadirect/Project-WebChat-sub001/internal/api/middleware"
	"github.com/BestAchadirect/Project-WebChat-sub001/internal/app"
	"github.com/BestAchadirect/Project-WebChat-sub001/internal/config"
	"github.com/BestAchadirect/Project-WebChat-sub001/internal/logger"
)

func main() {
	// Support CONFIG_PATH environment variable for production deployments
	configPath := os.Getenv("CONFIG_PATH")
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx := context.Background()
	application, err := app.Build(ctx, cfg, app.Options{
		ServiceName:      "webchat-api",
		Chat:             true,
		MaxQueuedIngests: cfg.Ingest.MaxQueued,
	})
	if err != nil {
		log.Fatalf("Failed to initialize application: %v", err)
	}
	appLogger := application.Logger

	sqlDB, err := application.DB.DB()
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to access database pool")
	}

	router := api.SetupRouter(api.Handlers{
		Health:    handler.NewHealthHandler(sqlDB),
		Documents: handler.NewDocumentHandler(application.Ingest, cfg.Ingest.MaxUploadBytes),
		Tasks:     handler.NewTaskHandler(application.Tracker),
		Search:    handler.NewSearchHandler(application.Embedder, application.Retrieval, cfg.Search.TopK, application.ScoreThreshold()),
		Chat:      handler.NewChatHandler(application.Chat),
	}, cfg.Server.Mode, middleware.CORSConfig{
		AllowedOrigins:  cfg.Server.CORS.AllowedOrigins,
		AllowAllOrigins: cfg.Server.CORS.AllowAllOrigins,
	}, appLogger)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		appLogger.WithFields(logger.Fields{
			"port": cfg.Server.Port,
			"mode": cfg.Server.Mode,
		}).Info("Starting API server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.WithError(err).Fatal("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.WithError(err).Error("Server forced to shutdown")
	}

	// Uploads already accepted keep processing until the same deadline.
	application.Close(cfg.Server.ShutdownTimeout)

	appLogger.Info("Server exited")
}
