package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/SAP-F-2025/property-import-service/internal/cache"
	"github.com/SAP-F-2025/property-import-service/internal/config"
	"github.com/SAP-F-2025/property-import-service/internal/events"
	"github.com/SAP-F-2025/property-import-service/internal/handlers"
	"github.com/SAP-F-2025/property-import-service/internal/jobs"
	"github.com/SAP-F-2025/property-import-service/internal/repositories"
	"github.com/SAP-F-2025/property-import-service/internal/repositories/memory"
	"github.com/SAP-F-2025/property-import-service/internal/repositories/postgres"
	"github.com/SAP-F-2025/property-import-service/internal/services"
	"github.com/SAP-F-2025/property-import-service/internal/utils"
	"github.com/SAP-F-2025/property-import-service/internal/validator"
	"github.com/SAP-F-2025/property-import-service/pkg"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := utils.NewLogger(cfg.Environment)
	slogger := utils.ToSlogLogger(logger)

	jobRepo, entityStore, err := openStores(cfg, logger)
	if err != nil {
		log.Fatalf("failed to open stores: %v", err)
	}

	jobCache := cache.NewNoopCache()
	if cfg.RedisURL != "" {
		client, err := pkg.NewRedisClient(cfg)
		if err != nil {
			logger.Warn("Redis unavailable, job cache disabled", "error", err)
		} else {
			defer client.Close()
			jobCache = cache.NewRedisCache(client, logger)
		}
	}

	publisher, err := cfg.Events.CreateEventPublisher(slogger)
	if err != nil {
		logger.Error("Failed to create event publisher", "error", err)
		publisher = events.NewMockEventPublisher(slogger)
	}
	defer func() {
		if err := publisher.Close(); err != nil {
			logger.Error("Failed to close event publisher", "error", err)
		}
	}()

	runner, err := jobs.NewRunner(slogger, cfg.Import.QueueBuffer)
	if err != nil {
		log.Fatalf("failed to create job runner: %v", err)
	}

	v := validator.New()
	importService := services.NewImportService(services.ImportServiceDeps{
		Jobs:       jobRepo,
		Store:      entityStore,
		Dispatcher: runner,
		Publisher:  publisher,
		Cache:      jobCache,
		Validator:  v,
		Config:     cfg.Import,
		Logger:     slogger,
	})
	runner.Handle(jobs.TopicValidate, importService.RunValidation)
	runner.Handle(jobs.TopicCommit, importService.RunCommit)

	runnerCtx, stopRunner := context.WithCancel(context.Background())
	defer stopRunner()
	if err := runner.Start(runnerCtx); err != nil {
		log.Fatalf("failed to start job runner: %v", err)
	}

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery(), utils.ContextLogger(logger), utils.LoggerMiddleware(logger))
	handlers.NewHandlerManager(importService, v, cfg.Import.MaxUploadBytes, logger).SetupRoutes(router)

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("Property import service listening", "port", cfg.Port, "store", cfg.StoreDriver)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("Graceful shutdown failed", "error", err)
	}
	if err := runner.Close(); err != nil {
		logger.Error("Failed to close job runner", "error", err)
	}
}

func openStores(cfg *config.Config, logger utils.Logger) (repositories.ImportJobRepository, repositories.EntityStore, error) {
	if cfg.StoreDriver == config.StoreDriverMemory {
		logger.Warn("Using in-memory stores; data is lost on restart")
		return memory.NewImportJobMemory(), memory.NewEntityStoreMemory(), nil
	}

	db, err := pkg.InitDatabase(cfg)
	if err != nil {
		return nil, nil, err
	}
	if err := pkg.Migrate(db); err != nil {
		return nil, nil, err
	}
	return postgres.NewImportJobPostgreSQL(db), postgres.NewEntityStorePostgreSQL(db), nil
}

