package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"assetExtractor/cache"
	"assetExtractor/cleanup"
	"assetExtractor/config"
	"assetExtractor/database"
	"assetExtractor/events"
	"assetExtractor/handlers"
	"assetExtractor/middleware"
	"assetExtractor/queue"
	"assetExtractor/repository"
	"assetExtractor/ripper"
	"assetExtractor/service"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	logger := newLogger(cfg)
	defer logger.Sync()

	logger.Info("Asset Extractor API starting", zap.String("env", cfg.Env))

	if err := run(cfg, logger); err != nil {
		logger.Fatal("Service failed", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	for _, dir := range []string{cfg.UploadDir, cfg.ExportDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	db, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.InitSchema(ctx); err != nil {
		return err
	}
	logger.Info("Database initialized")

	redisCache, err := database.ConnectCache(cfg)
	if err != nil {
		return err
	}
	defer redisCache.Close()

	repo := repository.NewPostgresRepo(db)
	statusCache := cache.NewStatusCache(redisCache)

	publisher := events.NewNoopPublisher()
	if cfg.KafkaBrokers != "" {
		publisher, err = events.NewKafkaPublisher(strings.Split(cfg.KafkaBrokers, ","), cfg.KafkaTopic)
		if err != nil {
			return err
		}
		logger.Info("Kafka event publisher started", zap.String("topic", cfg.KafkaTopic))
	}
	defer publisher.Close()

	// There is no degraded mode without a worker: a startup failure here
	// aborts the whole service.
	supervisor := ripper.NewSupervisor(cfg, logger)
	if err := supervisor.Start(ctx); err != nil {
		return err
	}
	defer supervisor.Stop()

	processor := service.NewProcessor(repo, supervisor, statusCache, publisher, cfg, logger)
	manager := queue.NewManager(repo, processor, cfg.QueuePollInterval, logger)
	if err := manager.Start(ctx); err != nil {
		return err
	}
	defer manager.Stop()

	sweeper := cleanup.NewScheduler(repo, cfg, logger)
	if err := sweeper.Start(); err != nil {
		return err
	}
	defer sweeper.Stop()

	taskService := service.NewTaskService(repo, statusCache, manager, publisher, cfg, logger)
	taskHandler := handlers.NewTaskHandler(taskService, cfg, logger)
	healthHandler := handlers.NewHealthHandler(manager, supervisor)

	r := chi.NewRouter()
	r.Use(middleware.TraceID)
	r.Use(middleware.Logging(logger))
	r.Use(middleware.Recovery(logger))

	r.Get("/", handlers.Root)
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/upload", taskHandler.Upload)
		r.Get("/tasks/{taskID}", taskHandler.Status)
		r.Delete("/tasks/{taskID}", taskHandler.Delete)
		r.Get("/download/{taskID}", taskHandler.Download)
		r.Get("/health", healthHandler.Health)
	})

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Server started", zap.String("address", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func newLogger(cfg *config.Config) *zap.Logger {
	var logger *zap.Logger
	var err error
	if cfg.Env == "production" {
		logger, err = zap.NewProduction()
	} else {
		logger, err = zap.NewDevelopment()
	}
	if err != nil {
		panic(err)
	}
	return logger
}
