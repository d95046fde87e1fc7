package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/deloaiprivatelimited/exam-engine/internal/cache"
	"github.com/deloaiprivatelimited/exam-engine/internal/config"
	"github.com/deloaiprivatelimited/exam-engine/internal/handlers"
	"github.com/deloaiprivatelimited/exam-engine/internal/repositories/postgres"
	"github.com/deloaiprivatelimited/exam-engine/internal/services"
	"github.com/deloaiprivatelimited/exam-engine/internal/utils"
	"github.com/deloaiprivatelimited/exam-engine/pkg"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Environment)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("Server exited with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	db, err := pkg.InitDatabase(cfg)
	if err != nil {
		return err
	}
	if err := pkg.AutoMigrate(db); err != nil {
		return fmt.Errorf("database migration failed: %w", err)
	}

	redisClient, err := pkg.NewRedisClient(cfg)
	if err != nil {
		return err
	}
	defer redisClient.Close()

	publisher, err := cfg.Events.CreateEventPublisher(logger)
	if err != nil {
		return fmt.Errorf("event publisher setup failed: %w", err)
	}
	defer func() {
		if err := publisher.Close(); err != nil {
			logger.Error("Failed to close event publisher", "error", err)
		}
	}()

	repo := postgres.NewRepository(db)
	validator := utils.NewValidator()
	locker := cache.NewAttemptLocker(redisClient)
	cacheService := cache.NewRedisCache(redisClient, logger)
	judgeClient := cfg.Judge.CreateClient(logger)

	attemptService := services.NewAttemptService(repo, locker, publisher, logger, validator, cfg.TabSwitchLimit)
	judgeService := services.NewJudgeService(repo, judgeClient, publisher, logger, validator, cfg.Judge.MaxWorkers)
	resultsService := services.NewResultsService(repo, cacheService, logger, validator)

	handlerLogger := utils.NewSlogLogger(logger)
	verifier := cfg.Casdoor.CreateClient()

	router := newRouter(cfg, handlerLogger)
	handlerManager := handlers.NewHandlerManager(attemptService, judgeService, resultsService, handlerLogger)
	handlerManager.SetupRoutes(router, handlers.AuthMiddleware(verifier, handlerLogger))

	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
		// Write timeout covers synchronous judge submissions, which run every
		// test case before responding.
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Exam engine listening",
			"port", cfg.Port,
			"environment", cfg.Environment)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func newLogger(environment string) *slog.Logger {
	if environment == "production" {
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
}

func newRouter(cfg *config.Config, logger utils.Logger) *gin.Engine {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(utils.LoggerMiddleware(logger))
	router.Use(cors.New(cors.Config{
		AllowOrigins:  []string{"*"},
		AllowMethods:  []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders: []string{"Content-Length", "Content-Disposition"},
		MaxAge:        12 * time.Hour,
	}))

	return router
}
