package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"mukando/internal/config"
	cronpkg "mukando/internal/cron"
	"mukando/internal/middleware"
	"mukando/internal/models"
	"mukando/internal/paynow"
	"mukando/internal/repository"
	"mukando/internal/router"
	"mukando/internal/service"
)

func main() {
	// --- Logger ---
	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	// --- Config ---
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	// --- Database ---
	db, err := config.NewDatabase(&cfg.Database)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	if err := db.AutoMigrate(&models.Payment{}); err != nil {
		logger.Fatal("Failed to migrate payment schema", zap.Error(err))
	}

	// --- Callback Deduper (Redis with in-memory fallback) ---
	deduper, dedupeErr := middleware.NewCallbackDeduper(
		cfg.Redis.Addr,
		cfg.Redis.Pass,
		cfg.Redis.DB,
		10*time.Minute,
	)
	if dedupeErr != nil {
		logger.Warn("Redis unavailable for callback dedup, using in-memory fallback", zap.Error(dedupeErr))
	}

	// --- Gateway client and payment service ---
	gateway := paynow.NewClient(
		cfg.Paynow.IntegrationID,
		cfg.Paynow.IntegrationKey,
		cfg.Paynow.BaseURL,
		cfg.Paynow.ReturnURL,
		cfg.Paynow.ResultURL,
		logger,
	)
	repo := repository.NewPaymentRepository(db)
	svc := service.NewPaymentService(repo, gateway, logger, service.Options{
		ReferencePrefix: cfg.Payment.ReferencePrefix,
		PollInterval:    cfg.Payment.PollInterval,
		PollTimeout:     cfg.Payment.PollTimeout,
	})

	// --- Echo ---
	e := echo.New()
	e.HideBanner = true
	router.Setup(e, svc, repo, deduper, logger)

	// --- Cron Scheduler ---
	scheduler := cronpkg.New(cfg, svc, repo, logger)
	scheduler.Start()

	// --- Start Server ---
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	go func() {
		logger.Info("Starting payment server", zap.String("addr", addr))
		if err := e.Start(addr); err != nil {
			logger.Info("Server stopped", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down...")

	// Stop cron
	ctx := scheduler.Stop()
	<-ctx.Done()

	// Stop HTTP server
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}
