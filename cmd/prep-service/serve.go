package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"prep-service/internal/auth"
	"prep-service/internal/catalog"
	"prep-service/internal/client"
	"prep-service/internal/config"
	"prep-service/internal/db"
	httphandler "prep-service/internal/http"
	"prep-service/internal/http/middleware"
	"prep-service/internal/logger"
	"prep-service/internal/reconcile"
	"prep-service/internal/repository"
	"prep-service/internal/service"
	"prep-service/internal/timeclock"
)

const (
	shutdownTimeout   = 15 * time.Second
	limiterIdleWindow = time.Hour
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	appLogger := logger.New(cfg.Environment)

	database, err := db.New(cfg, appLogger)
	if err != nil {
		return fmt.Errorf("failed to connect database: %w", err)
	}

	steps, err := catalog.Load(cfg.Workflow.StepCatalogPath)
	if err != nil {
		return fmt.Errorf("failed to load step catalog: %w", err)
	}

	snapshotRepo := repository.NewVehicleSnapshotRepository(database)
	auditRepo := repository.NewStepEditAuditRepository(database)

	backend := client.NewBackendClient(cfg)
	vehicleService := service.NewVehicleService(backend, snapshotRepo, appLogger)
	preparationService := service.NewPreparationService(backend, vehicleService, auditRepo, steps, cfg.Workflow.MaxPhotoBytes, appLogger)
	defer preparationService.Close()

	thresholds := timeclock.Thresholds{
		SlightDelay:  cfg.Variance.SlightDelayMinutes,
		EarlyWarning: cfg.Variance.EarlyWarningMinutes,
	}
	timeClockService := service.NewTimeClockService(backend, thresholds, cfg.Timeclock.Location, appLogger)

	tokenParser := auth.NewParser(cfg.Auth.AccessSecret)
	limiter := middleware.NewRateLimiter(cfg.RateLimit.Requests, cfg.RateLimit.Window)
	go pruneLimiter(ctx, limiter)

	handler := httphandler.NewHandler(preparationService, timeClockService, cfg.Workflow.MaxPhotoBytes, appLogger)
	authMiddleware := middleware.Auth(tokenParser)
	router := httphandler.NewRouter(handler, authMiddleware, cfg.Environment, limiter.Middleware())

	if cfg.Reconcile.MongoURI != "" && cfg.Reconcile.Interval > 0 {
		mongoClient, err := reconcile.Connect(ctx, cfg.Reconcile.MongoURI)
		if err != nil {
			return err
		}
		defer func() { _ = mongoClient.Disconnect(context.Background()) }()

		runner := reconcile.NewRunner(mongoClient.Database(cfg.Reconcile.MongoDatabase), cfg.Reconcile.LockPath, appLogger)
		go runner.Every(ctx, cfg.Reconcile.Interval)
		appLogger.Info().Dur("interval", cfg.Reconcile.Interval).Msg("vehicle repair scheduled")
	}

	addr := fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLogger.Info().Str("addr", addr).Int("steps", steps.Len()).Msg("starting prep service")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			appLogger.Error().Err(err).Msg("failed to start server")
			return err
		}
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	appLogger.Info().Msg("prep service stopped")
	return nil
}

func pruneLimiter(ctx context.Context, limiter *middleware.RateLimiter) {
	ticker := time.NewTicker(limiterIdleWindow)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			limiter.Prune(limiterIdleWindow)
		}
	}
}
