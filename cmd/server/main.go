// Package main is the entrypoint for the RedMeters API server.
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

	"github.com/kiranshivaraju/redmeters/internal/api"
	"github.com/kiranshivaraju/redmeters/internal/api/handler"
	mw "github.com/kiranshivaraju/redmeters/internal/api/middleware"
	"github.com/kiranshivaraju/redmeters/internal/api/response"
	"github.com/kiranshivaraju/redmeters/internal/cache"
	"github.com/kiranshivaraju/redmeters/internal/config"
	"github.com/kiranshivaraju/redmeters/internal/detection"
	"github.com/kiranshivaraju/redmeters/internal/ml"
	"github.com/kiranshivaraju/redmeters/internal/scheduler"
	"github.com/kiranshivaraju/redmeters/internal/simulator"
	"github.com/kiranshivaraju/redmeters/internal/store"
)

const shutdownTimeout = 30 * time.Second

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load config — fail fast on invalid config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded", "ml_mode", cfg.ML.Mode, "env", cfg.Server.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Connect to database
	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	slog.Info("database connected")

	// 3. Run migrations
	if err := store.RunMigrations(cfg.Database.URL, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	slog.Info("database migrations applied")

	// 4. Create Redis cache
	redisCache, err := cache.NewRedisCache(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("create redis cache: %w", err)
	}
	defer redisCache.Close()

	if err := redisCache.Ping(ctx); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	slog.Info("redis connected")

	// 5. Create ML scorer
	scorer, err := ml.NewScorer(cfg.ML)
	if err != nil {
		return fmt.Errorf("create ML scorer: %w", err)
	}
	slog.Info("ml scorer initialized", "scorer", scorer.Name())

	// 6. Create store and services
	pgStore := store.NewPostgresStore(pool)
	detector := detection.NewService(pgStore, scorer, cfg.ML.ModelsPath, redisCache)
	sim := simulator.New(pgStore)

	// 7. Start background jobs
	if cfg.Scheduler.Enabled {
		sched := scheduler.New(cfg.Scheduler, detector, sim, pgStore)
		if err := sched.Start(); err != nil {
			return fmt.Errorf("start scheduler: %w", err)
		}
		defer sched.Stop()
	}

	// 8. Build router with dependencies
	auth := mw.NewAuth(pgStore)
	rateLimit := mw.NewRateLimit(redisCache, 60)

	deps := api.Dependencies{
		Auth:      auth,
		RateLimit: rateLimit,

		HealthHandler: healthHandler(pgStore, redisCache),

		ListMeters:        handler.NewListMetersHandler(pgStore),
		GetMeter:          handler.NewGetMeterHandler(pgStore),
		ListMeterReadings: handler.NewListMeterReadingsHandler(pgStore),
		CreateMeter:       handler.NewCreateMeterHandler(pgStore),
		UpdateMeter:       handler.NewUpdateMeterHandler(pgStore),

		ListCustomers:    handler.NewListCustomersHandler(pgStore),
		GetCustomer:      handler.NewGetCustomerHandler(pgStore),
		CustomerSegments: handler.NewCustomerSegmentsHandler(pgStore),

		ListPredictions: handler.NewListPredictionsHandler(pgStore),
		GetPrediction:   handler.NewGetPredictionHandler(pgStore),
		DetectAnomalies: handler.NewDetectAnomaliesHandler(detector),
		DemandForecast:  handler.NewDemandForecastHandler(pgStore),

		ListAlerts:   handler.NewListAlertsHandler(pgStore),
		ResolveAlert: handler.NewResolveAlertHandler(pgStore),

		Overview:             handler.NewOverviewHandler(pgStore, redisCache),
		GridHealth:           handler.NewGridHealthHandler(pgStore, redisCache),
		TransformerAnalytics: handler.NewTransformerAnalyticsHandler(pgStore),

		CreateKeyHandler: handler.NewCreateKeyHandler(pgStore),
		ListKeysHandler:  handler.NewListKeysHandler(pgStore),
		RevokeKeyHandler: handler.NewRevokeKeyHandler(pgStore),
	}

	router := api.NewRouter(deps)

	// 9. Start HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in background
	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for shutdown signal or server error
	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining connections...")
	}

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	slog.Info("server stopped gracefully")
	return nil
}

// healthHandler checks database and cache connectivity.
func healthHandler(s store.Store, c cache.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{
			"database": "ok",
			"cache":    "ok",
		}

		if err := s.Ping(r.Context()); err != nil {
			checks["database"] = "degraded"
		}
		if err := c.Ping(r.Context()); err != nil {
			checks["cache"] = "degraded"
		}

		degraded := checks["database"] != "ok" || checks["cache"] != "ok"
		if degraded {
			response.Error(w, http.StatusServiceUnavailable, "DEGRADED",
				"One or more services degraded", checks)
			return
		}

		response.JSON(w, map[string]any{
			"status":   "ok",
			"services": checks,
		})
	}
}
