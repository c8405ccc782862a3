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

	"github.com/boddenberg/planeja-api-go/internal/config"
	"github.com/boddenberg/planeja-api-go/internal/handler"
	"github.com/boddenberg/planeja-api-go/internal/infra/cache"
	"github.com/boddenberg/planeja-api-go/internal/infra/observability"
	"github.com/boddenberg/planeja-api-go/internal/infra/resilience"
	"github.com/boddenberg/planeja-api-go/internal/infra/sqlite"
	"github.com/boddenberg/planeja-api-go/internal/service"

	"go.uber.org/zap"
)

func main() {
	// --- Load .env file (for local development) ---
	_ = config.LoadDotEnv(".env")

	// --- Config ---
	cfg := config.Load()

	// --- Logger ---
	logger := observability.NewLogger(cfg.LogLevel)
	defer logger.Sync()

	if err := cfg.Validate(); err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}

	logger.Info("configuration loaded",
		zap.Int("port", cfg.Port),
		zap.String("log_level", cfg.LogLevel),
		zap.String("database_path", cfg.DatabasePath),
		zap.Duration("db_busy_timeout", cfg.DBBusyTimeout),
		zap.Duration("cache_ttl", cfg.CacheTTL),
		zap.Int("max_retries", cfg.MaxRetries),
		zap.Duration("initial_backoff", cfg.InitialBackoff),
		zap.Int("max_concurrency", cfg.MaxConcurrency),
		zap.Duration("jwt_access_ttl", cfg.JWTAccessTTL),
		zap.Duration("jwt_refresh_ttl", cfg.JWTRefreshTTL),
		zap.Strings("cors_allowed_origins", cfg.CORSAllowedOrigins),
	)

	// --- Tracing ---
	shutdown, err := observability.InitTracer(context.Background(), cfg.OTLPEndpoint, "planeja-api")
	if err != nil {
		logger.Fatal("failed to init tracer", zap.Error(err))
	}
	defer shutdown(context.Background())

	// --- Metrics ---
	metrics := observability.NewMetrics()

	// --- Resilience ---
	resilienceCfg := resilience.Config{
		MaxRetries:     cfg.MaxRetries,
		InitialBackoff: cfg.InitialBackoff,
		MaxConcurrency: cfg.MaxConcurrency,
	}
	cb := resilience.NewCircuitBreaker("sqlite", logger)
	bulkhead := resilience.NewBulkhead(cfg.MaxConcurrency)

	// --- Storage ---
	openCtx, cancelOpen := context.WithTimeout(context.Background(), 30*time.Second)
	store, err := sqlite.Open(openCtx, sqlite.Config{
		Path:        cfg.DatabasePath,
		BusyTimeout: cfg.DBBusyTimeout,
	}, cb, resilienceCfg, logger)
	cancelOpen()
	if err != nil {
		logger.Fatal("failed to open database", zap.Error(err))
	}
	defer store.Close()

	// --- Cache ---
	userCache := cache.New[bool](cfg.CacheTTL)
	defer userCache.Close()

	// --- Services ---
	now := service.Clock(time.Now)
	ledger := service.NewLedger(store, metrics, now, logger)
	svcs := handler.Services{
		Auth: service.NewAuthService(store, userCache, metrics, service.AuthConfig{
			JWTSecret:  cfg.JWTSecret,
			AccessTTL:  cfg.JWTAccessTTL,
			RefreshTTL: cfg.JWTRefreshTTL,
			BcryptCost: cfg.BcryptCost,
		}, logger),
		Wallets:    service.NewWalletService(store, now, logger),
		Accounts:   service.NewAccountService(store, metrics, now, logger),
		Categories: service.NewCategoryService(store, now, logger),
		Ledger:     ledger,
		Dashboard:  service.NewDashboardService(ledger, store),
	}

	// --- Router ---
	router := handler.NewRouter(svcs, store, metrics, handler.Options{
		AllowedOrigins: cfg.CORSAllowedOrigins,
		Bulkhead:       bulkhead,
	}, logger)

	// --- Server ---
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// --- Graceful shutdown ---
	go func() {
		logger.Info("server starting", zap.Int("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("server shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server forced shutdown", zap.Error(err))
	}

	stats := userCache.Stats()
	logger.Info("server stopped",
		zap.Uint64("user_cache_hits", stats.Hits),
		zap.Uint64("user_cache_misses", stats.Misses),
	)
}
