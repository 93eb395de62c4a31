package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/parkwind-erp/parkwind-erp/internal/allocation"
	"github.com/parkwind-erp/parkwind-erp/internal/app"
	"github.com/parkwind-erp/parkwind-erp/internal/membership"
	"github.com/parkwind-erp/parkwind-erp/internal/observability"
	"github.com/parkwind-erp/parkwind-erp/internal/platform/cache"
	"github.com/parkwind-erp/parkwind-erp/internal/platform/db"
	"github.com/parkwind-erp/parkwind-erp/internal/settlement"
	"github.com/parkwind-erp/parkwind-erp/internal/taxrate"
	"github.com/parkwind-erp/parkwind-erp/jobs"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()

	settlementRepo := settlement.NewRepository(pool)
	membershipRepo := membership.NewRepository(pool)
	resolver := membership.NewResolver(membershipRepo)
	rateService := taxrate.NewService(taxrate.NewRepository(pool))
	allocationRepo := allocation.NewRepository(pool)
	allocationService := allocation.NewService(settlementRepo, resolver, membershipRepo, rateService, allocationRepo, logger)
	allocationCache := allocation.NewCache(redisClient, cfg.AllocationCacheTTL, logger)

	taskClient := jobs.NewClient(asynq.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr}))
	defer func() {
		if err := taskClient.Close(); err != nil {
			logger.Warn("asynq close", slog.Any("error", err))
		}
	}()

	allocationHandler := allocation.NewHandler(logger, allocationService, allocationCache, taskClient, metrics)

	router := app.NewRouter(app.RouterParams{
		Logger:            logger,
		Config:            cfg,
		Metrics:           metrics,
		AllocationHandler: allocationHandler,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", slog.String("addr", cfg.AppAddr))
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown", slog.Any("error", err))
		}
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server run", slog.Any("error", err))
			os.Exit(1)
		}
	}
}
