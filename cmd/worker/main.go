package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/parkwind-erp/parkwind-erp/internal/allocation"
	"github.com/parkwind-erp/parkwind-erp/internal/app"
	"github.com/parkwind-erp/parkwind-erp/internal/membership"
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

	settlementRepo := settlement.NewRepository(pool)
	membershipRepo := membership.NewRepository(pool)
	resolver := membership.NewResolver(membershipRepo)
	rateService := taxrate.NewService(taxrate.NewRepository(pool))
	allocationRepo := allocation.NewRepository(pool)
	allocationService := allocation.NewService(settlementRepo, resolver, membershipRepo, rateService, allocationRepo, logger)
	allocationCache := allocation.NewCache(redisClient, cfg.AllocationCacheTTL, logger)

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskAllocationWarm, Handler: jobs.NewAllocationWarmHandler(allocationService, allocationCache, logger)},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
