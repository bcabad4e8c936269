package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/ZMukhammadRizo/lms-alfa-sub003/internal/app"
	"github.com/ZMukhammadRizo/lms-alfa-sub003/internal/platform/cache"
	"github.com/ZMukhammadRizo/lms-alfa-sub003/internal/platform/db"
	"github.com/ZMukhammadRizo/lms-alfa-sub003/internal/rbac"
	"github.com/ZMukhammadRizo/lms-alfa-sub003/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

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
		logger.Error("connect database", slog.Any("error", err))
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

	if cfg.PermissionCache != app.CacheRedis {
		logger.Warn("permission warmup only reaches the server with PERMISSION_CACHE=redis",
			slog.String("permission_cache", cfg.PermissionCache))
	}

	rbacRepo := rbac.NewRepository(pool)
	store, _ := app.NewPermissionStore(app.PermissionStoreParams{
		Config: cfg,
		Source: rbacRepo,
		Redis:  redisClient,
		Logger: logger,
	})
	rbacService := rbac.NewService(rbacRepo, store, logger)
	warmupJob := jobs.NewWarmPermissionsJob(rbacService, store, logger, nil)

	warmupTask, err := jobs.NewWarmPermissionsTask("cron")
	if err != nil {
		logger.Error("build warmup task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskWarmPermissions, Handler: warmupJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.WarmupCron, Task: warmupTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
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
