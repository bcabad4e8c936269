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

	"github.com/ZMukhammadRizo/lms-alfa-sub003/internal/app"
	"github.com/ZMukhammadRizo/lms-alfa-sub003/internal/auth"
	"github.com/ZMukhammadRizo/lms-alfa-sub003/internal/authz"
	"github.com/ZMukhammadRizo/lms-alfa-sub003/internal/observability"
	"github.com/ZMukhammadRizo/lms-alfa-sub003/internal/platform/cache"
	"github.com/ZMukhammadRizo/lms-alfa-sub003/internal/platform/db"
	"github.com/ZMukhammadRizo/lms-alfa-sub003/internal/rbac"
	"github.com/ZMukhammadRizo/lms-alfa-sub003/internal/shared"
	"github.com/ZMukhammadRizo/lms-alfa-sub003/internal/users"
	"github.com/ZMukhammadRizo/lms-alfa-sub003/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
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
	slog.SetDefault(logger)

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

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
	sessionManager := shared.NewSessionManager(redisClient, "lms_session", cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)
	tokens := auth.NewTokenManager(cfg.TokenSecret, cfg.TokenTTL)

	rbacRepo := rbac.NewRepository(dbpool)
	store, broadcaster := app.NewPermissionStore(app.PermissionStoreParams{
		Config:   cfg,
		Source:   rbacRepo,
		Redis:    redisClient,
		Logger:   logger,
		Observer: metrics,
	})
	if broadcaster != nil {
		if err := broadcaster.Listen(ctx, store.ClearLocal); err != nil {
			logger.Warn("permission invalidation listener", slog.Any("error", err))
		}
	}

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	jobClient, err := jobs.NewClient(redisOpts)
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()

	rbacService := rbac.NewService(rbacRepo, store, logger).
		WithWarmer(jobClient).
		WithAuditor(shared.NewAuditLogger(dbpool))
	usersRepo := users.NewRepository(dbpool)
	usersService := users.NewService(usersRepo)
	sync := users.NewSync(usersRepo, rbacService, rbacService, logger)

	authorizer := authz.New(store, rbacService,
		authz.WithLogger(logger),
		authz.WithRecorder(metrics),
		authz.WithTimeout(cfg.PermissionCheckTimeout),
	)

	authService := auth.NewService(auth.NewRepository(dbpool), usersRepo, logger)
	authHandler := auth.NewHandler(logger, authService, sync, sessionManager, csrfManager, tokens).WithLoginLimit(cfg.LoginRateLimit)

	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:         logger,
		Config:         cfg,
		SessionManager: sessionManager,
		CSRFManager:    csrfManager,
		Tokens:         tokens,
		AuthHandler:    authHandler,
		AuthzHandler:   authz.NewHandler(logger, authorizer, sync),
		RBACHandler:    rbac.NewHandler(logger, rbacService, authorizer),
		UsersHandler:   users.NewHandler(logger, usersService, authorizer),
		JobHandler:     jobs.NewHandler(inspector, logger),
		Authorizer:     authorizer,
		Metrics:        metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr), slog.String("permission_cache", cfg.PermissionCache))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
