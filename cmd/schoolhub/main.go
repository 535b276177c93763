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

	"github.com/schoolhub/schoolhub/internal/app"
	"github.com/schoolhub/schoolhub/internal/auth"
	"github.com/schoolhub/schoolhub/internal/authz"
	"github.com/schoolhub/schoolhub/internal/platform/cache"
	"github.com/schoolhub/schoolhub/internal/platform/db"
	"github.com/schoolhub/schoolhub/internal/schedules"
	"github.com/schoolhub/schoolhub/internal/shared"
	"github.com/schoolhub/schoolhub/internal/users"
	"github.com/schoolhub/schoolhub/jobs"
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

	sessionManager := shared.NewSessionManager(redisClient, "schoolhub_session", cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)
	auditLogger := shared.NewAuditLogger(dbpool)

	authRepo := auth.NewRepository(dbpool)
	authService := auth.NewService(authRepo)
	authHandler := auth.NewHandler(logger, authService, sessionManager)

	jobsClient := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := jobsClient.Close(); err != nil {
			logger.Warn("jobs client close", slog.Any("error", err))
		}
	}()

	authzRepo := authz.NewRepository(dbpool)
	scopeResolver := authz.NewScopeResolver(authzRepo)
	authzService := authz.NewService(authzRepo, scopeResolver, auditLogger, logger)
	authzHandler := authz.NewHandler(logger, authzService, jobsClient)
	authzMiddleware := authz.Middleware{Service: authzService, Logger: logger}

	usersRepo := users.NewRepository(dbpool)
	usersService := users.NewService(usersRepo, authzService)
	usersHandler := users.NewHandler(logger, usersService)

	schedulesRepo := schedules.NewRepository(dbpool)
	schedulesService := schedules.NewService(schedulesRepo, authzService)
	schedulesHandler := schedules.NewHandler(logger, schedulesService)

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		SessionManager:   sessionManager,
		CSRFManager:      csrfManager,
		AuthHandler:      authHandler,
		AuthzHandler:     authzHandler,
		AuthzMiddleware:  authzMiddleware,
		UsersHandler:     usersHandler,
		SchedulesHandler: schedulesHandler,
	})

	srv := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("http server listening", slog.String("addr", cfg.AppAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown", slog.Any("error", err))
	}
	logger.Info("server stopped")
}
