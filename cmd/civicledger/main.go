package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/civicledger/civicledger/internal/app"
	"github.com/civicledger/civicledger/internal/budget"
	"github.com/civicledger/civicledger/internal/ledger"
	"github.com/civicledger/civicledger/internal/platform/db"
	"github.com/civicledger/civicledger/internal/refdata"
	"github.com/civicledger/civicledger/internal/revenue"
	"github.com/civicledger/civicledger/internal/salary"
	"github.com/civicledger/civicledger/internal/shared"
	"github.com/civicledger/civicledger/jobs"
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

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	jobClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()
	notifier := jobs.NewNotifier(jobClient, logger, cfg.NotifyEmail)

	auditLogger := shared.NewAuditLogger(pool)
	refRepo := refdata.NewRepository(pool)

	budgetRepo := budget.NewRepository(pool)
	budgetService := budget.NewService(budgetRepo)
	budgetHandler := budget.NewHandler(logger, budgetService)

	ledgerRepo := ledger.NewRepository(pool)
	ledgerService := ledger.NewService(ledgerRepo, auditLogger, budget.NewSpendingHook())
	ledgerHandler := ledger.NewHandler(logger, ledgerService)

	salaryRepo := salary.NewRepository(pool)
	distributor := salary.NewDistributor(salaryRepo)
	tracker := salary.NewTracker(salaryRepo, auditLogger, notifier)
	salaryHandler := salary.NewHandler(logger, distributor, tracker, salaryRepo)

	revenueRepo := revenue.NewRepository(pool)
	revenueService := revenue.NewService(revenueRepo, ledgerService, refRepo, auditLogger, notifier)
	revenueHandler := revenue.NewHandler(logger, revenueService)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterConfig{
		Logger:  logger,
		Config:  cfg,
		Pool:    pool,
		Redis:   redisClient,
		Ledger:  ledgerHandler,
		Budget:  budgetHandler,
		Salary:  salaryHandler,
		Revenue: revenueHandler,
		Jobs:    jobHandler,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
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
