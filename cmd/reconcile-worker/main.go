package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hopround/hopround-backend/internal/ledger"
	"github.com/hopround/hopround-backend/internal/progression"
	"github.com/hopround/hopround-backend/pkg/config"
	"github.com/hopround/hopround-backend/pkg/db"
	"github.com/hopround/hopround-backend/pkg/instance"
	"github.com/hopround/hopround-backend/pkg/logger"
	"github.com/hopround/hopround-backend/pkg/metrics"
	"github.com/hopround/hopround-backend/pkg/migrate"
	"github.com/hopround/hopround-backend/pkg/outbox"
	"github.com/hopround/hopround-backend/pkg/redis"
)

const (
	jobName  = "pot-reconcile"
	lockName = "reconcile-worker"
)

// The reconcile worker periodically recomputes every route's cached pot
// aggregate from the transaction ledger. A Redis lease keeps replicas from
// running the sweep concurrently.
func main() {
	logg := logger.New(logger.Options{ServiceName: "reconcile-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "reconcile-worker"

	logg = logger.New(logger.Options{
		ServiceName: "reconcile-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	outboxSvc := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)
	progressionRepo := progression.NewRepository(dbClient.DB())
	progressionSvc, err := progression.NewService(progressionRepo, dbClient, outboxSvc, redisClient, nil, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create progression service", err)
		os.Exit(1)
	}
	ledgerSvc, err := ledger.NewService(ledger.NewRepository(dbClient.DB()), progressionSvc, dbClient, outboxSvc, progressionSvc)
	if err != nil {
		logg.Error(context.Background(), "failed to create ledger service", err)
		os.Exit(1)
	}

	jobMetrics := metrics.NewJobMetrics(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})
	logg.Info(ctx, "starting reconcile worker")

	go serveMetrics(ctx, cfg.App.Port, logg)

	runLoop(ctx, cfg.Reconcile, redisClient, ledgerSvc, jobMetrics, logg)

	logg.Info(ctx, "reconcile worker shutting down gracefully")
}

type reconciler interface {
	ReconcileAll(ctx context.Context) error
}

type lockClient interface {
	AcquireLock(ctx context.Context, name, holder string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, name string) error
}

func runLoop(ctx context.Context, cfg config.ReconcileConfig, locks lockClient, svc reconciler, jobMetrics *metrics.JobMetrics, logg *logger.Logger) {
	interval := cfg.Interval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	lockTTL := cfg.LockTTL
	if lockTTL <= 0 || lockTTL >= interval {
		lockTTL = interval - interval/5
	}
	holder := instance.GetID()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// One sweep at startup so a fresh deploy heals drift immediately.
	runOnce(ctx, locks, svc, jobMetrics, logg, holder, lockTTL)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			runOnce(ctx, locks, svc, jobMetrics, logg, holder, lockTTL)
		}
	}
}

func runOnce(ctx context.Context, locks lockClient, svc reconciler, jobMetrics *metrics.JobMetrics, logg *logger.Logger, holder string, lockTTL time.Duration) {
	acquired, err := locks.AcquireLock(ctx, lockName, holder, lockTTL)
	if err != nil {
		logg.Error(ctx, "reconcile lock acquire failed", err)
		jobMetrics.IncFailure(jobName)
		return
	}
	if !acquired {
		logg.Info(ctx, "reconcile lock held elsewhere, skipping sweep")
		return
	}
	defer func() {
		if err := locks.ReleaseLock(ctx, lockName); err != nil {
			logg.Warn(ctx, "reconcile lock release failed: "+err.Error())
		}
	}()

	start := time.Now()
	err = svc.ReconcileAll(ctx)
	jobMetrics.ObserveDuration(jobName, time.Since(start))
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		jobMetrics.IncFailure(jobName)
		logg.Error(ctx, "pot reconcile sweep failed", err)
		return
	}
	jobMetrics.IncSuccess(jobName)
	logg.Info(logg.WithField(ctx, "duration_ms", time.Since(start).Milliseconds()), "pot reconcile sweep complete")
}

func serveMetrics(ctx context.Context, port string, logg *logger.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{Addr: ":" + port, Handler: mux}

	go func() {
		<-ctx.Done()
		_ = server.Close()
	}()

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logg.Warn(ctx, "metrics server stopped: "+err.Error())
	}
}
