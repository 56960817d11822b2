package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"

	"github.com/hopround/hopround-backend/api/controllers"
	"github.com/hopround/hopround-backend/api/routes"
	"github.com/hopround/hopround-backend/internal/ledger"
	"github.com/hopround/hopround-backend/internal/nudges"
	"github.com/hopround/hopround-backend/internal/participants"
	"github.com/hopround/hopround-backend/internal/progression"
	"github.com/hopround/hopround-backend/internal/proximity"
	"github.com/hopround/hopround-backend/internal/realtime"
	"github.com/hopround/hopround-backend/internal/votes"
	"github.com/hopround/hopround-backend/pkg/config"
	"github.com/hopround/hopround-backend/pkg/db"
	"github.com/hopround/hopround-backend/pkg/logger"
	"github.com/hopround/hopround-backend/pkg/migrate"
	"github.com/hopround/hopround-backend/pkg/outbox"
	"github.com/hopround/hopround-backend/pkg/outbox/idempotency"
	"github.com/hopround/hopround-backend/pkg/pubsub"
	"github.com/hopround/hopround-backend/pkg/redis"
)

const shutdownTimeout = 15 * time.Second

// The realtime worker serves the websocket surface: it runs the same router
// as the api binary with the hub attached, plus the Pub/Sub bridge feeding
// that hub.
func main() {
	logg := logger.New(logger.Options{ServiceName: "realtime-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "realtime-worker"

	logg = logger.New(logger.Options{
		ServiceName: "realtime-worker",
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

	pubsubClient, err := pubsub.NewClient(context.Background(), cfg.GCP, cfg.PubSub, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap pubsub", err)
		os.Exit(1)
	}
	defer func() {
		if err := pubsubClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing pubsub client", err)
		}
	}()

	outboxSvc := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)

	participantsRepo := participants.NewRepository(dbClient.DB())
	ledgerRepo := ledger.NewRepository(dbClient.DB())
	progressionRepo := progression.NewRepository(dbClient.DB())

	progressionSvc, err := progression.NewService(progressionRepo, dbClient, outboxSvc, redisClient, participantsRepo, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create progression service", err)
		os.Exit(1)
	}
	participantsSvc, err := participants.NewService(participantsRepo, progressionSvc, dbClient, outboxSvc, cfg.JWT)
	if err != nil {
		logg.Error(context.Background(), "failed to create participants service", err)
		os.Exit(1)
	}
	ledgerSvc, err := ledger.NewService(ledgerRepo, progressionSvc, dbClient, outboxSvc, progressionSvc)
	if err != nil {
		logg.Error(context.Background(), "failed to create ledger service", err)
		os.Exit(1)
	}
	votesSvc, err := votes.NewService(votes.NewRepository(dbClient.DB()), progressionRepo, participantsRepo, dbClient, outboxSvc, progressionSvc)
	if err != nil {
		logg.Error(context.Background(), "failed to create votes service", err)
		os.Exit(1)
	}
	nudgesSvc, err := nudges.NewService(nudges.NewRepository(dbClient.DB()), dbClient, outboxSvc)
	if err != nil {
		logg.Error(context.Background(), "failed to create nudges service", err)
		os.Exit(1)
	}
	evaluator, err := proximity.NewEvaluator(redisClient, ledgerRepo, ledgerSvc, dbClient, outboxSvc, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create proximity evaluator", err)
		os.Exit(1)
	}

	hub := realtime.NewHub(logg)
	snapshots, err := realtime.NewSnapshotBuilder(progressionSvc, participantsSvc, nudgesSvc)
	if err != nil {
		logg.Error(context.Background(), "failed to create snapshot builder", err)
		os.Exit(1)
	}

	guard, err := idempotency.NewManager(redisClient, cfg.Eventing.OutboxIdempotencyTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create idempotency guard", err)
		os.Exit(1)
	}
	bridge, err := realtime.NewBridge(hub, guard, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create realtime bridge", err)
		os.Exit(1)
	}

	router := routes.NewRouter(cfg, logg, routes.Deps{
		Participants: participantsSvc,
		Progression:  progressionSvc,
		Ledger:       ledgerSvc,
		Votes:        votesSvc,
		Nudges:       nudgesSvc,
		Evaluator:    evaluator,
		Hub:          hub,
		Snapshots:    snapshots,
		JoinLimiter:  redisClient,
		Idempotency:  redisClient,
		Ready: map[string]controllers.Pinger{
			"database": dbClient,
			"redis":    redisClient,
			"pubsub":   pubsubClient,
		},
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})
	logg.Info(ctx, "starting realtime worker")

	go func() {
		if err := bridge.Run(ctx, pubsubClient.RealtimeSubscription()); err != nil && !errors.Is(err, context.Canceled) {
			logg.Error(ctx, "realtime bridge stopped unexpectedly", err)
			stop()
		}
	}()

	addr := ":" + cfg.App.Port
	server := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "realtime server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "realtime server shutdown error", err)
		}
	}

	logg.Info(ctx, "realtime worker shutting down gracefully")
}
