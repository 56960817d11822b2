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
	"github.com/hopround/hopround-backend/internal/votes"
	"github.com/hopround/hopround-backend/pkg/config"
	"github.com/hopround/hopround-backend/pkg/db"
	"github.com/hopround/hopround-backend/pkg/logger"
	"github.com/hopround/hopround-backend/pkg/migrate"
	"github.com/hopround/hopround-backend/pkg/outbox"
	"github.com/hopround/hopround-backend/pkg/redis"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
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

	router := routes.NewRouter(cfg, logg, routes.Deps{
		Participants: participantsSvc,
		Progression:  progressionSvc,
		Ledger:       ledgerSvc,
		Votes:        votesSvc,
		Nudges:       nudgesSvc,
		Evaluator:    evaluator,
		JoinLimiter:  redisClient,
		Idempotency:  redisClient,
		Ready: map[string]controllers.Pinger{
			"database": dbClient,
			"redis":    redisClient,
		},
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

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
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "api server shutdown error", err)
		}
	}

	logg.Info(ctx, "api server shut down gracefully")
}
