package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hopround/hopround-backend/api/controllers"
	"github.com/hopround/hopround-backend/api/middleware"
	"github.com/hopround/hopround-backend/internal/ledger"
	"github.com/hopround/hopround-backend/internal/nudges"
	"github.com/hopround/hopround-backend/internal/participants"
	"github.com/hopround/hopround-backend/internal/progression"
	"github.com/hopround/hopround-backend/internal/proximity"
	"github.com/hopround/hopround-backend/internal/realtime"
	"github.com/hopround/hopround-backend/internal/votes"
	"github.com/hopround/hopround-backend/pkg/config"
	"github.com/hopround/hopround-backend/pkg/logger"
	pkgredis "github.com/hopround/hopround-backend/pkg/redis"
)

// Deps carries everything the router wires into handlers. The proximity
// evaluator, hub, snapshot builder, and the two stores may be nil: without
// the stores the join rate limit and idempotency middleware pass through.
type Deps struct {
	Participants participants.Service
	Progression  progression.Service
	Ledger       ledger.Service
	Votes        votes.Service
	Nudges       nudges.Service
	Evaluator    *proximity.Evaluator
	Hub          *realtime.Hub
	Snapshots    *realtime.SnapshotBuilder
	JoinLimiter  middleware.RateLimiterStore
	Idempotency  pkgredis.IdempotencyStore
	Ready        map[string]controllers.Pinger
}

func NewRouter(cfg *config.Config, logg *logger.Logger, deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps.Ready))
	})

	r.Route("/api/v1", func(r chi.Router) {
		// Join is the only unauthenticated write: the token comes out of it.
		r.With(middleware.JoinRateLimit(cfg.JoinRateLimit, deps.JoinLimiter, logg)).
			Post("/routes/{routeID}/join", controllers.Join(deps.Participants, logg))

		// The websocket handshake authenticates itself (query param fallback).
		if deps.Hub != nil && deps.Snapshots != nil {
			r.Get("/routes/{routeID}/subscribe", controllers.Subscribe(cfg.JWT, deps.Hub, deps.Snapshots, logg))
		}

		r.Group(func(r chi.Router) {
			r.Use(
				middleware.Auth(cfg.JWT, logg),
				middleware.RouteScope(logg),
				middleware.Idempotency(deps.Idempotency, logg),
			)

			r.Route("/routes/{routeID}", func(r chi.Router) {
				r.Get("/", controllers.RouteDetail(deps.Progression, logg))
				r.Get("/participants", controllers.Participants(deps.Participants, logg))
				r.Get("/ledger", controllers.Ledger(deps.Ledger, logg))
				r.Get("/stops/{stopID}/votes", controllers.VotesSummary(deps.Votes, logg))

				r.Post("/leave", controllers.Leave(deps.Participants, logg))
				r.Post("/location", controllers.UpdateLocation(deps.Participants, deps.Progression, deps.Evaluator, logg))
				r.Post("/pot/spend", controllers.SpendPot(deps.Ledger, logg))
				r.Post("/pot/contributions", controllers.ContributePot(deps.Ledger, logg))
				r.Post("/pot/reconcile", controllers.ReconcilePot(deps.Ledger, logg))
				r.Post("/nudges", controllers.SendNudge(deps.Nudges, logg))
			})

			r.Route("/stops/{stopID}", func(r chi.Router) {
				r.Post("/checkin", controllers.CheckIn(deps.Ledger, logg))
				r.Post("/rounds", controllers.RecordRound(deps.Ledger, logg))
				r.Post("/votes", controllers.CastVote(deps.Votes, logg))
			})
		})
	})

	return r
}
