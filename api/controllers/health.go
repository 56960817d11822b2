package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/hopround/hopround-backend/api/responses"
	"github.com/hopround/hopround-backend/pkg/config"
	pkgerrors "github.com/hopround/hopround-backend/pkg/errors"
	"github.com/hopround/hopround-backend/pkg/logger"
)

const readyCheckTimeout = 5 * time.Second

// Pinger is one readiness dependency.
type Pinger interface {
	Ping(context.Context) error
}

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-HopRound-Env", cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady fails when any hard dependency is unreachable. Nil pingers are
// skipped so worker-less deployments stay green.
func HealthReady(cfg *config.Config, logg *logger.Logger, checks map[string]Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-HopRound-Env", cfg.App.Env)

		ctx, cancel := context.WithTimeout(r.Context(), readyCheckTimeout)
		defer cancel()

		status := make(map[string]string, len(checks))
		for name, check := range checks {
			if check == nil {
				continue
			}
			if err := check.Ping(ctx); err != nil {
				status[name] = "down"
				responses.WriteError(r.Context(), logg, w,
					pkgerrors.Wrap(pkgerrors.CodeDependency, err, name+" unavailable").WithDetails(status))
				return
			}
			status[name] = "up"
		}

		responses.WriteSuccess(w, map[string]any{"status": "ready", "checks": status})
	}
}
