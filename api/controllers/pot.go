package controllers

import (
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/hopround/hopround-backend/api/middleware"
	"github.com/hopround/hopround-backend/api/responses"
	"github.com/hopround/hopround-backend/api/validators"
	"github.com/hopround/hopround-backend/internal/ledger"
	pkgerrors "github.com/hopround/hopround-backend/pkg/errors"
	"github.com/hopround/hopround-backend/pkg/logger"
	"github.com/hopround/hopround-backend/pkg/outbox"
)

type potSpendRequest struct {
	Amount      string `json:"amount" validate:"required"`
	Description string `json:"description" validate:"required,max=200"`
}

// SpendPot records money spent from the shared pot. Overdraw is a warning in
// the response, not a rejection.
func SpendPot(svc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		routeID, err := routeIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body potSpendRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		amount, err := parseAmount(body.Amount)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		out, err := svc.SpendPot(r.Context(), ledger.PotSpendInput{
			RouteID:     routeID,
			Amount:      amount,
			Description: body.Description,
			Actor: &outbox.ActorRef{
				ParticipantID: middleware.ParticipantIDFromContext(r.Context()),
			},
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, map[string]any{
			"newSpent":  out.NewSpent,
			"overdrawn": out.Overdrawn,
		})
	}
}

type potContributionRequest struct {
	Amount string `json:"amount" validate:"required"`
}

// ContributePot records money paid into the shared pot by the caller.
func ContributePot(svc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		routeID, err := routeIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body potContributionRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		amount, err := parseAmount(body.Amount)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		out, err := svc.ContributePot(r.Context(), ledger.PotContributionInput{
			RouteID:       routeID,
			ParticipantID: middleware.ParticipantIDFromContext(r.Context()),
			Amount:        amount,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, map[string]any{
			"newBalance": out.NewBalance,
		})
	}
}

// ReconcilePot recomputes the cached pot aggregate from the transaction
// ledger. Safe to call repeatedly.
func ReconcilePot(svc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		routeID, err := routeIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		out, err := svc.Reconcile(r.Context(), routeID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]any{
			"potTotalSpent": out.PotTotalSpent,
			"drifted":       out.Drifted,
		})
	}
}

// Ledger returns the route's read-time aggregates.
func Ledger(svc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		routeID, err := routeIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		agg, err := svc.Aggregates(r.Context(), routeID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toLedgerDTO(agg))
	}
}

func parseAmount(raw string) (decimal.Decimal, error) {
	amount, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid amount")
	}
	if amount.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}
	return amount, nil
}
