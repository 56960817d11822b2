package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/hopround/hopround-backend/api/middleware"
	"github.com/hopround/hopround-backend/api/responses"
	"github.com/hopround/hopround-backend/api/validators"
	"github.com/hopround/hopround-backend/internal/ledger"
	"github.com/hopround/hopround-backend/internal/votes"
	"github.com/hopround/hopround-backend/pkg/enums"
	pkgerrors "github.com/hopround/hopround-backend/pkg/errors"
	"github.com/hopround/hopround-backend/pkg/logger"
)

// CheckIn confirms a round at the stop, bumping its counter atomically.
func CheckIn(svc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stopID, err := stopIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		out, err := svc.CheckIn(r.Context(), ledger.CheckInInput{
			RouteID:       middleware.RouteIDFromContext(r.Context()),
			StopID:        stopID,
			ParticipantID: middleware.ParticipantIDFromContext(r.Context()),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]any{
			"actualRounds":  out.ActualRounds,
			"stopCompleted": out.StopCompleted,
			"firstArrival":  out.FirstArrival,
			"advanced":      out.Advanced,
		})
	}
}

type recordRoundRequest struct {
	Type    string     `json:"type" validate:"required"`
	PayerID *uuid.UUID `json:"payerId,omitempty"`
}

// RecordRound appends one consumption entry for the caller at the stop.
func RecordRound(svc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stopID, err := stopIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body recordRoundRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		roundType, err := enums.ParseRoundType(body.Type)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "round type"))
			return
		}

		entry, err := svc.RecordRound(r.Context(), ledger.RecordRoundInput{
			RouteID:       middleware.RouteIDFromContext(r.Context()),
			StopID:        stopID,
			ParticipantID: middleware.ParticipantIDFromContext(r.Context()),
			Type:          roundType,
			PayerID:       body.PayerID,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, toRoundEntryDTO(entry))
	}
}

type castVoteRequest struct {
	Skip *bool `json:"skip" validate:"required"`
}

// CastVote upserts the caller's skip vote and reports the running tally.
func CastVote(svc votes.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stopID, err := stopIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body castVoteRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		out, err := svc.CastVote(r.Context(), votes.CastVoteInput{
			RouteID:       middleware.RouteIDFromContext(r.Context()),
			StopID:        stopID,
			ParticipantID: middleware.ParticipantIDFromContext(r.Context()),
			Skip:          *body.Skip,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]any{
			"summary":  toVoteSummaryDTO(out.Summary),
			"decided":  out.Decided,
			"advanced": out.Advanced,
		})
	}
}

// VotesSummary reads the tally for a stop.
func VotesSummary(svc votes.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		routeID, err := routeIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		stopID, err := stopIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		summary, err := svc.StopSummary(r.Context(), routeID, stopID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toVoteSummaryDTO(*summary))
	}
}
