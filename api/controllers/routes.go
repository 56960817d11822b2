package controllers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hopround/hopround-backend/api/middleware"
	"github.com/hopround/hopround-backend/api/responses"
	"github.com/hopround/hopround-backend/api/validators"
	"github.com/hopround/hopround-backend/internal/participants"
	"github.com/hopround/hopround-backend/internal/progression"
	"github.com/hopround/hopround-backend/internal/proximity"
	pkgerrors "github.com/hopround/hopround-backend/pkg/errors"
	"github.com/hopround/hopround-backend/pkg/logger"
	"github.com/hopround/hopround-backend/pkg/types"
)

type joinRequest struct {
	JoinCode    string     `json:"joinCode" validate:"required"`
	DisplayName string     `json:"displayName" validate:"required,max=80"`
	UserID      *uuid.UUID `json:"userId,omitempty"`
	GuestID     *uuid.UUID `json:"guestId,omitempty"`
}

// Join admits a user or guest onto a route. The returned token scopes every
// later call to this route.
func Join(svc participants.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		routeID, err := routeIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body joinRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		out, err := svc.Join(r.Context(), participants.JoinInput{
			RouteID:     routeID,
			JoinCode:    body.JoinCode,
			DisplayName: body.DisplayName,
			UserID:      body.UserID,
			GuestID:     body.GuestID,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		w.Header().Set("X-HR-Token", out.Token)
		responses.WriteSuccessStatus(w, http.StatusCreated, map[string]any{
			"participant": toParticipantDTO(out.Participant),
			"token":       out.Token,
			"rejoined":    out.Rejoined,
		})
	}
}

// Leave deactivates the caller on the route. Idempotent.
func Leave(svc participants.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		routeID, err := routeIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		participantID := middleware.ParticipantIDFromContext(r.Context())
		if err := svc.Leave(r.Context(), routeID, participantID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "left"})
	}
}

// RouteDetail returns the route with its stops and progression state.
func RouteDetail(svc progression.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		routeID, err := routeIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		state, err := svc.State(r.Context(), routeID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toRouteDetailDTO(state))
	}
}

// Participants lists the route's active participants.
func Participants(svc participants.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		routeID, err := routeIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		active, err := svc.ListActive(r.Context(), routeID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		dtos := make([]participantDTO, 0, len(active))
		for i := range active {
			dtos = append(dtos, toParticipantDTO(&active[i]))
		}
		responses.WriteSuccess(w, dtos)
	}
}

type locationRequest struct {
	Lat       float64 `json:"lat" validate:"min=-90,max=90"`
	Lng       float64 `json:"lng" validate:"min=-180,max=180"`
	AccuracyM float64 `json:"accuracyMeters" validate:"min=0"`
	UnixMS    int64   `json:"timestamp"`
}

type locationResponse struct {
	Reliable      bool    `json:"reliable"`
	DistanceM     float64 `json:"distanceMeters,omitempty"`
	Arrived       bool    `json:"arrived"`
	AutoCheckedIn bool    `json:"autoCheckedIn"`
	StopCompleted bool    `json:"stopCompleted"`
}

// UpdateLocation stores the fix and runs proximity evaluation against the
// route's current stop. A nil evaluator means positioning features are off;
// the fix still lands on the live map.
func UpdateLocation(svc participants.Service, states progression.Service, evaluator *proximity.Evaluator, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		routeID, err := routeIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body locationRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		participantID := middleware.ParticipantIDFromContext(r.Context())
		fix := types.GeoFix{
			LatLng:    types.LatLng{Lat: body.Lat, Lng: body.Lng},
			AccuracyM: body.AccuracyM,
			UnixMS:    body.UnixMS,
		}

		if _, err := svc.UpdateLocation(r.Context(), participants.LocationInput{
			RouteID:       routeID,
			ParticipantID: participantID,
			Fix:           fix,
		}); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		resp := locationResponse{}
		if evaluator != nil {
			state, err := states.State(r.Context(), routeID)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			if state.CurrentStop != nil && !state.Completed {
				outcome, err := evaluator.Evaluate(r.Context(), proximity.EvaluateInput{
					RouteID:       routeID,
					ParticipantID: participantID,
					Stop:          state.CurrentStop,
					Fix:           fix,
				})
				if err != nil {
					responses.WriteError(r.Context(), logg, w, err)
					return
				}
				resp = locationResponse{
					Reliable:      outcome.Reliable,
					DistanceM:     outcome.DistanceM,
					Arrived:       outcome.Arrived,
					AutoCheckedIn: outcome.AutoCheckedIn,
					StopCompleted: outcome.StopCompleted,
				}
			}
		}

		responses.WriteSuccess(w, resp)
	}
}

func routeIDParam(r *http.Request) (uuid.UUID, error) {
	routeID, err := uuid.Parse(chi.URLParam(r, "routeID"))
	if err != nil {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid route id")
	}
	return routeID, nil
}

func stopIDParam(r *http.Request) (uuid.UUID, error) {
	stopID, err := uuid.Parse(chi.URLParam(r, "stopID"))
	if err != nil {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid stop id")
	}
	return stopID, nil
}
