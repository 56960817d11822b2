package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/hopround/hopround-backend/api/middleware"
	"github.com/hopround/hopround-backend/api/responses"
	"github.com/hopround/hopround-backend/api/validators"
	"github.com/hopround/hopround-backend/internal/nudges"
	"github.com/hopround/hopround-backend/pkg/logger"
)

type nudgeRequest struct {
	StopID   uuid.UUID  `json:"stopId" validate:"required"`
	TargetID *uuid.UUID `json:"targetId,omitempty"`
	Body     string     `json:"body" validate:"required,max=500"`
}

// SendNudge posts a hurry-up message aimed at lagging participants.
func SendNudge(svc nudges.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		routeID, err := routeIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body nudgeRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		msg, err := svc.SendNudge(r.Context(), nudges.SendNudgeInput{
			RouteID:  routeID,
			SenderID: middleware.ParticipantIDFromContext(r.Context()),
			TargetID: body.TargetID,
			StopID:   body.StopID,
			Body:     body.Body,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, toMessageDTO(msg))
	}
}
