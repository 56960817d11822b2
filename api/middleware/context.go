package middleware

import (
	"context"

	"github.com/google/uuid"
)

type contextKey string

const (
	ctxParticipantID contextKey = "participant_id"
	ctxRouteID       contextKey = "route_id"
	ctxIsGuest       contextKey = "is_guest"
)

// ParticipantIDFromContext returns the authenticated participant, or uuid.Nil.
func ParticipantIDFromContext(ctx context.Context) uuid.UUID {
	if ctx == nil {
		return uuid.Nil
	}
	if v, ok := ctx.Value(ctxParticipantID).(uuid.UUID); ok {
		return v
	}
	return uuid.Nil
}

// RouteIDFromContext returns the route the token is scoped to, or uuid.Nil.
func RouteIDFromContext(ctx context.Context) uuid.UUID {
	if ctx == nil {
		return uuid.Nil
	}
	if v, ok := ctx.Value(ctxRouteID).(uuid.UUID); ok {
		return v
	}
	return uuid.Nil
}

// IsGuestFromContext reports whether the token was issued to a guest.
func IsGuestFromContext(ctx context.Context) bool {
	if ctx == nil {
		return false
	}
	if v, ok := ctx.Value(ctxIsGuest).(bool); ok {
		return v
	}
	return false
}

// WithIdentity seeds the participant identity, mainly for tests.
func WithIdentity(ctx context.Context, participantID, routeID uuid.UUID, isGuest bool) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = context.WithValue(ctx, ctxParticipantID, participantID)
	ctx = context.WithValue(ctx, ctxRouteID, routeID)
	return context.WithValue(ctx, ctxIsGuest, isGuest)
}
