package auth

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// AccessTokenPayload captures the data available when minting a JWT. A token
// is scoped to one participant on one route; guests get the same shape.
type AccessTokenPayload struct {
	ParticipantID uuid.UUID
	RouteID       uuid.UUID
	DisplayName   string
	IsGuest       bool
	JTI           string
}

// AccessTokenClaims represents the typed JWT issued to clients.
type AccessTokenClaims struct {
	ParticipantID uuid.UUID `json:"participant_id"`
	RouteID       uuid.UUID `json:"route_id"`
	DisplayName   string    `json:"display_name,omitempty"`
	IsGuest       bool      `json:"is_guest"`
	jwt.RegisteredClaims
}
