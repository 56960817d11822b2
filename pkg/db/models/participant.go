package models

import (
	"time"

	"github.com/google/uuid"
)

// Participant is a member of a route, identified by exactly one of UserID or
// GuestID. Participants are deactivated on leave, never hard-deleted while
// the route is live.
type Participant struct {
	ID          uuid.UUID  `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	RouteID     uuid.UUID  `gorm:"column:route_id;type:uuid;not null;index"`
	UserID      *uuid.UUID `gorm:"column:user_id;type:uuid"`
	GuestID     *uuid.UUID `gorm:"column:guest_id;type:uuid"`
	DisplayName string     `gorm:"column:display_name;type:text;not null"`
	IsActive    bool       `gorm:"column:is_active;not null;default:true"`
	LastLat     *float64   `gorm:"column:last_lat"`
	LastLng     *float64   `gorm:"column:last_lng"`
	LastFixAt   *time.Time `gorm:"column:last_fix_at"`
	JoinedAt    time.Time  `gorm:"column:joined_at;autoCreateTime"`
	LeftAt      *time.Time `gorm:"column:left_at"`
}

// Identity returns the stable external identity backing this participant.
func (p Participant) Identity() uuid.UUID {
	if p.UserID != nil {
		return *p.UserID
	}
	if p.GuestID != nil {
		return *p.GuestID
	}
	return uuid.Nil
}

// IsGuest reports whether the participant joined without a user account.
func (p Participant) IsGuest() bool {
	return p.UserID == nil && p.GuestID != nil
}
