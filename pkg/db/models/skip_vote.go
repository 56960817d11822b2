package models

import (
	"time"

	"github.com/google/uuid"
)

// SkipVote holds one row per (stop, participant). Re-votes overwrite the Skip
// flag in place (last-write-wins); the unique constraint prevents duplicates.
type SkipVote struct {
	ID            uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	RouteID       uuid.UUID `gorm:"column:route_id;type:uuid;not null;index"`
	StopID        uuid.UUID `gorm:"column:stop_id;type:uuid;not null;uniqueIndex:ux_skip_votes_stop_participant"`
	ParticipantID uuid.UUID `gorm:"column:participant_id;type:uuid;not null;uniqueIndex:ux_skip_votes_stop_participant"`
	Skip          bool      `gorm:"column:skip;not null"`
	CreatedAt     time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
