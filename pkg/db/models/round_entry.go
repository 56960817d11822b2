package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/hopround/hopround-backend/pkg/enums"
)

// RoundEntry records one consumed round. Rows are append-only: never updated,
// never deleted, which makes concurrent recording by two participants at the
// same stop safe without coordination.
type RoundEntry struct {
	ID            uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	RouteID       uuid.UUID       `gorm:"column:route_id;type:uuid;not null;index"`
	StopID        uuid.UUID       `gorm:"column:stop_id;type:uuid;not null;index"`
	ParticipantID uuid.UUID       `gorm:"column:participant_id;type:uuid;not null"`
	Type          enums.RoundType `gorm:"column:type;type:round_type_enum;not null"`
	PayerID       *uuid.UUID      `gorm:"column:payer_id;type:uuid"`
	CreatedAt     time.Time       `gorm:"column:created_at;autoCreateTime"`
}
