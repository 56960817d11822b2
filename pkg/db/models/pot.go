package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PotContribution is an immutable record of money paid into the shared pot.
type PotContribution struct {
	ID            uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	RouteID       uuid.UUID       `gorm:"column:route_id;type:uuid;not null;index"`
	ParticipantID uuid.UUID       `gorm:"column:participant_id;type:uuid;not null"`
	Amount        decimal.Decimal `gorm:"column:amount;type:numeric(12,2);not null"`
	CreatedAt     time.Time       `gorm:"column:created_at;autoCreateTime"`
}

// PotTransaction is an immutable record of money spent from the shared pot.
// Route.PotTotalSpent must equal the sum of these rows after reconciliation.
type PotTransaction struct {
	ID          uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	RouteID     uuid.UUID       `gorm:"column:route_id;type:uuid;not null;index"`
	Amount      decimal.Decimal `gorm:"column:amount;type:numeric(12,2);not null"`
	Description string          `gorm:"column:description;type:text;not null"`
	CreatedAt   time.Time       `gorm:"column:created_at;autoCreateTime"`
}
