package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/hopround/hopround-backend/pkg/enums"
)

// Route is the shared ordered sequence of stops a group progresses through.
// PotTotalSpent is a cached aggregate over pot_transactions; it is only ever
// written by the reconciliation path, never hand-incremented.
type Route struct {
	ID               uuid.UUID         `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Name             string            `gorm:"column:name;type:text;not null"`
	JoinCodeHash     string            `gorm:"column:join_code_hash;type:text;not null"`
	Status           enums.RouteStatus `gorm:"column:status;type:route_status_enum;not null;default:pending"`
	CurrentStopIndex int               `gorm:"column:current_stop_index;not null;default:0"`
	PotTotalSpent    decimal.Decimal   `gorm:"column:pot_total_spent;type:numeric(12,2);not null;default:0"`
	CreatedAt        time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}
