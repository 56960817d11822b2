package models

import (
	"time"

	"github.com/google/uuid"
)

// Stop is one physical location on a route. ActualRounds is a shared mutable
// counter incremented with an atomic UPDATE, never read-modify-write.
// ArrivedAt is set exactly once by the first arrival.
type Stop struct {
	ID            uuid.UUID  `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	RouteID       uuid.UUID  `gorm:"column:route_id;type:uuid;not null;index"`
	Position      int        `gorm:"column:position;not null"`
	Name          string     `gorm:"column:name;type:text;not null"`
	Lat           float64    `gorm:"column:lat;not null"`
	Lng           float64    `gorm:"column:lng;not null"`
	PlannedRounds int        `gorm:"column:planned_rounds;not null;default:1"`
	MaxRounds     *int       `gorm:"column:max_rounds"`
	ActualRounds  int        `gorm:"column:actual_rounds;not null;default:0"`
	ArrivedAt     *time.Time `gorm:"column:arrived_at"`
	CreatedAt     time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}
