package progression

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/hopround/hopround-backend/pkg/db/models"
	"github.com/hopround/hopround-backend/pkg/enums"
)

// Repository manages routes and their stop sequence.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindRoute(ctx context.Context, routeID uuid.UUID) (*models.Route, error)
	ListStops(ctx context.Context, routeID uuid.UUID) ([]models.Stop, error)
	FindStop(ctx context.Context, stopID uuid.UUID) (*models.Stop, error)
	FindStopByPosition(ctx context.Context, routeID uuid.UUID, position int) (*models.Stop, error)
	AdvanceIndex(ctx context.Context, routeID uuid.UUID, fromIndex, toIndex int) (bool, error)
	TransitionStatus(ctx context.Context, routeID uuid.UUID, from, to enums.RouteStatus) (bool, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a progression repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindRoute(ctx context.Context, routeID uuid.UUID) (*models.Route, error) {
	var route models.Route
	if err := r.db.WithContext(ctx).First(&route, "id = ?", routeID).Error; err != nil {
		return nil, err
	}
	return &route, nil
}

func (r *repository) ListStops(ctx context.Context, routeID uuid.UUID) ([]models.Stop, error) {
	var stops []models.Stop
	err := r.db.WithContext(ctx).
		Where("route_id = ?", routeID).
		Order("position ASC").
		Find(&stops).Error
	return stops, err
}

func (r *repository) FindStop(ctx context.Context, stopID uuid.UUID) (*models.Stop, error) {
	var stop models.Stop
	if err := r.db.WithContext(ctx).First(&stop, "id = ?", stopID).Error; err != nil {
		return nil, err
	}
	return &stop, nil
}

func (r *repository) FindStopByPosition(ctx context.Context, routeID uuid.UUID, position int) (*models.Stop, error) {
	var stop models.Stop
	err := r.db.WithContext(ctx).
		Where("route_id = ? AND position = ?", routeID, position).
		First(&stop).Error
	if err != nil {
		return nil, err
	}
	return &stop, nil
}

// AdvanceIndex moves the route pointer with a compare-and-swap on the current
// index. A stale fromIndex affects zero rows and reports false.
func (r *repository) AdvanceIndex(ctx context.Context, routeID uuid.UUID, fromIndex, toIndex int) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Route{}).
		Where("id = ? AND current_stop_index = ?", routeID, fromIndex).
		Update("current_stop_index", toIndex)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// TransitionStatus applies a guarded status change so concurrent writers
// cannot regress the lifecycle.
func (r *repository) TransitionStatus(ctx context.Context, routeID uuid.UUID, from, to enums.RouteStatus) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Route{}).
		Where("id = ? AND status = ?", routeID, from).
		Update("status", to)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
