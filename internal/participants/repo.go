package participants

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/hopround/hopround-backend/pkg/db/models"
)

// Repository manages persistence for route participants.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, participant *models.Participant) error
	Find(ctx context.Context, id uuid.UUID) (*models.Participant, error)
	FindByIdentity(ctx context.Context, routeID uuid.UUID, userID, guestID *uuid.UUID) (*models.Participant, error)
	ListActive(ctx context.Context, routeID uuid.UUID) ([]models.Participant, error)
	CountActive(ctx context.Context, routeID uuid.UUID) (int, error)
	Update(ctx context.Context, id uuid.UUID, updates map[string]any) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a participant repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, participant *models.Participant) error {
	return r.db.WithContext(ctx).Create(participant).Error
}

func (r *repository) Find(ctx context.Context, id uuid.UUID) (*models.Participant, error) {
	var participant models.Participant
	if err := r.db.WithContext(ctx).First(&participant, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &participant, nil
}

func (r *repository) FindByIdentity(ctx context.Context, routeID uuid.UUID, userID, guestID *uuid.UUID) (*models.Participant, error) {
	query := r.db.WithContext(ctx).Where("route_id = ?", routeID)
	switch {
	case userID != nil:
		query = query.Where("user_id = ?", *userID)
	case guestID != nil:
		query = query.Where("guest_id = ?", *guestID)
	default:
		return nil, gorm.ErrRecordNotFound
	}
	var participant models.Participant
	if err := query.First(&participant).Error; err != nil {
		return nil, err
	}
	return &participant, nil
}

func (r *repository) ListActive(ctx context.Context, routeID uuid.UUID) ([]models.Participant, error) {
	var rows []models.Participant
	err := r.db.WithContext(ctx).
		Where("route_id = ? AND is_active = ?", routeID, true).
		Order("joined_at ASC").
		Find(&rows).Error
	return rows, err
}

func (r *repository) CountActive(ctx context.Context, routeID uuid.UUID) (int, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Participant{}).
		Where("route_id = ? AND is_active = ?", routeID, true).
		Count(&count).Error
	return int(count), err
}

func (r *repository) Update(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	return r.db.WithContext(ctx).
		Model(&models.Participant{}).
		Where("id = ?", id).
		Updates(updates).Error
}

// DeactivateUpdates builds the column set used when a participant leaves.
func DeactivateUpdates(now time.Time) map[string]any {
	return map[string]any{
		"is_active": false,
		"left_at":   now,
	}
}
