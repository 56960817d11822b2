package nudges

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/hopround/hopround-backend/pkg/db/models"
)

// Repository persists route chat messages, nudges included.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Insert(ctx context.Context, message *models.ChatMessage) error
	ListRecent(ctx context.Context, routeID uuid.UUID, limit int) ([]models.ChatMessage, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a chat-message repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Insert(ctx context.Context, message *models.ChatMessage) error {
	return r.db.WithContext(ctx).Create(message).Error
}

// ListRecent returns the newest messages oldest-first, ready for replay.
func (r *repository) ListRecent(ctx context.Context, routeID uuid.UUID, limit int) ([]models.ChatMessage, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []models.ChatMessage
	err := r.db.WithContext(ctx).
		Where("route_id = ?", routeID).
		Order("created_at DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
		rows[i], rows[j] = rows[j], rows[i]
	}
	return rows, nil
}
