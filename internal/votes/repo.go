package votes

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/hopround/hopround-backend/pkg/db/models"
)

// Repository persists skip votes, one row per (stop, participant).
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Upsert(ctx context.Context, vote *models.SkipVote) error
	List(ctx context.Context, stopID uuid.UUID) ([]models.SkipVote, error)
	CountSkips(ctx context.Context, stopID uuid.UUID) (int, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a skip-vote repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// Upsert applies last-write-wins on the (stop_id, participant_id) constraint:
// a re-vote overwrites the flag without adding a voter.
func (r *repository) Upsert(ctx context.Context, vote *models.SkipVote) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "stop_id"}, {Name: "participant_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"skip", "updated_at"}),
		}).
		Create(vote).Error
}

func (r *repository) List(ctx context.Context, stopID uuid.UUID) ([]models.SkipVote, error) {
	var rows []models.SkipVote
	err := r.db.WithContext(ctx).
		Where("stop_id = ?", stopID).
		Order("updated_at ASC").
		Find(&rows).Error
	return rows, err
}

func (r *repository) CountSkips(ctx context.Context, stopID uuid.UUID) (int, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.SkipVote{}).
		Where("stop_id = ? AND skip = ?", stopID, true).
		Count(&count).Error
	return int(count), err
}
