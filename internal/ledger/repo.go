package ledger

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/hopround/hopround-backend/pkg/db/models"
	"github.com/hopround/hopround-backend/pkg/enums"
)

// Repository persists the append-only ledger: round entries, pot
// contributions and pot transactions, plus the stop counters they feed.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	InsertRound(ctx context.Context, entry *models.RoundEntry) error
	ListRounds(ctx context.Context, routeID uuid.UUID) ([]models.RoundEntry, error)
	CountRoundsByParticipant(ctx context.Context, routeID uuid.UUID) (map[uuid.UUID]int, error)
	CountRoundsByStop(ctx context.Context, routeID uuid.UUID) (map[uuid.UUID]int, error)
	CountRoundsByPayer(ctx context.Context, routeID uuid.UUID) (map[uuid.UUID]int, error)
	CountRoundsByType(ctx context.Context, routeID uuid.UUID) (map[enums.RoundType]int, error)

	FindStop(ctx context.Context, stopID uuid.UUID) (*models.Stop, error)
	IncrementActualRounds(ctx context.Context, stopID uuid.UUID) (bool, error)
	SetArrivedAt(ctx context.Context, stopID uuid.UUID) (bool, error)

	InsertContribution(ctx context.Context, contribution *models.PotContribution) error
	InsertTransaction(ctx context.Context, transaction *models.PotTransaction) error
	ListContributions(ctx context.Context, routeID uuid.UUID) ([]models.PotContribution, error)
	ListTransactions(ctx context.Context, routeID uuid.UUID) ([]models.PotTransaction, error)
	SumContributions(ctx context.Context, routeID uuid.UUID) (decimal.Decimal, error)
	SumTransactions(ctx context.Context, routeID uuid.UUID) (decimal.Decimal, error)

	ReconcilePotTotal(ctx context.Context, routeID uuid.UUID) (decimal.Decimal, error)
	ListRouteIDs(ctx context.Context) ([]uuid.UUID, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a ledger repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) InsertRound(ctx context.Context, entry *models.RoundEntry) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *repository) ListRounds(ctx context.Context, routeID uuid.UUID) ([]models.RoundEntry, error) {
	var rows []models.RoundEntry
	err := r.db.WithContext(ctx).
		Where("route_id = ?", routeID).
		Order("created_at ASC").
		Find(&rows).Error
	return rows, err
}

type groupCount struct {
	Key   string `gorm:"column:key"`
	Count int    `gorm:"column:count"`
}

func (r *repository) countRoundsGroupedBy(ctx context.Context, routeID uuid.UUID, column string) ([]groupCount, error) {
	var rows []groupCount
	err := r.db.WithContext(ctx).
		Model(&models.RoundEntry{}).
		Select(column+" AS key, COUNT(*) AS count").
		Where("route_id = ?", routeID).
		Group(column).
		Scan(&rows).Error
	return rows, err
}

func uuidCounts(rows []groupCount) (map[uuid.UUID]int, error) {
	counts := make(map[uuid.UUID]int, len(rows))
	for _, row := range rows {
		if row.Key == "" {
			continue
		}
		id, err := uuid.Parse(row.Key)
		if err != nil {
			return nil, err
		}
		counts[id] = row.Count
	}
	return counts, nil
}

func (r *repository) CountRoundsByParticipant(ctx context.Context, routeID uuid.UUID) (map[uuid.UUID]int, error) {
	rows, err := r.countRoundsGroupedBy(ctx, routeID, "participant_id")
	if err != nil {
		return nil, err
	}
	return uuidCounts(rows)
}

func (r *repository) CountRoundsByStop(ctx context.Context, routeID uuid.UUID) (map[uuid.UUID]int, error) {
	rows, err := r.countRoundsGroupedBy(ctx, routeID, "stop_id")
	if err != nil {
		return nil, err
	}
	return uuidCounts(rows)
}

func (r *repository) CountRoundsByPayer(ctx context.Context, routeID uuid.UUID) (map[uuid.UUID]int, error) {
	rows, err := r.countRoundsGroupedBy(ctx, routeID, "payer_id")
	if err != nil {
		return nil, err
	}
	return uuidCounts(rows)
}

func (r *repository) CountRoundsByType(ctx context.Context, routeID uuid.UUID) (map[enums.RoundType]int, error) {
	rows, err := r.countRoundsGroupedBy(ctx, routeID, "type")
	if err != nil {
		return nil, err
	}
	counts := make(map[enums.RoundType]int, len(rows))
	for _, row := range rows {
		counts[enums.RoundType(row.Key)] = row.Count
	}
	return counts, nil
}

func (r *repository) FindStop(ctx context.Context, stopID uuid.UUID) (*models.Stop, error) {
	var stop models.Stop
	if err := r.db.WithContext(ctx).First(&stop, "id = ?", stopID).Error; err != nil {
		return nil, err
	}
	return &stop, nil
}

// IncrementActualRounds bumps the counter with a single guarded UPDATE so
// concurrent check-ins never lose increments or exceed max_rounds.
func (r *repository) IncrementActualRounds(ctx context.Context, stopID uuid.UUID) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Stop{}).
		Where("id = ? AND (max_rounds IS NULL OR actual_rounds < max_rounds)", stopID).
		Update("actual_rounds", gorm.Expr("actual_rounds + 1"))
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// SetArrivedAt stamps the stop once; later calls affect zero rows.
func (r *repository) SetArrivedAt(ctx context.Context, stopID uuid.UUID) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Stop{}).
		Where("id = ? AND arrived_at IS NULL", stopID).
		Update("arrived_at", gorm.Expr("CURRENT_TIMESTAMP"))
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repository) InsertContribution(ctx context.Context, contribution *models.PotContribution) error {
	return r.db.WithContext(ctx).Create(contribution).Error
}

func (r *repository) InsertTransaction(ctx context.Context, transaction *models.PotTransaction) error {
	return r.db.WithContext(ctx).Create(transaction).Error
}

func (r *repository) ListContributions(ctx context.Context, routeID uuid.UUID) ([]models.PotContribution, error) {
	var rows []models.PotContribution
	err := r.db.WithContext(ctx).
		Where("route_id = ?", routeID).
		Order("created_at ASC").
		Find(&rows).Error
	return rows, err
}

func (r *repository) ListTransactions(ctx context.Context, routeID uuid.UUID) ([]models.PotTransaction, error) {
	var rows []models.PotTransaction
	err := r.db.WithContext(ctx).
		Where("route_id = ?", routeID).
		Order("created_at ASC").
		Find(&rows).Error
	return rows, err
}

func (r *repository) sumAmount(ctx context.Context, model any, routeID uuid.UUID) (decimal.Decimal, error) {
	var raw *string
	err := r.db.WithContext(ctx).
		Model(model).
		Select("CAST(COALESCE(SUM(amount), 0) AS TEXT)").
		Where("route_id = ?", routeID).
		Scan(&raw).Error
	if err != nil {
		return decimal.Zero, err
	}
	if raw == nil {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(*raw)
}

func (r *repository) SumContributions(ctx context.Context, routeID uuid.UUID) (decimal.Decimal, error) {
	return r.sumAmount(ctx, &models.PotContribution{}, routeID)
}

func (r *repository) SumTransactions(ctx context.Context, routeID uuid.UUID) (decimal.Decimal, error) {
	return r.sumAmount(ctx, &models.PotTransaction{}, routeID)
}

// ReconcilePotTotal rewrites the cached aggregate from the transactions table
// in one statement, then returns the healed value.
func (r *repository) ReconcilePotTotal(ctx context.Context, routeID uuid.UUID) (decimal.Decimal, error) {
	err := r.db.WithContext(ctx).Exec(
		`UPDATE routes
		 SET pot_total_spent = COALESCE((SELECT SUM(amount) FROM pot_transactions WHERE route_id = routes.id), 0)
		 WHERE id = ?`, routeID,
	).Error
	if err != nil {
		return decimal.Zero, err
	}

	var route models.Route
	if err := r.db.WithContext(ctx).First(&route, "id = ?", routeID).Error; err != nil {
		return decimal.Zero, err
	}
	return route.PotTotalSpent, nil
}

func (r *repository) ListRouteIDs(ctx context.Context) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).
		Model(&models.Route{}).
		Pluck("id", &ids).Error
	return ids, err
}
