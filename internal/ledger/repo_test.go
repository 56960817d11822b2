package ledger

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/hopround/hopround-backend/pkg/db/models"
	"github.com/hopround/hopround-backend/pkg/enums"
)

func setupLedgerTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)

	schemas := []string{
		`CREATE TABLE IF NOT EXISTS routes (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  join_code_hash TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'pending',
  current_stop_index INTEGER NOT NULL DEFAULT 0,
  pot_total_spent NUMERIC NOT NULL DEFAULT 0,
  created_at DATETIME,
  updated_at DATETIME
);`,
		`CREATE TABLE IF NOT EXISTS stops (
  id TEXT PRIMARY KEY,
  route_id TEXT NOT NULL,
  position INTEGER NOT NULL,
  name TEXT NOT NULL,
  lat REAL NOT NULL DEFAULT 0,
  lng REAL NOT NULL DEFAULT 0,
  planned_rounds INTEGER NOT NULL DEFAULT 1,
  max_rounds INTEGER,
  actual_rounds INTEGER NOT NULL DEFAULT 0,
  arrived_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`,
		`CREATE TABLE IF NOT EXISTS round_entries (
  id TEXT PRIMARY KEY,
  route_id TEXT NOT NULL,
  stop_id TEXT NOT NULL,
  participant_id TEXT NOT NULL,
  type TEXT NOT NULL,
  payer_id TEXT,
  created_at DATETIME
);`,
		`CREATE TABLE IF NOT EXISTS pot_contributions (
  id TEXT PRIMARY KEY,
  route_id TEXT NOT NULL,
  participant_id TEXT NOT NULL,
  amount NUMERIC NOT NULL,
  created_at DATETIME
);`,
		`CREATE TABLE IF NOT EXISTS pot_transactions (
  id TEXT PRIMARY KEY,
  route_id TEXT NOT NULL,
  amount NUMERIC NOT NULL,
  description TEXT NOT NULL,
  created_at DATETIME
);`,
	}
	for _, schema := range schemas {
		require.NoError(t, db.Exec(schema).Error)
	}
	return db
}

func seedRoute(t *testing.T, db *gorm.DB) *models.Route {
	t.Helper()

	route := &models.Route{
		ID:           uuid.New(),
		Name:         "test crawl",
		JoinCodeHash: "hash",
		Status:       enums.RouteStatusActive,
	}
	require.NoError(t, db.Create(route).Error)
	return route
}

func seedDBStop(t *testing.T, db *gorm.DB, routeID uuid.UUID, planned int, max *int) *models.Stop {
	t.Helper()

	stop := &models.Stop{
		ID:            uuid.New(),
		RouteID:       routeID,
		Position:      0,
		Name:          "Anchor",
		PlannedRounds: planned,
		MaxRounds:     max,
	}
	require.NoError(t, db.Create(stop).Error)
	return stop
}

func TestRepositoryIncrementActualRoundsBound(t *testing.T) {
	db := setupLedgerTestDB(t)
	repo := NewRepository(db)
	route := seedRoute(t, db)
	max := 2
	stop := seedDBStop(t, db, route.ID, 1, &max)

	for i := 0; i < 2; i++ {
		applied, err := repo.IncrementActualRounds(context.Background(), stop.ID)
		require.NoError(t, err)
		assert.True(t, applied)
	}

	applied, err := repo.IncrementActualRounds(context.Background(), stop.ID)
	require.NoError(t, err)
	assert.False(t, applied, "increment past max_rounds must not apply")

	reloaded, err := repo.FindStop(context.Background(), stop.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, reloaded.ActualRounds)
}

func TestRepositorySetArrivedAtOnce(t *testing.T) {
	db := setupLedgerTestDB(t)
	repo := NewRepository(db)
	route := seedRoute(t, db)
	stop := seedDBStop(t, db, route.ID, 1, nil)

	first, err := repo.SetArrivedAt(context.Background(), stop.ID)
	require.NoError(t, err)
	assert.True(t, first)

	second, err := repo.SetArrivedAt(context.Background(), stop.ID)
	require.NoError(t, err)
	assert.False(t, second, "arrival stamps exactly once")
}

func TestRepositoryReconcilePotTotal(t *testing.T) {
	db := setupLedgerTestDB(t)
	repo := NewRepository(db)
	route := seedRoute(t, db)

	for _, amount := range []int64{10, 15} {
		require.NoError(t, repo.InsertTransaction(context.Background(), &models.PotTransaction{
			ID:          uuid.New(),
			RouteID:     route.ID,
			Amount:      decimal.NewFromInt(amount),
			Description: "round",
		}))
	}

	healed, err := repo.ReconcilePotTotal(context.Background(), route.ID)
	require.NoError(t, err)
	assert.True(t, healed.Equal(decimal.NewFromInt(25)), "got %s", healed)

	// Idempotent: running again yields the same value.
	again, err := repo.ReconcilePotTotal(context.Background(), route.ID)
	require.NoError(t, err)
	assert.True(t, again.Equal(healed))
}

func TestRepositoryCountRoundsGrouping(t *testing.T) {
	db := setupLedgerTestDB(t)
	repo := NewRepository(db)
	route := seedRoute(t, db)
	stop := seedDBStop(t, db, route.ID, 1, nil)

	drinker := uuid.New()
	payer := uuid.New()
	for _, roundType := range []enums.RoundType{enums.RoundTypeBeer, enums.RoundTypeCocktail, enums.RoundTypeBeer} {
		require.NoError(t, repo.InsertRound(context.Background(), &models.RoundEntry{
			ID:            uuid.New(),
			RouteID:       route.ID,
			StopID:        stop.ID,
			ParticipantID: drinker,
			Type:          roundType,
			PayerID:       &payer,
		}))
	}

	byParticipant, err := repo.CountRoundsByParticipant(context.Background(), route.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, byParticipant[drinker])

	byType, err := repo.CountRoundsByType(context.Background(), route.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, byType[enums.RoundTypeBeer])
	assert.Equal(t, 1, byType[enums.RoundTypeCocktail])

	byPayer, err := repo.CountRoundsByPayer(context.Background(), route.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, byPayer[payer])
}

func TestRepositorySumsEmptyRoute(t *testing.T) {
	db := setupLedgerTestDB(t)
	repo := NewRepository(db)
	route := seedRoute(t, db)

	contributed, err := repo.SumContributions(context.Background(), route.ID)
	require.NoError(t, err)
	assert.True(t, contributed.IsZero())

	spent, err := repo.SumTransactions(context.Background(), route.ID)
	require.NoError(t, err)
	assert.True(t, spent.IsZero())
}
