package participants

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/hopround/hopround-backend/pkg/db/models"
)

func setupParticipantsTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)

	participants := `
CREATE TABLE IF NOT EXISTS participants (
  id TEXT PRIMARY KEY,
  route_id TEXT NOT NULL,
  user_id TEXT,
  guest_id TEXT,
  display_name TEXT NOT NULL,
  is_active INTEGER NOT NULL DEFAULT 1,
  last_lat REAL,
  last_lng REAL,
  last_fix_at DATETIME,
  joined_at DATETIME,
  left_at DATETIME
);`
	require.NoError(t, db.Exec(participants).Error)
	return db
}

func seedParticipant(t *testing.T, db *gorm.DB, routeID uuid.UUID, name string, active bool, joined time.Time) *models.Participant {
	t.Helper()

	guestID := uuid.New()
	participant := &models.Participant{
		ID:          uuid.New(),
		RouteID:     routeID,
		GuestID:     &guestID,
		DisplayName: name,
		IsActive:    active,
		JoinedAt:    joined,
	}
	require.NoError(t, db.Create(participant).Error)
	return participant
}

func TestRepositoryFindByIdentity(t *testing.T) {
	db := setupParticipantsTestDB(t)
	repo := NewRepository(db)
	routeID := uuid.New()

	seeded := seedParticipant(t, db, routeID, "Dana", true, time.Now().UTC())

	found, err := repo.FindByIdentity(context.Background(), routeID, nil, seeded.GuestID)
	require.NoError(t, err)
	assert.Equal(t, seeded.ID, found.ID)

	otherGuest := uuid.New()
	_, err = repo.FindByIdentity(context.Background(), routeID, nil, &otherGuest)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	// No identity at all never matches a row.
	_, err = repo.FindByIdentity(context.Background(), routeID, nil, nil)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestRepositoryListActiveOrdersByJoin(t *testing.T) {
	db := setupParticipantsTestDB(t)
	repo := NewRepository(db)
	routeID := uuid.New()

	now := time.Now().UTC()
	second := seedParticipant(t, db, routeID, "Riley", true, now)
	first := seedParticipant(t, db, routeID, "Dana", true, now.Add(-time.Hour))
	seedParticipant(t, db, routeID, "Gone", false, now.Add(-2*time.Hour))
	seedParticipant(t, db, uuid.New(), "Elsewhere", true, now)

	rows, err := repo.ListActive(context.Background(), routeID)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, first.ID, rows[0].ID)
	assert.Equal(t, second.ID, rows[1].ID)

	count, err := repo.CountActive(context.Background(), routeID)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestRepositoryDeactivate(t *testing.T) {
	db := setupParticipantsTestDB(t)
	repo := NewRepository(db)
	routeID := uuid.New()

	participant := seedParticipant(t, db, routeID, "Dana", true, time.Now().UTC())

	now := time.Now().UTC()
	require.NoError(t, repo.Update(context.Background(), participant.ID, DeactivateUpdates(now)))

	reloaded, err := repo.Find(context.Background(), participant.ID)
	require.NoError(t, err)
	assert.False(t, reloaded.IsActive)
	require.NotNil(t, reloaded.LeftAt)

	count, err := repo.CountActive(context.Background(), routeID)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}
