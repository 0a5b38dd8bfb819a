package stubs

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"uctrader/internal/models"
	"uctrader/internal/storage"
)

func TestMockDB_Traders(t *testing.T) {
	db := NewMockDB()
	ctx := context.Background()
	require.NoError(t, db.Initialize(ctx))

	now := time.Now().UTC()
	for _, id := range []int64{300, 100, 200} {
		err := db.SaveTrader(ctx, models.TraderRecord{
			UserID:       id,
			RegisteredAt: now,
			ExpiresAt:    now.Add(24 * time.Hour),
			Active:       true,
		})
		require.NoError(t, err)
	}

	traders, err := db.ListTraders(ctx)
	require.NoError(t, err)
	require.Len(t, traders, 3)
	assert.Equal(t, int64(100), traders[0].UserID)
	assert.Equal(t, int64(300), traders[2].UserID)

	got, err := db.GetTrader(ctx, 200)
	require.NoError(t, err)
	assert.True(t, got.Active)

	require.NoError(t, db.DeleteTrader(ctx, 200))
	_, err = db.GetTrader(ctx, 200)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestMockDB_TraderIsCopied(t *testing.T) {
	db := NewMockDB()
	ctx := context.Background()

	trader := models.TraderRecord{
		UserID:       1,
		SavedPlayers: []models.SavedPlayer{{ID: "5123", Name: "Alpha"}},
	}
	require.NoError(t, db.SaveTrader(ctx, trader))

	// Mutating the caller's slice must not leak into the store
	trader.SavedPlayers[0].Name = "Changed"

	got, err := db.GetTrader(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "Alpha", got.SavedPlayers[0].Name)
}

func TestMockDB_Keys(t *testing.T) {
	db := NewMockDB()
	ctx := context.Background()

	require.NoError(t, db.SaveKey(ctx, models.ActivationKey{Key: "UCK-1", Days: 30}))

	key, err := db.GetKey(ctx, "UCK-1")
	require.NoError(t, err)
	assert.Equal(t, 30, key.Days)

	require.NoError(t, db.DeleteKey(ctx, "UCK-1"))
	_, err = db.GetKey(ctx, "UCK-1")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestMockDB_LogsOrderedByTime(t *testing.T) {
	db := NewMockDB()
	ctx := context.Background()

	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, db.AppendLog(ctx, models.OperationLogEntry{ID: "b", PrincipalID: 7, Time: base.Add(time.Minute)}))
	require.NoError(t, db.AppendLog(ctx, models.OperationLogEntry{ID: "a", PrincipalID: 7, Time: base}))
	require.NoError(t, db.AppendLog(ctx, models.OperationLogEntry{ID: "x", PrincipalID: 8, Time: base}))

	entries, err := db.ListLogs(ctx, 7)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "a", entries[0].ID)
	assert.Equal(t, "b", entries[1].ID)

	empty, err := db.ListLogs(ctx, 9)
	require.NoError(t, err)
	assert.Empty(t, empty)
}
