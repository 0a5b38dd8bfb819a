package ch

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	clickhouseTC "github.com/testcontainers/testcontainers-go/modules/clickhouse"

	"uctrader/internal/models"
	"uctrader/internal/storage"
)

// setupTestDB creates a test ClickHouse instance using testcontainers
func setupTestDB(t *testing.T) (*ClickHouseDB, func()) {
	if testing.Short() {
		t.Skip("skipping ClickHouse container test in short mode")
	}

	ctx := context.Background()

	// Start ClickHouse container
	clickhouseContainer, err := clickhouseTC.Run(ctx,
		"clickhouse/clickhouse-server:24.3.3.102-alpine",
		clickhouseTC.WithUsername("default"),
		clickhouseTC.WithPassword(""),
		clickhouseTC.WithDatabase("default"),
	)
	require.NoError(t, err, "Failed to start ClickHouse container")

	// Get connection details
	host, err := clickhouseContainer.Host(ctx)
	require.NoError(t, err)

	port, err := clickhouseContainer.MappedPort(ctx, "9000/tcp")
	require.NoError(t, err)

	// Create database connection
	db, err := NewClickHouseDB(host, port.Int(), "default", "default", "", false)
	require.NoError(t, err, "Failed to connect to ClickHouse")

	// Apply the embedded migrations
	require.NoError(t, db.Initialize(ctx), "Failed to run migrations")

	cleanup := func() {
		db.Close()
		clickhouseContainer.Terminate(ctx)
	}

	return db, cleanup
}

func TestClickHouseDB_Traders(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	traders, err := db.ListTraders(ctx)
	require.NoError(t, err)
	assert.Empty(t, traders)

	trader := models.TraderRecord{
		UserID:       42,
		Username:     "seller",
		Name:         "Top Seller",
		RegisteredAt: now,
		ExpiresAt:    now.Add(30 * 24 * time.Hour),
		Active:       true,
		SavedPlayers: []models.SavedPlayer{{ID: "5123", Name: "Alpha"}, {ID: "5124", Name: "Bravo"}},
	}
	require.NoError(t, db.SaveTrader(ctx, trader))

	got, err := db.GetTrader(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, "seller", got.Username)
	assert.True(t, got.Active)
	assert.True(t, got.ExpiresAt.Equal(trader.ExpiresAt))
	assert.Equal(t, trader.SavedPlayers, got.SavedPlayers)

	// A newer version replaces the old one
	trader.Active = false
	trader.SavedPlayers = nil
	require.NoError(t, db.SaveTrader(ctx, trader))

	got, err = db.GetTrader(ctx, 42)
	require.NoError(t, err)
	assert.False(t, got.Active)
	assert.Empty(t, got.SavedPlayers)

	traders, err = db.ListTraders(ctx)
	require.NoError(t, err)
	assert.Len(t, traders, 1)

	require.NoError(t, db.DeleteTrader(ctx, 42))
	_, err = db.GetTrader(ctx, 42)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestClickHouseDB_Keys(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()

	_, err := db.GetKey(ctx, "UCK-MISSING")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	key := models.ActivationKey{Key: "UCK-ABCDEF12-3456", Days: 30, CreatedAt: time.Now().UTC()}
	require.NoError(t, db.SaveKey(ctx, key))

	got, err := db.GetKey(ctx, key.Key)
	require.NoError(t, err)
	assert.Equal(t, 30, got.Days)

	require.NoError(t, db.DeleteKey(ctx, key.Key))
	_, err = db.GetKey(ctx, key.Key)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestClickHouseDB_Logs(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	entries := []models.OperationLogEntry{
		{ID: "2", PrincipalID: 7, Type: models.LogCheck, Time: base.Add(time.Minute), Code: "UC-1", Result: "activated", ActivatedAt: 1700000000},
		{ID: "1", PrincipalID: 7, Type: models.LogPlayer, Time: base, PlayerID: "5123", PlayerName: "Alpha", Result: "success"},
		{ID: "3", PrincipalID: 8, Type: models.LogActivate, Time: base, Code: "UC-2", Result: "success"},
	}
	for _, e := range entries {
		require.NoError(t, db.AppendLog(ctx, e))
	}

	got, err := db.ListLogs(ctx, 7)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "1", got[0].ID)
	assert.Equal(t, models.LogPlayer, got[0].Type)
	assert.Equal(t, "Alpha", got[0].PlayerName)
	assert.Equal(t, "2", got[1].ID)
	assert.Equal(t, int64(1700000000), got[1].ActivatedAt)
}
