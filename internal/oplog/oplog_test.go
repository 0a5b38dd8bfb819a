package oplog

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"uctrader/internal/models"
	"uctrader/internal/storage/stubs"
)

func newTestLog(t *testing.T) (*Log, *stubs.MockDB) {
	db := stubs.NewMockDB()
	log := New(db, zap.NewNop())

	clock := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	log.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	return log, db
}

func TestAppend_StampsEntries(t *testing.T) {
	log, db := newTestLog(t)
	ctx := context.Background()

	log.Append(ctx, models.OperationLogEntry{PrincipalID: 5, Type: models.LogPlayer, Result: "success"})

	entries, err := db.ListLogs(ctx, 5)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.NotEmpty(t, entries[0].ID)
	assert.False(t, entries[0].Time.IsZero())
}

func TestQuery_LimitAndStats(t *testing.T) {
	log, _ := newTestLog(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		log.Append(ctx, models.OperationLogEntry{PrincipalID: 5, Type: models.LogPlayer, PlayerID: string(rune('a' + i))})
	}
	for i := 0; i < 12; i++ {
		log.Append(ctx, models.OperationLogEntry{PrincipalID: 5, Type: models.LogActivate, Code: string(rune('A' + i))})
	}
	log.Append(ctx, models.OperationLogEntry{PrincipalID: 5, Type: models.LogCheck})
	log.Append(ctx, models.OperationLogEntry{PrincipalID: 6, Type: models.LogCheck})

	page, err := log.Query(ctx, 5, models.LogQuery{Type: models.LogActivate, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, 12, page.Total)
	assert.Equal(t, models.LogStats{Player: 3, Check: 1, Activate: 12}, page.Stats)
	require.Len(t, page.Items, 10)
	assert.Equal(t, "L", page.Items[0].Code, "newest first")
	assert.Equal(t, "C", page.Items[9].Code)
}

func TestQuery_Pages(t *testing.T) {
	log, _ := newTestLog(t)
	ctx := context.Background()

	for i := 0; i < 25; i++ {
		log.Append(ctx, models.OperationLogEntry{PrincipalID: 5, Type: models.LogCheck})
	}

	first, err := log.Query(ctx, 5, models.LogQuery{})
	require.NoError(t, err)
	assert.Equal(t, 1, first.Page)
	assert.Equal(t, 20, first.PageSize)
	assert.Len(t, first.Items, 20)

	second, err := log.Query(ctx, 5, models.LogQuery{Page: 2})
	require.NoError(t, err)
	assert.Len(t, second.Items, 5)

	beyond, err := log.Query(ctx, 5, models.LogQuery{Page: 9})
	require.NoError(t, err)
	assert.Empty(t, beyond.Items)
	assert.Equal(t, 25, beyond.Total)
}

type brokenStore struct{ stubs.MockDB }

func (b *brokenStore) AppendLog(ctx context.Context, entry models.OperationLogEntry) error {
	return errors.New("disk full")
}

func TestAppend_SwallowsStoreErrors(t *testing.T) {
	log := New(&brokenStore{}, zap.NewNop())

	assert.NotPanics(t, func() {
		log.Append(context.Background(), models.OperationLogEntry{PrincipalID: 1, Type: models.LogCheck})
	})
}
