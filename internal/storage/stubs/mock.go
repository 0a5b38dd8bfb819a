package stubs

import (
	"context"
	"sort"
	"sync"

	"uctrader/internal/models"
	"uctrader/internal/storage"
)

// MockDB is an in-memory implementation of the Storage interface for testing
type MockDB struct {
	mu      sync.RWMutex
	traders map[int64]models.TraderRecord
	keys    map[string]models.ActivationKey
	logs    map[int64][]models.OperationLogEntry
}

// NewMockDB creates a new mock database
func NewMockDB() *MockDB {
	return &MockDB{
		traders: make(map[int64]models.TraderRecord),
		keys:    make(map[string]models.ActivationKey),
		logs:    make(map[int64][]models.OperationLogEntry),
	}
}

// Initialize is a no-op for the in-memory store
func (m *MockDB) Initialize(ctx context.Context) error {
	return nil
}

// ListTraders returns all traders ordered by user id
func (m *MockDB) ListTraders(ctx context.Context) ([]models.TraderRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	traders := make([]models.TraderRecord, 0, len(m.traders))
	for _, t := range m.traders {
		traders = append(traders, cloneTrader(t))
	}
	sort.Slice(traders, func(i, j int) bool {
		return traders[i].UserID < traders[j].UserID
	})
	return traders, nil
}

// GetTrader returns a trader by user id
func (m *MockDB) GetTrader(ctx context.Context, userID int64) (models.TraderRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, ok := m.traders[userID]
	if !ok {
		return models.TraderRecord{}, storage.ErrNotFound
	}
	return cloneTrader(t), nil
}

// SaveTrader inserts or replaces a trader
func (m *MockDB) SaveTrader(ctx context.Context, trader models.TraderRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.traders[trader.UserID] = cloneTrader(trader)
	return nil
}

// DeleteTrader removes a trader, missing ids are ignored
func (m *MockDB) DeleteTrader(ctx context.Context, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.traders, userID)
	return nil
}

// SaveKey stores an activation key
func (m *MockDB) SaveKey(ctx context.Context, key models.ActivationKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.keys[key.Key] = key
	return nil
}

// GetKey returns an activation key
func (m *MockDB) GetKey(ctx context.Context, key string) (models.ActivationKey, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	k, ok := m.keys[key]
	if !ok {
		return models.ActivationKey{}, storage.ErrNotFound
	}
	return k, nil
}

// DeleteKey removes an activation key
func (m *MockDB) DeleteKey(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.keys, key)
	return nil
}

// AppendLog appends an entry to the principal's log
func (m *MockDB) AppendLog(ctx context.Context, entry models.OperationLogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.logs[entry.PrincipalID] = append(m.logs[entry.PrincipalID], entry)
	return nil
}

// ListLogs returns the principal's entries ordered by time ascending
func (m *MockDB) ListLogs(ctx context.Context, principalID int64) ([]models.OperationLogEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entries := make([]models.OperationLogEntry, len(m.logs[principalID]))
	copy(entries, m.logs[principalID])
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Time.Before(entries[j].Time)
	})
	return entries, nil
}

// Close closes the mock database (no-op)
func (m *MockDB) Close() error {
	return nil
}

func cloneTrader(t models.TraderRecord) models.TraderRecord {
	if t.SavedPlayers != nil {
		players := make([]models.SavedPlayer, len(t.SavedPlayers))
		copy(players, t.SavedPlayers)
		t.SavedPlayers = players
	}
	return t
}
