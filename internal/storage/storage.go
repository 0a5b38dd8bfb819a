package storage

import (
	"context"
	"errors"

	"uctrader/internal/models"
)

// ErrNotFound is returned when a record does not exist
var ErrNotFound = errors.New("storage: not found")

// TraderStore persists trader records keyed by user id
type TraderStore interface {
	ListTraders(ctx context.Context) ([]models.TraderRecord, error)
	// GetTrader returns ErrNotFound if the trader does not exist
	GetTrader(ctx context.Context, userID int64) (models.TraderRecord, error)
	// SaveTrader inserts or replaces the record with the same user id
	SaveTrader(ctx context.Context, trader models.TraderRecord) error
	DeleteTrader(ctx context.Context, userID int64) error
}

// KeyStore persists one-time activation keys
type KeyStore interface {
	SaveKey(ctx context.Context, key models.ActivationKey) error
	// GetKey returns ErrNotFound if the key was never issued or already consumed
	GetKey(ctx context.Context, key string) (models.ActivationKey, error)
	DeleteKey(ctx context.Context, key string) error
}

// LogStore is an append-only operation log
type LogStore interface {
	AppendLog(ctx context.Context, entry models.OperationLogEntry) error
	// ListLogs returns all entries of a principal ordered by time ascending
	ListLogs(ctx context.Context, principalID int64) ([]models.OperationLogEntry, error)
}

// Storage defines the interface for data storage operations
type Storage interface {
	TraderStore
	KeyStore
	LogStore

	// Lifecycle
	Initialize(ctx context.Context) error
	Close() error
}
