package ch

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"uctrader/internal/models"
	"uctrader/internal/storage"
	"uctrader/migrations"

	"github.com/ClickHouse/clickhouse-go/v2"
)

type ClickHouseDB struct {
	conn    clickhouse.Conn
	options *clickhouse.Options
}

// NewClickHouseDB creates a new ClickHouse database connection
func NewClickHouseDB(host string, port int, database, user, password string, useTLS bool) (*ClickHouseDB, error) {
	addr := fmt.Sprintf("%s:%d", host, port)

	options := &clickhouse.Options{
		Addr:     []string{addr},
		Protocol: clickhouse.Native,
		Auth: clickhouse.Auth{
			Database: database,
			Username: user,
			Password: password,
		},
		DialTimeout: 10 * time.Second,
	}

	// Configure TLS if enabled
	if useTLS {
		options.TLS = &tls.Config{
			InsecureSkipVerify: false,
		}
	}

	conn, err := clickhouse.Open(options)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}

	// Test the connection
	if err := conn.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	return &ClickHouseDB{conn: conn, options: options}, nil
}

// Initialize applies the embedded schema migrations
func (db *ClickHouseDB) Initialize(ctx context.Context) error {
	sqlDB := clickhouse.OpenDB(db.options)
	defer sqlDB.Close()

	if err := migrations.Up(ctx, sqlDB); err != nil {
		return fmt.Errorf("failed to migrate ClickHouse: %w", err)
	}
	return nil
}

const traderColumns = `user_id, username, name, registered_at, expires_at, active, saved_player_ids, saved_player_names`

// ListTraders returns all traders ordered by user id
func (db *ClickHouseDB) ListTraders(ctx context.Context) ([]models.TraderRecord, error) {
	rows, err := db.conn.Query(ctx, `SELECT `+traderColumns+` FROM traders FINAL ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list traders: %w", err)
	}
	defer rows.Close()

	var traders []models.TraderRecord
	for rows.Next() {
		trader, err := scanTrader(rows)
		if err != nil {
			return nil, err
		}
		traders = append(traders, trader)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate traders: %w", err)
	}
	return traders, nil
}

// GetTrader returns a trader by user id
func (db *ClickHouseDB) GetTrader(ctx context.Context, userID int64) (models.TraderRecord, error) {
	rows, err := db.conn.Query(ctx, `SELECT `+traderColumns+` FROM traders FINAL WHERE user_id = ?`, userID)
	if err != nil {
		return models.TraderRecord{}, fmt.Errorf("failed to get trader: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return models.TraderRecord{}, fmt.Errorf("failed to get trader: %w", err)
		}
		return models.TraderRecord{}, storage.ErrNotFound
	}
	return scanTrader(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTrader(rows rowScanner) (models.TraderRecord, error) {
	var (
		trader models.TraderRecord
		ids    []string
		names  []string
	)
	if err := rows.Scan(&trader.UserID, &trader.Username, &trader.Name, &trader.RegisteredAt,
		&trader.ExpiresAt, &trader.Active, &ids, &names); err != nil {
		return models.TraderRecord{}, fmt.Errorf("failed to scan trader: %w", err)
	}
	for i, id := range ids {
		player := models.SavedPlayer{ID: id}
		if i < len(names) {
			player.Name = names[i]
		}
		trader.SavedPlayers = append(trader.SavedPlayers, player)
	}
	return trader, nil
}

// SaveTrader inserts a new version of the trader row
func (db *ClickHouseDB) SaveTrader(ctx context.Context, trader models.TraderRecord) error {
	batch, err := db.conn.PrepareBatch(ctx, `INSERT INTO traders (`+traderColumns+`, updated_at)`)
	if err != nil {
		return fmt.Errorf("failed to prepare trader batch: %w", err)
	}

	ids := make([]string, 0, len(trader.SavedPlayers))
	names := make([]string, 0, len(trader.SavedPlayers))
	for _, p := range trader.SavedPlayers {
		ids = append(ids, p.ID)
		names = append(names, p.Name)
	}

	if err := batch.Append(
		trader.UserID,
		trader.Username,
		trader.Name,
		trader.RegisteredAt,
		trader.ExpiresAt,
		trader.Active,
		ids,
		names,
		time.Now(),
	); err != nil {
		return fmt.Errorf("failed to append trader: %w", err)
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to save trader: %w", err)
	}
	return nil
}

// DeleteTrader removes every version of the trader row
func (db *ClickHouseDB) DeleteTrader(ctx context.Context, userID int64) error {
	if err := db.conn.Exec(ctx, `DELETE FROM traders WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("failed to delete trader: %w", err)
	}
	return nil
}

// SaveKey stores an activation key
func (db *ClickHouseDB) SaveKey(ctx context.Context, key models.ActivationKey) error {
	err := db.conn.Exec(ctx, `INSERT INTO activation_keys (key, days, created_at) VALUES (?, ?, ?)`,
		key.Key, int32(key.Days), key.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save key: %w", err)
	}
	return nil
}

// GetKey returns an activation key
func (db *ClickHouseDB) GetKey(ctx context.Context, key string) (models.ActivationKey, error) {
	rows, err := db.conn.Query(ctx, `SELECT key, days, created_at FROM activation_keys FINAL WHERE key = ?`, key)
	if err != nil {
		return models.ActivationKey{}, fmt.Errorf("failed to get key: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return models.ActivationKey{}, fmt.Errorf("failed to get key: %w", err)
		}
		return models.ActivationKey{}, storage.ErrNotFound
	}

	var (
		result models.ActivationKey
		days   int32
	)
	if err := rows.Scan(&result.Key, &days, &result.CreatedAt); err != nil {
		return models.ActivationKey{}, fmt.Errorf("failed to scan key: %w", err)
	}
	result.Days = int(days)
	return result, nil
}

// DeleteKey removes an activation key
func (db *ClickHouseDB) DeleteKey(ctx context.Context, key string) error {
	if err := db.conn.Exec(ctx, `DELETE FROM activation_keys WHERE key = ?`, key); err != nil {
		return fmt.Errorf("failed to delete key: %w", err)
	}
	return nil
}

// AppendLog writes one operation log entry
func (db *ClickHouseDB) AppendLog(ctx context.Context, entry models.OperationLogEntry) error {
	batch, err := db.conn.PrepareBatch(ctx, `INSERT INTO operation_logs (id, principal_id, type, time, player_id, player_name, code, amount, activated_to, activated_at, result)`)
	if err != nil {
		return fmt.Errorf("failed to prepare log batch: %w", err)
	}

	if err := batch.Append(
		entry.ID,
		entry.PrincipalID,
		string(entry.Type),
		entry.Time,
		entry.PlayerID,
		entry.PlayerName,
		entry.Code,
		entry.Amount,
		entry.ActivatedTo,
		entry.ActivatedAt,
		entry.Result,
	); err != nil {
		return fmt.Errorf("failed to append log entry: %w", err)
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to write log entry: %w", err)
	}
	return nil
}

// ListLogs returns all entries of a principal ordered by time ascending
func (db *ClickHouseDB) ListLogs(ctx context.Context, principalID int64) ([]models.OperationLogEntry, error) {
	rows, err := db.conn.Query(ctx, `
		SELECT id, principal_id, type, time, player_id, player_name, code, amount, activated_to, activated_at, result
		FROM operation_logs
		WHERE principal_id = ?
		ORDER BY time ASC, id ASC
	`, principalID)
	if err != nil {
		return nil, fmt.Errorf("failed to list logs: %w", err)
	}
	defer rows.Close()

	var entries []models.OperationLogEntry
	for rows.Next() {
		var (
			entry   models.OperationLogEntry
			logType string
		)
		if err := rows.Scan(&entry.ID, &entry.PrincipalID, &logType, &entry.Time, &entry.PlayerID,
			&entry.PlayerName, &entry.Code, &entry.Amount, &entry.ActivatedTo, &entry.ActivatedAt, &entry.Result); err != nil {
			return nil, fmt.Errorf("failed to scan log entry: %w", err)
		}
		entry.Type = models.LogType(logType)
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate logs: %w", err)
	}
	return entries, nil
}

// Close closes the database connection
func (db *ClickHouseDB) Close() error {
	return db.conn.Close()
}
