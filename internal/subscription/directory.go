package subscription

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"uctrader/internal/models"
	"uctrader/internal/storage"
)

var (
	// ErrKeyInvalid is returned for keys that were never issued or already redeemed
	ErrKeyInvalid = errors.New("subscription: key invalid or already used")
	// ErrTraderNotFound is returned when a trader record does not exist
	ErrTraderNotFound = errors.New("subscription: trader not found")
)

const day = 24 * time.Hour

// Store is the persistence the directory writes through to
type Store interface {
	storage.TraderStore
	storage.KeyStore
}

// Profile is the display identity of a principal
type Profile struct {
	Username string
	Name     string
}

// Directory holds trader records in memory and persists every mutation
type Directory struct {
	store   Store
	ownerID int64
	logger  *zap.Logger

	mu      sync.RWMutex
	traders map[int64]models.TraderRecord

	keyLocks *keyLocker
}

// NewDirectory creates an empty directory, call Load to populate it
func NewDirectory(store Store, ownerID int64, logger *zap.Logger) *Directory {
	return &Directory{
		store:    store,
		ownerID:  ownerID,
		logger:   logger,
		traders:  make(map[int64]models.TraderRecord),
		keyLocks: newKeyLocker(),
	}
}

// Load reads all trader records from the store
func (d *Directory) Load(ctx context.Context) error {
	traders, err := d.store.ListTraders(ctx)
	if err != nil {
		return fmt.Errorf("failed to load traders: %w", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.traders = make(map[int64]models.TraderRecord, len(traders))
	for _, t := range traders {
		d.traders[t.UserID] = t
	}

	d.logger.Info("Traders loaded", zap.Int("count", len(traders)))
	return nil
}

// OwnerID returns the configured owner
func (d *Directory) OwnerID() int64 {
	return d.ownerID
}

// IsOwner reports whether id is the configured owner
func (d *Directory) IsOwner(id int64) bool {
	return id == d.ownerID
}

// IsAuthorized reports whether id may use paid features at now
func (d *Directory) IsAuthorized(id int64, now time.Time) bool {
	if d.IsOwner(id) {
		return true
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	t, ok := d.traders[id]
	return ok && t.IsActive(now)
}

// Get returns a copy of the trader record
func (d *Directory) Get(id int64) (models.TraderRecord, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	t, ok := d.traders[id]
	if !ok {
		return models.TraderRecord{}, false
	}
	return copyRecord(t), true
}

// List returns all traders ordered by id
func (d *Directory) List() []models.TraderRecord {
	d.mu.RLock()
	defer d.mu.RUnlock()

	traders := make([]models.TraderRecord, 0, len(d.traders))
	for _, t := range d.traders {
		traders = append(traders, copyRecord(t))
	}
	sort.Slice(traders, func(i, j int) bool {
		return traders[i].UserID < traders[j].UserID
	})
	return traders
}

// AddOrExtend grants days of subscription to id. An unexpired subscription
// is extended from its current expiry, otherwise from now.
func (d *Directory) AddOrExtend(ctx context.Context, id int64, profile Profile, days int, now time.Time) (models.TraderRecord, error) {
	if days <= 0 {
		return models.TraderRecord{}, fmt.Errorf("days must be positive, got %d", days)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	return d.extendLocked(ctx, id, profile, days, now)
}

func (d *Directory) extendLocked(ctx context.Context, id int64, profile Profile, days int, now time.Time) (models.TraderRecord, error) {
	record, ok := d.traders[id]
	if !ok {
		record = models.TraderRecord{UserID: id, RegisteredAt: now}
	}
	record = copyRecord(record)

	base := now
	if record.ExpiresAt.After(now) {
		base = record.ExpiresAt
	}
	record.ExpiresAt = base.Add(time.Duration(days) * day)
	record.Active = true
	if profile.Username != "" {
		record.Username = profile.Username
	}
	if profile.Name != "" {
		record.Name = profile.Name
	}

	if err := d.store.SaveTrader(ctx, record); err != nil {
		return models.TraderRecord{}, fmt.Errorf("failed to save trader: %w", err)
	}
	d.traders[id] = record

	d.logger.Info("Trader subscription extended",
		zap.Int64("user_id", id),
		zap.Int("days", days),
		zap.Time("expires_at", record.ExpiresAt),
	)
	return copyRecord(record), nil
}

// Remove deletes the trader record
func (d *Directory) Remove(ctx context.Context, id int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.traders[id]; !ok {
		return ErrTraderNotFound
	}
	if err := d.store.DeleteTrader(ctx, id); err != nil {
		return fmt.Errorf("failed to delete trader: %w", err)
	}
	delete(d.traders, id)

	d.logger.Info("Trader removed", zap.Int64("user_id", id))
	return nil
}

// SetActive flips the kill switch without touching the expiry
func (d *Directory) SetActive(ctx context.Context, id int64, active bool) (models.TraderRecord, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	record, ok := d.traders[id]
	if !ok {
		return models.TraderRecord{}, ErrTraderNotFound
	}
	record = copyRecord(record)
	record.Active = active

	if err := d.store.SaveTrader(ctx, record); err != nil {
		return models.TraderRecord{}, fmt.Errorf("failed to save trader: %w", err)
	}
	d.traders[id] = record
	return copyRecord(record), nil
}

// SavePlayer appends player to the principal's contacts unless its id is
// already there. It reports whether the player was added.
func (d *Directory) SavePlayer(ctx context.Context, principal int64, player models.SavedPlayer, now time.Time) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	record, ok := d.traders[principal]
	if !ok {
		if !d.IsOwner(principal) {
			return false, ErrTraderNotFound
		}
		record = models.TraderRecord{UserID: principal, RegisteredAt: now, Active: true}
	}

	for _, p := range record.SavedPlayers {
		if p.ID == player.ID {
			return false, nil
		}
	}

	record = copyRecord(record)
	record.SavedPlayers = append(record.SavedPlayers, player)

	if err := d.store.SaveTrader(ctx, record); err != nil {
		return false, fmt.Errorf("failed to save trader: %w", err)
	}
	d.traders[principal] = record
	return true, nil
}

// IssueKey creates and stores a new one-time key worth days
func (d *Directory) IssueKey(ctx context.Context, days int, now time.Time) (models.ActivationKey, error) {
	if days <= 0 {
		return models.ActivationKey{}, fmt.Errorf("days must be positive, got %d", days)
	}

	key := models.ActivationKey{
		Key:       newKeyString(),
		Days:      days,
		CreatedAt: now,
	}
	if err := d.store.SaveKey(ctx, key); err != nil {
		return models.ActivationKey{}, fmt.Errorf("failed to save key: %w", err)
	}

	d.logger.Info("Activation key issued", zap.Int("days", days))
	return key, nil
}

// RedeemKey consumes key and extends the principal's subscription by its
// days. Concurrent redemptions of one key are serialized so at most one
// succeeds.
func (d *Directory) RedeemKey(ctx context.Context, principal int64, profile Profile, key string, now time.Time) (models.TraderRecord, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return models.TraderRecord{}, ErrKeyInvalid
	}

	unlock := d.keyLocks.Lock(key)
	defer unlock()

	activation, err := d.store.GetKey(ctx, key)
	if errors.Is(err, storage.ErrNotFound) {
		return models.TraderRecord{}, ErrKeyInvalid
	}
	if err != nil {
		return models.TraderRecord{}, fmt.Errorf("failed to read key: %w", err)
	}

	if err := d.store.DeleteKey(ctx, key); err != nil {
		return models.TraderRecord{}, fmt.Errorf("failed to consume key: %w", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	record, err := d.extendLocked(ctx, principal, profile, activation.Days, now)
	if err != nil {
		// put the key back so it can be redeemed again
		if restoreErr := d.store.SaveKey(ctx, activation); restoreErr != nil {
			d.logger.Error("Key consumed but subscription not extended",
				zap.Int64("user_id", principal),
				zap.Int("days", activation.Days),
				zap.Error(err),
				zap.NamedError("restore_error", restoreErr),
			)
		}
		return models.TraderRecord{}, err
	}

	d.logger.Info("Activation key redeemed", zap.Int64("user_id", principal), zap.Int("days", activation.Days))
	return record, nil
}

// newKeyString returns a key like UCK-1A2B3C4D-5E6F
func newKeyString() string {
	id := strings.ToUpper(uuid.NewString())
	return "UCK-" + id[:13]
}

func copyRecord(t models.TraderRecord) models.TraderRecord {
	if t.SavedPlayers != nil {
		t.SavedPlayers = append([]models.SavedPlayer(nil), t.SavedPlayers...)
	}
	return t
}

// keyLocker is a mutex per key string
type keyLocker struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

func newKeyLocker() *keyLocker {
	return &keyLocker{locks: make(map[string]*keyLock)}
}

func (l *keyLocker) Lock(key string) func() {
	l.mu.Lock()
	lock, ok := l.locks[key]
	if !ok {
		lock = &keyLock{}
		l.locks[key] = lock
	}
	lock.refs++
	l.mu.Unlock()

	lock.mu.Lock()
	return func() {
		lock.mu.Unlock()

		l.mu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(l.locks, key)
		}
		l.mu.Unlock()
	}
}
