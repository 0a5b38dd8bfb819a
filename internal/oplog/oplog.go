package oplog

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"uctrader/internal/models"
	"uctrader/internal/storage"
)

const defaultPageSize = 20

// Log is the append-only operation log. Writes are best effort.
type Log struct {
	store  storage.LogStore
	logger *zap.Logger
	now    func() time.Time
}

// New creates an operation log over store
func New(store storage.LogStore, logger *zap.Logger) *Log {
	return &Log{
		store:  store,
		logger: logger,
		now:    time.Now,
	}
}

// Append stamps entry with an id and the current time and stores it.
// Store failures are logged and swallowed.
func (l *Log) Append(ctx context.Context, entry models.OperationLogEntry) {
	entry.ID = uuid.NewString()
	entry.Time = l.now().UTC()

	if err := l.store.AppendLog(ctx, entry); err != nil {
		l.logger.Error("Failed to append operation log",
			zap.Int64("user_id", entry.PrincipalID),
			zap.String("type", string(entry.Type)),
			zap.String("result", entry.Result),
			zap.Error(err),
		)
		return
	}

	l.logger.Debug("Operation logged",
		zap.Int64("user_id", entry.PrincipalID),
		zap.String("type", string(entry.Type)),
		zap.String("result", entry.Result),
	)
}

// Query returns a newest-first slice of the principal's log. Stats always
// cover the principal's whole log, Total covers the type-filtered set.
func (l *Log) Query(ctx context.Context, principal int64, q models.LogQuery) (models.LogPage, error) {
	entries, err := l.store.ListLogs(ctx, principal)
	if err != nil {
		return models.LogPage{}, fmt.Errorf("failed to query logs: %w", err)
	}

	var page models.LogPage
	filtered := make([]models.OperationLogEntry, 0, len(entries))
	for _, e := range entries {
		switch e.Type {
		case models.LogPlayer:
			page.Stats.Player++
		case models.LogCheck:
			page.Stats.Check++
		case models.LogActivate:
			page.Stats.Activate++
		}
		if q.Type == "" || e.Type == q.Type {
			filtered = append(filtered, e)
		}
	}
	page.Total = len(filtered)

	// newest first
	for i, j := 0, len(filtered)-1; i < j; i, j = i+1, j-1 {
		filtered[i], filtered[j] = filtered[j], filtered[i]
	}

	if q.Limit > 0 {
		if q.Limit < len(filtered) {
			filtered = filtered[:q.Limit]
		}
		page.Items = filtered
		return page, nil
	}

	page.Page = q.Page
	if page.Page < 1 {
		page.Page = 1
	}
	page.PageSize = q.PageSize
	if page.PageSize < 1 {
		page.PageSize = defaultPageSize
	}

	start := (page.Page - 1) * page.PageSize
	if start >= len(filtered) {
		page.Items = []models.OperationLogEntry{}
		return page, nil
	}
	end := min(start+page.PageSize, len(filtered))
	page.Items = filtered[start:end]
	return page, nil
}
