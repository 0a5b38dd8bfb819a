package workflow

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"uctrader/internal/midas"
	"uctrader/internal/models"
)

const minInlineCodeLength = 6

// inlineResults answers "player id" and "code" queries for traders. Any
// other query gets no results.
func (e *Engine) inlineResults(ctx context.Context, q InlineQuery) []InlineResult {
	query := strings.TrimSpace(q.Query)
	if query == "" || !e.directory.IsAuthorized(q.From.ID, e.now()) {
		return nil
	}

	if isDigits(query) {
		return e.inlineLookup(ctx, q.From.ID, query)
	}

	code := normalizeCode(query)
	if utf8.RuneCountInString(code) >= minInlineCodeLength {
		return e.inlineCheck(ctx, q.From.ID, code)
	}
	return nil
}

func (e *Engine) inlineLookup(ctx context.Context, principal int64, id string) []InlineResult {
	player, err := e.remote.LookupPlayer(ctx, id)
	if err != nil {
		if !errors.Is(err, midas.ErrPlayerNotFound) {
			e.logger.Warn("Inline lookup failed", zap.String("player_id", id), zap.Error(err))
		}
		return nil
	}

	e.record(ctx, models.OperationLogEntry{
		PrincipalID: principal,
		Type:        models.LogPlayer,
		PlayerID:    id,
		PlayerName:  player.Name,
		Result:      resultSuccessInline,
	})

	return []InlineResult{{
		ID:          "player:" + id,
		Title:       "👤 " + player.Name,
		Description: "ID: " + id,
		Text:        playerCard(player),
	}}
}

func (e *Engine) inlineCheck(ctx context.Context, principal int64, code string) []InlineResult {
	status, err := e.remote.CheckCode(ctx, code)
	if err != nil {
		e.logger.Warn("Inline check failed", zap.String("code", code), zap.Error(err))
		return nil
	}

	state := NormalizeStatus(status.RawStatus)
	e.record(ctx, models.OperationLogEntry{
		PrincipalID: principal,
		Type:        models.LogCheck,
		Code:        code,
		Amount:      status.Amount,
		ActivatedTo: status.ActivatedTo,
		ActivatedAt: status.ActivatedAt,
		Result:      string(state),
	})

	title := "🟢 Not activated"
	switch state {
	case CodeActivated:
		title = "🔴 Already activated"
	case CodeFailed:
		title = "⚠️ Invalid code"
	}

	// result ids are limited to 64 bytes
	id := "code:" + code
	if len(id) > maxCallbackData {
		id = id[:maxCallbackData]
	}

	return []InlineResult{{
		ID:          id,
		Title:       title,
		Description: code,
		Text:        checkReport(code, state, status, e.opts.Location),
	}}
}
