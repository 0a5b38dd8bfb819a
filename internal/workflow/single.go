package workflow

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"uctrader/internal/midas"
	"uctrader/internal/models"
	"uctrader/internal/session"
)

// Log result tags
const (
	resultSuccess               = "success"
	resultNotFound              = "not_found"
	resultError                 = "error"
	resultSuccessInline         = "success_inline"
	resultAlreadyActivated      = "already_activated"
	resultInvalidBeforeActivate = "invalid_before_activate"
	resultCheckError            = "check_error"
)

const invalidIDPrompt = "⚠️ Invalid ID. Send digits only, without spaces or letters."

func (e *Engine) onPlayerLookup(ctx context.Context, ev Event) {
	id := strings.TrimSpace(ev.Text)
	if !isDigits(id) {
		e.send(ctx, ev.ChatID, invalidIDPrompt, nil)
		return
	}

	e.send(ctx, ev.ChatID, "⏳ Looking up the player...", nil)
	player, err := e.remote.LookupPlayer(ctx, id)

	entry := models.OperationLogEntry{PrincipalID: ev.From.ID, Type: models.LogPlayer, PlayerID: id}
	switch {
	case err == nil:
		entry.PlayerName = player.Name
		entry.Result = resultSuccess
		e.record(ctx, entry)
		e.send(ctx, ev.ChatID, playerCard(player), saveKeyboard(player))
		e.finish(ctx, ev.ChatID)
	case errors.Is(err, midas.ErrPlayerNotFound):
		entry.Result = resultNotFound
		e.record(ctx, entry)
		e.done(ctx, ev.ChatID, "❌ Player not found. Check the ID and try again.")
	default:
		e.logger.Warn("Player lookup failed", zap.String("player_id", id), zap.Error(err))
		entry.Result = resultError
		e.record(ctx, entry)
		e.done(ctx, ev.ChatID, "⚠️ Could not reach the player service. Try again later.")
	}
}

func (e *Engine) onCheckCode(ctx context.Context, ev Event) {
	code := normalizeCode(ev.Text)
	if code == "" {
		e.send(ctx, ev.ChatID, "⚠️ Send the code as text.", nil)
		return
	}

	e.send(ctx, ev.ChatID, "⏳ Checking the code...", nil)
	status, err := e.remote.CheckCode(ctx, code)

	entry := models.OperationLogEntry{PrincipalID: ev.From.ID, Type: models.LogCheck, Code: code}
	if err != nil {
		e.logger.Warn("Code check failed", zap.String("code", code), zap.Error(err))
		entry.Result = resultError
		e.record(ctx, entry)
		e.done(ctx, ev.ChatID, "⚠️ Could not check the code: network error or timeout. Try again later.")
		return
	}

	state := NormalizeStatus(status.RawStatus)
	entry.Result = string(state)
	entry.Amount = status.Amount
	entry.ActivatedTo = status.ActivatedTo
	entry.ActivatedAt = status.ActivatedAt
	e.record(ctx, entry)

	e.done(ctx, ev.ChatID, checkReport(code, state, status, e.opts.Location))
}

// onActivatePlayerID verifies the player before offering activation modes
func (e *Engine) onActivatePlayerID(ctx context.Context, chatID int64, from Principal, text string) {
	id := strings.TrimSpace(text)
	if !isDigits(id) {
		e.send(ctx, chatID, invalidIDPrompt, nil)
		return
	}

	e.send(ctx, chatID, "⏳ Verifying the player...", nil)
	player, err := e.remote.LookupPlayer(ctx, id)
	if err != nil {
		entry := models.OperationLogEntry{PrincipalID: from.ID, Type: models.LogPlayer, PlayerID: id, Result: resultError}
		reply := "⚠️ Could not verify the player: network error or timeout. Activation aborted."
		if errors.Is(err, midas.ErrPlayerNotFound) {
			entry.Result = resultNotFound
			reply = "❌ Player not found. Activation aborted."
		} else {
			e.logger.Warn("Player verification failed", zap.String("player_id", id), zap.Error(err))
		}
		e.record(ctx, entry)
		e.done(ctx, chatID, reply)
		return
	}

	e.sessions.Set(chatID, session.WaitSelectionMode{Player: session.Player{ID: id, Name: player.Name}})
	e.send(ctx, chatID, "👤 "+player.Name+" ("+id+")\n\nHow many codes do you want to activate?", selectionKeyboard())
}

func (e *Engine) onSelectionMode(ctx context.Context, cb CallbackEvent) answer {
	st, ok := e.sessions.Get(cb.ChatID).(session.WaitSelectionMode)
	if !ok {
		return alertAnswer(expiredSession)
	}

	header := "👤 " + st.Player.Name + " (" + st.Player.ID + ")\n\n"
	if cb.Data == cbModeSingle {
		e.sessions.Set(cb.ChatID, session.WaitActivateCodeSingle{Player: st.Player})
		e.edit(ctx, cb.ChatID, cb.MessageID, header+"1️⃣ Send the UC code to activate.", nil)
		return answer{}
	}

	e.sessions.Set(cb.ChatID, session.WaitActivateCodeBulkStack{Player: st.Player})
	e.edit(ctx, cb.ChatID, cb.MessageID, header+"📚 Send 2 to 5 codes, one per line.", nil)
	return answer{}
}

func (e *Engine) onPickPlayer(ctx context.Context, cb CallbackEvent) answer {
	if e.sessions.Get(cb.ChatID).Mode() != session.ModeWaitActivatePlayerID {
		return alertAnswer(expiredSession)
	}
	id := strings.TrimPrefix(cb.Data, cbPickPrefix)
	e.onActivatePlayerID(ctx, cb.ChatID, cb.From, id)
	return answer{}
}

// onSingleCode pre-checks the code and activates it only when it is unused
func (e *Engine) onSingleCode(ctx context.Context, ev Event, st session.WaitActivateCodeSingle) {
	code := normalizeCode(ev.Text)
	if code == "" {
		e.send(ctx, ev.ChatID, "⚠️ Send the code as text.", nil)
		return
	}

	entry := models.OperationLogEntry{
		PrincipalID: ev.From.ID,
		Type:        models.LogActivate,
		PlayerID:    st.Player.ID,
		PlayerName:  st.Player.Name,
		Code:        code,
	}

	e.send(ctx, ev.ChatID, "⏳ Checking the code before activation...", nil)
	status, err := e.remote.CheckCode(ctx, code)
	if err != nil {
		e.logger.Warn("Pre-activation check failed", zap.String("code", code), zap.Error(err))
		entry.Result = resultCheckError
		e.record(ctx, entry)
		e.done(ctx, ev.ChatID, "⚠️ Could not check the code before activation: network error or timeout. Nothing was activated.")
		return
	}

	switch NormalizeStatus(status.RawStatus) {
	case CodeActivated:
		entry.Result = resultAlreadyActivated
		entry.ActivatedTo = status.ActivatedTo
		entry.ActivatedAt = status.ActivatedAt
		e.record(ctx, entry)
		e.done(ctx, ev.ChatID, "❌ This code is already activated.\n\n"+checkReport(code, CodeActivated, status, e.opts.Location))
		return
	case CodeFailed:
		entry.Result = resultInvalidBeforeActivate
		e.record(ctx, entry)
		e.done(ctx, ev.ChatID, "❌ This code is invalid. Nothing was activated.")
		return
	}

	e.send(ctx, ev.ChatID, "⚡ Activating...", nil)
	result, err := e.remote.ActivateSingle(ctx, st.Player.ID, code)
	if err != nil {
		e.logger.Warn("Activation failed", zap.String("player_id", st.Player.ID), zap.Error(err))
		entry.Result = resultError
		e.record(ctx, entry)
		e.done(ctx, ev.ChatID, "⚠️ Activation failed: network error or timeout. Check the code status before retrying.")
		return
	}

	outcome := ClassifySingle(result)
	entry.Amount = status.Amount
	entry.Result = resultTag(outcome)
	e.record(ctx, entry)

	if outcome.Success {
		e.done(ctx, ev.ChatID, "✅ Code activated successfully!\n\n👤 "+st.Player.Name+" ("+st.Player.ID+")\n🎟 "+code)
		return
	}
	e.done(ctx, ev.ChatID, "❌ Activation failed: "+reasonText(outcome.Reason)+".\n\n🎟 "+code)
}

func (e *Engine) onSavePlayer(ctx context.Context, cb CallbackEvent) answer {
	player, ok := parseSaveCallbackData(cb.Data)
	if !ok {
		return answer{}
	}

	added, err := e.directory.SavePlayer(ctx, cb.From.ID, player, e.now())
	if err != nil {
		e.logger.Warn("Failed to save player", zap.Int64("user_id", cb.From.ID), zap.Error(err))
		return alertAnswer("⚠️ Could not save the player.")
	}
	if !added {
		return answer{text: "ℹ️ Player already saved."}
	}
	return answer{text: "💾 Player saved."}
}

// resultTag is the log result of a classified activation
func resultTag(o Outcome) string {
	if o.Success {
		return resultSuccess
	}
	return string(o.Reason)
}
