package workflow

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"uctrader/internal/session"
)

type action int

const (
	actionLookup action = iota
	actionCheck
	actionActivate
	actionClan
	actionTicket
	actionLogs
	actionAccount
	actionSubscription
)

var menuActions = map[string]action{
	LabelLookup:       actionLookup,
	LabelCheck:        actionCheck,
	LabelActivate:     actionActivate,
	LabelClan:         actionClan,
	LabelTicket:       actionTicket,
	LabelLogs:         actionLogs,
	LabelAccount:      actionAccount,
	LabelSubscription: actionSubscription,
}

type commandHandler func(e *Engine, ctx context.Context, ev Event, args string)

// access is who may run a command
type access int

const (
	accessAnyone access = iota
	accessTrader
	accessOwner
)

type command struct {
	run    commandHandler
	access access
}

var commands = map[string]command{
	"start":         {run: (*Engine).cmdStart},
	"account":       {run: (*Engine).cmdAccount},
	"subscription":  {run: (*Engine).cmdSubscription},
	"logs":          {run: (*Engine).cmdLogs, access: accessTrader},
	"redeem":        {run: (*Engine).cmdRedeem},
	"add_trader":    {run: (*Engine).cmdAddTrader, access: accessOwner},
	"remove_trader": {run: (*Engine).cmdRemoveTrader, access: accessOwner},
	"traders":       {run: (*Engine).cmdTraders, access: accessOwner},
	"genkey":        {run: (*Engine).cmdGenKey, access: accessOwner},
	"toggle_trader": {run: (*Engine).cmdToggleTrader, access: accessOwner},
}

// parseCommand splits "/cmd@bot args" into its name and arguments
func parseCommand(text string) (string, string, bool) {
	if !strings.HasPrefix(text, "/") {
		return "", "", false
	}
	head, args, _ := strings.Cut(text[1:], " ")
	name, _, _ := strings.Cut(head, "@")
	return strings.ToLower(name), strings.TrimSpace(args), name != ""
}

// routeMessage dispatches in priority order: cancel, commands, menu
// labels, then the active workflow step.
func (e *Engine) routeMessage(ctx context.Context, ev Event) {
	text := strings.TrimSpace(ev.Text)
	current := e.sessions.Get(ev.ChatID)

	if text == LabelCancel || strings.EqualFold(text, "/cancel") {
		e.done(ctx, ev.ChatID, "🚫 Cancelled.")
		return
	}

	if name, args, ok := parseCommand(text); ok {
		cmd, known := commands[name]
		if !known {
			e.send(ctx, ev.ChatID, "Unknown command. Use /start to see the menu.", nil)
			return
		}
		if !e.permit(ctx, ev, cmd.access) {
			return
		}
		e.interrupt(ev.ChatID, current)
		cmd.run(e, ctx, ev, args)
		return
	}

	if act, ok := menuActions[text]; ok {
		e.startAction(ctx, ev, act, current)
		return
	}

	switch st := current.(type) {
	case session.WaitPlayerLookup:
		e.onPlayerLookup(ctx, ev)
	case session.WaitCheckCode:
		e.onCheckCode(ctx, ev)
	case session.WaitActivatePlayerID:
		e.onActivatePlayerID(ctx, ev.ChatID, ev.From, text)
	case session.WaitSelectionMode:
		e.send(ctx, ev.ChatID, "Use the buttons above to choose single or several codes.", nil)
	case session.WaitActivateCodeSingle:
		e.onSingleCode(ctx, ev, st)
	case session.WaitActivateCodeBulkStack:
		e.onStackCodes(ctx, ev, st)
	case session.WaitBulkIDs:
		e.onBulkIDs(ctx, ev)
	case session.WaitBulkCodes:
		e.onBulkCodes(ctx, ev, st)
	case session.WaitBulkConfirm:
		e.send(ctx, ev.ChatID, "Use the buttons above to confirm or cancel the clan activation.", nil)
	case session.WaitTicketMessage:
		e.onTicket(ctx, ev)
	default:
		e.send(ctx, ev.ChatID, "Choose an action from the menu:", mainMenu())
	}
}

// permit checks command access. A refused command leaves the current
// workflow untouched.
func (e *Engine) permit(ctx context.Context, ev Event, level access) bool {
	switch level {
	case accessOwner:
		return e.requireOwner(ctx, ev)
	case accessTrader:
		return e.authorize(ctx, ev.ChatID, ev.From.ID)
	}
	return true
}

// interrupt discards an unfinished workflow once a top-level action is accepted
func (e *Engine) interrupt(chatID int64, current session.State) {
	if session.IsIdle(current) {
		return
	}
	e.logger.Info("Workflow interrupted",
		zap.Int64("chat_id", chatID),
		zap.String("mode", string(current.Mode())),
	)
	e.sessions.Reset(chatID)
}

// startAction enters a workflow from the menu. Paid actions require
// authorization and pass the cooldown gate before the current workflow
// is discarded.
func (e *Engine) startAction(ctx context.Context, ev Event, act action, current session.State) {
	switch act {
	case actionAccount:
		e.interrupt(ev.ChatID, current)
		e.cmdAccount(ctx, ev, "")
		return
	case actionSubscription:
		e.interrupt(ev.ChatID, current)
		e.cmdSubscription(ctx, ev, "")
		return
	}

	if !e.authorize(ctx, ev.ChatID, ev.From.ID) {
		return
	}
	if act == actionLogs {
		e.interrupt(ev.ChatID, current)
		e.cmdLogs(ctx, ev, "")
		return
	}
	if decision := e.gate.Admit(ctx, ev.From.ID, e.now()); !decision.Allowed {
		e.send(ctx, ev.ChatID, fmt.Sprintf("⏳ Please wait %d seconds before starting a new operation.", decision.WaitSeconds()), nil)
		return
	}
	e.interrupt(ev.ChatID, current)

	switch act {
	case actionLookup:
		e.sessions.Set(ev.ChatID, session.WaitPlayerLookup{})
		e.send(ctx, ev.ChatID, "🎮 Send the player ID (digits only).", cancelMenu())
	case actionCheck:
		e.sessions.Set(ev.ChatID, session.WaitCheckCode{})
		e.send(ctx, ev.ChatID, "🧪 Send the UC code to check.", cancelMenu())
	case actionActivate:
		e.sessions.Set(ev.ChatID, session.WaitActivatePlayerID{})
		e.send(ctx, ev.ChatID, "⚡ Send the player ID to top up.", cancelMenu())
		if record, ok := e.directory.Get(ev.From.ID); ok {
			if kb := savedPlayersKeyboard(record.SavedPlayers); kb != nil {
				e.send(ctx, ev.ChatID, "Or pick a saved player:", kb)
			}
		}
	case actionClan:
		e.sessions.Set(ev.ChatID, session.WaitBulkIDs{})
		e.send(ctx, ev.ChatID, "👥 Send 2 to 5 player IDs, one per line.", cancelMenu())
	case actionTicket:
		e.sessions.Set(ev.ChatID, session.WaitTicketMessage{})
		e.send(ctx, ev.ChatID, "📨 Send your message for support. Text, photos and files are accepted.", cancelMenu())
	}
}

// authorize replies with the subscription notice when id is not a trader
func (e *Engine) authorize(ctx context.Context, chatID, id int64) bool {
	if e.directory.IsAuthorized(id, e.now()) {
		return true
	}
	e.logger.Warn("Unauthorized action attempt", zap.Int64("user_id", id))
	e.send(ctx, chatID, "⚠️ This feature is for subscribed traders only.\n\nRedeem a key with /redeem KEY or see "+LabelSubscription+".", e.idleMenu(chatID))
	return false
}

// idleMenu is the main menu, or nothing while a workflow awaits input
func (e *Engine) idleMenu(chatID int64) *Keyboard {
	if session.IsIdle(e.sessions.Get(chatID)) {
		return mainMenu()
	}
	return nil
}

// routeCallback handles a button press and returns the callback answer
func (e *Engine) routeCallback(ctx context.Context, cb CallbackEvent) answer {
	data := cb.Data

	if data == cbModeCancel || data == cbBulkCancel {
		return e.onCancelCallback(ctx, cb)
	}

	if !e.directory.IsAuthorized(cb.From.ID, e.now()) {
		return alertAnswer("⚠️ Subscription required.")
	}

	switch {
	case data == cbModeSingle || data == cbModeStack:
		return e.onSelectionMode(ctx, cb)
	case data == cbBulkConfirm:
		return e.onBulkConfirm(ctx, cb)
	case strings.HasPrefix(data, cbSavePrefix):
		return e.onSavePlayer(ctx, cb)
	case strings.HasPrefix(data, cbPickPrefix):
		return e.onPickPlayer(ctx, cb)
	case strings.HasPrefix(data, cbLogsPrefix):
		return e.onLogsHistory(ctx, cb)
	}

	e.logger.Warn("Unknown callback data", zap.String("data", data), zap.Int64("user_id", cb.From.ID))
	return answer{}
}

const expiredSession = "⌛ This session has expired. Start again from the menu."

func (e *Engine) onCancelCallback(ctx context.Context, cb CallbackEvent) answer {
	current := e.sessions.Get(cb.ChatID)

	switch {
	case cb.Data == cbModeCancel && current.Mode() == session.ModeWaitSelectionMode:
		e.edit(ctx, cb.ChatID, cb.MessageID, "🚫 Activation cancelled.", nil)
	case cb.Data == cbBulkCancel && current.Mode() == session.ModeWaitBulkConfirm:
		e.edit(ctx, cb.ChatID, cb.MessageID, "🚫 Clan activation cancelled. Nothing was activated.", nil)
	default:
		return alertAnswer(expiredSession)
	}

	e.finish(ctx, cb.ChatID)
	return answer{text: "Cancelled"}
}
