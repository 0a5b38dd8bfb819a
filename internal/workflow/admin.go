package workflow

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"uctrader/internal/models"
	"uctrader/internal/subscription"
)

const (
	logsSummaryLimit = 500
	logsHistoryLimit = 10
	defaultKeyDays   = 30
)

// cmdStart shows the welcome message and the main menu
func (e *Engine) cmdStart(ctx context.Context, ev Event, _ string) {
	text := `Welcome to the UC Trader Bot! 🎮

Use the menu below:
🎮 Player lookup - find a player by ID
🧪 Check code - see whether a UC code is still usable
⚡ Activate code - top up a player with one or several codes
👥 Clan activation - one code each for 2 to 5 players
📒 My logs - your operation history

Other commands:
/account - Your subscription status
/redeem KEY - Activate a subscription key
/cancel - Abort the current operation`

	if e.directory.IsOwner(ev.From.ID) {
		text += `

Owner commands:
/add_trader ID [days] - Add or extend a trader (or reply to their message)
/remove_trader ID - Remove a trader
/toggle_trader ID - Enable or disable a trader
/traders - List traders
/genkey [days] - Issue a subscription key`
	}

	e.done(ctx, ev.ChatID, text)
}

func (e *Engine) cmdAccount(ctx context.Context, ev Event, _ string) {
	record, found := e.directory.Get(ev.From.ID)
	owner := e.directory.IsOwner(ev.From.ID)
	e.done(ctx, ev.ChatID, accountText(ev.From, record, found, owner, e.now(), e.opts.Location))
}

func (e *Engine) cmdSubscription(ctx context.Context, ev Event, _ string) {
	e.done(ctx, ev.ChatID, subscriptionText(e.opts.SupportContact))
}

// cmdLogs shows per-type counters with buttons for the latest entries
func (e *Engine) cmdLogs(ctx context.Context, ev Event, _ string) {
	page, err := e.oplog.Query(ctx, ev.From.ID, models.LogQuery{Limit: logsSummaryLimit})
	if err != nil {
		e.logger.Error("Failed to query logs", zap.Int64("user_id", ev.From.ID), zap.Error(err))
		e.done(ctx, ev.ChatID, "⚠️ Could not load your logs. Try again later.")
		return
	}
	if page.Stats.Total() == 0 {
		e.done(ctx, ev.ChatID, "📒 Your operation log is empty.")
		return
	}

	e.sessions.Reset(ev.ChatID)
	e.send(ctx, ev.ChatID, logsSummary(page), logsKeyboard())
}

func (e *Engine) onLogsHistory(ctx context.Context, cb CallbackEvent) answer {
	logType := models.LogType(strings.TrimPrefix(cb.Data, cbLogsPrefix))
	if !logType.Valid() {
		return answer{}
	}

	page, err := e.oplog.Query(ctx, cb.From.ID, models.LogQuery{Type: logType, Limit: logsHistoryLimit})
	if err != nil {
		e.logger.Error("Failed to query logs", zap.Int64("user_id", cb.From.ID), zap.Error(err))
		return alertAnswer("⚠️ Could not load your logs.")
	}
	if len(page.Items) == 0 {
		return alertAnswer("No entries of this type yet.")
	}

	e.send(ctx, cb.ChatID, logsHistory(logType, page, e.opts.Location), nil)
	return answer{}
}

// cmdRedeem consumes a subscription key for the sender
func (e *Engine) cmdRedeem(ctx context.Context, ev Event, args string) {
	key := strings.TrimSpace(args)
	if key == "" {
		e.done(ctx, ev.ChatID, "Usage: /redeem KEY")
		return
	}

	record, err := e.directory.RedeemKey(ctx, ev.From.ID, ev.From.profile(), key, e.now())
	if errors.Is(err, subscription.ErrKeyInvalid) {
		e.done(ctx, ev.ChatID, "❌ This key is invalid or has already been used.")
		return
	}
	if err != nil {
		e.logger.Error("Failed to redeem key", zap.Int64("user_id", ev.From.ID), zap.Error(err))
		e.done(ctx, ev.ChatID, "⚠️ Could not redeem the key. Try again later.")
		return
	}

	e.done(ctx, ev.ChatID, "✅ Subscription activated until "+formatTime(record.ExpiresAt, e.opts.Location)+".")
}

// requireOwner replies with a refusal to everyone but the owner
func (e *Engine) requireOwner(ctx context.Context, ev Event) bool {
	if e.directory.IsOwner(ev.From.ID) {
		return true
	}
	e.logger.Warn("Owner command attempt", zap.Int64("user_id", ev.From.ID))
	e.send(ctx, ev.ChatID, "⛔ This command is for the owner only.", e.idleMenu(ev.ChatID))
	return false
}

// targetPrincipal resolves the command target from a replied-to message
// or the first argument. The rest of the arguments are returned.
func targetPrincipal(ev Event, args string) (Principal, []string, bool) {
	fields := strings.Fields(args)
	if ev.ReplyTo != nil {
		return *ev.ReplyTo, fields, true
	}
	if len(fields) == 0 {
		return Principal{}, nil, false
	}
	id, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil || id <= 0 {
		return Principal{}, nil, false
	}
	return Principal{ID: id}, fields[1:], true
}

func (e *Engine) cmdAddTrader(ctx context.Context, ev Event, args string) {

	target, rest, ok := targetPrincipal(ev, args)
	if !ok {
		e.done(ctx, ev.ChatID, "Usage: /add_trader ID [days], or reply to the trader's message with /add_trader [days]")
		return
	}

	days := e.opts.DefaultTraderDays
	if len(rest) > 0 {
		n, err := strconv.Atoi(rest[0])
		if err != nil || n <= 0 {
			e.done(ctx, ev.ChatID, "⚠️ Days must be a positive number.")
			return
		}
		days = n
	}

	record, err := e.directory.AddOrExtend(ctx, target.ID, target.profile(), days, e.now())
	if err != nil {
		e.logger.Error("Failed to add trader", zap.Int64("trader_id", target.ID), zap.Error(err))
		e.done(ctx, ev.ChatID, fmt.Sprintf("Error: %v", err))
		return
	}

	e.logger.Info("Trader added", zap.Int64("trader_id", target.ID), zap.Int("days", days))
	e.done(ctx, ev.ChatID, fmt.Sprintf("✅ Trader %d active until %s.", target.ID, formatTime(record.ExpiresAt, e.opts.Location)))
	e.send(ctx, target.ID, "🎉 Your trader subscription is active until "+formatTime(record.ExpiresAt, e.opts.Location)+". Send /start to begin.", nil)
}

func (e *Engine) cmdRemoveTrader(ctx context.Context, ev Event, args string) {

	target, _, ok := targetPrincipal(ev, args)
	if !ok {
		e.done(ctx, ev.ChatID, "Usage: /remove_trader ID, or reply to the trader's message")
		return
	}

	err := e.directory.Remove(ctx, target.ID)
	if errors.Is(err, subscription.ErrTraderNotFound) {
		e.done(ctx, ev.ChatID, fmt.Sprintf("Trader %d not found.", target.ID))
		return
	}
	if err != nil {
		e.logger.Error("Failed to remove trader", zap.Int64("trader_id", target.ID), zap.Error(err))
		e.done(ctx, ev.ChatID, fmt.Sprintf("Error: %v", err))
		return
	}

	e.logger.Info("Trader removed", zap.Int64("trader_id", target.ID))
	e.done(ctx, ev.ChatID, fmt.Sprintf("🗑 Trader %d removed.", target.ID))
}

func (e *Engine) cmdToggleTrader(ctx context.Context, ev Event, args string) {

	target, _, ok := targetPrincipal(ev, args)
	if !ok {
		e.done(ctx, ev.ChatID, "Usage: /toggle_trader ID")
		return
	}

	current, found := e.directory.Get(target.ID)
	if !found {
		e.done(ctx, ev.ChatID, fmt.Sprintf("Trader %d not found.", target.ID))
		return
	}

	record, err := e.directory.SetActive(ctx, target.ID, !current.Active)
	if err != nil {
		e.logger.Error("Failed to toggle trader", zap.Int64("trader_id", target.ID), zap.Error(err))
		e.done(ctx, ev.ChatID, fmt.Sprintf("Error: %v", err))
		return
	}

	state := "enabled ✅"
	if !record.Active {
		state = "disabled ⛔"
	}
	e.done(ctx, ev.ChatID, fmt.Sprintf("Trader %d %s.", target.ID, state))
}

func (e *Engine) cmdTraders(ctx context.Context, ev Event, _ string) {
	e.done(ctx, ev.ChatID, traderList(e.directory.List(), e.now(), e.opts.Location))
}

// cmdGenKey issues a one-time subscription key
func (e *Engine) cmdGenKey(ctx context.Context, ev Event, args string) {

	days := defaultKeyDays
	if arg := strings.TrimSpace(args); arg != "" {
		n, err := strconv.Atoi(arg)
		if err != nil || n <= 0 {
			e.done(ctx, ev.ChatID, "Usage: /genkey [days]")
			return
		}
		days = n
	}

	key, err := e.directory.IssueKey(ctx, days, e.now())
	if err != nil {
		e.logger.Error("Failed to issue key", zap.Error(err))
		e.done(ctx, ev.ChatID, fmt.Sprintf("Error: %v", err))
		return
	}

	e.done(ctx, ev.ChatID, fmt.Sprintf("🔑 New key for %d days:\n\n%s\n\nThe trader redeems it with /redeem %s", key.Days, key.Key, key.Key))
}

// onTicket forwards the message to the admin channel with a header. One
// attempt only.
func (e *Engine) onTicket(ctx context.Context, ev Event) {
	if strings.TrimSpace(ev.Text) == "" && !ev.HasAttachment {
		e.send(ctx, ev.ChatID, "⚠️ Send a text message, photo or file.", nil)
		return
	}

	record, found := e.directory.Get(ev.From.ID)
	header := ticketHeader(ev.From, record, found, e.opts.Location)

	if _, err := e.messenger.Send(ctx, Reply{ChatID: e.opts.AdminChannelID, Text: header}); err != nil {
		e.logger.Error("Failed to deliver ticket header", zap.Int64("user_id", ev.From.ID), zap.Error(err))
		e.done(ctx, ev.ChatID, "⚠️ Your message could not be delivered to support. Try again later.")
		return
	}
	if err := e.messenger.Forward(ctx, e.opts.AdminChannelID, ev.ChatID, ev.MessageID); err != nil {
		e.logger.Error("Failed to forward ticket", zap.Int64("user_id", ev.From.ID), zap.Error(err))
		e.done(ctx, ev.ChatID, "⚠️ Your message could not be delivered to support. Try again later.")
		return
	}

	e.logger.Info("Support ticket delivered", zap.Int64("user_id", ev.From.ID))
	e.done(ctx, ev.ChatID, "✅ Your message was sent to support.")
}
