package bot

import (
	"context"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"uctrader/internal/workflow"
)

// HandleUpdate converts an update and queues it for its chat. Updates of
// one chat are handled in arrival order.
func (b *Bot) HandleUpdate(update tgbotapi.Update) {
	ctx := context.Background()

	switch {
	case update.Message != nil:
		ev, ok := messageEvent(update.Message)
		if !ok {
			return
		}
		b.submit(ev.ChatID, update.UpdateID, func() { b.engine.HandleMessage(ctx, ev) })

	case update.CallbackQuery != nil:
		cb, ok := callbackEvent(update.CallbackQuery)
		if !ok {
			return
		}
		b.submit(cb.ChatID, update.UpdateID, func() { b.engine.HandleCallback(ctx, cb) })

	case update.InlineQuery != nil:
		q, ok := inlineQuery(update.InlineQuery)
		if !ok {
			return
		}
		if err := b.dispatcher.Spawn(func() { b.engine.HandleInlineQuery(ctx, q) }); err != nil {
			b.logger.Warn("Dropped inline query", zap.Int("update_id", update.UpdateID), zap.Error(err))
		}
	}
}

func (b *Bot) submit(chatID int64, updateID int, job func()) {
	if err := b.dispatcher.Submit(chatID, job); err != nil {
		b.logger.Warn("Dropped update",
			zap.Int("update_id", updateID),
			zap.Int64("chat_id", chatID),
			zap.Error(err),
		)
	}
}

func principal(u *tgbotapi.User) workflow.Principal {
	return workflow.Principal{
		ID:        u.ID,
		Username:  u.UserName,
		FirstName: u.FirstName,
		LastName:  u.LastName,
	}
}

// messageEvent converts a message. Channel posts without a sender are skipped.
func messageEvent(m *tgbotapi.Message) (workflow.Event, bool) {
	if m.From == nil || m.Chat == nil {
		return workflow.Event{}, false
	}

	text := m.Text
	if text == "" {
		text = m.Caption
	}

	ev := workflow.Event{
		ChatID:        m.Chat.ID,
		MessageID:     m.MessageID,
		From:          principal(m.From),
		Text:          text,
		HasAttachment: hasAttachment(m),
	}
	if m.ReplyToMessage != nil && m.ReplyToMessage.From != nil && !m.ReplyToMessage.From.IsBot {
		replyTo := principal(m.ReplyToMessage.From)
		ev.ReplyTo = &replyTo
	}
	return ev, true
}

func hasAttachment(m *tgbotapi.Message) bool {
	return len(m.Photo) > 0 ||
		m.Document != nil ||
		m.Video != nil ||
		m.Voice != nil ||
		m.Audio != nil ||
		m.Sticker != nil ||
		m.VideoNote != nil
}

// callbackEvent converts a button press. Presses on inline-mode messages
// carry no chat and are attributed to the sender's private chat.
func callbackEvent(q *tgbotapi.CallbackQuery) (workflow.CallbackEvent, bool) {
	if q.From == nil {
		return workflow.CallbackEvent{}, false
	}

	cb := workflow.CallbackEvent{
		ID:     q.ID,
		ChatID: q.From.ID,
		From:   principal(q.From),
		Data:   q.Data,
	}
	if q.Message != nil && q.Message.Chat != nil {
		cb.ChatID = q.Message.Chat.ID
		cb.MessageID = q.Message.MessageID
	}
	return cb, true
}

func inlineQuery(q *tgbotapi.InlineQuery) (workflow.InlineQuery, bool) {
	if q.From == nil {
		return workflow.InlineQuery{}, false
	}
	return workflow.InlineQuery{ID: q.ID, From: principal(q.From), Query: q.Query}, true
}
