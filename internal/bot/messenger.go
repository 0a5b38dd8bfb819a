package bot

import (
	"context"
	"errors"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"uctrader/internal/workflow"
)

var errNoAPI = errors.New("bot: telegram api not configured")

// Messenger delivers workflow replies through the Bot API
type Messenger struct {
	api *tgbotapi.BotAPI
}

// NewMessenger creates a Messenger on api
func NewMessenger(api *tgbotapi.BotAPI) *Messenger {
	return &Messenger{api: api}
}

// Send sends a text message and returns its message id
func (m *Messenger) Send(ctx context.Context, reply workflow.Reply) (int, error) {
	if m.api == nil {
		return 0, errNoAPI
	}

	msg := tgbotapi.NewMessage(reply.ChatID, reply.Text)
	msg.DisableWebPagePreview = true
	if markup := replyMarkup(reply.Keyboard); markup != nil {
		msg.ReplyMarkup = markup
	}

	sent, err := m.api.Send(msg)
	if err != nil {
		return 0, err
	}
	return sent.MessageID, nil
}

// Edit replaces the text of a sent message. Only inline keyboards can be
// attached to an edited message.
func (m *Messenger) Edit(ctx context.Context, chatID int64, messageID int, text string, keyboard *workflow.Keyboard) error {
	if m.api == nil {
		return errNoAPI
	}

	edit := tgbotapi.NewEditMessageText(chatID, messageID, text)
	if keyboard != nil && keyboard.Kind == workflow.KeyboardInline {
		markup := inlineMarkup(keyboard)
		edit.ReplyMarkup = &markup
	}

	_, err := m.api.Request(edit)
	return err
}

// Forward copies a message into another chat with its origin attached
func (m *Messenger) Forward(ctx context.Context, toChatID, fromChatID int64, messageID int) error {
	if m.api == nil {
		return errNoAPI
	}

	_, err := m.api.Send(tgbotapi.NewForward(toChatID, fromChatID, messageID))
	return err
}

// AnswerCallback stops the button spinner, optionally with a toast or alert
func (m *Messenger) AnswerCallback(ctx context.Context, callbackID, text string, alert bool) error {
	if m.api == nil {
		return errNoAPI
	}

	cfg := tgbotapi.NewCallback(callbackID, text)
	cfg.ShowAlert = alert

	_, err := m.api.Request(cfg)
	return err
}

// AnswerInline answers an inline query with article results
func (m *Messenger) AnswerInline(ctx context.Context, queryID string, results []workflow.InlineResult) error {
	if m.api == nil {
		return errNoAPI
	}

	_, err := m.api.Request(inlineConfig(queryID, results))
	return err
}

func inlineConfig(queryID string, results []workflow.InlineResult) tgbotapi.InlineConfig {
	articles := make([]interface{}, 0, len(results))
	for _, r := range results {
		article := tgbotapi.NewInlineQueryResultArticle(r.ID, r.Title, r.Text)
		article.Description = r.Description
		articles = append(articles, article)
	}

	return tgbotapi.InlineConfig{
		InlineQueryID: queryID,
		Results:       articles,
		CacheTime:     0,
		IsPersonal:    true,
	}
}

// replyMarkup converts a keyboard into the Bot API markup for new messages
func replyMarkup(kb *workflow.Keyboard) interface{} {
	if kb == nil {
		return nil
	}

	switch kb.Kind {
	case workflow.KeyboardInline:
		return inlineMarkup(kb)
	case workflow.KeyboardRemove:
		return tgbotapi.NewRemoveKeyboard(true)
	}

	rows := make([][]tgbotapi.KeyboardButton, 0, len(kb.Rows))
	for _, row := range kb.Rows {
		buttons := make([]tgbotapi.KeyboardButton, 0, len(row))
		for _, b := range row {
			buttons = append(buttons, tgbotapi.NewKeyboardButton(b.Text))
		}
		rows = append(rows, tgbotapi.NewKeyboardButtonRow(buttons...))
	}

	markup := tgbotapi.NewReplyKeyboard(rows...)
	markup.ResizeKeyboard = true
	return markup
}

func inlineMarkup(kb *workflow.Keyboard) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(kb.Rows))
	for _, row := range kb.Rows {
		buttons := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
		for _, b := range row {
			buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(b.Text, b.Data))
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(buttons...))
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}
