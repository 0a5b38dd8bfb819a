package bot

import (
	"context"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"uctrader/internal/workflow"
)

// Engine handles converted updates
type Engine interface {
	HandleMessage(ctx context.Context, ev workflow.Event)
	HandleCallback(ctx context.Context, cb workflow.CallbackEvent)
	HandleInlineQuery(ctx context.Context, q workflow.InlineQuery)
}

// Bot represents the Telegram bot wrapper
type Bot struct {
	api        *tgbotapi.BotAPI
	engine     Engine
	dispatcher *dispatcher
	logger     *zap.Logger
}
