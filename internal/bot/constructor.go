package bot

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// NewAPI connects to the Telegram Bot API
func NewAPI(token string, logger *zap.Logger) (*tgbotapi.BotAPI, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		logger.Error("Failed to create bot API", zap.Error(err))
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	logger.Info("Bot API connected", zap.String("bot_username", api.Self.UserName))
	return api, nil
}

// NewBot creates a new Telegram bot feeding updates to engine
func NewBot(api *tgbotapi.BotAPI, engine Engine, logger *zap.Logger) *Bot {
	return &Bot{
		api:        api,
		engine:     engine,
		dispatcher: newDispatcher(logger),
		logger:     logger,
	}
}

// GetAPI returns the bot API
func (b *Bot) GetAPI() *tgbotapi.BotAPI {
	return b.api
}
