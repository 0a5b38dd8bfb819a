package bot

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

const (
	webhookPath       = "/telegram-webhook"
	secretTokenHeader = "X-Telegram-Bot-Api-Secret-Token"
)

var allowedUpdates = []string{"message", "callback_query", "inline_query"}

// Start runs the bot in polling mode until ctx is done
func (b *Bot) Start(ctx context.Context) error {
	b.logger.Info("Starting bot in polling mode")

	// Remove webhook (if any was set previously)
	_, err := b.api.Request(tgbotapi.DeleteWebhookConfig{})
	if err != nil {
		b.logger.Warn("Failed to delete webhook", zap.Error(err))
	}

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	u.AllowedUpdates = allowedUpdates

	updates := b.api.GetUpdatesChan(u)

	b.logger.Info("Bot started successfully. Waiting for updates...")

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			b.HandleUpdate(update)
		}
	}
}

// StartWebhook registers the webhook with Telegram. Telegram sends secret
// back in the X-Telegram-Bot-Api-Secret-Token header of every update.
func (b *Bot) StartWebhook(webhookURL, secret string) error {
	b.logger.Info("Setting up webhook", zap.String("webhook_url", webhookURL))

	params := tgbotapi.Params{}
	params["url"] = webhookURL + webhookPath
	params.AddNonEmpty("secret_token", secret)
	params.AddNonZero("max_connections", 40)
	if err := params.AddInterface("allowed_updates", allowedUpdates); err != nil {
		return err
	}

	if _, err := b.api.MakeRequest("setWebhook", params); err != nil {
		b.logger.Error("Failed to set webhook", zap.Error(err), zap.String("webhook_url", webhookURL))
		return err
	}

	// Get webhook info to verify
	info, err := b.api.GetWebhookInfo()
	if err != nil {
		b.logger.Warn("Failed to get webhook info", zap.Error(err))
	} else {
		b.logger.Info("Webhook set successfully",
			zap.String("url", info.URL),
			zap.Int("pending_updates", info.PendingUpdateCount),
		)
	}

	b.logger.Info("Bot configured for webhook mode")
	return nil
}

// WebhookHandler accepts updates pushed by Telegram. Requests without the
// registered secret are rejected before they reach the engine.
func (b *Bot) WebhookHandler(secret string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		got := r.Header.Get(secretTokenHeader)
		if secret == "" || subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
			b.logger.Warn("Rejected webhook request with a bad secret token",
				zap.String("remote_addr", r.RemoteAddr),
			)
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		var update tgbotapi.Update
		if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
			b.logger.Warn("Error decoding webhook update", zap.Error(err))
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		// Queued per chat, so Telegram gets its answer right away
		b.HandleUpdate(update)
		w.WriteHeader(http.StatusOK)
	}
}

// Stop waits for queued updates to finish, including running clan
// batches, until ctx is done
func (b *Bot) Stop(ctx context.Context) error {
	b.logger.Info("Waiting for in-flight updates")
	return b.dispatcher.Close(ctx)
}
