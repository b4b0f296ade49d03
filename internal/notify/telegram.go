package notify

import (
	"context"
	"fmt"
	"net/http"
	"time"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Alias1177/MerchantScope/internal/report"
)

// maxMessageLength is Telegram's limit for a text message
const maxMessageLength = 4096

// sendTimeout bounds a Bot API request made by NewTelegram's client
const sendTimeout = 15 * time.Second

// Telegram sends report summaries to a chat
type Telegram struct {
	bot    *tgbotapi.BotAPI
	chatID int64
	logger zerolog.Logger
}

// NewTelegram creates a notifier for the given bot token and chat
func NewTelegram(token string, chatID int64) (*Telegram, error) {
	return NewTelegramWithEndpoint(token, chatID, tgbotapi.APIEndpoint, &http.Client{Timeout: sendTimeout})
}

// NewTelegramWithEndpoint is NewTelegram against a custom Bot API endpoint
func NewTelegramWithEndpoint(token string, chatID int64, endpoint string, client *http.Client) (*Telegram, error) {
	if token == "" {
		return nil, fmt.Errorf("telegram bot token is empty")
	}
	if chatID == 0 {
		return nil, fmt.Errorf("telegram chat id is empty")
	}

	bot, err := tgbotapi.NewBotAPIWithClient(token, endpoint, client)
	if err != nil {
		return nil, fmt.Errorf("initializing telegram bot: %w", err)
	}

	return &Telegram{
		bot:    bot,
		chatID: chatID,
		logger: log.With().Str("component", "telegram").Logger(),
	}, nil
}

// Notify sends the summary of rep. The Bot API client has no context
// support, so Notify stops waiting when ctx is done and the request itself
// is bounded by the HTTP client's timeout.
func (t *Telegram) Notify(ctx context.Context, rep report.Report) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := tgbotapi.NewMessage(t.chatID, Message(rep))
	msg.DisableWebPagePreview = true

	done := make(chan error, 1)
	go func() {
		_, err := t.bot.Send(msg)
		done <- err
	}()

	var err error
	select {
	case err = <-done:
	case <-ctx.Done():
		t.logger.Warn().Int64("chat_id", t.chatID).Msg("Gave up waiting for report summary delivery")
		return ctx.Err()
	}
	if err != nil {
		t.logger.Error().Err(err).Int64("chat_id", t.chatID).Msg("Failed to send report summary")
		return fmt.Errorf("sending telegram message: %w", err)
	}

	t.logger.Info().Str("run_id", rep.RunID).Int64("chat_id", t.chatID).Msg("Report summary sent")
	return nil
}

// Message renders the text sent for rep, truncated to Telegram's limit
func Message(rep report.Report) string {
	text := report.Text(rep)
	if utf8.RuneCountInString(text) <= maxMessageLength {
		return text
	}

	const suffix = "\n... truncated"
	runes := []rune(text)
	return string(runes[:maxMessageLength-utf8.RuneCountInString(suffix)]) + suffix
}
