package providers

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/panelrenew/panelrenew/internal/report"
)

// TelegramSender posts reports to a Telegram chat
type TelegramSender struct {
	bot    *tgbotapi.BotAPI
	chatID int64
}

// NewTelegramSender connects to the Bot API. endpoint overrides the API URL
// format (tgbotapi.APIEndpoint) and may be empty.
func NewTelegramSender(token string, chatID int64, endpoint string) (*TelegramSender, error) {
	var (
		bot *tgbotapi.BotAPI
		err error
	)
	if endpoint != "" {
		bot, err = tgbotapi.NewBotAPIWithAPIEndpoint(token, endpoint)
	} else {
		bot, err = tgbotapi.NewBotAPI(token)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to init telegram bot: %w", err)
	}

	return &TelegramSender{
		bot:    bot,
		chatID: chatID,
	}, nil
}

func (t *TelegramSender) Name() string { return "telegram" }

// Send posts the plain-text report and then the last screenshot, if any.
func (t *TelegramSender) Send(ctx context.Context, r *report.Report) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	// Plain text: report bodies carry panel error strings that would break
	// HTML or Markdown parse modes.
	msg := tgbotapi.NewMessage(t.chatID, r.PlainBody)
	msg.DisableWebPagePreview = true
	if _, err := t.bot.Send(msg); err != nil {
		return fmt.Errorf("failed to send telegram message: %w", err)
	}

	if r.Screenshot == "" {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	photo := tgbotapi.NewPhoto(t.chatID, tgbotapi.FilePath(r.Screenshot))
	photo.Caption = r.Subject
	if _, err := t.bot.Send(photo); err != nil {
		return fmt.Errorf("failed to send telegram photo: %w", err)
	}
	return nil
}
