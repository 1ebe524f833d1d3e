package notify

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

type telegramAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramSender delivers messages to a single Telegram chat.
type TelegramSender struct {
	api    telegramAPI
	chatID int64
}

// NewTelegramSender creates a TelegramSender for the bot token and chat.
func NewTelegramSender(token string, chatID int64) (*TelegramSender, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}
	return &TelegramSender{api: api, chatID: chatID}, nil
}

// Send posts msg as text, or as a captioned photo when it carries a thumbnail.
func (t *TelegramSender) Send(_ context.Context, msg Message) error {
	var c tgbotapi.Chattable
	if msg.Thumb != "" {
		photo := tgbotapi.NewPhoto(t.chatID, tgbotapi.FileURL(msg.Thumb))
		photo.Caption = caption(msg)
		c = photo
	} else {
		m := tgbotapi.NewMessage(t.chatID, caption(msg))
		m.DisableWebPagePreview = true
		c = m
	}
	if _, err := t.api.Send(c); err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	return nil
}

func caption(msg Message) string {
	if msg.Title == "" {
		return msg.Text
	}
	if msg.Text == "" {
		return msg.Title
	}
	return msg.Title + "\n" + msg.Text
}
