// Package alarm raises operational alarms that need a human, such as an
// approved payment whose ticket no longer exists.
package alarm

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"ms-raffle/internal/logger"
)

type Alarm interface {
	Raise(ctx context.Context, title, detail string) error
}

type LogAlarm struct {
	Logger *logger.Logger
}

func NewLogAlarm(log *logger.Logger) *LogAlarm {
	return &LogAlarm{Logger: log}
}

func (a *LogAlarm) Raise(ctx context.Context, title, detail string) error {
	a.Logger.Error("ALARM", fmt.Sprintf("%s: %s", title, detail))
	return nil
}

// TelegramAlarm posts alarms to an operator chat.
type TelegramAlarm struct {
	bot    *tgbotapi.BotAPI
	chatID int64
	log    *logger.Logger
}

// NewTelegramAlarm authenticates the bot. apiEndpoint may be empty for the
// public Telegram API.
func NewTelegramAlarm(token string, chatID int64, apiEndpoint string, client *http.Client, log *logger.Logger) (*TelegramAlarm, error) {
	if token == "" || chatID == 0 {
		return nil, errors.New("telegram token and chat id are required")
	}
	if apiEndpoint == "" {
		apiEndpoint = tgbotapi.APIEndpoint
	}
	if client == nil {
		client = &http.Client{}
	}

	bot, err := tgbotapi.NewBotAPIWithClient(token, apiEndpoint, client)
	if err != nil {
		return nil, fmt.Errorf("authorize telegram bot: %w", err)
	}

	log.Info("ALARM", fmt.Sprintf("Telegram alarms enabled as @%s", bot.Self.UserName))
	return &TelegramAlarm{bot: bot, chatID: chatID, log: log}, nil
}

func (a *TelegramAlarm) Raise(ctx context.Context, title, detail string) error {
	msg := tgbotapi.NewMessage(a.chatID, fmt.Sprintf("🚨 %s\n%s", title, detail))
	if _, err := a.bot.Send(msg); err != nil {
		a.log.Error("ALARM", fmt.Sprintf("Failed to send telegram alarm %q: %v", title, err))
		return err
	}
	return nil
}

// Multi raises on every alarm and returns the joined errors.
type Multi []Alarm

func (m Multi) Raise(ctx context.Context, title, detail string) error {
	var errs []error
	for _, a := range m {
		if err := a.Raise(ctx, title, detail); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
