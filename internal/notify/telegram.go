// Package notify delivers monitor alerts to operators.
package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

var ErrNotConfigured = errors.New("telegram token and chat id are required")

type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramSink sends alerts to one chat. Telegram allows about 30 bot
// messages per second; the sink stays well below that.
type TelegramSink struct {
	bot     sender
	chatID  int64
	limiter *rate.Limiter
	timeout time.Duration
}

// NewTelegramSink connects to the bot API with token.
func NewTelegramSink(token string, chatID int64) (*TelegramSink, error) {
	if token == "" || chatID == 0 {
		return nil, ErrNotConfigured
	}
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("init telegram bot: %w", err)
	}
	return newTelegramSink(bot, chatID), nil
}

func newTelegramSink(bot sender, chatID int64) *TelegramSink {
	return &TelegramSink{
		bot:     bot,
		chatID:  chatID,
		limiter: rate.NewLimiter(rate.Every(50*time.Millisecond), 5),
		timeout: 5 * time.Second,
	}
}

// Send implements monitor.AlertSink.
func (s *TelegramSink) Send(message string) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	if err := s.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("telegram rate limit: %w", err)
	}
	msg := tgbotapi.NewMessage(s.chatID, message)
	msg.DisableWebPagePreview = true
	if _, err := s.bot.Send(msg); err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	return nil
}

// LogSink writes alerts to the log; used when no chat is configured.
type LogSink struct {
	Log zerolog.Logger
}

func (s LogSink) Send(message string) error {
	s.Log.Info().Str("component", "alerts").Msg(message)
	return nil
}
