package notify

import (
	"errors"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

type captureBot struct {
	sent []tgbotapi.MessageConfig
	err  error
}

func (b *captureBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if b.err != nil {
		return tgbotapi.Message{}, b.err
	}
	if m, ok := c.(tgbotapi.MessageConfig); ok {
		b.sent = append(b.sent, m)
	}
	return tgbotapi.Message{}, nil
}

func TestTelegramSinkSends(t *testing.T) {
	bot := &captureBot{}
	sink := newTelegramSink(bot, 42)

	if err := sink.Send("Forced exit [Loss management]: KRW-BTC"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(bot.sent) != 1 {
		t.Fatalf("sent = %d", len(bot.sent))
	}
	if bot.sent[0].ChatID != 42 || bot.sent[0].Text != "Forced exit [Loss management]: KRW-BTC" {
		t.Errorf("message = %+v", bot.sent[0])
	}
}

func TestTelegramSinkWrapsErrors(t *testing.T) {
	boom := errors.New("bad gateway")
	sink := newTelegramSink(&captureBot{err: boom}, 42)
	if err := sink.Send("x"); !errors.Is(err, boom) {
		t.Errorf("expected wrapped error, got %v", err)
	}
}

func TestNewTelegramSinkRequiresConfig(t *testing.T) {
	if _, err := NewTelegramSink("", 1); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("expected ErrNotConfigured, got %v", err)
	}
	if _, err := NewTelegramSink("token", 0); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("expected ErrNotConfigured, got %v", err)
	}
}
