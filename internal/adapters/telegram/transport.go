// Package telegram adapts the Telegram Bot API to the upstream
// transport port. Message IDs from Telegram are monotonically
// increasing per chat, which is exactly the ordering contract the
// recovery cursor depends on.
package telegram

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/example/courier/internal/core/event"
	"github.com/example/courier/internal/ports/secondary"
)

// Bot is the slice of the Telegram API the transport uses. Kept as an
// interface so tests can substitute a fake.
type Bot interface {
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetSelf() tgbotapi.User
}

type botWrapper struct {
	bot *tgbotapi.BotAPI
}

func (w *botWrapper) GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return w.bot.GetUpdatesChan(config)
}

func (w *botWrapper) StopReceivingUpdates() {
	w.bot.StopReceivingUpdates()
}

func (w *botWrapper) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	return w.bot.Send(c)
}

func (w *botWrapper) GetSelf() tgbotapi.User {
	return w.bot.Self
}

// BotFactory creates Bot instances so tests can inject fakes.
type BotFactory func(token string, client *http.Client) (Bot, error)

var defaultBotFactory BotFactory = func(token string, client *http.Client) (Bot, error) {
	bot, err := tgbotapi.NewBotAPIWithClient(token, tgbotapi.APIEndpoint, client)
	if err != nil {
		return nil, err
	}
	return &botWrapper{bot: bot}, nil
}

// Config holds the transport's connection settings.
type Config struct {
	Token       string
	Proxy       string
	PollTimeout int
}

// Transport implements secondary.UpstreamTransport over Telegram long
// polling.
type Transport struct {
	cfg     Config
	log     *zap.Logger
	factory BotFactory
	bot     Bot
}

// New creates a Telegram transport.
func New(cfg Config, log *zap.Logger) (*Transport, error) {
	return NewWithFactory(cfg, log, defaultBotFactory)
}

// NewWithFactory creates a Telegram transport with a custom bot
// factory, used by tests.
func NewWithFactory(cfg Config, log *zap.Logger, factory BotFactory) (*Transport, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("telegram token is required")
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = 30
	}
	return &Transport{cfg: cfg, log: log, factory: factory}, nil
}

func (t *Transport) initBot() error {
	client := http.DefaultClient
	if t.cfg.Proxy != "" {
		proxyURL, err := url.Parse(t.cfg.Proxy)
		if err != nil {
			return fmt.Errorf("failed to parse proxy url: %w", err)
		}
		client = &http.Client{
			Transport: &http.Transport{Proxy: http.ProxyURL(proxyURL)},
		}
	}

	bot, err := t.factory(t.cfg.Token, client)
	if err != nil {
		return fmt.Errorf("failed to create telegram bot: %w", err)
	}
	t.bot = bot
	t.log.Info("telegram transport authorized",
		zap.String("username", bot.GetSelf().UserName))
	return nil
}

// Run polls Telegram for updates and hands each message to handle.
// A handler error leaves the update unacknowledged in this session;
// the recovery pass picks the event up on the next run because the
// chat history retains it.
func (t *Transport) Run(ctx context.Context, handle secondary.EventHandler) error {
	if t.bot == nil {
		if err := t.initBot(); err != nil {
			return err
		}
	}

	u := tgbotapi.NewUpdate(0)
	u.Timeout = t.cfg.PollTimeout
	updates := t.bot.GetUpdatesChan(u)
	defer t.bot.StopReceivingUpdates()

	t.log.Info("telegram polling started")
	for {
		select {
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if update.Message == nil || update.Message.From == nil {
				continue
			}
			e := toInbound(update.Message)
			if err := handle(ctx, e); err != nil {
				t.log.Error("event handling failed",
					zap.String("event", e.Identity().String()),
					zap.Error(err))
			}
		case <-ctx.Done():
			t.log.Info("telegram polling stopped")
			return ctx.Err()
		}
	}
}

func toInbound(msg *tgbotapi.Message) event.Inbound {
	payload := msg.Text
	if payload == "" {
		payload = msg.Caption
	}
	return event.Inbound{
		UserID:          strconv.FormatInt(msg.From.ID, 10),
		MessageID:       int64(msg.MessageID),
		SourceTimestamp: time.Unix(int64(msg.Date), 0).UTC(),
		Payload:         payload,
		ReceivedAt:      time.Now().UTC(),
	}
}

// Deliver sends approved output to the user's chat. Long messages are
// split on line boundaries under Telegram's 4096 character cap.
func (t *Transport) Deliver(ctx context.Context, userID, text string) error {
	if t.bot == nil {
		if err := t.initBot(); err != nil {
			return err
		}
	}

	chatID, err := strconv.ParseInt(userID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid user id %q: %w", userID, err)
	}

	const maxLen = 4000
	for len(text) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		chunk := text
		if len(chunk) > maxLen {
			// Back up to a rune boundary so a multi-byte character is
			// never split across messages.
			cut := maxLen
			for cut > 0 && !utf8.RuneStart(text[cut]) {
				cut--
			}
			if idx := strings.LastIndex(chunk[:cut], "\n"); idx > 0 {
				chunk = chunk[:idx]
			} else {
				chunk = chunk[:cut]
			}
		}
		text = text[len(chunk):]

		if _, err := t.bot.Send(tgbotapi.NewMessage(chatID, chunk)); err != nil {
			return fmt.Errorf("failed to send telegram message: %w", err)
		}
	}
	return nil
}
