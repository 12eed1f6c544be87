package telegram

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/example/courier/internal/core/event"
)

type mockBot struct {
	mu          sync.Mutex
	updatesChan chan tgbotapi.Update
	stopped     bool
	sent        []tgbotapi.MessageConfig
	sendErr     error
}

func newMockBot() *mockBot {
	return &mockBot{updatesChan: make(chan tgbotapi.Update, 10)}
}

func (m *mockBot) GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return m.updatesChan
}

func (m *mockBot) StopReceivingUpdates() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopped = true
}

func (m *mockBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if msg, ok := c.(tgbotapi.MessageConfig); ok {
		m.sent = append(m.sent, msg)
	}
	if m.sendErr != nil {
		return tgbotapi.Message{}, m.sendErr
	}
	return tgbotapi.Message{MessageID: 1}, nil
}

func (m *mockBot) GetSelf() tgbotapi.User {
	return tgbotapi.User{UserName: "courierbot"}
}

func (m *mockBot) sentMessages() []tgbotapi.MessageConfig {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]tgbotapi.MessageConfig(nil), m.sent...)
}

func newTestTransport(t *testing.T, bot *mockBot) *Transport {
	t.Helper()
	factory := func(token string, client *http.Client) (Bot, error) {
		return bot, nil
	}
	tr, err := NewWithFactory(Config{Token: "fake-token"}, zap.NewNop(), factory)
	if err != nil {
		t.Fatalf("NewWithFactory failed: %v", err)
	}
	return tr
}

func TestNewRequiresToken(t *testing.T) {
	if _, err := New(Config{}, zap.NewNop()); err == nil {
		t.Fatal("expected error for missing token")
	}
}

func TestRunConvertsUpdates(t *testing.T) {
	bot := newMockBot()
	tr := newTestTransport(t, bot)

	ctx, cancel := context.WithCancel(context.Background())
	received := make(chan event.Inbound, 1)
	handle := func(ctx context.Context, e event.Inbound) error {
		received <- e
		return nil
	}

	done := make(chan error, 1)
	go func() { done <- tr.Run(ctx, handle) }()

	bot.updatesChan <- tgbotapi.Update{
		Message: &tgbotapi.Message{
			MessageID: 42,
			From:      &tgbotapi.User{ID: 1001},
			Chat:      &tgbotapi.Chat{ID: 1001},
			Date:      int(time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC).Unix()),
			Text:      "running late, be there at 7",
		},
	}

	select {
	case e := <-received:
		if e.UserID != "1001" || e.MessageID != 42 {
			t.Errorf("identity = %s, want 1001:42", e.Identity())
		}
		if e.Payload != "running late, be there at 7" {
			t.Errorf("Payload = %q", e.Payload)
		}
		if e.SourceTimestamp.IsZero() {
			t.Error("SourceTimestamp not set")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("handler never invoked")
	}

	cancel()
	if err := <-done; err != context.Canceled {
		t.Errorf("Run returned %v, want context.Canceled", err)
	}
	if !bot.stopped {
		t.Error("polling was not stopped")
	}
}

func TestRunSkipsNonMessageUpdates(t *testing.T) {
	bot := newMockBot()
	tr := newTestTransport(t, bot)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var calls int
	handle := func(ctx context.Context, e event.Inbound) error {
		calls++
		return nil
	}

	done := make(chan error, 1)
	go func() { done <- tr.Run(ctx, handle) }()

	bot.updatesChan <- tgbotapi.Update{} // no Message
	bot.updatesChan <- tgbotapi.Update{Message: &tgbotapi.Message{MessageID: 1}} // no From

	time.Sleep(100 * time.Millisecond)
	cancel()
	<-done

	if calls != 0 {
		t.Errorf("handler called %d times, want 0", calls)
	}
}

func TestDeliver(t *testing.T) {
	t.Run("sends to the numeric chat id", func(t *testing.T) {
		bot := newMockBot()
		tr := newTestTransport(t, bot)

		if err := tr.Deliver(context.Background(), "1001", "approved reply"); err != nil {
			t.Fatalf("Deliver failed: %v", err)
		}
		sent := bot.sentMessages()
		if len(sent) != 1 {
			t.Fatalf("sent %d messages, want 1", len(sent))
		}
		if sent[0].ChatID != 1001 || sent[0].Text != "approved reply" {
			t.Errorf("sent = %+v", sent[0])
		}
	})

	t.Run("rejects non-numeric user id", func(t *testing.T) {
		bot := newMockBot()
		tr := newTestTransport(t, bot)

		if err := tr.Deliver(context.Background(), "not-a-chat", "text"); err == nil {
			t.Fatal("expected error for non-numeric user id")
		}
	})

	t.Run("splits long output into chunks", func(t *testing.T) {
		bot := newMockBot()
		tr := newTestTransport(t, bot)

		long := ""
		for i := 0; i < 500; i++ {
			long += "a line of generated output that pads the message\n"
		}
		if err := tr.Deliver(context.Background(), "1001", long); err != nil {
			t.Fatalf("Deliver failed: %v", err)
		}
		sent := bot.sentMessages()
		if len(sent) < 2 {
			t.Fatalf("sent %d messages, want multiple chunks", len(sent))
		}
		for i, msg := range sent {
			if len(msg.Text) > 4000 {
				t.Errorf("chunk %d is %d chars, exceeds cap", i, len(msg.Text))
			}
		}
	})

	t.Run("never splits a rune across chunks", func(t *testing.T) {
		bot := newMockBot()
		tr := newTestTransport(t, bot)

		// No newlines, so the cut falls wherever the cap lands; the cap
		// is not a multiple of three bytes, so a byte-index cut would
		// land mid-rune.
		long := strings.Repeat("也", 3000)
		if err := tr.Deliver(context.Background(), "1001", long); err != nil {
			t.Fatalf("Deliver failed: %v", err)
		}
		sent := bot.sentMessages()
		if len(sent) < 2 {
			t.Fatalf("sent %d messages, want multiple chunks", len(sent))
		}
		var rebuilt strings.Builder
		for i, msg := range sent {
			if !utf8.ValidString(msg.Text) {
				t.Errorf("chunk %d contains a split rune", i)
			}
			rebuilt.WriteString(msg.Text)
		}
		if rebuilt.String() != long {
			t.Error("chunks do not reassemble to the original text")
		}
	})

	t.Run("propagates send failure", func(t *testing.T) {
		bot := newMockBot()
		bot.sendErr = fmt.Errorf("telegram unavailable")
		tr := newTestTransport(t, bot)

		if err := tr.Deliver(context.Background(), "1001", "text"); err == nil {
			t.Fatal("expected send error")
		}
	})
}
