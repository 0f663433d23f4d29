package transport

import (
	"context"
	"strconv"
	"strings"
)

// Channel names used in Target.Channel.
const (
	ChannelTelegram = "telegram"
	ChannelHTTP     = "http"
	ChannelConsole  = "console"
)

// Target addresses one conversation on one transport.
//
// ID is transport specific (Telegram chat id, HTTP session name, ...).
// ThreadID is the Telegram forum topic (0 if none).
type Target struct {
	Channel  string
	ID       string
	ThreadID int
}

// Key is the stable identifier used to scope sessions and persisted entries.
func (t Target) Key() string {
	k := strings.ToLower(strings.TrimSpace(t.Channel)) + ":" + strings.TrimSpace(t.ID)
	if t.ThreadID != 0 {
		k += "/" + strconv.Itoa(t.ThreadID)
	}
	return k
}

func (t Target) IsZero() bool { return t.Channel == "" && t.ID == "" }

// TelegramTarget builds a Target for a Telegram chat (and optional topic).
func TelegramTarget(chatID int64, threadID int) Target {
	return Target{Channel: ChannelTelegram, ID: strconv.FormatInt(chatID, 10), ThreadID: threadID}
}

// Message is one inbound chat line.
type Message struct {
	ID           int
	Target       Target
	FromID       int64
	FromUsername string
	Text         string
}

// Sink is the only way output leaves the bot. Send is called once per line.
type Sink interface {
	Send(ctx context.Context, to Target, text string) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, to Target, text string) error

func (f SinkFunc) Send(ctx context.Context, to Target, text string) error { return f(ctx, to, text) }

// Adapter is a long-running chat transport: it delivers inbound messages on out
// and sends text to targets on its channel.
type Adapter interface {
	Channel() string
	Start(ctx context.Context, out chan<- Message) error
	Stop(ctx context.Context) error
	Sink
}
