// Package telegram is the Telegram chat transport: a long-polling adapter that
// forwards text messages and sends reply lines.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	tele "gopkg.in/telebot.v4"

	"stockbot/internal/runtime/supervisor"
	"stockbot/internal/transport"
	logx "stockbot/pkg/logx"
)

type Config struct {
	Token       string
	PollTimeout time.Duration
	// AllowedChats limits which chats are forwarded. Empty accepts all.
	AllowedChats []int64
	// MaxRetries bounds SendText retries (default 4).
	MaxRetries uint64
}

type Adapter struct {
	cfg     Config
	log     logx.Logger
	allowed map[int64]bool

	bot     *tele.Bot
	out     atomic.Value // chan<- transport.Message
	runMu   sync.Mutex
	running bool
	sup     *supervisor.Supervisor

	droppedUpdates uint64
}

var _ transport.Adapter = (*Adapter)(nil)

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = 10 * time.Second
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 4
	}
	b, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: cfg.PollTimeout},
	})
	if err != nil {
		return nil, err
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	a := &Adapter{cfg: cfg, log: log.With(logx.String("comp", "telegram")), bot: b, allowed: map[int64]bool{}}
	for _, id := range cfg.AllowedChats {
		a.allowed[id] = true
	}
	var nilOut chan<- transport.Message
	a.out.Store(nilOut)
	a.registerHandlers()
	return a, nil
}

func (a *Adapter) Channel() string { return transport.ChannelTelegram }

func (a *Adapter) registerHandlers() {
	a.bot.Handle(tele.OnText, func(c tele.Context) error {
		m := c.Message()
		if m == nil || m.Chat == nil {
			return nil
		}
		if len(a.allowed) > 0 && !a.allowed[m.Chat.ID] {
			a.log.Debug("message from unlisted chat ignored", logx.Int64("chat_id", m.Chat.ID))
			return nil
		}
		msg := transport.Message{
			ID:     m.ID,
			Target: transport.TelegramTarget(m.Chat.ID, m.ThreadID),
			Text:   normalizeText(m.Text, a.bot.Me),
		}
		if m.Sender != nil {
			msg.FromID = m.Sender.ID
			msg.FromUsername = m.Sender.Username
		}
		a.forward(msg)
		return nil
	})
}

func (a *Adapter) forward(msg transport.Message) {
	out, _ := a.out.Load().(chan<- transport.Message)
	if out == nil {
		return
	}
	select {
	case out <- msg:
	default:
		atomic.AddUint64(&a.droppedUpdates, 1)
	}
}

func (a *Adapter) Start(ctx context.Context, out chan<- transport.Message) error {
	a.runMu.Lock()
	if a.running {
		a.runMu.Unlock()
		return nil
	}
	a.running = true
	a.out.Store(out)
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log))
	sup := a.sup
	a.runMu.Unlock()

	sup.Go0("updates.drop_report", func(c context.Context) {
		t := time.NewTicker(5 * time.Second)
		defer t.Stop()
		for {
			select {
			case <-c.Done():
				a.reportDrops(cap(out))
				return
			case <-t.C:
				a.reportDrops(cap(out))
			}
		}
	})
	sup.Go0("telebot.stop_on_cancel", func(c context.Context) {
		<-c.Done()
		a.bot.Stop()
	})
	// telebot's Start can return unexpectedly; keep it alive.
	sup.GoRestart("telebot.poll", func(context.Context) error {
		a.log.Info("polling started")
		a.bot.Start()
		a.log.Info("polling stopped")
		return nil
	}, supervisor.WithRestartBackoff(500*time.Millisecond, 10*time.Second), supervisor.WithStopOnCleanExit(false))
	return nil
}

func (a *Adapter) reportDrops(capacity int) {
	if n := atomic.SwapUint64(&a.droppedUpdates, 0); n > 0 {
		a.log.Warn("incoming messages dropped (channel full)", logx.Int64("count", int64(n)), logx.Int("chan_cap", capacity))
	}
}

func (a *Adapter) Stop(ctx context.Context) error {
	a.runMu.Lock()
	sup := a.sup
	a.sup = nil
	wasRunning := a.running
	a.running = false
	var nilOut chan<- transport.Message
	a.out.Store(nilOut)
	a.runMu.Unlock()
	if !wasRunning || sup == nil {
		return nil
	}
	sup.Cancel()
	go a.bot.Stop()

	// getUpdates may still be waiting; do not hold shutdown hostage.
	wctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := sup.Wait(wctx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		a.log.Warn("telegram stop error", logx.Err(err))
	}
	return nil
}

// Send delivers text to a Telegram target, splitting long text and retrying
// transient failures with exponential backoff.
func (a *Adapter) Send(ctx context.Context, to transport.Target, text string) error {
	chatID, err := strconv.ParseInt(to.ID, 10, 64)
	if err != nil {
		return fmt.Errorf("telegram: bad chat id %q: %w", to.ID, err)
	}
	chat := &tele.Chat{ID: chatID}
	for _, chunk := range splitText(text, textLimit) {
		opt := &tele.SendOptions{ThreadID: to.ThreadID, DisableWebPagePreview: true}
		op := func() error {
			_, err := a.bot.Send(chat, chunk, opt)
			return classify(err)
		}
		bo := backoff.NewExponentialBackOff()
		bo.InitialInterval = 500 * time.Millisecond
		bo.MaxInterval = 10 * time.Second
		notify := func(err error, d time.Duration) {
			a.log.Warn("telegram send retry", logx.Int64("chat_id", chatID), logx.Duration("backoff", d), logx.Err(err))
		}
		if err := backoff.RetryNotify(op, backoff.WithContext(backoff.WithMaxRetries(bo, a.cfg.MaxRetries), ctx), notify); err != nil {
			return err
		}
	}
	return nil
}

// classify marks client errors as permanent. Flood control (429) and network
// failures stay retryable.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var flood tele.FloodError
	if errors.As(err, &flood) {
		if flood.RetryAfter > 0 {
			time.Sleep(time.Duration(flood.RetryAfter) * time.Second)
		}
		return err
	}
	var terr *tele.Error
	if errors.As(err, &terr) && terr.Code >= 400 && terr.Code < 500 && terr.Code != 429 {
		return backoff.Permanent(err)
	}
	return err
}

const textLimit = 4000

// normalizeText turns "/quote@stock_bot get x" into "quote get x". Text
// addressed to another bot is left unchanged.
func normalizeText(text string, me *tele.User) string {
	s := strings.TrimSpace(text)
	if !strings.HasPrefix(s, "/") {
		return s
	}
	head, rest, _ := strings.Cut(s[1:], " ")
	if name, bot, ok := strings.Cut(head, "@"); ok {
		if me != nil && me.Username != "" && !strings.EqualFold(bot, me.Username) {
			return s
		}
		head = name
	}
	return strings.TrimSpace(head + " " + rest)
}

// splitText cuts s into chunks of at most limit runes, preferring newlines.
func splitText(s string, limit int) []string {
	rs := []rune(s)
	if len(rs) <= limit {
		return []string{s}
	}
	var out []string
	start := 0
	for start < len(rs) {
		end := min(start+limit, len(rs))
		if end < len(rs) {
			for i := end - 1; i > start+limit/3; i-- {
				if rs[i] == '\n' {
					end = i + 1
					break
				}
			}
		}
		out = append(out, strings.TrimRight(string(rs[start:end]), "\n"))
		start = end
		for start < len(rs) && rs[start] == '\n' {
			start++
		}
	}
	return out
}
