// Package scheduler replays a session's scheduled commands, gated by an
// enable flag, a minimum interval and an active window.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"stockbot/internal/command"
	"stockbot/internal/provider"
	"stockbot/internal/session"
	"stockbot/internal/storage"
	"stockbot/internal/transport"
	logx "stockbot/pkg/logx"
)

// Executor runs one token sequence. *command.Dispatcher satisfies it.
type Executor interface {
	Execute(ctx context.Context, tokens []string, ec *command.ExecContext) (command.Result, error)
}

type Scheduler struct {
	sess      *session.Session
	exec      Executor
	sink      transport.Sink
	window    Window
	providers provider.Locator
	log       logx.Logger
}

type Option func(*Scheduler)

func WithWindow(w Window) Option              { return func(s *Scheduler) { s.window = w } }
func WithProviders(p provider.Locator) Option { return func(s *Scheduler) { s.providers = p } }
func WithLogger(l logx.Logger) Option         { return func(s *Scheduler) { s.log = l } }

func New(sess *session.Session, exec Executor, sink transport.Sink, opts ...Option) *Scheduler {
	s := &Scheduler{sess: sess, exec: exec, sink: sink, window: DefaultWindow()}
	for _, o := range opts {
		if o != nil {
			o(s)
		}
	}
	if s.log.IsZero() {
		s.log = logx.Nop()
	}
	s.log = s.log.With(logx.String("comp", "scheduler"), logx.String("session", sess.Key()))
	return s
}

func (s *Scheduler) Session() *session.Session { return s.sess }
func (s *Scheduler) Window() Window            { return s.window }

// Due applies the gating rules in order: enabled, interval, window.
func (s *Scheduler) Due(now time.Time) bool {
	st := s.sess.Snapshot()
	if !st.Enabled {
		return false
	}
	if !st.LastFiredAt.IsZero() && now.Sub(st.LastFiredAt) < st.Interval {
		return false
	}
	return s.window.Contains(now)
}

// OnTick fires every scheduled entry when Due(now) holds and reports whether
// it fired. Entry failures are reported to the session and never stop the
// remaining entries; the fire time is recorded once at the end.
func (s *Scheduler) OnTick(ctx context.Context, now time.Time) bool {
	if !s.Due(now) {
		return false
	}

	entries, err := s.sess.Commands().List(ctx)
	if err != nil {
		s.log.Error("list scheduled commands failed", logx.Err(err))
		s.send(ctx, "Failed: "+err.Error())
	}
	for _, e := range entries {
		s.fire(ctx, e)
	}
	s.sess.MarkFired(now)
	s.log.Debug("scheduler fired", logx.Int("entries", len(entries)), logx.Time("at", now))
	return true
}

func (s *Scheduler) fire(ctx context.Context, e storage.Entry) {
	defer func() {
		if rec := recover(); rec != nil {
			s.log.Error("scheduled command panicked", logx.String("cmd", e.Key()), logx.Any("panic", rec))
			s.send(ctx, fmt.Sprintf("Failed: %s: %v", e.Key(), rec))
		}
	}()

	ec := &command.ExecContext{
		Providers: s.providers,
		Session:   s.sess,
		Log:       s.log,
		Callback: func(n command.Notification) {
			s.send(context.WithoutCancel(ctx), n.Text)
		},
	}
	res, err := s.exec.Execute(ctx, e.Tokens(), ec)

	var ace *command.ArgumentCountError
	switch {
	case errors.Is(err, command.ErrUnknownCommand):
		s.log.Warn("scheduled command not understood", logx.String("cmd", e.Key()))
		s.send(ctx, "Scheduled command not understood: "+e.Key())
	case errors.As(err, &ace):
		s.log.Warn("scheduled command has too few arguments", logx.String("cmd", e.Key()))
		s.send(ctx, "Usage: "+ace.Usage())
	case err != nil:
		s.log.Warn("scheduled command failed", logx.String("cmd", e.Key()), logx.Err(err))
		s.send(ctx, "Failed: "+err.Error())
	}
	for _, line := range res {
		s.send(ctx, line)
	}
}

func (s *Scheduler) send(ctx context.Context, text string) {
	if s.sink == nil || text == "" {
		return
	}
	if err := s.sink.Send(ctx, s.sess.Target(), text); err != nil {
		s.log.Warn("send failed", logx.Err(err))
	}
}
