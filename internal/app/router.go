package app

import (
	"context"
	"errors"
	"fmt"

	"stockbot/internal/command"
	"stockbot/internal/provider"
	"stockbot/internal/session"
	"stockbot/internal/transport"
	logx "stockbot/pkg/logx"
)

const notUnderstood = "Does not compute, halp?"

// Router turns one inbound chat line into the lines to send back. Task
// notifications bypass the return value and go straight to the sink.
type Router struct {
	disp      *command.Dispatcher
	sessions  *session.Manager
	providers provider.Locator
	sink      transport.Sink
	log       logx.Logger
}

func NewRouter(d *command.Dispatcher, sessions *session.Manager, providers provider.Locator, sink transport.Sink, log logx.Logger) *Router {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Router{
		disp:      d,
		sessions:  sessions,
		providers: providers,
		sink:      sink,
		log:       log.With(logx.String("comp", "router")),
	}
}

func (r *Router) Route(ctx context.Context, msg transport.Message) []string {
	tokens := command.Tokenize(msg.Text)
	if len(tokens) == 0 {
		return nil
	}
	sess := r.sessions.GetOrCreate(msg.Target)
	log := r.log.With(logx.String("session", sess.Key()))
	to := msg.Target

	ec := &command.ExecContext{
		Providers: r.providers,
		Session:   sess,
		Log:       log,
		Callback: func(n command.Notification) {
			if n.Text == "" || r.sink == nil {
				return
			}
			// tasks outlive the request that started them
			if err := r.sink.Send(context.WithoutCancel(ctx), to, n.Text); err != nil {
				log.Warn("notification send failed", logx.String("task", n.Key), logx.Err(err))
			}
		},
	}
	res, err := r.disp.Execute(ctx, tokens, ec)

	var ace *command.ArgumentCountError
	switch {
	case errors.Is(err, command.ErrUnknownCommand):
		log.Debug("command not understood", logx.Strings("tokens", tokens))
		out := []string{notUnderstood}
		if s := r.disp.Suggest(tokens); s != "" {
			out = append(out, fmt.Sprintf("Did you mean '%s'?", s))
		}
		return out
	case errors.As(err, &ace):
		return []string{"Usage: " + ace.Usage()}
	case err != nil:
		log.Warn("command failed", logx.Err(err))
		return []string{"Failed: " + err.Error()}
	}
	return res
}

// helpPlugin contributes the root "help" leaf.
type helpPlugin struct{}

func (helpPlugin) Name() string { return "help" }

func (helpPlugin) Register(root *command.Node) error {
	return root.Register(command.NewLeaf("help", "h", command.Blocking{
		Handle: func(_ context.Context, req *command.Request) (command.Result, error) {
			return command.Lines(req.Dispatcher.Help()...), nil
		},
	}, 0, ""))
}
