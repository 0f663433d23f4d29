package command

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"stockbot/internal/provider"
	"stockbot/internal/task"
	logx "stockbot/pkg/logx"
)

// Request is what a bound operation sees.
type Request struct {
	// Path holds canonical names from the root to the leaf.
	Path []string
	Args []string

	Exec       *ExecContext
	Dispatcher *Dispatcher
	ID         string
	Log        logx.Logger
}

// Arg returns the i-th argument or "".
func (r *Request) Arg(i int) string {
	if i < 0 || i >= len(r.Args) {
		return ""
	}
	return r.Args[i]
}

// Rest joins arguments from i on with single spaces.
func (r *Request) Rest(i int) string {
	if i >= len(r.Args) {
		return ""
	}
	return strings.Join(r.Args[i:], " ")
}

// HandlerFunc is a bound operation.
type HandlerFunc func(ctx context.Context, req *Request) (Result, error)

// Strategy decides how a leaf runs.
type Strategy interface {
	Invoke(ctx context.Context, req *Request) (Result, error)
}

// Blocking runs Handle synchronously. Errors and panics become result lines.
type Blocking struct {
	Handle HandlerFunc
}

func (b Blocking) Invoke(ctx context.Context, req *Request) (Result, error) {
	h := req.Dispatcher.wrap(b.Handle)
	res, err := h(ctx, req)
	if err != nil {
		req.Log.Warn("command failed", logx.String("cmd", strings.Join(req.Path, " ")), logx.Err(err))
		return Lines(renderError(err)), nil
	}
	return res, nil
}

// NonBlocking runs Handle on the task runner and returns at once. The
// callback gets TaskStarted, then exactly one of TaskCompleted or TaskFailed.
type NonBlocking struct {
	// Name prefixes the task key.
	Name   string
	Handle HandlerFunc
}

func (nb NonBlocking) Invoke(ctx context.Context, req *Request) (Result, error) {
	key := TaskKey(nb.Name, req.Args)
	h := req.Dispatcher.wrap(nb.Handle)
	ec := req.Exec

	var id string
	ready := make(chan struct{})
	info, err := req.Dispatcher.runner.Start(ctx, key, func(tctx context.Context) error {
		<-ready
		ec.notify(Notification{Kind: TaskStarted, TaskID: id, Key: key, Text: "Task started"})

		res, err := h(asTask(tctx), req)
		if err != nil {
			ec.notify(Notification{Kind: TaskFailed, TaskID: id, Key: key, Text: renderError(err)})
			return err
		}
		text := res.String()
		if text == "" {
			text = "Task done"
		}
		ec.notify(Notification{Kind: TaskCompleted, TaskID: id, Key: key, Text: text})
		return nil
	})
	if errors.Is(err, task.ErrAlreadyRunning) {
		return Lines(fmt.Sprintf("Task '%s' is already running", key)), nil
	}
	if err != nil {
		return Lines(renderError(err)), nil
	}
	id = info.ID
	close(ready)
	return nil, nil
}

// Proxy re-dispatches Target + Args + caller arguments from the root.
type Proxy struct {
	Target []string
	Args   []string
}

func (p Proxy) tokens() []string {
	out := make([]string, 0, len(p.Target)+len(p.Args))
	out = append(out, p.Target...)
	return append(out, p.Args...)
}

func (p Proxy) Invoke(ctx context.Context, req *Request) (Result, error) {
	tokens := append(p.tokens(), req.Args...)
	return req.Dispatcher.Execute(ctx, tokens, req.Exec)
}

var nonIdent = regexp.MustCompile(`[^a-z0-9_\-]+`)

// TaskKey builds the dedup key of a non-blocking invocation:
// name-arg1_arg2, lowercased, with anything outside [a-z0-9_-] replaced by "_".
func TaskKey(name string, args []string) string {
	parts := make([]string, 0, len(args))
	for _, a := range args {
		a = nonIdent.ReplaceAllString(strings.ToLower(strings.TrimSpace(a)), "_")
		if a != "" {
			parts = append(parts, a)
		}
	}
	name = nonIdent.ReplaceAllString(strings.ToLower(strings.TrimSpace(name)), "_")
	if len(parts) == 0 {
		return name
	}
	return name + "-" + strings.Join(parts, "_")
}

func renderError(err error) string {
	var nf *provider.NotFoundError
	if errors.As(err, &nf) {
		return nf.Error()
	}
	return "Failed: " + err.Error()
}
