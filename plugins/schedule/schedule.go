package schedule

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"stockbot/internal/command"
	"stockbot/internal/plugin"
	"stockbot/internal/scheduler"
	"stockbot/internal/session"
	"stockbot/internal/storage"
	logx "stockbot/pkg/logx"
)

var errNoSession = errors.New("this conversation has no scheduler")

// maxIntervalSeconds is the largest interval a time.Duration can hold.
const maxIntervalSeconds = math.MaxInt64 / int64(time.Second)

// Plugin adds "quote scheduler ..." which edits the calling session's
// scheduler state and scheduled command entries.
type Plugin struct {
	window scheduler.Window
	now    func() time.Time
}

type Option func(*Plugin)

// WithClock overrides time.Now for status output.
func WithClock(now func() time.Time) Option { return func(p *Plugin) { p.now = now } }

func New(w scheduler.Window, opts ...Option) *Plugin {
	p := &Plugin{window: w, now: time.Now}
	for _, o := range opts {
		o(p)
	}
	return p
}

func (p *Plugin) Name() string { return "schedule" }

func (p *Plugin) Register(root *command.Node) error {
	q, err := plugin.Branch(root, "quote", "q", "")
	if err != nil {
		return err
	}

	interval := command.NewBranch("interval", "", "")
	if err := interval.Register(
		command.NewLeaf("get", "", command.Blocking{Handle: p.intervalGet}, 0, ""),
		command.NewLeaf("set", "", command.Blocking{Handle: p.intervalSet}, 1, "<seconds>"),
	); err != nil {
		return err
	}

	cmds := command.NewBranch("command", "", "")
	if err := cmds.Register(
		command.NewLeaf("get", "list", command.Blocking{Handle: p.commandList}, 0, ""),
		command.NewLeaf("add", "", command.Blocking{Handle: p.commandAdd}, 1, "<command...>"),
		command.NewLeaf("remove", "", command.Blocking{Handle: p.commandRemove}, 1, "<command...>"),
	); err != nil {
		return err
	}

	sched := command.NewBranch("scheduler", "", "")
	if err := sched.Register(
		command.NewLeaf("enable", "", command.Blocking{Handle: p.toggle(true)}, 0, ""),
		command.NewLeaf("disable", "", command.Blocking{Handle: p.toggle(false)}, 0, ""),
		command.NewLeaf("status", "", command.Blocking{Handle: p.status}, 0, ""),
		interval,
		cmds,
	); err != nil {
		return err
	}
	return q.Register(sched)
}

func sessionOf(req *command.Request) (*session.Session, error) {
	if req.Exec == nil || req.Exec.Session == nil {
		return nil, errNoSession
	}
	return req.Exec.Session, nil
}

func (p *Plugin) toggle(on bool) command.HandlerFunc {
	return func(_ context.Context, req *command.Request) (command.Result, error) {
		s, err := sessionOf(req)
		if err != nil {
			return nil, err
		}
		s.SetEnabled(on)
		state := "disabled"
		if on {
			state = "enabled"
		}
		req.Log.Info("scheduler toggled", logx.String("session", s.Key()), logx.Bool("enabled", on))
		return command.Lines("Scheduler: " + state), nil
	}
}

func (p *Plugin) status(_ context.Context, req *command.Request) (command.Result, error) {
	s, err := sessionOf(req)
	if err != nil {
		return nil, err
	}
	now := p.now()
	return command.Result(scheduler.StatusOf(s.Snapshot(), p.window, now).Lines(now)), nil
}

func seconds(d time.Duration) int64 { return int64(d / time.Second) }

func (p *Plugin) intervalGet(_ context.Context, req *command.Request) (command.Result, error) {
	s, err := sessionOf(req)
	if err != nil {
		return nil, err
	}
	return command.Lines(fmt.Sprintf("Interval: %d seconds", seconds(s.Interval()))), nil
}

func (p *Plugin) intervalSet(_ context.Context, req *command.Request) (command.Result, error) {
	s, err := sessionOf(req)
	if err != nil {
		return nil, err
	}
	n, err := strconv.ParseInt(strings.TrimSpace(req.Arg(0)), 10, 64)
	if err != nil || n > maxIntervalSeconds {
		return command.Lines("Can't set interval from garbage input, must be of an int"), nil
	}
	if err := s.SetInterval(time.Duration(n) * time.Second); err != nil {
		if errors.Is(err, session.ErrInvalidInterval) {
			return command.Lines("Interval must be at least 1 second"), nil
		}
		return nil, err
	}
	return command.Lines(fmt.Sprintf("New interval: %d seconds", seconds(s.Interval()))), nil
}

func (p *Plugin) commandList(ctx context.Context, req *command.Request) (command.Result, error) {
	s, err := sessionOf(req)
	if err != nil {
		return nil, err
	}
	entries, err := s.Commands().List(ctx)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return command.Lines("No commands added"), nil
	}
	out := make(command.Result, 0, len(entries))
	for _, e := range entries {
		out = append(out, "Command: "+e.String())
	}
	return out, nil
}

// commandAdd stores an entry after checking it resolves to a leaf outside the
// scheduler branch. Argument counts are checked when the entry fires.
func (p *Plugin) commandAdd(ctx context.Context, req *command.Request) (command.Result, error) {
	s, err := sessionOf(req)
	if err != nil {
		return nil, err
	}
	entry := storage.Entry(req.Args)
	res, err := req.Dispatcher.Resolve(entry.Tokens())
	if err != nil {
		return command.Lines("Command not understood: " + entry.String()), nil
	}
	if targetsScheduler(res.Path) {
		return command.Lines("Can't schedule scheduler commands"), nil
	}

	if err := s.Commands().Add(ctx, entry); err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			return command.Lines("Command already in list"), nil
		}
		return nil, err
	}
	req.Log.Info("scheduled command added", logx.String("session", s.Key()), logx.String("entry", entry.String()))
	return command.Lines("Added command: " + entry.String()), nil
}

func (p *Plugin) commandRemove(ctx context.Context, req *command.Request) (command.Result, error) {
	s, err := sessionOf(req)
	if err != nil {
		return nil, err
	}
	entry := storage.Entry(req.Args)
	ok, err := s.Commands().Remove(ctx, entry)
	if err != nil {
		return nil, err
	}
	if !ok {
		return command.Lines("Command not in list"), nil
	}
	return command.Lines("Removed command: " + entry.String()), nil
}

func targetsScheduler(path []string) bool {
	return len(path) >= 2 && path[0] == "quote" && path[1] == "scheduler"
}
