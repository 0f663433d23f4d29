package command

import (
	"strings"

	"stockbot/internal/provider"
	"stockbot/internal/session"
	logx "stockbot/pkg/logx"
)

// Result is the ordered output of a command, one entry per line.
// An empty Result means "nothing to say".
type Result []string

func Lines(lines ...string) Result { return Result(lines) }

func (r Result) Empty() bool { return len(r) == 0 }

func (r Result) String() string { return strings.Join(r, "\n") }

type NotificationKind int

const (
	TaskStarted NotificationKind = iota
	TaskCompleted
	TaskFailed
)

func (k NotificationKind) String() string {
	switch k {
	case TaskStarted:
		return "started"
	case TaskCompleted:
		return "completed"
	case TaskFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Notification is delivered to a Callback by non-blocking commands.
type Notification struct {
	Kind   NotificationKind
	TaskID string
	Key    string
	Text   string
}

// Callback receives task notifications. It is called from the task's own
// goroutine; implementations guard any shared state themselves.
type Callback func(Notification)

// ExecContext is the per-invocation bundle handed to a strategy.
type ExecContext struct {
	Providers provider.Locator
	Session   *session.Session
	Callback  Callback
	Log       logx.Logger
	RequestID string
}

func (ec *ExecContext) notify(n Notification) {
	if ec != nil && ec.Callback != nil {
		ec.Callback(n)
	}
}
