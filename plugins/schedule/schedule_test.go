package schedule

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockbot/internal/command"
	"stockbot/internal/scheduler"
	"stockbot/internal/session"
	"stockbot/internal/storage"
	"stockbot/internal/transport"
	logx "stockbot/pkg/logx"
)

type harness struct {
	d    *command.Dispatcher
	sess *session.Session
	ec   *command.ExecContext
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store, err := storage.Open(storage.Config{}, logx.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	root := command.NewRoot()
	quote := command.NewBranch("quote", "q", "")
	get := func(context.Context, *command.Request) (command.Result, error) { return command.Lines("quote"), nil }
	require.NoError(t, quote.Register(
		command.NewLeaf("get", "", command.Blocking{Handle: get}, 3, "<form> <provider> <ticker>"),
	))
	require.NoError(t, root.Register(quote))

	now := time.Date(2026, 10, 14, 10, 30, 0, 0, time.UTC) // a Wednesday
	w := scheduler.Window{
		Weekdays: []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday},
		Hours:    []int{9, 10, 11, 12, 13, 14, 15, 16, 17},
		Location: time.UTC,
	}
	require.NoError(t, New(w, WithClock(func() time.Time { return now })).Register(root))

	d, err := command.NewDispatcher(root)
	require.NoError(t, err)

	target := transport.Target{Channel: transport.ChannelConsole, ID: "test"}
	sess := session.New(target, store.Commands(target.Key()), session.Defaults{Interval: time.Hour})
	return &harness{d: d, sess: sess, ec: &command.ExecContext{Session: sess}}
}

func (h *harness) run(t *testing.T, line string) command.Result {
	t.Helper()
	res, err := h.d.Execute(context.Background(), strings.Fields(line), h.ec)
	require.NoError(t, err)
	return res
}

func TestToggle(t *testing.T) {
	h := newHarness(t)
	assert.Equal(t, command.Lines("Scheduler: enabled"), h.run(t, "quote scheduler enable"))
	assert.True(t, h.sess.Enabled())
	assert.Equal(t, command.Lines("Scheduler: disabled"), h.run(t, "q scheduler disable"))
	assert.False(t, h.sess.Enabled())
}

func TestInterval(t *testing.T) {
	h := newHarness(t)
	assert.Equal(t, command.Lines("Interval: 3600 seconds"), h.run(t, "quote scheduler interval get"))
	assert.Equal(t, command.Lines("New interval: 60 seconds"), h.run(t, "quote scheduler interval set 60"))
	assert.Equal(t, command.Lines("Interval: 60 seconds"), h.run(t, "quote scheduler interval get"))
	assert.Equal(t,
		command.Lines("Can't set interval from garbage input, must be of an int"),
		h.run(t, "quote scheduler interval set horseshit"))
	assert.Equal(t, command.Lines("Interval must be at least 1 second"), h.run(t, "quote scheduler interval set 0"))
	assert.Equal(t,
		command.Lines("Can't set interval from garbage input, must be of an int"),
		h.run(t, "quote scheduler interval set 20000000000"))
	assert.Equal(t, command.Lines("Interval: 60 seconds"), h.run(t, "quote scheduler interval get"))
	assert.Equal(t, time.Minute, h.sess.Interval())
}

func TestCommandEntries(t *testing.T) {
	h := newHarness(t)
	assert.Equal(t, command.Lines("No commands added"), h.run(t, "quote scheduler command get"))
	assert.Equal(t,
		command.Lines("Added command: quote get google foobar"),
		h.run(t, "quote scheduler command add quote get google foobar"))
	assert.Equal(t, command.Lines("Command already in list"), h.run(t, "quote scheduler command add Quote GET google foobar"))
	assert.Equal(t, command.Lines("Command: quote get google foobar"), h.run(t, "quote scheduler command list"))
	assert.Equal(t,
		command.Lines("Removed command: quote get google foobar"),
		h.run(t, "quote scheduler command remove quote get google foobar"))
	assert.Equal(t, command.Lines("No commands added"), h.run(t, "quote scheduler command get"))
	assert.Equal(t, command.Lines("Command not in list"), h.run(t, "quote scheduler command remove quote get google foobar"))
}

func TestCommandAddValidates(t *testing.T) {
	h := newHarness(t)
	assert.Equal(t, command.Lines("Command not understood: hi stockbot"), h.run(t, "quote scheduler command add hi stockbot"))
	assert.Equal(t, command.Lines("Can't schedule scheduler commands"), h.run(t, "quote scheduler command add quote scheduler enable"))

	entries, err := h.sess.Commands().List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestStatus(t *testing.T) {
	h := newHarness(t)
	res := h.run(t, "quote scheduler status")
	require.NotEmpty(t, res)
	assert.Equal(t, "Scheduler: disabled", res[0])
	assert.Contains(t, res, "Interval: 3600 seconds")
	assert.Contains(t, res, "Last fired: never")

	h.run(t, "quote scheduler enable")
	res = h.run(t, "quote scheduler status")
	assert.Equal(t, "Scheduler: enabled", res[0])
	assert.Equal(t, "Next fire: now", res[len(res)-1])
}

func TestNoSession(t *testing.T) {
	h := newHarness(t)
	res, err := h.d.Execute(context.Background(), strings.Fields("quote scheduler enable"), &command.ExecContext{})
	require.NoError(t, err)
	assert.Equal(t, command.Lines("Failed: this conversation has no scheduler"), res)
}
