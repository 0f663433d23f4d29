package plugin

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockbot/internal/command"
	"stockbot/internal/eventbus"
	logx "stockbot/pkg/logx"
)

type fakePlugin struct {
	name string
	err  error
}

func (f fakePlugin) Name() string { return f.name }

func (f fakePlugin) Register(root *command.Node) error {
	if f.err != nil {
		return f.err
	}
	b, err := Branch(root, "quote", "q", "")
	if err != nil {
		return err
	}
	noop := func(context.Context, *command.Request) (command.Result, error) { return nil, nil }
	if err := b.Register(command.NewLeaf(f.name, "", command.Blocking{Handle: noop}, 0, "")); err != nil {
		return err
	}
	return root.Register(command.NewLeaf(f.name+"-top", "", command.Blocking{Handle: noop}, 0, ""))
}

func TestManagerRegistersInOrder(t *testing.T) {
	bus := eventbus.New()
	defer bus.Close()
	events, cancel := bus.Subscribe(4)
	defer cancel()

	m := NewManager(logx.Nop(), bus)
	require.NoError(t, m.Add(fakePlugin{name: "a"}, fakePlugin{name: "b"}))
	assert.Error(t, m.Add(fakePlugin{name: "A"}))

	root := command.NewRoot()
	require.NoError(t, m.Register(root))
	assert.Equal(t, []string{"a", "b"}, m.Names())
	assert.Equal(t, []string{"a-top", "quote"}, m.Contributed("a"))
	assert.Equal(t, []string{"b-top"}, m.Contributed("b"))

	q := root.Child("q")
	require.NotNil(t, q)
	assert.NotNil(t, q.Child("a"))
	assert.NotNil(t, q.Child("b"))

	seen := map[string]bool{}
	for len(seen) < 2 {
		select {
		case ev := <-events:
			assert.Equal(t, EventRegistered, ev.Type)
			seen[ev.Attrs["plugin"]] = true
		case <-time.After(2 * time.Second):
			t.Fatalf("registration events missing, got %v", seen)
		}
	}
	assert.True(t, seen["a"] && seen["b"])
}

func TestManagerStopsOnError(t *testing.T) {
	m := NewManager(logx.Nop(), nil)
	boom := errors.New("boom")
	require.NoError(t, m.Add(fakePlugin{name: "bad", err: boom}))
	err := m.Register(command.NewRoot())
	assert.ErrorIs(t, err, boom)
}

func TestBranchRejectsLeaf(t *testing.T) {
	root := command.NewRoot()
	noop := func(context.Context, *command.Request) (command.Result, error) { return nil, nil }
	require.NoError(t, root.Register(command.NewLeaf("quote", "", command.Blocking{Handle: noop}, 0, "")))
	_, err := Branch(root, "quote", "q", "")
	assert.Error(t, err)
}
