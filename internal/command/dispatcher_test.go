package command

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockbot/internal/provider"
)

type recorder struct {
	mu    sync.Mutex
	calls [][]string
}

func (r *recorder) handler(tag string) HandlerFunc {
	return func(_ context.Context, req *Request) (Result, error) {
		r.mu.Lock()
		r.calls = append(r.calls, append([]string{tag}, req.Args...))
		r.mu.Unlock()
		return Lines(tag + ":" + strings.Join(req.Args, ",")), nil
	}
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

// buildTree mirrors the shape of the real quote tree.
func buildTree(t *testing.T, rec *recorder) *Dispatcher {
	t.Helper()
	root := NewRoot()
	quote := NewBranch("quote", "q", "")
	hint := NewBranch("hint", "", "")
	require.NoError(t, hint.Register(
		NewLeaf("list", "", Blocking{Handle: rec.handler("hint-list")}, 1, "<provider>"),
	))
	require.NoError(t, quote.Register(
		NewLeaf("get", "", Blocking{Handle: rec.handler("get")}, 3, "<form> <provider> <ticker>"),
		NewLeaf("search", "s", Blocking{Handle: rec.handler("search")}, 2, "<provider> <query>"),
		hint,
	))
	require.NoError(t, root.Register(
		quote,
		NewLeaf("qs", "", Proxy{Target: []string{"quote", "get"}, Args: []string{"short"}}, 2, "<provider> <ticker>"),
		NewLeaf("qy", "", Proxy{Target: []string{"qs"}, Args: []string{"yahoo"}}, 1, "<ticker>"),
		NewLeaf("help", "", Blocking{Handle: func(_ context.Context, req *Request) (Result, error) {
			return Result(req.Dispatcher.Help()), nil
		}}, 0, ""),
	))
	d, err := NewDispatcher(root)
	require.NoError(t, err)
	return d
}

func TestAliasAndNameResolveToSameLeaf(t *testing.T) {
	d := buildTree(t, &recorder{})
	inputs := [][]string{
		{"quote", "search"},
		{"q", "search"},
		{"QUOTE", "S"},
		{"Q", "Search"},
	}
	var want *Node
	for _, in := range inputs {
		res, err := d.Resolve(append(in, "yahoo", "volvo"))
		require.NoError(t, err, "%v", in)
		if want == nil {
			want = res.Leaf
		}
		assert.Same(t, want, res.Leaf, "%v", in)
		assert.Equal(t, []string{"quote", "search"}, res.Path)
		assert.Equal(t, []string{"yahoo", "volvo"}, res.Args)
	}
}

func TestTooFewArgumentsNeverInvokes(t *testing.T) {
	rec := &recorder{}
	d := buildTree(t, rec)

	for _, in := range [][]string{
		{"quote", "get"},
		{"quote", "get", "short"},
		{"quote", "get", "short", "yahoo"},
		{"q", "search", "yahoo"},
		{"quote", "hint", "list"},
		{"qs", "yahoo"},
		{"qy"},
	} {
		_, err := d.Execute(context.Background(), in, nil)
		var ace *ArgumentCountError
		require.True(t, errors.As(err, &ace), "%v: %v", in, err)
	}
	assert.Zero(t, rec.count())

	_, err := d.Execute(context.Background(), []string{"quote", "get", "short"}, nil)
	var ace *ArgumentCountError
	require.ErrorAs(t, err, &ace)
	assert.Equal(t, 3, ace.Want)
	assert.Equal(t, 1, ace.Got)
	assert.Equal(t, "quote get <form> <provider> <ticker>", ace.Usage())
}

func TestProxyIsTransparent(t *testing.T) {
	rec := &recorder{}
	d := buildTree(t, rec)
	ctx := context.Background()

	direct, err := d.Execute(ctx, []string{"quote", "get", "short", "yahoo", "aapl"}, nil)
	require.NoError(t, err)
	viaProxy, err := d.Execute(ctx, []string{"qs", "yahoo", "aapl"}, nil)
	require.NoError(t, err)
	viaChain, err := d.Execute(ctx, []string{"qy", "aapl"}, nil)
	require.NoError(t, err)

	assert.Equal(t, direct, viaProxy)
	assert.Equal(t, direct, viaChain)
	assert.Equal(t, Lines("get:short,yahoo,aapl"), direct)
}

func TestUnknownCommand(t *testing.T) {
	d := buildTree(t, &recorder{})
	for _, in := range [][]string{
		nil,
		{"hi", "stockbot"},
		{"quote"},
		{"quote", "nope", "x"},
		{"quote", "hint"},
	} {
		res, err := d.Execute(context.Background(), in, nil)
		assert.ErrorIs(t, err, ErrUnknownCommand, "%v", in)
		assert.True(t, res.Empty())
	}
}

func TestBlockingRendersFailures(t *testing.T) {
	root := NewRoot()
	require.NoError(t, root.Register(
		NewLeaf("missing", "", Blocking{Handle: func(context.Context, *Request) (Result, error) {
			return nil, &provider.NotFoundError{Name: "invalid-provider"}
		}}, 0, ""),
		NewLeaf("wrapped", "", Blocking{Handle: func(context.Context, *Request) (Result, error) {
			return nil, errors.Join(errors.New("lookup"), &provider.NotFoundError{Name: "x"})
		}}, 0, ""),
		NewLeaf("broken", "", Blocking{Handle: func(context.Context, *Request) (Result, error) {
			return nil, errors.New("connection refused")
		}}, 0, ""),
		NewLeaf("panics", "", Blocking{Handle: func(context.Context, *Request) (Result, error) {
			panic("boom")
		}}, 0, ""),
	))
	d, err := NewDispatcher(root)
	require.NoError(t, err)

	cases := map[string]string{
		"missing": "No such provider 'invalid-provider'",
		"wrapped": "No such provider 'x'",
		"broken":  "Failed: connection refused",
		"panics":  "Failed: panic: boom",
	}
	for cmd, want := range cases {
		res, err := d.Execute(context.Background(), []string{cmd}, nil)
		require.NoError(t, err, cmd)
		assert.Equal(t, Lines(want), res, cmd)
	}
}

func TestNonBlockingReturnsImmediately(t *testing.T) {
	release := make(chan struct{})
	var done atomic.Bool
	root := NewRoot()
	scrape := NewBranch("scrape", "", "")
	require.NoError(t, scrape.Register(NewLeaf("stocks", "", NonBlocking{
		Name: "scrape",
		Handle: func(_ context.Context, req *Request) (Result, error) {
			<-release
			done.Store(true)
			return Lines("Done scraping " + req.Rest(1)), nil
		},
	}, 2, "<currency> <segment>")))
	require.NoError(t, root.Register(scrape))
	d, err := NewDispatcher(root)
	require.NoError(t, err)

	var (
		mu    sync.Mutex
		notes []Notification
	)
	ec := &ExecContext{Callback: func(n Notification) {
		mu.Lock()
		notes = append(notes, n)
		mu.Unlock()
	}}

	res, err := d.Execute(context.Background(), []string{"scrape", "stocks", "SEK", "nordic", "large", "cap"}, ec)
	require.NoError(t, err)
	assert.True(t, res.Empty())
	assert.False(t, done.Load())
	assert.True(t, d.Runner().IsRunning("scrape-sek_nordic_large_cap"))

	dup, err := d.Execute(context.Background(), []string{"scrape", "stocks", "sek", "Nordic", "Large", "Cap"}, ec)
	require.NoError(t, err)
	assert.Equal(t, Lines("Task 'scrape-sek_nordic_large_cap' is already running"), dup)

	close(release)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, d.Runner().Wait(ctx))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, notes, 2)
	assert.Equal(t, TaskStarted, notes[0].Kind)
	assert.Equal(t, "Task started", notes[0].Text)
	assert.Equal(t, TaskCompleted, notes[1].Kind)
	assert.Equal(t, "Done scraping nordic large cap", notes[1].Text)
	assert.Equal(t, notes[0].TaskID, notes[1].TaskID)
	assert.NotEmpty(t, notes[0].TaskID)
}

func TestNonBlockingFailureNotifiesOnce(t *testing.T) {
	root := NewRoot()
	require.NoError(t, root.Register(
		NewLeaf("fail", "", NonBlocking{Name: "fail", Handle: func(context.Context, *Request) (Result, error) {
			return nil, errors.New("upstream down")
		}}, 0, ""),
		NewLeaf("panic", "", NonBlocking{Name: "panic", Handle: func(context.Context, *Request) (Result, error) {
			panic("oops")
		}}, 0, ""),
	))
	d, err := NewDispatcher(root)
	require.NoError(t, err)

	for cmd, want := range map[string]string{"fail": "Failed: upstream down", "panic": "Failed: panic: oops"} {
		var (
			mu    sync.Mutex
			notes []Notification
		)
		ec := &ExecContext{Callback: func(n Notification) {
			mu.Lock()
			notes = append(notes, n)
			mu.Unlock()
		}}
		_, err := d.Execute(context.Background(), []string{cmd}, ec)
		require.NoError(t, err)

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		require.NoError(t, d.Runner().Wait(ctx))
		cancel()

		mu.Lock()
		require.Len(t, notes, 2, cmd)
		assert.Equal(t, TaskStarted, notes[0].Kind)
		assert.Equal(t, TaskFailed, notes[1].Kind)
		assert.Equal(t, want, notes[1].Text)
		mu.Unlock()
	}
}

func TestTimeoutBoundsBlockingButNotTasks(t *testing.T) {
	slow := func(ctx context.Context, _ *Request) (Result, error) {
		select {
		case <-time.After(300 * time.Millisecond):
			return Lines("slow done"), nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	root := NewRoot()
	require.NoError(t, root.Register(
		NewLeaf("sync", "", Blocking{Handle: slow}, 0, ""),
		NewLeaf("bg", "", NonBlocking{Name: "bg", Handle: slow}, 0, ""),
	))
	d, err := NewDispatcher(root, WithMiddleware(RequestLog(), Timeout(50*time.Millisecond)))
	require.NoError(t, err)

	res, err := d.Execute(context.Background(), []string{"sync"}, nil)
	require.NoError(t, err)
	assert.Equal(t, Lines("Failed: context deadline exceeded"), res)

	var (
		mu    sync.Mutex
		notes []Notification
	)
	ec := &ExecContext{Callback: func(n Notification) {
		mu.Lock()
		notes = append(notes, n)
		mu.Unlock()
	}}
	_, err = d.Execute(context.Background(), []string{"bg"}, ec)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, d.Runner().Wait(ctx))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, notes, 2)
	assert.Equal(t, TaskCompleted, notes[1].Kind)
	assert.Equal(t, "slow done", notes[1].Text)
}

func TestDispatcherValidation(t *testing.T) {
	t.Run("empty branch", func(t *testing.T) {
		root := NewRoot()
		require.NoError(t, root.Register(NewBranch("quote", "", "")))
		_, err := NewDispatcher(root)
		var ce *ConfigurationError
		require.ErrorAs(t, err, &ce)
		assert.Equal(t, "quote", ce.Path)
	})
	t.Run("leaf without strategy", func(t *testing.T) {
		root := NewRoot()
		require.NoError(t, root.Register(NewLeaf("x", "", nil, 0, "")))
		_, err := NewDispatcher(root)
		var ce *ConfigurationError
		require.ErrorAs(t, err, &ce)
	})
	t.Run("unresolved proxy", func(t *testing.T) {
		root := NewRoot()
		require.NoError(t, root.Register(NewLeaf("p", "", Proxy{Target: []string{"nope"}}, 0, "")))
		_, err := NewDispatcher(root)
		var ce *ConfigurationError
		require.ErrorAs(t, err, &ce)
	})
	t.Run("proxy to branch", func(t *testing.T) {
		root := NewRoot()
		b := NewBranch("b", "", "")
		require.NoError(t, b.Register(leaf("x", "")))
		require.NoError(t, root.Register(b, NewLeaf("p", "", Proxy{Target: []string{"b"}}, 0, "")))
		_, err := NewDispatcher(root)
		var ce *ConfigurationError
		require.ErrorAs(t, err, &ce)
	})
	t.Run("self cycle", func(t *testing.T) {
		root := NewRoot()
		require.NoError(t, root.Register(NewLeaf("p", "", Proxy{Target: []string{"p"}}, 0, "")))
		_, err := NewDispatcher(root)
		var ce *ConfigurationError
		require.ErrorAs(t, err, &ce)
		assert.Contains(t, ce.Reason, "cycle")
	})
	t.Run("transitive cycle", func(t *testing.T) {
		root := NewRoot()
		require.NoError(t, root.Register(
			NewLeaf("a", "", Proxy{Target: []string{"b"}}, 0, ""),
			NewLeaf("b", "", Proxy{Target: []string{"c"}, Args: []string{"x"}}, 0, ""),
			NewLeaf("c", "", Proxy{Target: []string{"a"}}, 0, ""),
		))
		_, err := NewDispatcher(root)
		var ce *ConfigurationError
		require.ErrorAs(t, err, &ce)
	})
	t.Run("proxy through alias", func(t *testing.T) {
		root := NewRoot()
		q := NewBranch("quote", "q", "")
		require.NoError(t, q.Register(leaf("get", "")))
		require.NoError(t, root.Register(q, NewLeaf("p", "", Proxy{Target: []string{"q", "get"}}, 0, "")))
		_, err := NewDispatcher(root)
		require.NoError(t, err)
	})
}

func TestSuggest(t *testing.T) {
	d := buildTree(t, &recorder{})
	assert.Equal(t, "quote", d.Suggest([]string{"qoute", "get"}))
	assert.Equal(t, "quote search", d.Suggest([]string{"q", "serch"}))
	assert.Equal(t, "", d.Suggest([]string{"zzzzzzzz"}))
	assert.Equal(t, "", d.Suggest([]string{"quote", "get"}))
}

func TestRequestIDAssigned(t *testing.T) {
	var got string
	root := NewRoot()
	require.NoError(t, root.Register(NewLeaf("id", "", Blocking{Handle: func(_ context.Context, req *Request) (Result, error) {
		got = req.ID
		return nil, nil
	}}, 0, "")))
	d, err := NewDispatcher(root)
	require.NoError(t, err)

	_, err = d.Execute(context.Background(), []string{"id"}, nil)
	require.NoError(t, err)
	assert.Len(t, got, 26)
}
