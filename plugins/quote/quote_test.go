package quote

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockbot/internal/command"
	"stockbot/internal/provider"
	"stockbot/internal/storage"
	logx "stockbot/pkg/logx"
)

type fakeService struct {
	quotes  map[string]provider.TextQuote
	matches provider.Matches
	asked   []string
}

func (f *fakeService) Quote(_ context.Context, ticker string) (provider.Quote, error) {
	f.asked = append(f.asked, ticker)
	if ticker == "boom" {
		return nil, errors.New("upstream down")
	}
	return f.quotes[strings.ToLower(ticker)], nil
}

func (f *fakeService) Search(_ context.Context, query string) (provider.SearchResult, error) {
	if strings.Contains(query, "nothing") {
		return provider.Matches(nil), nil
	}
	return f.matches, nil
}

func fullQuote(name string) provider.TextQuote {
	return provider.TextQuote{Items: []provider.Field{
		{Name: "Name", Value: name},
		{Name: "Last Price", Value: "10.5"},
		{Name: "Low Price", Value: "9"},
		{Name: "High Price", Value: "11"},
		{Name: "Percent Change 1 Day", Value: "-1.2"},
		{Name: "Market", Value: "XSTO"},
	}}
}

type harness struct {
	d     *command.Dispatcher
	svc   *fakeService
	ec    *command.ExecContext
	store storage.Store
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store, err := storage.Open(storage.Config{}, logx.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	svc := &fakeService{
		quotes: map[string]provider.TextQuote{
			"aapl": fullQuote("Apple"),
			"foo":  {Items: []provider.Field{{Name: "Name", Value: "Foo Company"}}, IsFresh: true},
		},
		matches: provider.Matches{{Ticker: "FOO", Market: "Foo Market", Name: "Foo Company"}},
	}
	reg := provider.NewRegistry()
	reg.RegisterService("fakeprovider", svc)
	reg.RegisterService("yahoo", svc)

	root := command.NewRoot()
	require.NoError(t, New(store.Hints(), "fakeprovider").Register(root))
	d, err := command.NewDispatcher(root)
	require.NoError(t, err)
	return &harness{d: d, svc: svc, ec: &command.ExecContext{Providers: reg}, store: store}
}

func (h *harness) run(t *testing.T, line string) command.Result {
	t.Helper()
	res, err := h.d.Execute(context.Background(), strings.Fields(line), h.ec)
	require.NoError(t, err)
	return res
}

func TestGetForms(t *testing.T) {
	h := newHarness(t)

	long := h.run(t, "quote get long fakeprovider aapl")
	assert.Equal(t, command.Lines(fullQuote("Apple").String()), long)

	short := h.run(t, "q get short fakeprovider aapl")
	assert.Equal(t, command.Lines("Name: Apple, Last Price: 10.5"), short)

	assert.Equal(t, short, h.run(t, "qs fakeprovider aapl"))
	assert.Equal(t, long, h.run(t, "ql fakeprovider aapl"))
	assert.Equal(t, short, h.run(t, "qy aapl"))
}

func TestGetUnknownProviderAndFailure(t *testing.T) {
	h := newHarness(t)
	assert.Equal(t, command.Lines("No such provider 'nope'"), h.run(t, "quote get short nope aapl"))
	assert.Equal(t, command.Lines("Failed: upstream down"), h.run(t, "quote get short fakeprovider boom"))

	_, err := h.d.Execute(context.Background(), []string{"quote", "get", "short"}, h.ec)
	var ace *command.ArgumentCountError
	require.ErrorAs(t, err, &ace)
	assert.Equal(t, "quote get <short|long> <provider> <ticker>", ace.Usage())
}

func TestGetFresh(t *testing.T) {
	h := newHarness(t)
	assert.Equal(t, command.Lines("Name: Foo Company"), h.run(t, "quote get_fresh fakeprovider foo"))
	assert.Empty(t, h.run(t, "quote get_fresh fakeprovider aapl"))
}

func TestLuckyFallsBackToSearch(t *testing.T) {
	h := newHarness(t)
	assert.Equal(t, command.Lines(fullQuote("Apple").String()), h.run(t, "quote gl fakeprovider aapl"))

	res := h.run(t, "quote gl fakeprovider foo company")
	assert.Equal(t, command.Lines("Name: Foo Company"), res)
	assert.Equal(t, "FOO", h.svc.asked[len(h.svc.asked)-1])

	assert.Equal(t, command.Lines("Nothing found for nothing here"), h.run(t, "quote gl fakeprovider nothing here"))
	assert.Equal(t, command.Lines("Name: Foo Company"), h.run(t, "qq foo company"))
}

func TestSearch(t *testing.T) {
	h := newHarness(t)
	assert.Equal(t,
		command.Lines("Ticker: FOO, Market: Foo Market, Name: Foo Company"),
		h.run(t, "quote search fakeprovider foo"))
	assert.Equal(t, command.Lines("Nothing found for nothing"), h.run(t, "quote search fakeprovider nothing"))
}

func TestHints(t *testing.T) {
	h := newHarness(t)

	assert.Equal(t, command.Lines("no hints found"), h.run(t, "quote hint list fakeprovider"))
	assert.Equal(t, command.Lines("Added hint"), h.run(t, "quote hint add fakeprovider AAPL apple inc"))
	assert.Equal(t,
		command.Lines("Provider: fakeprovider, Ticker: AAPL, Free-text: apple inc"),
		h.run(t, "quote hint list fakeprovider"))

	// the hint rewrites free text into the ticker
	assert.Equal(t, command.Lines("Name: Apple, Last Price: 10.5"), h.run(t, "qs fakeprovider Apple Inc"))
	assert.Equal(t, "AAPL", h.svc.asked[len(h.svc.asked)-1])

	assert.Equal(t, command.Lines("Removed hint"), h.run(t, "quote hint remove fakeprovider AAPL"))
	assert.Equal(t, command.Lines("No matching hint to remove"), h.run(t, "quote hint remove fakeprovider AAPL"))
}

func TestRootProxiesResolveThroughQuoteGet(t *testing.T) {
	root := command.NewRoot()
	require.NoError(t, New(nil, "avanza").Register(root))
	d, err := command.NewDispatcher(root)
	require.NoError(t, err)

	for _, name := range []string{"qs", "ql", "qy", "quick", "qq"} {
		res, err := d.Resolve([]string{name})
		require.NoError(t, err, name)
		assert.Len(t, res.Path, 1, name)
	}
}
