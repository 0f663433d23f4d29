package quote

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"stockbot/internal/command"
	"stockbot/internal/plugin"
	"stockbot/internal/provider"
	"stockbot/internal/storage"
	logx "stockbot/pkg/logx"
)

// shortDrop lists the fields removed by the "short" form.
var shortDrop = []string{"Low Price", "High Price", "Percent Change 1 Day", "Market"}

type Plugin struct {
	hints           storage.HintStore
	defaultProvider string
}

// New builds the quote plugin. hints may be nil (no ticker rewriting, hint
// commands fail).
func New(hints storage.HintStore, defaultProvider string) *Plugin {
	if strings.TrimSpace(defaultProvider) == "" {
		defaultProvider = "avanza"
	}
	return &Plugin{hints: hints, defaultProvider: defaultProvider}
}

func (p *Plugin) Name() string { return "quote" }

func (p *Plugin) Register(root *command.Node) error {
	q, err := plugin.Branch(root, "quote", "q", "")
	if err != nil {
		return err
	}

	hint := command.NewBranch("hint", "", "")
	if err := hint.Register(
		command.NewLeaf("add", "", command.Blocking{Handle: p.addHint}, 3, "<provider> <dst-ticker> <free-text>"),
		command.NewLeaf("remove", "", command.Blocking{Handle: p.removeHint}, 2, "<provider> <dst-ticker>"),
		command.NewLeaf("list", "", command.Blocking{Handle: p.listHints}, 1, "<provider>"),
	); err != nil {
		return err
	}

	if err := q.Register(
		command.NewLeaf("get", "", command.Blocking{Handle: p.get}, 3, "<short|long> <provider> <ticker>"),
		command.NewLeaf("get_fresh", "", command.Blocking{Handle: p.getFresh}, 2, "<provider> <ticker>"),
		command.NewLeaf("gl", "", command.Blocking{Handle: p.lucky}, 2, "<provider> <ticker>"),
		command.NewLeaf("search", "", command.Blocking{Handle: p.search}, 2, "<provider> <query>"),
		hint,
	); err != nil {
		return err
	}

	return root.Register(
		command.NewLeaf("quick", "qq", command.Proxy{Target: []string{"quote", "gl"}, Args: []string{p.defaultProvider}}, 1, "<search-ticker-string>"),
		command.NewLeaf("qs", "", command.Proxy{Target: []string{"quote", "get"}, Args: []string{"short"}}, 2, "<provider> <ticker>"),
		command.NewLeaf("ql", "", command.Proxy{Target: []string{"quote", "get"}, Args: []string{"long"}}, 2, "<provider> <ticker>"),
		command.NewLeaf("qy", "", command.Proxy{Target: []string{"quote", "get"}, Args: []string{"short", "yahoo"}}, 1, "<ticker>"),
	)
}

func service(req *command.Request, name string) (provider.Service, error) {
	if req.Exec == nil || req.Exec.Providers == nil {
		return nil, &provider.NotFoundError{Name: name}
	}
	return req.Exec.Providers.Service(name)
}

// rewrite applies the provider's hint for ticker, if any. Lookup failures
// leave the ticker unchanged.
func (p *Plugin) rewrite(ctx context.Context, req *command.Request, prov, ticker string) string {
	if p.hints == nil {
		return ticker
	}
	dst, ok, err := p.hints.Lookup(ctx, prov, ticker)
	if err != nil {
		req.Log.Warn("hint lookup failed", logx.String("provider", prov), logx.Err(err))
		return ticker
	}
	if ok {
		req.Log.Debug("ticker rewritten by hint", logx.String("src", ticker), logx.String("dst", dst))
		return dst
	}
	return ticker
}

func quoteLines(q provider.Quote) command.Result {
	if q == nil || q.IsEmpty() {
		return nil
	}
	return command.Lines(q.String())
}

func shortForm(q provider.Quote) provider.Quote {
	fq, ok := q.(provider.FieldQuote)
	if !ok {
		return q
	}
	return provider.TextQuote{Items: fq.Fields()}.Without(shortDrop...)
}

// get: <form> <provider> <ticker...>
func (p *Plugin) get(ctx context.Context, req *command.Request) (command.Result, error) {
	form, prov, ticker := strings.ToLower(req.Arg(0)), req.Arg(1), req.Rest(2)
	svc, err := service(req, prov)
	if err != nil {
		return nil, err
	}
	q, err := svc.Quote(ctx, p.rewrite(ctx, req, prov, ticker))
	if err != nil {
		return nil, err
	}
	if form == "short" && q != nil {
		q = shortForm(q)
	}
	return quoteLines(q), nil
}

// getFresh answers only when the provider reports current data.
func (p *Plugin) getFresh(ctx context.Context, req *command.Request) (command.Result, error) {
	prov, ticker := req.Arg(0), req.Rest(1)
	svc, err := service(req, prov)
	if err != nil {
		return nil, err
	}
	q, err := svc.Quote(ctx, p.rewrite(ctx, req, prov, ticker))
	if err != nil {
		return nil, err
	}
	fq, ok := q.(provider.FreshQuote)
	if !ok || !fq.Fresh() {
		return nil, nil
	}
	return quoteLines(q), nil
}

// lucky falls back to the first search hit when the direct quote is empty.
func (p *Plugin) lucky(ctx context.Context, req *command.Request) (command.Result, error) {
	prov, ticker := req.Arg(0), req.Rest(1)
	svc, err := service(req, prov)
	if err != nil {
		return nil, err
	}
	q, err := svc.Quote(ctx, p.rewrite(ctx, req, prov, ticker))
	if err != nil {
		return nil, err
	}
	if q != nil && !q.IsEmpty() {
		return quoteLines(q), nil
	}

	found, err := svc.Search(ctx, ticker)
	if err != nil {
		return nil, err
	}
	var first string
	if found != nil && !found.IsEmpty() {
		for _, t := range found.Tickers() {
			if t != "" {
				first = t
				break
			}
		}
	}
	if first == "" {
		return command.Lines(fmt.Sprintf("Nothing found for %s", ticker)), nil
	}
	q, err = svc.Quote(ctx, first)
	if err != nil {
		return nil, err
	}
	return quoteLines(q), nil
}

func (p *Plugin) search(ctx context.Context, req *command.Request) (command.Result, error) {
	prov, query := req.Arg(0), req.Rest(1)
	svc, err := service(req, prov)
	if err != nil {
		return nil, err
	}
	found, err := svc.Search(ctx, query)
	if err != nil {
		return nil, err
	}
	if found == nil {
		return command.Lines(fmt.Sprintf("Response from provider '%s' broken", prov)), nil
	}
	if found.IsEmpty() {
		return command.Lines(fmt.Sprintf("Nothing found for %s", query)), nil
	}
	return command.Result(found.Lines()), nil
}

var errNoHintStore = errors.New("hints are not available")

// addHint: <provider> <dst-ticker> <free-text...>
func (p *Plugin) addHint(ctx context.Context, req *command.Request) (command.Result, error) {
	if p.hints == nil {
		return nil, errNoHintStore
	}
	h := storage.Hint{Provider: req.Arg(0), Dst: req.Arg(1), Src: req.Rest(2)}
	if err := p.hints.Add(ctx, h); err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			return command.Lines("Hint already exists"), nil
		}
		return nil, err
	}
	return command.Lines("Added hint"), nil
}

func (p *Plugin) removeHint(ctx context.Context, req *command.Request) (command.Result, error) {
	if p.hints == nil {
		return nil, errNoHintStore
	}
	ok, err := p.hints.Remove(ctx, req.Arg(0), req.Arg(1))
	if err != nil {
		return nil, err
	}
	if !ok {
		return command.Lines("No matching hint to remove"), nil
	}
	return command.Lines("Removed hint"), nil
}

func (p *Plugin) listHints(ctx context.Context, req *command.Request) (command.Result, error) {
	if p.hints == nil {
		return nil, errNoHintStore
	}
	hs, err := p.hints.List(ctx, req.Arg(0))
	if err != nil {
		return nil, err
	}
	if len(hs) == 0 {
		return command.Lines("no hints found"), nil
	}
	out := make(command.Result, 0, len(hs))
	for _, h := range hs {
		out = append(out, fmt.Sprintf("Provider: %s, Ticker: %s, Free-text: %s", h.Provider, h.Dst, h.Src))
	}
	return out, nil
}
