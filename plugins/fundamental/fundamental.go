package fundamental

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"

	"stockbot/internal/command"
	"stockbot/internal/provider"
)

// Fields are the columns a stored company carries when the analytics backend
// does not report its own.
var Fields = []string{
	"id", "name", "ticker",
	"net_profit_margin_last_q", "net_profit_margin_last_y",
	"operating_margin_last_q", "operating_margin_last_y",
	"ebitd_margin_last_q", "ebitd_margin_last_y",
	"roaa_last_q", "roaa_last_y",
	"roae_last_q", "roae_last_y",
	"market_cap", "price_to_earnings", "beta",
	"earnings_per_share", "dividend_yield", "latest_dividend",
}

// Row is one company of a top list.
type Row struct {
	Ticker string
	Name   string
	Value  float64
}

// Analytics answers questions over stored company fundamentals.
type Analytics interface {
	// Fields lists the columns Top can rank by.
	Fields() []string
	// Top returns at most n companies ordered by field, highest first.
	Top(ctx context.Context, n int, field string) ([]Row, error)
	// Get returns the fundamentals of one company, or nothing if unknown.
	Get(ctx context.Context, ticker string) ([]provider.Field, error)
}

var errNoAnalytics = errors.New("no analytics configured")

type Plugin struct {
	a Analytics
}

func New(a Analytics) *Plugin { return &Plugin{a: a} }

func (p *Plugin) Name() string { return "fundamental" }

func (p *Plugin) Register(root *command.Node) error {
	f := command.NewBranch("fundamental", "", "")
	if err := f.Register(
		command.NewLeaf("get", "", command.Blocking{Handle: p.get}, 1, "<ticker>"),
		command.NewLeaf("fields", "", command.Blocking{Handle: p.fields}, 0, ""),
		command.NewLeaf("top", "", command.Blocking{Handle: p.top}, 2, "<n> <field>"),
	); err != nil {
		return err
	}
	return root.Register(f)
}

func (p *Plugin) fieldNames() []string {
	if p.a != nil {
		if fs := p.a.Fields(); len(fs) > 0 {
			return fs
		}
	}
	return Fields
}

func (p *Plugin) fields(context.Context, *command.Request) (command.Result, error) {
	return command.Lines("Fields: " + strings.Join(p.fieldNames(), ", ")), nil
}

func (p *Plugin) get(ctx context.Context, req *command.Request) (command.Result, error) {
	if p.a == nil {
		return nil, errNoAnalytics
	}
	ticker := strings.ToUpper(req.Arg(0))
	items, err := p.a.Get(ctx, ticker)
	if err != nil {
		return nil, err
	}
	q := provider.TextQuote{Items: items}
	if q.IsEmpty() {
		return command.Lines("Nothing found for " + ticker), nil
	}
	return command.Lines(q.String()), nil
}

// top: <n> <field>
func (p *Plugin) top(ctx context.Context, req *command.Request) (command.Result, error) {
	n, err := strconv.Atoi(req.Arg(0))
	if err != nil || n < 1 {
		return command.Lines(fmt.Sprintf("Error: %s is not a number sherlock", req.Arg(0))), nil
	}
	field := strings.ToLower(req.Arg(1))
	if !slices.Contains(p.fieldNames(), field) {
		return command.Lines(fmt.Sprintf("Error: '%s' is not a valid field", req.Arg(1))), nil
	}
	if p.a == nil {
		return nil, errNoAnalytics
	}

	rows, err := p.a.Top(ctx, n, field)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return command.Lines("Nothing found"), nil
	}
	if len(rows) > n {
		rows = rows[:n]
	}
	out := make(command.Result, 0, len(rows))
	for _, r := range rows {
		out = append(out, fmt.Sprintf("Ticker: %s, Name: %s, %s: %s", r.Ticker, r.Name, field, humanize.Commaf(r.Value)))
	}
	return out, nil
}
