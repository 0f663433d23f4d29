package insider

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"stockbot/internal/command"
)

// Transaction is one row of a top list.
type Transaction struct {
	Person     string
	Instrument string
	Value      string
}

// Client fetches insider statistics for a day.
type Client interface {
	Top(ctx context.Context, date, kind string) ([]Transaction, error)
}

// ClientFunc adapts a function to Client.
type ClientFunc func(ctx context.Context, date, kind string) ([]Transaction, error)

func (f ClientFunc) Top(ctx context.Context, date, kind string) ([]Transaction, error) {
	return f(ctx, date, kind)
}

var errNoClient = errors.New("no insider client configured")

// kinds maps user words to the names the client understands.
var kinds = map[string]string{
	"buyer":  "acquisition",
	"seller": "disposal",
}

const topN = 3

type Plugin struct {
	client Client
	now    func() time.Time
}

func New(c Client) *Plugin { return &Plugin{client: c, now: time.Now} }

func (p *Plugin) Name() string { return "insider" }

func (p *Plugin) Register(root *command.Node) error {
	ins := command.NewBranch("insider", "", "")
	if err := ins.Register(
		command.NewLeaf("top", "", command.Blocking{Handle: p.top}, 1, "<type: can be disposal, acquisition etc> <iso-date>"),
	); err != nil {
		return err
	}
	return root.Register(ins)
}

// top: <type> [iso-date]
func (p *Plugin) top(ctx context.Context, req *command.Request) (command.Result, error) {
	if p.client == nil {
		return nil, errNoClient
	}
	kind := strings.ToLower(req.Arg(0))
	if k, ok := kinds[kind]; ok {
		kind = k
	}
	date := req.Arg(1)
	if date == "" {
		date = p.now().Format(time.DateOnly)
	} else if _, err := time.Parse(time.DateOnly, date); err != nil {
		return nil, fmt.Errorf("bad date %q, want YYYY-MM-DD", date)
	}

	rows, err := p.client.Top(ctx, date, kind)
	if err != nil {
		return nil, err
	}
	return command.Lines(fmt.Sprintf("Top %s: %s", capitalize(kind), render(kind, rows))), nil
}

func render(kind string, rows []Transaction) string {
	if len(rows) == 0 {
		return fmt.Sprintf("There were no %ss", kind)
	}
	if len(rows) > topN {
		rows = rows[:topN]
	}
	parts := make([]string, 0, len(rows))
	for _, r := range rows {
		parts = append(parts, fmt.Sprintf("Person: %s, Company: %s, Sum: %s", r.Person, r.Instrument, r.Value))
	}
	return strings.Join(parts, " | ")
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
