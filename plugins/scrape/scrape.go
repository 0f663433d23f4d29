package scrape

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"stockbot/internal/command"
	logx "stockbot/pkg/logx"
)

// SegmentCount is the number of companies known for one market segment.
type SegmentCount struct {
	Segment string
	Count   int
}

// Scraper collects company data from market listings.
type Scraper interface {
	// Nasdaq refreshes the company list and returns how many were found.
	Nasdaq(ctx context.Context) (int, error)
	// Stats reports the stored companies per segment.
	Stats(ctx context.Context) ([]SegmentCount, error)
	// Stocks fetches quote data for every company of segment in currency.
	// It is long running and must honor ctx.
	Stocks(ctx context.Context, currency, segment string) (int, error)
}

var errNoScraper = errors.New("no scraper configured")

type Plugin struct {
	s Scraper
}

func New(s Scraper) *Plugin { return &Plugin{s: s} }

func (p *Plugin) Name() string { return "scrape" }

func (p *Plugin) Register(root *command.Node) error {
	sc := command.NewBranch("scrape", "", "")
	if err := sc.Register(
		command.NewLeaf("nasdaq", "", command.Blocking{Handle: p.nasdaq}, 0, ""),
		command.NewLeaf("stats", "", command.Blocking{Handle: p.stats}, 0, ""),
		command.NewLeaf("stocks", "", command.NonBlocking{Name: "scrape", Handle: p.stocks}, 2, "<currency> <segment>"),
	); err != nil {
		return err
	}
	return root.Register(sc)
}

func (p *Plugin) nasdaq(ctx context.Context, req *command.Request) (command.Result, error) {
	if p.s == nil {
		return nil, errNoScraper
	}
	n, err := p.s.Nasdaq(ctx)
	if err != nil {
		return nil, err
	}
	return command.Lines(fmt.Sprintf("Scraped %d companies from Nasdaq", n)), nil
}

func (p *Plugin) stats(ctx context.Context, req *command.Request) (command.Result, error) {
	if p.s == nil {
		return nil, errNoScraper
	}
	counts, err := p.s.Stats(ctx)
	if err != nil {
		return nil, err
	}
	if len(counts) == 0 {
		return command.Lines("Nothing scraped yet"), nil
	}
	parts := make([]string, 0, len(counts))
	for _, c := range counts {
		parts = append(parts, fmt.Sprintf("%s=%d", c.Segment, c.Count))
	}
	return command.Lines("Scraped: " + strings.Join(parts, ", ")), nil
}

// stocks: <currency> <segment...>; runs as a task.
func (p *Plugin) stocks(ctx context.Context, req *command.Request) (command.Result, error) {
	if p.s == nil {
		return nil, errNoScraper
	}
	currency := strings.ToUpper(req.Arg(0))
	segment := strings.ToLower(req.Rest(1))
	req.Log.Info("scrape started", logx.String("currency", currency), logx.String("segment", segment))

	n, err := p.s.Stocks(ctx, currency, segment)
	if err != nil {
		return nil, err
	}
	return command.Lines(fmt.Sprintf("Done scraping segment '%s' currency '%s' - scraped %d companies", segment, currency, n)), nil
}
