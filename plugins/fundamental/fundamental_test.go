package fundamental

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockbot/internal/command"
	"stockbot/internal/provider"
)

type fakeAnalytics struct {
	rows  []Row
	asked []string
}

func (f *fakeAnalytics) Fields() []string { return nil }

func (f *fakeAnalytics) Top(_ context.Context, n int, field string) ([]Row, error) {
	f.asked = append(f.asked, field)
	if field == "beta" {
		return nil, errors.New("db locked")
	}
	return f.rows, nil
}

func (f *fakeAnalytics) Get(_ context.Context, ticker string) ([]provider.Field, error) {
	if ticker != "ERIC" {
		return nil, nil
	}
	return []provider.Field{
		{Name: "Name", Value: "Ericsson"},
		{Name: "P/E", Value: "14.2"},
	}, nil
}

func dispatcher(t *testing.T, p *Plugin) *command.Dispatcher {
	t.Helper()
	root := command.NewRoot()
	require.NoError(t, p.Register(root))
	d, err := command.NewDispatcher(root)
	require.NoError(t, err)
	return d
}

func run(t *testing.T, d *command.Dispatcher, line string) command.Result {
	t.Helper()
	res, err := d.Execute(context.Background(), strings.Fields(line), nil)
	require.NoError(t, err)
	return res
}

func TestFields(t *testing.T) {
	d := dispatcher(t, New(nil))
	assert.Equal(t,
		command.Lines("Fields: id, name, ticker, net_profit_margin_last_q, net_profit_margin_last_y, operating_margin_last_q, operating_margin_last_y, ebitd_margin_last_q, ebitd_margin_last_y, roaa_last_q, roaa_last_y, roae_last_q, roae_last_y, market_cap, price_to_earnings, beta, earnings_per_share, dividend_yield, latest_dividend"),
		run(t, d, "fundamental fields"))
}

func TestTop(t *testing.T) {
	fa := &fakeAnalytics{}
	d := dispatcher(t, New(fa))

	tests := []struct {
		name string
		line string
		want command.Result
	}{
		{"nothing stored", "fundamental top 5 net_profit_margin_last_q", command.Lines("Nothing found")},
		{"not a number", "fundamental top foobar net_profit_margin_last_q", command.Lines("Error: foobar is not a number sherlock")},
		{"zero", "fundamental top 0 beta", command.Lines("Error: 0 is not a number sherlock")},
		{"bad field", "fundamental top 5 this_field_doesnt_exist", command.Lines("Error: 'this_field_doesnt_exist' is not a valid field")},
		{"backend failure", "fundamental top 5 beta", command.Lines("Failed: db locked")},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, run(t, d, tc.line))
		})
	}
	assert.Equal(t, []string{"net_profit_margin_last_q", "beta"}, fa.asked)
}

func TestTopRendersRows(t *testing.T) {
	fa := &fakeAnalytics{rows: []Row{
		{Ticker: "ERIC", Name: "Ericsson", Value: 1500000},
		{Ticker: "VOLV", Name: "Volvo", Value: 12.5},
		{Ticker: "ABB", Name: "ABB", Value: 3},
	}}
	d := dispatcher(t, New(fa))
	assert.Equal(t,
		command.Lines(
			"Ticker: ERIC, Name: Ericsson, market_cap: 1,500,000",
			"Ticker: VOLV, Name: Volvo, market_cap: 12.5",
		),
		run(t, d, "fundamental top 2 MARKET_CAP"))
}

func TestGet(t *testing.T) {
	d := dispatcher(t, New(&fakeAnalytics{}))
	assert.Equal(t, command.Lines("Name: Ericsson, P/E: 14.2"), run(t, d, "fundamental get eric"))
	assert.Equal(t, command.Lines("Nothing found for NOPE"), run(t, d, "fundamental get nope"))

	_, err := d.Execute(context.Background(), []string{"fundamental", "get"}, nil)
	var ace *command.ArgumentCountError
	require.ErrorAs(t, err, &ace)
	assert.Equal(t, "fundamental get <ticker>", ace.Usage())
}

func TestWithoutAnalytics(t *testing.T) {
	d := dispatcher(t, New(nil))
	assert.Equal(t, command.Lines("Failed: no analytics configured"), run(t, d, "fundamental get eric"))
	assert.Equal(t, command.Lines("Failed: no analytics configured"), run(t, d, "fundamental top 3 beta"))
}
