package provider

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubService struct{}

func (stubService) Quote(context.Context, string) (Quote, error)         { return TextQuote{}, nil }
func (stubService) Search(context.Context, string) (SearchResult, error) { return Matches{}, nil }

func TestRegistryLookupIsCaseInsensitive(t *testing.T) {
	r := NewRegistry()
	r.RegisterService("Yahoo", stubService{})

	s, err := r.Service("YAHOO")
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.Equal(t, []string{"yahoo"}, r.Names())
}

func TestRegistryNotFound(t *testing.T) {
	r := NewRegistry()
	_, err := r.Service("invalid-provider")

	var nf *NotFoundError
	require.True(t, errors.As(err, &nf))
	assert.Equal(t, "invalid-provider", nf.Name)
	assert.Equal(t, "No such provider 'invalid-provider'", err.Error())
}

func TestTextQuoteWithout(t *testing.T) {
	q := TextQuote{Items: []Field{
		{Name: "Name", Value: "Foo"},
		{Name: "Low Price", Value: "1"},
		{Name: "Last Price", Value: "2"},
		{Name: "Market", Value: "X"},
	}}
	short := q.Without("Low Price", "High Price", "Market")
	assert.Equal(t, "Name: Foo, Last Price: 2", short.String())
	assert.Len(t, q.Items, 4)
}

func TestMatches(t *testing.T) {
	m := Matches{{Ticker: "FOO", Market: "Foo Market", Name: "Foo Company"}, {Name: "no ticker"}}
	assert.False(t, m.IsEmpty())
	assert.Equal(t, []string{"FOO"}, m.Tickers())
	assert.Contains(t, m.Lines(), "Ticker: FOO, Market: Foo Market, Name: Foo Company")
}
