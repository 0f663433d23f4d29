package provider

import (
	"strings"
)

// TextQuote is a Quote made of ordered fields, rendered as
// "Name: value, Name: value". Useful for providers and fakes alike.
type TextQuote struct {
	Items   []Field
	IsFresh bool
}

func (q TextQuote) IsEmpty() bool   { return len(q.Items) == 0 }
func (q TextQuote) Fields() []Field { return q.Items }
func (q TextQuote) Fresh() bool     { return q.IsFresh }

func (q TextQuote) String() string {
	parts := make([]string, 0, len(q.Items))
	for _, f := range q.Items {
		parts = append(parts, f.Name+": "+f.Value)
	}
	return strings.Join(parts, ", ")
}

// Without returns a copy of q without the named fields.
func (q TextQuote) Without(names ...string) TextQuote {
	drop := make(map[string]struct{}, len(names))
	for _, n := range names {
		drop[n] = struct{}{}
	}
	out := TextQuote{IsFresh: q.IsFresh}
	for _, f := range q.Items {
		if _, ok := drop[f.Name]; ok {
			continue
		}
		out.Items = append(out.Items, f)
	}
	return out
}

// Match is one search hit.
type Match struct {
	Ticker string
	Market string
	Name   string
}

// Matches is a SearchResult backed by a slice of Match.
type Matches []Match

func (m Matches) IsEmpty() bool { return len(m) == 0 }

func (m Matches) Lines() []string {
	out := make([]string, 0, len(m))
	for _, x := range m {
		out = append(out, "Ticker: "+x.Ticker+", Market: "+x.Market+", Name: "+x.Name)
	}
	return out
}

func (m Matches) Tickers() []string {
	out := make([]string, 0, len(m))
	for _, x := range m {
		if x.Ticker != "" {
			out = append(out, x.Ticker)
		}
	}
	return out
}
