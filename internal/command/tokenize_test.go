package command

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTokenize(t *testing.T) {
	cases := []struct {
		in   string
		want []string
	}{
		{"", nil},
		{"   ", nil},
		{"quote get short yahoo aapl", []string{"quote", "get", "short", "yahoo", "aapl"}},
		{"  quote\tsearch  avanza   volvo ", []string{"quote", "search", "avanza", "volvo"}},
		{`quote hint add avanza VOLV-B "volvo b"`, []string{"quote", "hint", "add", "avanza", "VOLV-B", "volvo b"}},
		{`say 'it''s'`, []string{"say", "its"}},
		{`a\ b c`, []string{"a b", "c"}},
		{`empty ""`, []string{"empty", ""}},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Tokenize(tc.in), tc.in)
	}
}

func TestTaskKey(t *testing.T) {
	assert.Equal(t, "scrape-sek_nordic_large_cap", TaskKey("scrape", []string{"SEK", "nordic", "large", "cap"}))
	assert.Equal(t, "scrape-a_b_c", TaskKey("Scrape", []string{"a.b", "c"}))
	assert.Equal(t, "stats", TaskKey("stats", nil))
}
