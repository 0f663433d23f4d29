package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/spf13/afero"
)

var (
	ErrDuplicate = errors.New("storage: duplicate entry")
	ErrClosed    = errors.New("storage: closed")
)

// Config configures storage.
//
// Driver values:
//   - "memory" (or empty): process-local, lost on restart
//   - "file": JSON snapshot rewritten atomically on every change
//   - "sqlite": SQLite database file
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default

	// Fs backs the file driver; nil means the OS filesystem.
	Fs afero.Fs
}

// Entry is one stored command invocation, as a token sequence.
type Entry []string

// ParseEntry splits text on whitespace.
func ParseEntry(text string) Entry { return Entry(strings.Fields(text)) }

// Key is the canonical form: lowercase tokens joined by one space.
// Two entries are the same entry iff their keys are equal.
func (e Entry) Key() string {
	parts := make([]string, 0, len(e))
	for _, t := range e {
		t = strings.ToLower(strings.TrimSpace(t))
		if t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, " ")
}

func (e Entry) String() string { return e.Key() }

// Tokens returns the canonical tokens of e.
func (e Entry) Tokens() []string { return strings.Fields(e.Key()) }

// Hint maps a provider specific free-text name to the ticker to query.
type Hint struct {
	Provider string
	Src      string
	Dst      string
}

func (h Hint) normalized() Hint {
	return Hint{
		Provider: strings.ToLower(strings.TrimSpace(h.Provider)),
		Src:      strings.ToLower(strings.Join(strings.Fields(h.Src), " ")),
		Dst:      strings.TrimSpace(h.Dst),
	}
}

// Collection is the set of entries owned by one session.
// Every call acquires its handle, runs one operation and releases it.
type Collection interface {
	// Add fails with ErrDuplicate if an entry with the same key exists.
	Add(ctx context.Context, e Entry) error
	Remove(ctx context.Context, e Entry) (bool, error)
	// List returns entries in insertion order.
	List(ctx context.Context) ([]Entry, error)
	Contains(ctx context.Context, e Entry) (bool, error)
}

type HintStore interface {
	// Add fails with ErrDuplicate if the provider already has a hint for Src.
	Add(ctx context.Context, h Hint) error
	// Remove deletes the provider's hints pointing at dst.
	Remove(ctx context.Context, provider, dst string) (bool, error)
	List(ctx context.Context, provider string) ([]Hint, error)
	Lookup(ctx context.Context, provider, src string) (dst string, ok bool, err error)
}

// Store is the persistence API used by sessions and plugins.
type Store interface {
	Commands(owner string) Collection
	Hints() HintStore
	Close() error
}
