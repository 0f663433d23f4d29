package storage

import (
	"context"
	"errors"
	"strings"

	logx "stockbot/pkg/logx"
)

// backend is implemented by every driver; store adapts it to Store.
type backend interface {
	addCommand(ctx context.Context, owner, key string) error
	removeCommand(ctx context.Context, owner, key string) (bool, error)
	listCommands(ctx context.Context, owner string) ([]string, error)
	hasCommand(ctx context.Context, owner, key string) (bool, error)

	addHint(ctx context.Context, h Hint) error
	removeHint(ctx context.Context, provider, dst string) (bool, error)
	listHints(ctx context.Context, provider string) ([]Hint, error)
	lookupHint(ctx context.Context, provider, src string) (string, bool, error)

	close() error
}

// Open initializes the configured store.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	log = log.With(logx.String("comp", "storage"))

	var (
		b   backend
		err error
	)
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	switch driver {
	case "", "memory", "mem":
		b = newMemBackend()
	case "file":
		b, err = openFile(cfg, log)
	case "sqlite", "sqlite3":
		b, err = openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
	if err != nil {
		return nil, err
	}
	log.Debug("storage opened", logx.String("driver", driver), logx.String("path", cfg.Path))
	return &store{b: b}, nil
}

type store struct{ b backend }

func (s *store) Commands(owner string) Collection {
	return &collection{owner: strings.ToLower(strings.TrimSpace(owner)), b: s.b}
}

func (s *store) Hints() HintStore { return hints{b: s.b} }

func (s *store) Close() error { return s.b.close() }

type collection struct {
	owner string
	b     backend
}

func (c *collection) Add(ctx context.Context, e Entry) error {
	key := e.Key()
	if key == "" {
		return errors.New("storage: empty entry")
	}
	return c.b.addCommand(ctx, c.owner, key)
}

func (c *collection) Remove(ctx context.Context, e Entry) (bool, error) {
	return c.b.removeCommand(ctx, c.owner, e.Key())
}

func (c *collection) List(ctx context.Context) ([]Entry, error) {
	keys, err := c.b.listCommands(ctx, c.owner)
	if err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(keys))
	for _, k := range keys {
		out = append(out, ParseEntry(k))
	}
	return out, nil
}

func (c *collection) Contains(ctx context.Context, e Entry) (bool, error) {
	return c.b.hasCommand(ctx, c.owner, e.Key())
}

type hints struct{ b backend }

func (h hints) Add(ctx context.Context, x Hint) error {
	x = x.normalized()
	if x.Provider == "" || x.Src == "" || x.Dst == "" {
		return errors.New("storage: hint needs provider, src and dst")
	}
	return h.b.addHint(ctx, x)
}

func (h hints) Remove(ctx context.Context, provider, dst string) (bool, error) {
	return h.b.removeHint(ctx, strings.ToLower(strings.TrimSpace(provider)), strings.TrimSpace(dst))
}

func (h hints) List(ctx context.Context, provider string) ([]Hint, error) {
	return h.b.listHints(ctx, strings.ToLower(strings.TrimSpace(provider)))
}

func (h hints) Lookup(ctx context.Context, provider, src string) (string, bool, error) {
	x := Hint{Provider: provider, Src: src}.normalized()
	return h.b.lookupHint(ctx, x.Provider, x.Src)
}
