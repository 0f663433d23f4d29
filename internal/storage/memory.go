package storage

import (
	"context"
	"slices"
	"strings"
	"sync"
)

// snapshot is the whole in-memory state; the file driver persists it as JSON.
type snapshot struct {
	Commands map[string][]string `json:"commands"`
	Hints    []Hint              `json:"hints"`
}

type memBackend struct {
	mu     sync.Mutex
	state  snapshot
	closed bool

	// onChange runs under mu after every successful mutation.
	onChange func(snapshot) error
}

func newMemBackend() *memBackend {
	return &memBackend{state: snapshot{Commands: map[string][]string{}}}
}

func (m *memBackend) mutate(fn func(*snapshot) (bool, error)) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return false, ErrClosed
	}
	prev := cloneSnapshot(m.state)
	changed, err := fn(&m.state)
	if err != nil || !changed || m.onChange == nil {
		return changed, err
	}
	if err := m.onChange(m.state); err != nil {
		m.state = prev
		return false, err
	}
	return true, nil
}

func (m *memBackend) read(fn func(*snapshot)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	fn(&m.state)
	return nil
}

func (m *memBackend) addCommand(_ context.Context, owner, key string) error {
	_, err := m.mutate(func(s *snapshot) (bool, error) {
		if slices.Contains(s.Commands[owner], key) {
			return false, ErrDuplicate
		}
		s.Commands[owner] = append(s.Commands[owner], key)
		return true, nil
	})
	return err
}

func (m *memBackend) removeCommand(_ context.Context, owner, key string) (bool, error) {
	return m.mutate(func(s *snapshot) (bool, error) {
		i := slices.Index(s.Commands[owner], key)
		if i < 0 {
			return false, nil
		}
		s.Commands[owner] = slices.Delete(s.Commands[owner], i, i+1)
		if len(s.Commands[owner]) == 0 {
			delete(s.Commands, owner)
		}
		return true, nil
	})
}

func (m *memBackend) listCommands(_ context.Context, owner string) ([]string, error) {
	var out []string
	err := m.read(func(s *snapshot) { out = slices.Clone(s.Commands[owner]) })
	return out, err
}

func (m *memBackend) hasCommand(_ context.Context, owner, key string) (bool, error) {
	var ok bool
	err := m.read(func(s *snapshot) { ok = slices.Contains(s.Commands[owner], key) })
	return ok, err
}

func (m *memBackend) addHint(_ context.Context, h Hint) error {
	_, err := m.mutate(func(s *snapshot) (bool, error) {
		for _, x := range s.Hints {
			if x.Provider == h.Provider && x.Src == h.Src {
				return false, ErrDuplicate
			}
		}
		s.Hints = append(s.Hints, h)
		return true, nil
	})
	return err
}

func (m *memBackend) removeHint(_ context.Context, provider, dst string) (bool, error) {
	return m.mutate(func(s *snapshot) (bool, error) {
		n := len(s.Hints)
		s.Hints = slices.DeleteFunc(s.Hints, func(x Hint) bool {
			return x.Provider == provider && strings.EqualFold(x.Dst, dst)
		})
		return len(s.Hints) != n, nil
	})
}

func (m *memBackend) listHints(_ context.Context, provider string) ([]Hint, error) {
	var out []Hint
	err := m.read(func(s *snapshot) {
		for _, x := range s.Hints {
			if x.Provider == provider {
				out = append(out, x)
			}
		}
	})
	return out, err
}

func (m *memBackend) lookupHint(_ context.Context, provider, src string) (string, bool, error) {
	var (
		dst string
		ok  bool
	)
	err := m.read(func(s *snapshot) {
		for _, x := range s.Hints {
			if x.Provider == provider && x.Src == src {
				dst, ok = x.Dst, true
				return
			}
		}
	})
	return dst, ok, err
}

func (m *memBackend) close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

func cloneSnapshot(s snapshot) snapshot {
	out := snapshot{Commands: make(map[string][]string, len(s.Commands)), Hints: slices.Clone(s.Hints)}
	for k, v := range s.Commands {
		out.Commands[k] = slices.Clone(v)
	}
	return out
}
