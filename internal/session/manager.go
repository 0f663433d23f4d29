package session

import (
	"slices"
	"sync"

	"stockbot/internal/storage"
	"stockbot/internal/transport"
	logx "stockbot/pkg/logx"
)

// Manager owns every live session, keyed by Target.Key().
type Manager struct {
	store    storage.Store
	defaults Defaults
	log      logx.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
	order    []string
	onCreate []func(*Session)
}

func NewManager(store storage.Store, d Defaults, log logx.Logger) *Manager {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Manager{
		store:    store,
		defaults: d,
		log:      log.With(logx.String("comp", "session")),
		sessions: map[string]*Session{},
	}
}

// OnCreate registers fn to run for every session created after the call.
func (m *Manager) OnCreate(fn func(*Session)) {
	if fn == nil {
		return
	}
	m.mu.Lock()
	m.onCreate = append(m.onCreate, fn)
	m.mu.Unlock()
}

// SetDefaults changes the defaults used for sessions created later.
func (m *Manager) SetDefaults(d Defaults) {
	m.mu.Lock()
	m.defaults = d
	m.mu.Unlock()
}

func (m *Manager) Get(to transport.Target) (*Session, bool) {
	return m.Lookup(to.Key())
}

func (m *Manager) Lookup(key string) (*Session, bool) {
	m.mu.RLock()
	s, ok := m.sessions[key]
	m.mu.RUnlock()
	return s, ok
}

func (m *Manager) GetOrCreate(to transport.Target) *Session {
	key := to.Key()
	if s, ok := m.Lookup(key); ok {
		return s
	}

	m.mu.Lock()
	if s, ok := m.sessions[key]; ok {
		m.mu.Unlock()
		return s
	}
	s := New(to, m.store.Commands(key), m.defaults)
	m.sessions[key] = s
	m.order = append(m.order, key)
	hooks := slices.Clone(m.onCreate)
	m.mu.Unlock()

	m.log.Info("session created", logx.String("session", key))
	for _, fn := range hooks {
		fn(s)
	}
	return s
}

// List returns sessions in creation order.
func (m *Manager) List() []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Session, 0, len(m.order))
	for _, k := range m.order {
		out = append(out, m.sessions[k])
	}
	return out
}
