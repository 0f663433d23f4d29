// Package session holds the per-conversation state shared by every command
// invoked from that conversation.
package session

import (
	"errors"
	"sync"
	"time"

	"stockbot/internal/storage"
	"stockbot/internal/transport"
)

var ErrInvalidInterval = errors.New("session: interval must be at least 1 second")

// Defaults seed the scheduler state of new sessions.
type Defaults struct {
	SchedulerEnabled bool
	Interval         time.Duration
}

const DefaultInterval = time.Hour

// State is a point-in-time copy of a session's scheduler fields.
type State struct {
	Enabled     bool
	Interval    time.Duration
	LastFiredAt time.Time // zero if the scheduler never fired
}

// Session is one conversation: its output target, scheduler state and
// scheduled command entries.
type Session struct {
	key      string
	target   transport.Target
	commands storage.Collection

	mu        sync.Mutex
	enabled   bool
	interval  time.Duration
	lastFired time.Time
}

func New(target transport.Target, commands storage.Collection, d Defaults) *Session {
	iv := d.Interval
	if iv < time.Second {
		iv = DefaultInterval
	}
	return &Session{
		key:      target.Key(),
		target:   target,
		commands: commands,
		enabled:  d.SchedulerEnabled,
		interval: iv,
	}
}

func (s *Session) Key() string                  { return s.key }
func (s *Session) Target() transport.Target     { return s.target }
func (s *Session) Commands() storage.Collection { return s.commands }

func (s *Session) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enabled
}

func (s *Session) SetEnabled(v bool) {
	s.mu.Lock()
	s.enabled = v
	s.mu.Unlock()
}

func (s *Session) Interval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.interval
}

// SetInterval rejects anything below one second.
func (s *Session) SetInterval(d time.Duration) error {
	if d < time.Second {
		return ErrInvalidInterval
	}
	s.mu.Lock()
	s.interval = d
	s.mu.Unlock()
	return nil
}

// MarkFired records a scheduler fire. Only the scheduler calls it.
func (s *Session) MarkFired(at time.Time) {
	s.mu.Lock()
	s.lastFired = at
	s.mu.Unlock()
}

func (s *Session) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return State{Enabled: s.enabled, Interval: s.interval, LastFiredAt: s.lastFired}
}
