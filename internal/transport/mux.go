package transport

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// Mux routes a Target to the Sink registered for its channel.
type Mux struct {
	mu    sync.RWMutex
	sinks map[string]Sink
}

func NewMux() *Mux {
	return &Mux{sinks: map[string]Sink{}}
}

// Handle registers (or replaces) the sink for channel.
func (m *Mux) Handle(channel string, s Sink) {
	ch := strings.ToLower(strings.TrimSpace(channel))
	m.mu.Lock()
	if s == nil {
		delete(m.sinks, ch)
	} else {
		m.sinks[ch] = s
	}
	m.mu.Unlock()
}

func (m *Mux) Send(ctx context.Context, to Target, text string) error {
	m.mu.RLock()
	s := m.sinks[strings.ToLower(strings.TrimSpace(to.Channel))]
	m.mu.RUnlock()
	if s == nil {
		return fmt.Errorf("transport: no sink for channel %q", to.Channel)
	}
	return s.Send(ctx, to, text)
}
