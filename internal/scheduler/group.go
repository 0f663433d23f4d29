package scheduler

import (
	"context"
	"sync"
	"time"
)

// Group holds one Scheduler per session and ticks them all.
type Group struct {
	mu    sync.RWMutex
	byKey map[string]*Scheduler
	order []string
}

func NewGroup() *Group {
	return &Group{byKey: map[string]*Scheduler{}}
}

// Add registers s, replacing any scheduler for the same session.
func (g *Group) Add(s *Scheduler) {
	key := s.sess.Key()
	g.mu.Lock()
	if _, ok := g.byKey[key]; !ok {
		g.order = append(g.order, key)
	}
	g.byKey[key] = s
	g.mu.Unlock()
}

func (g *Group) Get(key string) (*Scheduler, bool) {
	g.mu.RLock()
	s, ok := g.byKey[key]
	g.mu.RUnlock()
	return s, ok
}

func (g *Group) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.order)
}

// Tick calls OnTick on every scheduler in registration order and returns how
// many fired.
func (g *Group) Tick(ctx context.Context, now time.Time) int {
	g.mu.RLock()
	list := make([]*Scheduler, 0, len(g.order))
	for _, k := range g.order {
		list = append(list, g.byKey[k])
	}
	g.mu.RUnlock()

	fired := 0
	for _, s := range list {
		if ctx.Err() != nil {
			break
		}
		if s.OnTick(ctx, now) {
			fired++
		}
	}
	return fired
}
