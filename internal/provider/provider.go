// Package provider defines the quote/search collaborators that bound
// operations reach through the execution context.
//
// No concrete data provider lives here; hosts register factories on a Registry.
package provider

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Field is one labelled value of a quote (e.g. "Last Price" -> "12.5").
type Field struct {
	Name  string
	Value string
}

// Quote is what a provider returns for a ticker.
type Quote interface {
	IsEmpty() bool
	String() string
}

// FieldQuote is implemented by quotes that expose individual fields so that
// callers can drop some of them (the "short" form).
type FieldQuote interface {
	Quote
	Fields() []Field
}

// FreshQuote is implemented by quotes that know whether their data is current.
type FreshQuote interface {
	Quote
	Fresh() bool
}

// SearchResult is what a provider returns for a free-text query.
type SearchResult interface {
	IsEmpty() bool
	Lines() []string
	Tickers() []string
}

// Service is one quote provider.
type Service interface {
	Quote(ctx context.Context, ticker string) (Quote, error)
	Search(ctx context.Context, query string) (SearchResult, error)
}

// Locator resolves a provider name to a Service.
type Locator interface {
	Service(name string) (Service, error)
}

// NotFoundError reports an unknown provider name.
type NotFoundError struct {
	Name string
}

func (e *NotFoundError) Error() string { return fmt.Sprintf("No such provider '%s'", e.Name) }

// Factory builds a Service. Factories are called on every lookup so that a
// provider may keep per-call state.
type Factory func() (Service, error)

// Registry is a case-insensitive name -> factory map implementing Locator.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

func NewRegistry() *Registry {
	return &Registry{factories: map[string]Factory{}}
}

// Register adds or replaces the factory for name.
func (r *Registry) Register(name string, f Factory) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" || f == nil {
		return
	}
	r.mu.Lock()
	r.factories[key] = f
	r.mu.Unlock()
}

// RegisterService registers a shared Service instance under name.
func (r *Registry) RegisterService(name string, s Service) {
	r.Register(name, func() (Service, error) { return s, nil })
}

func (r *Registry) Service(name string) (Service, error) {
	r.mu.RLock()
	f := r.factories[strings.ToLower(strings.TrimSpace(name))]
	r.mu.RUnlock()
	if f == nil {
		return nil, &NotFoundError{Name: name}
	}
	return f()
}

// Names returns the registered provider names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.factories))
	for k := range r.factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
