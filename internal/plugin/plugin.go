package plugin

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"stockbot/internal/command"
	"stockbot/internal/eventbus"
	logx "stockbot/pkg/logx"
)

// EventRegistered is published once per plugin after its commands are attached.
const EventRegistered = "plugin.registered"

// Plugin contributes commands to the tree before the dispatcher is built.
type Plugin interface {
	Name() string
	Register(root *command.Node) error
}

// Manager registers plugins in order and remembers what each contributed.
type Manager struct {
	log logx.Logger
	bus eventbus.Bus

	order []string
	reg   map[string]Plugin
	added map[string][]string
}

func NewManager(log logx.Logger, bus eventbus.Bus) *Manager {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Manager{
		log:   log.With(logx.String("comp", "plugin")),
		bus:   bus,
		reg:   map[string]Plugin{},
		added: map[string][]string{},
	}
}

// Add queues plugins for Register. Names must be unique.
func (m *Manager) Add(ps ...Plugin) error {
	for _, p := range ps {
		if p == nil {
			return fmt.Errorf("plugin: nil plugin")
		}
		name := strings.ToLower(strings.TrimSpace(p.Name()))
		if name == "" {
			return fmt.Errorf("plugin: empty name")
		}
		if _, ok := m.reg[name]; ok {
			return fmt.Errorf("plugin %q registered twice", name)
		}
		m.reg[name] = p
		m.order = append(m.order, name)
	}
	return nil
}

// Register attaches every queued plugin to root. The first failure stops the
// whole registration; the tree is then unusable and the host should exit.
func (m *Manager) Register(root *command.Node) error {
	for _, name := range m.order {
		p := m.reg[name]
		before := topLevel(root)
		start := time.Now()
		if err := p.Register(root); err != nil {
			m.log.Error("plugin registration failed", logx.String("plugin", name), logx.Err(err))
			return fmt.Errorf("plugin %s: %w", name, err)
		}
		added := diffNames(before, topLevel(root))
		m.added[name] = added
		m.log.Debug("plugin registered",
			logx.String("plugin", name),
			logx.Strings("commands", added),
			logx.Duration("took", time.Since(start)),
		)
		if m.bus != nil {
			m.bus.Publish(eventbus.Event{
				Type: EventRegistered,
				Time: time.Now(),
				Attrs: map[string]string{
					"plugin":   name,
					"commands": strings.Join(added, ","),
				},
			})
		}
	}
	return nil
}

// Names lists plugins in registration order.
func (m *Manager) Names() []string { return append([]string(nil), m.order...) }

// Contributed returns the top-level command names a plugin added.
func (m *Manager) Contributed(name string) []string {
	return append([]string(nil), m.added[strings.ToLower(name)]...)
}

// Branch returns parent's child branch called name, creating it when absent.
func Branch(parent *command.Node, name, short, help string) (*command.Node, error) {
	if n := parent.Child(name); n != nil {
		if n.IsLeaf() {
			return nil, fmt.Errorf("%q exists and is not a branch", name)
		}
		return n, nil
	}
	n := command.NewBranch(name, short, help)
	if err := parent.Register(n); err != nil {
		return nil, err
	}
	return n, nil
}

func topLevel(root *command.Node) map[string]bool {
	out := map[string]bool{}
	for _, c := range root.Children() {
		out[c.Name()] = true
	}
	return out
}

func diffNames(before, after map[string]bool) []string {
	var out []string
	for n := range after {
		if !before[n] {
			out = append(out, n)
		}
	}
	sort.Strings(out)
	return out
}
