package command

import (
	"strings"
)

// Node is one element of the command tree: a branch (children, no strategy)
// or a leaf (strategy, no children). The root is a nameless branch.
//
// Names and aliases are matched case-insensitively and are unique among
// siblings.
type Node struct {
	name     string
	short    string
	help     string
	minArgs  int
	strategy Strategy

	branch   bool
	parent   *Node
	children []*Node
	index    map[string]*Node
	frozen   bool
}

func NewRoot() *Node {
	return &Node{branch: true, index: map[string]*Node{}}
}

func NewBranch(name, short, help string) *Node {
	return &Node{
		name:   normalizeName(name),
		short:  normalizeName(short),
		help:   strings.TrimSpace(help),
		branch: true,
		index:  map[string]*Node{},
	}
}

// NewLeaf creates an executable node. minArgs is the number of trailing
// arguments the leaf needs at least.
func NewLeaf(name, short string, s Strategy, minArgs int, help string) *Node {
	return &Node{
		name:     normalizeName(name),
		short:    normalizeName(short),
		help:     strings.TrimSpace(help),
		minArgs:  max(0, minArgs),
		strategy: s,
	}
}

func normalizeName(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

func (n *Node) Name() string       { return n.name }
func (n *Node) ShortName() string  { return n.short }
func (n *Node) Help() string       { return n.help }
func (n *Node) MinArgs() int       { return n.minArgs }
func (n *Node) Strategy() Strategy { return n.strategy }
func (n *Node) IsLeaf() bool       { return !n.branch }
func (n *Node) Parent() *Node      { return n.parent }

// Children returns children in registration order.
func (n *Node) Children() []*Node { return append([]*Node(nil), n.children...) }

// Child finds a direct child by name or alias.
func (n *Node) Child(token string) *Node {
	if n.index == nil {
		return nil
	}
	return n.index[normalizeName(token)]
}

// Path returns canonical names from the root down to n.
func (n *Node) Path() []string {
	var out []string
	for cur := n; cur != nil && cur.parent != nil; cur = cur.parent {
		out = append(out, cur.name)
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// Register attaches children under n, in order. Nothing is attached if any
// child is rejected.
func (n *Node) Register(children ...*Node) error {
	path := n.Path()
	if n.frozen {
		return configErr(path, "tree is read-only once a dispatcher owns it")
	}
	if !n.branch {
		return configErr(path, "cannot register children on a leaf")
	}

	pending := map[string]*Node{}
	taken := func(key string) bool {
		if key == "" {
			return false
		}
		_, a := n.index[key]
		_, b := pending[key]
		return a || b
	}
	for _, c := range children {
		if c == nil {
			return configErr(path, "nil child")
		}
		if c.name == "" {
			return configErr(path, "child without a name")
		}
		if c.parent != nil || c == n {
			return configErr(append(path, c.name), "node is already registered")
		}
		if c.name == c.short {
			return configErr(append(path, c.name), "alias equals name")
		}
		if taken(c.name) {
			return configErr(append(path, c.name), "name collides with a sibling")
		}
		if taken(c.short) {
			return configErr(append(path, c.name), "alias %q collides with a sibling", c.short)
		}
		pending[c.name] = c
		if c.short != "" {
			pending[c.short] = c
		}
	}

	for _, c := range children {
		c.parent = n
		n.children = append(n.children, c)
		n.index[c.name] = c
		if c.short != "" {
			n.index[c.short] = c
		}
	}
	return nil
}

// walk visits n and its descendants depth-first in registration order.
func (n *Node) walk(fn func(*Node) error) error {
	if err := fn(n); err != nil {
		return err
	}
	for _, c := range n.children {
		if err := c.walk(fn); err != nil {
			return err
		}
	}
	return nil
}

// display renders a path element as name or name(alias).
func (n *Node) display() string {
	if n.short == "" {
		return n.name
	}
	return n.name + "(" + n.short + ")"
}
