package command

import (
	"context"
	"strings"

	"github.com/agnivade/levenshtein"
	"github.com/oklog/ulid/v2"

	"stockbot/internal/task"
	logx "stockbot/pkg/logx"
)

// Dispatcher resolves token sequences against a validated, read-only tree.
type Dispatcher struct {
	root   *Node
	runner *task.Runner
	log    logx.Logger
	mws    []Middleware
}

type Option func(*Dispatcher)

func WithRunner(r *task.Runner) Option { return func(d *Dispatcher) { d.runner = r } }

func WithLogger(l logx.Logger) Option { return func(d *Dispatcher) { d.log = l } }

// WithMiddleware wraps every Blocking and NonBlocking handler.
func WithMiddleware(mws ...Middleware) Option {
	return func(d *Dispatcher) { d.mws = append(d.mws, mws...) }
}

// NewDispatcher validates the tree under root and freezes it.
func NewDispatcher(root *Node, opts ...Option) (*Dispatcher, error) {
	if root == nil || root.parent != nil || !root.branch {
		return nil, configErr(nil, "root must be a parentless branch")
	}
	d := &Dispatcher{root: root}
	for _, o := range opts {
		if o != nil {
			o(d)
		}
	}
	if d.log.IsZero() {
		d.log = logx.Nop()
	}
	d.log = d.log.With(logx.String("comp", "dispatcher"))
	if d.runner == nil {
		d.runner = task.NewRunner(d.log, nil)
	}

	if err := d.validate(); err != nil {
		return nil, err
	}
	_ = root.walk(func(n *Node) error {
		n.frozen = true
		return nil
	})
	return d, nil
}

func (d *Dispatcher) Root() *Node          { return d.root }
func (d *Dispatcher) Runner() *task.Runner { return d.runner }

func (d *Dispatcher) validate() error {
	if err := d.root.walk(func(n *Node) error {
		switch {
		case n.branch && len(n.children) == 0:
			return configErr(n.Path(), "branch has no children")
		case !n.branch && n.strategy == nil:
			return configErr(n.Path(), "leaf has no strategy")
		}
		return nil
	}); err != nil {
		return err
	}

	return d.root.walk(func(n *Node) error {
		if _, ok := n.strategy.(Proxy); !ok {
			return nil
		}
		seen := map[*Node]bool{}
		cur := n
		for {
			p, ok := cur.strategy.(Proxy)
			if !ok {
				return nil
			}
			if seen[cur] {
				return configErr(n.Path(), "proxy cycle through %q", strings.Join(cur.Path(), " "))
			}
			seen[cur] = true
			if len(p.Target) == 0 {
				return configErr(cur.Path(), "proxy has an empty target")
			}
			res, err := d.Resolve(p.tokens())
			if err != nil {
				return configErr(cur.Path(), "proxy target %q does not resolve to a leaf", strings.Join(p.Target, " "))
			}
			if len(res.Path) < len(p.Target) {
				return configErr(cur.Path(), "proxy target %q passes through a leaf", strings.Join(p.Target, " "))
			}
			cur = res.Leaf
		}
	})
}

// Resolution is the outcome of a side-effect-free lookup.
type Resolution struct {
	Leaf *Node
	Path []string
	Args []string
}

// Resolve walks the tree without invoking anything. It fails with
// ErrUnknownCommand if a token does not match or the input ends on a branch.
func (d *Dispatcher) Resolve(tokens []string) (*Resolution, error) {
	cur := d.root
	i := 0
	for cur.branch {
		if i >= len(tokens) {
			return nil, ErrUnknownCommand
		}
		next := cur.Child(tokens[i])
		if next == nil {
			return nil, ErrUnknownCommand
		}
		cur = next
		i++
	}
	return &Resolution{Leaf: cur, Path: cur.Path(), Args: append([]string(nil), tokens[i:]...)}, nil
}

// Execute resolves tokens and runs the leaf's strategy. The only errors are
// ErrUnknownCommand and *ArgumentCountError; everything else is rendered into
// the Result.
func (d *Dispatcher) Execute(ctx context.Context, tokens []string, ec *ExecContext) (Result, error) {
	res, err := d.Resolve(tokens)
	if err != nil {
		return nil, err
	}
	leaf := res.Leaf
	if len(res.Args) < leaf.minArgs {
		return nil, &ArgumentCountError{Path: res.Path, Help: leaf.help, Want: leaf.minArgs, Got: len(res.Args)}
	}

	if ec == nil {
		ec = &ExecContext{}
	}
	if ec.RequestID == "" {
		ec.RequestID = ulid.Make().String()
	}
	log := ec.Log
	if log.IsZero() {
		log = d.log
	}

	req := &Request{
		Path:       res.Path,
		Args:       res.Args,
		Exec:       ec,
		Dispatcher: d,
		ID:         ec.RequestID,
		Log:        log.With(logx.String("req_id", ec.RequestID)),
	}
	return leaf.strategy.Invoke(ctx, req)
}

func (d *Dispatcher) wrap(h HandlerFunc) HandlerFunc {
	if h == nil {
		h = func(context.Context, *Request) (Result, error) { return nil, nil }
	}
	mws := make([]Middleware, 0, len(d.mws)+1)
	mws = append(mws, Recover())
	mws = append(mws, d.mws...)
	return Chain(h, mws...)
}

// Suggest returns the closest known name for the first token that failed to
// resolve, or "" when nothing is close enough.
func (d *Dispatcher) Suggest(tokens []string) string {
	cur := d.root
	var prefix []string
	for _, tok := range tokens {
		if !cur.branch {
			return ""
		}
		next := cur.Child(tok)
		if next == nil {
			best, bestDist := "", 3
			low := normalizeName(tok)
			for _, c := range cur.children {
				for _, cand := range []string{c.name, c.short} {
					if cand == "" {
						continue
					}
					if dist := levenshtein.ComputeDistance(low, cand); dist < bestDist {
						best, bestDist = c.name, dist
					}
				}
			}
			if best == "" {
				return ""
			}
			return strings.Join(append(prefix, best), " ")
		}
		prefix = append(prefix, next.name)
		cur = next
	}
	return ""
}
