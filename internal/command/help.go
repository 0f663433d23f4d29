package command

import "strings"

// Help lists one line per leaf in registration order:
// the full path (aliases in parentheses) followed by the leaf's help text.
func (d *Dispatcher) Help() []string {
	var out []string
	var walk func(n *Node, prefix []string)
	walk = func(n *Node, prefix []string) {
		for _, c := range n.children {
			p := append(append([]string(nil), prefix...), c.display())
			if !c.branch {
				out = append(out, strings.TrimSpace(strings.Join(p, " ")+" "+c.help))
				continue
			}
			walk(c, p)
		}
	}
	walk(d.root, nil)
	return out
}
