package engine

// Weak is a non-owning reference into the registry: a (node, generation)
// pair, as described in spec.md §9. It can be upgraded to a strong *Node
// only while the node has not been dropped.
type Weak struct {
	n          *Node
	generation uint64
}

// Downgrade produces a Weak handle to n that does not contribute to n's
// owning-handle count.
func (n *Node) Downgrade() Weak {
	n.valueMu.RLock()
	gen := n.generation
	n.valueMu.RUnlock()
	return Weak{n: n, generation: gen}
}

// Upgrade returns the strong node reference, or (nil, false) if the node has
// since been dropped (spec.md §7 "Upgrade-after-drop").
func (w Weak) Upgrade() (*Node, bool) {
	w.n.rt.mu.Lock()
	dropped := w.n.state == StateDropped
	w.n.rt.mu.Unlock()
	if dropped {
		return nil, false
	}
	return w.n, true
}
