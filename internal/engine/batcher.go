package engine

// batcher implements the update-coalescing hint of spec.md §4.7: while
// depth > 0, writes still update their cell's value immediately but defer
// the propagation cycle to when the outermost Batch scope exits.
type batcher struct {
	depth int
}

func newBatcher() *batcher {
	return &batcher{}
}

func (b *batcher) active() bool { return b.depth > 0 }

// Batch defers propagation for the duration of fn; when the outermost nested
// Batch call returns, it runs one flush covering every write staged inside.
func (r *Runtime) Batch(fn func()) {
	r.mu.Lock()
	r.batcher.depth++
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.batcher.depth--
		depth := r.batcher.depth
		r.mu.Unlock()

		if depth == 0 {
			r.flush()
		}
	}()

	fn()
}
