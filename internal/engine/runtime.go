package engine

import (
	"sync"

	"github.com/petermattis/goid"
)

// Tick is the scheduler's logical clock; it advances once per propagation
// cycle and is used only for diagnostics (spec.md's "version" bookkeeping).
type Tick int64

// Config holds the tunables exposed through functional options
// (SPEC_FULL.md §8).
type Config struct {
	initialHeight int
}

// Option configures a Runtime at construction time.
type Option func(*Config)

// WithInitialHeight preallocates the propagator's height buckets, avoiding a
// handful of early growth reallocations for graphs known to be deep.
func WithInitialHeight(n int) Option {
	return func(c *Config) {
		if n > 0 {
			c.initialHeight = n
		}
	}
}

// Runtime owns one node registry: the coarse lock guarding the dependency
// graph, the dependency tracker, the height heap, the batching coordinator,
// and the logical clock. spec.md §5 describes two flavors; both are this
// same type, distinguished only by whether local is set.
type Runtime struct {
	mu sync.Mutex // the "single coarse lock" of spec.md §5

	// flushMu serializes propagation cycles: spec.md §5 requires at most one
	// propagator cycle active globally for a thread-safe runtime, with
	// concurrent writers processed FIFO.
	flushMu sync.Mutex

	ids     idAllocator
	tracker *Tracker
	heap    *heightHeap
	batcher *batcher
	clock   Tick

	scheduled bool

	// flushingGID is the goroutine id currently unwinding flush()'s heap
	// drain loop, or 0 if none. Writes/status-callbacks triggered from
	// inside a refresh on that same goroutine (e.g. an effect writing an
	// unrelated cell, or a reactive cell's callback firing as a side effect
	// of another node's subscription-count change) must not call flush()
	// again — flushMu is not reentrant, and the in-progress drain loop will
	// pick up anything newly seeded into the heap on its own. A different
	// goroutine calling in concurrently still calls flush() and simply
	// queues on flushMu.
	flushingGID int64

	local    bool
	ownerGID int64

	asyncWaiters []chan struct{} // resolved after the cycle they were staged in completes

	reentrancyNode ID // diagnostics slot; no code path assigns it, so it stays zero
}

// NewRuntime constructs a thread-safe runtime: its graph may be touched from
// any goroutine, and its callbacks must be safe to run concurrently with
// reads from other goroutines.
func NewRuntime(opts ...Option) *Runtime {
	cfg := Config{initialHeight: 64}
	for _, o := range opts {
		o(&cfg)
	}
	r := &Runtime{
		tracker: newTracker(),
		heap:    newHeightHeap(),
		batcher: newBatcher(),
	}
	if cfg.initialHeight > 0 {
		r.heap.growTo(cfg.initialHeight)
	}
	return r
}

// NewLocalRuntime constructs a single-thread runtime pinned to the calling
// goroutine. SetBlocking, SetBlockingDistinct, SetAsync and Update on one of
// its nodes panic with ErrCrossGoroutine when called from a different
// goroutine; reads, Set, SetDistinct, Subscribe and Batch do not check the
// calling goroutine.
func NewLocalRuntime(opts ...Option) *Runtime {
	r := NewRuntime(opts...)
	r.local = true
	r.ownerGID = goid.Get()
	return r
}

// Clone returns a new handle to the same underlying runtime (spec.md's
// clone_runtime_ref). Because Runtime has no handle-local state, Clone just
// returns the receiver; the method exists so callers can treat "a runtime
// reference" as its own type per the §6 external interface.
func (r *Runtime) Clone() *Runtime { return r }

func (r *Runtime) checkGoroutine() {
	if r.local && goid.Get() != r.ownerGID {
		panic(ErrCrossGoroutine)
	}
}

func (r *Runtime) newID() ID { return r.ids.allocate() }
