// Package sig is a push/pull reactive signals runtime: writable cells,
// cached computed signals, eager subscriptions and effects, and weak
// self-referential handles, all built on top of internal/engine's
// dependency-tracking propagator.
package sig

import (
	"log/slog"
	"sync"

	"github.com/AnatoleLucet/sig/internal/engine"
)

func as[T any](v any) T {
	if v == nil {
		var zero T
		return zero
	}
	return v.(T)
}

var logger = slog.New(slog.DiscardHandler)

// SetLogger installs the structured logger held by this package (nil
// restores a discarding one). Nothing in this package or in the engine
// writes to it: propagation cycles and node drops are not logged.
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = slog.New(slog.DiscardHandler)
	}
	logger = l
}

var defaultRuntime = sync.OnceValue(func() *engine.Runtime {
	return engine.NewRuntime()
})

// DefaultRuntime is the process-wide runtime new signals attach to unless a
// Scope says otherwise.
func DefaultRuntime() *engine.Runtime { return defaultRuntime() }

// Scope is an isolated runtime reference: constructing cells/computeds
// through a Scope keeps its graph independent of DefaultRuntime, which is
// useful for tests that would otherwise interfere with each other.
type Scope struct {
	rt *engine.Runtime
}

// NewScope allocates a fresh, independent runtime.
func NewScope() *Scope { return &Scope{rt: engine.NewRuntime()} }

// NewLocalScope allocates a fresh runtime pinned to the calling goroutine;
// SetBlocking, SetBlockingDistinct, SetAsync and Update from any other
// goroutine panic (engine.ErrCrossGoroutine). Reads and other writes are not
// checked.
func NewLocalScope() *Scope { return &Scope{rt: engine.NewLocalRuntime()} }

func (s *Scope) runtime() *engine.Runtime {
	if s == nil {
		return DefaultRuntime()
	}
	return s.rt
}

// Batch defers propagation from every write inside fn until fn returns,
// coalescing multiple writes into a single refresh cycle (spec.md §4.7).
func Batch(fn func()) { DefaultRuntime().Batch(fn) }

// Batch is the Scope-bound equivalent of the package-level Batch.
func (s *Scope) Batch(fn func()) { s.runtime().Batch(fn) }

// Directive is the propagation decision a Reactive[T]'s on-change callback
// hands back to the propagator (spec.md §4.6).
type Directive = engine.Directive

const (
	Propagate = engine.Propagate
	Halt      = engine.Halt
	FlushOut  = engine.FlushOut
)

// Source is the uniform read interface implemented by Cell[T], Computed[T],
// and Subscription[T], mirroring the original crate's upcasting trait
// (flourish/src/source.rs) so callers can hold one without caring which
// concrete wrapper produced it.
type Source[T any] interface {
	Get() T
	Touch()
	CloneRuntimeRef() *engine.Runtime
}

// AsSource upcasts any of this package's readable handles to a Source[T].
func AsSource[T any](x Source[T]) Source[T] { return x }

// Cell is a writable leaf signal.
type Cell[T any] struct {
	node *engine.Node
}

// NewCell creates a writable leaf holding initial.
func NewCell[T any](initial T) *Cell[T] {
	return &Cell[T]{node: DefaultRuntime().NewCell(initial)}
}


// Get reads the current value, registering a dependency if called from
// within a computed/effect/subscription closure.
func (c *Cell[T]) Get() T { return as[T](c.node.Get()) }

// GetClone is Get, but copies pointer/slice/map-shaped values one level deep
// so the caller cannot mutate the engine's cached slot through that
// reference; anything the copied elements point to stays shared.
func (c *Cell[T]) GetClone() T { return as[T](c.node.GetClone()) }

// Touch refreshes the cell and registers the dependency without returning
// its value.
func (c *Cell[T]) Touch() { c.node.Touch() }

// Read returns a scoped borrow of the current value (spec.md §4.9).
func (c *Cell[T]) Read() *Guard[T] { return &Guard[T]{g: c.node.Read()} }

// SetBlocking writes val and does not return until the resulting
// propagation cycle completes (or the write is merely staged within an
// enclosing batch).
func (c *Cell[T]) SetBlocking(val T) { c.node.SetBlocking(val) }

// SetBlockingDistinct is SetBlocking, discarding the write if val equals the
// cell's current value.
func (c *Cell[T]) SetBlockingDistinct(val T) { c.node.SetBlockingDistinct(val) }

// Set writes val; propagation starts synchronously but Set does not wait
// for it to finish.
func (c *Cell[T]) Set(val T) { c.node.Set(val) }

// SetDistinct is Set, discarding the write if val equals the cell's current
// value.
func (c *Cell[T]) SetDistinct(val T) { c.node.SetDistinct(val) }

// SetAsync writes val and returns a channel that closes once the resulting
// propagation cycle completes.
func (c *Cell[T]) SetAsync(val T) <-chan struct{} { return c.node.SetAsync(val) }

// Update runs fn with the current value and applies fn's result per the
// returned Directive: Halt writes the value and marks dependents stale
// without eagerly refreshing them, Propagate/FlushOut write and propagate as
// usual (with FlushOut additionally arming a one-shot teardown refresh,
// spec.md §4.6).
func (c *Cell[T]) Update(fn func(cur T) (T, Directive)) {
	c.node.Update(func(old any) (any, engine.Directive) {
		return fn(as[T](old))
	})
}

// Subscribe opens a direct subscription, pulling the cell eagerly refreshed
// for as long as the handle stays open.
func (c *Cell[T]) Subscribe() engine.Handle { return c.node.Subscribe() }

// Downgrade produces a non-owning Weak[T] reference to the cell.
func (c *Cell[T]) Downgrade() Weak[T] { return Weak[T]{w: c.node.Downgrade()} }

// CloneRuntimeRef returns the runtime this cell belongs to.
func (c *Cell[T]) CloneRuntimeRef() *engine.Runtime { return c.node.CloneRuntimeRef() }

// Computed is a cached signal whose value is derived from other signals.
type Computed[T any] struct {
	node *engine.Node
}

// NewComputed creates a cached computed signal that recomputes lazily: it
// is left alone until read or subscribed to.
func NewComputed[T any](compute func() T) *Computed[T] {
	node := DefaultRuntime().NewComputed(func(*engine.Node) (any, error) {
		return compute(), nil
	})
	return &Computed[T]{node: node}
}

// NewComputedDistinct is NewComputed, opting into downstream short-circuiting
// when a refresh produces an unchanged value (spec.md §4.2 step 4).
func NewComputedDistinct[T any](compute func() T) *Computed[T] {
	c := NewComputed(compute)
	c.node.MarkDistinct()
	return c
}

// NewFallibleComputed is NewComputed for a closure that can fail; the most
// recent error is available via Err.
func NewFallibleComputed[T any](compute func() (T, error)) *Computed[T] {
	node := DefaultRuntime().NewComputed(func(*engine.Node) (any, error) {
		return compute()
	})
	return &Computed[T]{node: node}
}

// Get reads the cached value, recomputing first if stale.
func (c *Computed[T]) Get() T { return as[T](c.node.Get()) }

// GetClone is Get with a defensive one-level copy of pointer/slice/map values.
func (c *Computed[T]) GetClone() T { return as[T](c.node.GetClone()) }

// Touch recomputes if stale and registers the dependency without returning
// the value.
func (c *Computed[T]) Touch() { c.node.Touch() }

// Read returns a scoped borrow of the current value.
func (c *Computed[T]) Read() *Guard[T] { return &Guard[T]{g: c.node.Read()} }

// Subscribe keeps the computed eagerly refreshed for as long as the handle
// stays open.
func (c *Computed[T]) Subscribe() engine.Handle { return c.node.Subscribe() }

// Downgrade produces a non-owning Weak[T] reference to the computed.
func (c *Computed[T]) Downgrade() Weak[T] { return Weak[T]{w: c.node.Downgrade()} }

// CloneRuntimeRef returns the runtime this computed belongs to.
func (c *Computed[T]) CloneRuntimeRef() *engine.Runtime { return c.node.CloneRuntimeRef() }

// Err returns the error from the computed's most recent refresh, if its
// closure was created with NewFallibleComputed.
func (c *Computed[T]) Err() error { return c.node.LastError() }

// UncachedComputed re-evaluates fn on every read: it is fully transparent to
// the dependency graph, attributing its reads directly to whichever frame
// invoked it, and never interposes a node of its own (spec.md §8 scenario 1;
// confirmed against the original crate's flourish/tests/heap.rs).
type UncachedComputed[T any] struct {
	compute func() T
}

// NewUncachedComputed wraps fn as an always-fresh, graph-transparent
// derivation.
func NewUncachedComputed[T any](fn func() T) *UncachedComputed[T] {
	return &UncachedComputed[T]{compute: fn}
}

// Get runs fn and returns its result, with any reads inside fn attributed to
// the caller's own tracking frame.
func (u *UncachedComputed[T]) Get() T { return u.compute() }

// Reactive is a writable leaf whose on-change callback fires on subscription
// status transitions rather than on writes (spec.md §4.6).
type Reactive[T any] struct {
	node *engine.Node
}

// NewReactive creates a reactive cell. onChange is invoked with the current
// value and whether the cell just became subscribed (true) or just lost its
// last subscriber (false), and returns the value to store plus a Directive.
func NewReactive[T any](initial T, onChange func(cur T, subscribed bool) (T, Directive)) *Reactive[T] {
	node := DefaultRuntime().NewReactive(initial, func(old any, subscribed bool) (any, engine.Directive) {
		v, d := onChange(as[T](old), subscribed)
		return v, d
	})
	return &Reactive[T]{node: node}
}

// Get reads the current value.
func (r *Reactive[T]) Get() T { return as[T](r.node.Get()) }

// Touch refreshes and registers the dependency without returning the value.
func (r *Reactive[T]) Touch() { r.node.Touch() }

// Read returns a scoped borrow of the current value.
func (r *Reactive[T]) Read() *Guard[T] { return &Guard[T]{g: r.node.Read()} }

// Subscribe opens a direct subscription, running onChange with subscribed=true
// if this is the first subscriber.
func (r *Reactive[T]) Subscribe() engine.Handle { return r.node.Subscribe() }

// Downgrade produces a non-owning Weak[T] reference to the reactive cell.
func (r *Reactive[T]) Downgrade() Weak[T] { return Weak[T]{w: r.node.Downgrade()} }

// CloneRuntimeRef returns the runtime this reactive cell belongs to.
func (r *Reactive[T]) CloneRuntimeRef() *engine.Runtime { return r.node.CloneRuntimeRef() }

// NewCyclicReactive constructs a Reactive[T] whose onChange callback can
// hold a weak handle back to the cell itself, for self-referential state
// machines (spec.md §8 scenario 5, original crate's flourish/tests/heap.rs
// and heap_dyn.rs — "heap" there names the Rust Rc/Arc cyclic pattern,
// unrelated to this module's height-bucket heap).
func NewCyclicReactive[T any](build func(self *Weak[T]) (initial T, onChange func(cur T, subscribed bool) (T, Directive))) *Reactive[T] {
	r := &Reactive[T]{}
	weakSelf := new(Weak[T])
	initial, onChange := build(weakSelf)
	r.node = DefaultRuntime().NewReactive(initial, func(old any, subscribed bool) (any, engine.Directive) {
		v, d := onChange(as[T](old), subscribed)
		return v, d
	})
	*weakSelf = r.node.Downgrade()
	return r
}

// Subscription is an eagerly-refreshed mirror of another signal's value.
type Subscription[T any] struct {
	node   *engine.Node
	closed bool
}

// NewSubscription opens a subscription to src, keeping it eagerly refreshed
// for as long as the Subscription stays open.
func NewSubscription[T any](src Source[T]) *Subscription[T] {
	var srcNode *engine.Node
	switch s := src.(type) {
	case *Cell[T]:
		srcNode = s.node
	case *Computed[T]:
		srcNode = s.node
	case *Reactive[T]:
		srcNode = s.node
	case *Subscription[T]:
		srcNode = s.node
	default:
		panic("sig: NewSubscription requires a Cell, Computed, Reactive, or Subscription")
	}
	return &Subscription[T]{node: srcNode.CloneRuntimeRef().NewSubscription(srcNode)}
}

// Get reads the mirrored value.
func (s *Subscription[T]) Get() T { return as[T](s.node.Get()) }

// Touch refreshes and registers the dependency without returning the value.
func (s *Subscription[T]) Touch() { s.node.Touch() }

// CloneRuntimeRef returns the runtime this subscription belongs to.
func (s *Subscription[T]) CloneRuntimeRef() *engine.Runtime { return s.node.CloneRuntimeRef() }

// Close ends the subscription.
func (s *Subscription[T]) Close() {
	if s.closed {
		return
	}
	s.closed = true
	s.node.Drop()
}

// Effect is an eagerly-refreshed side-effecting closure.
type Effect struct {
	node   *engine.Node
	closed bool
}

// NewEffect runs fn once immediately, establishing its dependency set, and
// re-runs it every time one of those dependencies changes, until Close is
// called.
func NewEffect(fn func()) *Effect {
	node := DefaultRuntime().NewEffect(func() (any, error) {
		fn()
		return nil, nil
	}, nil)
	return &Effect{node: node}
}

// NewFallibleEffect is NewEffect for a closure that can fail; the most
// recent error is available via Err.
func NewFallibleEffect(fn func() error) *Effect {
	node := DefaultRuntime().NewEffect(func() (any, error) {
		return nil, fn()
	}, nil)
	return &Effect{node: node}
}

// NewEffectWithTeardown is NewEffect, running teardown with the previous
// run's result immediately before each re-run and once more when the effect
// is closed.
func NewEffectWithTeardown[T any](setup func() T, teardown func(prev T)) *Effect {
	node := DefaultRuntime().NewEffect(func() (any, error) {
		return setup(), nil
	}, func(prev any) {
		teardown(as[T](prev))
	})
	return &Effect{node: node}
}

// Err returns the error from the effect's most recent run, if its setup
// closure returns one.
func (e *Effect) Err() error { return e.node.LastError() }

// Close tears the effect down, running its teardown closure one final time
// if it has one.
func (e *Effect) Close() {
	if e.closed {
		return
	}
	e.closed = true
	e.node.Drop()
}

// Guard is a scoped borrow of a signal's current value (spec.md §4.9). It
// must be released before the signal it borrowed from is allowed to refresh
// again through this borrow's goroutine.
type Guard[T any] struct {
	g engine.Guard
}

// Value returns the borrowed value.
func (g *Guard[T]) Value() T { return as[T](g.g.Value()) }

// Release ends the borrow.
func (g *Guard[T]) Release() { g.g.Release() }

// Weak is a non-owning reference into the registry (spec.md §4.8, §9).
type Weak[T any] struct {
	w engine.Weak
}

// Upgrade returns a strong, read-only UpgradedWeak[T] accessor, or ok=false
// if the referenced node has since been dropped.
func (w Weak[T]) Upgrade() (UpgradedWeak[T], bool) {
	n, ok := w.w.Upgrade()
	if !ok {
		return UpgradedWeak[T]{}, false
	}
	return UpgradedWeak[T]{node: n}, true
}

// NewCellIn is NewCell, attached to s's runtime instead of DefaultRuntime.
// Go methods cannot carry their own type parameters, so Scope-bound
// constructors are free functions taking the Scope as their first argument.
func NewCellIn[T any](s *Scope, initial T) *Cell[T] {
	return &Cell[T]{node: s.runtime().NewCell(initial)}
}

// NewComputedIn is NewComputed, attached to s's runtime.
func NewComputedIn[T any](s *Scope, compute func() T) *Computed[T] {
	node := s.runtime().NewComputed(func(*engine.Node) (any, error) {
		return compute(), nil
	})
	return &Computed[T]{node: node}
}

// NewReactiveIn is NewReactive, attached to s's runtime.
func NewReactiveIn[T any](s *Scope, initial T, onChange func(cur T, subscribed bool) (T, Directive)) *Reactive[T] {
	node := s.runtime().NewReactive(initial, func(old any, subscribed bool) (any, engine.Directive) {
		return onChange(as[T](old), subscribed)
	})
	return &Reactive[T]{node: node}
}

// NewEffectIn is NewEffect, attached to s's runtime.
func NewEffectIn(s *Scope, fn func()) *Effect {
	node := s.runtime().NewEffect(func() (any, error) {
		fn()
		return nil, nil
	}, nil)
	return &Effect{node: node}
}

// UpgradedWeak is the strong handle returned by Weak[T].Upgrade: a read-only
// view since a weak reference does not know which concrete wrapper kind
// produced the node it references.
type UpgradedWeak[T any] struct {
	node *engine.Node
}

// Get reads the current value.
func (u UpgradedWeak[T]) Get() T { return as[T](u.node.Get()) }

// Touch refreshes and registers the dependency without returning the value.
func (u UpgradedWeak[T]) Touch() { u.node.Touch() }

// CloneRuntimeRef returns the runtime the referenced node belongs to.
func (u UpgradedWeak[T]) CloneRuntimeRef() *engine.Runtime { return u.node.CloneRuntimeRef() }
