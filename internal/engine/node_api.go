package engine

import "reflect"

// Touch refreshes n if stale and registers it as a dependency of the
// currently evaluating frame, without returning its value. Useful for a
// caller that only wants the tracking side effect of a read.
func (n *Node) Touch() {
	g := n.Read()
	g.Release()
}

// Get reads n's current value, registering a dependency if a frame is
// active, and returns the boxed value directly rather than through a Guard.
// Use Read instead when the value is large enough that copying it on every
// read is undesirable.
func (n *Node) Get() any {
	g := n.Read()
	defer g.Release()
	return g.Value()
}

// GetClone is Get, but copies the result one level deep via reflection when
// the underlying value is a pointer, slice, or map (a new pointee, backing
// array, or map), so the caller cannot mutate the engine's cached slot
// through that reference. Anything the copied elements point to stays shared.
func (n *Node) GetClone() any {
	v := n.Get()
	if v == nil {
		return nil
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr:
		if rv.IsNil() {
			return v
		}
		clone := reflect.New(rv.Elem().Type())
		clone.Elem().Set(rv.Elem())
		return clone.Interface()
	case reflect.Slice:
		if rv.IsNil() {
			return v
		}
		clone := reflect.MakeSlice(rv.Type(), rv.Len(), rv.Len())
		reflect.Copy(clone, rv)
		return clone.Interface()
	case reflect.Map:
		if rv.IsNil() {
			return v
		}
		clone := reflect.MakeMapWithSize(rv.Type(), rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			clone.SetMapIndex(iter.Key(), iter.Value())
		}
		return clone.Interface()
	default:
		return v
	}
}

// LastError returns the error from the node's most recent compute, if any.
func (n *Node) LastError() error {
	n.rt.mu.Lock()
	defer n.rt.mu.Unlock()
	return n.err
}

// CloneRuntimeRef returns the runtime this node belongs to (spec.md §6
// "Runtime handle: clone_runtime_ref").
func (n *Node) CloneRuntimeRef() *Runtime { return n.rt.Clone() }
