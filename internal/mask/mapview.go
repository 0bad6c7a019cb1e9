package mask

import (
	"cmp"
	"maps"
	"slices"
)

// MapView is a copy-on-write view over a plain Go map, bound to a manager
// so it shares the manager's lifetime rules. Forks of a view see the
// parent view's writes; nothing reaches the base map until Commit.
type MapView[K cmp.Ordered, V any] struct {
	m       *Manager
	base    map[K]V
	parent  *MapView[K, V]
	writes  map[K]V
	deleted map[K]bool
}

// NewMapView wraps base. base is never written except by Commit on a view
// with no parent.
func NewMapView[K cmp.Ordered, V any](m *Manager, base map[K]V) *MapView[K, V] {
	return &MapView[K, V]{m: m, base: base, writes: map[K]V{}, deleted: map[K]bool{}}
}

// Fork layers a child view bound to a (usually forked) manager.
func (v *MapView[K, V]) Fork(m *Manager) *MapView[K, V] {
	return &MapView[K, V]{m: m, base: v.base, parent: v, writes: map[K]V{}, deleted: map[K]bool{}}
}

// Manager returns the manager the view is bound to.
func (v *MapView[K, V]) Manager() *Manager {
	return v.m
}

// Get reads through the overlay chain.
func (v *MapView[K, V]) Get(k K) (V, bool) {
	for cur := v; cur != nil; cur = cur.parent {
		if val, ok := cur.writes[k]; ok {
			return val, true
		}
		if cur.deleted[k] {
			var zero V
			return zero, false
		}
	}
	val, ok := v.base[k]
	return val, ok
}

// Has reports whether k is present.
func (v *MapView[K, V]) Has(k K) bool {
	_, ok := v.Get(k)
	return ok
}

// Put writes into the overlay.
func (v *MapView[K, V]) Put(k K, val V) {
	v.writes[k] = val
	delete(v.deleted, k)
}

// Delete masks k as absent.
func (v *MapView[K, V]) Delete(k K) {
	delete(v.writes, k)
	v.deleted[k] = true
}

// Keys returns the visible keys, sorted.
func (v *MapView[K, V]) Keys() []K {
	seen := make(map[K]bool)
	var out []K
	for k := range v.base {
		if v.Has(k) && !seen[k] {
			seen[k] = true
			out = append(out, k)
		}
	}
	for cur := v; cur != nil; cur = cur.parent {
		for k := range cur.writes {
			if v.Has(k) && !seen[k] {
				seen[k] = true
				out = append(out, k)
			}
		}
	}
	slices.Sort(out)
	return out
}

// Len returns the number of visible keys.
func (v *MapView[K, V]) Len() int {
	return len(v.Keys())
}

// Deleted returns keys present in the base map but masked away by this
// view or its parents, sorted.
func (v *MapView[K, V]) Deleted() []K {
	var out []K
	for k := range v.base {
		if !v.Has(k) {
			out = append(out, k)
		}
	}
	slices.Sort(out)
	return out
}

// Original returns the unmasked base map. Callers must not write to it.
func (v *MapView[K, V]) Original() map[K]V {
	return v.base
}

// Commit promotes this view's overlay into its parent view, or into the
// base map for a top-level view.
func (v *MapView[K, V]) Commit() {
	if v.parent != nil {
		for k := range v.deleted {
			v.parent.Delete(k)
		}
		for _, k := range slices.Sorted(maps.Keys(v.writes)) {
			v.parent.Put(k, v.writes[k])
		}
	} else {
		for k := range v.deleted {
			delete(v.base, k)
		}
		for k, val := range v.writes {
			v.base[k] = val
		}
	}
	v.writes = map[K]V{}
	v.deleted = map[K]bool{}
}

// Discard drops this view's overlay.
func (v *MapView[K, V]) Discard() {
	v.writes = map[K]V{}
	v.deleted = map[K]bool{}
}
