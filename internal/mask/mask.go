// Package mask provides copy-on-write views of the world.
//
// A Manager hands out one Proxy per tree handle. Reads fall through the
// proxy's overlay, then the parent manager (for forks), then the live tree.
// Writes land in the overlay only. Nothing reaches the tree until the
// manager is committed, so speculative rule evaluation can be thrown away
// at any point without a trace.
package mask

import (
	"errors"
	"fmt"
	"slices"

	"github.com/roach88/tabletop/internal/ir"
	"github.com/roach88/tabletop/internal/tree"
)

// ErrForeignProxy is returned when a proxy is used with a manager that did
// not create it.
var ErrForeignProxy = errors.New("proxy belongs to a different mask manager")

// Manager owns a set of overlays over a tree, or over a parent manager.
type Manager struct {
	tree    *tree.Tree
	parent  *Manager
	proxies map[tree.Handle]*Proxy
}

// New creates a root manager over t.
func New(t *tree.Tree) *Manager {
	return &Manager{tree: t, proxies: make(map[tree.Handle]*Proxy)}
}

// Fork layers a child manager over m. The child sees m's overlays; its own
// writes stay private until Commit promotes them into m.
func (m *Manager) Fork() *Manager {
	return &Manager{tree: m.tree, parent: m, proxies: make(map[tree.Handle]*Proxy)}
}

// Parent returns the manager this one was forked from, nil for a root manager.
func (m *Manager) Parent() *Manager {
	return m.parent
}

// Tree returns the live tree under every layer.
func (m *Manager) Tree() *tree.Tree {
	return m.tree
}

// Get returns the memoized proxy for h.
func (m *Manager) Get(h tree.Handle) *Proxy {
	if p, ok := m.proxies[h]; ok {
		return p
	}
	p := &Proxy{m: m, h: h}
	m.proxies[h] = p
	return p
}

// Mask returns p unchanged when m created it. Masking a proxy is idempotent;
// proxies of another manager are rejected.
func (m *Manager) Mask(p *Proxy) (*Proxy, error) {
	if p.m != m {
		return nil, fmt.Errorf("mask %s: %w", m.tree.Key(p.h), ErrForeignProxy)
	}
	return p, nil
}

// Dirty reports whether any proxy holds an overlay write.
func (m *Manager) Dirty() bool {
	for _, p := range m.proxies {
		if p.dirty() {
			return true
		}
	}
	return false
}

// CommitProxy promotes one proxy's overlay and clears it.
func (m *Manager) CommitProxy(p *Proxy) error {
	if _, err := m.Mask(p); err != nil {
		return err
	}
	m.promote(p)
	return nil
}

// DiscardProxy drops one proxy's overlay.
func (m *Manager) DiscardProxy(p *Proxy) error {
	if _, err := m.Mask(p); err != nil {
		return err
	}
	p.reset()
	return nil
}

// Commit promotes every overlay one level down: into the parent manager
// for a fork, into the live tree for a root manager. Overlays are applied
// in handle order.
func (m *Manager) Commit() {
	handles := make([]tree.Handle, 0, len(m.proxies))
	for h := range m.proxies {
		handles = append(handles, h)
	}
	slices.Sort(handles)
	for _, h := range handles {
		m.promote(m.proxies[h])
	}
}

// CommitAll commits m and every ancestor, so the overlay chain lands in the
// live tree.
func (m *Manager) CommitAll() {
	for cur := m; cur != nil; cur = cur.parent {
		cur.Commit()
	}
}

// Discard drops every overlay.
func (m *Manager) Discard() {
	for _, p := range m.proxies {
		p.reset()
	}
}

func (m *Manager) promote(p *Proxy) {
	if !p.dirty() {
		return
	}
	if m.parent != nil {
		dst := m.parent.Get(p.h)
		for _, k := range p.deleted {
			dst.DeleteProp(k)
		}
		for _, k := range p.props.SortedKeys() {
			dst.SetProp(k, p.props[k])
		}
		if p.hidden != nil {
			dst.SetHidden(*p.hidden)
		}
	} else {
		for _, k := range p.deleted {
			m.tree.DeleteProp(p.h, k)
		}
		for _, k := range p.props.SortedKeys() {
			m.tree.SetProp(p.h, k, ir.Clone(p.props[k]))
		}
		if p.hidden != nil {
			m.tree.SetHidden(p.h, *p.hidden)
		}
	}
	p.reset()
}

// lookup reads a prop through the layers below m, without creating proxies.
func (m *Manager) lookup(h tree.Handle, key string) (ir.IRValue, bool) {
	for cur := m; cur != nil; cur = cur.parent {
		if p, ok := cur.proxies[h]; ok {
			if v, ok := p.props[key]; ok {
				return v, true
			}
			if slices.Contains(p.deleted, key) {
				return nil, false
			}
		}
	}
	return m.tree.Prop(h, key)
}

func (m *Manager) lookupHidden(h tree.Handle) bool {
	for cur := m; cur != nil; cur = cur.parent {
		if p, ok := cur.proxies[h]; ok && p.hidden != nil {
			return *p.hidden
		}
	}
	return m.tree.Hidden(h)
}
