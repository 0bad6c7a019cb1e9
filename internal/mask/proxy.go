package mask

import (
	"slices"

	"github.com/roach88/tabletop/internal/ir"
	"github.com/roach88/tabletop/internal/tree"
)

// Proxy is a masked view of one node. Structure (parent, children) is not
// maskable; only props and the hidden flag are.
type Proxy struct {
	m       *Manager
	h       tree.Handle
	props   ir.IRObject
	deleted []string
	hidden  *bool
}

// Original returns the handle of the real node.
func (p *Proxy) Original() tree.Handle {
	return p.h
}

// Manager returns the manager that created p.
func (p *Proxy) Manager() *Manager {
	return p.m
}

// Key returns the node's key; keys are never masked.
func (p *Proxy) Key() tree.Key {
	return p.m.tree.Key(p.h)
}

// Prop reads a prop through the overlay.
func (p *Proxy) Prop(key string) (ir.IRValue, bool) {
	return p.m.lookup(p.h, key)
}

// Int reads an integer prop, def when absent.
func (p *Proxy) Int(key string, def int64) int64 {
	if v, ok := p.Prop(key); ok {
		if n, ok := v.(ir.IRInt); ok {
			return int64(n)
		}
	}
	return def
}

// String reads a string prop.
func (p *Proxy) String(key string) string {
	if v, ok := p.Prop(key); ok {
		if s, ok := v.(ir.IRString); ok {
			return string(s)
		}
	}
	return ""
}

// SetProp writes into the overlay.
func (p *Proxy) SetProp(key string, v ir.IRValue) {
	if p.props == nil {
		p.props = ir.IRObject{}
	}
	p.props[key] = v
	p.deleted = slices.DeleteFunc(p.deleted, func(k string) bool { return k == key })
}

// DeleteProp masks a prop as absent.
func (p *Proxy) DeleteProp(key string) {
	delete(p.props, key)
	if !slices.Contains(p.deleted, key) {
		p.deleted = append(p.deleted, key)
		slices.Sort(p.deleted)
	}
}

// Hidden reads the hidden flag through the overlay.
func (p *Proxy) Hidden() bool {
	if p.hidden != nil {
		return *p.hidden
	}
	return p.m.lookupHidden(p.h)
}

// SetHidden writes the hidden flag into the overlay.
func (p *Proxy) SetHidden(hidden bool) {
	p.hidden = &hidden
}

// SetHas reports whether the array prop key contains v.
func (p *Proxy) SetHas(key string, v ir.IRValue) bool {
	arr, _ := p.arrayProp(key)
	return slices.IndexFunc(arr, func(e ir.IRValue) bool { return ir.Equal(e, v) }) >= 0
}

// SetAdd adds v to the array prop key when absent. The live array is never
// touched; the overlay gets a copy.
func (p *Proxy) SetAdd(key string, v ir.IRValue) {
	if p.SetHas(key, v) {
		return
	}
	arr, _ := p.arrayProp(key)
	out := make(ir.IRArray, 0, len(arr)+1)
	out = append(out, arr...)
	p.SetProp(key, append(out, v))
}

// SetRemove removes v from the array prop key.
func (p *Proxy) SetRemove(key string, v ir.IRValue) {
	arr, ok := p.arrayProp(key)
	if !ok {
		return
	}
	out := make(ir.IRArray, 0, len(arr))
	for _, e := range arr {
		if !ir.Equal(e, v) {
			out = append(out, e)
		}
	}
	p.SetProp(key, out)
}

// MapGet reads field from the object prop key.
func (p *Proxy) MapGet(key, field string) (ir.IRValue, bool) {
	obj, _ := p.objectProp(key)
	v, ok := obj[field]
	return v, ok
}

// MapPut sets field in the object prop key, copying the object into the
// overlay first.
func (p *Proxy) MapPut(key, field string, v ir.IRValue) {
	obj, _ := p.objectProp(key)
	out := make(ir.IRObject, len(obj)+1)
	for k, e := range obj {
		out[k] = e
	}
	out[field] = v
	p.SetProp(key, out)
}

// MapDelete removes field from the object prop key.
func (p *Proxy) MapDelete(key, field string) {
	obj, ok := p.objectProp(key)
	if !ok {
		return
	}
	if _, has := obj[field]; !has {
		return
	}
	out := make(ir.IRObject, len(obj))
	for k, e := range obj {
		if k != field {
			out[k] = e
		}
	}
	p.SetProp(key, out)
}

func (p *Proxy) arrayProp(key string) (ir.IRArray, bool) {
	v, ok := p.Prop(key)
	if !ok {
		return nil, false
	}
	arr, ok := v.(ir.IRArray)
	return arr, ok
}

func (p *Proxy) objectProp(key string) (ir.IRObject, bool) {
	v, ok := p.Prop(key)
	if !ok {
		return nil, false
	}
	obj, ok := v.(ir.IRObject)
	return obj, ok
}

func (p *Proxy) dirty() bool {
	return len(p.props) > 0 || len(p.deleted) > 0 || p.hidden != nil
}

func (p *Proxy) reset() {
	p.props = nil
	p.deleted = nil
	p.hidden = nil
}
