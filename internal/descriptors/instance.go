package descriptors

import (
	"github.com/heapscan/internal/heap"
	"github.com/heapscan/internal/support"
)

// Visitor receives the parts of a collection during iteration.
type Visitor interface {
	// ImplementationObject is called for each implementation object, such as
	// a hash table or an entry. Returning false skips whatever is reachable
	// only through that object.
	ImplementationObject(o *heap.Object) bool
	// Element is called for each logical element with global indices.
	// For lists value is heap.NoRef. Returning false stops the iteration.
	Element(key, value int) bool
}

// VisitorFuncs adapts plain functions to Visitor. Nil functions accept everything.
type VisitorFuncs struct {
	Impl func(o *heap.Object) bool
	Elem func(key, value int) bool
}

func (f VisitorFuncs) ImplementationObject(o *heap.Object) bool {
	if f.Impl == nil {
		return true
	}
	return f.Impl(o)
}

func (f VisitorFuncs) Element(key, value int) bool {
	if f.Elem == nil {
		return true
	}
	return f.Elem(key, value)
}

// Instance describes one collection object.
type Instance interface {
	support.CollectionInfo
	Object() *heap.Object
	ClassDescriptor() *ClassDescriptor
	// Iterate walks implementation objects and elements.
	Iterate(v Visitor)
	// SampleElement returns a list element representative of the element
	// type, or nil if the first elements have different classes.
	SampleElement() *heap.Object
	// SampleKeyValue is SampleElement for maps, per key and per value.
	SampleKeyValue() (key, value *heap.Object)
	// ModCount returns the modification counter; valid only if the class
	// descriptor CanDetermineModCount.
	ModCount() int64
	// HasExtraObjFields reports whether the class has reference fields
	// that are neither implementation nor banned fields.
	HasExtraObjFields() bool
	// FilterExtraObjFields nulls every slot of fields except the extra
	// object fields. fields must be a copy of the instance fields.
	FilterExtraObjFields(fields []heap.FieldValue)
}

// Sparse is implemented by array-backed collections whose capacity can
// exceed their size.
type Sparse interface {
	// SparsenessOverhead returns the bytes taken by unused slots if fewer
	// than half the slots are used, otherwise -1.
	SparsenessOverhead(ptrSize int) int
	DefaultCapacity() int
	Capacity() int
}

const numSamples = 3

type collection struct {
	reg      *Registry
	obj      *heap.Object
	desc     *ClassDescriptor
	implSize int
	numEls   int
}

var _ Instance = (*collection)(nil)

func (c *collection) Object() *heap.Object { return c.obj }

func (c *collection) ClassDescriptor() *ClassDescriptor { return c.desc }

func (c *collection) NumElements() int {
	if c.numEls < 0 {
		c.numEls = c.desc.layout.numElements(c.reg, c.obj)
	}
	return c.numEls
}

// ImplSize returns the shallow size of the collection plus its
// implementation objects. The first call flags those objects as
// implementation objects in the session marks.
func (c *collection) ImplSize() int {
	if c.implSize < 0 {
		c.implSize = c.obj.Size + c.desc.layout.implSize(c.reg, c.obj)
	}
	return c.implSize
}

func (c *collection) Iterate(v Visitor) {
	c.desc.layout.iterate(c.reg, c.obj, v)
}

func (c *collection) SampleElement() *heap.Object {
	var sample *heap.Object
	n := 0
	c.Iterate(VisitorFuncs{Elem: func(key, _ int) bool {
		n++
		el := c.reg.snap.Object(key)
		if el == nil {
			return n < numSamples
		}
		if n > 1 && (sample == nil || sample.Class != el.Class) {
			sample = nil
			return false
		}
		sample = el
		return n < numSamples
	}})
	return sample
}

func (c *collection) SampleKeyValue() (key, value *heap.Object) {
	n := 0
	c.Iterate(VisitorFuncs{Elem: func(k, v int) bool {
		n++
		ko, vo := c.reg.snap.Object(k), c.reg.snap.Object(v)
		if n == 1 {
			key, value = ko, vo
			return n < numSamples
		}
		if ko != nil {
			if key != nil && key.Class == ko.Class {
				key = ko
			} else {
				key = nil
			}
		}
		if vo != nil {
			if value != nil && value.Class == vo.Class {
				value = vo
			} else {
				value = nil
			}
		}
		return n < numSamples
	}})
	return key, value
}

func (c *collection) ModCount() int64 {
	if c.desc.modCountIdx < 0 {
		return 0
	}
	return c.obj.Field(c.desc.modCountIdx).Bits
}

func (c *collection) HasExtraObjFields() bool {
	return c.desc.known != nil
}

func (c *collection) FilterExtraObjFields(fields []heap.FieldValue) {
	for _, i := range c.desc.known {
		if i < len(fields) {
			fields[i] = heap.Null()
		}
	}
}

type sparseCollection struct {
	*collection
	sparse sparseLayout
}

var _ Sparse = sparseCollection{}

func (c sparseCollection) SparsenessOverhead(ptrSize int) int {
	capacity, used, ok := c.sparse.slots(c.reg, c.obj)
	if !ok {
		return -1
	}
	if used < capacity/2 {
		return (capacity - used) * ptrSize
	}
	return -1
}

func (c sparseCollection) DefaultCapacity() int {
	return c.sparse.defaultCapacity()
}

func (c sparseCollection) Capacity() int {
	capacity, _, _ := c.sparse.slots(c.reg, c.obj)
	return capacity
}
