package heap

import (
	"fmt"
)

// Builder assembles a Heap. Objects receive their global index as soon as
// they are added; class statics holders are placed after all objects by Build.
type Builder struct {
	layout     Layout
	info       Info
	classes    []*Class
	byName     map[string]*Class
	objects    []*Object
	roots      []*Root
	nextOffset int64
	err        error
}

// NewBuilder creates a builder for a heap with the given layout.
func NewBuilder(layout Layout) *Builder {
	if layout.PointerSize == 0 {
		layout = DefaultLayout()
	}
	return &Builder{
		layout: layout,
		byName: make(map[string]*Class),
	}
}

// SetInfo sets the snapshot metadata.
func (b *Builder) SetInfo(info Info) {
	b.info = info
}

// Layout returns the layout the heap is built with.
func (b *Builder) Layout() Layout {
	return b.layout
}

// Class returns a previously defined class by name, or nil.
func (b *Builder) Class(name string) *Class {
	return b.byName[name]
}

// DefineClass defines a class with the given declared instance fields.
// The instance size is derived from the layout. Defining an existing name
// returns the existing class unchanged.
func (b *Builder) DefineClass(name string, super *Class, fields ...Field) *Class {
	if c, ok := b.byName[name]; ok {
		return c
	}
	c := &Class{
		Name:   name,
		Index:  len(b.classes),
		Super:  super,
		Loader: NoRef,
		Fields: fields,
	}
	c.resolve()
	size := b.layout.ObjectHeaderSize
	for _, f := range c.allFields {
		size += f.Type.Size(b.layout.PointerSize)
	}
	c.InstanceSize = b.layout.Align(size)
	b.classes = append(b.classes, c)
	b.byName[name] = c
	return c
}

// SetStatics sets the static fields of a class.
func (b *Builder) SetStatics(c *Class, fields []Field, values []FieldValue) {
	if len(fields) != len(values) {
		b.fail(fmt.Errorf("class %s: %d static fields but %d values", c.Name, len(fields), len(values)))
		return
	}
	c.StaticFields = fields
	c.StaticValues = values
}

// ArrayClass returns the class of primitive arrays with the given element type.
func (b *Builder) ArrayClass(elem BasicType) *Class {
	name := elem.ArrayClassName()
	if c, ok := b.byName[name]; ok {
		return c
	}
	c := b.DefineClass(name, b.DefineClass(ClassObject, nil))
	c.IsArray = true
	c.ElemType = elem
	return c
}

// ObjectArrayClass returns the class of arrays of elemClassName.
func (b *Builder) ObjectArrayClass(elemClassName string) *Class {
	name := elemClassName + "[]"
	if c, ok := b.byName[name]; ok {
		return c
	}
	c := b.DefineClass(name, b.DefineClass(ClassObject, nil))
	c.IsArray = true
	c.ElemType = TypeObject
	return c
}

// ClassRef returns a reference to the statics holder of c, usable before Build.
func (b *Builder) ClassRef(c *Class) int {
	return -3 - c.Index
}

// AddInstance adds an instance of c. Missing trailing values default to
// null or zero of the field type.
func (b *Builder) AddInstance(c *Class, values ...FieldValue) int {
	if c == nil {
		b.fail(fmt.Errorf("instance with nil class"))
		return NoRef
	}
	if len(values) > len(c.allFields) {
		b.fail(fmt.Errorf("class %s: %d values for %d fields", c.Name, len(values), len(c.allFields)))
		return NoRef
	}
	fields := make([]FieldValue, len(c.allFields))
	for i, f := range c.allFields {
		if i < len(values) {
			fields[i] = values[i]
			fields[i].Type = f.Type
			if f.Type != TypeObject {
				fields[i].Ref = NoRef
			}
			continue
		}
		fields[i] = FieldValue{Type: f.Type, Ref: NoRef}
	}
	return b.add(&Object{Kind: KindInstance, Class: c, Size: c.InstanceSize, Fields: fields})
}

// AddObjectArray adds an object array of class c (see ObjectArrayClass).
func (b *Builder) AddObjectArray(c *Class, elems ...int) int {
	els := make([]int, len(elems))
	copy(els, elems)
	size := b.layout.ArraySize(len(els), b.layout.PointerSize)
	return b.add(&Object{Kind: KindObjectArray, Class: c, Size: size, Elements: els})
}

// AddValueArray adds a primitive array whose big-endian element bytes are data.
func (b *Builder) AddValueArray(elem BasicType, data []byte) int {
	c := b.ArrayClass(elem)
	sz := elem.Size(0)
	if sz == 0 || len(data)%sz != 0 {
		b.fail(fmt.Errorf("%s: %d bytes is not a whole number of elements", c.Name, len(data)))
		return NoRef
	}
	size := b.layout.ArraySize(len(data)/sz, sz)
	return b.add(&Object{Kind: KindValueArray, Class: c, Size: size, Data: data})
}

// SetField sets a named field of an instance added earlier.
func (b *Builder) SetField(objIdx int, name string, v FieldValue) {
	o := b.Object(objIdx)
	if o == nil || o.Kind != KindInstance {
		b.fail(fmt.Errorf("object %d is not an instance", objIdx))
		return
	}
	i := o.Class.LastFieldIndex(name)
	if i < 0 {
		b.fail(fmt.Errorf("class %s has no field %q", o.Class.Name, name))
		return
	}
	v.Type = o.Class.allFields[i].Type
	if v.Type != TypeObject {
		v.Ref = NoRef
	}
	o.Fields[i] = v
}

// SetElement sets element i of an object array added earlier.
func (b *Builder) SetElement(arrIdx, i, ref int) {
	o := b.Object(arrIdx)
	if o == nil || o.Kind != KindObjectArray || i < 0 || i >= len(o.Elements) {
		b.fail(fmt.Errorf("object %d has no element %d", arrIdx, i))
		return
	}
	o.Elements[i] = ref
}

// SetOffset overrides the dump file offset of an object.
func (b *Builder) SetOffset(idx int, offset int64) {
	if o := b.Object(idx); o != nil {
		o.Offset = offset
	}
}

// AddRoot registers a GC root.
func (b *Builder) AddRoot(objIdx int, t RootType, desc string) {
	b.roots = append(b.roots, &Root{Object: objIdx, Type: t, Description: desc})
}

// Object returns an object added earlier.
func (b *Builder) Object(idx int) *Object {
	if idx < 0 || idx >= len(b.objects) {
		return nil
	}
	return b.objects[idx]
}

// NumObjects returns the number of objects added so far.
func (b *Builder) NumObjects() int {
	return len(b.objects)
}

func (b *Builder) add(o *Object) int {
	o.Index = len(b.objects)
	o.Offset = b.nextOffset
	b.nextOffset += int64(o.Size)
	b.objects = append(b.objects, o)
	return o.Index
}

func (b *Builder) fail(err error) {
	if b.err == nil {
		b.err = err
	}
}

// Build finalizes the heap. References past the end of the object table
// become Unresolved; the count is available from Heap.UnresolvedRefs.
func (b *Builder) Build() (*Heap, error) {
	if b.err != nil {
		return nil, b.err
	}
	n := len(b.objects)
	h := &Heap{
		objects:    make([]*Object, 0, n+len(b.classes)),
		numObjects: n,
		classes:    b.classes,
		byName:     b.byName,
		layout:     b.layout,
		info:       b.info,
	}
	h.objects = append(h.objects, b.objects...)
	for _, c := range b.classes {
		c.objIndex = n + c.Index
		h.objects = append(h.objects, &Object{
			Index:  c.objIndex,
			Kind:   KindClass,
			Class:  c,
			Offset: b.nextOffset,
		})
	}
	total := len(h.objects)
	fix := func(ref int) int {
		switch {
		case ref <= -3:
			idx := -3 - ref
			if idx >= len(b.classes) {
				h.unresolved++
				return Unresolved
			}
			return n + idx
		case ref >= total:
			h.unresolved++
			return Unresolved
		}
		return ref
	}
	for _, o := range b.objects {
		for i := range o.Fields {
			if o.Fields[i].Type == TypeObject {
				o.Fields[i].Ref = fix(o.Fields[i].Ref)
			}
		}
		for i := range o.Elements {
			o.Elements[i] = fix(o.Elements[i])
		}
	}
	for _, c := range b.classes {
		for i := range c.StaticValues {
			if c.StaticValues[i].Type == TypeObject {
				c.StaticValues[i].Ref = fix(c.StaticValues[i].Ref)
			}
		}
	}
	h.roots = make([]*Root, 0, len(b.roots))
	for _, r := range b.roots {
		r.Object = fix(r.Object)
		h.roots = append(h.roots, r)
	}
	return h, nil
}
