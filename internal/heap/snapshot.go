package heap

import "time"

// Layout carries the memory layout parameters of the dumped JVM.
type Layout struct {
	PointerSize      int  `msgpack:"ptr"`
	ObjectHeaderSize int  `msgpack:"hdr"`
	Alignment        int  `msgpack:"align"`
	NarrowPointers   bool `msgpack:"narrow"`
}

// DefaultLayout is a 64-bit JVM with compressed oops.
func DefaultLayout() Layout {
	return Layout{PointerSize: 4, ObjectHeaderSize: 12, Alignment: 8, NarrowPointers: true}
}

// ArrayHeaderSize returns the array header size: object header plus the length word.
func (l Layout) ArrayHeaderSize() int {
	return l.ObjectHeaderSize + 4
}

// Align rounds size up to the object alignment.
func (l Layout) Align(size int) int {
	a := l.Alignment
	if a <= 1 {
		return size
	}
	return (size + a - 1) / a * a
}

// ArraySize returns the aligned size of an array with n elements of elemSize bytes.
func (l Layout) ArraySize(n, elemSize int) int {
	return l.Align(l.ArrayHeaderSize() + n*elemSize)
}

// Info is descriptive metadata about a snapshot.
type Info struct {
	Name       string    `msgpack:"name"`
	JVMVersion string    `msgpack:"jvm"`
	CreatedAt  time.Time `msgpack:"created"`
}

// Snapshot is the read-only object graph consumed by the analysis.
type Snapshot interface {
	// NumObjects returns the count of non-class objects, indexed [0, NumObjects).
	NumObjects() int
	// NumClasses returns the count of classes; their statics holders are
	// indexed [NumObjects, NumObjects+NumClasses).
	NumClasses() int
	// Object returns the object at global index idx, or nil for null,
	// unresolved or out-of-range indices.
	Object(idx int) *Object
	Classes() []*Class
	ClassByName(name string) *Class
	Roots() []*Root
	Layout() Layout
	Info() Info
}

// Heap is the in-memory Snapshot implementation.
type Heap struct {
	objects    []*Object
	numObjects int
	classes    []*Class
	byName     map[string]*Class
	roots      []*Root
	layout     Layout
	info       Info
	unresolved int
}

var _ Snapshot = (*Heap)(nil)

func (h *Heap) NumObjects() int { return h.numObjects }

func (h *Heap) NumClasses() int { return len(h.classes) }

func (h *Heap) Object(idx int) *Object {
	if idx < 0 || idx >= len(h.objects) {
		return nil
	}
	return h.objects[idx]
}

func (h *Heap) Classes() []*Class { return h.classes }

func (h *Heap) ClassByName(name string) *Class { return h.byName[name] }

func (h *Heap) Roots() []*Root { return h.roots }

func (h *Heap) Layout() Layout { return h.layout }

func (h *Heap) Info() Info { return h.info }

// UnresolvedRefs returns how many references pointed outside the snapshot
// when it was built.
func (h *Heap) UnresolvedRefs() int { return h.unresolved }

// TotalSize returns the sum of object sizes excluding class objects.
func (h *Heap) TotalSize() int64 {
	var total int64
	for _, o := range h.objects[:h.numObjects] {
		total += int64(o.Size)
	}
	return total
}
