package descriptors

import (
	"github.com/heapscan/internal/heap"
	"github.com/heapscan/pkg/collections"
)

// layout knows how one family of collections is laid out in the heap.
// Field indices are resolved against the registered class and stay valid
// for its subclasses, since inherited fields keep their flat index.
type layout interface {
	numElements(r *Registry, o *heap.Object) int
	// implSize returns the size of the implementation objects, excluding o,
	// and flags them in the session marks. Objects flagged before are
	// neither counted nor followed.
	implSize(r *Registry, o *heap.Object) int
	iterate(r *Registry, o *heap.Object, v Visitor)
	// knownFields names the instance fields the layout interprets.
	knownFields() []string
}

// sparseLayout is implemented by layouts backed by a slot array.
type sparseLayout interface {
	slots(r *Registry, o *heap.Object) (capacity, used int, ok bool)
	defaultCapacity() int
}

// binder resolves a layout for a registered class, or returns nil when the
// class does not have the expected shape.
type binder func(c *heap.Class) layout

func optionalField(c *heap.Class, name string) int {
	if name == "" {
		return -1
	}
	return c.FieldIndex(name)
}

func refArray(r *Registry, o *heap.Object, idx int) *heap.Object {
	arr := r.snap.Object(o.Field(idx).Ref)
	if arr == nil || arr.Kind != heap.KindObjectArray {
		return nil
	}
	return arr
}

func markingVisitor(r *Registry, size *int) Visitor {
	return VisitorFuncs{Impl: func(o *heap.Object) bool {
		if !r.marks.MarkImpl(o.Index) {
			return false
		}
		*size += o.Size
		return true
	}}
}

func countElements(l layout, r *Registry, o *heap.Object) int {
	n := 0
	l.iterate(r, o, VisitorFuncs{Elem: func(key, value int) bool {
		if key != heap.NoRef || value != heap.NoRef {
			n++
		}
		return true
	}})
	return n
}

type nodeFields struct {
	key, value, next, first, left, right int
}

// nodeCache resolves entry field indices once per entry class.
type nodeCache struct {
	key, value string
	byClass    map[*heap.Class]nodeFields
}

func newNodeCache(key, value string) nodeCache {
	return nodeCache{key: key, value: value, byClass: make(map[*heap.Class]nodeFields)}
}

func (n nodeCache) get(c *heap.Class) nodeFields {
	if nf, ok := n.byClass[c]; ok {
		return nf
	}
	nf := nodeFields{
		key:   optionalField(c, n.key),
		value: optionalField(c, n.value),
		// Subclass fields come last, so this skips e.g. Reference.next in
		// WeakHashMap$Entry.
		next:  c.LastFieldIndex("next"),
		first: c.FieldIndex("first"),
		left:  c.FieldIndex("left"),
		right: c.FieldIndex("right"),
	}
	n.byClass[c] = nf
	return nf
}

// tableLayout covers hash tables of chained entries: HashMap, Hashtable,
// WeakHashMap and ConcurrentHashMap.
type tableLayout struct {
	sizeIdx, tableIdx int
	tableName         string
	defCap            int
	nodes             nodeCache
}

func hashTable(size, table, key, value string, defCap int) binder {
	return func(c *heap.Class) layout {
		ti := c.FieldIndex(table)
		if ti < 0 {
			return nil
		}
		return &tableLayout{
			sizeIdx:   optionalField(c, size),
			tableIdx:  ti,
			tableName: c.FieldAt(ti).Name,
			defCap:    defCap,
			nodes:     newNodeCache(key, value),
		}
	}
}

func (l *tableLayout) numElements(r *Registry, o *heap.Object) int {
	if l.sizeIdx >= 0 {
		return int(o.Field(l.sizeIdx).Bits)
	}
	return countElements(l, r, o)
}

func (l *tableLayout) implSize(r *Registry, o *heap.Object) int {
	size := 0
	l.iterate(r, o, markingVisitor(r, &size))
	return size
}

func (l *tableLayout) iterate(r *Registry, o *heap.Object, v Visitor) {
	table := refArray(r, o, l.tableIdx)
	if table == nil || !v.ImplementationObject(table) {
		return
	}
	for _, head := range table.Elements {
		e := r.snap.Object(head)
		for e != nil && e.Kind == heap.KindInstance {
			if !v.ImplementationObject(e) {
				break
			}
			nf := l.nodes.get(e.Class)
			if nf.first >= 0 {
				// ConcurrentHashMap$TreeBin keeps its nodes in a list.
				e = r.snap.Object(e.Field(nf.first).Ref)
				continue
			}
			if !v.Element(e.Field(nf.key).Ref, e.Field(nf.value).Ref) {
				return
			}
			next := r.snap.Object(e.Field(nf.next).Ref)
			if next == e {
				break
			}
			e = next
		}
	}
}

func (l *tableLayout) knownFields() []string { return []string{l.tableName} }

func (l *tableLayout) slots(r *Registry, o *heap.Object) (int, int, bool) {
	table := refArray(r, o, l.tableIdx)
	if table == nil {
		return 0, 0, false
	}
	used := 0
	for _, e := range table.Elements {
		if e != heap.NoRef {
			used++
		}
	}
	return len(table.Elements), used, true
}

func (l *tableLayout) defaultCapacity() int { return l.defCap }

// arrayLayout covers collections that keep elements in one Object[]:
// ArrayList, Vector, PriorityQueue, ArrayDeque and similar.
type arrayLayout struct {
	sizeIdx, arrayIdx int
	arrayName         string
	defCap            int
	// full means the array is always exactly as long as the collection.
	full bool
}

func arrayBacked(size, array string, defCap int) binder {
	return func(c *heap.Class) layout {
		ai := c.FieldIndex(array)
		if ai < 0 {
			return nil
		}
		return &arrayLayout{sizeIdx: optionalField(c, size), arrayIdx: ai, arrayName: c.FieldAt(ai).Name, defCap: defCap}
	}
}

func fullArray(array string) binder {
	return func(c *heap.Class) layout {
		ai := c.FieldIndex(array)
		if ai < 0 {
			return nil
		}
		return &arrayLayout{sizeIdx: -1, arrayIdx: ai, arrayName: c.FieldAt(ai).Name, full: true}
	}
}

func (l *arrayLayout) numElements(r *Registry, o *heap.Object) int {
	if l.sizeIdx >= 0 {
		return int(o.Field(l.sizeIdx).Bits)
	}
	arr := refArray(r, o, l.arrayIdx)
	if arr == nil {
		return 0
	}
	if l.full {
		return len(arr.Elements)
	}
	return countElements(l, r, o)
}

func (l *arrayLayout) implSize(r *Registry, o *heap.Object) int {
	arr := refArray(r, o, l.arrayIdx)
	if arr == nil || !r.marks.MarkImpl(arr.Index) {
		return 0
	}
	return arr.Size
}

// iterate visits every non-null slot rather than the first size ones, so
// stray references are still attributed to the collection.
func (l *arrayLayout) iterate(r *Registry, o *heap.Object, v Visitor) {
	arr := refArray(r, o, l.arrayIdx)
	if arr == nil || !v.ImplementationObject(arr) {
		return
	}
	for _, e := range arr.Elements {
		if e == heap.NoRef {
			continue
		}
		if !v.Element(e, heap.NoRef) {
			return
		}
	}
}

func (l *arrayLayout) knownFields() []string { return []string{l.arrayName} }

func (l *arrayLayout) slots(r *Registry, o *heap.Object) (int, int, bool) {
	if l.full {
		return 0, 0, false
	}
	arr := refArray(r, o, l.arrayIdx)
	if arr == nil {
		return 0, 0, false
	}
	return len(arr.Elements), l.numElements(r, o), true
}

func (l *arrayLayout) defaultCapacity() int { return l.defCap }

// linkedLayout covers singly or doubly linked node lists: LinkedList and
// ConcurrentLinkedQueue.
type linkedLayout struct {
	sizeIdx, headIdx int
	headName         string
	nodes            nodeCache
}

func linked(size, head, item string) binder {
	return func(c *heap.Class) layout {
		hi := c.FieldIndex(head)
		if hi < 0 {
			return nil
		}
		return &linkedLayout{
			sizeIdx:  optionalField(c, size),
			headIdx:  hi,
			headName: c.FieldAt(hi).Name,
			nodes:    newNodeCache(item, ""),
		}
	}
}

func (l *linkedLayout) numElements(r *Registry, o *heap.Object) int {
	if l.sizeIdx >= 0 {
		return int(o.Field(l.sizeIdx).Bits)
	}
	return countElements(l, r, o)
}

func (l *linkedLayout) implSize(r *Registry, o *heap.Object) int {
	size := 0
	l.iterate(r, o, markingVisitor(r, &size))
	return size
}

// iterate walks the nodes from the head. Circular lists with a sentinel
// header end when the walk returns to the first node.
func (l *linkedLayout) iterate(r *Registry, o *heap.Object, v Visitor) {
	first := r.snap.Object(o.Field(l.headIdx).Ref)
	limit := r.snap.NumObjects()
	for e, steps := first, 0; e != nil && e.Kind == heap.KindInstance && steps <= limit; steps++ {
		if !v.ImplementationObject(e) {
			return
		}
		nf := l.nodes.get(e.Class)
		if item := e.Field(nf.key).Ref; item != heap.NoRef {
			if !v.Element(item, heap.NoRef) {
				return
			}
		}
		next := r.snap.Object(e.Field(nf.next).Ref)
		if next == e || next == first {
			return
		}
		e = next
	}
}

func (l *linkedLayout) knownFields() []string { return []string{l.headName} }

// treeLayout covers TreeMap.
type treeLayout struct {
	sizeIdx, rootIdx int
	nodes            nodeCache
}

func tree(size, root, key, value string) binder {
	return func(c *heap.Class) layout {
		ri := c.FieldIndex(root)
		if ri < 0 {
			return nil
		}
		return &treeLayout{sizeIdx: optionalField(c, size), rootIdx: ri, nodes: newNodeCache(key, value)}
	}
}

func (l *treeLayout) numElements(r *Registry, o *heap.Object) int {
	if l.sizeIdx >= 0 {
		return int(o.Field(l.sizeIdx).Bits)
	}
	return countElements(l, r, o)
}

func (l *treeLayout) implSize(r *Registry, o *heap.Object) int {
	size := 0
	l.iterate(r, o, markingVisitor(r, &size))
	return size
}

// iterate walks the tree in pre-order with an explicit stack.
func (l *treeLayout) iterate(r *Registry, o *heap.Object, v Visitor) {
	stack := collections.NewStack[int](32)
	stack.Push(o.Field(l.rootIdx).Ref)
	limit := r.snap.NumObjects()
	for steps := 0; steps <= limit; steps++ {
		idx, ok := stack.Pop()
		if !ok {
			return
		}
		e := r.snap.Object(idx)
		if e == nil || e.Kind != heap.KindInstance || !v.ImplementationObject(e) {
			continue
		}
		nf := l.nodes.get(e.Class)
		if !v.Element(e.Field(nf.key).Ref, e.Field(nf.value).Ref) {
			return
		}
		if right := e.Field(nf.right).Ref; right >= 0 {
			stack.Push(right)
		}
		if left := e.Field(nf.left).Ref; left >= 0 {
			stack.Push(left)
		}
	}
}

func (l *treeLayout) knownFields() []string { return []string{"root"} }

// wrapperLayout covers collections implemented by another collection held
// in one field: HashSet over HashMap, TreeSet over TreeMap and so on.
type wrapperLayout struct {
	innerIdx  int
	innerName string
	keysOnly  bool
}

func wrapper(field string, keysOnly bool) binder {
	return func(c *heap.Class) layout {
		fi := c.FieldIndex(field)
		if fi < 0 {
			return nil
		}
		return &wrapperLayout{innerIdx: fi, innerName: c.FieldAt(fi).Name, keysOnly: keysOnly}
	}
}

func (l *wrapperLayout) inner(r *Registry, o *heap.Object) (*heap.Object, *ClassDescriptor) {
	in := r.snap.Object(o.Field(l.innerIdx).Ref)
	if in == nil || in.Kind != heap.KindInstance {
		return nil, nil
	}
	d := r.ClassDescriptor(in.Class)
	if d == nil {
		return nil, nil
	}
	return in, d
}

func (l *wrapperLayout) numElements(r *Registry, o *heap.Object) int {
	in, d := l.inner(r, o)
	if in == nil {
		return 0
	}
	return d.layout.numElements(r, in)
}

func (l *wrapperLayout) implSize(r *Registry, o *heap.Object) int {
	in, d := l.inner(r, o)
	if in == nil || !r.marks.MarkImpl(in.Index) {
		return 0
	}
	return in.Size + d.layout.implSize(r, in)
}

func (l *wrapperLayout) iterate(r *Registry, o *heap.Object, v Visitor) {
	in, d := l.inner(r, o)
	if in == nil || !v.ImplementationObject(in) {
		return
	}
	if !l.keysOnly {
		d.layout.iterate(r, in, v)
		return
	}
	d.layout.iterate(r, in, VisitorFuncs{
		Impl: v.ImplementationObject,
		Elem: func(key, _ int) bool { return v.Element(key, heap.NoRef) },
	})
}

func (l *wrapperLayout) knownFields() []string { return []string{l.innerName} }

func (l *wrapperLayout) slots(r *Registry, o *heap.Object) (int, int, bool) {
	in, d := l.inner(r, o)
	if in == nil {
		return 0, 0, false
	}
	sl, ok := d.layout.(sparseLayout)
	if !ok {
		return 0, 0, false
	}
	return sl.slots(r, in)
}

func (l *wrapperLayout) defaultCapacity() int { return 16 }
