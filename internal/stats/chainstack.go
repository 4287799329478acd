package stats

import (
	"strings"

	"github.com/heapscan/internal/descriptors"
	"github.com/heapscan/internal/heap"
	"github.com/heapscan/internal/support"
)

// maxLinkedListSkipBack bounds how many linked-list hops StackTracker steps
// back over before rebuilding a chain suffix.
const maxLinkedListSkipBack = 2

// frame is one object of the concrete chain and the slot through which it
// references the next object.
type frame struct {
	obj  *heap.Object
	slot int
}

// StackTracker condenses the concrete chain of a depth-first scan. The
// condensed chain of the current object is cached per frame and only the
// suffix that changed since the previous request is rebuilt.
type StackTracker struct {
	reg  *descriptors.Registry
	tree *support.RefTree
	root support.Chain

	frames []frame
	// cached[i] is the condensed chain after the hop out of frames[i];
	// entries below valid are up to date.
	cached []support.Chain
	valid  int
}

var _ ChainTracker = (*StackTracker)(nil)

// NewStackTracker creates a tracker that stores chains in tree.
func NewStackTracker(reg *descriptors.Registry, tree *support.RefTree) *StackTracker {
	return &StackTracker{reg: reg, tree: tree}
}

func (t *StackTracker) Tree() *support.RefTree {
	return t.tree
}

// SetRoot starts a new concrete chain at r.
func (t *StackTracker) SetRoot(r *heap.Root) {
	t.root = t.tree.Root(r)
	t.frames = t.frames[:0]
	t.cached = t.cached[:0]
	t.valid = 0
}

// Push appends o, referenced through the current slot of the top frame.
func (t *StackTracker) Push(o *heap.Object) {
	t.frames = append(t.frames, frame{obj: o, slot: -1})
}

// SetSlot records the field or element index the top object references
// its next child through.
func (t *StackTracker) SetSlot(slot int) {
	top := len(t.frames) - 1
	if t.frames[top].slot == slot {
		return
	}
	t.frames[top].slot = slot
	t.invalidate(top)
}

// Pop removes the top object.
func (t *StackTracker) Pop() {
	t.frames = t.frames[:len(t.frames)-1]
	t.invalidate(len(t.frames) - 1)
}

func (t *StackTracker) invalidate(depth int) {
	if depth < 0 {
		depth = 0
	}
	if t.valid > depth {
		t.valid = depth
	}
}

// Depth returns the number of objects on the concrete chain.
func (t *StackTracker) Depth() int {
	return len(t.frames)
}

func (t *StackTracker) PointingObject() *heap.Object {
	n := len(t.frames)
	if n < 2 {
		return nil
	}
	if o := t.frames[n-2].obj; o.Kind == heap.KindInstance {
		return o
	}
	return nil
}

// Last returns the condensed chain of the top object.
func (t *StackTracker) Last() support.Chain {
	hops := len(t.frames) - 1
	if hops <= 0 {
		return t.root
	}
	if t.valid >= hops {
		return t.cached[hops-1]
	}
	for len(t.cached) < hops {
		t.cached = append(t.cached, support.Chain{})
	}

	start := 0
	if t.valid > 0 {
		start = t.skipBack(t.valid)
		if start <= 1 {
			start = 0
		}
	}
	cur := t.root
	if start > 0 {
		cur = t.cached[start-1]
	}
	for i := start; i < hops; i++ {
		if node, end, ok := t.collapse(i, cur); ok {
			cur = node
			for j := i; j <= end && j < hops; j++ {
				t.cached[j] = cur
			}
			i = end
			continue
		}
		cur = t.hop(t.frames[i], cur)
		t.cached[i] = cur
	}
	t.valid = hops
	return cur
}

// skipBack moves a restart position back over frames whose condensed form
// depends on the frames before them: linked-list runs, arrays, nested
// classes and collections living inside another collection.
func (t *StackTracker) skipBack(p int) int {
	llSteps := 0
	for p > 1 {
		f0, f1 := t.frames[p-1], t.frames[p]
		switch {
		case f0.slot == f1.slot && linkedHop(f0.obj, f1.obj, f1.slot):
			p--
			if llSteps++; llSteps > maxLinkedListSkipBack {
				return p
			}
		case f1.obj.Kind == heap.KindObjectArray || f1.obj.Kind == heap.KindValueArray ||
			strings.Contains(f1.obj.Class.Name, "$"):
			p--
		default:
			d := t.reg.ClassDescriptor(f1.obj.Class)
			if d == nil || !d.IsInImplementationOf(f0.obj.Class.Name) {
				return p
			}
			p--
		}
	}
	return p
}

func (t *StackTracker) hop(f frame, referer support.Chain) support.Chain {
	switch f.obj.Kind {
	case heap.KindClass:
		return t.tree.StaticField(referer, f.obj.Class, f.slot)
	case heap.KindObjectArray:
		return t.tree.Array(referer, f.obj.Class)
	default:
		if node, ok := extendLinkedList(t.tree, referer, f.obj.Class, f.slot); ok {
			return node
		}
		return t.tree.InstanceField(referer, f.obj.Class, f.slot)
	}
}

// linkedHop reports whether a and b are instances referencing their next
// object through a field declared by the same class.
func linkedHop(a, b *heap.Object, slot int) bool {
	if a.Kind != heap.KindInstance || b.Kind != heap.KindInstance {
		return false
	}
	d := a.Class.DeclaringClass(slot)
	return d != nil && d == b.Class.DeclaringClass(slot)
}

// collapse tries to fold a run of frames starting at s into one node. It
// returns the node and the last frame the node covers.
func (t *StackTracker) collapse(s int, referer support.Chain) (support.Chain, int, bool) {
	if node, end, ok := t.collapseLinkedList(s, referer); ok {
		return node, end, true
	}
	return t.collapseCollection(s, referer)
}

// collapseLinkedList folds consecutive hops through the same field of
// instances that declare it in the same class.
func (t *StackTracker) collapseLinkedList(s int, referer support.Chain) (support.Chain, int, bool) {
	n := len(t.frames)
	if s >= n-2 {
		return support.Chain{}, 0, false
	}
	first := t.frames[s]
	if first.obj.Kind != heap.KindInstance {
		return support.Chain{}, 0, false
	}
	field := first.slot
	elemClass := first.obj.Class
	declaring := elemClass.DeclaringClass(field)
	if declaring == nil {
		return support.Chain{}, 0, false
	}

	r := s
	for {
		next := t.frames[r+1]
		if next.slot != field || next.obj.Kind != heap.KindInstance ||
			next.obj.Class.DeclaringClass(field) != declaring {
			break
		}
		if elemClass != nil && next.obj.Class != elemClass {
			elemClass = nil
		}
		r++
		if r >= n-2 {
			break
		}
	}
	if r == s {
		return support.Chain{}, 0, false
	}
	listClass := elemClass
	if listClass == nil {
		listClass = declaring
	}

	switch referer.Kind() {
	case support.ElemLinkedList:
		if node, ok := extendLinkedList(t.tree, referer, listClass, field); ok {
			return node, r, true
		}
	case support.ElemCollection:
		if d := t.reg.ClassDescriptor(referer.Class()); d != nil && d.IsImplClass(listClass) {
			if r+1 < n && d.IsImplClass(t.frames[r+1].obj.Class) {
				r++
			}
			return referer, r, true
		}
	}
	return t.tree.LinkedList(referer, listClass, field), r, true
}

// collapseCollection folds a collection and its implementation objects.
func (t *StackTracker) collapseCollection(s int, referer support.Chain) (support.Chain, int, bool) {
	n := len(t.frames)
	o := t.frames[s].obj
	if o.Kind != heap.KindInstance || s+1 >= n {
		return support.Chain{}, 0, false
	}
	d := t.reg.ClassDescriptor(o.Class)
	if d == nil {
		return support.Chain{}, 0, false
	}
	next := t.frames[s+1].obj
	if !d.IsImplClass(next.Class) && next.Class.Name != objectArrayClass {
		return support.Chain{}, 0, false
	}
	node := t.tree.Collection(referer, o.Class)
	j := s + 2
	for j < n && d.IsImplClass(t.frames[j].obj.Class) {
		j++
	}
	return node, j - 1, true
}

const objectArrayClass = "java.lang.Object[]"
