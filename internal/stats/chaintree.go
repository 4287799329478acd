package stats

import (
	"github.com/heapscan/internal/heap"
	"github.com/heapscan/internal/support"
)

// TreeTracker derives chains for a breadth-first scan. Every frontier
// group remembers the chain of its parent, so the chain of a child is one
// hop away from it.
type TreeTracker struct {
	tree *support.RefTree

	root    support.Chain
	atRoot  bool
	parent  *heap.Object
	kind    parentKind
	referer support.Chain
	slot    int

	last      support.Chain
	lastValid bool
}

var _ ChainTracker = (*TreeTracker)(nil)

// NewTreeTracker creates a tracker that stores chains in tree.
func NewTreeTracker(tree *support.RefTree) *TreeTracker {
	return &TreeTracker{tree: tree}
}

func (t *TreeTracker) Tree() *support.RefTree {
	return t.tree
}

// SetRoot makes the next object a GC root referenced by r.
func (t *TreeTracker) SetRoot(r *heap.Root) {
	t.root = t.tree.Root(r)
	t.atRoot = true
	t.parent = nil
	t.last, t.lastValid = t.root, true
}

// SetParent makes the next objects children of parent, whose own chain is referer.
func (t *TreeTracker) SetParent(parent *heap.Object, kind parentKind, referer support.Chain) {
	t.atRoot = false
	t.parent, t.kind, t.referer = parent, kind, referer
	t.lastValid = false
}

// SetSlot records the field or element index of the next child.
func (t *TreeTracker) SetSlot(slot int) {
	if t.slot != slot {
		t.slot = slot
		t.lastValid = false
	}
}

func (t *TreeTracker) PointingObject() *heap.Object {
	if t.atRoot || t.parent == nil || t.parent.Kind != heap.KindInstance {
		return nil
	}
	return t.parent
}

func (t *TreeTracker) Last() support.Chain {
	if t.lastValid {
		return t.last
	}
	t.last = t.hop()
	t.lastValid = true
	return t.last
}

func (t *TreeTracker) hop() support.Chain {
	switch t.kind {
	case parentClass:
		return t.tree.StaticField(t.referer, t.parent.Class, t.slot)
	case parentArray:
		return t.tree.Array(t.referer, t.parent.Class)
	case parentCollection:
		return t.tree.Collection(t.referer, t.parent.Class)
	}
	c := t.parent.Class
	declaring := c.DeclaringClass(t.slot)
	if declaring != nil && t.referer.FieldIndex() == t.slot {
		switch t.referer.Kind() {
		case support.ElemInstanceField:
			// The parent was itself reached through this field.
			if prev := t.referer.Class(); prev.DeclaringClass(t.slot) == declaring {
				listClass := declaring
				if prev == c {
					listClass = c
				}
				return t.tree.LinkedList(t.referer.Referer(), listClass, t.slot)
			}
		case support.ElemLinkedList:
			if node, ok := extendLinkedList(t.tree, t.referer, c, t.slot); ok {
				return node
			}
		}
	}
	return t.tree.InstanceField(t.referer, c, t.slot)
}

// extendLinkedList continues the linked-list run referer ends in by one hop
// out of an instance of c through field. A run over instances of a single
// class is named by that class; once it mixes classes it is named by the
// class declaring the field. It returns false when referer is not a run
// through the same field.
func extendLinkedList(tree *support.RefTree, referer support.Chain, c *heap.Class, field int) (support.Chain, bool) {
	if referer.Kind() != support.ElemLinkedList || referer.FieldIndex() != field {
		return support.Chain{}, false
	}
	declaring := c.DeclaringClass(field)
	lc := referer.Class()
	if declaring == nil || lc.DeclaringClass(field) != declaring {
		return support.Chain{}, false
	}
	if lc == c || lc == declaring {
		return referer, true
	}
	return tree.LinkedList(referer.Referer(), declaring, field), true
}
