package stats

import (
	"sort"

	"github.com/heapscan/internal/descriptors"
	"github.com/heapscan/internal/heap"
	"github.com/heapscan/internal/support"
	"github.com/heapscan/pkg/utils"
)

// objGroup holds the not yet visited children of one parent in a frontier.
type objGroup struct {
	parent  *heap.Object
	kind    parentKind
	referer support.Chain
	// children are global indices in frontier order; slots hold the field
	// or element index of each child in the parent.
	children []int
	slots    []int
	cur      int
}

func (g *objGroup) head() int {
	return g.children[g.cur]
}

// groupSorter sorts the children of a group together with their slots.
type groupSorter struct {
	g     *objGroup
	order *FrontierOrder
}

func (s groupSorter) Len() int { return len(s.g.children) }

func (s groupSorter) Less(i, j int) bool {
	return s.order.Before(s.g.children[i], s.g.children[j])
}

func (s groupSorter) Swap(i, j int) {
	s.g.children[i], s.g.children[j] = s.g.children[j], s.g.children[i]
	s.g.slots[i], s.g.slots[j] = s.g.slots[j], s.g.slots[i]
}

// BreadthFirstScanner visits the heap one frontier at a time. Within a
// frontier, objects are consumed in global index order, which approximates
// their order in the dump, by merging the sorted children of all groups.
type BreadthFirstScanner struct {
	*session
	tracker *TreeTracker
	order   *FrontierOrder

	frontier []*objGroup
	pos      int
	next     []*objGroup
	elems    []int
	err      error
}

var _ Scanner = (*BreadthFirstScanner)(nil)

// NewBreadthFirstScanner creates a scanner reporting to checker. With
// alternate set, consecutive frontiers are consumed in opposite directions.
func NewBreadthFirstScanner(reg *descriptors.Registry, marks *heap.Marks, checker ProblemChecker,
	alternate bool, log utils.Logger) *BreadthFirstScanner {
	return &BreadthFirstScanner{
		session: newSession(reg, marks, checker, log),
		tracker: NewTreeTracker(support.NewRefTree()),
		order:   NewFrontierOrder(alternate),
	}
}

func (b *BreadthFirstScanner) Tracker() ChainTracker {
	return b.tracker
}

func (b *BreadthFirstScanner) ScanFromRoots() error {
	return b.scanRoots(b)
}

func (b *BreadthFirstScanner) ScanRemaining() error {
	return b.scanRemaining(b)
}

func (b *BreadthFirstScanner) scanFrom(o *heap.Object, root *heap.Root) error {
	b.frontier, b.pos, b.next = b.frontier[:0], 0, b.next[:0]
	b.tracker.SetRoot(root)
	for o != nil {
		if err := b.handle(o); err != nil {
			return err
		}
		o = b.nextObject()
	}
	return nil
}

func (b *BreadthFirstScanner) handle(o *heap.Object) error {
	fresh, err := b.visit(o)
	if err != nil || !fresh {
		return err
	}
	switch o.Kind {
	case heap.KindInstance:
		if o.Class.IsString() {
			b.checker.HandleString(o)
			return nil
		}
		col := b.checker.HandleInstance(o)
		refs := b.refSlots(o)
		if col == nil {
			b.pushSlots(o, parentInstance, refs)
			return nil
		}
		if err := b.expandCollection(col); err != nil {
			return err
		}
		if refs != nil && col.HasExtraObjFields() {
			fields := make([]heap.FieldValue, len(refs))
			for i, r := range refs {
				fields[i] = heap.Ref(r)
			}
			col.FilterExtraObjFields(fields)
			for i, f := range fields {
				refs[i] = f.Ref
			}
			b.pushSlots(o, parentInstance, refs)
		}
	case heap.KindClass:
		b.pushSlots(o, parentClass, b.refSlots(o))
	case heap.KindObjectArray:
		b.checker.HandleObjectArray(o)
		b.pushSlots(o, parentArray, o.Elements)
	case heap.KindValueArray:
		b.checker.HandleValueArray(o)
	}
	return nil
}

// expandCollection handles the implementation objects of col right away
// and queues its elements as one group.
func (b *BreadthFirstScanner) expandCollection(col descriptors.Instance) error {
	b.elems = b.elems[:0]
	b.err = nil
	col.Iterate(descriptors.VisitorFuncs{
		Impl: b.handleImpl,
		Elem: func(key, value int) bool {
			b.elems = append(b.elems, key, value)
			return true
		},
	})
	if b.err != nil {
		return b.err
	}
	b.pushSlots(col.Object(), parentCollection, b.elems)
	return nil
}

func (b *BreadthFirstScanner) handleImpl(impl *heap.Object) bool {
	fresh, err := b.visit(impl)
	if err != nil {
		b.err = err
		return false
	}
	if !fresh {
		b.log.Debug("implementation object %d visited twice", impl.Index)
		return false
	}
	switch impl.Kind {
	case heap.KindInstance:
		b.checker.HandleInstance(impl)
	case heap.KindObjectArray:
		b.checker.HandleObjectArray(impl)
	case heap.KindValueArray:
		b.checker.HandleValueArray(impl)
	}
	return true
}

// pushSlots queues the non-null, unvisited refs of parent as a group of
// the frontier being built.
func (b *BreadthFirstScanner) pushSlots(parent *heap.Object, kind parentKind, refs []int) {
	var g *objGroup
	for i, r := range refs {
		if r < 0 || b.marks.IsVisited(r) {
			continue
		}
		if g == nil {
			g = &objGroup{parent: parent, kind: kind, referer: b.tracker.Last()}
		}
		g.children = append(g.children, r)
		g.slots = append(g.slots, i)
	}
	if g == nil {
		return
	}
	if len(g.children) > 1 {
		sort.Sort(groupSorter{g: g, order: b.order})
	}
	b.next = append(b.next, g)
}

// advance makes the frontier being built current.
func (b *BreadthFirstScanner) advance() bool {
	if len(b.next) == 0 {
		return false
	}
	sort.SliceStable(b.next, func(i, j int) bool {
		return b.order.Before(b.next[i].head(), b.next[j].head())
	})
	b.order.Advance()
	b.frontier, b.next = b.next, b.frontier[:0]
	b.pos = 0
	return true
}

// nextObject returns the next unvisited object of the current frontier,
// moving to the next frontier when it is exhausted, and points the
// tracker at its parent.
func (b *BreadthFirstScanner) nextObject() *heap.Object {
	for {
		if b.pos >= len(b.frontier) && !b.advance() {
			return nil
		}
		g := b.frontier[b.pos]
		ref, slot := g.children[g.cur], g.slots[g.cur]
		g.cur++
		if g.cur == len(g.children) {
			b.frontier[b.pos] = nil
			b.pos++
		} else {
			b.reposition()
		}
		if b.marks.IsVisited(ref) {
			continue
		}
		o := b.snap.Object(ref)
		if o == nil {
			continue
		}
		b.tracker.SetParent(g.parent, g.kind, g.referer)
		b.tracker.SetSlot(slot)
		return o
	}
}

// reposition moves the head group after the groups whose current child
// comes before its own, keeping the frontier ordered by current child.
func (b *BreadthFirstScanner) reposition() {
	rest := b.frontier[b.pos+1:]
	if len(rest) == 0 {
		return
	}
	g := b.frontier[b.pos]
	el := g.head()
	if b.order.InOrder(el, rest[0].head()) {
		return
	}
	p := sort.Search(len(rest), func(i int) bool {
		return !b.order.InOrder(rest[i].head(), el)
	})
	copy(b.frontier[b.pos:], rest[:p])
	b.frontier[b.pos+p] = g
}
