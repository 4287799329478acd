package stats

import (
	"github.com/heapscan/internal/descriptors"
	"github.com/heapscan/internal/heap"
	"github.com/heapscan/internal/support"
	"github.com/heapscan/pkg/utils"
)

// dfsCursor iterates the outgoing references of one object on the stack.
type dfsCursor struct {
	refs []int
	// lo is the first slot that may still hold an unvisited child.
	lo int
}

// DepthFirstScanner visits the heap depth-first with an explicit stack,
// so deep structures such as long linked lists cannot overflow the
// goroutine stack.
type DepthFirstScanner struct {
	*session
	tracker *StackTracker
	picker  LocalityPicker

	stack      []dfsCursor
	prevOffset int64
	cands      []*heap.Object
	candSlots  []int
}

var _ Scanner = (*DepthFirstScanner)(nil)

// NewDepthFirstScanner creates a scanner reporting to checker. A nil
// picker always descends into the first unvisited child.
func NewDepthFirstScanner(reg *descriptors.Registry, marks *heap.Marks, checker ProblemChecker,
	picker LocalityPicker, log utils.Logger) *DepthFirstScanner {
	if picker == nil {
		picker = firstChild{}
	}
	return &DepthFirstScanner{
		session: newSession(reg, marks, checker, log),
		tracker: NewStackTracker(reg, support.NewRefTree()),
		picker:  picker,
	}
}

func (d *DepthFirstScanner) Tracker() ChainTracker {
	return d.tracker
}

func (d *DepthFirstScanner) ScanFromRoots() error {
	return d.scanRoots(d)
}

func (d *DepthFirstScanner) ScanRemaining() error {
	return d.scanRemaining(d)
}

func (d *DepthFirstScanner) scanFrom(o *heap.Object, root *heap.Root) error {
	d.stack = d.stack[:0]
	d.tracker.SetRoot(root)
	if err := d.enter(o); err != nil {
		return err
	}
	for len(d.stack) > 0 {
		child, slot := d.next(&d.stack[len(d.stack)-1])
		if child == nil {
			d.stack = d.stack[:len(d.stack)-1]
			d.tracker.Pop()
			continue
		}
		d.tracker.SetSlot(slot)
		if err := d.enter(child); err != nil {
			return err
		}
	}
	return nil
}

// enter visits o and handles it. Objects with outgoing references stay
// on the stack until all their children are done.
func (d *DepthFirstScanner) enter(o *heap.Object) error {
	fresh, err := d.visit(o)
	if err != nil || !fresh {
		return err
	}
	d.tracker.Push(o)
	d.prevOffset = o.Offset

	var refs []int
	switch o.Kind {
	case heap.KindInstance:
		if o.Class.IsString() {
			d.checker.HandleString(o)
		} else {
			d.checker.HandleInstance(o)
			refs = d.refSlots(o)
		}
	case heap.KindClass:
		refs = d.refSlots(o)
	case heap.KindObjectArray:
		d.checker.HandleObjectArray(o)
		refs = o.Elements
	case heap.KindValueArray:
		d.checker.HandleValueArray(o)
	}

	if len(refs) == 0 {
		d.tracker.Pop()
		return nil
	}
	d.stack = append(d.stack, dfsCursor{refs: refs})
	return nil
}

// next returns the child to descend into and the slot referencing it,
// or nil when c has no unvisited children left.
func (d *DepthFirstScanner) next(c *dfsCursor) (*heap.Object, int) {
	look := d.picker.Lookahead()
	d.cands, d.candSlots = d.cands[:0], d.candSlots[:0]
	for i := c.lo; i < len(c.refs) && len(d.cands) < look; i++ {
		var o *heap.Object
		if ref := c.refs[i]; ref >= 0 {
			o = d.snap.Object(ref)
		}
		if o == nil || d.marks.IsVisited(o.Index) {
			if len(d.cands) == 0 {
				c.lo = i + 1
			}
			continue
		}
		d.cands = append(d.cands, o)
		d.candSlots = append(d.candSlots, i)
	}
	switch len(d.cands) {
	case 0:
		return nil, 0
	case 1:
		c.lo = d.candSlots[0] + 1
		return d.cands[0], d.candSlots[0]
	}
	k := d.picker.Pick(d.prevOffset, d.cands)
	if k == 0 {
		c.lo = d.candSlots[0] + 1
	}
	return d.cands[k], d.candSlots[k]
}
