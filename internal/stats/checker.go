package stats

import (
	"github.com/heapscan/internal/descriptors"
	"github.com/heapscan/internal/heap"
	"github.com/heapscan/internal/support"
)

// ProblemChecker is called by a scanner exactly once for every object it
// visits.
type ProblemChecker interface {
	// HandleInstance handles a non-string instance. It returns the
	// collection descriptor if o is a collection analyzed on its own.
	HandleInstance(o *heap.Object) descriptors.Instance
	HandleObjectArray(arr *heap.Object)
	HandleValueArray(arr *heap.Object)
	HandleString(str *heap.Object)
}

// ChainTracker exposes the reference chain of the object being handled.
type ChainTracker interface {
	// Last returns the condensed chain from the GC root to the current object.
	Last() support.Chain
	// PointingObject returns the instance that references the current
	// object, or nil if it is referenced otherwise.
	PointingObject() *heap.Object
	// Tree returns the arena the chains live in.
	Tree() *support.RefTree
}

// Scanner walks every object of a snapshot once, from the GC roots first.
type Scanner interface {
	// ScanFromRoots visits everything reachable from the GC roots.
	ScanFromRoots() error
	// ScanRemaining visits the objects not reachable from any root.
	ScanRemaining() error
	Tracker() ChainTracker
	// Progress returns the percentage of objects processed so far.
	Progress() int
	// Cancel asks the scan to stop at the next checkpoint.
	Cancel()
	// CountProcessed accounts for an object handled outside the scan
	// order, like a string backing array.
	CountProcessed()
}

// parentKind tells how a child object is referenced by its parent.
type parentKind uint8

const (
	parentInstance parentKind = iota
	parentClass
	parentArray
	parentCollection
)
