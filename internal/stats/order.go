package stats

import (
	"sort"

	"github.com/heapscan/internal/heap"
)

// FrontierOrder decides the direction in which the breadth-first scanner
// consumes a frontier. Children pushed while one frontier is consumed are
// sorted for the next one. With alternation on, consecutive frontiers run
// in opposite directions, so a scan that ended near one end of the dump
// continues from that end.
type FrontierOrder struct {
	alternate bool
	// next is the direction of the frontier being built, cur of the one
	// being consumed; true means ascending.
	next, cur bool
}

// NewFrontierOrder returns an order that starts ascending.
func NewFrontierOrder(alternate bool) *FrontierOrder {
	return &FrontierOrder{alternate: alternate, next: true, cur: true}
}

// Before reports whether a sorts before b in the frontier being built.
func (o *FrontierOrder) Before(a, b int) bool {
	if o.next {
		return a < b
	}
	return a > b
}

// InOrder reports whether a comes before b in the frontier being consumed.
func (o *FrontierOrder) InOrder(a, b int) bool {
	if o.cur {
		return a < b
	}
	return a > b
}

// SortIndices sorts global indices for the frontier being built.
func (o *FrontierOrder) SortIndices(idx []int) {
	sort.Slice(idx, func(i, j int) bool { return o.Before(idx[i], idx[j]) })
}

// Advance is called when the frontier being built becomes the current one.
func (o *FrontierOrder) Advance() {
	o.cur = o.next
	if o.alternate {
		o.next = !o.next
	}
}

// Ascending reports the direction of the frontier being consumed.
func (o *FrontierOrder) Ascending() bool {
	return o.cur
}

// LocalityPicker chooses which of several unvisited children the
// depth-first scanner descends into next.
type LocalityPicker interface {
	// Lookahead returns how many candidates Pick wants to see; 1 disables picking.
	Lookahead() int
	// Pick returns the index in candidates of the object to visit, given
	// the dump offset of the previously visited object.
	Pick(prevOffset int64, candidates []*heap.Object) int
}

// firstChild always takes the first candidate.
type firstChild struct{}

func (firstChild) Lookahead() int { return 1 }

func (firstChild) Pick(int64, []*heap.Object) int { return 0 }

// OffsetOracle returns the dump offset of an object.
type OffsetOracle func(o *heap.Object) int64

// ClosestOffset picks the candidate stored nearest to the previously
// visited object, which keeps reads of a disk-backed dump within few pages.
type ClosestOffset struct {
	N      int
	Offset OffsetOracle
}

// DefaultLookahead is how many candidates ClosestOffset inspects by default.
const DefaultLookahead = 8

// NewClosestOffset returns a picker over the recorded object offsets.
func NewClosestOffset() *ClosestOffset {
	return &ClosestOffset{N: DefaultLookahead, Offset: func(o *heap.Object) int64 { return o.Offset }}
}

func (c *ClosestOffset) Lookahead() int {
	if c.N < 1 {
		return 1
	}
	return c.N
}

func (c *ClosestOffset) Pick(prev int64, candidates []*heap.Object) int {
	best, bestDist := 0, int64(-1)
	for i, o := range candidates {
		d := c.Offset(o) - prev
		if d < 0 {
			d = -d
		}
		if bestDist < 0 || d < bestDist {
			best, bestDist = i, d
		}
	}
	return best
}
