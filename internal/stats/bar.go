package stats

import "github.com/heapscan/internal/heap"

// BarOverhead returns the bytes wasted by a "vertical bar" shaped
// two-dimensional structure: many short sub-arrays under one outer
// container. The overhead is the difference between the current layout and
// the same data rotated into maxInner rows of len(subs) columns. It is 0
// when subs are not all arrays of one class, when the structure is not
// taller than it is wide, or when rotating would not save memory.
//
// subs holds the non-null elements of the outer container.
func BarOverhead(layout heap.Layout, subs []*heap.Object) int {
	outer := len(subs)
	if outer < 2 {
		return 0
	}
	first := subs[0]
	if first == nil || (first.Kind != heap.KindObjectArray && first.Kind != heap.KindValueArray) {
		return 0
	}
	elSize := layout.PointerSize
	if first.Kind == heap.KindValueArray {
		elSize = first.ElemSize()
	}

	current, maxInner := 0, 0
	for _, sub := range subs {
		if sub == nil || sub.Class != first.Class {
			return 0
		}
		current += sub.Size
		if l := sub.Len(); l > maxInner {
			maxInner = l
		}
	}
	if maxInner >= outer {
		return 0
	}
	current += outer * layout.PointerSize
	rotated := maxInner*layout.ArraySize(outer, elSize) + maxInner*layout.PointerSize
	if ovhd := current - rotated; ovhd > 0 {
		return ovhd
	}
	return 0
}
