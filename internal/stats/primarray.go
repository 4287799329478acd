package stats

import (
	"github.com/heapscan/internal/heap"
	"github.com/heapscan/internal/support"
)

// PrimitiveArray classifies the contents of one value array. Elements are
// read big-endian as stored in the dump.
type PrimitiveArray struct {
	data     []byte
	elSize   int
	floating bool
	n        int
}

// NewPrimitiveArray wraps data holding elements of elSize bytes. Floating
// point arrays never report unused high bytes.
func NewPrimitiveArray(data []byte, elSize int, floating bool) PrimitiveArray {
	n := 0
	if elSize > 0 {
		n = len(data) / elSize
	}
	return PrimitiveArray{data: data, elSize: elSize, floating: floating, n: n}
}

// PrimitiveArrayOf wraps a value array object.
func PrimitiveArrayOf(arr *heap.Object) PrimitiveArray {
	return NewPrimitiveArray(arr.Data, arr.ElemSize(), arr.ElemType().IsFloating())
}

func (a PrimitiveArray) Len() int { return a.n }

func (a PrimitiveArray) IsLength0() bool { return a.n == 0 }

func (a PrimitiveArray) IsLength1() bool { return a.n == 1 }

// IsEmpty reports whether the array has elements and all of them are zero.
func (a PrimitiveArray) IsEmpty() bool {
	if a.n == 0 {
		return false
	}
	for _, b := range a.data[:a.n*a.elSize] {
		if b != 0 {
			return false
		}
	}
	return true
}

func (a PrimitiveArray) isZero(i int) bool {
	for _, b := range a.data[i*a.elSize : (i+1)*a.elSize] {
		if b != 0 {
			return false
		}
	}
	return true
}

// LZTOverhead returns the bytes taken by trailing zero elements when they
// make up at least half of the array, otherwise 0.
func (a PrimitiveArray) LZTOverhead() int {
	tail := 0
	for i := a.n - 1; i >= 0 && a.isZero(i); i-- {
		tail++
	}
	if tail == 0 || tail < a.n/2 {
		return 0
	}
	return tail * a.elSize
}

// UnusedHiBytesOverhead returns the bytes that could be saved if every
// element were stored in the smallest width that fits all values.
func (a PrimitiveArray) UnusedHiBytesOverhead() int {
	if a.floating || a.elSize <= 1 || a.n == 0 {
		return 0
	}
	minUnused := a.elSize
	for i := 0; i < a.n && minUnused > 0; i++ {
		if u := a.elSize - a.width(i); u < minUnused {
			minUnused = u
		}
	}
	return minUnused * a.n
}

// width returns how many low bytes element i needs as a signed value.
func (a PrimitiveArray) width(i int) int {
	b := a.data[i*a.elSize : (i+1)*a.elSize]
	var v int64
	if b[0]&0x80 != 0 {
		v = -1
	}
	for _, x := range b {
		v = v<<8 | int64(x)
	}
	for k := 1; k < a.elSize; k++ {
		bits := uint(8*k - 1)
		if v >= -(1<<bits) && v < 1<<bits {
			return k
		}
	}
	return a.elSize
}

// ContentProblem is one problem found in the elements of a value array.
type ContentProblem struct {
	Kind     support.ProblemKind
	Overhead int
}

// ContentProblems runs the empty, long zero tail and unused high bytes
// checks independently and returns every one that holds, in that order.
// The overhead of an empty array is its whole size, which is left to the
// caller.
func (a PrimitiveArray) ContentProblems() []ContentProblem {
	var out []ContentProblem
	if a.IsEmpty() {
		out = append(out, ContentProblem{Kind: support.Empty})
	}
	if ovhd := a.LZTOverhead(); ovhd > 0 {
		out = append(out, ContentProblem{Kind: support.LZT, Overhead: ovhd})
	}
	if ovhd := a.UnusedHiBytesOverhead(); ovhd > 0 {
		out = append(out, ContentProblem{Kind: support.UnusedHiBytes, Overhead: ovhd})
	}
	return out
}
