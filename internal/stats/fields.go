package stats

import (
	"math"

	"github.com/heapscan/internal/heap"
	"github.com/heapscan/internal/support"
)

// FieldStats accumulates per-field usage over all instances of one class:
// how many instances have the field non-null or non-zero, and how many
// leave the high bytes of a numeric field unused.
type FieldStats struct {
	fields         []heap.Field
	ptrSize        int
	nonNull        []int
	underutilized  []int
	minUnused      []int8
	numAllNullInst int
}

var _ support.FieldReporter = (*FieldStats)(nil)

// NewFieldStats creates stats for instances of c. Array classes get empty stats.
func NewFieldStats(c *heap.Class, ptrSize int) *FieldStats {
	var fields []heap.Field
	if !c.IsArray {
		fields = c.InstanceFields()
	}
	s := &FieldStats{
		fields:        fields,
		ptrSize:       ptrSize,
		nonNull:       make([]int, len(fields)),
		underutilized: make([]int, len(fields)),
		minUnused:     make([]int8, len(fields)),
	}
	for i := range s.minUnused {
		s.minUnused[i] = math.MaxInt8
	}
	return s
}

// HandleFields counts the field values of one instance.
func (s *FieldStats) HandleFields(values []heap.FieldValue) {
	someNonNull := false
	for i, v := range values {
		if i >= len(s.fields) {
			break
		}
		if v.IsRef() {
			if v.Ref != heap.NoRef {
				s.nonNull[i]++
				someNonNull = true
			}
			continue
		}
		size := v.Type.Size(s.ptrSize)
		numeric := !v.Type.IsFloating() && size > 1
		if v.Bits == 0 {
			if numeric {
				s.markUnused(i, int8(size))
			}
			continue
		}
		s.nonNull[i]++
		someNonNull = true
		if numeric {
			if n := unusedHiBytes(v.Type, v.Bits); n > 0 {
				s.markUnused(i, n)
			}
		}
	}
	if !someNonNull {
		s.numAllNullInst++
	}
}

func (s *FieldStats) markUnused(i int, n int8) {
	s.underutilized[i]++
	if n < s.minUnused[i] {
		s.minUnused[i] = n
	}
}

// unusedHiBytes returns how many high bytes of a numeric value of type t
// are unused. Signed values are sign-extended, char values are not.
func unusedHiBytes(t heap.BasicType, x int64) int8 {
	switch t {
	case heap.TypeInt:
		switch {
		case x >= math.MinInt8 && x <= math.MaxInt8:
			return 3
		case x >= math.MinInt16 && x <= math.MaxInt16:
			return 2
		}
	case heap.TypeChar:
		if x <= 0xFF {
			return 1
		}
	case heap.TypeShort:
		if x >= math.MinInt8 && x <= math.MaxInt8 {
			return 1
		}
	case heap.TypeLong:
		switch {
		case x >= math.MinInt8 && x <= math.MaxInt8:
			return 7
		case x >= math.MinInt16 && x <= math.MaxInt16:
			return 6
		case x >= math.MinInt32 && x <= math.MaxInt32:
			return 4
		}
	}
	return 0
}

func (s *FieldStats) NumFields() int {
	return len(s.fields)
}

func (s *FieldStats) NonNullCount(fieldIdx int) int {
	return s.nonNull[fieldIdx]
}

// NumAllNullInstances returns how many instances had every field null or zero.
func (s *FieldStats) NumAllNullInstances() int {
	return s.numAllNullInst
}

// PercentileEmptyFields returns the fields that are non-null in at most
// maxNonNull instances.
func (s *FieldStats) PercentileEmptyFields(maxNonNull int) []int {
	var out []int
	for i, n := range s.nonNull {
		if n <= maxNonNull {
			out = append(out, i)
		}
	}
	return out
}

// UnusedHiBytesFields returns the char, short, int and long fields whose
// high bytes are unused in at least minBad instances. Fields that are
// always zero are left to PercentileEmptyFields.
func (s *FieldStats) UnusedHiBytesFields(minBad int) *support.UnderutilizedFields {
	var uf support.UnderutilizedFields
	for i, nBad := range s.underutilized {
		if nBad == 0 || nBad < minBad {
			continue
		}
		unused := int(s.minUnused[i])
		if unused == s.fields[i].Type.Size(s.ptrSize) {
			continue
		}
		uf.FieldIndices = append(uf.FieldIndices, i)
		uf.Overheads = append(uf.Overheads, int64(unused)*int64(nBad))
	}
	if len(uf.FieldIndices) == 0 {
		return nil
	}
	return &uf
}
