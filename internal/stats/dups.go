package stats

import (
	"bytes"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/heapscan/internal/heap"
	"github.com/heapscan/internal/support"
)

const sampleElements = 8

// arrayGroup holds primitive arrays with identical class and contents.
type arrayGroup struct {
	sample   *heap.Object
	n        int
	overhead int64
}

// ArrayDupMap finds primitive arrays with equal contents. Arrays are
// bucketed by a checksum of class and data, then compared exactly.
type ArrayDupMap struct {
	byHash  map[uint64][]int32
	groups  []*arrayGroup
	ids     []int32
	nArrays int
}

// NewArrayDupMap creates a map for a snapshot with numObjects objects.
func NewArrayDupMap(numObjects int) *ArrayDupMap {
	return &ArrayDupMap{
		byHash: make(map[uint64][]int32),
		groups: []*arrayGroup{nil},
		ids:    make([]int32, numObjects),
	}
}

func checksum(arr *heap.Object) uint64 {
	d := xxhash.New()
	_, _ = d.WriteString(arr.Class.Name)
	_, _ = d.Write(arr.Data)
	return d.Sum64()
}

// Add records one value array and returns the id of its contents.
func (m *ArrayDupMap) Add(arr *heap.Object) int32 {
	m.nArrays++
	h := checksum(arr)
	var id int32
	for _, gid := range m.byHash[h] {
		g := m.groups[gid]
		if g.sample.Class == arr.Class && bytes.Equal(g.sample.Data, arr.Data) {
			id = gid
			g.n++
			break
		}
	}
	if id == 0 {
		id = int32(len(m.groups))
		m.groups = append(m.groups, &arrayGroup{sample: arr, n: 1})
		m.byHash[h] = append(m.byHash[h], id)
	}
	if arr.Index >= 0 && arr.Index < len(m.ids) {
		m.ids[arr.Index] = id
	}
	return id
}

// duplicated returns the group of an array whose contents occur more than
// once, or nil. DupStats must have been called.
func (m *ArrayDupMap) duplicated(arr *heap.Object) *arrayGroup {
	if arr.Index < 0 || arr.Index >= len(m.ids) {
		return nil
	}
	id := m.ids[arr.Index]
	if id == 0 {
		return nil
	}
	if g := m.groups[id]; g.n > 1 {
		return g
	}
	return nil
}

// DupStats computes the overhead of every group of equal arrays, largest first.
func (m *ArrayDupMap) DupStats() *support.DupArrayStats {
	st := &support.DupArrayStats{NArrays: m.nArrays, NUniqueArrays: len(m.groups) - 1}
	for _, g := range m.groups[1:] {
		if g.n == 1 {
			continue
		}
		g.overhead = int64((g.n - 1) * g.sample.Size)
		st.NDupArrays += g.n
		st.NUniqueDupArrays++
		st.Overhead += g.overhead
		st.Entries = append(st.Entries, support.DupArrayEntry{
			ClassName: g.sample.Class.Name,
			Length:    g.sample.Len(),
			ArraySize: g.sample.Size,
			NArrays:   g.n,
			Overhead:  g.overhead,
			Sample:    FormatArraySample(g.sample),
		})
	}
	sort.SliceStable(st.Entries, func(i, j int) bool {
		return st.Entries[i].Overhead > st.Entries[j].Overhead
	})
	return st
}

// FormatArraySample renders the first elements of a value array.
func FormatArraySample(arr *heap.Object) string {
	n := arr.Len()
	if arr.ElemType() == heap.TypeChar {
		k := n
		if k > 4*sampleElements {
			k = 4 * sampleElements
		}
		s := strconv.Quote(heap.DecodeChars(arr.Data[:2*k]))
		if k < n {
			s += "..."
		}
		return s
	}
	var sb strings.Builder
	sb.WriteByte('[')
	for i := 0; i < n && i < sampleElements; i++ {
		if i > 0 {
			sb.WriteString(", ")
		}
		switch v := arr.Int(i); arr.ElemType() {
		case heap.TypeFloat:
			sb.WriteString(strconv.FormatFloat(float64(math.Float32frombits(uint32(v))), 'g', -1, 32))
		case heap.TypeDouble:
			sb.WriteString(strconv.FormatFloat(math.Float64frombits(uint64(v)), 'g', -1, 64))
		default:
			sb.WriteString(strconv.FormatInt(v, 10))
		}
	}
	if n > sampleElements {
		sb.WriteString(", ...")
	}
	sb.WriteByte(']')
	return sb.String()
}
