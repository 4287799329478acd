package stats

import (
	"math"
	"sort"

	"github.com/heapscan/internal/heap"
	"github.com/heapscan/internal/support"
)

// stringEntry accumulates the instances of one string value.
type stringEntry struct {
	id           int32
	value        string
	nInst        int
	nBacking     int
	totalBacking int64
	overhead     int64
}

// StringStats collects string statistics during the overall pass. Every
// string gets the id of its value, so the detailed pass can tell whether
// an instance is duplicated. Backing arrays are flagged as implementation
// objects in marks the first time they are seen.
type StringStats struct {
	reader  *heap.StringReader
	marks   *heap.Marks
	shallow int

	table    map[string]*stringEntry
	ids      []int32
	byID     []*stringEntry
	nTotal   int
	nBacking int

	short         support.ShortArrayStats
	nCompressed   int
	nCompressible int
	asciiBytes    int64
	nInts         int
	intsOvhd      int64
	lengths       support.LengthHistogram
}

// NewStringStats creates a collector for the strings of snap. It returns
// nil if the snapshot has no java.lang.String class.
func NewStringStats(snap heap.Snapshot, marks *heap.Marks) *StringStats {
	reader := heap.NewStringReader(snap)
	if reader == nil {
		return nil
	}
	return &StringStats{
		reader: reader,
		marks:  marks,
		table:  make(map[string]*stringEntry, snap.NumObjects()/4),
		ids:    make([]int32, snap.NumObjects()),
		byID:   []*stringEntry{nil},
	}
}

// Reader returns the string reader used by the collector.
func (s *StringStats) Reader() *heap.StringReader {
	return s.reader
}

// Add records one string instance and returns its value. It returns false
// if the value cannot be read, e.g. because the backing array is missing.
func (s *StringStats) Add(str *heap.Object) (string, bool) {
	s.nTotal++
	if s.shallow == 0 {
		s.shallow = str.Size
	}
	value, backing, ok := s.reader.Read(str)
	if !ok {
		return "", false
	}

	e := s.table[value]
	if e == nil {
		e = &stringEntry{id: int32(len(s.byID)), value: value}
		s.table[value] = e
		s.byID = append(s.byID, e)
	}
	if str.Index < len(s.ids) {
		s.ids[str.Index] = e.id
	}
	e.nInst++

	backingSize := 0
	fresh := s.marks.MarkImpl(backing.Index)
	if fresh {
		s.nBacking++
		e.nBacking++
		backingSize = backing.Size
		e.totalBacking += int64(backingSize)
	}

	n := len([]rune(value))
	if backing.ElemType() == heap.TypeByte {
		s.nCompressed++
	} else if latin1(value) {
		s.nCompressible++
		if fresh {
			s.asciiBytes += int64(n) * 2
		}
	}

	s.short.Add(n)
	if isEncodedInt(value) {
		s.nInts++
		s.intsOvhd += int64(s.shallow + backingSize - 4)
	}
	s.lengths.Add(n)
	return value, true
}

func latin1(v string) bool {
	for _, r := range v {
		if r > 0xFF {
			return false
		}
	}
	return true
}

// isEncodedInt reports whether v is a decimal int32 with an optional sign.
func isEncodedInt(v string) bool {
	if v == "" {
		return false
	}
	i := 0
	if v[0] == '-' || v[0] == '+' {
		if len(v) == 1 {
			return false
		}
		i = 1
	}
	var x int64
	for ; i < len(v); i++ {
		c := v[i]
		if c < '0' || c > '9' {
			return false
		}
		x = x*10 + int64(c-'0')
		if x > math.MaxInt32+1 {
			return false
		}
	}
	return v[0] == '-' || x <= math.MaxInt32
}

// ID returns the value id of a string added earlier, or 0.
func (s *StringStats) ID(str *heap.Object) int32 {
	if str.Index < 0 || str.Index >= len(s.ids) {
		return 0
	}
	return s.ids[str.Index]
}

// duplicated returns the group of a string whose value has more than one
// instance, or nil. DupStats must have been called.
func (s *StringStats) duplicated(str *heap.Object) *stringEntry {
	id := s.ID(str)
	if id == 0 {
		return nil
	}
	if e := s.byID[id]; e.nInst > 1 {
		return e
	}
	return nil
}

// DupStats computes duplication overhead for every value with more than
// one instance, largest overhead first.
func (s *StringStats) DupStats() *support.DupStringStats {
	st := &support.DupStringStats{
		NStrings:       s.nTotal,
		NUniqueStrings: len(s.table),
		NBackingArrays: s.nBacking,
	}
	for _, e := range s.byID[1:] {
		st.TotalSize += int64(e.nInst*s.shallow) + e.totalBacking
		if e.nInst == 1 {
			continue
		}
		e.overhead = int64((e.nInst - 1) * s.shallow)
		if e.nBacking > 1 {
			e.overhead += e.totalBacking * int64(e.nBacking-1) / int64(e.nBacking)
		}
		st.NDupStrings += e.nInst
		st.NUniqueDupStrings++
		st.Overhead += e.overhead
		st.Entries = append(st.Entries, support.DupStringEntry{
			Value:          e.value,
			NInstances:     e.nInst,
			NBackingArrays: e.nBacking,
			Overhead:       e.overhead,
		})
	}
	sort.SliceStable(st.Entries, func(i, j int) bool {
		if st.Entries[i].Overhead != st.Entries[j].Overhead {
			return st.Entries[i].Overhead > st.Entries[j].Overhead
		}
		return st.Entries[i].Value < st.Entries[j].Value
	})
	return st
}

// ShortStringStats returns counts of strings of length 0, 1, up to 4 and
// up to 8, each with the shallow size of those strings as overhead.
func (s *StringStats) ShortStringStats() support.ShortArrayStats {
	st := s.short
	sz := int64(s.shallow)
	st.Ovhd0, st.Ovhd1 = int64(st.N0)*sz, int64(st.N1)*sz
	st.Ovhd4, st.Ovhd8 = int64(st.N4)*sz, int64(st.N8)*sz
	return st
}

// CompressibleStats reports strings that already use a byte[] and the
// char-backed ones whose chars all fit in one byte.
func (s *StringStats) CompressibleStats() support.CompressibleStringStats {
	return support.CompressibleStringStats{
		NCompressed:    s.nCompressed,
		NCompressible:  s.nCompressible,
		CharArrayBytes: s.asciiBytes,
		Overhead:       s.asciiBytes / 2,
	}
}

// NumberEncodingStats reports strings holding an int value.
func (s *StringStats) NumberEncodingStats() support.NumberEncodingStringStats {
	return support.NumberEncodingStringStats{NStrings: s.nInts, Overhead: s.intsOvhd}
}

func (s *StringStats) LengthHistogram() *support.LengthHistogram {
	h := s.lengths
	return &h
}

// ShallowSize returns the shallow size of a String instance.
func (s *StringStats) ShallowSize() int {
	return s.shallow
}
