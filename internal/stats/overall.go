package stats

import (
	"sort"
	"strings"
	"sync/atomic"

	"github.com/heapscan/internal/heap"
	"github.com/heapscan/internal/support"
	apperrors "github.com/heapscan/pkg/errors"
	"github.com/heapscan/pkg/utils"
)

const (
	overallCancelMask = 1<<17 - 1
	topLoaders        = 10

	unmodifiablePrefix = "java.util.Collections$Unmodifiable"
	synchronizedPrefix = "java.util.Collections$Synchronized"
)

// OverallCalculator computes the aggregate statistics that need only one
// linear pass over all objects: sizes, the object histogram, boxed numbers,
// short arrays, wrapper collections and string and array duplication.
type OverallCalculator struct {
	snap  heap.Snapshot
	marks *heap.Marks
	log   utils.Logger

	strs      *StringStats
	arrays    *ArrayDupMap
	histogram *support.ObjectHistogram

	pass1     atomic.Int64
	pass2     atomic.Int64
	cancelled atomic.Bool
}

// NewOverallCalculator creates a calculator. String backing arrays are
// flagged in marks, which the detailed pass must share.
func NewOverallCalculator(snap heap.Snapshot, marks *heap.Marks, log utils.Logger) *OverallCalculator {
	if log == nil {
		log = &utils.NullLogger{}
	}
	return &OverallCalculator{
		snap:      snap,
		marks:     marks,
		log:       log,
		strs:      NewStringStats(snap, marks),
		arrays:    NewArrayDupMap(snap.NumObjects()),
		histogram: support.NewObjectHistogram(snap.Classes(), snap.Layout().PointerSize),
	}
}

// Strings returns the string collector, nil if the snapshot has no strings.
func (c *OverallCalculator) Strings() *StringStats {
	return c.strs
}

// Arrays returns the primitive array duplication map.
func (c *OverallCalculator) Arrays() *ArrayDupMap {
	return c.arrays
}

// Cancel stops Calculate at its next checkpoint.
func (c *OverallCalculator) Cancel() {
	c.cancelled.Store(true)
}

// Progress weighs the first pass three times as much as the second.
func (c *OverallCalculator) Progress() int {
	n := int64(c.snap.NumObjects())
	if n == 0 {
		return 0
	}
	p := int((c.pass1.Load()*3 + c.pass2.Load()) / 4 * 100 / n)
	if p > 99 {
		p = 99
	}
	return p
}

type overallTotals struct {
	nInstances, nObjArrays          int
	totalObj, totalInst, totalObjArr int64
	nEntries                        int
	entrySize                       int64
	nBoxed                          int
	boxedOvhd                       int64
	shortObj, shortValue            support.ShortArrayStats
	firstLen0, firstLen1            int
	wrappers                        map[string]int
}

// Calculate runs both passes and returns the partially filled stats.
func (c *OverallCalculator) Calculate() (*support.HeapStats, error) {
	layout := c.snap.Layout()
	n := c.snap.NumObjects()
	t := overallTotals{wrappers: make(map[string]int)}

	for i := 0; i < n; i++ {
		if i&overallCancelMask == 0 && c.cancelled.Load() {
			return nil, apperrors.ErrCancelled
		}
		c.pass1.Store(int64(i))
		o := c.snap.Object(i)
		if o == nil {
			continue
		}
		c.addObject(o, layout, &t)
	}
	c.pass1.Store(int64(n))

	// Char and byte arrays not claimed by strings are known only now.
	for i := 0; i < n; i++ {
		if i&overallCancelMask == 0 && c.cancelled.Load() {
			return nil, apperrors.ErrCancelled
		}
		c.pass2.Store(int64(i))
		o := c.snap.Object(i)
		if o == nil || o.Kind != heap.KindValueArray || !isTextArray(o) || c.marks.IsImpl(o.Index) {
			continue
		}
		c.arrays.Add(o)
	}
	c.pass2.Store(int64(n))

	arrHdr := int64(layout.ArrayHeaderSize())
	t.shortObj.Ovhd0 = int64(t.shortObj.N0 * t.firstLen0)
	t.shortObj.Ovhd1 = int64(t.shortObj.N1 * t.firstLen1)
	t.shortObj.Ovhd4 = arrHdr * int64(t.shortObj.N4)
	t.shortObj.Ovhd8 = arrHdr * int64(t.shortObj.N8)
	t.shortValue.Ovhd0 = arrHdr * int64(t.shortValue.N0)
	t.shortValue.Ovhd1 = arrHdr * int64(t.shortValue.N1)
	t.shortValue.Ovhd4 = arrHdr * int64(t.shortValue.N4)
	t.shortValue.Ovhd8 = arrHdr * int64(t.shortValue.N8)

	unmodifiable, synchronized := splitWrappers(t.wrappers)
	hs := &support.HeapStats{}
	hs.SetGeneralStats(layout, c.snap.NumClasses(), n, t.nInstances, t.nObjArrays, t.totalObj, t.totalInst, t.totalObjArr).
		SetObjOverheadStats(int64(n)*int64(layout.ObjectHeaderSize), t.nEntries, t.entrySize).
		SetClassloaderStats(c.classloaderStats()).
		SetShortObjArrayStats(t.shortObj).
		SetShortPrimitiveArrayStats(t.shortValue).
		SetBoxedNumberStats(t.nBoxed, t.boxedOvhd).
		SetWrappedCollectionStats(unmodifiable, synchronized).
		SetDupArrayStats(c.arrays.DupStats()).
		SetObjectHistogram(c.histogram)
	if c.strs != nil {
		hs.SetDupStringStats(c.strs.DupStats()).
			SetShortStringStats(c.strs.ShortStringStats()).
			SetCompressibleStringStats(c.strs.CompressibleStats()).
			SetNumberEncodingStringStats(c.strs.NumberEncodingStats()).
			SetStringLengthHistogram(c.strs.LengthHistogram())
	}
	c.log.Debug("overall pass: %d objects, %d bytes", n, t.totalObj)
	return hs, nil
}

func (c *OverallCalculator) addObject(o *heap.Object, layout heap.Layout, t *overallTotals) {
	c.histogram.AddInstance(o.Class, o.Size)
	t.totalObj += int64(o.Size)

	switch o.Kind {
	case heap.KindInstance:
		t.nInstances++
		t.totalInst += int64(o.Size)
		name := o.Class.Name
		if strings.HasSuffix(name, "$Entry") {
			t.nEntries++
			t.entrySize += int64(o.Size)
		}
		if strings.HasPrefix(name, unmodifiablePrefix) || strings.HasPrefix(name, synchronizedPrefix) {
			t.wrappers[name]++
		}
		if o.Class.IsString() {
			if c.strs != nil {
				c.strs.Add(o)
			}
		} else if bs := o.Class.BoxedNumberSize(); bs > 0 {
			t.nBoxed++
			t.boxedOvhd += int64(o.Size - bs + layout.PointerSize)
		}
	case heap.KindObjectArray:
		t.nObjArrays++
		t.totalObjArr += int64(o.Size)
		l := o.Len()
		t.shortObj.Add(l)
		if l == 0 && t.firstLen0 == 0 {
			t.firstLen0 = o.Size
		} else if l == 1 && t.firstLen1 == 0 {
			t.firstLen1 = o.Size
		}
	case heap.KindValueArray:
		t.shortValue.Add(o.Len())
		if !isTextArray(o) {
			c.arrays.Add(o)
		}
	}
}

func isTextArray(o *heap.Object) bool {
	t := o.ElemType()
	return t == heap.TypeChar || t == heap.TypeByte
}

// splitWrappers sorts wrapper collection counts by count, then name.
func splitWrappers(counts map[string]int) (unmodifiable, synchronized []support.WrapperCount) {
	for name, n := range counts {
		wc := support.WrapperCount{ClassName: name, Count: n}
		if strings.HasPrefix(name, unmodifiablePrefix) {
			unmodifiable = append(unmodifiable, wc)
		} else {
			synchronized = append(synchronized, wc)
		}
	}
	byCount := func(s []support.WrapperCount) {
		sort.Slice(s, func(i, j int) bool {
			if s[i].Count != s[j].Count {
				return s[i].Count > s[j].Count
			}
			return s[i].ClassName < s[j].ClassName
		})
	}
	byCount(unmodifiable)
	byCount(synchronized)
	return unmodifiable, synchronized
}

// classloaderStats counts classes per defining loader.
func (c *OverallCalculator) classloaderStats() support.ClassloaderStats {
	perLoader := make(map[int]int)
	for _, cls := range c.snap.Classes() {
		perLoader[cls.Loader]++
	}
	var top []support.LoaderCount
	for loader, n := range perLoader {
		lc := support.LoaderCount{LoaderClass: "<bootstrap>", LoaderIndex: loader, NumClasses: n}
		if o := c.snap.Object(loader); o != nil {
			lc.LoaderClass = o.Class.Name
		}
		top = append(top, lc)
	}
	sort.Slice(top, func(i, j int) bool {
		if top[i].NumClasses != top[j].NumClasses {
			return top[i].NumClasses > top[j].NumClasses
		}
		return top[i].LoaderIndex < top[j].LoaderIndex
	})
	if len(top) > topLoaders {
		top = top[:topLoaders]
	}
	return support.ClassloaderStats{NumLoaders: len(perLoader), Top: top}
}
