package stats

import (
	"github.com/heapscan/internal/descriptors"
	"github.com/heapscan/internal/heap"
	"github.com/heapscan/internal/support"
	"github.com/heapscan/pkg/utils"
)

// DetailedCalculator finds problems in individual collections, arrays and
// strings during a scan from the GC roots, and reports each of them with
// its reference chain to the recorder.
type DetailedCalculator struct {
	snap     heap.Snapshot
	reg      *descriptors.Registry
	marks    *heap.Marks
	recorder support.ProblemRecorder
	scanner  Scanner
	log      utils.Logger

	hs        *support.HeapStats
	histogram *support.ObjectHistogram
	fields    []*FieldStats
	strs      *StringStats
	arrays    *ArrayDupMap

	ptrSize  int
	arrHdr   int
	smallMax int

	numCols, numObjArrays, numValueArrays int
	colTally, objArrTally, valueArrTally  support.Tally
}

var _ ProblemChecker = (*DetailedCalculator)(nil)

// NewDetailedCalculator creates a calculator that completes hs, which the
// overall pass must have filled. strs and arrays are the collectors of
// that pass; strs may be nil.
func NewDetailedCalculator(reg *descriptors.Registry, marks *heap.Marks, hs *support.HeapStats,
	strs *StringStats, arrays *ArrayDupMap, recorder support.ProblemRecorder, opts Options) *DetailedCalculator {
	opts = opts.withDefaults()
	snap := reg.Snapshot()
	layout := snap.Layout()
	if recorder == nil {
		recorder = support.NopRecorder{}
	}
	histogram := hs.Histogram
	if histogram == nil {
		histogram = support.NewObjectHistogram(snap.Classes(), layout.PointerSize)
		hs.SetObjectHistogram(histogram)
	}
	d := &DetailedCalculator{
		snap:      snap,
		reg:       reg,
		marks:     marks,
		recorder:  recorder,
		log:       opts.Logger,
		hs:        hs,
		histogram: histogram,
		fields:    make([]*FieldStats, len(snap.Classes())),
		strs:      strs,
		arrays:    arrays,
		ptrSize:   layout.PointerSize,
		arrHdr:    layout.ArrayHeaderSize(),
		smallMax:  opts.SmallCollectionMaxSize,
	}
	for _, c := range snap.Classes() {
		if c.IsArray {
			continue
		}
		fs := NewFieldStats(c, layout.PointerSize)
		d.fields[c.Index] = fs
		histogram.Entry(c).Fields = fs
	}
	if opts.Order == DepthFirst {
		d.scanner = NewDepthFirstScanner(reg, marks, d, opts.Locality, opts.Logger)
	} else {
		d.scanner = NewBreadthFirstScanner(reg, marks, d, opts.AlternateDirection, opts.Logger)
	}
	return d
}

// Scanner returns the scanner driving the calculator.
func (d *DetailedCalculator) Scanner() Scanner {
	return d.scanner
}

// Calculate scans the heap and stores the detailed results in the stats
// passed to NewDetailedCalculator.
func (d *DetailedCalculator) Calculate() (*support.HeapStats, error) {
	if err := d.scanner.ScanFromRoots(); err != nil {
		return nil, err
	}
	if err := d.scanner.ScanRemaining(); err != nil {
		return nil, err
	}
	d.hs.SetCollectionStats(d.numCols, d.colTally).
		SetObjArrayStats(d.numObjArrays, d.objArrTally).
		SetValueArrayStats(d.numValueArrays, d.valueArrTally).
		SetCollectionOverheadByClass(d.reg.OverheadsByClass())
	d.log.Debug("detailed pass: %d collections, %d object arrays, %d value arrays",
		d.numCols, d.numObjArrays, d.numValueArrays)
	return d.hs, nil
}

func (d *DetailedCalculator) chain() support.Chain {
	return d.scanner.Tracker().Last()
}

// HandleInstance implements ProblemChecker.
func (d *DetailedCalculator) HandleInstance(o *heap.Object) descriptors.Instance {
	if fs := d.fields[o.Class.Index]; fs != nil {
		fs.HandleFields(o.Fields)
	}
	if d.marks.IsImpl(o.Index) {
		return nil
	}
	if d.reg.IsCollection(o.Class) {
		return d.handleCollection(o)
	}
	d.histogram.AddInclusive(o.Class, o.Size)
	if d.recorder.ShouldRecordGoodInstance(o) {
		d.recorder.RecordGoodInstance(o, d.chain())
	}
	return nil
}

func (d *DetailedCalculator) addColProblem(col descriptors.Instance, kind support.ProblemKind, ovhd int) {
	d.colTally.Add(kind, ovhd)
	col.ClassDescriptor().AddProblem(kind, ovhd)
	d.recorder.RecordProblematicCollection(col.Object(), col, kind, ovhd, d.chain())
}

func (d *DetailedCalculator) handleCollection(o *heap.Object) descriptors.Instance {
	col := d.reg.Describe(o)
	desc := col.ClassDescriptor()
	// A HashMap inside a HashSet is analyzed as part of the set.
	if p := d.scanner.Tracker().PointingObject(); p != nil && desc.IsInImplementationOf(p.Class.Name) {
		return nil
	}

	d.numCols++
	implSize := col.ImplSize()
	d.histogram.AddInclusive(o.Class, implSize)

	nEls := col.NumElements()
	if nEls == 0 {
		kind := support.Empty
		if desc.CanDetermineModCount() {
			kind = support.EmptyUnused
			if col.ModCount() != 0 {
				kind = support.EmptyUsed
			}
		}
		d.addColProblem(col, kind, implSize)
		return col
	}

	good := true
	if sp, ok := col.(descriptors.Sparse); ok {
		if ovhd := sp.SparsenessOverhead(d.ptrSize); ovhd > 0 {
			good = false
			kind := support.SparseLarge
			if sp.Capacity() <= sp.DefaultCapacity() {
				kind = support.SparseSmall
			}
			d.addColProblem(col, kind, ovhd)
		}
	}

	mult := 1
	if desc.IsMap() {
		mult = 2
	}
	if nEls <= d.smallMax {
		good = false
		d.addColProblem(col, support.Small, implSize-mult*(nEls*d.ptrSize+d.arrHdr))
	}

	if ovhd := d.boxedCollectionOverhead(col, implSize, nEls); ovhd > 0 {
		good = false
		d.addColProblem(col, support.Boxed, ovhd)
	}

	if IsWeakMap(col) {
		if ovhd, sample := WeakMapBackRefs(d.snap, col); ovhd > 0 {
			good = false
			d.colTally.Add(support.WeakMapWithBackRefs, ovhd)
			desc.AddProblem(support.WeakMapWithBackRefs, ovhd)
			d.recorder.RecordWeakHashMapWithBackRefs(o, col, ovhd, sample, d.chain())
		}
	}

	if !desc.IsMap() {
		if ovhd := BarOverhead(d.snap.Layout(), d.listElements(col)); ovhd > 0 {
			good = false
			d.addColProblem(col, support.Bar, ovhd)
		}
	}

	if good {
		d.recorder.RecordGoodCollection(o, col, d.chain())
	}
	return col
}

// boxedCollectionOverhead estimates the bytes saved by replacing col with
// primitive arrays, judging by sample elements.
func (d *DetailedCalculator) boxedCollectionOverhead(col descriptors.Instance, implSize, nEls int) int {
	if col.ClassDescriptor().IsMap() {
		key, value := col.SampleKeyValue()
		totalObj, totalBoxed, nPtrs := 0, 0, 0
		for _, kv := range []*heap.Object{key, value} {
			if kv == nil {
				continue
			}
			if bs := kv.Class.BoxedNumberSize(); bs > 0 {
				totalBoxed += bs
				totalObj += kv.Size
				nPtrs++
			}
		}
		if totalBoxed == 0 {
			return 0
		}
		return implSize + (totalObj+d.ptrSize*nPtrs-totalBoxed)*nEls - d.arrHdr*nPtrs
	}
	el := col.SampleElement()
	if el == nil {
		return 0
	}
	bs := el.Class.BoxedNumberSize()
	if bs == 0 {
		return 0
	}
	return implSize + (el.Size+d.ptrSize-bs)*nEls - d.arrHdr
}

func (d *DetailedCalculator) listElements(col descriptors.Instance) []*heap.Object {
	var els []*heap.Object
	col.Iterate(descriptors.VisitorFuncs{
		Impl: func(*heap.Object) bool { return true },
		Elem: func(key, _ int) bool {
			o := d.snap.Object(key)
			if o == nil || (o.Kind != heap.KindObjectArray && o.Kind != heap.KindValueArray) {
				els = nil
				return false
			}
			els = append(els, o)
			return true
		},
	})
	return els
}

func (d *DetailedCalculator) addArrayProblem(t *support.Tally, arr *heap.Object, info descriptors.ArrayInfo,
	kind support.ProblemKind, ovhd int) {
	t.Add(kind, ovhd)
	d.reg.ArrayDescriptor(arr).AddProblem(kind, ovhd)
	d.recorder.RecordProblematicCollection(arr, info, kind, ovhd, d.chain())
}

// HandleObjectArray implements ProblemChecker.
func (d *DetailedCalculator) HandleObjectArray(arr *heap.Object) {
	if d.marks.IsImpl(arr.Index) {
		return
	}
	d.numObjArrays++
	d.histogram.AddInclusive(arr.Class, arr.Size)

	n := arr.Len()
	info := descriptors.ArrayInfo{Length: n, Size: arr.Size}
	t := &d.objArrTally
	if n == 0 {
		d.addArrayProblem(t, arr, info, support.LengthZero, arr.Size)
		return
	}

	good := true
	if n == 1 {
		good = false
		d.addArrayProblem(t, arr, info, support.LengthOne, arr.Size)
	}

	nNull, boxedOvhd, boxed := 0, 0, false
	subs := make([]*heap.Object, 0, n)
	for _, ref := range arr.Elements {
		el := d.snap.Object(ref)
		if ref < 0 || el == nil {
			nNull++
			continue
		}
		subs = append(subs, el)
		if el.Kind != heap.KindInstance {
			continue
		}
		if bs := el.Class.BoxedNumberSize(); bs > 0 {
			boxed = true
			boxedOvhd += d.ptrSize - bs
			// A boxed number shared by several slots is saved only once.
			if d.marks.MarkOther(el.Index) {
				boxedOvhd += el.Size
			}
		}
	}

	if nNull > n/2 {
		good = false
		if nNull == n {
			d.addArrayProblem(t, arr, info, support.Empty, arr.Size)
		} else {
			d.addArrayProblem(t, arr, info, support.SparseArray, nNull*d.ptrSize)
		}
	}
	if boxed && boxedOvhd > 0 {
		good = false
		d.addArrayProblem(t, arr, info, support.Boxed, boxedOvhd)
	}
	if nNull == 0 {
		if ovhd := BarOverhead(d.snap.Layout(), subs); ovhd > 0 {
			good = false
			d.addArrayProblem(t, arr, info, support.Bar, ovhd)
		}
	}

	if good {
		d.recorder.RecordGoodCollection(arr, info, d.chain())
	}
}

// HandleValueArray implements ProblemChecker.
func (d *DetailedCalculator) HandleValueArray(arr *heap.Object) {
	if d.marks.IsImpl(arr.Index) {
		return
	}
	d.numValueArrays++
	d.histogram.AddInclusive(arr.Class, arr.Size)

	pa := PrimitiveArrayOf(arr)
	info := descriptors.ArrayInfo{Length: pa.Len(), Size: arr.Size}
	t := &d.valueArrTally
	if pa.IsLength0() {
		d.addArrayProblem(t, arr, info, support.LengthZero, arr.Size)
		return
	}

	good := true
	if pa.IsLength1() {
		good = false
		d.addArrayProblem(t, arr, info, support.LengthOne, arr.Size+d.ptrSize-pa.elSize)
	}
	for _, p := range pa.ContentProblems() {
		good = false
		ovhd := p.Overhead
		if p.Kind == support.Empty {
			ovhd = arr.Size
		}
		d.addArrayProblem(t, arr, info, p.Kind, ovhd)
	}
	if good {
		d.recorder.RecordGoodCollection(arr, info, d.chain())
	}

	if d.arrays == nil {
		return
	}
	if g := d.arrays.duplicated(arr); g != nil {
		d.recorder.RecordDuplicateArray(arr, int(g.overhead)/g.n, d.chain())
	} else {
		d.recorder.RecordNonDuplicateArray(arr, d.chain())
	}
}

// HandleString implements ProblemChecker. The backing array counts
// toward the string's inclusive size unless another string claimed it.
func (d *DetailedCalculator) HandleString(str *heap.Object) {
	d.histogram.AddInclusive(str.Class, str.Size)
	if d.strs == nil {
		return
	}
	inclusive := str.Size
	if backing := d.strs.Reader().Backing(str); backing != nil && d.marks.Visit(backing.Index) {
		d.histogram.AddInclusive(str.Class, backing.Size)
		inclusive += backing.Size
		d.scanner.CountProcessed()
	}

	if e := d.strs.duplicated(str); e != nil {
		d.recorder.RecordDuplicateString(str, e.value, inclusive, int(e.overhead)/e.nInst, e.nBacking > 1, d.chain())
		return
	}
	d.recorder.RecordNonDuplicateString(str, inclusive, d.chain())
}

// Progress returns the percentage of objects scanned.
func (d *DetailedCalculator) Progress() int {
	return d.scanner.Progress()
}

// Cancel stops the scan at its next checkpoint.
func (d *DetailedCalculator) Cancel() {
	d.scanner.Cancel()
}
