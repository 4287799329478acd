package stats

import (
	"sync/atomic"

	"github.com/heapscan/internal/descriptors"
	"github.com/heapscan/internal/heap"
	apperrors "github.com/heapscan/pkg/errors"
	"github.com/heapscan/pkg/utils"
)

// session is the state shared by all passes of one scan: the visited set,
// the progress counter and the cancel flag.
type session struct {
	snap    heap.Snapshot
	reg     *descriptors.Registry
	marks   *heap.Marks
	checker ProblemChecker
	log     utils.Logger

	total     int
	processed atomic.Int64
	cancelled atomic.Bool
}

func newSession(reg *descriptors.Registry, marks *heap.Marks, checker ProblemChecker, log utils.Logger) *session {
	snap := reg.Snapshot()
	if log == nil {
		log = &utils.NullLogger{}
	}
	return &session{
		snap:    snap,
		reg:     reg,
		marks:   marks,
		checker: checker,
		log:     log,
		total:   snap.NumObjects() + snap.NumClasses(),
	}
}

// visit marks o visited and counts it. It fails with ErrCancelled once
// the cancel flag is set, so no object is handled after Cancel returns.
func (s *session) visit(o *heap.Object) (bool, error) {
	if !s.marks.Visit(o.Index) {
		return false, nil
	}
	s.processed.Add(1)
	if s.cancelled.Load() {
		return true, apperrors.ErrCancelled
	}
	return true, nil
}

func (s *session) checkCancelled() error {
	if s.cancelled.Load() {
		return apperrors.ErrCancelled
	}
	return nil
}

func (s *session) Progress() int {
	if s.total == 0 {
		return 0
	}
	p := int(s.processed.Load() * 100 / int64(s.total))
	if p > 99 {
		p = 99
	}
	return p
}

func (s *session) Cancel() {
	s.cancelled.Store(true)
}

func (s *session) CountProcessed() {
	s.processed.Add(1)
}

// refSlots returns the outgoing references of an instance or class
// statics holder, one per field, with primitives and banned fields
// replaced by heap.NoRef.
func (s *session) refSlots(o *heap.Object) []int {
	var values []heap.FieldValue
	var banned []int
	if o.Kind == heap.KindClass {
		values = o.Statics()
	} else {
		values = o.Fields
		banned = s.reg.BannedFields(o.Class)
	}
	refs := make([]int, len(values))
	some := false
	for i, v := range values {
		refs[i] = heap.NoRef
		if v.IsRef() && v.Ref != heap.NoRef {
			refs[i] = v.Ref
			some = true
		}
	}
	for _, i := range banned {
		if i < len(refs) {
			refs[i] = heap.NoRef
		}
	}
	if !some {
		return nil
	}
	return refs
}

// rootVisitor scans from one object with a known or unknown root.
type rootVisitor interface {
	scanFrom(o *heap.Object, root *heap.Root) error
}

// scanRoots visits everything reachable from the snapshot's GC roots.
func (s *session) scanRoots(v rootVisitor) error {
	for _, r := range s.snap.Roots() {
		o := s.snap.Object(r.Object)
		if o == nil {
			s.log.Debug("skipping GC root to missing object %d", r.Object)
			continue
		}
		if s.marks.IsVisited(o.Index) {
			continue
		}
		if err := v.scanFrom(o, r); err != nil {
			return err
		}
	}
	return s.checkCancelled()
}

// scanRemaining visits objects no root reaches, in three passes: wrapper
// collections first so their inner collections are not reported on their
// own, then the other collections and strings, then everything else.
func (s *session) scanRemaining(v rootVisitor) error {
	passes := []func(o *heap.Object) bool{
		func(o *heap.Object) bool {
			return o.Kind == heap.KindInstance && s.reg.HasCollectionInImpl(o.Class)
		},
		func(o *heap.Object) bool {
			return o.Kind == heap.KindInstance && (s.reg.IsCollection(o.Class) || o.Class.IsString())
		},
		func(*heap.Object) bool { return true },
	}
	for _, accept := range passes {
		for i := 0; i < s.total; i++ {
			if s.marks.IsVisited(i) {
				continue
			}
			o := s.snap.Object(i)
			if o == nil || !accept(o) {
				continue
			}
			if err := v.scanFrom(o, heap.UnknownRoot); err != nil {
				return err
			}
		}
		if err := s.checkCancelled(); err != nil {
			return err
		}
	}
	return nil
}
