package stats

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/heapscan/internal/descriptors"
	"github.com/heapscan/internal/heap"
	"github.com/heapscan/internal/support"
	apperrors "github.com/heapscan/pkg/errors"
)

// overallShare is the part of the combined progress taken by the linear pass.
const overallShare = 20

const (
	phaseIdle int32 = iota
	phaseOverall
	phaseDetailed
	phaseDone
)

// StandardCalculator runs the overall pass and then the detailed pass on
// one snapshot. Progress and Cancel may be called from other goroutines
// while Calculate runs.
type StandardCalculator struct {
	snap     heap.Snapshot
	recorder support.ProblemRecorder
	opts     Options

	mu        sync.Mutex
	overall   *OverallCalculator
	detailed  *DetailedCalculator
	phase     atomic.Int32
	cancelled atomic.Bool
}

// NewStandardCalculator creates a calculator reporting findings to recorder.
func NewStandardCalculator(snap heap.Snapshot, recorder support.ProblemRecorder, opts Options) *StandardCalculator {
	if recorder == nil {
		recorder = support.NopRecorder{}
	}
	return &StandardCalculator{snap: snap, recorder: recorder, opts: opts.withDefaults()}
}

// Calculate runs both passes. It returns ErrCancelled if Cancel is called
// or ctx is done before the scan completes; no stats are returned then.
func (c *StandardCalculator) Calculate(ctx context.Context) (*support.HeapStats, error) {
	if ctx.Err() != nil {
		return nil, apperrors.ErrCancelled
	}
	stop := context.AfterFunc(ctx, c.Cancel)
	defer stop()

	log := c.opts.Logger
	marks := heap.NewMarksFor(c.snap)

	c.mu.Lock()
	c.overall = NewOverallCalculator(c.snap, marks, log)
	c.mu.Unlock()
	c.phase.Store(phaseOverall)
	if c.cancelled.Load() {
		c.overall.Cancel()
	}
	hs, err := c.overall.Calculate()
	if err != nil {
		return nil, err
	}
	c.recorder.Initialize(c.snap, hs)

	reg := descriptors.NewRegistry(c.snap, marks)
	c.mu.Lock()
	c.detailed = NewDetailedCalculator(reg, marks, hs, c.overall.Strings(), c.overall.Arrays(), c.recorder, c.opts)
	c.mu.Unlock()
	c.phase.Store(phaseDetailed)
	if c.cancelled.Load() {
		return nil, apperrors.ErrCancelled
	}
	if _, err := c.detailed.Calculate(); err != nil {
		return nil, err
	}
	if c.cancelled.Load() {
		return nil, apperrors.ErrCancelled
	}
	c.phase.Store(phaseDone)
	log.Info("heap stats ready: %d objects, %d bytes of problem overhead", hs.NObjects, hs.TotalProblemOverhead())
	return hs, nil
}

// ProgressPercentage combines the progress of both passes. It reaches 100
// only after Calculate succeeded.
func (c *StandardCalculator) ProgressPercentage() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.phase.Load() {
	case phaseOverall:
		return c.overall.Progress() * overallShare / 100
	case phaseDetailed:
		return overallShare + c.detailed.Progress()*(100-overallShare)/100
	case phaseDone:
		return 100
	}
	return 0
}

// Cancel asks the running pass to stop at its next checkpoint.
func (c *StandardCalculator) Cancel() {
	c.cancelled.Store(true)
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.overall != nil {
		c.overall.Cancel()
	}
	if c.detailed != nil {
		c.detailed.Cancel()
	}
}
