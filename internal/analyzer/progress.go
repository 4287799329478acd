package analyzer

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/heapscan/internal/heap"
	"github.com/heapscan/internal/stats"
	"github.com/heapscan/internal/support"
	"github.com/heapscan/pkg/telemetry"
)

const defaultProgressInterval = time.Second

type progressSource interface {
	ProgressPercentage() int
}

// calculate runs calc and, when a progress callback is set, polls it until
// the calculation returns.
func (a *Analyzer) calculate(ctx context.Context, calc *stats.StandardCalculator, snap heap.Snapshot, path string) (hs *support.HeapStats, err error) {
	ctx, span := telemetry.StartSpan(ctx, "scan",
		telemetry.AttrScanOrder.String(string(a.cfg.ScanOrder)),
		telemetry.AttrNumObjects.Int(snap.NumObjects()),
		telemetry.AttrNumClasses.Int(snap.NumClasses()))
	defer func() { telemetry.EndSpan(span, err) }()

	if a.progress == nil {
		return calc.Calculate(ctx)
	}

	done := make(chan struct{})
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(done)
		var calcErr error
		hs, calcErr = calc.Calculate(gctx)
		return calcErr
	})
	g.Go(func() error {
		a.pollProgress(gctx, done, calc, path)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	a.progress(path, 100)
	return hs, nil
}

// pollProgress reports every change of the percentage until done is closed
// or ctx ends.
func (a *Analyzer) pollProgress(ctx context.Context, done <-chan struct{}, src progressSource, path string) {
	interval := a.cfg.ProgressInterval
	if interval <= 0 {
		interval = defaultProgressInterval
	}
	ticker := a.clock.NewTicker(interval)
	defer ticker.Stop()

	last := -1
	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if pct := src.ProgressPercentage(); pct != last && pct < 100 {
				last = pct
				a.progress(path, pct)
			}
		}
	}
}
