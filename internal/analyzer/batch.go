package analyzer

import (
	"context"
	"errors"

	apperrors "github.com/heapscan/pkg/errors"
	"github.com/heapscan/pkg/model"
	"github.com/heapscan/pkg/parallel"
)

// AnalyzeBatch analyzes paths on at most MaxWorker goroutines. Every path
// gets a result in input order; a failing snapshot does not stop the
// others. The error is ErrCancelled when ctx ended before the batch did.
func (a *Analyzer) AnalyzeBatch(ctx context.Context, paths []string) ([]model.BatchResult, error) {
	pool := parallel.NewWorkerPool[string, *model.Report](
		parallel.DefaultPoolConfig().WithWorkers(a.cfg.MaxWorker).WithMetrics())
	results := pool.ExecuteFunc(ctx, paths, a.Analyze)

	out := make([]model.BatchResult, len(results))
	for i, r := range results {
		out[i] = model.BatchResult{Path: r.Input, Report: r.Result, Status: statusOf(r.Error)}
		if r.Error != nil {
			out[i].Error = r.Error.Error()
			a.logger.Warn("%s: %v", r.Input, r.Error)
		}
	}

	m := pool.Metrics()
	a.logger.Info("batch done: %d completed, %d failed, %d skipped in %v",
		m.CompletedTasks, m.FailedTasks, m.SkippedTasks, m.TotalDuration)

	if ctx.Err() != nil {
		return out, apperrors.ErrCancelled
	}
	return out, nil
}

func statusOf(err error) model.AnalysisStatus {
	switch {
	case err == nil:
		return model.AnalysisStatusCompleted
	case apperrors.IsCancelled(err), errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return model.AnalysisStatusCancelled
	case errors.Is(err, apperrors.ErrEmptySnapshot):
		return model.AnalysisStatusEmpty
	default:
		return model.AnalysisStatusFailed
	}
}
