package analyzer

import (
	"context"
	"path/filepath"

	"github.com/heapscan/internal/storage"
	apperrors "github.com/heapscan/pkg/errors"
	"github.com/heapscan/pkg/model"
	"github.com/heapscan/pkg/telemetry"
	"github.com/heapscan/pkg/writer"
)

// PublishOptions says where a report goes.
type PublishOptions struct {
	Dir    string
	Format string // json, json.gz or json.zst
	Indent bool
	// Save stores the report in the repository.
	Save bool
	// Upload copies the report file to the storage.
	Upload bool
}

// Published describes where a report went.
type Published struct {
	File  *writer.WriteResult
	Saved bool
	Key   string
	URL   string
}

// Publish writes report to Dir as <id><ext>, then saves and uploads it as
// requested. The file is written even when saving or uploading fails.
func (a *Analyzer) Publish(ctx context.Context, report *model.Report, opts PublishOptions) (pub *Published, err error) {
	ctx, span := telemetry.StartSpan(ctx, "publish", telemetry.AttrSnapshotPath.String(report.Snapshot.Path))
	defer func() { telemetry.EndSpan(span, err) }()

	if opts.Save && a.repo == nil {
		return nil, apperrors.New(apperrors.CodeConfigError, "saving reports requires a database")
	}
	if opts.Upload && a.store == nil {
		return nil, apperrors.New(apperrors.CodeConfigError, "uploading reports requires storage")
	}

	w, err := writer.ForFormat[*model.Report](opts.Format, opts.Indent)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInvalidInput, "bad output format", err)
	}
	res, err := w.WriteToFile(report, filepath.Join(opts.Dir, report.ID+w.Extension()))
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeReportWriteFailure, "failed to write report", err)
	}
	pub = &Published{File: res}
	a.logger.Info("report written to %s", res.Path)

	if opts.Save {
		if err := a.repo.Create(ctx, report); err != nil {
			return pub, err
		}
		pub.Saved = true
		a.logger.Info("report %s saved", report.ID)
	}

	if opts.Upload {
		key := storage.ReportKey(report.Snapshot.Name, report.ID, w.Extension())
		if err := a.store.UploadFile(ctx, key, res.Path); err != nil {
			return pub, apperrors.Wrap(apperrors.CodeStorageError, "failed to upload report", err)
		}
		pub.Key = key
		pub.URL = a.store.GetURL(key)
		a.logger.Info("report uploaded to %s", pub.URL)
	}
	return pub, nil
}
