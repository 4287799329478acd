package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	apperrors "github.com/heapscan/pkg/errors"
	"github.com/heapscan/pkg/model"
)

// findingBatchSize bounds the rows per INSERT when saving findings.
const findingBatchSize = 100

// GormReportRepository implements ReportRepository using GORM.
type GormReportRepository struct {
	db *gorm.DB
}

// NewGormReportRepository creates a new GormReportRepository.
func NewGormReportRepository(db *gorm.DB) *GormReportRepository {
	return &GormReportRepository{db: db}
}

// Create saves a report and its findings.
func (r *GormReportRepository) Create(ctx context.Context, report *model.Report) error {
	if report == nil || report.ID == "" {
		return apperrors.New(apperrors.CodeInvalidInput, "report id is required")
	}
	rec, findings, err := newRecords(report)
	if err != nil {
		return err
	}

	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(rec).Error; err != nil {
			return err
		}
		if len(findings) == 0 {
			return nil
		}
		return tx.CreateInBatches(findings, findingBatchSize).Error
	})
	if err != nil {
		return apperrors.Wrap(apperrors.CodeDatabaseError, "failed to save report", err)
	}
	return nil
}

// GetByID retrieves a report by its ID.
func (r *GormReportRepository) GetByID(ctx context.Context, id string) (*model.Report, error) {
	var rec ScanReport
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.Wrap(apperrors.CodeNotFound, "report not found: "+id, err)
		}
		return nil, apperrors.Wrap(apperrors.CodeDatabaseError, "failed to get report", err)
	}
	return rec.ToModel()
}

// ListBySnapshot retrieves the reports of a snapshot, newest first.
func (r *GormReportRepository) ListBySnapshot(ctx context.Context, snapshotName string, limit int) ([]*model.Report, error) {
	q := r.db.WithContext(ctx).
		Where("snapshot_name = ?", snapshotName).
		Order("analyzed_at DESC").
		Order("id")
	if limit > 0 {
		q = q.Limit(limit)
	}

	var recs []ScanReport
	if err := q.Find(&recs).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.CodeDatabaseError, "failed to list reports", err)
	}

	reports := make([]*model.Report, 0, len(recs))
	for i := range recs {
		report, err := recs[i].ToModel()
		if err != nil {
			return nil, err
		}
		reports = append(reports, report)
	}
	return reports, nil
}

// Delete removes a report and its findings.
func (r *GormReportRepository) Delete(ctx context.Context, id string) error {
	var deleted int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("report_id = ?", id).Delete(&ScanFinding{}).Error; err != nil {
			return err
		}
		res := tx.Where("id = ?", id).Delete(&ScanReport{})
		deleted = res.RowsAffected
		return res.Error
	})
	if err != nil {
		return apperrors.Wrap(apperrors.CodeDatabaseError, "failed to delete report", err)
	}
	if deleted == 0 {
		return apperrors.New(apperrors.CodeNotFound, "report not found: "+id)
	}
	return nil
}

// ListTopFindings retrieves the findings of a report by descending overhead.
func (r *GormReportRepository) ListTopFindings(ctx context.Context, reportID, view string, limit int) ([]model.Finding, error) {
	q := r.db.WithContext(ctx).Where("report_id = ?", reportID)
	if view != "" {
		q = q.Where("finding_view = ?", view)
	}
	q = q.Order("overhead DESC").Order("position")
	if limit > 0 {
		q = q.Limit(limit)
	}

	var recs []ScanFinding
	if err := q.Find(&recs).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.CodeDatabaseError, "failed to query findings", err)
	}

	findings := make([]model.Finding, 0, len(recs))
	for i := range recs {
		f, err := recs[i].ToModel()
		if err != nil {
			return nil, err
		}
		findings = append(findings, f)
	}
	return findings, nil
}
