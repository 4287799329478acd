// Package repository persists analysis reports and their findings.
package repository

import (
	"context"

	"github.com/heapscan/pkg/model"
)

// ReportRepository stores analysis reports.
type ReportRepository interface {
	// Create saves a report and its findings in one transaction.
	Create(ctx context.Context, report *model.Report) error

	// GetByID returns the report with the given ID. A missing report is
	// reported as errors.ErrNotFound.
	GetByID(ctx context.Context, id string) (*model.Report, error)

	// ListBySnapshot returns the most recent reports of a snapshot name,
	// newest first. limit <= 0 returns all of them.
	ListBySnapshot(ctx context.Context, snapshotName string, limit int) ([]*model.Report, error)

	// Delete removes a report and its findings.
	Delete(ctx context.Context, id string) error

	// ListTopFindings returns the findings of a report ordered by overhead.
	// An empty view matches both views.
	ListTopFindings(ctx context.Context, reportID, view string, limit int) ([]model.Finding, error)
}
