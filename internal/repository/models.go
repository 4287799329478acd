package repository

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"fortio.org/safecast"

	"github.com/heapscan/pkg/model"
)

// ScanReport represents the scan_reports table. The full report is kept as
// JSON next to the columns used for lookups.
type ScanReport struct {
	ID              string               `gorm:"column:id;type:varchar(64);primaryKey"`
	SnapshotName    string               `gorm:"column:snapshot_name;type:varchar(256);index"`
	SnapshotPath    string               `gorm:"column:snapshot_path;type:varchar(1024)"`
	Status          model.AnalysisStatus `gorm:"column:status"`
	ScanOrder       string               `gorm:"column:scan_order;type:varchar(8)"`
	TotalSize       int64                `gorm:"column:total_size"`
	ProblemOverhead int64                `gorm:"column:problem_overhead"`
	NumFindings     int32                `gorm:"column:num_findings"`
	Version         string               `gorm:"column:version;type:varchar(32)"`
	Report          JSONField            `gorm:"column:report;type:json"`
	AnalyzedAt      time.Time            `gorm:"column:analyzed_at;index"`
	CreatedAt       time.Time            `gorm:"column:created_at;autoCreateTime"`
}

// TableName returns the table name for ScanReport.
func (ScanReport) TableName() string {
	return "scan_reports"
}

// ToModel decodes the stored report.
func (r *ScanReport) ToModel() (*model.Report, error) {
	report := &model.Report{}
	if r.Report != nil {
		if err := json.Unmarshal(r.Report, report); err != nil {
			return nil, fmt.Errorf("failed to decode report %s: %w", r.ID, err)
		}
	}
	report.ID = r.ID
	report.Status = r.Status
	return report, nil
}

// ScanFinding represents the scan_findings table.
type ScanFinding struct {
	ID         int64     `gorm:"column:id;primaryKey;autoIncrement"`
	ReportID   string    `gorm:"column:report_id;type:varchar(64);index"`
	Position   int32     `gorm:"column:position"`
	View       string    `gorm:"column:finding_view;type:varchar(8)"`
	Type       string    `gorm:"column:type;type:varchar(32)"`
	Referer    string    `gorm:"column:referer;type:text"`
	Overhead   int64     `gorm:"column:overhead;index"`
	NumObjects int32     `gorm:"column:num_objects"`
	Entries    JSONField `gorm:"column:entries;type:json"`
}

// TableName returns the table name for ScanFinding.
func (ScanFinding) TableName() string {
	return "scan_findings"
}

// ToModel converts ScanFinding to model.Finding.
func (f *ScanFinding) ToModel() (model.Finding, error) {
	finding := model.Finding{
		View:       f.View,
		Type:       f.Type,
		Referer:    f.Referer,
		Overhead:   f.Overhead,
		NumObjects: int(f.NumObjects),
	}
	if f.Entries != nil {
		if err := json.Unmarshal(f.Entries, &finding.Entries); err != nil {
			return model.Finding{}, fmt.Errorf("failed to decode finding entries: %w", err)
		}
	}
	return finding, nil
}

// newRecords converts a report into its table rows.
func newRecords(report *model.Report) (*ScanReport, []ScanFinding, error) {
	blob, err := json.Marshal(report)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal report: %w", err)
	}
	numFindings, err := safecast.Conv[int32](len(report.Findings))
	if err != nil {
		return nil, nil, fmt.Errorf("too many findings: %w", err)
	}

	rec := &ScanReport{
		ID:              report.ID,
		SnapshotName:    report.Snapshot.Name,
		SnapshotPath:    report.Snapshot.Path,
		Status:          report.Status,
		ScanOrder:       report.Settings.ScanOrder,
		TotalSize:       report.Summary.TotalSize,
		ProblemOverhead: report.Summary.ProblemOverhead,
		NumFindings:     numFindings,
		Version:         report.Version,
		Report:          blob,
		AnalyzedAt:      report.AnalyzedAt,
	}

	findings := make([]ScanFinding, 0, len(report.Findings))
	for i, f := range report.Findings {
		entries, err := json.Marshal(f.Entries)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to marshal finding entries: %w", err)
		}
		n, err := safecast.Conv[int32](f.NumObjects)
		if err != nil {
			return nil, nil, fmt.Errorf("finding %q object count: %w", f.Referer, err)
		}
		findings = append(findings, ScanFinding{
			ReportID:   report.ID,
			Position:   int32(i), // bounded by numFindings
			View:       f.View,
			Type:       f.Type,
			Referer:    f.Referer,
			Overhead:   f.Overhead,
			NumObjects: n,
			Entries:    entries,
		})
	}
	return rec, findings, nil
}

// JSONField is a custom type for handling JSON fields in GORM.
type JSONField []byte

// Value implements driver.Valuer interface.
func (j JSONField) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return []byte(j), nil
}

// Scan implements sql.Scanner interface.
func (j *JSONField) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		*j = nil
	case []byte:
		*j = append((*j)[0:0], v...)
	case string:
		*j = []byte(v)
	default:
		return errors.New("unsupported type for JSONField")
	}
	return nil
}
