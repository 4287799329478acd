// Package mock provides testify mocks of the report repository and the
// object storage.
package mock

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/heapscan/pkg/model"
)

// MockReportRepository is a mock implementation of repository.ReportRepository.
type MockReportRepository struct {
	mock.Mock
}

// Create mocks the Create method.
func (m *MockReportRepository) Create(ctx context.Context, report *model.Report) error {
	args := m.Called(ctx, report)
	return args.Error(0)
}

// GetByID mocks the GetByID method.
func (m *MockReportRepository) GetByID(ctx context.Context, id string) (*model.Report, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Report), args.Error(1)
}

// ListBySnapshot mocks the ListBySnapshot method.
func (m *MockReportRepository) ListBySnapshot(ctx context.Context, snapshotName string, limit int) ([]*model.Report, error) {
	args := m.Called(ctx, snapshotName, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.Report), args.Error(1)
}

// Delete mocks the Delete method.
func (m *MockReportRepository) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// ListTopFindings mocks the ListTopFindings method.
func (m *MockReportRepository) ListTopFindings(ctx context.Context, reportID, view string, limit int) ([]model.Finding, error) {
	args := m.Called(ctx, reportID, view, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Finding), args.Error(1)
}

// ExpectCreate sets up an expectation for Create of the report with the given ID.
func (m *MockReportRepository) ExpectCreate(id string, err error) *mock.Call {
	return m.On("Create", mock.Anything, mock.MatchedBy(func(r *model.Report) bool {
		return r != nil && r.ID == id
	})).Return(err)
}
