package mocks

import (
	"context"
	"io"

	"towerdocs/internal/model"
	"towerdocs/internal/service"

	"github.com/stretchr/testify/mock"
)

type MockDocumentService struct {
	mock.Mock
}

var _ service.DocumentService = (*MockDocumentService)(nil)

func (m *MockDocumentService) UploadNewVersion(ctx context.Context, variantID string, r io.Reader, in model.UploadInput) (*model.Document, error) {
	args := m.Called(ctx, variantID, r, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Document), args.Error(1)
}

func (m *MockDocumentService) GetActiveDocument(ctx context.Context, variantID string) (*model.Document, error) {
	args := m.Called(ctx, variantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Document), args.Error(1)
}

func (m *MockDocumentService) ListVersionHistory(ctx context.Context, variantID string) ([]model.Document, error) {
	args := m.Called(ctx, variantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Document), args.Error(1)
}

func (m *MockDocumentService) DeleteVersion(ctx context.Context, documentID, replacementID string) error {
	args := m.Called(ctx, documentID, replacementID)
	return args.Error(0)
}

func (m *MockDocumentService) ActivateVersion(ctx context.Context, documentID string) (*model.Document, error) {
	args := m.Called(ctx, documentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Document), args.Error(1)
}

func (m *MockDocumentService) Get(ctx context.Context, id string) (*model.Document, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Document), args.Error(1)
}

func (m *MockDocumentService) List(ctx context.Context, limit, offset int) (*service.DocumentListResult, error) {
	args := m.Called(ctx, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.DocumentListResult), args.Error(1)
}
