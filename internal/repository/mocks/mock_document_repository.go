package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"towerdocs/internal/model"
	"towerdocs/internal/repository"
)

type MockDocumentRepository struct {
	mock.Mock
}

var _ repository.DocumentRepository = (*MockDocumentRepository)(nil)

func (m *MockDocumentRepository) CreateVersion(ctx context.Context, doc *model.Document) (*model.Document, error) {
	args := m.Called(ctx, doc)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Document), args.Error(1)
}

func (m *MockDocumentRepository) FindByID(ctx context.Context, id string) (*model.Document, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Document), args.Error(1)
}

func (m *MockDocumentRepository) FindActive(ctx context.Context, variantID string) (*model.Document, error) {
	args := m.Called(ctx, variantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Document), args.Error(1)
}

func (m *MockDocumentRepository) ListByVariant(ctx context.Context, variantID string) ([]model.Document, error) {
	args := m.Called(ctx, variantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Document), args.Error(1)
}

func (m *MockDocumentRepository) List(ctx context.Context, pq repository.PageQuery) (*repository.PageResult[model.Document], error) {
	args := m.Called(ctx, pq)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*repository.PageResult[model.Document]), args.Error(1)
}

// DeleteVersion records the call and, when the expectation supplies a
// []model.Document as its second return value, feeds it to hook.
func (m *MockDocumentRepository) DeleteVersion(ctx context.Context, id, replacementID string, hook repository.DocumentHook) error {
	args := m.Called(ctx, id, replacementID, hook)
	if docs, ok := extraDocs(args); ok && hook != nil && args.Error(0) == nil {
		if err := hook(ctx, docs); err != nil {
			return err
		}
	}
	return args.Error(0)
}

func (m *MockDocumentRepository) Activate(ctx context.Context, id string) (*model.Document, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Document), args.Error(1)
}

func (m *MockDocumentRepository) Count(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

func extraDocs(args mock.Arguments) ([]model.Document, bool) {
	if len(args) < 2 {
		return nil, false
	}
	docs, ok := args.Get(1).([]model.Document)
	return docs, ok
}
