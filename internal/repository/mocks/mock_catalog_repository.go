package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"towerdocs/internal/model"
	"towerdocs/internal/repository"
)

type MockCategoryRepository struct {
	mock.Mock
}

var _ repository.CategoryRepository = (*MockCategoryRepository)(nil)

func (m *MockCategoryRepository) Create(ctx context.Context, c *model.Category) (*model.Category, error) {
	args := m.Called(ctx, c)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Category), args.Error(1)
}

func (m *MockCategoryRepository) Update(ctx context.Context, c *model.Category) (*model.Category, error) {
	args := m.Called(ctx, c)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Category), args.Error(1)
}

func (m *MockCategoryRepository) FindByID(ctx context.Context, id string) (*model.Category, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Category), args.Error(1)
}

func (m *MockCategoryRepository) List(ctx context.Context) ([]model.Category, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Category), args.Error(1)
}

func (m *MockCategoryRepository) Delete(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockCategoryRepository) Search(ctx context.Context, q string, limit int) ([]model.Category, error) {
	args := m.Called(ctx, q, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Category), args.Error(1)
}

func (m *MockCategoryRepository) Count(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

func (m *MockCategoryRepository) Recent(ctx context.Context, limit int) ([]model.Category, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Category), args.Error(1)
}

type MockVariantRepository struct {
	mock.Mock
}

var _ repository.VariantRepository = (*MockVariantRepository)(nil)

func (m *MockVariantRepository) Create(ctx context.Context, v *model.Variant) (*model.Variant, error) {
	args := m.Called(ctx, v)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Variant), args.Error(1)
}

func (m *MockVariantRepository) Update(ctx context.Context, v *model.Variant) (*model.Variant, error) {
	args := m.Called(ctx, v)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Variant), args.Error(1)
}

func (m *MockVariantRepository) FindByID(ctx context.Context, id string) (*model.Variant, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Variant), args.Error(1)
}

func (m *MockVariantRepository) List(ctx context.Context, pq repository.PageQuery) (*repository.PageResult[model.Variant], error) {
	args := m.Called(ctx, pq)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*repository.PageResult[model.Variant]), args.Error(1)
}

func (m *MockVariantRepository) ListByCategory(ctx context.Context, categoryID string) ([]model.Variant, error) {
	args := m.Called(ctx, categoryID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Variant), args.Error(1)
}

// Delete feeds the []model.Document second return value, if any, to hook.
func (m *MockVariantRepository) Delete(ctx context.Context, id string, hook repository.DocumentHook) error {
	args := m.Called(ctx, id, hook)
	if docs, ok := extraDocs(args); ok && hook != nil && args.Error(0) == nil {
		if err := hook(ctx, docs); err != nil {
			return err
		}
	}
	return args.Error(0)
}

func (m *MockVariantRepository) Search(ctx context.Context, q string, limit int) ([]model.Variant, error) {
	args := m.Called(ctx, q, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Variant), args.Error(1)
}

func (m *MockVariantRepository) Count(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

func (m *MockVariantRepository) Recent(ctx context.Context, limit int) ([]model.Variant, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Variant), args.Error(1)
}
