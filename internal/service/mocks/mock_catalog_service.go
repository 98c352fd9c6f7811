package mocks

import (
	"context"

	"towerdocs/internal/model"
	"towerdocs/internal/service"

	"github.com/stretchr/testify/mock"
)

type MockCatalogService struct {
	mock.Mock
}

var _ service.CatalogService = (*MockCatalogService)(nil)

func (m *MockCatalogService) CreateCategory(ctx context.Context, in service.CategoryInput) (*model.Category, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Category), args.Error(1)
}

func (m *MockCatalogService) UpdateCategory(ctx context.Context, id string, in service.CategoryInput) (*model.Category, error) {
	args := m.Called(ctx, id, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Category), args.Error(1)
}

func (m *MockCatalogService) GetCategory(ctx context.Context, id string) (*model.CategoryDetail, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.CategoryDetail), args.Error(1)
}

func (m *MockCatalogService) ListCategories(ctx context.Context) ([]model.Category, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Category), args.Error(1)
}

func (m *MockCatalogService) DeleteCategory(ctx context.Context, id string, policy service.DeletePolicy) error {
	args := m.Called(ctx, id, policy)
	return args.Error(0)
}

func (m *MockCatalogService) CreateVariant(ctx context.Context, in service.VariantInput) (*model.Variant, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Variant), args.Error(1)
}

func (m *MockCatalogService) UpdateVariant(ctx context.Context, id string, in service.VariantInput) (*model.Variant, error) {
	args := m.Called(ctx, id, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Variant), args.Error(1)
}

func (m *MockCatalogService) GetVariant(ctx context.Context, id string) (*model.VariantDetail, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.VariantDetail), args.Error(1)
}

func (m *MockCatalogService) ListVariants(ctx context.Context, limit, offset int) (*service.VariantListResult, error) {
	args := m.Called(ctx, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.VariantListResult), args.Error(1)
}

func (m *MockCatalogService) DeleteVariant(ctx context.Context, id string, purge bool) error {
	args := m.Called(ctx, id, purge)
	return args.Error(0)
}

func (m *MockCatalogService) Search(ctx context.Context, q string) (*model.SearchResult, error) {
	args := m.Called(ctx, q)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.SearchResult), args.Error(1)
}

func (m *MockCatalogService) Dashboard(ctx context.Context) (*model.Dashboard, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Dashboard), args.Error(1)
}
