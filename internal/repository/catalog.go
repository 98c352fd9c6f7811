package repository

import (
	"context"

	"towerdocs/internal/model"
)

// CategoryRepository persists tower categories.
type CategoryRepository interface {
	Create(ctx context.Context, c *model.Category) (*model.Category, error)
	Update(ctx context.Context, c *model.Category) (*model.Category, error)
	// FindByID returns the category with its variant count or apperr.ErrNotFound.
	FindByID(ctx context.Context, id string) (*model.Category, error)
	// List returns all categories ordered by name.
	List(ctx context.Context) ([]model.Category, error)
	// Delete removes a category without variants. A category that is still
	// referenced yields apperr.ErrConflict.
	Delete(ctx context.Context, id string) error
	Search(ctx context.Context, q string, limit int) ([]model.Category, error)
	Count(ctx context.Context) (int, error)
	Recent(ctx context.Context, limit int) ([]model.Category, error)
}

// VariantRepository persists tower variants.
type VariantRepository interface {
	Create(ctx context.Context, v *model.Variant) (*model.Variant, error)
	// Update rejects a tower code change with apperr.ErrConflict once any
	// document references the variant.
	Update(ctx context.Context, v *model.Variant) (*model.Variant, error)
	FindByID(ctx context.Context, id string) (*model.Variant, error)
	// List returns variants ordered by tower code.
	List(ctx context.Context, pq PageQuery) (*PageResult[model.Variant], error)
	// ListByCategory returns a category's variants ordered by height.
	ListByCategory(ctx context.Context, categoryID string) ([]model.Variant, error)
	// Delete deactivates every document of the variant, hands them to hook,
	// then removes the documents and the variant in one transaction.
	Delete(ctx context.Context, id string, hook DocumentHook) error
	// Search matches tower code, structural type and category name.
	Search(ctx context.Context, q string, limit int) ([]model.Variant, error)
	Count(ctx context.Context) (int, error)
	Recent(ctx context.Context, limit int) ([]model.Variant, error)
}
