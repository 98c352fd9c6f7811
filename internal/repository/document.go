package repository

import (
	"context"

	"towerdocs/internal/model"
)

// DocumentHook runs inside a repository transaction once the affected
// documents are locked and checked, before their rows are removed.
// Returning an error rolls the whole transaction back.
type DocumentHook func(ctx context.Context, docs []model.Document) error

// DocumentRepository defines data access for document versions using SQL queries only.
// Every mutation that touches a variant's version set serializes on that variant.
type DocumentRepository interface {
	// CreateVersion stores doc as the new active version of doc.VariantID.
	// It assigns Version one past the variant's highest existing version
	// (first is 1) and IsActive, and deactivates the previous active
	// document in the same transaction.
	CreateVersion(ctx context.Context, doc *model.Document) (*model.Document, error)

	// FindByID returns a document by its ID or apperr.ErrNotFound.
	FindByID(ctx context.Context, id string) (*model.Document, error)

	// FindActive returns the active document of a variant or apperr.ErrNotFound.
	FindActive(ctx context.Context, variantID string) (*model.Document, error)

	// ListByVariant returns a variant's documents, newest version first.
	ListByVariant(ctx context.Context, variantID string) ([]model.Document, error)

	// List returns a paginated list of documents, newest upload first.
	List(ctx context.Context, pq PageQuery) (*PageResult[model.Document], error)

	// DeleteVersion removes a document. When the document is active a
	// replacementID naming another document of the same variant is required
	// and becomes active. hook sees the document before its row is removed.
	DeleteVersion(ctx context.Context, id, replacementID string, hook DocumentHook) error

	// Activate makes id the active document of its variant.
	Activate(ctx context.Context, id string) (*model.Document, error)

	Count(ctx context.Context) (int, error)
}

// PageQuery holds limit/offset pagination parameters.
type PageQuery struct {
	Limit  int
	Offset int
}

// PageResult is a generic pagination result wrapper.
// T is typically a model type.
type PageResult[T any] struct {
	Items []T
	Total int
}
