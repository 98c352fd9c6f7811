package service

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"towerdocs/internal/apperr"
	"towerdocs/internal/cache"
	"towerdocs/internal/logger"
	"towerdocs/internal/model"
	"towerdocs/internal/repository"
	"towerdocs/internal/storage"
)

const (
	defaultPageSize = 10
	maxPageSize     = 100
	maxFilenameLen  = 255
)

// DocumentListResult is the service-level DTO for paginated documents.
type DocumentListResult struct {
	Items []model.Document `json:"data"`
	Total int              `json:"total"`
}

// DocumentService manages the versioned drawings of a variant. A variant has
// at most one active document at any time.
type DocumentService interface {
	// UploadNewVersion stores the blob, then records it as the variant's new
	// active version. The blob is removed again when recording fails.
	UploadNewVersion(ctx context.Context, variantID string, r io.Reader, in model.UploadInput) (*model.Document, error)

	// GetActiveDocument returns nil without error when the variant has no
	// active document yet.
	GetActiveDocument(ctx context.Context, variantID string) (*model.Document, error)

	// ListVersionHistory returns every version of a variant, newest first.
	ListVersionHistory(ctx context.Context, variantID string) ([]model.Document, error)

	// DeleteVersion removes a document and its blob. Deleting the active
	// document requires a replacement from the same variant.
	DeleteVersion(ctx context.Context, documentID, replacementID string) error

	// ActivateVersion makes an existing version the active one.
	ActivateVersion(ctx context.Context, documentID string) (*model.Document, error)

	Get(ctx context.Context, id string) (*model.Document, error)
	List(ctx context.Context, limit, offset int) (*DocumentListResult, error)
}

type documentService struct {
	store    storage.ObjectStore
	docs     repository.DocumentRepository
	variants repository.VariantRepository
	cache    cache.Cache
	log      *logger.Logger
	now      func() time.Time
}

// NewDocumentService constructs a new DocumentService.
func NewDocumentService(
	store storage.ObjectStore,
	docs repository.DocumentRepository,
	variants repository.VariantRepository,
	c cache.Cache,
	log *logger.Logger,
) DocumentService {
	if c == nil {
		c = cache.Nop{}
	}
	if log == nil {
		log = logger.Nop()
	}
	return &documentService{store: store, docs: docs, variants: variants, cache: c, log: log, now: time.Now}
}

func (s *documentService) UploadNewVersion(ctx context.Context, variantID string, r io.Reader, in model.UploadInput) (*model.Document, error) {
	if err := validateID("variant", variantID); err != nil {
		return nil, err
	}
	if r == nil {
		return nil, apperr.Validation("file is required")
	}
	if _, err := s.variants.FindByID(ctx, variantID); err != nil {
		return nil, err
	}

	obj, err := s.store.Store(ctx, r, storage.Metadata{
		Filename:    in.Filename,
		ContentType: in.ContentType,
		VariantID:   variantID,
		Size:        in.Size,
	})
	if err != nil {
		return nil, err
	}

	doc, err := s.docs.CreateVersion(ctx, &model.Document{
		ID:               uuid.NewString(),
		VariantID:        variantID,
		StorageLocation:  obj.Location,
		OriginalFilename: cleanFilename(in.Filename),
		ContentType:      obj.ContentType,
		ChecksumSHA256:   obj.SHA256,
		PageCount:        obj.PageCount,
		FileSize:         obj.Size,
		UploadedAt:       s.now().UTC(),
	})
	if err != nil {
		// The request may already be cancelled; the blob must still go.
		cleanupCtx := context.WithoutCancel(ctx)
		if delErr := s.store.Delete(cleanupCtx, obj.Location); delErr != nil {
			s.log.Error("document_blob_rollback_failed",
				"variant_id", variantID, "storage_location", obj.Location, "error", delErr)
		}
		return nil, err
	}

	s.log.Info("document_version_created",
		"variant_id", variantID, "document_id", doc.ID, "version", doc.Version, "size", doc.FileSize)
	invalidate(ctx, s.cache, s.log)

	if err := s.withURL(ctx, doc); err != nil {
		s.log.Warn("document_url_unavailable", "document_id", doc.ID, "error", err)
	}
	return doc, nil
}

func (s *documentService) GetActiveDocument(ctx context.Context, variantID string) (*model.Document, error) {
	if err := validateID("variant", variantID); err != nil {
		return nil, err
	}
	if _, err := s.variants.FindByID(ctx, variantID); err != nil {
		return nil, err
	}
	doc, err := s.docs.FindActive(ctx, variantID)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := s.withURL(ctx, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func (s *documentService) ListVersionHistory(ctx context.Context, variantID string) ([]model.Document, error) {
	if err := validateID("variant", variantID); err != nil {
		return nil, err
	}
	if _, err := s.variants.FindByID(ctx, variantID); err != nil {
		return nil, err
	}
	docs, err := s.docs.ListByVariant(ctx, variantID)
	if err != nil {
		return nil, err
	}
	if err := s.withURLs(ctx, docs); err != nil {
		return nil, err
	}
	return docs, nil
}

func (s *documentService) DeleteVersion(ctx context.Context, documentID, replacementID string) error {
	if err := validateID("document", documentID); err != nil {
		return err
	}
	if replacementID != "" {
		if err := validateID("replacement document", replacementID); err != nil {
			return err
		}
	}

	hook := func(ctx context.Context, docs []model.Document) error {
		for _, d := range docs {
			deleteBlob(ctx, s.store, s.log, d)
		}
		return nil
	}
	if err := s.docs.DeleteVersion(ctx, documentID, replacementID, hook); err != nil {
		return err
	}

	s.log.Info("document_version_deleted", "document_id", documentID, "replacement_id", replacementID)
	invalidate(ctx, s.cache, s.log)
	return nil
}

func (s *documentService) ActivateVersion(ctx context.Context, documentID string) (*model.Document, error) {
	if err := validateID("document", documentID); err != nil {
		return nil, err
	}
	doc, err := s.docs.Activate(ctx, documentID)
	if err != nil {
		return nil, err
	}

	s.log.Info("document_version_activated", "document_id", doc.ID, "variant_id", doc.VariantID, "version", doc.Version)
	invalidate(ctx, s.cache, s.log)

	if err := s.withURL(ctx, doc); err != nil {
		s.log.Warn("document_url_unavailable", "document_id", doc.ID, "error", err)
	}
	return doc, nil
}

func (s *documentService) Get(ctx context.Context, id string) (*model.Document, error) {
	if err := validateID("document", id); err != nil {
		return nil, err
	}
	doc, err := s.docs.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.withURL(ctx, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// List returns paginated documents without exposing repository types.
func (s *documentService) List(ctx context.Context, limit, offset int) (*DocumentListResult, error) {
	limit, offset = normalizePage(limit, offset)
	res, err := s.docs.List(ctx, repository.PageQuery{Limit: limit, Offset: offset})
	if err != nil {
		return nil, err
	}
	if err := s.withURLs(ctx, res.Items); err != nil {
		return nil, err
	}
	return &DocumentListResult{Items: res.Items, Total: res.Total}, nil
}

func (s *documentService) withURL(ctx context.Context, doc *model.Document) error {
	u, err := s.store.RetrieveURL(ctx, doc.StorageLocation)
	if err != nil {
		return err
	}
	doc.URL = u
	return nil
}

func (s *documentService) withURLs(ctx context.Context, docs []model.Document) error {
	for i := range docs {
		if err := s.withURL(ctx, &docs[i]); err != nil {
			return err
		}
	}
	return nil
}

// deleteBlob removes a document's blob. Failures leave an orphaned blob and
// are only logged.
func deleteBlob(ctx context.Context, store storage.ObjectStore, log *logger.Logger, d model.Document) {
	err := store.Delete(ctx, d.StorageLocation)
	switch {
	case err == nil:
	case errors.Is(err, apperr.ErrNotFound):
		log.Warn("document_blob_missing", "document_id", d.ID, "storage_location", d.StorageLocation)
	default:
		log.Error("document_blob_delete_failed", "document_id", d.ID, "storage_location", d.StorageLocation, "error", err)
	}
}

func invalidate(ctx context.Context, c cache.Cache, log *logger.Logger) {
	if err := c.Invalidate(ctx); err != nil {
		log.Warn("catalog_cache_invalidate_failed", "error", err)
	}
}

func validateID(entity, id string) error {
	if strings.TrimSpace(id) == "" {
		return apperr.Validation("%s id is required", entity)
	}
	if _, err := uuid.Parse(id); err != nil {
		return apperr.Validation("%s id %q is not a valid UUID", entity, id)
	}
	return nil
}

func normalizePage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// cleanFilename keeps only the base name a client sent, bounded in length.
func cleanFilename(name string) string {
	name = strings.TrimSpace(filepath.Base(strings.ReplaceAll(name, `\`, "/")))
	if name == "" || name == "." || name == "/" {
		return "document.pdf"
	}
	if utf8.RuneCountInString(name) > maxFilenameLen {
		name = string([]rune(name)[:maxFilenameLen])
	}
	return name
}
