package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"towerdocs/internal/apperr"
	"towerdocs/internal/cache"
	"towerdocs/internal/logger"
	"towerdocs/internal/model"
	"towerdocs/internal/repository"
	"towerdocs/internal/storage"
)

// DeletePolicy decides what happens to a category that still has variants.
type DeletePolicy string

const (
	PolicyRestrict DeletePolicy = "restrict"
	PolicyCascade  DeletePolicy = "cascade"
)

const (
	searchCategoryLimit = 20
	searchVariantLimit  = 50
	dashboardRecent     = 5
	purgeConcurrency    = 4
	maxQueryLen         = 100
)

type CategoryInput struct {
	Name         string `json:"name"`
	Description  string `json:"description"`
	ThumbnailURL string `json:"thumbnail_url"`
}

type VariantInput struct {
	TowerCode        string               `json:"tower_code"`
	Height           float64              `json:"height"`
	StructuralType   model.StructuralType `json:"structural_type"`
	LoadClass        string               `json:"load_class"`
	EngineeringNotes string               `json:"engineering_notes"`
	CategoryID       string               `json:"category_id"`
}

type VariantListResult struct {
	Items []model.Variant `json:"data"`
	Total int             `json:"total"`
}

// CatalogService manages categories and variants and the read views built
// from them.
type CatalogService interface {
	CreateCategory(ctx context.Context, in CategoryInput) (*model.Category, error)
	UpdateCategory(ctx context.Context, id string, in CategoryInput) (*model.Category, error)
	GetCategory(ctx context.Context, id string) (*model.CategoryDetail, error)
	ListCategories(ctx context.Context) ([]model.Category, error)
	// DeleteCategory applies policy, or the configured default when empty.
	DeleteCategory(ctx context.Context, id string, policy DeletePolicy) error

	CreateVariant(ctx context.Context, in VariantInput) (*model.Variant, error)
	UpdateVariant(ctx context.Context, id string, in VariantInput) (*model.Variant, error)
	GetVariant(ctx context.Context, id string) (*model.VariantDetail, error)
	ListVariants(ctx context.Context, limit, offset int) (*VariantListResult, error)
	// DeleteVariant removes the variant with all its documents and their
	// blobs. Without purge a variant that still has documents is refused.
	DeleteVariant(ctx context.Context, id string, purge bool) error

	Search(ctx context.Context, q string) (*model.SearchResult, error)
	Dashboard(ctx context.Context) (*model.Dashboard, error)
}

type catalogService struct {
	categories    repository.CategoryRepository
	variants      repository.VariantRepository
	docs          repository.DocumentRepository
	store         storage.ObjectStore
	cache         cache.Cache
	log           *logger.Logger
	defaultPolicy DeletePolicy
	now           func() time.Time
}

func NewCatalogService(
	categories repository.CategoryRepository,
	variants repository.VariantRepository,
	docs repository.DocumentRepository,
	store storage.ObjectStore,
	c cache.Cache,
	log *logger.Logger,
	defaultPolicy DeletePolicy,
) CatalogService {
	if c == nil {
		c = cache.Nop{}
	}
	if log == nil {
		log = logger.Nop()
	}
	if defaultPolicy == "" {
		defaultPolicy = PolicyRestrict
	}
	return &catalogService{
		categories:    categories,
		variants:      variants,
		docs:          docs,
		store:         store,
		cache:         c,
		log:           log,
		defaultPolicy: defaultPolicy,
		now:           time.Now,
	}
}

func (s *catalogService) CreateCategory(ctx context.Context, in CategoryInput) (*model.Category, error) {
	in, err := in.normalize()
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	c, err := s.categories.Create(ctx, &model.Category{
		ID:           uuid.NewString(),
		Name:         in.Name,
		Description:  in.Description,
		ThumbnailURL: in.ThumbnailURL,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("category_created", "category_id", c.ID, "name", c.Name)
	invalidate(ctx, s.cache, s.log)
	return c, nil
}

func (s *catalogService) UpdateCategory(ctx context.Context, id string, in CategoryInput) (*model.Category, error) {
	if err := validateID("category", id); err != nil {
		return nil, err
	}
	in, err := in.normalize()
	if err != nil {
		return nil, err
	}
	c, err := s.categories.Update(ctx, &model.Category{
		ID:           id,
		Name:         in.Name,
		Description:  in.Description,
		ThumbnailURL: in.ThumbnailURL,
		UpdatedAt:    s.now().UTC(),
	})
	if err != nil {
		return nil, err
	}
	invalidate(ctx, s.cache, s.log)
	return c, nil
}

func (s *catalogService) GetCategory(ctx context.Context, id string) (*model.CategoryDetail, error) {
	if err := validateID("category", id); err != nil {
		return nil, err
	}
	return cached(ctx, s, "category:"+id, func() (*model.CategoryDetail, error) {
		c, err := s.categories.FindByID(ctx, id)
		if err != nil {
			return nil, err
		}
		variants, err := s.variants.ListByCategory(ctx, id)
		if err != nil {
			return nil, err
		}
		return &model.CategoryDetail{Category: *c, Variants: nonNil(variants)}, nil
	})
}

func (s *catalogService) ListCategories(ctx context.Context) ([]model.Category, error) {
	return cached(ctx, s, "categories", func() ([]model.Category, error) {
		list, err := s.categories.List(ctx)
		return nonNil(list), err
	})
}

func (s *catalogService) DeleteCategory(ctx context.Context, id string, policy DeletePolicy) error {
	if err := validateID("category", id); err != nil {
		return err
	}
	if policy == "" {
		policy = s.defaultPolicy
	}

	switch policy {
	case PolicyRestrict:
	case PolicyCascade:
		if _, err := s.categories.FindByID(ctx, id); err != nil {
			return err
		}
		variants, err := s.variants.ListByCategory(ctx, id)
		if err != nil {
			return err
		}
		// Each variant goes in its own transaction; a failure part way
		// leaves the remaining variants and the category in place.
		for _, v := range variants {
			if err := s.DeleteVariant(ctx, v.ID, true); err != nil {
				return fmt.Errorf("cascade delete variant %s: %w", v.TowerCode, err)
			}
		}
	default:
		return apperr.Validation("delete policy must be %q or %q", PolicyRestrict, PolicyCascade)
	}

	if err := s.categories.Delete(ctx, id); err != nil {
		return err
	}
	s.log.Info("category_deleted", "category_id", id, "policy", string(policy))
	invalidate(ctx, s.cache, s.log)
	return nil
}

func (s *catalogService) CreateVariant(ctx context.Context, in VariantInput) (*model.Variant, error) {
	in, err := in.normalize()
	if err != nil {
		return nil, err
	}
	if _, err := s.categories.FindByID(ctx, in.CategoryID); err != nil {
		return nil, err
	}
	now := s.now().UTC()
	v, err := s.variants.Create(ctx, &model.Variant{
		ID:               uuid.NewString(),
		TowerCode:        in.TowerCode,
		Height:           in.Height,
		StructuralType:   in.StructuralType,
		LoadClass:        in.LoadClass,
		EngineeringNotes: in.EngineeringNotes,
		CategoryID:       in.CategoryID,
		CreatedAt:        now,
		UpdatedAt:        now,
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("variant_created", "variant_id", v.ID, "tower_code", v.TowerCode)
	invalidate(ctx, s.cache, s.log)
	return v, nil
}

func (s *catalogService) UpdateVariant(ctx context.Context, id string, in VariantInput) (*model.Variant, error) {
	if err := validateID("variant", id); err != nil {
		return nil, err
	}
	in, err := in.normalize()
	if err != nil {
		return nil, err
	}
	if _, err := s.categories.FindByID(ctx, in.CategoryID); err != nil {
		return nil, err
	}
	v, err := s.variants.Update(ctx, &model.Variant{
		ID:               id,
		TowerCode:        in.TowerCode,
		Height:           in.Height,
		StructuralType:   in.StructuralType,
		LoadClass:        in.LoadClass,
		EngineeringNotes: in.EngineeringNotes,
		CategoryID:       in.CategoryID,
		UpdatedAt:        s.now().UTC(),
	})
	if err != nil {
		return nil, err
	}
	invalidate(ctx, s.cache, s.log)
	return v, nil
}

func (s *catalogService) GetVariant(ctx context.Context, id string) (*model.VariantDetail, error) {
	if err := validateID("variant", id); err != nil {
		return nil, err
	}
	return cached(ctx, s, "variant:"+id, func() (*model.VariantDetail, error) {
		v, err := s.variants.FindByID(ctx, id)
		if err != nil {
			return nil, err
		}
		detail := &model.VariantDetail{Variant: *v}
		doc, err := s.docs.FindActive(ctx, id)
		switch {
		case errors.Is(err, apperr.ErrNotFound):
			return detail, nil
		case err != nil:
			return nil, err
		}
		if doc.URL, err = s.store.RetrieveURL(ctx, doc.StorageLocation); err != nil {
			return nil, err
		}
		detail.ActiveDocument = doc
		return detail, nil
	})
}

func (s *catalogService) ListVariants(ctx context.Context, limit, offset int) (*VariantListResult, error) {
	limit, offset = normalizePage(limit, offset)
	key := fmt.Sprintf("variants:%d:%d", limit, offset)
	return cached(ctx, s, key, func() (*VariantListResult, error) {
		res, err := s.variants.List(ctx, repository.PageQuery{Limit: limit, Offset: offset})
		if err != nil {
			return nil, err
		}
		return &VariantListResult{Items: nonNil(res.Items), Total: res.Total}, nil
	})
}

func (s *catalogService) DeleteVariant(ctx context.Context, id string, purge bool) error {
	if err := validateID("variant", id); err != nil {
		return err
	}

	hook := func(ctx context.Context, docs []model.Document) error {
		if !purge {
			return apperr.Conflict("variant still has %d documents; purge required", len(docs))
		}
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(purgeConcurrency)
		for _, d := range docs {
			g.Go(func() error {
				deleteBlob(gctx, s.store, s.log, d)
				return nil
			})
		}
		return g.Wait()
	}
	if err := s.variants.Delete(ctx, id, hook); err != nil {
		return err
	}
	s.log.Info("variant_deleted", "variant_id", id, "purge", purge)
	invalidate(ctx, s.cache, s.log)
	return nil
}

// Search matches q case-insensitively against tower codes, structural types
// and category names.
func (s *catalogService) Search(ctx context.Context, q string) (*model.SearchResult, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return nil, apperr.Validation("search query is required")
	}
	if utf8.RuneCountInString(q) > maxQueryLen {
		return nil, apperr.Validation("search query must be at most %d characters", maxQueryLen)
	}

	categories, err := s.categories.Search(ctx, q, searchCategoryLimit)
	if err != nil {
		return nil, err
	}
	variants, err := s.variants.Search(ctx, q, searchVariantLimit)
	if err != nil {
		return nil, err
	}
	return &model.SearchResult{Query: q, Categories: nonNil(categories), Variants: nonNil(variants)}, nil
}

func (s *catalogService) Dashboard(ctx context.Context) (*model.Dashboard, error) {
	var d model.Dashboard
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		d.CategoryCount, err = s.categories.Count(gctx)
		return err
	})
	g.Go(func() (err error) {
		d.VariantCount, err = s.variants.Count(gctx)
		return err
	})
	g.Go(func() (err error) {
		d.DocumentCount, err = s.docs.Count(gctx)
		return err
	})
	g.Go(func() (err error) {
		d.RecentCategories, err = s.categories.Recent(gctx, dashboardRecent)
		return err
	})
	g.Go(func() (err error) {
		d.RecentVariants, err = s.variants.Recent(gctx, dashboardRecent)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	d.RecentCategories = nonNil(d.RecentCategories)
	d.RecentVariants = nonNil(d.RecentVariants)
	return &d, nil
}

// cached serves key from the catalog cache, loading and storing it on a miss.
// Cache failures fall through to load.
func cached[T any](ctx context.Context, s *catalogService, key string, load func() (T, error)) (T, error) {
	var out T
	found, err := s.cache.Get(ctx, key, &out)
	if err != nil {
		s.log.Warn("catalog_cache_get_failed", "key", key, "error", err)
	} else if found {
		return out, nil
	}

	out, err = load()
	if err != nil {
		return out, err
	}
	if err := s.cache.Set(ctx, key, out); err != nil {
		s.log.Warn("catalog_cache_set_failed", "key", key, "error", err)
	}
	return out, nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func (in CategoryInput) normalize() (CategoryInput, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Description = strings.TrimSpace(in.Description)
	in.ThumbnailURL = strings.TrimSpace(in.ThumbnailURL)

	var errs []error
	if n := utf8.RuneCountInString(in.Name); n < 2 || n > 100 {
		errs = append(errs, errors.New("name must be 2 to 100 characters"))
	}
	if utf8.RuneCountInString(in.Description) > 2000 {
		errs = append(errs, errors.New("description must be at most 2000 characters"))
	}
	if in.ThumbnailURL != "" && !validHTTPURL(in.ThumbnailURL) {
		errs = append(errs, errors.New("thumbnail_url must be an absolute http(s) URL"))
	}
	if len(errs) > 0 {
		return in, apperr.Validation("%v", joinMessages(errs))
	}
	return in, nil
}

func (in VariantInput) normalize() (VariantInput, error) {
	in.TowerCode = strings.TrimSpace(in.TowerCode)
	in.StructuralType = model.StructuralType(strings.ToLower(strings.TrimSpace(string(in.StructuralType))))
	in.LoadClass = strings.TrimSpace(in.LoadClass)
	in.EngineeringNotes = strings.TrimSpace(in.EngineeringNotes)
	in.CategoryID = strings.TrimSpace(in.CategoryID)

	var errs []error
	if n := utf8.RuneCountInString(in.TowerCode); n < 2 || n > 50 {
		errs = append(errs, errors.New("tower_code must be 2 to 50 characters"))
	}
	if in.Height <= 0 || math.IsNaN(in.Height) || math.IsInf(in.Height, 0) {
		errs = append(errs, errors.New("height must be a positive number"))
	}
	if !in.StructuralType.Valid() {
		errs = append(errs, fmt.Errorf("structural_type must be one of %s, %s, %s",
			model.StructuralSelfSupporting, model.StructuralGuyed, model.StructuralMonopole))
	}
	if utf8.RuneCountInString(in.LoadClass) > 50 {
		errs = append(errs, errors.New("load_class must be at most 50 characters"))
	}
	if _, err := uuid.Parse(in.CategoryID); err != nil {
		errs = append(errs, errors.New("category_id must be a valid UUID"))
	}
	if len(errs) > 0 {
		return in, apperr.Validation("%v", joinMessages(errs))
	}
	return in, nil
}

func validHTTPURL(raw string) bool {
	u, err := url.ParseRequestURI(raw)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func joinMessages(errs []error) string {
	msgs := make([]string, len(errs))
	for i, err := range errs {
		msgs[i] = err.Error()
	}
	return strings.Join(msgs, "; ")
}
