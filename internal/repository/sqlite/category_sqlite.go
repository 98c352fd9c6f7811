package sqlite

import (
	"context"
	"database/sql"

	"towerdocs/internal/model"
	"towerdocs/internal/repository"
)

const categorySelect = `
	SELECT c.id, c.name, c.description, c.thumbnail_url, c.created_at, c.updated_at,
		(SELECT COUNT(*) FROM tower_variants v WHERE v.category_id = c.id) AS variant_count
	FROM tower_categories c`

// CategoryStore persists categories in SQLite.
type CategoryStore struct {
	db *sql.DB
}

func NewCategoryStore(db *sql.DB) *CategoryStore {
	return &CategoryStore{db: db}
}

var _ repository.CategoryRepository = (*CategoryStore)(nil)

func scanCategory(s scanner) (*model.Category, error) {
	var (
		c                    model.Category
		createdAt, updatedAt int64
	)
	if err := s.Scan(&c.ID, &c.Name, &c.Description, &c.ThumbnailURL, &createdAt, &updatedAt, &c.VariantCount); err != nil {
		return nil, err
	}
	c.CreatedAt = fromMillis(createdAt)
	c.UpdatedAt = fromMillis(updatedAt)
	return &c, nil
}

func (s *CategoryStore) queryCategories(ctx context.Context, query string, args ...any) ([]model.Category, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]model.Category, 0)
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *c)
	}
	return items, rows.Err()
}

func (s *CategoryStore) Create(ctx context.Context, c *model.Category) (*model.Category, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tower_categories (id, name, description, thumbnail_url, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		c.ID, c.Name, c.Description, c.ThumbnailURL, toMillis(c.CreatedAt), toMillis(c.UpdatedAt),
	)
	if err != nil {
		return nil, mapError(err, "category")
	}
	return s.FindByID(ctx, c.ID)
}

func (s *CategoryStore) Update(ctx context.Context, c *model.Category) (*model.Category, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE tower_categories SET name = ?, description = ?, thumbnail_url = ?, updated_at = ?
		WHERE id = ?`,
		c.Name, c.Description, c.ThumbnailURL, toMillis(c.UpdatedAt), c.ID,
	)
	if err != nil {
		return nil, mapError(err, "category")
	}
	if err := affectedOrNotFound(res, "category"); err != nil {
		return nil, err
	}
	return s.FindByID(ctx, c.ID)
}

func (s *CategoryStore) FindByID(ctx context.Context, id string) (*model.Category, error) {
	c, err := scanCategory(s.db.QueryRowContext(ctx, categorySelect+` WHERE c.id = ?`, id))
	if err != nil {
		return nil, mapError(err, "category")
	}
	return c, nil
}

func (s *CategoryStore) List(ctx context.Context) ([]model.Category, error) {
	return s.queryCategories(ctx, categorySelect+` ORDER BY c.name COLLATE NOCASE`)
}

func (s *CategoryStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tower_categories WHERE id = ?`, id)
	if err != nil {
		return mapError(err, "category")
	}
	return affectedOrNotFound(res, "category")
}

func (s *CategoryStore) Search(ctx context.Context, q string, limit int) ([]model.Category, error) {
	return s.queryCategories(ctx,
		categorySelect+` WHERE c.name LIKE ? ESCAPE '\' ORDER BY c.name COLLATE NOCASE LIMIT ?`, likePattern(q), limit)
}

func (s *CategoryStore) Count(ctx context.Context) (int, error) {
	var total int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tower_categories`).Scan(&total)
	return total, err
}

func (s *CategoryStore) Recent(ctx context.Context, limit int) ([]model.Category, error) {
	return s.queryCategories(ctx, categorySelect+` ORDER BY c.created_at DESC, c.id DESC LIMIT ?`, limit)
}
