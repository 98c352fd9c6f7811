package postgres

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

// CategoryPostgres is a PostgreSQL implementation of repository.CategoryRepository.
type CategoryPostgres struct {
	db *sql.DB
}

func NewCategoryPostgres(db *sql.DB) *CategoryPostgres {
	return &CategoryPostgres{db: db}
}

var _ repository.CategoryRepository = (*CategoryPostgres)(nil)

func scanCategory(s scanner) (*model.Category, error) {
	var c model.Category
	if err := s.Scan(
		&c.ID,
		&c.Name,
		&c.Description,
		&c.ThumbnailURL,
		&c.CreatedAt,
		&c.UpdatedAt,
		&c.VariantCount,
	); err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *CategoryPostgres) queryCategories(ctx context.Context, query string, args ...any) ([]model.Category, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
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

func (r *CategoryPostgres) Create(ctx context.Context, c *model.Category) (*model.Category, error) {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO tower_categories (id, name, description, thumbnail_url, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		c.ID, c.Name, c.Description, c.ThumbnailURL, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return nil, mapError(err, "category")
	}
	return r.FindByID(ctx, c.ID)
}

func (r *CategoryPostgres) Update(ctx context.Context, c *model.Category) (*model.Category, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE tower_categories
		SET name = $2, description = $3, thumbnail_url = $4, updated_at = $5
		WHERE id = $1`,
		c.ID, c.Name, c.Description, c.ThumbnailURL, c.UpdatedAt,
	)
	if err != nil {
		return nil, mapError(err, "category")
	}
	if err := affectedOrNotFound(res, "category"); err != nil {
		return nil, err
	}
	return r.FindByID(ctx, c.ID)
}

func (r *CategoryPostgres) FindByID(ctx context.Context, id string) (*model.Category, error) {
	c, err := scanCategory(r.db.QueryRowContext(ctx, categorySelect+` WHERE c.id = $1`, id))
	if err != nil {
		return nil, mapError(err, "category")
	}
	return c, nil
}

func (r *CategoryPostgres) List(ctx context.Context) ([]model.Category, error) {
	return r.queryCategories(ctx, categorySelect+` ORDER BY c.name`)
}

func (r *CategoryPostgres) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM tower_categories WHERE id = $1`, id)
	if err != nil {
		return mapError(err, "category")
	}
	return affectedOrNotFound(res, "category")
}

func (r *CategoryPostgres) Search(ctx context.Context, q string, limit int) ([]model.Category, error) {
	return r.queryCategories(ctx, categorySelect+` WHERE c.name ILIKE $1 ORDER BY c.name LIMIT $2`, likePattern(q), limit)
}

func (r *CategoryPostgres) Count(ctx context.Context) (int, error) {
	var total int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tower_categories`).Scan(&total)
	return total, err
}

func (r *CategoryPostgres) Recent(ctx context.Context, limit int) ([]model.Category, error) {
	return r.queryCategories(ctx, categorySelect+` ORDER BY c.created_at DESC, c.id DESC LIMIT $1`, limit)
}
