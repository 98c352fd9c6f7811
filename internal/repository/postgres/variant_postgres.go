package postgres

import (
	"context"
	"database/sql"

	"towerdocs/internal/apperr"
	"towerdocs/internal/model"
	"towerdocs/internal/repository"
)

const variantSelect = `
	SELECT v.id, v.tower_code, v.height, v.structural_type, v.load_class, v.engineering_notes,
		v.category_id, c.name,
		(SELECT COUNT(*) FROM tower_documents d WHERE d.variant_id = v.id) AS document_count,
		v.created_at, v.updated_at
	FROM tower_variants v
	JOIN tower_categories c ON c.id = v.category_id`

// VariantPostgres is a PostgreSQL implementation of repository.VariantRepository.
type VariantPostgres struct {
	db *sql.DB
}

func NewVariantPostgres(db *sql.DB) *VariantPostgres {
	return &VariantPostgres{db: db}
}

var _ repository.VariantRepository = (*VariantPostgres)(nil)

func scanVariant(s scanner) (*model.Variant, error) {
	var v model.Variant
	if err := s.Scan(
		&v.ID,
		&v.TowerCode,
		&v.Height,
		&v.StructuralType,
		&v.LoadClass,
		&v.EngineeringNotes,
		&v.CategoryID,
		&v.CategoryName,
		&v.DocumentCount,
		&v.CreatedAt,
		&v.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &v, nil
}

func queryVariants(ctx context.Context, q querier, query string, args ...any) ([]model.Variant, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]model.Variant, 0)
	for rows.Next() {
		v, err := scanVariant(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *v)
	}
	return items, rows.Err()
}

func findVariant(ctx context.Context, q querier, id string) (*model.Variant, error) {
	v, err := scanVariant(q.QueryRowContext(ctx, variantSelect+` WHERE v.id = $1`, id))
	if err != nil {
		return nil, mapError(err, "variant")
	}
	return v, nil
}

func (r *VariantPostgres) Create(ctx context.Context, v *model.Variant) (*model.Variant, error) {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO tower_variants
			(id, tower_code, height, structural_type, load_class, engineering_notes, category_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		v.ID, v.TowerCode, v.Height, string(v.StructuralType), v.LoadClass, v.EngineeringNotes,
		v.CategoryID, v.CreatedAt, v.UpdatedAt,
	)
	if err != nil {
		return nil, mapError(err, "variant")
	}
	return r.FindByID(ctx, v.ID)
}

func (r *VariantPostgres) Update(ctx context.Context, v *model.Variant) (*model.Variant, error) {
	var out *model.Variant
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		var currentCode string
		err := tx.QueryRowContext(ctx,
			`SELECT tower_code FROM tower_variants WHERE id = $1 FOR UPDATE`, v.ID).Scan(&currentCode)
		if err != nil {
			return mapError(err, "variant")
		}

		if currentCode != v.TowerCode {
			var docs int
			if err := tx.QueryRowContext(ctx,
				`SELECT COUNT(*) FROM tower_documents WHERE variant_id = $1`, v.ID).Scan(&docs); err != nil {
				return err
			}
			if docs > 0 {
				return apperr.Conflict("tower code cannot change once documents exist")
			}
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE tower_variants
			SET tower_code = $2, height = $3, structural_type = $4, load_class = $5,
				engineering_notes = $6, category_id = $7, updated_at = $8
			WHERE id = $1`,
			v.ID, v.TowerCode, v.Height, string(v.StructuralType), v.LoadClass,
			v.EngineeringNotes, v.CategoryID, v.UpdatedAt,
		); err != nil {
			return mapError(err, "variant")
		}

		out, err = findVariant(ctx, tx, v.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *VariantPostgres) FindByID(ctx context.Context, id string) (*model.Variant, error) {
	return findVariant(ctx, r.db, id)
}

func (r *VariantPostgres) List(ctx context.Context, pq repository.PageQuery) (*repository.PageResult[model.Variant], error) {
	total, err := r.Count(ctx)
	if err != nil {
		return nil, err
	}
	items, err := queryVariants(ctx, r.db, variantSelect+` ORDER BY v.tower_code LIMIT $1 OFFSET $2`, pq.Limit, pq.Offset)
	if err != nil {
		return nil, err
	}
	return &repository.PageResult[model.Variant]{Items: items, Total: total}, nil
}

func (r *VariantPostgres) ListByCategory(ctx context.Context, categoryID string) ([]model.Variant, error) {
	return queryVariants(ctx, r.db, variantSelect+` WHERE v.category_id = $1 ORDER BY v.height, v.tower_code`, categoryID)
}

func (r *VariantPostgres) Delete(ctx context.Context, id string, hook repository.DocumentHook) error {
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		if err := lockVariant(ctx, tx, id); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE tower_documents SET is_active = FALSE WHERE variant_id = $1 AND is_active`, id); err != nil {
			return err
		}

		rows, err := tx.QueryContext(ctx,
			`SELECT `+documentColumns+` FROM tower_documents WHERE variant_id = $1 ORDER BY version DESC`, id)
		if err != nil {
			return err
		}
		docs, err := scanDocuments(rows)
		if err != nil {
			return err
		}
		if hook != nil && len(docs) > 0 {
			if err := hook(ctx, docs); err != nil {
				return err
			}
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM tower_documents WHERE variant_id = $1`, id); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM tower_variants WHERE id = $1`, id)
		if err != nil {
			return mapError(err, "variant")
		}
		return affectedOrNotFound(res, "variant")
	})
}

func (r *VariantPostgres) Search(ctx context.Context, q string, limit int) ([]model.Variant, error) {
	return queryVariants(ctx, r.db, variantSelect+`
		WHERE v.tower_code ILIKE $1 OR v.structural_type ILIKE $1 OR c.name ILIKE $1
		ORDER BY v.tower_code LIMIT $2`, likePattern(q), limit)
}

func (r *VariantPostgres) Count(ctx context.Context) (int, error) {
	var total int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tower_variants`).Scan(&total)
	return total, err
}

func (r *VariantPostgres) Recent(ctx context.Context, limit int) ([]model.Variant, error) {
	return queryVariants(ctx, r.db, variantSelect+` ORDER BY v.created_at DESC, v.id DESC LIMIT $1`, limit)
}
