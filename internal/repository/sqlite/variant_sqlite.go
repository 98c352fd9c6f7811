package sqlite

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

// VariantStore persists variants in SQLite.
type VariantStore struct {
	db *sql.DB
}

func NewVariantStore(db *sql.DB) *VariantStore {
	return &VariantStore{db: db}
}

var _ repository.VariantRepository = (*VariantStore)(nil)

func scanVariant(s scanner) (*model.Variant, error) {
	var (
		v                    model.Variant
		createdAt, updatedAt int64
	)
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
		&createdAt,
		&updatedAt,
	); err != nil {
		return nil, err
	}
	v.CreatedAt = fromMillis(createdAt)
	v.UpdatedAt = fromMillis(updatedAt)
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
	v, err := scanVariant(q.QueryRowContext(ctx, variantSelect+` WHERE v.id = ?`, id))
	if err != nil {
		return nil, mapError(err, "variant")
	}
	return v, nil
}

func (s *VariantStore) Create(ctx context.Context, v *model.Variant) (*model.Variant, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tower_variants
			(id, tower_code, height, structural_type, load_class, engineering_notes, category_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		v.ID, v.TowerCode, v.Height, string(v.StructuralType), v.LoadClass, v.EngineeringNotes,
		v.CategoryID, toMillis(v.CreatedAt), toMillis(v.UpdatedAt),
	)
	if err != nil {
		return nil, mapError(err, "variant")
	}
	return s.FindByID(ctx, v.ID)
}

func (s *VariantStore) Update(ctx context.Context, v *model.Variant) (*model.Variant, error) {
	var out *model.Variant
	err := withTx(ctx, s.db, func(tx *sql.Tx) error {
		var currentCode string
		err := tx.QueryRowContext(ctx, `SELECT tower_code FROM tower_variants WHERE id = ?`, v.ID).Scan(&currentCode)
		if err != nil {
			return mapError(err, "variant")
		}

		if currentCode != v.TowerCode {
			var docs int
			if err := tx.QueryRowContext(ctx,
				`SELECT COUNT(*) FROM tower_documents WHERE variant_id = ?`, v.ID).Scan(&docs); err != nil {
				return err
			}
			if docs > 0 {
				return apperr.Conflict("tower code cannot change once documents exist")
			}
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE tower_variants
			SET tower_code = ?, height = ?, structural_type = ?, load_class = ?,
				engineering_notes = ?, category_id = ?, updated_at = ?
			WHERE id = ?`,
			v.TowerCode, v.Height, string(v.StructuralType), v.LoadClass,
			v.EngineeringNotes, v.CategoryID, toMillis(v.UpdatedAt), v.ID,
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

func (s *VariantStore) FindByID(ctx context.Context, id string) (*model.Variant, error) {
	return findVariant(ctx, s.db, id)
}

func (s *VariantStore) List(ctx context.Context, pq repository.PageQuery) (*repository.PageResult[model.Variant], error) {
	total, err := s.Count(ctx)
	if err != nil {
		return nil, err
	}
	items, err := queryVariants(ctx, s.db, variantSelect+` ORDER BY v.tower_code LIMIT ? OFFSET ?`, pq.Limit, pq.Offset)
	if err != nil {
		return nil, err
	}
	return &repository.PageResult[model.Variant]{Items: items, Total: total}, nil
}

func (s *VariantStore) ListByCategory(ctx context.Context, categoryID string) ([]model.Variant, error) {
	return queryVariants(ctx, s.db, variantSelect+` WHERE v.category_id = ? ORDER BY v.height, v.tower_code`, categoryID)
}

func (s *VariantStore) Delete(ctx context.Context, id string, hook repository.DocumentHook) error {
	return withTx(ctx, s.db, func(tx *sql.Tx) error {
		if err := variantExists(ctx, tx, id); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE tower_documents SET is_active = 0 WHERE variant_id = ? AND is_active = 1`, id); err != nil {
			return err
		}

		rows, err := tx.QueryContext(ctx,
			`SELECT `+documentColumns+` FROM tower_documents WHERE variant_id = ? ORDER BY version DESC`, id)
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

		if _, err := tx.ExecContext(ctx, `DELETE FROM tower_documents WHERE variant_id = ?`, id); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM tower_variants WHERE id = ?`, id)
		if err != nil {
			return mapError(err, "variant")
		}
		return affectedOrNotFound(res, "variant")
	})
}

func (s *VariantStore) Search(ctx context.Context, q string, limit int) ([]model.Variant, error) {
	return queryVariants(ctx, s.db, variantSelect+`
		WHERE v.tower_code LIKE ?1 ESCAPE '\' OR v.structural_type LIKE ?1 ESCAPE '\' OR c.name LIKE ?1 ESCAPE '\'
		ORDER BY v.tower_code LIMIT ?2`, likePattern(q), limit)
}

func (s *VariantStore) Count(ctx context.Context) (int, error) {
	var total int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tower_variants`).Scan(&total)
	return total, err
}

func (s *VariantStore) Recent(ctx context.Context, limit int) ([]model.Variant, error) {
	return queryVariants(ctx, s.db, variantSelect+` ORDER BY v.created_at DESC, v.id DESC LIMIT ?`, limit)
}
