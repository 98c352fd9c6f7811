package sqlite

import (
	"context"
	"database/sql"

	"towerdocs/internal/apperr"
	"towerdocs/internal/model"
	"towerdocs/internal/repository"
)

const documentColumns = `id, variant_id, storage_location, original_filename, content_type,
	checksum_sha256, page_count, version, file_size, uploaded_at, is_active`

// DocumentStore persists document versions in SQLite.
type DocumentStore struct {
	db *sql.DB
}

func NewDocumentStore(db *sql.DB) *DocumentStore {
	return &DocumentStore{db: db}
}

var _ repository.DocumentRepository = (*DocumentStore)(nil)

func scanDocument(s scanner) (*model.Document, error) {
	var (
		d          model.Document
		pageCount  sql.NullInt64
		uploadedAt int64
		active     int64
	)
	if err := s.Scan(
		&d.ID,
		&d.VariantID,
		&d.StorageLocation,
		&d.OriginalFilename,
		&d.ContentType,
		&d.ChecksumSHA256,
		&pageCount,
		&d.Version,
		&d.FileSize,
		&uploadedAt,
		&active,
	); err != nil {
		return nil, err
	}
	if pageCount.Valid {
		n := int(pageCount.Int64)
		d.PageCount = &n
	}
	d.UploadedAt = fromMillis(uploadedAt)
	d.IsActive = active != 0
	return &d, nil
}

func scanDocuments(rows *sql.Rows) ([]model.Document, error) {
	defer rows.Close()
	items := make([]model.Document, 0)
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *d)
	}
	return items, rows.Err()
}

func findDocument(ctx context.Context, q querier, id string) (*model.Document, error) {
	d, err := scanDocument(q.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM tower_documents WHERE id = ?`, id))
	if err != nil {
		return nil, mapError(err, "document")
	}
	return d, nil
}

func variantExists(ctx context.Context, q querier, id string) error {
	var found string
	err := q.QueryRowContext(ctx, `SELECT id FROM tower_variants WHERE id = ?`, id).Scan(&found)
	return mapError(err, "variant")
}

func (s *DocumentStore) CreateVersion(ctx context.Context, doc *model.Document) (*model.Document, error) {
	var out *model.Document
	err := withTx(ctx, s.db, func(tx *sql.Tx) error {
		// The immediate transaction already holds the write lock.
		if err := variantExists(ctx, tx, doc.VariantID); err != nil {
			return err
		}
		var version int
		if err := tx.QueryRowContext(ctx,
			`SELECT COALESCE(MAX(version), 0) + 1 FROM tower_documents WHERE variant_id = ?`,
			doc.VariantID,
		).Scan(&version); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE tower_documents SET is_active = 0 WHERE variant_id = ? AND is_active = 1`, doc.VariantID,
		); err != nil {
			return err
		}

		var pageCount any
		if doc.PageCount != nil {
			pageCount = int64(*doc.PageCount)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO tower_documents (`+documentColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1)`,
			doc.ID,
			doc.VariantID,
			doc.StorageLocation,
			doc.OriginalFilename,
			doc.ContentType,
			doc.ChecksumSHA256,
			pageCount,
			version,
			doc.FileSize,
			toMillis(doc.UploadedAt),
		); err != nil {
			return mapError(err, "document")
		}

		var err error
		out, err = findDocument(ctx, tx, doc.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *DocumentStore) FindByID(ctx context.Context, id string) (*model.Document, error) {
	return findDocument(ctx, s.db, id)
}

func (s *DocumentStore) FindActive(ctx context.Context, variantID string) (*model.Document, error) {
	d, err := scanDocument(s.db.QueryRowContext(ctx,
		`SELECT `+documentColumns+` FROM tower_documents WHERE variant_id = ? AND is_active = 1`, variantID))
	if err != nil {
		return nil, mapError(err, "active document")
	}
	return d, nil
}

func (s *DocumentStore) ListByVariant(ctx context.Context, variantID string) ([]model.Document, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+documentColumns+` FROM tower_documents WHERE variant_id = ? ORDER BY version DESC`, variantID)
	if err != nil {
		return nil, err
	}
	return scanDocuments(rows)
}

func (s *DocumentStore) List(ctx context.Context, pq repository.PageQuery) (*repository.PageResult[model.Document], error) {
	total, err := s.Count(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+documentColumns+`
		FROM tower_documents
		ORDER BY uploaded_at DESC, id DESC
		LIMIT ? OFFSET ?`, pq.Limit, pq.Offset)
	if err != nil {
		return nil, err
	}
	items, err := scanDocuments(rows)
	if err != nil {
		return nil, err
	}
	return &repository.PageResult[model.Document]{Items: items, Total: total}, nil
}

func (s *DocumentStore) DeleteVersion(ctx context.Context, id, replacementID string, hook repository.DocumentHook) error {
	if replacementID != "" && replacementID == id {
		return apperr.Validation("replacement must be a different document")
	}
	return withTx(ctx, s.db, func(tx *sql.Tx) error {
		doc, err := findDocument(ctx, tx, id)
		if err != nil {
			return err
		}

		if replacementID != "" && !doc.IsActive {
			return apperr.Validation("replacement is only used when deleting the active version")
		}
		if replacementID != "" {
			rep, err := findDocument(ctx, tx, replacementID)
			if err != nil {
				return apperr.Validation("replacement document %s does not exist", replacementID)
			}
			if rep.VariantID != doc.VariantID {
				return apperr.Validation("replacement document belongs to another variant")
			}
		} else if doc.IsActive {
			return apperr.Conflict("document %s is the active version; a replacement is required", id)
		}

		if hook != nil {
			if err := hook(ctx, []model.Document{*doc}); err != nil {
				return err
			}
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM tower_documents WHERE id = ?`, id); err != nil {
			return err
		}
		if replacementID != "" {
			return activate(ctx, tx, doc.VariantID, replacementID)
		}
		return nil
	})
}

func activate(ctx context.Context, tx *sql.Tx, variantID, id string) error {
	if _, err := tx.ExecContext(ctx,
		`UPDATE tower_documents SET is_active = 0 WHERE variant_id = ? AND is_active = 1 AND id <> ?`,
		variantID, id,
	); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `UPDATE tower_documents SET is_active = 1 WHERE id = ?`, id)
	if err != nil {
		return mapError(err, "document")
	}
	return affectedOrNotFound(res, "document")
}

func (s *DocumentStore) Activate(ctx context.Context, id string) (*model.Document, error) {
	var out *model.Document
	err := withTx(ctx, s.db, func(tx *sql.Tx) error {
		doc, err := findDocument(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := activate(ctx, tx, doc.VariantID, id); err != nil {
			return err
		}
		doc.IsActive = true
		out = doc
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *DocumentStore) Count(ctx context.Context) (int, error) {
	var total int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tower_documents`).Scan(&total)
	return total, err
}
