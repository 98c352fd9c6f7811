package postgres

import (
	"context"
	"database/sql"

	"towerdocs/internal/apperr"
	"towerdocs/internal/model"
	"towerdocs/internal/repository"
)

const documentColumns = `id, variant_id, storage_location, original_filename, content_type,
	checksum_sha256, page_count, version, file_size, uploaded_at, is_active`

// DocumentPostgres is a PostgreSQL implementation of repository.DocumentRepository.
// Version mutations take a row lock on the owning variant first.
type DocumentPostgres struct {
	db *sql.DB
}

// NewDocumentPostgres creates a new DocumentPostgres repository.
func NewDocumentPostgres(db *sql.DB) *DocumentPostgres {
	return &DocumentPostgres{db: db}
}

var _ repository.DocumentRepository = (*DocumentPostgres)(nil)

func scanDocument(s scanner) (*model.Document, error) {
	var (
		d         model.Document
		pageCount sql.NullInt64
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
		&d.UploadedAt,
		&d.IsActive,
	); err != nil {
		return nil, err
	}
	if pageCount.Valid {
		n := int(pageCount.Int64)
		d.PageCount = &n
	}
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

func nullablePageCount(n *int) any {
	if n == nil {
		return nil
	}
	return int64(*n)
}

func lockVariant(ctx context.Context, tx *sql.Tx, variantID string) error {
	var id string
	err := tx.QueryRowContext(ctx, `SELECT id FROM tower_variants WHERE id = $1 FOR UPDATE`, variantID).Scan(&id)
	return mapError(err, "variant")
}

func findDocument(ctx context.Context, q querier, id string) (*model.Document, error) {
	row := q.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM tower_documents WHERE id = $1`, id)
	d, err := scanDocument(row)
	if err != nil {
		return nil, mapError(err, "document")
	}
	return d, nil
}

// lockDocumentVariant resolves the variant of a document and locks it.
func lockDocumentVariant(ctx context.Context, tx *sql.Tx, documentID string) error {
	var variantID string
	err := tx.QueryRowContext(ctx, `SELECT variant_id FROM tower_documents WHERE id = $1`, documentID).Scan(&variantID)
	if err != nil {
		return mapError(err, "document")
	}
	return lockVariant(ctx, tx, variantID)
}

// CreateVersion locks the variant row, numbers the new document one past the
// highest existing version, then swaps the active document.
func (r *DocumentPostgres) CreateVersion(ctx context.Context, doc *model.Document) (*model.Document, error) {
	var out *model.Document
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		if err := lockVariant(ctx, tx, doc.VariantID); err != nil {
			return err
		}
		var version int
		if err := tx.QueryRowContext(ctx,
			`SELECT COALESCE(MAX(version), 0) + 1 FROM tower_documents WHERE variant_id = $1`,
			doc.VariantID,
		).Scan(&version); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE tower_documents SET is_active = FALSE WHERE variant_id = $1 AND is_active`,
			doc.VariantID,
		); err != nil {
			return err
		}

		row := tx.QueryRowContext(ctx, `
			INSERT INTO tower_documents (`+documentColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, TRUE)
			RETURNING `+documentColumns,
			doc.ID,
			doc.VariantID,
			doc.StorageLocation,
			doc.OriginalFilename,
			doc.ContentType,
			doc.ChecksumSHA256,
			nullablePageCount(doc.PageCount),
			version,
			doc.FileSize,
			doc.UploadedAt,
		)
		var err error
		out, err = scanDocument(row)
		return mapError(err, "document")
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// FindByID fetches a single document by its ID.
func (r *DocumentPostgres) FindByID(ctx context.Context, id string) (*model.Document, error) {
	return findDocument(ctx, r.db, id)
}

func (r *DocumentPostgres) FindActive(ctx context.Context, variantID string) (*model.Document, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+documentColumns+` FROM tower_documents WHERE variant_id = $1 AND is_active`, variantID)
	d, err := scanDocument(row)
	if err != nil {
		return nil, mapError(err, "active document")
	}
	return d, nil
}

func (r *DocumentPostgres) ListByVariant(ctx context.Context, variantID string) ([]model.Document, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+documentColumns+` FROM tower_documents WHERE variant_id = $1 ORDER BY version DESC`, variantID)
	if err != nil {
		return nil, err
	}
	return scanDocuments(rows)
}

// List returns documents using LIMIT/OFFSET pagination and a total count.
func (r *DocumentPostgres) List(ctx context.Context, pq repository.PageQuery) (*repository.PageResult[model.Document], error) {
	total, err := r.Count(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+documentColumns+`
		FROM tower_documents
		ORDER BY uploaded_at DESC, id DESC
		LIMIT $1 OFFSET $2`, pq.Limit, pq.Offset)
	if err != nil {
		return nil, err
	}
	items, err := scanDocuments(rows)
	if err != nil {
		return nil, err
	}
	return &repository.PageResult[model.Document]{Items: items, Total: total}, nil
}

func (r *DocumentPostgres) DeleteVersion(ctx context.Context, id, replacementID string, hook repository.DocumentHook) error {
	if replacementID != "" && replacementID == id {
		return apperr.Validation("replacement must be a different document")
	}
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		if err := lockDocumentVariant(ctx, tx, id); err != nil {
			return err
		}
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

		if _, err := tx.ExecContext(ctx, `DELETE FROM tower_documents WHERE id = $1`, id); err != nil {
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
		`UPDATE tower_documents SET is_active = FALSE WHERE variant_id = $1 AND is_active AND id <> $2`,
		variantID, id,
	); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `UPDATE tower_documents SET is_active = TRUE WHERE id = $1`, id)
	if err != nil {
		return mapError(err, "document")
	}
	return affectedOrNotFound(res, "document")
}

func (r *DocumentPostgres) Activate(ctx context.Context, id string) (*model.Document, error) {
	var out *model.Document
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		if err := lockDocumentVariant(ctx, tx, id); err != nil {
			return err
		}
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

func (r *DocumentPostgres) Count(ctx context.Context) (int, error) {
	var total int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tower_documents`).Scan(&total)
	return total, err
}
