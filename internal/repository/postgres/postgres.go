// Package postgres implements the repository interfaces on PostgreSQL
// through database/sql and the pgx stdlib driver.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"towerdocs/internal/apperr"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
	pgCheckViolation      = "23514"
)

var conflictMessages = map[string]string{
	"uq_tower_categories_name":            "category name already exists",
	"uq_tower_variants_tower_code":        "tower code already exists",
	"uq_tower_documents_variant_version":  "document version already exists",
	"uq_tower_documents_one_active":       "variant already has an active document",
	"uq_tower_documents_storage_location": "storage location already recorded",
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type scanner interface {
	Scan(dest ...any) error
}

func withTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// mapError translates driver errors into apperr kinds. entity names the
// row a missing result refers to.
func mapError(err error, entity string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return apperr.NotFound(entity)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			if msg, ok := conflictMessages[pgErr.ConstraintName]; ok {
				return apperr.Conflict("%s", msg)
			}
			return apperr.Conflict("%s already exists", entity)
		case pgForeignKeyViolation:
			return apperr.Conflict("%s is referenced by or references a missing record", entity)
		case pgCheckViolation:
			return apperr.Validation("%s violates %s", entity, pgErr.ConstraintName)
		}
	}
	return err
}

// likePattern turns free text into a contains-pattern with LIKE wildcards escaped.
func likePattern(q string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(strings.TrimSpace(q)) + "%"
}

func affectedOrNotFound(res sql.Result, entity string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return apperr.NotFound(entity)
	}
	return nil
}
