// Package sqlite implements the repository interfaces on SQLite (modernc).
// The database is expected to be opened by database.NewSQLite, which uses
// BEGIN IMMEDIATE transactions on a single connection, so every write
// transaction holds the database write lock from its first statement.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"towerdocs/internal/apperr"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type scanner interface {
	Scan(dest ...any) error
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
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

func mapError(err error, entity string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return apperr.NotFound(entity)
	}
	var sqliteErr *msqlite.Error
	if !errors.As(err, &sqliteErr) {
		return err
	}
	message := strings.ToLower(err.Error())
	code := sqliteErr.Code()
	switch {
	case code == sqlite3lib.SQLITE_CONSTRAINT_UNIQUE, code == sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY,
		strings.Contains(message, "unique constraint failed"):
		switch {
		case strings.Contains(message, "tower_categories.name"):
			return apperr.Conflict("category name already exists")
		case strings.Contains(message, "tower_variants.tower_code"):
			return apperr.Conflict("tower code already exists")
		case strings.Contains(message, "tower_documents.variant_id, tower_documents.version"):
			return apperr.Conflict("document version already exists")
		case strings.Contains(message, "tower_documents.variant_id"):
			return apperr.Conflict("variant already has an active document")
		}
		return apperr.Conflict("%s already exists", entity)
	case code == sqlite3lib.SQLITE_CONSTRAINT_CHECK, strings.Contains(message, "check constraint failed"):
		return apperr.Validation("%s violates a check constraint", entity)
	case code&0xff == sqlite3lib.SQLITE_CONSTRAINT:
		return apperr.Conflict("%s is referenced by or references a missing record", entity)
	}
	return err
}

// likePattern turns free text into a contains-pattern for LIKE ... ESCAPE '\'.
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
