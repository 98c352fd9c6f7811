package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"towerdocs/internal/apperr"
	"towerdocs/internal/model"
)

var (
	categoryCols = []string{"id", "name", "description", "thumbnail_url", "created_at", "updated_at", "variant_count"}
	variantCols  = []string{
		"id", "tower_code", "height", "structural_type", "load_class", "engineering_notes",
		"category_id", "name", "document_count", "created_at", "updated_at",
	}
)

func TestMapError(t *testing.T) {
	err := mapError(&pgconn.PgError{Code: "23505", ConstraintName: "uq_tower_variants_tower_code"}, "variant")
	assert.ErrorIs(t, err, apperr.ErrConflict)
	assert.Equal(t, "tower code already exists", apperr.Message(err))

	assert.ErrorIs(t, mapError(&pgconn.PgError{Code: "23505"}, "category"), apperr.ErrConflict)
	assert.ErrorIs(t, mapError(&pgconn.PgError{Code: "23503"}, "category"), apperr.ErrConflict)
	assert.ErrorIs(t, mapError(&pgconn.PgError{Code: "23514", ConstraintName: "height_check"}, "variant"), apperr.ErrValidation)
	assert.NoError(t, mapError(nil, "x"))
}

func TestLikePattern(t *testing.T) {
	assert.Equal(t, "%mono%", likePattern(" mono "))
	assert.Equal(t, `%50\%\_x%`, likePattern("50%_x"))
}

func TestCategoryPostgres_Create(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewCategoryPostgres(db)
	now := time.Now().UTC()
	c := &model.Category{ID: "c1", Name: "Monopole", CreatedAt: now, UpdatedAt: now}

	t.Run("success", func(t *testing.T) {
		mock.ExpectExec("INSERT INTO tower_categories").
			WithArgs("c1", "Monopole", "", "", now, now).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectQuery("SELECT (.+) FROM tower_categories c WHERE c.id").
			WithArgs("c1").
			WillReturnRows(sqlmock.NewRows(categoryCols).AddRow("c1", "Monopole", "", "", now, now, 0))

		out, err := repo.Create(context.Background(), c)
		require.NoError(t, err)
		assert.Equal(t, "Monopole", out.Name)
	})

	t.Run("duplicate name", func(t *testing.T) {
		mock.ExpectExec("INSERT INTO tower_categories").
			WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "uq_tower_categories_name"})

		out, err := repo.Create(context.Background(), c)
		assert.Nil(t, out)
		assert.ErrorIs(t, err, apperr.ErrConflict)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCategoryPostgres_Delete(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewCategoryPostgres(db)

	mock.ExpectExec("DELETE FROM tower_categories").WithArgs("c1").
		WillReturnError(&pgconn.PgError{Code: "23503"})
	assert.ErrorIs(t, repo.Delete(context.Background(), "c1"), apperr.ErrConflict)

	mock.ExpectExec("DELETE FROM tower_categories").WithArgs("c2").
		WillReturnResult(sqlmock.NewResult(0, 0))
	assert.ErrorIs(t, repo.Delete(context.Background(), "c2"), apperr.ErrNotFound)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCategoryPostgres_Search(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Now()
	mock.ExpectQuery("WHERE c.name ILIKE").
		WithArgs("%lattice%", 20).
		WillReturnRows(sqlmock.NewRows(categoryCols).AddRow("c1", "Lattice", "", "", now, now, 3))

	items, err := NewCategoryPostgres(db).Search(context.Background(), "lattice", 20)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 3, items[0].VariantCount)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestVariantPostgres_UpdateTowerCodeLockedByDocuments(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT tower_code FROM tower_variants WHERE id = (.+) FOR UPDATE").
		WithArgs("v1").
		WillReturnRows(sqlmock.NewRows([]string{"tower_code"}).AddRow("SST-42"))
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM tower_documents WHERE variant_id").
		WithArgs("v1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
	mock.ExpectRollback()

	out, err := NewVariantPostgres(db).Update(context.Background(), &model.Variant{ID: "v1", TowerCode: "SST-45"})
	assert.Nil(t, out)
	assert.ErrorIs(t, err, apperr.ErrConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestVariantPostgres_Update(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Now().UTC()
	v := &model.Variant{
		ID: "v1", TowerCode: "SST-42", Height: 45, StructuralType: model.StructuralSelfSupporting,
		CategoryID: "c1", UpdatedAt: now,
	}

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT tower_code FROM tower_variants").
		WithArgs("v1").
		WillReturnRows(sqlmock.NewRows([]string{"tower_code"}).AddRow("SST-42"))
	mock.ExpectExec("UPDATE tower_variants").
		WithArgs("v1", "SST-42", 45.0, "self-supporting", "", "", "c1", now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT (.+) FROM tower_variants v JOIN tower_categories c").
		WithArgs("v1").
		WillReturnRows(sqlmock.NewRows(variantCols).
			AddRow("v1", "SST-42", 45.0, "self-supporting", "", "", "c1", "Lattice", 2, now, now))
	mock.ExpectCommit()

	out, err := NewVariantPostgres(db).Update(context.Background(), v)
	require.NoError(t, err)
	assert.Equal(t, 45.0, out.Height)
	assert.Equal(t, "Lattice", out.CategoryName)
	assert.Equal(t, model.StructuralSelfSupporting, out.StructuralType)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestVariantPostgres_Delete(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id FROM tower_variants WHERE id = (.+) FOR UPDATE").
		WithArgs("v1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("v1"))
	mock.ExpectExec("UPDATE tower_documents SET is_active = FALSE").
		WithArgs("v1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	rows := sqlmock.NewRows(documentCols)
	docRow(rows, "d2", "v1", 2, false)
	docRow(rows, "d1", "v1", 1, false)
	mock.ExpectQuery("SELECT (.+) FROM tower_documents WHERE variant_id").
		WithArgs("v1").
		WillReturnRows(rows)
	mock.ExpectExec("DELETE FROM tower_documents WHERE variant_id").
		WithArgs("v1").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec("DELETE FROM tower_variants WHERE id").
		WithArgs("v1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	var purged []string
	err = NewVariantPostgres(db).Delete(context.Background(), "v1", func(_ context.Context, docs []model.Document) error {
		for _, d := range docs {
			assert.False(t, d.IsActive)
			purged = append(purged, d.StorageLocation)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Len(t, purged, 2)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestVariantPostgres_DeleteMissing(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id FROM tower_variants").
		WithArgs("nope").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectRollback()

	err = NewVariantPostgres(db).Delete(context.Background(), "nope", nil)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
