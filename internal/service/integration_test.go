package service

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"towerdocs/internal/apperr"
	"towerdocs/internal/config"
	"towerdocs/internal/database"
	"towerdocs/internal/database/migration"
	"towerdocs/internal/logger"
	"towerdocs/internal/model"
	"towerdocs/internal/pdf/pdftest"
	"towerdocs/internal/repository/sqlite"
	"towerdocs/internal/storage"
)

type stack struct {
	catalog CatalogService
	docs    DocumentService
	local   *storage.LocalBackend
}

func newStack(t *testing.T) stack {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "towerdocs.db")
	require.NoError(t, migration.EnsureMigrated(config.DatabaseConfig{Driver: "sqlite", SQLitePath: dbPath}, logger.Nop()))
	db, err := database.NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	local, err := storage.NewLocal(config.LocalStorageConfig{Root: filepath.Join(dir, "uploads"), PublicPrefix: "/uploads"})
	require.NoError(t, err)
	blobs := storage.NewBlobStore(local, storage.Options{
		MaxBytes:     1 << 20,
		AllowedTypes: []string{"application/pdf"},
		Timeout:      5 * time.Second,
		SpoolDir:     dir,
	})

	categories := sqlite.NewCategoryStore(db)
	variants := sqlite.NewVariantStore(db)
	documents := sqlite.NewDocumentStore(db)
	return stack{
		catalog: NewCatalogService(categories, variants, documents, blobs, nil, nil, PolicyRestrict),
		docs:    NewDocumentService(blobs, documents, variants, nil, nil),
		local:   local,
	}
}

func (s stack) variant(t *testing.T, code string) (*model.Category, *model.Variant) {
	t.Helper()
	ctx := context.Background()
	c, err := s.catalog.CreateCategory(ctx, CategoryInput{Name: "Category " + code})
	require.NoError(t, err)
	v, err := s.catalog.CreateVariant(ctx, VariantInput{
		TowerCode: code, Height: 42, StructuralType: model.StructuralGuyed, CategoryID: c.ID,
	})
	require.NoError(t, err)
	return c, v
}

func (s stack) upload(t *testing.T, variantID string) *model.Document {
	t.Helper()
	doc, err := s.docs.UploadNewVersion(context.Background(), variantID, bytes.NewReader(pdftest.Minimal(1)),
		model.UploadInput{Filename: "drawing.pdf", ContentType: "application/pdf", Size: -1})
	require.NoError(t, err)
	return doc
}

func (s stack) blobExists(doc *model.Document) bool {
	_, err := os.Stat(filepath.Join(s.local.Root(), filepath.FromSlash(doc.StorageLocation)))
	return err == nil
}

func activeCount(docs []model.Document) int {
	n := 0
	for _, d := range docs {
		if d.IsActive {
			n++
		}
	}
	return n
}

func TestVersioningLifecycle(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	_, v := s.variant(t, "GT-42")

	active, err := s.docs.GetActiveDocument(ctx, v.ID)
	require.NoError(t, err)
	assert.Nil(t, active)

	first := s.upload(t, v.ID)
	second := s.upload(t, v.ID)
	assert.Equal(t, 1, first.Version)
	assert.Equal(t, 2, second.Version)
	assert.Equal(t, "/uploads/"+second.StorageLocation, second.URL)
	require.NotNil(t, second.PageCount)
	assert.Equal(t, 1, *second.PageCount)

	history, err := s.docs.ListVersionHistory(ctx, v.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, second.ID, history[0].ID)
	assert.Equal(t, 1, activeCount(history))

	err = s.docs.DeleteVersion(ctx, second.ID, "")
	assert.ErrorIs(t, err, apperr.ErrConflict)
	assert.True(t, s.blobExists(second))

	err = s.docs.DeleteVersion(ctx, second.ID, second.ID)
	assert.ErrorIs(t, err, apperr.ErrValidation)

	require.NoError(t, s.docs.DeleteVersion(ctx, second.ID, first.ID))
	assert.False(t, s.blobExists(second))

	active, err = s.docs.GetActiveDocument(ctx, v.ID)
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, first.ID, active.ID)

	third := s.upload(t, v.ID)
	assert.Equal(t, 2, third.Version, "numbering continues from the highest surviving version")
	history, err = s.docs.ListVersionHistory(ctx, v.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, []int{2, 1}, []int{history[0].Version, history[1].Version})

	rolledBack, err := s.docs.ActivateVersion(ctx, first.ID)
	require.NoError(t, err)
	assert.True(t, rolledBack.IsActive)

	detail, err := s.catalog.GetVariant(ctx, v.ID)
	require.NoError(t, err)
	require.NotNil(t, detail.ActiveDocument)
	assert.Equal(t, first.ID, detail.ActiveDocument.ID)
}

func TestUploadRejectedLeavesNoTrace(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	_, v := s.variant(t, "GT-10")

	_, err := s.docs.UploadNewVersion(ctx, v.ID, bytes.NewReader([]byte("not a pdf at all")),
		model.UploadInput{Filename: "x.pdf", ContentType: "application/pdf", Size: -1})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	history, err := s.docs.ListVersionHistory(ctx, v.ID)
	require.NoError(t, err)
	assert.Empty(t, history)

	entries, err := os.ReadDir(s.local.Root())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestOversizeUploadKeepsHistory(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	_, v := s.variant(t, "GT-55")
	first := s.upload(t, v.ID)

	oversize := append(pdftest.Minimal(1), bytes.Repeat([]byte{' '}, 1<<20)...)
	_, err := s.docs.UploadNewVersion(ctx, v.ID, bytes.NewReader(oversize),
		model.UploadInput{Filename: "big.pdf", ContentType: "application/pdf", Size: -1})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	history, err := s.docs.ListVersionHistory(ctx, v.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, first.ID, history[0].ID)
	assert.True(t, history[0].IsActive)

	next := s.upload(t, v.ID)
	assert.Equal(t, 2, next.Version)
}

func TestConcurrentUploadsKeepOneActive(t *testing.T) {
	s := newStack(t)
	_, v := s.variant(t, "SST-60")

	const uploads = 6
	var wg sync.WaitGroup
	errs := make(chan error, uploads)
	for range uploads {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.docs.UploadNewVersion(context.Background(), v.ID, bytes.NewReader(pdftest.Minimal(2)),
				model.UploadInput{Filename: "d.pdf", ContentType: "application/pdf", Size: -1})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	history, err := s.docs.ListVersionHistory(context.Background(), v.ID)
	require.NoError(t, err)
	require.Len(t, history, uploads)
	assert.Equal(t, 1, activeCount(history))
	assert.True(t, history[0].IsActive, "newest version is active")

	versions := make([]int, 0, uploads)
	for _, d := range history {
		versions = append(versions, d.Version)
	}
	sort.Ints(versions)
	assert.Equal(t, []int{1, 2, 3, 4, 5, 6}, versions)
}

func TestDeleteVariantPurgesBlobs(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	c, v := s.variant(t, "MP-15")
	a := s.upload(t, v.ID)
	b := s.upload(t, v.ID)

	assert.ErrorIs(t, s.catalog.DeleteCategory(ctx, c.ID, PolicyRestrict), apperr.ErrConflict)

	require.NoError(t, s.catalog.DeleteVariant(ctx, v.ID, true))
	assert.False(t, s.blobExists(a))
	assert.False(t, s.blobExists(b))

	_, err := s.catalog.GetVariant(ctx, v.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	require.NoError(t, s.catalog.DeleteCategory(ctx, c.ID, PolicyRestrict))
}

func TestDeleteVariantWithoutPurgeKeepsDocuments(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	_, v := s.variant(t, "MP-20")
	doc := s.upload(t, v.ID)

	err := s.catalog.DeleteVariant(ctx, v.ID, false)
	assert.ErrorIs(t, err, apperr.ErrConflict)

	found, err := s.docs.Get(ctx, doc.ID)
	require.NoError(t, err)
	assert.True(t, found.IsActive, "refused delete leaves the active version in place")
	assert.True(t, s.blobExists(doc))

	_, empty := s.variant(t, "MP-25")
	require.NoError(t, s.catalog.DeleteVariant(ctx, empty.ID, false))
	_, err = s.catalog.GetVariant(ctx, empty.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestDeleteCategoryCascade(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	c, v := s.variant(t, "MP-45")
	doc := s.upload(t, v.ID)

	require.NoError(t, s.catalog.DeleteCategory(ctx, c.ID, PolicyCascade))
	assert.False(t, s.blobExists(doc))

	_, err := s.catalog.GetCategory(ctx, c.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = s.docs.Get(ctx, doc.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestSearchAndDashboard(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	_, v := s.variant(t, "MONO-30")
	s.upload(t, v.ID)

	res, err := s.catalog.Search(ctx, "mono")
	require.NoError(t, err)
	require.Len(t, res.Variants, 1)
	assert.Equal(t, "MONO-30", res.Variants[0].TowerCode)

	d, err := s.catalog.Dashboard(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, d.CategoryCount)
	assert.Equal(t, 1, d.VariantCount)
	assert.Equal(t, 1, d.DocumentCount)
}
