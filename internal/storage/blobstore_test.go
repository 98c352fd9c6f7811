package storage_test

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"strings"
	"testing"
	"testing/iotest"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"towerdocs/internal/apperr"
	"towerdocs/internal/pdf/pdftest"
	"towerdocs/internal/storage"
	"towerdocs/internal/storage/mocks"
)

func newBlobStore(t *testing.T, backend *mocks.MockBackend, maxBytes int64, timeout time.Duration) (*storage.BlobStore, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	metrics, err := storage.NewMetrics(reg)
	require.NoError(t, err)

	backend.On("Kind").Return("mock").Maybe()
	return storage.NewBlobStore(backend, storage.Options{
		MaxBytes:     maxBytes,
		AllowedTypes: []string{"application/pdf"},
		Timeout:      timeout,
		Metrics:      metrics,
		SpoolDir:     t.TempDir(),
	}), reg
}

func counterValue(t *testing.T, reg *prometheus.Registry, operation, status string) float64 {
	t.Helper()
	mfs, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range mfs {
		if mf.GetName() != "towerdocs_storage_operations_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			labels := map[string]string{}
			for _, lp := range m.GetLabel() {
				labels[lp.GetName()] = lp.GetValue()
			}
			if labels["operation"] == operation && labels["status"] == status {
				return m.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func TestStore(t *testing.T) {
	backend := new(mocks.MockBackend)
	store, reg := newBlobStore(t, backend, 1<<20, time.Second)
	data := pdftest.Minimal(2)

	var written []byte
	backend.On("Put", mock.Anything, mock.MatchedBy(func(key string) bool {
		return strings.HasPrefix(key, "documents/variant-1/") && strings.HasSuffix(key, ".pdf")
	}), mock.Anything, int64(len(data)), "application/pdf").
		Return(func(_ context.Context, _ string, r io.Reader, _ int64, _ string) error {
			var err error
			written, err = io.ReadAll(r)
			return err
		}).Once()

	obj, err := store.Store(context.Background(), bytes.NewReader(data), storage.Metadata{
		Filename:    "MP-30.pdf",
		ContentType: "application/pdf; charset=binary",
		VariantID:   "variant-1",
		Size:        int64(len(data)),
	})
	require.NoError(t, err)

	sum := sha256.Sum256(data)
	assert.Equal(t, data, written)
	assert.Equal(t, int64(len(data)), obj.Size)
	assert.Equal(t, hex.EncodeToString(sum[:]), obj.SHA256)
	assert.Equal(t, "application/pdf", obj.ContentType)
	require.NotNil(t, obj.PageCount)
	assert.Equal(t, 2, *obj.PageCount)
	assert.True(t, strings.HasPrefix(obj.Location, "documents/variant-1/"))
	assert.Equal(t, float64(1), counterValue(t, reg, "put", "ok"))
	backend.AssertExpectations(t)
}

func TestStoreRejectsBeforeWriting(t *testing.T) {
	pdf := pdftest.Minimal(1)

	tests := []struct {
		name     string
		body     io.Reader
		meta     storage.Metadata
		maxBytes int64
	}{
		{
			name:     "content type not allowed",
			body:     bytes.NewReader(pdf),
			meta:     storage.Metadata{ContentType: "image/png", VariantID: "v1", Size: -1},
			maxBytes: 1 << 20,
		},
		{
			name:     "declared size over limit",
			body:     bytes.NewReader(pdf),
			meta:     storage.Metadata{ContentType: "application/pdf", VariantID: "v1", Size: 1 << 21},
			maxBytes: 1 << 20,
		},
		{
			name:     "actual size over limit",
			body:     bytes.NewReader(pdf),
			meta:     storage.Metadata{ContentType: "application/pdf", VariantID: "v1", Size: -1},
			maxBytes: int64(len(pdf) - 1),
		},
		{
			name:     "content is not a pdf",
			body:     strings.NewReader("just some plain text pretending to be a drawing"),
			meta:     storage.Metadata{ContentType: "application/pdf", VariantID: "v1", Size: -1},
			maxBytes: 1 << 20,
		},
		{
			name:     "empty body",
			body:     bytes.NewReader(nil),
			meta:     storage.Metadata{ContentType: "application/pdf", VariantID: "v1", Size: 0},
			maxBytes: 1 << 20,
		},
		{
			name:     "variant id escapes key prefix",
			body:     bytes.NewReader(pdf),
			meta:     storage.Metadata{ContentType: "application/pdf", VariantID: "../v1", Size: -1},
			maxBytes: 1 << 20,
		},
		{
			name:     "nil reader",
			body:     nil,
			meta:     storage.Metadata{ContentType: "application/pdf", VariantID: "v1", Size: -1},
			maxBytes: 1 << 20,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := new(mocks.MockBackend)
			store, _ := newBlobStore(t, backend, tt.maxBytes, time.Second)

			obj, err := store.Store(context.Background(), tt.body, tt.meta)
			assert.Nil(t, obj)
			assert.ErrorIs(t, err, apperr.ErrValidation)
			backend.AssertNotCalled(t, "Put", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestStorePutFailureCleansUp(t *testing.T) {
	backend := new(mocks.MockBackend)
	store, reg := newBlobStore(t, backend, 1<<20, time.Second)

	var putKey string
	backend.On("Put", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(func(_ context.Context, key string, _ io.Reader, _ int64, _ string) error {
			putKey = key
			return errors.New("access denied")
		}).Once()
	backend.On("Delete", mock.Anything, mock.Anything).Return(apperr.NotFound("object")).Once()

	obj, err := store.Store(context.Background(), bytes.NewReader(pdftest.Minimal(1)), storage.Metadata{
		ContentType: "application/pdf",
		VariantID:   "v1",
		Size:        -1,
	})
	assert.Nil(t, obj)
	assert.ErrorIs(t, err, apperr.ErrStorage)
	backend.AssertCalled(t, "Delete", mock.Anything, putKey)
	assert.Equal(t, float64(1), counterValue(t, reg, "put", "error"))
}

func TestStoreTruncatedBody(t *testing.T) {
	backend := new(mocks.MockBackend)
	store, _ := newBlobStore(t, backend, 1<<20, time.Second)

	reset := errors.New("connection reset by peer")
	body := io.MultiReader(bytes.NewReader(pdftest.Minimal(1)[:16]), iotest.ErrReader(reset))

	obj, err := store.Store(context.Background(), body, storage.Metadata{
		ContentType: "application/pdf",
		VariantID:   "v1",
		Size:        -1,
	})
	assert.Nil(t, obj)
	assert.ErrorIs(t, err, apperr.ErrValidation)
	assert.ErrorIs(t, err, reset)
	assert.Contains(t, apperr.Message(err), "upload body could not be read")
	backend.AssertNotCalled(t, "Put", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestStorePutTimeout(t *testing.T) {
	backend := new(mocks.MockBackend)
	store, reg := newBlobStore(t, backend, 1<<20, 20*time.Millisecond)

	backend.On("Put", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(func(ctx context.Context, _ string, _ io.Reader, _ int64, _ string) error {
			<-ctx.Done()
			return ctx.Err()
		}).Once()
	backend.On("Delete", mock.Anything, mock.Anything).Return(nil).Once()

	_, err := store.Store(context.Background(), bytes.NewReader(pdftest.Minimal(1)), storage.Metadata{
		ContentType: "application/pdf",
		VariantID:   "v1",
		Size:        -1,
	})
	assert.ErrorIs(t, err, apperr.ErrStorage)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, float64(1), counterValue(t, reg, "put", "timeout"))
	backend.AssertExpectations(t)
}

func TestRetrieveURL(t *testing.T) {
	backend := new(mocks.MockBackend)
	store, reg := newBlobStore(t, backend, 1<<20, time.Second)

	backend.On("URL", mock.Anything, "documents/v1/a.pdf").Return("/uploads/documents/v1/a.pdf", nil).Once()
	backend.On("URL", mock.Anything, "documents/v1/b.pdf").Return("", errors.New("signature error")).Once()

	u, err := store.RetrieveURL(context.Background(), "documents/v1/a.pdf")
	require.NoError(t, err)
	assert.Equal(t, "/uploads/documents/v1/a.pdf", u)

	_, err = store.RetrieveURL(context.Background(), "documents/v1/b.pdf")
	assert.ErrorIs(t, err, apperr.ErrStorage)

	assert.Equal(t, float64(1), counterValue(t, reg, "url", "ok"))
	assert.Equal(t, float64(1), counterValue(t, reg, "url", "error"))
}

func TestDelete(t *testing.T) {
	backend := new(mocks.MockBackend)
	store, reg := newBlobStore(t, backend, 1<<20, time.Second)

	backend.On("Delete", mock.Anything, "a").Return(nil).Once()
	backend.On("Delete", mock.Anything, "gone").Return(apperr.NotFound("object gone")).Once()
	backend.On("Delete", mock.Anything, "broken").Return(errors.New("503 slow down")).Once()

	ctx := context.Background()
	assert.NoError(t, store.Delete(ctx, "a"))

	err := store.Delete(ctx, "gone")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	assert.NotErrorIs(t, err, apperr.ErrStorage)

	assert.ErrorIs(t, store.Delete(ctx, "broken"), apperr.ErrStorage)

	assert.Equal(t, float64(1), counterValue(t, reg, "delete", "ok"))
	assert.Equal(t, float64(1), counterValue(t, reg, "delete", "not_found"))
	assert.Equal(t, float64(1), counterValue(t, reg, "delete", "error"))
}

func TestStoreWithLocalBackend(t *testing.T) {
	backend, err := storage.NewLocal(configLocal(t))
	require.NoError(t, err)
	store := storage.NewBlobStore(backend, storage.Options{
		MaxBytes:     1 << 20,
		AllowedTypes: []string{"application/pdf"},
		Timeout:      time.Second,
	})
	ctx := context.Background()

	obj, err := store.Store(ctx, bytes.NewReader(pdftest.Minimal(3)), storage.Metadata{
		ContentType: "application/pdf",
		VariantID:   "v1",
		Size:        -1,
	})
	require.NoError(t, err)
	require.NotNil(t, obj.PageCount)
	assert.Equal(t, 3, *obj.PageCount)

	u, err := store.RetrieveURL(ctx, obj.Location)
	require.NoError(t, err)
	assert.Equal(t, "/uploads/"+obj.Location, u)

	require.NoError(t, store.Delete(ctx, obj.Location))
	assert.ErrorIs(t, store.Delete(ctx, obj.Location), apperr.ErrNotFound)
}
