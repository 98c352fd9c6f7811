// Package storage puts, locates and deletes document blobs on the configured
// backend and guards what reaches it.
package storage

import (
	"context"
	"fmt"
	"io"
	"strings"

	"towerdocs/internal/config"
)

const (
	KindLocal = "local"
	KindS3    = "s3"
	KindGCS   = "gcs"
)

// Backend is one blob storage variant. Keys are slash-separated and opaque
// to callers above the BlobStore.
type Backend interface {
	Kind() string
	// Put writes size bytes from r under key. size is -1 when unknown.
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	// URL returns a location clients can fetch the blob from.
	URL(ctx context.Context, key string) (string, error)
	// Delete removes the blob and reports apperr.ErrNotFound when absent.
	Delete(ctx context.Context, key string) error
}

type BootstrapErrorCode string

const (
	BootstrapErrorInvalidBackend    BootstrapErrorCode = "invalid_backend"
	BootstrapErrorMissingConfig     BootstrapErrorCode = "missing_config"
	BootstrapErrorClientInitFailed  BootstrapErrorCode = "client_init_failed"
	BootstrapErrorBucketCheckFailed BootstrapErrorCode = "bucket_check_failed"
)

// BootstrapError reports why a backend could not be constructed at startup.
type BootstrapError struct {
	Code    BootstrapErrorCode
	Backend string
	Cause   error
}

func (e *BootstrapError) Error() string {
	if e == nil {
		return "storage bootstrap failed"
	}
	return fmt.Sprintf("storage bootstrap failed (code=%s backend=%q): %v", e.Code, e.Backend, e.Cause)
}

func (e *BootstrapError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// NewBackend selects the backend named by cfg.Backend. It is called once at
// startup; "cloud" is accepted as an alias for "s3".
func NewBackend(ctx context.Context, cfg config.StorageConfig) (Backend, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case KindLocal, "":
		b, err := NewLocal(cfg.Local)
		if err != nil {
			return nil, err
		}
		return b, nil
	case KindS3, "cloud":
		b, err := NewS3(ctx, cfg.S3)
		if err != nil {
			return nil, err
		}
		return b, nil
	case KindGCS:
		b, err := NewGCS(ctx, cfg.GCS)
		if err != nil {
			return nil, err
		}
		return b, nil
	default:
		return nil, &BootstrapError{
			Code:    BootstrapErrorInvalidBackend,
			Backend: cfg.Backend,
			Cause:   fmt.Errorf("expected one of local, s3, cloud, gcs"),
		}
	}
}
