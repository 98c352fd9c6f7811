package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"towerdocs/internal/apperr"
	"towerdocs/internal/config"
)

// S3Backend stores blobs in an S3-compatible bucket (MinIO, AWS S3, Wasabi).
// It is safe for concurrent use by multiple goroutines.
type S3Backend struct {
	client        *minio.Client
	bucket        string
	publicBaseURL string
	presignExpiry time.Duration
}

// NewS3 creates the client and ensures the bucket exists, creating it in the
// configured region when missing.
func NewS3(ctx context.Context, cfg config.S3Config) (*S3Backend, error) {
	var missing []string
	if cfg.Endpoint == "" {
		missing = append(missing, "S3_ENDPOINT")
	}
	if cfg.AccessKey == "" || cfg.SecretKey == "" {
		missing = append(missing, "S3_ACCESS_KEY/S3_SECRET_KEY")
	}
	if cfg.Bucket == "" {
		missing = append(missing, "S3_BUCKET")
	}
	if len(missing) > 0 {
		return nil, &BootstrapError{
			Code:    BootstrapErrorMissingConfig,
			Backend: KindS3,
			Cause:   fmt.Errorf("missing %s", strings.Join(missing, ", ")),
		}
	}

	endpoint, secure := splitEndpoint(cfg.Endpoint, cfg.UseSSL)
	transport, err := minio.DefaultTransport(secure)
	if err != nil {
		return nil, &BootstrapError{Code: BootstrapErrorClientInitFailed, Backend: KindS3, Cause: err}
	}

	cli, err := minio.New(endpoint, &minio.Options{
		Creds:     credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:    secure,
		Region:    cfg.Region,
		Transport: otelhttp.NewTransport(transport),
	})
	if err != nil {
		return nil, &BootstrapError{Code: BootstrapErrorClientInitFailed, Backend: KindS3, Cause: fmt.Errorf("create minio client: %w", err)}
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	exists, err := cli.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, &BootstrapError{Code: BootstrapErrorBucketCheckFailed, Backend: KindS3, Cause: fmt.Errorf("check bucket existence: %w", err)}
	}
	if !exists {
		if err := cli.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{Region: cfg.Region}); err != nil {
			return nil, &BootstrapError{Code: BootstrapErrorBucketCheckFailed, Backend: KindS3, Cause: fmt.Errorf("create bucket: %w", err)}
		}
	}

	expiry := cfg.PresignExpiry
	if expiry <= 0 {
		expiry = time.Hour
	}
	return &S3Backend{
		client:        cli,
		bucket:        cfg.Bucket,
		publicBaseURL: strings.TrimRight(cfg.PublicBaseURL, "/"),
		presignExpiry: expiry,
	}, nil
}

// splitEndpoint accepts both "host:port" and "https://host:port" forms.
func splitEndpoint(endpoint string, useSSL bool) (string, bool) {
	if !strings.Contains(endpoint, "://") {
		return endpoint, useSSL
	}
	u, err := url.Parse(endpoint)
	if err != nil || u.Host == "" {
		return endpoint, useSSL
	}
	return u.Host, u.Scheme == "https"
}

func (s *S3Backend) Kind() string { return KindS3 }

// Put streams the object; nothing is buffered on local disk here.
func (s *S3Backend) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	_, err := s.client.PutObject(ctx, s.bucket, key, r, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	return err
}

// URL returns a public URL when a public base is configured, otherwise a
// presigned GET URL.
func (s *S3Backend) URL(ctx context.Context, key string) (string, error) {
	if s.publicBaseURL != "" {
		return s.publicBaseURL + "/" + key, nil
	}
	u, err := s.client.PresignedGetObject(ctx, s.bucket, key, s.presignExpiry, url.Values{})
	if err != nil {
		return "", err
	}
	return u.String(), nil
}

// Delete stats first because RemoveObject succeeds for absent keys.
func (s *S3Backend) Delete(ctx context.Context, key string) error {
	if _, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{}); err != nil {
		if isMinioNotFound(err) {
			return apperr.NotFound("object " + key)
		}
		return err
	}
	return s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{})
}

func isMinioNotFound(err error) bool {
	resp := minio.ToErrorResponse(err)
	if resp.Code == "NoSuchKey" || resp.Code == "NotFound" {
		return true
	}
	var er minio.ErrorResponse
	return errors.As(err, &er) && er.StatusCode == http.StatusNotFound
}
