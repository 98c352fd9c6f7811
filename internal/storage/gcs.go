package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
	"time"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"towerdocs/internal/apperr"
	"towerdocs/internal/config"
)

// GCSBackend stores blobs in a Google Cloud Storage bucket. Emulator mode
// (fake-gcs-server) skips authentication.
type GCSBackend struct {
	client       *gcs.Client
	bucket       string
	cdnDomain    string
	emulatorHost string
}

func NewGCS(ctx context.Context, cfg config.GCSConfig) (*GCSBackend, error) {
	if cfg.Bucket == "" {
		return nil, &BootstrapError{Code: BootstrapErrorMissingConfig, Backend: KindGCS, Cause: errors.New("missing GCS_BUCKET")}
	}

	var opts []option.ClientOption
	emulator := strings.TrimRight(cfg.EmulatorHost, "/")
	if emulator != "" {
		// The client library only honours the emulator through the environment.
		if err := os.Setenv("STORAGE_EMULATOR_HOST", emulator); err != nil {
			return nil, &BootstrapError{Code: BootstrapErrorClientInitFailed, Backend: KindGCS, Cause: err}
		}
		opts = append(opts, option.WithoutAuthentication())
	} else {
		if cfg.CredentialsFile != "" {
			opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
		}
		opts = append(opts, option.WithScopes(gcs.ScopeReadWrite))
	}

	client, err := gcs.NewClient(ctx, opts...)
	if err != nil {
		return nil, &BootstrapError{Code: BootstrapErrorClientInitFailed, Backend: KindGCS, Cause: fmt.Errorf("create gcs client: %w", err)}
	}

	checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if _, err := client.Bucket(cfg.Bucket).Attrs(checkCtx); err != nil {
		_ = client.Close()
		return nil, &BootstrapError{Code: BootstrapErrorBucketCheckFailed, Backend: KindGCS, Cause: fmt.Errorf("bucket %q: %w", cfg.Bucket, err)}
	}

	if emulator != "" && !strings.Contains(emulator, "://") {
		emulator = "http://" + emulator
	}
	return &GCSBackend{
		client:       client,
		bucket:       cfg.Bucket,
		cdnDomain:    strings.TrimRight(cfg.CDNDomain, "/"),
		emulatorHost: emulator,
	}, nil
}

func (g *GCSBackend) Kind() string { return KindGCS }

func (g *GCSBackend) Put(ctx context.Context, key string, r io.Reader, _ int64, contentType string) error {
	w := g.client.Bucket(g.bucket).Object(key).NewWriter(ctx)
	w.ContentType = contentType
	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		return err
	}
	// The object only exists once Close succeeds.
	return w.Close()
}

// URL prefers the CDN domain, then the emulator, then the public endpoint.
func (g *GCSBackend) URL(_ context.Context, key string) (string, error) {
	return g.objectURL(key), nil
}

func (g *GCSBackend) objectURL(key string) string {
	switch {
	case g.cdnDomain != "":
		domain := g.cdnDomain
		if !strings.Contains(domain, "://") {
			domain = "https://" + domain
		}
		return domain + "/" + key
	case g.emulatorHost != "":
		return fmt.Sprintf("%s/storage/v1/b/%s/o/%s?alt=media", g.emulatorHost, g.bucket, url.PathEscape(key))
	default:
		return fmt.Sprintf("https://storage.googleapis.com/%s/%s", g.bucket, key)
	}
}

func (g *GCSBackend) Delete(ctx context.Context, key string) error {
	err := g.client.Bucket(g.bucket).Object(key).Delete(ctx)
	if errors.Is(err, gcs.ErrObjectNotExist) {
		return apperr.NotFound("object " + key)
	}
	return err
}

func (g *GCSBackend) Close() error {
	return g.client.Close()
}
