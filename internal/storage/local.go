package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"towerdocs/internal/apperr"
	"towerdocs/internal/config"
)

// LocalBackend stores blobs as files under a root directory. A blob only
// becomes visible under its key once it is completely written.
type LocalBackend struct {
	root         string
	publicPrefix string
}

func NewLocal(cfg config.LocalStorageConfig) (*LocalBackend, error) {
	if strings.TrimSpace(cfg.Root) == "" {
		return nil, &BootstrapError{Code: BootstrapErrorMissingConfig, Backend: KindLocal, Cause: errors.New("root directory is required")}
	}
	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, &BootstrapError{Code: BootstrapErrorClientInitFailed, Backend: KindLocal, Cause: err}
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, &BootstrapError{Code: BootstrapErrorClientInitFailed, Backend: KindLocal, Cause: err}
	}
	return &LocalBackend{
		root:         root,
		publicPrefix: "/" + strings.Trim(cfg.PublicPrefix, "/"),
	}, nil
}

func (b *LocalBackend) Kind() string { return KindLocal }

// Root is the directory the HTTP layer serves under PublicPrefix.
func (b *LocalBackend) Root() string { return b.root }

func (b *LocalBackend) PublicPrefix() string { return b.publicPrefix }

// path maps key to a file below root, rejecting keys that would escape it.
func (b *LocalBackend) path(key string) (string, error) {
	if key == "" || strings.Contains(key, `\`) {
		return "", apperr.Validation("invalid storage key %q", key)
	}
	clean := filepath.Clean(filepath.FromSlash(key))
	if filepath.IsAbs(clean) || clean == "." || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", apperr.Validation("invalid storage key %q", key)
	}
	return filepath.Join(b.root, clean), nil
}

func (b *LocalBackend) Put(ctx context.Context, key string, r io.Reader, size int64, _ string) error {
	full, err := b.path(key)
	if err != nil {
		return err
	}
	dir := filepath.Dir(full)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".upload-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	n, err := io.Copy(tmp, contextReader{ctx: ctx, r: r})
	if err != nil {
		return fmt.Errorf("write blob: %w", err)
	}
	if size >= 0 && n != size {
		return fmt.Errorf("write blob: wrote %d of %d bytes", n, size)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("sync blob: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close blob: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.Rename(tmpName, full); err != nil {
		return fmt.Errorf("commit blob: %w", err)
	}
	committed = true
	return nil
}

func (b *LocalBackend) URL(_ context.Context, key string) (string, error) {
	if _, err := b.path(key); err != nil {
		return "", err
	}
	return b.publicPrefix + "/" + key, nil
}

func (b *LocalBackend) Delete(_ context.Context, key string) error {
	full, err := b.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return apperr.NotFound("object " + key)
		}
		return err
	}
	return nil
}

// contextReader stops a copy once ctx is done.
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
