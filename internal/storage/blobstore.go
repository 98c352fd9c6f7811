package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"towerdocs/internal/apperr"
	"towerdocs/internal/logger"
	"towerdocs/internal/pdf"
)

const (
	opPut    = "put"
	opURL    = "url"
	opDelete = "delete"

	statusOK       = "ok"
	statusNotFound = "not_found"
	statusError    = "error"
	statusTimeout  = "timeout"

	sniffLen = 3072
)

// ObjectStore is what the services need from blob storage.
type ObjectStore interface {
	Store(ctx context.Context, r io.Reader, meta Metadata) (*Object, error)
	RetrieveURL(ctx context.Context, location string) (string, error)
	Delete(ctx context.Context, location string) error
}

// Metadata describes an incoming upload. Size is -1 when not declared.
type Metadata struct {
	Filename    string
	ContentType string
	VariantID   string
	Size        int64
}

// Object is a blob that has been fully written to the backend.
type Object struct {
	Location    string
	Size        int64
	SHA256      string
	ContentType string
	PageCount   *int
}

type Options struct {
	MaxBytes     int64
	AllowedTypes []string
	Timeout      time.Duration
	Metrics      *Metrics
	Log          *logger.Logger
	// SpoolDir holds uploads while they are validated; empty means os.TempDir.
	SpoolDir string
}

// BlobStore validates uploads and applies timeouts, metrics and tracing
// around a Backend. Nothing reaches the backend until validation passes.
type BlobStore struct {
	backend Backend
	opts    Options
	allowed map[string]struct{}
	tracer  trace.Tracer
}

func NewBlobStore(backend Backend, opts Options) *BlobStore {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.Log == nil {
		opts.Log = logger.Nop()
	}
	allowed := make(map[string]struct{}, len(opts.AllowedTypes))
	for _, t := range opts.AllowedTypes {
		if mt := normalizeMIME(t); mt != "" {
			allowed[mt] = struct{}{}
		}
	}
	return &BlobStore{
		backend: backend,
		opts:    opts,
		allowed: allowed,
		tracer:  otel.Tracer("towerdocs/storage"),
	}
}

func (s *BlobStore) Backend() Backend { return s.backend }

func normalizeMIME(ct string) string {
	mt, _, err := mime.ParseMediaType(strings.TrimSpace(ct))
	if err != nil {
		return ""
	}
	return strings.ToLower(mt)
}

func (s *BlobStore) Store(ctx context.Context, r io.Reader, meta Metadata) (*Object, error) {
	ctx, span := s.tracer.Start(ctx, "storage.Store", trace.WithAttributes(
		attribute.String("storage.backend", s.backend.Kind()),
		attribute.String("document.variant_id", meta.VariantID),
	))
	defer span.End()

	obj, err := s.store(ctx, r, meta)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.String("storage.key", obj.Location), attribute.Int64("storage.size", obj.Size))
	return obj, nil
}

func (s *BlobStore) store(ctx context.Context, r io.Reader, meta Metadata) (*Object, error) {
	if r == nil {
		return nil, apperr.Validation("file is required")
	}
	contentType := normalizeMIME(meta.ContentType)
	if _, ok := s.allowed[contentType]; !ok {
		return nil, apperr.Validation("content type %q is not allowed", meta.ContentType)
	}
	if s.opts.MaxBytes > 0 && meta.Size > s.opts.MaxBytes {
		return nil, apperr.Validation("file size %d exceeds limit of %d bytes", meta.Size, s.opts.MaxBytes)
	}
	if !safeSegment(meta.VariantID) {
		return nil, apperr.Validation("invalid variant id")
	}

	spool, err := os.CreateTemp(s.opts.SpoolDir, "towerdocs-upload-*")
	if err != nil {
		return nil, fmt.Errorf("create spool file: %w", err)
	}
	defer func() {
		_ = spool.Close()
		_ = os.Remove(spool.Name())
	}()

	hash := sha256.New()
	src := r
	if s.opts.MaxBytes > 0 {
		src = io.LimitReader(r, s.opts.MaxBytes+1)
	}
	size, err := io.Copy(io.MultiWriter(spool, hash), src)
	if err != nil {
		// The client body broke off, not the server.
		return nil, fmt.Errorf("%w: upload body could not be read: %w", apperr.ErrValidation, err)
	}
	if size == 0 {
		return nil, apperr.Validation("file is empty")
	}
	if s.opts.MaxBytes > 0 && size > s.opts.MaxBytes {
		return nil, apperr.Validation("file exceeds limit of %d bytes", s.opts.MaxBytes)
	}

	if _, err := spool.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("rewind spool: %w", err)
	}
	head := make([]byte, sniffLen)
	n, err := io.ReadFull(spool, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, fmt.Errorf("sniff upload: %w", err)
	}
	detected := mimetype.Detect(head[:n])
	if !s.matchesAllowed(detected) {
		return nil, apperr.Validation("file content is %s, not an allowed type", detected.String())
	}

	var pageCount *int
	if pages, err := pdf.PageCount(spool); err == nil {
		pageCount = &pages
	} else {
		s.opts.Log.Debug("pdf_page_count_unknown", "variant_id", meta.VariantID, "error", err)
	}

	if _, err := spool.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("rewind spool: %w", err)
	}

	key := path.Join("documents", meta.VariantID, uuid.NewString()+".pdf")
	if err := s.put(ctx, key, spool, size, contentType); err != nil {
		return nil, err
	}

	return &Object{
		Location:    key,
		Size:        size,
		SHA256:      hex.EncodeToString(hash.Sum(nil)),
		ContentType: contentType,
		PageCount:   pageCount,
	}, nil
}

func (s *BlobStore) matchesAllowed(detected *mimetype.MIME) bool {
	for t := range s.allowed {
		if detected.Is(t) {
			return true
		}
	}
	return false
}

// put writes the blob and removes whatever may have landed under key when the
// write fails part way.
func (s *BlobStore) put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	start := time.Now()
	putCtx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	err := s.backend.Put(putCtx, key, r, size, contentType)
	if err == nil {
		s.opts.Metrics.observe(s.backend.Kind(), opPut, statusOK, start)
		return nil
	}
	s.opts.Metrics.observe(s.backend.Kind(), opPut, failureStatus(putCtx, err), start)

	cleanupCtx, cleanupCancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.Timeout)
	defer cleanupCancel()
	if delErr := s.backend.Delete(cleanupCtx, key); delErr != nil && !errors.Is(delErr, apperr.ErrNotFound) {
		s.opts.Log.Warn("storage_cleanup_failed", "key", key, "error", delErr)
	}
	return apperr.Storage("put "+key, err)
}

// RetrieveURL resolves location to a fetchable URL without side effects.
func (s *BlobStore) RetrieveURL(ctx context.Context, location string) (string, error) {
	ctx, span := s.tracer.Start(ctx, "storage.RetrieveURL", trace.WithAttributes(
		attribute.String("storage.backend", s.backend.Kind()),
		attribute.String("storage.key", location),
	))
	defer span.End()

	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	u, err := s.backend.URL(ctx, location)
	if err != nil {
		s.opts.Metrics.observe(s.backend.Kind(), opURL, failureStatus(ctx, err), start)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", apperr.Storage("url "+location, err)
	}
	s.opts.Metrics.observe(s.backend.Kind(), opURL, statusOK, start)
	return u, nil
}

// Delete removes the blob at location. Absent blobs report apperr.ErrNotFound.
func (s *BlobStore) Delete(ctx context.Context, location string) error {
	ctx, span := s.tracer.Start(ctx, "storage.Delete", trace.WithAttributes(
		attribute.String("storage.backend", s.backend.Kind()),
		attribute.String("storage.key", location),
	))
	defer span.End()

	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	err := s.backend.Delete(ctx, location)
	switch {
	case err == nil:
		s.opts.Metrics.observe(s.backend.Kind(), opDelete, statusOK, start)
		return nil
	case errors.Is(err, apperr.ErrNotFound):
		s.opts.Metrics.observe(s.backend.Kind(), opDelete, statusNotFound, start)
		return err
	default:
		s.opts.Metrics.observe(s.backend.Kind(), opDelete, failureStatus(ctx, err), start)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return apperr.Storage("delete "+location, err)
	}
}

func failureStatus(ctx context.Context, err error) string {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return statusTimeout
	}
	return statusError
}

// safeSegment reports whether id can be used as one path segment of a key.
func safeSegment(id string) bool {
	if id == "" || id == "." || id == ".." {
		return false
	}
	return !strings.ContainsAny(id, `/\`)
}
