package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"regexp"
	"strings"
	"time"

	"github.com/adamara/apiserver/internal/storage"
	"github.com/adamara/apiserver/types"
	"github.com/google/uuid"
)

const (
	DefaultMaxFiles     = 5
	DefaultMaxFileBytes = 10 << 20
	DefaultPresignTTL   = 15 * time.Minute

	objectPrefix = "uploads/"
	fileURLPath  = "/files/"
)

// allowedTypes maps accepted content types to the extension files are
// stored under.
var allowedTypes = map[string]string{
	"image/jpeg":      ".jpg",
	"image/png":       ".png",
	"application/pdf": ".pdf",
}

var storedNamePattern = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}\.(jpg|png|pdf)$`)

// Upload is one file received with a new request.
type Upload struct {
	Filename    string
	ContentType string
	Size        int64
	Content     io.Reader
}

// ObjectStore is the storage the attachment service writes to.
// *storage.Storage implements it.
type ObjectStore interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	PresignGet(ctx context.Context, key string, ttl time.Duration) (string, bool, error)
}

// AttachmentLimits bounds what a single request may carry.
type AttachmentLimits struct {
	MaxFiles     int
	MaxFileBytes int64
	PresignTTL   time.Duration
}

// AttachmentService validates, stores and serves request attachments.
type AttachmentService struct {
	store  ObjectStore
	limits AttachmentLimits
	logger *slog.Logger
	now    func() time.Time
}

func NewAttachmentService(store ObjectStore, limits AttachmentLimits, logger *slog.Logger) *AttachmentService {
	if limits.MaxFiles <= 0 {
		limits.MaxFiles = DefaultMaxFiles
	}
	if limits.MaxFileBytes <= 0 {
		limits.MaxFileBytes = DefaultMaxFileBytes
	}
	if limits.PresignTTL <= 0 {
		limits.PresignTTL = DefaultPresignTTL
	}
	return &AttachmentService{
		store:  store,
		limits: limits,
		logger: logger,
		now:    time.Now,
	}
}

// Limits returns the effective limits.
func (s *AttachmentService) Limits() AttachmentLimits {
	return s.limits
}

// Validate checks the whole batch and reports every offending file.
func (s *AttachmentService) Validate(uploads []Upload) error {
	verr := &ValidationError{}
	s.validate(uploads, verr)
	return verr.Err()
}

func (s *AttachmentService) validate(uploads []Upload, verr *ValidationError) {
	if len(uploads) > s.limits.MaxFiles {
		verr.Addf("files", "At most %d files can be attached to a request", s.limits.MaxFiles)
	}
	for _, u := range uploads {
		name := displayName(u.Filename)
		if _, ok := allowedTypes[normalizeContentType(u.ContentType)]; !ok {
			verr.Addf("files", "%s: file type %q is not supported, only JPEG, PNG and PDF files are accepted", name, u.ContentType)
		}
		if u.Size > s.limits.MaxFileBytes {
			verr.Addf("files", "%s: file exceeds the %d MB size limit", name, s.limits.MaxFileBytes>>20)
		}
		if u.Size < 0 {
			verr.Addf("files", "%s: file size is unknown", name)
		}
	}
}

// Store validates and writes every upload. If any write fails the files
// already written are removed and nothing is returned.
func (s *AttachmentService) Store(ctx context.Context, uploads []Upload) ([]types.FileRef, error) {
	if err := s.Validate(uploads); err != nil {
		return nil, err
	}

	refs := make([]types.FileRef, 0, len(uploads))
	for _, u := range uploads {
		contentType := normalizeContentType(u.ContentType)
		storedName := uuid.NewString() + allowedTypes[contentType]
		if err := s.store.Put(ctx, objectPrefix+storedName, u.Content, u.Size, contentType); err != nil {
			s.DeleteAll(context.WithoutCancel(ctx), refs)
			return nil, fmt.Errorf("store attachment %s: %w", displayName(u.Filename), err)
		}
		refs = append(refs, types.FileRef{
			OriginalName: displayName(u.Filename),
			StoredName:   storedName,
			MimeType:     contentType,
			SizeBytes:    u.Size,
			URL:          fileURLPath + storedName,
			UploadedAt:   s.now().UTC(),
		})
	}
	return refs, nil
}

// Delete removes a stored file. Removing a file that is already gone
// succeeds.
func (s *AttachmentService) Delete(ctx context.Context, ref types.FileRef) error {
	if err := s.store.Delete(ctx, objectPrefix+ref.StoredName); err != nil && !errors.Is(err, storage.ErrObjectNotFound) {
		return fmt.Errorf("delete attachment %s: %w", ref.StoredName, err)
	}
	return nil
}

// DeleteAll removes refs, logging failures.
func (s *AttachmentService) DeleteAll(ctx context.Context, refs []types.FileRef) {
	for _, ref := range refs {
		if err := s.Delete(ctx, ref); err != nil {
			s.logger.ErrorContext(ctx, "orphaned attachment", "storedName", ref.StoredName, "error", err)
		}
	}
}

// Open streams a stored file. Unknown or malformed names yield ErrNotFound.
func (s *AttachmentService) Open(ctx context.Context, storedName string) (io.ReadCloser, string, error) {
	if !storedNamePattern.MatchString(storedName) {
		return nil, "", ErrNotFound
	}
	rc, err := s.store.Get(ctx, objectPrefix+storedName)
	if errors.Is(err, storage.ErrObjectNotFound) {
		return nil, "", ErrNotFound
	}
	if err != nil {
		return nil, "", err
	}
	return rc, contentTypeFor(storedName), nil
}

// DownloadURL returns a presigned URL when the backend supports it.
func (s *AttachmentService) DownloadURL(ctx context.Context, storedName string) (string, bool, error) {
	if !storedNamePattern.MatchString(storedName) {
		return "", false, ErrNotFound
	}
	return s.store.PresignGet(ctx, objectPrefix+storedName, s.limits.PresignTTL)
}

func normalizeContentType(contentType string) string {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(contentType))
	}
	return mediaType
}

func contentTypeFor(storedName string) string {
	for contentType, ext := range allowedTypes {
		if strings.HasSuffix(storedName, ext) {
			return contentType
		}
	}
	return "application/octet-stream"
}

func displayName(filename string) string {
	filename = strings.TrimSpace(filename)
	if i := strings.LastIndexAny(filename, `/\`); i >= 0 {
		filename = filename[i+1:]
	}
	if filename == "" {
		return "unnamed file"
	}
	return filename
}
