package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/charlesng35/smartpost/internal/docstore"
	"github.com/charlesng35/smartpost/internal/notifications"
	apperrors "github.com/charlesng35/smartpost/pkg/errors"
	"github.com/charlesng35/smartpost/pkg/logger"
	"github.com/charlesng35/smartpost/pkg/metrics"
)

const (
	// MediaCollection holds one document per upload.
	MediaCollection = "media_uploads"

	DefaultMediaTTL      = 180 * time.Second
	DefaultMaxUploadSize = 50 << 20
	mediaListLimit       = 50
)

var allowedMediaExtensions = map[string]struct{}{
	".jpg":  {},
	".jpeg": {},
	".png":  {},
	".gif":  {},
	".webp": {},
	".mp4":  {},
	".mov":  {},
}

// MediaUpload describes stored media and its fixed expiry.
type MediaUpload struct {
	UploadID         string    `json:"upload_id"`
	DeviceID         string    `json:"device_id"`
	UploadedBy       string    `json:"uploaded_by"`
	OriginalFilename string    `json:"original_filename"`
	StoredFilename   string    `json:"stored_filename"`
	ContentType      string    `json:"content_type"`
	SizeBytes        int64     `json:"size_bytes"`
	RelativePath     string    `json:"relative_path"`
	CreatedAt        time.Time `json:"created_at"`
	ExpiresAt        time.Time `json:"expires_at"`
	TTLSeconds       int       `json:"ttl_seconds"`
	FileReclaimed    bool      `json:"file_reclaimed,omitempty"`
}

// LiveAt reports whether the upload is still served at now.
func (m MediaUpload) LiveAt(now time.Time) bool {
	return now.Before(m.ExpiresAt)
}

// RegisterMediaInput carries an incoming upload.
type RegisterMediaInput struct {
	DeviceID    string
	UploadedBy  string
	Filename    string
	ContentType string
	Content     io.Reader
}

// Publisher publishes a best-effort notification on behalf of an actor.
type Publisher interface {
	PublishForActor(ctx context.Context, input notifications.PublishInput) (*notifications.PublishResult, error)
}

// MediaOption customises the MediaService.
type MediaOption func(*MediaService)

// WithMediaTTL overrides the lifetime of new uploads.
func WithMediaTTL(ttl time.Duration) MediaOption {
	return func(s *MediaService) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithMaxUploadBytes bounds the size of an upload.
func WithMaxUploadBytes(limit int64) MediaOption {
	return func(s *MediaService) {
		if limit > 0 {
			s.maxBytes = limit
		}
	}
}

// WithMediaClock overrides the clock used for expiry checks.
func WithMediaClock(now func() time.Time) MediaOption {
	return func(s *MediaService) {
		if now != nil {
			s.now = now
		}
	}
}

// MediaService registers short-lived device media and serves it until it expires.
type MediaService struct {
	store     docstore.Store
	files     MediaStore
	publisher Publisher
	ttl       time.Duration
	maxBytes  int64
	now       func() time.Time
	log       *zap.Logger
}

// NewMediaService constructs a MediaService. publisher may be nil.
func NewMediaService(store docstore.Store, files MediaStore, publisher Publisher, opts ...MediaOption) (*MediaService, error) {
	if store == nil {
		return nil, errors.New("media service: store is required")
	}
	if files == nil {
		return nil, errors.New("media service: file store is required")
	}
	svc := &MediaService{
		store:     store,
		files:     files,
		publisher: publisher,
		ttl:       DefaultMediaTTL,
		maxBytes:  DefaultMaxUploadSize,
		now:       store.Now,
		log:       logger.WithModule("media"),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Register stores the file and its metadata, then announces it.
func (s *MediaService) Register(ctx context.Context, input RegisterMediaInput) (*MediaUpload, error) {
	deviceID := strings.TrimSpace(input.DeviceID)
	if deviceID == "" {
		return nil, apperrors.NewBadRequest("device id is required")
	}
	uploadedBy := strings.TrimSpace(input.UploadedBy)
	if uploadedBy == "" {
		return nil, apperrors.ErrUnauthorized
	}
	if input.Content == nil {
		return nil, apperrors.NewBadRequest("file is required")
	}

	original := filepath.Base(strings.ReplaceAll(strings.TrimSpace(input.Filename), "\\", "/"))
	ext := strings.ToLower(filepath.Ext(original))
	if original == "" || original == "." || original == "/" {
		return nil, apperrors.NewBadRequest("file name is required")
	}
	if _, ok := allowedMediaExtensions[ext]; !ok {
		return nil, apperrors.NewBadRequest(fmt.Sprintf("unsupported file extension %q", ext))
	}
	contentType, err := mediaContentType(input.ContentType, ext)
	if err != nil {
		return nil, err
	}

	uploadID := uuid.NewString()
	writer, err := s.files.Create(ctx, MediaResource{DeviceID: deviceID, UploadID: uploadID, Extension: ext})
	if err != nil {
		return nil, fmt.Errorf("media service: create file: %w", err)
	}

	size, err := io.Copy(writer.Writer, io.LimitReader(input.Content, s.maxBytes+1))
	closeErr := writer.Writer.Close()
	if err == nil {
		err = closeErr
	}
	if err == nil && size > s.maxBytes {
		err = apperrors.NewBadRequest(fmt.Sprintf("file exceeds maximum size of %d bytes", s.maxBytes))
	}
	if err == nil && size == 0 {
		err = apperrors.NewBadRequest("file is empty")
	}
	if err != nil {
		if delErr := s.files.Delete(ctx, writer.Path); delErr != nil {
			s.log.Warn("failed to remove rejected upload", zap.String("path", writer.Path), zap.Error(delErr))
		}
		if apperrors.IsValidation(err) {
			return nil, err
		}
		return nil, fmt.Errorf("media service: write file: %w", err)
	}

	now := s.now().UTC()
	upload := &MediaUpload{
		UploadID:         uploadID,
		DeviceID:         deviceID,
		UploadedBy:       uploadedBy,
		OriginalFilename: original,
		StoredFilename:   filepath.Base(filepath.FromSlash(writer.Path)),
		ContentType:      contentType,
		SizeBytes:        size,
		RelativePath:     writer.Path,
		CreatedAt:        now,
		ExpiresAt:        now.Add(s.ttl),
		TTLSeconds:       int(s.ttl / time.Second),
	}

	if err := s.store.Set(ctx, MediaCollection, uploadID, uploadFields(upload)); err != nil {
		if delErr := s.files.Delete(ctx, writer.Path); delErr != nil {
			s.log.Warn("failed to remove unsaved upload", zap.String("path", writer.Path), zap.Error(delErr))
		}
		return nil, fmt.Errorf("media service: save upload: %w", err)
	}
	metrics.MediaUploads.Inc()

	s.announce(ctx, upload)
	return upload, nil
}

// announce publishes media.uploaded; failures are logged and discarded.
func (s *MediaService) announce(ctx context.Context, upload *MediaUpload) {
	if s.publisher == nil {
		return
	}
	_, err := s.publisher.PublishForActor(ctx, notifications.PublishInput{
		Type:     "media.uploaded",
		Title:    "New media uploaded",
		Body:     fmt.Sprintf("%s uploaded to %s", upload.OriginalFilename, upload.DeviceID),
		Severity: string(notifications.SeverityInfo),
		Actor:    upload.UploadedBy,
		DeviceID: upload.DeviceID,
		Data: map[string]any{
			"upload_id":    upload.UploadID,
			"content_type": upload.ContentType,
			"expires_at":   docstore.FormatTime(upload.ExpiresAt),
		},
	})
	if err != nil {
		s.log.Warn("media notification failed", zap.String("upload_id", upload.UploadID), zap.Error(err))
	}
}

// ListByDevice returns the newest live uploads of a device.
func (s *MediaService) ListByDevice(ctx context.Context, deviceID string) ([]MediaUpload, error) {
	deviceID = strings.TrimSpace(deviceID)
	if deviceID == "" {
		return nil, apperrors.NewBadRequest("device id is required")
	}

	docs, err := s.store.Collection(MediaCollection).
		Where("device_id", docstore.OpEqual, deviceID).
		OrderBy("created_at", docstore.Desc).
		Limit(mediaListLimit).
		Documents(ctx)
	if err != nil {
		return nil, fmt.Errorf("media service: list %s: %w", deviceID, err)
	}

	now := s.now()
	uploads := make([]MediaUpload, 0, len(docs))
	for _, doc := range docs {
		var upload MediaUpload
		if err := doc.DataTo(&upload); err != nil {
			return nil, err
		}
		if upload.LiveAt(now) {
			uploads = append(uploads, upload)
		}
	}
	return uploads, nil
}

// Get loads upload metadata regardless of expiry.
func (s *MediaService) Get(ctx context.Context, uploadID string) (*MediaUpload, error) {
	uploadID = strings.TrimSpace(uploadID)
	if uploadID == "" || strings.Contains(uploadID, "/") {
		return nil, apperrors.ErrNotFound.WithMessage("Upload not found")
	}
	snap, err := s.store.Get(ctx, MediaCollection, uploadID)
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, apperrors.ErrNotFound.WithMessage("Upload not found")
	}
	if err != nil {
		return nil, fmt.Errorf("media service: get %s: %w", uploadID, err)
	}
	var upload MediaUpload
	if err := snap.DataTo(&upload); err != nil {
		return nil, err
	}
	return &upload, nil
}

// Open returns the metadata and file content of a live upload. SizeBytes reflects the
// file on disk. The caller closes the reader.
func (s *MediaService) Open(ctx context.Context, uploadID string) (*MediaUpload, io.ReadCloser, error) {
	upload, err := s.Get(ctx, uploadID)
	if err != nil {
		return nil, nil, err
	}
	if !upload.LiveAt(s.now()) {
		return nil, nil, apperrors.ErrGone.WithMessage("Upload expired")
	}

	info, err := s.files.Stat(ctx, upload.RelativePath)
	if errors.Is(err, apperrors.ErrPathUnsafe) {
		s.log.Warn("refusing unsafe media path", zap.String("upload_id", upload.UploadID), zap.String("path", upload.RelativePath))
		return nil, nil, err
	}
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil, apperrors.ErrGone.WithMessage("Upload file is no longer available")
	}
	if err != nil {
		return nil, nil, fmt.Errorf("media service: stat %s: %w", upload.UploadID, err)
	}

	reader, err := s.files.Open(ctx, upload.RelativePath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil, apperrors.ErrGone.WithMessage("Upload file is no longer available")
	}
	if err != nil {
		return nil, nil, fmt.Errorf("media service: open %s: %w", upload.UploadID, err)
	}
	upload.SizeBytes = info.Size
	return upload, reader, nil
}

// ReclaimExpired deletes the files of expired uploads. Metadata rows are kept and marked
// so later runs skip them.
func (s *MediaService) ReclaimExpired(ctx context.Context) (int, error) {
	now := s.now()
	docs, err := s.store.Collection(MediaCollection).
		Where("expires_at", docstore.OpLessOrEqual, docstore.FormatTime(now)).
		Documents(ctx)
	if err != nil {
		return 0, fmt.Errorf("media service: find expired: %w", err)
	}

	reclaimed := 0
	var errs error
	for _, doc := range docs {
		var upload MediaUpload
		if err := doc.DataTo(&upload); err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		if upload.FileReclaimed {
			continue
		}
		if err := s.files.Delete(ctx, upload.RelativePath); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("upload %s: %w", upload.UploadID, err))
			continue
		}
		if err := s.store.Update(ctx, MediaCollection, upload.UploadID, map[string]any{"file_reclaimed": true}); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("upload %s: %w", upload.UploadID, err))
			continue
		}
		reclaimed++
	}
	return reclaimed, errs
}

func uploadFields(upload *MediaUpload) map[string]any {
	return map[string]any{
		"upload_id":         upload.UploadID,
		"device_id":         upload.DeviceID,
		"uploaded_by":       upload.UploadedBy,
		"original_filename": upload.OriginalFilename,
		"stored_filename":   upload.StoredFilename,
		"content_type":      upload.ContentType,
		"size_bytes":        upload.SizeBytes,
		"relative_path":     upload.RelativePath,
		"created_at":        docstore.FormatTime(upload.CreatedAt),
		"expires_at":        docstore.FormatTime(upload.ExpiresAt),
		"ttl_seconds":       upload.TTLSeconds,
	}
}

func mediaContentType(declared, ext string) (string, error) {
	declared = strings.TrimSpace(declared)
	if declared != "" {
		if mediaType, _, err := mime.ParseMediaType(declared); err == nil {
			declared = mediaType
		}
	}
	if declared == "" || declared == "application/octet-stream" {
		if guessed := mime.TypeByExtension(ext); guessed != "" {
			declared, _, _ = mime.ParseMediaType(guessed)
		}
	}
	if declared == "" {
		return "application/octet-stream", nil
	}
	if !strings.HasPrefix(declared, "image/") && !strings.HasPrefix(declared, "video/") && declared != "application/octet-stream" {
		return "", apperrors.NewBadRequest(fmt.Sprintf("unsupported content type %q", declared))
	}
	return declared, nil
}
