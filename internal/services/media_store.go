package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	apperrors "github.com/charlesng35/smartpost/pkg/errors"
)

var (
	_ MediaStore = (*FilesystemMediaStore)(nil)
)

// MediaStore abstracts the storage backing uploaded device media.
type MediaStore interface {
	// Create allocates a writable object for the supplied media resource.
	Create(ctx context.Context, resource MediaResource) (*MediaWriter, error)
	// Open returns a readable stream for the object stored at the relative path.
	Open(ctx context.Context, path string) (io.ReadCloser, error)
	// Stat returns metadata for the object stored at the relative path.
	Stat(ctx context.Context, path string) (MediaFileInfo, error)
	// Delete removes the object stored at the relative path.
	Delete(ctx context.Context, path string) error
}

// MediaResource identifies where a new upload is placed.
type MediaResource struct {
	DeviceID  string
	UploadID  string
	Extension string
}

// MediaWriter is a writable handle created by the MediaStore.
type MediaWriter struct {
	Path   string
	Writer io.WriteCloser
}

// MediaFileInfo captures size and timestamp metadata for stored media.
type MediaFileInfo struct {
	Path    string
	Size    int64
	ModTime time.Time
}

// FilesystemMediaStore persists media below a root directory. Paths handed in and out
// are slash separated and relative to the root so host paths never reach the database.
type FilesystemMediaStore struct {
	root string
}

// NewFilesystemMediaStore initialises a filesystem-backed media store rooted at dir.
func NewFilesystemMediaStore(dir string) (*FilesystemMediaStore, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, errors.New("media store: root directory is required")
	}
	root, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("media store: resolve root: %w", err)
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("media store: ensure root directory: %w", err)
	}
	return &FilesystemMediaStore{root: root}, nil
}

// Create opens {device}/{upload_id}{ext} for writing.
func (s *FilesystemMediaStore) Create(_ context.Context, resource MediaResource) (*MediaWriter, error) {
	uploadID := strings.TrimSpace(resource.UploadID)
	if uploadID == "" {
		return nil, errors.New("media store: upload id is required")
	}
	deviceDir := sanitizePathFragment(resource.DeviceID)

	dir := filepath.Join(s.root, deviceDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("media store: mkdir %s: %w", deviceDir, err)
	}

	fullPath := filepath.Join(dir, sanitizePathFragment(uploadID)+strings.ToLower(resource.Extension))
	fh, err := os.OpenFile(fullPath, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o600)
	if err != nil {
		return nil, fmt.Errorf("media store: create file: %w", err)
	}

	return &MediaWriter{
		Path:   s.relative(fullPath),
		Writer: fh,
	}, nil
}

// Open returns a reader for the stored media.
func (s *FilesystemMediaStore) Open(_ context.Context, path string) (io.ReadCloser, error) {
	fullPath, err := s.resolve(path)
	if err != nil {
		return nil, err
	}
	fh, err := os.Open(fullPath)
	if err != nil {
		return nil, fmt.Errorf("media store: open file: %w", err)
	}
	return fh, nil
}

// Stat returns file metadata for the stored media.
func (s *FilesystemMediaStore) Stat(_ context.Context, path string) (MediaFileInfo, error) {
	fullPath, err := s.resolve(path)
	if err != nil {
		return MediaFileInfo{}, err
	}
	info, err := os.Stat(fullPath)
	if err != nil {
		return MediaFileInfo{}, fmt.Errorf("media store: stat file: %w", err)
	}
	if info.IsDir() {
		return MediaFileInfo{}, fmt.Errorf("media store: %s is a directory: %w", path, os.ErrNotExist)
	}
	return MediaFileInfo{
		Path:    s.relative(fullPath),
		Size:    info.Size(),
		ModTime: info.ModTime(),
	}, nil
}

// Delete removes the stored media. Missing files are not an error.
func (s *FilesystemMediaStore) Delete(_ context.Context, path string) error {
	fullPath, err := s.resolve(path)
	if err != nil {
		return err
	}
	if err := os.Remove(fullPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("media store: delete file: %w", err)
	}
	return nil
}

// resolve maps a stored relative path to an absolute path inside the root and refuses
// anything that would land outside it.
func (s *FilesystemMediaStore) resolve(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" || filepath.IsAbs(path) || strings.HasPrefix(path, "/") {
		return "", apperrors.ErrPathUnsafe
	}
	fullPath := filepath.Join(s.root, filepath.FromSlash(path))
	rel, err := filepath.Rel(s.root, fullPath)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", apperrors.ErrPathUnsafe
	}
	return fullPath, nil
}

func (s *FilesystemMediaStore) relative(fullPath string) string {
	rel, err := filepath.Rel(s.root, fullPath)
	if err != nil {
		return fullPath
	}
	return filepath.ToSlash(rel)
}

func sanitizePathFragment(fragment string) string {
	fragment = strings.TrimSpace(fragment)
	if fragment == "" {
		return "unknown"
	}
	fragment = strings.ToLower(fragment)
	fragment = strings.ReplaceAll(fragment, "..", "")
	fragment = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r
		case r >= '0' && r <= '9':
			return r
		case r == '-' || r == '_':
			return r
		default:
			return '-'
		}
	}, fragment)
	fragment = strings.Trim(fragment, "-")
	if fragment == "" {
		return "unknown"
	}
	return fragment
}
