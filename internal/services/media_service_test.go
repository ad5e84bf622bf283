package services

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/charlesng35/smartpost/internal/docstore"
	apperrors "github.com/charlesng35/smartpost/pkg/errors"
	"github.com/charlesng35/smartpost/pkg/logger"
)

type mediaFixture struct {
	svc       *MediaService
	store     *docstore.GormStore
	files     *FilesystemMediaStore
	root      string
	clock     *testClock
	publisher *fakePublisher
}

func newMediaFixture(t *testing.T, opts ...MediaOption) *mediaFixture {
	t.Helper()
	store, clock := newTestStore(t)
	root := t.TempDir()
	files, err := NewFilesystemMediaStore(root)
	require.NoError(t, err)
	publisher := &fakePublisher{}

	svc, err := NewMediaService(store, files, publisher, opts...)
	require.NoError(t, err)
	return &mediaFixture{svc: svc, store: store, files: files, root: root, clock: clock, publisher: publisher}
}

func (f *mediaFixture) register(t *testing.T, deviceID, filename string, content string) *MediaUpload {
	t.Helper()
	upload, err := f.svc.Register(context.Background(), RegisterMediaInput{
		DeviceID:   deviceID,
		UploadedBy: "student",
		Filename:   filename,
		Content:    strings.NewReader(content),
	})
	require.NoError(t, err)
	return upload
}

func TestNewMediaServiceRequiresDependencies(t *testing.T) {
	store, _ := newTestStore(t)
	_, err := NewMediaService(nil, &FilesystemMediaStore{}, nil)
	require.Error(t, err)
	_, err = NewMediaService(store, nil, nil)
	require.Error(t, err)
}

func TestMediaRegisterPersistsUpload(t *testing.T) {
	f := newMediaFixture(t)
	created := f.clock.Now()

	upload := f.register(t, "box-1", "C:\\camera\\snapshot.JPG", "jpeg-data")
	require.NotEmpty(t, upload.UploadID)
	require.Equal(t, "box-1", upload.DeviceID)
	require.Equal(t, "student", upload.UploadedBy)
	require.Equal(t, "snapshot.JPG", upload.OriginalFilename)
	require.Equal(t, upload.UploadID+".jpg", upload.StoredFilename)
	require.Equal(t, "box-1/"+upload.UploadID+".jpg", upload.RelativePath)
	require.Equal(t, "image/jpeg", upload.ContentType)
	require.EqualValues(t, len("jpeg-data"), upload.SizeBytes)
	require.Equal(t, 180, upload.TTLSeconds)
	require.True(t, created.Equal(upload.CreatedAt))
	require.True(t, created.Add(180*time.Second).Equal(upload.ExpiresAt))

	stored, err := f.svc.Get(context.Background(), upload.UploadID)
	require.NoError(t, err)
	require.Equal(t, upload.RelativePath, stored.RelativePath)
	require.True(t, upload.ExpiresAt.Equal(stored.ExpiresAt))

	data, err := os.ReadFile(filepath.Join(f.root, filepath.FromSlash(upload.RelativePath)))
	require.NoError(t, err)
	require.Equal(t, "jpeg-data", string(data))

	inputs := f.publisher.Inputs()
	require.Len(t, inputs, 1)
	require.Equal(t, "media.uploaded", inputs[0].Type)
	require.Equal(t, "student", inputs[0].Actor)
	require.Equal(t, "box-1", inputs[0].DeviceID)
	require.Equal(t, upload.UploadID, inputs[0].Data["upload_id"])
}

func TestMediaRegisterSurvivesPublishFailure(t *testing.T) {
	f := newMediaFixture(t)
	f.publisher.err = errPublishFailed

	upload := f.register(t, "box-1", "clip.mp4", "mp4-data")
	_, err := f.svc.Get(context.Background(), upload.UploadID)
	require.NoError(t, err)
	require.Len(t, f.publisher.Inputs(), 1)
}

func TestMediaRegisterValidation(t *testing.T) {
	f := newMediaFixture(t, WithMaxUploadBytes(8))
	ctx := context.Background()

	cases := []RegisterMediaInput{
		{DeviceID: "", UploadedBy: "student", Filename: "a.jpg", Content: strings.NewReader("x")},
		{DeviceID: "box-1", UploadedBy: "student", Filename: "notes.txt", Content: strings.NewReader("x")},
		{DeviceID: "box-1", UploadedBy: "student", Filename: "noext", Content: strings.NewReader("x")},
		{DeviceID: "box-1", UploadedBy: "student", Filename: "a.png", ContentType: "text/html", Content: strings.NewReader("x")},
		{DeviceID: "box-1", UploadedBy: "student", Filename: "a.png", Content: strings.NewReader("123456789")},
		{DeviceID: "box-1", UploadedBy: "student", Filename: "a.png", Content: strings.NewReader("")},
		{DeviceID: "box-1", UploadedBy: "student", Filename: "a.png"},
	}
	for i, input := range cases {
		_, err := f.svc.Register(ctx, input)
		require.True(t, apperrors.IsValidation(err), "case %d: %v", i, err)
	}

	_, err := f.svc.Register(ctx, RegisterMediaInput{DeviceID: "box-1", Filename: "a.png", Content: strings.NewReader("x")})
	require.ErrorIs(t, err, apperrors.ErrUnauthorized)

	// Rejected uploads leave nothing behind.
	entries, err := os.ReadDir(filepath.Join(f.root, "box-1"))
	if err == nil {
		require.Empty(t, entries)
	}
	count, err := f.store.Collection(MediaCollection).Count(ctx)
	require.NoError(t, err)
	require.Zero(t, count)
	require.Empty(t, f.publisher.Inputs())
}

func TestMediaRegisterAcceptsDeclaredContentType(t *testing.T) {
	f := newMediaFixture(t)

	upload, err := f.svc.Register(context.Background(), RegisterMediaInput{
		DeviceID:    "box-1",
		UploadedBy:  "student",
		Filename:    "clip.mov",
		ContentType: "video/quicktime; charset=binary",
		Content:     strings.NewReader("mov"),
	})
	require.NoError(t, err)
	require.Equal(t, "video/quicktime", upload.ContentType)
}

func TestMediaTTLBoundary(t *testing.T) {
	f := newMediaFixture(t)
	ctx := context.Background()
	created := f.clock.Now()

	upload := f.register(t, "box-1", "snap.png", "png-data")

	f.clock.Set(created.Add(179 * time.Second))
	listed, err := f.svc.ListByDevice(ctx, "box-1")
	require.NoError(t, err)
	require.Len(t, listed, 1)
	require.Equal(t, upload.UploadID, listed[0].UploadID)

	meta, reader, err := f.svc.Open(ctx, upload.UploadID)
	require.NoError(t, err)
	body, err := io.ReadAll(reader)
	require.NoError(t, err)
	require.NoError(t, reader.Close())
	require.Equal(t, "png-data", string(body))
	require.Equal(t, "image/png", meta.ContentType)

	f.clock.Set(created.Add(180 * time.Second))
	listed, err = f.svc.ListByDevice(ctx, "box-1")
	require.NoError(t, err)
	require.Empty(t, listed)

	f.clock.Set(created.Add(181 * time.Second))
	listed, err = f.svc.ListByDevice(ctx, "box-1")
	require.NoError(t, err)
	require.Empty(t, listed)

	_, _, err = f.svc.Open(ctx, upload.UploadID)
	require.ErrorIs(t, err, apperrors.ErrGone)

	// Expired metadata is kept, never deleted.
	_, err = f.svc.Get(ctx, upload.UploadID)
	require.NoError(t, err)
}

func TestMediaCustomTTL(t *testing.T) {
	f := newMediaFixture(t, WithMediaTTL(10*time.Second))
	upload := f.register(t, "box-1", "snap.png", "png")
	require.Equal(t, 10, upload.TTLSeconds)

	f.clock.Advance(11 * time.Second)
	_, _, err := f.svc.Open(context.Background(), upload.UploadID)
	require.ErrorIs(t, err, apperrors.ErrGone)
}

func TestMediaListByDeviceOrdersAndScopes(t *testing.T) {
	f := newMediaFixture(t)
	ctx := context.Background()

	first := f.register(t, "box-1", "a.jpg", "a")
	f.clock.Advance(time.Second)
	second := f.register(t, "box-1", "b.jpg", "b")
	f.clock.Advance(time.Second)
	f.register(t, "box-2", "c.jpg", "c")

	listed, err := f.svc.ListByDevice(ctx, "box-1")
	require.NoError(t, err)
	require.Len(t, listed, 2)
	require.Equal(t, second.UploadID, listed[0].UploadID)
	require.Equal(t, first.UploadID, listed[1].UploadID)

	_, err = f.svc.ListByDevice(ctx, " ")
	require.True(t, apperrors.IsValidation(err))
}

func TestMediaOpenErrors(t *testing.T) {
	f := newMediaFixture(t)
	ctx := context.Background()

	_, _, err := f.svc.Open(ctx, "missing")
	require.ErrorIs(t, err, apperrors.ErrNotFound)

	missingFile := f.register(t, "box-1", "gone.jpg", "x")
	require.NoError(t, f.files.Delete(ctx, missingFile.RelativePath))
	_, _, err = f.svc.Open(ctx, missingFile.UploadID)
	require.ErrorIs(t, err, apperrors.ErrGone)

	tampered := f.register(t, "box-1", "evil.jpg", "x")
	require.NoError(t, f.store.Update(ctx, MediaCollection, tampered.UploadID, map[string]any{
		"relative_path": "../../etc/passwd",
	}))
	_, _, err = f.svc.Open(ctx, tampered.UploadID)
	require.ErrorIs(t, err, apperrors.ErrPathUnsafe)
}

func TestMediaOpenReportsStoredSize(t *testing.T) {
	f := newMediaFixture(t)
	ctx := context.Background()

	upload := f.register(t, "box-1", "frame.png", "png")
	require.EqualValues(t, 3, upload.SizeBytes)

	path := filepath.Join(f.root, filepath.FromSlash(upload.RelativePath))
	require.NoError(t, os.WriteFile(path, []byte("png-rewritten"), 0o600))

	opened, reader, err := f.svc.Open(ctx, upload.UploadID)
	require.NoError(t, err)
	defer reader.Close()
	require.EqualValues(t, len("png-rewritten"), opened.SizeBytes)

	data, err := io.ReadAll(reader)
	require.NoError(t, err)
	require.Equal(t, "png-rewritten", string(data))
}

// failingSetStore rejects every Set so Register cannot persist metadata.
type failingSetStore struct {
	docstore.Store
}

func (failingSetStore) Set(context.Context, string, string, map[string]any, ...docstore.SetOption) error {
	return errors.New("database is locked")
}

// stuckFiles refuses to delete anything.
type stuckFiles struct {
	*FilesystemMediaStore
}

func (stuckFiles) Delete(context.Context, string) error {
	return errors.New("permission denied")
}

func TestMediaRegisterLogsCleanupFailure(t *testing.T) {
	core, recorded := observer.New(zap.WarnLevel)
	t.Cleanup(func() { logger.Replace(nil) })
	logger.Replace(zap.New(core))

	store, _ := newTestStore(t)
	files, err := NewFilesystemMediaStore(t.TempDir())
	require.NoError(t, err)
	svc, err := NewMediaService(failingSetStore{Store: store}, stuckFiles{files}, nil)
	require.NoError(t, err)

	_, err = svc.Register(context.Background(), RegisterMediaInput{
		DeviceID:   "box-1",
		UploadedBy: "student",
		Filename:   "snap.jpg",
		Content:    strings.NewReader("jpeg"),
	})
	require.ErrorContains(t, err, "save upload")

	entries := recorded.FilterMessage("failed to remove unsaved upload").All()
	require.Len(t, entries, 1)
	require.Equal(t, "permission denied", entries[0].ContextMap()["error"])
}

func TestMediaReclaimExpired(t *testing.T) {
	f := newMediaFixture(t)
	ctx := context.Background()

	old := f.register(t, "box-1", "old.jpg", "old")
	f.clock.Advance(2 * time.Minute)
	fresh := f.register(t, "box-1", "fresh.jpg", "fresh")
	f.clock.Advance(90 * time.Second)

	reclaimed, err := f.svc.ReclaimExpired(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, reclaimed)

	_, err = f.files.Stat(ctx, old.RelativePath)
	require.Error(t, err)
	_, err = f.files.Stat(ctx, fresh.RelativePath)
	require.NoError(t, err)

	stored, err := f.svc.Get(ctx, old.UploadID)
	require.NoError(t, err)
	require.True(t, stored.FileReclaimed)

	reclaimed, err = f.svc.ReclaimExpired(ctx)
	require.NoError(t, err)
	require.Zero(t, reclaimed)
}

func TestMediaUploadLiveAt(t *testing.T) {
	expires := time.Date(2025, 1, 1, 0, 3, 0, 0, time.UTC)
	upload := MediaUpload{ExpiresAt: expires}
	require.True(t, upload.LiveAt(expires.Add(-time.Nanosecond)))
	require.False(t, upload.LiveAt(expires))
	require.False(t, upload.LiveAt(expires.Add(time.Second)))
}
