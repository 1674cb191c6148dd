package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smd-platform/syllabus-api/internal/models"
	"github.com/smd-platform/syllabus-api/pkg/config"
	appErrors "github.com/smd-platform/syllabus-api/pkg/errors"
	"github.com/smd-platform/syllabus-api/pkg/retry"
)

type fakeFileStore struct {
	assets       map[string]*models.FileAsset
	versionInfo  map[string]*models.VersionInfo
	createErr    error
	updateErr    error
	createCalls  int
	deleteCalled []string
}

func newFakeFileStore() *fakeFileStore {
	return &fakeFileStore{
		assets:      make(map[string]*models.FileAsset),
		versionInfo: make(map[string]*models.VersionInfo),
	}
}

func (f *fakeFileStore) Create(ctx context.Context, asset *models.FileAsset) error {
	f.createCalls++
	if f.createErr != nil {
		return f.createErr
	}
	asset.ID = fmt.Sprintf("file-%d", f.createCalls)
	asset.CreatedAt = time.Now().UTC()
	stored := *asset
	f.assets[asset.ID] = &stored
	return nil
}

func (f *fakeFileStore) GetByID(ctx context.Context, id string) (*models.FileAsset, error) {
	asset, ok := f.assets[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *asset
	return &copied, nil
}

func (f *fakeFileStore) ListByVersion(ctx context.Context, versionID string) ([]models.FileAsset, error) {
	var out []models.FileAsset
	for _, a := range f.assets {
		if a.VersionID == versionID {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (f *fakeFileStore) UpdateDisplayName(ctx context.Context, id, displayName string) error {
	asset, ok := f.assets[id]
	if !ok {
		return sql.ErrNoRows
	}
	asset.DisplayName = &displayName
	return nil
}

func (f *fakeFileStore) UpdateContent(ctx context.Context, asset *models.FileAsset) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	stored, ok := f.assets[asset.ID]
	if !ok {
		return sql.ErrNoRows
	}
	*stored = *asset
	return nil
}

func (f *fakeFileStore) Delete(ctx context.Context, id string) error {
	if _, ok := f.assets[id]; !ok {
		return sql.ErrNoRows
	}
	delete(f.assets, id)
	f.deleteCalled = append(f.deleteCalled, id)
	return nil
}

func (f *fakeFileStore) GetVersionInfo(ctx context.Context, versionID string) (*models.VersionInfo, error) {
	info, ok := f.versionInfo[versionID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *info
	return &copied, nil
}

type fakeObjectStore struct {
	blobs      map[string][]byte
	putErr     error
	deleteErr  error
	deletes    []string
	signedURLs int
}

func newFakeObjectStore() *fakeObjectStore {
	return &fakeObjectStore{blobs: make(map[string][]byte)}
}

func (f *fakeObjectStore) Put(ctx context.Context, objectPath string, data []byte, contentType string) error {
	if f.putErr != nil {
		return f.putErr
	}
	f.blobs[objectPath] = data
	return nil
}

func (f *fakeObjectStore) Delete(ctx context.Context, objectPath string) error {
	f.deletes = append(f.deletes, objectPath)
	if f.deleteErr != nil {
		return f.deleteErr
	}
	delete(f.blobs, objectPath)
	return nil
}

func (f *fakeObjectStore) SignedURL(ctx context.Context, objectPath, downloadFilename string, ttl time.Duration) (string, error) {
	f.signedURLs++
	return fmt.Sprintf("https://store.example/%s?ttl=%d", objectPath, int(ttl.Seconds())), nil
}

func (f *fakeObjectStore) Bucket() string { return "syllabus-files" }

type fakeOrphanRecorder struct{ count int }

func (f *fakeOrphanRecorder) RecordOrphanedBlob() { f.count++ }

func testFilesConfig() config.FilesConfig {
	return config.FilesConfig{
		MaxFileSizeBytes: 20 * 1024 * 1024,
		AllowedMIMEs: []string{
			"application/pdf",
			"application/msword",
			"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
		},
		SignedURLTTL:      time.Hour,
		CompensateRetries: 3,
		CompensateBackoff: time.Millisecond,
	}
}

func newFileFixture(t *testing.T) (*FileService, *fakeFileStore, *fakeObjectStore, *fakeOrphanRecorder) {
	t.Helper()
	repo := newFakeFileStore()
	repo.versionInfo["ver-1"] = &models.VersionInfo{
		VersionID:  "ver-1",
		SyllabusID: "syl-1",
		OwnerID:    "lect-1",
		Status:     models.StatusDraft,
	}
	store := newFakeObjectStore()
	orphans := &fakeOrphanRecorder{}
	policy := retry.Policy{MaxAttempts: 3, Backoff: time.Millisecond}
	svc := NewFileService(repo, store, policy, testFilesConfig(), orphans, nil)
	return svc, repo, store, orphans
}

func pdfUpload(size int64) Upload {
	return Upload{
		Filename: "syllabus.pdf",
		MimeType: "application/pdf",
		Size:     size,
		Data:     []byte("%PDF-1.7 test"),
	}
}

func TestUploadFileStoresBlobAndMetadata(t *testing.T) {
	svc, repo, store, _ := newFileFixture(t)

	asset, err := svc.UploadFile(context.Background(), lecturerClaims, "ver-1", pdfUpload(1024))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(asset.ObjectPath, "syllabi/syl-1/versions/ver-1/"))
	assert.True(t, strings.HasSuffix(asset.ObjectPath, ".pdf"))
	assert.Equal(t, "syllabus-files", asset.Bucket)
	assert.Equal(t, "lect-1", asset.UploadedBy)
	assert.Contains(t, store.blobs, asset.ObjectPath)
	assert.Len(t, repo.assets, 1)
}

func TestUploadFileRejectsOversizePayload(t *testing.T) {
	svc, repo, store, _ := newFileFixture(t)

	// 25MB exceeds the 20MB limit: nothing may reach either store.
	_, err := svc.UploadFile(context.Background(), lecturerClaims, "ver-1", pdfUpload(25*1024*1024))
	assert.ErrorIs(t, err, appErrors.ErrValidation)
	assert.Empty(t, store.blobs)
	assert.Empty(t, repo.assets)
	assert.Zero(t, repo.createCalls)
}

func TestUploadFileRejectsDisallowedTypes(t *testing.T) {
	svc, _, store, _ := newFileFixture(t)
	ctx := context.Background()

	_, err := svc.UploadFile(ctx, lecturerClaims, "ver-1", Upload{
		Filename: "notes.txt", MimeType: "text/plain", Size: 10, Data: []byte("hello"),
	})
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	// Declared type and extension must agree.
	_, err = svc.UploadFile(ctx, lecturerClaims, "ver-1", Upload{
		Filename: "notes.docx", MimeType: "application/pdf", Size: 10, Data: []byte("x"),
	})
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	_, err = svc.UploadFile(ctx, lecturerClaims, "ver-1", Upload{
		Filename: "empty.pdf", MimeType: "application/pdf", Size: 0,
	})
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	assert.Empty(t, store.blobs)
}

func TestUploadFileGuards(t *testing.T) {
	svc, repo, _, _ := newFileFixture(t)
	ctx := context.Background()

	// Non-owner lecturer cannot see the draft at all.
	_, err := svc.UploadFile(ctx, otherLecturer, "ver-1", pdfUpload(10))
	assert.ErrorIs(t, err, appErrors.ErrNotFound)

	// The admin sees the draft but may not mutate its files.
	_, err = svc.UploadFile(ctx, adminClaims, "ver-1", pdfUpload(10))
	assert.ErrorIs(t, err, appErrors.ErrForbidden)

	// Past DRAFT even the owner is locked out.
	repo.versionInfo["ver-1"].Status = models.StatusPendingReview
	_, err = svc.UploadFile(ctx, lecturerClaims, "ver-1", pdfUpload(10))
	assert.ErrorIs(t, err, appErrors.ErrForbidden)

	_, err = svc.UploadFile(ctx, lecturerClaims, "missing", pdfUpload(10))
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestUploadFileCompensatesOnMetadataFailure(t *testing.T) {
	svc, repo, store, orphans := newFileFixture(t)
	repo.createErr = errors.New("insert failed")

	_, err := svc.UploadFile(context.Background(), lecturerClaims, "ver-1", pdfUpload(10))
	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrInternal)

	// The blob was deleted again, so listings and storage agree.
	assert.Len(t, store.deletes, 1)
	assert.Empty(t, store.blobs)
	assert.Empty(t, repo.assets)
	assert.Zero(t, orphans.count)
}

func TestUploadFileOrphansBlobWhenCompensationExhausted(t *testing.T) {
	svc, repo, store, orphans := newFileFixture(t)
	repo.createErr = errors.New("insert failed")
	store.deleteErr = errors.New("storage unavailable")

	_, err := svc.UploadFile(context.Background(), lecturerClaims, "ver-1", pdfUpload(10))
	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrInternal)

	// Three attempts, all failed: the blob stays orphaned and is counted.
	assert.Len(t, store.deletes, 3)
	assert.Len(t, store.blobs, 1)
	assert.Equal(t, 1, orphans.count)
}

func TestUploadFileStoreFailurePropagates(t *testing.T) {
	svc, repo, store, _ := newFileFixture(t)
	store.putErr = errors.New("put failed")

	_, err := svc.UploadFile(context.Background(), lecturerClaims, "ver-1", pdfUpload(10))
	assert.ErrorIs(t, err, appErrors.ErrDependency)
	assert.Zero(t, repo.createCalls)
}

func TestReplaceFileSwapsBlobThenDeletesOld(t *testing.T) {
	svc, repo, store, _ := newFileFixture(t)
	ctx := context.Background()

	asset, err := svc.UploadFile(ctx, lecturerClaims, "ver-1", pdfUpload(10))
	require.NoError(t, err)
	oldPath := asset.ObjectPath

	replaced, err := svc.ReplaceFile(ctx, lecturerClaims, asset.ID, Upload{
		Filename: "v2.docx",
		MimeType: "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
		Size:     2048,
		Data:     []byte("new content"),
	})
	require.NoError(t, err)
	assert.NotEqual(t, oldPath, replaced.ObjectPath)
	assert.Equal(t, "v2.docx", replaced.OriginalFilename)
	assert.Contains(t, store.blobs, replaced.ObjectPath)
	assert.NotContains(t, store.blobs, oldPath)
	assert.Equal(t, replaced.ObjectPath, repo.assets[asset.ID].ObjectPath)
}

func TestReplaceFileCompensatesNewBlobOnMetadataFailure(t *testing.T) {
	svc, repo, store, _ := newFileFixture(t)
	ctx := context.Background()

	asset, err := svc.UploadFile(ctx, lecturerClaims, "ver-1", pdfUpload(10))
	require.NoError(t, err)
	oldPath := asset.ObjectPath

	repo.updateErr = errors.New("update failed")
	_, err = svc.ReplaceFile(ctx, lecturerClaims, asset.ID, pdfUpload(20))
	require.Error(t, err)

	// The previous content and its metadata row are untouched; the new
	// blob was compensated away.
	assert.Contains(t, store.blobs, oldPath)
	assert.Len(t, store.blobs, 1)
	assert.Equal(t, oldPath, repo.assets[asset.ID].ObjectPath)
}

func TestReplaceFileKeepsMetadataWhenOldBlobDeleteFails(t *testing.T) {
	svc, repo, store, _ := newFileFixture(t)
	ctx := context.Background()

	asset, err := svc.UploadFile(ctx, lecturerClaims, "ver-1", pdfUpload(10))
	require.NoError(t, err)

	// The old blob delete is best effort: its failure must not undo the
	// committed replacement.
	store.deleteErr = errors.New("storage unavailable")
	replaced, err := svc.ReplaceFile(ctx, lecturerClaims, asset.ID, pdfUpload(20))
	require.NoError(t, err)
	assert.Equal(t, replaced.ObjectPath, repo.assets[asset.ID].ObjectPath)
}

func TestRenameFile(t *testing.T) {
	svc, repo, _, _ := newFileFixture(t)
	ctx := context.Background()

	asset, err := svc.UploadFile(ctx, lecturerClaims, "ver-1", pdfUpload(10))
	require.NoError(t, err)

	renamed, err := svc.RenameFile(ctx, lecturerClaims, asset.ID, "Course outline 2026")
	require.NoError(t, err)
	require.NotNil(t, renamed.DisplayName)
	assert.Equal(t, "Course outline 2026", *renamed.DisplayName)
	assert.Equal(t, "syllabus.pdf", repo.assets[asset.ID].OriginalFilename)

	_, err = svc.RenameFile(ctx, lecturerClaims, asset.ID, "   ")
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	_, err = svc.RenameFile(ctx, adminClaims, asset.ID, "x")
	assert.ErrorIs(t, err, appErrors.ErrForbidden)
}

func TestDeleteFileRemovesMetadataFirst(t *testing.T) {
	svc, repo, store, _ := newFileFixture(t)
	ctx := context.Background()

	asset, err := svc.UploadFile(ctx, lecturerClaims, "ver-1", pdfUpload(10))
	require.NoError(t, err)

	// Blob delete failure is logged, not surfaced: the row is gone and the
	// file no longer lists.
	store.deleteErr = errors.New("storage unavailable")
	require.NoError(t, svc.DeleteFile(ctx, lecturerClaims, asset.ID))
	assert.Empty(t, repo.assets)

	files, err := svc.ListFiles(ctx, lecturerClaims, "ver-1")
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestListFilesVisibility(t *testing.T) {
	svc, repo, _, _ := newFileFixture(t)
	ctx := context.Background()

	_, err := svc.UploadFile(ctx, lecturerClaims, "ver-1", pdfUpload(10))
	require.NoError(t, err)

	// Draft attachments are invisible to students and anonymous callers.
	_, err = svc.ListFiles(ctx, studentClaims, "ver-1")
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
	_, err = svc.ListFiles(ctx, nil, "ver-1")
	assert.ErrorIs(t, err, appErrors.ErrNotFound)

	repo.versionInfo["ver-1"].Status = models.StatusPublished
	files, err := svc.ListFiles(ctx, studentClaims, "ver-1")
	require.NoError(t, err)
	assert.Len(t, files, 1)
	files, err = svc.ListFiles(ctx, nil, "ver-1")
	require.NoError(t, err)
	assert.Len(t, files, 1)
}

func TestSignedURLBoundsAndVisibility(t *testing.T) {
	svc, repo, _, _ := newFileFixture(t)
	ctx := context.Background()

	asset, err := svc.UploadFile(ctx, lecturerClaims, "ver-1", pdfUpload(10))
	require.NoError(t, err)

	// Zero selects the configured default of one hour.
	url, expiresIn, err := svc.SignedURL(ctx, lecturerClaims, asset.ID, 0)
	require.NoError(t, err)
	assert.Contains(t, url, asset.ObjectPath)
	assert.Equal(t, 3600, expiresIn)

	_, _, err = svc.SignedURL(ctx, lecturerClaims, asset.ID, -5)
	assert.ErrorIs(t, err, appErrors.ErrValidation)
	_, _, err = svc.SignedURL(ctx, lecturerClaims, asset.ID, maxSignedURLSeconds+1)
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	_, _, err = svc.SignedURL(ctx, studentClaims, asset.ID, 60)
	assert.ErrorIs(t, err, appErrors.ErrNotFound)

	repo.versionInfo["ver-1"].Status = models.StatusPublished
	_, expiresIn, err = svc.SignedURL(ctx, studentClaims, asset.ID, 60)
	require.NoError(t, err)
	assert.Equal(t, 60, expiresIn)
}
