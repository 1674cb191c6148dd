package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/smd-platform/syllabus-api/internal/authz"
	"github.com/smd-platform/syllabus-api/internal/models"
	"github.com/smd-platform/syllabus-api/pkg/config"
	appErrors "github.com/smd-platform/syllabus-api/pkg/errors"
	"github.com/smd-platform/syllabus-api/pkg/objectstore"
	"github.com/smd-platform/syllabus-api/pkg/retry"
)

const maxSignedURLSeconds = 7 * 24 * 60 * 60

// extensionsByMime maps each accepted content type to its file extensions.
var extensionsByMime = map[string][]string{
	"application/pdf":    {".pdf"},
	"application/msword": {".doc"},
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": {".docx"},
}

type fileStore interface {
	Create(ctx context.Context, asset *models.FileAsset) error
	GetByID(ctx context.Context, id string) (*models.FileAsset, error)
	ListByVersion(ctx context.Context, versionID string) ([]models.FileAsset, error)
	UpdateDisplayName(ctx context.Context, id, displayName string) error
	UpdateContent(ctx context.Context, asset *models.FileAsset) error
	Delete(ctx context.Context, id string) error
	GetVersionInfo(ctx context.Context, versionID string) (*models.VersionInfo, error)
}

type orphanRecorder interface {
	RecordOrphanedBlob()
}

// Upload is the validated payload of an incoming attachment.
type Upload struct {
	Filename string
	MimeType string
	Size     int64
	Data     []byte
}

// FileService manages syllabus attachments: blobs in the object store,
// metadata in Postgres, and the compensation protocol that keeps the two
// consistent when one side fails.
type FileService struct {
	repo    fileStore
	store   objectstore.Store
	policy  retry.Policy
	cfg     config.FilesConfig
	metrics orphanRecorder
	logger  *zap.Logger
}

// NewFileService constructs the service. The retry policy bounds
// compensating deletes; metrics may be nil.
func NewFileService(repo fileStore, store objectstore.Store, policy retry.Policy, cfg config.FilesConfig, metrics orphanRecorder, logger *zap.Logger) *FileService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileService{
		repo:    repo,
		store:   store,
		policy:  policy.Normalize(),
		cfg:     cfg,
		metrics: metrics,
		logger:  logger,
	}
}

// guardedVersion loads the ownership facts for a version and applies the
// mutation guard. Versions the caller cannot even see read as NotFound.
func (s *FileService) guardedVersion(ctx context.Context, claims *models.JWTClaims, versionID string) (*models.VersionInfo, error) {
	info, err := s.repo.GetVersionInfo(ctx, versionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "load version")
	}
	if !authz.CanViewVersion(claims, info.OwnerID, info.Status) {
		return nil, appErrors.ErrNotFound
	}
	if !authz.CanMutateFiles(claims, info.OwnerID, info.Status) {
		return nil, appErrors.ErrForbidden
	}
	return info, nil
}

// validate rejects the payload before any blob or row is written.
func (s *FileService) validate(upload Upload) error {
	if upload.Size <= 0 || len(upload.Data) == 0 {
		return appErrors.Clone(appErrors.ErrValidation, "file is empty")
	}
	if upload.Size > s.cfg.MaxFileSizeBytes {
		return appErrors.Clone(appErrors.ErrValidation,
			fmt.Sprintf("file exceeds the maximum size of %d bytes", s.cfg.MaxFileSizeBytes))
	}

	mime := strings.ToLower(strings.TrimSpace(upload.MimeType))
	allowed := false
	for _, m := range s.cfg.AllowedMIMEs {
		if mime == m {
			allowed = true
			break
		}
	}
	if !allowed {
		return appErrors.Clone(appErrors.ErrValidation, "only PDF and Word documents are accepted")
	}

	ext := strings.ToLower(filepath.Ext(upload.Filename))
	for _, e := range extensionsByMime[mime] {
		if ext == e {
			return nil
		}
	}
	return appErrors.Clone(appErrors.ErrValidation, "file extension does not match its content type")
}

func (s *FileService) objectPath(info *models.VersionInfo, filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	return fmt.Sprintf("syllabi/%s/versions/%s/%s%s", info.SyllabusID, info.VersionID, uuid.NewString(), ext)
}

// compensate deletes a blob whose metadata write failed, retrying within the
// configured budget. If the budget runs out the blob is orphaned: it is
// logged and counted for manual cleanup, and the caller's original error
// still stands.
func (s *FileService) compensate(ctx context.Context, objectPath string) {
	attempts, err := s.policy.Do(ctx, func(ctx context.Context) error {
		return s.store.Delete(ctx, objectPath)
	})
	if err == nil {
		return
	}
	s.logger.Error("orphaned blob: compensating delete exhausted its retries",
		zap.String("objectPath", objectPath),
		zap.String("bucket", s.store.Bucket()),
		zap.Int("attempts", attempts),
		zap.Error(err))
	if s.metrics != nil {
		s.metrics.RecordOrphanedBlob()
	}
}

// UploadFile stores a new attachment: validate, put the blob, then insert
// the metadata row. A failed insert triggers a compensating blob delete so
// no stored object ends up invisible to listings.
func (s *FileService) UploadFile(ctx context.Context, claims *models.JWTClaims, versionID string, upload Upload) (*models.FileAsset, error) {
	info, err := s.guardedVersion(ctx, claims, versionID)
	if err != nil {
		return nil, err
	}
	if err := s.validate(upload); err != nil {
		return nil, err
	}

	objectPath := s.objectPath(info, upload.Filename)
	if err := s.store.Put(ctx, objectPath, upload.Data, upload.MimeType); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrDependency.Code, appErrors.ErrDependency.Status, "store attachment blob")
	}

	asset := &models.FileAsset{
		VersionID:        versionID,
		OriginalFilename: upload.Filename,
		Bucket:           s.store.Bucket(),
		ObjectPath:       objectPath,
		MimeType:         upload.MimeType,
		SizeBytes:        upload.Size,
		UploadedBy:       claims.UserID,
	}
	if err := s.repo.Create(ctx, asset); err != nil {
		s.compensate(ctx, objectPath)
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "store attachment metadata")
	}

	s.logger.Info("attachment uploaded",
		zap.String("fileId", asset.ID),
		zap.String("versionId", versionID),
		zap.String("objectPath", objectPath))
	return asset, nil
}

// ReplaceFile swaps an attachment's content. The new blob goes in first,
// then the metadata row is repointed; only after that succeeds is the old
// blob deleted, best effort. A failed repoint compensates the new blob and
// leaves the previous content fully intact.
func (s *FileService) ReplaceFile(ctx context.Context, claims *models.JWTClaims, fileID string, upload Upload) (*models.FileAsset, error) {
	asset, err := s.loadAsset(ctx, fileID)
	if err != nil {
		return nil, err
	}
	info, err := s.guardedVersion(ctx, claims, asset.VersionID)
	if err != nil {
		return nil, err
	}
	if err := s.validate(upload); err != nil {
		return nil, err
	}

	oldPath := asset.ObjectPath
	newPath := s.objectPath(info, upload.Filename)
	if err := s.store.Put(ctx, newPath, upload.Data, upload.MimeType); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrDependency.Code, appErrors.ErrDependency.Status, "store replacement blob")
	}

	asset.OriginalFilename = upload.Filename
	asset.ObjectPath = newPath
	asset.MimeType = upload.MimeType
	asset.SizeBytes = upload.Size
	asset.UploadedBy = claims.UserID
	if err := s.repo.UpdateContent(ctx, asset); err != nil {
		s.compensate(ctx, newPath)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "repoint attachment metadata")
	}

	if err := s.store.Delete(ctx, oldPath); err != nil {
		s.logger.Warn("old blob delete failed after replace",
			zap.String("fileId", fileID),
			zap.String("objectPath", oldPath),
			zap.Error(err))
	}

	s.logger.Info("attachment replaced",
		zap.String("fileId", fileID),
		zap.String("objectPath", newPath))
	return asset, nil
}

// RenameFile changes the display name only.
func (s *FileService) RenameFile(ctx context.Context, claims *models.JWTClaims, fileID, displayName string) (*models.FileAsset, error) {
	asset, err := s.loadAsset(ctx, fileID)
	if err != nil {
		return nil, err
	}
	if _, err := s.guardedVersion(ctx, claims, asset.VersionID); err != nil {
		return nil, err
	}

	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "display name must not be empty")
	}
	if err := s.repo.UpdateDisplayName(ctx, fileID, displayName); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "rename attachment")
	}
	asset.DisplayName = &displayName
	return asset, nil
}

// DeleteFile removes an attachment. The metadata row goes first so the file
// disappears from listings immediately; the blob delete afterwards is best
// effort and a failure only leaves unreferenced storage, never a dangling
// metadata row.
func (s *FileService) DeleteFile(ctx context.Context, claims *models.JWTClaims, fileID string) error {
	asset, err := s.loadAsset(ctx, fileID)
	if err != nil {
		return err
	}
	if _, err := s.guardedVersion(ctx, claims, asset.VersionID); err != nil {
		return err
	}

	if err := s.repo.Delete(ctx, fileID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.ErrNotFound
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "delete attachment metadata")
	}

	if err := s.store.Delete(ctx, asset.ObjectPath); err != nil {
		s.logger.Warn("blob delete failed after metadata delete",
			zap.String("fileId", fileID),
			zap.String("objectPath", asset.ObjectPath),
			zap.Error(err))
	}
	return nil
}

// ListFiles returns the attachments of a version the caller may see.
func (s *FileService) ListFiles(ctx context.Context, claims *models.JWTClaims, versionID string) ([]models.FileAsset, error) {
	info, err := s.repo.GetVersionInfo(ctx, versionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "load version")
	}
	if !authz.CanViewVersion(claims, info.OwnerID, info.Status) {
		return nil, appErrors.ErrNotFound
	}

	assets, err := s.repo.ListByVersion(ctx, versionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "list attachments")
	}
	return assets, nil
}

// SignedURL issues a presigned download link for an attachment the caller
// may see. expiresIn is in seconds; zero selects the configured default and
// anything outside 1s..7d is rejected.
func (s *FileService) SignedURL(ctx context.Context, claims *models.JWTClaims, fileID string, expiresIn int) (string, int, error) {
	if expiresIn == 0 {
		expiresIn = int(s.cfg.SignedURLTTL.Seconds())
	}
	if expiresIn < 1 || expiresIn > maxSignedURLSeconds {
		return "", 0, appErrors.Clone(appErrors.ErrValidation, "expiresIn must be between 1 second and 7 days")
	}

	asset, err := s.loadAsset(ctx, fileID)
	if err != nil {
		return "", 0, err
	}
	info, err := s.repo.GetVersionInfo(ctx, asset.VersionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", 0, appErrors.ErrNotFound
		}
		return "", 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "load version")
	}
	if !authz.CanViewVersion(claims, info.OwnerID, info.Status) {
		return "", 0, appErrors.ErrNotFound
	}

	downloadName := asset.OriginalFilename
	if asset.DisplayName != nil && *asset.DisplayName != "" {
		downloadName = *asset.DisplayName + strings.ToLower(filepath.Ext(asset.OriginalFilename))
	}
	url, err := s.store.SignedURL(ctx, asset.ObjectPath, downloadName, time.Duration(expiresIn)*time.Second)
	if err != nil {
		return "", 0, appErrors.Wrap(err, appErrors.ErrDependency.Code, appErrors.ErrDependency.Status, "presign download url")
	}
	return url, expiresIn, nil
}

func (s *FileService) loadAsset(ctx context.Context, fileID string) (*models.FileAsset, error) {
	asset, err := s.repo.GetByID(ctx, fileID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "load attachment")
	}
	return asset, nil
}
