package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/smd-platform/syllabus-api/internal/models"
)

// FileRepository provides database access for attachment metadata.
type FileRepository struct {
	db *sqlx.DB
}

// NewFileRepository creates a new instance of FileRepository.
func NewFileRepository(db *sqlx.DB) *FileRepository {
	return &FileRepository{db: db}
}

const fileColumns = `id, version_id, original_filename, display_name, bucket, object_path, mime_type, size_bytes, uploaded_by, created_at`

// Create inserts a metadata row for an already-uploaded blob.
func (r *FileRepository) Create(ctx context.Context, asset *models.FileAsset) error {
	if asset.ID == "" {
		asset.ID = uuid.NewString()
	}
	if asset.CreatedAt.IsZero() {
		asset.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO file_assets (id, version_id, original_filename, display_name, bucket, object_path, mime_type, size_bytes, uploaded_by, created_at) VALUES (:id, :version_id, :original_filename, :display_name, :bucket, :object_path, :mime_type, :size_bytes, :uploaded_by, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, asset); err != nil {
		return fmt.Errorf("create file asset: %w", err)
	}
	return nil
}

// GetByID returns a file asset by identifier.
func (r *FileRepository) GetByID(ctx context.Context, id string) (*models.FileAsset, error) {
	query := fmt.Sprintf(`SELECT %s FROM file_assets WHERE id = $1 LIMIT 1`, fileColumns)
	var asset models.FileAsset
	if err := r.db.GetContext(ctx, &asset, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find file asset by id: %w", err)
	}
	return &asset, nil
}

// ListByVersion returns all attachments of a version, oldest first.
func (r *FileRepository) ListByVersion(ctx context.Context, versionID string) ([]models.FileAsset, error) {
	query := fmt.Sprintf(`SELECT %s FROM file_assets WHERE version_id = $1 ORDER BY created_at`, fileColumns)
	var assets []models.FileAsset
	if err := r.db.SelectContext(ctx, &assets, query, versionID); err != nil {
		return nil, fmt.Errorf("list file assets: %w", err)
	}
	return assets, nil
}

// UpdateDisplayName renames an attachment. Only the display name changes;
// the stored object and original filename stay as uploaded.
func (r *FileRepository) UpdateDisplayName(ctx context.Context, id, displayName string) error {
	const query = `UPDATE file_assets SET display_name = $2 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id, displayName)
	if err != nil {
		return fmt.Errorf("rename file asset: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rename file asset rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// UpdateContent repoints a metadata row at a replacement blob.
func (r *FileRepository) UpdateContent(ctx context.Context, asset *models.FileAsset) error {
	const query = `UPDATE file_assets SET original_filename = :original_filename, object_path = :object_path, mime_type = :mime_type, size_bytes = :size_bytes, uploaded_by = :uploaded_by WHERE id = :id`
	res, err := r.db.NamedExecContext(ctx, query, asset)
	if err != nil {
		return fmt.Errorf("update file asset content: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update file asset content rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Delete removes the metadata row. The blob is the caller's problem.
func (r *FileRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM file_assets WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete file asset: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete file asset rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// GetVersionInfo returns the ownership and state facts the attachment guards
// need, in one join.
func (r *FileRepository) GetVersionInfo(ctx context.Context, versionID string) (*models.VersionInfo, error) {
	const query = `SELECT v.id AS version_id, v.syllabus_id AS syllabus_id, s.owner_lecturer_id AS owner_id, v.workflow_status AS status FROM syllabus_versions v JOIN syllabi s ON s.id = v.syllabus_id WHERE v.id = $1 LIMIT 1`
	var info models.VersionInfo
	if err := r.db.GetContext(ctx, &info, query, versionID); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find version info: %w", err)
	}
	return &info, nil
}
