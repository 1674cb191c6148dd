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

// SyllabusRepository provides database access for syllabi, versions and the
// workflow audit trail.
type SyllabusRepository struct {
	db *sqlx.DB
}

// NewSyllabusRepository creates a new instance of SyllabusRepository.
func NewSyllabusRepository(db *sqlx.DB) *SyllabusRepository {
	return &SyllabusRepository{db: db}
}

const syllabusColumns = `id, subject_id, program_id, owner_lecturer_id, current_version_id, lifecycle_status, created_at`

const versionColumns = `id, syllabus_id, academic_year, version_no, workflow_status, submitted_at, approved_at, published_at, created_by, created_at`

// timestampColumn maps a destination state to the version column stamped on
// first entry. States without a milestone column map to "".
func timestampColumn(to models.WorkflowStatus) string {
	switch to {
	case models.StatusPendingReview:
		return "submitted_at"
	case models.StatusApproved:
		return "approved_at"
	case models.StatusPublished:
		return "published_at"
	default:
		return ""
	}
}

// CreateWithInitialVersion inserts a syllabus together with its version 1 and
// links the version as current, all in one transaction.
func (r *SyllabusRepository) CreateWithInitialVersion(ctx context.Context, syllabus *models.Syllabus, version *models.SyllabusVersion) error {
	if syllabus.ID == "" {
		syllabus.ID = uuid.NewString()
	}
	if version.ID == "" {
		version.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if syllabus.CreatedAt.IsZero() {
		syllabus.CreatedAt = now
	}
	version.SyllabusID = syllabus.ID
	version.VersionNo = 1
	version.WorkflowStatus = models.StatusDraft
	version.CreatedAt = now
	syllabus.LifecycleStatus = models.StatusDraft
	syllabus.CurrentVersionID = &version.ID

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create syllabus: %w", err)
	}
	defer tx.Rollback()

	const insertSyllabus = `INSERT INTO syllabi (id, subject_id, program_id, owner_lecturer_id, lifecycle_status, created_at) VALUES (:id, :subject_id, :program_id, :owner_lecturer_id, :lifecycle_status, :created_at)`
	if _, err := tx.NamedExecContext(ctx, insertSyllabus, syllabus); err != nil {
		return fmt.Errorf("insert syllabus: %w", err)
	}

	const insertVersion = `INSERT INTO syllabus_versions (id, syllabus_id, academic_year, version_no, workflow_status, created_by, created_at) VALUES (:id, :syllabus_id, :academic_year, :version_no, :workflow_status, :created_by, :created_at)`
	if _, err := tx.NamedExecContext(ctx, insertVersion, version); err != nil {
		return fmt.Errorf("insert initial version: %w", err)
	}

	const linkVersion = `UPDATE syllabi SET current_version_id = $2 WHERE id = $1`
	if _, err := tx.ExecContext(ctx, linkVersion, syllabus.ID, version.ID); err != nil {
		return fmt.Errorf("link initial version: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create syllabus: %w", err)
	}
	syllabus.CurrentVersion = version
	return nil
}

// GetByID returns a syllabus with its current version attached.
func (r *SyllabusRepository) GetByID(ctx context.Context, id string) (*models.Syllabus, error) {
	query := fmt.Sprintf(`SELECT %s FROM syllabi WHERE id = $1 LIMIT 1`, syllabusColumns)
	var syllabus models.Syllabus
	if err := r.db.GetContext(ctx, &syllabus, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find syllabus by id: %w", err)
	}
	if syllabus.CurrentVersionID != nil {
		version, err := r.GetVersionByID(ctx, *syllabus.CurrentVersionID)
		if err != nil {
			return nil, err
		}
		syllabus.CurrentVersion = version
	}
	return &syllabus, nil
}

// GetVersionByID returns a single version row.
func (r *SyllabusRepository) GetVersionByID(ctx context.Context, versionID string) (*models.SyllabusVersion, error) {
	query := fmt.Sprintf(`SELECT %s FROM syllabus_versions WHERE id = $1 LIMIT 1`, versionColumns)
	var version models.SyllabusVersion
	if err := r.db.GetContext(ctx, &version, query, versionID); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find version by id: %w", err)
	}
	return &version, nil
}

// UpdateDraft updates the mutable fields of a syllabus while it is still in
// DRAFT. The status check is part of the UPDATE predicate; zero affected rows
// surfaces as sql.ErrNoRows so callers can tell a state conflict from success.
func (r *SyllabusRepository) UpdateDraft(ctx context.Context, syllabus *models.Syllabus) error {
	const query = `UPDATE syllabi SET subject_id = $2, program_id = $3 WHERE id = $1 AND lifecycle_status = 'DRAFT'`
	res, err := r.db.ExecContext(ctx, query, syllabus.ID, syllabus.SubjectID, syllabus.ProgramID)
	if err != nil {
		return fmt.Errorf("update draft syllabus: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update draft syllabus rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// List returns syllabi matching the filter with total count, newest first.
func (r *SyllabusRepository) List(ctx context.Context, filter models.SyllabusFilter) ([]models.Syllabus, int, error) {
	baseQuery := `FROM syllabi WHERE 1=1`
	var args []interface{}

	if filter.Status != "" {
		args = append(args, filter.Status)
		baseQuery += fmt.Sprintf(" AND lifecycle_status = $%d", len(args))
	}
	if filter.OwnerID != "" {
		args = append(args, filter.OwnerID)
		baseQuery += fmt.Sprintf(" AND owner_lecturer_id = $%d", len(args))
	}

	limit := filter.Limit
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	listQuery := fmt.Sprintf("SELECT %s %s ORDER BY created_at DESC LIMIT %d OFFSET %d", syllabusColumns, baseQuery, limit, offset)
	var syllabi []models.Syllabus
	if err := r.db.SelectContext(ctx, &syllabi, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list syllabi: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", baseQuery)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count syllabi: %w", err)
	}

	return syllabi, total, nil
}

// ListVersionsByStatus returns versions sitting in one workflow state, oldest
// submission first. Feeds the reviewer work queues.
func (r *SyllabusRepository) ListVersionsByStatus(ctx context.Context, status models.WorkflowStatus) ([]models.SyllabusVersion, error) {
	query := fmt.Sprintf(`SELECT %s FROM syllabus_versions WHERE workflow_status = $1 ORDER BY submitted_at NULLS LAST, created_at`, versionColumns)
	var versions []models.SyllabusVersion
	if err := r.db.SelectContext(ctx, &versions, query, status); err != nil {
		return nil, fmt.Errorf("list versions by status: %w", err)
	}
	return versions, nil
}

// Transition moves a version from one workflow state to another. The version
// update, the syllabus lifecycle update and the audit row are one database
// transaction; the from-state is part of the UPDATE predicate so a concurrent
// writer that got there first leaves zero rows affected, reported as
// sql.ErrNoRows with nothing written.
func (r *SyllabusRepository) Transition(ctx context.Context, syllabusID string, from, to models.WorkflowStatus, action *models.WorkflowAction) error {
	if action.ID == "" {
		action.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	action.CreatedAt = now

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transition: %w", err)
	}
	defer tx.Rollback()

	updateVersion := `UPDATE syllabus_versions SET workflow_status = $1 WHERE id = $2 AND workflow_status = $3`
	args := []interface{}{to, action.VersionID, from}
	if col := timestampColumn(to); col != "" {
		updateVersion = fmt.Sprintf(`UPDATE syllabus_versions SET workflow_status = $1, %s = COALESCE(%s, $4) WHERE id = $2 AND workflow_status = $3`, col, col)
		args = append(args, now)
	}
	res, err := tx.ExecContext(ctx, updateVersion, args...)
	if err != nil {
		return fmt.Errorf("update version status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update version status rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}

	const updateSyllabus = `UPDATE syllabi SET lifecycle_status = $2 WHERE id = $1`
	if _, err := tx.ExecContext(ctx, updateSyllabus, syllabusID, to); err != nil {
		return fmt.Errorf("update syllabus lifecycle: %w", err)
	}

	const insertAction = `INSERT INTO workflow_actions (id, version_id, actor_id, action, note, created_at) VALUES (:id, :version_id, :actor_id, :action, :note, :created_at)`
	if _, err := tx.NamedExecContext(ctx, insertAction, action); err != nil {
		return fmt.Errorf("insert workflow action: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transition: %w", err)
	}
	return nil
}

// ListWorkflowActions returns the audit trail for a version, oldest first.
func (r *SyllabusRepository) ListWorkflowActions(ctx context.Context, versionID string) ([]models.WorkflowAction, error) {
	const query = `SELECT id, version_id, actor_id, action, note, created_at FROM workflow_actions WHERE version_id = $1 ORDER BY created_at`
	var actions []models.WorkflowAction
	if err := r.db.SelectContext(ctx, &actions, query, versionID); err != nil {
		return nil, fmt.Errorf("list workflow actions: %w", err)
	}
	return actions, nil
}

// ListPublished returns all published syllabi with their current versions,
// for the public catalog.
func (r *SyllabusRepository) ListPublished(ctx context.Context) ([]models.Syllabus, error) {
	query := fmt.Sprintf(`SELECT %s FROM syllabi WHERE lifecycle_status = 'PUBLISHED' ORDER BY created_at DESC`, syllabusColumns)
	var syllabi []models.Syllabus
	if err := r.db.SelectContext(ctx, &syllabi, query); err != nil {
		return nil, fmt.Errorf("list published syllabi: %w", err)
	}
	for i := range syllabi {
		if syllabi[i].CurrentVersionID == nil {
			continue
		}
		version, err := r.GetVersionByID(ctx, *syllabi[i].CurrentVersionID)
		if err != nil {
			return nil, err
		}
		syllabi[i].CurrentVersion = version
	}
	return syllabi, nil
}
