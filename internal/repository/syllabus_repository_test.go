package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/smd-platform/syllabus-api/internal/models"
)

func newSyllabusRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func versionRows(v *models.SyllabusVersion) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "syllabus_id", "academic_year", "version_no", "workflow_status", "submitted_at", "approved_at", "published_at", "created_by", "created_at"}).
		AddRow(v.ID, v.SyllabusID, v.AcademicYear, v.VersionNo, v.WorkflowStatus, v.SubmittedAt, v.ApprovedAt, v.PublishedAt, v.CreatedBy, v.CreatedAt)
}

func TestSyllabusRepositoryCreateWithInitialVersion(t *testing.T) {
	db, mock, cleanup := newSyllabusRepoMock(t)
	defer cleanup()

	repo := NewSyllabusRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO syllabi")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO syllabus_versions")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE syllabi SET current_version_id")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	syllabus := &models.Syllabus{
		SubjectID:       "subj-1",
		ProgramID:       "prog-1",
		OwnerLecturerID: "lect-1",
	}
	version := &models.SyllabusVersion{
		AcademicYear: "2026-2027",
		CreatedBy:    "lect-1",
	}
	require.NoError(t, repo.CreateWithInitialVersion(context.Background(), syllabus, version))
	require.NotEmpty(t, syllabus.ID)
	require.Equal(t, models.StatusDraft, syllabus.LifecycleStatus)
	require.Equal(t, models.StatusDraft, version.WorkflowStatus)
	require.Equal(t, 1, version.VersionNo)
	require.NotNil(t, syllabus.CurrentVersionID)
	require.Equal(t, version.ID, *syllabus.CurrentVersionID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSyllabusRepositoryCreateRollsBackOnVersionFailure(t *testing.T) {
	db, mock, cleanup := newSyllabusRepoMock(t)
	defer cleanup()

	repo := NewSyllabusRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO syllabi")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO syllabus_versions")).WillReturnError(sql.ErrConnDone)
	mock.ExpectRollback()

	err := repo.CreateWithInitialVersion(context.Background(), &models.Syllabus{}, &models.SyllabusVersion{})
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSyllabusRepositoryGetByIDLoadsCurrentVersion(t *testing.T) {
	db, mock, cleanup := newSyllabusRepoMock(t)
	defer cleanup()

	repo := NewSyllabusRepository(db)
	versionID := "ver-1"
	now := time.Now()

	syllabusRows := sqlmock.NewRows([]string{"id", "subject_id", "program_id", "owner_lecturer_id", "current_version_id", "lifecycle_status", "created_at"}).
		AddRow("syl-1", "subj-1", "prog-1", "lect-1", versionID, "PENDING_REVIEW", now)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, subject_id, program_id, owner_lecturer_id")).
		WithArgs("syl-1").
		WillReturnRows(syllabusRows)

	submitted := now.Add(-time.Hour)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, syllabus_id, academic_year")).
		WithArgs(versionID).
		WillReturnRows(versionRows(&models.SyllabusVersion{
			ID: versionID, SyllabusID: "syl-1", AcademicYear: "2026-2027", VersionNo: 1,
			WorkflowStatus: models.StatusPendingReview, SubmittedAt: &submitted,
			CreatedBy: "lect-1", CreatedAt: now,
		}))

	syllabus, err := repo.GetByID(context.Background(), "syl-1")
	require.NoError(t, err)
	require.NotNil(t, syllabus.CurrentVersion)
	require.Equal(t, models.StatusPendingReview, syllabus.CurrentVersion.WorkflowStatus)
	require.NotNil(t, syllabus.CurrentVersion.SubmittedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSyllabusRepositoryGetByIDNotFound(t *testing.T) {
	db, mock, cleanup := newSyllabusRepoMock(t)
	defer cleanup()

	repo := NewSyllabusRepository(db)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, subject_id, program_id, owner_lecturer_id")).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByID(context.Background(), "missing")
	require.ErrorIs(t, err, sql.ErrNoRows)
}

func TestSyllabusRepositoryTransitionCommitsStateAndAudit(t *testing.T) {
	db, mock, cleanup := newSyllabusRepoMock(t)
	defer cleanup()

	repo := NewSyllabusRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE syllabus_versions SET workflow_status = $1, submitted_at = COALESCE(submitted_at, $4) WHERE id = $2 AND workflow_status = $3")).
		WithArgs(models.StatusPendingReview, "ver-1", models.StatusDraft, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE syllabi SET lifecycle_status")).
		WithArgs("syl-1", models.StatusPendingReview).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO workflow_actions")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	action := &models.WorkflowAction{
		VersionID: "ver-1",
		ActorID:   "lect-1",
		Action:    models.ActionSubmit,
	}
	err := repo.Transition(context.Background(), "syl-1", models.StatusDraft, models.StatusPendingReview, action)
	require.NoError(t, err)
	require.NotEmpty(t, action.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSyllabusRepositoryTransitionWithoutMilestoneColumn(t *testing.T) {
	db, mock, cleanup := newSyllabusRepoMock(t)
	defer cleanup()

	repo := NewSyllabusRepository(db)

	// Rejections return to states without a milestone timestamp, so the
	// version update carries no COALESCE clause.
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE syllabus_versions SET workflow_status = $1 WHERE id = $2 AND workflow_status = $3")).
		WithArgs(models.StatusDraft, "ver-1", models.StatusPendingReview).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE syllabi SET lifecycle_status")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO workflow_actions")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	note := "missing assessment plan"
	err := repo.Transition(context.Background(), "syl-1", models.StatusPendingReview, models.StatusDraft, &models.WorkflowAction{
		VersionID: "ver-1",
		ActorID:   "hod-1",
		Action:    models.ActionHODReject,
		Note:      &note,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSyllabusRepositoryTransitionLostRaceWritesNothing(t *testing.T) {
	db, mock, cleanup := newSyllabusRepoMock(t)
	defer cleanup()

	repo := NewSyllabusRepository(db)

	// A concurrent writer already moved the version, so the conditional
	// update matches zero rows and the whole transaction rolls back.
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE syllabus_versions SET workflow_status")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := repo.Transition(context.Background(), "syl-1", models.StatusPendingReview, models.StatusPendingApproval, &models.WorkflowAction{
		VersionID: "ver-1",
		ActorID:   "hod-1",
		Action:    models.ActionHODApprove,
	})
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSyllabusRepositoryUpdateDraftRequiresDraftState(t *testing.T) {
	db, mock, cleanup := newSyllabusRepoMock(t)
	defer cleanup()

	repo := NewSyllabusRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE syllabi SET subject_id")).
		WithArgs("syl-1", "subj-2", "prog-2").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateDraft(context.Background(), &models.Syllabus{ID: "syl-1", SubjectID: "subj-2", ProgramID: "prog-2"})
	require.ErrorIs(t, err, sql.ErrNoRows)
}

func TestSyllabusRepositoryListFilters(t *testing.T) {
	db, mock, cleanup := newSyllabusRepoMock(t)
	defer cleanup()

	repo := NewSyllabusRepository(db)
	rows := sqlmock.NewRows([]string{"id", "subject_id", "program_id", "owner_lecturer_id", "current_version_id", "lifecycle_status", "created_at"}).
		AddRow("syl-1", "subj-1", "prog-1", "lect-1", nil, "DRAFT", time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, subject_id, program_id, owner_lecturer_id")).
		WithArgs(models.StatusDraft, "lect-1").
		WillReturnRows(rows)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*)")).
		WithArgs(models.StatusDraft, "lect-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	list, total, err := repo.List(context.Background(), models.SyllabusFilter{
		Status:  models.StatusDraft,
		OwnerID: "lect-1",
	})
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, 1, total)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSyllabusRepositoryListWorkflowActions(t *testing.T) {
	db, mock, cleanup := newSyllabusRepoMock(t)
	defer cleanup()

	repo := NewSyllabusRepository(db)
	note := "missing CLOs"
	rows := sqlmock.NewRows([]string{"id", "version_id", "actor_id", "action", "note", "created_at"}).
		AddRow("act-1", "ver-1", "lect-1", "SUBMIT", nil, time.Now().Add(-2*time.Hour)).
		AddRow("act-2", "ver-1", "hod-1", "HOD_APPROVE", nil, time.Now().Add(-time.Hour)).
		AddRow("act-3", "ver-1", "aa-1", "AA_REJECT", note, time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, version_id, actor_id, action, note, created_at FROM workflow_actions")).
		WithArgs("ver-1").
		WillReturnRows(rows)

	actions, err := repo.ListWorkflowActions(context.Background(), "ver-1")
	require.NoError(t, err)
	require.Len(t, actions, 3)
	require.Equal(t, models.ActionAAReject, actions[2].Action)
	require.NotNil(t, actions[2].Note)
	require.NoError(t, mock.ExpectationsWereMet())
}
