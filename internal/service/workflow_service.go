package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/smd-platform/syllabus-api/internal/authz"
	"github.com/smd-platform/syllabus-api/internal/dto"
	"github.com/smd-platform/syllabus-api/internal/models"
	appErrors "github.com/smd-platform/syllabus-api/pkg/errors"
)

const publishedCatalogKey = "catalog:published"

type syllabusStore interface {
	CreateWithInitialVersion(ctx context.Context, syllabus *models.Syllabus, version *models.SyllabusVersion) error
	GetByID(ctx context.Context, id string) (*models.Syllabus, error)
	UpdateDraft(ctx context.Context, syllabus *models.Syllabus) error
	List(ctx context.Context, filter models.SyllabusFilter) ([]models.Syllabus, int, error)
	ListVersionsByStatus(ctx context.Context, status models.WorkflowStatus) ([]models.SyllabusVersion, error)
	Transition(ctx context.Context, syllabusID string, from, to models.WorkflowStatus, action *models.WorkflowAction) error
	ListWorkflowActions(ctx context.Context, versionID string) ([]models.WorkflowAction, error)
	ListPublished(ctx context.Context) ([]models.Syllabus, error)
}

type catalogCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

// WorkflowService drives the syllabus lifecycle: draft CRUD, the approval
// state machine, reviewer queues, the audit trail and the published catalog.
type WorkflowService struct {
	repo     syllabusStore
	cache    catalogCache
	cacheTTL time.Duration
	metrics  *MetricsService
	logger   *zap.Logger
}

// NewWorkflowService constructs the service. A nil cache disables catalog
// caching.
func NewWorkflowService(repo syllabusStore, cache catalogCache, cacheTTL time.Duration, metrics *MetricsService, logger *zap.Logger) *WorkflowService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WorkflowService{repo: repo, cache: cache, cacheTTL: cacheTTL, metrics: metrics, logger: logger}
}

// academicYear derives the "YYYY-YYYY+1" label for a new version. The
// academic year rolls over in August.
func academicYear(now time.Time) string {
	start := now.Year()
	if now.Month() < time.August {
		start--
	}
	return fmt.Sprintf("%d-%d", start, start+1)
}

// CreateDraft creates a syllabus with its initial version, owned by the
// calling lecturer.
func (s *WorkflowService) CreateDraft(ctx context.Context, claims *models.JWTClaims, req dto.CreateSyllabusRequest) (*models.Syllabus, error) {
	if claims == nil || !claims.HasRole(models.RoleLecturer) {
		return nil, appErrors.ErrForbidden
	}

	syllabus := &models.Syllabus{
		SubjectID:       req.SubjectID,
		ProgramID:       req.ProgramID,
		OwnerLecturerID: claims.UserID,
	}
	version := &models.SyllabusVersion{
		AcademicYear: academicYear(time.Now().UTC()),
		CreatedBy:    claims.UserID,
	}
	if err := s.repo.CreateWithInitialVersion(ctx, syllabus, version); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "create syllabus draft")
	}

	s.logger.Info("syllabus draft created",
		zap.String("syllabusId", syllabus.ID),
		zap.String("versionId", version.ID),
		zap.String("ownerId", claims.UserID))
	return syllabus, nil
}

// UpdateDraft updates the mutable fields of a draft syllabus. Only the owner
// may update, and only while the syllabus is still in DRAFT.
func (s *WorkflowService) UpdateDraft(ctx context.Context, claims *models.JWTClaims, syllabusID string, req dto.UpdateSyllabusRequest) (*models.Syllabus, error) {
	syllabus, err := s.visibleSyllabus(ctx, claims, syllabusID)
	if err != nil {
		return nil, err
	}
	if claims == nil || !claims.HasRole(models.RoleLecturer) || claims.UserID != syllabus.OwnerLecturerID {
		return nil, appErrors.ErrForbidden
	}

	if req.SubjectID != "" {
		syllabus.SubjectID = req.SubjectID
	}
	if req.ProgramID != "" {
		syllabus.ProgramID = req.ProgramID
	}
	if err := s.repo.UpdateDraft(ctx, syllabus); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "syllabus can only be updated in draft")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "update syllabus draft")
	}
	return syllabus, nil
}

// Get returns a syllabus with its current version, applying the visibility
// ladder. Callers who may not see the resource get NotFound, never Forbidden.
func (s *WorkflowService) Get(ctx context.Context, claims *models.JWTClaims, syllabusID string) (*models.Syllabus, error) {
	return s.visibleSyllabus(ctx, claims, syllabusID)
}

func (s *WorkflowService) loadSyllabus(ctx context.Context, syllabusID string) (*models.Syllabus, error) {
	syllabus, err := s.repo.GetByID(ctx, syllabusID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "load syllabus")
	}
	return syllabus, nil
}

func (s *WorkflowService) visibleSyllabus(ctx context.Context, claims *models.JWTClaims, syllabusID string) (*models.Syllabus, error) {
	syllabus, err := s.loadSyllabus(ctx, syllabusID)
	if err != nil {
		return nil, err
	}
	status := syllabus.LifecycleStatus
	if syllabus.CurrentVersion != nil {
		status = syllabus.CurrentVersion.WorkflowStatus
	}
	if !authz.CanViewVersion(claims, syllabus.OwnerLecturerID, status) {
		return nil, appErrors.ErrNotFound
	}
	return syllabus, nil
}

// List returns syllabi visible to the caller. Lecturers without a broader
// role are scoped to their own syllabi; students see published only.
func (s *WorkflowService) List(ctx context.Context, claims *models.JWTClaims, filter models.SyllabusFilter) ([]models.Syllabus, int, error) {
	if claims == nil {
		return nil, 0, appErrors.ErrUnauthorized
	}
	switch {
	case claims.HasAnyRole(models.RoleAdmin, models.RoleHOD, models.RoleAA, models.RolePrincipal):
		// Reviewer roles browse everything; per-item reads still apply
		// the visibility ladder.
	case claims.HasRole(models.RoleLecturer):
		filter.OwnerID = claims.UserID
	case claims.HasRole(models.RoleStudent):
		filter.Status = models.StatusPublished
	default:
		return nil, 0, appErrors.ErrForbidden
	}

	syllabi, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "list syllabi")
	}
	return syllabi, total, nil
}

// Submit moves the caller's draft into review.
func (s *WorkflowService) Submit(ctx context.Context, claims *models.JWTClaims, syllabusID string) (*models.Syllabus, error) {
	return s.transition(ctx, claims, syllabusID, models.ActionSubmit, "")
}

// HODApprove advances a version from review to the approval stage.
func (s *WorkflowService) HODApprove(ctx context.Context, claims *models.JWTClaims, syllabusID, note string) (*models.Syllabus, error) {
	return s.transition(ctx, claims, syllabusID, models.ActionHODApprove, note)
}

// HODReject returns a version under review to the lecturer's draft.
func (s *WorkflowService) HODReject(ctx context.Context, claims *models.JWTClaims, syllabusID, reason string) (*models.Syllabus, error) {
	return s.transition(ctx, claims, syllabusID, models.ActionHODReject, reason)
}

// AAApprove marks a version approved.
func (s *WorkflowService) AAApprove(ctx context.Context, claims *models.JWTClaims, syllabusID, note string) (*models.Syllabus, error) {
	return s.transition(ctx, claims, syllabusID, models.ActionAAApprove, note)
}

// AAReject sends a version back to the HOD review stage.
func (s *WorkflowService) AAReject(ctx context.Context, claims *models.JWTClaims, syllabusID, reason string) (*models.Syllabus, error) {
	return s.transition(ctx, claims, syllabusID, models.ActionAAReject, reason)
}

// Publish makes an approved version publicly visible.
func (s *WorkflowService) Publish(ctx context.Context, claims *models.JWTClaims, syllabusID string) (*models.Syllabus, error) {
	return s.transition(ctx, claims, syllabusID, models.ActionPublish, "")
}

// Unpublish withdraws a published version back to APPROVED.
func (s *WorkflowService) Unpublish(ctx context.Context, claims *models.JWTClaims, syllabusID string) (*models.Syllabus, error) {
	return s.transition(ctx, claims, syllabusID, models.ActionUnpublish, "")
}

func (s *WorkflowService) transition(ctx context.Context, claims *models.JWTClaims, syllabusID string, actionType models.WorkflowActionType, note string) (*models.Syllabus, error) {
	rule, ok := authz.Rule(actionType)
	if !ok {
		return nil, appErrors.ErrForbidden
	}

	// Reasons are validated before anything is read or written.
	note = strings.TrimSpace(note)
	if rule.RequireReason && note == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "a rejection reason is required")
	}

	// Guard failures on mutations surface as Forbidden even when the
	// resource would be invisible to the actor on the read side.
	syllabus, err := s.loadSyllabus(ctx, syllabusID)
	if err != nil {
		return nil, err
	}
	if syllabus.CurrentVersion == nil {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "syllabus has no current version")
	}
	version := syllabus.CurrentVersion

	if err := authz.CheckTransition(claims, syllabus.OwnerLecturerID, version.WorkflowStatus, actionType); err != nil {
		return nil, err
	}

	action := &models.WorkflowAction{
		VersionID: version.ID,
		ActorID:   claims.UserID,
		Action:    actionType,
	}
	if note != "" {
		action.Note = &note
	}
	if err := s.repo.Transition(ctx, syllabus.ID, rule.From, rule.To, action); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// A concurrent actor moved the version first.
			return nil, appErrors.ErrInvalidTransition
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "apply workflow transition")
	}

	s.metrics.RecordTransition(string(actionType))
	s.logger.Info("workflow transition applied",
		zap.String("syllabusId", syllabus.ID),
		zap.String("versionId", version.ID),
		zap.String("action", string(actionType)),
		zap.String("from", string(rule.From)),
		zap.String("to", string(rule.To)),
		zap.String("actorId", claims.UserID))

	if actionType == models.ActionPublish || actionType == models.ActionUnpublish {
		s.invalidateCatalog(ctx)
	}

	return s.repo.GetByID(ctx, syllabus.ID)
}

func (s *WorkflowService) invalidateCatalog(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeleteByPattern(ctx, publishedCatalogKey+"*"); err != nil {
		s.logger.Warn("catalog cache invalidation failed", zap.Error(err))
	}
}

// ListPendingForRole returns the reviewer queue feeding a role: versions in
// PENDING_REVIEW for the HOD, PENDING_APPROVAL for the AA, APPROVED for the
// principal. Admins may inspect any queue.
func (s *WorkflowService) ListPendingForRole(ctx context.Context, claims *models.JWTClaims, role models.UserRole) ([]models.SyllabusVersion, error) {
	status, ok := authz.PendingQueueStatus(role)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, "role has no pending queue")
	}
	if claims == nil || (!claims.HasRole(role) && !claims.HasRole(models.RoleAdmin)) {
		return nil, appErrors.ErrForbidden
	}

	versions, err := s.repo.ListVersionsByStatus(ctx, status)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "list pending versions")
	}
	return versions, nil
}

// AuditTrail returns the workflow actions of a version, visible to reviewer
// roles and the owning lecturer.
func (s *WorkflowService) AuditTrail(ctx context.Context, claims *models.JWTClaims, syllabusID string) ([]models.WorkflowAction, error) {
	syllabus, err := s.visibleSyllabus(ctx, claims, syllabusID)
	if err != nil {
		return nil, err
	}
	if syllabus.CurrentVersionID == nil {
		return nil, appErrors.ErrNotFound
	}
	isOwner := claims != nil && claims.HasRole(models.RoleLecturer) && claims.UserID == syllabus.OwnerLecturerID
	if claims == nil || (!isOwner && !claims.HasAnyRole(models.RoleAdmin, models.RoleHOD, models.RoleAA, models.RolePrincipal)) {
		return nil, appErrors.ErrForbidden
	}

	actions, err := s.repo.ListWorkflowActions(ctx, *syllabus.CurrentVersionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "list workflow actions")
	}
	return actions, nil
}

// ListPublished returns the public catalog, served from cache when possible.
// Cache failures degrade to a database read.
func (s *WorkflowService) ListPublished(ctx context.Context) ([]models.Syllabus, error) {
	if s.cache != nil {
		var cached []models.Syllabus
		err := s.cache.Get(ctx, publishedCatalogKey, &cached)
		if err == nil {
			s.metrics.RecordCacheOperation(true)
			return cached, nil
		}
		s.metrics.RecordCacheOperation(false)
		if !errors.Is(err, appErrors.ErrCacheMiss) {
			s.logger.Warn("catalog cache read failed", zap.Error(err))
		}
	}

	syllabi, err := s.repo.ListPublished(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "list published syllabi")
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, publishedCatalogKey, syllabi, s.cacheTTL); err != nil {
			s.logger.Warn("catalog cache write failed", zap.Error(err))
		}
	}
	return syllabi, nil
}

// GetPublished returns one published syllabus for the public catalog.
// Anything not published reads as NotFound.
func (s *WorkflowService) GetPublished(ctx context.Context, syllabusID string) (*models.Syllabus, error) {
	return s.visibleSyllabus(ctx, nil, syllabusID)
}
