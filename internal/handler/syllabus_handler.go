package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/smd-platform/syllabus-api/internal/dto"
	"github.com/smd-platform/syllabus-api/internal/models"
	appErrors "github.com/smd-platform/syllabus-api/pkg/errors"
	"github.com/smd-platform/syllabus-api/pkg/response"
)

type workflowService interface {
	CreateDraft(ctx context.Context, claims *models.JWTClaims, req dto.CreateSyllabusRequest) (*models.Syllabus, error)
	UpdateDraft(ctx context.Context, claims *models.JWTClaims, syllabusID string, req dto.UpdateSyllabusRequest) (*models.Syllabus, error)
	Get(ctx context.Context, claims *models.JWTClaims, syllabusID string) (*models.Syllabus, error)
	List(ctx context.Context, claims *models.JWTClaims, filter models.SyllabusFilter) ([]models.Syllabus, int, error)
	Submit(ctx context.Context, claims *models.JWTClaims, syllabusID string) (*models.Syllabus, error)
	HODApprove(ctx context.Context, claims *models.JWTClaims, syllabusID, note string) (*models.Syllabus, error)
	HODReject(ctx context.Context, claims *models.JWTClaims, syllabusID, reason string) (*models.Syllabus, error)
	AAApprove(ctx context.Context, claims *models.JWTClaims, syllabusID, note string) (*models.Syllabus, error)
	AAReject(ctx context.Context, claims *models.JWTClaims, syllabusID, reason string) (*models.Syllabus, error)
	Publish(ctx context.Context, claims *models.JWTClaims, syllabusID string) (*models.Syllabus, error)
	Unpublish(ctx context.Context, claims *models.JWTClaims, syllabusID string) (*models.Syllabus, error)
	ListPendingForRole(ctx context.Context, claims *models.JWTClaims, role models.UserRole) ([]models.SyllabusVersion, error)
	AuditTrail(ctx context.Context, claims *models.JWTClaims, syllabusID string) ([]models.WorkflowAction, error)
}

// SyllabusHandler exposes syllabus CRUD and the workflow actions.
type SyllabusHandler struct {
	service workflowService
}

// NewSyllabusHandler creates a new handler.
func NewSyllabusHandler(svc workflowService) *SyllabusHandler {
	return &SyllabusHandler{service: svc}
}

// Create godoc
// @Summary Create a draft syllabus
// @Tags Syllabi
// @Accept json
// @Produce json
// @Param payload body dto.CreateSyllabusRequest true "Syllabus payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Security BearerAuth
// @Router /syllabi [post]
func (h *SyllabusHandler) Create(c *gin.Context) {
	var req dto.CreateSyllabusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid syllabus payload"))
		return
	}

	syllabus, err := h.service.CreateDraft(c.Request.Context(), claimsFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, syllabus)
}

// List godoc
// @Summary List syllabi visible to the caller
// @Tags Syllabi
// @Produce json
// @Param status query string false "Workflow status filter"
// @Param page query int false "Page number"
// @Param pageSize query int false "Page size"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /syllabi [get]
func (h *SyllabusHandler) List(c *gin.Context) {
	var query dto.ListSyllabiQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid query"))
		return
	}

	page := query.Page
	if page < 1 {
		page = 1
	}
	pageSize := query.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	filter := models.SyllabusFilter{
		Status: models.WorkflowStatus(query.Status),
		Limit:  pageSize,
		Offset: (page - 1) * pageSize,
	}

	syllabi, total, err := h.service.List(c.Request.Context(), claimsFromContext(c), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, syllabi, &models.Pagination{
		Page:       page,
		PageSize:   pageSize,
		TotalCount: total,
	})
}

// Get godoc
// @Summary Get a syllabus with its current version
// @Tags Syllabi
// @Produce json
// @Param id path string true "Syllabus ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /syllabi/{id} [get]
func (h *SyllabusHandler) Get(c *gin.Context) {
	syllabus, err := h.service.Get(c.Request.Context(), claimsFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, syllabus, nil)
}

// Update godoc
// @Summary Update a draft syllabus
// @Tags Syllabi
// @Accept json
// @Produce json
// @Param id path string true "Syllabus ID"
// @Param payload body dto.UpdateSyllabusRequest true "Fields to update"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Security BearerAuth
// @Router /syllabi/{id} [put]
func (h *SyllabusHandler) Update(c *gin.Context) {
	var req dto.UpdateSyllabusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid syllabus payload"))
		return
	}

	syllabus, err := h.service.UpdateDraft(c.Request.Context(), claimsFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, syllabus, nil)
}

// Submit godoc
// @Summary Submit a draft for review
// @Tags Workflow
// @Produce json
// @Param id path string true "Syllabus ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Security BearerAuth
// @Router /syllabi/{id}/submit [post]
func (h *SyllabusHandler) Submit(c *gin.Context) {
	syllabus, err := h.service.Submit(c.Request.Context(), claimsFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, syllabus, nil)
}

// HODApprove godoc
// @Summary Approve a version under HOD review
// @Tags Workflow
// @Accept json
// @Produce json
// @Param id path string true "Syllabus ID"
// @Param payload body dto.DecisionRequest false "Optional note"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /syllabi/{id}/hod-approve [post]
func (h *SyllabusHandler) HODApprove(c *gin.Context) {
	h.decide(c, h.service.HODApprove)
}

// HODReject godoc
// @Summary Reject a version back to draft
// @Tags Workflow
// @Accept json
// @Produce json
// @Param id path string true "Syllabus ID"
// @Param payload body dto.RejectRequest true "Rejection reason"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Security BearerAuth
// @Router /syllabi/{id}/hod-reject [post]
func (h *SyllabusHandler) HODReject(c *gin.Context) {
	h.reject(c, h.service.HODReject)
}

// AAApprove godoc
// @Summary Approve a version at the academic affairs stage
// @Tags Workflow
// @Accept json
// @Produce json
// @Param id path string true "Syllabus ID"
// @Param payload body dto.DecisionRequest false "Optional note"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /syllabi/{id}/aa-approve [post]
func (h *SyllabusHandler) AAApprove(c *gin.Context) {
	h.decide(c, h.service.AAApprove)
}

// AAReject godoc
// @Summary Reject a version back to HOD review
// @Tags Workflow
// @Accept json
// @Produce json
// @Param id path string true "Syllabus ID"
// @Param payload body dto.RejectRequest true "Rejection reason"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Security BearerAuth
// @Router /syllabi/{id}/aa-reject [post]
func (h *SyllabusHandler) AAReject(c *gin.Context) {
	h.reject(c, h.service.AAReject)
}

// Publish godoc
// @Summary Publish an approved version
// @Tags Workflow
// @Produce json
// @Param id path string true "Syllabus ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /syllabi/{id}/publish [post]
func (h *SyllabusHandler) Publish(c *gin.Context) {
	syllabus, err := h.service.Publish(c.Request.Context(), claimsFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, syllabus, nil)
}

// Unpublish godoc
// @Summary Withdraw a published version
// @Tags Workflow
// @Produce json
// @Param id path string true "Syllabus ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /syllabi/{id}/unpublish [post]
func (h *SyllabusHandler) Unpublish(c *gin.Context) {
	syllabus, err := h.service.Unpublish(c.Request.Context(), claimsFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, syllabus, nil)
}

// Pending godoc
// @Summary List the reviewer queue for a role
// @Tags Workflow
// @Produce json
// @Param role query string true "Queue role: HOD, AA or PRINCIPAL"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Security BearerAuth
// @Router /syllabi/pending [get]
func (h *SyllabusHandler) Pending(c *gin.Context) {
	role := models.UserRole(c.Query("role"))
	versions, err := h.service.ListPendingForRole(c.Request.Context(), claimsFromContext(c), role)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, versions, nil)
}

// AuditTrail godoc
// @Summary List the workflow actions of the current version
// @Tags Workflow
// @Produce json
// @Param id path string true "Syllabus ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Security BearerAuth
// @Router /syllabi/{id}/workflow-actions [get]
func (h *SyllabusHandler) AuditTrail(c *gin.Context) {
	actions, err := h.service.AuditTrail(c.Request.Context(), claimsFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, actions, nil)
}

type transitionFunc func(ctx context.Context, claims *models.JWTClaims, syllabusID, note string) (*models.Syllabus, error)

func (h *SyllabusHandler) decide(c *gin.Context, fn transitionFunc) {
	var req dto.DecisionRequest
	// The note is optional; an empty body is fine.
	_ = c.ShouldBindJSON(&req)

	syllabus, err := fn(c.Request.Context(), claimsFromContext(c), c.Param("id"), req.Note)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, syllabus, nil)
}

func (h *SyllabusHandler) reject(c *gin.Context, fn transitionFunc) {
	var req dto.RejectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "a rejection reason is required"))
		return
	}

	syllabus, err := fn(c.Request.Context(), claimsFromContext(c), c.Param("id"), req.Reason)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, syllabus, nil)
}
