package handler

import (
	"context"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/smd-platform/syllabus-api/internal/dto"
	"github.com/smd-platform/syllabus-api/internal/models"
	"github.com/smd-platform/syllabus-api/internal/service"
	appErrors "github.com/smd-platform/syllabus-api/pkg/errors"
	"github.com/smd-platform/syllabus-api/pkg/response"
)

type fileService interface {
	UploadFile(ctx context.Context, claims *models.JWTClaims, versionID string, upload service.Upload) (*models.FileAsset, error)
	ReplaceFile(ctx context.Context, claims *models.JWTClaims, fileID string, upload service.Upload) (*models.FileAsset, error)
	RenameFile(ctx context.Context, claims *models.JWTClaims, fileID, displayName string) (*models.FileAsset, error)
	DeleteFile(ctx context.Context, claims *models.JWTClaims, fileID string) error
	ListFiles(ctx context.Context, claims *models.JWTClaims, versionID string) ([]models.FileAsset, error)
	SignedURL(ctx context.Context, claims *models.JWTClaims, fileID string, expiresIn int) (string, int, error)
}

// FileHandler exposes the attachment endpoints.
type FileHandler struct {
	service fileService
}

// NewFileHandler creates a new handler.
func NewFileHandler(svc fileService) *FileHandler {
	return &FileHandler{service: svc}
}

func uploadFromForm(c *gin.Context) (service.Upload, error) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		return service.Upload{}, appErrors.Clone(appErrors.ErrValidation, "multipart field 'file' is required")
	}
	return readUpload(fileHeader)
}

func readUpload(fileHeader *multipart.FileHeader) (service.Upload, error) {
	file, err := fileHeader.Open()
	if err != nil {
		return service.Upload{}, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "unreadable upload")
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return service.Upload{}, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "unreadable upload")
	}
	return service.Upload{
		Filename: fileHeader.Filename,
		MimeType: fileHeader.Header.Get("Content-Type"),
		Size:     fileHeader.Size,
		Data:     data,
	}, nil
}

// Upload godoc
// @Summary Attach a file to a draft version
// @Tags Files
// @Accept multipart/form-data
// @Produce json
// @Param versionId path string true "Version ID"
// @Param file formData file true "PDF or Word document"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Security BearerAuth
// @Router /versions/{versionId}/files [post]
func (h *FileHandler) Upload(c *gin.Context) {
	upload, err := uploadFromForm(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	asset, err := h.service.UploadFile(c.Request.Context(), claimsFromContext(c), c.Param("versionId"), upload)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, asset)
}

// List godoc
// @Summary List the attachments of a version
// @Tags Files
// @Produce json
// @Param versionId path string true "Version ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /versions/{versionId}/files [get]
func (h *FileHandler) List(c *gin.Context) {
	assets, err := h.service.ListFiles(c.Request.Context(), claimsFromContext(c), c.Param("versionId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, assets, nil)
}

// Replace godoc
// @Summary Replace an attachment's content
// @Tags Files
// @Accept multipart/form-data
// @Produce json
// @Param id path string true "File ID"
// @Param file formData file true "Replacement document"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Security BearerAuth
// @Router /files/{id}/content [put]
func (h *FileHandler) Replace(c *gin.Context) {
	upload, err := uploadFromForm(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	asset, err := h.service.ReplaceFile(c.Request.Context(), claimsFromContext(c), c.Param("id"), upload)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, asset, nil)
}

// Rename godoc
// @Summary Change an attachment's display name
// @Tags Files
// @Accept json
// @Produce json
// @Param id path string true "File ID"
// @Param payload body dto.RenameFileRequest true "New display name"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Security BearerAuth
// @Router /files/{id} [patch]
func (h *FileHandler) Rename(c *gin.Context) {
	var req dto.RenameFileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "displayName is required"))
		return
	}

	asset, err := h.service.RenameFile(c.Request.Context(), claimsFromContext(c), c.Param("id"), req.DisplayName)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, asset, nil)
}

// Delete godoc
// @Summary Delete an attachment
// @Tags Files
// @Produce json
// @Param id path string true "File ID"
// @Success 204 "No Content"
// @Failure 403 {object} response.Envelope
// @Security BearerAuth
// @Router /files/{id} [delete]
func (h *FileHandler) Delete(c *gin.Context) {
	if err := h.service.DeleteFile(c.Request.Context(), claimsFromContext(c), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// SignedURL godoc
// @Summary Issue a presigned download link
// @Tags Files
// @Produce json
// @Param id path string true "File ID"
// @Param expiresIn query int false "TTL in seconds, 1..604800"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /files/{id}/signed-url [get]
func (h *FileHandler) SignedURL(c *gin.Context) {
	var query dto.SignedURLQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid expiresIn"))
		return
	}

	url, expiresIn, err := h.service.SignedURL(c.Request.Context(), claimsFromContext(c), c.Param("id"), query.ExpiresIn)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.SignedURLResponse{URL: url, ExpiresIn: expiresIn}, nil)
}
