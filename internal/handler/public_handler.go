package handler

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/smd-platform/syllabus-api/internal/models"
	appErrors "github.com/smd-platform/syllabus-api/pkg/errors"
	"github.com/smd-platform/syllabus-api/pkg/export"
	"github.com/smd-platform/syllabus-api/pkg/response"
)

type publishedCatalog interface {
	ListPublished(ctx context.Context) ([]models.Syllabus, error)
	GetPublished(ctx context.Context, syllabusID string) (*models.Syllabus, error)
}

// PublicHandler serves the unauthenticated published-syllabus catalog.
type PublicHandler struct {
	service publishedCatalog
	csv     *export.CSVExporter
	pdf     *export.PDFExporter
}

// NewPublicHandler creates a new handler.
func NewPublicHandler(svc publishedCatalog) *PublicHandler {
	return &PublicHandler{
		service: svc,
		csv:     export.NewCSVExporter(),
		pdf:     export.NewPDFExporter(),
	}
}

// Catalog godoc
// @Summary List published syllabi
// @Tags Public
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /public/syllabi [get]
func (h *PublicHandler) Catalog(c *gin.Context) {
	syllabi, err := h.service.ListPublished(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, syllabi, nil)
}

// Get godoc
// @Summary Get one published syllabus
// @Tags Public
// @Produce json
// @Param id path string true "Syllabus ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /public/syllabi/{id} [get]
func (h *PublicHandler) Get(c *gin.Context) {
	syllabus, err := h.service.GetPublished(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, syllabus, nil)
}

// Export godoc
// @Summary Export the published catalog as CSV or PDF
// @Tags Public
// @Produce text/csv
// @Produce application/pdf
// @Param format query string false "csv (default) or pdf"
// @Success 200 {file} file
// @Router /public/syllabi/export [get]
func (h *PublicHandler) Export(c *gin.Context) {
	syllabi, err := h.service.ListPublished(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	dataset := catalogDataset(syllabi)

	filename := fmt.Sprintf("published-syllabi-%s", time.Now().UTC().Format("20060102"))
	switch c.DefaultQuery("format", "csv") {
	case "csv":
		payload, err := h.csv.Render(dataset)
		if err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "render csv export"))
			return
		}
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s.csv", filename))
		c.Data(http.StatusOK, "text/csv", payload)
	case "pdf":
		payload, err := h.pdf.Render(dataset, "Published Syllabi")
		if err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "render pdf export"))
			return
		}
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s.pdf", filename))
		c.Data(http.StatusOK, "application/pdf", payload)
	default:
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf"))
	}
}

func catalogDataset(syllabi []models.Syllabus) export.Dataset {
	rows := make([]map[string]string, 0, len(syllabi))
	for _, s := range syllabi {
		row := map[string]string{
			"Syllabus":  s.ID,
			"Subject":   s.SubjectID,
			"Program":   s.ProgramID,
			"Status":    string(s.LifecycleStatus),
			"Year":      "",
			"Version":   "",
			"Published": "",
		}
		if s.CurrentVersion != nil {
			row["Year"] = s.CurrentVersion.AcademicYear
			row["Version"] = fmt.Sprintf("%d", s.CurrentVersion.VersionNo)
			if s.CurrentVersion.PublishedAt != nil {
				row["Published"] = s.CurrentVersion.PublishedAt.Format("2006-01-02")
			}
		}
		rows = append(rows, row)
	}
	return export.Dataset{
		Headers: []string{"Syllabus", "Subject", "Program", "Year", "Version", "Status", "Published"},
		Rows:    rows,
	}
}
