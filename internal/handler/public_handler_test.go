package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smd-platform/syllabus-api/internal/models"
	appErrors "github.com/smd-platform/syllabus-api/pkg/errors"
)

type publishedCatalogMock struct {
	syllabi []models.Syllabus
	err     error
}

func (m *publishedCatalogMock) ListPublished(ctx context.Context) ([]models.Syllabus, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.syllabi, nil
}

func (m *publishedCatalogMock) GetPublished(ctx context.Context, syllabusID string) (*models.Syllabus, error) {
	if m.err != nil {
		return nil, m.err
	}
	for i := range m.syllabi {
		if m.syllabi[i].ID == syllabusID {
			return &m.syllabi[i], nil
		}
	}
	return nil, appErrors.ErrNotFound
}

func publishedFixture() []models.Syllabus {
	publishedAt := time.Date(2025, 9, 1, 8, 0, 0, 0, time.UTC)
	return []models.Syllabus{
		{
			ID:              "syl-1",
			SubjectID:       "MATH101",
			ProgramID:       "CS",
			LifecycleStatus: models.StatusPublished,
			CurrentVersion: &models.SyllabusVersion{
				ID:             "ver-1",
				AcademicYear:   "2025-2026",
				VersionNo:      2,
				WorkflowStatus: models.StatusPublished,
				PublishedAt:    &publishedAt,
			},
		},
	}
}

func TestPublicHandlerCatalog(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewPublicHandler(&publishedCatalogMock{syllabi: publishedFixture()})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodGet, "/public/syllabi", nil)
	c.Request = req

	handler.Catalog(c)
	require.Equal(t, http.StatusOK, w.Code)

	var envelope struct {
		Data []models.Syllabus `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	require.Len(t, envelope.Data, 1)
	assert.Equal(t, "syl-1", envelope.Data[0].ID)
}

func TestPublicHandlerGetUnknownID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewPublicHandler(&publishedCatalogMock{syllabi: publishedFixture()})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodGet, "/public/syllabi/nope", nil)
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "nope"}}

	handler.Get(c)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPublicHandlerExportCSV(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewPublicHandler(&publishedCatalogMock{syllabi: publishedFixture()})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodGet, "/public/syllabi/export?format=csv", nil)
	c.Request = req

	handler.Export(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Disposition"), ".csv")

	body := w.Body.String()
	assert.True(t, strings.HasPrefix(body, "Syllabus,Subject,Program,Year,Version,Status,Published"))
	assert.Contains(t, body, "syl-1,MATH101,CS,2025-2026,2,PUBLISHED,2025-09-01")
}

func TestPublicHandlerExportPDF(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewPublicHandler(&publishedCatalogMock{syllabi: publishedFixture()})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodGet, "/public/syllabi/export?format=pdf", nil)
	c.Request = req

	handler.Export(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
	assert.True(t, strings.HasPrefix(w.Body.String(), "%PDF"))
}

func TestPublicHandlerExportUnknownFormat(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewPublicHandler(&publishedCatalogMock{syllabi: publishedFixture()})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodGet, "/public/syllabi/export?format=xml", nil)
	c.Request = req

	handler.Export(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
