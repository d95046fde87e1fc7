package handlers

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/deloaiprivatelimited/exam-engine/internal/services"
	"github.com/deloaiprivatelimited/exam-engine/internal/utils"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// ResultsHandler serves the faculty results surface: listing, per-student
// drill-down and spreadsheet export.
type ResultsHandler struct {
	BaseHandler
	resultsService services.ResultsService
}

func NewResultsHandler(resultsService services.ResultsService, logger utils.Logger) *ResultsHandler {
	return &ResultsHandler{
		BaseHandler:    NewBaseHandler(logger),
		resultsService: resultsService,
	}
}

// ListResults lists attempt results for a test
// @Summary List test results
// @Description Returns attempt results enriched with student identity and a tab switch summary
// @Tags admin
// @Produce json
// @Param test_id path int true "Test ID"
// @Param search query string false "Filter by student name or email"
// @Param submitted query bool false "Filter by submission state"
// @Param limit query int false "Page size, default 50"
// @Param offset query int false "Page offset"
// @Param sort_by query string false "Sort key: submitted_at, last_autosave or total_marks"
// @Param order query string false "Sort direction: asc or desc"
// @Success 200 {object} services.TestResultsResponse
// @Failure 404 {object} ErrorResponse
// @Router /admin/tests/{test_id}/results [get]
func (h *ResultsHandler) ListResults(c *gin.Context) {
	testID := parseIDParam(c, "test_id")
	if testID == 0 {
		return
	}

	query := services.ResultsQuery{
		Search:    strings.TrimSpace(c.Query("search")),
		Submitted: parseBoolQueryPtr(c, "submitted"),
		Limit:     parseIntQuery(c, "limit", 0),
		Offset:    parseIntQuery(c, "offset", 0),
		SortBy:    c.Query("sort_by"),
		SortOrder: c.Query("order"),
	}

	h.LogRequest(c, "Listing test results", "test_id", testID, "search", query.Search)

	result, err := h.resultsService.ListTestResults(c.Request.Context(), testID, &query)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// GetStudentResult returns one student's detailed result for a test
// @Summary Get student result
// @Description Returns the student's attempt with per-question answers resolved against the stored snapshots
// @Tags admin
// @Produce json
// @Param test_id path int true "Test ID"
// @Param student_id path string true "Student ID"
// @Param include_snapshots query bool false "Include per-question snapshot detail, default true"
// @Success 200 {object} services.StudentResultResponse
// @Failure 404 {object} ErrorResponse
// @Router /admin/tests/{test_id}/students/{student_id}/result [get]
func (h *ResultsHandler) GetStudentResult(c *gin.Context) {
	testID := parseIDParam(c, "test_id")
	if testID == 0 {
		return
	}

	studentID := ParseStringIDParam(c, "student_id")
	if studentID == "" {
		return
	}

	includeSnapshots := parseBoolQuery(c, "include_snapshots", true)

	h.LogRequest(c, "Fetching student result", "test_id", testID, "student_id", studentID)

	result, err := h.resultsService.GetStudentResult(c.Request.Context(), testID, studentID, includeSnapshots)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// ExportResults streams the test results as a spreadsheet
// @Summary Export test results
// @Description Builds an xlsx workbook of every attempt for the test
// @Tags admin
// @Produce application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Param test_id path int true "Test ID"
// @Success 200 {file} binary
// @Failure 404 {object} ErrorResponse
// @Router /admin/tests/{test_id}/results/export [get]
func (h *ResultsHandler) ExportResults(c *gin.Context) {
	testID := parseIDParam(c, "test_id")
	if testID == 0 {
		return
	}

	h.LogRequest(c, "Exporting test results", "test_id", testID)

	data, err := h.resultsService.ExportTestResults(c.Request.Context(), testID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	filename := fmt.Sprintf("test_%d_results.xlsx", testID)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, xlsxContentType, data)
}
