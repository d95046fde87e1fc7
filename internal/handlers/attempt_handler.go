package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/deloaiprivatelimited/exam-engine/internal/services"
	"github.com/deloaiprivatelimited/exam-engine/internal/utils"
)

// AttemptAnswersRequest is the envelope every attempt write carries: the
// student's current answers keyed by section id, then question id. Proctoring
// endpoints may post an empty body when nothing changed since the last save.
type AttemptAnswersRequest struct {
	Answers services.AnswersPayload `json:"answers"`
}

// AttemptHandler serves the student-facing attempt lifecycle: fetch, autosave,
// submit and the proctoring counters.
type AttemptHandler struct {
	BaseHandler
	attemptService services.AttemptService
}

func NewAttemptHandler(attemptService services.AttemptService, logger utils.Logger) *AttemptHandler {
	return &AttemptHandler{
		BaseHandler:    NewBaseHandler(logger),
		attemptService: attemptService,
	}
}

// GetAttempt loads or creates the caller's attempt for a test
// @Summary Get attempt
// @Description Returns the caller's attempt state together with the sanitized test structure
// @Tags attempts
// @Produce json
// @Param test_id path int true "Test ID"
// @Param retake query bool false "Reset a submitted attempt before loading"
// @Success 200 {object} services.AttemptAccessResponse
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /student/tests/{test_id}/attempt [get]
func (h *AttemptHandler) GetAttempt(c *gin.Context) {
	testID := parseIDParam(c, "test_id")
	if testID == 0 {
		return
	}

	studentID, ok := h.requireUserID(c)
	if !ok {
		return
	}

	retake := parseBoolQuery(c, "retake", false)
	h.LogRequest(c, "Fetching attempt", "test_id", testID, "retake", retake)

	result, err := h.attemptService.GetAttempt(c.Request.Context(), studentID, testID, retake)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// Autosave persists the student's in-progress answers
// @Summary Autosave attempt
// @Description Saves the posted answers and regrades the attempt in place
// @Tags attempts
// @Accept json
// @Produce json
// @Param test_id path int true "Test ID"
// @Param request body AttemptAnswersRequest true "Answers envelope"
// @Success 200 {object} services.AutosaveResponse
// @Failure 403 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /student/tests/{test_id}/autosave [post]
func (h *AttemptHandler) Autosave(c *gin.Context) {
	testID := parseIDParam(c, "test_id")
	if testID == 0 {
		return
	}

	studentID, ok := h.requireUserID(c)
	if !ok {
		return
	}

	req, ok := h.bindAnswers(c)
	if !ok {
		return
	}

	h.LogRequest(c, "Autosaving attempt", "test_id", testID, "sections", len(req.Answers))

	result, err := h.attemptService.SaveProgress(c.Request.Context(), studentID, testID, req.Answers)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// Submit finalizes the caller's attempt
// @Summary Submit attempt
// @Description Applies the posted answers, grades the attempt and marks it submitted
// @Tags attempts
// @Accept json
// @Produce json
// @Param test_id path int true "Test ID"
// @Param request body AttemptAnswersRequest false "Answers envelope"
// @Success 200 {object} services.SubmitAttemptResponse
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /student/tests/{test_id}/submit [post]
func (h *AttemptHandler) Submit(c *gin.Context) {
	testID := parseIDParam(c, "test_id")
	if testID == 0 {
		return
	}

	studentID, ok := h.requireUserID(c)
	if !ok {
		return
	}

	req, ok := h.bindAnswers(c)
	if !ok {
		return
	}

	h.LogRequest(c, "Submitting attempt", "test_id", testID, "sections", len(req.Answers))

	result, err := h.attemptService.SubmitAttempt(c.Request.Context(), studentID, testID, req.Answers)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// TabSwitch records a tab switch, autosaves, and may force submission
// @Summary Record tab switch
// @Description Increments the tab switch counter; at the limit the attempt is submitted automatically
// @Tags proctoring
// @Accept json
// @Produce json
// @Param test_id path int true "Test ID"
// @Param request body AttemptAnswersRequest false "Answers envelope"
// @Success 200 {object} services.TabSwitchResponse
// @Failure 404 {object} ErrorResponse
// @Router /student/tests/{test_id}/tab-switch [post]
func (h *AttemptHandler) TabSwitch(c *gin.Context) {
	testID := parseIDParam(c, "test_id")
	if testID == 0 {
		return
	}

	studentID, ok := h.requireUserID(c)
	if !ok {
		return
	}

	req, ok := h.bindAnswers(c)
	if !ok {
		return
	}

	h.LogRequest(c, "Recording tab switch", "test_id", testID)

	result, err := h.attemptService.RecordTabSwitch(c.Request.Context(), studentID, testID, req.Answers)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// FullscreenViolation records a fullscreen exit and forces submission
// @Summary Record fullscreen violation
// @Description Marks the attempt as having violated fullscreen and submits it
// @Tags proctoring
// @Accept json
// @Produce json
// @Param test_id path int true "Test ID"
// @Param request body AttemptAnswersRequest false "Answers envelope"
// @Success 200 {object} services.FullscreenViolationResponse
// @Failure 404 {object} ErrorResponse
// @Router /student/tests/{test_id}/fullscreen-violation [post]
func (h *AttemptHandler) FullscreenViolation(c *gin.Context) {
	testID := parseIDParam(c, "test_id")
	if testID == 0 {
		return
	}

	studentID, ok := h.requireUserID(c)
	if !ok {
		return
	}

	req, ok := h.bindAnswers(c)
	if !ok {
		return
	}

	h.LogRequest(c, "Recording fullscreen violation", "test_id", testID)

	result, err := h.attemptService.RecordFullscreenViolation(c.Request.Context(), studentID, testID, req.Answers)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// BulkAssign assigns a batch of students to a test
// @Summary Bulk assign students
// @Description Creates blank attempts for the given students, skipping ones already assigned
// @Tags admin
// @Accept json
// @Produce json
// @Param test_id path int true "Test ID"
// @Param request body services.BulkAssignRequest true "Student ids to assign"
// @Success 200 {object} SuccessResponse
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /admin/tests/{test_id}/assign [post]
func (h *AttemptHandler) BulkAssign(c *gin.Context) {
	testID := parseIDParam(c, "test_id")
	if testID == 0 {
		return
	}

	var req services.BulkAssignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}

	h.LogRequest(c, "Bulk assigning students", "test_id", testID, "count", len(req.StudentIDs))

	result, err := h.attemptService.BulkAssign(c.Request.Context(), testID, &req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{
		Message: "Students assigned",
		Data:    result,
	})
}

// bindAnswers decodes the answers envelope, tolerating an empty body.
func (h *AttemptHandler) bindAnswers(c *gin.Context) (AttemptAnswersRequest, bool) {
	var req AttemptAnswersRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return req, false
	}
	return req, true
}
