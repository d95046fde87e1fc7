package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/deloaiprivatelimited/exam-engine/internal/services"
	"github.com/deloaiprivatelimited/exam-engine/internal/utils"
)

// JudgeHandler serves the coding question surface: custom-input runs, graded
// submissions and submission history.
type JudgeHandler struct {
	BaseHandler
	judgeService services.JudgeService
}

func NewJudgeHandler(judgeService services.JudgeService, logger utils.Logger) *JudgeHandler {
	return &JudgeHandler{
		BaseHandler:  NewBaseHandler(logger),
		judgeService: judgeService,
	}
}

// RunCode executes source code against custom stdin
// @Summary Run code
// @Description Executes the posted source against custom stdin without grading
// @Tags coding
// @Accept json
// @Produce json
// @Param question_id path int true "Question ID"
// @Param request body services.RunCodeRequest true "Source, language and stdin"
// @Success 200 {object} services.RunCodeResponse
// @Failure 403 {object} ErrorResponse
// @Failure 502 {object} ErrorResponse
// @Router /coding/questions/{question_id}/run [post]
func (h *JudgeHandler) RunCode(c *gin.Context) {
	questionID := parseIDParam(c, "question_id")
	if questionID == 0 {
		return
	}

	userID, ok := h.requireUserID(c)
	if !ok {
		return
	}

	var req services.RunCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}

	h.LogRequest(c, "Running code", "question_id", questionID, "language", req.Language)

	result, err := h.judgeService.RunCode(c.Request.Context(), userID, questionID, &req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// SubmitCode grades source code against the question's test cases
// @Summary Submit code
// @Description Runs the posted source against all test cases and stores a graded submission
// @Tags coding
// @Accept json
// @Produce json
// @Param question_id path int true "Question ID"
// @Param request body services.SubmitCodeRequest true "Source and language"
// @Success 201 {object} services.SubmitCodeResponse
// @Failure 403 {object} ErrorResponse
// @Failure 429 {object} ErrorResponse
// @Failure 502 {object} ErrorResponse
// @Router /coding/questions/{question_id}/submit [post]
func (h *JudgeHandler) SubmitCode(c *gin.Context) {
	questionID := parseIDParam(c, "question_id")
	if questionID == 0 {
		return
	}

	userID, ok := h.requireUserID(c)
	if !ok {
		return
	}

	var req services.SubmitCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}

	h.LogRequest(c, "Submitting code", "question_id", questionID, "language", req.Language)

	result, err := h.judgeService.SubmitCode(c.Request.Context(), userID, questionID, &req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, result)
}

// ListMySubmissions pages through the caller's submissions for a question
// @Summary List my submissions
// @Description Returns the caller's graded submissions for the question, newest first
// @Tags coding
// @Produce json
// @Param question_id path int true "Question ID"
// @Param page query int false "Page number, 1-based"
// @Param per_page query int false "Page size"
// @Success 200 {object} services.SubmissionListResponse
// @Failure 404 {object} ErrorResponse
// @Router /coding/questions/{question_id}/submissions [get]
func (h *JudgeHandler) ListMySubmissions(c *gin.Context) {
	questionID := parseIDParam(c, "question_id")
	if questionID == 0 {
		return
	}

	userID, ok := h.requireUserID(c)
	if !ok {
		return
	}

	page := parseIntQuery(c, "page", 1)
	perPage := parseIntQuery(c, "per_page", 20)

	h.LogRequest(c, "Listing submissions", "question_id", questionID, "page", page)

	result, err := h.judgeService.ListMySubmissions(c.Request.Context(), userID, questionID, page, perPage)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// ListTestSubmissions resolves the submissions referenced by an attempt answer
// @Summary List test submissions
// @Description Returns the caller's submissions matching the given ids, for review inside a test
// @Tags coding
// @Produce json
// @Param question_id path int true "Question ID"
// @Param submission_ids query string false "Comma separated submission ids"
// @Success 200 {object} services.SubmissionListResponse
// @Failure 404 {object} ErrorResponse
// @Router /coding/questions/{question_id}/test-submissions [get]
func (h *JudgeHandler) ListTestSubmissions(c *gin.Context) {
	questionID := parseIDParam(c, "question_id")
	if questionID == 0 {
		return
	}

	userID, ok := h.requireUserID(c)
	if !ok {
		return
	}

	submissionIDs := splitIDList(c.Query("submission_ids"))

	h.LogRequest(c, "Listing test submissions", "question_id", questionID, "count", len(submissionIDs))

	result, err := h.judgeService.ListTestSubmissions(c.Request.Context(), userID, questionID, submissionIDs)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// splitIDList splits a comma separated id list, dropping blanks.
func splitIDList(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	ids := make([]string, 0, len(parts))
	for _, part := range parts {
		if id := strings.TrimSpace(part); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}
