package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/deloaiprivatelimited/exam-engine/internal/services"
	"github.com/deloaiprivatelimited/exam-engine/internal/utils"
)

// HandlerManager wires every HTTP handler to the service layer.
type HandlerManager struct {
	attemptHandler *AttemptHandler
	judgeHandler   *JudgeHandler
	resultsHandler *ResultsHandler
}

func NewHandlerManager(
	attemptService services.AttemptService,
	judgeService services.JudgeService,
	resultsService services.ResultsService,
	logger utils.Logger,
) *HandlerManager {
	return &HandlerManager{
		attemptHandler: NewAttemptHandler(attemptService, logger),
		judgeHandler:   NewJudgeHandler(judgeService, logger),
		resultsHandler: NewResultsHandler(resultsService, logger),
	}
}

// SetupRoutes sets up all API routes. auth runs on every /api/v1 route; the
// admin group additionally requires a faculty role.
func (hm *HandlerManager) SetupRoutes(router *gin.Engine, auth gin.HandlerFunc) {
	// Health check endpoint
	router.GET("/health", HealthCheck)

	// API v1 routes
	v1 := router.Group("/api/v1")
	v1.Use(auth)
	{
		// Student attempt lifecycle
		student := v1.Group("/student/tests/:test_id")
		{
			student.GET("/attempt", hm.attemptHandler.GetAttempt)
			student.POST("/autosave", hm.attemptHandler.Autosave)
			student.POST("/submit", hm.attemptHandler.Submit)
			student.POST("/tab-switch", hm.attemptHandler.TabSwitch)
			student.POST("/fullscreen-violation", hm.attemptHandler.FullscreenViolation)
		}

		// Coding question execution
		coding := v1.Group("/coding/questions/:question_id")
		{
			coding.POST("/run", hm.judgeHandler.RunCode)
			coding.POST("/submit", hm.judgeHandler.SubmitCode)
			coding.GET("/submissions", hm.judgeHandler.ListMySubmissions)
			coding.GET("/test-submissions", hm.judgeHandler.ListTestSubmissions)
		}

		// Faculty results and assignment
		admin := v1.Group("/admin", RequireFaculty())
		{
			tests := admin.Group("/tests/:test_id")
			{
				tests.GET("/results", hm.resultsHandler.ListResults)
				tests.GET("/results/export", hm.resultsHandler.ExportResults)
				tests.GET("/students/:student_id/result", hm.resultsHandler.GetStudentResult)
				tests.POST("/assign", hm.attemptHandler.BulkAssign)
			}
		}
	}
}

// HealthCheck reports process liveness
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "exam-engine",
	})
}
