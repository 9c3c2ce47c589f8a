package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/studyowl/exam-service/internal/services"
	"github.com/studyowl/exam-service/internal/utils"
	"github.com/studyowl/exam-service/internal/validator"
)

type HandlerManager struct {
	formatHandler   *FormatHandler
	questionHandler *QuestionHandler
	attemptHandler  *AttemptHandler
	markingHandler  *MarkingHandler
	studentHandler  *StudentHandler

	serviceManager services.ServiceManager
}

func NewHandlerManager(
	serviceManager services.ServiceManager,
	validator *validator.Validator,
	logger utils.Logger,
) *HandlerManager {
	return &HandlerManager{
		formatHandler:   NewFormatHandler(serviceManager.Format(), validator, logger),
		questionHandler: NewQuestionHandler(serviceManager.Generation(), serviceManager.Export(), validator, logger),
		attemptHandler:  NewAttemptHandler(serviceManager.Attempt(), validator, logger),
		markingHandler:  NewMarkingHandler(serviceManager.Marking(), validator, logger),
		studentHandler:  NewStudentHandler(serviceManager.Student(), logger),
		serviceManager:  serviceManager,
	}
}

// SetupRoutes sets up all API routes
func (hm *HandlerManager) SetupRoutes(router *gin.Engine) {
	v1 := router.Group("/api/v1")
	v1.Use(IdentityMiddleware())
	{
		// Format routes
		formats := v1.Group("/formats")
		{
			formats.POST("", hm.formatHandler.CreateFormat)
			formats.GET("", hm.formatHandler.ListFormats)
			formats.POST("/infer", hm.formatHandler.InferFormat)
			formats.POST("/import", hm.formatHandler.ImportPaper)
			formats.GET("/:id", hm.formatHandler.GetFormat)
			formats.PUT("/:id", hm.formatHandler.UpdateFormat)
			formats.DELETE("/:id", hm.formatHandler.DeleteFormat)

			// Question bank management
			formats.GET("/:id/questions", hm.questionHandler.ListQuestions)
			formats.POST("/:id/questions/generate", hm.questionHandler.GenerateBank)
			formats.POST("/:id/questions/generate-more", hm.questionHandler.GenerateMore)
			formats.GET("/:id/questions/export", hm.questionHandler.ExportQuestions)
		}

		// Attempt routes
		attempts := v1.Group("/attempts")
		{
			attempts.POST("/start", hm.attemptHandler.StartAttempt)
			attempts.GET("", hm.attemptHandler.ListAttempts)
			attempts.GET("/:id", hm.attemptHandler.GetAttempt)
			attempts.POST("/:id/answer", hm.attemptHandler.SubmitAnswer)
			attempts.POST("/:id/submit", hm.attemptHandler.SubmitAttempt)

			// Per-question marking and tutoring
			attempts.POST("/:id/answers/:question_id/mark", hm.markingHandler.MarkAnswer)
			attempts.POST("/:id/answers/:question_id/hint", hm.markingHandler.GetHint)
			attempts.GET("/:id/answers/:question_id/full-answer", hm.markingHandler.GetFullAnswer)
		}

		// Student routes
		students := v1.Group("/students")
		{
			students.GET("/me/readiness", hm.studentHandler.GetTopicReadiness)
		}
	}

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		if err := hm.serviceManager.HealthCheck(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":  "unhealthy",
				"service": "exam-service",
				"error":   err.Error(),
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": "exam-service",
		})
	})
}
