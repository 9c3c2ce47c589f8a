package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/studyowl/exam-service/internal/services"
	"github.com/studyowl/exam-service/internal/utils"
)

type StudentHandler struct {
	BaseHandler
	studentService services.StudentService
}

func NewStudentHandler(studentService services.StudentService, logger utils.Logger) *StudentHandler {
	return &StudentHandler{
		BaseHandler:    NewBaseHandler(logger),
		studentService: studentService,
	}
}

// GetTopicReadiness returns the caller's per-topic readiness scores,
// aggregated from their marked answers.
func (h *StudentHandler) GetTopicReadiness(c *gin.Context) {
	userID, ok := h.userID(c)
	if !ok {
		return
	}

	readiness, err := h.studentService.GetTopicReadiness(c.Request.Context(), userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, readiness)
}
