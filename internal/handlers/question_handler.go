package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/studyowl/exam-service/internal/services"
	"github.com/studyowl/exam-service/internal/utils"
	"github.com/studyowl/exam-service/internal/validator"
)

type QuestionHandler struct {
	BaseHandler
	generationService services.GenerationService
	exportService     services.ExportService
	validator         *validator.Validator
}

func NewQuestionHandler(
	generationService services.GenerationService,
	exportService services.ExportService,
	validator *validator.Validator,
	logger utils.Logger,
) *QuestionHandler {
	return &QuestionHandler{
		BaseHandler:       NewBaseHandler(logger),
		generationService: generationService,
		exportService:     exportService,
		validator:         validator,
	}
}

// ListQuestions returns the format's question bank, answers included. The
// bank view is for the format's tooling; students see questions through
// attempts.
func (h *QuestionHandler) ListQuestions(c *gin.Context) {
	formatID := h.parseIDParam(c, "id")
	if formatID == 0 {
		return
	}

	userID, ok := h.userID(c)
	if !ok {
		return
	}

	questions, err := h.generationService.ListQuestions(c.Request.Context(), formatID, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"questions": questions,
		"total":     len(questions),
	})
}

// GenerateBank regenerates the format's question bank in full. The previous
// bank is replaced only when generation produces at least one question.
func (h *QuestionHandler) GenerateBank(c *gin.Context) {
	formatID := h.parseIDParam(c, "id")
	if formatID == 0 {
		return
	}

	userID, ok := h.userID(c)
	if !ok {
		return
	}

	h.LogRequest(c, "Generating question bank", "format_id", formatID)

	result, err := h.generationService.GenerateBank(c.Request.Context(), formatID, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// GenerateMore appends a batch of questions to the existing bank.
func (h *QuestionHandler) GenerateMore(c *gin.Context) {
	formatID := h.parseIDParam(c, "id")
	if formatID == 0 {
		return
	}

	var req services.GenerateMoreRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}
	req.FormatID = formatID

	userID, ok := h.userID(c)
	if !ok {
		return
	}

	h.LogRequest(c, "Generating additional questions", "format_id", formatID, "count", req.Count)

	result, err := h.generationService.GenerateMore(c.Request.Context(), &req, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// ExportQuestions streams the question bank as an xlsx workbook.
func (h *QuestionHandler) ExportQuestions(c *gin.Context) {
	formatID := h.parseIDParam(c, "id")
	if formatID == 0 {
		return
	}

	userID, ok := h.userID(c)
	if !ok {
		return
	}

	h.LogRequest(c, "Exporting question bank", "format_id", formatID)

	data, fileName, err := h.exportService.ExportQuestions(c.Request.Context(), formatID, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", fileName))
	c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", data)
}
