package handlers

import (
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/studyowl/exam-service/internal/repositories"
	"github.com/studyowl/exam-service/internal/services"
	"github.com/studyowl/exam-service/internal/utils"
	"github.com/studyowl/exam-service/internal/validator"
)

// Past paper uploads are bounded so one request cannot hold the model
// provider's context window hostage.
const maxPaperUploadBytes = 20 << 20

type FormatHandler struct {
	BaseHandler
	formatService services.FormatService
	validator     *validator.Validator
}

func NewFormatHandler(
	formatService services.FormatService,
	validator *validator.Validator,
	logger utils.Logger,
) *FormatHandler {
	return &FormatHandler{
		BaseHandler:   NewBaseHandler(logger),
		formatService: formatService,
		validator:     validator,
	}
}

// CreateFormat creates a new exam format with its sections.
func (h *FormatHandler) CreateFormat(c *gin.Context) {
	var req services.CreateFormatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}

	userID, ok := h.userID(c)
	if !ok {
		return
	}

	format, err := h.formatService.Create(c.Request.Context(), &req, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, format)
}

// GetFormat retrieves a format with its sections.
func (h *FormatHandler) GetFormat(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	userID, ok := h.userID(c)
	if !ok {
		return
	}

	format, err := h.formatService.GetByID(c.Request.Context(), id, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, format)
}

// ListFormats lists formats, filterable by course and creator.
func (h *FormatHandler) ListFormats(c *gin.Context) {
	userID, ok := h.userID(c)
	if !ok {
		return
	}

	filters := repositories.FormatFilters{
		Limit:     parseQueryInt(c, "limit", 20),
		Offset:    parseQueryInt(c, "offset", 0),
		SortBy:    c.Query("sort_by"),
		SortOrder: c.Query("sort_order"),
	}
	if raw := c.Query("course_id"); raw != "" {
		if courseID, err := strconv.ParseUint(raw, 10, 32); err == nil {
			id := uint(courseID)
			filters.CourseID = &id
		}
	}
	if c.Query("mine") == "true" {
		filters.CreatedBy = &userID
	}

	formats, err := h.formatService.List(c.Request.Context(), filters, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, formats)
}

// UpdateFormat updates a format; sections, when present, replace wholesale.
func (h *FormatHandler) UpdateFormat(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	h.LogRequest(c, "Updating exam format", "format_id", id)

	var req services.UpdateFormatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}

	userID, ok := h.userID(c)
	if !ok {
		return
	}

	format, err := h.formatService.Update(c.Request.Context(), id, &req, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, format)
}

// DeleteFormat deletes a format and its question bank.
func (h *FormatHandler) DeleteFormat(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	h.LogRequest(c, "Deleting exam format", "format_id", id)

	userID, ok := h.userID(c)
	if !ok {
		return
	}

	if err := h.formatService.Delete(c.Request.Context(), id, userID); err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{Message: "Format deleted"})
}

// InferFormat proposes a format structure from an exam name. Nothing is
// persisted; the client reviews the proposal and creates the format.
func (h *FormatHandler) InferFormat(c *gin.Context) {
	var req services.InferFormatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}

	userID, ok := h.userID(c)
	if !ok {
		return
	}

	h.LogRequest(c, "Inferring exam format", "exam_name", req.ExamName)

	spec, err := h.formatService.Infer(c.Request.Context(), &req, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, spec)
}

// ImportPaper accepts a past paper upload (PDF or image) and creates a format
// from its structure. Extracted questions are returned for review only.
func (h *FormatHandler) ImportPaper(c *gin.Context) {
	userID, ok := h.userID(c)
	if !ok {
		return
	}

	courseID, err := strconv.ParseUint(c.PostForm("course_id"), 10, 32)
	if err != nil || courseID == 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid course_id form field",
		})
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Missing file upload",
			Details: err.Error(),
		})
		return
	}
	if fileHeader.Size > maxPaperUploadBytes {
		c.JSON(http.StatusRequestEntityTooLarge, ErrorResponse{
			Message: "Uploaded paper exceeds the 20MB limit",
		})
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Failed to read upload",
			Details: err.Error(),
		})
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Failed to read upload",
			Details: err.Error(),
		})
		return
	}

	h.LogRequest(c, "Importing past paper",
		"course_id", courseID,
		"file_name", fileHeader.Filename,
		"bytes", len(data))

	result, err := h.formatService.ImportFromPaper(c.Request.Context(), &services.ImportPaperRequest{
		CourseID: uint(courseID),
		FileName: fileHeader.Filename,
		MimeType: fileHeader.Header.Get("Content-Type"),
		Data:     data,
	}, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, result)
}

func parseQueryInt(c *gin.Context, name string, fallback int) int {
	raw := c.Query(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return fallback
	}
	return v
}
