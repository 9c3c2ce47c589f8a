package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/studyowl/exam-service/internal/llm"
	"github.com/studyowl/exam-service/internal/repositories"
	"github.com/studyowl/exam-service/internal/services"
	"github.com/studyowl/exam-service/internal/utils"
	"github.com/studyowl/exam-service/internal/validator"
)

// ErrorResponse is the error payload shape for every endpoint.
type ErrorResponse struct {
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

// SuccessResponse wraps responses that carry no domain body.
type SuccessResponse struct {
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// BaseHandler carries the shared logging and error mapping every handler
// embeds.
type BaseHandler struct {
	logger utils.Logger
}

func NewBaseHandler(logger utils.Logger) BaseHandler {
	return BaseHandler{logger: logger}
}

// LogRequest logs with the request-scoped logger when middleware attached one.
func (h *BaseHandler) LogRequest(c *gin.Context, msg string, args ...any) {
	utils.FromContext(c, h.logger).Info(msg, args...)
}

// parseIDParam parses a uint path parameter. On failure it writes a 400
// response and returns 0; IDs start at 1 so 0 never collides.
func (h *BaseHandler) parseIDParam(c *gin.Context, name string) uint {
	raw := c.Param(name)
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid " + name + " parameter",
			Details: raw,
		})
		return 0
	}
	return uint(id)
}

// userID extracts the authenticated user from the context. Writes 401 and
// returns false when the identity middleware did not run.
func (h *BaseHandler) userID(c *gin.Context) (string, bool) {
	userID, exists := c.Get("user_id")
	if !exists {
		c.JSON(http.StatusUnauthorized, ErrorResponse{
			Message: "User not authenticated",
		})
		return "", false
	}
	return userID.(string), true
}

// handleServiceError maps service-layer errors to HTTP status codes.
func (h *BaseHandler) handleServiceError(c *gin.Context, err error) {
	var validationErrs validator.ValidationErrors
	var validationErr *services.ValidationError
	var permissionErr *services.PermissionError

	switch {
	case errors.As(err, &validationErrs):
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Validation failed",
			Details: validationErrs,
		})
	case errors.As(err, &validationErr):
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: validationErr.Error(),
		})
	case errors.As(err, &permissionErr):
		c.JSON(http.StatusForbidden, ErrorResponse{
			Message: permissionErr.Error(),
		})
	case services.IsNotFoundError(err) || repositories.IsNotFoundError(err):
		c.JSON(http.StatusNotFound, ErrorResponse{
			Message: err.Error(),
		})
	case errors.Is(err, services.ErrAttemptAlreadySubmitted),
		errors.Is(err, services.ErrHintLimitReached),
		errors.Is(err, services.ErrEmptyQuestionBank):
		c.JSON(http.StatusConflict, ErrorResponse{
			Message: err.Error(),
		})
	case llm.IsCredentialError(err):
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{
			Message: "Model provider rejected the configured credentials",
		})
	case errors.Is(err, services.ErrGenerationFailed):
		c.JSON(http.StatusBadGateway, ErrorResponse{
			Message: err.Error(),
		})
	default:
		utils.FromContext(c, h.logger).Error("Unhandled service error", "error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Message: "Internal server error",
		})
	}
}
