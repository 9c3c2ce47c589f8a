package handlers

import (
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/studyowl/exam-service/internal/generator"
	"github.com/studyowl/exam-service/internal/services"
	"github.com/studyowl/exam-service/internal/utils"
	"github.com/studyowl/exam-service/internal/validator"
)

const maxAttachmentBytes = 10 << 20

type MarkingHandler struct {
	BaseHandler
	markingService services.MarkingService
	validator      *validator.Validator
}

func NewMarkingHandler(
	markingService services.MarkingService,
	validator *validator.Validator,
	logger utils.Logger,
) *MarkingHandler {
	return &MarkingHandler{
		BaseHandler:    NewBaseHandler(logger),
		markingService: markingService,
		validator:      validator,
	}
}

// MarkAnswer marks one saved answer. Accepts a JSON body, or multipart form
// data when the student's working is attached as files.
func (h *MarkingHandler) MarkAnswer(c *gin.Context) {
	attemptID := h.parseIDParam(c, "id")
	if attemptID == 0 {
		return
	}
	questionID := h.parseIDParam(c, "question_id")
	if questionID == 0 {
		return
	}

	userID, ok := h.userID(c)
	if !ok {
		return
	}

	req := &services.MarkAnswerRequest{QuestionID: questionID}
	var attachments []generator.Attachment

	if strings.HasPrefix(c.ContentType(), "multipart/form-data") {
		if override := c.PostForm("rubric_override"); override != "" {
			req.RubricOverride = &override
		}
		form, err := c.MultipartForm()
		if err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Message: "Invalid multipart payload",
				Details: err.Error(),
			})
			return
		}
		attachments, err = readAttachments(form.File["attachments"])
		if err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Message: "Failed to read attachment",
				Details: err.Error(),
			})
			return
		}
	} else if c.Request.ContentLength > 0 {
		var body struct {
			RubricOverride *string `json:"rubric_override"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Message: "Invalid request payload",
				Details: err.Error(),
			})
			return
		}
		req.RubricOverride = body.RubricOverride
	}

	h.LogRequest(c, "Marking answer",
		"attempt_id", attemptID,
		"question_id", questionID,
		"attachments", len(attachments))

	answer, err := h.markingService.MarkAnswer(c.Request.Context(), attemptID, req, attachments, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, answer)
}

// GetHint returns the next Socratic hint for a question, up to the cap.
func (h *MarkingHandler) GetHint(c *gin.Context) {
	attemptID := h.parseIDParam(c, "id")
	if attemptID == 0 {
		return
	}
	questionID := h.parseIDParam(c, "question_id")
	if questionID == 0 {
		return
	}

	userID, ok := h.userID(c)
	if !ok {
		return
	}

	hint, err := h.markingService.GetHint(c.Request.Context(), attemptID, &services.HintRequest{
		QuestionID: questionID,
	}, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, hint)
}

// GetFullAnswer returns a complete worked answer. Nothing is persisted, so
// requesting it never affects the attempt's score.
func (h *MarkingHandler) GetFullAnswer(c *gin.Context) {
	attemptID := h.parseIDParam(c, "id")
	if attemptID == 0 {
		return
	}
	questionID := h.parseIDParam(c, "question_id")
	if questionID == 0 {
		return
	}

	userID, ok := h.userID(c)
	if !ok {
		return
	}

	answer, err := h.markingService.GetFullAnswer(c.Request.Context(), attemptID, questionID, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, answer)
}

func readAttachments(files []*multipart.FileHeader) ([]generator.Attachment, error) {
	var attachments []generator.Attachment
	for _, fh := range files {
		if fh.Size > maxAttachmentBytes {
			continue
		}
		f, err := fh.Open()
		if err != nil {
			return nil, err
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			return nil, err
		}
		attachments = append(attachments, generator.Attachment{
			FileName: fh.Filename,
			MimeType: fh.Header.Get("Content-Type"),
			Data:     data,
		})
	}
	return attachments, nil
}
