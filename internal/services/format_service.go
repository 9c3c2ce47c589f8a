package services

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"strings"

	"gorm.io/gorm"

	"github.com/studyowl/exam-service/internal/events"
	"github.com/studyowl/exam-service/internal/generator"
	"github.com/studyowl/exam-service/internal/llm"
	"github.com/studyowl/exam-service/internal/models"
	"github.com/studyowl/exam-service/internal/repositories"
	"github.com/studyowl/exam-service/internal/validator"
)

type formatService struct {
	repo      repositories.Repository
	db        *gorm.DB
	logger    *slog.Logger
	validator *validator.Validator
	publisher events.EventPublisher

	inference  *generator.FormatInferenceEngine
	extraction *generator.PaperExtractionEngine
	pdf        generator.PdfTextExtractor
}

func NewFormatService(
	repo repositories.Repository,
	db *gorm.DB,
	logger *slog.Logger,
	validator *validator.Validator,
	publisher events.EventPublisher,
	inference *generator.FormatInferenceEngine,
	extraction *generator.PaperExtractionEngine,
	pdf generator.PdfTextExtractor,
) FormatService {
	return &formatService{
		repo:       repo,
		db:         db,
		logger:     logger,
		validator:  validator,
		publisher:  publisher,
		inference:  inference,
		extraction: extraction,
		pdf:        pdf,
	}
}

// ===== CORE CRUD OPERATIONS =====

func (s *formatService) Create(ctx context.Context, req *CreateFormatRequest, creatorID string) (*FormatResponse, error) {
	s.logger.Info("Creating exam format", "name", req.Name, "course_id", req.CourseID, "creator_id", creatorID)

	if err := s.validator.Validate(req); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}
	if errs := s.validator.GetBusinessValidator().ValidateFormatCreate(req); len(errs) > 0 {
		return nil, errs
	}

	if _, err := s.repo.Course().GetByID(ctx, s.db, req.CourseID); err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrCourseNotFound
		}
		return nil, fmt.Errorf("failed to get course: %w", err)
	}

	format := &models.ExamFormat{
		CourseID:     req.CourseID,
		Name:         strings.TrimSpace(req.Name),
		Description:  req.Description,
		TotalMarks:   req.TotalMarks,
		TimeMinutes:  req.TimeMinutes,
		Instructions: req.Instructions,
		CreatedBy:    creatorID,
		Sections:     sectionsFromRequests(req.Sections),
	}

	if err := s.repo.Format().Create(ctx, s.db, format); err != nil {
		return nil, fmt.Errorf("failed to create format: %w", err)
	}

	s.publishFormatEvent(ctx, events.TypeFormatCreated, format)

	s.logger.Info("Exam format created", "format_id", format.ID, "sections", len(format.Sections))
	return s.toResponse(ctx, format, creatorID), nil
}

func (s *formatService) GetByID(ctx context.Context, id uint, userID string) (*FormatResponse, error) {
	format, err := s.repo.Format().GetByIDWithSections(ctx, s.db, id)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrFormatNotFound
		}
		return nil, fmt.Errorf("failed to get format: %w", err)
	}
	return s.toResponse(ctx, format, userID), nil
}

func (s *formatService) List(ctx context.Context, filters repositories.FormatFilters, userID string) (*FormatListResponse, error) {
	formats, total, err := s.repo.Format().List(ctx, s.db, filters)
	if err != nil {
		return nil, fmt.Errorf("failed to list formats: %w", err)
	}

	responses := make([]*FormatResponse, 0, len(formats))
	for _, f := range formats {
		responses = append(responses, &FormatResponse{
			ExamFormat: f,
			CanEdit:    f.CreatedBy == userID,
		})
	}

	return &FormatListResponse{
		Formats: responses,
		Total:   total,
		Limit:   filters.Limit,
		Offset:  filters.Offset,
	}, nil
}

func (s *formatService) Update(ctx context.Context, id uint, req *UpdateFormatRequest, userID string) (*FormatResponse, error) {
	s.logger.Info("Updating exam format", "format_id", id, "user_id", userID)

	if err := s.validator.Validate(req); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}
	if errs := s.validator.GetBusinessValidator().ValidateFormatUpdate(req); len(errs) > 0 {
		return nil, errs
	}

	format, err := s.repo.Format().GetByIDWithSections(ctx, s.db, id)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrFormatNotFound
		}
		return nil, fmt.Errorf("failed to get format: %w", err)
	}

	if format.CreatedBy != userID {
		return nil, NewPermissionError(userID, id, "format", "update", "not owned by user")
	}

	applyFormatUpdates(format, req)
	if err := s.repo.Format().Update(ctx, s.db, format); err != nil {
		return nil, fmt.Errorf("failed to update format: %w", err)
	}

	// Sections replace wholesale; questions referencing removed sections are
	// deleted in the same transaction.
	if req.Sections != nil {
		if err := s.repo.Format().ReplaceSections(ctx, s.db, id, sectionsFromRequests(req.Sections)); err != nil {
			return nil, fmt.Errorf("failed to replace sections: %w", err)
		}
	}

	updated, err := s.repo.Format().GetByIDWithSections(ctx, s.db, id)
	if err != nil {
		return nil, fmt.Errorf("failed to reload format: %w", err)
	}

	s.publishFormatEvent(ctx, events.TypeFormatUpdated, updated)

	return s.toResponse(ctx, updated, userID), nil
}

func (s *formatService) Delete(ctx context.Context, id uint, userID string) error {
	s.logger.Info("Deleting exam format", "format_id", id, "user_id", userID)

	format, err := s.repo.Format().GetByID(ctx, s.db, id)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return ErrFormatNotFound
		}
		return fmt.Errorf("failed to get format: %w", err)
	}

	if format.CreatedBy != userID {
		return NewPermissionError(userID, id, "format", "delete", "not owned by user")
	}

	if err := s.repo.Format().Delete(ctx, s.db, id); err != nil {
		return fmt.Errorf("failed to delete format: %w", err)
	}

	return nil
}

// ===== MODEL-ASSISTED STRUCTURE DISCOVERY =====

func (s *formatService) Infer(ctx context.Context, req *InferFormatRequest, userID string) (*generator.FormatSpec, error) {
	s.logger.Info("Inferring exam format", "exam_name", req.ExamName, "course_id", req.CourseID)

	if err := s.validator.Validate(req); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	course, err := s.repo.Course().GetByID(ctx, s.db, req.CourseID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrCourseNotFound
		}
		return nil, fmt.Errorf("failed to get course: %w", err)
	}

	spec, err := s.inference.Infer(ctx, req.ExamName, course.Name, course.LevelName)
	if err != nil {
		return nil, fmt.Errorf("format inference failed: %w", err)
	}
	return spec, nil
}

func (s *formatService) ImportFromPaper(ctx context.Context, req *ImportPaperRequest, userID string) (*ImportPaperResponse, error) {
	s.logger.Info("Importing past paper",
		"course_id", req.CourseID,
		"file_name", req.FileName,
		"mime_type", req.MimeType,
		"bytes", len(req.Data))

	if len(req.Data) == 0 {
		return nil, NewValidationError("file", "is empty", req.FileName)
	}

	course, err := s.repo.Course().GetByID(ctx, s.db, req.CourseID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrCourseNotFound
		}
		return nil, fmt.Errorf("failed to get course: %w", err)
	}

	source, err := s.buildPaperSource(ctx, req)
	if err != nil {
		return nil, err
	}

	result, err := s.extraction.Extract(ctx, *source)
	if err != nil {
		return nil, fmt.Errorf("paper extraction failed: %w", err)
	}

	format := &models.ExamFormat{
		CourseID:     course.ID,
		Name:         result.Format.Name,
		Description:  result.Format.Description,
		TotalMarks:   result.Format.TotalMarks,
		TimeMinutes:  result.Format.TimeMinutes,
		Instructions: result.Format.Instructions,
		CreatedBy:    userID,
		Sections:     sectionsFromSpecs(result.Format.Sections),
	}

	if err := s.repo.Format().Create(ctx, s.db, format); err != nil {
		return nil, fmt.Errorf("failed to create format from paper: %w", err)
	}

	s.publishFormatEvent(ctx, events.TypeFormatCreated, format)

	s.logger.Info("Past paper imported",
		"format_id", format.ID,
		"sections", len(format.Sections),
		"extracted_questions", len(result.Questions))

	return &ImportPaperResponse{
		Format:             s.toResponse(ctx, format, userID),
		ExtractedQuestions: result.Questions,
		QuestionsTruncated: result.QuestionsTruncated,
	}, nil
}

// buildPaperSource turns the uploaded file into model input: PDFs become
// extracted text, images go through as-is.
func (s *formatService) buildPaperSource(ctx context.Context, req *ImportPaperRequest) (*generator.PaperSource, error) {
	switch {
	case req.MimeType == "application/pdf":
		text, err := s.pdf.ExtractText(ctx, req.Data)
		if err != nil {
			return nil, fmt.Errorf("failed to extract paper text: %w", err)
		}
		return &generator.PaperSource{Text: text}, nil
	case strings.HasPrefix(req.MimeType, "image/"):
		return &generator.PaperSource{Images: []llm.Image{{
			MimeType: req.MimeType,
			Data:     base64.StdEncoding.EncodeToString(req.Data),
		}}}, nil
	default:
		return nil, NewValidationError("file", "must be a PDF or image", req.MimeType)
	}
}

// ===== HELPERS =====

func (s *formatService) toResponse(ctx context.Context, format *models.ExamFormat, userID string) *FormatResponse {
	count, err := s.repo.Question().CountByFormat(ctx, s.db, format.ID)
	if err != nil {
		s.logger.Warn("Failed to count questions for format", "format_id", format.ID, "error", err)
	}
	return &FormatResponse{
		ExamFormat:    format,
		QuestionCount: count,
		CanEdit:       format.CreatedBy == userID,
	}
}

func (s *formatService) publishFormatEvent(ctx context.Context, eventType string, format *models.ExamFormat) {
	event := events.NewEvent(eventType, events.FormatEvent{
		FormatID:  format.ID,
		CourseID:  format.CourseID,
		Name:      format.Name,
		CreatedBy: format.CreatedBy,
	})
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Error("Failed to publish format event", "event_type", eventType, "format_id", format.ID, "error", err)
	}
}

func sectionsFromRequests(reqs []validator.SectionRequest) []models.ExamSection {
	sections := make([]models.ExamSection, 0, len(reqs))
	for i, r := range reqs {
		sections = append(sections, models.ExamSection{
			Name:             strings.TrimSpace(r.Name),
			QuestionType:     r.QuestionType,
			NumQuestions:     r.NumQuestions,
			MarksPerQuestion: r.MarksPerQuestion,
			Instructions:     r.Instructions,
			SortOrder:        i,
		})
	}
	return sections
}

func sectionsFromSpecs(specs []generator.SectionSpec) []models.ExamSection {
	sections := make([]models.ExamSection, 0, len(specs))
	for i, sp := range specs {
		sections = append(sections, models.ExamSection{
			Name:             sp.Name,
			QuestionType:     sp.QuestionType,
			NumQuestions:     sp.NumQuestions,
			MarksPerQuestion: sp.MarksPerQuestion,
			Instructions:     sp.Instructions,
			SortOrder:        i,
		})
	}
	return sections
}

func applyFormatUpdates(format *models.ExamFormat, req *UpdateFormatRequest) {
	if req.Name != nil {
		format.Name = strings.TrimSpace(*req.Name)
	}
	if req.Description != nil {
		format.Description = req.Description
	}
	if req.TotalMarks != nil {
		format.TotalMarks = req.TotalMarks
	}
	if req.TimeMinutes != nil {
		format.TimeMinutes = req.TimeMinutes
	}
	if req.Instructions != nil {
		format.Instructions = req.Instructions
	}
}
