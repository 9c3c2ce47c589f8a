package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/studyowl/exam-service/internal/events"
	"github.com/studyowl/exam-service/internal/generator"
	"github.com/studyowl/exam-service/internal/models"
	"github.com/studyowl/exam-service/internal/repositories"
	"github.com/studyowl/exam-service/internal/validator"
)

type generationService struct {
	repo      repositories.Repository
	db        *gorm.DB
	logger    *slog.Logger
	validator *validator.Validator
	publisher events.EventPublisher
	engine    *generator.QuestionGenerationEngine
}

func NewGenerationService(
	repo repositories.Repository,
	db *gorm.DB,
	logger *slog.Logger,
	validator *validator.Validator,
	publisher events.EventPublisher,
	engine *generator.QuestionGenerationEngine,
) GenerationService {
	return &generationService{
		repo:      repo,
		db:        db,
		logger:    logger,
		validator: validator,
		publisher: publisher,
		engine:    engine,
	}
}

// GenerateBank regenerates the complete question bank for a format. The
// existing bank is deleted and replaced in one transaction, so a failed run
// never leaves the format half-filled.
func (s *generationService) GenerateBank(ctx context.Context, formatID uint, userID string) (*GenerationResult, error) {
	s.logger.Info("Generating full question bank", "format_id", formatID, "user_id", userID)

	format, plan, err := s.loadGenerationContext(ctx, formatID, userID, "generate")
	if err != nil {
		return nil, err
	}

	requested := 0
	for _, sec := range format.Sections {
		requested += sec.NumQuestions
	}

	generated, err := s.engine.GenerateFull(ctx, format.Sections, *plan)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}

	questions, err := questionModels(formatID, generated)
	if err != nil {
		return nil, err
	}

	err = s.repo.WithTransaction(ctx, func(txRepo repositories.Repository) error {
		if err := txRepo.Question().DeleteByFormat(ctx, nil, formatID); err != nil {
			return fmt.Errorf("failed to clear question bank: %w", err)
		}
		if err := txRepo.Question().CreateBatch(ctx, nil, questions); err != nil {
			return fmt.Errorf("failed to store questions: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	result := &GenerationResult{
		FormatID:  formatID,
		Requested: requested,
		Generated: len(questions),
		Mode:      "full",
	}
	s.publishGenerationEvent(ctx, events.TypeQuestionsGenerated, format, result)

	s.logger.Info("Question bank generated",
		"format_id", formatID,
		"requested", requested,
		"generated", len(questions))
	return result, nil
}

// GenerateMore appends questions to an existing bank in batch mode.
func (s *generationService) GenerateMore(ctx context.Context, req *GenerateMoreRequest, userID string) (*GenerationResult, error) {
	s.logger.Info("Generating additional questions",
		"format_id", req.FormatID,
		"count", req.Count,
		"user_id", userID)

	if err := s.validator.Validate(req); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	format, plan, err := s.loadGenerationContext(ctx, req.FormatID, userID, "generate")
	if err != nil {
		return nil, err
	}

	generated, err := s.engine.GenerateBatch(ctx, format.Sections, *plan, req.Count, req.Difficulty)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}

	questions, err := questionModels(req.FormatID, generated)
	if err != nil {
		return nil, err
	}

	if err := s.repo.Question().CreateBatch(ctx, s.db, questions); err != nil {
		return nil, fmt.Errorf("failed to store questions: %w", err)
	}

	result := &GenerationResult{
		FormatID:  req.FormatID,
		Requested: req.Count,
		Generated: len(questions),
		Mode:      "batch",
	}
	s.publishGenerationEvent(ctx, events.TypeQuestionsAppended, format, result)

	return result, nil
}

func (s *generationService) ListQuestions(ctx context.Context, formatID uint, userID string) ([]*models.ExamQuestion, error) {
	if _, err := s.repo.Format().GetByID(ctx, s.db, formatID); err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrFormatNotFound
		}
		return nil, fmt.Errorf("failed to get format: %w", err)
	}

	questions, err := s.repo.Question().GetByFormat(ctx, s.db, formatID)
	if err != nil {
		return nil, fmt.Errorf("failed to list questions: %w", err)
	}
	return questions, nil
}

// loadGenerationContext fetches the format, checks ownership and assembles
// the generation plan from the course curriculum.
func (s *generationService) loadGenerationContext(ctx context.Context, formatID uint, userID, action string) (*models.ExamFormat, *generator.GenerationPlan, error) {
	format, err := s.repo.Format().GetByIDWithSections(ctx, s.db, formatID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, nil, ErrFormatNotFound
		}
		return nil, nil, fmt.Errorf("failed to get format: %w", err)
	}

	if format.CreatedBy != userID {
		return nil, nil, NewPermissionError(userID, formatID, "format", action, "not owned by user")
	}

	course, err := s.repo.Course().GetByID(ctx, s.db, format.CourseID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, nil, ErrCourseNotFound
		}
		return nil, nil, fmt.Errorf("failed to get course: %w", err)
	}

	topics, err := s.repo.Course().GetTopicRefs(ctx, s.db, course.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get course topics: %w", err)
	}

	return format, &generator.GenerationPlan{
		CourseName: course.Name,
		LevelName:  course.LevelName,
		ExamName:   format.Name,
		Topics:     topics,
	}, nil
}

func (s *generationService) publishGenerationEvent(ctx context.Context, eventType string, format *models.ExamFormat, result *GenerationResult) {
	event := events.NewEvent(eventType, events.QuestionsGeneratedEvent{
		FormatID:  format.ID,
		CourseID:  format.CourseID,
		Requested: result.Requested,
		Generated: result.Generated,
		Mode:      result.Mode,
		CreatedBy: format.CreatedBy,
	})
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Error("Failed to publish generation event", "event_type", eventType, "format_id", format.ID, "error", err)
	}
}

// questionModels converts engine output to storable rows.
func questionModels(formatID uint, generated []generator.GeneratedQuestion) ([]*models.ExamQuestion, error) {
	questions := make([]*models.ExamQuestion, 0, len(generated))
	for _, g := range generated {
		q := &models.ExamQuestion{
			FormatID:           formatID,
			SectionID:          g.SectionID,
			TopicID:            g.TopicID,
			QuestionText:       g.QuestionText,
			Dataset:            g.Dataset,
			CorrectOptionIndex: g.CorrectOptionIndex,
			MaxMarks:           g.MaxMarks,
			Depth:              g.Depth,
		}
		if len(g.Options) > 0 {
			raw, err := json.Marshal(g.Options)
			if err != nil {
				return nil, fmt.Errorf("failed to encode options: %w", err)
			}
			q.Options = datatypes.JSON(raw)
		}
		if len(g.MarkScheme) > 0 {
			raw, err := json.Marshal(g.MarkScheme)
			if err != nil {
				return nil, fmt.Errorf("failed to encode mark scheme: %w", err)
			}
			q.MarkScheme = datatypes.JSON(raw)
		}
		questions = append(questions, q)
	}
	return questions, nil
}
