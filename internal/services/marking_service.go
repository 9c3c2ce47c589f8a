package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"

	"github.com/studyowl/exam-service/internal/events"
	"github.com/studyowl/exam-service/internal/generator"
	"github.com/studyowl/exam-service/internal/models"
	"github.com/studyowl/exam-service/internal/repositories"
	"github.com/studyowl/exam-service/internal/validator"
)

type markingService struct {
	repo      repositories.Repository
	db        *gorm.DB
	logger    *slog.Logger
	validator *validator.Validator
	publisher events.EventPublisher
	engine    *generator.MarkingEngine
}

func NewMarkingService(
	repo repositories.Repository,
	db *gorm.DB,
	logger *slog.Logger,
	validator *validator.Validator,
	publisher events.EventPublisher,
	engine *generator.MarkingEngine,
) MarkingService {
	return &markingService{
		repo:      repo,
		db:        db,
		logger:    logger,
		validator: validator,
		publisher: publisher,
		engine:    engine,
	}
}

// MarkAnswer marks one saved answer on demand, optionally against a rubric
// override and with uploaded working (photos, PDFs) attached.
func (s *markingService) MarkAnswer(ctx context.Context, attemptID uint, req *MarkAnswerRequest, attachments []generator.Attachment, userID string) (*models.ExamAttemptAnswer, error) {
	s.logger.Info("Marking answer", "attempt_id", attemptID, "question_id", req.QuestionID, "user_id", userID)

	if err := s.validator.Validate(req); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	attempt, answer, question, err := s.loadAnswerContext(ctx, attemptID, req.QuestionID, userID, "mark")
	if err != nil {
		return nil, err
	}
	if answer == nil {
		return nil, ErrAnswerNotFound
	}

	rubricOverride := ""
	if req.RubricOverride != nil {
		rubricOverride = *req.RubricOverride
	}

	input := generator.AnswerInput{
		Text:                answer.AnswerText,
		SelectedOptionIndex: answer.SelectedOptionIndex,
		Attachments:         attachments,
	}
	result, err := s.engine.Mark(ctx, question, input, rubricOverride)
	if err != nil {
		return nil, fmt.Errorf("marking failed: %w", err)
	}

	now := time.Now()
	answer.Score = &result.Score
	answer.Feedback = &result.Feedback
	answer.MarkedAt = &now
	if err := s.repo.Answer().Upsert(ctx, s.db, answer); err != nil {
		return nil, fmt.Errorf("failed to save marking result: %w", err)
	}

	event := events.NewEvent(events.TypeAnswerMarked, events.AnswerMarkedEvent{
		AttemptID:  attempt.ID,
		QuestionID: question.ID,
		UserID:     attempt.UserID,
		Score:      result.Score,
		MaxMarks:   question.MaxMarks,
	})
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Error("Failed to publish marking event", "attempt_id", attempt.ID, "error", err)
	}

	return answer, nil
}

// GetHint produces the next Socratic hint for a question. Usage is persisted
// on the answer row; the hint text itself is not stored.
func (s *markingService) GetHint(ctx context.Context, attemptID uint, req *HintRequest, userID string) (*HintResponse, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	_, answer, question, err := s.loadAnswerContext(ctx, attemptID, req.QuestionID, userID, "hint")
	if err != nil {
		return nil, err
	}

	// Hints may be requested before any answer is saved.
	if answer == nil {
		answer = &models.ExamAttemptAnswer{
			AttemptID:  attemptID,
			QuestionID: req.QuestionID,
		}
	}

	hint, err := s.engine.Hint(ctx, question, answer.AnswerText, answer.HintsUsed)
	if err != nil {
		if errors.Is(err, generator.ErrHintLimit) {
			return nil, ErrHintLimitReached
		}
		return nil, fmt.Errorf("hint generation failed: %w", err)
	}

	answer.HintsUsed++
	if err := s.repo.Answer().Upsert(ctx, s.db, answer); err != nil {
		return nil, fmt.Errorf("failed to record hint usage: %w", err)
	}

	return &HintResponse{
		QuestionID:     req.QuestionID,
		Hint:           hint,
		HintsUsed:      answer.HintsUsed,
		HintsRemaining: generator.MaxHints - answer.HintsUsed,
	}, nil
}

// GetFullAnswer returns a complete worked answer for a question. Nothing is
// persisted; the full answer is reference material.
func (s *markingService) GetFullAnswer(ctx context.Context, attemptID, questionID uint, userID string) (*FullAnswerResponse, error) {
	_, _, question, err := s.loadAnswerContext(ctx, attemptID, questionID, userID, "view full answer")
	if err != nil {
		return nil, err
	}

	answer, err := s.engine.FullAnswer(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("full answer generation failed: %w", err)
	}

	return &FullAnswerResponse{QuestionID: questionID, Answer: answer}, nil
}

// loadAnswerContext resolves the attempt, the question and the saved answer
// (nil when the student has not answered yet), enforcing ownership.
func (s *markingService) loadAnswerContext(ctx context.Context, attemptID, questionID uint, userID, action string) (*models.ExamAttempt, *models.ExamAttemptAnswer, *models.ExamQuestion, error) {
	attempt, err := s.repo.Attempt().GetByID(ctx, s.db, attemptID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, nil, nil, ErrAttemptNotFound
		}
		return nil, nil, nil, fmt.Errorf("failed to get attempt: %w", err)
	}
	if attempt.UserID != userID {
		return nil, nil, nil, NewPermissionError(userID, attemptID, "attempt", action, "not owned by user")
	}

	question, err := s.repo.Question().GetByID(ctx, s.db, questionID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, nil, nil, ErrQuestionNotFound
		}
		return nil, nil, nil, fmt.Errorf("failed to get question: %w", err)
	}
	if question.FormatID != attempt.FormatID {
		return nil, nil, nil, NewValidationError("question_id", "does not belong to this attempt's format", questionID)
	}

	answer, err := s.repo.Answer().GetByAttemptAndQuestion(ctx, s.db, attemptID, questionID)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to get answer: %w", err)
	}

	return attempt, answer, question, nil
}
