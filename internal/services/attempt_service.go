package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"

	"github.com/studyowl/exam-service/internal/events"
	"github.com/studyowl/exam-service/internal/generator"
	"github.com/studyowl/exam-service/internal/llm"
	"github.com/studyowl/exam-service/internal/models"
	"github.com/studyowl/exam-service/internal/repositories"
	"github.com/studyowl/exam-service/internal/validator"
)

type attemptService struct {
	repo      repositories.Repository
	db        *gorm.DB
	logger    *slog.Logger
	validator *validator.Validator
	publisher events.EventPublisher
	marking   *generator.MarkingEngine
}

func NewAttemptService(
	repo repositories.Repository,
	db *gorm.DB,
	logger *slog.Logger,
	validator *validator.Validator,
	publisher events.EventPublisher,
	marking *generator.MarkingEngine,
) AttemptService {
	return &attemptService{
		repo:      repo,
		db:        db,
		logger:    logger,
		validator: validator,
		publisher: publisher,
		marking:   marking,
	}
}

// ===== CORE ATTEMPT OPERATIONS =====

func (s *attemptService) Start(ctx context.Context, req *StartAttemptRequest, userID string) (*AttemptResponse, error) {
	s.logger.Info("Starting exam attempt", "format_id", req.FormatID, "user_id", userID)

	if err := s.validator.Validate(req); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	mode := req.Mode
	if mode == "" {
		mode = models.ModePractice
	}

	format, err := s.repo.Format().GetByIDWithSections(ctx, s.db, req.FormatID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrFormatNotFound
		}
		return nil, fmt.Errorf("failed to get format: %w", err)
	}

	count, err := s.repo.Question().CountByFormat(ctx, s.db, req.FormatID)
	if err != nil {
		return nil, fmt.Errorf("failed to count questions: %w", err)
	}
	if count == 0 {
		return nil, ErrEmptyQuestionBank
	}

	// An unsubmitted attempt on the same format is resumed, not duplicated.
	active, err := s.repo.Attempt().GetActive(ctx, s.db, userID, req.FormatID)
	if err != nil {
		return nil, fmt.Errorf("failed to check active attempt: %w", err)
	}
	if active != nil {
		s.logger.Info("Resuming existing attempt", "attempt_id", active.ID)
		return s.buildResponse(ctx, active, format, true)
	}

	attempt := &models.ExamAttempt{
		UserID:    userID,
		FormatID:  req.FormatID,
		Mode:      mode,
		StartedAt: time.Now(),
	}
	if err := s.repo.Attempt().Create(ctx, s.db, attempt); err != nil {
		return nil, fmt.Errorf("failed to create attempt: %w", err)
	}

	s.logger.Info("Exam attempt started", "attempt_id", attempt.ID, "mode", mode)
	return s.buildResponse(ctx, attempt, format, false)
}

func (s *attemptService) GetByID(ctx context.Context, id uint, userID string) (*AttemptResponse, error) {
	attempt, err := s.repo.Attempt().GetByIDWithAnswers(ctx, s.db, id)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrAttemptNotFound
		}
		return nil, fmt.Errorf("failed to get attempt: %w", err)
	}

	if attempt.UserID != userID {
		return nil, NewPermissionError(userID, id, "attempt", "view", "not owned by user")
	}

	format, err := s.repo.Format().GetByIDWithSections(ctx, s.db, attempt.FormatID)
	if err != nil {
		return nil, fmt.Errorf("failed to get format: %w", err)
	}
	return s.buildResponse(ctx, attempt, format, false)
}

func (s *attemptService) List(ctx context.Context, userID string, filters repositories.AttemptFilters) (*AttemptListResponse, error) {
	attempts, total, err := s.repo.Attempt().ListByUser(ctx, s.db, userID, filters)
	if err != nil {
		return nil, fmt.Errorf("failed to list attempts: %w", err)
	}
	return &AttemptListResponse{
		Attempts: attempts,
		Total:    total,
		Limit:    filters.Limit,
		Offset:   filters.Offset,
	}, nil
}

// SubmitAnswer saves the student's answer. In practice mode the answer is
// marked immediately; in exam mode marking waits for submission.
func (s *attemptService) SubmitAnswer(ctx context.Context, attemptID uint, req *SubmitAnswerRequest, userID string) (*models.ExamAttemptAnswer, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	attempt, err := s.getOwnedAttempt(ctx, attemptID, userID, "answer")
	if err != nil {
		return nil, err
	}
	if attempt.IsSubmitted() {
		return nil, ErrAttemptAlreadySubmitted
	}

	question, err := s.repo.Question().GetByID(ctx, s.db, req.QuestionID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrQuestionNotFound
		}
		return nil, fmt.Errorf("failed to get question: %w", err)
	}
	if question.FormatID != attempt.FormatID {
		return nil, NewValidationError("question_id", "does not belong to this attempt's format", req.QuestionID)
	}

	if errs := s.validator.GetBusinessValidator().ValidateAttemptAnswer(req, question); len(errs) > 0 {
		return nil, errs
	}

	answer, err := s.upsertAnswer(ctx, attemptID, req)
	if err != nil {
		return nil, err
	}

	if attempt.Mode == models.ModePractice {
		if err := s.markAnswer(ctx, attempt, question, answer, ""); err != nil {
			return nil, err
		}
	}

	return answer, nil
}

// Submit closes the attempt. Unmarked answers are marked first; individual
// marking failures are skipped and logged, leaving those answers unscored.
func (s *attemptService) Submit(ctx context.Context, attemptID uint, userID string) (*AttemptResponse, error) {
	s.logger.Info("Submitting exam attempt", "attempt_id", attemptID, "user_id", userID)

	attempt, err := s.repo.Attempt().GetByIDWithAnswers(ctx, s.db, attemptID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrAttemptNotFound
		}
		return nil, fmt.Errorf("failed to get attempt: %w", err)
	}
	if attempt.UserID != userID {
		return nil, NewPermissionError(userID, attemptID, "attempt", "submit", "not owned by user")
	}
	if attempt.IsSubmitted() {
		return nil, ErrAttemptAlreadySubmitted
	}

	format, err := s.repo.Format().GetByIDWithSections(ctx, s.db, attempt.FormatID)
	if err != nil {
		return nil, fmt.Errorf("failed to get format: %w", err)
	}

	questions, err := s.repo.Question().GetByFormat(ctx, s.db, attempt.FormatID)
	if err != nil {
		return nil, fmt.Errorf("failed to get questions: %w", err)
	}
	questionsByID := make(map[uint]*models.ExamQuestion, len(questions))
	maxScore := 0
	for _, q := range questions {
		questionsByID[q.ID] = q
		maxScore += q.MaxMarks
	}

	totalScore := 0.0
	skipped := 0
	for i := range attempt.Answers {
		answer := &attempt.Answers[i]
		question, ok := questionsByID[answer.QuestionID]
		if !ok {
			continue
		}

		if !answer.IsMarked() {
			if err := s.markAnswer(ctx, attempt, question, answer, ""); err != nil {
				// Credential failures need operator action and abort the
				// submission; anything else skips just this answer.
				if llm.IsCredentialError(err) {
					return nil, err
				}
				s.logger.Warn("Skipping unmarkable answer on submit",
					"attempt_id", attemptID,
					"question_id", answer.QuestionID,
					"error", err)
				skipped++
				continue
			}
		}
		if answer.Score != nil {
			totalScore += *answer.Score
		}
	}

	now := time.Now()
	attempt.SubmittedAt = &now
	attempt.TotalScore = &totalScore
	attempt.MaxScore = &maxScore
	if err := s.repo.Attempt().Update(ctx, s.db, attempt); err != nil {
		return nil, fmt.Errorf("failed to update attempt: %w", err)
	}

	maxScoreF := float64(maxScore)
	event := events.NewEvent(events.TypeAttemptSubmitted, events.AttemptSubmittedEvent{
		AttemptID:  attempt.ID,
		FormatID:   attempt.FormatID,
		UserID:     attempt.UserID,
		TotalScore: attempt.TotalScore,
		MaxScore:   &maxScoreF,
	})
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Error("Failed to publish attempt event", "attempt_id", attempt.ID, "error", err)
	}

	s.logger.Info("Exam attempt submitted",
		"attempt_id", attempt.ID,
		"total_score", totalScore,
		"max_score", maxScore,
		"skipped", skipped)
	return s.buildResponse(ctx, attempt, format, false)
}

// ===== HELPERS =====

func (s *attemptService) getOwnedAttempt(ctx context.Context, attemptID uint, userID, action string) (*models.ExamAttempt, error) {
	attempt, err := s.repo.Attempt().GetByID(ctx, s.db, attemptID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrAttemptNotFound
		}
		return nil, fmt.Errorf("failed to get attempt: %w", err)
	}
	if attempt.UserID != userID {
		return nil, NewPermissionError(userID, attemptID, "attempt", action, "not owned by user")
	}
	return attempt, nil
}

// upsertAnswer writes the answer, carrying forward hint usage from any
// earlier revision of the same answer.
func (s *attemptService) upsertAnswer(ctx context.Context, attemptID uint, req *SubmitAnswerRequest) (*models.ExamAttemptAnswer, error) {
	answer := &models.ExamAttemptAnswer{
		AttemptID:           attemptID,
		QuestionID:          req.QuestionID,
		AnswerText:          req.AnswerText,
		SelectedOptionIndex: req.SelectedOptionIndex,
	}

	existing, err := s.repo.Answer().GetByAttemptAndQuestion(ctx, s.db, attemptID, req.QuestionID)
	if err != nil {
		return nil, fmt.Errorf("failed to check existing answer: %w", err)
	}
	if existing != nil {
		answer.ID = existing.ID
		answer.HintsUsed = existing.HintsUsed
	}

	if err := s.repo.Answer().Upsert(ctx, s.db, answer); err != nil {
		return nil, fmt.Errorf("failed to save answer: %w", err)
	}
	return answer, nil
}

// markAnswer runs the marking engine and persists the outcome on the answer.
func (s *attemptService) markAnswer(ctx context.Context, attempt *models.ExamAttempt, question *models.ExamQuestion, answer *models.ExamAttemptAnswer, rubricOverride string) error {
	input := generator.AnswerInput{
		Text:                answer.AnswerText,
		SelectedOptionIndex: answer.SelectedOptionIndex,
	}
	result, err := s.marking.Mark(ctx, question, input, rubricOverride)
	if err != nil {
		return fmt.Errorf("marking failed for question %d: %w", question.ID, err)
	}

	now := time.Now()
	answer.Score = &result.Score
	answer.Feedback = &result.Feedback
	answer.MarkedAt = &now
	if err := s.repo.Answer().Upsert(ctx, s.db, answer); err != nil {
		return fmt.Errorf("failed to save marking result: %w", err)
	}

	event := events.NewEvent(events.TypeAnswerMarked, events.AnswerMarkedEvent{
		AttemptID:  attempt.ID,
		QuestionID: question.ID,
		UserID:     attempt.UserID,
		Score:      result.Score,
		MaxMarks:   question.MaxMarks,
	})
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Error("Failed to publish marking event", "attempt_id", attempt.ID, "question_id", question.ID, "error", err)
	}
	return nil
}

func (s *attemptService) buildResponse(ctx context.Context, attempt *models.ExamAttempt, format *models.ExamFormat, resumed bool) (*AttemptResponse, error) {
	questions, err := s.repo.Question().GetByFormat(ctx, s.db, attempt.FormatID)
	if err != nil {
		return nil, fmt.Errorf("failed to get questions: %w", err)
	}

	typeBySection := make(map[uint]models.QuestionType, len(format.Sections))
	for _, sec := range format.Sections {
		typeBySection[sec.ID] = sec.QuestionType
	}

	view := make([]AttemptQuestion, 0, len(questions))
	for _, q := range questions {
		view = append(view, AttemptQuestion{
			ID:           q.ID,
			SectionID:    q.SectionID,
			TopicID:      q.TopicID,
			QuestionType: typeBySection[q.SectionID],
			QuestionText: q.QuestionText,
			Dataset:      q.Dataset,
			Options:      q.OptionList(),
			MaxMarks:     q.MaxMarks,
			Depth:        q.Depth,
		})
	}

	return &AttemptResponse{
		ExamAttempt: attempt,
		Questions:   view,
		CanSubmit:   !attempt.IsSubmitted(),
		Resumed:     resumed,
	}, nil
}
