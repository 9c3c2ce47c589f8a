package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/studyowl/exam-service/internal/cache"
	"github.com/studyowl/exam-service/internal/models"
	"github.com/studyowl/exam-service/internal/repositories"
)

type AttemptPostgreSQL struct {
	db           *gorm.DB
	helpers      *SharedHelpers
	cacheManager *cache.CacheManager
}

func NewAttemptPostgreSQL(db *gorm.DB, redisClient *redis.Client) repositories.AttemptRepository {
	return &AttemptPostgreSQL{
		db:           db,
		helpers:      NewSharedHelpers(db),
		cacheManager: cache.NewCacheManager(redisClient),
	}
}

func (a *AttemptPostgreSQL) getDB(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return a.db
}

// Create starts a new attempt
func (a *AttemptPostgreSQL) Create(ctx context.Context, tx *gorm.DB, attempt *models.ExamAttempt) error {
	db := a.getDB(tx)
	if err := db.WithContext(ctx).Create(attempt).Error; err != nil {
		return fmt.Errorf("failed to create attempt: %w", err)
	}

	cache.SafeInvalidatePattern(ctx, a.cacheManager.Attempt, fmt.Sprintf("user:%s:*", attempt.UserID))

	return nil
}

// GetByID retrieves an attempt by ID
func (a *AttemptPostgreSQL) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.ExamAttempt, error) {
	db := a.getDB(tx)
	var attempt models.ExamAttempt
	if err := db.WithContext(ctx).First(&attempt, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("attempt not found with ID %d: %w", id, repositories.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get attempt: %w", err)
	}
	return &attempt, nil
}

// GetByIDWithAnswers retrieves an attempt with all its answers
func (a *AttemptPostgreSQL) GetByIDWithAnswers(ctx context.Context, tx *gorm.DB, id uint) (*models.ExamAttempt, error) {
	db := a.getDB(tx)
	var attempt models.ExamAttempt
	if err := db.WithContext(ctx).
		Preload("Answers", func(db *gorm.DB) *gorm.DB {
			return db.Order("question_id ASC")
		}).
		First(&attempt, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("attempt not found with ID %d: %w", id, repositories.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get attempt with answers: %w", err)
	}
	return &attempt, nil
}

// Update saves attempt state
func (a *AttemptPostgreSQL) Update(ctx context.Context, tx *gorm.DB, attempt *models.ExamAttempt) error {
	db := a.getDB(tx)
	if err := db.WithContext(ctx).Omit("Answers").Save(attempt).Error; err != nil {
		return fmt.Errorf("failed to update attempt: %w", err)
	}

	cache.InvalidateAttemptCache(ctx, a.cacheManager, attempt.ID, attempt.UserID)

	return nil
}

// ListByUser retrieves a user's attempts with a total count
func (a *AttemptPostgreSQL) ListByUser(ctx context.Context, tx *gorm.DB, userID string, filters repositories.AttemptFilters) ([]*models.ExamAttempt, int64, error) {
	db := a.getDB(tx)
	query := db.WithContext(ctx).Model(&models.ExamAttempt{}).Where("user_id = ?", userID)

	if filters.FormatID != nil {
		query = query.Where("format_id = ?", *filters.FormatID)
	}
	if filters.Submitted != nil {
		if *filters.Submitted {
			query = query.Where("submitted_at IS NOT NULL")
		} else {
			query = query.Where("submitted_at IS NULL")
		}
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count attempts: %w", err)
	}

	sortBy := filters.SortBy
	if sortBy == "" {
		sortBy = "started_at"
	}
	var attempts []*models.ExamAttempt
	query = a.helpers.ApplyPaginationAndSort(query, sortBy, filters.SortOrder, filters.Limit, filters.Offset)
	if err := query.Find(&attempts).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list attempts: %w", err)
	}

	return attempts, total, nil
}

// GetActive returns the user's unsubmitted attempt for a format, or nil
func (a *AttemptPostgreSQL) GetActive(ctx context.Context, tx *gorm.DB, userID string, formatID uint) (*models.ExamAttempt, error) {
	db := a.getDB(tx)
	var attempt models.ExamAttempt
	err := db.WithContext(ctx).
		Where("user_id = ? AND format_id = ? AND submitted_at IS NULL", userID, formatID).
		Order("started_at DESC").
		First(&attempt).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get active attempt: %w", err)
	}
	return &attempt, nil
}

type AnswerPostgreSQL struct {
	db           *gorm.DB
	cacheManager *cache.CacheManager
}

func NewAnswerPostgreSQL(db *gorm.DB, redisClient *redis.Client) repositories.AnswerRepository {
	return &AnswerPostgreSQL{
		db:           db,
		cacheManager: cache.NewCacheManager(redisClient),
	}
}

func (a *AnswerPostgreSQL) getDB(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return a.db
}

// Upsert inserts or updates the answer keyed by (attempt_id, question_id)
func (a *AnswerPostgreSQL) Upsert(ctx context.Context, tx *gorm.DB, answer *models.ExamAttemptAnswer) error {
	db := a.getDB(tx)
	err := db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "attempt_id"}, {Name: "question_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"answer_text", "selected_option_index", "hints_used",
				"score", "feedback", "marked_at", "updated_at",
			}),
		}).
		Create(answer).Error
	if err != nil {
		return fmt.Errorf("failed to upsert answer: %w", err)
	}
	return nil
}

// GetByID retrieves an answer by ID
func (a *AnswerPostgreSQL) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.ExamAttemptAnswer, error) {
	db := a.getDB(tx)
	var answer models.ExamAttemptAnswer
	if err := db.WithContext(ctx).First(&answer, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("answer not found with ID %d: %w", id, repositories.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get answer: %w", err)
	}
	return &answer, nil
}

// GetByAttempt returns all answers of an attempt
func (a *AnswerPostgreSQL) GetByAttempt(ctx context.Context, tx *gorm.DB, attemptID uint) ([]*models.ExamAttemptAnswer, error) {
	db := a.getDB(tx)
	var answers []*models.ExamAttemptAnswer
	if err := db.WithContext(ctx).
		Where("attempt_id = ?", attemptID).
		Order("question_id ASC").
		Find(&answers).Error; err != nil {
		return nil, fmt.Errorf("failed to get answers by attempt: %w", err)
	}
	return answers, nil
}

// GetByAttemptAndQuestion returns one answer, or nil when not yet saved
func (a *AnswerPostgreSQL) GetByAttemptAndQuestion(ctx context.Context, tx *gorm.DB, attemptID, questionID uint) (*models.ExamAttemptAnswer, error) {
	db := a.getDB(tx)
	var answer models.ExamAttemptAnswer
	err := db.WithContext(ctx).
		Where("attempt_id = ? AND question_id = ?", attemptID, questionID).
		First(&answer).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get answer: %w", err)
	}
	return &answer, nil
}

// GetTopicReadiness aggregates the user's marked answers per topic. An
// answer counts as correct when its score reaches half the question's marks.
func (a *AnswerPostgreSQL) GetTopicReadiness(ctx context.Context, tx *gorm.DB, userID string) ([]*models.TopicReadiness, error) {
	db := a.getDB(tx)
	cacheKey := fmt.Sprintf("readiness:%s:all", userID)
	var readiness []*models.TopicReadiness

	err := a.cacheManager.Stats.CacheOrExecute(ctx, cacheKey, &readiness, cache.StatsCacheConfig.TTL, func() (interface{}, error) {
		var rows []*models.TopicReadiness
		err := db.WithContext(ctx).Raw(`
			SELECT
				t.id   AS topic_id,
				t.name AS topic_name,
				s.name AS subject_name,
				COUNT(a.id) AS questions_attempted,
				COUNT(a.id) FILTER (WHERE a.score >= q.max_marks / 2.0) AS questions_correct,
				ROUND(100.0 * COUNT(a.id) FILTER (WHERE a.score >= q.max_marks / 2.0) / COUNT(a.id)) AS readiness_score
			FROM exam_attempt_answers a
			JOIN exam_attempts att ON att.id = a.attempt_id
			JOIN exam_questions q  ON q.id = a.question_id
			JOIN topics t          ON t.id = q.topic_id
			JOIN subjects s        ON s.id = t.subject_id
			WHERE att.user_id = ? AND a.marked_at IS NOT NULL
			GROUP BY t.id, t.name, s.name
			ORDER BY readiness_score ASC, t.name ASC
		`, userID).Scan(&rows).Error
		if err != nil {
			return nil, fmt.Errorf("failed to aggregate topic readiness: %w", err)
		}
		return rows, nil
	})

	if err != nil {
		return nil, err
	}

	return readiness, nil
}
