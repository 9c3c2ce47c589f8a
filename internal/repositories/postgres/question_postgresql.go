package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/studyowl/exam-service/internal/cache"
	"github.com/studyowl/exam-service/internal/models"
	"github.com/studyowl/exam-service/internal/repositories"
)

type QuestionPostgreSQL struct {
	db           *gorm.DB
	cacheManager *cache.CacheManager
}

func NewQuestionPostgreSQL(db *gorm.DB, redisClient *redis.Client) repositories.QuestionRepository {
	return &QuestionPostgreSQL{
		db:           db,
		cacheManager: cache.NewCacheManager(redisClient),
	}
}

func (q *QuestionPostgreSQL) getDB(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return q.db
}

// CreateBatch inserts generated questions in batches
func (q *QuestionPostgreSQL) CreateBatch(ctx context.Context, tx *gorm.DB, questions []*models.ExamQuestion) error {
	if len(questions) == 0 {
		return nil
	}

	db := q.getDB(tx)
	if err := db.WithContext(ctx).CreateInBatches(questions, 100).Error; err != nil {
		return fmt.Errorf("failed to create questions batch: %w", err)
	}

	cache.SafeInvalidatePattern(ctx, q.cacheManager.Question, fmt.Sprintf("format:%d:*", questions[0].FormatID))

	return nil
}

// GetByID retrieves a question by ID with caching
func (q *QuestionPostgreSQL) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.ExamQuestion, error) {
	db := q.getDB(tx)
	cacheKey := fmt.Sprintf("id:%d", id)
	var question models.ExamQuestion

	err := q.cacheManager.Question.CacheOrExecute(ctx, cacheKey, &question, cache.QuestionCacheConfig.TTL, func() (interface{}, error) {
		var dbQuestion models.ExamQuestion
		if err := db.WithContext(ctx).First(&dbQuestion, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, fmt.Errorf("question not found with ID %d: %w", id, repositories.ErrNotFound)
			}
			return nil, fmt.Errorf("failed to get question: %w", err)
		}
		return &dbQuestion, nil
	})

	if err != nil {
		return nil, err
	}

	return &question, nil
}

// GetByFormat returns all questions of a format ordered by section and id
func (q *QuestionPostgreSQL) GetByFormat(ctx context.Context, tx *gorm.DB, formatID uint) ([]*models.ExamQuestion, error) {
	db := q.getDB(tx)
	var questions []*models.ExamQuestion
	if err := db.WithContext(ctx).
		Where("format_id = ?", formatID).
		Order("section_id ASC, id ASC").
		Find(&questions).Error; err != nil {
		return nil, fmt.Errorf("failed to get questions by format: %w", err)
	}
	return questions, nil
}

// GetBySection returns all questions of one section
func (q *QuestionPostgreSQL) GetBySection(ctx context.Context, tx *gorm.DB, sectionID uint) ([]*models.ExamQuestion, error) {
	db := q.getDB(tx)
	var questions []*models.ExamQuestion
	if err := db.WithContext(ctx).
		Where("section_id = ?", sectionID).
		Order("id ASC").
		Find(&questions).Error; err != nil {
		return nil, fmt.Errorf("failed to get questions by section: %w", err)
	}
	return questions, nil
}

// CountByFormat counts the questions of a format
func (q *QuestionPostgreSQL) CountByFormat(ctx context.Context, tx *gorm.DB, formatID uint) (int64, error) {
	db := q.getDB(tx)
	var count int64
	if err := db.WithContext(ctx).
		Model(&models.ExamQuestion{}).
		Where("format_id = ?", formatID).
		Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count questions: %w", err)
	}
	return count, nil
}

// DeleteByFormat removes the whole question bank of a format. Used before a
// full regeneration run.
func (q *QuestionPostgreSQL) DeleteByFormat(ctx context.Context, tx *gorm.DB, formatID uint) error {
	db := q.getDB(tx)
	if err := db.WithContext(ctx).
		Where("format_id = ?", formatID).
		Delete(&models.ExamQuestion{}).Error; err != nil {
		return fmt.Errorf("failed to delete questions by format: %w", err)
	}

	cache.SafeInvalidatePattern(ctx, q.cacheManager.Question, fmt.Sprintf("format:%d:*", formatID))
	cache.SafeInvalidatePattern(ctx, q.cacheManager.Question, "id:*")

	return nil
}
