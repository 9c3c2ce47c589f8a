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

type CoursePostgreSQL struct {
	db           *gorm.DB
	cacheManager *cache.CacheManager
}

func NewCoursePostgreSQL(db *gorm.DB, redisClient *redis.Client) repositories.CourseRepository {
	return &CoursePostgreSQL{
		db:           db,
		cacheManager: cache.NewCacheManager(redisClient),
	}
}

func (c *CoursePostgreSQL) getDB(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return c.db
}

// GetByID retrieves a course by ID
func (c *CoursePostgreSQL) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Course, error) {
	db := c.getDB(tx)
	var course models.Course
	if err := db.WithContext(ctx).First(&course, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("course not found with ID %d: %w", id, repositories.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get course: %w", err)
	}
	return &course, nil
}

// GetTopicRefs returns the course's topics flattened with subject names,
// ordered by subject and topic sort order. Generation round-robins over this
// list, so the order matters.
func (c *CoursePostgreSQL) GetTopicRefs(ctx context.Context, tx *gorm.DB, courseID uint) ([]models.TopicRef, error) {
	db := c.getDB(tx)
	cacheKey := fmt.Sprintf("course:%d:topics", courseID)
	var topics []models.TopicRef

	err := c.cacheManager.Fast.CacheOrExecute(ctx, cacheKey, &topics, cache.FastCacheConfig.TTL, func() (interface{}, error) {
		var rows []models.TopicRef
		err := db.WithContext(ctx).Raw(`
			SELECT t.id, t.name, s.name AS subject_name
			FROM topics t
			JOIN subjects s ON s.id = t.subject_id
			WHERE s.course_id = ?
			ORDER BY s.sort_order ASC, t.sort_order ASC, t.id ASC
		`, courseID).Scan(&rows).Error
		if err != nil {
			return nil, fmt.Errorf("failed to get course topics: %w", err)
		}
		return rows, nil
	})

	if err != nil {
		return nil, err
	}

	return topics, nil
}
