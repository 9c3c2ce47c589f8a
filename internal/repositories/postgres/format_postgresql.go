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

type FormatPostgreSQL struct {
	db           *gorm.DB
	helpers      *SharedHelpers
	cacheManager *cache.CacheManager
}

func NewFormatPostgreSQL(db *gorm.DB, redisClient *redis.Client) repositories.FormatRepository {
	return &FormatPostgreSQL{
		db:           db,
		helpers:      NewSharedHelpers(db),
		cacheManager: cache.NewCacheManager(redisClient),
	}
}

func (f *FormatPostgreSQL) getDB(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return f.db
}

// Create persists a format with its sections in one insert graph
func (f *FormatPostgreSQL) Create(ctx context.Context, tx *gorm.DB, format *models.ExamFormat) error {
	db := f.getDB(tx)
	for i := range format.Sections {
		format.Sections[i].SortOrder = i
	}
	if err := db.WithContext(ctx).Create(format).Error; err != nil {
		return fmt.Errorf("failed to create format: %w", err)
	}

	cache.SafeInvalidatePattern(ctx, f.cacheManager.Format, fmt.Sprintf("creator:%s:*", format.CreatedBy))
	cache.SafeInvalidatePattern(ctx, f.cacheManager.Format, "list:*")

	return nil
}

// GetByID retrieves a format by ID with caching
func (f *FormatPostgreSQL) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.ExamFormat, error) {
	db := f.getDB(tx)
	cacheKey := fmt.Sprintf("id:%d", id)
	var format models.ExamFormat

	err := f.cacheManager.Format.CacheOrExecute(ctx, cacheKey, &format, cache.FormatCacheConfig.TTL, func() (interface{}, error) {
		var dbFormat models.ExamFormat
		if err := db.WithContext(ctx).First(&dbFormat, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, fmt.Errorf("format not found with ID %d: %w", id, repositories.ErrNotFound)
			}
			return nil, fmt.Errorf("failed to get format: %w", err)
		}
		return &dbFormat, nil
	})

	if err != nil {
		return nil, err
	}

	return &format, nil
}

// GetByIDWithSections retrieves a format with its sections in sort order
func (f *FormatPostgreSQL) GetByIDWithSections(ctx context.Context, tx *gorm.DB, id uint) (*models.ExamFormat, error) {
	db := f.getDB(tx)
	cacheKey := fmt.Sprintf("details:%d", id)
	var format models.ExamFormat

	err := f.cacheManager.Format.CacheOrExecute(ctx, cacheKey, &format, cache.FormatCacheConfig.TTL, func() (interface{}, error) {
		var dbFormat models.ExamFormat
		if err := db.WithContext(ctx).
			Preload("Sections", func(db *gorm.DB) *gorm.DB {
				return db.Order("sort_order ASC")
			}).
			First(&dbFormat, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, fmt.Errorf("format not found with ID %d: %w", id, repositories.ErrNotFound)
			}
			return nil, fmt.Errorf("failed to get format with sections: %w", err)
		}
		return &dbFormat, nil
	})

	if err != nil {
		return nil, err
	}

	return &format, nil
}

// Update updates format metadata (not sections)
func (f *FormatPostgreSQL) Update(ctx context.Context, tx *gorm.DB, format *models.ExamFormat) error {
	db := f.getDB(tx)
	if err := db.WithContext(ctx).Omit("Sections").Save(format).Error; err != nil {
		return fmt.Errorf("failed to update format: %w", err)
	}

	cache.InvalidateFormatCache(ctx, f.cacheManager, format.ID, format.CreatedBy)

	return nil
}

// ReplaceSections swaps all sections of a format. Questions bound to the old
// sections are deleted in the same transaction so section references never
// dangle.
func (f *FormatPostgreSQL) ReplaceSections(ctx context.Context, tx *gorm.DB, formatID uint, sections []models.ExamSection) error {
	db := f.getDB(tx)

	var format models.ExamFormat
	if err := db.WithContext(ctx).Select("id, created_by").First(&format, formatID).Error; err != nil {
		return fmt.Errorf("failed to get format before section replace: %w", err)
	}

	err := db.Transaction(func(tx *gorm.DB) error {
		if err := tx.WithContext(ctx).Where("format_id = ?", formatID).Delete(&models.ExamQuestion{}).Error; err != nil {
			return fmt.Errorf("failed to delete questions of replaced sections: %w", err)
		}
		if err := tx.WithContext(ctx).Where("format_id = ?", formatID).Delete(&models.ExamSection{}).Error; err != nil {
			return fmt.Errorf("failed to delete old sections: %w", err)
		}
		for i := range sections {
			sections[i].ID = 0
			sections[i].FormatID = formatID
			sections[i].SortOrder = i
		}
		if len(sections) > 0 {
			if err := tx.WithContext(ctx).Create(&sections).Error; err != nil {
				return fmt.Errorf("failed to insert new sections: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	cache.InvalidateFormatCache(ctx, f.cacheManager, formatID, format.CreatedBy)

	return nil
}

// GetSections returns the format's sections in sort order
func (f *FormatPostgreSQL) GetSections(ctx context.Context, tx *gorm.DB, formatID uint) ([]models.ExamSection, error) {
	db := f.getDB(tx)
	var sections []models.ExamSection
	if err := db.WithContext(ctx).
		Where("format_id = ?", formatID).
		Order("sort_order ASC").
		Find(&sections).Error; err != nil {
		return nil, fmt.Errorf("failed to get sections: %w", err)
	}
	return sections, nil
}

// Delete removes a format with its sections and questions
func (f *FormatPostgreSQL) Delete(ctx context.Context, tx *gorm.DB, id uint) error {
	db := f.getDB(tx)

	var format models.ExamFormat
	if err := db.WithContext(ctx).Select("id, created_by").First(&format, id).Error; err != nil {
		return fmt.Errorf("failed to get format before delete: %w", err)
	}

	err := db.Transaction(func(tx *gorm.DB) error {
		if err := tx.WithContext(ctx).Where("format_id = ?", id).Delete(&models.ExamQuestion{}).Error; err != nil {
			return fmt.Errorf("failed to delete format questions: %w", err)
		}
		if err := tx.WithContext(ctx).Where("format_id = ?", id).Delete(&models.ExamSection{}).Error; err != nil {
			return fmt.Errorf("failed to delete format sections: %w", err)
		}
		if err := tx.WithContext(ctx).Delete(&models.ExamFormat{}, id).Error; err != nil {
			return fmt.Errorf("failed to delete format: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	cache.InvalidateFormatCache(ctx, f.cacheManager, id, format.CreatedBy)

	return nil
}

// List retrieves formats matching the filters with a total count
func (f *FormatPostgreSQL) List(ctx context.Context, tx *gorm.DB, filters repositories.FormatFilters) ([]*models.ExamFormat, int64, error) {
	db := f.getDB(tx)
	query := db.WithContext(ctx).Model(&models.ExamFormat{})

	if filters.CourseID != nil {
		query = query.Where("course_id = ?", *filters.CourseID)
	}
	if filters.CreatedBy != nil {
		query = query.Where("created_by = ?", *filters.CreatedBy)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count formats: %w", err)
	}

	var formats []*models.ExamFormat
	query = f.helpers.ApplyPaginationAndSort(query, filters.SortBy, filters.SortOrder, filters.Limit, filters.Offset)
	if err := query.Find(&formats).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list formats: %w", err)
	}

	return formats, total, nil
}
