package repositories

import (
	"context"

	"github.com/studyowl/exam-service/internal/models"
	"gorm.io/gorm"
)

// ===== SHARED FILTER STRUCTS =====

type FormatFilters struct {
	CourseID  *uint   `json:"course_id"`
	CreatedBy *string `json:"created_by"`
	Limit     int     `json:"limit"`
	Offset    int     `json:"offset"`
	SortBy    string  `json:"sort_by"`    // "created_at", "name"
	SortOrder string  `json:"sort_order"` // "asc", "desc"
}

type AttemptFilters struct {
	FormatID  *uint  `json:"format_id"`
	Submitted *bool  `json:"submitted"`
	Limit     int    `json:"limit"`
	Offset    int    `json:"offset"`
	SortBy    string `json:"sort_by"`
	SortOrder string `json:"sort_order"`
}

// FormatRepository owns exam formats and their sections.
type FormatRepository interface {
	// Create persists the format together with its sections.
	Create(ctx context.Context, tx *gorm.DB, format *models.ExamFormat) error
	GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.ExamFormat, error)
	GetByIDWithSections(ctx context.Context, tx *gorm.DB, id uint) (*models.ExamFormat, error)
	Update(ctx context.Context, tx *gorm.DB, format *models.ExamFormat) error
	Delete(ctx context.Context, tx *gorm.DB, id uint) error

	// ReplaceSections swaps the format's sections wholesale and deletes
	// questions that referenced the removed sections, in one transaction.
	ReplaceSections(ctx context.Context, tx *gorm.DB, formatID uint, sections []models.ExamSection) error
	GetSections(ctx context.Context, tx *gorm.DB, formatID uint) ([]models.ExamSection, error)

	List(ctx context.Context, tx *gorm.DB, filters FormatFilters) ([]*models.ExamFormat, int64, error)
}

// QuestionRepository owns the generated question bank. Questions are written
// in batches and never updated individually.
type QuestionRepository interface {
	CreateBatch(ctx context.Context, tx *gorm.DB, questions []*models.ExamQuestion) error
	GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.ExamQuestion, error)
	GetByFormat(ctx context.Context, tx *gorm.DB, formatID uint) ([]*models.ExamQuestion, error)
	GetBySection(ctx context.Context, tx *gorm.DB, sectionID uint) ([]*models.ExamQuestion, error)
	CountByFormat(ctx context.Context, tx *gorm.DB, formatID uint) (int64, error)
	DeleteByFormat(ctx context.Context, tx *gorm.DB, formatID uint) error
}

// AttemptRepository owns exam attempts.
type AttemptRepository interface {
	Create(ctx context.Context, tx *gorm.DB, attempt *models.ExamAttempt) error
	GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.ExamAttempt, error)
	GetByIDWithAnswers(ctx context.Context, tx *gorm.DB, id uint) (*models.ExamAttempt, error)
	Update(ctx context.Context, tx *gorm.DB, attempt *models.ExamAttempt) error
	ListByUser(ctx context.Context, tx *gorm.DB, userID string, filters AttemptFilters) ([]*models.ExamAttempt, int64, error)

	// GetActive returns the user's unsubmitted attempt for a format, or nil.
	GetActive(ctx context.Context, tx *gorm.DB, userID string, formatID uint) (*models.ExamAttempt, error)
}

// AnswerRepository owns per-question answers within attempts.
type AnswerRepository interface {
	// Upsert inserts or updates the answer keyed by (attempt_id, question_id).
	Upsert(ctx context.Context, tx *gorm.DB, answer *models.ExamAttemptAnswer) error
	GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.ExamAttemptAnswer, error)
	GetByAttempt(ctx context.Context, tx *gorm.DB, attemptID uint) ([]*models.ExamAttemptAnswer, error)
	GetByAttemptAndQuestion(ctx context.Context, tx *gorm.DB, attemptID, questionID uint) (*models.ExamAttemptAnswer, error)

	// GetTopicReadiness aggregates the user's marked answers per topic.
	GetTopicReadiness(ctx context.Context, tx *gorm.DB, userID string) ([]*models.TopicReadiness, error)
}

// CourseRepository reads curriculum data.
type CourseRepository interface {
	GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Course, error)
	// GetTopicRefs returns all topics of a course flattened with their
	// subject names, ordered by subject and topic sort order.
	GetTopicRefs(ctx context.Context, tx *gorm.DB, courseID uint) ([]models.TopicRef, error)
}

// UserRepository reads and mirrors platform identities.
type UserRepository interface {
	GetByID(ctx context.Context, tx *gorm.DB, id string) (*models.User, error)
	Upsert(ctx context.Context, tx *gorm.DB, user *models.User) error
}
