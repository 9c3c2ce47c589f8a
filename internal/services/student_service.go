package services

import (
	"context"
	"fmt"
	"log/slog"

	"gorm.io/gorm"

	"github.com/studyowl/exam-service/internal/repositories"
)

type studentService struct {
	repo   repositories.Repository
	db     *gorm.DB
	logger *slog.Logger
}

func NewStudentService(repo repositories.Repository, db *gorm.DB, logger *slog.Logger) StudentService {
	return &studentService{repo: repo, db: db, logger: logger}
}

// GetTopicReadiness aggregates the student's marked answers into a per-topic
// readiness score. Readiness is derived on read and never stored.
func (s *studentService) GetTopicReadiness(ctx context.Context, userID string) (*TopicReadinessResponse, error) {
	topics, err := s.repo.Answer().GetTopicReadiness(ctx, s.db, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate topic readiness: %w", err)
	}

	s.logger.Debug("Topic readiness computed", "user_id", userID, "topics", len(topics))
	return &TopicReadinessResponse{Topics: topics}, nil
}
