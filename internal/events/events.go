package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const (
	eventSource  = "exam-service"
	eventVersion = "1.0"
)

// Event types published by the exam service.
const (
	TypeFormatCreated      = "format.created"
	TypeFormatUpdated      = "format.updated"
	TypeQuestionsGenerated = "questions.generated"
	TypeQuestionsAppended  = "questions.appended"
	TypeAttemptSubmitted   = "attempt.submitted"
	TypeAnswerMarked       = "answer.marked"
)

// Event is the envelope every published message travels in.
type Event struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Source    string    `json:"source"`
	Version   string    `json:"version"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
}

// NewEvent builds an envelope around payload data.
func NewEvent(eventType string, data any) *Event {
	return &Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		Source:    eventSource,
		Version:   eventVersion,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
}

// EventPublisher delivers events to the platform bus. Publishing is
// best-effort from the caller's point of view: services log failures but do
// not roll back the operation that produced the event.
type EventPublisher interface {
	Publish(ctx context.Context, event *Event) error
	Close() error
}

// QuestionsGeneratedEvent is emitted after a generation run persists its
// question bank.
type QuestionsGeneratedEvent struct {
	FormatID  uint   `json:"format_id"`
	CourseID  uint   `json:"course_id"`
	Requested int    `json:"requested"`
	Generated int    `json:"generated"`
	Mode      string `json:"mode"` // "full" or "batch"
	CreatedBy string `json:"created_by"`
}

// AttemptSubmittedEvent is emitted when a student submits an attempt.
type AttemptSubmittedEvent struct {
	AttemptID  uint     `json:"attempt_id"`
	FormatID   uint     `json:"format_id"`
	UserID     string   `json:"user_id"`
	TotalScore *float64 `json:"total_score,omitempty"`
	MaxScore   *float64 `json:"max_score,omitempty"`
}

// AnswerMarkedEvent is emitted whenever an answer receives a score.
type AnswerMarkedEvent struct {
	AttemptID  uint    `json:"attempt_id"`
	QuestionID uint    `json:"question_id"`
	UserID     string  `json:"user_id"`
	Score      float64 `json:"score"`
	MaxMarks   int     `json:"max_marks"`
}

// FormatEvent is emitted when a format is created or updated.
type FormatEvent struct {
	FormatID  uint   `json:"format_id"`
	CourseID  uint   `json:"course_id"`
	Name      string `json:"name"`
	CreatedBy string `json:"created_by"`
}
