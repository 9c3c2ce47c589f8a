package services

import (
	"context"

	"github.com/studyowl/exam-service/internal/generator"
	"github.com/studyowl/exam-service/internal/models"
	"github.com/studyowl/exam-service/internal/repositories"
	"github.com/studyowl/exam-service/internal/validator"
)

// ===== REQUEST/RESPONSE DTOs =====

// Use business validator types
type CreateFormatRequest = validator.FormatCreateRequest
type UpdateFormatRequest = validator.FormatUpdateRequest
type InferFormatRequest = validator.FormatInferRequest
type GenerateBankRequest = validator.GenerateFullRequest
type GenerateMoreRequest = validator.GenerateBatchRequest
type StartAttemptRequest = validator.AttemptStartRequest
type SubmitAnswerRequest = validator.AnswerSubmitRequest
type MarkAnswerRequest = validator.MarkAnswerRequest
type HintRequest = validator.HintRequest

type FormatResponse struct {
	*models.ExamFormat
	QuestionCount int64 `json:"question_count"`
	CanEdit       bool  `json:"can_edit"`
}

type FormatListResponse struct {
	Formats []*FormatResponse `json:"formats"`
	Total   int64             `json:"total"`
	Limit   int               `json:"limit"`
	Offset  int               `json:"offset"`
}

// ImportPaperRequest carries one uploaded past paper file.
type ImportPaperRequest struct {
	CourseID uint   `json:"course_id" validate:"required"`
	FileName string `json:"file_name"`
	MimeType string `json:"mime_type" validate:"required"`
	Data     []byte `json:"-" validate:"required"`
}

// ImportPaperResponse is the created format plus the questions recovered from
// the paper. Extracted questions are reported for review only; the stored
// bank is always generated.
type ImportPaperResponse struct {
	Format             *FormatResponse               `json:"format"`
	ExtractedQuestions []generator.ExtractedQuestion `json:"extracted_questions"`
	QuestionsTruncated bool                          `json:"questions_truncated"`
}

// GenerationResult summarizes one generation run. Generated below Requested
// with no error means some units were skipped; partial output is success.
type GenerationResult struct {
	FormatID  uint   `json:"format_id"`
	Requested int    `json:"requested"`
	Generated int    `json:"generated"`
	Mode      string `json:"mode"` // "full" or "batch"
}

// AttemptQuestion is the student-facing view of a question: no correct
// option, no mark scheme.
type AttemptQuestion struct {
	ID           uint                `json:"id"`
	SectionID    uint                `json:"section_id"`
	TopicID      *uint               `json:"topic_id,omitempty"`
	QuestionType models.QuestionType `json:"question_type"`
	QuestionText string              `json:"question_text"`
	Dataset      *string             `json:"dataset,omitempty"`
	Options      []string            `json:"options,omitempty"`
	MaxMarks     int                 `json:"max_marks"`
	Depth        int                 `json:"depth"`
}

type AttemptResponse struct {
	*models.ExamAttempt
	Questions []AttemptQuestion `json:"questions,omitempty"`
	CanSubmit bool              `json:"can_submit"`
	Resumed   bool              `json:"resumed,omitempty"`
}

type AttemptListResponse struct {
	Attempts []*models.ExamAttempt `json:"attempts"`
	Total    int64                 `json:"total"`
	Limit    int                   `json:"limit"`
	Offset   int                   `json:"offset"`
}

type HintResponse struct {
	QuestionID     uint   `json:"question_id"`
	Hint           string `json:"hint"`
	HintsUsed      int    `json:"hints_used"`
	HintsRemaining int    `json:"hints_remaining"`
}

type FullAnswerResponse struct {
	QuestionID uint   `json:"question_id"`
	Answer     string `json:"answer"`
}

type TopicReadinessResponse struct {
	Topics []*models.TopicReadiness `json:"topics"`
}

// ===== SERVICE INTERFACES =====

type FormatService interface {
	// Core CRUD operations
	Create(ctx context.Context, req *CreateFormatRequest, creatorID string) (*FormatResponse, error)
	GetByID(ctx context.Context, id uint, userID string) (*FormatResponse, error)
	List(ctx context.Context, filters repositories.FormatFilters, userID string) (*FormatListResponse, error)
	Update(ctx context.Context, id uint, req *UpdateFormatRequest, userID string) (*FormatResponse, error)
	Delete(ctx context.Context, id uint, userID string) error

	// Model-assisted structure discovery
	Infer(ctx context.Context, req *InferFormatRequest, userID string) (*generator.FormatSpec, error)
	ImportFromPaper(ctx context.Context, req *ImportPaperRequest, userID string) (*ImportPaperResponse, error)
}

type GenerationService interface {
	// GenerateBank replaces the format's question bank in full mode.
	GenerateBank(ctx context.Context, formatID uint, userID string) (*GenerationResult, error)
	// GenerateMore appends questions in batch mode.
	GenerateMore(ctx context.Context, req *GenerateMoreRequest, userID string) (*GenerationResult, error)

	ListQuestions(ctx context.Context, formatID uint, userID string) ([]*models.ExamQuestion, error)
}

type AttemptService interface {
	Start(ctx context.Context, req *StartAttemptRequest, userID string) (*AttemptResponse, error)
	GetByID(ctx context.Context, id uint, userID string) (*AttemptResponse, error)
	List(ctx context.Context, userID string, filters repositories.AttemptFilters) (*AttemptListResponse, error)

	// SubmitAnswer saves one answer; practice mode marks it immediately.
	SubmitAnswer(ctx context.Context, attemptID uint, req *SubmitAnswerRequest, userID string) (*models.ExamAttemptAnswer, error)
	// Submit closes the attempt, marking any unmarked answers first.
	Submit(ctx context.Context, attemptID uint, userID string) (*AttemptResponse, error)
}

type MarkingService interface {
	MarkAnswer(ctx context.Context, attemptID uint, req *MarkAnswerRequest, attachments []generator.Attachment, userID string) (*models.ExamAttemptAnswer, error)
	GetHint(ctx context.Context, attemptID uint, req *HintRequest, userID string) (*HintResponse, error)
	GetFullAnswer(ctx context.Context, attemptID, questionID uint, userID string) (*FullAnswerResponse, error)
}

type StudentService interface {
	GetTopicReadiness(ctx context.Context, userID string) (*TopicReadinessResponse, error)
}

type ExportService interface {
	// ExportQuestions renders the format's question bank as an xlsx workbook.
	ExportQuestions(ctx context.Context, formatID uint, userID string) ([]byte, string, error)
}

// ===== SERVICE MANAGER =====

type ServiceManager interface {
	Format() FormatService
	Generation() GenerationService
	Attempt() AttemptService
	Marking() MarkingService
	Student() StudentService
	Export() ExportService

	// Health and lifecycle
	Initialize(ctx context.Context) error
	HealthCheck(ctx context.Context) error
	Shutdown(ctx context.Context) error
}
