package validator

import (
	"github.com/studyowl/exam-service/internal/models"
)

// SectionRequest describes one section when creating or replacing a format's
// structure
type SectionRequest struct {
	Name             string              `json:"name" validate:"required,max=200"`
	QuestionType     models.QuestionType `json:"question_type" validate:"required,question_type"`
	NumQuestions     int                 `json:"num_questions" validate:"required,question_count"`
	MarksPerQuestion *int                `json:"marks_per_question" validate:"omitempty,marks_range"`
	Instructions     *string             `json:"instructions" validate:"omitempty,max=2000"`
}

// FormatCreateRequest represents the request structure for creating formats
type FormatCreateRequest struct {
	CourseID     uint             `json:"course_id" validate:"required"`
	Name         string           `json:"name" validate:"required,format_name"`
	Description  *string          `json:"description" validate:"omitempty,max=2000"`
	TotalMarks   *int             `json:"total_marks" validate:"omitempty,min=1,max=1000"`
	TimeMinutes  *int             `json:"time_minutes" validate:"omitempty,min=5,max=600"`
	Instructions *string          `json:"instructions" validate:"omitempty,max=5000"`
	Sections     []SectionRequest `json:"sections" validate:"required,min=1,max=20,dive"`
}

// FormatUpdateRequest represents the request structure for updating formats.
// Sections, when present, replace the existing sections wholesale.
type FormatUpdateRequest struct {
	Name         *string          `json:"name" validate:"omitempty,format_name"`
	Description  *string          `json:"description" validate:"omitempty,max=2000"`
	TotalMarks   *int             `json:"total_marks" validate:"omitempty,min=1,max=1000"`
	TimeMinutes  *int             `json:"time_minutes" validate:"omitempty,min=5,max=600"`
	Instructions *string          `json:"instructions" validate:"omitempty,max=5000"`
	Sections     []SectionRequest `json:"sections" validate:"omitempty,min=1,max=20,dive"`
}

// FormatInferRequest asks the model to propose a structure from an exam name
type FormatInferRequest struct {
	CourseID uint   `json:"course_id" validate:"required"`
	ExamName string `json:"exam_name" validate:"required,max=200"`
}

// GenerateFullRequest regenerates the complete question bank of a format
type GenerateFullRequest struct {
	FormatID uint `json:"format_id" validate:"required"`
}

// GenerateBatchRequest appends questions to an existing bank
type GenerateBatchRequest struct {
	FormatID   uint `json:"format_id" validate:"required"`
	Count      int  `json:"count" validate:"required,batch_count"`
	Difficulty int  `json:"difficulty" validate:"omitempty,difficulty_level"`
}

// AttemptStartRequest begins a new attempt on a format
type AttemptStartRequest struct {
	FormatID uint               `json:"format_id" validate:"required"`
	Mode     models.AttemptMode `json:"mode" validate:"omitempty,attempt_mode"`
}

// AnswerSubmitRequest saves (and in practice mode marks) one answer
type AnswerSubmitRequest struct {
	QuestionID          uint    `json:"question_id" validate:"required"`
	AnswerText          *string `json:"answer_text" validate:"omitempty,max=20000"`
	SelectedOptionIndex *int    `json:"selected_option_index" validate:"omitempty,min=0,max=3"`
}

// MarkAnswerRequest marks one saved answer, optionally with a rubric override
type MarkAnswerRequest struct {
	QuestionID     uint    `json:"question_id" validate:"required"`
	RubricOverride *string `json:"rubric_override" validate:"omitempty,max=5000"`
}

// HintRequest asks for the next Socratic hint on a question
type HintRequest struct {
	QuestionID uint `json:"question_id" validate:"required"`
}
