package models

import "time"

type AttemptMode string

const (
	ModePractice AttemptMode = "practice"
	ModeExam     AttemptMode = "exam"
)

// ExamAttempt is one sitting of a format's question bank. Practice mode marks
// each answer as it is submitted; exam mode defers all marking to submission.
type ExamAttempt struct {
	ID       uint        `json:"id" gorm:"primaryKey"`
	UserID   string      `json:"user_id" gorm:"not null;index;size:255"`
	FormatID uint        `json:"format_id" gorm:"not null;index"`
	Mode     AttemptMode `json:"mode" gorm:"not null;size:20;default:practice"`

	StartedAt   time.Time  `json:"started_at"`
	SubmittedAt *time.Time `json:"submitted_at"`
	TotalScore  *float64   `json:"total_score"`
	MaxScore    *int       `json:"max_score"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Format  ExamFormat         `json:"-" gorm:"foreignKey:FormatID"`
	Answers []ExamAttemptAnswer `json:"answers,omitempty" gorm:"foreignKey:AttemptID"`
}

func (a *ExamAttempt) IsSubmitted() bool {
	return a.SubmittedAt != nil
}

// ExamAttemptAnswer is the student's answer to one question within an
// attempt, keyed by (attempt_id, question_id) with upsert semantics: the
// student may revise an answer or take hints before it is marked.
type ExamAttemptAnswer struct {
	ID         uint `json:"id" gorm:"primaryKey"`
	AttemptID  uint `json:"attempt_id" gorm:"not null;uniqueIndex:idx_attempt_question"`
	QuestionID uint `json:"question_id" gorm:"not null;uniqueIndex:idx_attempt_question"`

	AnswerText          *string `json:"answer_text" gorm:"type:text"`
	SelectedOptionIndex *int    `json:"selected_option_index"` // MCQ only
	HintsUsed           int     `json:"hints_used" gorm:"default:0"`

	// MarkedAt nil means unmarked.
	Score    *float64   `json:"score"`
	Feedback *string    `json:"feedback" gorm:"type:text"`
	MarkedAt *time.Time `json:"marked_at"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Attempt  ExamAttempt  `json:"-" gorm:"foreignKey:AttemptID"`
	Question ExamQuestion `json:"-" gorm:"foreignKey:QuestionID"`
}

func (a *ExamAttemptAnswer) IsMarked() bool {
	return a.MarkedAt != nil
}
