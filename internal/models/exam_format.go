package models

import "time"

type QuestionType string

const (
	MCQ          QuestionType = "mcq"
	ShortAnswer  QuestionType = "short_answer"
	LongAnswer   QuestionType = "long_answer"
	DataAnalysis QuestionType = "data_analysis"
	Calculation  QuestionType = "calculation"
)

// QuestionTypes is the closed set a section may carry. Sanitization maps
// everything else onto one of these.
var QuestionTypes = []QuestionType{MCQ, ShortAnswer, LongAnswer, DataAnalysis, Calculation}

func IsValidQuestionType(t QuestionType) bool {
	for _, qt := range QuestionTypes {
		if t == qt {
			return true
		}
	}
	return false
}

// ExamFormat describes the structure of an exam paper: its sections, their
// question types and mark allocations. Formats are created by inference from
// an exam name, by manual entry, or by importing a past paper.
type ExamFormat struct {
	ID           uint    `json:"id" gorm:"primaryKey"`
	CourseID     uint    `json:"course_id" gorm:"not null;index"`
	Name         string  `json:"name" gorm:"not null;size:200" validate:"required,max=200"`
	Description  *string `json:"description" gorm:"type:text"`
	TotalMarks   *int    `json:"total_marks"`
	TimeMinutes  *int    `json:"time_minutes"`
	Instructions *string `json:"instructions" gorm:"type:text"`
	CreatedBy    string  `json:"created_by" gorm:"not null;index;size:255"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Sections []ExamSection `json:"sections" gorm:"foreignKey:FormatID"`
}

// ExamSection is one block of an exam format. Sections are replaced wholesale
// (delete + reinsert) when a format is edited; questions referencing removed
// sections are cascade-deleted in the same transaction so a question's
// section_id can never dangle.
type ExamSection struct {
	ID               uint         `json:"id" gorm:"primaryKey"`
	FormatID         uint         `json:"format_id" gorm:"not null;index"`
	Name             string       `json:"name" gorm:"not null;size:200"`
	QuestionType     QuestionType `json:"question_type" gorm:"not null;size:30"`
	NumQuestions     int          `json:"num_questions" gorm:"not null"`
	MarksPerQuestion *int         `json:"marks_per_question"`
	TotalMarks       *int         `json:"total_marks"`
	Instructions     *string      `json:"instructions" gorm:"type:text"`
	SortOrder        int          `json:"sort_order" gorm:"default:0"`

	CreatedAt time.Time `json:"created_at"`
}

// DefaultMarks returns the per-question mark value for this section, falling
// back to TotalMarks/NumQuestions and finally to 1.
func (s *ExamSection) DefaultMarks() int {
	if s.MarksPerQuestion != nil && *s.MarksPerQuestion > 0 {
		return *s.MarksPerQuestion
	}
	if s.TotalMarks != nil && s.NumQuestions > 0 {
		if m := *s.TotalMarks / s.NumQuestions; m > 0 {
			return m
		}
	}
	return 1
}
