package models

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

// MarkCriterion is a single rubric line of a question's mark scheme. The sum
// of criterion marks should equal the question's MaxMarks but this is not
// structurally enforced; the marking engine clamps instead.
type MarkCriterion struct {
	Label       string  `json:"label"`
	Description *string `json:"description,omitempty"`
	Marks       int     `json:"marks"`
}

// ExamQuestion is a generated practice question. Questions are immutable once
// created: full regeneration deletes the bank, batch generation appends.
type ExamQuestion struct {
	ID       uint `json:"id" gorm:"primaryKey"`
	FormatID uint `json:"format_id" gorm:"not null;index"`
	// SectionID must reference a section belonging to the same FormatID.
	SectionID uint  `json:"section_id" gorm:"not null;index"`
	TopicID   *uint `json:"topic_id" gorm:"index"`

	QuestionText string  `json:"question_text" gorm:"type:text;not null"`
	Dataset      *string `json:"dataset" gorm:"type:text"`

	// MCQ only: exactly 4 options, CorrectOptionIndex in [0, 4).
	Options            datatypes.JSON `json:"options" gorm:"type:jsonb"` // []string
	CorrectOptionIndex *int           `json:"correct_option_index"`

	MaxMarks   int            `json:"max_marks" gorm:"not null;default:1"`
	MarkScheme datatypes.JSON `json:"mark_scheme" gorm:"type:jsonb"` // []MarkCriterion
	Depth      int            `json:"depth" gorm:"default:1"`        // difficulty 1-5

	CreatedAt time.Time `json:"created_at"`

	Format  ExamFormat  `json:"-" gorm:"foreignKey:FormatID"`
	Section ExamSection `json:"-" gorm:"foreignKey:SectionID"`
	Topic   *Topic      `json:"-" gorm:"foreignKey:TopicID"`
}

// OptionList decodes the JSONB options column. A nil or malformed column
// decodes to nil rather than erroring; callers treat that as "not MCQ".
func (q *ExamQuestion) OptionList() []string {
	if len(q.Options) == 0 {
		return nil
	}
	var options []string
	if err := json.Unmarshal(q.Options, &options); err != nil {
		return nil
	}
	return options
}

// Criteria decodes the JSONB mark scheme column.
func (q *ExamQuestion) Criteria() []MarkCriterion {
	if len(q.MarkScheme) == 0 {
		return nil
	}
	var scheme []MarkCriterion
	if err := json.Unmarshal(q.MarkScheme, &scheme); err != nil {
		return nil
	}
	return scheme
}

func (q *ExamQuestion) IsMCQ() bool {
	return q.CorrectOptionIndex != nil && len(q.OptionList()) > 0
}
