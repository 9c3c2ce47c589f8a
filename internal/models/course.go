package models

import "time"

type Course struct {
	ID        uint   `json:"id" gorm:"primaryKey"`
	Name      string `json:"name" gorm:"not null;size:200" validate:"required,max=200"`
	LevelName string `json:"level_name" gorm:"size:100"` // e.g. "A-Level", "GCSE", "IB"
	CreatedBy string `json:"created_by" gorm:"not null;index;size:255"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Subjects []Subject `json:"subjects" gorm:"foreignKey:CourseID"`
}

type Subject struct {
	ID        uint   `json:"id" gorm:"primaryKey"`
	CourseID  uint   `json:"course_id" gorm:"not null;index"`
	Name      string `json:"name" gorm:"not null;size:200" validate:"required,max=200"`
	SortOrder int    `json:"sort_order" gorm:"default:0"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Topics []Topic `json:"topics" gorm:"foreignKey:SubjectID"`
}

type Topic struct {
	ID        uint   `json:"id" gorm:"primaryKey"`
	SubjectID uint   `json:"subject_id" gorm:"not null;index"`
	Name      string `json:"name" gorm:"not null;size:200" validate:"required,max=200"`
	SortOrder int    `json:"sort_order" gorm:"default:0"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Subject Subject `json:"subject" gorm:"foreignKey:SubjectID"`
}

// TopicRef is the flattened view generation works with: a topic plus the
// subject it belongs to, without the full relation graph.
type TopicRef struct {
	ID          uint   `json:"id"`
	Name        string `json:"name"`
	SubjectName string `json:"subject_name,omitempty"`
}
