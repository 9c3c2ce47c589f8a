package models

import "time"

type UserRole string

const (
	RoleStudent UserRole = "student"
	RoleTeacher UserRole = "teacher"
	RoleAdmin   UserRole = "admin"
)

// User is a thin identity record. The exam service does not own
// authentication; identity arrives from the surrounding platform.
type User struct {
	ID       string   `json:"id" gorm:"primaryKey;size:255"`
	Username string   `json:"username" gorm:"size:100"`
	Email    string   `json:"email" gorm:"size:255"`
	Role     UserRole `json:"role" gorm:"size:20;default:student"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
