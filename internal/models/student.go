package models

import (
	"time"

	"gorm.io/gorm"
)

// Student is a read model over the identity platform's student directory,
// synced in by the enrollment pipeline. The engine never writes these rows;
// they exist to put a name and an email next to attempt data in
// faculty-facing listings and exports. ID carries the identity subject, the
// same value stored on Attempt.StudentID and Submission.UserID.
type Student struct {
	ID    string `json:"id" gorm:"primaryKey;size:100"`
	Name  string `json:"name" gorm:"not null;size:100"`
	Email string `json:"email" gorm:"uniqueIndex;not null;size:255"`

	IsActive bool `json:"is_active" gorm:"default:true"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`
}

func (Student) TableName() string {
	return "students"
}
