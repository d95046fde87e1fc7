package models

import (
	"time"

	"gorm.io/datatypes"
)

type QuestionType string

const (
	QuestionTypeMCQ       QuestionType = "mcq"
	QuestionTypeCoding    QuestionType = "coding"
	QuestionTypeRearrange QuestionType = "rearrange"
)

type Test struct {
	ID          uint    `json:"id" gorm:"primaryKey"`
	Name        string  `json:"name" gorm:"not null;size:200;index" validate:"required,min=1,max=200"`
	Description *string `json:"description" gorm:"type:text" validate:"omitempty,max=2000"`

	// Rich text shown to the student before starting
	Instructions *string `json:"instructions" gorm:"type:text"`
	Notes        *string `json:"notes" gorm:"type:text"`

	// Availability window
	StartTime time.Time `json:"start_time" gorm:"not null;index" validate:"required"`
	EndTime   time.Time `json:"end_time" gorm:"not null;index" validate:"required,gtfield=StartTime"`

	DurationSeconds int `json:"duration_seconds" gorm:"default:10800" validate:"min=0"` // Whole-test timer

	Tags datatypes.JSON `json:"tags" gorm:"type:jsonb"` // []string

	// Metadata
	CreatedBy string    `json:"created_by" gorm:"size:100;index"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Version control
	Version int `json:"version" gorm:"default:1"`

	// Relations
	Sections []Section `json:"sections" gorm:"foreignKey:TestID"`

	// Computed fields (not stored)
	TotalSections int `json:"total_sections" gorm:"-"`
	AssignedCount int `json:"assigned_count" gorm:"-"`
}

type Section struct {
	ID     uint `json:"id" gorm:"primaryKey"`
	TestID uint `json:"test_id" gorm:"not null;index"`

	Name         string  `json:"name" gorm:"not null;size:200" validate:"required,min=1,max=200"`
	Description  *string `json:"description" gorm:"type:text"`
	Instructions *string `json:"instructions" gorm:"type:text"`

	// Timed sections run their own countdown; open sections share the test timer
	TimeRestricted bool `json:"time_restricted" gorm:"default:false;index"`
	Duration       int  `json:"duration" gorm:"default:0" validate:"min=0"` // Minutes
	Position       int  `json:"position" gorm:"default:0"`

	ShuffleQuestions bool `json:"shuffle_questions" gorm:"default:false"`
	ShuffleOptions   bool `json:"shuffle_options" gorm:"default:false"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Relations
	Questions []SectionQuestion `json:"questions" gorm:"foreignKey:SectionID"`
}

// SectionQuestion is a typed reference to a row in one of the three question
// tables; QuestionID resolves against the table named by QuestionType.
type SectionQuestion struct {
	ID        uint `json:"id" gorm:"primaryKey"`
	SectionID uint `json:"section_id" gorm:"not null;index"`

	QuestionType QuestionType `json:"question_type" gorm:"not null" validate:"required,oneof=mcq coding rearrange"`
	QuestionID   uint         `json:"question_id" gorm:"not null;index"`
	Position     int          `json:"position" gorm:"default:0"`
}

func (Test) TableName() string {
	return "tests"
}

func (Section) TableName() string {
	return "sections"
}
