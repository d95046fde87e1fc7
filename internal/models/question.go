package models

import (
	"time"

	"gorm.io/datatypes"
)

type DifficultyLevel string

const (
	DifficultyEasy   DifficultyLevel = "easy"
	DifficultyMedium DifficultyLevel = "medium"
	DifficultyHard   DifficultyLevel = "hard"
)

// Element shapes of the question JSONB columns.
type MCQOption struct {
	OptionID string `json:"option_id"`
	Value    string `json:"value"`
}

type RearrangeItem struct {
	ItemID string `json:"item_id"`
	Value  string `json:"value"`
}

type SampleIO struct {
	InputText   string `json:"input_text"`
	Output      string `json:"output"`
	Explanation string `json:"explanation,omitempty"`
}

type QuestionMCQ struct {
	ID           uint   `json:"id" gorm:"primaryKey"`
	Title        string `json:"title" gorm:"not null;size:300" validate:"required,min=1,max=300"`
	QuestionText string `json:"question_text" gorm:"type:text;not null" validate:"required"`

	Options        datatypes.JSON `json:"options" gorm:"type:jsonb;not null"`         // []MCQOption
	CorrectOptions datatypes.JSON `json:"correct_options" gorm:"type:jsonb;not null"` // []string (option ids)
	IsMultiple     bool           `json:"is_multiple" gorm:"default:false"`

	Marks         float64 `json:"marks" gorm:"default:1" validate:"min=0"`
	NegativeMarks float64 `json:"negative_marks" gorm:"default:0" validate:"min=0"`

	DifficultyLevel DifficultyLevel `json:"difficulty_level" gorm:"default:medium" validate:"omitempty,oneof=easy medium hard"`
	Explanation     *string         `json:"explanation" gorm:"type:text"`
	Tags            datatypes.JSON  `json:"tags" gorm:"type:jsonb"`       // []string
	TimeLimit       int             `json:"time_limit" gorm:"default:60"` // Seconds
	Topic           *string         `json:"topic" gorm:"size:120"`
	Subtopic        *string         `json:"subtopic" gorm:"size:120"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type QuestionRearrange struct {
	ID     uint   `json:"id" gorm:"primaryKey"`
	Title  string `json:"title" gorm:"not null;size:300" validate:"required,min=1,max=300"`
	Prompt string `json:"prompt" gorm:"type:text"`

	Items         datatypes.JSON `json:"items" gorm:"type:jsonb;not null"`         // []RearrangeItem
	CorrectOrder  datatypes.JSON `json:"correct_order" gorm:"type:jsonb;not null"` // []string (item ids)
	IsDragAndDrop bool           `json:"is_drag_and_drop" gorm:"default:true"`

	Marks         float64 `json:"marks" gorm:"default:1" validate:"min=0"`
	NegativeMarks float64 `json:"negative_marks" gorm:"default:0" validate:"min=0"`

	DifficultyLevel DifficultyLevel `json:"difficulty_level" gorm:"default:medium" validate:"omitempty,oneof=easy medium hard"`
	Explanation     *string         `json:"explanation" gorm:"type:text"`
	Tags            datatypes.JSON  `json:"tags" gorm:"type:jsonb"` // []string

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type QuestionCoding struct {
	ID    uint   `json:"id" gorm:"primaryKey"`
	Title string `json:"title" gorm:"not null;size:300" validate:"required,min=1,max=300"`

	ShortDescription        *string `json:"short_description" gorm:"type:text"`
	LongDescriptionMarkdown *string `json:"long_description_markdown" gorm:"type:text"`

	SampleIO               datatypes.JSON `json:"sample_io" gorm:"type:jsonb"`               // []SampleIO
	AllowedLanguages       datatypes.JSON `json:"allowed_languages" gorm:"type:jsonb"`       // []string
	PredefinedBoilerplates datatypes.JSON `json:"predefined_boilerplates" gorm:"type:jsonb"` // map[language]source
	SolutionCode           datatypes.JSON `json:"-" gorm:"type:jsonb"`                       // map[language]source, never exposed

	ShowSolution     bool `json:"show_solution" gorm:"default:false"`
	ShowBoilerplates bool `json:"show_boilerplates" gorm:"default:true"`

	RunCodeEnabled    bool `json:"run_code_enabled" gorm:"default:true"`
	SubmissionEnabled bool `json:"submission_enabled" gorm:"default:true"`
	Published         bool `json:"published" gorm:"default:false;index"`

	Points        int `json:"points" gorm:"default:100" validate:"min=0"`
	TimeLimitMs   int `json:"time_limit_ms" gorm:"default:2000" validate:"min=0"`
	MemoryLimitKb int `json:"memory_limit_kb" gorm:"default:65536" validate:"min=0"`

	// Attempt policy
	MaxAttemptsPerMinute  int `json:"max_attempts_per_minute" gorm:"default:6" validate:"min=0"`
	SubmissionCooldownSec int `json:"submission_cooldown_sec" gorm:"default:2" validate:"min=0"`

	DifficultyLevel DifficultyLevel `json:"difficulty_level" gorm:"default:medium" validate:"omitempty,oneof=easy medium hard"`
	Tags            datatypes.JSON  `json:"tags" gorm:"type:jsonb"` // []string
	Topic           *string         `json:"topic" gorm:"size:120"`
	Subtopic        *string         `json:"subtopic" gorm:"size:120"`

	// Metadata
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Version control
	Version int `json:"version" gorm:"default:1"`

	// Relations
	TestCaseGroups []TestCaseGroup `json:"testcase_groups" gorm:"foreignKey:QuestionID"`
}

type GroupVisibility string

const (
	VisibilityPublic GroupVisibility = "public"
	VisibilityHidden GroupVisibility = "hidden"
)

type ScoringStrategy string

const (
	ScoringBinary  ScoringStrategy = "binary"
	ScoringPartial ScoringStrategy = "partial"
)

type TestCaseGroup struct {
	ID         uint   `json:"id" gorm:"primaryKey"`
	QuestionID uint   `json:"question_id" gorm:"not null;index"` // denormalized link to the owning coding question
	Name       string `json:"name" gorm:"not null;size:100" validate:"required"`

	Weight          int             `json:"weight" gorm:"default:0" validate:"min=0"`
	Visibility      GroupVisibility `json:"visibility" gorm:"default:hidden" validate:"omitempty,oneof=public hidden"`
	ScoringStrategy ScoringStrategy `json:"scoring_strategy" gorm:"default:binary" validate:"omitempty,oneof=binary partial"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Relations
	Cases []TestCase `json:"cases" gorm:"foreignKey:GroupID"`
}

type TestCase struct {
	ID      uint `json:"id" gorm:"primaryKey"`
	GroupID uint `json:"group_id" gorm:"not null;index"`

	InputText      string `json:"input_text" gorm:"type:text;not null"`
	ExpectedOutput string `json:"expected_output" gorm:"type:text;not null"`

	// Per-case overrides; zero means "use the question default"
	TimeLimitMs   int `json:"time_limit_ms" gorm:"default:0" validate:"min=0"`
	MemoryLimitKb int `json:"memory_limit_kb" gorm:"default:0" validate:"min=0"`

	Position int `json:"position" gorm:"default:0"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (QuestionMCQ) TableName() string {
	return "questions_mcq"
}

func (QuestionRearrange) TableName() string {
	return "questions_rearrange"
}

func (QuestionCoding) TableName() string {
	return "questions_coding"
}

func (TestCaseGroup) TableName() string {
	return "testcase_groups"
}

func (TestCase) TableName() string {
	return "testcases"
}
