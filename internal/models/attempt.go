package models

import (
	"time"

	"gorm.io/datatypes"
)

// Attempt is one student's full working record for one test. The row doubles
// as the assignment: a student counts as assigned to a test exactly when
// their attempt row exists. Rows are never deleted once submitted.
type Attempt struct {
	ID        uint   `json:"id" gorm:"primaryKey"`
	StudentID string `json:"student_id" gorm:"not null;size:100;uniqueIndex:idx_attempts_student_test"` // identity subject
	TestID    uint   `json:"test_id" gorm:"not null;uniqueIndex:idx_attempts_student_test"`

	StartTime *time.Time `json:"start_time"`

	TimedSectionAnswers datatypes.JSON `json:"timed_section_answers" gorm:"type:jsonb"` // []SectionAnswers
	OpenSectionAnswers  datatypes.JSON `json:"open_section_answers" gorm:"type:jsonb"`  // []SectionAnswers

	TotalMarks float64 `json:"total_marks" gorm:"default:0"`
	MaxMarks   float64 `json:"max_marks" gorm:"default:0"`

	// Proctoring counters
	TabSwitchesCount   int  `json:"tab_switches_count" gorm:"default:0"`
	FullscreenViolated bool `json:"fullscreen_violated" gorm:"default:false"`

	Submitted   bool       `json:"submitted" gorm:"default:false;index"`
	SubmittedAt *time.Time `json:"submitted_at"`

	LastAutosave *time.Time `json:"last_autosave"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Version control
	Version int `json:"version" gorm:"default:1"`
}

func (Attempt) TableName() string {
	return "student_test_attempts"
}

// ===== ATTEMPT JSONB DOCUMENTS =====

// SectionAnswers groups answers under the section the student saw.
// SectionID keeps the raw client key so that sections the live structure no
// longer knows about are preserved rather than dropped; name and duration are
// denormalized at save time and not re-fetched later.
type SectionAnswers struct {
	SectionID       string  `json:"section_id"`
	SectionName     string  `json:"section_name"`
	SectionDuration int     `json:"section_duration"` // Minutes
	MaxMarks        float64 `json:"max_marks"`
	TotalMarks      float64 `json:"total_marks"`

	Answers []Answer `json:"answers"` // unique per question_id
}

// AnswerValue is the canonical stored container for every answer type:
// option ids for MCQ, item ids in student order for rearrange, submission
// ids for coding.
type AnswerValue struct {
	Value []string `json:"value"`
}

// Answer is a tagged union over the three question types: exactly one
// snapshot field is set, matching QuestionType.
type Answer struct {
	QuestionID   string       `json:"question_id"`
	QuestionType QuestionType `json:"question_type"`

	Value AnswerValue `json:"value"`

	SnapshotMCQ       *MCQSnapshot       `json:"snapshot_mcq,omitempty"`
	SnapshotCoding    *CodingSnapshot    `json:"snapshot_coding,omitempty"`
	SnapshotRearrange *RearrangeSnapshot `json:"snapshot_rearrange,omitempty"`

	MarksObtained *float64 `json:"marks_obtained"` // nil until gradable
}

// SnapshotMarks returns the maximum marks recorded on whichever snapshot is set.
func (a *Answer) SnapshotMarks() float64 {
	switch {
	case a.SnapshotMCQ != nil:
		return a.SnapshotMCQ.Marks
	case a.SnapshotCoding != nil:
		return a.SnapshotCoding.Marks
	case a.SnapshotRearrange != nil:
		return a.SnapshotRearrange.Marks
	}
	return 0
}

// ===== QUESTION SNAPSHOTS =====
//
// Snapshots freeze everything needed to redisplay and grade an answer at the
// moment it was saved. Grading reads only from snapshots, so later edits to
// a question cannot retroactively change recorded history.

type MCQSnapshot struct {
	QuestionID   string `json:"question_id"`
	Title        string `json:"title"`
	QuestionText string `json:"question_text"`

	Options        []MCQOption `json:"options"`
	CorrectOptions []string    `json:"correct_options"`
	IsMultiple     bool        `json:"is_multiple"`

	Marks         float64 `json:"marks"`
	NegativeMarks float64 `json:"negative_marks"`
	Explanation   string  `json:"explanation,omitempty"`
}

type RearrangeSnapshot struct {
	QuestionID string `json:"question_id"`
	Title      string `json:"title"`
	Prompt     string `json:"prompt"`

	Items         []RearrangeItem `json:"items"`
	CorrectOrder  []string        `json:"correct_order"`
	IsDragAndDrop bool            `json:"is_drag_and_drop"`

	Marks         float64 `json:"marks"`
	NegativeMarks float64 `json:"negative_marks"`
	Explanation   string  `json:"explanation,omitempty"`
}

type CodingSnapshot struct {
	QuestionID              string `json:"question_id"`
	Title                   string `json:"title"`
	ShortDescription        string `json:"short_description,omitempty"`
	LongDescriptionMarkdown string `json:"long_description_markdown,omitempty"`

	SampleIO               []SampleIO        `json:"sample_io"`
	AllowedLanguages       []string          `json:"allowed_languages"`
	PredefinedBoilerplates map[string]string `json:"predefined_boilerplates"`

	RunCodeEnabled    bool `json:"run_code_enabled"`
	SubmissionEnabled bool `json:"submission_enabled"`

	Marks float64 `json:"marks"` // question points at snapshot time
}
