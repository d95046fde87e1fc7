package models

import (
	"time"

	"gorm.io/datatypes"
)

type Verdict string

const (
	VerdictPending     Verdict = "Pending"
	VerdictAccepted    Verdict = "Accepted"
	VerdictPartial     Verdict = "Partial"
	VerdictWrongAnswer Verdict = "Wrong Answer"
)

// JudgeStatus is the minimal status object returned by the execution service.
type JudgeStatus struct {
	ID          int    `json:"id"`
	Description string `json:"description"`
}

// SubmissionCaseResult is the element shape of Submission.CaseResults.
// TestcaseID is an internal reference and is stripped from API projections.
type SubmissionCaseResult struct {
	TestcaseID uint   `json:"testcase_id"`
	GroupID    uint   `json:"group_id"`
	JudgeToken string `json:"judge_token,omitempty"`

	Status        JudgeStatus `json:"status"`
	Stdout        string      `json:"stdout,omitempty"`
	Stderr        string      `json:"stderr,omitempty"`
	CompileOutput string      `json:"compile_output,omitempty"`
	Time          float64     `json:"time,omitempty"`   // Seconds
	Memory        int         `json:"memory,omitempty"` // KB

	PointsAwarded int `json:"points_awarded"`
	MaxPoints     int `json:"max_points"`
}

// Submission is one code-execution attempt against a coding question.
// Append-only: once the verdict is finalized the row is never re-graded.
type Submission struct {
	ID         uint   `json:"id" gorm:"primaryKey"`
	QuestionID uint   `json:"question_id" gorm:"not null;index"`
	UserID     string `json:"user_id" gorm:"not null;size:100;index"` // identity subject from the bearer token
	TestID     *uint  `json:"test_id" gorm:"index"`                   // set when submitted from inside a test attempt

	Language   string `json:"language" gorm:"not null;size:40" validate:"required"`
	SourceCode string `json:"source_code" gorm:"type:text;not null" validate:"required"`

	TotalScore int     `json:"total_score" gorm:"default:0"`
	MaxScore   int     `json:"max_score" gorm:"default:0"`
	Verdict    Verdict `json:"verdict" gorm:"default:Pending"`

	CaseResults datatypes.JSON `json:"case_results" gorm:"type:jsonb"` // []SubmissionCaseResult

	AttemptNumber int       `json:"attempt_number" gorm:"default:1"`
	CreatedAt     time.Time `json:"created_at" gorm:"index"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func (Submission) TableName() string {
	return "submissions"
}
