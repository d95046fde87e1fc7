package events

import (
	"time"

	"github.com/deloaiprivatelimited/exam-engine/internal/models"
	"github.com/google/uuid"
)

// EventType represents different types of exam lifecycle events
type EventType string

const (
	// Attempt events
	EventAttemptSubmitted     EventType = "attempt.submitted"
	EventAttemptAutoSubmitted EventType = "attempt.auto_submitted"

	// Judge events
	EventSubmissionGraded EventType = "submission.graded"
)

// Forced submission reasons carried by attempt.auto_submitted events.
const (
	ReasonTabSwitchLimit      = "tab_switch_limit"
	ReasonFullscreenViolation = "fullscreen_violation"
)

// ExamEvent is the base event structure for all exam lifecycle events
type ExamEvent struct {
	ID        string                 `json:"id"`
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Source    string                 `json:"source"`
	Version   string                 `json:"version"`
	Data      interface{}            `json:"data"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// Attempt event payloads

type AttemptSubmittedEvent struct {
	AttemptID   uint      `json:"attempt_id"`
	TestID      uint      `json:"test_id"`
	StudentID   string    `json:"student_id"`
	SubmittedAt time.Time `json:"submitted_at"`
	TotalMarks  float64   `json:"total_marks"`
	MaxMarks    float64   `json:"max_marks"`
}

type AttemptAutoSubmittedEvent struct {
	AttemptID   uint      `json:"attempt_id"`
	TestID      uint      `json:"test_id"`
	StudentID   string    `json:"student_id"`
	SubmittedAt time.Time `json:"submitted_at"`
	Reason      string    `json:"reason"` // "tab_switch_limit" or "fullscreen_violation"
	TabSwitches int       `json:"tab_switches"`
	TotalMarks  float64   `json:"total_marks"`
	MaxMarks    float64   `json:"max_marks"`
}

// Judge event payload

type SubmissionGradedEvent struct {
	SubmissionID uint      `json:"submission_id"`
	QuestionID   uint      `json:"question_id"`
	UserID       string    `json:"user_id"`
	TestID       *uint     `json:"test_id,omitempty"`
	Verdict      string    `json:"verdict"`
	TotalScore   int       `json:"total_score"`
	MaxScore     int       `json:"max_score"`
	GradedAt     time.Time `json:"graded_at"`
}

// Event factory functions

func NewAttemptSubmittedEvent(attempt *models.Attempt) *ExamEvent {
	return &ExamEvent{
		ID:        generateEventID(),
		Type:      EventAttemptSubmitted,
		Timestamp: time.Now(),
		Source:    "exam-engine",
		Version:   "1.0",
		Data: AttemptSubmittedEvent{
			AttemptID:   attempt.ID,
			TestID:      attempt.TestID,
			StudentID:   attempt.StudentID,
			SubmittedAt: submittedAtOrNow(attempt),
			TotalMarks:  attempt.TotalMarks,
			MaxMarks:    attempt.MaxMarks,
		},
	}
}

func NewAttemptAutoSubmittedEvent(attempt *models.Attempt, reason string) *ExamEvent {
	return &ExamEvent{
		ID:        generateEventID(),
		Type:      EventAttemptAutoSubmitted,
		Timestamp: time.Now(),
		Source:    "exam-engine",
		Version:   "1.0",
		Data: AttemptAutoSubmittedEvent{
			AttemptID:   attempt.ID,
			TestID:      attempt.TestID,
			StudentID:   attempt.StudentID,
			SubmittedAt: submittedAtOrNow(attempt),
			Reason:      reason,
			TabSwitches: attempt.TabSwitchesCount,
			TotalMarks:  attempt.TotalMarks,
			MaxMarks:    attempt.MaxMarks,
		},
	}
}

func NewSubmissionGradedEvent(submission *models.Submission) *ExamEvent {
	return &ExamEvent{
		ID:        generateEventID(),
		Type:      EventSubmissionGraded,
		Timestamp: time.Now(),
		Source:    "exam-engine",
		Version:   "1.0",
		Data: SubmissionGradedEvent{
			SubmissionID: submission.ID,
			QuestionID:   submission.QuestionID,
			UserID:       submission.UserID,
			TestID:       submission.TestID,
			Verdict:      string(submission.Verdict),
			TotalScore:   submission.TotalScore,
			MaxScore:     submission.MaxScore,
			GradedAt:     time.Now(),
		},
	}
}

func submittedAtOrNow(attempt *models.Attempt) time.Time {
	if attempt.SubmittedAt != nil {
		return *attempt.SubmittedAt
	}
	return time.Now()
}

func generateEventID() string {
	return uuid.NewString()
}
