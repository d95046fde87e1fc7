package repositories

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

// ===== SHARED FILTER STRUCTS =====

// ResultFilters narrows and orders faculty-facing result listings.
type ResultFilters struct {
	Submitted  *bool    `json:"submitted"`
	StudentIDs []string `json:"student_ids"` // restrict to these students (directory search hits)
	Limit      int      `json:"limit"`
	Offset     int      `json:"offset"`
	SortBy     string   `json:"sort_by"`    // "submitted_at", "last_autosave", "total_marks"
	SortOrder  string   `json:"sort_order"` // "asc", "desc"
}

// ===== AGGREGATE STRUCTS =====

// TabSwitchStats is the per-test proctoring aggregate behind the results
// listing's tabs summary block.
type TabSwitchStats struct {
	AttemptCount            int64 `json:"attempt_count"`
	TotalTabSwitches        int64 `json:"total_tab_switches"`
	MaxTabSwitches          int   `json:"max_tab_switches"`
	AttemptsWithTabSwitches int64 `json:"attempts_with_tab_switches"`
}

// ===== AGGREGATE ACCESS =====

// Repository bundles the per-entity repositories behind a single dependency
// so services take one constructor argument.
type Repository interface {
	Test() TestRepository
	Question() QuestionRepository
	Attempt() AttemptRepository
	Submission() SubmissionRepository
	Student() StudentRepository

	// WithTransaction runs fn inside one database transaction. The tx handle
	// is joined by every repository call that receives it.
	WithTransaction(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// IsNotFoundError reports whether err is the driver's empty-result error.
func IsNotFoundError(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
