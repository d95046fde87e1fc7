package repositories

import (
	"context"
	"errors"

	"github.com/deloaiprivatelimited/exam-engine/internal/models"
	"gorm.io/gorm"
)

// ErrStaleVersion is returned by UpdateWithVersion when another writer bumped
// the attempt version first.
var ErrStaleVersion = errors.New("attempt version is stale")

// AttemptRepository interface for student test attempt operations.
// An attempt row doubles as the assignment record, so assignment checks run
// against this store too.
type AttemptRepository interface {
	// Basic CRUD operations
	Create(ctx context.Context, tx *gorm.DB, attempt *models.Attempt) error
	CreateBatch(ctx context.Context, tx *gorm.DB, attempts []*models.Attempt) error
	GetByStudentAndTest(ctx context.Context, tx *gorm.DB, studentID string, testID uint) (*models.Attempt, error) // nil when the student has no row for the test

	// UpdateWithVersion persists the full row guarded by the optimistic
	// version column. On success the caller's struct carries the bumped
	// version; a lost race returns ErrStaleVersion.
	UpdateWithVersion(ctx context.Context, tx *gorm.DB, attempt *models.Attempt) error

	// Assignment queries
	GetAssignedStudentIDs(ctx context.Context, tx *gorm.DB, testID uint) ([]string, error)

	// Results queries
	ListByTest(ctx context.Context, tx *gorm.DB, testID uint, filters ResultFilters) ([]*models.Attempt, int64, error)
	GetTabSwitchStats(ctx context.Context, tx *gorm.DB, testID uint) (*TabSwitchStats, error)
}
