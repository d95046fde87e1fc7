package repositories

import (
	"context"
	"time"

	"github.com/deloaiprivatelimited/exam-engine/internal/models"
	"gorm.io/gorm"
)

// SubmissionRepository interface for judge submission records
type SubmissionRepository interface {
	// Basic CRUD operations
	Create(ctx context.Context, tx *gorm.DB, submission *models.Submission) error
	Update(ctx context.Context, tx *gorm.DB, submission *models.Submission) error

	// Scoped queries; a submission is only ever visible to its owner
	GetByIDsForUserAndQuestion(ctx context.Context, tx *gorm.DB, ids []uint, userID string, questionID uint) ([]*models.Submission, error)
	ListByUserAndQuestion(ctx context.Context, tx *gorm.DB, userID string, questionID uint, limit, offset int) ([]*models.Submission, int64, error)

	// Rate limiting
	CountSince(ctx context.Context, tx *gorm.DB, userID string, questionID uint, since time.Time) (int64, error)
}
