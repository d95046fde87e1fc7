package repositories

import (
	"context"

	"github.com/deloaiprivatelimited/exam-engine/internal/models"
	"gorm.io/gorm"
)

// QuestionRepository interface for lookups across the three question stores.
// The engine never mutates question content; authoring happens elsewhere.
type QuestionRepository interface {
	// Single lookups
	GetCodingByID(ctx context.Context, tx *gorm.DB, id uint) (*models.QuestionCoding, error)

	// Batch lookups, keyed by id for answer resolution
	GetMCQsByIDs(ctx context.Context, tx *gorm.DB, ids []uint) (map[uint]*models.QuestionMCQ, error)
	GetRearrangesByIDs(ctx context.Context, tx *gorm.DB, ids []uint) (map[uint]*models.QuestionRearrange, error)
	GetCodingsByIDs(ctx context.Context, tx *gorm.DB, ids []uint) (map[uint]*models.QuestionCoding, error)

	// Test case access
	GetTestCaseGroups(ctx context.Context, tx *gorm.DB, questionID uint) ([]*models.TestCaseGroup, error) // Cases loaded in position order
}
