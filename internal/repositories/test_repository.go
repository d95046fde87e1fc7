package repositories

import (
	"context"

	"github.com/deloaiprivatelimited/exam-engine/internal/models"
	"gorm.io/gorm"
)

// TestRepository interface for test structure lookups.
// Tests and sections are authored by the content platform; the attempt engine
// only reads them, so no mutation methods are exposed here.
type TestRepository interface {
	// Basic lookups
	GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Test, error)
	GetByIDWithStructure(ctx context.Context, tx *gorm.DB, id uint) (*models.Test, error) // Include sections and their question references
	Exists(ctx context.Context, tx *gorm.DB, id uint) (bool, error)

	// Section lookups
	GetSectionByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Section, error) // nil when no such section exists
}
