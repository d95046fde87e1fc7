package repositories

import (
	"context"

	"github.com/deloaiprivatelimited/exam-engine/internal/models"
	"gorm.io/gorm"
)

// StudentRepository interface for student directory lookups.
// The engine is not the owner of student data; the directory is synced in by
// the enrollment pipeline and only ever read here.
type StudentRepository interface {
	// Basic read operations
	GetByID(ctx context.Context, tx *gorm.DB, id string) (*models.Student, error) // nil when the directory has no row
	GetByIDs(ctx context.Context, tx *gorm.DB, ids []string) (map[string]*models.Student, error)

	// SearchIDs matches name or email case-insensitively and returns ids
	// only, for narrowing attempt queries.
	SearchIDs(ctx context.Context, tx *gorm.DB, query string) ([]string, error)
}
