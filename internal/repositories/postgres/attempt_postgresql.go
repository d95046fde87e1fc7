package postgres

import (
	"context"
	"errors"

	"github.com/deloaiprivatelimited/exam-engine/internal/models"
	"github.com/deloaiprivatelimited/exam-engine/internal/repositories"
	"gorm.io/gorm"
)

// resultSortColumns whitelists client sort keys for result listings.
var resultSortColumns = map[string]string{
	"submitted_at":  "submitted_at",
	"last_autosave": "last_autosave",
	"total_marks":   "total_marks",
}

// resultSortColumn maps a client sort key to a column, falling back to
// submitted_at for anything not whitelisted.
func resultSortColumn(sortBy string) string {
	if column, ok := resultSortColumns[sortBy]; ok {
		return column
	}
	return "submitted_at"
}

type AttemptPostgreSQL struct {
	db      *gorm.DB
	helpers *SharedHelpers
}

func NewAttemptPostgreSQL(db *gorm.DB) repositories.AttemptRepository {
	return &AttemptPostgreSQL{
		db:      db,
		helpers: NewSharedHelpers(db),
	}
}

func (a AttemptPostgreSQL) Create(ctx context.Context, tx *gorm.DB, attempt *models.Attempt) error {
	db := a.getDB(tx)
	return db.WithContext(ctx).Create(attempt).Error
}

func (a AttemptPostgreSQL) CreateBatch(ctx context.Context, tx *gorm.DB, attempts []*models.Attempt) error {
	if len(attempts) == 0 {
		return nil
	}

	db := a.getDB(tx)
	return db.WithContext(ctx).Create(&attempts).Error
}

func (a AttemptPostgreSQL) GetByStudentAndTest(ctx context.Context, tx *gorm.DB, studentID string, testID uint) (*models.Attempt, error) {
	db := a.getDB(tx)
	var attempt models.Attempt
	if err := db.WithContext(ctx).
		Where("student_id = ? AND test_id = ?", studentID, testID).
		First(&attempt).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	return &attempt, nil
}

// UpdateWithVersion writes every column of the row (including zero values,
// which a plain struct Updates would skip) guarded by the version the caller
// read. Zero rows affected means the guard failed.
func (a AttemptPostgreSQL) UpdateWithVersion(ctx context.Context, tx *gorm.DB, attempt *models.Attempt) error {
	db := a.getDB(tx)

	next := *attempt
	next.Version = attempt.Version + 1

	result := db.WithContext(ctx).Model(&models.Attempt{}).
		Where("id = ? AND version = ?", attempt.ID, attempt.Version).
		Select("*").Omit("id", "created_at").
		Updates(&next)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return repositories.ErrStaleVersion
	}

	*attempt = next
	return nil
}

func (a AttemptPostgreSQL) GetAssignedStudentIDs(ctx context.Context, tx *gorm.DB, testID uint) ([]string, error) {
	db := a.getDB(tx)
	var ids []string
	if err := db.WithContext(ctx).
		Model(&models.Attempt{}).
		Where("test_id = ?", testID).
		Pluck("student_id", &ids).Error; err != nil {
		return nil, err
	}

	return ids, nil
}

func (a AttemptPostgreSQL) ListByTest(ctx context.Context, tx *gorm.DB, testID uint, filters repositories.ResultFilters) ([]*models.Attempt, int64, error) {
	db := a.getDB(tx)
	var attempts []*models.Attempt
	var total int64

	// apply filter first
	query := db.WithContext(ctx).Model(&models.Attempt{}).Where("test_id = ?", testID)
	if filters.Submitted != nil {
		query = query.Where("submitted = ?", *filters.Submitted)
	}
	if len(filters.StudentIDs) > 0 {
		query = query.Where("student_id IN ?", filters.StudentIDs)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	// then apply pagination and sorting
	query = a.helpers.ApplyPaginationAndSort(query, resultSortColumn(filters.SortBy), filters.SortOrder, filters.Limit, filters.Offset)

	if err := query.Find(&attempts).Error; err != nil {
		return nil, 0, err
	}

	return attempts, total, nil
}

func (a AttemptPostgreSQL) GetTabSwitchStats(ctx context.Context, tx *gorm.DB, testID uint) (*repositories.TabSwitchStats, error) {
	db := a.getDB(tx)

	var stats repositories.TabSwitchStats
	err := db.WithContext(ctx).
		Model(&models.Attempt{}).
		Select(`COUNT(*) AS attempt_count,
			COALESCE(SUM(tab_switches_count), 0) AS total_tab_switches,
			COALESCE(MAX(tab_switches_count), 0) AS max_tab_switches,
			COALESCE(SUM(CASE WHEN tab_switches_count > 0 THEN 1 ELSE 0 END), 0) AS attempts_with_tab_switches`).
		Where("test_id = ?", testID).
		Scan(&stats).Error
	if err != nil {
		return nil, err
	}

	return &stats, nil
}

func (a AttemptPostgreSQL) getDB(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return a.db
}
