package postgres

import (
	"context"
	"time"

	"github.com/deloaiprivatelimited/exam-engine/internal/models"
	"github.com/deloaiprivatelimited/exam-engine/internal/repositories"
	"gorm.io/gorm"
)

type SubmissionPostgreSQL struct {
	db      *gorm.DB
	helpers *SharedHelpers
}

func NewSubmissionPostgreSQL(db *gorm.DB) repositories.SubmissionRepository {
	return &SubmissionPostgreSQL{
		db:      db,
		helpers: NewSharedHelpers(db),
	}
}

func (s SubmissionPostgreSQL) Create(ctx context.Context, tx *gorm.DB, submission *models.Submission) error {
	db := s.getDB(tx)
	return db.WithContext(ctx).Create(submission).Error
}

func (s SubmissionPostgreSQL) Update(ctx context.Context, tx *gorm.DB, submission *models.Submission) error {
	db := s.getDB(tx)
	return db.WithContext(ctx).Save(submission).Error
}

func (s SubmissionPostgreSQL) GetByIDsForUserAndQuestion(ctx context.Context, tx *gorm.DB, ids []uint, userID string, questionID uint) ([]*models.Submission, error) {
	if len(ids) == 0 {
		return []*models.Submission{}, nil
	}

	db := s.getDB(tx)
	var submissions []*models.Submission
	if err := db.WithContext(ctx).
		Where("id IN ? AND user_id = ? AND question_id = ?", ids, userID, questionID).
		Find(&submissions).Error; err != nil {
		return nil, err
	}

	return submissions, nil
}

func (s SubmissionPostgreSQL) ListByUserAndQuestion(ctx context.Context, tx *gorm.DB, userID string, questionID uint, limit, offset int) ([]*models.Submission, int64, error) {
	db := s.getDB(tx)
	var submissions []*models.Submission
	var total int64

	query := db.WithContext(ctx).Model(&models.Submission{}).
		Where("user_id = ? AND question_id = ?", userID, questionID)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	// newest first
	query = s.helpers.ApplyPaginationAndSort(query, "created_at", "desc", limit, offset)

	if err := query.Find(&submissions).Error; err != nil {
		return nil, 0, err
	}

	return submissions, total, nil
}

func (s SubmissionPostgreSQL) CountSince(ctx context.Context, tx *gorm.DB, userID string, questionID uint, since time.Time) (int64, error) {
	db := s.getDB(tx)
	var count int64
	if err := db.WithContext(ctx).
		Model(&models.Submission{}).
		Where("user_id = ? AND question_id = ? AND created_at > ?", userID, questionID, since).
		Count(&count).Error; err != nil {
		return 0, err
	}

	return count, nil
}

func (s SubmissionPostgreSQL) getDB(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return s.db
}
