package postgres

import (
	"context"

	"github.com/deloaiprivatelimited/exam-engine/internal/models"
	"github.com/deloaiprivatelimited/exam-engine/internal/repositories"
	"gorm.io/gorm"
)

type QuestionPostgreSQL struct {
	db *gorm.DB
}

func NewQuestionPostgreSQL(db *gorm.DB) repositories.QuestionRepository {
	return &QuestionPostgreSQL{db: db}
}

func (q QuestionPostgreSQL) GetCodingByID(ctx context.Context, tx *gorm.DB, id uint) (*models.QuestionCoding, error) {
	db := q.getDB(tx)
	var question models.QuestionCoding
	if err := db.WithContext(ctx).First(&question, id).Error; err != nil {
		return nil, err
	}

	return &question, nil
}

func (q QuestionPostgreSQL) GetMCQsByIDs(ctx context.Context, tx *gorm.DB, ids []uint) (map[uint]*models.QuestionMCQ, error) {
	questionMap := make(map[uint]*models.QuestionMCQ, len(ids))
	if len(ids) == 0 {
		return questionMap, nil
	}

	db := q.getDB(tx)
	var questions []models.QuestionMCQ
	if err := db.WithContext(ctx).Where("id IN ?", ids).Find(&questions).Error; err != nil {
		return nil, err
	}

	for _, question := range questions {
		qCopy := question
		questionMap[question.ID] = &qCopy
	}

	return questionMap, nil
}

func (q QuestionPostgreSQL) GetRearrangesByIDs(ctx context.Context, tx *gorm.DB, ids []uint) (map[uint]*models.QuestionRearrange, error) {
	questionMap := make(map[uint]*models.QuestionRearrange, len(ids))
	if len(ids) == 0 {
		return questionMap, nil
	}

	db := q.getDB(tx)
	var questions []models.QuestionRearrange
	if err := db.WithContext(ctx).Where("id IN ?", ids).Find(&questions).Error; err != nil {
		return nil, err
	}

	for _, question := range questions {
		qCopy := question
		questionMap[question.ID] = &qCopy
	}

	return questionMap, nil
}

func (q QuestionPostgreSQL) GetCodingsByIDs(ctx context.Context, tx *gorm.DB, ids []uint) (map[uint]*models.QuestionCoding, error) {
	questionMap := make(map[uint]*models.QuestionCoding, len(ids))
	if len(ids) == 0 {
		return questionMap, nil
	}

	db := q.getDB(tx)
	var questions []models.QuestionCoding
	if err := db.WithContext(ctx).Where("id IN ?", ids).Find(&questions).Error; err != nil {
		return nil, err
	}

	for _, question := range questions {
		qCopy := question
		questionMap[question.ID] = &qCopy
	}

	return questionMap, nil
}

func (q QuestionPostgreSQL) GetTestCaseGroups(ctx context.Context, tx *gorm.DB, questionID uint) ([]*models.TestCaseGroup, error) {
	db := q.getDB(tx)
	var groups []*models.TestCaseGroup
	if err := db.WithContext(ctx).
		Where("question_id = ?", questionID).
		Preload("Cases", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC")
		}).
		Order("id ASC").
		Find(&groups).Error; err != nil {
		return nil, err
	}

	return groups, nil
}

func (q QuestionPostgreSQL) getDB(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return q.db
}
