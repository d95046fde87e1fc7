package postgres

import (
	"context"
	"errors"

	"github.com/deloaiprivatelimited/exam-engine/internal/models"
	"github.com/deloaiprivatelimited/exam-engine/internal/repositories"
	"gorm.io/gorm"
)

type StudentPostgreSQL struct {
	db *gorm.DB
}

func NewStudentPostgreSQL(db *gorm.DB) repositories.StudentRepository {
	return &StudentPostgreSQL{db: db}
}

func (s StudentPostgreSQL) GetByID(ctx context.Context, tx *gorm.DB, id string) (*models.Student, error) {
	db := s.getDB(tx)
	var student models.Student
	if err := db.WithContext(ctx).Where("id = ?", id).First(&student).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	return &student, nil
}

func (s StudentPostgreSQL) GetByIDs(ctx context.Context, tx *gorm.DB, ids []string) (map[string]*models.Student, error) {
	result := make(map[string]*models.Student, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	db := s.getDB(tx)
	var students []*models.Student
	if err := db.WithContext(ctx).Where("id IN ?", ids).Find(&students).Error; err != nil {
		return nil, err
	}

	for _, student := range students {
		result[student.ID] = student
	}
	return result, nil
}

func (s StudentPostgreSQL) SearchIDs(ctx context.Context, tx *gorm.DB, query string) ([]string, error) {
	db := s.getDB(tx)
	pattern := "%" + query + "%"

	var ids []string
	if err := db.WithContext(ctx).
		Model(&models.Student{}).
		Where("name ILIKE ? OR email ILIKE ?", pattern, pattern).
		Pluck("id", &ids).Error; err != nil {
		return nil, err
	}

	return ids, nil
}

func (s StudentPostgreSQL) getDB(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return s.db
}
