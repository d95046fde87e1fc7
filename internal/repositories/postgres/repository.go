package postgres

import (
	"context"

	"github.com/deloaiprivatelimited/exam-engine/internal/repositories"
	"gorm.io/gorm"
)

type Repository struct {
	db         *gorm.DB
	test       repositories.TestRepository
	question   repositories.QuestionRepository
	attempt    repositories.AttemptRepository
	submission repositories.SubmissionRepository
	student    repositories.StudentRepository
}

func NewRepository(db *gorm.DB) repositories.Repository {
	return &Repository{
		db:         db,
		test:       NewTestPostgreSQL(db),
		question:   NewQuestionPostgreSQL(db),
		attempt:    NewAttemptPostgreSQL(db),
		submission: NewSubmissionPostgreSQL(db),
		student:    NewStudentPostgreSQL(db),
	}
}

func (r *Repository) Test() repositories.TestRepository             { return r.test }
func (r *Repository) Question() repositories.QuestionRepository     { return r.question }
func (r *Repository) Attempt() repositories.AttemptRepository       { return r.attempt }
func (r *Repository) Submission() repositories.SubmissionRepository { return r.submission }
func (r *Repository) Student() repositories.StudentRepository       { return r.student }

func (r *Repository) WithTransaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}
