package services

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"gorm.io/gorm"

	"github.com/deloaiprivatelimited/exam-engine/internal/models"
	"github.com/deloaiprivatelimited/exam-engine/internal/repositories"
	"github.com/deloaiprivatelimited/exam-engine/internal/utils"
)

// Shared repository mocks for the service tests in this package.

type MockTestRepository struct {
	mock.Mock
}

func (m *MockTestRepository) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Test, error) {
	args := m.Called(ctx, tx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Test), args.Error(1)
}

func (m *MockTestRepository) GetByIDWithStructure(ctx context.Context, tx *gorm.DB, id uint) (*models.Test, error) {
	args := m.Called(ctx, tx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Test), args.Error(1)
}

func (m *MockTestRepository) Exists(ctx context.Context, tx *gorm.DB, id uint) (bool, error) {
	args := m.Called(ctx, tx, id)
	return args.Bool(0), args.Error(1)
}

func (m *MockTestRepository) GetSectionByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Section, error) {
	args := m.Called(ctx, tx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Section), args.Error(1)
}

type MockQuestionRepository struct {
	mock.Mock
}

func (m *MockQuestionRepository) GetCodingByID(ctx context.Context, tx *gorm.DB, id uint) (*models.QuestionCoding, error) {
	args := m.Called(ctx, tx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.QuestionCoding), args.Error(1)
}

func (m *MockQuestionRepository) GetMCQsByIDs(ctx context.Context, tx *gorm.DB, ids []uint) (map[uint]*models.QuestionMCQ, error) {
	args := m.Called(ctx, tx, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[uint]*models.QuestionMCQ), args.Error(1)
}

func (m *MockQuestionRepository) GetRearrangesByIDs(ctx context.Context, tx *gorm.DB, ids []uint) (map[uint]*models.QuestionRearrange, error) {
	args := m.Called(ctx, tx, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[uint]*models.QuestionRearrange), args.Error(1)
}

func (m *MockQuestionRepository) GetCodingsByIDs(ctx context.Context, tx *gorm.DB, ids []uint) (map[uint]*models.QuestionCoding, error) {
	args := m.Called(ctx, tx, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[uint]*models.QuestionCoding), args.Error(1)
}

func (m *MockQuestionRepository) GetTestCaseGroups(ctx context.Context, tx *gorm.DB, questionID uint) ([]*models.TestCaseGroup, error) {
	args := m.Called(ctx, tx, questionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.TestCaseGroup), args.Error(1)
}

type MockAttemptRepository struct {
	mock.Mock
}

func (m *MockAttemptRepository) Create(ctx context.Context, tx *gorm.DB, attempt *models.Attempt) error {
	args := m.Called(ctx, tx, attempt)
	return args.Error(0)
}

func (m *MockAttemptRepository) CreateBatch(ctx context.Context, tx *gorm.DB, attempts []*models.Attempt) error {
	args := m.Called(ctx, tx, attempts)
	return args.Error(0)
}

func (m *MockAttemptRepository) GetByStudentAndTest(ctx context.Context, tx *gorm.DB, studentID string, testID uint) (*models.Attempt, error) {
	args := m.Called(ctx, tx, studentID, testID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Attempt), args.Error(1)
}

func (m *MockAttemptRepository) UpdateWithVersion(ctx context.Context, tx *gorm.DB, attempt *models.Attempt) error {
	args := m.Called(ctx, tx, attempt)
	return args.Error(0)
}

func (m *MockAttemptRepository) GetAssignedStudentIDs(ctx context.Context, tx *gorm.DB, testID uint) ([]string, error) {
	args := m.Called(ctx, tx, testID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockAttemptRepository) ListByTest(ctx context.Context, tx *gorm.DB, testID uint, filters repositories.ResultFilters) ([]*models.Attempt, int64, error) {
	args := m.Called(ctx, tx, testID, filters)
	if args.Get(0) == nil {
		return nil, args.Get(1).(int64), args.Error(2)
	}
	return args.Get(0).([]*models.Attempt), args.Get(1).(int64), args.Error(2)
}

func (m *MockAttemptRepository) GetTabSwitchStats(ctx context.Context, tx *gorm.DB, testID uint) (*repositories.TabSwitchStats, error) {
	args := m.Called(ctx, tx, testID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*repositories.TabSwitchStats), args.Error(1)
}

type MockSubmissionRepository struct {
	mock.Mock
}

func (m *MockSubmissionRepository) Create(ctx context.Context, tx *gorm.DB, submission *models.Submission) error {
	args := m.Called(ctx, tx, submission)
	return args.Error(0)
}

func (m *MockSubmissionRepository) Update(ctx context.Context, tx *gorm.DB, submission *models.Submission) error {
	args := m.Called(ctx, tx, submission)
	return args.Error(0)
}

func (m *MockSubmissionRepository) GetByIDsForUserAndQuestion(ctx context.Context, tx *gorm.DB, ids []uint, userID string, questionID uint) ([]*models.Submission, error) {
	args := m.Called(ctx, tx, ids, userID, questionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Submission), args.Error(1)
}

func (m *MockSubmissionRepository) ListByUserAndQuestion(ctx context.Context, tx *gorm.DB, userID string, questionID uint, limit, offset int) ([]*models.Submission, int64, error) {
	args := m.Called(ctx, tx, userID, questionID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Get(1).(int64), args.Error(2)
	}
	return args.Get(0).([]*models.Submission), args.Get(1).(int64), args.Error(2)
}

func (m *MockSubmissionRepository) CountSince(ctx context.Context, tx *gorm.DB, userID string, questionID uint, since time.Time) (int64, error) {
	args := m.Called(ctx, tx, userID, questionID, since)
	return args.Get(0).(int64), args.Error(1)
}

type MockStudentRepository struct {
	mock.Mock
}

func (m *MockStudentRepository) GetByID(ctx context.Context, tx *gorm.DB, id string) (*models.Student, error) {
	args := m.Called(ctx, tx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Student), args.Error(1)
}

func (m *MockStudentRepository) GetByIDs(ctx context.Context, tx *gorm.DB, ids []string) (map[string]*models.Student, error) {
	args := m.Called(ctx, tx, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]*models.Student), args.Error(1)
}

func (m *MockStudentRepository) SearchIDs(ctx context.Context, tx *gorm.DB, query string) ([]string, error) {
	args := m.Called(ctx, tx, query)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

// MockRepository bundles the entity mocks; WithTransaction runs the closure
// inline so transactional paths stay testable without a database.
type MockRepository struct {
	test       *MockTestRepository
	question   *MockQuestionRepository
	attempt    *MockAttemptRepository
	submission *MockSubmissionRepository
	student    *MockStudentRepository
}

func newMockRepository() *MockRepository {
	return &MockRepository{
		test:       &MockTestRepository{},
		question:   &MockQuestionRepository{},
		attempt:    &MockAttemptRepository{},
		submission: &MockSubmissionRepository{},
		student:    &MockStudentRepository{},
	}
}

func (m *MockRepository) Test() repositories.TestRepository             { return m.test }
func (m *MockRepository) Question() repositories.QuestionRepository     { return m.question }
func (m *MockRepository) Attempt() repositories.AttemptRepository       { return m.attempt }
func (m *MockRepository) Submission() repositories.SubmissionRepository { return m.submission }
func (m *MockRepository) Student() repositories.StudentRepository       { return m.student }

func (m *MockRepository) WithTransaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

func (m *MockRepository) assertExpectations(t *testing.T) {
	t.Helper()
	m.test.AssertExpectations(t)
	m.question.AssertExpectations(t)
	m.attempt.AssertExpectations(t)
	m.submission.AssertExpectations(t)
	m.student.AssertExpectations(t)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testValidator() *utils.Validator {
	return utils.NewValidator()
}
