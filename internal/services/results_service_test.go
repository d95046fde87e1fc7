package services

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"

	"github.com/deloaiprivatelimited/exam-engine/internal/cache"
	"github.com/deloaiprivatelimited/exam-engine/internal/models"
	"github.com/deloaiprivatelimited/exam-engine/internal/repositories"
)

// ===== FIXTURES =====

// fakeCache is an in-memory CacheService for exercising the summary cache.
type fakeCache struct {
	entries map[string][]byte
	sets    int
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: map[string][]byte{}}
}

func (f *fakeCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	f.entries[key] = raw
	f.sets++
	return nil
}

func (f *fakeCache) Get(ctx context.Context, key string, dest interface{}) error {
	raw, ok := f.entries[key]
	if !ok {
		return cache.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (f *fakeCache) Delete(ctx context.Context, key string) error {
	delete(f.entries, key)
	return nil
}

func (f *fakeCache) DeletePattern(ctx context.Context, pattern string) error {
	return nil
}

func newTestResultsService(repo *MockRepository, cacheService cache.CacheService) ResultsService {
	return NewResultsService(repo, cacheService, testLogger(), testValidator())
}

func fixtureResultAttempt(id uint, studentID string, tabs int, total float64) *models.Attempt {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	return &models.Attempt{
		ID:               id,
		StudentID:        studentID,
		TestID:           1,
		TotalMarks:       total,
		MaxMarks:         100,
		Submitted:        true,
		SubmittedAt:      &now,
		LastAutosave:     &now,
		TabSwitchesCount: tabs,
	}
}

func fixtureStudent(id, name, email string) *models.Student {
	return &models.Student{ID: id, Name: name, Email: email, IsActive: true}
}

func fixtureTabStats() *repositories.TabSwitchStats {
	return &repositories.TabSwitchStats{
		AttemptCount:            4,
		TotalTabSwitches:        6,
		MaxTabSwitches:          3,
		AttemptsWithTabSwitches: 2,
	}
}

// fixtureGradedAttempt stores one open section holding a graded MCQ answer
// and a coding answer referencing submissions 1 and 2.
func fixtureGradedAttempt(t *testing.T) *models.Attempt {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	sections := []models.SectionAnswers{
		{
			SectionID:   "11",
			SectionName: "General",
			MaxMarks:    110,
			TotalMarks:  85,
			Answers: []models.Answer{
				{
					QuestionID:   "101",
					QuestionType: models.QuestionTypeMCQ,
					Value:        models.AnswerValue{Value: []string{"A"}},
					SnapshotMCQ: &models.MCQSnapshot{
						QuestionID:     "101",
						Title:          "Capitals",
						CorrectOptions: []string{"A"},
						Marks:          10,
					},
					MarksObtained: f64(10),
				},
				{
					QuestionID:   "301",
					QuestionType: models.QuestionTypeCoding,
					Value:        models.AnswerValue{Value: []string{"1", "2"}},
					SnapshotCoding: &models.CodingSnapshot{
						QuestionID: "301",
						Title:      "Two Sum",
						Marks:      100,
					},
					MarksObtained: f64(75),
				},
			},
		},
	}

	attempt := fixtureResultAttempt(7, "s-1", 2, 85)
	attempt.MaxMarks = 110
	attempt.SubmittedAt = &now
	attempt.TimedSectionAnswers = mustJSON(t, []models.SectionAnswers{})
	attempt.OpenSectionAnswers = mustJSON(t, sections)
	return attempt
}

// ===== LISTING =====

func TestListTestResults_EnrichesStudentsAndSummarizesTabs(t *testing.T) {
	repo := newMockRepository()
	attempts := []*models.Attempt{
		fixtureResultAttempt(7, "s-1", 2, 85),
		fixtureResultAttempt(8, "s-2", 0, 40),
	}

	repo.test.On("GetByID", mock.Anything, mock.Anything, uint(1)).Return(fixtureTest(), nil)
	repo.attempt.On("ListByTest", mock.Anything, mock.Anything, uint(1), mock.MatchedBy(func(f repositories.ResultFilters) bool {
		return f.Limit == 50 && f.Offset == 0 && f.SortOrder == "desc" && len(f.StudentIDs) == 0
	})).Return(attempts, int64(2), nil)
	// s-2 has no directory row; its result keeps the bare id.
	repo.student.On("GetByIDs", mock.Anything, mock.Anything, []string{"s-1", "s-2"}).
		Return(map[string]*models.Student{"s-1": fixtureStudent("s-1", "Asha", "asha@example.com")}, nil)
	repo.attempt.On("GetTabSwitchStats", mock.Anything, mock.Anything, uint(1)).Return(fixtureTabStats(), nil)

	svc := newTestResultsService(repo, nil)
	resp, err := svc.ListTestResults(context.Background(), 1, &ResultsQuery{})
	require.NoError(t, err)

	require.NotNil(t, resp.Test)
	assert.Equal(t, "Midterm", resp.Test.Name)
	assert.Equal(t, int64(2), resp.Total)
	assert.Equal(t, 50, resp.Limit)

	require.Len(t, resp.Results, 2)
	require.NotNil(t, resp.Results[0].Student)
	assert.Equal(t, "Asha", resp.Results[0].Student.Name)
	assert.Equal(t, "asha@example.com", resp.Results[0].Student.Email)
	assert.Nil(t, resp.Results[1].Student)
	assert.Equal(t, 2, resp.Results[0].TabSwitchCount)

	require.NotNil(t, resp.TabsSummary)
	assert.Equal(t, 6, resp.TabsSummary.TotalTabSwitches)
	assert.InDelta(t, 1.5, resp.TabsSummary.AvgTabSwitchesPerAttempt, 1e-9)
	assert.Equal(t, 3, resp.TabsSummary.MaxTabSwitches)
	assert.Equal(t, 2, resp.TabsSummary.AttemptsWithTabSwitches)
	assert.InDelta(t, 50.0, resp.TabsSummary.AttemptsWithTabSwitchesPercent, 1e-9)

	repo.assertExpectations(t)
}

func TestListTestResults_SearchNarrowsByDirectoryMatches(t *testing.T) {
	repo := newMockRepository()

	repo.test.On("GetByID", mock.Anything, mock.Anything, uint(1)).Return(fixtureTest(), nil)
	repo.student.On("SearchIDs", mock.Anything, mock.Anything, "asha").Return([]string{"s-1"}, nil)
	repo.attempt.On("ListByTest", mock.Anything, mock.Anything, uint(1), mock.MatchedBy(func(f repositories.ResultFilters) bool {
		return len(f.StudentIDs) == 1 && f.StudentIDs[0] == "s-1"
	})).Return([]*models.Attempt{fixtureResultAttempt(7, "s-1", 0, 85)}, int64(1), nil)
	repo.student.On("GetByIDs", mock.Anything, mock.Anything, []string{"s-1"}).
		Return(map[string]*models.Student{"s-1": fixtureStudent("s-1", "Asha", "asha@example.com")}, nil)
	repo.attempt.On("GetTabSwitchStats", mock.Anything, mock.Anything, uint(1)).Return(fixtureTabStats(), nil)

	svc := newTestResultsService(repo, nil)
	resp, err := svc.ListTestResults(context.Background(), 1, &ResultsQuery{Search: "asha"})
	require.NoError(t, err)

	require.Len(t, resp.Results, 1)
	assert.Equal(t, "s-1", resp.Results[0].StudentID)
	repo.assertExpectations(t)
}

func TestListTestResults_SearchWithoutMatchesShortCircuits(t *testing.T) {
	repo := newMockRepository()

	repo.test.On("GetByID", mock.Anything, mock.Anything, uint(1)).Return(fixtureTest(), nil)
	repo.student.On("SearchIDs", mock.Anything, mock.Anything, "nobody").Return([]string{}, nil)

	svc := newTestResultsService(repo, nil)
	resp, err := svc.ListTestResults(context.Background(), 1, &ResultsQuery{Search: "nobody"})
	require.NoError(t, err)

	assert.Empty(t, resp.Results)
	assert.Equal(t, int64(0), resp.Total)
	assert.NotNil(t, resp.Test)
	// No attempt listing, no summary block.
	assert.Nil(t, resp.TabsSummary)
	repo.assertExpectations(t)
}

func TestListTestResults_UnknownTest(t *testing.T) {
	repo := newMockRepository()
	repo.test.On("GetByID", mock.Anything, mock.Anything, uint(9)).Return(nil, gorm.ErrRecordNotFound)

	svc := newTestResultsService(repo, nil)
	_, err := svc.ListTestResults(context.Background(), 9, nil)

	assert.ErrorIs(t, err, ErrTestNotFound)
	assert.True(t, IsNotFound(err))
	repo.assertExpectations(t)
}

func TestListTestResults_RejectsBadQuery(t *testing.T) {
	svc := newTestResultsService(newMockRepository(), nil)

	_, err := svc.ListTestResults(context.Background(), 1, &ResultsQuery{Limit: 5000})
	assert.True(t, IsValidation(err), "oversized limit should fail validation, got %v", err)

	_, err = svc.ListTestResults(context.Background(), 1, &ResultsQuery{SortOrder: "sideways"})
	assert.True(t, IsValidation(err), "unknown sort order should fail validation, got %v", err)
}

func TestListTestResults_UnknownSortKeyFallsThrough(t *testing.T) {
	repo := newMockRepository()

	repo.test.On("GetByID", mock.Anything, mock.Anything, uint(1)).Return(fixtureTest(), nil)
	// The raw key is passed down; the store whitelists it to submitted_at.
	repo.attempt.On("ListByTest", mock.Anything, mock.Anything, uint(1), mock.MatchedBy(func(f repositories.ResultFilters) bool {
		return f.SortBy == "shoe_size" && f.SortOrder == "asc"
	})).Return([]*models.Attempt{}, int64(0), nil)
	repo.attempt.On("GetTabSwitchStats", mock.Anything, mock.Anything, uint(1)).Return(fixtureTabStats(), nil)

	svc := newTestResultsService(repo, nil)
	_, err := svc.ListTestResults(context.Background(), 1, &ResultsQuery{SortBy: "shoe_size", SortOrder: "ASC"})
	require.NoError(t, err)
	repo.assertExpectations(t)
}

func TestListTestResults_TabsSummaryIsCached(t *testing.T) {
	repo := newMockRepository()
	cacheService := newFakeCache()

	repo.test.On("GetByID", mock.Anything, mock.Anything, uint(1)).Return(fixtureTest(), nil)
	repo.attempt.On("ListByTest", mock.Anything, mock.Anything, uint(1), mock.Anything).
		Return([]*models.Attempt{}, int64(0), nil)
	// Exactly one aggregation; the second listing must hit the cache.
	repo.attempt.On("GetTabSwitchStats", mock.Anything, mock.Anything, uint(1)).Return(fixtureTabStats(), nil).Once()

	svc := newTestResultsService(repo, cacheService)

	first, err := svc.ListTestResults(context.Background(), 1, nil)
	require.NoError(t, err)
	second, err := svc.ListTestResults(context.Background(), 1, nil)
	require.NoError(t, err)

	require.NotNil(t, first.TabsSummary)
	require.NotNil(t, second.TabsSummary)
	assert.Equal(t, first.TabsSummary, second.TabsSummary)
	assert.Equal(t, 1, cacheService.sets)
	repo.assertExpectations(t)
}

// ===== PER-STUDENT DETAIL =====

func TestGetStudentResult_ResolvesSnapshotsAndBestSubmission(t *testing.T) {
	repo := newMockRepository()
	older := time.Date(2026, 3, 10, 11, 0, 0, 0, time.UTC)
	newer := time.Date(2026, 3, 10, 11, 30, 0, 0, time.UTC)

	repo.student.On("GetByID", mock.Anything, mock.Anything, "s-1").
		Return(fixtureStudent("s-1", "Asha", "asha@example.com"), nil)
	repo.test.On("GetByID", mock.Anything, mock.Anything, uint(1)).Return(fixtureTest(), nil)
	repo.attempt.On("GetByStudentAndTest", mock.Anything, mock.Anything, "s-1", uint(1)).
		Return(fixtureGradedAttempt(t), nil)
	repo.submission.On("GetByIDsForUserAndQuestion", mock.Anything, mock.Anything, []uint{1, 2}, "s-1", uint(301)).
		Return([]*models.Submission{
			{ID: 1, QuestionID: 301, UserID: "s-1", TotalScore: 40, MaxScore: 100, Verdict: models.VerdictPartial, Language: "python", SourceCode: "print(1)", CreatedAt: older},
			{ID: 2, QuestionID: 301, UserID: "s-1", TotalScore: 75, MaxScore: 100, Verdict: models.VerdictPartial, Language: "python", SourceCode: "print(2)", CreatedAt: newer},
		}, nil)

	svc := newTestResultsService(repo, nil)
	resp, err := svc.GetStudentResult(context.Background(), 1, "s-1", true)
	require.NoError(t, err)

	require.NotNil(t, resp.Student)
	assert.Equal(t, "Asha", resp.Student.Name)
	require.NotNil(t, resp.Result)
	assert.Equal(t, 85.0, resp.Result.TotalMarks)

	require.Len(t, resp.Result.OpenSectionAnswers, 1)
	answers := resp.Result.OpenSectionAnswers[0].Answers
	require.Len(t, answers, 2)

	// Faculty view keeps the correct options on the snapshot.
	require.NotNil(t, answers[0].SnapshotMCQ)
	assert.Equal(t, []string{"A"}, answers[0].SnapshotMCQ.CorrectOptions)

	best := answers[1].SelectedSubmission
	require.NotNil(t, best)
	assert.Equal(t, uint(2), best.SubmissionID)
	assert.Equal(t, 75.0, best.Score)
	assert.Equal(t, "print(2)", best.SourceCode)

	repo.assertExpectations(t)
}

func TestGetStudentResult_WithoutSnapshots(t *testing.T) {
	repo := newMockRepository()

	repo.student.On("GetByID", mock.Anything, mock.Anything, "s-1").
		Return(fixtureStudent("s-1", "Asha", "asha@example.com"), nil)
	repo.test.On("GetByID", mock.Anything, mock.Anything, uint(1)).Return(fixtureTest(), nil)
	repo.attempt.On("GetByStudentAndTest", mock.Anything, mock.Anything, "s-1", uint(1)).
		Return(fixtureGradedAttempt(t), nil)

	svc := newTestResultsService(repo, nil)
	resp, err := svc.GetStudentResult(context.Background(), 1, "s-1", false)
	require.NoError(t, err)

	// Meta only: no answer record, no submission resolution.
	assert.Nil(t, resp.Result.OpenSectionAnswers)
	assert.Nil(t, resp.Result.TimedSectionAnswers)
	assert.Equal(t, 2, resp.Result.TabSwitchCount)
	repo.assertExpectations(t)
}

func TestGetStudentResult_UnknownStudent(t *testing.T) {
	repo := newMockRepository()
	repo.student.On("GetByID", mock.Anything, mock.Anything, "ghost").Return(nil, nil)

	svc := newTestResultsService(repo, nil)
	_, err := svc.GetStudentResult(context.Background(), 1, "ghost", true)

	assert.ErrorIs(t, err, ErrStudentNotFound)
	repo.assertExpectations(t)
}

func TestGetStudentResult_NoAttemptForTest(t *testing.T) {
	repo := newMockRepository()

	repo.student.On("GetByID", mock.Anything, mock.Anything, "s-1").
		Return(fixtureStudent("s-1", "Asha", "asha@example.com"), nil)
	repo.test.On("GetByID", mock.Anything, mock.Anything, uint(1)).Return(fixtureTest(), nil)
	repo.attempt.On("GetByStudentAndTest", mock.Anything, mock.Anything, "s-1", uint(1)).Return(nil, nil)

	svc := newTestResultsService(repo, nil)
	_, err := svc.GetStudentResult(context.Background(), 1, "s-1", true)

	assert.ErrorIs(t, err, ErrAttemptNotFound)
	repo.assertExpectations(t)
}

// ===== EXPORT =====

func TestExportTestResults_BuildsWorkbook(t *testing.T) {
	repo := newMockRepository()
	attempts := []*models.Attempt{
		fixtureResultAttempt(7, "s-1", 2, 85),
		fixtureResultAttempt(8, "s-2", 0, 40),
	}

	repo.test.On("Exists", mock.Anything, mock.Anything, uint(1)).Return(true, nil)
	repo.attempt.On("ListByTest", mock.Anything, mock.Anything, uint(1), mock.MatchedBy(func(f repositories.ResultFilters) bool {
		// Full dump: no pagination.
		return f.Limit == 0 && f.Offset == 0
	})).Return(attempts, int64(2), nil)
	repo.student.On("GetByIDs", mock.Anything, mock.Anything, []string{"s-1", "s-2"}).
		Return(map[string]*models.Student{"s-1": fixtureStudent("s-1", "Asha", "asha@example.com")}, nil)

	svc := newTestResultsService(repo, nil)
	data, err := svc.ExportTestResults(context.Background(), 1)
	require.NoError(t, err)
	require.NotEmpty(t, data)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	header, err := f.GetCellValue("Results", "A1")
	require.NoError(t, err)
	assert.Equal(t, "Student ID", header)

	firstID, err := f.GetCellValue("Results", "A2")
	require.NoError(t, err)
	assert.Equal(t, "s-1", firstID)

	name, err := f.GetCellValue("Results", "B2")
	require.NoError(t, err)
	assert.Equal(t, "Asha", name)

	// Attempt without a directory row exports with blank name and email.
	missingName, err := f.GetCellValue("Results", "B3")
	require.NoError(t, err)
	assert.Equal(t, "", missingName)

	tabs, err := f.GetCellValue("Results", "I2")
	require.NoError(t, err)
	assert.Equal(t, "2", tabs)

	repo.assertExpectations(t)
}

func TestExportTestResults_UnknownTest(t *testing.T) {
	repo := newMockRepository()
	repo.test.On("Exists", mock.Anything, mock.Anything, uint(9)).Return(false, nil)

	svc := newTestResultsService(repo, nil)
	_, err := svc.ExportTestResults(context.Background(), 9)

	assert.ErrorIs(t, err, ErrTestNotFound)
	repo.assertExpectations(t)
}
