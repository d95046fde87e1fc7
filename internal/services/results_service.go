package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/deloaiprivatelimited/exam-engine/internal/cache"
	apperrors "github.com/deloaiprivatelimited/exam-engine/internal/errors"
	"github.com/deloaiprivatelimited/exam-engine/internal/models"
	"github.com/deloaiprivatelimited/exam-engine/internal/repositories"
	"github.com/deloaiprivatelimited/exam-engine/internal/utils"
)

const (
	// defaultResultsPageSize applies when the client sends no limit.
	defaultResultsPageSize = 50

	// tabsSummaryTTL keeps the per-test proctoring aggregate fresh enough for
	// a live dashboard without recomputing it on every page flip.
	tabsSummaryTTL = 60 * time.Second
)

// ===== REQUEST / RESPONSE TYPES =====

// ResultsQuery narrows and orders a faculty results listing. An unknown
// sort_by falls back to submitted_at rather than failing.
type ResultsQuery struct {
	Search    string `json:"search"`
	Submitted *bool  `json:"submitted"`
	Limit     int    `json:"limit" validate:"omitempty,min=1,max=200"`
	Offset    int    `json:"offset" validate:"omitempty,min=0"`
	SortBy    string `json:"sort_by"`
	SortOrder string `json:"sort_order" validate:"omitempty,sort_order"`
}

// StudentRef is the directory projection attached to result rows.
type StudentRef struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// TestMeta is the test header block echoed on results responses.
type TestMeta struct {
	ID          uint    `json:"id"`
	Name        string  `json:"test_name"`
	Description *string `json:"description"`
}

// ResultRow is one attempt in a results listing. Student is nil when the
// directory has no row for the attempt's subject.
type ResultRow struct {
	AttemptID uint        `json:"id"`
	StudentID string      `json:"student_id"`
	Student   *StudentRef `json:"student"`

	TestID     uint    `json:"test_id"`
	TotalMarks float64 `json:"total_marks"`
	MaxMarks   float64 `json:"max_marks"`

	Submitted    bool       `json:"submitted"`
	SubmittedAt  *time.Time `json:"submitted_at"`
	LastAutosave *time.Time `json:"last_autosave"`

	FullScreen     bool `json:"full_screen"`
	TabSwitchCount int  `json:"tab_switch_count"`
}

// TabSwitchSummary aggregates proctoring telemetry across every attempt of
// the test, independent of the current page.
type TabSwitchSummary struct {
	TotalTabSwitches               int     `json:"total_tab_switches"`
	AvgTabSwitchesPerAttempt       float64 `json:"avg_tab_switches_per_attempt"`
	MaxTabSwitches                 int     `json:"max_tab_switches"`
	AttemptsWithTabSwitches        int     `json:"attempts_with_tab_switches"`
	AttemptsWithTabSwitchesPercent float64 `json:"attempts_with_tab_switches_percent"`
}

type TestResultsResponse struct {
	Test        *TestMeta         `json:"test"`
	Results     []ResultRow       `json:"results"`
	Total       int64             `json:"total"`
	Limit       int               `json:"limit"`
	Offset      int               `json:"offset"`
	TabsSummary *TabSwitchSummary `json:"tabs_summary,omitempty"`
}

// BestSubmissionSummary is the display projection of the submission that
// scored a coding answer.
type BestSubmissionSummary struct {
	SubmissionID uint           `json:"submission_id"`
	Score        float64        `json:"score"`
	Verdict      models.Verdict `json:"verdict"`
	CreatedAt    time.Time      `json:"created_at"`
	SourceCode   string         `json:"source_code"`
	Language     string         `json:"language"`
}

// AnswerView is the faculty projection of one stored answer. Unlike the
// student view, snapshots are included verbatim: faculty are allowed to see
// correct options and orders.
type AnswerView struct {
	QuestionID    string              `json:"question_id"`
	QuestionType  models.QuestionType `json:"question_type"`
	Value         []string            `json:"value"`
	MarksObtained *float64            `json:"marks_obtained"`

	SnapshotMCQ       *models.MCQSnapshot       `json:"snapshot_mcq,omitempty"`
	SnapshotCoding    *models.CodingSnapshot    `json:"snapshot_coding,omitempty"`
	SnapshotRearrange *models.RearrangeSnapshot `json:"snapshot_rearrange,omitempty"`

	SelectedSubmission *BestSubmissionSummary `json:"selected_submission,omitempty"`
}

type SectionAnswersView struct {
	SectionID       string       `json:"section_id"`
	SectionName     string       `json:"section_name"`
	SectionDuration int          `json:"section_duration"`
	MaxMarks        float64      `json:"max_marks"`
	TotalMarks      float64      `json:"total_marks"`
	Answers         []AnswerView `json:"answers"`
}

// StudentResultDetail is one student's graded attempt, with the full answer
// record when snapshots were requested.
type StudentResultDetail struct {
	AttemptID uint   `json:"id"`
	StudentID string `json:"student_id"`
	TestID    uint   `json:"test_id"`

	TotalMarks float64 `json:"total_marks"`
	MaxMarks   float64 `json:"max_marks"`

	Submitted    bool       `json:"submitted"`
	SubmittedAt  *time.Time `json:"submitted_at"`
	LastAutosave *time.Time `json:"last_autosave"`

	FullScreen     bool `json:"full_screen"`
	TabSwitchCount int  `json:"tab_switch_count"`

	TimedSectionAnswers []SectionAnswersView `json:"timed_section_answers,omitempty"`
	OpenSectionAnswers  []SectionAnswersView `json:"open_section_answers,omitempty"`
}

type StudentResultResponse struct {
	Student *StudentRef          `json:"student"`
	Test    *TestMeta            `json:"test"`
	Result  *StudentResultDetail `json:"result"`
}

// ===== SERVICE INTERFACE =====

type ResultsService interface {
	ListTestResults(ctx context.Context, testID uint, query *ResultsQuery) (*TestResultsResponse, error)
	GetStudentResult(ctx context.Context, testID uint, studentID string, includeSnapshots bool) (*StudentResultResponse, error)
	ExportTestResults(ctx context.Context, testID uint) ([]byte, error)
}

type resultsService struct {
	repo      repositories.Repository
	cache     cache.CacheService
	logger    *slog.Logger
	validator *utils.Validator
}

// NewResultsService builds the faculty-facing results service. A nil cache
// (tests) recomputes the tabs summary on every call.
func NewResultsService(repo repositories.Repository, cacheService cache.CacheService, logger *slog.Logger, validator *utils.Validator) ResultsService {
	return &resultsService{
		repo:      repo,
		cache:     cacheService,
		logger:    logger,
		validator: validator,
	}
}

// ===== LISTING =====

func (s *resultsService) ListTestResults(ctx context.Context, testID uint, query *ResultsQuery) (*TestResultsResponse, error) {
	if query == nil {
		query = &ResultsQuery{}
	}
	if err := s.validator.ValidateStruct(query); err != nil {
		return nil, apperrors.ToValidationErrors(err)
	}

	limit := query.Limit
	if limit <= 0 {
		limit = defaultResultsPageSize
	}

	s.logger.Info("Listing test results",
		"test_id", testID,
		"limit", limit,
		"offset", query.Offset,
		"search", query.Search != "")

	test, err := s.repo.Test().GetByID(ctx, nil, testID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrTestNotFound
		}
		return nil, fmt.Errorf("failed to get test: %w", err)
	}

	filters := repositories.ResultFilters{
		Submitted: query.Submitted,
		Limit:     limit,
		Offset:    query.Offset,
		SortBy:    query.SortBy,
		SortOrder: normalizeSortOrder(query.SortOrder),
	}

	if search := strings.TrimSpace(query.Search); search != "" {
		ids, err := s.repo.Student().SearchIDs(ctx, nil, search)
		if err != nil {
			return nil, fmt.Errorf("failed to search students: %w", err)
		}
		if len(ids) == 0 {
			return &TestResultsResponse{
				Test:    buildTestMeta(test),
				Results: []ResultRow{},
				Limit:   limit,
				Offset:  query.Offset,
			}, nil
		}
		filters.StudentIDs = ids
	}

	attempts, total, err := s.repo.Attempt().ListByTest(ctx, nil, testID, filters)
	if err != nil {
		return nil, fmt.Errorf("failed to list attempts: %w", err)
	}

	students := s.loadStudentRefs(ctx, attempts)
	rows := make([]ResultRow, 0, len(attempts))
	for _, attempt := range attempts {
		rows = append(rows, buildResultRow(attempt, students[attempt.StudentID]))
	}

	return &TestResultsResponse{
		Test:        buildTestMeta(test),
		Results:     rows,
		Total:       total,
		Limit:       limit,
		Offset:      query.Offset,
		TabsSummary: s.tabsSummary(ctx, testID),
	}, nil
}

// ===== PER-STUDENT DETAIL =====

func (s *resultsService) GetStudentResult(ctx context.Context, testID uint, studentID string, includeSnapshots bool) (*StudentResultResponse, error) {
	s.logger.Info("Fetching student result",
		"test_id", testID,
		"student_id", studentID,
		"include_snapshots", includeSnapshots)

	student, err := s.repo.Student().GetByID(ctx, nil, studentID)
	if err != nil {
		return nil, fmt.Errorf("failed to get student: %w", err)
	}
	if student == nil {
		return nil, ErrStudentNotFound
	}

	test, err := s.repo.Test().GetByID(ctx, nil, testID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrTestNotFound
		}
		return nil, fmt.Errorf("failed to get test: %w", err)
	}

	attempt, err := s.repo.Attempt().GetByStudentAndTest(ctx, nil, studentID, testID)
	if err != nil {
		return nil, fmt.Errorf("failed to get attempt: %w", err)
	}
	if attempt == nil {
		return nil, ErrAttemptNotFound
	}

	detail := &StudentResultDetail{
		AttemptID:      attempt.ID,
		StudentID:      attempt.StudentID,
		TestID:         attempt.TestID,
		TotalMarks:     attempt.TotalMarks,
		MaxMarks:       attempt.MaxMarks,
		Submitted:      attempt.Submitted,
		SubmittedAt:    attempt.SubmittedAt,
		LastAutosave:   attempt.LastAutosave,
		FullScreen:     attempt.FullscreenViolated,
		TabSwitchCount: attempt.TabSwitchesCount,
	}
	if includeSnapshots {
		detail.TimedSectionAnswers = s.buildSectionViews(ctx, studentID, decodeSectionAnswers(attempt.TimedSectionAnswers))
		detail.OpenSectionAnswers = s.buildSectionViews(ctx, studentID, decodeSectionAnswers(attempt.OpenSectionAnswers))
	}

	return &StudentResultResponse{
		Student: &StudentRef{ID: student.ID, Name: student.Name, Email: student.Email},
		Test:    buildTestMeta(test),
		Result:  detail,
	}, nil
}

func (s *resultsService) buildSectionViews(ctx context.Context, studentID string, sections []models.SectionAnswers) []SectionAnswersView {
	views := make([]SectionAnswersView, 0, len(sections))
	for _, sec := range sections {
		view := SectionAnswersView{
			SectionID:       sec.SectionID,
			SectionName:     sec.SectionName,
			SectionDuration: sec.SectionDuration,
			MaxMarks:        sec.MaxMarks,
			TotalMarks:      sec.TotalMarks,
			Answers:         make([]AnswerView, 0, len(sec.Answers)),
		}
		for i := range sec.Answers {
			view.Answers = append(view.Answers, s.buildAnswerView(ctx, studentID, &sec.Answers[i]))
		}
		views = append(views, view)
	}
	return views
}

func (s *resultsService) buildAnswerView(ctx context.Context, studentID string, ans *models.Answer) AnswerView {
	return AnswerView{
		QuestionID:         ans.QuestionID,
		QuestionType:       ans.QuestionType,
		Value:              ans.Value.Value,
		MarksObtained:      ans.MarksObtained,
		SnapshotMCQ:        ans.SnapshotMCQ,
		SnapshotCoding:     ans.SnapshotCoding,
		SnapshotRearrange:  ans.SnapshotRearrange,
		SelectedSubmission: s.resolveBestSubmission(ctx, studentID, ans),
	}
}

// resolveBestSubmission turns a coding answer's stored submission ids into
// the best-scoring submission's display summary. Resolution trouble degrades
// to nil; the rest of the view still renders.
func (s *resultsService) resolveBestSubmission(ctx context.Context, studentID string, ans *models.Answer) *BestSubmissionSummary {
	if ans.QuestionType != models.QuestionTypeCoding || len(ans.Value.Value) == 0 {
		return nil
	}
	questionID, ok := parseID(ans.QuestionID)
	if !ok {
		return nil
	}
	ids := parseIDList(ans.Value.Value)
	if len(ids) == 0 {
		return nil
	}

	subs, err := s.repo.Submission().GetByIDsForUserAndQuestion(ctx, nil, ids, studentID, questionID)
	if err != nil {
		s.logger.Warn("Failed to resolve submissions for result view",
			"question_id", questionID,
			"student_id", studentID,
			"error", err)
		return nil
	}

	best, score := BestSubmission(subs)
	if best == nil {
		return nil
	}
	return &BestSubmissionSummary{
		SubmissionID: best.ID,
		Score:        score,
		Verdict:      best.Verdict,
		CreatedAt:    best.CreatedAt,
		SourceCode:   best.SourceCode,
		Language:     best.Language,
	}
}

// ===== EXPORT =====

func (s *resultsService) ExportTestResults(ctx context.Context, testID uint) ([]byte, error) {
	s.logger.Info("Exporting test results", "test_id", testID)

	exists, err := s.repo.Test().Exists(ctx, nil, testID)
	if err != nil {
		return nil, fmt.Errorf("failed to check test: %w", err)
	}
	if !exists {
		return nil, ErrTestNotFound
	}

	attempts, _, err := s.repo.Attempt().ListByTest(ctx, nil, testID, repositories.ResultFilters{
		SortBy:    "submitted_at",
		SortOrder: "desc",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list attempts: %w", err)
	}
	students := s.loadStudentRefs(ctx, attempts)

	f := excelize.NewFile()
	sheetName := "Results"

	index, err := f.NewSheet(sheetName)
	if err != nil {
		return nil, fmt.Errorf("failed to create Excel sheet: %w", err)
	}
	f.SetActiveSheet(index)

	headers := []string{
		"Student ID", "Student Name", "Student Email", "Total Marks", "Max Marks",
		"Submitted", "Submitted At", "Last Autosave", "Tab Switches", "Fullscreen Violated",
	}
	for i, header := range headers {
		cell := fmt.Sprintf("%c1", 'A'+i)
		f.SetCellValue(sheetName, cell, header)
	}

	for rowIndex, attempt := range attempts {
		var name, email string
		if ref := students[attempt.StudentID]; ref != nil {
			name, email = ref.Name, ref.Email
		}

		row := []interface{}{
			attempt.StudentID,
			name,
			email,
			attempt.TotalMarks,
			attempt.MaxMarks,
			yesNo(attempt.Submitted),
			formatExportTime(attempt.SubmittedAt),
			formatExportTime(attempt.LastAutosave),
			attempt.TabSwitchesCount,
			yesNo(attempt.FullscreenViolated),
		}

		for colIndex, value := range row {
			cell := fmt.Sprintf("%c%d", 'A'+colIndex, rowIndex+2)
			f.SetCellValue(sheetName, cell, value)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to write Excel file: %w", err)
	}

	return buf.Bytes(), nil
}

// ===== INTERNAL HELPERS =====

// tabsSummary returns the cached per-test proctoring aggregate, computing
// and re-caching it on a miss. Aggregation trouble yields nil, never an
// error: the listing is more important than its summary block.
func (s *resultsService) tabsSummary(ctx context.Context, testID uint) *TabSwitchSummary {
	key := tabsSummaryCacheKey(testID)
	if s.cache != nil {
		var cached TabSwitchSummary
		err := s.cache.Get(ctx, key, &cached)
		if err == nil {
			return &cached
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			s.logger.Warn("Failed to read tabs summary cache", "test_id", testID, "error", err)
		}
	}

	stats, err := s.repo.Attempt().GetTabSwitchStats(ctx, nil, testID)
	if err != nil {
		s.logger.Warn("Failed to aggregate tab switch stats", "test_id", testID, "error", err)
		return nil
	}

	summary := summaryFromStats(stats)
	if s.cache != nil {
		if err := s.cache.Set(ctx, key, summary, tabsSummaryTTL); err != nil {
			s.logger.Warn("Failed to cache tabs summary", "test_id", testID, "error", err)
		}
	}
	return summary
}

func (s *resultsService) loadStudentRefs(ctx context.Context, attempts []*models.Attempt) map[string]*StudentRef {
	ids := make([]string, 0, len(attempts))
	seen := make(map[string]struct{}, len(attempts))
	for _, attempt := range attempts {
		if _, dup := seen[attempt.StudentID]; dup {
			continue
		}
		seen[attempt.StudentID] = struct{}{}
		ids = append(ids, attempt.StudentID)
	}
	if len(ids) == 0 {
		return map[string]*StudentRef{}
	}

	students, err := s.repo.Student().GetByIDs(ctx, nil, ids)
	if err != nil {
		// Directory trouble degrades rows to bare ids, it never fails the listing.
		s.logger.Warn("Failed to load student directory rows", "students", len(ids), "error", err)
		return map[string]*StudentRef{}
	}

	refs := make(map[string]*StudentRef, len(students))
	for id, student := range students {
		refs[id] = &StudentRef{ID: student.ID, Name: student.Name, Email: student.Email}
	}
	return refs
}

func buildResultRow(attempt *models.Attempt, student *StudentRef) ResultRow {
	return ResultRow{
		AttemptID:      attempt.ID,
		StudentID:      attempt.StudentID,
		Student:        student,
		TestID:         attempt.TestID,
		TotalMarks:     attempt.TotalMarks,
		MaxMarks:       attempt.MaxMarks,
		Submitted:      attempt.Submitted,
		SubmittedAt:    attempt.SubmittedAt,
		LastAutosave:   attempt.LastAutosave,
		FullScreen:     attempt.FullscreenViolated,
		TabSwitchCount: attempt.TabSwitchesCount,
	}
}

func buildTestMeta(test *models.Test) *TestMeta {
	if test == nil {
		return nil
	}
	return &TestMeta{
		ID:          test.ID,
		Name:        test.Name,
		Description: test.Description,
	}
}

func summaryFromStats(stats *repositories.TabSwitchStats) *TabSwitchSummary {
	summary := &TabSwitchSummary{
		TotalTabSwitches:        int(stats.TotalTabSwitches),
		MaxTabSwitches:          stats.MaxTabSwitches,
		AttemptsWithTabSwitches: int(stats.AttemptsWithTabSwitches),
	}
	if stats.AttemptCount > 0 {
		summary.AvgTabSwitchesPerAttempt = float64(stats.TotalTabSwitches) / float64(stats.AttemptCount)
		summary.AttemptsWithTabSwitchesPercent = float64(stats.AttemptsWithTabSwitches) / float64(stats.AttemptCount) * 100
	}
	return summary
}

func tabsSummaryCacheKey(testID uint) string {
	return fmt.Sprintf("results:tabs:%d", testID)
}

func normalizeSortOrder(order string) string {
	if strings.EqualFold(order, "asc") {
		return "asc"
	}
	return "desc"
}

func formatExportTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format("2006-01-02 15:04:05")
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}
