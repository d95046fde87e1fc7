package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"

	apperrors "github.com/deloaiprivatelimited/exam-engine/internal/errors"
	"github.com/deloaiprivatelimited/exam-engine/internal/events"
	"github.com/deloaiprivatelimited/exam-engine/internal/judge"
	"github.com/deloaiprivatelimited/exam-engine/internal/models"
	"github.com/deloaiprivatelimited/exam-engine/internal/repositories"
	"github.com/deloaiprivatelimited/exam-engine/internal/utils"
)

// submissionRateWindow is the trailing window for the per-question attempt cap.
const submissionRateWindow = 60 * time.Second

// ===== REQUEST/RESPONSE TYPES =====

type RunCodeRequest struct {
	SourceCode string `json:"source_code" validate:"required"`
	Language   string `json:"language" validate:"required"`
	Stdin      string `json:"stdin"`
}

type RunCodeResponse struct {
	QuestionID uint          `json:"question_id"`
	LanguageID int           `json:"language_id"`
	Result     RunCodeResult `json:"result"`
}

type RunCodeResult struct {
	Token         string             `json:"token"`
	Status        models.JudgeStatus `json:"status"`
	Stdout        string             `json:"stdout"`
	Stderr        string             `json:"stderr"`
	CompileOutput string             `json:"compile_output"`
	Time          float64            `json:"time"`
	Memory        int                `json:"memory"`
}

type SubmitCodeRequest struct {
	SourceCode string `json:"source_code" validate:"required"`
	Language   string `json:"language" validate:"required"`
	TestID     *uint  `json:"test_id"`
}

// CaseSummary is the client-safe projection of one case result. It never
// carries the test case id; JudgeToken is set on the submit response only.
type CaseSummary struct {
	Name          string  `json:"name"`
	Passed        bool    `json:"passed"`
	PointsAwarded int     `json:"points_awarded"`
	Time          float64 `json:"time"`
	Memory        int     `json:"memory"`
	JudgeToken    string  `json:"judge_token,omitempty"`
}

// GroupSummary reports one group's outcome under an auto-generated name, so
// authored group names stay private.
type GroupSummary struct {
	Name               string        `json:"name"`
	GroupMaxPoints     int           `json:"group_max_points"`
	GroupPointsAwarded int           `json:"group_points_awarded"`
	Cases              []CaseSummary `json:"cases"`
}

type SubmitCodeResponse struct {
	SubmissionID uint           `json:"submission_id"`
	QuestionID   uint           `json:"question_id"`
	Verdict      models.Verdict `json:"verdict"`
	TotalScore   int            `json:"total_score"`
	MaxScore     int            `json:"max_score"`
	Groups       []GroupSummary `json:"groups"`
	CreatedAt    time.Time      `json:"created_at"`
}

type SubmissionSummary struct {
	SubmissionID uint           `json:"submission_id"`
	QuestionID   uint           `json:"question_id"`
	Language     string         `json:"language"`
	SourceCode   string         `json:"source_code"`
	Verdict      models.Verdict `json:"verdict"`
	TotalScore   int            `json:"total_score"`
	MaxScore     int            `json:"max_score"`
	CreatedAt    time.Time      `json:"created_at"`
	Cases        []CaseSummary  `json:"cases"`
}

type SubmissionListResponse struct {
	Page    int                 `json:"page,omitempty"`
	PerPage int                 `json:"per_page,omitempty"`
	Total   int64               `json:"total"`
	Items   []SubmissionSummary `json:"items"`
}

// ===== SERVICE INTERFACE =====

// CodeExecutor runs one program against the external execution service.
// Satisfied by *judge.Client.
type CodeExecutor interface {
	Execute(ctx context.Context, sub judge.Submission) (*judge.Result, error)
}

type JudgeService interface {
	RunCode(ctx context.Context, userID string, questionID uint, req *RunCodeRequest) (*RunCodeResponse, error)
	SubmitCode(ctx context.Context, userID string, questionID uint, req *SubmitCodeRequest) (*SubmitCodeResponse, error)
	ListMySubmissions(ctx context.Context, userID string, questionID uint, page, perPage int) (*SubmissionListResponse, error)
	ListTestSubmissions(ctx context.Context, userID string, questionID uint, submissionIDs []string) (*SubmissionListResponse, error)
}

type judgeService struct {
	repo       repositories.Repository
	executor   CodeExecutor
	publisher  events.EventPublisher
	logger     *slog.Logger
	ops        *ServiceLogger
	validator  *utils.Validator
	maxWorkers int
}

func NewJudgeService(repo repositories.Repository, executor CodeExecutor, publisher events.EventPublisher, logger *slog.Logger, validator *utils.Validator, maxWorkers int) JudgeService {
	if maxWorkers <= 0 {
		maxWorkers = 4
	}
	return &judgeService{
		repo:       repo,
		executor:   executor,
		publisher:  publisher,
		logger:     logger,
		ops:        NewServiceLogger(logger, "judge"),
		validator:  validator,
		maxWorkers: maxWorkers,
	}
}

// ===== RUN CODE =====

// RunCode executes source against custom stdin without touching test cases.
func (s *judgeService) RunCode(ctx context.Context, userID string, questionID uint, req *RunCodeRequest) (resp *RunCodeResponse, err error) {
	op := s.ops.WithOperation(ctx, "run_code", userID)
	defer func() { op.LogResult(questionID, "question", err) }()

	s.logger.Info("Running code",
		"user_id", userID,
		"question_id", questionID,
		"language", req.Language)

	if err := s.validator.ValidateStruct(req); err != nil {
		return nil, apperrors.ToValidationErrors(err)
	}

	question, err := s.loadCodingQuestion(ctx, questionID)
	if err != nil {
		return nil, err
	}
	if !question.Published {
		return nil, ErrQuestionNotPublished
	}
	if !question.RunCodeEnabled {
		return nil, ErrRunNotEnabled
	}

	language, languageID, err := resolveLanguage(question, req.Language)
	if err != nil {
		return nil, err
	}

	result, err := s.executor.Execute(ctx, judge.Submission{
		SourceCode: req.SourceCode,
		LanguageID: languageID,
		Stdin:      req.Stdin,
	})
	if err != nil {
		s.logger.Error("Code execution service unreachable",
			"question_id", questionID,
			"language", language,
			"error", err)
		return nil, ErrJudgeUnavailable
	}

	return &RunCodeResponse{
		QuestionID: questionID,
		LanguageID: languageID,
		Result: RunCodeResult{
			Token:         result.Token,
			Status:        models.JudgeStatus{ID: result.Status.ID, Description: result.Status.Description},
			Stdout:        result.Stdout,
			Stderr:        result.Stderr,
			CompileOutput: result.CompileOutput,
			Time:          result.Time,
			Memory:        result.Memory,
		},
	}, nil
}

// ===== SUBMIT CODE =====

// SubmitCode grades source against the question's hidden test cases and
// records an immutable submission.
func (s *judgeService) SubmitCode(ctx context.Context, userID string, questionID uint, req *SubmitCodeRequest) (resp *SubmitCodeResponse, err error) {
	op := s.ops.WithOperation(ctx, "submit_code", userID)
	defer func() { op.LogResult(questionID, "question", err) }()

	s.logger.Info("Submitting code for grading",
		"user_id", userID,
		"question_id", questionID,
		"language", req.Language)

	if err := s.validator.ValidateStruct(req); err != nil {
		return nil, apperrors.ToValidationErrors(err)
	}

	question, err := s.loadCodingQuestion(ctx, questionID)
	if err != nil {
		return nil, err
	}
	if !question.Published {
		return nil, ErrQuestionNotPublished
	}
	if !question.SubmissionEnabled {
		return nil, ErrSubmissionNotEnabled
	}

	language, languageID, err := resolveLanguage(question, req.Language)
	if err != nil {
		return nil, err
	}

	if question.MaxAttemptsPerMinute > 0 {
		since := time.Now().Add(-submissionRateWindow)
		recent, err := s.repo.Submission().CountSince(ctx, nil, userID, questionID, since)
		if err != nil {
			return nil, fmt.Errorf("failed to count recent submissions: %w", err)
		}
		if recent >= int64(question.MaxAttemptsPerMinute) {
			return nil, ErrRateLimited
		}
	}

	groups, err := s.repo.Question().GetTestCaseGroups(ctx, nil, questionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get test case groups: %w", err)
	}
	plan := buildGradingPlan(question, groups)
	if len(plan.groups) == 0 {
		return nil, fmt.Errorf("coding question %d has no runnable test cases", questionID)
	}

	// The row exists before dispatch so an abandoned run still leaves a trace.
	submission := &models.Submission{
		QuestionID: questionID,
		UserID:     userID,
		TestID:     req.TestID,
		Language:   language,
		SourceCode: req.SourceCode,
		Verdict:    models.VerdictPending,
	}
	if err := s.repo.Submission().Create(ctx, nil, submission); err != nil {
		return nil, fmt.Errorf("failed to create submission: %w", err)
	}

	results := s.runGradingPlan(ctx, question, languageID, req.SourceCode, plan)

	flat := make([]models.SubmissionCaseResult, 0, plan.caseCount())
	total := 0
	for gi := range plan.groups {
		for _, cr := range results[gi] {
			flat = append(flat, cr)
			total += cr.PointsAwarded
		}
	}
	encoded, err := json.Marshal(flat)
	if err != nil {
		return nil, fmt.Errorf("failed to encode case results: %w", err)
	}
	submission.CaseResults = datatypes.JSON(encoded)
	submission.TotalScore = total
	submission.MaxScore = question.Points
	submission.Verdict = deriveVerdict(total, question.Points)

	if err := s.repo.Submission().Update(ctx, nil, submission); err != nil {
		return nil, fmt.Errorf("failed to finalize submission: %w", err)
	}

	s.publishEvent(ctx, events.NewSubmissionGradedEvent(submission))
	s.logger.Info("Submission graded",
		"submission_id", submission.ID,
		"question_id", questionID,
		"user_id", userID,
		"verdict", submission.Verdict,
		"total_score", submission.TotalScore,
		"max_score", submission.MaxScore)

	return &SubmitCodeResponse{
		SubmissionID: submission.ID,
		QuestionID:   questionID,
		Verdict:      submission.Verdict,
		TotalScore:   submission.TotalScore,
		MaxScore:     submission.MaxScore,
		Groups:       summarizeGroups(plan, results),
		CreatedAt:    submission.CreatedAt,
	}, nil
}

// ===== SUBMISSION LISTINGS =====

func (s *judgeService) ListMySubmissions(ctx context.Context, userID string, questionID uint, page, perPage int) (*SubmissionListResponse, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 20
	}
	if perPage > 200 {
		perPage = 200
	}

	if _, err := s.loadCodingQuestion(ctx, questionID); err != nil {
		return nil, err
	}

	subs, total, err := s.repo.Submission().ListByUserAndQuestion(ctx, nil, userID, questionID, perPage, (page-1)*perPage)
	if err != nil {
		return nil, fmt.Errorf("failed to list submissions: %w", err)
	}

	items := make([]SubmissionSummary, 0, len(subs))
	for _, sub := range subs {
		items = append(items, summarizeSubmission(sub))
	}

	return &SubmissionListResponse{
		Page:    page,
		PerPage: perPage,
		Total:   total,
		Items:   items,
	}, nil
}

// ListTestSubmissions resolves the caller's submissions among the given ids;
// ids belonging to other users silently drop out. An empty id list is an
// empty result, not an error.
func (s *judgeService) ListTestSubmissions(ctx context.Context, userID string, questionID uint, submissionIDs []string) (*SubmissionListResponse, error) {
	if _, err := s.loadCodingQuestion(ctx, questionID); err != nil {
		return nil, err
	}

	ids := parseIDList(submissionIDs)
	if len(ids) == 0 {
		return &SubmissionListResponse{Items: []SubmissionSummary{}}, nil
	}

	subs, err := s.repo.Submission().GetByIDsForUserAndQuestion(ctx, nil, ids, userID, questionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get submissions: %w", err)
	}

	items := make([]SubmissionSummary, 0, len(subs))
	for _, sub := range subs {
		items = append(items, summarizeSubmission(sub))
	}

	return &SubmissionListResponse{
		Total: int64(len(items)),
		Items: items,
	}, nil
}

// ===== POINT ALLOCATION =====

// AllocateGroupPoints apportions an integer points budget across groups by
// weight using the largest-remainder method: floor each raw share, then hand
// the leftover units to the largest fractional remainders, ties broken by
// index ascending. A zero weight sum degrades to an equal split.
func AllocateGroupPoints(weights []int, total int) []int {
	n := len(weights)
	if n == 0 {
		return nil
	}

	sum := 0
	for _, w := range weights {
		sum += w
	}
	effective := weights
	if sum == 0 {
		effective = make([]int, n)
		for i := range effective {
			effective[i] = 1
		}
		sum = n
	}

	raw := make([]float64, n)
	alloc := make([]int, n)
	allocated := 0
	for i, w := range effective {
		raw[i] = float64(w) / float64(sum) * float64(total)
		alloc[i] = int(math.Floor(raw[i]))
		allocated += alloc[i]
	}

	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool {
		fa := raw[order[a]] - math.Floor(raw[order[a]])
		fb := raw[order[b]] - math.Floor(raw[order[b]])
		if fa != fb {
			return fa > fb
		}
		return order[a] < order[b]
	})

	for i := 0; i < total-allocated; i++ {
		alloc[order[i%n]]++
	}
	return alloc
}

// SplitEvenly divides points across n cases; the first points%n cases take
// one extra unit each.
func SplitEvenly(points, n int) []int {
	if n <= 0 {
		return nil
	}
	base := points / n
	extra := points % n
	out := make([]int, n)
	for i := range out {
		out[i] = base
		if i < extra {
			out[i]++
		}
	}
	return out
}

// deriveVerdict classifies a finalized score rollup.
func deriveVerdict(total, max int) models.Verdict {
	switch {
	case max > 0 && total >= max:
		return models.VerdictAccepted
	case total > 0:
		return models.VerdictPartial
	default:
		return models.VerdictWrongAnswer
	}
}

// ===== GRADING PLAN =====

// gradingPlan is the per-submission evaluation layout: groups that actually
// hold cases, with their integer point allocations already settled.
type gradingPlan struct {
	groups []gradingGroup
}

type gradingGroup struct {
	group      *models.TestCaseGroup
	cases      []models.TestCase
	maxPoints  int
	casePoints []int
}

func (p *gradingPlan) caseCount() int {
	n := 0
	for _, g := range p.groups {
		n += len(g.cases)
	}
	return n
}

// buildGradingPlan filters out caseless groups before allocation so their
// weights do not dilute the budget.
func buildGradingPlan(question *models.QuestionCoding, groups []*models.TestCaseGroup) *gradingPlan {
	plan := &gradingPlan{}
	var weights []int
	for _, g := range groups {
		if g == nil || len(g.Cases) == 0 {
			continue
		}
		plan.groups = append(plan.groups, gradingGroup{group: g, cases: g.Cases})
		weights = append(weights, g.Weight)
	}
	if len(plan.groups) == 0 {
		return plan
	}

	alloc := AllocateGroupPoints(weights, question.Points)
	for i := range plan.groups {
		plan.groups[i].maxPoints = alloc[i]
		plan.groups[i].casePoints = SplitEvenly(alloc[i], len(plan.groups[i].cases))
	}
	return plan
}

// ===== DISPATCH =====

type caseRun struct {
	groupIdx int
	caseIdx  int
	testCase models.TestCase
	points   int
}

// runGradingPlan dispatches every case through a bounded worker pool. Each
// worker writes only its own slot, so the result matrix needs no locking.
func (s *judgeService) runGradingPlan(ctx context.Context, question *models.QuestionCoding, languageID int, sourceCode string, plan *gradingPlan) [][]models.SubmissionCaseResult {
	results := make([][]models.SubmissionCaseResult, len(plan.groups))
	var runs []caseRun
	for gi, g := range plan.groups {
		results[gi] = make([]models.SubmissionCaseResult, len(g.cases))
		for ci, tc := range g.cases {
			runs = append(runs, caseRun{groupIdx: gi, caseIdx: ci, testCase: tc, points: g.casePoints[ci]})
		}
	}

	pool, poolCtx := errgroup.WithContext(ctx)
	pool.SetLimit(s.maxWorkers)
	for _, run := range runs {
		groupID := plan.groups[run.groupIdx].group.ID
		pool.Go(func() error {
			results[run.groupIdx][run.caseIdx] = s.executeCase(poolCtx, question, languageID, sourceCode, groupID, run)
			return nil
		})
	}
	// Workers never return errors; failures are recorded per case.
	_ = pool.Wait()

	return results
}

// executeCase runs one test case. Transport failures and timeouts become a
// zero-point failed case instead of aborting the submission.
func (s *judgeService) executeCase(ctx context.Context, question *models.QuestionCoding, languageID int, sourceCode string, groupID uint, run caseRun) models.SubmissionCaseResult {
	cr := models.SubmissionCaseResult{
		TestcaseID: run.testCase.ID,
		GroupID:    groupID,
		MaxPoints:  run.points,
	}

	result, err := s.executor.Execute(ctx, judge.Submission{
		SourceCode:     sourceCode,
		LanguageID:     languageID,
		Stdin:          run.testCase.InputText,
		ExpectedOutput: run.testCase.ExpectedOutput,
		CPUTimeLimit:   caseCPULimit(question, &run.testCase),
		MemoryLimitKB:  caseMemoryLimit(question, &run.testCase),
	})
	if err != nil {
		s.logger.Warn("Judge execution failed for test case",
			"question_id", question.ID,
			"testcase_id", run.testCase.ID,
			"error", err)
		cr.Status = models.JudgeStatus{ID: -1, Description: "Judge error"}
		return cr
	}

	cr.JudgeToken = result.Token
	cr.Status = models.JudgeStatus{ID: result.Status.ID, Description: result.Status.Description}
	cr.Stdout = result.Stdout
	cr.Stderr = result.Stderr
	cr.CompileOutput = result.CompileOutput
	cr.Time = result.Time
	cr.Memory = result.Memory
	if result.Passed() {
		cr.PointsAwarded = run.points
	}
	return cr
}

// Per-case limits fall back to the question defaults when unset.

func caseCPULimit(q *models.QuestionCoding, tc *models.TestCase) float64 {
	if tc.TimeLimitMs > 0 {
		return float64(tc.TimeLimitMs) / 1000.0
	}
	if q.TimeLimitMs > 0 {
		return float64(q.TimeLimitMs) / 1000.0
	}
	return 0
}

func caseMemoryLimit(q *models.QuestionCoding, tc *models.TestCase) int {
	if tc.MemoryLimitKb > 0 {
		return tc.MemoryLimitKb
	}
	return q.MemoryLimitKb
}

// ===== HELPERS =====

func (s *judgeService) loadCodingQuestion(ctx context.Context, questionID uint) (*models.QuestionCoding, error) {
	question, err := s.repo.Question().GetCodingByID(ctx, nil, questionID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrQuestionNotFound
		}
		return nil, fmt.Errorf("failed to get coding question: %w", err)
	}
	return question, nil
}

// resolveLanguage checks the question's allow list and maps the language to
// its execution-service id.
func resolveLanguage(question *models.QuestionCoding, requested string) (string, int, error) {
	language := strings.ToLower(strings.TrimSpace(requested))

	var allowed []string
	decodeJSON(question.AllowedLanguages, &allowed)
	if len(allowed) > 0 {
		found := false
		for _, l := range allowed {
			if strings.ToLower(strings.TrimSpace(l)) == language {
				found = true
				break
			}
		}
		if !found {
			return "", 0, ErrLanguageNotAllowed
		}
	}

	languageID, ok := judge.LanguageID(language)
	if !ok {
		return "", 0, ErrLanguageNotAllowed
	}
	return language, languageID, nil
}

// caseResultPassed mirrors the execution service's accept check for stored
// results: status id 3 or an "accepted" description prefix.
func caseResultPassed(status models.JudgeStatus) bool {
	if status.ID == 3 {
		return true
	}
	return strings.HasPrefix(strings.ToLower(status.Description), "accepted")
}

func summarizeGroups(plan *gradingPlan, results [][]models.SubmissionCaseResult) []GroupSummary {
	groups := make([]GroupSummary, 0, len(plan.groups))
	for gi, pg := range plan.groups {
		gs := GroupSummary{
			Name:           fmt.Sprintf("Test Case %d", gi+1),
			GroupMaxPoints: pg.maxPoints,
			Cases:          make([]CaseSummary, 0, len(results[gi])),
		}
		for ci, cr := range results[gi] {
			gs.GroupPointsAwarded += cr.PointsAwarded
			gs.Cases = append(gs.Cases, CaseSummary{
				Name:          fmt.Sprintf("Testcase %d", ci+1),
				Passed:        caseResultPassed(cr.Status),
				PointsAwarded: cr.PointsAwarded,
				Time:          cr.Time,
				Memory:        cr.Memory,
				JudgeToken:    cr.JudgeToken,
			})
		}
		groups = append(groups, gs)
	}
	return groups
}

// summarizeSubmission builds the listing projection: no judge tokens, no
// test case ids.
func summarizeSubmission(sub *models.Submission) SubmissionSummary {
	item := SubmissionSummary{
		SubmissionID: sub.ID,
		QuestionID:   sub.QuestionID,
		Language:     sub.Language,
		SourceCode:   sub.SourceCode,
		Verdict:      sub.Verdict,
		TotalScore:   sub.TotalScore,
		MaxScore:     sub.MaxScore,
		CreatedAt:    sub.CreatedAt,
		Cases:        []CaseSummary{},
	}

	var caseResults []models.SubmissionCaseResult
	decodeJSON(sub.CaseResults, &caseResults)
	for i, cr := range caseResults {
		item.Cases = append(item.Cases, CaseSummary{
			Name:          fmt.Sprintf("Testcase %d", i+1),
			Passed:        caseResultPassed(cr.Status),
			PointsAwarded: cr.PointsAwarded,
			Time:          cr.Time,
			Memory:        cr.Memory,
		})
	}
	return item
}

func (s *judgeService) publishEvent(ctx context.Context, event *events.ExamEvent) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishExamEvent(ctx, event); err != nil {
		s.logger.Error("Failed to publish event",
			"event_type", event.Type,
			"error", err)
	}
}
