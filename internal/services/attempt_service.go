package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"

	apperrors "github.com/deloaiprivatelimited/exam-engine/internal/errors"
	"github.com/deloaiprivatelimited/exam-engine/internal/events"
	"github.com/deloaiprivatelimited/exam-engine/internal/models"
	"github.com/deloaiprivatelimited/exam-engine/internal/repositories"
	"github.com/deloaiprivatelimited/exam-engine/internal/utils"
)

// ===== REQUEST / RESPONSE TYPES =====

// AnswerInput is one question's entry in the autosave payload. Value is kept
// raw until the normalizer runs; Qwell is the client's question-type hint,
// consulted only when the live structure cannot resolve the type itself.
type AnswerInput struct {
	Value json.RawMessage `json:"value"`
	Qwell string          `json:"qwell"`
}

// AnswersPayload maps section id -> question id -> answer input. Ids are the
// string keys the client saw in the student test view.
type AnswersPayload map[string]map[string]AnswerInput

type AttemptAccessResponse struct {
	AttemptID         uint             `json:"attempt_id"`
	IsStudentAssigned bool             `json:"is_student_assigned"`
	TestStartTime     time.Time        `json:"test_start_time"`
	AttemptStartTime  *time.Time       `json:"attempt_start_time"`
	Test              *StudentTestView `json:"test"`
}

type AutosaveResponse struct {
	Status       string    `json:"status"`
	LastAutosave time.Time `json:"last_autosave"`
	TotalMarks   float64   `json:"total_marks"`
	MaxMarks     float64   `json:"max_marks"`
}

type SubmitAttemptResponse struct {
	TestID      uint      `json:"test_id"`
	StudentID   string    `json:"student_id"`
	SubmittedAt time.Time `json:"submitted_at"`
	TotalMarks  float64   `json:"total_marks"`
	MaxMarks    float64   `json:"max_marks"`
}

type TabSwitchResponse struct {
	TabSwitchesCount   int        `json:"tab_switches_count"`
	FullscreenViolated bool       `json:"fullscreen_violated"`
	LastAutosave       *time.Time `json:"last_autosave"`
	Submitted          bool       `json:"submitted"`
	SubmittedAt        *time.Time `json:"submitted_at"`
	AutoSubmitted      bool       `json:"auto_submitted"`
}

type FullscreenViolationResponse struct {
	FullscreenViolated bool       `json:"fullscreen_violated"`
	LastAutosave       *time.Time `json:"last_autosave"`
	Submitted          bool       `json:"submitted"`
	SubmittedAt        *time.Time `json:"submitted_at"`
	TotalMarks         float64    `json:"total_marks"`
}

type BulkAssignRequest struct {
	StudentIDs []string `json:"student_ids" validate:"required,min=1,max=1000,dive,required,max=100"`
}

type BulkAssignResponse struct {
	Created []string `json:"created"`
	Skipped []string `json:"skipped"`
}

// ===== SERVICE INTERFACE =====

type AttemptService interface {
	GetAttempt(ctx context.Context, studentID string, testID uint, retake bool) (*AttemptAccessResponse, error)
	SaveProgress(ctx context.Context, studentID string, testID uint, answers AnswersPayload) (*AutosaveResponse, error)
	SubmitAttempt(ctx context.Context, studentID string, testID uint, answers AnswersPayload) (*SubmitAttemptResponse, error)
	RecordTabSwitch(ctx context.Context, studentID string, testID uint, answers AnswersPayload) (*TabSwitchResponse, error)
	RecordFullscreenViolation(ctx context.Context, studentID string, testID uint, answers AnswersPayload) (*FullscreenViolationResponse, error)
	BulkAssign(ctx context.Context, testID uint, req *BulkAssignRequest) (*BulkAssignResponse, error)
}

// AttemptLock serializes writers of one attempt across instances.
type AttemptLock interface {
	Acquire(ctx context.Context, key string, ttl, wait time.Duration) (string, error)
	Release(ctx context.Context, key, token string) error
}

type attemptService struct {
	repo           repositories.Repository
	locker         AttemptLock
	publisher      events.EventPublisher
	logger         *slog.Logger
	ops            *ServiceLogger
	validator      *utils.Validator
	tabSwitchLimit int
}

func NewAttemptService(repo repositories.Repository, locker AttemptLock, publisher events.EventPublisher, logger *slog.Logger, validator *utils.Validator, tabSwitchLimit int) AttemptService {
	if tabSwitchLimit <= 0 {
		tabSwitchLimit = 5
	}
	return &attemptService{
		repo:           repo,
		locker:         locker,
		publisher:      publisher,
		logger:         logger,
		ops:            NewServiceLogger(logger, "attempt"),
		validator:      validator,
		tabSwitchLimit: tabSwitchLimit,
	}
}

// ===== ATTEMPT FETCH =====

func (s *attemptService) GetAttempt(ctx context.Context, studentID string, testID uint, retake bool) (resp *AttemptAccessResponse, err error) {
	op := s.ops.WithOperation(ctx, "get_attempt", studentID)
	defer func() { op.LogResult(testID, "test", err) }()

	s.logger.Info("Fetching test for attempt",
		"test_id", testID,
		"student_id", studentID,
		"retake", retake)

	// The attempt row doubles as the assignment record.
	attempt, err := s.repo.Attempt().GetByStudentAndTest(ctx, nil, studentID, testID)
	if err != nil {
		return nil, fmt.Errorf("failed to check assignment: %w", err)
	}
	isAssigned := attempt != nil

	test, err := s.repo.Test().GetByIDWithStructure(ctx, nil, testID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrTestNotFound
		}
		return nil, fmt.Errorf("failed to get test: %w", err)
	}

	now := time.Now()
	isOngoing := !now.Before(test.StartTime) && !now.After(test.EndTime)

	if !isAssigned || !isOngoing {
		pe := NewPermissionError(studentID, "test", "attempt", "access to test denied")
		pe.Details = map[string]interface{}{
			"is_student_assigned": isAssigned,
			"is_test_ongoing":     isOngoing,
			"test_start_time":     test.StartTime.Format(time.RFC3339),
		}
		return nil, pe
	}

	// A completed earlier attempt, or an explicit retake request, starts the
	// student fresh: answers, totals and proctoring counters are all cleared.
	if retake || attempt.Submitted {
		previouslySubmitted := attempt.Submitted
		resetAttemptForRetake(attempt)
		if err := s.repo.Attempt().UpdateWithVersion(ctx, nil, attempt); err != nil {
			return nil, s.mapAttemptWriteError(err)
		}
		s.logger.Info("Cleared previous attempt for retake",
			"test_id", testID,
			"student_id", studentID,
			"retake", retake,
			"previously_submitted", previouslySubmitted)
	}

	// Stamp the working window on the first fetch after creation or reset.
	// A lost race here is harmless; the next fetch sees the stamped row.
	if attempt.StartTime == nil {
		started := now
		attempt.StartTime = &started
		attempt.LastAutosave = &started
		if err := s.repo.Attempt().UpdateWithVersion(ctx, nil, attempt); err != nil {
			s.logger.Warn("Failed to stamp attempt start time",
				"test_id", testID,
				"student_id", studentID,
				"error", err)
		}
	}

	view, err := s.buildStudentTestView(ctx, test)
	if err != nil {
		return nil, fmt.Errorf("failed to build student test view: %w", err)
	}

	return &AttemptAccessResponse{
		AttemptID:         attempt.ID,
		IsStudentAssigned: true,
		TestStartTime:     test.StartTime,
		AttemptStartTime:  attempt.StartTime,
		Test:              view,
	}, nil
}

// ===== AUTOSAVE =====

func (s *attemptService) SaveProgress(ctx context.Context, studentID string, testID uint, answers AnswersPayload) (*AutosaveResponse, error) {
	s.logger.Info("Autosaving attempt",
		"test_id", testID,
		"student_id", studentID,
		"sections", len(answers))

	release, err := s.lockAttempt(ctx, studentID, testID)
	if err != nil {
		return nil, err
	}
	defer release()

	attempt, created, err := s.loadOrCreateAttempt(ctx, studentID, testID)
	if err != nil {
		return nil, err
	}
	if created {
		s.logger.Info("Created attempt on first autosave", "test_id", testID, "student_id", studentID)
	}
	if attempt.Submitted {
		return nil, ErrAttemptAlreadySubmitted
	}

	test, err := s.repo.Test().GetByIDWithStructure(ctx, nil, testID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrTestNotFound
		}
		return nil, fmt.Errorf("failed to get test: %w", err)
	}

	if err := s.applyAnswers(ctx, attempt, test, answers); err != nil {
		return nil, fmt.Errorf("failed to apply answers: %w", err)
	}

	now := time.Now()
	attempt.LastAutosave = &now
	if err := s.repo.Attempt().UpdateWithVersion(ctx, nil, attempt); err != nil {
		return nil, s.mapAttemptWriteError(err)
	}

	return &AutosaveResponse{
		Status:       "autosaved",
		LastAutosave: now,
		TotalMarks:   attempt.TotalMarks,
		MaxMarks:     attempt.MaxMarks,
	}, nil
}

// ===== EXPLICIT SUBMISSION =====

func (s *attemptService) SubmitAttempt(ctx context.Context, studentID string, testID uint, answers AnswersPayload) (resp *SubmitAttemptResponse, err error) {
	op := s.ops.WithOperation(ctx, "submit_attempt", studentID)
	defer func() { op.LogResult(testID, "test", err) }()

	s.logger.Info("Submitting attempt", "test_id", testID, "student_id", studentID)

	release, err := s.lockAttempt(ctx, studentID, testID)
	if err != nil {
		return nil, err
	}
	defer release()

	attempt, err := s.repo.Attempt().GetByStudentAndTest(ctx, nil, studentID, testID)
	if err != nil {
		return nil, fmt.Errorf("failed to get attempt: %w", err)
	}
	if attempt == nil {
		return nil, ErrAttemptNotFound
	}
	if attempt.Submitted {
		return nil, ErrAttemptAlreadySubmitted
	}

	test, err := s.repo.Test().GetByIDWithStructure(ctx, nil, testID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrTestNotFound
		}
		return nil, fmt.Errorf("failed to get test: %w", err)
	}

	s.finalizeAttempt(ctx, attempt, test, answers)
	if err := s.repo.Attempt().UpdateWithVersion(ctx, nil, attempt); err != nil {
		return nil, s.mapAttemptWriteError(err)
	}

	s.publishEvent(ctx, events.NewAttemptSubmittedEvent(attempt))
	s.logger.Info("Attempt submitted",
		"test_id", testID,
		"student_id", studentID,
		"total_marks", attempt.TotalMarks,
		"max_marks", attempt.MaxMarks)

	return &SubmitAttemptResponse{
		TestID:      testID,
		StudentID:   studentID,
		SubmittedAt: *attempt.SubmittedAt,
		TotalMarks:  attempt.TotalMarks,
		MaxMarks:    attempt.MaxMarks,
	}, nil
}

// ===== PROCTORING =====

func (s *attemptService) RecordTabSwitch(ctx context.Context, studentID string, testID uint, answers AnswersPayload) (*TabSwitchResponse, error) {
	release, err := s.lockAttempt(ctx, studentID, testID)
	if err != nil {
		return nil, err
	}
	defer release()

	attempt, err := s.repo.Attempt().GetByStudentAndTest(ctx, nil, studentID, testID)
	if err != nil {
		return nil, fmt.Errorf("failed to get attempt: %w", err)
	}
	if attempt == nil {
		return nil, ErrAttemptNotFound
	}
	if attempt.Submitted {
		return nil, ErrAttemptAlreadySubmitted
	}

	now := time.Now()
	attempt.TabSwitchesCount++
	attempt.LastAutosave = &now

	autoSubmitted := false
	if attempt.TabSwitchesCount >= s.tabSwitchLimit {
		// Hitting the limit counts as a proctoring violation in its own right.
		attempt.FullscreenViolated = true
		s.finalizeAttempt(ctx, attempt, s.loadTestForAutosave(ctx, testID, answers), answers)
		autoSubmitted = true
	}

	if err := s.repo.Attempt().UpdateWithVersion(ctx, nil, attempt); err != nil {
		return nil, s.mapAttemptWriteError(err)
	}

	if autoSubmitted {
		s.publishEvent(ctx, events.NewAttemptAutoSubmittedEvent(attempt, events.ReasonTabSwitchLimit))
	}
	s.ops.LogProctoringEvent(ctx, "tab_switch", studentID, testID, attempt.TabSwitchesCount, autoSubmitted)

	return &TabSwitchResponse{
		TabSwitchesCount:   attempt.TabSwitchesCount,
		FullscreenViolated: attempt.FullscreenViolated,
		LastAutosave:       attempt.LastAutosave,
		Submitted:          attempt.Submitted,
		SubmittedAt:        attempt.SubmittedAt,
		AutoSubmitted:      autoSubmitted,
	}, nil
}

func (s *attemptService) RecordFullscreenViolation(ctx context.Context, studentID string, testID uint, answers AnswersPayload) (*FullscreenViolationResponse, error) {
	release, err := s.lockAttempt(ctx, studentID, testID)
	if err != nil {
		return nil, err
	}
	defer release()

	attempt, err := s.repo.Attempt().GetByStudentAndTest(ctx, nil, studentID, testID)
	if err != nil {
		return nil, fmt.Errorf("failed to get attempt: %w", err)
	}
	if attempt == nil {
		return nil, ErrAttemptNotFound
	}
	if attempt.Submitted {
		return nil, ErrAttemptAlreadySubmitted
	}

	// A fullscreen violation ends the test immediately.
	attempt.FullscreenViolated = true
	s.finalizeAttempt(ctx, attempt, s.loadTestForAutosave(ctx, testID, answers), answers)

	if err := s.repo.Attempt().UpdateWithVersion(ctx, nil, attempt); err != nil {
		return nil, s.mapAttemptWriteError(err)
	}

	s.publishEvent(ctx, events.NewAttemptAutoSubmittedEvent(attempt, events.ReasonFullscreenViolation))
	s.ops.LogProctoringEvent(ctx, "fullscreen_violation", studentID, testID, attempt.TabSwitchesCount, true)

	return &FullscreenViolationResponse{
		FullscreenViolated: true,
		LastAutosave:       attempt.LastAutosave,
		Submitted:          attempt.Submitted,
		SubmittedAt:        attempt.SubmittedAt,
		TotalMarks:         attempt.TotalMarks,
	}, nil
}

// ===== ASSIGNMENT =====

func (s *attemptService) BulkAssign(ctx context.Context, testID uint, req *BulkAssignRequest) (*BulkAssignResponse, error) {
	s.logger.Info("Bulk assigning students", "test_id", testID, "students", len(req.StudentIDs))

	if err := s.validator.ValidateStruct(req); err != nil {
		return nil, apperrors.ToValidationErrors(err)
	}

	exists, err := s.repo.Test().Exists(ctx, nil, testID)
	if err != nil {
		return nil, fmt.Errorf("failed to check test: %w", err)
	}
	if !exists {
		return nil, ErrTestNotFound
	}

	resp := &BulkAssignResponse{Created: []string{}, Skipped: []string{}}
	err = s.repo.WithTransaction(ctx, func(tx *gorm.DB) error {
		assigned, err := s.repo.Attempt().GetAssignedStudentIDs(ctx, tx, testID)
		if err != nil {
			return fmt.Errorf("failed to list assigned students: %w", err)
		}
		assignedSet := make(map[string]struct{}, len(assigned))
		for _, id := range assigned {
			assignedSet[id] = struct{}{}
		}

		attempts := make([]*models.Attempt, 0, len(req.StudentIDs))
		for _, studentID := range req.StudentIDs {
			if _, dup := assignedSet[studentID]; dup {
				resp.Skipped = append(resp.Skipped, studentID)
				continue
			}
			assignedSet[studentID] = struct{}{}
			attempts = append(attempts, &models.Attempt{StudentID: studentID, TestID: testID})
			resp.Created = append(resp.Created, studentID)
		}
		return s.repo.Attempt().CreateBatch(ctx, tx, attempts)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Bulk assignment finished",
		"test_id", testID,
		"created", len(resp.Created),
		"skipped", len(resp.Skipped))
	return resp, nil
}

// ===== SHARED PLUMBING =====

func (s *attemptService) loadOrCreateAttempt(ctx context.Context, studentID string, testID uint) (*models.Attempt, bool, error) {
	attempt, err := s.repo.Attempt().GetByStudentAndTest(ctx, nil, studentID, testID)
	if err != nil {
		return nil, false, fmt.Errorf("failed to get attempt: %w", err)
	}
	if attempt != nil {
		return attempt, false, nil
	}

	attempt = &models.Attempt{StudentID: studentID, TestID: testID}
	if err := s.repo.Attempt().Create(ctx, nil, attempt); err != nil {
		return nil, false, fmt.Errorf("failed to create attempt: %w", err)
	}
	return attempt, true, nil
}

// loadTestForAutosave resolves the test structure for a best-effort autosave
// during forced submission. Returns nil when there is nothing to apply or the
// structure cannot be loaded; the submission itself proceeds either way.
func (s *attemptService) loadTestForAutosave(ctx context.Context, testID uint, answers AnswersPayload) *models.Test {
	if len(answers) == 0 {
		return nil
	}
	test, err := s.repo.Test().GetByIDWithStructure(ctx, nil, testID)
	if err != nil {
		s.logger.Warn("Failed to load test for forced-submission autosave",
			"test_id", testID,
			"error", err)
		return nil
	}
	return test
}

func (s *attemptService) mapAttemptWriteError(err error) error {
	if errors.Is(err, repositories.ErrStaleVersion) {
		return ErrAttemptVersionConflict
	}
	return fmt.Errorf("failed to update attempt: %w", err)
}

func (s *attemptService) publishEvent(ctx context.Context, event *events.ExamEvent) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishExamEvent(ctx, event); err != nil {
		s.logger.Error("Failed to publish event",
			"event_type", event.Type,
			"error", err)
	}
}
