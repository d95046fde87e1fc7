package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"gorm.io/datatypes"

	"github.com/deloaiprivatelimited/exam-engine/internal/cache"
	"github.com/deloaiprivatelimited/exam-engine/internal/models"
)

// ===== ATTEMPT LOCKING =====

const (
	attemptLockTTL  = 10 * time.Second
	attemptLockWait = 5 * time.Second
)

func attemptLockKey(studentID string, testID uint) string {
	return fmt.Sprintf("attempt:lock:%s:%d", studentID, testID)
}

// lockAttempt serializes writers of one (student, test) attempt. The returned
// release function is safe to defer; a nil locker (tests) degrades to the
// optimistic version check alone.
func (s *attemptService) lockAttempt(ctx context.Context, studentID string, testID uint) (func(), error) {
	if s.locker == nil {
		return func() {}, nil
	}

	key := attemptLockKey(studentID, testID)
	token, err := s.locker.Acquire(ctx, key, attemptLockTTL, attemptLockWait)
	if err != nil {
		if errors.Is(err, cache.ErrLockNotAcquired) {
			return nil, ErrAttemptVersionConflict
		}
		return nil, fmt.Errorf("failed to lock attempt: %w", err)
	}

	return func() {
		if err := s.locker.Release(ctx, key, token); err != nil {
			s.logger.Warn("Failed to release attempt lock", "key", key, "error", err)
		}
	}, nil
}

// ===== RETAKE / FINALIZE =====

// resetAttemptForRetake clears everything except the assignment itself, so
// the student starts fresh while keeping their row (and its id) intact.
func resetAttemptForRetake(attempt *models.Attempt) {
	attempt.TimedSectionAnswers = datatypes.JSON("[]")
	attempt.OpenSectionAnswers = datatypes.JSON("[]")
	attempt.StartTime = nil
	attempt.LastAutosave = nil
	attempt.TotalMarks = 0
	attempt.MaxMarks = 0
	attempt.TabSwitchesCount = 0
	attempt.FullscreenViolated = false
	attempt.Submitted = false
	attempt.SubmittedAt = nil
}

// finalizeAttempt applies any supplied answers best-effort, freezes the
// totals and marks the attempt submitted. Callers persist and publish.
// A nil test skips the autosave; the submission itself never fails here.
func (s *attemptService) finalizeAttempt(ctx context.Context, attempt *models.Attempt, test *models.Test, answers AnswersPayload) {
	if test != nil && len(answers) > 0 {
		if err := s.applyAnswers(ctx, attempt, test, answers); err != nil {
			s.logger.Warn("Autosave during submission failed",
				"test_id", attempt.TestID,
				"student_id", attempt.StudentID,
				"error", err)
		}
	}

	freezeAttemptTotals(attempt)

	now := time.Now()
	attempt.Submitted = true
	attempt.SubmittedAt = &now
	attempt.LastAutosave = &now
}

// ===== ANSWER RESOLUTION =====

// resolvedQuestion is one (question, type) pair scheduled for processing,
// with the client's raw value when one was sent this call.
type resolvedQuestion struct {
	key  string // canonical string id, as stored in Answer.QuestionID
	id   uint
	qt   models.QuestionType
	raw  json.RawMessage
	sent bool
}

// sectionPlan is the authoritative processing unit for one section: the
// union of the live structure and the client payload, with the target list
// already decided.
type sectionPlan struct {
	key       string
	name      string
	duration  int // Minutes
	timed     bool
	questions []resolvedQuestion
}

// applyAnswers runs the autosave algorithm over the attempt's stored answer
// lists: resolve section plans, rebuild snapshots from the live questions,
// normalize and grade new input, then recompute all totals. Per-question
// failures are skipped; only infrastructural errors are returned.
func (s *attemptService) applyAnswers(ctx context.Context, attempt *models.Attempt, test *models.Test, payload AnswersPayload) error {
	plans := s.resolveSectionPlans(ctx, test, payload)

	bank, err := s.loadQuestionBank(ctx, plans)
	if err != nil {
		return err
	}

	timed := decodeSectionAnswers(attempt.TimedSectionAnswers)
	open := decodeSectionAnswers(attempt.OpenSectionAnswers)

	for _, plan := range plans {
		if len(plan.questions) == 0 {
			continue
		}
		target := &open
		if plan.timed {
			target = &timed
		}
		secAns := findOrCreateSectionAnswers(target, plan)

		for _, q := range plan.questions {
			if err := s.applyAnswer(ctx, attempt, secAns, q, bank); err != nil {
				s.logger.Warn("Skipping answer during autosave",
					"test_id", attempt.TestID,
					"student_id", attempt.StudentID,
					"section_id", plan.key,
					"question_id", q.key,
					"error", err)
			}
		}
	}

	recomputeAttemptMarks(attempt, timed, open)
	attempt.TimedSectionAnswers = encodeSectionAnswers(timed)
	attempt.OpenSectionAnswers = encodeSectionAnswers(open)
	return nil
}

// resolveSectionPlans unions the live test structure with the client payload.
// Live sections are authoritative for names, durations, timing and question
// types. A client section unknown to the test is looked up in the section
// store (a structurally stale client may still reference a real section);
// a section unknown everywhere lands in the open list with zero metadata.
func (s *attemptService) resolveSectionPlans(ctx context.Context, test *models.Test, payload AnswersPayload) []sectionPlan {
	plans := make([]sectionPlan, 0, len(test.Sections)+len(payload))
	seen := make(map[string]struct{}, len(test.Sections))

	for i := range test.Sections {
		sec := &test.Sections[i]
		key := formatID(sec.ID)
		seen[key] = struct{}{}
		plans = append(plans, s.planSection(key, sec, payload[key]))
	}

	for _, key := range sortedKeys(payload) {
		if _, ok := seen[key]; ok {
			continue
		}
		plans = append(plans, s.planStaleSection(ctx, key, payload[key]))
	}

	return plans
}

// planSection builds the processing plan for a section whose structure is
// known: the union of its question references and the client's question ids.
func (s *attemptService) planSection(key string, sec *models.Section, qmap map[string]AnswerInput) sectionPlan {
	plan := sectionPlan{
		key:      key,
		name:     sec.Name,
		duration: sec.Duration,
		timed:    sec.TimeRestricted,
	}

	liveType := make(map[string]models.QuestionType, len(sec.Questions))
	for _, ref := range sec.Questions {
		qKey := formatID(ref.QuestionID)
		liveType[qKey] = ref.QuestionType

		q := resolvedQuestion{key: qKey, id: ref.QuestionID, qt: ref.QuestionType}
		q.raw, q.sent = clientValue(qmap, qKey)
		plan.questions = append(plan.questions, q)
	}

	// Client-only questions: the declared type hint is the fallback when the
	// live structure does not know the id at all.
	for _, qKey := range sortedKeys(qmap) {
		canonical, id, ok := canonicalQuestionKey(qKey)
		if !ok {
			s.logger.Warn("Dropping answer with unparsable question id", "section_id", key, "question_id", qKey)
			continue
		}
		if _, live := liveType[canonical]; live {
			continue
		}
		qt, ok := questionTypeFromHint(qmap[qKey].Qwell)
		if !ok {
			s.logger.Warn("Dropping answer with unresolvable question type",
				"section_id", key,
				"question_id", qKey,
				"qwell", qmap[qKey].Qwell)
			continue
		}
		raw, sent := clientValue(qmap, qKey)
		plan.questions = append(plan.questions, resolvedQuestion{key: canonical, id: id, qt: qt, raw: raw, sent: sent})
	}

	return plan
}

// planStaleSection handles a client section id the live test no longer
// carries. A real section found in the store keeps its own structure and
// timing; anything else defaults to the open list.
func (s *attemptService) planStaleSection(ctx context.Context, key string, qmap map[string]AnswerInput) sectionPlan {
	if id, ok := parseID(key); ok {
		section, err := s.repo.Test().GetSectionByID(ctx, nil, id)
		if err != nil {
			s.logger.Warn("Failed to look up stale section", "section_id", key, "error", err)
		} else if section != nil {
			return s.planSection(key, section, qmap)
		}
	}

	plan := sectionPlan{key: key}
	for _, qKey := range sortedKeys(qmap) {
		canonical, id, ok := canonicalQuestionKey(qKey)
		if !ok {
			s.logger.Warn("Dropping answer with unparsable question id", "section_id", key, "question_id", qKey)
			continue
		}
		qt, ok := questionTypeFromHint(qmap[qKey].Qwell)
		if !ok {
			s.logger.Warn("Dropping answer with unresolvable question type",
				"section_id", key,
				"question_id", qKey,
				"qwell", qmap[qKey].Qwell)
			continue
		}
		raw, sent := clientValue(qmap, qKey)
		plan.questions = append(plan.questions, resolvedQuestion{key: canonical, id: id, qt: qt, raw: raw, sent: sent})
	}
	return plan
}

// clientValue fetches the raw payload value for a canonical question key.
func clientValue(qmap map[string]AnswerInput, key string) (json.RawMessage, bool) {
	if qmap == nil {
		return nil, false
	}
	input, ok := qmap[key]
	if !ok {
		return nil, false
	}
	return input.Value, true
}

// canonicalQuestionKey normalizes a client question id to the formatted form
// used by stored answers, so "007" and "7" address the same record.
func canonicalQuestionKey(key string) (string, uint, bool) {
	id, ok := parseID(key)
	if !ok {
		return "", 0, false
	}
	return formatID(id), id, true
}

func questionTypeFromHint(hint string) (models.QuestionType, bool) {
	switch models.QuestionType(strings.ToLower(strings.TrimSpace(hint))) {
	case models.QuestionTypeMCQ:
		return models.QuestionTypeMCQ, true
	case models.QuestionTypeCoding:
		return models.QuestionTypeCoding, true
	case models.QuestionTypeRearrange:
		return models.QuestionTypeRearrange, true
	}
	return "", false
}

// ===== QUESTION BANK =====

// questionBank holds the batch-fetched live questions for one autosave pass.
type questionBank struct {
	mcq       map[uint]*models.QuestionMCQ
	coding    map[uint]*models.QuestionCoding
	rearrange map[uint]*models.QuestionRearrange
}

func (s *attemptService) loadQuestionBank(ctx context.Context, plans []sectionPlan) (*questionBank, error) {
	var mcqIDs, codingIDs, rearrangeIDs []uint
	for _, plan := range plans {
		for _, q := range plan.questions {
			switch q.qt {
			case models.QuestionTypeMCQ:
				mcqIDs = append(mcqIDs, q.id)
			case models.QuestionTypeCoding:
				codingIDs = append(codingIDs, q.id)
			case models.QuestionTypeRearrange:
				rearrangeIDs = append(rearrangeIDs, q.id)
			}
		}
	}

	mcqs, err := s.repo.Question().GetMCQsByIDs(ctx, nil, mcqIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to get mcq questions: %w", err)
	}
	codings, err := s.repo.Question().GetCodingsByIDs(ctx, nil, codingIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to get coding questions: %w", err)
	}
	rearranges, err := s.repo.Question().GetRearrangesByIDs(ctx, nil, rearrangeIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to get rearrange questions: %w", err)
	}

	return &questionBank{mcq: mcqs, coding: codings, rearrange: rearranges}, nil
}

// ===== PER-QUESTION APPLY =====

// applyAnswer upserts one answer record: fresh snapshot from the live
// question, normalized value when the client sent one, then grading. A nil
// grading outcome never clears a previously stored marks_obtained.
func (s *attemptService) applyAnswer(ctx context.Context, attempt *models.Attempt, secAns *models.SectionAnswers, q resolvedQuestion, bank *questionBank) error {
	ans := findAnswer(secAns, q.key)
	creating := ans == nil
	if creating {
		ans = &models.Answer{QuestionID: q.key, Value: models.AnswerValue{Value: []string{}}}
	}

	// Snapshots always track the live question; a dangling reference leaves
	// the stored answer untouched.
	switch q.qt {
	case models.QuestionTypeMCQ:
		live, ok := bank.mcq[q.id]
		if !ok {
			return ErrQuestionNotFound
		}
		ans.QuestionType = q.qt
		setSnapshot(ans, BuildMCQSnapshot(live), nil, nil)
		if q.sent && !isNullValue(q.raw) {
			ans.Value = NormalizeValue(q.raw, q.qt)
			score := GradeMCQ(ans.SnapshotMCQ, ans.Value.Value)
			ans.MarksObtained = &score
		}

	case models.QuestionTypeRearrange:
		live, ok := bank.rearrange[q.id]
		if !ok {
			return ErrQuestionNotFound
		}
		ans.QuestionType = q.qt
		setSnapshot(ans, nil, nil, BuildRearrangeSnapshot(live))
		if q.sent && !isNullValue(q.raw) {
			ans.Value = NormalizeValue(q.raw, q.qt)
			score := GradeRearrange(ans.SnapshotRearrange, ans.Value.Value)
			ans.MarksObtained = &score
		}

	case models.QuestionTypeCoding:
		live, ok := bank.coding[q.id]
		if !ok {
			return ErrQuestionNotFound
		}
		ans.QuestionType = q.qt
		setSnapshot(ans, nil, BuildCodingSnapshot(live), nil)
		if q.sent && !isNullValue(q.raw) {
			ans.Value = NormalizeValue(q.raw, q.qt)
		}
		// Coding grades from the stored submission ids on every pass, so a
		// submission judged after the last autosave still lands in totals.
		if score := s.gradeCoding(ctx, attempt.StudentID, q.id, ans.Value.Value); score != nil {
			ans.MarksObtained = score
		}

	default:
		return ErrQuestionNotFound
	}

	if creating {
		secAns.Answers = append(secAns.Answers, *ans)
	}
	return nil
}

// setSnapshot keeps the tagged union honest: exactly one snapshot variant is
// populated after every rebuild.
func setSnapshot(ans *models.Answer, mcq *models.MCQSnapshot, coding *models.CodingSnapshot, rearrange *models.RearrangeSnapshot) {
	ans.SnapshotMCQ = mcq
	ans.SnapshotCoding = coding
	ans.SnapshotRearrange = rearrange
}

// gradeCoding resolves the answer's submission ids to the student's own
// submissions and scores the best one. Returns nil when nothing resolves,
// which preserves any previously stored marks.
func (s *attemptService) gradeCoding(ctx context.Context, studentID string, questionID uint, submissionKeys []string) *float64 {
	ids := parseIDList(submissionKeys)
	if len(ids) == 0 {
		return nil
	}

	subs, err := s.repo.Submission().GetByIDsForUserAndQuestion(ctx, nil, ids, studentID, questionID)
	if err != nil {
		s.logger.Warn("Failed to resolve submissions for grading",
			"student_id", studentID,
			"question_id", questionID,
			"error", err)
		return nil
	}
	if len(subs) == 0 {
		return nil
	}

	_, score := BestSubmission(subs)
	return &score
}

// ===== AGGREGATION =====

func recomputeSectionMarks(sec *models.SectionAnswers) {
	var maxMarks, totalMarks float64
	for i := range sec.Answers {
		ans := &sec.Answers[i]
		maxMarks += ans.SnapshotMarks()
		if ans.MarksObtained != nil {
			totalMarks += *ans.MarksObtained
		}
	}
	sec.MaxMarks = maxMarks
	sec.TotalMarks = totalMarks
}

func recomputeAttemptMarks(attempt *models.Attempt, timed, open []models.SectionAnswers) {
	var maxMarks, totalMarks float64
	for i := range timed {
		recomputeSectionMarks(&timed[i])
		maxMarks += timed[i].MaxMarks
		totalMarks += timed[i].TotalMarks
	}
	for i := range open {
		recomputeSectionMarks(&open[i])
		maxMarks += open[i].MaxMarks
		totalMarks += open[i].TotalMarks
	}
	attempt.TotalMarks = totalMarks
	attempt.MaxMarks = maxMarks
}

// freezeAttemptTotals recomputes from the stored answer lists alone, for
// paths that finalize without applying a fresh payload.
func freezeAttemptTotals(attempt *models.Attempt) {
	timed := decodeSectionAnswers(attempt.TimedSectionAnswers)
	open := decodeSectionAnswers(attempt.OpenSectionAnswers)
	recomputeAttemptMarks(attempt, timed, open)
	attempt.TimedSectionAnswers = encodeSectionAnswers(timed)
	attempt.OpenSectionAnswers = encodeSectionAnswers(open)
}

// ===== STORED ANSWER LISTS =====

func decodeSectionAnswers(src datatypes.JSON) []models.SectionAnswers {
	var out []models.SectionAnswers
	decodeJSON(src, &out)
	return out
}

func encodeSectionAnswers(list []models.SectionAnswers) datatypes.JSON {
	if list == nil {
		list = []models.SectionAnswers{}
	}
	raw, err := json.Marshal(list)
	if err != nil {
		return datatypes.JSON("[]")
	}
	return datatypes.JSON(raw)
}

// findOrCreateSectionAnswers locates the section's answer group in the
// target list, refreshing the denormalized metadata, or appends a new one.
func findOrCreateSectionAnswers(target *[]models.SectionAnswers, plan sectionPlan) *models.SectionAnswers {
	for i := range *target {
		if (*target)[i].SectionID == plan.key {
			if plan.name != "" {
				(*target)[i].SectionName = plan.name
				(*target)[i].SectionDuration = plan.duration
			}
			return &(*target)[i]
		}
	}

	*target = append(*target, models.SectionAnswers{
		SectionID:       plan.key,
		SectionName:     plan.name,
		SectionDuration: plan.duration,
		Answers:         []models.Answer{},
	})
	return &(*target)[len(*target)-1]
}

func findAnswer(secAns *models.SectionAnswers, questionKey string) *models.Answer {
	for i := range secAns.Answers {
		if secAns.Answers[i].QuestionID == questionKey {
			return &secAns.Answers[i]
		}
	}
	return nil
}

// ===== ID PARSING =====

func parseID(s string) (uint, bool) {
	n, err := strconv.ParseUint(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, false
	}
	return uint(n), true
}

// parseIDList drops entries that are not numeric ids; clients occasionally
// send placeholder strings for pending submissions.
func parseIDList(keys []string) []uint {
	ids := make([]uint, 0, len(keys))
	for _, key := range keys {
		if id, ok := parseID(key); ok {
			ids = append(ids, id)
		}
	}
	return ids
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
