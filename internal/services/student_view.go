package services

import (
	"context"
	"hash/fnv"
	"math/rand"
	"time"

	"github.com/deloaiprivatelimited/exam-engine/internal/models"
)

// ===== STUDENT-FACING TEST VIEW =====
//
// The view is what an examinee is allowed to see: full question content with
// every scoring secret stripped (correct options, correct order, solutions,
// hidden test cases). Shuffling is deterministic per section so refreshing
// the page never reorders a paper mid-attempt.

type StudentTestView struct {
	ID              uint      `json:"id"`
	Name            string    `json:"name"`
	Description     string    `json:"description,omitempty"`
	Instructions    string    `json:"instructions,omitempty"`
	DurationSeconds int       `json:"duration_seconds"`
	StartTime       time.Time `json:"start_time"`
	EndTime         time.Time `json:"end_time"`
	TotalSections   int       `json:"total_sections"`

	SectionsTimeRestricted []StudentSectionView `json:"sections_time_restricted"`
	SectionsOpen           []StudentSectionView `json:"sections_open"`
}

type StudentSectionView struct {
	ID             uint   `json:"id"`
	Name           string `json:"name"`
	Description    string `json:"description,omitempty"`
	Instructions   string `json:"instructions,omitempty"`
	TimeRestricted bool   `json:"time_restricted"`
	Duration       int    `json:"duration"` // Minutes
	NoOfQuestions  int    `json:"no_of_questions"`

	Questions []StudentQuestionView `json:"questions"`
}

// StudentQuestionView carries exactly one populated variant, matching
// QuestionType.
type StudentQuestionView struct {
	QuestionID   string              `json:"question_id"`
	QuestionType models.QuestionType `json:"question_type"`

	MCQ       *StudentMCQView       `json:"mcq,omitempty"`
	Coding    *StudentCodingView    `json:"coding,omitempty"`
	Rearrange *StudentRearrangeView `json:"rearrange,omitempty"`
}

type StudentMCQView struct {
	Title         string             `json:"title"`
	QuestionText  string             `json:"question_text"`
	Options       []models.MCQOption `json:"options"`
	IsMultiple    bool               `json:"is_multiple"`
	Marks         float64            `json:"marks"`
	NegativeMarks float64            `json:"negative_marks"`
	TimeLimit     int                `json:"time_limit"` // Seconds
}

type StudentRearrangeView struct {
	Title         string                 `json:"title"`
	Prompt        string                 `json:"prompt"`
	Items         []models.RearrangeItem `json:"items"`
	IsDragAndDrop bool                   `json:"is_drag_and_drop"`
	Marks         float64                `json:"marks"`
	NegativeMarks float64                `json:"negative_marks"`
}

type StudentCodingView struct {
	Title                   string            `json:"title"`
	ShortDescription        string            `json:"short_description,omitempty"`
	LongDescriptionMarkdown string            `json:"long_description_markdown,omitempty"`
	SampleIO                []models.SampleIO `json:"sample_io"`
	AllowedLanguages        []string          `json:"allowed_languages"`
	PredefinedBoilerplates  map[string]string `json:"predefined_boilerplates,omitempty"`
	RunCodeEnabled          bool              `json:"run_code_enabled"`
	SubmissionEnabled       bool              `json:"submission_enabled"`
	Marks                   float64           `json:"marks"`
}

func (s *attemptService) buildStudentTestView(ctx context.Context, test *models.Test) (*StudentTestView, error) {
	bank, err := s.loadQuestionBank(ctx, liveSectionPlans(test))
	if err != nil {
		return nil, err
	}

	view := &StudentTestView{
		ID:              test.ID,
		Name:            test.Name,
		DurationSeconds: test.DurationSeconds,
		StartTime:       test.StartTime,
		EndTime:         test.EndTime,
		TotalSections:   len(test.Sections),

		SectionsTimeRestricted: []StudentSectionView{},
		SectionsOpen:           []StudentSectionView{},
	}
	if test.Description != nil {
		view.Description = *test.Description
	}
	if test.Instructions != nil {
		view.Instructions = *test.Instructions
	}

	for i := range test.Sections {
		sec := s.buildStudentSectionView(&test.Sections[i], bank)
		if sec.TimeRestricted {
			view.SectionsTimeRestricted = append(view.SectionsTimeRestricted, sec)
		} else {
			view.SectionsOpen = append(view.SectionsOpen, sec)
		}
	}

	return view, nil
}

func (s *attemptService) buildStudentSectionView(sec *models.Section, bank *questionBank) StudentSectionView {
	view := StudentSectionView{
		ID:             sec.ID,
		Name:           sec.Name,
		TimeRestricted: sec.TimeRestricted,
		Duration:       sec.Duration,
		Questions:      []StudentQuestionView{},
	}
	if sec.Description != nil {
		view.Description = *sec.Description
	}
	if sec.Instructions != nil {
		view.Instructions = *sec.Instructions
	}

	for _, ref := range sec.Questions {
		q, ok := s.buildStudentQuestionView(sec, ref, bank)
		if !ok {
			s.logger.Warn("Dropping dangling question reference from student view",
				"section_id", sec.ID,
				"question_id", ref.QuestionID,
				"question_type", ref.QuestionType)
			continue
		}
		view.Questions = append(view.Questions, q)
	}

	if sec.ShuffleQuestions {
		r := shuffleRand("section", formatID(sec.ID))
		r.Shuffle(len(view.Questions), func(i, j int) {
			view.Questions[i], view.Questions[j] = view.Questions[j], view.Questions[i]
		})
	}

	view.NoOfQuestions = len(view.Questions)
	return view
}

func (s *attemptService) buildStudentQuestionView(sec *models.Section, ref models.SectionQuestion, bank *questionBank) (StudentQuestionView, bool) {
	view := StudentQuestionView{
		QuestionID:   formatID(ref.QuestionID),
		QuestionType: ref.QuestionType,
	}

	switch ref.QuestionType {
	case models.QuestionTypeMCQ:
		live, ok := bank.mcq[ref.QuestionID]
		if !ok {
			return view, false
		}
		mcq := &StudentMCQView{
			Title:         live.Title,
			QuestionText:  live.QuestionText,
			IsMultiple:    live.IsMultiple,
			Marks:         live.Marks,
			NegativeMarks: live.NegativeMarks,
			TimeLimit:     live.TimeLimit,
		}
		decodeJSON(live.Options, &mcq.Options)
		if sec.ShuffleOptions {
			r := shuffleRand("options", formatID(sec.ID), view.QuestionID)
			r.Shuffle(len(mcq.Options), func(i, j int) {
				mcq.Options[i], mcq.Options[j] = mcq.Options[j], mcq.Options[i]
			})
		}
		view.MCQ = mcq

	case models.QuestionTypeRearrange:
		live, ok := bank.rearrange[ref.QuestionID]
		if !ok {
			return view, false
		}
		rearrange := &StudentRearrangeView{
			Title:         live.Title,
			Prompt:        live.Prompt,
			IsDragAndDrop: live.IsDragAndDrop,
			Marks:         live.Marks,
			NegativeMarks: live.NegativeMarks,
		}
		decodeJSON(live.Items, &rearrange.Items)
		// Items are authored in solution order more often than not, so the
		// presented order is always shuffled.
		r := shuffleRand("items", formatID(sec.ID), view.QuestionID)
		r.Shuffle(len(rearrange.Items), func(i, j int) {
			rearrange.Items[i], rearrange.Items[j] = rearrange.Items[j], rearrange.Items[i]
		})
		view.Rearrange = rearrange

	case models.QuestionTypeCoding:
		live, ok := bank.coding[ref.QuestionID]
		if !ok {
			return view, false
		}
		coding := &StudentCodingView{
			RunCodeEnabled:    live.RunCodeEnabled,
			SubmissionEnabled: live.SubmissionEnabled,
			Title:             live.Title,
			Marks:             float64(live.Points),
		}
		if live.ShortDescription != nil {
			coding.ShortDescription = *live.ShortDescription
		}
		if live.LongDescriptionMarkdown != nil {
			coding.LongDescriptionMarkdown = *live.LongDescriptionMarkdown
		}
		decodeJSON(live.SampleIO, &coding.SampleIO)
		decodeJSON(live.AllowedLanguages, &coding.AllowedLanguages)
		if live.ShowBoilerplates {
			decodeJSON(live.PredefinedBoilerplates, &coding.PredefinedBoilerplates)
		}
		view.Coding = coding

	default:
		return view, false
	}

	return view, true
}

// liveSectionPlans adapts the test structure to the question-bank loader
// without any client payload.
func liveSectionPlans(test *models.Test) []sectionPlan {
	plans := make([]sectionPlan, 0, len(test.Sections))
	for i := range test.Sections {
		sec := &test.Sections[i]
		plan := sectionPlan{key: formatID(sec.ID)}
		for _, ref := range sec.Questions {
			plan.questions = append(plan.questions, resolvedQuestion{
				key: formatID(ref.QuestionID),
				id:  ref.QuestionID,
				qt:  ref.QuestionType,
			})
		}
		plans = append(plans, plan)
	}
	return plans
}

// shuffleRand derives a stable source from structural ids, so the same
// section always shuffles the same way for every student and every fetch.
func shuffleRand(parts ...string) *rand.Rand {
	h := fnv.New64a()
	for _, part := range parts {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return rand.New(rand.NewSource(int64(h.Sum64())))
}
