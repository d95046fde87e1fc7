package services

import (
	"github.com/deloaiprivatelimited/exam-engine/internal/models"
)

// ===== TYPE GRADERS =====
//
// Pure functions over snapshots. Grading reads only the frozen snapshot,
// never the live question, so bank edits cannot change recorded history.

// GradeMCQ scores a selection against an MCQ snapshot.
//
// Single-answer: full marks iff exactly one option is selected and it is a
// correct one; no negative marking. Multi-answer:
// marks x |correct∩selected| / |correct| - negative_marks x |selected\correct|,
// clamped to [0, marks]. An empty correct set scores 0.
// Duplicate selections collapse before scoring.
func GradeMCQ(snap *models.MCQSnapshot, selectedOptionIDs []string) float64 {
	if snap == nil {
		return 0
	}

	selected := toSet(selectedOptionIDs)
	correct := toSet(snap.CorrectOptions)

	if !snap.IsMultiple {
		if len(selected) != 1 {
			return 0
		}
		for id := range selected {
			if _, ok := correct[id]; ok {
				return snap.Marks
			}
		}
		return 0
	}

	if len(correct) == 0 {
		return 0
	}

	correctSelected := 0
	incorrectSelected := 0
	for id := range selected {
		if _, ok := correct[id]; ok {
			correctSelected++
		} else {
			incorrectSelected++
		}
	}

	score := snap.Marks*float64(correctSelected)/float64(len(correct)) -
		snap.NegativeMarks*float64(incorrectSelected)
	if score < 0 {
		return 0
	}
	if score > snap.Marks {
		return snap.Marks
	}
	return score
}

// GradeRearrange scores a submitted ordering against a rearrange snapshot.
// Exact match only: the submitted order is truncated to the length of the
// correct order and must then equal it element-wise for full marks; anything
// else scores 0. An empty correct order scores 0.
func GradeRearrange(snap *models.RearrangeSnapshot, orderedItemIDs []string) float64 {
	if snap == nil || len(snap.CorrectOrder) == 0 {
		return 0
	}

	submitted := orderedItemIDs
	if len(submitted) > len(snap.CorrectOrder) {
		submitted = submitted[:len(snap.CorrectOrder)]
	}
	if len(submitted) != len(snap.CorrectOrder) {
		return 0
	}
	for i, itemID := range snap.CorrectOrder {
		if submitted[i] != itemID {
			return 0
		}
	}
	return snap.Marks
}

// EffectiveScore is a submission's stored rollup when positive, else the sum
// of its per-case awarded points.
func EffectiveScore(sub *models.Submission) float64 {
	if sub == nil {
		return 0
	}
	if sub.TotalScore > 0 {
		return float64(sub.TotalScore)
	}

	var cases []models.SubmissionCaseResult
	decodeJSON(sub.CaseResults, &cases)
	total := 0
	for _, cr := range cases {
		total += cr.PointsAwarded
	}
	return float64(total)
}

// BestSubmission picks the submission with the highest effective score,
// tie-breaking by most recent creation time. Returns nil for an empty list.
func BestSubmission(subs []*models.Submission) (*models.Submission, float64) {
	var best *models.Submission
	var bestScore float64
	for _, sub := range subs {
		if sub == nil {
			continue
		}
		score := EffectiveScore(sub)
		switch {
		case best == nil, score > bestScore:
			best = sub
			bestScore = score
		case score == bestScore && sub.CreatedAt.After(best.CreatedAt):
			best = sub
		}
	}
	return best, bestScore
}

func toSet(ids []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}
