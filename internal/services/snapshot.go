package services

import (
	"encoding/json"
	"strconv"

	"gorm.io/datatypes"

	"github.com/deloaiprivatelimited/exam-engine/internal/models"
)

// ===== QUESTION SNAPSHOT BUILDERS =====
//
// Builders copy every field needed to redisplay a question verbatim and to
// grade its answer without re-reading the live row later. Pure transforms,
// no side effects.

func BuildMCQSnapshot(q *models.QuestionMCQ) *models.MCQSnapshot {
	snap := &models.MCQSnapshot{
		QuestionID:    formatID(q.ID),
		Title:         q.Title,
		QuestionText:  q.QuestionText,
		IsMultiple:    q.IsMultiple,
		Marks:         q.Marks,
		NegativeMarks: q.NegativeMarks,
	}
	if q.Explanation != nil {
		snap.Explanation = *q.Explanation
	}
	decodeJSON(q.Options, &snap.Options)
	decodeJSON(q.CorrectOptions, &snap.CorrectOptions)
	return snap
}

func BuildRearrangeSnapshot(q *models.QuestionRearrange) *models.RearrangeSnapshot {
	snap := &models.RearrangeSnapshot{
		QuestionID:    formatID(q.ID),
		Title:         q.Title,
		Prompt:        q.Prompt,
		IsDragAndDrop: q.IsDragAndDrop,
		Marks:         q.Marks,
		NegativeMarks: q.NegativeMarks,
	}
	if q.Explanation != nil {
		snap.Explanation = *q.Explanation
	}
	decodeJSON(q.Items, &snap.Items)
	decodeJSON(q.CorrectOrder, &snap.CorrectOrder)
	return snap
}

func BuildCodingSnapshot(q *models.QuestionCoding) *models.CodingSnapshot {
	snap := &models.CodingSnapshot{
		QuestionID:        formatID(q.ID),
		Title:             q.Title,
		RunCodeEnabled:    q.RunCodeEnabled,
		SubmissionEnabled: q.SubmissionEnabled,
		// Marks mirrors the question's judge points so that attempt totals
		// include coding questions on the same scale as everything else.
		Marks: float64(q.Points),
	}
	if q.ShortDescription != nil {
		snap.ShortDescription = *q.ShortDescription
	}
	if q.LongDescriptionMarkdown != nil {
		snap.LongDescriptionMarkdown = *q.LongDescriptionMarkdown
	}
	decodeJSON(q.SampleIO, &snap.SampleIO)
	decodeJSON(q.AllowedLanguages, &snap.AllowedLanguages)
	decodeJSON(q.PredefinedBoilerplates, &snap.PredefinedBoilerplates)
	return snap
}

func formatID(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}

// decodeJSON decodes a JSONB column best-effort: an empty or malformed
// column leaves dst untouched instead of failing the surrounding save.
func decodeJSON(src datatypes.JSON, dst interface{}) {
	if len(src) == 0 {
		return
	}
	_ = json.Unmarshal(src, dst)
}
