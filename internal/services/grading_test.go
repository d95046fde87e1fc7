package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"gorm.io/datatypes"

	"github.com/deloaiprivatelimited/exam-engine/internal/models"
)

func TestGradeMCQ_SingleAnswer(t *testing.T) {
	snap := &models.MCQSnapshot{
		QuestionID:     "1",
		CorrectOptions: []string{"B"},
		IsMultiple:     false,
		Marks:          5,
		NegativeMarks:  1,
	}

	tests := []struct {
		name     string
		selected []string
		want     float64
	}{
		{"correct option selected", []string{"B"}, 5},
		{"wrong option selected", []string{"A"}, 0},
		{"no selection", []string{}, 0},
		{"nil selection", nil, 0},
		{"more than one selected", []string{"A", "B"}, 0},
		{"duplicate correct collapses to one", []string{"B", "B"}, 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, GradeMCQ(snap, tt.selected))
		})
	}
}

func TestGradeMCQ_MultiAnswer(t *testing.T) {
	snap := &models.MCQSnapshot{
		QuestionID:     "1",
		CorrectOptions: []string{"A", "B"},
		IsMultiple:     true,
		Marks:          10,
		NegativeMarks:  2,
	}

	tests := []struct {
		name     string
		selected []string
		want     float64
	}{
		{"all correct", []string{"A", "B"}, 10},
		{"one correct one wrong", []string{"A", "C"}, 3}, // 10*(1/2) - 2*1
		{"only wrong answers clamp at zero", []string{"C", "D"}, 0},
		{"partial credit without penalty", []string{"A"}, 5},
		{"empty selection", []string{}, 0},
		{"duplicates collapse before scoring", []string{"A", "A", "C", "C"}, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, GradeMCQ(snap, tt.selected))
		})
	}

	t.Run("empty correct set always scores zero", func(t *testing.T) {
		empty := &models.MCQSnapshot{IsMultiple: true, Marks: 10}
		assert.Equal(t, float64(0), GradeMCQ(empty, []string{"A"}))
		assert.Equal(t, float64(0), GradeMCQ(empty, nil))
	})

	t.Run("heavy penalty clamps to zero not negative", func(t *testing.T) {
		harsh := &models.MCQSnapshot{
			CorrectOptions: []string{"A", "B", "C"},
			IsMultiple:     true,
			Marks:          3,
			NegativeMarks:  10,
		}
		assert.Equal(t, float64(0), GradeMCQ(harsh, []string{"A", "D"}))
	})

	t.Run("nil snapshot scores zero", func(t *testing.T) {
		assert.Equal(t, float64(0), GradeMCQ(nil, []string{"A"}))
	})
}

func TestGradeRearrange(t *testing.T) {
	snap := &models.RearrangeSnapshot{
		QuestionID:   "2",
		CorrectOrder: []string{"x", "y", "z"},
		Marks:        6,
	}

	tests := []struct {
		name  string
		order []string
		want  float64
	}{
		{"exact order", []string{"x", "y", "z"}, 6},
		{"swapped pair", []string{"y", "x", "z"}, 0},
		{"too short", []string{"x", "y"}, 0},
		{"empty order", []string{}, 0},
		{"extra trailing items are ignored", []string{"x", "y", "z", "w"}, 6},
		{"wrong prefix with extra items", []string{"z", "y", "x", "w"}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, GradeRearrange(snap, tt.order))
		})
	}

	t.Run("empty correct order scores zero", func(t *testing.T) {
		empty := &models.RearrangeSnapshot{Marks: 6}
		assert.Equal(t, float64(0), GradeRearrange(empty, []string{}))
		assert.Equal(t, float64(0), GradeRearrange(empty, []string{"x"}))
	})

	t.Run("nil snapshot scores zero", func(t *testing.T) {
		assert.Equal(t, float64(0), GradeRearrange(nil, []string{"x"}))
	})
}

func TestEffectiveScore(t *testing.T) {
	t.Run("prefers stored total score", func(t *testing.T) {
		sub := &models.Submission{TotalScore: 40}
		assert.Equal(t, float64(40), EffectiveScore(sub))
	})

	t.Run("falls back to per-case sum", func(t *testing.T) {
		sub := &models.Submission{
			TotalScore:  0,
			CaseResults: datatypes.JSON(`[{"points_awarded":3},{"points_awarded":4},{"points_awarded":0}]`),
		}
		assert.Equal(t, float64(7), EffectiveScore(sub))
	})

	t.Run("no rollup and no cases", func(t *testing.T) {
		assert.Equal(t, float64(0), EffectiveScore(&models.Submission{}))
		assert.Equal(t, float64(0), EffectiveScore(nil))
	})
}

func TestBestSubmission(t *testing.T) {
	older := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	newer := older.Add(time.Hour)

	t.Run("highest score wins", func(t *testing.T) {
		low := &models.Submission{ID: 1, TotalScore: 10, CreatedAt: newer}
		high := &models.Submission{ID: 2, TotalScore: 60, CreatedAt: older}

		best, score := BestSubmission([]*models.Submission{low, high})
		assert.Equal(t, uint(2), best.ID)
		assert.Equal(t, float64(60), score)
	})

	t.Run("tie broken by most recent", func(t *testing.T) {
		first := &models.Submission{ID: 1, TotalScore: 25, CreatedAt: older}
		second := &models.Submission{ID: 2, TotalScore: 25, CreatedAt: newer}

		best, score := BestSubmission([]*models.Submission{first, second})
		assert.Equal(t, uint(2), best.ID)
		assert.Equal(t, float64(25), score)

		best, _ = BestSubmission([]*models.Submission{second, first})
		assert.Equal(t, uint(2), best.ID)
	})

	t.Run("empty list yields nil", func(t *testing.T) {
		best, score := BestSubmission(nil)
		assert.Nil(t, best)
		assert.Equal(t, float64(0), score)
	})

	t.Run("zero-score submissions still resolve", func(t *testing.T) {
		only := &models.Submission{ID: 3, TotalScore: 0, CreatedAt: older}
		best, score := BestSubmission([]*models.Submission{only})
		assert.Equal(t, uint(3), best.ID)
		assert.Equal(t, float64(0), score)
	})
}
