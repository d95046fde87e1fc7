package services

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/deloaiprivatelimited/exam-engine/internal/models"
)

func TestNormalizeValue(t *testing.T) {
	tests := []struct {
		name  string
		raw   string
		qtype models.QuestionType
		want  []string
	}{
		{"bare string becomes one-element list", `"A"`, models.QuestionTypeMCQ, []string{"A"}},
		{"list passes through", `["A","C"]`, models.QuestionTypeMCQ, []string{"A", "C"}},
		{"value wrapper with list", `{"value":["x","y"]}`, models.QuestionTypeRearrange, []string{"x", "y"}},
		{"value wrapper with bare string", `{"value":"x"}`, models.QuestionTypeRearrange, []string{"x"}},
		{"value wrapper with null", `{"value":null}`, models.QuestionTypeMCQ, []string{}},
		{"submission ids accepted for coding", `{"submission_ids":["7","9"]}`, models.QuestionTypeCoding, []string{"7", "9"}},
		{"submission ids rejected for mcq", `{"submission_ids":["7"]}`, models.QuestionTypeMCQ, []string{}},
		{"numeric ids render without fraction", `[7, 9]`, models.QuestionTypeCoding, []string{"7", "9"}},
		{"mixed element types drop non-ids", `["A", 3, true, {"k":1}]`, models.QuestionTypeMCQ, []string{"A", "3"}},
		{"bare number degrades to empty", `42`, models.QuestionTypeMCQ, []string{}},
		{"bare bool degrades to empty", `true`, models.QuestionTypeMCQ, []string{}},
		{"null degrades to empty", `null`, models.QuestionTypeMCQ, []string{}},
		{"unknown object degrades to empty", `{"other":1}`, models.QuestionTypeMCQ, []string{}},
		{"malformed json degrades to empty", `{"value":`, models.QuestionTypeMCQ, []string{}},
		{"empty raw degrades to empty", ``, models.QuestionTypeMCQ, []string{}},
		{"nested value wrappers unwrap", `{"value":{"value":["a"]}}`, models.QuestionTypeMCQ, []string{"a"}},
		{"empty list stays empty", `[]`, models.QuestionTypeMCQ, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeValue(json.RawMessage(tt.raw), tt.qtype)
			assert.Equal(t, tt.want, got.Value)
		})
	}
}

func TestNormalizeValueNeverNil(t *testing.T) {
	// Downstream code ranges over Value without nil checks.
	for _, raw := range []string{``, `null`, `{"x":1}`, `not json`} {
		got := NormalizeValue(json.RawMessage(raw), models.QuestionTypeCoding)
		assert.NotNil(t, got.Value, "raw=%q", raw)
	}
}

func TestIsNullValue(t *testing.T) {
	assert.True(t, isNullValue(nil))
	assert.True(t, isNullValue(json.RawMessage(``)))
	assert.True(t, isNullValue(json.RawMessage(`null`)))
	assert.True(t, isNullValue(json.RawMessage(` null `)))

	assert.False(t, isNullValue(json.RawMessage(`[]`)))
	assert.False(t, isNullValue(json.RawMessage(`""`)))
	assert.False(t, isNullValue(json.RawMessage(`0`)))
	assert.False(t, isNullValue(json.RawMessage(`"null"`)))
}
