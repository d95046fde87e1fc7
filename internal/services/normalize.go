package services

import (
	"bytes"
	"encoding/json"
	"strconv"

	"github.com/deloaiprivatelimited/exam-engine/internal/models"
)

// NormalizeValue converts the heterogeneous shapes clients send for an
// answer into the canonical {"value": [...strings]} container:
//
//	"A"                          -> ["A"]
//	["A", "C"]                   -> ["A", "C"]
//	{"value": ...}               -> normalize the inner value
//	{"submission_ids": [...]}    -> treated as value (coding only)
//	anything else                -> []
//
// It never fails; unrecognized shapes degrade to an empty list so a single
// malformed answer cannot abort an autosave.
func NormalizeValue(raw json.RawMessage, questionType models.QuestionType) models.AnswerValue {
	empty := models.AnswerValue{Value: []string{}}
	if len(raw) == 0 {
		return empty
	}

	var decoded interface{}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return empty
	}
	return normalizeDecoded(decoded, questionType)
}

func normalizeDecoded(decoded interface{}, questionType models.QuestionType) models.AnswerValue {
	switch v := decoded.(type) {
	case string:
		return models.AnswerValue{Value: []string{v}}
	case []interface{}:
		return models.AnswerValue{Value: toStringList(v)}
	case map[string]interface{}:
		if inner, ok := v["value"]; ok {
			return normalizeDecoded(inner, questionType)
		}
		if questionType == models.QuestionTypeCoding {
			if inner, ok := v["submission_ids"]; ok {
				return normalizeDecoded(inner, questionType)
			}
		}
	}
	return models.AnswerValue{Value: []string{}}
}

// toStringList keeps string elements as-is and renders numeric ids without a
// fractional part; elements of any other type are dropped.
func toStringList(items []interface{}) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		switch s := item.(type) {
		case string:
			out = append(out, s)
		case float64:
			out = append(out, strconv.FormatFloat(s, 'f', -1, 64))
		}
	}
	return out
}

// isNullValue reports whether a raw payload value is absent or an explicit
// JSON null; both mean "no new input" to the autosave.
func isNullValue(raw json.RawMessage) bool {
	if len(raw) == 0 {
		return true
	}
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}
