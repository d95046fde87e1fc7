package utils

import (
	"reflect"
	"strings"

	"github.com/deloaiprivatelimited/exam-engine/internal/judge"
	"github.com/deloaiprivatelimited/exam-engine/internal/models"
	"github.com/go-playground/validator/v10"
)

// Validator wraps the struct validator with the engine's custom rules
// registered once.
type Validator struct {
	validate *validator.Validate
}

func NewValidator() *Validator {
	validate := validator.New()
	RegisterCustomValidators(validate)
	return &Validator{validate: validate}
}

// ValidateStruct validates struct tags
func (v *Validator) ValidateStruct(s interface{}) error {
	return v.validate.Struct(s)
}

// Engine returns the underlying validator for direct access when needed
func (v *Validator) Engine() *validator.Validate {
	return v.validate
}

// Custom validation functions

func ValidateQuestionType(fl validator.FieldLevel) bool {
	validTypes := []models.QuestionType{
		models.QuestionTypeMCQ,
		models.QuestionTypeCoding,
		models.QuestionTypeRearrange,
	}

	value := fl.Field().String()
	for _, validType := range validTypes {
		if string(validType) == value {
			return true
		}
	}
	return false
}

func ValidateDifficultyLevel(fl validator.FieldLevel) bool {
	validLevels := []models.DifficultyLevel{
		models.DifficultyEasy,
		models.DifficultyMedium,
		models.DifficultyHard,
	}

	value := fl.Field().String()
	for _, validLevel := range validLevels {
		if string(validLevel) == value {
			return true
		}
	}
	return false
}

// ValidateJudgeLanguage accepts only languages the judge can map to an
// upstream id. Whether a specific question allows the language is checked in
// the service layer.
func ValidateJudgeLanguage(fl validator.FieldLevel) bool {
	_, ok := judge.LanguageID(fl.Field().String())
	return ok
}

func ValidateSortOrder(fl validator.FieldLevel) bool {
	value := strings.ToLower(fl.Field().String())
	return value == "asc" || value == "desc"
}

// RegisterCustomValidators registers all custom validators
func RegisterCustomValidators(validate *validator.Validate) {
	validate.RegisterValidation("question_type", ValidateQuestionType)
	validate.RegisterValidation("difficulty_level", ValidateDifficultyLevel)
	validate.RegisterValidation("judge_language", ValidateJudgeLanguage)
	validate.RegisterValidation("sort_order", ValidateSortOrder)

	// Register custom tag name function for better error messages
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
}
