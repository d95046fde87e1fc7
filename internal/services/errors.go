package services

import (
	"errors"
	"fmt"

	apperrors "github.com/deloaiprivatelimited/exam-engine/internal/errors"
)

// ===== COMMON SERVICE ERRORS =====

var (
	// Generic errors
	ErrNotFound         = errors.New("resource not found")
	ErrUnauthorized     = errors.New("unauthorized access")
	ErrForbidden        = errors.New("forbidden - insufficient permissions")
	ErrValidationFailed = errors.New("validation failed")
	ErrInternalError    = errors.New("internal server error")
	ErrConflict         = errors.New("resource conflict")

	// Test specific errors
	ErrTestNotFound       = errors.New("test not found")
	ErrTestNotOngoing     = errors.New("test is not ongoing")
	ErrStudentNotAssigned = errors.New("student is not assigned to this test")
	ErrSectionNotFound    = errors.New("section not found")

	// Question specific errors
	ErrQuestionNotFound     = errors.New("question not found")
	ErrQuestionNotPublished = errors.New("question is not published")
	ErrRunNotEnabled        = errors.New("running code is disabled for this question")
	ErrSubmissionNotEnabled = errors.New("submissions are disabled for this question")
	ErrLanguageNotAllowed   = errors.New("language is not allowed for this question")

	// Attempt specific errors
	ErrAttemptNotFound         = errors.New("attempt not found")
	ErrAttemptAlreadySubmitted = errors.New("attempt already submitted")
	ErrAttemptVersionConflict  = errors.New("attempt was modified concurrently")

	// Student directory errors
	ErrStudentNotFound = errors.New("student not found")

	// Submission / judge errors
	ErrSubmissionNotFound = errors.New("submission not found")
	ErrRateLimited        = errors.New("submission rate limit exceeded")
	ErrJudgeUnavailable   = errors.New("code execution service unavailable")
)

// ===== CUSTOM ERROR TYPES =====

// Use shared validation errors from errors package
type ValidationError = apperrors.ValidationError
type ValidationErrors = apperrors.ValidationErrors

type BusinessRuleError struct {
	Rule    string                 `json:"rule"`
	Message string                 `json:"message"`
	Context map[string]interface{} `json:"context,omitempty"`
}

func (bre *BusinessRuleError) Error() string {
	return fmt.Sprintf("business rule violation (%s): %s", bre.Rule, bre.Message)
}

// PermissionError carries enough context for the handler to build a safe 403
// payload; Details is exposed verbatim, so it must never contain internal ids.
type PermissionError struct {
	UserID   string                 `json:"user_id"`
	Resource string                 `json:"resource"`
	Action   string                 `json:"action"`
	Reason   string                 `json:"reason"`
	Details  map[string]interface{} `json:"details,omitempty"`
}

func (pe *PermissionError) Error() string {
	return fmt.Sprintf("permission denied: user %s cannot %s %s - %s",
		pe.UserID, pe.Action, pe.Resource, pe.Reason)
}

// ===== ERROR HELPERS =====

// NewValidationError creates a new validation error using the shared type
func NewValidationError(field, message string, value interface{}) *ValidationError {
	return apperrors.NewValidationError(field, message, value)
}

func NewBusinessRuleError(rule, message string, context map[string]interface{}) *BusinessRuleError {
	return &BusinessRuleError{
		Rule:    rule,
		Message: message,
		Context: context,
	}
}

func NewPermissionError(userID, resource, action, reason string) *PermissionError {
	return &PermissionError{
		UserID:   userID,
		Resource: resource,
		Action:   action,
		Reason:   reason,
	}
}

// IsNotFound checks if error represents a "not found" condition
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrTestNotFound) ||
		errors.Is(err, ErrSectionNotFound) ||
		errors.Is(err, ErrQuestionNotFound) ||
		errors.Is(err, ErrAttemptNotFound) ||
		errors.Is(err, ErrSubmissionNotFound) ||
		errors.Is(err, ErrStudentNotFound)
}

// IsForbidden checks if error represents a "forbidden" condition
func IsForbidden(err error) bool {
	if errors.Is(err, ErrForbidden) ||
		errors.Is(err, ErrTestNotOngoing) ||
		errors.Is(err, ErrStudentNotAssigned) ||
		errors.Is(err, ErrQuestionNotPublished) ||
		errors.Is(err, ErrRunNotEnabled) ||
		errors.Is(err, ErrSubmissionNotEnabled) ||
		errors.Is(err, ErrLanguageNotAllowed) {
		return true
	}
	var pe *PermissionError
	return errors.As(err, &pe)
}

// IsValidation checks if error represents a validation failure
func IsValidation(err error) bool {
	if errors.Is(err, ErrValidationFailed) {
		return true
	}
	var ve ValidationErrors
	return errors.As(err, &ve)
}

// IsBusinessRule checks if error represents a business rule violation
func IsBusinessRule(err error) bool {
	var bre *BusinessRuleError
	return errors.As(err, &bre)
}

// IsConflict checks if error represents a resource conflict
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict) ||
		errors.Is(err, ErrAttemptAlreadySubmitted) ||
		errors.Is(err, ErrAttemptVersionConflict)
}

// IsRateLimited checks if error represents a submission rate limit breach
func IsRateLimited(err error) bool {
	return errors.Is(err, ErrRateLimited)
}

// IsUpstream checks if error represents an execution-service failure
func IsUpstream(err error) bool {
	return errors.Is(err, ErrJudgeUnavailable)
}
