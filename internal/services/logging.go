package services

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// ServiceLogger classifies operation outcomes so the log stream separates
// student-facing rejections from real faults. It wraps the service's slog
// logger; handlers keep their own request logging.
type ServiceLogger struct {
	logger *slog.Logger
}

func NewServiceLogger(logger *slog.Logger, component string) *ServiceLogger {
	return &ServiceLogger{
		logger: logger.With("component", component),
	}
}

// ===== OPERATION LOGGING =====

// LogOperation records one service call with its duration and outcome.
func (l *ServiceLogger) LogOperation(ctx context.Context, operation, userID string, resourceID uint, resourceType string, duration time.Duration, err error) {
	level, status := classifyOutcome(err)

	attrs := []slog.Attr{
		slog.String("operation", operation),
		slog.String("user_id", userID),
		slog.Uint64("resource_id", uint64(resourceID)),
		slog.String("resource_type", resourceType),
		slog.String("status", status),
		slog.Duration("duration", duration),
	}

	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))

		var validationErrs ValidationErrors
		var businessErr *BusinessRuleError
		var permErr *PermissionError
		switch {
		case errors.As(err, &validationErrs):
			attrs = append(attrs, slog.Int("validation_errors_count", len(validationErrs)))
		case errors.As(err, &businessErr):
			attrs = append(attrs, slog.String("business_rule", businessErr.Rule))
		case errors.As(err, &permErr):
			attrs = append(attrs, slog.String("permission_action", permErr.Action))
		}
	}

	l.logger.LogAttrs(ctx, level, operation+" "+status, attrs...)
}

// classifyOutcome maps an error to a log level and a status label. Expected
// rejections stay at warn or below so alerting keys off error lines only for
// real faults.
func classifyOutcome(err error) (slog.Level, string) {
	switch {
	case err == nil:
		return slog.LevelInfo, "success"
	case IsValidation(err):
		return slog.LevelWarn, "validation_error"
	case IsBusinessRule(err):
		return slog.LevelWarn, "business_rule_violation"
	case IsForbidden(err):
		return slog.LevelWarn, "forbidden"
	case IsNotFound(err):
		return slog.LevelInfo, "not_found"
	case IsConflict(err):
		return slog.LevelWarn, "conflict"
	case IsRateLimited(err):
		return slog.LevelWarn, "rate_limited"
	case IsUpstream(err):
		return slog.LevelError, "upstream_error"
	default:
		return slog.LevelError, "error"
	}
}

// ===== PROCTORING LOGGING =====

// LogProctoringEvent records a proctoring state change on an attempt. Forced
// submissions log at warn since faculty review them.
func (l *ServiceLogger) LogProctoringEvent(ctx context.Context, event, studentID string, testID uint, tabSwitches int, forcedSubmit bool) {
	level := slog.LevelInfo
	if forcedSubmit {
		level = slog.LevelWarn
	}

	l.logger.LogAttrs(ctx, level, "Proctoring event",
		slog.String("event", event),
		slog.String("student_id", studentID),
		slog.Uint64("test_id", uint64(testID)),
		slog.Int("tab_switches", tabSwitches),
		slog.Bool("forced_submit", forcedSubmit),
	)
}

// ===== OPERATION TIMING =====

// ContextualLogger times one operation from construction to LogResult.
type ContextualLogger struct {
	logger    *ServiceLogger
	operation string
	userID    string
	startTime time.Time
	ctx       context.Context
}

func (l *ServiceLogger) WithOperation(ctx context.Context, operation, userID string) *ContextualLogger {
	return &ContextualLogger{
		logger:    l,
		operation: operation,
		userID:    userID,
		startTime: time.Now(),
		ctx:       ctx,
	}
}

func (cl *ContextualLogger) LogResult(resourceID uint, resourceType string, err error) {
	cl.logger.LogOperation(cl.ctx, cl.operation, cl.userID, resourceID, resourceType, time.Since(cl.startTime), err)
}
