package logging

import (
	"context"
	"log/slog"
	"strings"
)

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldRunID correlates every line emitted by one scheduled run.
	FieldRunID = "run_id"
	// FieldTransientID is the standardized key for transient identifiers.
	FieldTransientID = "transient_id"
	// FieldSurvey is the standardized key for imagery survey names.
	FieldSurvey = "survey"
	// FieldOutcome is the standardized key for processed-state outcomes.
	FieldOutcome = "outcome"
	// FieldEventType classifies a log line for filtering.
	FieldEventType = "event_type"
	// FieldErrorHint suggests the operator's next step.
	FieldErrorHint = "error_hint"
	// FieldImpact is the user-facing consequence of a warning.
	FieldImpact = "impact"
)

type contextKey string

const (
	runIDKey       contextKey = "run_id"
	transientIDKey contextKey = "transient_id"
)

// WithRunID returns a context carrying the run correlation identifier.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey, strings.TrimSpace(runID))
}

// WithTransientID returns a context carrying the transient being processed.
func WithTransientID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, transientIDKey, strings.TrimSpace(id))
}

// RunIDFromContext extracts the run identifier, if any.
func RunIDFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	value, ok := ctx.Value(runIDKey).(string)
	return value, ok && value != ""
}

// TransientIDFromContext extracts the transient identifier, if any.
func TransientIDFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	value, ok := ctx.Value(transientIDKey).(string)
	return value, ok && value != ""
}

// ContextFields extracts standardized slog attributes from the provided context.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	fields := make([]slog.Attr, 0, 2)
	if id, ok := RunIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldRunID, id))
	}
	if id, ok := TransientIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldTransientID, id))
	}
	return fields
}

// WithContext returns a logger augmented with structured fields derived from the supplied context.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	return logger.With(attrsToArgs(fields)...)
}
