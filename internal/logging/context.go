package logging

import (
	"context"
	"log/slog"

	"vidsurvey/internal/services"
)

// Keys shared by every component so log lines can be filtered uniformly.
const (
	FieldComponent     = "component"
	FieldSubmissionID  = "submission_id"
	FieldStage         = "stage"
	FieldCorrelationID = "correlation_id"
	FieldEventType     = "event_type"
	// FieldErrorHint carries the operator's next step.
	FieldErrorHint = "error_hint"
	// FieldImpact says what the user loses when a warning fires.
	FieldImpact = "impact"
)

var contextKeys = []struct {
	field string
	get   func(context.Context) (string, bool)
}{
	{FieldSubmissionID, services.SubmissionIDFromContext},
	{FieldStage, services.StageFromContext},
	{FieldCorrelationID, services.RequestIDFromContext},
}

// ContextFields returns the submission, stage and correlation tags carried by ctx.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	var fields []slog.Attr
	for _, k := range contextKeys {
		if v, ok := k.get(ctx); ok {
			fields = append(fields, slog.String(k.field, v))
		}
	}
	return fields
}

// WithContext returns logger annotated with the tags carried by ctx.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	if fields := ContextFields(ctx); len(fields) > 0 {
		return logger.With(toArgs(fields)...)
	}
	return logger
}
