package services

import "context"

type ctxKey int

const (
	keySubmission ctxKey = iota
	keyStage
	keyRequest
)

func withValue(ctx context.Context, key ctxKey, v string) context.Context {
	if v == "" {
		return ctx
	}
	return context.WithValue(ctx, key, v)
}

func value(ctx context.Context, key ctxKey) (string, bool) {
	v, _ := ctx.Value(key).(string)
	return v, v != ""
}

// WithSubmissionID tags ctx with the submission being processed.
func WithSubmissionID(ctx context.Context, id string) context.Context {
	return withValue(ctx, keySubmission, id)
}

// SubmissionIDFromContext returns the submission tag, if any.
func SubmissionIDFromContext(ctx context.Context) (string, bool) {
	return value(ctx, keySubmission)
}

// WithStage tags ctx with the pipeline stage (transcoding, inferring, ...).
func WithStage(ctx context.Context, stage string) context.Context {
	return withValue(ctx, keyStage, stage)
}

func StageFromContext(ctx context.Context) (string, bool) {
	return value(ctx, keyStage)
}

// WithRequestID tags ctx with the HTTP correlation id.
func WithRequestID(ctx context.Context, id string) context.Context {
	return withValue(ctx, keyRequest, id)
}

func RequestIDFromContext(ctx context.Context) (string, bool) {
	return value(ctx, keyRequest)
}
