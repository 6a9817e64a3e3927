package types

import "context"

// contextKey is used for storing values in context.Context.
type contextKey string

const (
	keyTraceID      contextKey = "trace_id"
	keyRequestID    contextKey = "request_id"
	keySubject      contextKey = "subject"
	keySubmissionID contextKey = "submission_id"
)

// WithTraceID adds trace ID to context.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, keyTraceID, traceID)
}

// TraceID extracts trace ID from context.
func TraceID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(keyTraceID).(string)
	return v, ok && v != ""
}

// WithRequestID adds the HTTP request ID to context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, keyRequestID, requestID)
}

// RequestID extracts the HTTP request ID from context.
func RequestID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(keyRequestID).(string)
	return v, ok && v != ""
}

// WithSubject 写入已认证调用方（JWT sub）
func WithSubject(ctx context.Context, subject string) context.Context {
	return context.WithValue(ctx, keySubject, subject)
}

// Subject 读取已认证调用方
func Subject(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(keySubject).(string)
	return v, ok && v != ""
}

// WithSubmissionID 写入提交编号，流水线各阶段的日志据此关联
func WithSubmissionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, keySubmissionID, id)
}

// SubmissionID 读取提交编号
func SubmissionID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(keySubmissionID).(string)
	return v, ok && v != ""
}
