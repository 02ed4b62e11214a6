package events

import (
	"context"
	"os"
)

type loggerKey struct{}

// Tag names a context annotation. Tagging a context folds the value into
// its logger, so every downstream line carries it, and stores it for
// callers that need the raw value back.
type Tag string

const (
	TagJob     Tag = "job_id"
	TagProject Tag = "project_id"
)

// FromContext extracts the logger from context, falling back to the
// package default.
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(loggerKey{}).(*Logger); ok {
		return l
	}
	return defaultLogger
}

// WithLogger adds a logger to the context.
func WithLogger(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// WithTag annotates the context and its logger with a tagged value.
func WithTag(ctx context.Context, tag Tag, value string) context.Context {
	logger := FromContext(ctx).WithField(string(tag), value)
	return WithLogger(context.WithValue(ctx, tag, value), logger)
}

// TagValue returns the value stored for tag, or "" when the context is
// untagged.
func TagValue(ctx context.Context, tag Tag) string {
	if v, ok := ctx.Value(tag).(string); ok {
		return v
	}
	return ""
}

var defaultLogger = &Logger{
	level:  InfoLevel,
	format: "text",
	output: os.Stdout,
	fields: make(map[string]interface{}),
}

// SetDefault sets the default logger.
func SetDefault(logger *Logger) {
	defaultLogger = logger
}
