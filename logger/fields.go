package logger

import (
	"context"

	"go.uber.org/zap"
)

// Standard field names for structured logging across regalsync.
// Use these constants instead of raw strings.
const (
	// Identity and context
	FieldRunID     = "run_id"
	FieldComponent = "component"

	// Sync
	FieldMode       = "mode"
	FieldPID        = "pid"
	FieldParentPID  = "parent_pid"
	FieldNamespace  = "namespace"
	FieldSet        = "set"
	FieldObjectType = "object_type"
	FieldPartition  = "partition"
	FieldUsageType  = "usage_type"
	FieldAction     = "action"
	FieldOutcome    = "outcome"
	FieldIndex      = "index"
	FieldTotal      = "total"

	// Operations
	FieldOperation = "operation"
	FieldMethod    = "method"
	FieldPath      = "path"
	FieldURL       = "url"

	// Timing
	FieldDurationMS = "duration_ms"

	// Errors
	FieldError     = "error"
	FieldErrorKind = "error_kind"

	// Counts and sizes
	FieldCount  = "count"
	FieldSize   = "size"
	FieldStatus = "status"

	// Files
	FieldFile     = "file"
	FieldMimeType = "mime_type"
)

type contextKey string

const (
	runIDKey     contextKey = "logger_run_id"
	componentKey contextKey = "logger_component"
)

// WithRunID adds a sync run ID to the context for logging
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey, runID)
}

// WithComponent adds a component name to the context for logging
func WithComponent(ctx context.Context, component string) context.Context {
	return context.WithValue(ctx, componentKey, component)
}

// FieldsFromContext extracts logging fields from context.
// Returns key-value pairs suitable for use with Infow/Errorw/etc.
func FieldsFromContext(ctx context.Context) []interface{} {
	var fields []interface{}

	if runID, ok := ctx.Value(runIDKey).(string); ok && runID != "" {
		fields = append(fields, FieldRunID, runID)
	}
	if component, ok := ctx.Value(componentKey).(string); ok && component != "" {
		fields = append(fields, FieldComponent, component)
	}

	return fields
}

// LoggerFromContext returns base enriched with the fields stored in ctx.
// A nil base falls back to the global logger.
func LoggerFromContext(ctx context.Context, base *zap.SugaredLogger) *zap.SugaredLogger {
	if base == nil {
		base = Logger
	}
	fields := FieldsFromContext(ctx)
	if len(fields) == 0 {
		return base
	}
	return base.With(fields...)
}

// ComponentLogger returns a named logger for a specific component.
// This is the preferred way to get a logger for dependency injection.
//
// Example:
//
//	downloader := download.New(cfg, logger.ComponentLogger("download"))
func ComponentLogger(name string) *zap.SugaredLogger {
	return Logger.Named(name)
}

// ChildLogger creates a child logger with additional context.
//
// Example:
//
//	itemLogger := logger.ChildLogger(e.logger, logger.FieldPID, pid)
func ChildLogger(parent *zap.SugaredLogger, keysAndValues ...interface{}) *zap.SugaredLogger {
	return parent.With(keysAndValues...)
}
