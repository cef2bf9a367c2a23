// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-passkey-idp.
//
// go-passkey-idp is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package logger

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/jeremyhahn/go-passkey-idp/pkg/correlation"
)

// SlogAdapter wraps a slog.Logger to implement the Logger interface
type SlogAdapter struct {
	logger *slog.Logger
	fields []Field
}

// SlogConfig configures the slog adapter
type SlogConfig struct {
	// Logger is the underlying slog logger.
	// If nil, a new logger will be created.
	Logger *slog.Logger

	// Level is the minimum log level to output
	Level Level

	// Format selects the output encoding: "json" or "text".
	// Defaults to text on stderr.
	Format string
}

// NewSlogAdapter creates a new slog adapter
func NewSlogAdapter(config *SlogConfig) *SlogAdapter {
	if config == nil {
		config = &SlogConfig{}
	}

	if config.Logger == nil {
		opts := &slog.HandlerOptions{Level: levelToSlogLevel(config.Level)}
		var handler slog.Handler
		if config.Format == "json" {
			handler = slog.NewJSONHandler(os.Stderr, opts)
		} else {
			handler = slog.NewTextHandler(os.Stderr, opts)
		}
		config.Logger = slog.New(handler)
	}

	return &SlogAdapter{
		logger: config.Logger,
		fields: make([]Field, 0),
	}
}

// Debug logs a debug message
func (l *SlogAdapter) Debug(msg string, fields ...Field) {
	l.log(context.Background(), slog.LevelDebug, msg, fields...)
}

// Info logs an informational message
func (l *SlogAdapter) Info(msg string, fields ...Field) {
	l.log(context.Background(), slog.LevelInfo, msg, fields...)
}

// Warn logs a warning message
func (l *SlogAdapter) Warn(msg string, fields ...Field) {
	l.log(context.Background(), slog.LevelWarn, msg, fields...)
}

// Error logs an error message
func (l *SlogAdapter) Error(msg string, fields ...Field) {
	l.log(context.Background(), slog.LevelError, msg, fields...)
}

// DebugContext logs a debug message with correlation ID from context
func (l *SlogAdapter) DebugContext(ctx context.Context, msg string, fields ...Field) {
	l.log(ctx, slog.LevelDebug, msg, l.addCorrelationID(ctx, fields)...)
}

// InfoContext logs an informational message with correlation ID from context
func (l *SlogAdapter) InfoContext(ctx context.Context, msg string, fields ...Field) {
	l.log(ctx, slog.LevelInfo, msg, l.addCorrelationID(ctx, fields)...)
}

// WarnContext logs a warning message with correlation ID from context
func (l *SlogAdapter) WarnContext(ctx context.Context, msg string, fields ...Field) {
	l.log(ctx, slog.LevelWarn, msg, l.addCorrelationID(ctx, fields)...)
}

// ErrorContext logs an error message with correlation ID from context
func (l *SlogAdapter) ErrorContext(ctx context.Context, msg string, fields ...Field) {
	l.log(ctx, slog.LevelError, msg, l.addCorrelationID(ctx, fields)...)
}

// addCorrelationID adds correlation ID from context to log fields if present
func (l *SlogAdapter) addCorrelationID(ctx context.Context, fields []Field) []Field {
	if ctx == nil {
		return fields
	}
	if correlationID := correlation.GetCorrelationID(ctx); correlationID != "" {
		fields = append(fields, String("correlation_id", correlationID))
	}
	return fields
}

// With creates a child logger with the given fields
func (l *SlogAdapter) With(fields ...Field) Logger {
	allFields := make([]Field, 0, len(l.fields)+len(fields))
	allFields = append(allFields, l.fields...)
	allFields = append(allFields, fields...)

	attrs := make([]any, 0, len(allFields))
	for _, f := range allFields {
		attrs = append(attrs, fieldToAttr(f))
	}

	return &SlogAdapter{
		logger: l.logger.With(attrs...),
		fields: allFields,
	}
}

// log is the internal logging method
func (l *SlogAdapter) log(ctx context.Context, level slog.Level, msg string, fields ...Field) {
	allFields := make([]Field, 0, len(l.fields)+len(fields))
	allFields = append(allFields, l.fields...)
	allFields = append(allFields, fields...)

	attrs := make([]slog.Attr, 0, len(allFields))
	for _, f := range allFields {
		attrs = append(attrs, fieldToAttr(f))
	}

	if ctx == nil {
		ctx = context.Background()
	}
	l.logger.LogAttrs(ctx, level, msg, attrs...)
}

// fieldToAttr converts a Field to slog.Attr
func fieldToAttr(field Field) slog.Attr {
	switch v := field.Value.(type) {
	case string:
		return slog.String(field.Key, v)
	case int:
		return slog.Int(field.Key, v)
	case bool:
		return slog.Bool(field.Key, v)
	case time.Duration:
		return slog.Duration(field.Key, v)
	default:
		return slog.Any(field.Key, v)
	}
}

// levelToSlogLevel converts our Level to slog.Level
func levelToSlogLevel(level Level) slog.Level {
	switch level {
	case LevelDebug:
		return slog.LevelDebug
	case LevelInfo:
		return slog.LevelInfo
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
