package log

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shovel-house/shovel-api/pkg/requestid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// StructuredLogger emits operation-scoped logs. Steps and successes are logged
// at debug level, errors at error level.
//
//	tracer := log.NewDebugLogger("job_service").
//		WithContext(ctx).
//		Operation("apply_to_job").
//		WithUUID("job_id", id).
//		Build()
//	tracer.Step("assignment_inserted").Log()
//	tracer.Success().Log()
type StructuredLogger struct {
	name  string
	level zapcore.Level
}

func NewDebugLogger(name string) *StructuredLogger {
	return &StructuredLogger{name: name, level: zapcore.DebugLevel}
}

func NewInfoLogger(name string) *StructuredLogger {
	return &StructuredLogger{name: name, level: zapcore.InfoLevel}
}

type ContextLogger struct {
	parent *StructuredLogger
	fields []zap.Field
}

func (l *StructuredLogger) WithContext(ctx context.Context) *ContextLogger {
	fields := []zap.Field{}
	if id := requestid.FromContext(ctx); id != "" {
		fields = append(fields, zap.String("request_id", id))
	}
	return &ContextLogger{parent: l, fields: fields}
}

func (c *ContextLogger) Operation(name string) *OperationBuilder {
	fields := make([]zap.Field, 0, len(c.fields)+4)
	fields = append(fields, c.fields...)
	fields = append(fields, zap.String("operation", name))
	return &OperationBuilder{parent: c.parent, operation: name, fields: fields}
}

type OperationBuilder struct {
	parent    *StructuredLogger
	operation string
	fields    []zap.Field
}

func (b *OperationBuilder) WithString(key, value string) *OperationBuilder {
	b.fields = append(b.fields, zap.String(key, value))
	return b
}

func (b *OperationBuilder) WithStringPtr(key string, value *string) *OperationBuilder {
	if value != nil {
		b.fields = append(b.fields, zap.String(key, *value))
	}
	return b
}

func (b *OperationBuilder) WithUUID(key string, value uuid.UUID) *OperationBuilder {
	b.fields = append(b.fields, zap.String(key, value.String()))
	return b
}

func (b *OperationBuilder) WithUUIDPtr(key string, value *uuid.UUID) *OperationBuilder {
	if value != nil {
		b.fields = append(b.fields, zap.String(key, value.String()))
	}
	return b
}

func (b *OperationBuilder) WithInt(key string, value int) *OperationBuilder {
	b.fields = append(b.fields, zap.Int(key, value))
	return b
}

func (b *OperationBuilder) WithInt64(key string, value int64) *OperationBuilder {
	b.fields = append(b.fields, zap.Int64(key, value))
	return b
}

func (b *OperationBuilder) WithBool(key string, value bool) *OperationBuilder {
	b.fields = append(b.fields, zap.Bool(key, value))
	return b
}

func (b *OperationBuilder) WithParam(key string, value any) *OperationBuilder {
	b.fields = append(b.fields, zap.Any(key, value))
	return b
}

func (b *OperationBuilder) Build() *OperationTracer {
	t := &OperationTracer{
		parent:    b.parent,
		operation: b.operation,
		fields:    b.fields,
		start:     time.Now(),
	}
	t.emit(b.parent.level, "operation started", nil)
	return t
}

type OperationTracer struct {
	parent    *StructuredLogger
	operation string
	fields    []zap.Field
	start     time.Time
}

func (t *OperationTracer) Step(name string) *LogEntry {
	return t.entry(t.parent.level, fmt.Sprintf("step: %s", name), zap.String("step", name))
}

func (t *OperationTracer) Success() *LogEntry {
	return t.entry(t.parent.level, "operation succeeded", zap.Duration("duration", time.Since(t.start)))
}

func (t *OperationTracer) Error(err error) *LogEntry {
	return t.entry(zapcore.ErrorLevel, "operation failed", zap.Error(err), zap.Duration("duration", time.Since(t.start)))
}

func (t *OperationTracer) entry(level zapcore.Level, msg string, extra ...zap.Field) *LogEntry {
	return &LogEntry{tracer: t, level: level, msg: msg, fields: extra}
}

func (t *OperationTracer) emit(level zapcore.Level, msg string, extra []zap.Field) {
	logger := zap.L().Named(t.parent.name)
	if ce := logger.Check(level, msg); ce != nil {
		fields := make([]zap.Field, 0, len(t.fields)+len(extra))
		fields = append(fields, t.fields...)
		fields = append(fields, extra...)
		ce.Write(fields...)
	}
}

type LogEntry struct {
	tracer *OperationTracer
	level  zapcore.Level
	msg    string
	fields []zap.Field
}

func (e *LogEntry) WithString(key, value string) *LogEntry {
	e.fields = append(e.fields, zap.String(key, value))
	return e
}

func (e *LogEntry) WithUUID(key string, value uuid.UUID) *LogEntry {
	e.fields = append(e.fields, zap.String(key, value.String()))
	return e
}

func (e *LogEntry) WithInt(key string, value int) *LogEntry {
	e.fields = append(e.fields, zap.Int(key, value))
	return e
}

func (e *LogEntry) WithInt64(key string, value int64) *LogEntry {
	e.fields = append(e.fields, zap.Int64(key, value))
	return e
}

func (e *LogEntry) WithBool(key string, value bool) *LogEntry {
	e.fields = append(e.fields, zap.Bool(key, value))
	return e
}

func (e *LogEntry) WithParam(key string, value any) *LogEntry {
	e.fields = append(e.fields, zap.Any(key, value))
	return e
}

func (e *LogEntry) Log() {
	e.tracer.emit(e.level, e.msg, e.fields)
}
