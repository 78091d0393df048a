package logging

import (
	"context"
	"maps"
	"strings"
	"time"

	"github.com/hashicorp/terraform-plugin-log/tflog"
)

// Logger is the logging capability handed to every component.
type Logger interface {
	Trace(msg string, fields map[string]any)
	Debug(msg string, fields map[string]any)
	Info(msg string, fields map[string]any)
	Warn(msg string, fields map[string]any)
	Error(msg string, fields map[string]any)
}

// TFLogger writes to a tflog subsystem carried by a context.
type TFLogger struct {
	ctx       context.Context
	subsystem string
}

// NewTFLogger creates a logger bound to the given subsystem. The context must
// have been prepared by NewRootContext so the subsystem exists.
func NewTFLogger(ctx context.Context, subsystem string) *TFLogger {
	return &TFLogger{
		ctx:       ctx,
		subsystem: subsystem,
	}
}

func (l *TFLogger) Trace(msg string, fields map[string]any) {
	tflog.SubsystemTrace(l.ctx, l.subsystem, msg, SanitizeFields(fields))
}

func (l *TFLogger) Debug(msg string, fields map[string]any) {
	tflog.SubsystemDebug(l.ctx, l.subsystem, msg, SanitizeFields(fields))
}

func (l *TFLogger) Info(msg string, fields map[string]any) {
	tflog.SubsystemInfo(l.ctx, l.subsystem, msg, SanitizeFields(fields))
}

func (l *TFLogger) Warn(msg string, fields map[string]any) {
	tflog.SubsystemWarn(l.ctx, l.subsystem, msg, SanitizeFields(fields))
}

func (l *TFLogger) Error(msg string, fields map[string]any) {
	tflog.SubsystemError(l.ctx, l.subsystem, msg, SanitizeFields(fields))
}

// Nop discards everything. Components fall back to it when given a nil Logger.
type Nop struct{}

func (Nop) Trace(string, map[string]any) {}
func (Nop) Debug(string, map[string]any) {}
func (Nop) Info(string, map[string]any)  {}
func (Nop) Warn(string, map[string]any)  {}
func (Nop) Error(string, map[string]any) {}

// OrNop returns l, or a Nop logger when l is nil.
func OrNop(l Logger) Logger {
	if l == nil {
		return Nop{}
	}
	return l
}

// LogOperation runs fn and logs its outcome with timing.
func LogOperation(logger Logger, operation string, fields map[string]any, fn func() error) error {
	start := time.Now()

	entry := make(map[string]any, len(fields)+1)
	maps.Copy(entry, fields)
	entry["operation"] = operation

	logger.Debug("Starting operation", entry)

	err := fn()

	entry["duration_ms"] = time.Since(start).Milliseconds()

	if err != nil {
		entry["error"] = err.Error()
		logger.Error("Operation failed", entry)
	} else {
		logger.Debug("Operation completed successfully", entry)
	}

	return err
}

// LogPerformance logs how long an operation took, escalating slow ones.
func LogPerformance(logger Logger, operation string, duration time.Duration, fields map[string]any) {
	entry := make(map[string]any, len(fields)+2)
	maps.Copy(entry, fields)
	entry["operation"] = operation
	entry["duration_ms"] = duration.Milliseconds()

	switch {
	case duration > 5*time.Second:
		logger.Warn("Slow operation detected", entry)
	case duration > 1*time.Second:
		logger.Info("Operation performance", entry)
	default:
		logger.Debug("Operation performance", entry)
	}
}

var sensitiveKeys = map[string]bool{
	"password":    true,
	"passwd":      true,
	"secret":      true,
	"token":       true,
	"auth_token":  true,
	"key":         true,
	"private_key": true,
	"credential":  true,
	"credentials": true,
	"card_pin":    true,
}

// SanitizeFields removes sensitive information from log fields.
func SanitizeFields(fields map[string]any) map[string]any {
	if fields == nil {
		return nil
	}

	sanitized := make(map[string]any, len(fields))
	for k, v := range fields {
		if sensitiveKeys[strings.ToLower(k)] {
			sanitized[k] = "[REDACTED]"
			continue
		}
		if str, ok := v.(string); ok && containsSensitivePattern(str) {
			sanitized[k] = "[REDACTED]"
			continue
		}
		sanitized[k] = v
	}

	return sanitized
}

// containsSensitivePattern checks if a string contains patterns that might be sensitive.
func containsSensitivePattern(s string) bool {
	patterns := []string{
		"password=",
		"passwd=",
		"secret=",
		"token=",
		"key=",
	}

	lower := strings.ToLower(s)
	for _, pattern := range patterns {
		if strings.Contains(lower, pattern) {
			return true
		}
	}

	return false
}
