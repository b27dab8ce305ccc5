package postgres

import (
	"context"
	"fmt"
	"strings"

	gormLogger "gorm.io/gorm/logger"
)

const (
	defaultMaxLoggedParamLength = 256
	redactedValue               = "<redacted>"
)

// redactingParamsLogger filters secrets and oversized SQL parameters before GORM prints SQL logs.
type redactingParamsLogger struct {
	gormLogger.Interface
	maxLoggedParamLength int
}

// ParamsFilter masks password hashes and truncates oversized parameter values.
func (l *redactingParamsLogger) ParamsFilter(_ context.Context, sql string, params ...any) (string, []any) {
	if len(params) == 0 {
		return sql, params
	}

	return sql, sanitizeLoggedSQLParamsWithLimit(l.maxLoggedParamLength, params...)
}

// NewRedactingLogger wraps a GORM logger with parameter redaction.
func NewRedactingLogger(base gormLogger.Interface) gormLogger.Interface {
	return &redactingParamsLogger{
		Interface:            base,
		maxLoggedParamLength: defaultMaxLoggedParamLength,
	}
}

// sanitizeLoggedSQLParams applies the default limit to every param.
func sanitizeLoggedSQLParams(params ...any) []any {
	return sanitizeLoggedSQLParamsWithLimit(defaultMaxLoggedParamLength, params...)
}

func sanitizeLoggedSQLParamsWithLimit(limit int, params ...any) []any {
	filtered := make([]any, len(params))
	for idx, param := range params {
		filtered[idx] = sanitizeLoggedSQLParam(param, limit)
	}
	return filtered
}

// sanitizeLoggedSQLParam converts secrets and oversized values into log-safe summaries.
func sanitizeLoggedSQLParam(param any, maxLoggedParamLength int) any {
	switch value := param.(type) {
	case string:
		if isPasswordHash(value) {
			return redactedValue
		}
		if len(value) > maxLoggedParamLength {
			return fmt.Sprintf("<string:len=%d,truncated>", len(value))
		}
		return value
	case *string:
		if value == nil {
			return param
		}
		return sanitizeLoggedSQLParam(*value, maxLoggedParamLength)
	case []byte:
		if len(value) > maxLoggedParamLength {
			return fmt.Sprintf("<bytes:len=%d,truncated>", len(value))
		}
		return value
	default:
		return param
	}
}

// isPasswordHash reports whether a string looks like a bcrypt digest.
func isPasswordHash(raw string) bool {
	trimmed := strings.TrimSpace(raw)
	if len(trimmed) != 60 {
		return false
	}
	return strings.HasPrefix(trimmed, "$2a$") ||
		strings.HasPrefix(trimmed, "$2b$") ||
		strings.HasPrefix(trimmed, "$2y$")
}
