package postgres

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
)

// TestSanitizeLoggedSQLParamPasswordHash verifies bcrypt digests never reach SQL logs.
func TestSanitizeLoggedSQLParamPasswordHash(t *testing.T) {
	hash := "$2a$10$" + strings.Repeat("a", 53)
	require.Len(t, hash, 60)

	require.Equal(t, redactedValue, sanitizeLoggedSQLParam(hash, 128))
	require.Equal(t, redactedValue, sanitizeLoggedSQLParam(&hash, 128))
}

// TestSanitizeLoggedSQLParams verifies params filtering sanitizes oversized values.
func TestSanitizeLoggedSQLParams(t *testing.T) {
	longString := fmt.Sprintf("%0257d", 0)
	blob := make([]byte, 300)

	filtered := sanitizeLoggedSQLParams("projects/demo/a.txt", longString, blob, int64(42))
	require.Len(t, filtered, 4)
	require.Equal(t, "projects/demo/a.txt", filtered[0])
	require.Equal(t, "<string:len=257,truncated>", filtered[1])
	require.Equal(t, "<bytes:len=300,truncated>", filtered[2])
	require.Equal(t, int64(42), filtered[3])
}

// TestRedactingLoggerParamsFilter verifies the wrapper is wired as a gorm ParamsFilter.
func TestRedactingLoggerParamsFilter(t *testing.T) {
	logger := NewRedactingLogger(gormLogger.Default)
	filter, ok := logger.(gorm.ParamsFilter)
	require.True(t, ok)

	hash := "$2b$12$" + strings.Repeat("b", 53)
	sql, params := filter.ParamsFilter(context.Background(), "UPDATE drive_nodes SET share_password = ?", hash)
	require.Equal(t, "UPDATE drive_nodes SET share_password = ?", sql)
	require.Equal(t, []any{redactedValue}, params)
}

// TestBuildDSN verifies the default port is applied.
func TestBuildDSN(t *testing.T) {
	dsn := BuildDSN(DialInfo{Addr: "db", DBName: "drive", User: "u", Pwd: "p"})
	require.Contains(t, dsn, "port=5432")
	require.Contains(t, dsn, "dbname=drive")

	dsn = BuildDSN(DialInfo{Addr: "db", DBName: "drive", User: "u", Pwd: "p", Port: 6543})
	require.Contains(t, dsn, "port=6543")
}
