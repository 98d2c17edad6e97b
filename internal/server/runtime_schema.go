package server

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

// EnsureRunLogSchema creates the run-log table when it is missing. Existing
// tables are left untouched; ValidateRuntimeSchema reports drift.
func EnsureRunLogSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if pool == nil {
		return fmt.Errorf("database pool is nil")
	}
	_, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS "ChatRunLog" (
			id             TEXT PRIMARY KEY,
			"requestId"    TEXT NOT NULL,
			subject        TEXT,
			language       TEXT NOT NULL,
			"languageHint" TEXT,
			stages         TEXT[] NOT NULL,
			degraded       TEXT[] NOT NULL,
			"elapsedMs"    BIGINT NOT NULL,
			outcome        TEXT NOT NULL,
			"createdAt"    TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`)
	if err != nil {
		return fmt.Errorf("create ChatRunLog table: %w", err)
	}
	return nil
}

func ValidateRuntimeSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if pool == nil {
		return fmt.Errorf("database pool is nil")
	}

	requiredColumns := []string{
		"requestId", "subject", "language", "languageHint", "stages",
		"degraded", "elapsedMs", "outcome", "createdAt",
	}
	for _, column := range requiredColumns {
		ok, err := columnExists(ctx, pool, "ChatRunLog", column)
		if err != nil {
			return fmt.Errorf("failed checking schema for ChatRunLog.%s: %w", column, err)
		}
		if !ok {
			return fmt.Errorf("required column ChatRunLog.%s is missing", column)
		}
	}
	return nil
}

func columnExists(ctx context.Context, pool *pgxpool.Pool, tableName, columnName string) (bool, error) {
	table := strings.TrimSpace(tableName)
	column := strings.TrimSpace(columnName)
	if table == "" || column == "" {
		return false, fmt.Errorf("table/column must not be empty")
	}
	var exists bool
	err := pool.QueryRow(
		ctx,
		`SELECT EXISTS (
		   SELECT 1
		   FROM information_schema.columns
		   WHERE table_schema = current_schema()
		     AND lower(table_name) = lower($1)
		     AND lower(column_name) = lower($2)
		 )`,
		table,
		column,
	).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}
