package store

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/RoyPeng126/ai-companion-sub000/internal/db"
)

//go:embed schema.sql
var schemaSQL string

// Migrate creates any missing tables and indexes. Every statement is
// idempotent.
func Migrate(ctx context.Context, q db.Querier) error {
	if _, err := q.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// ValidateSchema fails when a column the repositories read is missing.
func ValidateSchema(ctx context.Context, q db.Querier) error {
	if q == nil {
		return fmt.Errorf("database pool is nil")
	}

	requiredColumns := []struct {
		table  string
		column string
	}{
		{table: "users", column: "role"},
		{table: "friend_links", column: "status"},
		{table: "activity_participants", column: "status"},
		{table: "reminders", column: "category"},
		{table: "reminders", column: "completed_at"},
		{table: "wizard_sessions", column: "version"},
		{table: "wizard_sessions", column: "expires_at"},
	}

	for _, item := range requiredColumns {
		ok, err := columnExists(ctx, q, item.table, item.column)
		if err != nil {
			return fmt.Errorf("failed checking schema for %s.%s: %w", item.table, item.column, err)
		}
		if !ok {
			return fmt.Errorf("required column %s.%s is missing; start with AUTO_MIGRATE=true", item.table, item.column)
		}
	}
	return nil
}

func columnExists(ctx context.Context, q db.Querier, tableName, columnName string) (bool, error) {
	table := strings.TrimSpace(tableName)
	column := strings.TrimSpace(columnName)
	if table == "" || column == "" {
		return false, fmt.Errorf("table/column must not be empty")
	}
	var exists bool
	err := q.QueryRow(
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
