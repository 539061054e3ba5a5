package postgres

import (
	"context"
	_ "embed"
	"fmt"
	"strings"
)

const defaultTable = "coverage_records"

//go:embed schema.sql
var schemaSQL string

// Schema returns the DDL for table and its _counts and _runs companions.
func Schema(table string) (string, error) {
	table, err := tableName(table)
	if err != nil {
		return "", err
	}
	return strings.ReplaceAll(schemaSQL, defaultTable, table), nil
}

// EnsureSchema creates the store's tables and indexes if they are missing.
// Existing tables are left as they are.
func (s *RecordStore) EnsureSchema(ctx context.Context) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("record store is not configured")
	}
	ddl, err := Schema(s.table)
	if err != nil {
		return err
	}
	for _, stmt := range statements(ddl) {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// statements splits ddl on semicolons after dropping -- comment lines.
func statements(ddl string) []string {
	var body strings.Builder
	for _, line := range strings.Split(ddl, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "--") {
			continue
		}
		body.WriteString(line)
		body.WriteByte('\n')
	}
	var out []string
	for _, stmt := range strings.Split(body.String(), ";") {
		if stmt = strings.TrimSpace(stmt); stmt != "" {
			out = append(out, stmt)
		}
	}
	return out
}
