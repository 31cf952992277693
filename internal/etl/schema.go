package etl

import (
	"fmt"
	"strconv"
	"strings"
)

// TableSchema drives the generic upsert SQL builder. Columns are the
// parameterized data columns in mapper argument order; NowColumns are
// rendered as now() in every inserted row. Casts adds a per-column parameter
// cast such as "::jsonb".
type TableSchema struct {
	Table          string
	Columns        []string
	Casts          map[string]string
	NowColumns     []string
	ConflictColumn string
	UpdateColumns  []string
}

// UpsertSQL builds a multi-row insert-or-update statement for rowCount rows.
// The RETURNING xmax clause lets the caller distinguish inserts (xmax = 0)
// from updates.
func (s TableSchema) UpsertSQL(rowCount int) (string, error) {
	if rowCount <= 0 {
		return "", fmt.Errorf("row count must be positive")
	}
	if s.Table == "" {
		return "", fmt.Errorf("table name is required")
	}
	if len(s.Columns) == 0 {
		return "", fmt.Errorf("schema has no columns")
	}
	if s.ConflictColumn == "" {
		return "", fmt.Errorf("conflict column is required")
	}

	var sb strings.Builder
	sb.WriteString("INSERT INTO ")
	sb.WriteString(s.Table)
	sb.WriteString(" (")
	sb.WriteString(strings.Join(s.Columns, ", "))
	for _, c := range s.NowColumns {
		sb.WriteString(", ")
		sb.WriteString(c)
	}
	sb.WriteString(")\nVALUES ")

	arg := 1
	for row := 0; row < rowCount; row++ {
		if row > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("(")
		for i, c := range s.Columns {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString("$")
			sb.WriteString(strconv.Itoa(arg))
			arg++
			if cast, ok := s.Casts[c]; ok {
				sb.WriteString(cast)
			}
		}
		for range s.NowColumns {
			sb.WriteString(", now()")
		}
		sb.WriteString(")")
	}

	sb.WriteString("\nON CONFLICT (")
	sb.WriteString(s.ConflictColumn)
	sb.WriteString(") DO UPDATE SET ")
	hasUpdatedAt := false
	for i, c := range s.UpdateColumns {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(c)
		sb.WriteString(" = EXCLUDED.")
		sb.WriteString(c)
		if c == "updated_at" {
			hasUpdatedAt = true
		}
	}
	if !hasUpdatedAt {
		if len(s.UpdateColumns) > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("updated_at = now()")
	}
	sb.WriteString("\nRETURNING xmax")

	return sb.String(), nil
}

// ArgCount is the number of bound parameters per row.
func (s TableSchema) ArgCount() int {
	return len(s.Columns)
}
