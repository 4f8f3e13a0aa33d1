package postgres

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"tourism-cache/internal/models"
)

// identPattern restricts table and column names to plain lowercase SQL
// identifiers. Everything the cache layer queries is named like this; a
// mismatch means a caller smuggled user input into an identifier position.
var identPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

func quoteIdent(name string) (string, error) {
	if !identPattern.MatchString(name) {
		return "", fmt.Errorf("invalid identifier %q", name)
	}
	return `"` + name + `"`, nil
}

func qualify(schema, table string) (string, error) {
	qs, err := quoteIdent(schema)
	if err != nil {
		return "", err
	}
	qt, err := quoteIdent(table)
	if err != nil {
		return "", err
	}
	return qs + "." + qt, nil
}

// buildSelectSQL renders a filtered read as a single to_jsonb query.
// Filter columns are sorted so the generated SQL is deterministic.
func buildSelectSQL(schema string, q models.SelectQuery) (string, []any, error) {
	rel, err := qualify(schema, q.Table)
	if err != nil {
		return "", nil, err
	}

	var sb strings.Builder
	sb.WriteString("SELECT to_jsonb(t.*) FROM ")
	sb.WriteString(rel)
	sb.WriteString(" t")

	where, args, err := buildWhere(q.Filters, q.Cursor)
	if err != nil {
		return "", nil, err
	}
	sb.WriteString(where)

	orderBy := q.OrderBy
	if orderBy == "" {
		orderBy = "id"
	}
	qCol, err := quoteIdent(orderBy)
	if err != nil {
		return "", nil, err
	}
	sb.WriteString(" ORDER BY t.")
	sb.WriteString(qCol)
	if q.Descending {
		sb.WriteString(" DESC")
	}

	if q.Cursor == "" && q.Offset > 0 {
		sb.WriteString(fmt.Sprintf(" OFFSET %d", q.Offset))
	}
	if q.Limit > 0 {
		sb.WriteString(fmt.Sprintf(" LIMIT %d", q.Limit))
	}

	return sb.String(), args, nil
}

// buildCountSQL renders the matching-row count for the same filters,
// without pagination.
func buildCountSQL(schema string, q models.SelectQuery) (string, []any, error) {
	rel, err := qualify(schema, q.Table)
	if err != nil {
		return "", nil, err
	}
	where, args, err := buildWhere(q.Filters, "")
	if err != nil {
		return "", nil, err
	}
	return "SELECT count(*) FROM " + rel + " t" + where, args, nil
}

func buildWhere(filters map[string]any, cursor string) (string, []any, error) {
	cols := make([]string, 0, len(filters))
	for col := range filters {
		cols = append(cols, col)
	}
	sort.Strings(cols)

	var conds []string
	var args []any
	for _, col := range cols {
		qCol, err := quoteIdent(col)
		if err != nil {
			return "", nil, err
		}
		switch v := filters[col].(type) {
		case []any:
			args = append(args, v)
			conds = append(conds, fmt.Sprintf("t.%s = ANY($%d)", qCol, len(args)))
		case []string:
			args = append(args, v)
			conds = append(conds, fmt.Sprintf("t.%s = ANY($%d)", qCol, len(args)))
		default:
			args = append(args, v)
			conds = append(conds, fmt.Sprintf("t.%s = $%d", qCol, len(args)))
		}
	}

	// Cursor pagination walks ids upward; the caller orders by id.
	if cursor != "" {
		args = append(args, cursor)
		conds = append(conds, fmt.Sprintf("t.\"id\" > $%d", len(args)))
	}

	if len(conds) == 0 {
		return "", nil, nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args, nil
}

// buildUpdateSQL renders a shallow patch as a SET list. Patch keys are
// sorted for deterministic SQL.
func buildUpdateSQL(rel, id string, patch json.RawMessage) (string, []any, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(patch, &fields); err != nil {
		return "", nil, fmt.Errorf("malformed patch: %w", err)
	}
	if len(fields) == 0 {
		return "", nil, fmt.Errorf("empty patch")
	}

	cols := make([]string, 0, len(fields))
	for col := range fields {
		cols = append(cols, col)
	}
	sort.Strings(cols)

	var sets []string
	var args []any
	for _, col := range cols {
		qCol, err := quoteIdent(col)
		if err != nil {
			return "", nil, err
		}
		var val any
		if err := json.Unmarshal(fields[col], &val); err != nil {
			return "", nil, fmt.Errorf("malformed patch value for %q: %w", col, err)
		}
		args = append(args, val)
		sets = append(sets, fmt.Sprintf("%s = $%d", qCol, len(args)))
	}

	args = append(args, id)
	sql := fmt.Sprintf("UPDATE %s AS t SET %s WHERE t.\"id\" = $%d RETURNING to_jsonb(t.*)",
		rel, strings.Join(sets, ", "), len(args))
	return sql, args, nil
}
