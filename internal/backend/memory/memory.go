package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"tourism-cache/internal/errclass"
	"tourism-cache/internal/interfaces"
	"tourism-cache/internal/models"
)

// Ensure Backend implements interfaces.Backend
var _ interfaces.Backend = (*Backend)(nil)

// Backend is an in-process table store implementing the hosted-database
// client interface. It backs tests and the admin binary's demo mode, and
// can replay injected failures to exercise retry paths.
type Backend struct {
	mu     sync.Mutex
	tables map[string][]map[string]any

	failures  int
	failErr   error
	failEvery bool
}

// New creates an empty in-memory backend.
func New() *Backend {
	return &Backend{tables: make(map[string][]map[string]any)}
}

// FailNext makes the next n operations return err before touching data.
func (b *Backend) FailNext(n int, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = n
	b.failErr = err
	b.failEvery = false
}

// FailAlways makes every operation return err until reset with FailNext(0, nil).
func (b *Backend) FailAlways(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failErr = err
	b.failEvery = true
}

// Seed loads rows into a table, bypassing failure injection.
func (b *Backend) Seed(table string, rows ...map[string]any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, row := range rows {
		b.tables[table] = append(b.tables[table], cloneRow(row))
	}
}

func (b *Backend) maybeFail() error {
	if b.failEvery && b.failErr != nil {
		return b.failErr
	}
	if b.failures > 0 {
		b.failures--
		return b.failErr
	}
	return nil
}

// Select runs a filtered read over one table.
func (b *Backend) Select(ctx context.Context, q models.SelectQuery) (*models.SelectResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, errclass.Classify("select", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.maybeFail(); err != nil {
		return nil, errclass.Classify("select", err)
	}

	var matched []map[string]any
	for _, row := range b.tables[q.Table] {
		if rowMatches(row, q.Filters) {
			matched = append(matched, row)
		}
	}

	orderBy := q.OrderBy
	if orderBy == "" {
		orderBy = "id"
	}
	sort.SliceStable(matched, func(i, j int) bool {
		less := fmt.Sprintf("%v", matched[i][orderBy]) < fmt.Sprintf("%v", matched[j][orderBy])
		if q.Descending {
			return !less
		}
		return less
	})

	total := len(matched)

	if q.Cursor != "" {
		idx := 0
		for i, row := range matched {
			if fmt.Sprintf("%v", row["id"]) == q.Cursor {
				idx = i + 1
				break
			}
		}
		matched = matched[idx:]
	} else if q.Offset > 0 {
		if q.Offset >= len(matched) {
			matched = nil
		} else {
			matched = matched[q.Offset:]
		}
	}
	if q.Limit > 0 && len(matched) > q.Limit {
		matched = matched[:q.Limit]
	}

	page := make([]map[string]any, len(matched))
	for i, row := range matched {
		page[i] = cloneRow(row)
	}
	rows, err := json.Marshal(page)
	if err != nil {
		return nil, errclass.Classify("select", err)
	}

	result := &models.SelectResult{Rows: rows}
	if q.WithCount {
		result.Count = &total
	}
	return result, nil
}

// Insert writes one row, assigning an id when the caller did not.
func (b *Backend) Insert(ctx context.Context, table string, rowJSON json.RawMessage) (json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, errclass.Classify("insert", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.maybeFail(); err != nil {
		return nil, errclass.Classify("insert", err)
	}

	var row map[string]any
	if err := json.Unmarshal(rowJSON, &row); err != nil {
		return nil, errclass.New(errclass.Validation, "insert", err)
	}
	if row == nil {
		return nil, errclass.New(errclass.Validation, "insert",
			fmt.Errorf("row must be a JSON object"))
	}

	id, _ := row["id"].(string)
	if id == "" {
		id = uuid.NewString()
		row["id"] = id
	}
	for _, existing := range b.tables[table] {
		if fmt.Sprintf("%v", existing["id"]) == id {
			return nil, errclass.New(errclass.Conflict, "insert",
				fmt.Errorf("duplicate id %q in table %q", id, table))
		}
	}

	b.tables[table] = append(b.tables[table], cloneRow(row))
	return json.Marshal(row)
}

// Update shallow-merges the patch into the row with the given id.
func (b *Backend) Update(ctx context.Context, table, id string, patch json.RawMessage) (json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, errclass.Classify("update", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.maybeFail(); err != nil {
		return nil, errclass.Classify("update", err)
	}

	var fields map[string]any
	if err := json.Unmarshal(patch, &fields); err != nil {
		return nil, errclass.New(errclass.Validation, "update", err)
	}
	if fields == nil {
		return nil, errclass.New(errclass.Validation, "update",
			fmt.Errorf("patch must be a JSON object"))
	}

	for _, row := range b.tables[table] {
		if fmt.Sprintf("%v", row["id"]) == id {
			for k, v := range fields {
				row[k] = v
			}
			return json.Marshal(row)
		}
	}
	return nil, errclass.New(errclass.NotFoundOrDenied, "update",
		fmt.Errorf("row %q not found in table %q", id, table))
}

// Delete removes the row with the given id.
func (b *Backend) Delete(ctx context.Context, table, id string) error {
	if err := ctx.Err(); err != nil {
		return errclass.Classify("delete", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.maybeFail(); err != nil {
		return errclass.Classify("delete", err)
	}

	rows := b.tables[table]
	for i, row := range rows {
		if fmt.Sprintf("%v", row["id"]) == id {
			b.tables[table] = append(rows[:i:i], rows[i+1:]...)
			return nil
		}
	}
	return errclass.New(errclass.NotFoundOrDenied, "delete",
		fmt.Errorf("row %q not found in table %q", id, table))
}

// rowMatches applies equality filters; slice-valued filters mean "any of".
func rowMatches(row map[string]any, filters map[string]any) bool {
	for col, want := range filters {
		got, ok := row[col]
		if !ok {
			return false
		}
		switch w := want.(type) {
		case []string:
			if !containsValue(got, anySlice(w)) {
				return false
			}
		case []any:
			if !containsValue(got, w) {
				return false
			}
		default:
			if fmt.Sprintf("%v", got) != fmt.Sprintf("%v", want) {
				return false
			}
		}
	}
	return true
}

func containsValue(got any, want []any) bool {
	for _, w := range want {
		if fmt.Sprintf("%v", got) == fmt.Sprintf("%v", w) {
			return true
		}
	}
	return false
}

func anySlice(in []string) []any {
	out := make([]any, len(in))
	for i, s := range in {
		out[i] = s
	}
	return out
}

func cloneRow(row map[string]any) map[string]any {
	out := make(map[string]any, len(row))
	for k, v := range row {
		out[k] = v
	}
	return out
}

// ErrUnavailable is a canned transient failure for tests.
var ErrUnavailable = errors.New("backend temporarily unavailable: connection refused")
