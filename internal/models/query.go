package models

import "encoding/json"

// SelectQuery describes a filtered read against one backend table.
type SelectQuery struct {
	Table      string
	Filters    map[string]any
	OrderBy    string
	Descending bool

	// Offset/Limit drive paged list views. Cursor drives infinite-scroll
	// views and is exclusive with Offset.
	Offset int
	Limit  int
	Cursor string

	// WithCount asks the backend for the total row count matching the
	// filters, when it can provide one cheaply.
	WithCount bool
}

// SelectResult carries one page of rows as a JSON array plus the optional
// total count.
type SelectResult struct {
	Rows  json.RawMessage
	Count *int
}

// EntryOp identifies the kind of change an entry-store observer is told about.
type EntryOp string

const (
	EntryOpSet        EntryOp = "set"
	EntryOpInvalidate EntryOp = "invalidate"
	EntryOpRemove     EntryOp = "remove"
	EntryOpClear      EntryOp = "clear"
)

// StoreEvent is delivered to entry-store observers on every entry change.
type StoreEvent struct {
	Op  EntryOp
	Key string
}
