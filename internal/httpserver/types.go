package httpserver

import (
	"encoding/json"

	"tourism-cache/internal/keys"
)

// QueryPayload is the wire shape of a list read.
type QueryPayload struct {
	Domain     string       `json:"domain"`
	Filters    keys.Filters `json:"filters,omitempty"`
	Page       int          `json:"page,omitempty"`
	PerPage    int          `json:"per_page,omitempty"`
	Cursor     string       `json:"cursor,omitempty"`
	OrderBy    string       `json:"order_by,omitempty"`
	Descending bool         `json:"descending,omitempty"`
	Search     bool         `json:"search,omitempty"`
	ForceFresh bool         `json:"force_fresh,omitempty"`
}

// QueryResponse carries one page of rows plus cache provenance.
type QueryResponse struct {
	Success    bool            `json:"success"`
	Data       json.RawMessage `json:"data"`
	Count      *int            `json:"count,omitempty"`
	HasMore    bool            `json:"has_more"`
	NextCursor string          `json:"next_cursor,omitempty"`
	FromCache  bool            `json:"from_cache"`
	Stale      bool            `json:"stale,omitempty"`
	Optimistic bool            `json:"optimistic,omitempty"`
}

// DetailResponse carries one entity plus cache provenance.
type DetailResponse struct {
	Success    bool            `json:"success"`
	Data       json.RawMessage `json:"data"`
	FromCache  bool            `json:"from_cache"`
	Optimistic bool            `json:"optimistic,omitempty"`
}

// MutatePayload is the wire shape of a create or update.
type MutatePayload struct {
	Data json.RawMessage `json:"data"`

	// Optimistic asks for an optimistic view over the cached lists named
	// by ListFilters while the write is in flight.
	Optimistic  bool           `json:"optimistic,omitempty"`
	ListFilters []keys.Filters `json:"list_filters,omitempty"`
}

// MutateResponse returns the server-confirmed row.
type MutateResponse struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// InvalidateResponse reports how many entries were touched.
type InvalidateResponse struct {
	Success bool `json:"success"`
	Touched int  `json:"touched"`
}
