package models

import (
	"encoding/json"
	"fmt"
)

// FeedEvent is the change-feed event type a subscription listens for.
type FeedEvent string

const (
	FeedInsert FeedEvent = "INSERT"
	FeedUpdate FeedEvent = "UPDATE"
	FeedDelete FeedEvent = "DELETE"
	FeedAll    FeedEvent = "*"
)

// ParseFeedEvent validates a feed event name from config or a wire payload.
func ParseFeedEvent(s string) (FeedEvent, error) {
	switch FeedEvent(s) {
	case FeedInsert, FeedUpdate, FeedDelete, FeedAll:
		return FeedEvent(s), nil
	default:
		return "", fmt.Errorf("invalid feed event %q: must be one of INSERT, UPDATE, DELETE, *", s)
	}
}

// ChangeEvent is one row-change notification from the backend's change feed.
type ChangeEvent struct {
	Schema string          `json:"schema"`
	Table  string          `json:"table"`
	Event  FeedEvent       `json:"event"`
	RowID  string          `json:"row_id,omitempty"`
	New    json.RawMessage `json:"new,omitempty"`
	Old    json.RawMessage `json:"old,omitempty"`
}

// Matches reports whether the event satisfies a subscription's event-type
// and optional column filter. The filter has the form "column=value" and is
// checked against the new row payload (old row for deletes).
func (c ChangeEvent) Matches(event FeedEvent, filter string) bool {
	if event != FeedAll && event != c.Event {
		return false
	}
	if filter == "" {
		return true
	}
	col, want, ok := splitFilter(filter)
	if !ok {
		return false
	}
	payload := c.New
	if c.Event == FeedDelete {
		payload = c.Old
	}
	if payload == nil {
		return false
	}
	var row map[string]any
	if err := json.Unmarshal(payload, &row); err != nil {
		return false
	}
	got, exists := row[col]
	if !exists {
		return false
	}
	return fmt.Sprintf("%v", got) == want
}

func splitFilter(filter string) (col, value string, ok bool) {
	for i := 0; i < len(filter); i++ {
		if filter[i] == '=' {
			return filter[:i], filter[i+1:], true
		}
	}
	return "", "", false
}
