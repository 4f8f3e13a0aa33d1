package models

import (
	"encoding/json"
	"time"
)

// Entry is one cached query result plus its bookkeeping metadata.
// The value payload lives in the store's byte arena; everything else is
// metadata the fetch and mutation layers read and update.
type Entry struct {
	Key        string
	Value      json.RawMessage
	Total      *int
	FetchedAt  time.Time
	StaleAt    time.Time
	EvictAfter time.Duration

	// Optimistic marks a value written ahead of server confirmation.
	// TempID identifies a synthesized create so the confirmed row can
	// replace it later.
	Optimistic bool
	TempID     string

	// CommitSeq is the sequence number of the last confirmed write to this
	// entry. A rollback carrying an older sequence must not overwrite it.
	CommitSeq uint64

	LastError  string
	RetryCount int
}

// IsFresh reports whether the entry can be served without a refetch.
func (e *Entry) IsFresh(now time.Time) bool {
	return now.Before(e.StaleAt)
}

// MarkStale forces the entry to be considered stale from now on.
func (e *Entry) MarkStale(now time.Time) {
	e.StaleAt = now
}

// Clone returns a deep copy of the entry. Snapshots taken for optimistic
// rollback must not alias the live entry's payload.
func (e *Entry) Clone() *Entry {
	if e == nil {
		return nil
	}
	cp := *e
	if e.Value != nil {
		cp.Value = make(json.RawMessage, len(e.Value))
		copy(cp.Value, e.Value)
	}
	if e.Total != nil {
		total := *e.Total
		cp.Total = &total
	}
	return &cp
}
