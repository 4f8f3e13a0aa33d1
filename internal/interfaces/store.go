package interfaces

import (
	"tourism-cache/internal/models"
)

//go:generate mockgen -package=mock -source=store.go -destination=mock/store.go

// StoreObserver receives entry-change events from an EntryStore. Observers
// must not block: events are delivered synchronously on the mutating path.
type StoreObserver interface {
	OnStoreEvent(evt models.StoreEvent)
}

// EntryStore is the process-wide map of cache entries. It is an explicit,
// injected object so tests can instantiate isolated stores.
type EntryStore interface {
	// Get returns a copy of the entry and whether it exists. A hit
	// refreshes the entry's eviction clock.
	Get(key string) (*models.Entry, bool)

	// Set stores a copy of the entry under entry.Key.
	Set(entry *models.Entry)

	// Delete removes a single entry.
	Delete(key string)

	// Invalidate marks every entry under the prefix stale and returns how
	// many entries were touched.
	Invalidate(prefix string) int

	// Remove drops every entry under the prefix and returns how many
	// entries were dropped.
	Remove(prefix string) int

	// Keys lists the keys currently stored under the prefix.
	Keys(prefix string) []string

	// Len is the number of resident entries.
	Len() int

	// ValueSize returns the resident payload bytes of one entry, zero if
	// absent.
	ValueSize(key string) int

	// Subscribe registers an observer and returns its unsubscribe func.
	Subscribe(obs StoreObserver) func()

	// Clear drops everything. Reserved for sign-out and unrecoverable
	// error recovery.
	Clear()

	Close() error
}
