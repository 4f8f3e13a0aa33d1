package noop

import (
	"tourism-cache/internal/interfaces"
	"tourism-cache/internal/models"
)

// Ensure Store implements interfaces.EntryStore
var _ interfaces.EntryStore = (*Store)(nil)

// Store is a no-operation entry store for cache-disabled operation: every
// read is a miss and every write is dropped.
type Store struct{}

// New creates a new no-operation entry store.
func New() interfaces.EntryStore {
	return &Store{}
}

// Get always returns a miss.
func (n *Store) Get(key string) (*models.Entry, bool) {
	return nil, false
}

// Set does nothing.
func (n *Store) Set(entry *models.Entry) {
	// No-op
}

// Delete does nothing.
func (n *Store) Delete(key string) {
	// No-op
}

// Invalidate touches nothing.
func (n *Store) Invalidate(prefix string) int {
	return 0
}

// Remove drops nothing.
func (n *Store) Remove(prefix string) int {
	return 0
}

// Keys returns no keys.
func (n *Store) Keys(prefix string) []string {
	return nil
}

// Len is always zero.
func (n *Store) Len() int {
	return 0
}

// ValueSize is always zero.
func (n *Store) ValueSize(key string) int {
	return 0
}

// Subscribe never delivers events.
func (n *Store) Subscribe(obs interfaces.StoreObserver) func() {
	return func() {}
}

// Clear does nothing.
func (n *Store) Clear() {
	// No-op
}

// Close does nothing.
func (n *Store) Close() error {
	return nil
}
