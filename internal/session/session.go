// Package session tracks the current user identity for the cache layer.
// Identity changes clear the user-scoped cache so one account can never be
// served another account's data present from before a switch.
package session

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"tourism-cache/internal/interfaces"
	"tourism-cache/internal/keys"
	"tourism-cache/internal/metrics"
)

// userScoped are the domains whose cached payloads depend on who is asking.
var userScoped = []keys.Domain{keys.Users, keys.Bookings}

const anonNamespace = "anon"

// Listener is notified after an identity change has been applied.
type Listener func(oldUserID, newUserID string)

type Session struct {
	store  interfaces.EntryStore
	kv     interfaces.KeyValueStore
	logger *zap.Logger

	mu        sync.Mutex
	userID    string
	listeners map[int]Listener
	nextID    int
}

func New(store interfaces.EntryStore, kv interfaces.KeyValueStore, logger *zap.Logger) *Session {
	return &Session{
		store:     store,
		kv:        kv,
		logger:    logger,
		listeners: make(map[int]Listener),
	}
}

// CurrentUser returns the active user id, empty when anonymous.
func (s *Session) CurrentUser() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userID
}

// PrefKey namespaces a preference key by the current identity so values
// from different accounts never collide.
func (s *Session) PrefKey(key string) string {
	return prefNamespace(s.CurrentUser()) + key
}

// SetUser switches the active identity. User-scoped cache entries are
// dropped; signing out additionally deletes the previous user's stored
// preferences. Listeners fire after the cache is consistent.
func (s *Session) SetUser(ctx context.Context, userID string) error {
	s.mu.Lock()
	old := s.userID
	if old == userID {
		s.mu.Unlock()
		return nil
	}
	s.userID = userID
	listeners := make([]Listener, 0, len(s.listeners))
	for _, fn := range s.listeners {
		listeners = append(listeners, fn)
	}
	s.mu.Unlock()

	for _, d := range userScoped {
		s.store.Remove(d.All().String())
		metrics.RecordInvalidation(string(d), "session")
	}

	if userID == "" && old != "" {
		if err := s.kv.DeleteNamespace(ctx, prefNamespace(old)); err != nil {
			s.logger.Warn("failed to clear signed-out user's preferences",
				zap.String("user_id", old), zap.Error(err))
		}
	}

	s.logger.Info("user identity changed",
		zap.Bool("signed_in", userID != ""),
		zap.Bool("was_signed_in", old != ""))

	for _, fn := range listeners {
		fn(old, userID)
	}
	return nil
}

// OnChange registers a listener and returns its unsubscribe func.
func (s *Session) OnChange(fn Listener) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.listeners, id)
	}
}

func prefNamespace(userID string) string {
	if userID == "" {
		userID = anonNamespace
	}
	return "prefs:" + userID + ":"
}
