package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/allegro/bigcache/v3"
	"go.uber.org/zap"

	"tourism-cache/internal/interfaces"
	"tourism-cache/internal/metrics"
	"tourism-cache/internal/models"
	"tourism-cache/internal/scheduler"
	"tourism-cache/internal/utils"
)

// Ensure Store implements interfaces.EntryStore
var _ interfaces.EntryStore = (*Store)(nil)

// Config tunes the in-memory entry store.
type Config struct {
	// Disabled selects the no-op store: every read misses and nothing is
	// retained. Checked by the composition root, not here.
	Disabled bool `yaml:"disabled"`
	// MaxSizeMB bounds the resident payload bytes in the value arena.
	MaxSizeMB int `yaml:"max_size_mb"`
	// MaxEntrySize is the largest single payload accepted, in bytes.
	MaxEntrySize int `yaml:"max_entry_size"`
	// JanitorInterval is how often the eviction sweep runs.
	JanitorInterval utils.Duration `yaml:"janitor_interval"`
}

// ApplyDefaults sets default values for missing configuration.
func (c *Config) ApplyDefaults() {
	if c.MaxSizeMB == 0 {
		c.MaxSizeMB = 64
	}
	if c.MaxEntrySize == 0 {
		c.MaxEntrySize = 1024 * 1024
	}
	if c.JanitorInterval == 0 {
		c.JanitorInterval = utils.Duration(time.Minute)
	}
}

// meta is the per-entry metadata index record. The payload itself lives in
// the bigcache arena so total resident bytes stay bounded.
type meta struct {
	entry      models.Entry // Value always nil here
	lastAccess time.Time
	size       int
}

// Store is the in-memory entry store: a metadata index over a bigcache
// value arena, with an eviction janitor and synchronous change observers.
type Store struct {
	arena  *bigcache.BigCache
	logger *zap.Logger

	mu      sync.Mutex
	meta    map[string]*meta
	obs     map[int]interfaces.StoreObserver
	nextObs int

	janitor *scheduler.Scheduler
	now     func() time.Time
}

// New creates an entry store. The arena's life window is a backstop only;
// real eviction is the per-entry disuse window enforced by the janitor.
func New(cfg Config, logger *zap.Logger) (*Store, error) {
	cfg.ApplyDefaults()

	arenaCfg := bigcache.DefaultConfig(24 * time.Hour)
	arenaCfg.HardMaxCacheSize = cfg.MaxSizeMB
	arenaCfg.MaxEntrySize = cfg.MaxEntrySize
	arenaCfg.Verbose = false

	arena, err := bigcache.New(context.Background(), arenaCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create value arena: %w", err)
	}

	s := &Store{
		arena:  arena,
		logger: logger,
		meta:   make(map[string]*meta),
		obs:    make(map[int]interfaces.StoreObserver),
		now:    time.Now,
	}

	s.janitor = scheduler.New(cfg.JanitorInterval.Std(), s.sweep)
	s.janitor.Start()

	return s, nil
}

// SetClock overrides the store's time source. Tests use it to share one
// clock with the calling layer so freshness stamps and staleness marks
// line up with the caller's view of now.
func (s *Store) SetClock(fn func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = fn
}

// Get returns a copy of the entry. A hit refreshes the eviction clock.
func (s *Store) Get(key string) (*models.Entry, bool) {
	s.mu.Lock()
	m, ok := s.meta[key]
	if !ok {
		s.mu.Unlock()
		return nil, false
	}

	data, err := s.arena.Get(key)
	if err != nil {
		// The arena dropped the payload under memory pressure; the entry
		// is gone, drop the orphaned index record too.
		delete(s.meta, key)
		s.mu.Unlock()
		return nil, false
	}

	m.lastAccess = s.now()
	entry := m.entry.Clone()
	s.mu.Unlock()

	entry.Value = make([]byte, len(data))
	copy(entry.Value, data)
	return entry, true
}

// Set stores a copy of the entry under entry.Key.
func (s *Store) Set(entry *models.Entry) {
	if entry == nil || entry.Key == "" {
		return
	}

	if err := s.arena.Set(entry.Key, entry.Value); err != nil {
		s.logger.Error("Failed to store cache payload",
			zap.String("key", entry.Key), zap.Error(err))
		return
	}

	stored := entry.Clone()
	size := len(stored.Value)
	stored.Value = nil

	s.mu.Lock()
	s.meta[entry.Key] = &meta{
		entry:      *stored,
		lastAccess: s.now(),
		size:       size,
	}
	obs := s.observers()
	s.mu.Unlock()

	notify(obs, models.StoreEvent{Op: models.EntryOpSet, Key: entry.Key})
}

// Delete removes a single entry.
func (s *Store) Delete(key string) {
	s.mu.Lock()
	_, ok := s.meta[key]
	if ok {
		delete(s.meta, key)
		_ = s.arena.Delete(key)
	}
	obs := s.observers()
	s.mu.Unlock()

	if ok {
		notify(obs, models.StoreEvent{Op: models.EntryOpRemove, Key: key})
	}
}

// Invalidate marks every entry under the prefix stale.
func (s *Store) Invalidate(prefix string) int {
	now := s.now()

	s.mu.Lock()
	var touched []string
	for key, m := range s.meta {
		if underPrefix(key, prefix) {
			m.entry.MarkStale(now)
			touched = append(touched, key)
		}
	}
	obs := s.observers()
	s.mu.Unlock()

	for _, key := range touched {
		notify(obs, models.StoreEvent{Op: models.EntryOpInvalidate, Key: key})
	}
	return len(touched)
}

// Remove drops every entry under the prefix.
func (s *Store) Remove(prefix string) int {
	s.mu.Lock()
	var dropped []string
	for key := range s.meta {
		if underPrefix(key, prefix) {
			delete(s.meta, key)
			_ = s.arena.Delete(key)
			dropped = append(dropped, key)
		}
	}
	obs := s.observers()
	s.mu.Unlock()

	for _, key := range dropped {
		notify(obs, models.StoreEvent{Op: models.EntryOpRemove, Key: key})
	}
	return len(dropped)
}

// Keys lists resident keys under the prefix.
func (s *Store) Keys(prefix string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []string
	for key := range s.meta {
		if underPrefix(key, prefix) {
			out = append(out, key)
		}
	}
	return out
}

// Len is the number of resident entries.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.meta)
}

// ValueSize returns the resident payload bytes of one entry.
func (s *Store) ValueSize(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := s.meta[key]; ok {
		return m.size
	}
	return 0
}

// Subscribe registers an observer; the returned func unsubscribes it.
func (s *Store) Subscribe(obs interfaces.StoreObserver) func() {
	s.mu.Lock()
	id := s.nextObs
	s.nextObs++
	s.obs[id] = obs
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.obs, id)
		s.mu.Unlock()
	}
}

// Clear drops everything.
func (s *Store) Clear() {
	s.mu.Lock()
	s.meta = make(map[string]*meta)
	if err := s.arena.Reset(); err != nil {
		s.logger.Warn("Failed to reset value arena", zap.Error(err))
	}
	obs := s.observers()
	s.mu.Unlock()

	notify(obs, models.StoreEvent{Op: models.EntryOpClear})
}

// Close stops the janitor and releases the arena.
func (s *Store) Close() error {
	s.janitor.Stop()
	return s.arena.Close()
}

// sweep drops entries past their disuse window and refreshes occupancy
// metrics.
func (s *Store) sweep() {
	now := s.now()

	s.mu.Lock()
	var expired []string
	var totalBytes int64
	for key, m := range s.meta {
		if m.entry.EvictAfter > 0 && now.Sub(m.lastAccess) > m.entry.EvictAfter {
			delete(s.meta, key)
			_ = s.arena.Delete(key)
			expired = append(expired, key)
			continue
		}
		totalBytes += int64(m.size)
	}
	entries := len(s.meta)
	obs := s.observers()
	s.mu.Unlock()

	for _, key := range expired {
		notify(obs, models.StoreEvent{Op: models.EntryOpRemove, Key: key})
	}
	metrics.UpdateStoreOccupancy(entries, totalBytes)

	if len(expired) > 0 {
		s.logger.Debug("Evicted unused cache entries", zap.Int("count", len(expired)))
	}
}

// observers snapshots the observer set; callers must hold s.mu.
func (s *Store) observers() []interfaces.StoreObserver {
	out := make([]interfaces.StoreObserver, 0, len(s.obs))
	for _, o := range s.obs {
		out = append(out, o)
	}
	return out
}

// notify fires outside the store lock so observers may call back in.
func notify(obs []interfaces.StoreObserver, evt models.StoreEvent) {
	for _, o := range obs {
		o.OnStoreEvent(evt)
	}
}

// underPrefix matches whole key segments: "users:list" covers
// "users:list:{...}" but "users" never covers "users_archive". The empty
// prefix covers everything.
func underPrefix(key, prefix string) bool {
	if prefix == "" || key == prefix {
		return true
	}
	return strings.HasPrefix(key, prefix+":")
}
