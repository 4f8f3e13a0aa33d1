package memory

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"tourism-cache/internal/models"
	"tourism-cache/internal/utils"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(Config{MaxSizeMB: 8, JanitorInterval: utils.Duration(time.Hour)}, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func entry(key, value string, fresh time.Duration) *models.Entry {
	now := time.Now()
	return &models.Entry{
		Key:        key,
		Value:      []byte(value),
		FetchedAt:  now,
		StaleAt:    now.Add(fresh),
		EvictAfter: time.Hour,
	}
}

func TestStore_SetGet(t *testing.T) {
	s := newTestStore(t)

	s.Set(entry("businesses:detail:1", `{"id":"1"}`, time.Minute))

	got, ok := s.Get("businesses:detail:1")
	require.True(t, ok)
	assert.Equal(t, `{"id":"1"}`, string(got.Value))
	assert.True(t, got.IsFresh(time.Now()))

	_, ok = s.Get("businesses:detail:2")
	assert.False(t, ok)
}

func TestStore_GetReturnsCopy(t *testing.T) {
	s := newTestStore(t)
	s.Set(entry("businesses:detail:1", `{"id":"1"}`, time.Minute))

	got, ok := s.Get("businesses:detail:1")
	require.True(t, ok)
	got.Value[0] = 'X'
	got.StaleAt = time.Time{}

	again, ok := s.Get("businesses:detail:1")
	require.True(t, ok)
	assert.Equal(t, `{"id":"1"}`, string(again.Value))
	assert.True(t, again.IsFresh(time.Now()))
}

func TestStore_Invalidate_Prefix(t *testing.T) {
	s := newTestStore(t)
	s.Set(entry(`businesses:list:{"page":1}`, `[]`, time.Hour))
	s.Set(entry(`businesses:list:{"page":2}`, `[]`, time.Hour))
	s.Set(entry("businesses:detail:1", `{}`, time.Hour))
	s.Set(entry("users:detail:9", `{}`, time.Hour))

	touched := s.Invalidate("businesses:list")
	assert.Equal(t, 2, touched)

	now := time.Now()
	for _, key := range []string{`businesses:list:{"page":1}`, `businesses:list:{"page":2}`} {
		got, ok := s.Get(key)
		require.True(t, ok)
		assert.False(t, got.IsFresh(now), "key %s should be stale", key)
	}
	got, ok := s.Get("businesses:detail:1")
	require.True(t, ok)
	assert.True(t, got.IsFresh(now))
	got, ok = s.Get("users:detail:9")
	require.True(t, ok)
	assert.True(t, got.IsFresh(now))
}

func TestStore_Invalidate_NoSegmentBleed(t *testing.T) {
	s := newTestStore(t)
	s.Set(entry("users:detail:9", `{}`, time.Hour))
	s.Set(entry("users_archive:detail:9", `{}`, time.Hour))

	touched := s.Invalidate("users")
	assert.Equal(t, 1, touched)

	got, ok := s.Get("users_archive:detail:9")
	require.True(t, ok)
	assert.True(t, got.IsFresh(time.Now()))
}

func TestStore_Remove(t *testing.T) {
	s := newTestStore(t)
	s.Set(entry("bookings:detail:1", `{}`, time.Hour))
	s.Set(entry("bookings:detail:2", `{}`, time.Hour))

	dropped := s.Remove("bookings")
	assert.Equal(t, 2, dropped)
	assert.Equal(t, 0, s.Len())
}

func TestStore_Clear(t *testing.T) {
	s := newTestStore(t)
	s.Set(entry("events:detail:1", `{}`, time.Hour))
	s.Set(entry("users:detail:1", `{}`, time.Hour))

	s.Clear()
	assert.Equal(t, 0, s.Len())
	_, ok := s.Get("events:detail:1")
	assert.False(t, ok)
}

func TestStore_Keys(t *testing.T) {
	s := newTestStore(t)
	s.Set(entry(`businesses:list:{"page":1}`, `[]`, time.Hour))
	s.Set(entry("businesses:detail:1", `{}`, time.Hour))

	keys := s.Keys("businesses:list")
	assert.Equal(t, []string{`businesses:list:{"page":1}`}, keys)
	assert.Len(t, s.Keys("businesses"), 2)
	assert.Empty(t, s.Keys("events"))
}

func TestStore_KeysEmptyPrefixReturnsAll(t *testing.T) {
	s := newTestStore(t)
	s.Set(entry(`businesses:list:{}`, `[]`, time.Hour))
	s.Set(entry("events:detail:e1", `{}`, time.Hour))

	assert.Len(t, s.Keys(""), 2, "empty prefix walks the whole store")
}

func TestStore_SetClockDrivesStaleness(t *testing.T) {
	s := newTestStore(t)
	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.SetClock(func() time.Time { return clock })

	e := entry("businesses:detail:b1", `{}`, time.Hour)
	e.FetchedAt = clock
	e.StaleAt = clock.Add(time.Hour)
	s.Set(e)

	s.Invalidate("businesses")
	got, ok := s.Get("businesses:detail:b1")
	require.True(t, ok)
	assert.False(t, got.IsFresh(clock), "stale mark carries the injected clock")
}

func TestStore_JanitorEvictsByDisuse(t *testing.T) {
	s := newTestStore(t)

	e := entry("businesses:detail:1", `{}`, time.Hour)
	e.EvictAfter = 10 * time.Millisecond
	s.Set(e)
	s.Set(entry("businesses:detail:2", `{}`, time.Hour))

	// Push the clock past the disuse window and sweep.
	s.mu.Lock()
	s.now = func() time.Time { return time.Now().Add(time.Second) }
	s.mu.Unlock()
	s.sweep()

	_, ok := s.Get("businesses:detail:1")
	assert.False(t, ok)
	_, ok = s.Get("businesses:detail:2")
	assert.True(t, ok)
}

func TestStore_ValueSize(t *testing.T) {
	s := newTestStore(t)
	payload := `{"id":"1","name":"Cafe X"}`
	s.Set(entry("businesses:detail:1", payload, time.Hour))

	assert.Equal(t, len(payload), s.ValueSize("businesses:detail:1"))
	assert.Zero(t, s.ValueSize("businesses:detail:2"))
}

func TestStore_Observers(t *testing.T) {
	s := newTestStore(t)

	var mu sync.Mutex
	var events []models.StoreEvent
	unsub := s.Subscribe(observerFunc(func(evt models.StoreEvent) {
		mu.Lock()
		events = append(events, evt)
		mu.Unlock()
	}))

	s.Set(entry("businesses:detail:1", `{}`, time.Hour))
	s.Invalidate("businesses")
	s.Delete("businesses:detail:1")

	mu.Lock()
	require.Len(t, events, 3)
	assert.Equal(t, models.EntryOpSet, events[0].Op)
	assert.Equal(t, models.EntryOpInvalidate, events[1].Op)
	assert.Equal(t, models.EntryOpRemove, events[2].Op)
	mu.Unlock()

	unsub()
	s.Set(entry("businesses:detail:2", `{}`, time.Hour))

	mu.Lock()
	assert.Len(t, events, 3)
	mu.Unlock()
}

func TestStore_ConcurrentAccess(t *testing.T) {
	s := newTestStore(t)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				key := fmt.Sprintf("businesses:detail:%d", j%10)
				s.Set(entry(key, `{}`, time.Hour))
				s.Get(key)
				if j%10 == 0 {
					s.Invalidate("businesses")
				}
			}
		}(i)
	}
	wg.Wait()

	assert.LessOrEqual(t, s.Len(), 10)
}

// observerFunc adapts a func to interfaces.StoreObserver.
type observerFunc func(models.StoreEvent)

func (f observerFunc) OnStoreEvent(evt models.StoreEvent) { f(evt) }
