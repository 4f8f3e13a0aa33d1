package client

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	backendmem "tourism-cache/internal/backend/memory"
	"tourism-cache/internal/errclass"
	"tourism-cache/internal/keys"
	"tourism-cache/internal/policy"
	storemem "tourism-cache/internal/store/memory"
	"tourism-cache/internal/utils"
)

type fixture struct {
	client  *Client
	store   *storemem.Store
	backend *backendmem.Backend
	clock   *time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := zaptest.NewLogger(t)
	store, err := storemem.New(storemem.Config{JanitorInterval: utils.Duration(time.Hour)}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	backend := backendmem.New()
	c := New(store, backend, policy.Default(), logger)
	c.retryBase = time.Millisecond

	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return clock }
	store.SetClock(c.now)
	return &fixture{client: c, store: store, backend: backend, clock: &clock}
}

func (f *fixture) advance(d time.Duration) {
	*f.clock = f.clock.Add(d)
}

func TestQueryMissThenHit(t *testing.T) {
	f := newFixture(t)
	f.backend.Seed("businesses",
		map[string]any{"id": "b1", "name": "Harbor Grill", "status": "approved"},
		map[string]any{"id": "b2", "name": "Cliff Cafe", "status": "pending"},
	)

	req := QueryRequest{
		Domain:  keys.Businesses,
		Filters: keys.Filters{"status": "approved"},
	}
	res, err := f.client.Query(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, res.FromCache)

	var rows []map[string]any
	require.NoError(t, json.Unmarshal(res.Data, &rows))
	require.Len(t, rows, 1)
	assert.Equal(t, "b1", rows[0]["id"])

	// same request again inside the freshness window is served from cache
	res2, err := f.client.Query(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, res2.FromCache)
	assert.JSONEq(t, string(res.Data), string(res2.Data))
}

func TestQueryStaleRefetches(t *testing.T) {
	f := newFixture(t)
	f.backend.Seed("businesses", map[string]any{"id": "b1", "name": "Harbor Grill"})

	req := QueryRequest{Domain: keys.Businesses}
	_, err := f.client.Query(context.Background(), req)
	require.NoError(t, err)

	// dynamic class is fresh for 5 minutes
	f.advance(6 * time.Minute)
	res, err := f.client.Query(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, res.FromCache)
}

func TestQueryForceFreshBypassesCache(t *testing.T) {
	f := newFixture(t)
	f.backend.Seed("businesses", map[string]any{"id": "b1", "name": "Old Name"})

	_, err := f.client.Query(context.Background(), QueryRequest{Domain: keys.Businesses})
	require.NoError(t, err)

	f.backend.Seed("businesses", map[string]any{"id": "b2", "name": "Brand New"})
	res, err := f.client.Query(context.Background(), QueryRequest{Domain: keys.Businesses, ForceFresh: true})
	require.NoError(t, err)
	assert.False(t, res.FromCache)

	var rows []map[string]any
	require.NoError(t, json.Unmarshal(res.Data, &rows))
	assert.Len(t, rows, 2)
}

func TestQueryPaginationSpellingsShareKey(t *testing.T) {
	f := newFixture(t)
	f.backend.Seed("events", map[string]any{"id": "e1", "title": "Lantern Festival"})

	explicit := QueryRequest{Domain: keys.Events, Page: 2, PerPage: 10}
	inline := QueryRequest{Domain: keys.Events, Filters: keys.Filters{"page": 2, "per_page": 10}}

	_, err := f.client.Query(context.Background(), explicit)
	require.NoError(t, err)

	// identical key, so the second spelling is a cache hit
	res, err := f.client.Query(context.Background(), inline)
	require.NoError(t, err)
	assert.True(t, res.FromCache)
	assert.Equal(t, 1, f.store.Len())
}

func TestQueryRejectsConflictingPagination(t *testing.T) {
	f := newFixture(t)
	_, err := f.client.Query(context.Background(), QueryRequest{
		Domain:  keys.Businesses,
		Page:    1,
		Filters: keys.Filters{"page": 2},
	})
	require.Error(t, err)
	assert.Equal(t, errclass.Validation, errclass.KindOf(err))
}

func TestQueryUnknownDomainFailsFast(t *testing.T) {
	f := newFixture(t)
	_, err := f.client.Query(context.Background(), QueryRequest{Domain: "giftshops"})
	require.Error(t, err)
	assert.Equal(t, errclass.Validation, errclass.KindOf(err))
}

func TestQueryHasMoreFromCount(t *testing.T) {
	f := newFixture(t)
	rows := make([]map[string]any, 0, 25)
	for _, id := range []string{"a", "b", "c", "d", "e"} {
		rows = append(rows, map[string]any{"id": id})
	}
	f.backend.Seed("businesses", rows...)

	res, err := f.client.Query(context.Background(), QueryRequest{
		Domain:  keys.Businesses,
		Page:    1,
		PerPage: 2,
		OrderBy: "id",
	})
	require.NoError(t, err)
	require.NotNil(t, res.Count)
	assert.Equal(t, 5, *res.Count)
	assert.True(t, res.HasMore)

	last, err := f.client.Query(context.Background(), QueryRequest{
		Domain:  keys.Businesses,
		Page:    3,
		PerPage: 2,
		OrderBy: "id",
	})
	require.NoError(t, err)
	assert.False(t, last.HasMore)
}

func TestQueryCursorPagination(t *testing.T) {
	f := newFixture(t)
	f.backend.Seed("reviews",
		map[string]any{"id": "r1", "rating": 5},
		map[string]any{"id": "r2", "rating": 4},
		map[string]any{"id": "r3", "rating": 3},
	)

	first, err := f.client.Query(context.Background(), QueryRequest{
		Domain:  keys.Reviews,
		PerPage: 2,
		OrderBy: "id",
	})
	require.NoError(t, err)
	require.True(t, first.HasMore)
	require.Equal(t, "r2", first.NextCursor)

	second, err := f.client.Query(context.Background(), QueryRequest{
		Domain:  keys.Reviews,
		PerPage: 2,
		Cursor:  first.NextCursor,
		OrderBy: "id",
	})
	require.NoError(t, err)

	var rows []map[string]any
	require.NoError(t, json.Unmarshal(second.Data, &rows))
	require.Len(t, rows, 1)
	assert.Equal(t, "r3", rows[0]["id"])
	assert.False(t, second.HasMore)
}

func TestSearchUsesSearchClass(t *testing.T) {
	f := newFixture(t)
	f.backend.Seed("businesses", map[string]any{"id": "b1", "name": "Harbor Grill"})

	req := QueryRequest{Domain: keys.Businesses, Filters: keys.Filters{"q": "harbor"}, Search: true}
	_, err := f.client.Query(context.Background(), req)
	require.NoError(t, err)

	// search results are fresh for only 2 minutes
	f.advance(3 * time.Minute)
	res, err := f.client.Query(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, res.FromCache)
}

func TestDetailHitAndNotFound(t *testing.T) {
	f := newFixture(t)
	f.backend.Seed("tourist_spots", map[string]any{"id": "s1", "name": "Azure Falls"})

	res, err := f.client.Detail(context.Background(), keys.TouristSpots, "s1")
	require.NoError(t, err)
	assert.False(t, res.FromCache)

	res2, err := f.client.Detail(context.Background(), keys.TouristSpots, "s1")
	require.NoError(t, err)
	assert.True(t, res2.FromCache)

	_, err = f.client.Detail(context.Background(), keys.TouristSpots, "missing")
	require.Error(t, err)
	assert.Equal(t, errclass.NotFoundOrDenied, errclass.KindOf(err))
}

func TestFetchFailureKeepsStaleEntryWithError(t *testing.T) {
	f := newFixture(t)
	f.backend.Seed("businesses", map[string]any{"id": "b1"})

	req := QueryRequest{Domain: keys.Businesses}
	_, err := f.client.Query(context.Background(), req)
	require.NoError(t, err)

	f.advance(6 * time.Minute)
	f.backend.FailAlways(assert.AnError)
	_, err = f.client.Query(context.Background(), req)
	require.Error(t, err)

	key, kerr := keys.Businesses.List(keys.Filters{})
	require.NoError(t, kerr)
	entry, ok := f.store.Get(key.String())
	require.True(t, ok, "stale entry survives a failed refetch")
	assert.NotEmpty(t, entry.LastError)
	assert.Equal(t, 1, entry.RetryCount)
}
