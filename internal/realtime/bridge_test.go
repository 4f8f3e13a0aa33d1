package realtime

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap/zaptest"

	"tourism-cache/internal/interfaces"
	"tourism-cache/internal/interfaces/mock"
	"tourism-cache/internal/keys"
	"tourism-cache/internal/models"
	storemem "tourism-cache/internal/store/memory"
	"tourism-cache/internal/utils"
)

func newTestStore(t *testing.T) *storemem.Store {
	t.Helper()
	store, err := storemem.New(storemem.Config{JanitorInterval: utils.Duration(time.Hour)}, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func seedFresh(t *testing.T, store *storemem.Store, key keys.Key, value string) {
	t.Helper()
	now := time.Now()
	store.Set(&models.Entry{
		Key:        key.String(),
		Value:      json.RawMessage(value),
		FetchedAt:  now,
		StaleAt:    now.Add(time.Hour),
		EvictAfter: 4 * time.Hour,
	})
}

func freshness(t *testing.T, store *storemem.Store, key keys.Key) bool {
	t.Helper()
	entry, ok := store.Get(key.String())
	require.True(t, ok)
	return entry.IsFresh(time.Now())
}

func TestInsertInvalidatesOwnDomainOnly(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := newTestStore(t)

	businessList, err := keys.Businesses.List(keys.Filters{"status": "approved"})
	require.NoError(t, err)
	seedFresh(t, store, businessList, `[{"id":"b1"}]`)
	seedFresh(t, store, keys.Users.Detail("u1"), `{"id":"u1"}`)

	var handler func(models.ChangeEvent)
	feed := mock.NewMockChangeFeed(ctrl)
	closer := mock.NewMockFeedCloser(ctrl)
	feed.EXPECT().
		Open(gomock.Any(), "public", "businesses", gomock.Any()).
		DoAndReturn(func(_ context.Context, _, _ string, h func(models.ChangeEvent)) (interfaces.FeedCloser, error) {
			handler = h
			return closer, nil
		})

	bridge := NewBridge(feed, store, 0, zaptest.NewLogger(t))
	handle, err := bridge.Subscribe(context.Background(), Subscription{Table: "businesses"})
	require.NoError(t, err)
	assert.True(t, handle.IsActive())

	before, _ := store.Get(businessList.String())
	handler(models.ChangeEvent{
		Table: "businesses",
		Event: models.FeedInsert,
		RowID: "b9",
		New:   json.RawMessage(`{"id":"b9","status":"approved"}`),
	})

	assert.False(t, freshness(t, store, businessList), "business lists go stale")
	assert.True(t, freshness(t, store, keys.Users.Detail("u1")), "other domains untouched")

	// invalidation-only: the cached payload is never rewritten from the feed
	after, ok := store.Get(businessList.String())
	require.True(t, ok)
	assert.Equal(t, before.Value, after.Value)
}

func TestDuplicateSubscriptionSharesChannel(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := newTestStore(t)

	feed := mock.NewMockChangeFeed(ctrl)
	closer := mock.NewMockFeedCloser(ctrl)
	feed.EXPECT().
		Open(gomock.Any(), "public", "bookings", gomock.Any()).
		Return(closer, nil).
		Times(1)
	closer.EXPECT().Close().Return(nil).Times(1)

	bridge := NewBridge(feed, store, 0, zaptest.NewLogger(t))
	sub := Subscription{Table: "bookings", Event: models.FeedInsert, Filter: "business_id=b1"}

	first, err := bridge.Subscribe(context.Background(), sub)
	require.NoError(t, err)
	second, err := bridge.Subscribe(context.Background(), sub)
	require.NoError(t, err)

	// the channel survives until the last handle lets go
	first.Teardown()
	assert.True(t, second.IsActive())
	second.Teardown()
	assert.False(t, second.IsActive())

	// teardown is idempotent, even across both handles
	first.Teardown()
	second.Teardown()
}

func TestDifferentFiltersGetSeparateChannels(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := newTestStore(t)

	feed := mock.NewMockChangeFeed(ctrl)
	feed.EXPECT().
		Open(gomock.Any(), "public", "bookings", gomock.Any()).
		Return(mock.NewMockFeedCloser(ctrl), nil).
		Times(2)

	bridge := NewBridge(feed, store, 0, zaptest.NewLogger(t))
	_, err := bridge.Subscribe(context.Background(), Subscription{Table: "bookings", Filter: "business_id=b1"})
	require.NoError(t, err)
	_, err = bridge.Subscribe(context.Background(), Subscription{Table: "bookings", Filter: "business_id=b2"})
	require.NoError(t, err)
}

func TestFilterMismatchDoesNotInvalidate(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := newTestStore(t)

	bookingList, err := keys.Bookings.List(keys.Filters{"business_id": "b1"})
	require.NoError(t, err)
	seedFresh(t, store, bookingList, `[{"id":"k1"}]`)

	var handler func(models.ChangeEvent)
	feed := mock.NewMockChangeFeed(ctrl)
	feed.EXPECT().
		Open(gomock.Any(), "public", "bookings", gomock.Any()).
		DoAndReturn(func(_ context.Context, _, _ string, h func(models.ChangeEvent)) (interfaces.FeedCloser, error) {
			handler = h
			return mock.NewMockFeedCloser(ctrl), nil
		})

	bridge := NewBridge(feed, store, 0, zaptest.NewLogger(t))
	_, err = bridge.Subscribe(context.Background(), Subscription{
		Table:  "bookings",
		Filter: "business_id=b1",
	})
	require.NoError(t, err)

	handler(models.ChangeEvent{
		Table: "bookings",
		Event: models.FeedInsert,
		RowID: "k2",
		New:   json.RawMessage(`{"id":"k2","business_id":"b7"}`),
	})
	assert.True(t, freshness(t, store, bookingList), "a row for another business is ignored")

	handler(models.ChangeEvent{
		Table: "bookings",
		Event: models.FeedInsert,
		RowID: "k3",
		New:   json.RawMessage(`{"id":"k3","business_id":"b1"}`),
	})
	assert.False(t, freshness(t, store, bookingList))
}

func TestSubscribeRejectsUnknownDomain(t *testing.T) {
	ctrl := gomock.NewController(t)
	bridge := NewBridge(mock.NewMockChangeFeed(ctrl), newTestStore(t), 0, zaptest.NewLogger(t))

	_, err := bridge.Subscribe(context.Background(), Subscription{Table: "giftshops"})
	require.Error(t, err)

	_, err = bridge.Subscribe(context.Background(), Subscription{Table: "bookings", Event: "UPSERT"})
	require.Error(t, err)
}

func TestSubscribeFailureLeavesNoRegistration(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := newTestStore(t)

	feed := mock.NewMockChangeFeed(ctrl)
	gomock.InOrder(
		feed.EXPECT().
			Open(gomock.Any(), "public", "events", gomock.Any()).
			Return(nil, assert.AnError),
		feed.EXPECT().
			Open(gomock.Any(), "public", "events", gomock.Any()).
			Return(mock.NewMockFeedCloser(ctrl), nil),
	)

	bridge := NewBridge(feed, store, 0, zaptest.NewLogger(t))
	_, err := bridge.Subscribe(context.Background(), Subscription{Table: "events"})
	require.Error(t, err)

	// a failed open does not poison the signature; the retry opens fresh
	handle, err := bridge.Subscribe(context.Background(), Subscription{Table: "events"})
	require.NoError(t, err)
	assert.True(t, handle.IsActive())
}

func TestReconnectReopensAndInvalidates(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := newTestStore(t)

	eventList, err := keys.Events.List(keys.Filters{})
	require.NoError(t, err)
	seedFresh(t, store, eventList, `[{"id":"e1"}]`)

	feed := mock.NewMockChangeFeed(ctrl)
	staleCloser := mock.NewMockFeedCloser(ctrl)
	staleCloser.EXPECT().Close().Return(nil)
	gomock.InOrder(
		feed.EXPECT().
			Open(gomock.Any(), "public", "events", gomock.Any()).
			Return(staleCloser, nil),
		feed.EXPECT().
			Open(gomock.Any(), "public", "events", gomock.Any()).
			Return(mock.NewMockFeedCloser(ctrl), nil),
	)

	bridge := NewBridge(feed, store, time.Millisecond, zaptest.NewLogger(t))
	handle, err := bridge.Subscribe(context.Background(), Subscription{Table: "events"})
	require.NoError(t, err)

	bridge.Reconnect(context.Background())

	assert.True(t, handle.IsActive())
	assert.False(t, freshness(t, store, eventList), "missed changes force a refetch")
}

func TestHandleReconnectReopensOwnChannelOnly(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := newTestStore(t)

	bookingList, err := keys.Bookings.List(keys.Filters{})
	require.NoError(t, err)
	seedFresh(t, store, bookingList, `[{"id":"k1"}]`)
	eventList, err := keys.Events.List(keys.Filters{})
	require.NoError(t, err)
	seedFresh(t, store, eventList, `[{"id":"e1"}]`)

	feed := mock.NewMockChangeFeed(ctrl)
	staleCloser := mock.NewMockFeedCloser(ctrl)
	staleCloser.EXPECT().Close().Return(nil)
	freshCloser := mock.NewMockFeedCloser(ctrl)
	freshCloser.EXPECT().Close().Return(nil)
	gomock.InOrder(
		feed.EXPECT().
			Open(gomock.Any(), "public", "bookings", gomock.Any()).
			Return(staleCloser, nil),
		feed.EXPECT().
			Open(gomock.Any(), "public", "events", gomock.Any()).
			Return(mock.NewMockFeedCloser(ctrl), nil),
		feed.EXPECT().
			Open(gomock.Any(), "public", "bookings", gomock.Any()).
			Return(freshCloser, nil),
	)

	bridge := NewBridge(feed, store, 0, zaptest.NewLogger(t))
	bookings, err := bridge.Subscribe(context.Background(), Subscription{Table: "bookings"})
	require.NoError(t, err)
	_, err = bridge.Subscribe(context.Background(), Subscription{Table: "events"})
	require.NoError(t, err)

	require.NoError(t, bookings.Reconnect(context.Background()))

	assert.True(t, bookings.IsActive())
	assert.False(t, freshness(t, store, bookingList), "own domain goes stale")
	assert.True(t, freshness(t, store, eventList), "other registrations untouched")

	bookings.Teardown()
	assert.Error(t, bookings.Reconnect(context.Background()), "torn-down handle cannot reopen")
}

func TestExtraKeysAndObserverFire(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := newTestStore(t)

	dashboard := keys.Analytics.Detail("bookings-summary")
	seedFresh(t, store, dashboard, `{"total":12}`)
	seedFresh(t, store, keys.Bookings.Detail("k1"), `{"id":"k1","status":"pending"}`)

	var handler func(models.ChangeEvent)
	feed := mock.NewMockChangeFeed(ctrl)
	closer := mock.NewMockFeedCloser(ctrl)
	feed.EXPECT().
		Open(gomock.Any(), "public", "bookings", gomock.Any()).
		DoAndReturn(func(_ context.Context, _, _ string, h func(models.ChangeEvent)) (interfaces.FeedCloser, error) {
			handler = h
			return closer, nil
		})

	var seen []models.ChangeEvent
	bridge := NewBridge(feed, store, 0, zaptest.NewLogger(t))
	_, err := bridge.Subscribe(context.Background(), Subscription{
		Table:     "bookings",
		ExtraKeys: []keys.Key{dashboard},
		OnData:    func(evt models.ChangeEvent) { seen = append(seen, evt) },
	})
	require.NoError(t, err)

	handler(models.ChangeEvent{
		Table: "bookings",
		Event: models.FeedUpdate,
		RowID: "k1",
		New:   json.RawMessage(`{"id":"k1","status":"confirmed"}`),
	})

	assert.False(t, freshness(t, store, keys.Bookings.Detail("k1")))
	assert.False(t, freshness(t, store, dashboard), "extra keys go stale too")
	require.Len(t, seen, 1)
	assert.Equal(t, "k1", seen[0].RowID)
}
