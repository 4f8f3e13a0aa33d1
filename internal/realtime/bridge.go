// Package realtime bridges a backend change feed onto the entry store.
// The bridge only invalidates: feed payloads are treated as hints that
// cached data is out of date, never as data to cache, so a malformed or
// out-of-order notification can cost at most one extra refetch.
package realtime

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"tourism-cache/internal/interfaces"
	"tourism-cache/internal/keys"
	"tourism-cache/internal/metrics"
	"tourism-cache/internal/models"
	"tourism-cache/internal/relate"
)

const defaultSchema = "public"

// Subscription describes one table's worth of change interest.
type Subscription struct {
	Schema string
	Table  string
	// Event narrows to one change type; empty means all.
	Event models.FeedEvent
	// Filter has the form "column=value" and is matched against the
	// changed row.
	Filter string
	// Domain names the cache namespace to invalidate. Empty defaults to
	// the table name when it is a known domain.
	Domain keys.Domain
	// ExtraKeys are invalidated on every matching event in addition to
	// the relationship fan-out for the changed row.
	ExtraKeys []keys.Key
	// OnData, when set, observes matching events after invalidation. The
	// channel is shared per signature, so only the first subscriber's
	// callback is registered; later joiners piggyback on the refcount.
	OnData func(models.ChangeEvent)
}

func (s *Subscription) normalize() error {
	if s.Table == "" {
		return fmt.Errorf("subscription needs a table")
	}
	if s.Schema == "" {
		s.Schema = defaultSchema
	}
	if s.Event == "" {
		s.Event = models.FeedAll
	}
	if _, err := models.ParseFeedEvent(string(s.Event)); err != nil {
		return err
	}
	if s.Domain == "" {
		s.Domain = keys.Domain(s.Table)
	}
	return s.Domain.Validate()
}

// signature identifies a registration: subscriptions with the same table,
// schema, event and filter share one feed channel.
func (s Subscription) signature() string {
	return strings.Join([]string{s.Schema, s.Table, string(s.Event), s.Filter}, "|")
}

type state int32

const (
	stateIdle state = iota
	stateSubscribing
	stateActive
)

type registration struct {
	sub     Subscription
	channel string
	refs    int
	state   state
	closer  interfaces.FeedCloser
}

// Bridge owns the refcounted registrations over a ChangeFeed and turns
// matching events into store invalidations.
type Bridge struct {
	feed   interfaces.ChangeFeed
	store  interfaces.EntryStore
	logger *zap.Logger

	// graceDelay spaces out channel re-opens after a reconnect so a
	// flapping feed cannot stampede the backend.
	graceDelay time.Duration

	mu   sync.Mutex
	regs map[string]*registration
}

func NewBridge(feed interfaces.ChangeFeed, store interfaces.EntryStore, graceDelay time.Duration, logger *zap.Logger) *Bridge {
	return &Bridge{
		feed:       feed,
		store:      store,
		logger:     logger,
		graceDelay: graceDelay,
		regs:       make(map[string]*registration),
	}
}

// Handle is one subscriber's grip on a shared registration. Teardown is
// idempotent; the underlying channel closes when the last handle lets go.
type Handle struct {
	bridge *Bridge
	sig    string
	once   sync.Once
}

// Subscribe registers interest in a table's changes. A second subscription
// with the same table, schema, event and filter joins the existing channel
// instead of opening a new one.
func (b *Bridge) Subscribe(ctx context.Context, sub Subscription) (*Handle, error) {
	if err := sub.normalize(); err != nil {
		return nil, err
	}
	sig := sub.signature()

	b.mu.Lock()
	defer b.mu.Unlock()

	if reg, ok := b.regs[sig]; ok {
		reg.refs++
		return &Handle{bridge: b, sig: sig}, nil
	}

	reg := &registration{
		sub:     sub,
		channel: channelName(sub.Table),
		refs:    1,
		state:   stateSubscribing,
	}
	b.regs[sig] = reg

	closer, err := b.feed.Open(ctx, sub.Schema, sub.Table, b.dispatcher(reg))
	if err != nil {
		delete(b.regs, sig)
		return nil, fmt.Errorf("open change feed for %s.%s: %w", sub.Schema, sub.Table, err)
	}
	reg.closer = closer
	reg.state = stateActive
	metrics.FeedSubscriptions.Inc()

	b.logger.Info("change feed registration opened",
		zap.String("channel", reg.channel),
		zap.String("table", sub.Table),
		zap.String("event", string(sub.Event)),
		zap.String("filter", sub.Filter))

	return &Handle{bridge: b, sig: sig}, nil
}

// dispatcher builds the per-registration event handler. Filtering happens
// here so one shared channel can serve exactly the rows it was asked for.
func (b *Bridge) dispatcher(reg *registration) func(models.ChangeEvent) {
	return func(evt models.ChangeEvent) {
		if !evt.Matches(reg.sub.Event, reg.sub.Filter) {
			return
		}
		metrics.RecordFeedEvent(evt.Table, string(evt.Event))
		b.invalidateFor(reg.sub.Domain, evt)
		for _, k := range reg.sub.ExtraKeys {
			b.store.Invalidate(k.String())
		}
		if reg.sub.OnData != nil {
			reg.sub.OnData(evt)
		}
	}
}

// invalidateFor marks the affected keys stale. Without a row id the whole
// domain goes stale, which is safe and merely refetches more.
func (b *Bridge) invalidateFor(domain keys.Domain, evt models.ChangeEvent) {
	if evt.RowID == "" {
		b.store.Invalidate(domain.All().String())
	} else {
		for _, k := range relate.Related(domain, evt.RowID) {
			b.store.Invalidate(k.String())
		}
	}
	metrics.RecordInvalidation(string(domain), "realtime")
	b.logger.Debug("change feed invalidation",
		zap.String("domain", string(domain)),
		zap.String("event", string(evt.Event)),
		zap.String("row_id", evt.RowID))
}

// IsActive reports whether the handle's registration still has an open
// channel.
func (h *Handle) IsActive() bool {
	h.bridge.mu.Lock()
	defer h.bridge.mu.Unlock()
	reg, ok := h.bridge.regs[h.sig]
	return ok && reg.state == stateActive
}

// Teardown drops this handle's reference. The channel closes only when no
// handles remain; calling Teardown twice is a no-op.
func (h *Handle) Teardown() {
	h.once.Do(func() {
		h.bridge.release(h.sig)
	})
}

func (b *Bridge) release(sig string) {
	b.mu.Lock()
	reg, ok := b.regs[sig]
	if !ok {
		b.mu.Unlock()
		return
	}
	reg.refs--
	if reg.refs > 0 {
		b.mu.Unlock()
		return
	}
	delete(b.regs, sig)
	reg.state = stateIdle
	closer := reg.closer
	b.mu.Unlock()

	if closer != nil {
		if err := closer.Close(); err != nil {
			b.logger.Warn("change feed close failed", zap.String("channel", reg.channel), zap.Error(err))
		}
	}
	metrics.FeedSubscriptions.Dec()
	b.logger.Info("change feed registration closed", zap.String("channel", reg.channel))
}

// Reconnect re-opens every registration after a feed outage, spacing the
// opens by the grace delay, and marks each registration's domain stale so
// changes missed during the outage are refetched.
func (b *Bridge) Reconnect(ctx context.Context) {
	b.mu.Lock()
	regs := make([]*registration, 0, len(b.regs))
	for _, reg := range b.regs {
		regs = append(regs, reg)
	}
	b.mu.Unlock()

	for _, reg := range regs {
		select {
		case <-time.After(b.graceDelay):
		case <-ctx.Done():
			return
		}
		_ = b.reopen(ctx, reg)
	}
}

// Reconnect re-opens just this handle's channel after it dropped, leaving
// the rest of the bridge alone, and marks the registration's domain stale
// so changes missed while it was down are refetched.
func (h *Handle) Reconnect(ctx context.Context) error {
	h.bridge.mu.Lock()
	reg, ok := h.bridge.regs[h.sig]
	h.bridge.mu.Unlock()
	if !ok {
		return fmt.Errorf("handle already torn down")
	}
	return h.bridge.reopen(ctx, reg)
}

func (b *Bridge) reopen(ctx context.Context, reg *registration) error {
	b.mu.Lock()
	reg.state = stateSubscribing
	old := reg.closer
	b.mu.Unlock()
	if old != nil {
		_ = old.Close()
	}

	closer, err := b.feed.Open(ctx, reg.sub.Schema, reg.sub.Table, b.dispatcher(reg))
	if err != nil {
		b.logger.Error("change feed reopen failed",
			zap.String("channel", reg.channel), zap.Error(err))
		return err
	}

	b.mu.Lock()
	reg.closer = closer
	reg.state = stateActive
	reg.channel = channelName(reg.sub.Table)
	b.mu.Unlock()

	// anything could have changed while the feed was down
	b.store.Invalidate(reg.sub.Domain.All().String())
	metrics.RecordInvalidation(string(reg.sub.Domain), "reconnect")
	return nil
}

// Close tears down every registration regardless of refcounts.
func (b *Bridge) Close() {
	b.mu.Lock()
	regs := b.regs
	b.regs = make(map[string]*registration)
	b.mu.Unlock()

	for _, reg := range regs {
		if reg.closer != nil {
			_ = reg.closer.Close()
		}
		reg.state = stateIdle
		metrics.FeedSubscriptions.Dec()
	}
}

// channelName builds a collision-free channel identity for one
// registration.
func channelName(table string) string {
	return "tourism_cache_" + table + "_" + uuid.NewString()[:8]
}
