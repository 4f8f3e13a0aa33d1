// Package manage holds the operator-facing cache utilities: bulk
// invalidation, prefetch warming, and the diagnostics that make a cache
// debuggable in production.
package manage

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"tourism-cache/internal/client"
	"tourism-cache/internal/interfaces"
	"tourism-cache/internal/keys"
	"tourism-cache/internal/metrics"
	"tourism-cache/internal/relate"
)

// Querier is the read side the prefetcher warms through. *client.Client
// satisfies it.
type Querier interface {
	Query(ctx context.Context, req client.QueryRequest) (*client.QueryResult, error)
}

var _ Querier = (*client.Client)(nil)

type Manager struct {
	store  interfaces.EntryStore
	logger *zap.Logger
	now    func() time.Time
}

func New(store interfaces.EntryStore, logger *zap.Logger) *Manager {
	return &Manager{store: store, logger: logger, now: time.Now}
}

// InvalidateDomain marks every entry under a domain stale.
func (m *Manager) InvalidateDomain(d keys.Domain) (int, error) {
	if err := d.Validate(); err != nil {
		return 0, err
	}
	n := m.store.Invalidate(d.All().String())
	metrics.RecordInvalidation(string(d), "manual")
	m.logger.Info("domain invalidated", zap.String("domain", string(d)), zap.Int("entries", n))
	return n, nil
}

// InvalidateLists marks only a domain's list entries stale, leaving warm
// detail entries alone.
func (m *Manager) InvalidateLists(d keys.Domain) (int, error) {
	if err := d.Validate(); err != nil {
		return 0, err
	}
	n := m.store.Invalidate(d.Lists().String())
	metrics.RecordInvalidation(string(d), "manual")
	return n, nil
}

// InvalidateRelated applies the relationship fan-out for one entity, the
// same rules mutations use.
func (m *Manager) InvalidateRelated(d keys.Domain, id string) (int, error) {
	if err := d.Validate(); err != nil {
		return 0, err
	}
	// Fan-out prefixes overlap: a detail prefix covers the entity's
	// relation entries that another prefix names outright. Collect the
	// stored keys first so each entry counts once.
	touched := make(map[string]struct{})
	for _, k := range relate.Related(d, id) {
		for _, stored := range m.store.Keys(k.String()) {
			touched[stored] = struct{}{}
		}
	}
	if d == keys.Categories {
		for _, stored := range m.store.Keys(keys.Businesses.Lists().String()) {
			if relate.CategoryScoped(stored, id) {
				touched[stored] = struct{}{}
			}
		}
	}
	for stored := range touched {
		m.store.Invalidate(stored)
	}
	metrics.RecordInvalidation(string(d), "manual")
	return len(touched), nil
}

// RemoveDomain drops a domain's entries entirely instead of marking them
// stale.
func (m *Manager) RemoveDomain(d keys.Domain) (int, error) {
	if err := d.Validate(); err != nil {
		return 0, err
	}
	return m.store.Remove(d.All().String()), nil
}

// ClearAll empties the store. Session teardown is the only expected
// caller.
func (m *Manager) ClearAll() {
	m.store.Clear()
	m.logger.Info("cache cleared")
}

// Prefetch warms the cache with the given queries, a few in flight at a
// time. The first failure cancels the rest.
func (m *Manager) Prefetch(ctx context.Context, q Querier, reqs []client.QueryRequest) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, req := range reqs {
		req := req
		g.Go(func() error {
			_, err := q.Query(ctx, req)
			return err
		})
	}
	return g.Wait()
}

// StaleQueries lists the keys whose entries are past their freshness
// window, sorted for stable output.
func (m *Manager) StaleQueries() []string {
	now := m.now()
	var stale []string
	for _, key := range m.store.Keys("") {
		if entry, ok := m.store.Get(key); ok && !entry.IsFresh(now) {
			stale = append(stale, key)
		}
	}
	sort.Strings(stale)
	return stale
}

// DuplicatePatterns groups list keys that differ only in pagination.
// Several pages of one query are expected; several near-identical filter
// shapes usually mean callers are building keys inconsistently.
func (m *Manager) DuplicatePatterns() map[string][]string {
	groups := make(map[string][]string)
	for _, key := range m.store.Keys("") {
		base, ok := stripPagination(key)
		if !ok {
			continue
		}
		groups[base] = append(groups[base], key)
	}
	for base, members := range groups {
		if len(members) < 2 {
			delete(groups, base)
			continue
		}
		sort.Strings(members)
		groups[base] = members
	}
	return groups
}

// MemoryByQuery reports resident payload bytes per domain.
func (m *Manager) MemoryByQuery() map[string]int64 {
	usage := make(map[string]int64)
	for _, key := range m.store.Keys("") {
		domain := key
		if i := strings.IndexByte(key, ':'); i > 0 {
			domain = key[:i]
		}
		usage[domain] += int64(m.store.ValueSize(key))
	}
	return usage
}

// Stats is a point-in-time snapshot for the admin surface.
type Stats struct {
	Entries      int              `json:"entries"`
	StaleEntries int              `json:"stale_entries"`
	BytesByDomain map[string]int64 `json:"bytes_by_domain"`
}

func (m *Manager) Snapshot() Stats {
	return Stats{
		Entries:       m.store.Len(),
		StaleEntries:  len(m.StaleQueries()),
		BytesByDomain: m.MemoryByQuery(),
	}
}

// stripPagination rebuilds a list key with page, per_page and cursor
// removed from its filter segment. Non-list keys report false.
func stripPagination(key string) (string, bool) {
	parts := strings.SplitN(key, ":", 3)
	if len(parts) != 3 || parts[1] != "list" {
		return "", false
	}
	var filters map[string]any
	if err := json.Unmarshal([]byte(parts[2]), &filters); err != nil {
		return "", false
	}
	delete(filters, "page")
	delete(filters, "per_page")
	delete(filters, "cursor")
	canonical, err := keys.Canonicalize(keys.Filters(filters))
	if err != nil {
		return "", false
	}
	return parts[0] + ":" + parts[1] + ":" + canonical, true
}
