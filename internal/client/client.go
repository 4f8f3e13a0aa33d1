package client

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"tourism-cache/internal/errclass"
	"tourism-cache/internal/interfaces"
	"tourism-cache/internal/keys"
	"tourism-cache/internal/metrics"
	"tourism-cache/internal/models"
	"tourism-cache/internal/policy"
)

// Client is the fetch-and-mutate layer: it builds cache keys through the
// factory, applies the domain's policy preset, talks to the backend, and
// keeps the entry store coherent across optimistic mutations.
type Client struct {
	store    interfaces.EntryStore
	backend  interfaces.Backend
	policies *policy.Table
	logger   *zap.Logger

	sf  singleflight.Group
	seq atomic.Uint64

	now       func() time.Time
	retryBase time.Duration
}

// New wires a client over a store and backend.
func New(store interfaces.EntryStore, backend interfaces.Backend, policies *policy.Table, logger *zap.Logger) *Client {
	return &Client{
		store:     store,
		backend:   backend,
		policies:  policies,
		logger:    logger,
		now:       time.Now,
		retryBase: 100 * time.Millisecond,
	}
}

// QueryRequest describes one list read.
type QueryRequest struct {
	Domain  keys.Domain
	Filters keys.Filters

	// Page/PerPage drive offset pagination; Cursor drives infinite
	// scroll. Pagination may equivalently arrive inside Filters under
	// "page", "per_page" and "cursor"; both spellings build the same
	// cache key.
	Page    int
	PerPage int
	Cursor  string

	OrderBy    string
	Descending bool

	// Search selects the search-results volatility class instead of the
	// domain's own class.
	Search bool

	// ForceFresh bypasses the freshness window (focus/reconnect refetch).
	ForceFresh bool
}

// QueryResult is one page of rows plus cache provenance.
type QueryResult struct {
	Data       json.RawMessage
	Count      *int
	HasMore    bool
	NextCursor string
	FromCache  bool
	Stale      bool
	Optimistic bool
}

// DetailResult is one entity plus cache provenance.
type DetailResult struct {
	Data       json.RawMessage
	FromCache  bool
	Stale      bool
	Optimistic bool
}

// Query serves a list read, from cache when fresh, otherwise through a
// deduplicated backend fetch.
func (c *Client) Query(ctx context.Context, req QueryRequest) (*QueryResult, error) {
	merged, err := mergePagination(req)
	if err != nil {
		return nil, errclass.New(errclass.Validation, "query", err)
	}
	key, err := req.Domain.List(merged)
	if err != nil {
		return nil, errclass.New(errclass.Validation, "query", err)
	}

	class, pol, err := c.resolvePolicy(req.Domain, req.Search)
	if err != nil {
		return nil, err
	}
	metrics.RecordCacheRequest(string(class))

	keyStr := key.String()
	if !req.ForceFresh {
		if entry, ok := c.store.Get(keyStr); ok && entry.IsFresh(c.now()) && entry.LastError == "" {
			metrics.RecordCacheHit(string(class))
			return c.listResult(entry, merged, true), nil
		}
	}
	metrics.RecordCacheMiss(string(class))

	v, err, _ := c.sf.Do(keyStr, func() (any, error) {
		return c.fetchList(ctx, req, keyStr, merged, class, pol)
	})
	if err != nil {
		return nil, err
	}
	return v.(*QueryResult), nil
}

// Detail serves one entity by id.
func (c *Client) Detail(ctx context.Context, domain keys.Domain, id string) (*DetailResult, error) {
	if err := domain.Validate(); err != nil {
		return nil, errclass.New(errclass.Validation, "detail", err)
	}
	class, pol, err := c.resolvePolicy(domain, false)
	if err != nil {
		return nil, err
	}
	metrics.RecordCacheRequest(string(class))

	keyStr := domain.Detail(id).String()
	if entry, ok := c.store.Get(keyStr); ok && entry.IsFresh(c.now()) && entry.LastError == "" {
		metrics.RecordCacheHit(string(class))
		return &DetailResult{Data: entry.Value, FromCache: true, Optimistic: entry.Optimistic}, nil
	}
	metrics.RecordCacheMiss(string(class))

	v, err, _ := c.sf.Do(keyStr, func() (any, error) {
		return c.fetchDetail(ctx, domain, id, keyStr, class, pol)
	})
	if err != nil {
		return nil, err
	}
	return v.(*DetailResult), nil
}

func (c *Client) fetchList(ctx context.Context, req QueryRequest, keyStr string, merged keys.Filters, class policy.Class, pol policy.Policy) (*QueryResult, error) {
	fetchSeq := c.seq.Load()
	stop := metrics.TimeFetch(string(class))
	defer stop()

	page, perPage, cursor, backendFilters := splitPagination(merged)

	q := models.SelectQuery{
		Table:      string(req.Domain),
		Filters:    backendFilters,
		OrderBy:    req.OrderBy,
		Descending: req.Descending,
		Limit:      perPage,
		Cursor:     cursor,
		WithCount:  cursor == "",
	}
	if cursor == "" && page > 1 && perPage > 0 {
		q.Offset = (page - 1) * perPage
	}

	var res *models.SelectResult
	err := c.withRetry(ctx, class, pol.Retries, func(ctx context.Context) error {
		var opErr error
		res, opErr = c.backend.Select(ctx, q)
		return opErr
	})
	if err != nil {
		c.recordFailure(keyStr, err)
		return nil, err
	}

	now := c.now()
	entry := &models.Entry{
		Key:        keyStr,
		Value:      res.Rows,
		Total:      res.Count,
		FetchedAt:  now,
		StaleAt:    now.Add(pol.Freshness),
		EvictAfter: pol.Eviction,
	}

	// A mutation that settled while this fetch was in flight owns the
	// entry now; keep its view and just hand back the fetched page.
	if cur, ok := c.store.Get(keyStr); ok {
		if cur.CommitSeq > fetchSeq {
			return c.listResult(entry, merged, false), nil
		}
		entry.CommitSeq = cur.CommitSeq
	}
	c.store.Set(entry)

	return c.listResult(entry, merged, false), nil
}

func (c *Client) fetchDetail(ctx context.Context, domain keys.Domain, id, keyStr string, class policy.Class, pol policy.Policy) (*DetailResult, error) {
	fetchSeq := c.seq.Load()
	stop := metrics.TimeFetch(string(class))
	defer stop()

	q := models.SelectQuery{
		Table:   string(domain),
		Filters: map[string]any{"id": id},
		Limit:   1,
	}

	var res *models.SelectResult
	err := c.withRetry(ctx, class, pol.Retries, func(ctx context.Context) error {
		var opErr error
		res, opErr = c.backend.Select(ctx, q)
		return opErr
	})
	if err != nil {
		c.recordFailure(keyStr, err)
		return nil, err
	}

	rows, err := decodeRows(res.Rows)
	if err != nil {
		return nil, errclass.Classify("detail", err)
	}
	if len(rows) == 0 {
		return nil, errclass.New(errclass.NotFoundOrDenied, "detail",
			fmt.Errorf("%s %q not found", domain, id))
	}

	now := c.now()
	entry := &models.Entry{
		Key:        keyStr,
		Value:      rows[0],
		FetchedAt:  now,
		StaleAt:    now.Add(pol.Freshness),
		EvictAfter: pol.Eviction,
	}
	if cur, ok := c.store.Get(keyStr); ok {
		if cur.CommitSeq > fetchSeq {
			return &DetailResult{Data: entry.Value}, nil
		}
		entry.CommitSeq = cur.CommitSeq
	}
	c.store.Set(entry)

	return &DetailResult{Data: entry.Value}, nil
}

// recordFailure keeps the last error and attempt count on an existing
// entry for diagnostics; it never fabricates an entry for a failed fetch.
func (c *Client) recordFailure(keyStr string, err error) {
	if cur, ok := c.store.Get(keyStr); ok {
		cur.LastError = err.Error()
		cur.RetryCount++
		c.store.Set(cur)
	}
}

func (c *Client) resolvePolicy(domain keys.Domain, search bool) (policy.Class, policy.Policy, error) {
	var class policy.Class
	if search {
		class = policy.ClassSearch
	} else {
		var err error
		class, err = c.policies.ClassForDomain(domain)
		if err != nil {
			return "", policy.Policy{}, err
		}
	}
	pol, err := c.policies.ForClass(class)
	if err != nil {
		return "", policy.Policy{}, err
	}
	return class, pol, nil
}

func (c *Client) listResult(entry *models.Entry, merged keys.Filters, fromCache bool) *QueryResult {
	page, perPage, _, _ := splitPagination(merged)

	rows, err := decodeRows(entry.Value)
	if err != nil {
		rows = nil
	}

	result := &QueryResult{
		Data:       entry.Value,
		Count:      entry.Total,
		FromCache:  fromCache,
		Stale:      !entry.IsFresh(c.now()),
		Optimistic: entry.Optimistic,
	}

	switch {
	case entry.Total != nil && perPage > 0:
		offset := 0
		if page > 1 {
			offset = (page - 1) * perPage
		}
		result.HasMore = offset+len(rows) < *entry.Total
	case perPage > 0:
		// Page-length heuristic when no count is available.
		result.HasMore = len(rows) == perPage
	}

	if result.HasMore && len(rows) > 0 {
		result.NextCursor = rowID(rows[len(rows)-1])
	}
	return result
}

// mergePagination folds explicit pagination fields into the filter map so
// both request spellings produce identical cache keys.
func mergePagination(req QueryRequest) (keys.Filters, error) {
	merged := make(keys.Filters, len(req.Filters)+3)
	for k, v := range req.Filters {
		merged[k] = v
	}
	if req.Page > 0 {
		if _, dup := merged["page"]; dup {
			return nil, fmt.Errorf("page given both explicitly and in filters")
		}
		merged["page"] = req.Page
	}
	if req.PerPage > 0 {
		if _, dup := merged["per_page"]; dup {
			return nil, fmt.Errorf("per_page given both explicitly and in filters")
		}
		merged["per_page"] = req.PerPage
	}
	if req.Cursor != "" {
		if _, dup := merged["cursor"]; dup {
			return nil, fmt.Errorf("cursor given both explicitly and in filters")
		}
		merged["cursor"] = req.Cursor
	}
	return merged, nil
}

// splitPagination pulls pagination back out of the merged filter map,
// leaving only backend filters.
func splitPagination(merged keys.Filters) (page, perPage int, cursor string, backendFilters map[string]any) {
	backendFilters = make(map[string]any, len(merged))
	for k, v := range merged {
		switch k {
		case "page":
			page = asInt(v)
		case "per_page":
			perPage = asInt(v)
		case "cursor":
			cursor, _ = v.(string)
		default:
			backendFilters[k] = v
		}
	}
	return page, perPage, cursor, backendFilters
}

func asInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	}
	return 0
}

func decodeRows(data json.RawMessage) ([]json.RawMessage, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var rows []json.RawMessage
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("malformed cached row set: %w", err)
	}
	return rows, nil
}

func rowID(row json.RawMessage) string {
	var ident struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(row, &ident); err != nil {
		return ""
	}
	return ident.ID
}
