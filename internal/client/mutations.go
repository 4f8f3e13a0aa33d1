package client

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"tourism-cache/internal/errclass"
	"tourism-cache/internal/keys"
	"tourism-cache/internal/metrics"
	"tourism-cache/internal/models"
	"tourism-cache/internal/policy"
	"tourism-cache/internal/relate"
)

// tempIDPrefix marks rows that exist only in the optimistic view; real ids
// never carry it, so the reconcile step can find and replace them.
const tempIDPrefix = "optimistic-"

// MutateOptions selects which cached list entries an optimistic mutation
// should patch while the backend call is in flight.
type MutateOptions struct {
	ListKeys []keys.Key
}

// CreateOptimistic inserts a row, showing a synthesized copy with a
// temporary id in the given cached lists until the server confirms.
func (c *Client) CreateOptimistic(ctx context.Context, domain keys.Domain, payload json.RawMessage, opts MutateOptions) (json.RawMessage, error) {
	class, pol, err := c.resolveMutation(domain)
	if err != nil {
		return nil, err
	}

	token := c.BeginOptimistic(opts.ListKeys)
	tempID := tempIDPrefix + uuid.NewString()
	synth, err := mergeJSON(payload, mustJSON(map[string]any{
		"id":         tempID,
		"created_at": c.now().UTC().Format(time.RFC3339),
	}))
	if err != nil {
		return nil, errclass.New(errclass.Validation, "create", err)
	}

	for keyStr, snap := range token.snaps {
		if snap == nil {
			continue
		}
		patched, err := prependRow(snap.Value, synth)
		if err != nil {
			c.logger.Warn("skipping unpatchable list entry", zap.String("key", keyStr), zap.Error(err))
			continue
		}
		c.applyOptimistic(keyStr, snap, patched, tempID)
	}

	var row json.RawMessage
	err = c.withRetry(ctx, class, pol.Retries, func(ctx context.Context) error {
		var opErr error
		row, opErr = c.backend.Insert(ctx, string(domain), payload)
		return opErr
	})
	if err != nil {
		c.Rollback(token)
		return nil, err
	}

	now := c.now()
	entries := make([]*models.Entry, 0, len(token.keys))
	for _, keyStr := range token.keys {
		cur, ok := c.store.Get(keyStr)
		if !ok {
			continue
		}
		confirmed, err := replaceRowByID(cur.Value, tempID, row)
		if err != nil {
			continue
		}
		entry := cur.Clone()
		entry.Value = confirmed
		entry.FetchedAt = now
		entry.StaleAt = now.Add(pol.Freshness)
		if entry.Total != nil {
			total := *entry.Total + 1
			entry.Total = &total
		}
		entries = append(entries, entry)
	}
	c.Commit(token, entries)
	c.invalidateRelated(domain, rowID(row))
	return row, nil
}

// UpdateOptimistic patches a row, merging the patch into the cached detail
// entry and the given lists until the server confirms.
func (c *Client) UpdateOptimistic(ctx context.Context, domain keys.Domain, id string, patch json.RawMessage, opts MutateOptions) (json.RawMessage, error) {
	class, pol, err := c.resolveMutation(domain)
	if err != nil {
		return nil, err
	}

	detailKey := domain.Detail(id).String()
	all := append([]keys.Key{domain.Detail(id)}, opts.ListKeys...)
	token := c.BeginOptimistic(all)

	for keyStr, snap := range token.snaps {
		if snap == nil {
			continue
		}
		var patched json.RawMessage
		var patchErr error
		if keyStr == detailKey {
			patched, patchErr = mergeJSON(snap.Value, patch)
		} else {
			patched, patchErr = patchRowByID(snap.Value, id, patch)
		}
		if patchErr != nil {
			c.logger.Warn("skipping unpatchable entry", zap.String("key", keyStr), zap.Error(patchErr))
			continue
		}
		c.applyOptimistic(keyStr, snap, patched, "")
	}

	var row json.RawMessage
	err = c.withRetry(ctx, class, pol.Retries, func(ctx context.Context) error {
		var opErr error
		row, opErr = c.backend.Update(ctx, string(domain), id, patch)
		return opErr
	})
	if err != nil {
		c.Rollback(token)
		return nil, err
	}

	now := c.now()
	entries := make([]*models.Entry, 0, len(token.keys))
	for _, keyStr := range token.keys {
		cur, ok := c.store.Get(keyStr)
		if !ok {
			continue
		}
		entry := cur.Clone()
		if keyStr == detailKey {
			entry.Value = row
		} else {
			confirmed, err := replaceRowByID(cur.Value, id, row)
			if err != nil {
				continue
			}
			entry.Value = confirmed
		}
		entry.FetchedAt = now
		entry.StaleAt = now.Add(pol.Freshness)
		entries = append(entries, entry)
	}
	c.Commit(token, entries)
	c.invalidateRelated(domain, id)
	return row, nil
}

// DeleteOptimistic removes a row, hiding it from the cached detail entry
// and the given lists until the server confirms.
func (c *Client) DeleteOptimistic(ctx context.Context, domain keys.Domain, id string, opts MutateOptions) error {
	class, pol, err := c.resolveMutation(domain)
	if err != nil {
		return err
	}

	detailKey := domain.Detail(id).String()
	all := append([]keys.Key{domain.Detail(id)}, opts.ListKeys...)
	token := c.BeginOptimistic(all)

	for keyStr, snap := range token.snaps {
		if snap == nil {
			continue
		}
		if keyStr == detailKey {
			c.store.Delete(keyStr)
			continue
		}
		patched, removed, patchErr := removeRowByID(snap.Value, id)
		if patchErr != nil || removed == 0 {
			continue
		}
		entry := snap.Clone()
		entry.Value = patched
		entry.Optimistic = true
		if entry.Total != nil {
			total := *entry.Total - removed
			entry.Total = &total
		}
		c.store.Set(entry)
	}

	err = c.withRetry(ctx, class, pol.Retries, func(ctx context.Context) error {
		return c.backend.Delete(ctx, string(domain), id)
	})
	if err != nil {
		c.Rollback(token)
		return err
	}

	entries := make([]*models.Entry, 0, len(token.keys))
	for _, keyStr := range token.keys {
		if keyStr == detailKey {
			continue
		}
		if cur, ok := c.store.Get(keyStr); ok {
			entries = append(entries, cur.Clone())
		}
	}
	c.Commit(token, entries)
	c.invalidateRelated(domain, id)
	return nil
}

// Create inserts a row without an optimistic view; related cache entries
// go stale and refetch on next read.
func (c *Client) Create(ctx context.Context, domain keys.Domain, payload json.RawMessage) (json.RawMessage, error) {
	class, pol, err := c.resolveMutation(domain)
	if err != nil {
		return nil, err
	}
	var row json.RawMessage
	err = c.withRetry(ctx, class, pol.Retries, func(ctx context.Context) error {
		var opErr error
		row, opErr = c.backend.Insert(ctx, string(domain), payload)
		return opErr
	})
	if err != nil {
		return nil, err
	}
	c.invalidateRelated(domain, rowID(row))
	return row, nil
}

// Update patches a row without an optimistic view.
func (c *Client) Update(ctx context.Context, domain keys.Domain, id string, patch json.RawMessage) (json.RawMessage, error) {
	class, pol, err := c.resolveMutation(domain)
	if err != nil {
		return nil, err
	}
	var row json.RawMessage
	err = c.withRetry(ctx, class, pol.Retries, func(ctx context.Context) error {
		var opErr error
		row, opErr = c.backend.Update(ctx, string(domain), id, patch)
		return opErr
	})
	if err != nil {
		return nil, err
	}
	c.invalidateRelated(domain, id)
	return row, nil
}

// Delete removes a row without an optimistic view.
func (c *Client) Delete(ctx context.Context, domain keys.Domain, id string) error {
	class, pol, err := c.resolveMutation(domain)
	if err != nil {
		return err
	}
	err = c.withRetry(ctx, class, pol.Retries, func(ctx context.Context) error {
		return c.backend.Delete(ctx, string(domain), id)
	})
	if err != nil {
		return err
	}
	c.invalidateRelated(domain, id)
	c.store.Remove(domain.Detail(id).String())
	return nil
}

func (c *Client) resolveMutation(domain keys.Domain) (class policy.Class, pol policy.Policy, err error) {
	if err = domain.Validate(); err != nil {
		return "", policy.Policy{}, errclass.New(errclass.Validation, "mutate", err)
	}
	return c.resolvePolicy(domain, false)
}

// invalidateRelated marks every key in the entity's fan-out stale. A
// category change additionally hits the business lists scoped to it.
func (c *Client) invalidateRelated(domain keys.Domain, id string) {
	for _, k := range relate.Related(domain, id) {
		c.store.Invalidate(k.String())
	}
	if domain == keys.Categories {
		for _, stored := range c.store.Keys(keys.Businesses.Lists().String()) {
			if relate.CategoryScoped(stored, id) {
				c.store.Invalidate(stored)
			}
		}
	}
	metrics.RecordInvalidation(string(domain), "mutation")
}

func mustJSON(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}
