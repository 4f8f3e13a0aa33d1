package client

import (
	"time"

	"go.uber.org/zap"

	"tourism-cache/internal/keys"
	"tourism-cache/internal/metrics"
	"tourism-cache/internal/models"
)

// PatchToken captures the state of a set of entries before an optimistic
// patch so the patch can later be committed or rolled back. Tokens are
// ordered by a monotonic sequence so a rollback that arrives after a newer
// mutation has settled cannot clobber the newer state.
type PatchToken struct {
	seq     uint64
	begunAt time.Time
	keys    []string
	// snapshots by key; nil means the entry was absent
	snaps map[string]*models.Entry
}

// BeginOptimistic snapshots the given keys and returns a token for the
// settle phase. The caller applies its patch after this call.
func (c *Client) BeginOptimistic(ks []keys.Key) *PatchToken {
	token := &PatchToken{
		seq:     c.seq.Add(1),
		begunAt: c.now(),
		snaps:   make(map[string]*models.Entry, len(ks)),
	}
	for _, k := range ks {
		s := k.String()
		token.keys = append(token.keys, s)
		if entry, ok := c.store.Get(s); ok {
			token.snaps[s] = entry
		} else {
			token.snaps[s] = nil
		}
	}
	return token
}

// Commit replaces the optimistic view with server-confirmed entries and
// stamps them with the token's sequence. An entry already owned by a newer
// mutation is left alone.
func (c *Client) Commit(token *PatchToken, entries []*models.Entry) {
	for _, entry := range entries {
		if cur, ok := c.store.Get(entry.Key); ok && cur.CommitSeq > token.seq {
			continue
		}
		entry.CommitSeq = token.seq
		entry.Optimistic = false
		entry.TempID = ""
		c.store.Set(entry)
	}
	metrics.RecordMutationOutcome("committed")
}

// Rollback restores the snapshots taken at BeginOptimistic. Restoration is
// skipped per key when a newer mutation or a fresher fetch has since taken
// over the entry, so a slow failure cannot resurrect stale data. Rollback
// is idempotent.
func (c *Client) Rollback(token *PatchToken) {
	skipped := 0
	for _, keyStr := range token.keys {
		if cur, ok := c.store.Get(keyStr); ok {
			if cur.CommitSeq > token.seq || cur.FetchedAt.After(token.begunAt) {
				skipped++
				continue
			}
		}
		snap := token.snaps[keyStr]
		if snap == nil {
			c.store.Delete(keyStr)
		} else {
			c.store.Set(snap)
		}
	}
	if skipped > 0 {
		c.logger.Debug("rollback skipped superseded entries", zap.Int("skipped", skipped))
		metrics.RecordMutationOutcome("rollback_superseded")
	}
	metrics.RecordMutationOutcome("rolled_back")
}

// applyOptimistic writes a patched entry, keeping the snapshot's fetch
// provenance so freshness decisions stay truthful about when data last
// came from the server.
func (c *Client) applyOptimistic(keyStr string, snap *models.Entry, value []byte, tempID string) {
	if snap == nil {
		return
	}
	entry := snap.Clone()
	entry.Value = value
	entry.Optimistic = true
	if tempID != "" {
		entry.TempID = tempID
	}
	c.store.Set(entry)
}
