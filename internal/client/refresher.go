package client

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"go.uber.org/zap"

	"tourism-cache/internal/keys"
	"tourism-cache/internal/scheduler"
)

// Refresher is the bounded poll fallback for push-invalidated data: domains
// whose class carries a background-refetch interval get a periodic sweep
// that refetches their cached queries. It covers the gap when the change
// feed is down or disabled; with a healthy feed the sweep mostly finds
// entries already refreshed by invalidation-driven reads.
type Refresher struct {
	client *Client
	logger *zap.Logger

	timeout time.Duration
	sweeps  []*scheduler.Scheduler
}

func NewRefresher(c *Client, logger *zap.Logger) *Refresher {
	return &Refresher{client: c, logger: logger, timeout: 30 * time.Second}
}

// Start launches one sweep per background-refetch interval, covering every
// domain whose class sets one. Call Stop to halt the sweeps.
func (r *Refresher) Start() {
	byInterval := make(map[time.Duration][]keys.Domain)
	for domain := range keys.Known {
		pol, err := r.client.policies.ForDomain(domain)
		if err != nil || pol.BackgroundRefetch <= 0 {
			continue
		}
		byInterval[pol.BackgroundRefetch] = append(byInterval[pol.BackgroundRefetch], domain)
	}

	for interval, domains := range byInterval {
		domains := domains
		sweep := scheduler.New(interval, func() { r.sweep(domains) })
		sweep.Start()
		r.sweeps = append(r.sweeps, sweep)
		r.logger.Info("background refetch sweep started",
			zap.Duration("interval", interval),
			zap.Int("domains", len(domains)))
	}
}

// Stop halts all sweeps and waits for in-progress runs to finish.
func (r *Refresher) Stop() {
	for _, sweep := range r.sweeps {
		sweep.Stop()
	}
}

func (r *Refresher) sweep(domains []keys.Domain) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	for _, domain := range domains {
		for _, stored := range r.client.store.Keys(domain.All().String()) {
			if err := r.refetch(ctx, domain, stored); err != nil {
				r.logger.Debug("background refetch failed",
					zap.String("key", stored),
					zap.Error(err))
			}
		}
	}
}

// refetch re-runs the query a stored key was built from. List keys carry
// their canonical filter map in the last segment; detail keys carry the id.
func (r *Refresher) refetch(ctx context.Context, domain keys.Domain, stored string) error {
	listPrefix := domain.Lists().String() + ":"
	detailPrefix := string(domain) + ":detail:"

	switch {
	case strings.HasPrefix(stored, listPrefix):
		var filters keys.Filters
		if err := json.Unmarshal([]byte(stored[len(listPrefix):]), &filters); err != nil {
			return err
		}
		// No ForceFresh: entries still inside their freshness window are
		// served from cache, so the sweep only pays for what is stale.
		_, err := r.client.Query(ctx, QueryRequest{Domain: domain, Filters: filters})
		return err
	case strings.HasPrefix(stored, detailPrefix):
		id := stored[len(detailPrefix):]
		if strings.Contains(id, ":") {
			// Relation keys are invalidation targets, not queries.
			return nil
		}
		_, err := r.client.Detail(ctx, domain, id)
		return err
	}
	return nil
}
