package main

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"

	backendpg "tourism-cache/internal/backend/postgres"
	"tourism-cache/internal/client"
	"tourism-cache/internal/config"
	"tourism-cache/internal/httpserver"
	"tourism-cache/internal/interfaces"
	"tourism-cache/internal/keys"
	kvmem "tourism-cache/internal/kv/memory"
	kvredis "tourism-cache/internal/kv/redis"
	"tourism-cache/internal/manage"
	"tourism-cache/internal/policy"
	"tourism-cache/internal/realtime"
	"tourism-cache/internal/realtime/pgfeed"
	"tourism-cache/internal/realtime/redisfeed"
	"tourism-cache/internal/session"
	storemem "tourism-cache/internal/store/memory"
	storenoop "tourism-cache/internal/store/noop"
)

// liveTables lists the tables whose changes are pushed through the change
// feed rather than waited out by the freshness window.
var liveTables = []keys.Domain{keys.Bookings, keys.Reviews}

// CompositionRoot holds all application dependencies and provides a
// centralized place for dependency injection and service initialization.
type CompositionRoot struct {
	Config *config.Config
	Logger *zap.Logger

	Store    interfaces.EntryStore
	Backend  interfaces.Backend
	Policies *policy.Table

	Client    *client.Client
	Refresher *client.Refresher
	Manager   *manage.Manager
	KV        interfaces.KeyValueStore
	Session   *session.Session

	Bridge  *realtime.Bridge
	handles []*realtime.Handle

	HTTPServer    *httpserver.Server
	MetricsServer *httpserver.MetricsServer
}

// NewCompositionRoot creates and wires all application dependencies in
// order: logger, configuration, policies, store, backend, cache client,
// preference store, change-feed bridge, HTTP servers.
func NewCompositionRoot(ctx context.Context) (*CompositionRoot, error) {
	root := &CompositionRoot{}

	if err := root.initLogger(); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	if err := root.loadConfig(); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := root.loadPolicies(); err != nil {
		return nil, fmt.Errorf("failed to load cache policies: %w", err)
	}
	if err := root.initStore(); err != nil {
		return nil, fmt.Errorf("failed to initialize entry store: %w", err)
	}
	if err := root.initBackend(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize backend: %w", err)
	}
	if err := root.initServices(); err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}
	if err := root.initChangeFeed(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize change feed: %w", err)
	}
	root.initHTTPServers()

	return root, nil
}

func (r *CompositionRoot) initLogger() error {
	logger, err := zap.NewProduction()
	if err != nil {
		return err
	}
	r.Logger = logger
	return nil
}

func (r *CompositionRoot) loadConfig() error {
	configPath := os.Getenv("TOURISM_CACHE_CONFIG")
	if configPath == "" {
		configPath = "/app/tourism_cache.yaml"
	}

	cfg, err := config.LoadConfig(configPath, r.Logger)
	if err != nil {
		return err
	}
	r.Config = cfg
	return nil
}

func (r *CompositionRoot) loadPolicies() error {
	if r.Config.PolicyOverrides == "" {
		r.Policies = policy.Default()
		return nil
	}
	table, err := policy.Load(r.Config.PolicyOverrides, r.Logger)
	if err != nil {
		return err
	}
	r.Policies = table
	return nil
}

func (r *CompositionRoot) initStore() error {
	if r.Config.Store.Disabled {
		r.Store = storenoop.New()
		r.Logger.Info("Entry store disabled, every read will hit the backend")
		return nil
	}
	store, err := storemem.New(r.Config.Store, r.Logger)
	if err != nil {
		return err
	}
	r.Store = store
	return nil
}

func (r *CompositionRoot) initBackend(ctx context.Context) error {
	if r.Config.DemoMode {
		r.Backend = seededDemoBackend()
		r.Logger.Info("Demo mode: using seeded in-process backend")
		return nil
	}
	backend, err := backendpg.New(ctx, r.Config.Postgres, r.Logger)
	if err != nil {
		return err
	}
	r.Backend = backend
	return nil
}

func (r *CompositionRoot) initServices() error {
	r.Client = client.New(r.Store, r.Backend, r.Policies, r.Logger)
	r.Refresher = client.NewRefresher(r.Client, r.Logger)
	r.Refresher.Start()
	r.Manager = manage.New(r.Store, r.Logger)

	if r.Config.KV.Redis.URL != "" {
		kv, err := kvredis.New(r.Config.KV.Redis, r.Logger)
		if err != nil {
			return err
		}
		r.KV = kv
	} else {
		r.KV = kvmem.New()
		r.Logger.Info("No preference store URL configured, using in-process store")
	}
	r.Session = session.New(r.Store, r.KV, r.Logger)
	return nil
}

// initChangeFeed builds the feed transport and subscribes the live tables.
// With transport "none" the freshness windows alone bound staleness.
func (r *CompositionRoot) initChangeFeed(ctx context.Context) error {
	var feed interfaces.ChangeFeed
	switch r.Config.Feed.Transport {
	case config.FeedPostgres:
		feed = pgfeed.New(r.Config.Feed.Postgres, r.Logger)
	case config.FeedRedis:
		f, err := redisfeed.New(r.Config.Feed.Redis, r.Logger)
		if err != nil {
			return err
		}
		feed = f
	case config.FeedNone:
		r.Logger.Info("Change feed disabled")
		return nil
	}

	r.Bridge = realtime.NewBridge(feed, r.Store, r.Config.Feed.ReconnectGrace.Std(), r.Logger)
	for _, domain := range liveTables {
		handle, err := r.Bridge.Subscribe(ctx, realtime.Subscription{Table: string(domain)})
		if err != nil {
			return err
		}
		r.handles = append(r.handles, handle)
	}
	return nil
}

func (r *CompositionRoot) initHTTPServers() {
	r.HTTPServer = httpserver.NewServer(r.Client, r.Manager, r.Logger)
	r.MetricsServer = httpserver.NewMetricsServer(r.Logger)
}

// Cleanup releases all resources in reverse initialization order.
func (r *CompositionRoot) Cleanup() error {
	var firstErr error

	if r.Refresher != nil {
		r.Refresher.Stop()
	}
	for _, handle := range r.handles {
		handle.Teardown()
	}
	if r.Bridge != nil {
		r.Bridge.Close()
	}
	if closer, ok := r.KV.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if pg, ok := r.Backend.(*backendpg.Backend); ok {
		pg.Close()
	}
	if closer, ok := r.Store.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
