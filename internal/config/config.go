package config

import (
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"tourism-cache/internal/backend/postgres"
	kvredis "tourism-cache/internal/kv/redis"
	"tourism-cache/internal/realtime/pgfeed"
	"tourism-cache/internal/realtime/redisfeed"
	storemem "tourism-cache/internal/store/memory"
	"tourism-cache/internal/utils"
)

// Feed transport names accepted in the feed section.
const (
	FeedPostgres = "postgres"
	FeedRedis    = "redis"
	FeedNone     = "none"
)

// Config is the main configuration structure.
type Config struct {
	Store    storemem.Config `yaml:"store"`
	Postgres postgres.Config `yaml:"postgres"`
	Feed     FeedConfig      `yaml:"feed"`
	KV       KVConfig        `yaml:"kv"`
	Server   ServerConfig    `yaml:"server"`

	// PolicyOverrides points at an optional YAML file adjusting the
	// built-in volatility presets and domain assignments.
	PolicyOverrides string `yaml:"policy_overrides"`

	// DemoMode swaps the Postgres backend for the seeded in-process one,
	// so the binary runs without any external services.
	DemoMode bool `yaml:"demo_mode"`
}

// FeedConfig selects and configures the change-feed transport.
type FeedConfig struct {
	Transport string           `yaml:"transport"`
	Postgres  pgfeed.Config    `yaml:"postgres"`
	Redis     redisfeed.Config `yaml:"redis"`

	// ReconnectGrace spaces channel re-opens after a feed outage.
	ReconnectGrace utils.Duration `yaml:"reconnect_grace"`
}

// KVConfig configures the preference store. An empty URL selects the
// in-process store.
type KVConfig struct {
	Redis kvredis.Config `yaml:"redis"`
}

// ServerConfig configures the admin HTTP surface.
type ServerConfig struct {
	ListenAddr  string `yaml:"listen_addr"`
	MetricsAddr string `yaml:"metrics_addr"`
}

// LoadConfig loads configuration from a file path.
func LoadConfig(configPath string, logger *zap.Logger) (*Config, error) {
	logger.Info("Loading configuration", zap.String("path", configPath))

	file, err := os.Open(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer func() { _ = file.Close() }()

	var config Config
	decoder := yaml.NewDecoder(file)
	if err := decoder.Decode(&config); err != nil {
		return nil, fmt.Errorf("failed to decode YAML config: %w", err)
	}

	config.applyDefaults()
	if err := config.validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func (c *Config) applyDefaults() {
	c.Store.ApplyDefaults()
	c.Postgres.ApplyDefaults()
	c.Feed.Postgres.ApplyDefaults()
	c.Feed.Redis.ApplyDefaults()
	c.KV.Redis.ApplyDefaults()
	if c.Feed.Transport == "" {
		if c.DemoMode {
			c.Feed.Transport = FeedNone
		} else {
			c.Feed.Transport = FeedPostgres
		}
	}
	if c.Feed.Postgres.DSN == "" {
		c.Feed.Postgres.DSN = c.Postgres.DSN
	}
	if c.Feed.ReconnectGrace == 0 {
		c.Feed.ReconnectGrace = utils.Duration(time.Second)
	}
	if c.Server.ListenAddr == "" {
		c.Server.ListenAddr = ":8080"
	}
	if c.Server.MetricsAddr == "" {
		c.Server.MetricsAddr = ":9090"
	}
}

func (c *Config) validate() error {
	switch c.Feed.Transport {
	case FeedPostgres, FeedRedis, FeedNone:
	default:
		return fmt.Errorf("unknown feed transport %q: must be postgres, redis or none", c.Feed.Transport)
	}
	if c.Postgres.DSN == "" && !c.DemoMode {
		return fmt.Errorf("postgres.dsn is required")
	}
	if c.DemoMode && c.Feed.Transport == FeedPostgres && c.Feed.Postgres.DSN == "" {
		return fmt.Errorf("feed.postgres.dsn is required for the postgres transport in demo mode")
	}
	if c.Feed.Transport == FeedRedis && c.Feed.Redis.URL == "" {
		return fmt.Errorf("feed.redis.url is required for the redis transport")
	}
	return nil
}
