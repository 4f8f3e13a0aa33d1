// Package redis backs the preference store with Redis so values survive
// process restarts and are shared between instances.
package redis

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"tourism-cache/internal/errclass"
	"tourism-cache/internal/interfaces"
	"tourism-cache/internal/utils"
)

var _ interfaces.KeyValueStore = (*Store)(nil)

type Config struct {
	URL            string        `yaml:"url"`
	ConnectTimeout utils.Duration `yaml:"connect_timeout"`
	ReadTimeout    utils.Duration `yaml:"read_timeout"`
	WriteTimeout   utils.Duration `yaml:"write_timeout"`
	TTL            utils.Duration `yaml:"ttl"`
}

func (c *Config) ApplyDefaults() {
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = utils.Duration(5 * time.Second)
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = utils.Duration(2 * time.Second)
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = utils.Duration(2 * time.Second)
	}
}

type Store struct {
	client *goredis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// New connects from a redis:// URL and verifies the connection with a ping.
func New(cfg Config, logger *zap.Logger) (*Store, error) {
	cfg.ApplyDefaults()

	parsed, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	host := parsed.Hostname()
	port := parsed.Port()
	if port == "" {
		port = "6379"
	}

	opts := &goredis.Options{
		Addr:         fmt.Sprintf("%s:%s", host, port),
		DialTimeout:  cfg.ConnectTimeout.Std(),
		ReadTimeout:  cfg.ReadTimeout.Std(),
		WriteTimeout: cfg.WriteTimeout.Std(),
	}
	if parsed.User != nil {
		if password, ok := parsed.User.Password(); ok {
			opts.Password = password
		}
	}
	if len(parsed.Path) > 1 {
		if db, err := strconv.Atoi(parsed.Path[1:]); err == nil {
			opts.DB = db
		}
	}

	client := goredis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), cfg.ConnectTimeout.Std())
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", opts.Addr, err)
	}

	logger.Info("connected to preference store", zap.String("address", opts.Addr))
	return &Store{client: client, ttl: cfg.TTL.Std(), logger: logger}, nil
}

func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	value, err := s.client.Get(ctx, key).Result()
	if err == goredis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, errclass.Classify("kv get", err)
	}
	return value, true, nil
}

func (s *Store) Set(ctx context.Context, key, value string) error {
	if err := s.client.Set(ctx, key, value, s.ttl).Err(); err != nil {
		return errclass.Classify("kv set", err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return errclass.Classify("kv delete", err)
	}
	return nil
}

// DeleteNamespace scans rather than KEYS so a large keyspace does not
// stall the server.
func (s *Store) DeleteNamespace(ctx context.Context, prefix string) error {
	iter := s.client.Scan(ctx, 0, prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		if err := s.client.Del(ctx, iter.Val()).Err(); err != nil {
			return errclass.Classify("kv delete namespace", err)
		}
	}
	if err := iter.Err(); err != nil {
		return errclass.Classify("kv scan", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.client.Close()
}
