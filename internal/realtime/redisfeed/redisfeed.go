// Package redisfeed delivers change notifications over Redis pub/sub, for
// deployments that fan changes out through a broker instead of database
// triggers.
package redisfeed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"tourism-cache/internal/errclass"
	"tourism-cache/internal/interfaces"
	"tourism-cache/internal/models"
	"tourism-cache/internal/utils"
)

var _ interfaces.ChangeFeed = (*Feed)(nil)

type Config struct {
	URL            string        `yaml:"url"`
	ConnectTimeout utils.Duration `yaml:"connect_timeout"`
}

func (c *Config) ApplyDefaults() {
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = utils.Duration(5 * time.Second)
	}
}

type Feed struct {
	client *redis.Client
	logger *zap.Logger
}

// New connects a Redis client from a redis:// URL and verifies it with a
// ping before handing the feed out.
func New(cfg Config, logger *zap.Logger) (*Feed, error) {
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

	opts := &redis.Options{
		Addr:        fmt.Sprintf("%s:%s", host, port),
		DialTimeout: cfg.ConnectTimeout.Std(),
	}
	if parsed.User != nil {
		if password, ok := parsed.User.Password(); ok {
			opts.Password = password
		}
	}

	client := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), cfg.ConnectTimeout.Std())
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", opts.Addr, err)
	}

	logger.Info("connected to Redis change feed", zap.String("address", opts.Addr))
	return &Feed{client: client, logger: logger}, nil
}

func (f *Feed) Open(ctx context.Context, schema, table string, handler func(models.ChangeEvent)) (interfaces.FeedCloser, error) {
	channel := pubsubChannel(schema, table)
	pubsub := f.client.Subscribe(ctx, channel)

	// Receive forces the SUBSCRIBE round trip so a bad channel or dead
	// broker fails here rather than silently in the goroutine.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, errclass.Classify("feed subscribe", err)
	}

	go f.receive(pubsub, schema, table, handler)

	f.logger.Info("subscribed to change channel",
		zap.String("channel", channel),
		zap.String("table", schema+"."+table))
	return &pubsubCloser{pubsub: pubsub}, nil
}

func (f *Feed) receive(pubsub *redis.PubSub, schema, table string, handler func(models.ChangeEvent)) {
	for msg := range pubsub.Channel() {
		var evt models.ChangeEvent
		if err := json.Unmarshal([]byte(msg.Payload), &evt); err != nil {
			f.logger.Warn("dropping malformed change payload",
				zap.String("channel", msg.Channel), zap.Error(err))
			continue
		}
		if evt.Schema == "" {
			evt.Schema = schema
		}
		if evt.Table == "" {
			evt.Table = table
		}
		handler(evt)
	}
}

// Close shuts the underlying client down; open registrations drain and
// stop.
func (f *Feed) Close() error {
	return f.client.Close()
}

type pubsubCloser struct {
	pubsub *redis.PubSub
	once   sync.Once
}

func (c *pubsubCloser) Close() error {
	var err error
	c.once.Do(func() {
		err = c.pubsub.Close()
	})
	return err
}

func pubsubChannel(schema, table string) string {
	return fmt.Sprintf("tourism_changes:%s.%s", schema, table)
}
