// Package pgfeed delivers change notifications over PostgreSQL
// LISTEN/NOTIFY. Row triggers on the watched tables are expected to
// NOTIFY a per-table channel with a JSON change payload.
package pgfeed

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"tourism-cache/internal/errclass"
	"tourism-cache/internal/interfaces"
	"tourism-cache/internal/models"
	"tourism-cache/internal/utils"
)

var _ interfaces.ChangeFeed = (*Feed)(nil)

type Config struct {
	DSN            string        `yaml:"dsn"`
	ConnectTimeout utils.Duration `yaml:"connect_timeout"`
}

func (c *Config) ApplyDefaults() {
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = utils.Duration(10 * time.Second)
	}
}

// Feed opens one dedicated connection per registration. LISTEN binds to a
// session, so pooled connections cannot carry it.
type Feed struct {
	cfg    Config
	logger *zap.Logger
}

func New(cfg Config, logger *zap.Logger) *Feed {
	cfg.ApplyDefaults()
	return &Feed{cfg: cfg, logger: logger}
}

func (f *Feed) Open(ctx context.Context, schema, table string, handler func(models.ChangeEvent)) (interfaces.FeedCloser, error) {
	connCtx, cancel := context.WithTimeout(ctx, f.cfg.ConnectTimeout.Std())
	conn, err := pgx.Connect(connCtx, f.cfg.DSN)
	cancel()
	if err != nil {
		return nil, errclass.Classify("feed connect", err)
	}

	channel := notifyChannel(schema, table)
	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{channel}.Sanitize()); err != nil {
		_ = conn.Close(context.Background())
		return nil, errclass.Classify("feed listen", err)
	}

	recvCtx, stop := context.WithCancel(context.Background())
	closer := &connCloser{conn: conn, stop: stop}
	go f.receive(recvCtx, conn, schema, table, handler)

	f.logger.Info("listening for row changes",
		zap.String("channel", channel),
		zap.String("table", schema+"."+table))
	return closer, nil
}

func (f *Feed) receive(ctx context.Context, conn *pgx.Conn, schema, table string, handler func(models.ChangeEvent)) {
	for {
		notification, err := conn.WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			f.logger.Error("change feed receive failed",
				zap.String("table", schema+"."+table), zap.Error(err))
			return
		}

		var evt models.ChangeEvent
		if err := json.Unmarshal([]byte(notification.Payload), &evt); err != nil {
			f.logger.Warn("dropping malformed change payload",
				zap.String("channel", notification.Channel), zap.Error(err))
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

type connCloser struct {
	conn *pgx.Conn
	stop context.CancelFunc
	once sync.Once
}

func (c *connCloser) Close() error {
	var err error
	c.once.Do(func() {
		c.stop()
		err = c.conn.Close(context.Background())
	})
	return err
}

func notifyChannel(schema, table string) string {
	return fmt.Sprintf("tourism_changes_%s_%s", schema, table)
}
