package client

import (
	"context"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"tourism-cache/internal/errclass"
	"tourism-cache/internal/metrics"
	"tourism-cache/internal/policy"
)

const (
	backoffFactor = 2
	backoffCap    = 5 * time.Second
)

// withRetry runs op up to retries+1 times with exponential backoff and
// jitter. Only transient network failures are retried; everything else
// surfaces immediately.
func (c *Client) withRetry(ctx context.Context, class policy.Class, retries int, op func(context.Context) error) error {
	var err error
	for attempt := 0; attempt <= retries; attempt++ {
		if attempt > 0 {
			metrics.RecordFetchRetry(string(class))
			select {
			case <-time.After(c.backoffDelay(attempt)):
			case <-ctx.Done():
				return errclass.Classify("retry", ctx.Err())
			}
		}
		if err = op(ctx); err == nil {
			return nil
		}
		err = errclass.Classify("fetch", err)
		if !errclass.Retryable(errclass.KindOf(err)) {
			return err
		}
		c.logger.Debug("transient fetch failure, retrying",
			zap.String("class", string(class)),
			zap.Int("attempt", attempt+1),
			zap.Error(err))
	}
	return err
}

func (c *Client) backoffDelay(attempt int) time.Duration {
	delay := c.retryBase
	for i := 1; i < attempt; i++ {
		delay *= backoffFactor
		if delay >= backoffCap {
			delay = backoffCap
			break
		}
	}
	// up to 10% jitter so synchronized clients spread out
	jitter := time.Duration(rand.Int63n(int64(delay)/10 + 1))
	return delay + jitter
}
