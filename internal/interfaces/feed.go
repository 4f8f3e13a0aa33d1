package interfaces

import (
	"context"

	"tourism-cache/internal/models"
)

//go:generate mockgen -package=mock -source=feed.go -destination=mock/feed.go

// FeedCloser tears down one open change-feed channel. Implementations must
// be idempotent.
type FeedCloser interface {
	Close() error
}

// ChangeFeed is the transport under the subscription bridge: it opens a
// channel of row-change notifications for one table and delivers every
// event to the handler. The bridge owns filtering and invalidation; the
// feed owns only the wire.
type ChangeFeed interface {
	// Open starts listening for changes to schema.table. The handler is
	// called from the feed's receive goroutine until Close or ctx
	// cancellation.
	Open(ctx context.Context, schema, table string, handler func(models.ChangeEvent)) (FeedCloser, error)
}
