package interfaces

import "context"

//go:generate mockgen -package=mock -source=kvstore.go -destination=mock/kvstore.go

// KeyValueStore is the small async preference store that sits next to the
// cache layer. Keys are namespaced by current user identity before they
// reach an implementation.
type KeyValueStore interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error

	// DeleteNamespace drops every key under the prefix; used when a user
	// signs out.
	DeleteNamespace(ctx context.Context, prefix string) error
}
