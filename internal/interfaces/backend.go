package interfaces

import (
	"context"
	"encoding/json"

	"tourism-cache/internal/models"
)

//go:generate mockgen -package=mock -source=backend.go -destination=mock/backend.go

// Backend is the hosted-database client the cache layer fetches through:
// filtered reads, row writes, nothing more. Any store exposing filtered
// reads and writes can sit behind it.
type Backend interface {
	// Select runs a filtered read and returns one page of rows.
	Select(ctx context.Context, q models.SelectQuery) (*models.SelectResult, error)

	// Insert writes one row and returns the stored row as the server sees
	// it (defaults and generated columns applied).
	Insert(ctx context.Context, table string, row json.RawMessage) (json.RawMessage, error)

	// Update patches the row with the given id and returns the updated row.
	Update(ctx context.Context, table, id string, patch json.RawMessage) (json.RawMessage, error)

	// Delete removes the row with the given id.
	Delete(ctx context.Context, table, id string) error
}
