//go:generate go run go.uber.org/mock/mockgen -source=store.go -destination=mocks/mock_store.go -package=mocks
package store

import (
	"context"
	"errors"

	"github.com/damione1/collab-notes/internal/models"
)

// ErrNotFound is returned when no document matches the lookup.
var ErrNotFound = errors.New("document not found")

// DocumentStore persists room documents as whole-content snapshots.
//
// A room may own several documents (racing lazy creates or explicit Create
// calls). Lookups by room always resolve to the one with the greatest
// UpdatedAt; UpsertByRoom mutates that same document.
type DocumentStore interface {
	FindLatestByRoom(ctx context.Context, roomID string) (*models.Document, error)
	ListByRoom(ctx context.Context, roomID string, limit int) ([]*models.Document, error)
	FindByID(ctx context.Context, id string) (*models.Document, error)
	Create(ctx context.Context, roomID, content string) (*models.Document, error)
	UpsertByRoom(ctx context.Context, roomID, content string) (*models.Document, error)
	UpdateByID(ctx context.Context, id, content string) (*models.Document, error)
}
