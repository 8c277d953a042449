package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/damione1/collab-notes/internal/models"
	"github.com/damione1/collab-notes/internal/security"
	"github.com/damione1/collab-notes/internal/store"
)

// DefaultListLimit caps the documents returned for one room.
const DefaultListLimit = 100

// PendingContent exposes content accepted but not yet stored.
type PendingContent interface {
	LatestKnown(roomID string) (string, bool)
}

// Reconciler resolves a room's document with last-write-wins semantics.
// Duplicate documents for a room are tolerated; reads always resolve to the
// one updated last.
type Reconciler struct {
	store   store.DocumentStore
	pending PendingContent
	log     *slog.Logger
}

func NewReconciler(s store.DocumentStore, log *slog.Logger) *Reconciler {
	if log == nil {
		log = slog.Default()
	}
	return &Reconciler{store: s, log: log}
}

// UsePending makes LatestKnown consult unwritten content first.
func (r *Reconciler) UsePending(p PendingContent) {
	r.pending = p
}

// ReadLatest returns the latest document of roomID, creating an empty one
// when the room has none.
func (r *Reconciler) ReadLatest(ctx context.Context, roomID string) (*models.Document, error) {
	roomID, err := security.ValidateRoomID(roomID)
	if err != nil {
		return nil, err
	}

	doc, err := r.store.FindLatestByRoom(ctx, roomID)
	if err == nil {
		return doc, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("failed to read room %s: %w", roomID, err)
	}

	doc, err = r.store.Create(ctx, roomID, "")
	if err != nil {
		return nil, fmt.Errorf("failed to create document for room %s: %w", roomID, err)
	}
	r.log.Info("created document", "room", roomID, "document", doc.ID)
	return doc, nil
}

// Write updates the latest document of roomID in place, or creates one.
func (r *Reconciler) Write(ctx context.Context, roomID, content string) (*models.Document, error) {
	roomID, err := security.ValidateRoomID(roomID)
	if err != nil {
		return nil, err
	}
	if err := security.ValidateContent(content); err != nil {
		return nil, err
	}

	doc, err := r.store.UpsertByRoom(ctx, roomID, content)
	if err != nil {
		return nil, fmt.Errorf("failed to write room %s: %w", roomID, err)
	}
	return doc, nil
}

// LatestKnown returns the newest content of roomID, including content that
// is accepted but not yet written.
func (r *Reconciler) LatestKnown(ctx context.Context, roomID string) (string, error) {
	if r.pending != nil {
		if content, ok := r.pending.LatestKnown(roomID); ok {
			return content, nil
		}
	}

	doc, err := r.ReadLatest(ctx, roomID)
	if err != nil {
		return "", err
	}
	return doc.Content, nil
}

// List returns the documents of roomID, newest first. A room without
// documents gets an empty one.
func (r *Reconciler) List(ctx context.Context, roomID string) ([]*models.Document, error) {
	roomID, err := security.ValidateRoomID(roomID)
	if err != nil {
		return nil, err
	}

	docs, err := r.store.ListByRoom(ctx, roomID, DefaultListLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to list room %s: %w", roomID, err)
	}
	if len(docs) > 0 {
		return docs, nil
	}

	doc, err := r.ReadLatest(ctx, roomID)
	if err != nil {
		return nil, err
	}
	return []*models.Document{doc}, nil
}

// Create always inserts a new document.
func (r *Reconciler) Create(ctx context.Context, roomID, content string) (*models.Document, error) {
	roomID, err := security.ValidateRoomID(roomID)
	if err != nil {
		return nil, err
	}
	if err := security.ValidateContent(content); err != nil {
		return nil, err
	}

	doc, err := r.store.Create(ctx, roomID, content)
	if err != nil {
		return nil, fmt.Errorf("failed to create document for room %s: %w", roomID, err)
	}
	return doc, nil
}

// UpdateByID replaces the content of one document. Unknown IDs return
// store.ErrNotFound and nothing is written.
func (r *Reconciler) UpdateByID(ctx context.Context, id, content string) (*models.Document, error) {
	if err := security.ValidateDocumentID(id); err != nil {
		return nil, err
	}
	if err := security.ValidateContent(content); err != nil {
		return nil, err
	}

	doc, err := r.store.UpdateByID(ctx, id, content)
	if err != nil {
		return nil, fmt.Errorf("failed to update document %s: %w", id, err)
	}
	return doc, nil
}
