package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/pocketbase/pocketbase/core"

	"github.com/damione1/collab-notes/internal/models"
)

const notesCollection = "notes"

// PocketBaseStore keeps documents in the "notes" collection of a PocketBase
// app. The collection is created by the migrations package.
type PocketBaseStore struct {
	app core.App
}

func NewPocketBaseStore(app core.App) *PocketBaseStore {
	return &PocketBaseStore{app: app}
}

func (s *PocketBaseStore) FindLatestByRoom(ctx context.Context, roomID string) (*models.Document, error) {
	record, err := findLatestRecord(s.app, roomID)
	if err != nil {
		return nil, err
	}
	return toDocument(record), nil
}

func (s *PocketBaseStore) ListByRoom(ctx context.Context, roomID string, limit int) ([]*models.Document, error) {
	records, err := s.app.FindRecordsByFilter(
		notesCollection,
		"room_id = {:roomId}",
		"-updated_at,-id",
		limit,
		0,
		map[string]any{"roomId": roomID},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list notes: %w", err)
	}

	docs := make([]*models.Document, 0, len(records))
	for _, record := range records {
		docs = append(docs, toDocument(record))
	}
	return docs, nil
}

func (s *PocketBaseStore) FindByID(ctx context.Context, id string) (*models.Document, error) {
	record, err := s.app.FindRecordById(notesCollection, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to find note: %w", err)
	}
	return toDocument(record), nil
}

func (s *PocketBaseStore) Create(ctx context.Context, roomID, content string) (*models.Document, error) {
	record, err := createRecord(ctx, s.app, roomID, content)
	if err != nil {
		return nil, err
	}
	return toDocument(record), nil
}

// UpsertByRoom runs find-and-save in one transaction so a single upsert is
// atomic at the store.
func (s *PocketBaseStore) UpsertByRoom(ctx context.Context, roomID, content string) (*models.Document, error) {
	var saved *core.Record

	err := s.app.RunInTransaction(func(txApp core.App) error {
		record, err := findLatestRecord(txApp, roomID)
		if errors.Is(err, ErrNotFound) {
			saved, err = createRecord(ctx, txApp, roomID, content)
			return err
		}
		if err != nil {
			return err
		}

		if err := saveContent(ctx, txApp, record, content, record); err != nil {
			return err
		}
		saved = record
		return nil
	})
	if err != nil {
		return nil, err
	}

	return toDocument(saved), nil
}

func (s *PocketBaseStore) UpdateByID(ctx context.Context, id, content string) (*models.Document, error) {
	record, err := s.app.FindRecordById(notesCollection, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to find note: %w", err)
	}

	latest, err := findLatestRecord(s.app, record.GetString("room_id"))
	if err != nil {
		return nil, err
	}

	if err := saveContent(ctx, s.app, record, content, latest); err != nil {
		return nil, err
	}
	return toDocument(record), nil
}

func findLatestRecord(app core.App, roomID string) (*core.Record, error) {
	records, err := app.FindRecordsByFilter(
		notesCollection,
		"room_id = {:roomId}",
		"-updated_at,-id",
		1,
		0,
		map[string]any{"roomId": roomID},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query notes: %w", err)
	}
	if len(records) == 0 {
		return nil, ErrNotFound
	}
	return records[0], nil
}

func createRecord(ctx context.Context, app core.App, roomID, content string) (*core.Record, error) {
	collection, err := app.FindCollectionByNameOrId(notesCollection)
	if err != nil {
		return nil, fmt.Errorf("failed to find notes collection: %w", err)
	}

	now := time.Now().UTC()
	record := core.NewRecord(collection)
	record.Set("room_id", roomID)
	record.Set("content", content)
	record.Set("created_at", now)
	record.Set("updated_at", now)

	if err := app.SaveWithContext(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to save note: %w", err)
	}
	return record, nil
}

// saveContent stamps the record at least one millisecond after the room's
// latest document (DateFields keep millisecond precision) so the saved record
// becomes the latest.
func saveContent(ctx context.Context, app core.App, record *core.Record, content string, latest *core.Record) error {
	now := time.Now().UTC()
	prev := latest.GetDateTime("updated_at").Time()
	if now.Sub(prev) < time.Millisecond {
		now = prev.Add(time.Millisecond)
	}

	record.Set("content", content)
	record.Set("updated_at", now)

	if err := app.SaveWithContext(ctx, record); err != nil {
		return fmt.Errorf("failed to save note: %w", err)
	}
	return nil
}

func toDocument(record *core.Record) *models.Document {
	return &models.Document{
		ID:        record.Id,
		RoomID:    record.GetString("room_id"),
		Content:   record.GetString("content"),
		CreatedAt: record.GetDateTime("created_at").Time(),
		UpdatedAt: record.GetDateTime("updated_at").Time(),
	}
}
