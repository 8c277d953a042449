package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/damione1/collab-notes/internal/models"
)

const maxTxnRetries = 3

// BadgerStore keeps documents in an embedded BadgerDB.
//
// Layout:
//
//	note:{id}                       -> JSON document
//	room:{len(roomID)}:{roomID}:{id} -> empty (room index)
//
// The length prefix keeps one room's index range from swallowing another
// room whose ID starts with the same characters.
type BadgerStore struct {
	db  *badger.DB
	log *slog.Logger
}

func NewBadgerStore(db *badger.DB, log *slog.Logger) *BadgerStore {
	if log == nil {
		log = slog.Default()
	}
	return &BadgerStore{db: db, log: log}
}

// OpenBadger opens (or creates) a BadgerDB at path, logging through log.
func OpenBadger(path string, log *slog.Logger) (*badger.DB, error) {
	opts := badger.DefaultOptions(path).WithLogger(badgerLogger{log.With("component", "badger")})
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger at %s: %w", path, err)
	}
	return db, nil
}

// badgerLogger routes badger's printf-style logs to slog.
type badgerLogger struct {
	log *slog.Logger
}

func (l badgerLogger) Errorf(format string, args ...interface{}) {
	l.log.Error(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l badgerLogger) Warningf(format string, args ...interface{}) {
	l.log.Warn(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l badgerLogger) Infof(format string, args ...interface{}) {
	l.log.Info(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l badgerLogger) Debugf(format string, args ...interface{}) {
	l.log.Debug(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (s *BadgerStore) FindLatestByRoom(ctx context.Context, roomID string) (*models.Document, error) {
	var latest *models.Document
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		latest, err = latestInTxn(txn, roomID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return latest, nil
}

func (s *BadgerStore) ListByRoom(ctx context.Context, roomID string, limit int) ([]*models.Document, error) {
	var docs []*models.Document
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		docs, err = roomDocuments(txn, roomID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list notes: %w", err)
	}

	sort.SliceStable(docs, func(i, j int) bool { return docs[i].NewerThan(docs[j]) })
	if limit > 0 && len(docs) > limit {
		docs = docs[:limit]
	}
	return docs, nil
}

func (s *BadgerStore) FindByID(ctx context.Context, id string) (*models.Document, error) {
	var doc *models.Document
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		doc, err = getDocument(txn, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

func (s *BadgerStore) Create(ctx context.Context, roomID, content string) (*models.Document, error) {
	var doc *models.Document
	err := s.update(ctx, func(txn *badger.Txn) error {
		var err error
		doc, err = createInTxn(txn, roomID, content)
		return err
	})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

func (s *BadgerStore) UpsertByRoom(ctx context.Context, roomID, content string) (*models.Document, error) {
	var doc *models.Document
	err := s.update(ctx, func(txn *badger.Txn) error {
		latest, err := latestInTxn(txn, roomID)
		if errors.Is(err, ErrNotFound) {
			doc, err = createInTxn(txn, roomID, content)
			return err
		}
		if err != nil {
			return err
		}

		doc, err = updateInTxn(txn, latest, content, latest.UpdatedAt)
		return err
	})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

func (s *BadgerStore) UpdateByID(ctx context.Context, id, content string) (*models.Document, error) {
	var doc *models.Document
	err := s.update(ctx, func(txn *badger.Txn) error {
		existing, err := getDocument(txn, id)
		if err != nil {
			return err
		}
		latest, err := latestInTxn(txn, existing.RoomID)
		if err != nil {
			return err
		}
		doc, err = updateInTxn(txn, existing, content, latest.UpdatedAt)
		return err
	})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// update retries transactions that lost an optimistic conflict against a
// concurrent writer.
func (s *BadgerStore) update(ctx context.Context, fn func(txn *badger.Txn) error) error {
	var err error
	for attempt := 1; attempt <= maxTxnRetries; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		err = s.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
		s.log.Debug("badger transaction conflict, retrying", "attempt", attempt)
	}
	return fmt.Errorf("badger update: %w", err)
}

func latestInTxn(txn *badger.Txn, roomID string) (*models.Document, error) {
	docs, err := roomDocuments(txn, roomID)
	if err != nil {
		return nil, err
	}

	var latest *models.Document
	for _, doc := range docs {
		if doc.NewerThan(latest) {
			latest = doc
		}
	}
	if latest == nil {
		return nil, ErrNotFound
	}
	return latest, nil
}

func roomDocuments(txn *badger.Txn, roomID string) ([]*models.Document, error) {
	prefix := roomPrefix(roomID)
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false

	it := txn.NewIterator(opts)
	defer it.Close()

	var docs []*models.Document
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		id := string(it.Item().Key()[len(prefix):])
		doc, err := getDocument(txn, id)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func getDocument(txn *badger.Txn, id string) (*models.Document, error) {
	item, err := txn.Get(noteKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read note %s: %w", id, err)
	}

	var doc models.Document
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &doc)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to decode note %s: %w", id, err)
	}
	return &doc, nil
}

func createInTxn(txn *badger.Txn, roomID, content string) (*models.Document, error) {
	now := time.Now().UTC()
	doc := &models.Document{
		ID:        uuid.NewString(),
		RoomID:    roomID,
		Content:   content,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := putDocument(txn, doc); err != nil {
		return nil, err
	}
	if err := txn.Set(roomIndexKey(roomID, doc.ID), nil); err != nil {
		return nil, fmt.Errorf("failed to index note: %w", err)
	}
	return doc, nil
}

// updateInTxn stamps doc strictly after floor, the room's latest update.
func updateInTxn(txn *badger.Txn, doc *models.Document, content string, floor time.Time) (*models.Document, error) {
	now := time.Now().UTC()
	if !now.After(floor) {
		now = floor.Add(time.Nanosecond)
	}
	doc.Content = content
	doc.UpdatedAt = now

	if err := putDocument(txn, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func putDocument(txn *badger.Txn, doc *models.Document) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode note: %w", err)
	}
	if err := txn.Set(noteKey(doc.ID), data); err != nil {
		return fmt.Errorf("failed to write note: %w", err)
	}
	return nil
}

func noteKey(id string) []byte {
	return []byte("note:" + id)
}

func roomPrefix(roomID string) []byte {
	return []byte(fmt.Sprintf("room:%d:%s:", len(roomID), roomID))
}

func roomIndexKey(roomID, id string) []byte {
	return append(roomPrefix(roomID), id...)
}
