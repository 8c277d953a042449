package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/damione1/collab-notes/internal/models"
)

// MemoryStore keeps documents in process memory. Used by tests and by the
// memory driver for throwaway deployments.
type MemoryStore struct {
	mu   sync.RWMutex
	docs map[string]*models.Document   // id -> document
	byRm map[string][]*models.Document // roomID -> documents in creation order
	now  func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs: make(map[string]*models.Document),
		byRm: make(map[string][]*models.Document),
		now:  time.Now,
	}
}

func (s *MemoryStore) FindLatestByRoom(ctx context.Context, roomID string) (*models.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	latest := s.latest(roomID)
	if latest == nil {
		return nil, ErrNotFound
	}
	return clone(latest), nil
}

func (s *MemoryStore) ListByRoom(ctx context.Context, roomID string, limit int) ([]*models.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	// newest creation first, then stable by update time so ties match latest()
	all := s.byRm[roomID]
	docs := lo.Times(len(all), func(i int) *models.Document { return clone(all[len(all)-1-i]) })
	sort.SliceStable(docs, func(i, j int) bool {
		return docs[i].UpdatedAt.After(docs[j].UpdatedAt)
	})
	if limit > 0 && len(docs) > limit {
		docs = docs[:limit]
	}
	return docs, nil
}

func (s *MemoryStore) FindByID(ctx context.Context, id string) (*models.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.docs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(doc), nil
}

func (s *MemoryStore) Create(ctx context.Context, roomID, content string) (*models.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return clone(s.create(roomID, content)), nil
}

func (s *MemoryStore) UpsertByRoom(ctx context.Context, roomID, content string) (*models.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc := s.latest(roomID)
	if doc == nil {
		return clone(s.create(roomID, content)), nil
	}
	doc.Content = content
	doc.UpdatedAt = s.tick(doc.UpdatedAt)
	return clone(doc), nil
}

func (s *MemoryStore) UpdateByID(ctx context.Context, id, content string) (*models.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.docs[id]
	if !ok {
		return nil, ErrNotFound
	}
	doc.Content = content
	doc.UpdatedAt = s.tick(s.latest(doc.RoomID).UpdatedAt)
	return clone(doc), nil
}

func (s *MemoryStore) create(roomID, content string) *models.Document {
	now := s.now()
	doc := &models.Document{
		ID:        uuid.NewString(),
		RoomID:    roomID,
		Content:   content,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.docs[doc.ID] = doc
	s.byRm[roomID] = append(s.byRm[roomID], doc)
	return doc
}

// latest prefers the most recently updated document; on equal timestamps the
// later created one wins.
func (s *MemoryStore) latest(roomID string) *models.Document {
	var latest *models.Document
	for _, doc := range s.byRm[roomID] {
		if latest == nil || !doc.UpdatedAt.Before(latest.UpdatedAt) {
			latest = doc
		}
	}
	return latest
}

// tick returns a timestamp strictly after prev, even when the clock has not
// moved, so an updated document always becomes the latest of its room.
func (s *MemoryStore) tick(prev time.Time) time.Time {
	now := s.now()
	if !now.After(prev) {
		now = prev.Add(time.Nanosecond)
	}
	return now
}

func clone(doc *models.Document) *models.Document {
	cp := *doc
	return &cp
}
