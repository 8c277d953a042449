package store_test

import (
	"context"
	"log/slog"
	"sync"
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/damione1/collab-notes/internal/store"
	"github.com/damione1/collab-notes/internal/testutil"
)

func TestMemoryStore(t *testing.T) {
	runStoreContract(t, func(t *testing.T) store.DocumentStore {
		return store.NewMemoryStore()
	})
}

func TestBadgerStore(t *testing.T) {
	runStoreContract(t, func(t *testing.T) store.DocumentStore {
		db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLoggingLevel(badger.ERROR))
		require.NoError(t, err)
		t.Cleanup(func() { _ = db.Close() })
		return store.NewBadgerStore(db, slog.Default())
	})
}

func TestPocketBaseStore(t *testing.T) {
	runStoreContract(t, func(t *testing.T) store.DocumentStore {
		return store.NewPocketBaseStore(testutil.NewTestApp(t))
	})
}

func runStoreContract(t *testing.T, newStore func(t *testing.T) store.DocumentStore) {
	ctx := context.Background()

	t.Run("find latest on unknown room", func(t *testing.T) {
		s := newStore(t)

		_, err := s.FindLatestByRoom(ctx, "abc123")

		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("create then find latest", func(t *testing.T) {
		s := newStore(t)

		created, err := s.Create(ctx, "abc123", "")
		require.NoError(t, err)
		assert.NotEmpty(t, created.ID)
		assert.Equal(t, "abc123", created.RoomID)
		assert.False(t, created.CreatedAt.IsZero())

		latest, err := s.FindLatestByRoom(ctx, "abc123")
		require.NoError(t, err)
		assert.Equal(t, created.ID, latest.ID)
		assert.Equal(t, "", latest.Content)
	})

	t.Run("upsert creates when absent", func(t *testing.T) {
		s := newStore(t)

		doc, err := s.UpsertByRoom(ctx, "abc123", "hello")
		require.NoError(t, err)
		assert.Equal(t, "hello", doc.Content)

		latest, err := s.FindLatestByRoom(ctx, "abc123")
		require.NoError(t, err)
		assert.Equal(t, doc.ID, latest.ID)
		assert.Equal(t, "hello", latest.Content)
	})

	t.Run("upsert updates in place", func(t *testing.T) {
		s := newStore(t)
		created, err := s.Create(ctx, "abc123", "")
		require.NoError(t, err)

		updated, err := s.UpsertByRoom(ctx, "abc123", "hello")
		require.NoError(t, err)

		assert.Equal(t, created.ID, updated.ID)
		assert.True(t, updated.UpdatedAt.After(created.UpdatedAt))

		docs, err := s.ListByRoom(ctx, "abc123", 0)
		require.NoError(t, err)
		assert.Len(t, docs, 1)
	})

	t.Run("last write wins", func(t *testing.T) {
		s := newStore(t)

		_, err := s.UpsertByRoom(ctx, "abc123", "W1")
		require.NoError(t, err)
		_, err = s.UpsertByRoom(ctx, "abc123", "W2")
		require.NoError(t, err)

		latest, err := s.FindLatestByRoom(ctx, "abc123")
		require.NoError(t, err)
		assert.Equal(t, "W2", latest.Content)
	})

	t.Run("duplicates resolve to the most recently updated", func(t *testing.T) {
		s := newStore(t)
		first, err := s.Create(ctx, "abc123", "")
		require.NoError(t, err)
		second, err := s.Create(ctx, "abc123", "")
		require.NoError(t, err)

		_, err = s.UpdateByID(ctx, first.ID, "first wins now")
		require.NoError(t, err)

		latest, err := s.FindLatestByRoom(ctx, "abc123")
		require.NoError(t, err)
		assert.Equal(t, first.ID, latest.ID)

		// the next upsert lands on the same document
		upserted, err := s.UpsertByRoom(ctx, "abc123", "converged")
		require.NoError(t, err)
		assert.Equal(t, first.ID, upserted.ID)

		docs, err := s.ListByRoom(ctx, "abc123", 0)
		require.NoError(t, err)
		require.Len(t, docs, 2)
		assert.Equal(t, first.ID, docs[0].ID)
		assert.Equal(t, "converged", docs[0].Content)
		assert.Equal(t, second.ID, docs[1].ID)
	})

	t.Run("list respects limit", func(t *testing.T) {
		s := newStore(t)
		for i := 0; i < 3; i++ {
			_, err := s.Create(ctx, "abc123", "")
			require.NoError(t, err)
		}

		docs, err := s.ListByRoom(ctx, "abc123", 2)
		require.NoError(t, err)
		assert.Len(t, docs, 2)
	})

	t.Run("rooms are isolated", func(t *testing.T) {
		s := newStore(t)
		_, err := s.UpsertByRoom(ctx, "ab", "short")
		require.NoError(t, err)
		_, err = s.UpsertByRoom(ctx, "abc", "long")
		require.NoError(t, err)

		docs, err := s.ListByRoom(ctx, "ab", 0)
		require.NoError(t, err)
		require.Len(t, docs, 1)
		assert.Equal(t, "short", docs[0].Content)

		_, err = s.FindLatestByRoom(ctx, "a")
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("find and update by id", func(t *testing.T) {
		s := newStore(t)
		created, err := s.Create(ctx, "abc123", "draft")
		require.NoError(t, err)

		found, err := s.FindByID(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, "draft", found.Content)

		updated, err := s.UpdateByID(ctx, created.ID, "final")
		require.NoError(t, err)
		assert.Equal(t, "final", updated.Content)
	})

	t.Run("unknown id is not found", func(t *testing.T) {
		s := newStore(t)

		_, err := s.FindByID(ctx, "abc123def456ghi")
		assert.ErrorIs(t, err, store.ErrNotFound)

		_, err = s.UpdateByID(ctx, "abc123def456ghi", "x")
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("concurrent upserts keep one of the written values", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Create(ctx, "abc123", "")
		require.NoError(t, err)

		values := []string{"a", "b", "c", "d"}
		var wg sync.WaitGroup
		for _, v := range values {
			wg.Add(1)
			go func(v string) {
				defer wg.Done()
				_, _ = s.UpsertByRoom(ctx, "abc123", v)
			}(v)
		}
		wg.Wait()

		latest, err := s.FindLatestByRoom(ctx, "abc123")
		require.NoError(t, err)
		assert.Contains(t, values, latest.Content)
	})
}

func TestOpenBadgerPersistsAcrossRestarts(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	db, err := store.OpenBadger(dir, slog.Default())
	require.NoError(t, err)
	_, err = store.NewBadgerStore(db, nil).UpsertByRoom(ctx, "abc123", "survives")
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db, err = store.OpenBadger(dir, slog.Default())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	doc, err := store.NewBadgerStore(db, nil).FindLatestByRoom(ctx, "abc123")
	require.NoError(t, err)
	assert.Equal(t, "survives", doc.Content)
}
