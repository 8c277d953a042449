package services_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/damione1/collab-notes/internal/models"
	"github.com/damione1/collab-notes/internal/services"
	"github.com/damione1/collab-notes/internal/store"
	"github.com/damione1/collab-notes/internal/testutil"
)

type channelHarness struct {
	channel   *services.SyncChannel
	registry  *services.Registry
	persister *services.Persister
	store     store.DocumentStore
	metrics   *services.Metrics
}

func newChannelHarness(t *testing.T, s store.DocumentStore) *channelHarness {
	t.Helper()

	metrics := services.NewMetrics()
	log := quietLogger()
	reconciler := services.NewReconciler(s, log)
	persister := startPersister(t, reconciler, metrics)
	reconciler.UsePending(persister)
	registry := services.NewRegistry("Anonymous", metrics, log)

	return &channelHarness{
		channel:   services.NewSyncChannel(registry, reconciler, persister, metrics, log),
		registry:  registry,
		persister: persister,
		store:     s,
		metrics:   metrics,
	}
}

func (h *channelHarness) send(t *testing.T, peer services.Peer, msgType, roomID string, payload any) error {
	t.Helper()

	frame := map[string]any{"type": msgType, "roomId": roomID}
	if payload != nil {
		frame["payload"] = payload
	}
	data, err := json.Marshal(frame)
	require.NoError(t, err)
	return h.channel.HandleMessage(context.Background(), peer, data)
}

func (h *channelHarness) join(t *testing.T, peer services.Peer, roomID, name string) {
	t.Helper()
	require.NoError(t, h.send(t, peer, models.MsgTypeJoin, roomID, map[string]string{"displayName": name}))
}

func (h *channelHarness) update(t *testing.T, peer services.Peer, roomID, content string) error {
	t.Helper()
	return h.send(t, peer, models.MsgTypeContentUpdate, roomID, map[string]string{"content": content})
}

func loadedContent(t *testing.T, peer *testutil.FakePeer) []string {
	t.Helper()
	var contents []string
	for _, msg := range peer.OfType(models.MsgTypeDocumentLoaded) {
		content, ok := msg.Payload.(string)
		require.True(t, ok, "document-loaded payload is %T", msg.Payload)
		contents = append(contents, content)
	}
	return contents
}

func TestSyncChannel_AlAndBoScenario(t *testing.T) {
	h := newChannelHarness(t, store.NewMemoryStore())
	al := testutil.NewFakePeer("c1")
	bo := testutil.NewFakePeer("c2")

	h.join(t, al, "abc123", "Al")
	assert.Equal(t, []string{""}, loadedContent(t, al))
	assert.Equal(t, []string{"Al"}, al.LastPresence(t))

	h.join(t, bo, "abc123", "Bo")
	assert.Equal(t, []string{"Al", "Bo"}, al.LastPresence(t))
	assert.Equal(t, []string{"Al", "Bo"}, bo.LastPresence(t))
	assert.Equal(t, []string{""}, loadedContent(t, bo))

	require.NoError(t, h.update(t, al, "abc123", "hello"))

	updates := bo.OfType(models.MsgTypeContentUpdated)
	require.Len(t, updates, 1)
	assert.Equal(t, "hello", updates[0].Payload)
	assert.Empty(t, al.OfType(models.MsgTypeContentUpdated), "no echo to the sender")

	flush(t, h.persister)
	doc, err := h.store.FindLatestByRoom(context.Background(), "abc123")
	require.NoError(t, err)
	assert.Equal(t, "hello", doc.Content)

	docs, err := h.store.ListByRoom(context.Background(), "abc123", 10)
	require.NoError(t, err)
	assert.Len(t, docs, 1, "second joiner reuses the first document")
}

func TestSyncChannel_JoinLoadsPersistedContent(t *testing.T) {
	s := store.NewMemoryStore()
	_, err := s.Create(context.Background(), "abc123", "saved")
	require.NoError(t, err)
	h := newChannelHarness(t, s)
	al := testutil.NewFakePeer("c1")

	h.join(t, al, "abc123", "Al")

	assert.Equal(t, []string{"saved"}, loadedContent(t, al))
}

func TestSyncChannel_JoinSeesUnwrittenContent(t *testing.T) {
	s := store.NewMemoryStore()
	metrics := services.NewMetrics()
	reconciler := services.NewReconciler(s, quietLogger())
	// Never started: every update stays pending.
	persister := services.NewPersister(testPersisterConfig(), reconciler, metrics, quietLogger())
	reconciler.UsePending(persister)
	registry := services.NewRegistry("Anonymous", metrics, quietLogger())
	channel := services.NewSyncChannel(registry, reconciler, persister, metrics, quietLogger())
	ctx := context.Background()

	al := testutil.NewFakePeer("c1")
	bo := testutil.NewFakePeer("c2")
	require.NoError(t, channel.HandleJoin(ctx, al, "abc123", "Al"))
	require.NoError(t, channel.HandleContentUpdate(al, "abc123", "draft"))

	require.NoError(t, channel.HandleJoin(ctx, bo, "abc123", "Bo"))

	assert.Equal(t, []string{"draft"}, loadedContent(t, bo))
	assert.Equal(t, 1, persister.Pending())
}

func TestSyncChannel_UpdatesStayInTheirRoom(t *testing.T) {
	h := newChannelHarness(t, store.NewMemoryStore())
	al := testutil.NewFakePeer("c1")
	bo := testutil.NewFakePeer("c2")
	cy := testutil.NewFakePeer("c3")
	h.join(t, al, "ab", "Al")
	h.join(t, bo, "ab", "Bo")
	h.join(t, cy, "abc", "Cy")

	require.NoError(t, h.update(t, al, "ab", "for ab"))

	assert.Len(t, bo.OfType(models.MsgTypeContentUpdated), 1)
	assert.Empty(t, cy.OfType(models.MsgTypeContentUpdated))

	flush(t, h.persister)
	doc, err := h.store.FindLatestByRoom(context.Background(), "abc")
	require.NoError(t, err)
	assert.Equal(t, "", doc.Content)
}

func TestSyncChannel_LastWriteWins(t *testing.T) {
	h := newChannelHarness(t, store.NewMemoryStore())
	al := testutil.NewFakePeer("c1")
	bo := testutil.NewFakePeer("c2")
	h.join(t, al, "abc123", "Al")
	h.join(t, bo, "abc123", "Bo")

	require.NoError(t, h.update(t, al, "abc123", "W1"))
	require.NoError(t, h.update(t, bo, "abc123", "W2"))
	flush(t, h.persister)

	doc, err := h.store.FindLatestByRoom(context.Background(), "abc123")
	require.NoError(t, err)
	assert.Equal(t, "W2", doc.Content)
}

func TestSyncChannel_UpdateFromNonMemberIsRejected(t *testing.T) {
	h := newChannelHarness(t, store.NewMemoryStore())
	al := testutil.NewFakePeer("c1")
	eve := testutil.NewFakePeer("c2")
	h.join(t, al, "abc123", "Al")
	al.ClearMessages()

	err := h.update(t, eve, "abc123", "spoof")

	assert.True(t, errors.Is(err, services.ErrNotInRoom))
	assert.Empty(t, al.Messages())
	require.Len(t, eve.OfType(models.MsgTypeError), 1)
	assert.Equal(t, 0, h.persister.Pending())
}

func TestSyncChannel_InvalidFramesReturnErrorToSenderOnly(t *testing.T) {
	h := newChannelHarness(t, store.NewMemoryStore())
	al := testutil.NewFakePeer("c1")
	bo := testutil.NewFakePeer("c2")
	h.join(t, al, "abc123", "Al")
	al.ClearMessages()

	tests := []struct {
		name string
		data string
	}{
		{"not json", `{nope`},
		{"unknown type", `{"type":"vote","roomId":"abc123"}`},
		{"missing room", `{"type":"join","payload":{"displayName":"Bo"}}`},
		{"blank room", `{"type":"join","roomId":"   "}`},
		{"content missing", `{"type":"content-update","roomId":"abc123","payload":{}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bo.ClearMessages()

			err := h.channel.HandleMessage(context.Background(), bo, []byte(tt.data))

			assert.Error(t, err)
			require.Len(t, bo.Messages(), 1)
			assert.Equal(t, models.MsgTypeError, bo.Messages()[0].Type)
		})
	}

	assert.Empty(t, al.Messages())
	assert.Equal(t, []string{"Al"}, h.registry.Presence("abc123"))
}

func TestSyncChannel_DisconnectIsIdempotent(t *testing.T) {
	h := newChannelHarness(t, store.NewMemoryStore())
	al := testutil.NewFakePeer("c1")
	bo := testutil.NewFakePeer("c2")
	h.join(t, al, "abc123", "Al")
	h.join(t, bo, "abc123", "Bo")
	al.ClearMessages()

	h.channel.HandleDisconnect(bo)
	h.channel.HandleDisconnect(bo)

	assert.Len(t, al.OfType(models.MsgTypeParticipantLeft), 1)
	assert.Equal(t, []string{"Al"}, al.LastPresence(t))
	assert.Equal(t, []string{"Al"}, h.registry.Presence("abc123"))
}

func TestSyncChannel_ExplicitLeave(t *testing.T) {
	h := newChannelHarness(t, store.NewMemoryStore())
	al := testutil.NewFakePeer("c1")
	bo := testutil.NewFakePeer("c2")
	h.join(t, al, "abc123", "Al")
	h.join(t, bo, "abc123", "Bo")

	require.NoError(t, h.send(t, bo, models.MsgTypeLeave, "abc123", nil))

	assert.Equal(t, []string{"Al"}, al.LastPresence(t))
	err := h.update(t, bo, "abc123", "after leave")
	assert.ErrorIs(t, err, services.ErrNotInRoom)
}

func TestSyncChannel_RejoinAfterRoomEmptiesLoadsPersistedContent(t *testing.T) {
	h := newChannelHarness(t, store.NewMemoryStore())
	al := testutil.NewFakePeer("c1")
	h.join(t, al, "abc123", "Al")
	require.NoError(t, h.update(t, al, "abc123", "kept"))
	h.channel.HandleDisconnect(al)
	assert.Equal(t, 0, h.registry.RoomCount())
	flush(t, h.persister)

	bo := testutil.NewFakePeer("c2")
	h.join(t, bo, "abc123", "Bo")

	assert.Equal(t, []string{"kept"}, loadedContent(t, bo))
	assert.Equal(t, []string{"Bo"}, bo.LastPresence(t))
}

func TestSyncChannel_StorageFailureIsNotReportedToSender(t *testing.T) {
	failing := services.WriterFunc(func(ctx context.Context, roomID, content string) (*models.Document, error) {
		return nil, errors.New("database is locked")
	})
	metrics := services.NewMetrics()
	s := store.NewMemoryStore()
	reconciler := services.NewReconciler(s, quietLogger())
	persister := startPersister(t, failing, metrics)
	registry := services.NewRegistry("Anonymous", metrics, quietLogger())
	channel := services.NewSyncChannel(registry, reconciler, persister, metrics, quietLogger())

	al := testutil.NewFakePeer("c1")
	bo := testutil.NewFakePeer("c2")
	require.NoError(t, channel.HandleJoin(context.Background(), al, "abc123", "Al"))
	require.NoError(t, channel.HandleJoin(context.Background(), bo, "abc123", "Bo"))

	require.NoError(t, channel.HandleContentUpdate(al, "abc123", "lost"))
	flush(t, persister)

	assert.Len(t, bo.OfType(models.MsgTypeContentUpdated), 1)
	assert.Empty(t, al.OfType(models.MsgTypeError))
	assert.Equal(t, int64(1), metrics.Snapshot().PersistFailures)
}

func TestSyncChannel_PresenceMatchesMembershipAfterEveryEvent(t *testing.T) {
	h := newChannelHarness(t, store.NewMemoryStore())
	peers := map[string]*testutil.FakePeer{}
	for _, name := range []string{"A", "B", "C", "D"} {
		peers[name] = testutil.NewFakePeer("conn-" + name)
	}
	observer := testutil.NewFakePeer("conn-observer")
	h.join(t, observer, "abc123", "O")

	steps := []struct {
		join bool
		name string
		want []string
	}{
		{true, "A", []string{"O", "A"}},
		{true, "B", []string{"O", "A", "B"}},
		{false, "A", []string{"O", "B"}},
		{true, "C", []string{"O", "B", "C"}},
		{true, "A", []string{"O", "B", "C", "A"}},
		{false, "C", []string{"O", "B", "A"}},
		{false, "B", []string{"O", "A"}},
	}
	for _, step := range steps {
		if step.join {
			h.join(t, peers[step.name], "abc123", step.name)
		} else {
			h.channel.HandleDisconnect(peers[step.name])
		}
		assert.Equal(t, step.want, observer.LastPresence(t))
		assert.Equal(t, step.want, h.registry.Presence("abc123"))
	}
}
