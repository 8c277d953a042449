package models_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/damione1/collab-notes/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewParticipant(t *testing.T) {
	p := models.NewParticipant("conn-1", "Alice", "abc123")

	assert.Equal(t, "conn-1", p.ConnID)
	assert.Equal(t, "Alice", p.Name)
	assert.Equal(t, "abc123", p.RoomID)
	assert.WithinDuration(t, time.Now(), p.JoinedAt, time.Second)
}

func TestDocument_NewerThan(t *testing.T) {
	now := time.Now()

	t.Run("later update wins", func(t *testing.T) {
		older := &models.Document{ID: "b", UpdatedAt: now}
		newer := &models.Document{ID: "a", UpdatedAt: now.Add(time.Millisecond)}

		assert.True(t, newer.NewerThan(older))
		assert.False(t, older.NewerThan(newer))
	})

	t.Run("ties break on id", func(t *testing.T) {
		a := &models.Document{ID: "a", UpdatedAt: now}
		b := &models.Document{ID: "b", UpdatedAt: now}

		assert.True(t, b.NewerThan(a))
		assert.False(t, a.NewerThan(b))
	})

	t.Run("anything beats nil", func(t *testing.T) {
		assert.True(t, (&models.Document{}).NewerThan(nil))
	})
}

func TestDocumentState(t *testing.T) {
	now := time.Now()

	assert.Equal(t, models.StateNoDocument, models.DocumentState(nil))
	assert.Equal(t, models.StateEmpty, models.DocumentState(&models.Document{CreatedAt: now, UpdatedAt: now}))
	assert.Equal(t, models.StateUpdated, models.DocumentState(&models.Document{
		Content:   "hello",
		CreatedAt: now,
		UpdatedAt: now.Add(time.Second),
	}))
}

func TestInboundMessage_Decode(t *testing.T) {
	raw := []byte(`{"type":"content-update","roomId":"abc123","payload":{"content":""}}`)

	var msg models.InboundMessage
	require.NoError(t, json.Unmarshal(raw, &msg))

	var payload models.ContentUpdatePayload
	require.NoError(t, json.Unmarshal(msg.Payload, &payload))

	assert.Equal(t, models.MsgTypeContentUpdate, msg.Type)
	assert.Equal(t, "abc123", msg.RoomID)
	require.NotNil(t, payload.Content)
	assert.Equal(t, "", *payload.Content)
}

func TestNewErrorMessage(t *testing.T) {
	msg := models.NewErrorMessage("abc123", "nope")

	data, err := json.Marshal(msg)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"error","roomId":"abc123","payload":{"message":"nope"}}`, string(data))
}
