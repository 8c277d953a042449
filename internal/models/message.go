package models

import "encoding/json"

// WSMessage is the envelope of every frame on the live channel.
type WSMessage struct {
	Type    string      `json:"type"`
	RoomID  string      `json:"roomId,omitempty"`
	Payload interface{} `json:"payload,omitempty"`
}

// InboundMessage is a client frame whose payload is decoded per type.
type InboundMessage struct {
	Type    string          `json:"type"`
	RoomID  string          `json:"roomId"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// JoinPayload carries the display name announced on join.
type JoinPayload struct {
	DisplayName string `json:"displayName"`
}

// ContentUpdatePayload carries a full content snapshot.
type ContentUpdatePayload struct {
	Content *string `json:"content"`
}

// Client → Server message types
const (
	MsgTypeJoin          = "join"
	MsgTypeLeave         = "leave"
	MsgTypeContentUpdate = "content-update"
)

// Server → Client message types
const (
	MsgTypeDocumentLoaded    = "document-loaded"
	MsgTypeContentUpdated    = "content-updated"
	MsgTypePresenceList      = "presence-list"
	MsgTypeParticipantJoined = "participant-joined"
	MsgTypeParticipantLeft   = "participant-left"
	MsgTypeError             = "error"
)

// NewErrorMessage builds the error frame sent back to a single connection.
func NewErrorMessage(roomID, message string) *WSMessage {
	return &WSMessage{
		Type:    MsgTypeError,
		RoomID:  roomID,
		Payload: map[string]string{"message": message},
	}
}
