package security

import (
	"encoding/json"
	"fmt"

	"github.com/coder/websocket"

	"github.com/damione1/collab-notes/internal/models"
)

// WebSocket message type validation
var validMessageTypes = map[string]bool{
	models.MsgTypeJoin:          true,
	models.MsgTypeLeave:         true,
	models.MsgTypeContentUpdate: true,
}

// IsValidMessageType checks if a WebSocket message type is valid
func IsValidMessageType(msgType string) bool {
	return validMessageTypes[msgType]
}

// OriginValidator validates WebSocket connection origins
type OriginValidator struct {
	allowedPatterns []string
}

// NewOriginValidator creates a new origin validator
func NewOriginValidator(patterns []string) *OriginValidator {
	return &OriginValidator{
		allowedPatterns: patterns,
	}
}

// GetAcceptOptions returns websocket.AcceptOptions with origin patterns
func (ov *OriginValidator) GetAcceptOptions() *websocket.AcceptOptions {
	return &websocket.AcceptOptions{
		OriginPatterns: ov.allowedPatterns,
	}
}

// ValidateMessagePayload checks the envelope of an inbound frame and
// returns its decoded payload.
func ValidateMessagePayload(msg *models.InboundMessage) (any, error) {
	if !IsValidMessageType(msg.Type) {
		return nil, fmt.Errorf("unknown message type %q", msg.Type)
	}

	roomID, err := ValidateRoomID(msg.RoomID)
	if err != nil {
		return nil, err
	}
	msg.RoomID = roomID

	switch msg.Type {
	case models.MsgTypeJoin:
		var payload models.JoinPayload
		if len(msg.Payload) > 0 {
			if err := json.Unmarshal(msg.Payload, &payload); err != nil {
				return nil, fmt.Errorf("invalid join payload: %w", err)
			}
		}
		payload.DisplayName = SanitizeDisplayName(payload.DisplayName)
		return payload, nil

	case models.MsgTypeContentUpdate:
		var payload models.ContentUpdatePayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			return nil, fmt.Errorf("invalid content-update payload: %w", err)
		}
		if payload.Content == nil {
			return nil, fmt.Errorf("content-update payload must have string 'content' field")
		}
		if err := ValidateContent(*payload.Content); err != nil {
			return nil, err
		}
		return payload, nil

	case models.MsgTypeLeave:
		// Leave carries no payload
	}

	return nil, nil
}
