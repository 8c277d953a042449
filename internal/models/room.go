package models

// Room is a snapshot of a live room used by the metrics and debug endpoints.
// Membership itself lives in the services registry.
type Room struct {
	ID           string   `json:"id"`
	Participants []string `json:"participants"`
}

// RoomState names the lifecycle of a room's document.
type RoomState string

const (
	StateNoDocument RoomState = "no_document"
	StateEmpty      RoomState = "empty"
	StateUpdated    RoomState = "updated"
)

// DocumentState derives the room state from its latest document.
func DocumentState(doc *Document) RoomState {
	switch {
	case doc == nil:
		return StateNoDocument
	case doc.UpdatedAt.Equal(doc.CreatedAt) && doc.Content == "":
		return StateEmpty
	default:
		return StateUpdated
	}
}
