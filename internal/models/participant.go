package models

import "time"

// Participant is one live connection's presence within a room.
type Participant struct {
	ConnID   string
	Name     string
	RoomID   string
	JoinedAt time.Time
}

func NewParticipant(connID, name, roomID string) *Participant {
	return &Participant{
		ConnID:   connID,
		Name:     name,
		RoomID:   roomID,
		JoinedAt: time.Now(),
	}
}
