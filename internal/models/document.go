package models

import "time"

// Document is the persisted content of a room.
type Document struct {
	ID        string    `json:"id"`
	RoomID    string    `json:"roomId"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// NewerThan reports whether d should win over other when picking the latest
// document of a room.
func (d *Document) NewerThan(other *Document) bool {
	if other == nil {
		return true
	}
	if !d.UpdatedAt.Equal(other.UpdatedAt) {
		return d.UpdatedAt.After(other.UpdatedAt)
	}
	return d.ID > other.ID
}
