package handlers

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/pocketbase/pocketbase/core"

	"github.com/damione1/collab-notes/internal/services"
)

type RoomHandlers struct {
	registry *services.Registry
}

func NewRoomHandlers(registry *services.Registry) *RoomHandlers {
	return &RoomHandlers{registry: registry}
}

// NewRoom handles GET /api/rooms/new and hands out a fresh room ID
func (h *RoomHandlers) NewRoom(re *core.RequestEvent) error {
	return re.JSON(http.StatusOK, map[string]string{
		"roomId": uuid.New().String(),
	})
}

// LiveRooms handles GET /api/rooms and lists rooms with connected participants
func (h *RoomHandlers) LiveRooms(re *core.RequestEvent) error {
	return re.JSON(http.StatusOK, h.registry.Rooms())
}
