package services

import (
	"encoding/json"
	"errors"
	"log/slog"
	"slices"
	"sync"

	"github.com/samber/lo"

	"github.com/damione1/collab-notes/internal/config"
	"github.com/damione1/collab-notes/internal/models"
	"github.com/damione1/collab-notes/internal/security"
)

var (
	ErrNotInRoom       = errors.New("connection is not a member of the room")
	ErrRoomFull        = errors.New("room is full")
	ErrTooManyRooms    = errors.New("too many active rooms")
	ErrTooManyConns    = errors.New("too many active connections")
	ErrRegistryStopped = errors.New("registry is shut down")
)

// Peer is the registry's view of a live connection. Send must not block.
type Peer interface {
	ID() string
	Send(data []byte) bool
}

type member struct {
	peer        Peer
	participant *models.Participant
}

// liveRoom is the in-memory state of a room with at least one member.
type liveRoom struct {
	members []*member // join order

	// seq counts content updates published while the room is live;
	// last is the content of the newest one.
	seq  uint64
	last string
}

func (lr *liveRoom) indexOf(peerID string) int {
	return slices.IndexFunc(lr.members, func(m *member) bool {
		return m.peer.ID() == peerID
	})
}

func (lr *liveRoom) names() []string {
	return lo.Map(lr.members, func(m *member, _ int) string {
		return m.participant.Name
	})
}

// Registry tracks which connections are in which room and fans frames out
// to them. All sends performed under mu are non-blocking enqueues.
type Registry struct {
	mu        sync.Mutex
	rooms     map[string]*liveRoom
	peerRooms map[string]string // peer ID -> room ID
	stopped   bool

	anonymousName string
	metrics       *Metrics
	log           *slog.Logger
}

func NewRegistry(anonymousName string, metrics *Metrics, log *slog.Logger) *Registry {
	if anonymousName == "" {
		anonymousName = "Anonymous"
	}
	if metrics == nil {
		metrics = NewMetrics()
	}
	if log == nil {
		log = slog.Default()
	}
	return &Registry{
		rooms:         make(map[string]*liveRoom),
		peerRooms:     make(map[string]string),
		anonymousName: anonymousName,
		metrics:       metrics,
		log:           log,
	}
}

// Join admits peer into roomID and returns the presence list after
// admission. A peer already in another room leaves it once admission is
// certain; a refused join changes nothing. Joining the current room again
// only updates the display name.
func (r *Registry) Join(roomID string, peer Peer, displayName string) ([]string, error) {
	presence, _, err := r.join(roomID, peer, displayName)
	return presence, err
}

// join also returns the room's publish sequence at admission, used to detect
// updates that raced with the joiner's snapshot.
func (r *Registry) join(roomID string, peer Peer, displayName string) ([]string, uint64, error) {
	roomID, err := security.ValidateRoomID(roomID)
	if err != nil {
		return nil, 0, err
	}
	name := security.SanitizeDisplayName(displayName)
	if name == "" {
		name = r.anonymousName
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.stopped {
		return nil, 0, ErrRegistryStopped
	}

	current, moving := r.peerRooms[peer.ID()]
	if moving && current == roomID {
		room := r.rooms[roomID]
		return r.renameLocked(roomID, room, peer, name), room.seq, nil
	}

	// A peer moving rooms frees its own slot, and possibly its old room.
	freedConns, freedRooms := 0, 0
	if moving {
		freedConns = 1
		if old, ok := r.rooms[current]; ok && len(old.members) == 1 {
			freedRooms = 1
		}
	}

	room, exists := r.rooms[roomID]
	switch {
	case !exists && len(r.rooms)-freedRooms >= config.MaxRoomsPerInstance:
		return nil, 0, ErrTooManyRooms
	case len(r.peerRooms)-freedConns >= config.MaxTotalConnections:
		return nil, 0, ErrTooManyConns
	case exists && len(room.members) >= config.MaxConnectionsPerRoom:
		return nil, 0, ErrRoomFull
	}

	if moving {
		r.leaveLocked(current, peer.ID())
	}

	if !exists {
		room = &liveRoom{}
		r.rooms[roomID] = room
		r.metrics.IncrementRooms()
	}

	participant := models.NewParticipant(peer.ID(), name, roomID)
	room.members = append(room.members, &member{peer: peer, participant: participant})
	r.peerRooms[peer.ID()] = roomID

	presence := room.names()
	r.log.Info("participant joined", "room", roomID, "participant", name, "conn", peer.ID(), "members", len(presence))

	r.broadcastLocked(roomID, room, peer.ID(), &models.WSMessage{
		Type:    models.MsgTypeParticipantJoined,
		RoomID:  roomID,
		Payload: name,
	})
	r.broadcastLocked(roomID, room, "", &models.WSMessage{
		Type:    models.MsgTypePresenceList,
		RoomID:  roomID,
		Payload: presence,
	})

	return presence, room.seq, nil
}

// renameLocked handles a repeated join of the peer's current room. The
// member keeps its place; a changed name is re-broadcast as presence.
func (r *Registry) renameLocked(roomID string, room *liveRoom, peer Peer, name string) []string {
	m := room.members[room.indexOf(peer.ID())]
	msg := &models.WSMessage{Type: models.MsgTypePresenceList, RoomID: roomID}

	if m.participant.Name == name {
		msg.Payload = room.names()
		r.sendLocked(peer, msg)
		return msg.Payload.([]string)
	}

	r.log.Info("participant renamed", "room", roomID, "from", m.participant.Name, "to", name, "conn", peer.ID())
	m.participant.Name = name
	msg.Payload = room.names()
	r.broadcastLocked(roomID, room, "", msg)
	return msg.Payload.([]string)
}

// Leave removes peer from roomID. It is a no-op when the peer is not a
// member of that room.
func (r *Registry) Leave(roomID string, peer Peer) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.peerRooms[peer.ID()] != roomID {
		return
	}
	r.leaveLocked(roomID, peer.ID())
}

// OnDisconnect removes peer from whichever room it is in.
func (r *Registry) OnDisconnect(peer Peer) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if roomID, ok := r.peerRooms[peer.ID()]; ok {
		r.leaveLocked(roomID, peer.ID())
	}
}

func (r *Registry) leaveLocked(roomID, peerID string) {
	delete(r.peerRooms, peerID)

	room, ok := r.rooms[roomID]
	if !ok {
		return
	}
	idx := room.indexOf(peerID)
	if idx < 0 {
		return
	}
	name := room.members[idx].participant.Name
	room.members = slices.Delete(room.members, idx, idx+1)

	if len(room.members) == 0 {
		delete(r.rooms, roomID)
		r.metrics.DecrementRooms()
		r.log.Info("room closed", "room", roomID)
		return
	}

	r.log.Info("participant left", "room", roomID, "participant", name, "conn", peerID, "members", len(room.members))

	r.broadcastLocked(roomID, room, "", &models.WSMessage{
		Type:    models.MsgTypeParticipantLeft,
		RoomID:  roomID,
		Payload: name,
	})
	r.broadcastLocked(roomID, room, "", &models.WSMessage{
		Type:    models.MsgTypePresenceList,
		RoomID:  roomID,
		Payload: room.names(),
	})
}

// Publish fans a content update out to every member except the sender.
// enqueue runs under the membership lock so persistence order matches
// broadcast order; it must not block.
func (r *Registry) Publish(roomID string, sender Peer, content string, enqueue func()) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[roomID]
	if !ok || r.peerRooms[sender.ID()] != roomID {
		return 0, ErrNotInRoom
	}

	if enqueue != nil {
		enqueue()
	}
	room.seq++
	room.last = content

	return r.broadcastLocked(roomID, room, sender.ID(), &models.WSMessage{
		Type:    models.MsgTypeContentUpdated,
		RoomID:  roomID,
		Payload: content,
	}), nil
}

// deliverSnapshot sends document-loaded to a joiner. If content was
// published in the room after the joiner was admitted, the newest published
// content replaces the snapshot.
func (r *Registry) deliverSnapshot(roomID string, peer Peer, snapshot string, joinSeq uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[roomID]
	if !ok || r.peerRooms[peer.ID()] != roomID {
		return false
	}
	if room.seq != joinSeq {
		snapshot = room.last
	}
	return r.sendLocked(peer, &models.WSMessage{
		Type:    models.MsgTypeDocumentLoaded,
		RoomID:  roomID,
		Payload: snapshot,
	})
}

// Broadcast sends msg to every member of roomID except the peer with ID
// except, and returns the number of members that accepted it.
func (r *Registry) Broadcast(roomID, except string, msg *models.WSMessage) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[roomID]
	if !ok {
		return 0
	}
	return r.broadcastLocked(roomID, room, except, msg)
}

func (r *Registry) broadcastLocked(roomID string, room *liveRoom, except string, msg *models.WSMessage) int {
	data, err := json.Marshal(msg)
	if err != nil {
		r.log.Error("failed to marshal frame", "room", roomID, "type", msg.Type, "err", err)
		return 0
	}

	delivered := 0
	for _, m := range room.members {
		if m.peer.ID() == except {
			continue
		}
		if m.peer.Send(data) {
			delivered++
			continue
		}
		r.metrics.IncrementBroadcastErrors()
		r.log.Warn("dropped frame for slow connection", "room", roomID, "conn", m.peer.ID(), "type", msg.Type)
	}
	return delivered
}

func (r *Registry) sendLocked(peer Peer, msg *models.WSMessage) bool {
	data, err := json.Marshal(msg)
	if err != nil {
		r.log.Error("failed to marshal frame", "type", msg.Type, "err", err)
		return false
	}
	return peer.Send(data)
}

// Presence returns the display names of roomID in join order. It never
// returns nil.
func (r *Registry) Presence(roomID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[roomID]
	if !ok {
		return []string{}
	}
	return room.names()
}

// RoomOf returns the room a peer is currently in.
func (r *Registry) RoomOf(peerID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	roomID, ok := r.peerRooms[peerID]
	return roomID, ok
}

func (r *Registry) RoomCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rooms)
}

func (r *Registry) ConnectionCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.peerRooms)
}

// Rooms returns a snapshot of every live room, ordered by ID.
func (r *Registry) Rooms() []models.Room {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := lo.Keys(r.rooms)
	slices.Sort(ids)
	return lo.Map(ids, func(id string, _ int) models.Room {
		return models.Room{ID: id, Participants: r.rooms[id].names()}
	})
}

// Shutdown drops all membership. Later joins fail with ErrRegistryStopped.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for range r.rooms {
		r.metrics.DecrementRooms()
	}
	r.log.Info("registry shut down", "rooms", len(r.rooms), "connections", len(r.peerRooms))
	r.rooms = make(map[string]*liveRoom)
	r.peerRooms = make(map[string]string)
	r.stopped = true
}
