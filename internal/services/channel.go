package services

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/damione1/collab-notes/internal/models"
	"github.com/damione1/collab-notes/internal/security"
)

// SyncChannel applies live events from connections to the registry, the
// reconciler and the persister.
type SyncChannel struct {
	registry   *Registry
	reconciler *Reconciler
	persister  *Persister
	metrics    *Metrics
	log        *slog.Logger
}

func NewSyncChannel(registry *Registry, reconciler *Reconciler, persister *Persister, metrics *Metrics, log *slog.Logger) *SyncChannel {
	if metrics == nil {
		metrics = NewMetrics()
	}
	if log == nil {
		log = slog.Default()
	}
	return &SyncChannel{
		registry:   registry,
		reconciler: reconciler,
		persister:  persister,
		metrics:    metrics,
		log:        log,
	}
}

func (c *SyncChannel) Registry() *Registry { return c.registry }

func (c *SyncChannel) Metrics() *Metrics { return c.metrics }

// HandleMessage decodes one inbound frame and dispatches it.
func (c *SyncChannel) HandleMessage(ctx context.Context, peer Peer, data []byte) error {
	var msg models.InboundMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.sendError(peer, "", "Invalid message format")
		return err
	}

	payload, err := security.ValidateMessagePayload(&msg)
	if err != nil {
		c.log.Warn("rejected frame", "conn", peer.ID(), "type", msg.Type, "err", err)
		c.sendError(peer, msg.RoomID, err.Error())
		return err
	}

	switch msg.Type {
	case models.MsgTypeJoin:
		return c.HandleJoin(ctx, peer, msg.RoomID, payload.(models.JoinPayload).DisplayName)
	case models.MsgTypeLeave:
		c.HandleLeave(peer, msg.RoomID)
		return nil
	case models.MsgTypeContentUpdate:
		return c.HandleContentUpdate(peer, msg.RoomID, *payload.(models.ContentUpdatePayload).Content)
	}
	return nil
}

// HandleJoin admits peer into roomID and sends it the room's latest content.
func (c *SyncChannel) HandleJoin(ctx context.Context, peer Peer, roomID, displayName string) error {
	_, seq, err := c.registry.join(roomID, peer, displayName)
	if err != nil {
		c.sendError(peer, roomID, joinErrorMessage(err))
		return err
	}

	content, err := c.reconciler.LatestKnown(ctx, roomID)
	if err != nil {
		c.log.Error("failed to load document", "room", roomID, "conn", peer.ID(), "err", err)
		c.sendError(peer, roomID, "Failed to load document")
		return err
	}

	c.registry.deliverSnapshot(roomID, peer, content, seq)
	return nil
}

// HandleLeave removes peer from roomID.
func (c *SyncChannel) HandleLeave(peer Peer, roomID string) {
	c.registry.Leave(roomID, peer)
}

// HandleContentUpdate relays content to the other members of roomID and
// schedules it for storage. Storage failures never reach the sender.
func (c *SyncChannel) HandleContentUpdate(peer Peer, roomID, content string) error {
	_, err := c.registry.Publish(roomID, peer, content, func() {
		if c.persister == nil {
			return
		}
		if err := c.persister.Enqueue(roomID, content); err != nil {
			c.log.Error("failed to schedule write", "room", roomID, "err", err)
		}
	})
	if err != nil {
		c.log.Warn("content update outside room", "room", roomID, "conn", peer.ID())
		c.sendError(peer, roomID, "Join the room before editing")
		return err
	}
	return nil
}

// HandleDisconnect removes peer from its room, if any.
func (c *SyncChannel) HandleDisconnect(peer Peer) {
	c.registry.OnDisconnect(peer)
}

func (c *SyncChannel) sendError(peer Peer, roomID, message string) {
	data, err := json.Marshal(models.NewErrorMessage(roomID, message))
	if err != nil {
		return
	}
	peer.Send(data)
}

func joinErrorMessage(err error) string {
	switch {
	case errors.Is(err, security.ErrInvalidRoomID):
		return "Room ID is required"
	case errors.Is(err, ErrRoomFull):
		return "Room is full"
	case errors.Is(err, ErrTooManyRooms), errors.Is(err, ErrTooManyConns):
		return "Server is at capacity, try again later"
	case errors.Is(err, ErrRegistryStopped):
		return "Server is shutting down"
	default:
		return "Failed to join room"
	}
}
