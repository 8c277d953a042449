package services

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/damione1/collab-notes/internal/config"
	"github.com/damione1/collab-notes/internal/models"
)

// Client represents a single WebSocket connection with its own send goroutine
type Client struct {
	id      string
	conn    *websocket.Conn
	send    chan []byte
	channel *SyncChannel
	metrics *Metrics
	log     *slog.Logger

	// Rate limiting. While over the limit, the newest content-update for
	// the connection's room is held and applied once the window resets.
	messageCount int
	rateLimitMu  sync.Mutex
	lastReset    time.Time
	held         []byte
	heldTimer    *time.Timer

	// processMu keeps frames of one connection strictly sequential
	processMu sync.Mutex

	// Lifecycle
	ctx            context.Context
	cancel         context.CancelFunc
	closed         bool
	closeMu        sync.Mutex
	disconnectOnce sync.Once
}

// NewClient creates a new client instance
func NewClient(conn *websocket.Conn, channel *SyncChannel, log *slog.Logger) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	if log == nil {
		log = slog.Default()
	}
	id := uuid.NewString()

	return &Client{
		id:        id,
		conn:      conn,
		send:      make(chan []byte, config.ClientSendBufferSize),
		channel:   channel,
		metrics:   channel.Metrics(),
		log:       log.With("conn", id),
		lastReset: time.Now(),
		ctx:       ctx,
		cancel:    cancel,
	}
}

func (c *Client) ID() string { return c.id }

// Run serves the connection until it closes or ctx is done.
func (c *Client) Run(ctx context.Context) {
	c.metrics.IncrementConnections()
	defer c.metrics.DecrementConnections()

	stop := context.AfterFunc(ctx, c.Close)
	defer stop()

	go c.writePump()
	c.readPump()
}

// writePump handles outgoing messages to the WebSocket connection
func (c *Client) writePump() {
	ticker := time.NewTicker(config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			if !ok {
				return
			}

			writeCtx, cancel := context.WithTimeout(c.ctx, config.WriteTimeout)
			err := c.conn.Write(writeCtx, websocket.MessageText, message)
			cancel()

			if err != nil {
				if c.ctx.Err() == nil {
					c.log.Warn("write failed", "err", err)
					c.metrics.IncrementBroadcastErrors()
				}
				return
			}
			c.metrics.IncrementMessagesSent()

		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(c.ctx, config.WriteTimeout)
			err := c.conn.Ping(pingCtx)
			cancel()

			if err != nil {
				c.log.Warn("ping failed", "err", err)
				return
			}

		case <-c.ctx.Done():
			return
		}
	}
}

// readPump processes frames in arrival order until the connection fails
func (c *Client) readPump() {
	defer func() {
		c.process(nil)
		c.disconnect()
		c.Close()
	}()

	for {
		readCtx, cancel := context.WithTimeout(c.ctx, config.PongTimeout)
		_, message, err := c.conn.Read(readCtx)
		cancel()

		if err != nil {
			if !isExpectedClose(err) && c.ctx.Err() == nil {
				c.log.Warn("read failed", "err", err)
				c.metrics.IncrementConnectionErrors()
			}
			return
		}

		if !c.checkRateLimit() {
			c.metrics.IncrementRateLimitViolations()
			if c.holdUpdate(message) {
				continue
			}
			c.log.Warn("rate limit exceeded")
			c.channel.sendError(c, "", "Rate limit exceeded. Please slow down.")
			continue
		}

		c.process(message)
	}
}

// process applies any held content-update, then frame. frame may be nil.
func (c *Client) process(frame []byte) {
	c.processMu.Lock()
	defer c.processMu.Unlock()

	if held := c.takeHeld(); held != nil {
		c.handle(held)
	}
	if frame != nil {
		c.handle(frame)
	}
}

func (c *Client) handle(frame []byte) {
	c.metrics.IncrementMessagesReceived()

	if err := c.channel.HandleMessage(c.ctx, c, frame); err != nil {
		c.log.Debug("frame rejected", "err", err)
	}
}

// holdUpdate keeps frame when it is a content-update for the connection's
// current room, replacing any older held one. Updates are full snapshots,
// so only the newest matters.
func (c *Client) holdUpdate(frame []byte) bool {
	var msg models.InboundMessage
	if err := json.Unmarshal(frame, &msg); err != nil || msg.Type != models.MsgTypeContentUpdate {
		return false
	}
	if roomID, ok := c.channel.Registry().RoomOf(c.id); !ok || roomID != msg.RoomID {
		return false
	}

	c.rateLimitMu.Lock()
	defer c.rateLimitMu.Unlock()

	c.held = frame
	if c.heldTimer == nil {
		wait := config.RateLimitWindow - time.Since(c.lastReset)
		c.heldTimer = time.AfterFunc(wait, func() { c.process(nil) })
	}
	return true
}

func (c *Client) takeHeld() []byte {
	c.rateLimitMu.Lock()
	defer c.rateLimitMu.Unlock()

	held := c.held
	c.held = nil
	if c.heldTimer != nil {
		c.heldTimer.Stop()
		c.heldTimer = nil
	}
	return held
}

// disconnect leaves the current room exactly once per connection
func (c *Client) disconnect() {
	c.disconnectOnce.Do(func() {
		c.channel.HandleDisconnect(c)
	})
}

// checkRateLimit verifies the client hasn't exceeded message rate limits
func (c *Client) checkRateLimit() bool {
	c.rateLimitMu.Lock()
	defer c.rateLimitMu.Unlock()

	now := time.Now()
	if now.Sub(c.lastReset) > config.RateLimitWindow {
		c.messageCount = 0
		c.lastReset = now
	}

	c.messageCount++
	return c.messageCount <= config.MaxMessagesPerSecond
}

// Send queues a message for sending to the client
func (c *Client) Send(message []byte) bool {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()

	if c.closed {
		return false
	}

	select {
	case c.send <- message:
		return true
	default:
		// Channel full, client is too slow
		c.log.Warn("send buffer full, closing slow client")
		go c.Close()
		return false
	}
}

// Close cleanly shuts down the client connection
func (c *Client) Close() {
	c.closeMu.Lock()
	if c.closed {
		c.closeMu.Unlock()
		return
	}
	c.closed = true
	c.cancel()
	close(c.send)
	c.closeMu.Unlock()

	// Send must not wait on the close handshake.
	_ = c.conn.Close(websocket.StatusNormalClosure, "")
}

func isExpectedClose(err error) bool {
	switch websocket.CloseStatus(err) {
	case websocket.StatusNormalClosure, websocket.StatusGoingAway:
		return true
	}
	return errors.Is(err, context.Canceled)
}

var _ Peer = (*Client)(nil)
