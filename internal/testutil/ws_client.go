package testutil

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/damione1/collab-notes/internal/models"
)

// WSClient is a test WebSocket client
type WSClient struct {
	conn       *websocket.Conn
	messages   []models.WSMessage
	messagesMu sync.RWMutex
	closed     bool
	closedMu   sync.RWMutex
}

// NewWSClient creates a new WebSocket test client
func NewWSClient() *WSClient {
	return &WSClient{
		messages: make([]models.WSMessage, 0),
	}
}

// Connect establishes a WebSocket connection to the given URL
func (c *WSClient) Connect(url string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{
		HTTPClient: &http.Client{
			Timeout: 5 * time.Second,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}

	c.conn = conn

	// Start receiving messages in background
	go c.receiveMessages()

	return nil
}

// receiveMessages continuously reads messages from the WebSocket
func (c *WSClient) receiveMessages() {
	for {
		c.closedMu.RLock()
		if c.closed {
			c.closedMu.RUnlock()
			return
		}
		c.closedMu.RUnlock()

		_, data, err := c.conn.Read(context.Background())
		if err != nil {
			return
		}

		var msg models.WSMessage
		if err := json.Unmarshal(data, &msg); err == nil {
			c.messagesMu.Lock()
			c.messages = append(c.messages, msg)
			c.messagesMu.Unlock()
		}
	}
}

// SendMessage sends a message to the WebSocket
func (c *WSClient) SendMessage(msg map[string]any) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return c.conn.Write(ctx, websocket.MessageText, data)
}

// SendJoin sends a join message
func (c *WSClient) SendJoin(roomID, displayName string) error {
	return c.SendMessage(map[string]any{
		"type":   models.MsgTypeJoin,
		"roomId": roomID,
		"payload": map[string]any{
			"displayName": displayName,
		},
	})
}

// SendLeave sends a leave message
func (c *WSClient) SendLeave(roomID string) error {
	return c.SendMessage(map[string]any{
		"type":   models.MsgTypeLeave,
		"roomId": roomID,
	})
}

// SendContent sends a content-update message
func (c *WSClient) SendContent(roomID, content string) error {
	return c.SendMessage(map[string]any{
		"type":   models.MsgTypeContentUpdate,
		"roomId": roomID,
		"payload": map[string]any{
			"content": content,
		},
	})
}

// WaitForMessageType waits for a specific message type
func (c *WSClient) WaitForMessageType(msgType string, timeout time.Duration) *models.WSMessage {
	return c.WaitFor(timeout, func(msg models.WSMessage) bool { return msg.Type == msgType })
}

// WaitFor waits for the first message matching the predicate
func (c *WSClient) WaitFor(timeout time.Duration, match func(models.WSMessage) bool) *models.WSMessage {
	deadline := time.Now().Add(timeout)

	for time.Now().Before(deadline) {
		c.messagesMu.RLock()
		for _, msg := range c.messages {
			if match(msg) {
				c.messagesMu.RUnlock()
				return &msg
			}
		}
		c.messagesMu.RUnlock()

		time.Sleep(10 * time.Millisecond)
	}

	return nil
}

// ReceivedMessages returns all received messages
func (c *WSClient) ReceivedMessages() []models.WSMessage {
	c.messagesMu.RLock()
	defer c.messagesMu.RUnlock()

	messages := make([]models.WSMessage, len(c.messages))
	copy(messages, c.messages)
	return messages
}

// ClearMessages clears all received messages
func (c *WSClient) ClearMessages() {
	c.messagesMu.Lock()
	c.messages = make([]models.WSMessage, 0)
	c.messagesMu.Unlock()
}

// Close closes the WebSocket connection
func (c *WSClient) Close() {
	c.closedMu.Lock()
	c.closed = true
	c.closedMu.Unlock()

	if c.conn != nil {
		c.conn.Close(websocket.StatusNormalClosure, "")
	}
}
