package testutil

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/damione1/collab-notes/internal/models"
)

// FakePeer is an in-memory connection that records every frame it is sent.
type FakePeer struct {
	id string

	mu       sync.RWMutex
	messages []models.WSMessage
	refuse   bool
}

func NewFakePeer(id string) *FakePeer {
	return &FakePeer{id: id}
}

func (p *FakePeer) ID() string { return p.id }

// Send decodes and records the frame. It returns false once Refuse was called,
// mimicking a client whose buffer is full.
func (p *FakePeer) Send(data []byte) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.refuse {
		return false
	}

	var msg models.WSMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return false
	}
	p.messages = append(p.messages, msg)
	return true
}

// Refuse makes subsequent sends fail.
func (p *FakePeer) Refuse() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.refuse = true
}

// Messages returns a copy of the recorded frames.
func (p *FakePeer) Messages() []models.WSMessage {
	p.mu.RLock()
	defer p.mu.RUnlock()

	result := make([]models.WSMessage, len(p.messages))
	copy(result, p.messages)
	return result
}

// OfType returns the recorded frames of one type, in arrival order.
func (p *FakePeer) OfType(msgType string) []models.WSMessage {
	var result []models.WSMessage
	for _, msg := range p.Messages() {
		if msg.Type == msgType {
			result = append(result, msg)
		}
	}
	return result
}

// LastPresence returns the payload of the most recent presence-list frame.
func (p *FakePeer) LastPresence(t *testing.T) []string {
	t.Helper()

	lists := p.OfType(models.MsgTypePresenceList)
	if len(lists) == 0 {
		t.Fatalf("peer %s received no presence list", p.id)
	}
	return PresenceNames(t, lists[len(lists)-1])
}

// ClearMessages clears all recorded frames.
func (p *FakePeer) ClearMessages() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = nil
}

// WaitForType polls until a frame of msgType arrives or the timeout elapses.
func (p *FakePeer) WaitForType(msgType string, timeout time.Duration) *models.WSMessage {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if msgs := p.OfType(msgType); len(msgs) > 0 {
			return &msgs[0]
		}
		time.Sleep(5 * time.Millisecond)
	}
	return nil
}

// PresenceNames converts a decoded presence-list payload to names.
func PresenceNames(t *testing.T, msg models.WSMessage) []string {
	t.Helper()

	raw, ok := msg.Payload.([]interface{})
	if !ok {
		t.Fatalf("presence payload is %T, want list", msg.Payload)
	}
	names := make([]string, 0, len(raw))
	for _, v := range raw {
		name, ok := v.(string)
		if !ok {
			t.Fatalf("presence entry is %T, want string", v)
		}
		names = append(names, name)
	}
	return names
}
