// Package hub holds the process-local registry of live realtime channels.
// Delivery through the hub is best-effort; Notification rows are the
// durable record of every event.
package hub

import (
	"sync"
	"time"
)

// Event is the JSON envelope pushed over a realtime channel.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// NotificationData is the payload of a "notification" envelope.
type NotificationData struct {
	Type      string `json:"type"`
	SenderID  uint64 `json:"sender_id,omitempty"`
	Content   string `json:"content,omitempty"`
	Timestamp string `json:"timestamp"`
}

// MessageData is the payload of a "message" envelope.
type MessageData struct {
	SenderID    uint64 `json:"sender_id"`
	RecipientID uint64 `json:"recipient_id"`
	Content     string `json:"content"`
	Timestamp   string `json:"timestamp"`
}

// NewNotificationEvent builds the standard notification envelope.
func NewNotificationEvent(notifType string, senderID uint64, content string) Event {
	return Event{
		Type: "notification",
		Data: NotificationData{
			Type:      notifType,
			SenderID:  senderID,
			Content:   content,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		},
	}
}

// Sender is one registered channel. Send must never block; it reports
// whether the event was accepted for delivery.
type Sender interface {
	Send(Event) bool
	Close()
}

// Hub maps user id → currently open channel, at most one per user;
// last-connected wins. Construct one per process (or per test) and inject
// it wherever events are pushed.
type Hub struct {
	mu       sync.RWMutex
	sessions map[uint64]Sender
}

func New() *Hub {
	return &Hub{sessions: make(map[uint64]Sender)}
}

// Register installs the channel for a user. A previously registered
// channel for the same user is closed.
func (h *Hub) Register(userID uint64, s Sender) {
	h.mu.Lock()
	prev := h.sessions[userID]
	h.sessions[userID] = s
	h.mu.Unlock()

	if prev != nil && prev != s {
		prev.Close()
	}
}

// Unregister removes the channel, but only if it is still the current one
// (a newer connection may have replaced it).
func (h *Hub) Unregister(userID uint64, s Sender) {
	h.mu.Lock()
	if h.sessions[userID] == s {
		delete(h.sessions, userID)
	}
	h.mu.Unlock()
}

// SendIfPresent pushes an event to the user's channel if one is open.
// Absence of a channel is not an error; the return value exists for tests
// and logging only.
func (h *Hub) SendIfPresent(userID uint64, e Event) bool {
	h.mu.RLock()
	s := h.sessions[userID]
	h.mu.RUnlock()

	if s == nil {
		return false
	}
	return s.Send(e)
}

// IsConnected reports whether the user currently has an open channel.
func (h *Hub) IsConnected(userID uint64) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.sessions[userID] != nil
}
