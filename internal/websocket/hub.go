package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"
)

// Message types
const (
	MessageTypeSessionUpdated = "session_updated"
	MessageTypeWatch          = "watch"
	MessageTypePing           = "ping"
	MessageTypePong           = "pong"
	MessageTypeError          = "error"
)

// ReasonSwitched marks the update a viewer gets after moving to another session
const ReasonSwitched = "switched"

// Message represents a WebSocket message
type Message struct {
	Type      string    `json:"type"`
	SessionID string    `json:"session_id,omitempty"`
	Data      any       `json:"data,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// SessionUpdate tells viewers why their game document changed
type SessionUpdate struct {
	SessionID string `json:"session_id"`
	Reason    string `json:"reason"`
}

// Hub tracks which session every viewer is watching and fans out session
// updates. A viewer watches at most one session at a time.
type Hub struct {
	// Viewers by session ID
	sessions map[string]map[*Viewer]struct{}

	// Session each connected viewer is watching, "" for none
	watching map[*Viewer]string

	register   chan *Viewer
	unregister chan *Viewer
	watch      chan watchRequest
	broadcast  chan *Message

	mu sync.RWMutex

	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

type watchRequest struct {
	viewer    *Viewer
	sessionID string
}

// NewHub creates a new Hub
func NewHub(logger *slog.Logger) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		sessions:   make(map[string]map[*Viewer]struct{}),
		watching:   make(map[*Viewer]string),
		register:   make(chan *Viewer),
		unregister: make(chan *Viewer),
		watch:      make(chan watchRequest, 64),
		broadcast:  make(chan *Message, 256),
		logger:     logger,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Run starts the hub's main loop
func (h *Hub) Run() {
	h.logger.Info("websocket hub started")
	for {
		select {
		case <-h.ctx.Done():
			h.logger.Info("websocket hub stopping")
			return

		case v := <-h.register:
			h.mu.Lock()
			h.watching[v] = v.initial
			h.join(v, v.initial)
			h.mu.Unlock()
			h.logger.Debug("viewer connected", "viewer_id", v.id, "session_id", v.initial)

		case v := <-h.unregister:
			h.mu.Lock()
			if sessionID, ok := h.watching[v]; ok {
				h.leave(v, sessionID)
				delete(h.watching, v)
				close(v.send)
			}
			h.mu.Unlock()
			h.logger.Debug("viewer disconnected", "viewer_id", v.id)

		case req := <-h.watch:
			h.switchSession(req.viewer, req.sessionID)

		case message := <-h.broadcast:
			h.broadcastMessage(message)
		}
	}
}

// join and leave expect h.mu to be held
func (h *Hub) join(v *Viewer, sessionID string) {
	if sessionID == "" {
		return
	}
	if _, ok := h.sessions[sessionID]; !ok {
		h.sessions[sessionID] = make(map[*Viewer]struct{})
	}
	h.sessions[sessionID][v] = struct{}{}
}

func (h *Hub) leave(v *Viewer, sessionID string) {
	viewers, ok := h.sessions[sessionID]
	if !ok {
		return
	}
	delete(viewers, v)
	if len(viewers) == 0 {
		delete(h.sessions, sessionID)
	}
}

// switchSession moves a viewer to another session and tells it to reload
func (h *Hub) switchSession(v *Viewer, sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	from, ok := h.watching[v]
	if !ok {
		return
	}
	if from != sessionID {
		h.leave(v, from)
		h.join(v, sessionID)
		h.watching[v] = sessionID
		h.logger.Debug("viewer switched session", "viewer_id", v.id, "from", from, "to", sessionID)
	}

	v.push(newSessionUpdate(sessionID, ReasonSwitched))
}

// broadcastMessage sends a message to the viewers of its session
func (h *Hub) broadcastMessage(message *Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	data, err := json.Marshal(message)
	if err != nil {
		h.logger.Error("failed to marshal message", "error", err)
		return
	}

	for v := range h.sessions[message.SessionID] {
		select {
		case v.send <- data:
		default:
			h.logger.Warn("viewer buffer full, skipping", "viewer_id", v.id)
		}
	}
}

func newSessionUpdate(sessionID, reason string) *Message {
	return &Message{
		Type:      MessageTypeSessionUpdated,
		SessionID: sessionID,
		Data:      SessionUpdate{SessionID: sessionID, Reason: reason},
		Timestamp: time.Now(),
	}
}

// Stop stops the hub
func (h *Hub) Stop() {
	h.cancel()
}

// BroadcastSessionUpdate notifies viewers of a session that it changed.
// Delivery is best effort; the update is dropped when the hub is saturated.
func (h *Hub) BroadcastSessionUpdate(sessionID, reason string) {
	select {
	case h.broadcast <- newSessionUpdate(sessionID, reason):
	default:
		h.logger.Warn("broadcast channel full, dropping message", "session_id", sessionID)
	}
}

// Register adds a viewer to the hub, watching its initial session
func (h *Hub) Register(v *Viewer) {
	h.register <- v
}

// Unregister removes a viewer from the hub
func (h *Hub) Unregister(v *Viewer) {
	h.unregister <- v
}

// Watch moves a viewer to another session
func (h *Hub) Watch(v *Viewer, sessionID string) {
	h.watch <- watchRequest{viewer: v, sessionID: sessionID}
}

// ViewerCount returns the number of viewers of a session
func (h *Hub) ViewerCount(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions[sessionID])
}

// TotalConnections returns the total number of connected viewers
func (h *Hub) TotalConnections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.watching)
}
