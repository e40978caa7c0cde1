package websocket

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	// viewers only send small control frames
	maxControlSize = 512
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  512,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// the game page is served from any host the API is reachable on
		return true
	},
}

// Viewer is a game page waiting for reload notices. It never edits a
// session; the only frames it sends are watch and ping controls.
type Viewer struct {
	id      string
	initial string
	hub     *Hub
	conn    *websocket.Conn
	send    chan []byte
	logger  *slog.Logger
}

// ControlMessage is a frame sent by a viewer
type ControlMessage struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id,omitempty"`
}

// NewViewer creates a viewer that starts out watching sessionID
func NewViewer(hub *Hub, conn *websocket.Conn, sessionID string, logger *slog.Logger) *Viewer {
	return &Viewer{
		id:      uuid.NewString(),
		initial: sessionID,
		hub:     hub,
		conn:    conn,
		send:    make(chan []byte, 32),
		logger:  logger,
	}
}

// listen reads control frames until the connection drops
func (v *Viewer) listen() {
	defer func() {
		v.hub.Unregister(v)
		v.conn.Close()
	}()

	v.conn.SetReadLimit(maxControlSize)
	v.conn.SetReadDeadline(time.Now().Add(pongWait))
	v.conn.SetPongHandler(func(string) error {
		return v.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var ctl ControlMessage
		if err := v.conn.ReadJSON(&ctl); err != nil {
			var syntaxErr *json.SyntaxError
			var typeErr *json.UnmarshalTypeError
			if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
				v.pushError("invalid control message")
				continue
			}
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				v.logger.Warn("viewer connection error", "viewer_id", v.id, "error", err)
			}
			return
		}
		v.control(ctl)
	}
}

func (v *Viewer) control(ctl ControlMessage) {
	switch ctl.Type {
	case MessageTypeWatch:
		if ctl.SessionID == "" {
			v.pushError("session_id required")
			return
		}
		v.hub.Watch(v, ctl.SessionID)
	case MessageTypePing:
		v.push(&Message{Type: MessageTypePong, Timestamp: time.Now()})
	default:
		v.pushError("unsupported message type " + ctl.Type)
	}
}

// deliver writes queued notices and keeps the connection alive with pings
func (v *Viewer) deliver() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		v.conn.Close()
	}()

	for {
		select {
		case data, ok := <-v.send:
			v.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				v.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := v.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			v.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := v.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// push queues a message without blocking; a full queue drops it
func (v *Viewer) push(msg *Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		v.logger.Error("failed to marshal message", "error", err)
		return
	}
	select {
	case v.send <- data:
	default:
		v.logger.Warn("viewer buffer full, skipping", "viewer_id", v.id, "type", msg.Type)
	}
}

func (v *Viewer) pushError(reason string) {
	v.push(&Message{
		Type:      MessageTypeError,
		Data:      map[string]string{"error": reason},
		Timestamp: time.Now(),
	})
}

// ServeWs upgrades a game page connection into a viewer of sessionID
func ServeWs(hub *Hub, logger *slog.Logger, w http.ResponseWriter, r *http.Request, sessionID string) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("websocket upgrade failed", "error", err)
		return
	}

	v := NewViewer(hub, conn, sessionID, logger)
	hub.Register(v)

	go v.deliver()
	go v.listen()

	logger.Debug("new viewer", "viewer_id", v.id, "session_id", sessionID)
}
