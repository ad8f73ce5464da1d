// Package socket is the bidirectional transport: one WebSocket per live connection.
package socket

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"chat-hub/auth"
	"chat-hub/contract"
	"chat-hub/domain/chat"
	"chat-hub/domain/event"
	"chat-hub/sink"

	"github.com/gorilla/websocket"
)

const (
	writeWait       = 10 * time.Second
	defaultPongWait = 60 * time.Second
	maxInboundBytes = 4096
)

type Connector interface {
	Connect(ctx context.Context, conn contract.LiveConnection) error
	Disconnect(connectionID string)
}

type Handler struct {
	log        *slog.Logger
	connector  Connector
	presence   contract.PresenceTracker
	bufferSize int
	pongWait   time.Duration
	upgrader   websocket.Upgrader
}

// NewHandler expects to sit behind auth.Middleware. pongWait must exceed the keep-alive interval.
func NewHandler(log *slog.Logger, connector Connector, presence contract.PresenceTracker, bufferSize int, pongWait time.Duration) *Handler {
	if pongWait <= 0 {
		pongWait = defaultPongWait
	}
	return &Handler{
		log:        log,
		connector:  connector,
		presence:   presence,
		bufferSize: bufferSize,
		pongWait:   pongWait,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Tokens travel in the query string, any origin holding one is accepted
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// ServeHTTP blocks for the whole life of the socket.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserID(r.Context())
	if !ok {
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
		return
	}
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug("WebSocket upgrade failed", "user_id", userID, "error", err)
		return
	}

	conn := sink.NewConnection(userID, h.bufferSize)
	go h.writePump(ws, conn)

	ctx := r.Context()
	if err := h.connector.Connect(ctx, conn); err != nil {
		h.log.Warn("Unable to register socket", "user_id", userID, "error", err)
		conn.Close()
		return
	}
	h.readPump(ctx, ws, conn)
	h.connector.Disconnect(conn.ID())
}

// readPump owns every read. It returns on close, on error, or when no pong came back in time.
func (h *Handler) readPump(ctx context.Context, ws *websocket.Conn, conn *sink.Connection) {
	ws.SetReadLimit(maxInboundBytes)
	_ = ws.SetReadDeadline(time.Now().Add(h.pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(h.pongWait))
	})
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				h.log.Debug("Socket read failed", "connection_id", conn.ID(), "error", err)
			}
			return
		}
		_ = ws.SetReadDeadline(time.Now().Add(h.pongWait))
		h.handleInbound(ctx, conn, data)
	}
}

// writePump is the only writer of the socket, as gorilla requires.
func (h *Handler) writePump(ws *websocket.Conn, conn *sink.Connection) {
	defer ws.Close()
	for {
		select {
		case out := <-conn.Queue():
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			var err error
			if out.Ping {
				err = ws.WriteMessage(websocket.PingMessage, nil)
			} else {
				err = ws.WriteMessage(websocket.TextMessage, out.Frame)
			}
			if err != nil {
				h.log.Debug("Socket write failed", "connection_id", conn.ID(), "error", err)
				// The next delivery attempt fails and the registry prunes the connection
				conn.Close()
				return
			}
		case <-conn.Done():
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			_ = ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

type presenceFrame struct {
	Status string `json:"status"`
}

// handleInbound accepts presence frames only; clients write everything else through the HTTP API.
func (h *Handler) handleInbound(ctx context.Context, conn *sink.Connection, data []byte) {
	env, err := event.Decode(data)
	if err != nil {
		h.log.Debug("Malformed inbound frame", "connection_id", conn.ID(), "error", err)
		return
	}
	if env.Type != event.PresenceTag {
		h.log.Debug("Ignoring inbound frame", "connection_id", conn.ID(), "type", env.Type)
		return
	}
	var frame presenceFrame
	if err := json.Unmarshal(env.Data, &frame); err != nil {
		h.log.Debug("Malformed presence frame", "connection_id", conn.ID(), "error", err)
		return
	}
	if err := h.presence.SetStatus(ctx, conn.UserID(), chat.SetStatusCommand{Status: frame.Status, ConnectionID: conn.ID()}); err != nil {
		h.log.Debug("Presence change refused", "connection_id", conn.ID(), "status", frame.Status, "error", err)
	}
}
