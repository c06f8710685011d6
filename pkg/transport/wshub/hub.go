// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

// Package wshub is the websocket fan-out layer. It keeps one connection
// per player, tracks room membership, and delivers events as JSON frames
// through per-connection buffered channels so a slow client never blocks
// game logic.
package wshub

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	sendBufferSize = 256
	maxMessageSize = 64 * 1024
)

// Frame is the wire envelope for every event pushed to a client.
type Frame struct {
	Event   string      `json:"event"`
	Payload interface{} `json:"payload,omitempty"`
}

// Inbound is a message received from a client, handed to the hub's
// message handler together with the sender.
type Inbound struct {
	PlayerID string
	Event    string          `json:"event"`
	Payload  json.RawMessage `json:"payload,omitempty"`
}

// Hub owns all live websocket connections. It implements notify.Notifier.
type Hub struct {
	log      *logrus.Logger
	upgrader websocket.Upgrader

	// OnMessage receives every parsed client frame. Optional.
	OnMessage func(msg Inbound)
	// OnDisconnect fires after a player's connection is torn down and a
	// newer connection has not replaced it. Optional.
	OnDisconnect func(playerID string)

	mu    sync.RWMutex
	conns map[string]*connection         // playerID -> connection
	rooms map[string]map[string]struct{} // roomID -> playerIDs
}

type connection struct {
	playerID  string
	ws        *websocket.Conn
	send      chan []byte
	closeOnce sync.Once
}

func (c *connection) shutdown() {
	c.closeOnce.Do(func() {
		close(c.send)
	})
}

func NewHub(log *logrus.Logger) *Hub {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Hub{
		log: log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		conns: make(map[string]*connection),
		rooms: make(map[string]map[string]struct{}),
	}
}

// ServeWS upgrades the request and runs the connection pumps. The player
// id comes from the player_id query parameter; a second connection for
// the same player replaces the first.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	playerID := r.URL.Query().Get("player_id")
	if playerID == "" {
		http.Error(w, "missing player_id", http.StatusBadRequest)
		return
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Warn("websocket upgrade failed")
		return
	}

	conn := &connection{
		playerID: playerID,
		ws:       ws,
		send:     make(chan []byte, sendBufferSize),
	}
	h.register(conn)

	h.log.WithField("playerID", playerID).Info("websocket connected")

	go h.writePump(conn)
	go h.readPump(conn)
}

func (h *Hub) register(conn *connection) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if old, ok := h.conns[conn.playerID]; ok {
		old.shutdown()
		old.ws.Close()
	}
	h.conns[conn.playerID] = conn
}

// unregister removes the connection if it is still the player's current
// one and reports whether it was.
func (h *Hub) unregister(conn *connection) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	current, ok := h.conns[conn.playerID]
	if !ok || current != conn {
		return false
	}
	delete(h.conns, conn.playerID)
	conn.shutdown()
	for roomID, members := range h.rooms {
		delete(members, conn.playerID)
		if len(members) == 0 {
			delete(h.rooms, roomID)
		}
	}
	return true
}

// JoinRoom subscribes the player to a room's broadcasts.
func (h *Hub) JoinRoom(roomID, playerID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.rooms[roomID] == nil {
		h.rooms[roomID] = make(map[string]struct{})
	}
	h.rooms[roomID][playerID] = struct{}{}
}

// LeaveRoom unsubscribes the player from a room.
func (h *Hub) LeaveRoom(roomID, playerID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if members, ok := h.rooms[roomID]; ok {
		delete(members, playerID)
		if len(members) == 0 {
			delete(h.rooms, roomID)
		}
	}
}

// SendToUser delivers an event to one player's connection. Unknown or
// disconnected players are dropped silently.
func (h *Hub) SendToUser(playerID, event string, payload interface{}) {
	data, err := json.Marshal(Frame{Event: event, Payload: payload})
	if err != nil {
		h.log.WithError(err).WithField("event", event).Error("failed to marshal frame")
		return
	}

	h.mu.RLock()
	conn, ok := h.conns[playerID]
	h.mu.RUnlock()
	if !ok {
		return
	}
	h.push(conn, data, event)
}

// SendToRoom broadcasts an event to every connected member of a room.
func (h *Hub) SendToRoom(roomID, event string, payload interface{}) {
	data, err := json.Marshal(Frame{Event: event, Payload: payload})
	if err != nil {
		h.log.WithError(err).WithField("event", event).Error("failed to marshal frame")
		return
	}

	h.mu.RLock()
	targets := make([]*connection, 0, len(h.rooms[roomID]))
	for playerID := range h.rooms[roomID] {
		if conn, ok := h.conns[playerID]; ok {
			targets = append(targets, conn)
		}
	}
	h.mu.RUnlock()

	for _, conn := range targets {
		h.push(conn, data, event)
	}
}

// push hands a frame to the connection's write pump without blocking. A
// full buffer means the client cannot keep up, so the frame is dropped.
func (h *Hub) push(conn *connection, data []byte, event string) {
	select {
	case conn.send <- data:
	default:
		h.log.WithField("playerID", conn.playerID).
			WithField("event", event).Warn("send buffer full, dropping frame")
	}
}

func (h *Hub) readPump(conn *connection) {
	defer func() {
		wasCurrent := h.unregister(conn)
		conn.ws.Close()
		if wasCurrent {
			h.log.WithField("playerID", conn.playerID).Info("websocket disconnected")
			if h.OnDisconnect != nil {
				h.OnDisconnect(conn.playerID)
			}
		}
	}()

	conn.ws.SetReadLimit(maxMessageSize)
	_ = conn.ws.SetReadDeadline(time.Now().Add(pongWait))
	conn.ws.SetPongHandler(func(string) error {
		return conn.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := conn.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.WithError(err).WithField("playerID", conn.playerID).Debug("websocket read error")
			}
			return
		}

		var msg Inbound
		if err := json.Unmarshal(raw, &msg); err != nil {
			h.log.WithError(err).WithField("playerID", conn.playerID).Debug("invalid client frame")
			continue
		}
		msg.PlayerID = conn.playerID
		if h.OnMessage != nil {
			h.OnMessage(msg)
		}
	}
}

func (h *Hub) writePump(conn *connection) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.ws.Close()
	}()

	for {
		select {
		case data, ok := <-conn.send:
			_ = conn.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.ws.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := conn.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Connected reports whether the player currently has a live connection.
func (h *Hub) Connected(playerID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.conns[playerID]
	return ok
}

// ConnectionCount returns the number of live connections.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// Close tears down every connection.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, conn := range h.conns {
		conn.shutdown()
		conn.ws.Close()
	}
	h.conns = make(map[string]*connection)
	h.rooms = make(map[string]map[string]struct{})
}
