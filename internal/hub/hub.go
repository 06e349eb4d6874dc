// Package hub maintains the room membership registry: which live
// connections have joined which conversation rooms. It is the single
// fan-out point for conversation-scoped broadcasts.
package hub

import (
	"sync"

	"github.com/rs/zerolog"

	ws "github.com/real-rm/marketchat/internal/websocket"
)

// Hub tracks conversation room membership for active connections
type Hub struct {
	logger zerolog.Logger

	// rooms maps conversation ID to the set of member connections
	rooms map[string]map[string]*ws.Connection
	mu    sync.RWMutex
}

// New creates a new Hub
func New(logger zerolog.Logger) *Hub {
	return &Hub{
		logger: logger.With().Str("component", "hub").Logger(),
		rooms:  make(map[string]map[string]*ws.Connection),
	}
}

// Join adds a connection to a conversation room
func (h *Hub) Join(conversationID string, conn *ws.Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()

	// No else needed: initialize if needed (lazy initialization)
	if h.rooms[conversationID] == nil {
		h.rooms[conversationID] = make(map[string]*ws.Connection)
	}

	h.rooms[conversationID][conn.ConnectionID] = conn
}

// Leave removes a connection from a conversation room
func (h *Hub) Leave(conversationID string, conn *ws.Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()

	members, ok := h.rooms[conversationID]
	// No else needed: early return pattern (guard clause)
	if !ok {
		return
	}

	delete(members, conn.ConnectionID)

	// No else needed: cleanup of empty room
	if len(members) == 0 {
		delete(h.rooms, conversationID)
	}
}

// LeaveAll removes a connection from every room it has joined
func (h *Hub) LeaveAll(conn *ws.Connection) {
	for _, conversationID := range conn.Rooms() {
		h.Leave(conversationID, conn)
	}
}

// Members returns a snapshot of the connections currently in a room
func (h *Hub) Members(conversationID string) []*ws.Connection {
	h.mu.RLock()
	defer h.mu.RUnlock()

	members := make([]*ws.Connection, 0, len(h.rooms[conversationID]))
	for _, conn := range h.rooms[conversationID] {
		members = append(members, conn)
	}
	return members
}

// Broadcast sends a frame to every connection in a conversation room
func (h *Hub) Broadcast(conversationID string, frame []byte) {
	for _, conn := range h.Members(conversationID) {
		// Dropped frames are acceptable: slow consumers must not block the room
		if !conn.SafeSend(frame) {
			h.logger.Warn().
				Str("conversation_id", conversationID).
				Str("user_id", conn.Identity.ID).
				Msg("Dropped frame for slow or closing connection")
		}
	}
}

// BroadcastExcept sends a frame to every room member except the given connection
func (h *Hub) BroadcastExcept(conversationID string, except *ws.Connection, frame []byte) {
	for _, conn := range h.Members(conversationID) {
		// No else needed: skip the excluded connection
		if conn.ConnectionID == except.ConnectionID {
			continue
		}

		if !conn.SafeSend(frame) {
			h.logger.Warn().
				Str("conversation_id", conversationID).
				Str("user_id", conn.Identity.ID).
				Msg("Dropped frame for slow or closing connection")
		}
	}
}
