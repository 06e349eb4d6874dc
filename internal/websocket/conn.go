// Package websocket provides WebSocket connection handling with JWT authentication.
// It implements HTTP to WebSocket upgrade, connection management, and the
// per-connection session state: the authenticated identity and the set of
// joined conversation rooms.
package websocket

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/real-rm/marketchat/internal/auth"
)

// Connection represents an active WebSocket connection with its session state.
// A session is created on successful authentication and destroyed on
// disconnect; a reconnecting client gets an entirely new session and must
// re-join its rooms.
type Connection struct {
	// conn is the underlying WebSocket connection
	conn *websocket.Conn

	// ConnectionID is a unique identifier for this connection
	ConnectionID string

	// Identity is the authenticated principal, immutable for the connection's lifetime
	Identity auth.Identity

	// joinedRooms is the set of conversation ids this session has joined
	joinedRooms map[string]struct{}

	// send is a buffered channel for outbound frames
	send chan []byte

	// closing indicates the connection is being torn down.
	// Set before closing the send channel to prevent send-on-closed-channel panics.
	closing atomic.Bool

	// mu protects concurrent access to the session state
	mu sync.RWMutex
}

// NewConnection creates a Connection without an underlying socket.
// This is primarily used in tests to create mock connections.
func NewConnection(identity auth.Identity) *Connection {
	return &Connection{
		ConnectionID: uuid.NewString(),
		Identity:     identity,
		joinedRooms:  make(map[string]struct{}),
		send:         make(chan []byte, 256),
	}
}

// JoinRoom records that this session has joined the given conversation.
func (c *Connection) JoinRoom(conversationID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.joinedRooms[conversationID] = struct{}{}
}

// HasJoined reports whether this session has joined the given conversation.
func (c *Connection) HasJoined(conversationID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.joinedRooms[conversationID]
	return ok
}

// Rooms returns a snapshot of the conversations this session has joined.
func (c *Connection) Rooms() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	rooms := make([]string, 0, len(c.joinedRooms))
	for id := range c.joinedRooms {
		rooms = append(rooms, id)
	}
	return rooms
}

// Close gracefully closes the WebSocket connection and cleans up resources
func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// SetClosing marks the connection as closing.
// After this call, SafeSend will return false.
func (c *Connection) SetClosing() {
	c.closing.Store(true)
}

// SafeSend attempts to send a frame to the connection's send channel.
// Returns false if the connection is closing or the channel is full.
// This is the preferred method for sending data to avoid panics on closed channels.
func (c *Connection) SafeSend(data []byte) bool {
	if c.closing.Load() {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// ReceiveForTest returns the send channel as a receive channel for testing purposes
// This should only be used in tests to verify frames sent to the connection
func (c *Connection) ReceiveForTest() <-chan []byte {
	return c.send
}
