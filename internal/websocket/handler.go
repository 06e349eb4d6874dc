package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/real-rm/marketchat/internal/auth"
	"github.com/real-rm/marketchat/internal/event"
	"github.com/real-rm/marketchat/internal/metrics"
	"github.com/real-rm/marketchat/internal/ratelimit"
	"github.com/real-rm/marketchat/internal/util"
)

var (
	// upgrader configures the WebSocket upgrade
	// SECURITY: In production, this service MUST be deployed behind a reverse proxy
	// that terminates TLS, ensuring all connections use WSS.
	// The CheckOrigin function is configured per-handler to validate allowed origins.
	upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		// CheckOrigin is set per-handler instance
	}

	// Connection lifecycle timeouts
	// pongWait is the time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// pingPeriod is the interval for sending ping messages (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// writeWait is the time allowed to write a message to the peer
	writeWait = 10 * time.Second
)

// EventRouter dispatches decoded client events and the transport-level
// disconnect signal.
type EventRouter interface {
	HandleEvent(conn *Connection, env *event.Envelope)
	HandleDisconnect(conn *Connection)
}

// Handler manages WebSocket connections and upgrades
type Handler struct {
	verifier       *auth.Verifier
	router         EventRouter
	logger         zerolog.Logger
	connLimiter    *ratelimit.ConnectionLimiter
	allowedOrigins map[string]bool
	maxMessageSize int64

	// connections tracks active connections by user ID and connection ID
	connections map[string]map[string]*Connection
	mu          sync.RWMutex
}

// NewHandler creates a new WebSocket handler
func NewHandler(verifier *auth.Verifier, router EventRouter, logger zerolog.Logger, maxMessageSize int64, maxConnsPerUser int) *Handler {
	return &Handler{
		verifier:       verifier,
		router:         router,
		logger:         logger.With().Str("component", "websocket").Logger(),
		connLimiter:    ratelimit.NewConnectionLimiter(maxConnsPerUser),
		allowedOrigins: make(map[string]bool),
		maxMessageSize: maxMessageSize,
		connections:    make(map[string]map[string]*Connection),
	}
}

// SetAllowedOrigins configures the allowed origins for WebSocket connections
// If no origins are set, all origins are allowed (development mode)
func (h *Handler) SetAllowedOrigins(origins []string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.allowedOrigins = make(map[string]bool)
	for _, origin := range origins {
		h.allowedOrigins[origin] = true
	}

	h.logger.Info().
		Int("count", len(origins)).
		Strs("origins", origins).
		Msg("Configured allowed origins")
}

// checkOrigin validates the origin of a WebSocket upgrade request
func (h *Handler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")

	h.mu.RLock()
	defer h.mu.RUnlock()

	// If no origins configured, allow all (development mode)
	if len(h.allowedOrigins) == 0 {
		return true
	}

	if h.allowedOrigins[origin] {
		return true
	}

	h.logger.Warn().
		Str("origin", origin).
		Msg("Origin not allowed")
	return false
}

// handshakeFromRequest assembles the credential material from an upgrade
// request. The explicit paths (Authorization header, token query parameter)
// fill the Token field; the raw Cookie header rides along for the fallback
// scan, because the token cookie is HttpOnly and browser clients cannot
// always read it back.
func handshakeFromRequest(r *http.Request) auth.Handshake {
	h := auth.Handshake{
		Cookie: r.Header.Get("Cookie"),
	}

	// No else needed: optional operation (query parameter fallback below)
	if token, err := util.ExtractBearerToken(r.Header.Get("Authorization")); err == nil {
		h.Token = token
		return h
	}

	h.Token = r.URL.Query().Get("token")
	return h
}

// HandleWebSocket handles HTTP to WebSocket upgrade requests
// It performs the following steps:
// 1. Extract the credential from the handshake (explicit field or cookie header)
// 2. Verify the credential and decode the Identity
// 3. Upgrade the HTTP connection to WebSocket
// 4. Create a Connection session and start its pumps
//
// Authentication failure refuses the connection before any event handler
// attaches; no partially authenticated session ever exists.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	identity, err := h.verifier.Authenticate(handshakeFromRequest(r))
	// No else needed: early return pattern (guard clause)
	if err != nil {
		// No else needed: conditional response code (missing vs rejected credential)
		if errors.Is(err, auth.ErrMissingCredential) {
			h.logger.Warn().Msg("Socket auth failed: credential missing")
			http.Error(w, "Missing authentication token", http.StatusUnauthorized)
			return
		}

		h.logger.Warn().
			Err(err).
			Msg("Socket auth failed: credential rejected")
		http.Error(w, "Authentication failed", http.StatusUnauthorized)
		return
	}

	// Check connection limit
	// No else needed: early return pattern (guard clause)
	if !h.connLimiter.Allow(identity.ID) {
		h.logger.Warn().
			Str("user_id", identity.ID).
			Msg("Connection limit exceeded")
		http.Error(w, "Connection limit exceeded", http.StatusTooManyRequests)
		return
	}

	// Upgrade HTTP connection to WebSocket
	localUpgrader := upgrader
	localUpgrader.CheckOrigin = h.checkOrigin

	wsConn, err := localUpgrader.Upgrade(w, r, nil)
	// No else needed: early return pattern (guard clause)
	if err != nil {
		h.connLimiter.Release(identity.ID)
		util.LogError(h.logger, "websocket", "upgrade connection", err)
		return
	}

	// Set read limit to prevent memory exhaustion from oversized frames
	wsConn.SetReadLimit(h.maxMessageSize)

	connection := NewConnection(identity)
	connection.conn = wsConn

	h.registerConnection(connection)

	h.logger.Info().
		Str("user_id", identity.ID).
		Str("email", identity.Email).
		Bool("is_admin", identity.IsAdmin).
		Msg("WebSocket connection established")

	// Start read and write pumps in goroutines with panic recovery
	util.SafeGo(h.logger, "readPump", func() { connection.readPump(h) })
	util.SafeGo(h.logger, "writePump", func() { connection.writePump() })
}

// registerConnection adds a connection to the active connections map
func (h *Handler) registerConnection(conn *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()

	// No else needed: initialize if needed (lazy initialization)
	if h.connections[conn.Identity.ID] == nil {
		h.connections[conn.Identity.ID] = make(map[string]*Connection)
	}

	h.connections[conn.Identity.ID][conn.ConnectionID] = conn

	metrics.WebSocketConnections.Inc()
}

// RegisterConnectionForTest registers a connection for testing purposes
// This should only be used in tests
func (h *Handler) RegisterConnectionForTest(conn *Connection) {
	h.registerConnection(conn)
}

// unregisterConnection removes a connection from the active connections map
func (h *Handler) unregisterConnection(conn *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if userConns, ok := h.connections[conn.Identity.ID]; ok {
		if _, exists := userConns[conn.ConnectionID]; exists {
			delete(userConns, conn.ConnectionID)
			conn.closing.Store(true)
			close(conn.send)

			h.connLimiter.Release(conn.Identity.ID)

			metrics.WebSocketConnections.Dec()

			// If no more connections for this user, remove the user entry
			if len(userConns) == 0 {
				delete(h.connections, conn.Identity.ID)
			}
		}
	}
}

// ShutdownWithContext gracefully closes all active WebSocket connections.
// It respects the context deadline and will force shutdown if the deadline is exceeded.
func (h *Handler) ShutdownWithContext(ctx context.Context) error {
	h.logger.Info().Msg("Shutting down WebSocket handler, closing all connections")

	h.mu.Lock()
	connections := make([]*Connection, 0)
	for _, userConns := range h.connections {
		for _, conn := range userConns {
			connections = append(connections, conn)
		}
	}
	h.mu.Unlock()

	// Close connections in parallel with context deadline
	var wg sync.WaitGroup
	for _, conn := range connections {
		wg.Add(1)
		go func(c *Connection) {
			defer wg.Done()

			c.mu.Lock()
			if c.conn != nil {
				c.conn.SetWriteDeadline(time.Now().Add(writeWait))
				c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "Server shutting down"))
			}
			c.mu.Unlock()

			c.Close()
		}(conn)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		h.logger.Info().Msg("All WebSocket connections closed gracefully")
		return nil
	case <-ctx.Done():
		h.logger.Warn().
			Int("remaining_connections", len(connections)).
			Msg("Shutdown deadline exceeded, forcing closure")
		return ctx.Err()
	}
}

// readPump reads frames from the WebSocket connection and dispatches
// decoded envelopes to the router. Malformed frames are logged and dropped;
// the fire-and-forget protocol never sends error replies, and a single bad
// event never tears down the connection.
//
// On exit the router's disconnect handler runs exactly once, giving the
// presence layer its one chance to broadcast offline for every joined room.
func (c *Connection) readPump(h *Handler) {
	defer func() {
		h.logger.Info().
			Str("user_id", c.Identity.ID).
			Str("connection_id", c.ConnectionID).
			Msg("WebSocket connection closed")

		// No else needed: router is optional only in tests
		if h.router != nil {
			h.router.HandleDisconnect(c)
		}

		h.unregisterConnection(c)
		c.Close()
	}()

	// Set initial read deadline
	c.conn.SetReadDeadline(time.Now().Add(pongWait))

	// Configure pong handler to reset read deadline
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, rawMessage, err := c.conn.ReadMessage()
		// No else needed: error handling with break (exits loop)
		if err != nil {
			// No else needed: specific error handling (logs and continues to break)
			if errors.Is(err, websocket.ErrReadLimit) {
				h.logger.Warn().
					Str("user_id", c.Identity.ID).
					Str("connection_id", c.ConnectionID).
					Int64("limit", h.maxMessageSize).
					Msg("WebSocket frame size limit exceeded")
			} else if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				util.LogError(h.logger, "websocket", "handle unexpected close", err)
			}
			break
		}

		var env event.Envelope
		// No else needed: error handling with continue (skips to next iteration)
		if err := json.Unmarshal(rawMessage, &env); err != nil {
			h.logger.Warn().
				Str("user_id", c.Identity.ID).
				Str("connection_id", c.ConnectionID).
				Err(err).
				Msg("Failed to parse event frame")

			metrics.EventErrors.Inc()
			continue
		}

		// No else needed: error handling with continue (skips to next iteration)
		if env.Event == "" {
			metrics.EventErrors.Inc()
			continue
		}

		metrics.EventsReceived.WithLabelValues(string(env.Event)).Inc()

		// No else needed: router is optional only in tests
		if h.router != nil {
			h.router.HandleEvent(c, &env)
		}
	}
}

// writePump writes frames to the WebSocket connection
// It handles:
// - Sending periodic ping messages for heartbeat
// - Writing frames from the send channel
// - Setting write deadlines
// - Graceful connection closure
func (c *Connection) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))

			// No else needed: channel closed handling (sends close and returns)
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			// Write each event as a separate WebSocket frame
			// This ensures proper JSON parsing on the client side
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}

			metrics.EventsSent.Inc()

		case <-ticker.C:
			// No else needed: error handling with return (exits function)
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
