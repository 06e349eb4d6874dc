// Package constants provides centralized constant definitions for the marketchat application.
// This eliminates magic numbers and strings throughout the codebase.
package constants

import "time"

// Timeouts for various operations
const (
	DefaultContextTimeout = 10 * time.Second // Standard database operations
	MessageOpTimeout      = 5 * time.Second  // Message insert and status updates
	LongContextTimeout    = 30 * time.Second // Index creation and bulk updates
	HealthCheckTimeout    = 2 * time.Second  // Health check operations
	ShutdownTimeout       = 10 * time.Second // Graceful shutdown deadline
)

// Sizes and Limits
const (
	DefaultMaxMessageSize  = 65536 // 64KB for WebSocket event frames
	DefaultMaxConnsPerUser = 10    // Concurrent sockets per authenticated user
	MaxRetryAttempts       = 3     // Maximum retry attempts for transient errors
	MinJWTSecretLength     = 32    // Minimum JWT secret length in characters
	MaxSeenBatchSize       = 1000  // Cap on messages advanced by a single seen ack
)

// HTTP Server Timeouts (for standalone server mode)
const (
	HTTPReadTimeout  = 15 * time.Second  // Maximum time to read the entire request
	HTTPWriteTimeout = 60 * time.Second  // Maximum time to write the response
	HTTPIdleTimeout  = 120 * time.Second // Maximum time to keep idle connections alive
)

// HTTP Status Codes (avoiding net/http import in handlers for consistency)
const (
	StatusOK                 = 200
	StatusTooManyRequests    = 429
	StatusServiceUnavailable = 503
)

// Rate limits
const (
	// PublicEndpointRate caps per-IP requests per minute on health and
	// metrics endpoints.
	PublicEndpointRate = 120
)

// Durations for retry backoff
const (
	InitialRetryDelay = 100 * time.Millisecond
	MaxRetryDelay     = 2 * time.Second
	RetryMultiplier   = 2.0
)

// Credential extraction
const (
	// CredentialCookieName is the cookie field scanned for a token when no
	// explicit credential is supplied with the handshake.
	CredentialCookieName = "token"
)

// MongoDB collection names
const (
	CollConversations = "chatconversations"
	CollMessages      = "chatmessages"
	CollUsers         = "users"
)

// MongoDB field names
// These MUST match the documents written by the marketplace REST layer.
const (
	MongoFieldID           = "_id"
	MongoFieldBuyer        = "buyer"
	MongoFieldAdmin        = "admin"
	MongoFieldLastMessage  = "lastMessage"
	MongoFieldConversation = "conversation"
	MongoFieldSender       = "sender"
	MongoFieldSenderRole   = "senderRole"
	MongoFieldBody         = "message"
	MongoFieldStatus       = "status"
	MongoFieldTimestamp    = "ts"
	MongoFieldEmail        = "email"
	MongoFieldName         = "name"
	MongoFieldIsAdmin      = "isAdmin"
)

// MongoDB index names
const (
	IndexConversationSender = "idx_conversation_sender"
	IndexConversationTime   = "idx_conversation_ts"
	IndexConversationBuyer  = "idx_buyer"
)

// Default Configuration Values
const (
	DefaultMongoURI   = "mongodb://localhost:27017"
	DefaultDatabase   = "marketplace"
	DefaultPort       = 8080
	DefaultPathPrefix = "/marketchat"
	DefaultLogLevel   = "info"
)

// WeakSecrets contains common weak JWT secrets that should be rejected
var WeakSecrets = []string{
	"secret",
	"password",
	"changeme",
	"default",
	"example",
	"test",
	"jwt_secret",
	"your-secret",
}
