// Package storage manages chat persistence in MongoDB. It exposes narrow
// read/write access to the conversation, message, and user collections that
// the marketplace REST layer owns; nothing here creates conversations or
// users, and nothing is ever deleted.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/real-rm/marketchat/internal/chat"
	"github.com/real-rm/marketchat/internal/constants"
	chaterrors "github.com/real-rm/marketchat/internal/errors"
	"github.com/real-rm/marketchat/internal/metrics"
)

// Sentinel store errors, typed so the event layer can classify faults by
// code when it drops a frame. errors.Is matching works on value identity.
var (
	// ErrInvalidID is returned when a record identifier is empty
	ErrInvalidID = chaterrors.NewValidationError(chaterrors.ErrCodeMissingField, "identifier cannot be empty", nil)
	// ErrConversationNotFound is returned when a conversation is not found
	ErrConversationNotFound = chaterrors.NewNotFoundError("conversation not found")
	// ErrMessageNotFound is returned when a message is not found
	ErrMessageNotFound = chaterrors.NewNotFoundError("message not found")
	// ErrUserNotFound is returned when a user is not found
	ErrUserNotFound = chaterrors.NewNotFoundError("user not found")
	// ErrNilMessage is returned when a nil message is passed to Insert
	ErrNilMessage = chaterrors.NewValidationError(chaterrors.ErrCodeInvalidFormat, "message cannot be nil", nil)
)

// retryConfig holds configuration for MongoDB retry logic
type retryConfig struct {
	maxAttempts  int
	initialDelay time.Duration
	maxDelay     time.Duration
	multiplier   float64
}

// defaultRetryConfig provides default retry configuration
var defaultRetryConfig = retryConfig{
	maxAttempts:  constants.MaxRetryAttempts,
	initialDelay: constants.InitialRetryDelay,
	maxDelay:     constants.MaxRetryDelay,
	multiplier:   constants.RetryMultiplier,
}

// Store provides access to the chat collections.
type Store struct {
	conversations *mongo.Collection
	messages      *mongo.Collection
	users         *mongo.Collection
	logger        zerolog.Logger
}

// NewStore creates a store over the given MongoDB database.
func NewStore(db *mongo.Database, logger zerolog.Logger) *Store {
	return &Store{
		conversations: db.Collection(constants.CollConversations),
		messages:      db.Collection(constants.CollMessages),
		users:         db.Collection(constants.CollUsers),
		logger:        logger.With().Str("component", "storage").Logger(),
	}
}

// conversationDocument is the persisted shape of a conversation.
type conversationDocument struct {
	ID          string `bson:"_id"`
	Buyer       string `bson:"buyer"`
	Admin       string `bson:"admin,omitempty"`
	LastMessage string `bson:"lastMessage,omitempty"`
}

// messageDocument is the persisted shape of a chat message. Status is
// omitempty because documents written before delivery tracking carry none.
type messageDocument struct {
	ID           string    `bson:"_id"`
	Conversation string    `bson:"conversation"`
	Sender       string    `bson:"sender"`
	SenderRole   string    `bson:"senderRole"`
	Body         string    `bson:"message"`
	Status       string    `bson:"status,omitempty"`
	Timestamp    time.Time `bson:"ts"`
}

// idDocument is a projection carrying only a record id.
type idDocument struct {
	ID string `bson:"_id"`
}

// userDocument is the subset of a marketplace user record read here.
// The password hash and other credential fields are never projected.
type userDocument struct {
	ID      string `bson:"_id"`
	Email   string `bson:"email,omitempty"`
	Name    string `bson:"name,omitempty"`
	IsAdmin bool   `bson:"isAdmin,omitempty"`
}

func (d *conversationDocument) toEntity() *chat.Conversation {
	return &chat.Conversation{
		ID:          d.ID,
		BuyerID:     d.Buyer,
		AdminID:     d.Admin,
		LastMessage: d.LastMessage,
	}
}

func (d *messageDocument) toEntity() *chat.Message {
	return &chat.Message{
		ID:             d.ID,
		ConversationID: d.Conversation,
		SenderID:       d.Sender,
		SenderRole:     chat.Role(d.SenderRole),
		Body:           d.Body,
		Status:         chat.Status(d.Status),
		CreatedAt:      d.Timestamp,
	}
}

func messageToDocument(m *chat.Message) *messageDocument {
	return &messageDocument{
		ID:           m.ID,
		Conversation: m.ConversationID,
		Sender:       m.SenderID,
		SenderRole:   string(m.SenderRole),
		Body:         m.Body,
		Status:       string(m.Status),
		Timestamp:    m.CreatedAt,
	}
}

// isRetryableError checks if an error is retryable (transient)
// Returns true for network errors and transient MongoDB errors
func isRetryableError(err error) bool {
	// No else needed: early return pattern (guard clause)
	if err == nil {
		return false
	}

	errStr := err.Error()

	// Network errors
	if containsAny(errStr, []string{
		"connection refused",
		"connection reset",
		"timeout",
		"temporary failure",
		"i/o timeout",
		"EOF",
	}) {
		return true
	}

	// MongoDB specific transient errors
	if containsAny(errStr, []string{
		"server selection timeout",
		"no reachable servers",
		"connection pool",
		"socket",
	}) {
		return true
	}

	return false
}

// containsAny checks if a string contains any of the given substrings
func containsAny(s string, substrings []string) bool {
	for _, substr := range substrings {
		if strings.Contains(s, substr) {
			return true
		}
	}
	return false
}

// EnsureIndexes creates the indexes the chat queries depend on.
// This should be called during application initialization.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	messageIndexes := []mongo.IndexModel{
		{
			// Seen acks filter by conversation + sender
			Keys: bson.D{
				{Key: constants.MongoFieldConversation, Value: 1},
				{Key: constants.MongoFieldSender, Value: 1},
			},
			Options: options.Index().SetName(constants.IndexConversationSender),
		},
		{
			// History reads order by time within a conversation
			Keys: bson.D{
				{Key: constants.MongoFieldConversation, Value: 1},
				{Key: constants.MongoFieldTimestamp, Value: -1},
			},
			Options: options.Index().SetName(constants.IndexConversationTime),
		},
	}

	_, err := s.messages.Indexes().CreateMany(ctx, messageIndexes)
	// No else needed: early return pattern (guard clause)
	if err != nil {
		return chaterrors.NewStoreError("failed to create message indexes", err)
	}

	buyerIndex := mongo.IndexModel{
		Keys:    bson.D{{Key: constants.MongoFieldBuyer, Value: 1}},
		Options: options.Index().SetName(constants.IndexConversationBuyer),
	}
	_, err = s.conversations.Indexes().CreateOne(ctx, buyerIndex)
	// No else needed: early return pattern (guard clause)
	if err != nil {
		return chaterrors.NewStoreError("failed to create conversation index", err)
	}

	s.logger.Info().
		Strs("indexes", []string{
			constants.IndexConversationSender,
			constants.IndexConversationTime,
			constants.IndexConversationBuyer,
		}).
		Msg("MongoDB indexes created successfully")

	return nil
}

// GetConversation retrieves a conversation by id.
func (s *Store) GetConversation(ctx context.Context, id string) (*chat.Conversation, error) {
	// No else needed: early return pattern (guard clause)
	if id == "" {
		return nil, ErrInvalidID
	}

	var doc conversationDocument
	err := s.retryOperation(ctx, "GetConversation", func() error {
		return s.conversations.FindOne(ctx, bson.M{constants.MongoFieldID: id}).Decode(&doc)
	})

	// No else needed: early return pattern (guard clause)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrConversationNotFound
		}
		return nil, chaterrors.NewStoreError("failed to get conversation", err)
	}

	return doc.toEntity(), nil
}

// SetConversationAdmin assigns the admin slot of a conversation.
// The authorizer guarantees this is only called for unset or matching slots.
func (s *Store) SetConversationAdmin(ctx context.Context, conversationID, adminID string) error {
	// No else needed: early return pattern (guard clause)
	if conversationID == "" || adminID == "" {
		return ErrInvalidID
	}

	start := time.Now()
	defer func() {
		metrics.MongoDBOperationDuration.With(prometheus.Labels{"operation": "set_conversation_admin"}).Observe(time.Since(start).Seconds())
	}()

	filter := bson.M{constants.MongoFieldID: conversationID}
	update := bson.M{"$set": bson.M{constants.MongoFieldAdmin: adminID}}

	var result *mongo.UpdateResult
	err := s.retryOperation(ctx, "SetConversationAdmin", func() error {
		var opErr error
		result, opErr = s.conversations.UpdateOne(ctx, filter, update)
		return opErr
	})

	// No else needed: early return pattern (guard clause)
	if err != nil {
		return chaterrors.NewStoreError("failed to set conversation admin", err)
	}

	// No else needed: early return pattern (guard clause)
	if result.MatchedCount == 0 {
		return ErrConversationNotFound
	}

	return nil
}

// SetLastMessage updates the conversation's display hint for its most
// recent message. This write carries no atomicity guarantee relative to
// the message insert; lastMessage is not a source of truth.
func (s *Store) SetLastMessage(ctx context.Context, conversationID, body string) error {
	// No else needed: early return pattern (guard clause)
	if conversationID == "" {
		return ErrInvalidID
	}

	filter := bson.M{constants.MongoFieldID: conversationID}
	update := bson.M{"$set": bson.M{constants.MongoFieldLastMessage: body}}

	var result *mongo.UpdateResult
	err := s.retryOperation(ctx, "SetLastMessage", func() error {
		var opErr error
		result, opErr = s.conversations.UpdateOne(ctx, filter, update)
		return opErr
	})

	// No else needed: early return pattern (guard clause)
	if err != nil {
		return chaterrors.NewStoreError("failed to set last message", err)
	}

	// No else needed: early return pattern (guard clause)
	if result.MatchedCount == 0 {
		return ErrConversationNotFound
	}

	return nil
}

// InsertMessage persists a newly created message.
func (s *Store) InsertMessage(ctx context.Context, msg *chat.Message) error {
	// No else needed: early return pattern (guard clause)
	if msg == nil {
		return ErrNilMessage
	}

	// No else needed: early return pattern (guard clause)
	if msg.ID == "" {
		return ErrInvalidID
	}

	start := time.Now()
	defer func() {
		metrics.MongoDBOperationDuration.With(prometheus.Labels{"operation": "insert_message"}).Observe(time.Since(start).Seconds())
	}()

	doc := messageToDocument(msg)

	err := s.retryOperation(ctx, "InsertMessage", func() error {
		_, opErr := s.messages.InsertOne(ctx, doc)
		return opErr
	})

	// No else needed: early return pattern (guard clause)
	if err != nil {
		return chaterrors.NewStoreError("failed to insert message", err)
	}

	return nil
}

// GetMessage retrieves a message by id.
func (s *Store) GetMessage(ctx context.Context, id string) (*chat.Message, error) {
	// No else needed: early return pattern (guard clause)
	if id == "" {
		return nil, ErrInvalidID
	}

	var doc messageDocument
	err := s.retryOperation(ctx, "GetMessage", func() error {
		return s.messages.FindOne(ctx, bson.M{constants.MongoFieldID: id}).Decode(&doc)
	})

	// No else needed: early return pattern (guard clause)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrMessageNotFound
		}
		return nil, chaterrors.NewStoreError("failed to get message", err)
	}

	return doc.toEntity(), nil
}

// MarkDelivered advances a message from sent (or legacy unset) to delivered.
// The status filter makes the update conditional, so a message already at
// delivered or seen is left untouched and advanced=false is reported.
// The status lattice is monotonic: delivered never overwrites seen.
func (s *Store) MarkDelivered(ctx context.Context, messageID string) (bool, error) {
	// No else needed: early return pattern (guard clause)
	if messageID == "" {
		return false, ErrInvalidID
	}

	start := time.Now()
	defer func() {
		metrics.MongoDBOperationDuration.With(prometheus.Labels{"operation": "mark_delivered"}).Observe(time.Since(start).Seconds())
	}()

	filter := bson.M{
		constants.MongoFieldID: messageID,
		constants.MongoFieldStatus: bson.M{
			"$nin": bson.A{string(chat.StatusDelivered), string(chat.StatusSeen)},
		},
	}
	update := bson.M{"$set": bson.M{constants.MongoFieldStatus: string(chat.StatusDelivered)}}

	var result *mongo.UpdateResult
	err := s.retryOperation(ctx, "MarkDelivered", func() error {
		var opErr error
		result, opErr = s.messages.UpdateOne(ctx, filter, update)
		return opErr
	})

	// No else needed: early return pattern (guard clause)
	if err != nil {
		return false, chaterrors.NewStoreError("failed to mark message delivered", err)
	}

	return result.ModifiedCount > 0, nil
}

// statusAdvanceableFilter matches messages that may still move forward in
// the lattice: status sent, delivered, or missing entirely (legacy docs).
func statusAdvanceableFilter(conversationID, senderID string) bson.M {
	return bson.M{
		constants.MongoFieldConversation: conversationID,
		constants.MongoFieldSender:       senderID,
		"$or": bson.A{
			bson.M{constants.MongoFieldStatus: bson.M{
				"$in": bson.A{string(chat.StatusSent), string(chat.StatusDelivered)},
			}},
			bson.M{constants.MongoFieldStatus: bson.M{"$exists": false}},
		},
	}
}

// MarkSeen bulk-advances every message in the conversation authored by
// senderID that has not yet reached seen, and returns the ids that were
// actually advanced. An empty result means nothing changed.
func (s *Store) MarkSeen(ctx context.Context, conversationID, senderID string) ([]string, error) {
	// No else needed: early return pattern (guard clause)
	if conversationID == "" || senderID == "" {
		return nil, ErrInvalidID
	}

	start := time.Now()
	defer func() {
		metrics.MongoDBOperationDuration.With(prometheus.Labels{"operation": "mark_seen"}).Observe(time.Since(start).Seconds())
	}()

	filter := statusAdvanceableFilter(conversationID, senderID)
	findOpts := options.Find().
		SetProjection(bson.M{constants.MongoFieldID: 1}).
		SetLimit(int64(constants.MaxSeenBatchSize))

	var docs []idDocument
	err := s.retryOperation(ctx, "MarkSeen.find", func() error {
		cursor, opErr := s.messages.Find(ctx, filter, findOpts)
		if opErr != nil {
			return opErr
		}
		defer cursor.Close(ctx)
		docs = docs[:0]
		return cursor.All(ctx, &docs)
	})

	// No else needed: early return pattern (guard clause)
	if err != nil {
		return nil, chaterrors.NewStoreError("failed to find messages to mark seen", err)
	}

	// No else needed: early return pattern (guard clause)
	if len(docs) == 0 {
		return nil, nil
	}

	ids := lo.Map(docs, func(d idDocument, _ int) string { return d.ID })

	updateFilter := bson.M{constants.MongoFieldID: bson.M{"$in": ids}}
	update := bson.M{"$set": bson.M{constants.MongoFieldStatus: string(chat.StatusSeen)}}

	err = s.retryOperation(ctx, "MarkSeen.update", func() error {
		_, opErr := s.messages.UpdateMany(ctx, updateFilter, update)
		return opErr
	})

	// No else needed: early return pattern (guard clause)
	if err != nil {
		return nil, chaterrors.NewStoreError("failed to mark messages seen", err)
	}

	return ids, nil
}

// GetUser retrieves the chat-relevant subset of a user record.
func (s *Store) GetUser(ctx context.Context, id string) (*chat.User, error) {
	// No else needed: early return pattern (guard clause)
	if id == "" {
		return nil, ErrInvalidID
	}

	// Project only the fields the chat layer needs; password hashes and
	// other credentials never leave the database.
	findOpts := options.FindOne().SetProjection(bson.M{
		constants.MongoFieldID:      1,
		constants.MongoFieldEmail:   1,
		constants.MongoFieldName:    1,
		constants.MongoFieldIsAdmin: 1,
	})

	var doc userDocument
	err := s.retryOperation(ctx, "GetUser", func() error {
		return s.users.FindOne(ctx, bson.M{constants.MongoFieldID: id}, findOpts).Decode(&doc)
	})

	// No else needed: early return pattern (guard clause)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrUserNotFound
		}
		return nil, chaterrors.NewStoreError("failed to get user", err)
	}

	return &chat.User{
		ID:      doc.ID,
		Email:   doc.Email,
		Name:    doc.Name,
		IsAdmin: doc.IsAdmin,
	}, nil
}

// IsAdmin reads the current admin flag for a user. The token claim may be
// stale, so authorization decisions use this fresh lookup.
func (s *Store) IsAdmin(ctx context.Context, id string) (bool, error) {
	user, err := s.GetUser(ctx, id)
	// No else needed: early return pattern (guard clause)
	if err != nil {
		return false, err
	}
	return user.IsAdmin, nil
}

// Ping verifies database connectivity for readiness probes.
func (s *Store) Ping(ctx context.Context) error {
	return s.conversations.Database().Client().Ping(ctx, nil)
}

// retryOperation executes an operation with retry logic for transient errors
// Uses exponential backoff with configurable parameters
func (s *Store) retryOperation(ctx context.Context, operation string, fn func() error) error {
	var lastErr error
	delay := defaultRetryConfig.initialDelay

	for attempt := 1; attempt <= defaultRetryConfig.maxAttempts; attempt++ {
		err := fn()
		// No else needed: early return pattern (guard clause - success case)
		if err == nil {
			return nil
		}

		// Check if error is retryable
		// No else needed: early return pattern (guard clause - non-retryable error)
		if !isRetryableError(err) {
			return err
		}

		lastErr = err

		// No else needed: optional operation (only retry if attempts remain)
		if attempt < defaultRetryConfig.maxAttempts {
			s.logger.Warn().
				Str("operation", operation).
				Int("attempt", attempt).
				Int("max_attempts", defaultRetryConfig.maxAttempts).
				Dur("delay", delay).
				Err(err).
				Msg("MongoDB operation failed, retrying")

			// Sleep with context awareness
			select {
			case <-time.After(delay):
				// Continue to next attempt
			case <-ctx.Done():
				return fmt.Errorf("operation cancelled during retry: %w", ctx.Err())
			}

			// Exponential backoff
			delay = time.Duration(float64(delay) * defaultRetryConfig.multiplier)
			// No else needed: optional operation (only cap if exceeds max)
			if delay > defaultRetryConfig.maxDelay {
				delay = defaultRetryConfig.maxDelay
			}
		}
	}

	return fmt.Errorf("operation failed after %d attempts: %w",
		defaultRetryConfig.maxAttempts, lastErr)
}
