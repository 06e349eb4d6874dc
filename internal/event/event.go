// Package event defines the wire protocol spoken over a chat WebSocket.
// Every frame is a JSON envelope {event, data}; each event name carries a
// typed, validated payload rather than an ad hoc bag of optional fields.
package event

import (
	"encoding/json"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/real-rm/marketchat/internal/chat"
	chaterrors "github.com/real-rm/marketchat/internal/errors"
)

// Name identifies an event on the wire.
type Name string

// Inbound (client -> server) event names
const (
	JoinConversation Name = "joinConversation"
	Typing           Name = "typing"
	SendMessage      Name = "sendMessage"
	MessageDelivered Name = "message:delivered"
	MessageSeen      Name = "message:seen"
)

// Outbound (server -> client) event names
const (
	ParticipantOnline  Name = "participant:online"
	ParticipantOffline Name = "participant:offline"
	ReceiveMessage     Name = "receiveMessage"
	// Typing, MessageDelivered, and MessageSeen are echoed outbound under
	// the same names they arrive with.
)

// validate applies struct tags on inbound payloads.
var validate = validator.New()

// Envelope is the framing for every WebSocket message.
type Envelope struct {
	Event Name            `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Marshal frames a payload under the given event name.
func Marshal(name Name, payload interface{}) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: name, Data: data})
}

// Decode unmarshals an envelope's data into a typed payload and validates it.
// Failures come back as validation-category errors; the caller drops the
// frame without replying.
func Decode(env *Envelope, payload interface{}) error {
	if err := json.Unmarshal(env.Data, payload); err != nil {
		return chaterrors.ErrInvalidEventFormat(string(env.Event), err)
	}
	if err := validate.Struct(payload); err != nil {
		return chaterrors.NewValidationError(chaterrors.ErrCodeMissingField, string(env.Event), err)
	}
	return nil
}

// Inbound payloads

// JoinPayload asks to join a conversation room.
type JoinPayload struct {
	ConversationID string `json:"conversationId" validate:"required"`
}

// TypingPayload signals the sender is typing in a conversation.
type TypingPayload struct {
	ConversationID string `json:"conversationId" validate:"required"`
}

// SendPayload carries a new message. Exactly one of Message (persist mode)
// or MessageID (relay mode, message already saved via REST) is supplied.
type SendPayload struct {
	ConversationID string `json:"conversationId" validate:"required"`
	Message        string `json:"message,omitempty"`
	MessageID      string `json:"messageId,omitempty"`
}

// DeliveredPayload acknowledges receipt of a single message.
type DeliveredPayload struct {
	MessageID string `json:"messageId" validate:"required"`
}

// SeenPayload acknowledges that all of a sender's messages in a
// conversation have been read.
type SeenPayload struct {
	ConversationID string `json:"conversationId" validate:"required"`
	SenderID       string `json:"senderId" validate:"required"`
}

// Outbound payloads

// Participant describes a room member going online or offline.
type Participant struct {
	ConversationID string    `json:"conversationId"`
	UserID         string    `json:"userId"`
	Role           chat.Role `json:"role"`
}

// TypingNotice is the outbound form of a typing indicator.
type TypingNotice struct {
	ConversationID string `json:"conversationId"`
	UserID         string `json:"userId"`
}

// Sender is the populated sender of a broadcast message. Credential-bearing
// fields are never present here.
type Sender struct {
	ID    string `json:"_id"`
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
}

// WireMessage is the resolved message shape broadcast to rooms.
type WireMessage struct {
	ID             string      `json:"_id"`
	ConversationID string      `json:"conversation"`
	Sender         Sender      `json:"sender"`
	SenderRole     chat.Role   `json:"senderRole"`
	Body           string      `json:"message"`
	Status         chat.Status `json:"status"`
	CreatedAt      time.Time   `json:"ts"`
}

// MessageBroadcast wraps a resolved message for the receiveMessage event.
type MessageBroadcast struct {
	ConversationID string       `json:"conversationId"`
	Message        *WireMessage `json:"message"`
}

// DeliveredBroadcast notifies a room that a message reached its recipient.
type DeliveredBroadcast struct {
	MessageID      string `json:"messageId"`
	ConversationID string `json:"conversationId"`
}

// SeenBroadcast notifies a room which messages were just marked seen.
type SeenBroadcast struct {
	ConversationID string   `json:"conversationId"`
	MessageIDs     []string `json:"messageIds"`
}
