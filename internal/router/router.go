// Package router dispatches decoded WebSocket events to the chat protocol
// handlers. The protocol is fire-and-forget: a handler resolves every event
// to an internal outcome, but nothing is ever written back to the sender on
// failure. Denied and malformed events are logged and dropped.
package router

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/real-rm/marketchat/internal/auth"
	"github.com/real-rm/marketchat/internal/authz"
	"github.com/real-rm/marketchat/internal/chat"
	"github.com/real-rm/marketchat/internal/constants"
	chaterrors "github.com/real-rm/marketchat/internal/errors"
	"github.com/real-rm/marketchat/internal/event"
	"github.com/real-rm/marketchat/internal/hub"
	"github.com/real-rm/marketchat/internal/metrics"
	"github.com/real-rm/marketchat/internal/ratelimit"
	"github.com/real-rm/marketchat/internal/util"
	ws "github.com/real-rm/marketchat/internal/websocket"
)

// Outcome classifies how a handler resolved an event. Outcomes drive logs
// and metrics only; they are never sent over the wire.
type Outcome string

const (
	// Applied means the event took effect and any broadcast went out
	Applied Outcome = "applied"

	// Noop means the event was valid but changed nothing (already acknowledged,
	// already joined, nothing to mark)
	Noop Outcome = "noop"

	// Denied means the sender lacked access or membership for the event
	Denied Outcome = "denied"

	// Fault means a backing store or encoding failure prevented resolution
	Fault Outcome = "fault"
)

// ConversationStore is the conversation persistence the router needs
type ConversationStore interface {
	GetConversation(ctx context.Context, id string) (*chat.Conversation, error)
	SetLastMessage(ctx context.Context, conversationID, body string) error
}

// MessageStore is the message persistence the router needs
type MessageStore interface {
	InsertMessage(ctx context.Context, msg *chat.Message) error
	GetMessage(ctx context.Context, id string) (*chat.Message, error)
	MarkDelivered(ctx context.Context, messageID string) (bool, error)
	MarkSeen(ctx context.Context, conversationID, senderID string) ([]string, error)
}

// UserStore resolves sender profiles for message broadcasts
type UserStore interface {
	GetUser(ctx context.Context, id string) (*chat.User, error)
}

// Authorizer decides conversation access and performs lazy admin assignment
type Authorizer interface {
	Authorize(ctx context.Context, identity auth.Identity, conv *chat.Conversation) (authz.Decision, error)
}

// Presence exchanges online/offline notices on join and disconnect
type Presence interface {
	OnJoin(conn *ws.Connection, conversationID string)
	OnDisconnect(conn *ws.Connection)
}

// Router implements the chat event protocol on top of the room hub
type Router struct {
	conversations ConversationStore
	messages      MessageStore
	users         UserStore
	authorizer    Authorizer
	presence      Presence
	hub           *hub.Hub
	limiter       *ratelimit.EventLimiter
	logger        zerolog.Logger
}

// NewRouter creates a new Router
func NewRouter(
	conversations ConversationStore,
	messages MessageStore,
	users UserStore,
	authorizer Authorizer,
	presence Presence,
	h *hub.Hub,
	logger zerolog.Logger,
) *Router {
	return &Router{
		conversations: conversations,
		messages:      messages,
		users:         users,
		authorizer:    authorizer,
		presence:      presence,
		hub:           h,
		limiter:       ratelimit.NewEventLimiter(time.Minute, 300),
		logger:        logger.With().Str("component", "router").Logger(),
	}
}

// StartCleanup starts the event limiter's background cleanup loop
func (r *Router) StartCleanup() {
	r.limiter.StartCleanup()
}

// StopCleanup stops the event limiter's background cleanup loop
func (r *Router) StopCleanup() {
	r.limiter.StopCleanup()
}

// HandleEvent dispatches a decoded envelope to the matching handler.
// Unknown event names and rate-limited senders are dropped without reply.
func (r *Router) HandleEvent(conn *ws.Connection, env *event.Envelope) {
	// No else needed: early return pattern (guard clause)
	if !r.limiter.Allow(conn.Identity.ID) {
		r.logger.Warn().
			Str("user_id", conn.Identity.ID).
			Str("event", string(env.Event)).
			Msg("Event rate limit exceeded, dropping")
		return
	}

	var outcome Outcome

	switch env.Event {
	case event.JoinConversation:
		outcome = r.Join(conn, env)
	case event.Typing:
		outcome = r.Typing(conn, env)
	case event.SendMessage:
		outcome = r.Send(conn, env)
	case event.MessageDelivered:
		outcome = r.Delivered(conn, env)
	case event.MessageSeen:
		outcome = r.Seen(conn, env)
	default:
		r.logger.Warn().
			Str("event", string(env.Event)).
			Str("user_id", conn.Identity.ID).
			Msg("Unknown event, dropping")
		metrics.EventErrors.Inc()
		return
	}

	r.logger.Debug().
		Str("event", string(env.Event)).
		Str("user_id", conn.Identity.ID).
		Str("outcome", string(outcome)).
		Msg("Event resolved")

	// No else needed: only faults and denials count as event errors
	if outcome == Fault || outcome == Denied {
		metrics.EventErrors.Inc()
	}
}

// HandleDisconnect runs the disconnect side of the protocol: presence
// notices for every joined room and rate-limit state cleanup.
func (r *Router) HandleDisconnect(conn *ws.Connection) {
	r.presence.OnDisconnect(conn)
	r.limiter.Reset(conn.Identity.ID)
}

// Join authorizes the sender for the conversation and registers room
// membership. Joining a room again simply re-runs the presence exchange;
// peers tolerate repeated online notices.
func (r *Router) Join(conn *ws.Connection, env *event.Envelope) Outcome {
	var payload event.JoinPayload
	// No else needed: early return pattern (guard clause)
	if err := event.Decode(env, &payload); err != nil {
		r.logDropped(conn, env, "invalid join payload", err)
		return Denied
	}

	ctx, cancel := util.NewDefaultTimeoutContext()
	defer cancel()

	conv, err := r.conversations.GetConversation(ctx, payload.ConversationID)
	// No else needed: early return pattern (guard clause)
	if err != nil {
		util.LogError(r.logger, "router", "load conversation for join", err)
		return Fault
	}

	decision, err := r.authorizer.Authorize(ctx, conn.Identity, conv)
	// No else needed: early return pattern (guard clause)
	if err != nil {
		util.LogError(r.logger, "router", "authorize join", err)
		return Fault
	}

	// No else needed: early return pattern (guard clause)
	if !decision.Allowed {
		r.logDropped(conn, env, "access denied", nil)
		return Denied
	}

	r.presence.OnJoin(conn, payload.ConversationID)
	return Applied
}

// Typing relays a typing indicator to the other room members. The sender
// never receives its own indicator back.
func (r *Router) Typing(conn *ws.Connection, env *event.Envelope) Outcome {
	var payload event.TypingPayload
	// No else needed: early return pattern (guard clause)
	if err := event.Decode(env, &payload); err != nil {
		r.logDropped(conn, env, "invalid typing payload", err)
		return Denied
	}

	// No else needed: early return pattern (guard clause)
	if !conn.HasJoined(payload.ConversationID) {
		r.logDropped(conn, env, "typing outside joined room", nil)
		return Denied
	}

	notice := event.TypingNotice{
		ConversationID: payload.ConversationID,
		UserID:         conn.Identity.ID,
	}

	frame, err := event.Marshal(event.Typing, notice)
	// No else needed: early return pattern (guard clause)
	if err != nil {
		util.LogError(r.logger, "router", "marshal typing notice", err)
		return Fault
	}

	r.hub.BroadcastExcept(payload.ConversationID, conn, frame)
	return Applied
}

// Send resolves a new message and broadcasts it to the room. Two modes:
// a payload carrying messageId relays a message already persisted through
// the REST API, a payload carrying message text persists a fresh one here.
// Either way the broadcast carries the fully resolved message with the
// sender's profile populated.
func (r *Router) Send(conn *ws.Connection, env *event.Envelope) Outcome {
	var payload event.SendPayload
	// No else needed: early return pattern (guard clause)
	if err := event.Decode(env, &payload); err != nil {
		r.logDropped(conn, env, "invalid send payload", err)
		return Denied
	}

	ctx, cancel := util.NewTimeoutContext(constants.MessageOpTimeout)
	defer cancel()

	// Authorization is re-checked on every send, not just at join time:
	// an admin whose flag was revoked mid-session keeps room membership
	// but loses the right to write into unclaimed conversations. Room
	// membership itself is not required here; a send racing ahead of the
	// join still lands for an authorized participant.
	conv, err := r.conversations.GetConversation(ctx, payload.ConversationID)
	// No else needed: early return pattern (guard clause)
	if err != nil {
		util.LogError(r.logger, "router", "load conversation for send", err)
		return Fault
	}

	decision, err := r.authorizer.Authorize(ctx, conn.Identity, conv)
	// No else needed: early return pattern (guard clause)
	if err != nil {
		util.LogError(r.logger, "router", "authorize send", err)
		return Fault
	}

	// No else needed: early return pattern (guard clause)
	if !decision.Allowed {
		r.logDropped(conn, env, "send access denied", nil)
		return Denied
	}

	var msg *chat.Message

	switch {
	case payload.MessageID != "":
		saved, err := r.messages.GetMessage(ctx, payload.MessageID)
		// No else needed: early return pattern (guard clause)
		if err != nil {
			util.LogError(r.logger, "router", "load message for relay", err)
			return Fault
		}

		// A relayed message must belong to the room it is announced in
		// No else needed: early return pattern (guard clause)
		if saved.ConversationID != payload.ConversationID {
			r.logDropped(conn, env, "relayed message from another conversation", nil)
			return Denied
		}

		msg = saved
		metrics.MessagesRelayed.Inc()

	case payload.Message != "":
		// The buyer slot is authoritative for the persisted role: anyone
		// else writing into the conversation is acting as an admin.
		role := chat.RoleAdmin
		// No else needed: optional operation (buyer match overrides)
		if conn.Identity.ID == conv.BuyerID {
			role = chat.RoleBuyer
		}

		msg = &chat.Message{
			ID:             uuid.NewString(),
			ConversationID: payload.ConversationID,
			SenderID:       conn.Identity.ID,
			SenderRole:     role,
			Body:           payload.Message,
			Status:         chat.StatusSent,
			CreatedAt:      time.Now().UTC(),
		}

		// No else needed: early return pattern (guard clause)
		if err := r.messages.InsertMessage(ctx, msg); err != nil {
			util.LogError(r.logger, "router", "persist message", err)
			return Fault
		}

		// The conversation preview is best-effort: a failed update never
		// holds back the broadcast
		if err := r.conversations.SetLastMessage(ctx, payload.ConversationID, msg.Body); err != nil {
			util.LogError(r.logger, "router", "update conversation preview", err)
		}

		metrics.MessagesPersisted.Inc()

	default:
		r.logDropped(conn, env, "send carries neither message nor messageId", nil)
		return Denied
	}

	frame, err := event.Marshal(event.ReceiveMessage, event.MessageBroadcast{
		ConversationID: payload.ConversationID,
		Message:        r.resolveWireMessage(ctx, msg),
	})
	// No else needed: early return pattern (guard clause)
	if err != nil {
		util.LogError(r.logger, "router", "marshal message broadcast", err)
		return Fault
	}

	r.hub.Broadcast(payload.ConversationID, frame)
	return Applied
}

// resolveWireMessage populates the broadcast shape of a message, looking up
// the sender's profile. A failed lookup degrades to the bare sender id
// rather than blocking the broadcast.
func (r *Router) resolveWireMessage(ctx context.Context, msg *chat.Message) *event.WireMessage {
	sender := event.Sender{ID: msg.SenderID}

	user, err := r.users.GetUser(ctx, msg.SenderID)
	// No else needed: degraded sender on lookup failure
	if err != nil {
		util.LogError(r.logger, "router", "resolve sender profile", err)
	} else {
		sender.Email = user.Email
		sender.Name = user.Name
	}

	return &event.WireMessage{
		ID:             msg.ID,
		ConversationID: msg.ConversationID,
		Sender:         sender,
		SenderRole:     msg.SenderRole,
		Body:           msg.Body,
		Status:         msg.Status,
		CreatedAt:      msg.CreatedAt,
	}
}

// Delivered advances a single message to delivered and tells the room.
// The status lattice is monotonic: a message already delivered or seen is
// left alone and nothing is rebroadcast.
func (r *Router) Delivered(conn *ws.Connection, env *event.Envelope) Outcome {
	var payload event.DeliveredPayload
	// No else needed: early return pattern (guard clause)
	if err := event.Decode(env, &payload); err != nil {
		r.logDropped(conn, env, "invalid delivered payload", err)
		return Denied
	}

	ctx, cancel := util.NewTimeoutContext(constants.MessageOpTimeout)
	defer cancel()

	msg, err := r.messages.GetMessage(ctx, payload.MessageID)
	// No else needed: early return pattern (guard clause)
	if err != nil {
		util.LogError(r.logger, "router", "load message for delivery ack", err)
		return Fault
	}

	// No else needed: early return pattern (guard clause)
	if !conn.HasJoined(msg.ConversationID) {
		r.logDropped(conn, env, "delivery ack outside joined room", nil)
		return Denied
	}

	// No else needed: monotonic status, nothing to do
	if msg.Status.AtLeast(chat.StatusDelivered) {
		return Noop
	}

	advanced, err := r.messages.MarkDelivered(ctx, payload.MessageID)
	// No else needed: early return pattern (guard clause)
	if err != nil {
		util.LogError(r.logger, "router", "mark message delivered", err)
		return Fault
	}

	// No else needed: a concurrent ack already advanced the message
	if !advanced {
		return Noop
	}

	frame, err := event.Marshal(event.MessageDelivered, event.DeliveredBroadcast{
		MessageID:      payload.MessageID,
		ConversationID: msg.ConversationID,
	})
	// No else needed: early return pattern (guard clause)
	if err != nil {
		util.LogError(r.logger, "router", "marshal delivered broadcast", err)
		return Fault
	}

	r.hub.Broadcast(msg.ConversationID, frame)
	metrics.DeliveryAcks.Inc()
	return Applied
}

// Seen marks every message from the given sender in the conversation as
// seen and broadcasts the affected ids. Re-acknowledging is idempotent:
// when no message advances, nothing is broadcast.
func (r *Router) Seen(conn *ws.Connection, env *event.Envelope) Outcome {
	var payload event.SeenPayload
	// No else needed: early return pattern (guard clause)
	if err := event.Decode(env, &payload); err != nil {
		r.logDropped(conn, env, "invalid seen payload", err)
		return Denied
	}

	// No else needed: early return pattern (guard clause)
	if !conn.HasJoined(payload.ConversationID) {
		r.logDropped(conn, env, "seen ack outside joined room", nil)
		return Denied
	}

	ctx, cancel := util.NewTimeoutContext(constants.MessageOpTimeout)
	defer cancel()

	ids, err := r.messages.MarkSeen(ctx, payload.ConversationID, payload.SenderID)
	// No else needed: early return pattern (guard clause)
	if err != nil {
		util.LogError(r.logger, "router", "mark messages seen", err)
		return Fault
	}

	// No else needed: nothing advanced, nothing to announce
	if len(ids) == 0 {
		return Noop
	}

	frame, err := event.Marshal(event.MessageSeen, event.SeenBroadcast{
		ConversationID: payload.ConversationID,
		MessageIDs:     ids,
	})
	// No else needed: early return pattern (guard clause)
	if err != nil {
		util.LogError(r.logger, "router", "marshal seen broadcast", err)
		return Fault
	}

	r.hub.Broadcast(payload.ConversationID, frame)
	metrics.SeenAcks.Inc()
	return Applied
}

func (r *Router) logDropped(conn *ws.Connection, env *event.Envelope, reason string, err error) {
	e := r.logger.Warn().
		Str("event", string(env.Event)).
		Str("user_id", conn.Identity.ID).
		Str("reason", reason)

	// No else needed: optional cause
	if err != nil {
		e = e.Err(err)

		var chatErr *chaterrors.ChatError
		// No else needed: optional classification
		if errors.As(err, &chatErr) {
			e = e.Str("error_code", string(chatErr.Code))
		}
	}

	e.Msg("Event dropped")
}
