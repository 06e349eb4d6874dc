package router

import (
	"encoding/json"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/rs/zerolog"

	"github.com/real-rm/marketchat/internal/authz"
	"github.com/real-rm/marketchat/internal/chat"
	"github.com/real-rm/marketchat/internal/event"
	"github.com/real-rm/marketchat/internal/hub"
	"github.com/real-rm/marketchat/internal/presence"
	"github.com/real-rm/marketchat/internal/testutil"
	ws "github.com/real-rm/marketchat/internal/websocket"
)

// Property: Delivery acknowledgement never regresses a status
//
// For any initial message status, a delivered ack broadcasts if and only if
// the message still ranks below delivered. A message that reached delivered
// or seen is never rebroadcast.
func TestProperty_DeliveredAckMonotonic(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	statusGen := gen.OneConstOf(chat.Status(""), chat.StatusSent, chat.StatusDelivered, chat.StatusSeen)

	properties.Property("broadcast iff status ranks below delivered", prop.ForAll(
		func(initial chat.Status) bool {
			conversations := testutil.NewMockConversationStore()
			messages := testutil.NewMockMessageStore()
			users := testutil.NewMockUserStore()

			roomHub := hub.New(zerolog.Nop())
			tracker := presence.NewTracker(roomHub, zerolog.Nop())
			authorizer := authz.NewAuthorizer(users, conversations, zerolog.Nop())
			r := NewRouter(conversations, messages, users, authorizer, tracker, roomHub, zerolog.Nop())

			messages.GetMessageFunc = func(id string) (*chat.Message, error) {
				return &chat.Message{ID: id, ConversationID: "conv-1", Status: initial}, nil
			}

			conn := testutil.NewTestConnection("buyer-1", "", false)
			joinData, _ := json.Marshal(event.JoinPayload{ConversationID: "conv-1"})
			if r.Join(conn, &event.Envelope{Event: event.JoinConversation, Data: joinData}) != Applied {
				return false
			}
			drainAll(conn)

			ackData, _ := json.Marshal(event.DeliveredPayload{MessageID: "msg-1"})
			outcome := r.Delivered(conn, &event.Envelope{Event: event.MessageDelivered, Data: ackData})

			broadcasts := len(drainAll(conn))

			if initial.AtLeast(chat.StatusDelivered) {
				return outcome == Noop && broadcasts == 0
			}
			return outcome == Applied && broadcasts == 1
		},
		statusGen,
	))

	properties.TestingRun(t)
}

// Property: Seen acknowledgement is idempotent
//
// A seen ack broadcasts exactly the ids the store advanced; an empty advance
// set produces no broadcast, however often it is repeated.
func TestProperty_SeenAckIdempotent(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	properties.Property("repeat acks after drain broadcast nothing", prop.ForAll(
		func(advanced []string, repeats int) bool {
			conversations := testutil.NewMockConversationStore()
			messages := testutil.NewMockMessageStore()
			users := testutil.NewMockUserStore()

			roomHub := hub.New(zerolog.Nop())
			tracker := presence.NewTracker(roomHub, zerolog.Nop())
			authorizer := authz.NewAuthorizer(users, conversations, zerolog.Nop())
			r := NewRouter(conversations, messages, users, authorizer, tracker, roomHub, zerolog.Nop())

			conn := testutil.NewTestConnection("buyer-1", "", false)
			joinData, _ := json.Marshal(event.JoinPayload{ConversationID: "conv-1"})
			if r.Join(conn, &event.Envelope{Event: event.JoinConversation, Data: joinData}) != Applied {
				return false
			}
			drainAll(conn)

			ackData, _ := json.Marshal(event.SeenPayload{ConversationID: "conv-1", SenderID: "admin-1"})
			ack := &event.Envelope{Event: event.MessageSeen, Data: ackData}

			// First ack advances whatever the store reports
			messages.SeenResult = advanced
			first := r.Seen(conn, ack)
			firstBroadcasts := len(drainAll(conn))

			// Later acks find nothing left to advance
			messages.SeenResult = nil
			for i := 0; i < repeats%5; i++ {
				if r.Seen(conn, ack) != Noop {
					return false
				}
			}
			repeatBroadcasts := len(drainAll(conn))

			if len(advanced) == 0 {
				return first == Noop && firstBroadcasts == 0 && repeatBroadcasts == 0
			}
			return first == Applied && firstBroadcasts == 1 && repeatBroadcasts == 0
		},
		gen.SliceOf(gen.Identifier()),
		gen.IntRange(0, 10),
	))

	properties.TestingRun(t)
}

// drainAll discards and counts every buffered frame on a connection
func drainAll(conn *ws.Connection) [][]byte {
	var frames [][]byte
	for {
		select {
		case frame := <-conn.ReceiveForTest():
			frames = append(frames, frame)
		default:
			return frames
		}
	}
}
