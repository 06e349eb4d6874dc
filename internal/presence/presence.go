// Package presence broadcasts room join and leave notifications so that
// participants can render each other's online state.
package presence

import (
	"github.com/rs/zerolog"

	"github.com/real-rm/marketchat/internal/chat"
	"github.com/real-rm/marketchat/internal/event"
	"github.com/real-rm/marketchat/internal/hub"
	"github.com/real-rm/marketchat/internal/metrics"
	"github.com/real-rm/marketchat/internal/util"
	ws "github.com/real-rm/marketchat/internal/websocket"
)

// Tracker manages presence notifications for conversation rooms
type Tracker struct {
	hub    *hub.Hub
	logger zerolog.Logger
}

// NewTracker creates a new presence Tracker
func NewTracker(h *hub.Hub, logger zerolog.Logger) *Tracker {
	return &Tracker{
		hub:    h,
		logger: logger.With().Str("component", "presence").Logger(),
	}
}

// OnJoin records room membership for the connection and exchanges presence:
// the whole room, joiner included, learns that the joiner is online, and the
// joiner additionally receives a backfill notice for each connection already
// in the room. The backfill is targeted at the joining connection only, so
// established members never see duplicate online notices for peers that
// were already present.
func (t *Tracker) OnJoin(conn *ws.Connection, conversationID string) {
	// Snapshot members before registering the joiner so the backfill
	// never includes the joiner itself.
	existing := t.hub.Members(conversationID)

	conn.JoinRoom(conversationID)
	t.hub.Join(conversationID, conn)

	metrics.RoomJoins.Inc()

	online := event.Participant{
		ConversationID: conversationID,
		UserID:         conn.Identity.ID,
		Role:           chat.RoleFor(conn.Identity.IsAdmin),
	}

	frame, err := event.Marshal(event.ParticipantOnline, online)
	// No else needed: early return pattern (guard clause)
	if err != nil {
		util.LogError(t.logger, "presence", "marshal online notice", err)
		return
	}

	// The joiner is registered by now, so it hears its own online notice
	// along with the rest of the room.
	t.hub.Broadcast(conversationID, frame)
	metrics.PresenceBroadcasts.WithLabelValues("online").Inc()

	for _, member := range existing {
		// No else needed: a rejoin snapshots the joiner itself; skip it
		if member.ConnectionID == conn.ConnectionID {
			continue
		}

		backfill := event.Participant{
			ConversationID: conversationID,
			UserID:         member.Identity.ID,
			Role:           chat.RoleFor(member.Identity.IsAdmin),
		}

		backfillFrame, err := event.Marshal(event.ParticipantOnline, backfill)
		// No else needed: error handling with continue (skips to next iteration)
		if err != nil {
			util.LogError(t.logger, "presence", "marshal backfill notice", err)
			continue
		}

		conn.SafeSend(backfillFrame)
	}
}

// OnDisconnect removes the connection from every joined room and notifies
// the remaining members that the participant went offline.
func (t *Tracker) OnDisconnect(conn *ws.Connection) {
	rooms := conn.Rooms()

	offline := func(conversationID string) {
		notice := event.Participant{
			ConversationID: conversationID,
			UserID:         conn.Identity.ID,
			Role:           chat.RoleFor(conn.Identity.IsAdmin),
		}

		frame, err := event.Marshal(event.ParticipantOffline, notice)
		// No else needed: early return pattern (guard clause)
		if err != nil {
			util.LogError(t.logger, "presence", "marshal offline notice", err)
			return
		}

		t.hub.Broadcast(conversationID, frame)
		metrics.PresenceBroadcasts.WithLabelValues("offline").Inc()
	}

	for _, conversationID := range rooms {
		t.hub.Leave(conversationID, conn)
		offline(conversationID)
	}

	t.logger.Debug().
		Str("user_id", conn.Identity.ID).
		Int("rooms", len(rooms)).
		Msg("Presence cleared on disconnect")
}
