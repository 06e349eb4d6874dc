// Package authz decides whether an identity may act inside a conversation,
// and performs the lazy admin assignment that binds the first responding
// admin to an unclaimed conversation.
package authz

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/real-rm/marketchat/internal/auth"
	"github.com/real-rm/marketchat/internal/chat"
	"github.com/real-rm/marketchat/internal/metrics"
)

// UserStore provides the fresh admin-flag lookup. The claim inside a
// credential can go stale between issuance and use; assignment decisions
// always consult the store.
type UserStore interface {
	IsAdmin(ctx context.Context, userID string) (bool, error)
}

// ConversationStore persists the admin assignment
type ConversationStore interface {
	SetConversationAdmin(ctx context.Context, conversationID, adminID string) error
}

// Decision is the outcome of an authorization check
type Decision struct {
	// Allowed reports whether the identity may participate in the conversation
	Allowed bool

	// Escalated reports whether this check assigned the identity as the
	// conversation's admin
	Escalated bool
}

// CheckAccess is the pure membership rule: the buyer, the assigned admin,
// and any identity carrying the admin claim may participate. It performs
// no I/O and never mutates the conversation.
func CheckAccess(identity auth.Identity, conv *chat.Conversation) bool {
	// No else needed: early return pattern (guard clause)
	if conv == nil {
		return false
	}

	// No else needed: each branch returns
	if identity.ID == conv.BuyerID {
		return true
	}

	if identity.ID == conv.AdminID {
		return true
	}

	return identity.IsAdmin
}

// Authorizer combines the pure access rule with lazy admin assignment
type Authorizer struct {
	users         UserStore
	conversations ConversationStore
	logger        zerolog.Logger
}

// NewAuthorizer creates a new Authorizer
func NewAuthorizer(users UserStore, conversations ConversationStore, logger zerolog.Logger) *Authorizer {
	return &Authorizer{
		users:         users,
		conversations: conversations,
		logger:        logger.With().Str("component", "authz").Logger(),
	}
}

// Authorize checks whether the identity may act in the conversation and,
// when an admin reaches a conversation that has no assigned admin yet,
// records the assignment. The first admin to act wins; later admins are
// still allowed in but never displace the assignment.
//
// The admin path always re-reads the admin flag from the store rather than
// trusting the credential claim, so a revoked admin cannot claim
// conversations with an old token.
func (a *Authorizer) Authorize(ctx context.Context, identity auth.Identity, conv *chat.Conversation) (Decision, error) {
	// No else needed: early return pattern (guard clause)
	if conv == nil {
		return Decision{}, nil
	}

	// Buyers are bound to the conversation at creation time; no store hit needed
	if identity.ID == conv.BuyerID {
		return Decision{Allowed: true}, nil
	}

	// The already-assigned admin keeps access even if the admin flag was
	// since revoked: an active support thread is not cut off mid-flight
	if identity.ID == conv.AdminID {
		return Decision{Allowed: true}, nil
	}

	// Anyone else must carry the admin claim to even be considered
	// No else needed: early return pattern (guard clause)
	if !identity.IsAdmin {
		return Decision{}, nil
	}

	isAdmin, err := a.users.IsAdmin(ctx, identity.ID)
	// No else needed: early return pattern (guard clause)
	if err != nil {
		return Decision{}, err
	}

	// No else needed: early return pattern (guard clause)
	if !isAdmin {
		a.logger.Warn().
			Str("user_id", identity.ID).
			Str("conversation_id", conv.ID).
			Msg("Admin claim not backed by user record, access denied")
		return Decision{}, nil
	}

	// An admin is already assigned: this admin may observe and assist,
	// but the assignment stands
	if conv.AdminID != "" {
		return Decision{Allowed: true}, nil
	}

	if err := a.conversations.SetConversationAdmin(ctx, conv.ID, identity.ID); err != nil {
		return Decision{}, err
	}

	conv.AdminID = identity.ID

	metrics.AdminEscalations.Inc()

	a.logger.Info().
		Str("user_id", identity.ID).
		Str("conversation_id", conv.ID).
		Msg("Admin assigned to conversation")

	return Decision{Allowed: true, Escalated: true}, nil
}
