// Package chat defines the persistent chat entities shared across the service:
// conversations, messages, the delivery status lattice, and participant roles.
// The records themselves are owned by the marketplace REST layer; this service
// only reads and advances them.
package chat

import "time"

// Status is the delivery state of a message. Statuses form a monotonic
// lattice: sent < delivered < seen. A message only ever advances; seen is
// terminal. Older documents may carry no status at all, which ranks
// alongside sent.
type Status string

const (
	StatusSent      Status = "sent"
	StatusDelivered Status = "delivered"
	StatusSeen      Status = "seen"
)

// Rank returns the position of the status in the lattice. Unset or unknown
// statuses rank with sent so legacy documents still advance correctly.
func (s Status) Rank() int {
	switch s {
	case StatusDelivered:
		return 1
	case StatusSeen:
		return 2
	default:
		return 0
	}
}

// AtLeast reports whether s is at or past other in the lattice.
func (s Status) AtLeast(other Status) bool {
	return s.Rank() >= other.Rank()
}

// Role identifies which side of a conversation a participant is on.
type Role string

const (
	RoleBuyer Role = "buyer"
	RoleAdmin Role = "admin"
)

// RoleFor derives the presence role from the admin flag.
func RoleFor(isAdmin bool) Role {
	if isAdmin {
		return RoleAdmin
	}
	return RoleBuyer
}

// Conversation is a chat thread between one buyer and at most one admin.
// AdminID is assigned lazily: the first admin to join an unassigned
// conversation takes the slot and is never evicted by a later admin.
type Conversation struct {
	ID          string
	BuyerID     string
	AdminID     string // empty until an admin is assigned
	LastMessage string
}

// Message is a single chat message within a conversation.
type Message struct {
	ID             string
	ConversationID string
	SenderID       string
	SenderRole     Role
	Body           string
	Status         Status
	CreatedAt      time.Time
}

// User is the subset of a marketplace user record the chat layer needs.
// Credential-bearing fields are never loaded.
type User struct {
	ID      string
	Email   string
	Name    string
	IsAdmin bool
}
