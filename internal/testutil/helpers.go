// Package testutil provides common test helpers and mock implementations
// shared by the protocol and transport tests.
package testutil

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"github.com/real-rm/marketchat/internal/auth"
	"github.com/real-rm/marketchat/internal/chat"
	"github.com/real-rm/marketchat/internal/websocket"
)

// TestSecret is the JWT secret used across tests. Long enough to pass
// configuration validation.
const TestSecret = "test-secret-0123456789abcdef0123456789abcdef"

// TestLogger creates a silent logger for tests
func TestLogger(t *testing.T) zerolog.Logger {
	t.Helper()
	return zerolog.Nop()
}

// SignToken builds a signed credential carrying the standard identity claims
func SignToken(t *testing.T, secret, userID, email string, isAdmin bool, ttl time.Duration) string {
	t.Helper()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"_id":     userID,
		"email":   email,
		"isAdmin": isAdmin,
		"exp":     time.Now().Add(ttl).Unix(),
	})

	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("Failed to sign test token: %v", err)
	}
	return signed
}

// NewTestConnection creates a connection session without a live socket
func NewTestConnection(userID, email string, isAdmin bool) *websocket.Connection {
	return websocket.NewConnection(auth.Identity{
		ID:      userID,
		Email:   email,
		IsAdmin: isAdmin,
	})
}

// MockConversationStore is a mock conversation store for testing.
// It tracks method calls and allows configurable behavior for testing various scenarios.
type MockConversationStore struct {
	mu sync.Mutex

	// GetConversation tracking
	GetConversationFunc   func(string) (*chat.Conversation, error)
	GetConversationCalled bool

	// SetConversationAdmin tracking
	SetAdminCalled bool
	AssignedAdmins map[string]string

	// SetLastMessage tracking
	SetLastMessageCalled bool
	LastMessages         map[string]string

	// Error injection
	GetConversationError error
	SetAdminError        error
	SetLastMessageError  error
}

// NewMockConversationStore creates an empty mock conversation store
func NewMockConversationStore() *MockConversationStore {
	return &MockConversationStore{
		AssignedAdmins: make(map[string]string),
		LastMessages:   make(map[string]string),
	}
}

// GetConversation mocks the GetConversation method
func (m *MockConversationStore) GetConversation(_ context.Context, id string) (*chat.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.GetConversationCalled = true
	if m.GetConversationError != nil {
		return nil, m.GetConversationError
	}
	if m.GetConversationFunc != nil {
		return m.GetConversationFunc(id)
	}
	return &chat.Conversation{ID: id, BuyerID: "buyer-1"}, nil
}

// SetConversationAdmin mocks the SetConversationAdmin method
func (m *MockConversationStore) SetConversationAdmin(_ context.Context, conversationID, adminID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.SetAdminCalled = true
	if m.SetAdminError != nil {
		return m.SetAdminError
	}
	m.AssignedAdmins[conversationID] = adminID
	return nil
}

// SetLastMessage mocks the SetLastMessage method
func (m *MockConversationStore) SetLastMessage(_ context.Context, conversationID, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.SetLastMessageCalled = true
	if m.SetLastMessageError != nil {
		return m.SetLastMessageError
	}
	m.LastMessages[conversationID] = body
	return nil
}

// MockMessageStore is a mock message store for testing
type MockMessageStore struct {
	mu sync.Mutex

	// InsertMessage tracking
	InsertedMessages []*chat.Message

	// GetMessage tracking
	GetMessageFunc func(string) (*chat.Message, error)

	// MarkDelivered tracking
	MarkDeliveredCalled bool
	DeliveredIDs        []string
	DeliveredAdvances   bool

	// MarkSeen tracking
	MarkSeenCalled bool
	SeenResult     []string

	// Error injection
	InsertError        error
	GetMessageError    error
	MarkDeliveredError error
	MarkSeenError      error
}

// NewMockMessageStore creates a mock message store whose delivery acks advance
func NewMockMessageStore() *MockMessageStore {
	return &MockMessageStore{DeliveredAdvances: true}
}

// InsertMessage mocks the InsertMessage method
func (m *MockMessageStore) InsertMessage(_ context.Context, msg *chat.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.InsertError != nil {
		return m.InsertError
	}
	m.InsertedMessages = append(m.InsertedMessages, msg)
	return nil
}

// GetMessage mocks the GetMessage method
func (m *MockMessageStore) GetMessage(_ context.Context, id string) (*chat.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.GetMessageError != nil {
		return nil, m.GetMessageError
	}
	if m.GetMessageFunc != nil {
		return m.GetMessageFunc(id)
	}
	return &chat.Message{
		ID:             id,
		ConversationID: "conv-1",
		SenderID:       "buyer-1",
		SenderRole:     chat.RoleBuyer,
		Body:           "test message",
		Status:         chat.StatusSent,
		CreatedAt:      time.Now().UTC(),
	}, nil
}

// MarkDelivered mocks the MarkDelivered method
func (m *MockMessageStore) MarkDelivered(_ context.Context, messageID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.MarkDeliveredCalled = true
	if m.MarkDeliveredError != nil {
		return false, m.MarkDeliveredError
	}
	if m.DeliveredAdvances {
		m.DeliveredIDs = append(m.DeliveredIDs, messageID)
	}
	return m.DeliveredAdvances, nil
}

// MarkSeen mocks the MarkSeen method
func (m *MockMessageStore) MarkSeen(_ context.Context, _, _ string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.MarkSeenCalled = true
	if m.MarkSeenError != nil {
		return nil, m.MarkSeenError
	}
	return m.SeenResult, nil
}

// Inserted returns a snapshot of the messages recorded by InsertMessage
func (m *MockMessageStore) Inserted() []*chat.Message {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*chat.Message, len(m.InsertedMessages))
	copy(out, m.InsertedMessages)
	return out
}

// MockUserStore is a mock user store for testing
type MockUserStore struct {
	mu sync.Mutex

	// Users holds the records served by GetUser and IsAdmin
	Users map[string]*chat.User

	// Error injection
	GetUserError error
	IsAdminError error
}

// NewMockUserStore creates a mock user store seeded with the given users
func NewMockUserStore(users ...*chat.User) *MockUserStore {
	m := &MockUserStore{Users: make(map[string]*chat.User)}
	for _, u := range users {
		m.Users[u.ID] = u
	}
	return m
}

// GetUser mocks the GetUser method
func (m *MockUserStore) GetUser(_ context.Context, id string) (*chat.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.GetUserError != nil {
		return nil, m.GetUserError
	}
	if u, ok := m.Users[id]; ok {
		return u, nil
	}
	return &chat.User{ID: id}, nil
}

// IsAdmin mocks the IsAdmin method
func (m *MockUserStore) IsAdmin(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.IsAdminError != nil {
		return false, m.IsAdminError
	}
	if u, ok := m.Users[id]; ok {
		return u.IsAdmin, nil
	}
	return false, nil
}
