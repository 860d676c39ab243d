package telegraph

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// SentMessage is a message recorded by MockGateway.
type SentMessage struct {
	ConversationID string
	MessageID      string
	Msg            OutboundMessage
}

// MockGateway implements Gateway, Typer and BotUserIDer for testing. It
// records every send, update, delete and typing signal and allows
// simulating inbound events via SimulateInbound.
type MockGateway struct {
	mu        sync.Mutex
	connected bool
	closed    bool
	inbound   chan InboundEvent
	sent      []SentMessage
	updates   []SentMessage
	deletes   []string
	typing    int
	botUserID string
	counter   int

	sendErr   error
	updateErr error
	deleteErr error
}

// NewMockGateway creates a MockGateway with a buffered inbound channel.
func NewMockGateway() *MockGateway {
	return &MockGateway{inbound: make(chan InboundEvent, 100)}
}

// BotUserID returns the configured bot user ID (implements BotUserIDer).
func (m *MockGateway) BotUserID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.botUserID
}

// SetBotUserID sets the bot user ID for testing.
func (m *MockGateway) SetBotUserID(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.botUserID = id
}

// Connect marks the gateway as connected.
func (m *MockGateway) Connect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return fmt.Errorf("mock gateway: already closed")
	}
	m.connected = true
	return nil
}

// Listen returns the inbound event channel. Must be called after Connect.
func (m *MockGateway) Listen(ctx context.Context) (<-chan InboundEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.connected {
		return nil, fmt.Errorf("mock gateway: not connected")
	}
	return m.inbound, nil
}

// Send records msg and returns a sequential message id.
func (m *MockGateway) Send(ctx context.Context, conversationID string, msg OutboundMessage) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.connected {
		return "", fmt.Errorf("mock gateway: not connected")
	}
	if m.sendErr != nil {
		return "", m.sendErr
	}
	m.counter++
	id := fmt.Sprintf("msg-%d", m.counter)
	m.sent = append(m.sent, SentMessage{ConversationID: conversationID, MessageID: id, Msg: msg})
	return id, nil
}

// Update records an in-place edit.
func (m *MockGateway) Update(ctx context.Context, conversationID, messageID string, msg OutboundMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.connected {
		return fmt.Errorf("mock gateway: not connected")
	}
	if m.updateErr != nil {
		return m.updateErr
	}
	m.updates = append(m.updates, SentMessage{ConversationID: conversationID, MessageID: messageID, Msg: msg})
	return nil
}

// Delete records a deletion.
func (m *MockGateway) Delete(ctx context.Context, conversationID, messageID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.connected {
		return fmt.Errorf("mock gateway: not connected")
	}
	if m.deleteErr != nil {
		return m.deleteErr
	}
	m.deletes = append(m.deletes, messageID)
	return nil
}

// Typing counts typing signals (implements Typer).
func (m *MockGateway) Typing(ctx context.Context, conversationID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.typing++
	return nil
}

// Close shuts down the mock gateway and closes the inbound channel.
func (m *MockGateway) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	m.connected = false
	close(m.inbound)
	return nil
}

// --- Test helpers ---

// FailSend makes subsequent Send calls return err (nil restores).
func (m *MockGateway) FailSend(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sendErr = err
}

// FailUpdate makes subsequent Update calls return err (nil restores).
func (m *MockGateway) FailUpdate(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updateErr = err
}

// FailDelete makes subsequent Delete calls return err (nil restores).
func (m *MockGateway) FailDelete(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleteErr = err
}

// SimulateInbound sends an event into the inbound channel as if it came
// from the chat platform. Safe to call from any goroutine.
func (m *MockGateway) SimulateInbound(ev InboundEvent) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	m.inbound <- ev
}

// LastSent returns the most recently sent message.
// Returns zero value and false if no messages have been sent.
func (m *MockGateway) LastSent() (SentMessage, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		return SentMessage{}, false
	}
	return m.sent[len(m.sent)-1], true
}

// SentCount returns the number of messages sent.
func (m *MockGateway) SentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

// AllSent returns a copy of all sent messages.
func (m *MockGateway) AllSent() []SentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SentMessage, len(m.sent))
	copy(out, m.sent)
	return out
}

// AllUpdates returns a copy of all in-place edits.
func (m *MockGateway) AllUpdates() []SentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SentMessage, len(m.updates))
	copy(out, m.updates)
	return out
}

// Deleted returns the ids of all deleted messages.
func (m *MockGateway) Deleted() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.deletes))
	copy(out, m.deletes)
	return out
}

// TypingCount returns the number of typing signals received.
func (m *MockGateway) TypingCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.typing
}
