package telegraph

import (
	"context"
	"errors"
	"sync"
)

// ErrOffline is returned by OfflineGateway for every delivery attempt.
var ErrOffline = errors.New("telegraph: no chat platform configured")

// OfflineGateway is the Gateway used when no chat platform is configured.
// It never produces inbound events and refuses every delivery, so injected
// notifications stay queued until a real gateway drains them.
type OfflineGateway struct {
	mu      sync.Mutex
	inbound chan InboundEvent
	closed  bool
}

// NewOfflineGateway creates an OfflineGateway.
func NewOfflineGateway() *OfflineGateway {
	return &OfflineGateway{inbound: make(chan InboundEvent)}
}

// Connect always succeeds.
func (g *OfflineGateway) Connect(ctx context.Context) error { return nil }

// Listen returns a channel that is closed by Close.
func (g *OfflineGateway) Listen(ctx context.Context) (<-chan InboundEvent, error) {
	return g.inbound, nil
}

// Send refuses delivery.
func (g *OfflineGateway) Send(ctx context.Context, conversationID string, msg OutboundMessage) (string, error) {
	return "", ErrOffline
}

// Update refuses delivery.
func (g *OfflineGateway) Update(ctx context.Context, conversationID, messageID string, msg OutboundMessage) error {
	return ErrOffline
}

// Delete refuses delivery.
func (g *OfflineGateway) Delete(ctx context.Context, conversationID, messageID string) error {
	return ErrOffline
}

// Close closes the inbound channel. It is safe to call more than once.
func (g *OfflineGateway) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.closed {
		g.closed = true
		close(g.inbound)
	}
	return nil
}
