// Package telegraph is the conversational surface of Signoff. It connects to
// a chat platform through a Gateway, classifies inbound events, and answers
// them with cards: pending-approval summaries, document details, LLM
// summaries and answers, and approve/reject decisions.
package telegraph

import (
	"context"
	"errors"
	"time"
)

// ErrUnsupported is returned by a Gateway that cannot edit or delete a
// message it has already sent.
var ErrUnsupported = errors.New("telegraph: operation not supported by gateway")

// Gateway is the interface that platform-specific implementations must
// satisfy. Each gateway handles connection management and message
// delivery for a single chat platform.
type Gateway interface {
	// Connect establishes a connection to the chat platform.
	Connect(ctx context.Context) error

	// Listen returns a channel of inbound events from the platform.
	// The channel is closed when the context is cancelled or the gateway
	// is closed. Listen must only be called after Connect.
	Listen(ctx context.Context) (<-chan InboundEvent, error)

	// Send delivers msg to a conversation and returns the platform's id
	// for the new message.
	Send(ctx context.Context, conversationID string, msg OutboundMessage) (string, error)

	// Update replaces a previously sent message in place.
	Update(ctx context.Context, conversationID, messageID string, msg OutboundMessage) error

	// Delete removes a previously sent message.
	Delete(ctx context.Context, conversationID, messageID string) error

	// Close gracefully shuts down the gateway connection.
	Close() error
}

// Typer is an optional interface for gateways that can show a "typing"
// indicator in a conversation.
type Typer interface {
	Typing(ctx context.Context, conversationID string) error
}

// BotUserIDer is an optional interface that gateways can implement to
// expose the bot's own user ID. This enables self-message filtering.
type BotUserIDer interface {
	BotUserID() string
}

// InboundEvent is a message or card action received from the platform.
type InboundEvent struct {
	Platform         string // e.g. "slack", "discord"
	ConversationID   string // where replies go
	ChannelEndpoint  string // what the gateway needs to reach the conversation again
	SenderIdentity   string // platform-specific user identifier
	SenderEmail      string // may be empty; resolved in the background
	SenderName       string // human-readable name
	Text             string
	Attachments      []Attachment
	Action           *Action // set for card submissions
	ReplyToMessageID string  // the card an action was submitted from
	Timestamp        time.Time
}

// Attachment is a file uploaded with a message.
type Attachment struct {
	Name        string
	URL         string
	ContentType string
}

// Action verbs carried by card submissions and their free-text forms.
const (
	ActionList          = "list"
	ActionSelect        = "select"
	ActionAsk           = "ask"
	ActionApprove       = "approve"
	ActionReject        = "reject"
	ActionDismiss       = "dismiss"
	ActionAckChange     = "ack_change"
	ActionChangeDetails = "change_details"
	ActionConfirmFile   = "confirm_file"
	ActionRejectFile    = "reject_file"
)

// Action is a discriminated card-submit payload.
type Action struct {
	Verb     string
	DocID    string
	Question string            // set by ActionAsk
	Value    string            // free-form button value, e.g. a filename
	Fields   map[string]string // any other submitted inputs
}

// OutboundMessage is a plain-text message, a card, or both. Text doubles
// as the notification fallback for card-only platforms.
type OutboundMessage struct {
	Text string
	Card *Card
}

// Card is a platform-neutral rich message.
type Card struct {
	Title   string
	Body    string
	Color   string // sidebar color hint (e.g. "#36a64f" for success)
	Fields  []Field
	Actions []Button
	Input   *TextInput
}

// Field is a key-value pair displayed on a card.
type Field struct {
	Name  string
	Value string
	Short bool // hint: render side-by-side with another field
}

// Button styles.
const (
	StylePrimary = "primary"
	StyleDanger  = "danger"
)

// Button submits an Action with the given verb. Value carries the
// document id, or the filename for file confirmations.
type Button struct {
	Label string
	Verb  string
	Value string
	Style string
}

// TextInput asks the user for free text that is submitted as an Action
// with Verb and DocID set.
type TextInput struct {
	Label       string
	Placeholder string
	Verb        string
	DocID       string
}

// NewAction decodes a button press. File confirmations carry a filename in
// value; every other verb carries a document id.
func NewAction(verb, value string) *Action {
	a := &Action{Verb: verb}
	switch verb {
	case ActionConfirmFile, ActionRejectFile:
		a.Value = value
	default:
		a.DocID = value
	}
	return a
}
