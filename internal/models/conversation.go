package models

import "time"

// ConversationRef is everything the gateway needs to reach a user again
// without an inbound message: the conversation and its channel endpoint.
type ConversationRef struct {
	ConversationID  string    `json:"conversationId"`
	ChannelEndpoint string    `json:"channelEndpoint,omitempty"`
	Platform        string    `json:"platform,omitempty"`
	UpdatedAt       time.Time `json:"updatedAt"`
	UserLabel       string    `json:"userLabel,omitempty"`
	Email           string    `json:"email,omitempty"`
}
