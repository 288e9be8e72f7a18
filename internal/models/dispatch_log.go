package models

import "time"

// Dispatch attempt outcomes.
const (
	DispatchStatusSent       = "sent"
	DispatchStatusFailed     = "failed"
	DispatchStatusSuppressed = "suppressed"
)

// Notification channels.
const (
	ChannelEmail     = "email"
	ChannelSMS       = "sms"
	ChannelWebsocket = "websocket"
	ChannelPush      = "push"
)

// DispatchLogEntry is an immutable record of one delivery attempt,
// successful or not, kept for audit and for resend deduplication.
type DispatchLogEntry struct {
	ID               string
	EventType        string
	Severity         string
	ServiceRequestID int
	RecipientID      int
	Channel          string
	Address          string
	Status           string
	Error            string
	CreatedAt        time.Time
}
