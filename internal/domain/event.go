package domain

import "time"

// EventName is the push event a connected client receives.
type EventName string

const (
	EventNewMessage       EventName = "newMessage"
	EventScheduledMessage EventName = "scheduledMessage"
	EventMessageDeleted   EventName = "messageDeleted"
)

// Outbox event types, published to the message-events topic.
const (
	EventTypeMessageSent      = "MESSAGE_SENT"
	EventTypeMessageScheduled = "MESSAGE_SCHEDULED"
	EventTypeMessageDelivered = "MESSAGE_DELIVERED"
	EventTypeMessageDeleted   = "MESSAGE_DELETED"
)

const AggregateMessage = "message"

// EventEnvelope wraps every outbox payload.
type EventEnvelope struct {
	EventType     string    `json:"event_type"`
	SchemaVersion int       `json:"schema_version"`
	OccurredAt    time.Time `json:"occurred_at"`
	MessageID     string    `json:"message_id"`
	Message       *Message  `json:"message,omitempty"`
}
