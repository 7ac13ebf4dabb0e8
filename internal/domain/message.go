package domain

import (
	"strings"
	"time"
)

const MaxTextSize = 5000

// TimePrecision is the resolution instants are kept at, matching postgres
// timestamptz.
const TimePrecision = time.Microsecond

type DeliveryState string

const (
	StateImmediate       DeliveryState = "immediate"
	StatePendingDeferred DeliveryState = "pending_deferred"
	StateDelivered       DeliveryState = "delivered"
)

type AttachmentKind string

const (
	AttachmentImage    AttachmentKind = "image"
	AttachmentDocument AttachmentKind = "document"
)

type Attachment struct {
	Kind AttachmentKind `json:"kind"`
	Ref  string         `json:"ref"`
}

// Payload holds at most one of Text or Attachment.
type Payload struct {
	Text       string      `json:"text,omitempty"`
	Attachment *Attachment `json:"attachment,omitempty"`
}

func (p Payload) IsEmpty() bool {
	return strings.TrimSpace(p.Text) == "" && (p.Attachment == nil || p.Attachment.Ref == "")
}

func (p Payload) Validate() error {
	hasText := strings.TrimSpace(p.Text) != ""
	hasAttachment := p.Attachment != nil

	switch {
	case hasText && hasAttachment:
		return ErrMultiplePayloads
	case !hasText && !hasAttachment:
		return ErrEmptyPayload
	case hasAttachment:
		if p.Attachment.Ref == "" {
			return ErrEmptyPayload
		}
		if p.Attachment.Kind != AttachmentImage && p.Attachment.Kind != AttachmentDocument {
			return ErrInvalidMessage
		}
	}

	if len(p.Text) > MaxTextSize {
		return ErrMessageTooLarge
	}
	return nil
}

// Message Invariants:
// 1. Immutability: everything except State and DeliveredAt is fixed at creation.
// 2. Deferral: State is StatePendingDeferred iff DeferredUntil was supplied and lies after CreatedAt.
// 3. Transitions: only StatePendingDeferred -> StateDelivered, exactly once.
//
// Payload is embedded so text and attachment encode at the top level.
type Message struct {
	Payload

	ID            string        `json:"id"`
	SenderID      string        `json:"sender_id"`
	RecipientID   string        `json:"recipient_id"`
	CreatedAt     time.Time     `json:"created_at"`
	DeferredUntil *time.Time    `json:"deferred_until,omitempty"`
	State         DeliveryState `json:"delivery_state"`
	DeliveredAt   *time.Time    `json:"delivered_at,omitempty"`
	Sequence      int64         `json:"-"` // store-assigned insertion order
}

func NewMessage(
	id string,
	senderID string,
	recipientID string,
	payload Payload,
	deferredUntil *time.Time,
	now time.Time,
) (*Message, error) {

	if id == "" || senderID == "" || recipientID == "" {
		return nil, ErrInvalidMessage
	}

	if err := payload.Validate(); err != nil {
		return nil, err
	}

	now = now.UTC().Truncate(TimePrecision)

	msg := &Message{
		ID:          id,
		SenderID:    senderID,
		RecipientID: recipientID,
		Payload:     payload,
		CreatedAt:   now,
		State:       StateImmediate,
	}

	if deferredUntil != nil {
		at := deferredUntil.UTC().Truncate(TimePrecision)
		if at.Before(now) {
			return nil, ErrScheduleInPast
		}
		msg.DeferredUntil = &at
		if at.After(now) {
			msg.State = StatePendingDeferred
		}
	}

	return msg, nil
}

// IsDue reports whether the deferral target has been reached at now.
func (m *Message) IsDue(now time.Time) bool {
	return m.DeferredUntil == nil || !now.Before(*m.DeferredUntil)
}

// VisibleTo applies read-side gating: the sender always sees their own
// messages, everyone else only once the message is due.
func (m *Message) VisibleTo(viewerID string, now time.Time) bool {
	if viewerID == m.SenderID {
		return true
	}
	return m.IsDue(now)
}

func (m *Message) ConversationKey() string {
	return ConversationKey(m.SenderID, m.RecipientID)
}

// ConversationKey identifies the direct conversation between two users
// independently of argument order.
func ConversationKey(userA, userB string) string {
	if userA > userB {
		userA, userB = userB, userA
	}
	return "direct:" + userA + ":" + userB
}
