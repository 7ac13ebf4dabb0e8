package websocket

import (
	"encoding/json"
	"time"

	"github.com/SARVESHVARADKAR123/RealChat/services/chat/internal/domain"
	"github.com/SARVESHVARADKAR123/RealChat/services/chat/internal/transport"
)

// Client command types.
const (
	CommandSend         = "send"
	CommandSchedule     = "schedule"
	CommandDelete       = "delete"
	CommandConversation = "conversation"
	CommandOnline       = "online"
)

// Server-originated event names besides the push events in domain.
const (
	EventAck       = "ack"
	EventError     = "error"
	EventConnected = "connected"
)

// Command is a client frame. Fields are used according to Type.
type Command struct {
	Type        string          `json:"type"`
	RequestID   string          `json:"request_id,omitempty"`
	RecipientID string          `json:"recipient_id,omitempty"`
	Payload     *domain.Payload `json:"payload,omitempty"`
	At          *time.Time      `json:"at,omitempty"`
	MessageID   string          `json:"message_id,omitempty"`
	PeerID      string          `json:"peer_id,omitempty"`
}

type Reply struct {
	Event     string           `json:"event"`
	RequestID string           `json:"request_id,omitempty"`
	Payload   any              `json:"payload,omitempty"`
	Error     *transport.Error `json:"error,omitempty"`
}

var errMalformed = &transport.Error{Code: transport.CodeInvalidArgument, Message: "malformed command"}

func decodeCommand(raw []byte) (Command, error) {
	var cmd Command
	if err := json.Unmarshal(raw, &cmd); err != nil {
		return cmd, errMalformed
	}
	return cmd, nil
}

func ack(requestID string, payload any) Reply {
	return Reply{Event: EventAck, RequestID: requestID, Payload: payload}
}

func failure(requestID string, err *transport.Error) Reply {
	return Reply{Event: EventError, RequestID: requestID, Error: err}
}
