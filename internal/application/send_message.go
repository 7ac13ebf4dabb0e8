package application

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/SARVESHVARADKAR123/RealChat/services/chat/internal/domain"
	"github.com/SARVESHVARADKAR123/RealChat/services/chat/internal/observability"
	"github.com/SARVESHVARADKAR123/RealChat/services/chat/internal/store"
)

type SendMessageCommand struct {
	SenderID    string
	RecipientID string
	Payload     domain.Payload
}

// SendMessage persists the message and makes exactly one push attempt.
// The stored message is returned whether or not the recipient was reached.
func (s *Service) SendMessage(
	ctx context.Context,
	cmd SendMessageCommand,
) (*domain.Message, error) {

	if cmd.Payload.IsEmpty() {
		return nil, domain.ErrEmptyPayload
	}

	msg, err := s.store.Create(ctx, store.CreateParams{
		SenderID:    cmd.SenderID,
		RecipientID: cmd.RecipientID,
		Payload:     cmd.Payload,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create message: %w", err)
	}
	observability.MessagesCreatedTotal.WithLabelValues(string(msg.State)).Inc()

	outcome := s.deliverer.Deliver(ctx, msg, domain.EventNewMessage)

	s.log.Info("message sent",
		zap.String("message_id", msg.ID),
		zap.String("sender_id", msg.SenderID),
		zap.String("recipient_id", msg.RecipientID),
		zap.Stringer("outcome", outcome),
	)

	return msg, nil
}
