package application

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/SARVESHVARADKAR123/RealChat/services/chat/internal/domain"
	"github.com/SARVESHVARADKAR123/RealChat/services/chat/internal/observability"
	"github.com/SARVESHVARADKAR123/RealChat/services/chat/internal/store"
)

type ScheduleMessageCommand struct {
	SenderID    string
	RecipientID string
	Payload     domain.Payload
	At          time.Time
}

// ScheduleMessage persists a message that becomes visible and is pushed
// once At is reached. Nothing is dispatched here.
func (s *Service) ScheduleMessage(
	ctx context.Context,
	cmd ScheduleMessageCommand,
) (*domain.Message, error) {

	if !cmd.At.After(s.Clock()) {
		return nil, domain.ErrScheduleInPast
	}

	at := cmd.At
	msg, err := s.store.Create(ctx, store.CreateParams{
		SenderID:      cmd.SenderID,
		RecipientID:   cmd.RecipientID,
		Payload:       cmd.Payload,
		DeferredUntil: &at,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to schedule message: %w", err)
	}
	observability.MessagesCreatedTotal.WithLabelValues(string(msg.State)).Inc()

	s.log.Info("message scheduled",
		zap.String("message_id", msg.ID),
		zap.String("sender_id", msg.SenderID),
		zap.String("recipient_id", msg.RecipientID),
		zap.Time("deferred_until", at),
	)

	return msg, nil
}
