package application

import (
	"context"

	"go.uber.org/zap"
)

type DeleteMessageCommand struct {
	RequesterID string
	MessageID   string
}

func (s *Service) DeleteMessage(
	ctx context.Context,
	cmd DeleteMessageCommand,
) error {

	msg, err := s.store.Delete(ctx, cmd.MessageID, cmd.RequesterID)
	if err != nil {
		return err
	}

	// A recipient who never saw a pending scheduled message is not told
	// about its removal.
	if msg.VisibleTo(msg.RecipientID, s.Clock()) {
		s.deliverer.NotifyDeleted(ctx, msg)
	}

	s.log.Info("message deleted",
		zap.String("message_id", msg.ID),
		zap.String("requester_id", cmd.RequesterID),
		zap.String("state", string(msg.State)),
	)
	return nil
}
