package application

import (
	"context"

	"github.com/SARVESHVARADKAR123/RealChat/services/chat/internal/domain"
)

type ConversationQuery struct {
	ViewerID string
	PeerID   string
}

// Conversation returns the messages between viewer and peer that the viewer
// may see right now, oldest first. Deferred messages stay hidden from the
// recipient until due, regardless of whether a sweep has run.
func (s *Service) Conversation(
	ctx context.Context,
	q ConversationQuery,
) ([]*domain.Message, error) {

	if q.ViewerID == "" || q.PeerID == "" {
		return nil, domain.ErrInvalidMessage
	}

	msgs, err := s.store.Conversation(ctx, q.ViewerID, q.PeerID)
	if err != nil {
		return nil, err
	}

	now := s.Clock()
	visible := make([]*domain.Message, 0, len(msgs))
	for _, m := range msgs {
		if m.VisibleTo(q.ViewerID, now) {
			visible = append(visible, m)
		}
	}
	return visible, nil
}
