package application

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/SARVESHVARADKAR123/RealChat/services/chat/internal/dispatcher"
	"github.com/SARVESHVARADKAR123/RealChat/services/chat/internal/domain"
	"github.com/SARVESHVARADKAR123/RealChat/services/chat/internal/store"
)

type MessageStore interface {
	Create(ctx context.Context, p store.CreateParams) (*domain.Message, error)
	Conversation(ctx context.Context, userA, userB string) ([]*domain.Message, error)
	Delete(ctx context.Context, id, requesterID string) (*domain.Message, error)
}

type Deliverer interface {
	Deliver(ctx context.Context, msg *domain.Message, event domain.EventName) dispatcher.Outcome
	NotifyDeleted(ctx context.Context, msg *domain.Message) dispatcher.Outcome
}

type Service struct {
	store     MessageStore
	deliverer Deliverer
	log       *zap.Logger

	// Clock is used for schedule validation and read-side gating.
	Clock func() time.Time
}

func New(store MessageStore, deliverer Deliverer, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		store:     store,
		deliverer: deliverer,
		log:       log,
		Clock:     func() time.Time { return time.Now().UTC().Truncate(domain.TimePrecision) },
	}
}
