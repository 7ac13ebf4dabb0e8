package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/SARVESHVARADKAR123/RealChat/services/chat/internal/domain"
)

// DueCursor is the keyset position of the last message returned by
// FetchDue. The zero value starts from the beginning.
type DueCursor struct {
	DeferredUntil time.Time
	Sequence      int64
}

// Repository methods accept a nil tx to run outside a transaction.
type Repository interface {
	// Messaging
	InsertMessage(ctx context.Context, tx *sql.Tx, msg *domain.Message) error
	GetMessageForUpdate(ctx context.Context, tx *sql.Tx, messageID string) (*domain.Message, error)
	DeleteMessage(ctx context.Context, tx *sql.Tx, messageID string) error
	FetchConversation(ctx context.Context, userA, userB string) ([]*domain.Message, error)

	// Scheduling
	MarkDelivered(ctx context.Context, tx *sql.Tx, messageID string, at time.Time) (bool, error)
	FetchDue(ctx context.Context, now time.Time, after DueCursor, limit int) ([]*domain.Message, error)

	// Outbox
	InsertOutbox(ctx context.Context, tx *sql.Tx, aggregateType, aggregateID, eventType string, payload []byte) error
}
