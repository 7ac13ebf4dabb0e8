package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"iter"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/SARVESHVARADKAR123/RealChat/services/chat/internal/domain"
	"github.com/SARVESHVARADKAR123/RealChat/services/chat/internal/repository"
	"github.com/SARVESHVARADKAR123/RealChat/services/chat/internal/tx"
)

const DefaultPageSize = 100

// Store is the durable record of messages and the owner of the delivery
// state machine. Every state change writes an outbox event in the same
// transaction.
type Store struct {
	repo repository.Repository
	tx   tx.Transactor
	log  *zap.Logger

	// Clock returns the creation and delivery instants. Defaults to UTC now
	// at domain.TimePrecision.
	Clock func() time.Time
	// PageSize bounds each due-message query issued by DueForDelivery.
	PageSize int
}

func New(repo repository.Repository, transactor tx.Transactor, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{
		repo:     repo,
		tx:       transactor,
		log:      log,
		Clock:    func() time.Time { return time.Now().UTC().Truncate(domain.TimePrecision) },
		PageSize: DefaultPageSize,
	}
}

type CreateParams struct {
	SenderID      string
	RecipientID   string
	Payload       domain.Payload
	DeferredUntil *time.Time
}

func (s *Store) Create(ctx context.Context, p CreateParams) (*domain.Message, error) {
	msg, err := domain.NewMessage(
		uuid.NewString(),
		p.SenderID,
		p.RecipientID,
		p.Payload,
		p.DeferredUntil,
		s.Clock(),
	)
	if err != nil {
		return nil, err
	}

	eventType := domain.EventTypeMessageSent
	if msg.State == domain.StatePendingDeferred {
		eventType = domain.EventTypeMessageScheduled
	}

	err = s.tx.WithTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if err := s.repo.InsertMessage(ctx, tx, msg); err != nil {
			return fmt.Errorf("failed to save message: %w", err)
		}
		return s.emit(ctx, tx, eventType, msg.ID, msg)
	})
	if err != nil {
		return nil, err
	}

	s.log.Debug("message stored",
		zap.String("message_id", msg.ID),
		zap.String("state", string(msg.State)),
	)
	return msg, nil
}

// MarkDelivered moves a pending deferred message to delivered. It reports
// true only to the caller that performed the transition.
func (s *Store) MarkDelivered(ctx context.Context, id string) (bool, error) {
	var changed bool
	now := s.Clock()

	err := s.tx.WithTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		ok, err := s.repo.MarkDelivered(ctx, tx, id, now)
		if err != nil {
			return err
		}
		changed = ok
		if !ok {
			return nil
		}
		return s.emit(ctx, tx, domain.EventTypeMessageDelivered, id, nil)
	})
	if err != nil {
		return false, err
	}
	return changed, nil
}

// DueForDelivery yields pending deferred messages due at now, earliest
// first. Each call starts a fresh keyset walk; iteration stops at the first
// query error, which is yielded.
func (s *Store) DueForDelivery(ctx context.Context, now time.Time) iter.Seq2[*domain.Message, error] {
	return func(yield func(*domain.Message, error) bool) {
		pageSize := s.PageSize
		if pageSize <= 0 {
			pageSize = DefaultPageSize
		}

		var cursor repository.DueCursor
		for {
			page, err := s.repo.FetchDue(ctx, now, cursor, pageSize)
			if err != nil {
				yield(nil, fmt.Errorf("failed to fetch due messages: %w", err))
				return
			}

			for _, msg := range page {
				if !yield(msg, nil) {
					return
				}
			}

			if len(page) < pageSize {
				return
			}
			last := page[len(page)-1]
			cursor = repository.DueCursor{
				DeferredUntil: *last.DeferredUntil,
				Sequence:      last.Sequence,
			}
		}
	}
}

// Conversation returns every message exchanged between the two users,
// oldest first. Deferred messages that are not yet due are included;
// callers apply visibility with Message.VisibleTo.
func (s *Store) Conversation(ctx context.Context, userA, userB string) ([]*domain.Message, error) {
	msgs, err := s.repo.FetchConversation(ctx, userA, userB)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch conversation: %w", err)
	}
	return msgs, nil
}

// Delete hard-deletes a message. Only its sender may do so.
func (s *Store) Delete(ctx context.Context, id, requesterID string) (*domain.Message, error) {
	var deleted *domain.Message

	err := s.tx.WithTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		msg, err := s.repo.GetMessageForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}

		if msg.SenderID != requesterID {
			return domain.ErrNotSender
		}

		if err := s.repo.DeleteMessage(ctx, tx, id); err != nil {
			return err
		}

		deleted = msg
		return s.emit(ctx, tx, domain.EventTypeMessageDeleted, id, nil)
	})
	if err != nil {
		return nil, err
	}
	return deleted, nil
}

func (s *Store) emit(ctx context.Context, tx *sql.Tx, eventType, messageID string, msg *domain.Message) error {
	payload, err := json.Marshal(domain.EventEnvelope{
		EventType:     eventType,
		SchemaVersion: 1,
		OccurredAt:    s.Clock(),
		MessageID:     messageID,
		Message:       msg,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal event payload: %w", err)
	}

	if err := s.repo.InsertOutbox(ctx, tx, domain.AggregateMessage, messageID, eventType, payload); err != nil {
		return fmt.Errorf("failed to save outbox event: %w", err)
	}
	return nil
}
