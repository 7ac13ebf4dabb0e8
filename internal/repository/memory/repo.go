package memory

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	"github.com/SARVESHVARADKAR123/RealChat/services/chat/internal/domain"
	"github.com/SARVESHVARADKAR123/RealChat/services/chat/internal/repository"
)

// OutboxEvent is a recorded outbox row.
type OutboxEvent struct {
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// Repository keeps messages in process memory. It ignores the tx argument;
// every method is atomic on its own.
type Repository struct {
	mu       sync.RWMutex
	messages map[string]*domain.Message
	nextSeq  int64
	outbox   []OutboxEvent
}

var _ repository.Repository = (*Repository)(nil)

func New() *Repository {
	return &Repository{
		messages: make(map[string]*domain.Message),
	}
}

func clone(m *domain.Message) *domain.Message {
	c := *m
	if m.Payload.Attachment != nil {
		a := *m.Payload.Attachment
		c.Payload.Attachment = &a
	}
	if m.DeferredUntil != nil {
		t := *m.DeferredUntil
		c.DeferredUntil = &t
	}
	if m.DeliveredAt != nil {
		t := *m.DeliveredAt
		c.DeliveredAt = &t
	}
	return &c
}

func (r *Repository) InsertMessage(ctx context.Context, tx *sql.Tx, msg *domain.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextSeq++
	msg.Sequence = r.nextSeq
	r.messages[msg.ID] = clone(msg)
	return nil
}

func (r *Repository) GetMessageForUpdate(ctx context.Context, tx *sql.Tx, messageID string) (*domain.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	msg, ok := r.messages[messageID]
	if !ok {
		return nil, domain.ErrMessageNotFound
	}
	return clone(msg), nil
}

func (r *Repository) DeleteMessage(ctx context.Context, tx *sql.Tx, messageID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.messages[messageID]; !ok {
		return domain.ErrMessageNotFound
	}
	delete(r.messages, messageID)
	return nil
}

func (r *Repository) FetchConversation(ctx context.Context, userA, userB string) ([]*domain.Message, error) {
	key := domain.ConversationKey(userA, userB)

	r.mu.RLock()
	var out []*domain.Message
	for _, m := range r.messages {
		if m.ConversationKey() == key {
			out = append(out, clone(m))
		}
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].Sequence < out[j].Sequence
	})
	return out, nil
}

func (r *Repository) MarkDelivered(ctx context.Context, tx *sql.Tx, messageID string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	msg, ok := r.messages[messageID]
	if !ok {
		return false, domain.ErrMessageNotFound
	}
	if msg.State != domain.StatePendingDeferred {
		return false, nil
	}
	msg.State = domain.StateDelivered
	msg.DeliveredAt = &at
	return true, nil
}

func (r *Repository) FetchDue(ctx context.Context, now time.Time, after repository.DueCursor, limit int) ([]*domain.Message, error) {
	r.mu.RLock()
	var out []*domain.Message
	for _, m := range r.messages {
		if m.State != domain.StatePendingDeferred || m.DeferredUntil == nil {
			continue
		}
		if m.DeferredUntil.After(now) || !afterCursor(m, after) {
			continue
		}
		out = append(out, clone(m))
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].DeferredUntil.Equal(*out[j].DeferredUntil) {
			return out[i].DeferredUntil.Before(*out[j].DeferredUntil)
		}
		return out[i].Sequence < out[j].Sequence
	})

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func afterCursor(m *domain.Message, c repository.DueCursor) bool {
	if m.DeferredUntil.After(c.DeferredUntil) {
		return true
	}
	return m.DeferredUntil.Equal(c.DeferredUntil) && m.Sequence > c.Sequence
}

func (r *Repository) InsertOutbox(ctx context.Context, tx *sql.Tx, aggregateType, aggregateID, eventType string, payload []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.outbox = append(r.outbox, OutboxEvent{
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		EventType:     eventType,
		Payload:       payload,
	})
	return nil
}

// Outbox returns a copy of the recorded outbox events in insertion order.
func (r *Repository) Outbox() []OutboxEvent {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]OutboxEvent, len(r.outbox))
	copy(out, r.outbox)
	return out
}
