package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/SARVESHVARADKAR123/RealChat/services/chat/internal/domain"
	"github.com/SARVESHVARADKAR123/RealChat/services/chat/internal/repository"
)

type Repository struct {
	DB *sql.DB
}

var _ repository.Repository = (*Repository)(nil)

type queryable interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func (r *Repository) getter(tx *sql.Tx) queryable {
	if tx != nil {
		return tx
	}
	return r.DB
}

const messageColumns = `
	id, seq, sender_id, recipient_id, text, attachment_kind, attachment_ref,
	created_at, deferred_until, delivery_state, delivered_at`

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanMessage(row scanner) (*domain.Message, error) {
	var msg domain.Message
	var text, attKind, attRef sql.NullString
	var deferredUntil, deliveredAt sql.NullTime

	if err := row.Scan(
		&msg.ID,
		&msg.Sequence,
		&msg.SenderID,
		&msg.RecipientID,
		&text,
		&attKind,
		&attRef,
		&msg.CreatedAt,
		&deferredUntil,
		&msg.State,
		&deliveredAt,
	); err != nil {
		return nil, err
	}

	msg.Payload.Text = text.String
	if attRef.Valid {
		msg.Payload.Attachment = &domain.Attachment{
			Kind: domain.AttachmentKind(attKind.String),
			Ref:  attRef.String,
		}
	}
	msg.CreatedAt = msg.CreatedAt.UTC()
	if deferredUntil.Valid {
		t := deferredUntil.Time.UTC()
		msg.DeferredUntil = &t
	}
	if deliveredAt.Valid {
		t := deliveredAt.Time.UTC()
		msg.DeliveredAt = &t
	}
	return &msg, nil
}

func scanMessages(rows *sql.Rows) ([]*domain.Message, error) {
	defer rows.Close()

	var messages []*domain.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func (r *Repository) InsertMessage(
	ctx context.Context,
	tx *sql.Tx,
	msg *domain.Message,
) error {
	var attKind, attRef interface{}
	if a := msg.Payload.Attachment; a != nil {
		attKind, attRef = string(a.Kind), a.Ref
	}

	q := r.getter(tx)
	return q.QueryRowContext(ctx, `
		INSERT INTO messages (
			id, conversation_key, sender_id, recipient_id,
			text, attachment_kind, attachment_ref,
			created_at, deferred_until, delivery_state
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		RETURNING seq
	`,
		msg.ID,
		msg.ConversationKey(),
		msg.SenderID,
		msg.RecipientID,
		nullString(msg.Payload.Text),
		attKind,
		attRef,
		msg.CreatedAt,
		msg.DeferredUntil,
		msg.State,
	).Scan(&msg.Sequence)
}

func (r *Repository) GetMessageForUpdate(
	ctx context.Context,
	tx *sql.Tx,
	messageID string,
) (*domain.Message, error) {

	query := `SELECT` + messageColumns + ` FROM messages WHERE id = $1`
	if tx != nil {
		query += " FOR UPDATE"
	}

	msg, err := scanMessage(r.getter(tx).QueryRowContext(ctx, query, messageID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrMessageNotFound
		}
		return nil, err
	}
	return msg, nil
}

func (r *Repository) DeleteMessage(
	ctx context.Context,
	tx *sql.Tx,
	messageID string,
) error {
	q := r.getter(tx)
	res, err := q.ExecContext(ctx, `DELETE FROM messages WHERE id = $1`, messageID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrMessageNotFound
	}
	return nil
}

func (r *Repository) FetchConversation(
	ctx context.Context,
	userA, userB string,
) ([]*domain.Message, error) {

	rows, err := r.DB.QueryContext(ctx, `
		SELECT`+messageColumns+`
		FROM messages
		WHERE conversation_key = $1
		ORDER BY created_at ASC, seq ASC
	`, domain.ConversationKey(userA, userB))
	if err != nil {
		return nil, err
	}
	return scanMessages(rows)
}

// MarkDelivered is a conditional update: only the caller whose UPDATE
// matched the pending row gets true.
func (r *Repository) MarkDelivered(
	ctx context.Context,
	tx *sql.Tx,
	messageID string,
	at time.Time,
) (bool, error) {

	q := r.getter(tx)
	res, err := q.ExecContext(ctx, `
		UPDATE messages
		SET delivery_state = 'delivered', delivered_at = $2
		WHERE id = $1 AND delivery_state = 'pending_deferred'
	`, messageID, at)
	if err != nil {
		return false, err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 1 {
		return true, nil
	}

	var exists int
	err = q.QueryRowContext(ctx, `SELECT 1 FROM messages WHERE id = $1`, messageID).Scan(&exists)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, domain.ErrMessageNotFound
		}
		return false, err
	}
	return false, nil
}

func (r *Repository) FetchDue(
	ctx context.Context,
	now time.Time,
	after repository.DueCursor,
	limit int,
) ([]*domain.Message, error) {

	rows, err := r.DB.QueryContext(ctx, `
		SELECT`+messageColumns+`
		FROM messages
		WHERE delivery_state = 'pending_deferred'
		  AND deferred_until <= $1
		  AND (deferred_until, seq) > ($2, $3)
		ORDER BY deferred_until ASC, seq ASC
		LIMIT $4
	`, now, after.DeferredUntil, after.Sequence, limit)
	if err != nil {
		return nil, err
	}
	return scanMessages(rows)
}

func (r *Repository) InsertOutbox(
	ctx context.Context,
	tx *sql.Tx,
	aggregateType, aggregateID, eventType string,
	payload []byte,
) error {
	q := r.getter(tx)
	_, err := q.ExecContext(ctx, `
        INSERT INTO outbox_events (aggregate_type, aggregate_id, event_type, payload)
        VALUES ($1, $2, $3, $4)
    `, aggregateType, aggregateID, eventType, payload)
	return err
}
