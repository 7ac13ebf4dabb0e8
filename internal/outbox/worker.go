package outbox

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/SARVESHVARADKAR123/RealChat/services/chat/internal/observability"
)

const defaultMaxRetries = 3

type Publisher interface {
	Publish(ctx context.Context, key string, value []byte) error
}

// Worker relays rows of outbox_events to a Publisher. Several workers may
// poll the same table; rows are claimed with FOR UPDATE SKIP LOCKED.
type Worker struct {
	DB         *sql.DB
	Publisher  Publisher
	BatchSize  int
	PollDelay  time.Duration
	MaxRetries int
	Log        *zap.Logger
}

func (w *Worker) Start(ctx context.Context) {
	log := w.logger()
	log.Info("outbox worker started")

	for {
		select {
		case <-ctx.Done():
			log.Info("outbox worker stopping")
			return
		default:
		}

		n, err := w.ProcessBatch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Error("outbox error", zap.Error(err))
			sleep(ctx, time.Second)
			continue
		}
		if n == 0 {
			sleep(ctx, w.PollDelay)
		}
	}
}

type event struct {
	id            int64
	aggregateType string
	aggregateID   string
	eventType     string
	payload       []byte
	createdAt     time.Time
	retryCount    int
}

// ProcessBatch publishes one batch of pending events in id order and returns
// how many rows it claimed. The first publish failure stops the batch so
// that later events of the same aggregate are not sent ahead of it.
func (w *Worker) ProcessBatch(ctx context.Context) (int, error) {
	tx, err := w.DB.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	events, err := claim(ctx, tx, w.batchSize())
	if err != nil {
		return 0, err
	}
	if len(events) == 0 {
		return 0, nil
	}

	var batchErr error
	for _, e := range events {
		if err := w.Publisher.Publish(ctx, e.aggregateID, e.payload); err != nil {
			observability.OutboxFailuresTotal.Inc()
			if dbErr := w.recordFailure(ctx, tx, e, err); dbErr != nil {
				return 0, dbErr
			}
			batchErr = fmt.Errorf("publish event %d: %w", e.id, err)
			break
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE outbox_events SET processed_at = now() WHERE id = $1
		`, e.id); err != nil {
			return 0, err
		}
		observability.OutboxPublishedTotal.Inc()
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return len(events), batchErr
}

func claim(ctx context.Context, tx *sql.Tx, limit int) ([]event, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT id, aggregate_type, aggregate_id, event_type, payload, created_at, retry_count
		FROM outbox_events
		WHERE processed_at IS NULL
		ORDER BY id
		FOR UPDATE SKIP LOCKED
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []event
	for rows.Next() {
		var e event
		if err := rows.Scan(&e.id, &e.aggregateType, &e.aggregateID, &e.eventType, &e.payload, &e.createdAt, &e.retryCount); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// recordFailure bumps the retry counter, or moves the event to outbox_dlq
// once it has used up its retries.
func (w *Worker) recordFailure(ctx context.Context, tx *sql.Tx, e event, cause error) error {
	maxRetries := w.MaxRetries
	if maxRetries == 0 {
		maxRetries = defaultMaxRetries
	}

	if e.retryCount < maxRetries {
		_, err := tx.ExecContext(ctx, `
			UPDATE outbox_events
			SET retry_count = retry_count + 1, error = $2
			WHERE id = $1
		`, e.id, cause.Error())
		return err
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO outbox_dlq (id, aggregate_type, aggregate_id, event_type, payload, created_at, failed_at, error, retry_count)
		VALUES ($1, $2, $3, $4, $5, $6, now(), $7, $8)
	`, e.id, e.aggregateType, e.aggregateID, e.eventType, e.payload, e.createdAt, cause.Error(), e.retryCount+1); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM outbox_events WHERE id = $1`, e.id); err != nil {
		return err
	}

	observability.OutboxDeadLetteredTotal.Inc()
	w.logger().Warn("outbox event dead-lettered",
		zap.Int64("id", e.id),
		zap.String("aggregate_id", e.aggregateID),
		zap.String("event_type", e.eventType),
		zap.Error(cause),
	)
	return nil
}

func (w *Worker) batchSize() int {
	if w.BatchSize <= 0 {
		return 50
	}
	return w.BatchSize
}

func (w *Worker) logger() *zap.Logger {
	if w.Log == nil {
		return zap.NewNop()
	}
	return w.Log
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
