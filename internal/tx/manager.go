package tx

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
)

const maxRetries = 5

var ErrRetryExhausted = errors.New("transaction retry exhausted")

type Manager struct {
	DB *sql.DB
}

func (m *Manager) WithTx(
	ctx context.Context,
	fn func(ctx context.Context, tx *sql.Tx) error,
) error {

	for i := 0; i < maxRetries; i++ {

		tx, err := m.DB.BeginTx(ctx, &sql.TxOptions{
			Isolation: sql.LevelReadCommitted,
		})
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}

		err = fn(ctx, tx)
		if err != nil {
			_ = tx.Rollback()
			if isRetryable(err) {
				continue
			}
			return err
		}

		if err := tx.Commit(); err != nil {
			if isRetryable(err) {
				continue
			}
			return fmt.Errorf("commit tx: %w", err)
		}

		return nil
	}

	return ErrRetryExhausted
}

// isRetryable matches serialization failures and deadlocks.
func isRetryable(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	return pqErr.Code == "40001" || pqErr.Code == "40P01"
}
