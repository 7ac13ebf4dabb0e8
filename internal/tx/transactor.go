package tx

import (
	"context"
	"database/sql"
)

// Transactor runs fn inside a transaction. Implementations without a
// database (the in-memory store) pass a nil *sql.Tx.
type Transactor interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, tx *sql.Tx) error) error
}

// Nop runs fn directly with a nil transaction.
type Nop struct{}

func (Nop) WithTx(ctx context.Context, fn func(ctx context.Context, tx *sql.Tx) error) error {
	return fn(ctx, nil)
}
