// Package tx carries a *sql.Tx through context so the postgres stores can
// join a caller-managed unit of work. Every store routes its statements
// through the ambient transaction when one is present and falls back to the
// connection pool otherwise.
package tx

import (
	"context"
	"database/sql"
)

type ctxKey struct{}

// WithTx returns a context whose store calls run inside tx. A nil tx leaves
// the context untouched.
func WithTx(ctx context.Context, tx *sql.Tx) context.Context {
	if tx == nil {
		return ctx
	}
	return context.WithValue(ctx, ctxKey{}, tx)
}

// From reports the ambient transaction, if any.
func From(ctx context.Context) (*sql.Tx, bool) {
	tx, ok := ctx.Value(ctxKey{}).(*sql.Tx)
	return tx, ok
}
