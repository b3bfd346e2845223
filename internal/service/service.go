// Package service holds the business logic between the HTTP handlers and
// the repositories.
package service

import (
	"context"
)

// TxRunner runs fn inside a transaction shared through ctx.
// database.TxManager implements it.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// NoTx runs fn directly. It serves stores without transactions.
type NoTx struct{}

// WithTx calls fn with ctx.
func (NoTx) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}
