package idempotency

import (
	"context"
	"errors"

	loanerrors "github.com/cschwartz85032/loanserve-sub010/internal/errors"
)

// fastChecker is implemented by CachedStore; plain PostgresStore callers
// skip the Redis fast path entirely.
type fastChecker interface {
	FastDoneCheck(ctx context.Context, handler, key string) bool
}

// Wrapper implements wrap(name, fn) from spec §4.4: dedup by (handler,
// idempotency_key), short-circuiting on a terminal prior result, rejecting
// (for redelivery) when the key is already in flight, and otherwise running
// fn inside the same local transaction as the bookkeeping rows.
type Wrapper struct {
	Store Store
}

func NewWrapper(store Store) *Wrapper {
	return &Wrapper{Store: store}
}

// Wrap runs fn exactly once per (name, key), per spec §4.4.
func (w *Wrapper) Wrap(ctx context.Context, name, key string, fn func(ctx context.Context) error) error {
	if fc, ok := w.Store.(fastChecker); ok && fc.FastDoneCheck(ctx, name, key) {
		return nil
	}

	return w.Store.WithTx(ctx, func(txCtx context.Context) error {
		rec, err := w.Store.Lookup(txCtx, name, key)

		switch {
		case err == nil && rec.ResultState == StateDone:
			return nil
		case err == nil && rec.ResultState == StateInFlight:
			return loanerrors.TransientIOError{
				Op:      name,
				Message: "idempotency key " + key + " is already in flight; forcing redelivery",
			}
		case err != nil && !errors.Is(err, ErrNotFound):
			return err
		}

		if err := w.Store.Begin(txCtx, name, key); err != nil {
			// a concurrent handler won the insert race; treat as in-flight
			// and force redelivery rather than double-running fn.
			return loanerrors.TransientIOError{Op: name, Message: "idempotency insert race: " + err.Error()}
		}

		if err := fn(txCtx); err != nil {
			return err
		}

		return w.Store.Complete(txCtx, name, key)
	})
}
