package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

type txKey struct{}

// Tx is a database transaction with hooks that run only after a successful commit
type Tx struct {
	tx          *sqlx.Tx
	logger      *zap.Logger
	afterCommit []func()
	done        bool
}

// ContextWithTx returns a context carrying tx. Store calls made with it join the transaction.
func ContextWithTx(ctx context.Context, tx *Tx) context.Context {
	return context.WithValue(ctx, txKey{}, tx)
}

// TxFromContext returns the transaction carried by ctx, if any
func TxFromContext(ctx context.Context) (*Tx, bool) {
	tx, ok := ctx.Value(txKey{}).(*Tx)
	if !ok || tx == nil || tx.done {
		return nil, false
	}
	return tx, true
}

// Begin starts a transaction. Callers own Commit/Rollback.
func (s *DB) Begin(ctx context.Context) (*Tx, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return &Tx{tx: tx, logger: s.logger}, nil
}

// AfterCommit registers fn to run once the transaction commits. Rolled back work never triggers it.
func (t *Tx) AfterCommit(fn func()) {
	t.afterCommit = append(t.afterCommit, fn)
}

// Commit commits the transaction and runs the after-commit hooks in registration order
func (t *Tx) Commit() error {
	if t.done {
		return errors.New("transaction already finished")
	}
	t.done = true
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	for _, fn := range t.afterCommit {
		fn()
	}
	t.afterCommit = nil
	return nil
}

// Rollback aborts the transaction. Calling it after Commit is a no-op.
func (t *Tx) Rollback() error {
	if t.done {
		return nil
	}
	t.done = true
	t.afterCommit = nil
	return t.tx.Rollback()
}

// WithinTx runs fn inside a transaction. If ctx already carries one, fn joins it and
// the owner of that transaction decides the outcome; otherwise a new transaction is
// committed when fn returns nil and rolled back otherwise.
func (s *DB) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := TxFromContext(ctx); ok {
		return fn(ctx)
	}

	tx, err := s.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(ContextWithTx(ctx, tx)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.logger.Warn("Rollback failed", zap.Error(rbErr))
		}
		return err
	}
	return tx.Commit()
}

// AfterCommit registers fn on the transaction carried by ctx, or runs it immediately
// when ctx carries none (the write has already been committed).
func AfterCommit(ctx context.Context, fn func()) {
	if tx, ok := TxFromContext(ctx); ok {
		tx.AfterCommit(fn)
		return
	}
	fn()
}
