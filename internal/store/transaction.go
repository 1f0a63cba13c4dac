package store

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

var errTxDone = errors.New("transaction already finished")

type txKey struct{}

// Tx is a gorm transaction carried in a context. A Tx obtained by joining a
// transaction already in the context does not own it: Commit and Rollback
// on it are no-ops and the outermost caller decides.
type Tx struct {
	tx    *gorm.DB
	owner bool
}

func Commit(ctx context.Context) (context.Context, error) {
	tx, ok := ctx.Value(txKey{}).(*Tx)
	if !ok {
		return ctx, nil
	}
	return context.WithValue(ctx, txKey{}, nil), tx.Commit()
}

func Rollback(ctx context.Context) (context.Context, error) {
	tx, ok := ctx.Value(txKey{}).(*Tx)
	if !ok {
		return ctx, nil
	}
	return context.WithValue(ctx, txKey{}, nil), tx.Rollback()
}

// FromContext returns the open transaction in ctx, or nil.
func FromContext(ctx context.Context) *gorm.DB {
	if tx, ok := ctx.Value(txKey{}).(*Tx); ok && tx.tx != nil {
		return tx.tx
	}
	return nil
}

func newTransactionContext(ctx context.Context, db *gorm.DB) (context.Context, error) {
	if outer, ok := ctx.Value(txKey{}).(*Tx); ok && outer.tx != nil {
		return context.WithValue(ctx, txKey{}, &Tx{tx: outer.tx}), nil
	}

	begun := db.Session(&gorm.Session{Context: ctx}).Begin()
	if begun.Error != nil {
		return ctx, begun.Error
	}
	return context.WithValue(ctx, txKey{}, &Tx{tx: begun, owner: true}), nil
}

func (t *Tx) Commit() error {
	if !t.owner {
		return nil
	}
	if t.tx == nil {
		return errTxDone
	}

	err := t.tx.Commit().Error
	t.tx = nil
	if err != nil {
		zap.S().Named("store").Errorw("failed to commit transaction", "error", err)
	}
	return err
}

// Rollback after a successful Commit returns errTxDone, which deferred
// rollbacks ignore.
func (t *Tx) Rollback() error {
	if !t.owner {
		return nil
	}
	if t.tx == nil {
		return errTxDone
	}

	err := t.tx.Rollback().Error
	t.tx = nil
	if err != nil {
		zap.S().Named("store").Errorw("failed to rollback transaction", "error", err)
	}
	return err
}

// getDB returns the transaction carried by ctx, or the root connection bound to ctx.
func getDB(ctx context.Context, db *gorm.DB) *gorm.DB {
	if tx := FromContext(ctx); tx != nil {
		return tx
	}
	return db.WithContext(ctx)
}
