package adapter

import (
	"context"
	"database/sql"

	"go.uber.org/zap"

	"github.com/entable/entable/pkg/query"
)

// Transaction nesting: the depth counter decides when the engine is
// touched. BEGIN is issued on the 0→1 transition only; COMMIT and
// ROLLBACK on 1→0 only. Inner frames move the counter and leave engine
// state to the outermost frame — SQL engines do not nest transactions,
// and callers legitimately compose transactional operations.

// BeginTransaction opens a transaction or joins the one already open.
// The isolation level is clamped to what the engine honors; levels it
// cannot honor are accepted and ignored.
func (a *SQLAdapter) BeginTransaction(ctx context.Context, level ...query.IsolationLevel) error {
	if err := a.ensure(ctx); err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.txDepth > 0 {
		a.txDepth++
		return nil
	}
	iso := query.LevelDefault
	if len(level) > 0 {
		iso = level[0]
	}
	tx, err := a.db.BeginTx(ctx, &sql.TxOptions{
		Isolation: a.d.TxIsolation(iso.SQLLevel()),
	})
	if err != nil {
		return &TransactionError{Op: "begin", Err: err}
	}
	a.tx = tx
	a.txDepth = 1
	return nil
}

// CommitTransaction closes one nesting frame; the engine-level COMMIT
// happens when the outermost frame closes. Calling it with no
// transaction open is a TransactionError.
func (a *SQLAdapter) CommitTransaction(context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	switch {
	case a.txDepth == 0:
		return &TransactionError{Op: "commit"}
	case a.txDepth > 1:
		a.txDepth--
		return nil
	}
	err := a.tx.Commit()
	a.tx = nil
	a.txDepth = 0
	if err != nil {
		return &TransactionError{Op: "commit", Err: err}
	}
	return nil
}

// RollbackTransaction closes one nesting frame; the engine-level
// ROLLBACK happens when the outermost frame closes. Calling it with no
// transaction open is a TransactionError.
func (a *SQLAdapter) RollbackTransaction(context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	switch {
	case a.txDepth == 0:
		return &TransactionError{Op: "rollback"}
	case a.txDepth > 1:
		a.txDepth--
		return nil
	}
	err := a.tx.Rollback()
	a.tx = nil
	a.txDepth = 0
	if err != nil {
		return &TransactionError{Op: "rollback", Err: err}
	}
	return nil
}

func (a *SQLAdapter) depth() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.txDepth
}

// Transaction runs fn inside a transaction frame. The outermost frame
// commits on nil and rolls back exactly once on error or panic; fn's
// error comes back with its identity intact so callers can match the
// original cause. An inner frame only moves the nesting counter:
// its error propagates outward and the outermost frame performs the
// single engine rollback.
func (a *SQLAdapter) Transaction(ctx context.Context, fn func(ctx context.Context) error, level ...query.IsolationLevel) (err error) {
	if err := a.BeginTransaction(ctx, level...); err != nil {
		return err
	}
	done := false
	defer func() {
		if done {
			return
		}
		// Panic path: close this frame before re-panicking.
		if rbErr := a.RollbackTransaction(ctx); rbErr != nil {
			a.log.Error("rollback after panic", zap.Error(rbErr))
		}
	}()
	if err = fn(ctx); err != nil {
		done = true
		if rbErr := a.RollbackTransaction(ctx); rbErr != nil {
			a.log.Error("rollback failed", zap.Error(rbErr))
		}
		return err
	}
	done = true
	return a.CommitTransaction(ctx)
}
