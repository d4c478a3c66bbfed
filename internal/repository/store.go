package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/eventure/booking/internal/booking"
)

// Store is the MySQL implementation of booking.Store.  One Store is
// shared by all requests; per-request transactional state travels in
// the context so the same methods work inside and outside WithTx.
type Store struct {
	db *sql.DB
}

var _ booking.Store = (*Store)(nil)

// NewStore returns a Store bound to the given database handle.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// dbtx is satisfied by both *sql.DB and *sql.Tx, letting every query
// run against whichever the context supplies.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

type txKey struct{}

// q returns the transaction carried by ctx, or the pool when ctx is not
// inside WithTx.
func (s *Store) q(ctx context.Context) dbtx {
	if tx, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return tx
	}
	return s.db
}

// WithTx runs fn inside a single transaction.  Nested calls reuse the
// transaction already in the context.  Deadlocks and lock wait timeouts
// surface as booking.ErrTransientContention so the coordinator can
// restart the whole validation-and-commit sequence.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return fn(ctx)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		if isContention(err) {
			return fmt.Errorf("%w: %v", booking.ErrTransientContention, err)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		if isContention(err) {
			return fmt.Errorf("%w: %v", booking.ErrTransientContention, err)
		}
		return err
	}
	committed = true
	return nil
}

// placeholders returns a comma-joined list of n "?" markers for IN
// clauses built the same way across the store.
func placeholders(n int) string {
	if n == 0 {
		return ""
	}
	buf := make([]byte, 0, n*2-1)
	for i := 0; i < n; i++ {
		if i > 0 {
			buf = append(buf, ',')
		}
		buf = append(buf, '?')
	}
	return string(buf)
}

// idArgs converts ids into the []interface{} shape ExecContext wants.
func idArgs(ids []uint64) []interface{} {
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}
