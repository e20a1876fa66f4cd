// Package db owns the Postgres pool and the serializable transaction runner
// the stores compose under. Per-wallet sequence assignment reads MAX(seq)
// and inserts inside one transaction, so concurrent submitters surface as
// serialization failures; the runner absorbs those by restarting the whole
// closure.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// TxRunner is the consumer-side contract services and handlers depend on.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(*sqlx.Tx) error) error
}

const (
	defaultAttempts = 5
	defaultBackoff  = 20 * time.Millisecond
)

type Runner struct {
	db       *sqlx.DB
	attempts int
	backoff  time.Duration
}

func NewTxRunner(db *sqlx.DB) Runner {
	return Runner{db: db, attempts: defaultAttempts, backoff: defaultBackoff}
}

func Connect(databaseURL string) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, err
	}
	db.SetConnMaxIdleTime(5 * time.Minute)
	db.SetMaxIdleConns(5)
	db.SetMaxOpenConns(25)
	db.SetConnMaxLifetime(30 * time.Minute)
	return db, nil
}

// WithTx runs fn inside a serializable transaction. Serialization and
// deadlock failures restart the closure after a quadratic backoff; any other
// error aborts immediately. When the attempt budget runs out the last
// conflict is wrapped so callers can still unwrap the pq error.
func (r Runner) WithTx(ctx context.Context, fn func(*sqlx.Tx) error) error {
	var lastErr error
	for attempt := 1; attempt <= r.attempts; attempt++ {
		if attempt > 1 {
			if err := r.pause(ctx, attempt-1); err != nil {
				return err
			}
		}
		tx, err := r.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
		if err != nil {
			return err
		}
		if err := fn(tx); err != nil {
			_ = tx.Rollback()
			if !retryable(err) {
				return err
			}
			lastErr = err
			continue
		}
		if err := tx.Commit(); err != nil {
			if !retryable(err) {
				return err
			}
			lastErr = err
			continue
		}
		return nil
	}
	return fmt.Errorf("serializable transaction: attempts exhausted: %w", lastErr)
}

// retryable reports whether the transaction may be restarted: Postgres
// serialization_failure (40001) and deadlock_detected (40P01). Constraint
// violations and everything else are final.
func retryable(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	return pqErr.Code == "40001" || pqErr.Code == "40P01"
}

func (r Runner) pause(ctx context.Context, n int) error {
	backoff := time.Duration(n*n) * r.backoff
	jitter := time.Duration(rand.Int63n(int64(r.backoff)/2 + 1))
	timer := time.NewTimer(backoff + jitter)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
