// Package store holds the sqlx persistence layer. The same stores run
// against the API's Postgres and, for the transaction store, against the
// agent's device-local database, so every method takes the narrowest
// connection interface it needs.
package store

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
)

// Execer covers writes. Store write methods take an Execer so callers can
// pass either the pool or an open transaction.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Getter covers single-row reads, used for reads that must happen inside a
// transaction (sequence assignment in particular).
type Getter interface {
	GetContext(ctx context.Context, dest any, query string, args ...any) error
}

type Selecter interface {
	SelectContext(ctx context.Context, dest any, query string, args ...any) error
}

// DB is what a store keeps for its own reads.
type DB interface {
	Execer
	Getter
	Selecter
}

// Tx is the slice of a transaction the stores touch.
type Tx interface {
	Execer
	Getter
}

var (
	_ DB = (*sqlx.DB)(nil)
	_ Tx = (*sqlx.Tx)(nil)
)
