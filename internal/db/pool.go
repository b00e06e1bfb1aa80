package db

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Copier is satisfied by pools, connections and transactions.
type Copier interface {
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
}

// Querier runs statements. pgx.Tx satisfies it.
type Querier interface {
	Copier
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Pool is the subset of *pgxpool.Pool the store uses, so pgxmock can stand in
// for it in tests.
type Pool interface {
	Querier
	Begin(ctx context.Context) (pgx.Tx, error)
}
