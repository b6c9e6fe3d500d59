package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// BaseRepository holds the shared pgx pool for the optimization and artifact
// repositories. Repositories embed it and issue queries through conn, so a
// call made inside TransactionManager.WithTransaction runs on the
// context-carried transaction instead of the pool.
type BaseRepository struct {
	pool *pgxpool.Pool
}

func NewBaseRepository(pool *pgxpool.Pool) BaseRepository {
	return BaseRepository{pool: pool}
}

// Pool exposes the underlying pool, mainly for health checks.
func (r *BaseRepository) Pool() *pgxpool.Pool {
	return r.pool
}

// conn resolves the query surface for ctx: the active transaction when one
// is in the context, the pool otherwise.
func (r *BaseRepository) conn(ctx context.Context) interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
} {
	return GetConn(ctx, r.pool)
}
