package search

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PGExecutor runs statements against a pgx connection pool. Each call
// acquires a connection from the pool and releases it before returning,
// success or failure, so a reused process never leaks connections.
type PGExecutor struct {
	pool *pgxpool.Pool
}

func NewPGExecutor(pool *pgxpool.Pool) *PGExecutor {
	return &PGExecutor{pool: pool}
}

func (x *PGExecutor) Query(ctx context.Context, sql string, args ...interface{}) ([]Row, error) {
	rows, err := x.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("execute statement: %w", err)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	var out []Row
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("read row values: %w", err)
		}
		row := make(Row, len(fields))
		for i, f := range fields {
			row[string(f.Name)] = values[i]
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return out, nil
}
