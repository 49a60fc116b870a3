package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// UserDirectory answers existence and display-name lookups against the user store.
type UserDirectory interface {
	Exists(ctx context.Context, id int64) (bool, error)
	// Names returns full names keyed by id. Unknown ids are absent.
	Names(ctx context.Context, ids []int64) (map[int64]string, error)
}

// PropertyDirectory answers existence and display-name lookups against the property store.
type PropertyDirectory interface {
	Exists(ctx context.Context, id int64) (bool, error)
	Names(ctx context.Context, ids []int64) (map[int64]string, error)
}

type tableDirectory struct {
	pool       *pgxpool.Pool
	query      string
	namesQuery string
}

// NewUserDirectory looks users up in the shared users table.
func NewUserDirectory(pool *pgxpool.Pool) UserDirectory {
	return &tableDirectory{
		pool:       pool,
		query:      `SELECT EXISTS (SELECT 1 FROM users WHERE id=$1)`,
		namesQuery: `SELECT id, full_name FROM users WHERE id = ANY($1)`,
	}
}

// NewPropertyDirectory looks properties up in the shared properties table.
func NewPropertyDirectory(pool *pgxpool.Pool) PropertyDirectory {
	return &tableDirectory{
		pool:       pool,
		query:      `SELECT EXISTS (SELECT 1 FROM properties WHERE id=$1)`,
		namesQuery: `SELECT id, name FROM properties WHERE id = ANY($1)`,
	}
}

func (d *tableDirectory) Exists(ctx context.Context, id int64) (bool, error) {
	var exists bool
	err := conn(ctx, d.pool).QueryRow(ctx, d.query, id).Scan(&exists)
	return exists, err
}

func (d *tableDirectory) Names(ctx context.Context, ids []int64) (map[int64]string, error) {
	names := make(map[int64]string, len(ids))
	if len(ids) == 0 {
		return names, nil
	}
	rows, err := conn(ctx, d.pool).Query(ctx, d.namesQuery, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id   int64
			name string
		)
		if err := rows.Scan(&id, &name); err != nil {
			return nil, err
		}
		names[id] = name
	}
	return names, rows.Err()
}
