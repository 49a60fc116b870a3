package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgxpool"
)

// IssueCodeSequenceRepository keeps one counter row per code prefix.
type IssueCodeSequenceRepository interface {
	// Next increments the counter for prefix and returns the new value.
	// found is false when no counter row exists yet.
	Next(ctx context.Context, prefix string) (value int64, found bool, err error)
	// Init creates the counter at seed+1. An existing counter moves to
	// whichever is larger: its next value or seed+1.
	Init(ctx context.Context, prefix string, seed int64) (int64, error)
}

type issueCodeSequenceRepository struct {
	pool *pgxpool.Pool
}

// NewIssueCodeSequenceRepository instantiates repository.
func NewIssueCodeSequenceRepository(pool *pgxpool.Pool) IssueCodeSequenceRepository {
	return &issueCodeSequenceRepository{pool: pool}
}

func (r *issueCodeSequenceRepository) Next(ctx context.Context, prefix string) (int64, bool, error) {
	const query = `
        UPDATE issue_code_sequences SET last_value = last_value + 1, updated_at = NOW()
        WHERE prefix=$1
        RETURNING last_value`
	var value int64
	err := mapError(conn(ctx, r.pool).QueryRow(ctx, query, prefix).Scan(&value))
	if errors.Is(err, ErrNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return value, true, nil
}

func (r *issueCodeSequenceRepository) Init(ctx context.Context, prefix string, seed int64) (int64, error) {
	const query = `
        INSERT INTO issue_code_sequences (prefix, last_value) VALUES ($1, $2 + 1)
        ON CONFLICT (prefix) DO UPDATE
            SET last_value = GREATEST(issue_code_sequences.last_value + 1, EXCLUDED.last_value), updated_at = NOW()
        RETURNING last_value`
	var value int64
	err := conn(ctx, r.pool).QueryRow(ctx, query, prefix, seed).Scan(&value)
	return value, mapError(err)
}
