package repository

import (
	"context"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/issue-service/internal/domain"
)

// ActivityRepository stores the append-only issue audit trail.
type ActivityRepository interface {
	Create(ctx context.Context, activity *domain.IssueActivity) error
	// ListByIssue returns entries newest first.
	ListByIssue(ctx context.Context, issueID int64, offset, limit int) ([]domain.IssueActivity, error)
	CountByIssue(ctx context.Context, issueID int64) (int64, error)
}

type activityRepository struct {
	pool *pgxpool.Pool
}

// NewActivityRepository instantiates repository.
func NewActivityRepository(pool *pgxpool.Pool) ActivityRepository {
	return &activityRepository{pool: pool}
}

func (r *activityRepository) Create(ctx context.Context, activity *domain.IssueActivity) error {
	const query = `
        INSERT INTO issue_activities (issue_id, activity_type, performed_by_id, description, old_value, new_value, metadata)
        VALUES ($1,$2,$3,$4,$5,$6,$7)
        RETURNING id, created_at`
	err := conn(ctx, r.pool).QueryRow(ctx, query,
		activity.IssueID,
		activity.ActivityType,
		activity.PerformedByID,
		activity.Description,
		activity.OldValue,
		activity.NewValue,
		activity.Metadata,
	).Scan(&activity.ID, &activity.CreatedAt)
	return mapError(err)
}

func (r *activityRepository) ListByIssue(ctx context.Context, issueID int64, offset, limit int) ([]domain.IssueActivity, error) {
	query, args, err := activityListQuery(issueID, offset, limit).ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := conn(ctx, r.pool).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.IssueActivity
	for rows.Next() {
		activity, err := scanActivity(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *activity)
	}
	return result, rows.Err()
}

// activityListQuery orders by id alone: ids follow insertion order even when
// several entries share one transaction timestamp.
func activityListQuery(issueID int64, offset, limit int) sq.SelectBuilder {
	builder := psql.Select("id, issue_id, activity_type, performed_by_id, description, old_value, new_value, metadata, created_at").
		From("issue_activities").
		Where("issue_id = ?", issueID).
		OrderBy("id DESC")
	if limit > 0 {
		builder = builder.Limit(uint64(limit))
	}
	if offset > 0 {
		builder = builder.Offset(uint64(offset))
	}
	return builder
}

func (r *activityRepository) CountByIssue(ctx context.Context, issueID int64) (int64, error) {
	var count int64
	err := conn(ctx, r.pool).QueryRow(ctx, `SELECT COUNT(*) FROM issue_activities WHERE issue_id=$1`, issueID).Scan(&count)
	return count, err
}

func scanActivity(row pgx.Row) (*domain.IssueActivity, error) {
	var activity domain.IssueActivity
	if err := row.Scan(
		&activity.ID,
		&activity.IssueID,
		&activity.ActivityType,
		&activity.PerformedByID,
		&activity.Description,
		&activity.OldValue,
		&activity.NewValue,
		&activity.Metadata,
		&activity.CreatedAt,
	); err != nil {
		return nil, mapError(err)
	}
	return &activity, nil
}
