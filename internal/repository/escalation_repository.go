package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/issue-service/internal/domain"
)

// EscalationRepository persists complaint escalations.
type EscalationRepository interface {
	Create(ctx context.Context, escalation *domain.IssueEscalation) error
	Update(ctx context.Context, escalation *domain.IssueEscalation) error
	GetByID(ctx context.Context, id int64) (*domain.IssueEscalation, error)
	GetForUpdate(ctx context.Context, id int64) (*domain.IssueEscalation, error)
	ListByIssue(ctx context.Context, issueID int64) ([]domain.IssueEscalation, error)
	CountByIssue(ctx context.Context, issueID int64) (int64, error)
}

const escalationColumns = `id, issue_id, escalation_level, escalated_by_id, escalated_to_id, reason, notes,
        resolved, resolved_at, resolved_by_id, created_at, updated_at`

// Ids follow commit order inside a transaction, timestamps need not.
const listEscalationsQuery = `SELECT ` + escalationColumns + ` FROM issue_escalations WHERE issue_id=$1 ORDER BY id DESC`

type escalationRepository struct {
	pool *pgxpool.Pool
}

// NewEscalationRepository instantiates repository.
func NewEscalationRepository(pool *pgxpool.Pool) EscalationRepository {
	return &escalationRepository{pool: pool}
}

func (r *escalationRepository) Create(ctx context.Context, escalation *domain.IssueEscalation) error {
	const query = `
        INSERT INTO issue_escalations (issue_id, escalation_level, escalated_by_id, escalated_to_id, reason, notes, resolved)
        VALUES ($1,$2,$3,$4,$5,$6,$7)
        RETURNING id, created_at, updated_at`
	err := conn(ctx, r.pool).QueryRow(ctx, query,
		escalation.IssueID,
		escalation.EscalationLevel,
		escalation.EscalatedByID,
		escalation.EscalatedToID,
		escalation.Reason,
		escalation.Notes,
		escalation.Resolved,
	).Scan(&escalation.ID, &escalation.CreatedAt, &escalation.UpdatedAt)
	return mapError(err)
}

func (r *escalationRepository) Update(ctx context.Context, escalation *domain.IssueEscalation) error {
	const query = `
        UPDATE issue_escalations SET notes=$1, resolved=$2, resolved_at=$3, resolved_by_id=$4, updated_at=clock_timestamp()
        WHERE id=$5
        RETURNING updated_at`
	err := conn(ctx, r.pool).QueryRow(ctx, query,
		escalation.Notes,
		escalation.Resolved,
		escalation.ResolvedAt,
		escalation.ResolvedByID,
		escalation.ID,
	).Scan(&escalation.UpdatedAt)
	return mapError(err)
}

func (r *escalationRepository) GetByID(ctx context.Context, id int64) (*domain.IssueEscalation, error) {
	query := `SELECT ` + escalationColumns + ` FROM issue_escalations WHERE id=$1`
	return scanEscalation(conn(ctx, r.pool).QueryRow(ctx, query, id))
}

func (r *escalationRepository) GetForUpdate(ctx context.Context, id int64) (*domain.IssueEscalation, error) {
	query := `SELECT ` + escalationColumns + ` FROM issue_escalations WHERE id=$1 FOR UPDATE`
	return scanEscalation(conn(ctx, r.pool).QueryRow(ctx, query, id))
}

func (r *escalationRepository) ListByIssue(ctx context.Context, issueID int64) ([]domain.IssueEscalation, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, listEscalationsQuery, issueID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.IssueEscalation
	for rows.Next() {
		escalation, err := scanEscalation(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *escalation)
	}
	return result, rows.Err()
}

func (r *escalationRepository) CountByIssue(ctx context.Context, issueID int64) (int64, error) {
	var count int64
	err := conn(ctx, r.pool).QueryRow(ctx, `SELECT COUNT(*) FROM issue_escalations WHERE issue_id=$1`, issueID).Scan(&count)
	return count, err
}

func scanEscalation(row pgx.Row) (*domain.IssueEscalation, error) {
	var escalation domain.IssueEscalation
	if err := row.Scan(
		&escalation.ID,
		&escalation.IssueID,
		&escalation.EscalationLevel,
		&escalation.EscalatedByID,
		&escalation.EscalatedToID,
		&escalation.Reason,
		&escalation.Notes,
		&escalation.Resolved,
		&escalation.ResolvedAt,
		&escalation.ResolvedByID,
		&escalation.CreatedAt,
		&escalation.UpdatedAt,
	); err != nil {
		return nil, mapError(err)
	}
	return &escalation, nil
}
