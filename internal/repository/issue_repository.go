package repository

import (
	"context"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/issue-service/internal/domain"
)

// IssueFilter captures list parameters. Soft-deleted issues are excluded
// unless Status explicitly asks for them.
type IssueFilter struct {
	Type         *domain.IssueType
	Status       *domain.IssueStatus
	IssueStatus  *domain.WorkflowStatus
	Priority     *domain.IssuePriority
	CreatedByID  *int64
	AssignedToID *int64
	PropertyID   *int64
	Search       *string
	Limit        int
	Offset       int
}

// IssueRepository encapsulates issue persistence.
type IssueRepository interface {
	Create(ctx context.Context, issue *domain.Issue) error
	Update(ctx context.Context, issue *domain.Issue) error
	GetByID(ctx context.Context, id int64) (*domain.Issue, error)
	// GetForUpdate loads the issue and locks it until the surrounding transaction ends.
	GetForUpdate(ctx context.Context, id int64) (*domain.Issue, error)
	List(ctx context.Context, filter IssueFilter) ([]domain.Issue, int64, error)
	ListCodes(ctx context.Context, issueType domain.IssueType, prefix string) ([]string, error)
}

const issueColumns = `id, issue_code, issue, type, description, status, issue_status, priority,
        created_by_id, assigned_to_id, property_id, attachments, created_on, updated_at`

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

type issueRepository struct {
	pool *pgxpool.Pool
}

// NewIssueRepository instantiates repository.
func NewIssueRepository(pool *pgxpool.Pool) IssueRepository {
	return &issueRepository{pool: pool}
}

func (r *issueRepository) Create(ctx context.Context, issue *domain.Issue) error {
	if issue.Attachments == nil {
		issue.Attachments = []string{}
	}
	const query = `
        INSERT INTO issues (issue_code, issue, type, description, status, issue_status, priority,
            created_by_id, assigned_to_id, property_id, attachments)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
        RETURNING id, created_on, updated_at`
	err := conn(ctx, r.pool).QueryRow(ctx, query,
		issue.IssueCode,
		issue.Issue,
		issue.Type,
		issue.Description,
		issue.Status,
		issue.IssueStatus,
		issue.Priority,
		issue.CreatedByID,
		issue.AssignedToID,
		issue.PropertyID,
		issue.Attachments,
	).Scan(&issue.ID, &issue.CreatedOn, &issue.UpdatedAt)
	return mapError(err)
}

func (r *issueRepository) Update(ctx context.Context, issue *domain.Issue) error {
	if issue.Attachments == nil {
		issue.Attachments = []string{}
	}
	const query = `
        UPDATE issues SET issue=$1, description=$2, status=$3, issue_status=$4, priority=$5,
            assigned_to_id=$6, property_id=$7, attachments=$8, updated_at=NOW()
        WHERE id=$9
        RETURNING updated_at`
	err := conn(ctx, r.pool).QueryRow(ctx, query,
		issue.Issue,
		issue.Description,
		issue.Status,
		issue.IssueStatus,
		issue.Priority,
		issue.AssignedToID,
		issue.PropertyID,
		issue.Attachments,
		issue.ID,
	).Scan(&issue.UpdatedAt)
	return mapError(err)
}

func (r *issueRepository) GetByID(ctx context.Context, id int64) (*domain.Issue, error) {
	query := `SELECT ` + issueColumns + ` FROM issues WHERE id=$1`
	return scanIssue(conn(ctx, r.pool).QueryRow(ctx, query, id))
}

func (r *issueRepository) GetForUpdate(ctx context.Context, id int64) (*domain.Issue, error) {
	query := `SELECT ` + issueColumns + ` FROM issues WHERE id=$1 FOR UPDATE`
	return scanIssue(conn(ctx, r.pool).QueryRow(ctx, query, id))
}

func (r *issueRepository) List(ctx context.Context, filter IssueFilter) ([]domain.Issue, int64, error) {
	where := issueConditions(filter)
	q := conn(ctx, r.pool)

	countSQL, countArgs, err := psql.Select("COUNT(*)").From("issues").Where(where).ToSql()
	if err != nil {
		return nil, 0, err
	}
	var total int64
	if err := q.QueryRow(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, 0, err
	}

	builder := psql.Select(issueColumns).From("issues").Where(where).
		OrderBy("created_on DESC", "id DESC")
	if filter.Limit > 0 {
		builder = builder.Limit(uint64(filter.Limit))
	}
	if filter.Offset > 0 {
		builder = builder.Offset(uint64(filter.Offset))
	}
	listSQL, args, err := builder.ToSql()
	if err != nil {
		return nil, 0, err
	}

	rows, err := q.Query(ctx, listSQL, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var issues []domain.Issue
	for rows.Next() {
		issue, err := scanIssue(rows)
		if err != nil {
			return nil, 0, err
		}
		issues = append(issues, *issue)
	}
	return issues, total, rows.Err()
}

func (r *issueRepository) ListCodes(ctx context.Context, issueType domain.IssueType, prefix string) ([]string, error) {
	const query = `SELECT issue_code FROM issues WHERE type=$1 AND issue_code LIKE $2`
	rows, err := conn(ctx, r.pool).Query(ctx, query, issueType, escapeLike(prefix)+"-%")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var codes []string
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, err
		}
		codes = append(codes, code)
	}
	return codes, rows.Err()
}

func issueConditions(filter IssueFilter) sq.And {
	where := sq.And{}
	if filter.Status != nil {
		where = append(where, sq.Eq{"status": *filter.Status})
	} else {
		where = append(where, sq.NotEq{"status": domain.IssueStatusDeleted})
	}
	if filter.Type != nil {
		where = append(where, sq.Eq{"type": *filter.Type})
	}
	if filter.IssueStatus != nil {
		where = append(where, sq.Eq{"issue_status": *filter.IssueStatus})
	}
	if filter.Priority != nil {
		where = append(where, sq.Eq{"priority": *filter.Priority})
	}
	if filter.CreatedByID != nil {
		where = append(where, sq.Eq{"created_by_id": *filter.CreatedByID})
	}
	if filter.AssignedToID != nil {
		where = append(where, sq.Eq{"assigned_to_id": *filter.AssignedToID})
	}
	if filter.PropertyID != nil {
		where = append(where, sq.Eq{"property_id": *filter.PropertyID})
	}
	if filter.Search != nil && strings.TrimSpace(*filter.Search) != "" {
		where = append(where, sq.ILike{"issue": "%" + escapeLike(strings.TrimSpace(*filter.Search)) + "%"})
	}
	return where
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

func scanIssue(row pgx.Row) (*domain.Issue, error) {
	var issue domain.Issue
	if err := row.Scan(
		&issue.ID,
		&issue.IssueCode,
		&issue.Issue,
		&issue.Type,
		&issue.Description,
		&issue.Status,
		&issue.IssueStatus,
		&issue.Priority,
		&issue.CreatedByID,
		&issue.AssignedToID,
		&issue.PropertyID,
		&issue.Attachments,
		&issue.CreatedOn,
		&issue.UpdatedAt,
	); err != nil {
		return nil, mapError(err)
	}
	if issue.Attachments == nil {
		issue.Attachments = []string{}
	}
	return &issue, nil
}
