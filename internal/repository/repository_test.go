package repository

import (
	"fmt"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/issue-service/internal/domain"
)

func TestIssueConditions_ExcludesDeletedByDefault(t *testing.T) {
	sql, args, err := psql.Select("id").From("issues").Where(issueConditions(IssueFilter{})).ToSql()
	require.NoError(t, err)
	assert.Equal(t, "SELECT id FROM issues WHERE (status <> $1)", sql)
	assert.Equal(t, []any{domain.IssueStatusDeleted}, args)
}

func TestIssueConditions_ExplicitStatusAndSearch(t *testing.T) {
	status := domain.IssueStatusDeleted
	priority := domain.IssuePriorityHigh
	search := "  50%_off "
	filter := IssueFilter{Status: &status, Priority: &priority, Search: &search}

	sql, args, err := psql.Select("id").From("issues").Where(issueConditions(filter)).ToSql()
	require.NoError(t, err)
	assert.Equal(t, "SELECT id FROM issues WHERE (status = $1 AND priority = $2 AND issue ILIKE $3)", sql)
	assert.Equal(t, []any{domain.IssueStatusDeleted, domain.IssuePriorityHigh, `%50\%\_off%`}, args)
}

func TestMapError(t *testing.T) {
	assert.Nil(t, mapError(nil))
	assert.ErrorIs(t, mapError(fmt.Errorf("scan: %w", pgx.ErrNoRows)), ErrNotFound)

	dup := &pgconn.PgError{Code: "23505", ConstraintName: "issues_type_issue_code_key"}
	assert.ErrorIs(t, mapError(dup), ErrDuplicateIssueCode)

	other := &pgconn.PgError{Code: "23505", ConstraintName: "some_other_key"}
	assert.Equal(t, other, mapError(other))
}

func TestActivityListQuery_OrdersByInsertion(t *testing.T) {
	sql, args, err := activityListQuery(7, 20, 10).ToSql()
	require.NoError(t, err)
	assert.Equal(t, "SELECT id, issue_id, activity_type, performed_by_id, description, old_value, new_value, metadata, created_at "+
		"FROM issue_activities WHERE issue_id = $1 ORDER BY id DESC LIMIT 10 OFFSET 20", sql)
	assert.Equal(t, []any{int64(7)}, args)

	sql, _, err = activityListQuery(7, 0, 0).ToSql()
	require.NoError(t, err)
	assert.NotContains(t, sql, "LIMIT")
	assert.NotContains(t, sql, "created_at DESC")
}

func TestListEscalationsQuery_OrdersByInsertion(t *testing.T) {
	assert.True(t, strings.HasSuffix(listEscalationsQuery, "WHERE issue_id=$1 ORDER BY id DESC"))
}
