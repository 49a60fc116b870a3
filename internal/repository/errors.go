package repository

import (
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrNotFound is returned when a row addressed by id does not exist.
	ErrNotFound = errors.New("repository: record not found")
	// ErrDuplicateIssueCode is returned when an insert collides on (type, issue_code).
	ErrDuplicateIssueCode = errors.New("repository: duplicate issue code")
)

const (
	pgUniqueViolation    = "23505"
	issueCodeConstraint  = "issues_type_issue_code_key"
	issueCodeUniqueIndex = "issues_issue_code_key"
)

func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		if pgErr.ConstraintName == issueCodeConstraint || pgErr.ConstraintName == issueCodeUniqueIndex {
			return ErrDuplicateIssueCode
		}
	}
	return err
}
