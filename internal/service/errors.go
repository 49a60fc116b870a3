package service

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/spec-kit/issue-service/internal/events"
	"github.com/spec-kit/issue-service/internal/observability"
	"github.com/spec-kit/issue-service/internal/repository"
	apperrors "github.com/spec-kit/issue-service/pkg/util/errorutil"
)

// opRecorder wraps the logging and counting every service operation shares.
type opRecorder struct {
	logger  *zap.Logger
	metrics *observability.Metrics
}

// finish counts the outcome of op and converts err into a domain error.
// Domain errors pass through untouched; anything else becomes a StorageError
// and is logged with the operation and issue id.
func (r opRecorder) finish(op string, issueID int64, err error) error {
	if err == nil {
		r.metrics.RecordOperation(op, observability.OutcomeSuccess)
		return nil
	}
	r.metrics.RecordOperation(op, observability.OutcomeFailure)

	var domainErr *apperrors.DomainError
	if errors.As(err, &domainErr) {
		if domainErr.HTTPStatus >= 500 {
			r.logger.Error("operation failed",
				zap.String("operation", op), zap.Int64("issue_id", issueID), zap.Error(err))
		}
		return err
	}

	r.logger.Error("storage failure",
		zap.String("operation", op), zap.Int64("issue_id", issueID), zap.Error(err))
	return apperrors.NewStorageError(op, err)
}

func issueNotFound(id int64) error {
	return apperrors.NewNotFound("issue", map[string]any{"issue_id": id})
}

func escalationNotFound(id int64) error {
	return apperrors.NewNotFound("escalation", map[string]any{"escalation_id": id})
}

// notFoundAs maps repository.ErrNotFound to a domain NotFound built by fn.
func notFoundAs(err error, fn func() error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return fn()
	}
	return err
}

// referenceChecker validates ids owned by other modules.
type referenceChecker struct {
	users      repository.UserDirectory
	properties repository.PropertyDirectory
}

func (c referenceChecker) user(ctx context.Context, field string, id int64) error {
	if id <= 0 {
		return apperrors.NewValidationError(field+" must be a positive id", map[string]any{"field": field})
	}
	ok, err := c.users.Exists(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return apperrors.NewNotFound("user", map[string]any{"user_id": id, "field": field})
	}
	return nil
}

func (c referenceChecker) property(ctx context.Context, id int64) error {
	if id <= 0 {
		return apperrors.NewValidationError("property_id must be a positive id", map[string]any{"field": "property_id"})
	}
	if c.properties == nil {
		return nil
	}
	ok, err := c.properties.Exists(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return apperrors.NewNotFound("property", map[string]any{"property_id": id})
	}
	return nil
}

func publish(ctx context.Context, logger *zap.Logger, dispatcher events.Dispatcher, event events.Event) {
	if dispatcher == nil {
		return
	}
	if err := dispatcher.Publish(ctx, event); err != nil {
		logger.Warn("event handlers failed",
			zap.String("event_type", string(event.Type)), zap.Int64("issue_id", event.IssueID), zap.Error(err))
	}
}
