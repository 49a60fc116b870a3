package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/spec-kit/issue-service/internal/config"
	"github.com/spec-kit/issue-service/internal/domain"
	"github.com/spec-kit/issue-service/internal/events"
	"github.com/spec-kit/issue-service/internal/observability"
	"github.com/spec-kit/issue-service/internal/repository"
	apperrors "github.com/spec-kit/issue-service/pkg/util/errorutil"
)

// AuditService owns the append-only activity log. Entries are written in the
// same transaction as the change they describe and are never edited.
type AuditService struct {
	tx         repository.TxManager
	issues     repository.IssueRepository
	activities repository.ActivityRepository
	refs       referenceChecker
	dispatcher events.Dispatcher
	sanitizer  *TextSanitizer
	logger     *zap.Logger
	ops        opRecorder
	cfg        config.IssuesConfig
}

// AuditDependencies bundles collaborators for the audit service.
type AuditDependencies struct {
	TxManager    repository.TxManager
	IssueRepo    repository.IssueRepository
	ActivityRepo repository.ActivityRepository
	Users        repository.UserDirectory
	Dispatcher   events.Dispatcher
	Sanitizer    *TextSanitizer
	Logger       *zap.Logger
	Metrics      *observability.Metrics
	Config       config.IssuesConfig
}

// RecordActivityInput describes one audit entry.
type RecordActivityInput struct {
	IssueID       int64
	ActivityType  domain.ActivityType
	PerformedByID int64
	Description   *string
	OldValue      *string
	NewValue      *string
	Metadata      *domain.ActivityMetadata
}

// NewAuditService constructs the service.
func NewAuditService(deps AuditDependencies) *AuditService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuditService{
		tx:         deps.TxManager,
		issues:     deps.IssueRepo,
		activities: deps.ActivityRepo,
		refs:       referenceChecker{users: deps.Users},
		dispatcher: deps.Dispatcher,
		sanitizer:  deps.Sanitizer,
		logger:     logger,
		ops:        opRecorder{logger: logger, metrics: deps.Metrics},
		cfg:        deps.Config,
	}
}

// Record validates the performer and appends an entry. It joins the
// transaction carried by ctx, if any.
func (s *AuditService) Record(ctx context.Context, in RecordActivityInput) (*domain.IssueActivity, error) {
	if !in.ActivityType.Valid() {
		return nil, apperrors.NewValidationError("unknown activity type", map[string]any{"activity_type": in.ActivityType})
	}
	if err := s.refs.user(ctx, "performed_by_id", in.PerformedByID); err != nil {
		return nil, err
	}
	return s.append(ctx, in)
}

// append writes an entry whose performer the caller already validated.
func (s *AuditService) append(ctx context.Context, in RecordActivityInput) (*domain.IssueActivity, error) {
	activity := &domain.IssueActivity{
		IssueID:       in.IssueID,
		ActivityType:  in.ActivityType,
		PerformedByID: in.PerformedByID,
		Description:   in.Description,
		OldValue:      in.OldValue,
		NewValue:      in.NewValue,
		Metadata:      in.Metadata,
	}
	if err := s.activities.Create(ctx, activity); err != nil {
		return nil, notFoundAs(err, func() error { return issueNotFound(in.IssueID) })
	}
	return activity, nil
}

// CreateActivity appends a caller supplied entry, such as a comment, in its
// own transaction.
func (s *AuditService) CreateActivity(ctx context.Context, in RecordActivityInput) (*domain.IssueActivity, error) {
	const op = "create_activity"
	in.Description = s.sanitizer.CleanPtr(in.Description)
	in.OldValue = s.sanitizer.CleanPtr(in.OldValue)
	in.NewValue = s.sanitizer.CleanPtr(in.NewValue)

	if !in.ActivityType.Valid() {
		return nil, s.ops.finish(op, in.IssueID,
			apperrors.NewValidationError("unknown activity type", map[string]any{"activity_type": in.ActivityType}))
	}
	if _, err := s.issues.GetByID(ctx, in.IssueID); err != nil {
		return nil, s.ops.finish(op, in.IssueID, notFoundAs(err, func() error { return issueNotFound(in.IssueID) }))
	}
	if err := s.refs.user(ctx, "performed_by_id", in.PerformedByID); err != nil {
		return nil, s.ops.finish(op, in.IssueID, err)
	}

	var activity *domain.IssueActivity
	err := s.tx.RunInTransaction(ctx, func(ctx context.Context) error {
		var err error
		activity, err = s.append(ctx, in)
		return err
	})
	if err := s.ops.finish(op, in.IssueID, err); err != nil {
		return nil, err
	}

	publish(ctx, s.logger, s.dispatcher, events.Event{
		Type:    events.EventActivityRecorded,
		IssueID: in.IssueID,
		ActorID: in.PerformedByID,
		Payload: events.ActivityRecordedPayload{ActivityID: activity.ID, ActivityType: activity.ActivityType},
	})
	return activity, nil
}

// ListActivities returns entries for an issue, newest first.
func (s *AuditService) ListActivities(ctx context.Context, issueID int64, skip, limit int) ([]domain.IssueActivity, error) {
	const op = "list_activities"
	if _, err := s.issues.GetByID(ctx, issueID); err != nil {
		return nil, s.ops.finish(op, issueID, notFoundAs(err, func() error { return issueNotFound(issueID) }))
	}
	skip, limit = s.window(skip, limit)
	items, err := s.activities.ListByIssue(ctx, issueID, skip, limit)
	if err := s.ops.finish(op, issueID, err); err != nil {
		return nil, err
	}
	if items == nil {
		items = []domain.IssueActivity{}
	}
	return items, nil
}

func (s *AuditService) window(skip, limit int) (int, int) {
	if skip < 0 {
		skip = 0
	}
	if limit <= 0 {
		limit = s.cfg.ActivityDefaultLimit
	}
	if s.cfg.ActivityMaxLimit > 0 && limit > s.cfg.ActivityMaxLimit {
		limit = s.cfg.ActivityMaxLimit
	}
	return skip, limit
}
