package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/issue-service/internal/domain"
	"github.com/spec-kit/issue-service/internal/events"
	"github.com/spec-kit/issue-service/internal/observability"
	"github.com/spec-kit/issue-service/internal/repository"
	apperrors "github.com/spec-kit/issue-service/pkg/util/errorutil"
)

// EscalationService raises complaints to a named recipient. Escalating forces
// the issue into ESCALATED.
type EscalationService struct {
	tx          repository.TxManager
	issues      repository.IssueRepository
	escalations repository.EscalationRepository
	audit       *AuditService
	refs        referenceChecker
	dispatcher  events.Dispatcher
	sanitizer   *TextSanitizer
	logger      *zap.Logger
	ops         opRecorder
	now         func() time.Time
}

// EscalationDependencies bundles collaborators for the escalation service.
type EscalationDependencies struct {
	TxManager      repository.TxManager
	IssueRepo      repository.IssueRepository
	EscalationRepo repository.EscalationRepository
	Users          repository.UserDirectory
	Audit          *AuditService
	Dispatcher     events.Dispatcher
	Sanitizer      *TextSanitizer
	Logger         *zap.Logger
	Metrics        *observability.Metrics
	Clock          func() time.Time
}

// EscalateInput describes a new escalation.
type EscalateInput struct {
	Level         domain.EscalationLevel
	EscalatedByID int64
	EscalatedToID int64
	Reason        *string
	Notes         *string
}

// EscalationPatch holds the mutable fields of an escalation.
type EscalationPatch struct {
	Resolved     *bool
	ResolvedByID *int64
	Notes        *string
}

// NewEscalationService constructs the service.
func NewEscalationService(deps EscalationDependencies) *EscalationService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	return &EscalationService{
		tx:          deps.TxManager,
		issues:      deps.IssueRepo,
		escalations: deps.EscalationRepo,
		audit:       deps.Audit,
		refs:        referenceChecker{users: deps.Users},
		dispatcher:  deps.Dispatcher,
		sanitizer:   deps.Sanitizer,
		logger:      logger,
		ops:         opRecorder{logger: logger, metrics: deps.Metrics},
		now:         clock,
	}
}

// Escalate stores the escalation, moves the issue to ESCALATED and records
// the ESCALATED entry in one transaction. Only complaints can be escalated.
func (s *EscalationService) Escalate(ctx context.Context, issueID int64, in EscalateInput) (*domain.IssueEscalation, error) {
	const op = "create_escalation"
	if !in.Level.Valid() {
		return nil, s.ops.finish(op, issueID, invalidEnum("escalation_level", in.Level))
	}
	issue, err := s.issues.GetByID(ctx, issueID)
	if err != nil {
		return nil, s.ops.finish(op, issueID, notFoundAs(err, func() error { return issueNotFound(issueID) }))
	}
	if err := requireComplaint(issue); err != nil {
		return nil, s.ops.finish(op, issueID, err)
	}
	if err := s.refs.user(ctx, "escalated_by_id", in.EscalatedByID); err != nil {
		return nil, s.ops.finish(op, issueID, err)
	}
	if err := s.refs.user(ctx, "escalated_to_id", in.EscalatedToID); err != nil {
		return nil, s.ops.finish(op, issueID, err)
	}

	escalation := &domain.IssueEscalation{
		IssueID:         issueID,
		EscalationLevel: in.Level,
		EscalatedByID:   in.EscalatedByID,
		EscalatedToID:   in.EscalatedToID,
		Reason:          s.sanitizer.CleanPtr(in.Reason),
		Notes:           s.sanitizer.CleanPtr(in.Notes),
	}
	var issueCode string
	err = s.tx.RunInTransaction(ctx, func(ctx context.Context) error {
		locked, err := s.issues.GetForUpdate(ctx, issueID)
		if err != nil {
			return notFoundAs(err, func() error { return issueNotFound(issueID) })
		}
		if err := requireComplaint(locked); err != nil {
			return err
		}
		if err := s.escalations.Create(ctx, escalation); err != nil {
			return err
		}
		previous := locked.IssueStatus
		locked.IssueStatus = domain.WorkflowStatusEscalated
		if err := s.issues.Update(ctx, locked); err != nil {
			return err
		}
		issueCode = locked.IssueCode
		_, err = s.audit.append(ctx, RecordActivityInput{
			IssueID:       issueID,
			ActivityType:  domain.ActivityEscalated,
			PerformedByID: in.EscalatedByID,
			Description:   strPtr(fmt.Sprintf("Issue escalated to %s", in.Level)),
			OldValue:      strPtr(string(previous)),
			NewValue:      strPtr(string(domain.WorkflowStatusEscalated)),
		})
		return err
	})
	if err := s.ops.finish(op, issueID, err); err != nil {
		return nil, err
	}

	publish(ctx, s.logger, s.dispatcher, events.Event{
		Type:      events.EventIssueEscalated,
		IssueID:   issueID,
		IssueCode: issueCode,
		ActorID:   in.EscalatedByID,
		Payload: events.IssueEscalatedPayload{
			EscalationID:  escalation.ID,
			Level:         escalation.EscalationLevel,
			EscalatedToID: escalation.EscalatedToID,
		},
	})
	return escalation, nil
}

// UpdateEscalation applies patch. resolved_at is stamped only when the
// escalation first becomes resolved; later resolves keep the first
// resolver and time.
func (s *EscalationService) UpdateEscalation(ctx context.Context, escalationID int64, patch EscalationPatch) (*domain.IssueEscalation, error) {
	const op = "update_escalation"
	if patch.ResolvedByID != nil {
		if err := s.refs.user(ctx, "resolved_by_id", *patch.ResolvedByID); err != nil {
			return nil, s.ops.finish(op, 0, err)
		}
	}
	notes := s.sanitizer.CleanPtr(patch.Notes)

	var (
		escalation  *domain.IssueEscalation
		nowResolved bool
	)
	err := s.tx.RunInTransaction(ctx, func(ctx context.Context) error {
		current, err := s.escalations.GetForUpdate(ctx, escalationID)
		if err != nil {
			return notFoundAs(err, func() error { return escalationNotFound(escalationID) })
		}
		if patch.Resolved != nil {
			switch {
			case *patch.Resolved && !current.Resolved:
				resolvedAt := s.now().UTC()
				current.Resolved = true
				current.ResolvedAt = &resolvedAt
				current.ResolvedByID = cloneID(patch.ResolvedByID)
				nowResolved = true
			case !*patch.Resolved:
				current.Resolved = false
			}
		} else if patch.ResolvedByID != nil && current.Resolved && current.ResolvedByID == nil {
			current.ResolvedByID = cloneID(patch.ResolvedByID)
		}
		if notes != nil {
			current.Notes = notes
		}
		if err := s.escalations.Update(ctx, current); err != nil {
			return notFoundAs(err, func() error { return escalationNotFound(escalationID) })
		}
		escalation = current
		return nil
	})
	issueID := int64(0)
	if escalation != nil {
		issueID = escalation.IssueID
	}
	if err := s.ops.finish(op, issueID, err); err != nil {
		return nil, err
	}

	if nowResolved {
		actor := int64(0)
		if escalation.ResolvedByID != nil {
			actor = *escalation.ResolvedByID
		}
		publish(ctx, s.logger, s.dispatcher, events.Event{
			Type:    events.EventEscalationResolved,
			IssueID: escalation.IssueID,
			ActorID: actor,
			Payload: events.EscalationResolvedPayload{EscalationID: escalation.ID, ResolvedByID: escalation.ResolvedByID},
		})
	}
	return escalation, nil
}

// ResolveEscalation marks the escalation resolved. The issue's workflow
// status is left alone.
func (s *EscalationService) ResolveEscalation(ctx context.Context, escalationID, resolvedByID int64, notes *string) (*domain.IssueEscalation, error) {
	resolved := true
	return s.UpdateEscalation(ctx, escalationID, EscalationPatch{
		Resolved:     &resolved,
		ResolvedByID: &resolvedByID,
		Notes:        notes,
	})
}

// ListEscalations returns the escalations of an issue, newest first.
func (s *EscalationService) ListEscalations(ctx context.Context, issueID int64) ([]domain.IssueEscalation, error) {
	const op = "list_escalations"
	if _, err := s.issues.GetByID(ctx, issueID); err != nil {
		return nil, s.ops.finish(op, issueID, notFoundAs(err, func() error { return issueNotFound(issueID) }))
	}
	items, err := s.escalations.ListByIssue(ctx, issueID)
	if err := s.ops.finish(op, issueID, err); err != nil {
		return nil, err
	}
	if items == nil {
		items = []domain.IssueEscalation{}
	}
	return items, nil
}

func requireComplaint(issue *domain.Issue) error {
	if issue.Type != domain.IssueTypeComplaint {
		return apperrors.NewValidationError("only complaint issues can be escalated", map[string]any{
			"issue_id": issue.ID,
			"type":     issue.Type,
		})
	}
	return nil
}
