package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/spec-kit/issue-service/internal/config"
	"github.com/spec-kit/issue-service/internal/domain"
	"github.com/spec-kit/issue-service/internal/events"
	"github.com/spec-kit/issue-service/internal/observability"
	"github.com/spec-kit/issue-service/internal/repository"
	apperrors "github.com/spec-kit/issue-service/pkg/util/errorutil"
)

const maxTitleLength = 255

// IssueService owns issue creation and every field mutation. Each change and
// its audit entry commit together.
type IssueService struct {
	tx          repository.TxManager
	issues      repository.IssueRepository
	activities  repository.ActivityRepository
	escalations repository.EscalationRepository
	allocator   *IssueCodeAllocator
	audit       *AuditService
	refs        referenceChecker
	dispatcher  events.Dispatcher
	sanitizer   *TextSanitizer
	logger      *zap.Logger
	ops         opRecorder
	cfg         config.IssuesConfig
}

// IssueDependencies bundles collaborators for the issue service.
type IssueDependencies struct {
	TxManager      repository.TxManager
	IssueRepo      repository.IssueRepository
	ActivityRepo   repository.ActivityRepository
	EscalationRepo repository.EscalationRepository
	Users          repository.UserDirectory
	Properties     repository.PropertyDirectory
	Allocator      *IssueCodeAllocator
	Audit          *AuditService
	Dispatcher     events.Dispatcher
	Sanitizer      *TextSanitizer
	Logger         *zap.Logger
	Metrics        *observability.Metrics
	Config         config.IssuesConfig
}

// CreateIssueInput describes a new issue. Zero enum values take their defaults.
type CreateIssueInput struct {
	Issue        string
	Type         domain.IssueType
	Description  *string
	Priority     domain.IssuePriority
	IssueStatus  domain.WorkflowStatus
	Status       domain.IssueStatus
	AssignedToID *int64
	PropertyID   *int64
	Attachments  []string
}

// OptionalID distinguishes an absent field from one explicitly cleared.
type OptionalID struct {
	Set   bool
	Value *int64
}

// SetID marks the field present with value v, which may be nil.
func SetID(v *int64) OptionalID {
	return OptionalID{Set: true, Value: v}
}

// IssuePatch holds the fields of a partial update. Nil means untouched.
// IssueCode is accepted so callers can pass it through, but it is never applied.
type IssuePatch struct {
	Issue        *string
	Description  *string
	Status       *domain.IssueStatus
	IssueStatus  *domain.WorkflowStatus
	Priority     *domain.IssuePriority
	AssignedToID OptionalID
	PropertyID   OptionalID
	Attachments  *[]string
	IssueCode    *string
}

func (p IssuePatch) empty() bool {
	return p.Issue == nil && p.Description == nil && p.Status == nil && p.IssueStatus == nil &&
		p.Priority == nil && !p.AssignedToID.Set && !p.PropertyID.Set && p.Attachments == nil
}

// NewIssueService constructs the service.
func NewIssueService(deps IssueDependencies) *IssueService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IssueService{
		tx:          deps.TxManager,
		issues:      deps.IssueRepo,
		activities:  deps.ActivityRepo,
		escalations: deps.EscalationRepo,
		allocator:   deps.Allocator,
		audit:       deps.Audit,
		refs:        referenceChecker{users: deps.Users, properties: deps.Properties},
		dispatcher:  deps.Dispatcher,
		sanitizer:   deps.Sanitizer,
		logger:      logger,
		ops:         opRecorder{logger: logger, metrics: deps.Metrics},
		cfg:         deps.Config,
	}
}

// CreateIssue validates references, allocates a code and stores the issue
// with its CREATED entry.
func (s *IssueService) CreateIssue(ctx context.Context, in CreateIssueInput, createdByID int64) (*domain.Issue, error) {
	const op = "create_issue"
	issue, err := s.newIssue(in, createdByID)
	if err != nil {
		return nil, s.ops.finish(op, 0, err)
	}
	if err := s.checkReferences(ctx, createdByID, "created_by_id", OptionalID{Set: true, Value: in.AssignedToID}, OptionalID{Set: true, Value: in.PropertyID}); err != nil {
		return nil, s.ops.finish(op, 0, err)
	}

	var created *domain.Issue
	for attempt := 0; ; attempt++ {
		candidate := issue.Clone()
		err = s.tx.RunInTransaction(ctx, func(ctx context.Context) error {
			allocate := s.allocator.Allocate
			if attempt > 0 {
				allocate = s.allocator.Reseed
			}
			code, err := allocate(ctx, candidate.Type)
			if err != nil {
				return err
			}
			candidate.IssueCode = code
			if err := s.issues.Create(ctx, candidate); err != nil {
				return err
			}
			_, err = s.audit.append(ctx, RecordActivityInput{
				IssueID:       candidate.ID,
				ActivityType:  domain.ActivityCreated,
				PerformedByID: createdByID,
				Description:   strPtr(fmt.Sprintf("Issue '%s' created", candidate.Issue)),
				NewValue:      strPtr(string(candidate.IssueStatus)),
			})
			return err
		})
		if errors.Is(err, repository.ErrDuplicateIssueCode) && attempt < s.cfg.CodeAllocationRetries {
			s.logger.Warn("issue code collision; retrying allocation",
				zap.String("type", string(candidate.Type)), zap.String("issue_code", candidate.IssueCode), zap.Int("attempt", attempt+1))
			continue
		}
		if errors.Is(err, repository.ErrDuplicateIssueCode) {
			err = apperrors.NewConflict("unable to allocate a unique issue code", map[string]any{
				"type":       candidate.Type,
				"issue_code": candidate.IssueCode,
			})
		}
		if err := s.ops.finish(op, candidate.ID, err); err != nil {
			return nil, err
		}
		created = candidate
		break
	}

	publish(ctx, s.logger, s.dispatcher, events.Event{
		Type:      events.EventIssueCreated,
		IssueID:   created.ID,
		IssueCode: created.IssueCode,
		ActorID:   createdByID,
		Payload: events.IssueCreatedPayload{
			Type:         created.Type,
			Priority:     created.Priority,
			Title:        created.Issue,
			AssignedToID: created.AssignedToID,
		},
	})
	return created, nil
}

// UpdateIssue applies the present fields of patch and records one UPDATED
// entry listing what changed. An empty patch writes nothing.
func (s *IssueService) UpdateIssue(ctx context.Context, issueID int64, patch IssuePatch, updatedByID int64) (*domain.Issue, error) {
	const op = "update_issue"
	patch, err := s.normalizePatch(patch)
	if err != nil {
		return nil, s.ops.finish(op, issueID, err)
	}
	if err := s.checkReferences(ctx, updatedByID, "updated_by_id", patch.AssignedToID, patch.PropertyID); err != nil {
		return nil, s.ops.finish(op, issueID, err)
	}
	if patch.empty() {
		issue, err := s.issues.GetByID(ctx, issueID)
		if err != nil {
			return nil, s.ops.finish(op, issueID, notFoundAs(err, func() error { return issueNotFound(issueID) }))
		}
		return issue, s.ops.finish(op, issueID, nil)
	}

	var changes []domain.ChangeEntry
	updated, err := s.mutate(ctx, op, issueID, func(_ context.Context, issue *domain.Issue) (*RecordActivityInput, error) {
		changes = applyPatch(issue, patch)
		return &RecordActivityInput{
			ActivityType:  domain.ActivityUpdated,
			PerformedByID: updatedByID,
			Description:   strPtr("Issue updated"),
			Metadata:      &domain.ActivityMetadata{Changes: changes},
		}, nil
	})
	if err != nil {
		return nil, err
	}

	publish(ctx, s.logger, s.dispatcher, events.Event{
		Type:      events.EventIssueUpdated,
		IssueID:   updated.ID,
		IssueCode: updated.IssueCode,
		ActorID:   updatedByID,
		Payload:   events.IssueUpdatedPayload{Changes: changes},
	})
	return updated, nil
}

// UpdateIssueStatus moves the workflow status and always records STATUS_CHANGED.
func (s *IssueService) UpdateIssueStatus(ctx context.Context, issueID int64, status domain.WorkflowStatus, updatedByID int64, description *string) (*domain.Issue, error) {
	const op = "update_issue_status"
	if !status.Valid() {
		return nil, s.ops.finish(op, issueID, invalidEnum("issue_status", status))
	}
	if err := s.refs.user(ctx, "updated_by_id", updatedByID); err != nil {
		return nil, s.ops.finish(op, issueID, err)
	}
	description = s.sanitizer.CleanPtr(description)

	var previous domain.WorkflowStatus
	updated, err := s.mutate(ctx, op, issueID, func(_ context.Context, issue *domain.Issue) (*RecordActivityInput, error) {
		previous = issue.IssueStatus
		issue.IssueStatus = status
		desc := description
		if desc == nil {
			desc = strPtr(fmt.Sprintf("Status changed from %s to %s", previous, status))
		}
		return &RecordActivityInput{
			ActivityType:  domain.ActivityStatusChanged,
			PerformedByID: updatedByID,
			Description:   desc,
			OldValue:      strPtr(string(previous)),
			NewValue:      strPtr(string(status)),
		}, nil
	})
	if err != nil {
		return nil, err
	}

	publish(ctx, s.logger, s.dispatcher, events.Event{
		Type:      events.EventIssueStatusChanged,
		IssueID:   updated.ID,
		IssueCode: updated.IssueCode,
		ActorID:   updatedByID,
		Payload:   events.IssueStatusChangedPayload{OldStatus: string(previous), NewStatus: string(status)},
	})
	return updated, nil
}

// AssignIssue sets or clears the assignee. Reassigning the current value is a
// no-op and records nothing.
func (s *IssueService) AssignIssue(ctx context.Context, issueID int64, assignedToID *int64, assignedByID int64) (*domain.Issue, error) {
	const op = "assign_issue"
	if err := s.checkReferences(ctx, assignedByID, "assigned_by_id", SetID(assignedToID), OptionalID{}); err != nil {
		return nil, s.ops.finish(op, issueID, err)
	}

	var previous *int64
	changed := false
	updated, err := s.mutate(ctx, op, issueID, func(_ context.Context, issue *domain.Issue) (*RecordActivityInput, error) {
		if equalIDs(issue.AssignedToID, assignedToID) {
			return nil, nil
		}
		changed = true
		previous = issue.AssignedToID
		issue.AssignedToID = cloneID(assignedToID)
		return &RecordActivityInput{
			ActivityType:  domain.ActivityAssigned,
			PerformedByID: assignedByID,
			Description:   strPtr(assignmentDescription("Issue assigned to user", "Issue unassigned", assignedToID)),
			OldValue:      idString(previous),
			NewValue:      idString(assignedToID),
		}, nil
	})
	if err != nil {
		return nil, err
	}

	if changed {
		publish(ctx, s.logger, s.dispatcher, events.Event{
			Type:      events.EventIssueAssigned,
			IssueID:   updated.ID,
			IssueCode: updated.IssueCode,
			ActorID:   assignedByID,
			Payload:   events.IssueAssignedPayload{PreviousAssigneeID: previous, AssigneeID: updated.AssignedToID},
		})
	}
	return updated, nil
}

// UpdatePriority sets the priority and always records PRIORITY_CHANGED, even
// when the value is unchanged.
func (s *IssueService) UpdatePriority(ctx context.Context, issueID int64, priority domain.IssuePriority, updatedByID int64) (*domain.Issue, error) {
	const op = "update_priority"
	if !priority.Valid() {
		return nil, s.ops.finish(op, issueID, invalidEnum("priority", priority))
	}
	if err := s.refs.user(ctx, "updated_by_id", updatedByID); err != nil {
		return nil, s.ops.finish(op, issueID, err)
	}

	var previous domain.IssuePriority
	updated, err := s.mutate(ctx, op, issueID, func(_ context.Context, issue *domain.Issue) (*RecordActivityInput, error) {
		previous = issue.Priority
		issue.Priority = priority
		return &RecordActivityInput{
			ActivityType:  domain.ActivityPriorityChanged,
			PerformedByID: updatedByID,
			Description:   strPtr(fmt.Sprintf("Priority changed from %s to %s", previous, priority)),
			OldValue:      strPtr(string(previous)),
			NewValue:      strPtr(string(priority)),
		}, nil
	})
	if err != nil {
		return nil, err
	}

	publish(ctx, s.logger, s.dispatcher, events.Event{
		Type:      events.EventIssuePriorityChanged,
		IssueID:   updated.ID,
		IssueCode: updated.IssueCode,
		ActorID:   updatedByID,
		Payload:   events.IssuePriorityChangedPayload{OldPriority: previous, NewPriority: priority},
	})
	return updated, nil
}

// SoftDeleteIssue hides the issue by setting its visibility status to DELETED.
// Activities and escalations are kept.
func (s *IssueService) SoftDeleteIssue(ctx context.Context, issueID int64, deletedByID int64) (*domain.Issue, error) {
	const op = "soft_delete_issue"
	if err := s.refs.user(ctx, "deleted_by_id", deletedByID); err != nil {
		return nil, s.ops.finish(op, issueID, err)
	}

	var previous domain.IssueStatus
	updated, err := s.mutate(ctx, op, issueID, func(_ context.Context, issue *domain.Issue) (*RecordActivityInput, error) {
		previous = issue.Status
		issue.Status = domain.IssueStatusDeleted
		return &RecordActivityInput{
			ActivityType:  domain.ActivityStatusChanged,
			PerformedByID: deletedByID,
			Description:   strPtr("Issue deleted"),
			OldValue:      strPtr(string(previous)),
			NewValue:      strPtr(string(domain.IssueStatusDeleted)),
		}, nil
	})
	if err != nil {
		return nil, err
	}

	publish(ctx, s.logger, s.dispatcher, events.Event{
		Type:      events.EventIssueDeleted,
		IssueID:   updated.ID,
		IssueCode: updated.IssueCode,
		ActorID:   deletedByID,
		Payload:   events.IssueStatusChangedPayload{OldStatus: string(previous), NewStatus: string(domain.IssueStatusDeleted)},
	})
	return updated, nil
}

// GetIssue returns the issue with its activity and escalation counts.
// Soft-deleted issues are still returned.
func (s *IssueService) GetIssue(ctx context.Context, issueID int64) (*domain.IssueDetail, error) {
	const op = "get_issue"
	issue, err := s.issues.GetByID(ctx, issueID)
	if err != nil {
		return nil, s.ops.finish(op, issueID, notFoundAs(err, func() error { return issueNotFound(issueID) }))
	}
	activities, err := s.activities.CountByIssue(ctx, issueID)
	if err != nil {
		return nil, s.ops.finish(op, issueID, err)
	}
	escalations, err := s.escalations.CountByIssue(ctx, issueID)
	if err != nil {
		return nil, s.ops.finish(op, issueID, err)
	}
	return &domain.IssueDetail{Issue: *issue, ActivitiesCount: activities, EscalationsCount: escalations}, s.ops.finish(op, issueID, nil)
}

// mutate locks the issue, lets fn change it and describe the audit entry,
// then writes both. A nil entry means nothing changed and nothing is written.
func (s *IssueService) mutate(ctx context.Context, op string, issueID int64, fn func(ctx context.Context, issue *domain.Issue) (*RecordActivityInput, error)) (*domain.Issue, error) {
	var result *domain.Issue
	err := s.tx.RunInTransaction(ctx, func(ctx context.Context) error {
		issue, err := s.issues.GetForUpdate(ctx, issueID)
		if err != nil {
			return notFoundAs(err, func() error { return issueNotFound(issueID) })
		}
		entry, err := fn(ctx, issue)
		if err != nil {
			return err
		}
		if entry == nil {
			result = issue
			return nil
		}
		if err := s.issues.Update(ctx, issue); err != nil {
			return notFoundAs(err, func() error { return issueNotFound(issueID) })
		}
		entry.IssueID = issue.ID
		if _, err := s.audit.append(ctx, *entry); err != nil {
			return err
		}
		result = issue
		return nil
	})
	if err := s.ops.finish(op, issueID, err); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *IssueService) newIssue(in CreateIssueInput, createdByID int64) (*domain.Issue, error) {
	title, err := s.cleanTitle(in.Issue)
	if err != nil {
		return nil, err
	}
	if !in.Type.Valid() {
		return nil, invalidEnum("type", in.Type)
	}
	if in.Priority == "" {
		in.Priority = domain.IssuePriorityMedium
	}
	if !in.Priority.Valid() {
		return nil, invalidEnum("priority", in.Priority)
	}
	if in.IssueStatus == "" {
		in.IssueStatus = domain.WorkflowStatusOpen
	}
	if !in.IssueStatus.Valid() {
		return nil, invalidEnum("issue_status", in.IssueStatus)
	}
	if in.Status == "" {
		in.Status = domain.IssueStatusActive
	}
	if !in.Status.Valid() {
		return nil, invalidEnum("status", in.Status)
	}
	return &domain.Issue{
		Issue:        title,
		Type:         in.Type,
		Description:  s.sanitizer.CleanPtr(in.Description),
		Status:       in.Status,
		IssueStatus:  in.IssueStatus,
		Priority:     in.Priority,
		CreatedByID:  createdByID,
		AssignedToID: cloneID(in.AssignedToID),
		PropertyID:   cloneID(in.PropertyID),
		Attachments:  cleanAttachments(in.Attachments),
	}, nil
}

func (s *IssueService) normalizePatch(p IssuePatch) (IssuePatch, error) {
	if p.Issue != nil {
		title, err := s.cleanTitle(*p.Issue)
		if err != nil {
			return p, err
		}
		p.Issue = &title
	}
	if p.Description != nil {
		d := s.sanitizer.Clean(*p.Description)
		p.Description = &d
	}
	if p.Status != nil && !p.Status.Valid() {
		return p, invalidEnum("status", *p.Status)
	}
	if p.IssueStatus != nil && !p.IssueStatus.Valid() {
		return p, invalidEnum("issue_status", *p.IssueStatus)
	}
	if p.Priority != nil && !p.Priority.Valid() {
		return p, invalidEnum("priority", *p.Priority)
	}
	if p.Attachments != nil {
		cleaned := cleanAttachments(*p.Attachments)
		p.Attachments = &cleaned
	}
	p.IssueCode = nil
	return p, nil
}

func (s *IssueService) cleanTitle(raw string) (string, error) {
	title := s.sanitizer.Clean(raw)
	if title == "" {
		return "", apperrors.NewValidationError("issue title is required", map[string]any{"field": "issue"})
	}
	if utf8.RuneCountInString(title) > maxTitleLength {
		return "", apperrors.NewValidationError("issue title is too long", map[string]any{"field": "issue", "max_length": maxTitleLength})
	}
	return title, nil
}

func (s *IssueService) checkReferences(ctx context.Context, actorID int64, actorField string, assignee, property OptionalID) error {
	if err := s.refs.user(ctx, actorField, actorID); err != nil {
		return err
	}
	if assignee.Set && assignee.Value != nil {
		if err := s.refs.user(ctx, "assigned_to_id", *assignee.Value); err != nil {
			return err
		}
	}
	if property.Set && property.Value != nil {
		if err := s.refs.property(ctx, *property.Value); err != nil {
			return err
		}
	}
	return nil
}

// applyPatch mutates issue and returns an entry for every field whose value changed.
func applyPatch(issue *domain.Issue, p IssuePatch) []domain.ChangeEntry {
	changes := []domain.ChangeEntry{}
	if p.Issue != nil && *p.Issue != issue.Issue {
		changes = append(changes, fieldChange("issue", strPtr(issue.Issue), p.Issue))
		issue.Issue = *p.Issue
	}
	if p.Description != nil && (issue.Description == nil || *issue.Description != *p.Description) {
		changes = append(changes, domain.ChangeEntry{Kind: domain.ChangeFieldChanged, Field: "description", Description: "description updated"})
		d := *p.Description
		issue.Description = &d
	}
	if p.Status != nil && *p.Status != issue.Status {
		changes = append(changes, fieldChange("status", strPtr(string(issue.Status)), strPtr(string(*p.Status))))
		issue.Status = *p.Status
	}
	if p.IssueStatus != nil && *p.IssueStatus != issue.IssueStatus {
		changes = append(changes, domain.ChangeEntry{
			Kind:        domain.ChangeStatusChanged,
			Field:       "issue_status",
			OldValue:    strPtr(string(issue.IssueStatus)),
			NewValue:    strPtr(string(*p.IssueStatus)),
			Description: fmt.Sprintf("Status changed from %s to %s", issue.IssueStatus, *p.IssueStatus),
		})
		issue.IssueStatus = *p.IssueStatus
	}
	if p.Priority != nil && *p.Priority != issue.Priority {
		changes = append(changes, domain.ChangeEntry{
			Kind:        domain.ChangePriorityChanged,
			Field:       "priority",
			OldValue:    strPtr(string(issue.Priority)),
			NewValue:    strPtr(string(*p.Priority)),
			Description: fmt.Sprintf("Priority changed from %s to %s", issue.Priority, *p.Priority),
		})
		issue.Priority = *p.Priority
	}
	if p.AssignedToID.Set && !equalIDs(issue.AssignedToID, p.AssignedToID.Value) {
		changes = append(changes, domain.ChangeEntry{
			Kind:        domain.ChangeAssigned,
			Field:       "assigned_to_id",
			OldValue:    idString(issue.AssignedToID),
			NewValue:    idString(p.AssignedToID.Value),
			Description: assignmentDescription("Assigned to user", "Unassigned", p.AssignedToID.Value),
		})
		issue.AssignedToID = cloneID(p.AssignedToID.Value)
	}
	if p.PropertyID.Set && !equalIDs(issue.PropertyID, p.PropertyID.Value) {
		changes = append(changes, fieldChange("property_id", idString(issue.PropertyID), idString(p.PropertyID.Value)))
		issue.PropertyID = cloneID(p.PropertyID.Value)
	}
	if p.Attachments != nil && !slices.Equal(issue.Attachments, *p.Attachments) {
		changes = append(changes, domain.ChangeEntry{Kind: domain.ChangeFieldChanged, Field: "attachments", Description: "attachments updated"})
		issue.Attachments = append([]string{}, (*p.Attachments)...)
	}
	return changes
}

func fieldChange(field string, oldValue, newValue *string) domain.ChangeEntry {
	return domain.ChangeEntry{
		Kind:        domain.ChangeFieldChanged,
		Field:       field,
		OldValue:    oldValue,
		NewValue:    newValue,
		Description: field + " updated",
	}
}

func assignmentDescription(assigned, unassigned string, id *int64) string {
	if id == nil {
		return unassigned
	}
	return fmt.Sprintf("%s %d", assigned, *id)
}

func invalidEnum[T ~string](field string, value T) error {
	return apperrors.NewValidationError(fmt.Sprintf("invalid %s", field), map[string]any{"field": field, "value": string(value)})
}

func cleanAttachments(in []string) []string {
	out := make([]string, 0, len(in))
	for _, a := range in {
		if a != "" {
			out = append(out, a)
		}
	}
	return out
}

func strPtr(s string) *string {
	return &s
}

func idString(id *int64) *string {
	if id == nil {
		return nil
	}
	return strPtr(strconv.FormatInt(*id, 10))
}

func cloneID(id *int64) *int64 {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}

func equalIDs(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
