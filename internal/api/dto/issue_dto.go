package dto

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/spec-kit/issue-service/internal/domain"
	"github.com/spec-kit/issue-service/internal/service"
)

// NullableID tracks whether a JSON key was present, so an explicit null can
// clear a reference while an absent key leaves it alone.
type NullableID struct {
	Set   bool
	Value *int64
}

// UnmarshalJSON is only invoked for keys present in the payload.
func (n *NullableID) UnmarshalJSON(data []byte) error {
	n.Set = true
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		n.Value = nil
		return nil
	}
	var v int64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	n.Value = &v
	return nil
}

// CreateIssueRequest payload for POST /issues.
type CreateIssueRequest struct {
	Issue        string                `json:"issue" validate:"required,max=255"`
	Type         domain.IssueType      `json:"type" validate:"required,oneof=COMPLAINT SUPPORT"`
	Description  *string               `json:"description"`
	Priority     domain.IssuePriority  `json:"priority" validate:"omitempty,oneof=LOW MEDIUM HIGH URGENT"`
	IssueStatus  domain.WorkflowStatus `json:"issue_status" validate:"omitempty,oneof=OPEN IN_PROGRESS ESCALATED CLOSED"`
	Status       domain.IssueStatus    `json:"status" validate:"omitempty,oneof=ACTIVE INACTIVE DELETED"`
	CreatedByID  int64                 `json:"created_by_id" validate:"required,gt=0"`
	AssignedToID *int64                `json:"assigned_to_id" validate:"omitempty,gt=0"`
	PropertyID   *int64                `json:"property_id" validate:"omitempty,gt=0"`
	Attachments  []string              `json:"attachments" validate:"omitempty,dive,max=1024"`
}

// ToInput converts the request into the service input.
func (r CreateIssueRequest) ToInput() service.CreateIssueInput {
	return service.CreateIssueInput{
		Issue:        r.Issue,
		Type:         r.Type,
		Description:  r.Description,
		Priority:     r.Priority,
		IssueStatus:  r.IssueStatus,
		Status:       r.Status,
		AssignedToID: r.AssignedToID,
		PropertyID:   r.PropertyID,
		Attachments:  r.Attachments,
	}
}

// UpdateIssueRequest payload for PUT /issues/:id. Absent keys are untouched.
type UpdateIssueRequest struct {
	Issue        *string                `json:"issue" validate:"omitempty,max=255"`
	Description  *string                `json:"description"`
	Status       *domain.IssueStatus    `json:"status" validate:"omitempty,oneof=ACTIVE INACTIVE DELETED"`
	IssueStatus  *domain.WorkflowStatus `json:"issue_status" validate:"omitempty,oneof=OPEN IN_PROGRESS ESCALATED CLOSED"`
	Priority     *domain.IssuePriority  `json:"priority" validate:"omitempty,oneof=LOW MEDIUM HIGH URGENT"`
	AssignedToID NullableID             `json:"assigned_to_id"`
	PropertyID   NullableID             `json:"property_id"`
	Attachments  *[]string              `json:"attachments"`
	IssueCode    *string                `json:"issue_code"`
}

// ToPatch converts the request into a service patch.
func (r UpdateIssueRequest) ToPatch() service.IssuePatch {
	return service.IssuePatch{
		Issue:        r.Issue,
		Description:  r.Description,
		Status:       r.Status,
		IssueStatus:  r.IssueStatus,
		Priority:     r.Priority,
		AssignedToID: service.OptionalID{Set: r.AssignedToID.Set, Value: r.AssignedToID.Value},
		PropertyID:   service.OptionalID{Set: r.PropertyID.Set, Value: r.PropertyID.Value},
		Attachments:  r.Attachments,
		IssueCode:    r.IssueCode,
	}
}

// UpdateStatusRequest payload for PATCH /issues/:id/status.
type UpdateStatusRequest struct {
	IssueStatus domain.WorkflowStatus `json:"issue_status" validate:"required,oneof=OPEN IN_PROGRESS ESCALATED CLOSED"`
	Description *string               `json:"description"`
}

// AssignIssueRequest payload for PATCH /issues/:id/assign. A null
// assigned_to_id unassigns.
type AssignIssueRequest struct {
	AssignedToID *int64 `json:"assigned_to_id" validate:"omitempty,gt=0"`
}

// UpdatePriorityRequest payload for PATCH /issues/:id/priority.
type UpdatePriorityRequest struct {
	Priority domain.IssuePriority `json:"priority" validate:"required,oneof=LOW MEDIUM HIGH URGENT"`
}

// SearchIssuesRequest is the JSON filter accepted by POST /issues/search.
type SearchIssuesRequest struct {
	Page         int                    `json:"page" validate:"omitempty,gte=1"`
	Limit        int                    `json:"limit" validate:"omitempty,gte=1"`
	Type         *domain.IssueType      `json:"type" validate:"omitempty,oneof=COMPLAINT SUPPORT"`
	Status       *domain.IssueStatus    `json:"status" validate:"omitempty,oneof=ACTIVE INACTIVE DELETED"`
	IssueStatus  *domain.WorkflowStatus `json:"issue_status" validate:"omitempty,oneof=OPEN IN_PROGRESS ESCALATED CLOSED"`
	Priority     *domain.IssuePriority  `json:"priority" validate:"omitempty,oneof=LOW MEDIUM HIGH URGENT"`
	CreatedByID  *int64                 `json:"created_by_id"`
	AssignedToID *int64                 `json:"assigned_to_id"`
	PropertyID   *int64                 `json:"property_id"`
	Search       *string                `json:"search"`
}

// ToQuery converts the request into a service query.
func (r SearchIssuesRequest) ToQuery() service.IssueQuery {
	return service.IssueQuery{
		Page:         r.Page,
		Limit:        r.Limit,
		Type:         r.Type,
		Status:       r.Status,
		IssueStatus:  r.IssueStatus,
		Priority:     r.Priority,
		CreatedByID:  r.CreatedByID,
		AssignedToID: r.AssignedToID,
		PropertyID:   r.PropertyID,
		Search:       r.Search,
	}
}

// CreateActivityRequest payload for POST /issues/:id/activities.
type CreateActivityRequest struct {
	ActivityType  domain.ActivityType `json:"activity_type" validate:"required"`
	PerformedByID int64               `json:"performed_by_id" validate:"required,gt=0"`
	Description   *string             `json:"description"`
	OldValue      *string             `json:"old_value"`
	NewValue      *string             `json:"new_value"`
}

// CreateEscalationRequest payload for POST /issues/:id/escalations.
type CreateEscalationRequest struct {
	EscalationLevel domain.EscalationLevel `json:"escalation_level" validate:"required,oneof=LEVEL_1 LEVEL_2 LEVEL_3"`
	EscalatedByID   int64                  `json:"escalated_by_id" validate:"required,gt=0"`
	EscalatedToID   int64                  `json:"escalated_to_id" validate:"required,gt=0"`
	Reason          *string                `json:"reason"`
	Notes           *string                `json:"notes"`
}

// UpdateEscalationRequest payload for PATCH /issues/escalations/:escalation_id.
type UpdateEscalationRequest struct {
	Resolved     *bool   `json:"resolved"`
	ResolvedByID *int64  `json:"resolved_by_id" validate:"omitempty,gt=0"`
	Notes        *string `json:"notes"`
}

// IssueResponse is the wire shape of an issue.
type IssueResponse struct {
	ID               int64                 `json:"id"`
	IssueCode        string                `json:"issue_code"`
	Issue            string                `json:"issue"`
	Type             domain.IssueType      `json:"type"`
	Description      *string               `json:"description"`
	Status           domain.IssueStatus    `json:"status"`
	IssueStatus      domain.WorkflowStatus `json:"issue_status"`
	Priority         domain.IssuePriority  `json:"priority"`
	CreatedByID      int64                 `json:"created_by_id"`
	CreatedByName    *string               `json:"created_by_name"`
	AssignedToID     *int64                `json:"assigned_to_id"`
	AssignedToName   *string               `json:"assigned_to_name"`
	PropertyID       *int64                `json:"property_id"`
	PropertyName     *string               `json:"property_name"`
	Attachments      []string              `json:"attachments"`
	CreatedOn        time.Time             `json:"created_on"`
	UpdatedAt        time.Time             `json:"updated_at"`
	ActivitiesCount  *int64                `json:"activities_count,omitempty"`
	EscalationsCount *int64                `json:"escalations_count,omitempty"`
}

// NewIssueResponse maps a domain issue. Names missing from names render as null.
func NewIssueResponse(issue *domain.Issue, names domain.DisplayNames) IssueResponse {
	attachments := issue.Attachments
	if attachments == nil {
		attachments = []string{}
	}
	return IssueResponse{
		ID:             issue.ID,
		IssueCode:      issue.IssueCode,
		Issue:          issue.Issue,
		Type:           issue.Type,
		Description:    issue.Description,
		Status:         issue.Status,
		IssueStatus:    issue.IssueStatus,
		Priority:       issue.Priority,
		CreatedByID:    issue.CreatedByID,
		CreatedByName:  names.User(issue.CreatedByID),
		AssignedToID:   issue.AssignedToID,
		AssignedToName: names.OptionalUser(issue.AssignedToID),
		PropertyID:     issue.PropertyID,
		PropertyName:   names.Property(issue.PropertyID),
		Attachments:    attachments,
		CreatedOn:      issue.CreatedOn,
		UpdatedAt:      issue.UpdatedAt,
	}
}

// NewIssueDetailResponse maps an issue with its child counts.
func NewIssueDetailResponse(detail *domain.IssueDetail, names domain.DisplayNames) IssueResponse {
	resp := NewIssueResponse(&detail.Issue, names)
	activities, escalations := detail.ActivitiesCount, detail.EscalationsCount
	resp.ActivitiesCount = &activities
	resp.EscalationsCount = &escalations
	return resp
}

// NewIssueListResponse maps a page of issues.
func NewIssueListResponse(issues []domain.Issue, names domain.DisplayNames) []IssueResponse {
	out := make([]IssueResponse, 0, len(issues))
	for i := range issues {
		out = append(out, NewIssueResponse(&issues[i], names))
	}
	return out
}

// ActivityResponse is the wire shape of an audit entry.
type ActivityResponse struct {
	ID              int64                    `json:"id"`
	IssueID         int64                    `json:"issue_id"`
	ActivityType    domain.ActivityType      `json:"activity_type"`
	PerformedByID   int64                    `json:"performed_by_id"`
	PerformedByName *string                  `json:"performed_by_name"`
	Description     *string                  `json:"description"`
	OldValue        *string                  `json:"old_value"`
	NewValue        *string                  `json:"new_value"`
	Metadata        *domain.ActivityMetadata `json:"activity_metadata"`
	CreatedAt       time.Time                `json:"created_at"`
}

// NewActivityResponse maps an activity.
func NewActivityResponse(a *domain.IssueActivity, names domain.DisplayNames) ActivityResponse {
	return ActivityResponse{
		ID:              a.ID,
		IssueID:         a.IssueID,
		ActivityType:    a.ActivityType,
		PerformedByID:   a.PerformedByID,
		PerformedByName: names.User(a.PerformedByID),
		Description:     a.Description,
		OldValue:        a.OldValue,
		NewValue:        a.NewValue,
		Metadata:        a.Metadata,
		CreatedAt:       a.CreatedAt,
	}
}

// NewActivityListResponse maps activities.
func NewActivityListResponse(items []domain.IssueActivity, names domain.DisplayNames) []ActivityResponse {
	out := make([]ActivityResponse, 0, len(items))
	for i := range items {
		out = append(out, NewActivityResponse(&items[i], names))
	}
	return out
}

// EscalationResponse is the wire shape of an escalation.
type EscalationResponse struct {
	ID              int64                  `json:"id"`
	IssueID         int64                  `json:"issue_id"`
	EscalationLevel domain.EscalationLevel `json:"escalation_level"`
	EscalatedByID   int64                  `json:"escalated_by_id"`
	EscalatedByName *string                `json:"escalated_by_name"`
	EscalatedToID   int64                  `json:"escalated_to_id"`
	EscalatedToName *string                `json:"escalated_to_name"`
	Reason          *string                `json:"reason"`
	Notes           *string                `json:"notes"`
	Resolved        bool                   `json:"resolved"`
	ResolvedAt      *time.Time             `json:"resolved_at"`
	ResolvedByID    *int64                 `json:"resolved_by_id"`
	ResolvedByName  *string                `json:"resolved_by_name"`
	CreatedAt       time.Time              `json:"created_at"`
	UpdatedAt       time.Time              `json:"updated_at"`
}

// NewEscalationResponse maps an escalation.
func NewEscalationResponse(e *domain.IssueEscalation, names domain.DisplayNames) EscalationResponse {
	return EscalationResponse{
		ID:              e.ID,
		IssueID:         e.IssueID,
		EscalationLevel: e.EscalationLevel,
		EscalatedByID:   e.EscalatedByID,
		EscalatedByName: names.User(e.EscalatedByID),
		EscalatedToID:   e.EscalatedToID,
		EscalatedToName: names.User(e.EscalatedToID),
		Reason:          e.Reason,
		Notes:           e.Notes,
		Resolved:        e.Resolved,
		ResolvedAt:      e.ResolvedAt,
		ResolvedByID:    e.ResolvedByID,
		ResolvedByName:  names.OptionalUser(e.ResolvedByID),
		CreatedAt:       e.CreatedAt,
		UpdatedAt:       e.UpdatedAt,
	}
}

// NewEscalationListResponse maps escalations.
func NewEscalationListResponse(items []domain.IssueEscalation, names domain.DisplayNames) []EscalationResponse {
	out := make([]EscalationResponse, 0, len(items))
	for i := range items {
		out = append(out, NewEscalationResponse(&items[i], names))
	}
	return out
}
