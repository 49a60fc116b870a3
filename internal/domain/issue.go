package domain

import "time"

// IssueType classifies an issue. It is fixed at creation.
type IssueType string

const (
	IssueTypeComplaint IssueType = "COMPLAINT"
	IssueTypeSupport   IssueType = "SUPPORT"
)

// Valid reports whether t is a known issue type.
func (t IssueType) Valid() bool {
	return t == IssueTypeComplaint || t == IssueTypeSupport
}

// IssueStatus is the record-level visibility of an issue.
type IssueStatus string

const (
	IssueStatusActive   IssueStatus = "ACTIVE"
	IssueStatusInactive IssueStatus = "INACTIVE"
	IssueStatusDeleted  IssueStatus = "DELETED"
)

func (s IssueStatus) Valid() bool {
	switch s {
	case IssueStatusActive, IssueStatusInactive, IssueStatusDeleted:
		return true
	}
	return false
}

// WorkflowStatus is where an issue sits in the support workflow.
// It is independent of IssueStatus.
type WorkflowStatus string

const (
	WorkflowStatusOpen       WorkflowStatus = "OPEN"
	WorkflowStatusInProgress WorkflowStatus = "IN_PROGRESS"
	WorkflowStatusEscalated  WorkflowStatus = "ESCALATED"
	WorkflowStatusClosed     WorkflowStatus = "CLOSED"
)

func (s WorkflowStatus) Valid() bool {
	switch s {
	case WorkflowStatusOpen, WorkflowStatusInProgress, WorkflowStatusEscalated, WorkflowStatusClosed:
		return true
	}
	return false
}

// IssuePriority enumerates urgency.
type IssuePriority string

const (
	IssuePriorityLow    IssuePriority = "LOW"
	IssuePriorityMedium IssuePriority = "MEDIUM"
	IssuePriorityHigh   IssuePriority = "HIGH"
	IssuePriorityUrgent IssuePriority = "URGENT"
)

func (p IssuePriority) Valid() bool {
	switch p {
	case IssuePriorityLow, IssuePriorityMedium, IssuePriorityHigh, IssuePriorityUrgent:
		return true
	}
	return false
}

// Issue is the aggregate root for complaints and support tickets.
// Activities and escalations are owned by it and referenced by IssueID.
type Issue struct {
	ID           int64
	IssueCode    string
	Issue        string
	Type         IssueType
	Description  *string
	Status       IssueStatus
	IssueStatus  WorkflowStatus
	Priority     IssuePriority
	CreatedByID  int64
	AssignedToID *int64
	PropertyID   *int64
	Attachments  []string
	CreatedOn    time.Time
	UpdatedAt    time.Time
}

// Clone returns a deep copy so callers can diff before and after a mutation.
func (i *Issue) Clone() *Issue {
	if i == nil {
		return nil
	}
	out := *i
	out.Description = clonePtr(i.Description)
	out.AssignedToID = clonePtr(i.AssignedToID)
	out.PropertyID = clonePtr(i.PropertyID)
	out.Attachments = append([]string(nil), i.Attachments...)
	return &out
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// IssueDetail is an issue with denormalized child counts.
type IssueDetail struct {
	Issue
	ActivitiesCount  int64
	EscalationsCount int64
}
