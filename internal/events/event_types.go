package events

import (
	"time"

	"github.com/spec-kit/issue-service/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	// AllEvents subscribes a handler to every event type.
	AllEvents EventType = "*"

	EventIssueCreated         EventType = "issue_created"
	EventIssueUpdated         EventType = "issue_updated"
	EventIssueStatusChanged   EventType = "issue_status_changed"
	EventIssueAssigned        EventType = "issue_assigned"
	EventIssuePriorityChanged EventType = "issue_priority_changed"
	EventIssueDeleted         EventType = "issue_deleted"
	EventIssueEscalated       EventType = "issue_escalated"
	EventEscalationResolved   EventType = "escalation_resolved"
	EventActivityRecorded     EventType = "activity_recorded"
)

// Event represents a domain event emitted by services after commit.
type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	IssueID   int64     `json:"issue_id"`
	IssueCode string    `json:"issue_code,omitempty"`
	ActorID   int64     `json:"actor_id"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload,omitempty"`
}

// IssueCreatedPayload payload.
type IssueCreatedPayload struct {
	Type         domain.IssueType     `json:"type"`
	Priority     domain.IssuePriority `json:"priority"`
	Title        string               `json:"title"`
	AssignedToID *int64               `json:"assigned_to_id,omitempty"`
}

// IssueUpdatedPayload lists the changed fields.
type IssueUpdatedPayload struct {
	Changes []domain.ChangeEntry `json:"changes"`
}

// IssueStatusChangedPayload payload.
type IssueStatusChangedPayload struct {
	OldStatus string `json:"old_status"`
	NewStatus string `json:"new_status"`
}

// IssuePriorityChangedPayload payload.
type IssuePriorityChangedPayload struct {
	OldPriority domain.IssuePriority `json:"old_priority"`
	NewPriority domain.IssuePriority `json:"new_priority"`
}

// IssueAssignedPayload payload. A nil assignee means the issue was unassigned.
type IssueAssignedPayload struct {
	PreviousAssigneeID *int64 `json:"previous_assignee_id,omitempty"`
	AssigneeID         *int64 `json:"assignee_id,omitempty"`
}

// IssueEscalatedPayload payload.
type IssueEscalatedPayload struct {
	EscalationID  int64                  `json:"escalation_id"`
	Level         domain.EscalationLevel `json:"level"`
	EscalatedToID int64                  `json:"escalated_to_id"`
}

// EscalationResolvedPayload payload.
type EscalationResolvedPayload struct {
	EscalationID int64  `json:"escalation_id"`
	ResolvedByID *int64 `json:"resolved_by_id,omitempty"`
}

// ActivityRecordedPayload payload.
type ActivityRecordedPayload struct {
	ActivityID   int64               `json:"activity_id"`
	ActivityType domain.ActivityType `json:"activity_type"`
}
