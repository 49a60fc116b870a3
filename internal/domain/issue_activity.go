package domain

import "time"

// ActivityType captures what an audit entry describes.
type ActivityType string

const (
	ActivityCreated         ActivityType = "CREATED"
	ActivityStatusChanged   ActivityType = "STATUS_CHANGED"
	ActivityAssigned        ActivityType = "ASSIGNED"
	ActivityUpdated         ActivityType = "UPDATED"
	ActivityCommentAdded    ActivityType = "COMMENT_ADDED"
	ActivityEscalated       ActivityType = "ESCALATED"
	ActivityAttachmentAdded ActivityType = "ATTACHMENT_ADDED"
	ActivityPriorityChanged ActivityType = "PRIORITY_CHANGED"
	ActivityClosed          ActivityType = "CLOSED"
	ActivityReopened        ActivityType = "REOPENED"
)

func (t ActivityType) Valid() bool {
	switch t {
	case ActivityCreated, ActivityStatusChanged, ActivityAssigned, ActivityUpdated,
		ActivityCommentAdded, ActivityEscalated, ActivityAttachmentAdded,
		ActivityPriorityChanged, ActivityClosed, ActivityReopened:
		return true
	}
	return false
}

// ChangeKind tags one entry of an UPDATED activity.
type ChangeKind string

const (
	ChangeAssigned        ChangeKind = "ASSIGNED"
	ChangeStatusChanged   ChangeKind = "STATUS_CHANGED"
	ChangePriorityChanged ChangeKind = "PRIORITY_CHANGED"
	ChangeFieldChanged    ChangeKind = "FIELD_CHANGED"
)

// ChangeEntry records a single field transition.
type ChangeEntry struct {
	Kind        ChangeKind `json:"type"`
	Field       string     `json:"field"`
	OldValue    *string    `json:"old_value,omitempty"`
	NewValue    *string    `json:"new_value,omitempty"`
	Description string     `json:"description"`
}

// ActivityMetadata is the structured payload stored with an activity.
type ActivityMetadata struct {
	Changes []ChangeEntry `json:"changes"`
}

// IssueActivity is an immutable audit trail entry.
type IssueActivity struct {
	ID            int64
	IssueID       int64
	ActivityType  ActivityType
	PerformedByID int64
	Description   *string
	OldValue      *string
	NewValue      *string
	Metadata      *ActivityMetadata
	CreatedAt     time.Time
}

// Clone returns a deep copy, metadata included.
func (a *IssueActivity) Clone() *IssueActivity {
	if a == nil {
		return nil
	}
	out := *a
	out.Description = clonePtr(a.Description)
	out.OldValue = clonePtr(a.OldValue)
	out.NewValue = clonePtr(a.NewValue)
	if a.Metadata != nil {
		meta := ActivityMetadata{}
		if a.Metadata.Changes != nil {
			meta.Changes = make([]ChangeEntry, len(a.Metadata.Changes))
			for i, c := range a.Metadata.Changes {
				c.OldValue = clonePtr(c.OldValue)
				c.NewValue = clonePtr(c.NewValue)
				meta.Changes[i] = c
			}
		}
		out.Metadata = &meta
	}
	return &out
}
