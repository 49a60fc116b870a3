package domain

import "time"

// EscalationLevel is the severity tier of an escalation.
type EscalationLevel string

const (
	EscalationLevel1 EscalationLevel = "LEVEL_1"
	EscalationLevel2 EscalationLevel = "LEVEL_2"
	EscalationLevel3 EscalationLevel = "LEVEL_3"
)

func (l EscalationLevel) Valid() bool {
	switch l {
	case EscalationLevel1, EscalationLevel2, EscalationLevel3:
		return true
	}
	return false
}

// IssueEscalation raises a complaint to a named recipient.
type IssueEscalation struct {
	ID              int64
	IssueID         int64
	EscalationLevel EscalationLevel
	EscalatedByID   int64
	EscalatedToID   int64
	Reason          *string
	Notes           *string
	Resolved        bool
	ResolvedAt      *time.Time
	ResolvedByID    *int64
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Clone returns a deep copy.
func (e *IssueEscalation) Clone() *IssueEscalation {
	if e == nil {
		return nil
	}
	out := *e
	out.Reason = clonePtr(e.Reason)
	out.Notes = clonePtr(e.Notes)
	out.ResolvedAt = clonePtr(e.ResolvedAt)
	out.ResolvedByID = clonePtr(e.ResolvedByID)
	return &out
}
