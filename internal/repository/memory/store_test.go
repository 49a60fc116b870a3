package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/issue-service/internal/domain"
	"github.com/spec-kit/issue-service/internal/repository"
)

func tickingClock() func() time.Time {
	base := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	n := 0
	return func() time.Time {
		n++
		return base.Add(time.Duration(n) * time.Second)
	}
}

func newIssue(code, title string) *domain.Issue {
	return &domain.Issue{
		IssueCode:   code,
		Issue:       title,
		Type:        domain.IssueTypeComplaint,
		Status:      domain.IssueStatusActive,
		IssueStatus: domain.WorkflowStatusOpen,
		Priority:    domain.IssuePriorityMedium,
		CreatedByID: 1,
	}
}

func TestTransactionRollsBackEveryWrite(t *testing.T) {
	store := NewStore(WithClock(tickingClock()))
	ctx := context.Background()
	boom := errors.New("boom")

	err := store.TxManager().RunInTransaction(ctx, func(ctx context.Context) error {
		issue := newIssue("CMP-1000", "Leak")
		require.NoError(t, store.Issues().Create(ctx, issue))
		_, _, err := store.Sequences().Next(ctx, "CMP")
		require.NoError(t, err)
		_, err = store.Sequences().Init(ctx, "CMP", 999)
		require.NoError(t, err)
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, total, err := store.Issues().List(ctx, repository.IssueFilter{})
	require.NoError(t, err)
	assert.Zero(t, total)

	value, found, err := store.Sequences().Next(ctx, "CMP")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Zero(t, value)
}

func TestIssueCodeUniquePerType(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	require.NoError(t, store.Issues().Create(ctx, newIssue("CMP-1000", "first")))
	err := store.Issues().Create(ctx, newIssue("CMP-1000", "second"))
	assert.ErrorIs(t, err, repository.ErrDuplicateIssueCode)

	support := newIssue("CMP-1000", "other type")
	support.Type = domain.IssueTypeSupport
	assert.NoError(t, store.Issues().Create(ctx, support))
}

func TestListFiltersAndOrdersNewestFirst(t *testing.T) {
	store := NewStore(WithClock(tickingClock()))
	ctx := context.Background()

	for i, title := range []string{"Water leak", "Broken door", "Leaking roof"} {
		issue := newIssue("CMP-"+string(rune('A'+i)), title)
		require.NoError(t, store.Issues().Create(ctx, issue))
	}
	deleted := newIssue("CMP-Z", "Leak in hall")
	deleted.Status = domain.IssueStatusDeleted
	require.NoError(t, store.Issues().Create(ctx, deleted))

	search := "LEAK"
	items, total, err := store.Issues().List(ctx, repository.IssueFilter{Search: &search, Limit: 10})
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	require.Len(t, items, 2)
	assert.Equal(t, "Leaking roof", items[0].Issue)
	assert.Equal(t, "Water leak", items[1].Issue)

	status := domain.IssueStatusDeleted
	items, total, err = store.Issues().List(ctx, repository.IssueFilter{Status: &status})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	assert.Equal(t, "Leak in hall", items[0].Issue)

	items, total, err = store.Issues().List(ctx, repository.IssueFilter{Offset: 2, Limit: 2})
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)
	require.Len(t, items, 1)
	assert.Equal(t, "Water leak", items[0].Issue)
}

func TestActivitiesNewestFirstWithWindow(t *testing.T) {
	store := NewStore(WithClock(tickingClock()))
	ctx := context.Background()
	issue := newIssue("CMP-1000", "Leak")
	require.NoError(t, store.Issues().Create(ctx, issue))

	for _, kind := range []domain.ActivityType{domain.ActivityCreated, domain.ActivityStatusChanged, domain.ActivityEscalated} {
		require.NoError(t, store.Activities().Create(ctx, &domain.IssueActivity{
			IssueID: issue.ID, ActivityType: kind, PerformedByID: 1,
		}))
	}

	items, err := store.Activities().ListByIssue(ctx, issue.ID, 0, 2)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, domain.ActivityEscalated, items[0].ActivityType)
	assert.Equal(t, domain.ActivityStatusChanged, items[1].ActivityType)

	count, err := store.Activities().CountByIssue(ctx, issue.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 3, count)

	err = store.Activities().Create(ctx, &domain.IssueActivity{IssueID: 999, ActivityType: domain.ActivityCreated})
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestFailNextIsConsumedOnce(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	boom := errors.New("disk full")
	store.FailNext("issues.create", boom)

	assert.ErrorIs(t, store.Issues().Create(ctx, newIssue("CMP-1000", "a")), boom)
	assert.NoError(t, store.Issues().Create(ctx, newIssue("CMP-1000", "a")))
}

func TestNestedTransactionJoinsOuter(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	tx := store.TxManager()

	err := tx.RunInTransaction(ctx, func(ctx context.Context) error {
		return tx.RunInTransaction(ctx, func(ctx context.Context) error {
			return store.Issues().Create(ctx, newIssue("CMP-1000", "nested"))
		})
	})
	require.NoError(t, err)

	got, err := store.Issues().GetByID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "nested", got.Issue)
}

func TestDirectories(t *testing.T) {
	ctx := context.Background()

	closed := NewStore()
	closed.AddUser(domain.User{ID: 4, FullName: "Kai"})
	ok, err := closed.Users().Exists(ctx, 4)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, _ = closed.Users().Exists(ctx, 5)
	assert.False(t, ok)

	open := NewStore(WithOpenDirectories())
	ok, _ = open.Users().Exists(ctx, 5)
	assert.True(t, ok)
	ok, _ = open.Properties().Exists(ctx, 0)
	assert.False(t, ok)
}

func TestDirectoryNames(t *testing.T) {
	ctx := context.Background()
	store := NewStore(WithOpenDirectories())
	store.AddUser(domain.User{ID: 4, FullName: "Kai"})
	store.AddProperty(domain.Property{ID: 9, Name: "Dune House"})

	users, err := store.Users().Names(ctx, []int64{4, 5})
	require.NoError(t, err)
	assert.Equal(t, map[int64]string{4: "Kai"}, users)

	properties, err := store.Properties().Names(ctx, []int64{9})
	require.NoError(t, err)
	assert.Equal(t, map[int64]string{9: "Dune House"}, properties)
}

func TestStoredActivitiesAreIsolatedFromCallers(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	issue := newIssue("CMP-1000", "Leak")
	require.NoError(t, store.Issues().Create(ctx, issue))

	old, next := "LOW", "HIGH"
	activity := &domain.IssueActivity{
		IssueID: issue.ID, ActivityType: domain.ActivityUpdated, PerformedByID: 1,
		Metadata: &domain.ActivityMetadata{Changes: []domain.ChangeEntry{
			{Kind: domain.ChangePriorityChanged, Field: "priority", OldValue: &old, NewValue: &next},
		}},
	}
	require.NoError(t, store.Activities().Create(ctx, activity))
	activity.Metadata.Changes[0].Field = "written-after-create"
	next = "URGENT"

	listed, err := store.Activities().ListByIssue(ctx, issue.ID, 0, 0)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	listed[0].Metadata.Changes[0].Field = "written-after-list"
	*listed[0].Metadata.Changes[0].OldValue = "MEDIUM"

	again, err := store.Activities().ListByIssue(ctx, issue.ID, 0, 0)
	require.NoError(t, err)
	change := again[0].Metadata.Changes[0]
	assert.Equal(t, "priority", change.Field)
	assert.Equal(t, "LOW", *change.OldValue)
	assert.Equal(t, "HIGH", *change.NewValue)
}

func TestStoredEscalationsAreIsolatedFromCallers(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	issue := newIssue("CMP-1000", "Leak")
	require.NoError(t, store.Issues().Create(ctx, issue))

	notes := "first call"
	escalation := &domain.IssueEscalation{
		IssueID: issue.ID, EscalationLevel: domain.EscalationLevel1, EscalatedByID: 1, EscalatedToID: 2, Notes: &notes,
	}
	require.NoError(t, store.Escalations().Create(ctx, escalation))
	notes = "changed by caller"

	got, err := store.Escalations().GetByID(ctx, escalation.ID)
	require.NoError(t, err)
	assert.Equal(t, "first call", *got.Notes)
	*got.Notes = "changed after get"

	listed, err := store.Escalations().ListByIssue(ctx, issue.ID)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, "first call", *listed[0].Notes)
}

func TestListingOrdersByInsertionWhenTimestampsTie(t *testing.T) {
	fixed := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	store := NewStore(WithClock(func() time.Time { return fixed }))
	ctx := context.Background()
	issue := newIssue("CMP-1000", "Leak")
	require.NoError(t, store.Issues().Create(ctx, issue))

	for _, kind := range []domain.ActivityType{domain.ActivityCreated, domain.ActivityAssigned, domain.ActivityEscalated} {
		require.NoError(t, store.Activities().Create(ctx, &domain.IssueActivity{IssueID: issue.ID, ActivityType: kind, PerformedByID: 1}))
	}
	items, err := store.Activities().ListByIssue(ctx, issue.ID, 0, 0)
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, []domain.ActivityType{domain.ActivityEscalated, domain.ActivityAssigned, domain.ActivityCreated},
		[]domain.ActivityType{items[0].ActivityType, items[1].ActivityType, items[2].ActivityType})
}
