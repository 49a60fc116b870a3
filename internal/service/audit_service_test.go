package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/issue-service/internal/domain"
	"github.com/spec-kit/issue-service/internal/events"
	apperrors "github.com/spec-kit/issue-service/pkg/util/errorutil"
)

func TestCreateActivityAppendsComment(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	issue := h.createComplaint(t, "Broken window")

	activity, err := h.audit.CreateActivity(ctx, RecordActivityInput{
		IssueID:       issue.ID,
		ActivityType:  domain.ActivityCommentAdded,
		PerformedByID: 2,
		Description:   strPtr("<i>Glazier</i> booked for Monday"),
	})
	require.NoError(t, err)
	assert.Equal(t, "Glazier booked for Monday", *activity.Description)
	assert.NotZero(t, activity.ID)

	items := h.activities(t, issue.ID)
	require.Len(t, items, 2)
	assert.Equal(t, domain.ActivityCommentAdded, items[0].ActivityType)

	last := h.events()[len(h.events())-1]
	assert.Equal(t, events.EventActivityRecorded, last.Type)
}

func TestCreateActivityValidation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	issue := h.createComplaint(t, "Fence")

	_, err := h.audit.CreateActivity(ctx, RecordActivityInput{IssueID: issue.ID, ActivityType: "RENAMED", PerformedByID: 1})
	assert.True(t, apperrors.IsValidation(err))

	_, err = h.audit.CreateActivity(ctx, RecordActivityInput{IssueID: 88, ActivityType: domain.ActivityCommentAdded, PerformedByID: 1})
	assert.True(t, apperrors.IsNotFound(err))

	_, err = h.audit.CreateActivity(ctx, RecordActivityInput{IssueID: issue.ID, ActivityType: domain.ActivityCommentAdded, PerformedByID: 40})
	assert.True(t, apperrors.IsNotFound(err))

	assert.Len(t, h.activities(t, issue.ID), 1)
}

func TestRecordValidatesPerformer(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	issue := h.createComplaint(t, "Drain")

	_, err := h.audit.Record(ctx, RecordActivityInput{IssueID: issue.ID, ActivityType: domain.ActivityClosed, PerformedByID: 9})
	assert.True(t, apperrors.IsNotFound(err))

	activity, err := h.audit.Record(ctx, RecordActivityInput{IssueID: issue.ID, ActivityType: domain.ActivityClosed, PerformedByID: 3})
	require.NoError(t, err)
	assert.Equal(t, domain.ActivityClosed, activity.ActivityType)
}

func TestListActivitiesWindow(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	issue := h.createComplaint(t, "Paint")
	for i := 0; i < 4; i++ {
		_, err := h.issues.UpdatePriority(ctx, issue.ID, domain.IssuePriorityHigh, 1)
		require.NoError(t, err)
	}

	items, err := h.audit.ListActivities(ctx, issue.ID, 1, 2)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.True(t, items[0].CreatedAt.After(items[1].CreatedAt))

	items, err = h.audit.ListActivities(ctx, issue.ID, -5, 5000)
	require.NoError(t, err)
	assert.Len(t, items, 5)

	skip, limit := h.audit.window(-1, 5000)
	assert.Equal(t, 0, skip)
	assert.Equal(t, 1000, limit)
	_, limit = h.audit.window(0, 0)
	assert.Equal(t, 100, limit)
}
