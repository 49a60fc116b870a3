package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/issue-service/internal/config"
	"github.com/spec-kit/issue-service/internal/events"
)

type fakeForwarder struct {
	got []events.Event
	err error
}

func (f *fakeForwarder) Forward(_ context.Context, event events.Event) error {
	f.got = append(f.got, event)
	return f.err
}

func TestNotificationServiceForwardsEveryEvent(t *testing.T) {
	dispatcher := events.NewInMemoryDispatcher()
	forwarder := &fakeForwarder{}
	NewNotificationService(dispatcher, forwarder, zap.NewNop(), config.NotificationConfig{WebhookURL: "http://hooks.local"}).RegisterHandlers()

	ctx := context.Background()
	require.NoError(t, dispatcher.Publish(ctx, events.Event{Type: events.EventIssueCreated, IssueID: 1, IssueCode: "CMP-1000"}))
	require.NoError(t, dispatcher.Publish(ctx, events.Event{Type: events.EventIssueEscalated, IssueID: 1}))

	require.Len(t, forwarder.got, 2)
	assert.Equal(t, "CMP-1000", forwarder.got[0].IssueCode)
	assert.NotEmpty(t, forwarder.got[0].ID)
}

func TestNotificationServiceSwallowsForwardErrors(t *testing.T) {
	dispatcher := events.NewInMemoryDispatcher()
	forwarder := &fakeForwarder{err: errors.New("redis down")}
	NewNotificationService(dispatcher, forwarder, nil, config.NotificationConfig{}).RegisterHandlers()

	err := dispatcher.Publish(context.Background(), events.Event{Type: events.EventEscalationResolved, IssueID: 5})
	assert.NoError(t, err)
	assert.Len(t, forwarder.got, 1)
}

func TestNotificationServiceWithoutForwarder(t *testing.T) {
	dispatcher := events.NewInMemoryDispatcher()
	NewNotificationService(dispatcher, nil, nil, config.NotificationConfig{EmailFrom: "ops@example.com"}).RegisterHandlers()

	assert.NoError(t, dispatcher.Publish(context.Background(), events.Event{Type: events.EventIssueAssigned, IssueID: 3}))
}
