package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/issue-service/internal/config"
	"github.com/spec-kit/issue-service/internal/domain"
	"github.com/spec-kit/issue-service/internal/events"
	"github.com/spec-kit/issue-service/internal/observability"
	"github.com/spec-kit/issue-service/internal/repository/memory"
)

type harness struct {
	store       *memory.Store
	metrics     *observability.Metrics
	audit       *AuditService
	issues      *IssueService
	escalations *EscalationService
	query       *IssueQueryService
	allocator   *IssueCodeAllocator
	names       *NameResolver

	mu        sync.Mutex
	published []events.Event
}

func tickingClock() func() time.Time {
	var mu sync.Mutex
	base := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	n := 0
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		n++
		return base.Add(time.Duration(n) * time.Second)
	}
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	clock := tickingClock()
	store := memory.NewStore(memory.WithClock(clock))
	for id, name := range map[int64]string{1: "Ada Admin", 2: "Sam Support", 3: "Rae Resolver"} {
		store.AddUser(domain.User{ID: id, FullName: name})
	}
	store.AddProperty(domain.Property{ID: 10, Name: "Harbour View"})

	h := &harness{store: store, metrics: observability.NewMetrics()}
	dispatcher := events.NewInMemoryDispatcher()
	dispatcher.Subscribe(events.AllEvents, func(_ context.Context, e events.Event) error {
		h.mu.Lock()
		defer h.mu.Unlock()
		h.published = append(h.published, e)
		return nil
	})

	engine := NewEngine(EngineDependencies{
		Repos:      store.Repositories(),
		Dispatcher: dispatcher,
		Logger:     zap.NewNop(),
		Metrics:    h.metrics,
		Config:     config.DefaultIssuesConfig(),
		Clock:      clock,
	})
	h.audit = engine.Audit
	h.allocator = engine.Allocator
	h.issues = engine.Issues
	h.escalations = engine.Escalations
	h.query = engine.Query
	h.names = engine.Names
	return h
}

func (h *harness) events() []events.Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]events.Event(nil), h.published...)
}

func (h *harness) activities(t *testing.T, issueID int64) []domain.IssueActivity {
	t.Helper()
	items, err := h.audit.ListActivities(context.Background(), issueID, 0, 0)
	if err != nil {
		t.Fatalf("list activities: %v", err)
	}
	return items
}

func (h *harness) createComplaint(t *testing.T, title string) *domain.Issue {
	t.Helper()
	issue, err := h.issues.CreateIssue(context.Background(), CreateIssueInput{Issue: title, Type: domain.IssueTypeComplaint}, 1)
	if err != nil {
		t.Fatalf("create complaint: %v", err)
	}
	return issue
}

func int64Ptr(v int64) *int64 { return &v }
