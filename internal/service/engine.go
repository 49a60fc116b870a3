package service

import (
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/issue-service/internal/config"
	"github.com/spec-kit/issue-service/internal/events"
	"github.com/spec-kit/issue-service/internal/observability"
	"github.com/spec-kit/issue-service/internal/repository"
)

// Engine is the set of services sharing one storage backend and dispatcher.
type Engine struct {
	Allocator   *IssueCodeAllocator
	Audit       *AuditService
	Issues      *IssueService
	Escalations *EscalationService
	Query       *IssueQueryService
	Export      *IssueExportService
	Names       *NameResolver
}

// EngineDependencies configures NewEngine. Clock defaults to time.Now.
type EngineDependencies struct {
	Repos      repository.Repositories
	Dispatcher events.Dispatcher
	Logger     *zap.Logger
	Metrics    *observability.Metrics
	Config     config.IssuesConfig
	Clock      func() time.Time
}

// NewEngine wires the services over deps.Repos.
func NewEngine(deps EngineDependencies) *Engine {
	repos := deps.Repos
	sanitizer := NewTextSanitizer()

	audit := NewAuditService(AuditDependencies{
		TxManager:    repos.TxManager,
		IssueRepo:    repos.Issues,
		ActivityRepo: repos.Activities,
		Users:        repos.Users,
		Dispatcher:   deps.Dispatcher,
		Sanitizer:    sanitizer,
		Logger:       deps.Logger,
		Metrics:      deps.Metrics,
		Config:       deps.Config,
	})
	allocator := NewIssueCodeAllocator(repos.Issues, repos.Sequences)
	issues := NewIssueService(IssueDependencies{
		TxManager:      repos.TxManager,
		IssueRepo:      repos.Issues,
		ActivityRepo:   repos.Activities,
		EscalationRepo: repos.Escalations,
		Users:          repos.Users,
		Properties:     repos.Properties,
		Allocator:      allocator,
		Audit:          audit,
		Dispatcher:     deps.Dispatcher,
		Sanitizer:      sanitizer,
		Logger:         deps.Logger,
		Metrics:        deps.Metrics,
		Config:         deps.Config,
	})
	escalations := NewEscalationService(EscalationDependencies{
		TxManager:      repos.TxManager,
		IssueRepo:      repos.Issues,
		EscalationRepo: repos.Escalations,
		Users:          repos.Users,
		Audit:          audit,
		Dispatcher:     deps.Dispatcher,
		Sanitizer:      sanitizer,
		Logger:         deps.Logger,
		Metrics:        deps.Metrics,
		Clock:          deps.Clock,
	})
	query := NewIssueQueryService(repos.Issues, deps.Config, deps.Logger, deps.Metrics)

	return &Engine{
		Allocator:   allocator,
		Audit:       audit,
		Issues:      issues,
		Escalations: escalations,
		Query:       query,
		Export:      NewIssueExportService(query),
		Names:       NewNameResolver(repos.Users, repos.Properties, deps.Logger, deps.Metrics),
	}
}
