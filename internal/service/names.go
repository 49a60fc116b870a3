package service

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"github.com/spec-kit/issue-service/internal/domain"
	"github.com/spec-kit/issue-service/internal/observability"
	"github.com/spec-kit/issue-service/internal/repository"
)

// NameResolver batches display-name lookups for the user and property ids a
// response carries. One directory query per kind, whatever the page size.
type NameResolver struct {
	users      repository.UserDirectory
	properties repository.PropertyDirectory
	ops        opRecorder
}

// NewNameResolver constructs the resolver. A nil properties directory leaves
// property names unresolved, and a nil resolver resolves nothing.
func NewNameResolver(users repository.UserDirectory, properties repository.PropertyDirectory, logger *zap.Logger, metrics *observability.Metrics) *NameResolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NameResolver{
		users:      users,
		properties: properties,
		ops:        opRecorder{logger: logger, metrics: metrics},
	}
}

// ForIssues resolves creator, assignee and property names.
func (r *NameResolver) ForIssues(ctx context.Context, issues ...domain.Issue) (domain.DisplayNames, error) {
	users, properties := idSet{}, idSet{}
	for i := range issues {
		users.add(issues[i].CreatedByID)
		users.addOptional(issues[i].AssignedToID)
		properties.addOptional(issues[i].PropertyID)
	}
	return r.resolve(ctx, "resolve_issue_names", users, properties)
}

// ForActivities resolves performer names.
func (r *NameResolver) ForActivities(ctx context.Context, activities ...domain.IssueActivity) (domain.DisplayNames, error) {
	users := idSet{}
	for i := range activities {
		users.add(activities[i].PerformedByID)
	}
	return r.resolve(ctx, "resolve_activity_names", users, nil)
}

// ForEscalations resolves the escalating, receiving and resolving users.
func (r *NameResolver) ForEscalations(ctx context.Context, escalations ...domain.IssueEscalation) (domain.DisplayNames, error) {
	users := idSet{}
	for i := range escalations {
		users.add(escalations[i].EscalatedByID)
		users.add(escalations[i].EscalatedToID)
		users.addOptional(escalations[i].ResolvedByID)
	}
	return r.resolve(ctx, "resolve_escalation_names", users, nil)
}

func (r *NameResolver) resolve(ctx context.Context, op string, users, properties idSet) (domain.DisplayNames, error) {
	var names domain.DisplayNames
	if r == nil {
		return names, nil
	}
	if len(users) > 0 {
		found, err := r.users.Names(ctx, users.ids())
		if err != nil {
			return domain.DisplayNames{}, r.ops.finish(op, 0, err)
		}
		names.Users = found
	}
	if len(properties) > 0 && r.properties != nil {
		found, err := r.properties.Names(ctx, properties.ids())
		if err != nil {
			return domain.DisplayNames{}, r.ops.finish(op, 0, err)
		}
		names.Properties = found
	}
	return names, nil
}

type idSet map[int64]struct{}

func (s idSet) add(id int64) {
	if id > 0 {
		s[id] = struct{}{}
	}
}

func (s idSet) addOptional(id *int64) {
	if id != nil {
		s.add(*id)
	}
}

func (s idSet) ids() []int64 {
	out := make([]int64, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
