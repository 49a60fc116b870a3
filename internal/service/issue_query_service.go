package service

import (
	"context"
	"math"

	"go.uber.org/zap"

	"github.com/spec-kit/issue-service/internal/config"
	"github.com/spec-kit/issue-service/internal/domain"
	"github.com/spec-kit/issue-service/internal/observability"
	"github.com/spec-kit/issue-service/internal/repository"
	apperrors "github.com/spec-kit/issue-service/pkg/util/errorutil"
)

// IssueQuery holds paging and filter parameters for listing issues.
type IssueQuery struct {
	Page         int
	Limit        int
	Type         *domain.IssueType
	Status       *domain.IssueStatus
	IssueStatus  *domain.WorkflowStatus
	Priority     *domain.IssuePriority
	CreatedByID  *int64
	AssignedToID *int64
	PropertyID   *int64
	Search       *string
}

// Pagination describes where a page sits in the full result.
type Pagination struct {
	Total      int64 `json:"total"`
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
	HasPrev    bool  `json:"has_prev"`
}

// IssuePage is one page of issues.
type IssuePage struct {
	Issues     []domain.Issue
	Pagination Pagination
}

// NewPagination derives page counts. total_pages is zero when there are no rows.
func NewPagination(total int64, page, limit int) Pagination {
	totalPages := 0
	if limit > 0 {
		totalPages = int((total + int64(limit) - 1) / int64(limit))
	}
	return Pagination{
		Total:      total,
		Page:       page,
		Limit:      limit,
		TotalPages: totalPages,
		HasNext:    page < totalPages,
		HasPrev:    page > 1,
	}
}

// IssueQueryService answers paginated, filtered listings.
type IssueQueryService struct {
	issues repository.IssueRepository
	ops    opRecorder
	cfg    config.IssuesConfig
}

// NewIssueQueryService constructs the service.
func NewIssueQueryService(issues repository.IssueRepository, cfg config.IssuesConfig, logger *zap.Logger, metrics *observability.Metrics) *IssueQueryService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IssueQueryService{issues: issues, ops: opRecorder{logger: logger, metrics: metrics}, cfg: cfg}
}

// ListIssues returns issues newest first. Soft-deleted issues only appear
// when Status asks for DELETED.
func (s *IssueQueryService) ListIssues(ctx context.Context, q IssueQuery) (*IssuePage, error) {
	const op = "list_issues"
	if err := validateQuery(q); err != nil {
		return nil, s.ops.finish(op, 0, err)
	}
	page, limit := s.clamp(q.Page, q.Limit)
	if page-1 > math.MaxInt/limit {
		return nil, s.ops.finish(op, 0, apperrors.NewValidationError("page is out of range",
			map[string]any{"field": "page", "page": page}))
	}

	items, total, err := s.issues.List(ctx, repository.IssueFilter{
		Type:         q.Type,
		Status:       q.Status,
		IssueStatus:  q.IssueStatus,
		Priority:     q.Priority,
		CreatedByID:  q.CreatedByID,
		AssignedToID: q.AssignedToID,
		PropertyID:   q.PropertyID,
		Search:       q.Search,
		Limit:        limit,
		Offset:       (page - 1) * limit,
	})
	if err := s.ops.finish(op, 0, err); err != nil {
		return nil, err
	}
	if items == nil {
		items = []domain.Issue{}
	}
	return &IssuePage{Issues: items, Pagination: NewPagination(total, page, limit)}, nil
}

func (s *IssueQueryService) clamp(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = s.cfg.DefaultPageSize
	}
	if limit <= 0 {
		limit = 10
	}
	if s.cfg.MaxPageSize > 0 && limit > s.cfg.MaxPageSize {
		limit = s.cfg.MaxPageSize
	}
	return page, limit
}

func validateQuery(q IssueQuery) error {
	if q.Type != nil && !q.Type.Valid() {
		return invalidEnum("type", *q.Type)
	}
	if q.Status != nil && !q.Status.Valid() {
		return invalidEnum("status", *q.Status)
	}
	if q.IssueStatus != nil && !q.IssueStatus.Valid() {
		return invalidEnum("issue_status", *q.IssueStatus)
	}
	if q.Priority != nil && !q.Priority.Valid() {
		return invalidEnum("priority", *q.Priority)
	}
	return nil
}
