package handlers

import (
	"bytes"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/issue-service/internal/api/dto"
	"github.com/spec-kit/issue-service/internal/domain"
	"github.com/spec-kit/issue-service/internal/service"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// IssuesHandler exposes the issue engine over HTTP. Acting-user ids arrive
// as parameters; authentication happens upstream.
type IssuesHandler struct {
	issues      *service.IssueService
	escalations *service.EscalationService
	audit       *service.AuditService
	query       *service.IssueQueryService
	export      *service.IssueExportService
	names       *service.NameResolver
	validator   *RequestValidator
}

// IssuesHandlerDeps bundles the services behind the issue routes.
type IssuesHandlerDeps struct {
	Issues      *service.IssueService
	Escalations *service.EscalationService
	Audit       *service.AuditService
	Query       *service.IssueQueryService
	Export      *service.IssueExportService
	Names       *service.NameResolver
	Validator   *RequestValidator
}

// NewIssuesHandler constructs handler.
func NewIssuesHandler(deps IssuesHandlerDeps) *IssuesHandler {
	v := deps.Validator
	if v == nil {
		v = NewRequestValidator()
	}
	return &IssuesHandler{
		issues:      deps.Issues,
		escalations: deps.Escalations,
		audit:       deps.Audit,
		query:       deps.Query,
		export:      deps.Export,
		names:       deps.Names,
		validator:   v,
	}
}

// CreateIssue POST /issues.
func (h *IssuesHandler) CreateIssue(c *fiber.Ctx) error {
	var req dto.CreateIssueRequest
	if err := h.validator.bind(c, &req); err != nil {
		return err
	}
	issue, err := h.issues.CreateIssue(c.UserContext(), req.ToInput(), req.CreatedByID)
	if err != nil {
		return err
	}
	return h.respondIssue(c, http.StatusCreated, issue)
}

// SearchIssues POST /issues/search.
func (h *IssuesHandler) SearchIssues(c *fiber.Ctx) error {
	var req dto.SearchIssuesRequest
	if err := h.validator.bind(c, &req); err != nil {
		return err
	}
	return h.respondPage(c, req.ToQuery())
}

// ListIssues GET /issues.
func (h *IssuesHandler) ListIssues(c *fiber.Ctx) error {
	q, err := parseIssueQuery(c)
	if err != nil {
		return err
	}
	return h.respondPage(c, q)
}

// ExportIssues GET /issues/export.
func (h *IssuesHandler) ExportIssues(c *fiber.Ctx) error {
	q, err := parseIssueQuery(c)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := h.export.Export(c.UserContext(), q, &buf); err != nil {
		return err
	}
	c.Set(fiber.HeaderContentType, xlsxContentType)
	c.Set(fiber.HeaderContentDisposition, `attachment; filename="issues.xlsx"`)
	return c.Send(buf.Bytes())
}

// GetIssue GET /issues/:id.
func (h *IssuesHandler) GetIssue(c *fiber.Ctx) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	detail, err := h.issues.GetIssue(c.UserContext(), id)
	if err != nil {
		return err
	}
	names, err := h.names.ForIssues(c.UserContext(), detail.Issue)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewIssueDetailResponse(detail, names)})
}

// UpdateIssue PUT /issues/:id?updated_by_id=.
func (h *IssuesHandler) UpdateIssue(c *fiber.Ctx) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	actor, err := actorID(c, "updated_by_id")
	if err != nil {
		return err
	}
	var req dto.UpdateIssueRequest
	if err := h.validator.bind(c, &req); err != nil {
		return err
	}
	issue, err := h.issues.UpdateIssue(c.UserContext(), id, req.ToPatch(), actor)
	if err != nil {
		return err
	}
	return h.respondIssue(c, http.StatusOK, issue)
}

// UpdateStatus PATCH /issues/:id/status?updated_by_id=.
func (h *IssuesHandler) UpdateStatus(c *fiber.Ctx) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	actor, err := actorID(c, "updated_by_id")
	if err != nil {
		return err
	}
	var req dto.UpdateStatusRequest
	if err := h.validator.bind(c, &req); err != nil {
		return err
	}
	issue, err := h.issues.UpdateIssueStatus(c.UserContext(), id, req.IssueStatus, actor, req.Description)
	if err != nil {
		return err
	}
	return h.respondIssue(c, http.StatusOK, issue)
}

// AssignIssue PATCH /issues/:id/assign?assigned_by_id=.
func (h *IssuesHandler) AssignIssue(c *fiber.Ctx) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	actor, err := actorID(c, "assigned_by_id")
	if err != nil {
		return err
	}
	var req dto.AssignIssueRequest
	if err := h.validator.bind(c, &req); err != nil {
		return err
	}
	issue, err := h.issues.AssignIssue(c.UserContext(), id, req.AssignedToID, actor)
	if err != nil {
		return err
	}
	return h.respondIssue(c, http.StatusOK, issue)
}

// UpdatePriority PATCH /issues/:id/priority?updated_by_id=.
func (h *IssuesHandler) UpdatePriority(c *fiber.Ctx) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	actor, err := actorID(c, "updated_by_id")
	if err != nil {
		return err
	}
	var req dto.UpdatePriorityRequest
	if err := h.validator.bind(c, &req); err != nil {
		return err
	}
	issue, err := h.issues.UpdatePriority(c.UserContext(), id, req.Priority, actor)
	if err != nil {
		return err
	}
	return h.respondIssue(c, http.StatusOK, issue)
}

// DeleteIssue DELETE /issues/:id?deleted_by_id=.
func (h *IssuesHandler) DeleteIssue(c *fiber.Ctx) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	actor, err := actorID(c, "deleted_by_id")
	if err != nil {
		return err
	}
	issue, err := h.issues.SoftDeleteIssue(c.UserContext(), id, actor)
	if err != nil {
		return err
	}
	return h.respondIssue(c, http.StatusOK, issue)
}

// CreateActivity POST /issues/:id/activities.
func (h *IssuesHandler) CreateActivity(c *fiber.Ctx) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	var req dto.CreateActivityRequest
	if err := h.validator.bind(c, &req); err != nil {
		return err
	}
	activity, err := h.audit.CreateActivity(c.UserContext(), service.RecordActivityInput{
		IssueID:       id,
		ActivityType:  req.ActivityType,
		PerformedByID: req.PerformedByID,
		Description:   req.Description,
		OldValue:      req.OldValue,
		NewValue:      req.NewValue,
	})
	if err != nil {
		return err
	}
	names, err := h.names.ForActivities(c.UserContext(), *activity)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.NewActivityResponse(activity, names)})
}

// ListActivities GET /issues/:id/activities?skip=&limit=.
func (h *IssuesHandler) ListActivities(c *fiber.Ctx) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	skip, err := queryInt(c, "skip", 0)
	if err != nil {
		return err
	}
	limit, err := queryInt(c, "limit", 0)
	if err != nil {
		return err
	}
	items, err := h.audit.ListActivities(c.UserContext(), id, skip, limit)
	if err != nil {
		return err
	}
	names, err := h.names.ForActivities(c.UserContext(), items...)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewActivityListResponse(items, names)})
}

// CreateEscalation POST /issues/:id/escalations.
func (h *IssuesHandler) CreateEscalation(c *fiber.Ctx) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	var req dto.CreateEscalationRequest
	if err := h.validator.bind(c, &req); err != nil {
		return err
	}
	escalation, err := h.escalations.Escalate(c.UserContext(), id, service.EscalateInput{
		Level:         req.EscalationLevel,
		EscalatedByID: req.EscalatedByID,
		EscalatedToID: req.EscalatedToID,
		Reason:        req.Reason,
		Notes:         req.Notes,
	})
	if err != nil {
		return err
	}
	return h.respondEscalation(c, http.StatusCreated, escalation)
}

// ListEscalations GET /issues/:id/escalations.
func (h *IssuesHandler) ListEscalations(c *fiber.Ctx) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	items, err := h.escalations.ListEscalations(c.UserContext(), id)
	if err != nil {
		return err
	}
	names, err := h.names.ForEscalations(c.UserContext(), items...)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewEscalationListResponse(items, names)})
}

// UpdateEscalation PATCH /issues/escalations/:escalation_id.
func (h *IssuesHandler) UpdateEscalation(c *fiber.Ctx) error {
	id, err := pathID(c, "escalation_id")
	if err != nil {
		return err
	}
	var req dto.UpdateEscalationRequest
	if err := h.validator.bind(c, &req); err != nil {
		return err
	}
	escalation, err := h.escalations.UpdateEscalation(c.UserContext(), id, service.EscalationPatch{
		Resolved:     req.Resolved,
		ResolvedByID: req.ResolvedByID,
		Notes:        req.Notes,
	})
	if err != nil {
		return err
	}
	return h.respondEscalation(c, http.StatusOK, escalation)
}

func (h *IssuesHandler) respondIssue(c *fiber.Ctx, status int, issue *domain.Issue) error {
	names, err := h.names.ForIssues(c.UserContext(), *issue)
	if err != nil {
		return err
	}
	return c.Status(status).JSON(fiber.Map{"data": dto.NewIssueResponse(issue, names)})
}

func (h *IssuesHandler) respondEscalation(c *fiber.Ctx, status int, escalation *domain.IssueEscalation) error {
	names, err := h.names.ForEscalations(c.UserContext(), *escalation)
	if err != nil {
		return err
	}
	return c.Status(status).JSON(fiber.Map{"data": dto.NewEscalationResponse(escalation, names)})
}

func (h *IssuesHandler) respondPage(c *fiber.Ctx, q service.IssueQuery) error {
	page, err := h.query.ListIssues(c.UserContext(), q)
	if err != nil {
		return err
	}
	names, err := h.names.ForIssues(c.UserContext(), page.Issues...)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"data":       dto.NewIssueListResponse(page.Issues, names),
		"pagination": page.Pagination,
	})
}

// parseIssueQuery reads list filters from the query string. Enum values are
// checked by the query service.
func parseIssueQuery(c *fiber.Ctx) (service.IssueQuery, error) {
	var (
		q   service.IssueQuery
		err error
	)
	if q.Page, err = queryInt(c, "page", 1); err != nil {
		return q, err
	}
	if q.Limit, err = queryInt(c, "limit", 0); err != nil {
		return q, err
	}
	if q.CreatedByID, err = optionalQueryID(c, "created_by_id"); err != nil {
		return q, err
	}
	if q.AssignedToID, err = optionalQueryID(c, "assigned_to_id"); err != nil {
		return q, err
	}
	if q.PropertyID, err = optionalQueryID(c, "property_id"); err != nil {
		return q, err
	}
	if v := c.Query("type"); v != "" {
		t := domain.IssueType(v)
		q.Type = &t
	}
	if v := c.Query("status"); v != "" {
		s := domain.IssueStatus(v)
		q.Status = &s
	}
	if v := c.Query("issue_status"); v != "" {
		s := domain.WorkflowStatus(v)
		q.IssueStatus = &s
	}
	if v := c.Query("priority"); v != "" {
		p := domain.IssuePriority(v)
		q.Priority = &p
	}
	if v := c.Query("search"); v != "" {
		q.Search = &v
	}
	return q, nil
}
