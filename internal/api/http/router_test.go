package http

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/spec-kit/issue-service/internal/api/http/handlers"
	"github.com/spec-kit/issue-service/internal/config"
	"github.com/spec-kit/issue-service/internal/domain"
	"github.com/spec-kit/issue-service/internal/events"
	"github.com/spec-kit/issue-service/internal/observability"
	"github.com/spec-kit/issue-service/internal/repository/memory"
	"github.com/spec-kit/issue-service/internal/service"
)

type envelope struct {
	Data       json.RawMessage `json:"data"`
	Pagination *struct {
		Total      int64 `json:"total"`
		TotalPages int   `json:"total_pages"`
		HasNext    bool  `json:"has_next"`
	} `json:"pagination"`
	Error *struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

func newTestApp(t *testing.T) (*fiber.App, *observability.Metrics) {
	t.Helper()
	store := memory.NewStore()
	store.AddUser(domain.User{ID: 1, FullName: "Ada"})
	store.AddUser(domain.User{ID: 2, FullName: "Sam"})
	store.AddProperty(domain.Property{ID: 10, Name: "Harbour View"})

	metrics := observability.NewMetrics()
	engine := service.NewEngine(service.EngineDependencies{
		Repos:      store.Repositories(),
		Dispatcher: events.NewInMemoryDispatcher(),
		Metrics:    metrics,
		Config:     config.DefaultIssuesConfig(),
	})
	app := NewServer(ServerConfig{
		AppName: "issue-service-test",
		Metrics: metrics,
		Routes: RouteConfig{
			Health: handlers.NewHealthHandler("issue-service", "test", nil, nil),
			Issues: handlers.NewIssuesHandler(handlers.IssuesHandlerDeps{
				Issues:      engine.Issues,
				Escalations: engine.Escalations,
				Audit:       engine.Audit,
				Query:       engine.Query,
				Export:      engine.Export,
				Names:       engine.Names,
			}),
		},
	})
	return app, metrics
}

func do(t *testing.T, app *fiber.App, method, path string, body any) (int, envelope) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	var env envelope
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &env), string(raw))
	}
	return resp.StatusCode, env
}

func TestIssueFlowOverHTTP(t *testing.T) {
	app, metrics := newTestApp(t)

	status, env := do(t, app, http.MethodPost, "/issues", map[string]any{
		"issue": "Heating broken", "type": "COMPLAINT", "created_by_id": 1, "property_id": 10,
	})
	require.Equal(t, http.StatusCreated, status)
	var issue struct {
		ID          int64  `json:"id"`
		IssueCode   string `json:"issue_code"`
		IssueStatus string `json:"issue_status"`
		Priority    string `json:"priority"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &issue))
	assert.Equal(t, "CMP-1000", issue.IssueCode)
	assert.Equal(t, "OPEN", issue.IssueStatus)
	assert.Equal(t, "MEDIUM", issue.Priority)

	status, _ = do(t, app, http.MethodPatch, "/issues/1/status?updated_by_id=2", map[string]any{"issue_status": "IN_PROGRESS"})
	require.Equal(t, http.StatusOK, status)

	status, env = do(t, app, http.MethodPost, "/issues/1/escalations", map[string]any{
		"escalation_level": "LEVEL_1", "escalated_by_id": 1, "escalated_to_id": 2, "reason": "no heat for 3 days",
	})
	require.Equal(t, http.StatusCreated, status)
	var escalation struct {
		ID       int64 `json:"id"`
		Resolved bool  `json:"resolved"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &escalation))
	assert.False(t, escalation.Resolved)

	status, env = do(t, app, http.MethodGet, "/issues/1", nil)
	require.Equal(t, http.StatusOK, status)
	var detail struct {
		IssueStatus     string `json:"issue_status"`
		ActivitiesCount int64  `json:"activities_count"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &detail))
	assert.Equal(t, "ESCALATED", detail.IssueStatus)
	assert.EqualValues(t, 3, detail.ActivitiesCount)

	status, env = do(t, app, http.MethodGet, "/issues/1/activities?limit=2", nil)
	require.Equal(t, http.StatusOK, status)
	var activities []struct {
		ActivityType string `json:"activity_type"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &activities))
	require.Len(t, activities, 2)
	assert.Equal(t, "ESCALATED", activities[0].ActivityType)

	status, env = do(t, app, http.MethodPatch, "/issues/escalations/1", map[string]any{"resolved": true, "resolved_by_id": 2})
	require.Equal(t, http.StatusOK, status)
	require.NoError(t, json.Unmarshal(env.Data, &escalation))
	assert.True(t, escalation.Resolved)

	assert.EqualValues(t, 1, metrics.Operation("create_escalation", observability.OutcomeSuccess))
}

func TestListAndSearchIssues(t *testing.T) {
	app, _ := newTestApp(t)
	for _, title := range []string{"Leaky tap", "Broken lift", "Leak in roof"} {
		status, _ := do(t, app, http.MethodPost, "/issues", map[string]any{"issue": title, "type": "SUPPORT", "created_by_id": 1})
		require.Equal(t, http.StatusCreated, status)
	}

	status, env := do(t, app, http.MethodGet, "/issues?search=leak&limit=1", nil)
	require.Equal(t, http.StatusOK, status)
	require.NotNil(t, env.Pagination)
	assert.EqualValues(t, 2, env.Pagination.Total)
	assert.Equal(t, 2, env.Pagination.TotalPages)
	assert.True(t, env.Pagination.HasNext)

	status, env = do(t, app, http.MethodPost, "/issues/search", map[string]any{"type": "SUPPORT", "limit": 10})
	require.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 3, env.Pagination.Total)

	status, env = do(t, app, http.MethodGet, "/issues?priority=CRITICAL", nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_FAILED", env.Error.Code)
}

func TestErrorResponses(t *testing.T) {
	app, _ := newTestApp(t)

	status, env := do(t, app, http.MethodPost, "/issues", map[string]any{"issue": "No type", "created_by_id": 1})
	assert.Equal(t, http.StatusBadRequest, status)
	require.NotNil(t, env.Error)
	assert.Equal(t, "VALIDATION_FAILED", env.Error.Code)
	assert.Contains(t, env.Error.Details["fields"], "type")

	status, env = do(t, app, http.MethodGet, "/issues/42", nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "NOT_FOUND", env.Error.Code)
	assert.Equal(t, "issue", env.Error.Details["resource"])

	status, env = do(t, app, http.MethodPatch, "/issues/1/priority", map[string]any{"priority": "HIGH"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "updated_by_id", env.Error.Details["field"])

	status, _ = do(t, app, http.MethodPost, "/issues", map[string]any{"issue": "Support", "type": "SUPPORT", "created_by_id": 1})
	require.Equal(t, http.StatusCreated, status)
	status, env = do(t, app, http.MethodPost, "/issues/1/escalations", map[string]any{
		"escalation_level": "LEVEL_2", "escalated_by_id": 1, "escalated_to_id": 2,
	})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_FAILED", env.Error.Code)

	status, env = do(t, app, http.MethodGet, "/nowhere", nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "NOT_FOUND", env.Error.Code)
}

func TestUpdateAndDeleteOverHTTP(t *testing.T) {
	app, _ := newTestApp(t)
	status, _ := do(t, app, http.MethodPost, "/issues", map[string]any{
		"issue": "Gate", "type": "COMPLAINT", "created_by_id": 1, "assigned_to_id": 2,
	})
	require.Equal(t, http.StatusCreated, status)

	status, env := do(t, app, http.MethodPut, "/issues/1?updated_by_id=1", map[string]any{"assigned_to_id": nil, "priority": "HIGH"})
	require.Equal(t, http.StatusOK, status)
	var updated struct {
		AssignedToID *int64 `json:"assigned_to_id"`
		Priority     string `json:"priority"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &updated))
	assert.Nil(t, updated.AssignedToID)
	assert.Equal(t, "HIGH", updated.Priority)

	status, _ = do(t, app, http.MethodDelete, "/issues/1?deleted_by_id=1", nil)
	require.Equal(t, http.StatusOK, status)

	status, env = do(t, app, http.MethodGet, "/issues", nil)
	require.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 0, env.Pagination.Total)
}

func TestExportEndpoint(t *testing.T) {
	app, _ := newTestApp(t)
	status, _ := do(t, app, http.MethodPost, "/issues", map[string]any{"issue": "Lift", "type": "COMPLAINT", "created_by_id": 1})
	require.Equal(t, http.StatusCreated, status)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/issues/export", nil), -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", resp.Header.Get("Content-Type"))

	f, err := excelize.OpenReader(resp.Body)
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows("Issues")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "CMP-1000", rows[1][0])
}

func TestHealthInMemoryMode(t *testing.T) {
	app, _ := newTestApp(t)
	status, _ := do(t, app, http.MethodGet, "/health/live", nil)
	assert.Equal(t, http.StatusOK, status)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/health/ready", nil), -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ready", body["status"])
	assert.Equal(t, map[string]any{"postgres": "memory", "redis": "disabled"}, body["dependencies"])
}

func TestResponsesCarryDisplayNames(t *testing.T) {
	app, _ := newTestApp(t)

	status, env := do(t, app, http.MethodPost, "/issues", map[string]any{
		"issue": "Leaking tap", "type": "COMPLAINT", "created_by_id": 1, "property_id": 10,
	})
	require.Equal(t, http.StatusCreated, status)
	var created map[string]any
	require.NoError(t, json.Unmarshal(env.Data, &created))
	assert.Equal(t, "Ada", created["created_by_name"])
	assert.Equal(t, "Harbour View", created["property_name"])
	assert.Contains(t, created, "assigned_to_name")
	assert.Nil(t, created["assigned_to_name"])

	status, _ = do(t, app, http.MethodPatch, "/issues/1/assign?assigned_by_id=1", map[string]any{"assigned_to_id": 2})
	require.Equal(t, http.StatusOK, status)

	status, env = do(t, app, http.MethodGet, "/issues/1", nil)
	require.Equal(t, http.StatusOK, status)
	var detail map[string]any
	require.NoError(t, json.Unmarshal(env.Data, &detail))
	assert.Equal(t, "Sam", detail["assigned_to_name"])

	status, env = do(t, app, http.MethodGet, "/issues/1/activities", nil)
	require.Equal(t, http.StatusOK, status)
	var activities []map[string]any
	require.NoError(t, json.Unmarshal(env.Data, &activities))
	require.NotEmpty(t, activities)
	assert.Equal(t, "Ada", activities[0]["performed_by_name"])

	status, env = do(t, app, http.MethodPost, "/issues/1/escalations", map[string]any{
		"escalation_level": "LEVEL_2", "escalated_by_id": 1, "escalated_to_id": 2,
	})
	require.Equal(t, http.StatusCreated, status)
	var escalation map[string]any
	require.NoError(t, json.Unmarshal(env.Data, &escalation))
	assert.Equal(t, "Ada", escalation["escalated_by_name"])
	assert.Equal(t, "Sam", escalation["escalated_to_name"])
	assert.Nil(t, escalation["resolved_by_name"])

	status, env = do(t, app, http.MethodPatch, "/issues/escalations/1", map[string]any{"resolved": true, "resolved_by_id": 2})
	require.Equal(t, http.StatusOK, status)
	require.NoError(t, json.Unmarshal(env.Data, &escalation))
	assert.Equal(t, "Sam", escalation["resolved_by_name"])

	status, env = do(t, app, http.MethodGet, "/issues", nil)
	require.Equal(t, http.StatusOK, status)
	var listed []map[string]any
	require.NoError(t, json.Unmarshal(env.Data, &listed))
	require.Len(t, listed, 1)
	assert.Equal(t, "Ada", listed[0]["created_by_name"])
}
