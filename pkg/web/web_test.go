package web_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/helixflow/helixflow/pkg/dispatch"
	"github.com/helixflow/helixflow/pkg/execution"
	"github.com/helixflow/helixflow/pkg/models"
	"github.com/helixflow/helixflow/pkg/persistence/file"
	"github.com/helixflow/helixflow/pkg/rules"
	"github.com/helixflow/helixflow/pkg/services"
	"github.com/helixflow/helixflow/pkg/validation"
	"github.com/helixflow/helixflow/pkg/web"
)

// nopBackend satisfies the coordinator without doing any work, standing in
// for the remote backend the API binary wires in.
type nopBackend struct{}

func (nopBackend) Start(context.Context, *models.WorkflowExecution) error   { return nil }
func (nopBackend) Cancel(context.Context, *models.WorkflowExecution) error  { return nil }
func (nopBackend) Suspend(context.Context, *models.WorkflowExecution) error { return nil }
func (nopBackend) Resume(context.Context, *models.WorkflowExecution) error  { return nil }

func setupTestApp(t *testing.T) *fiber.App {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	store := file.NewPersistence(t.TempDir())

	coordinator := execution.NewCoordinator(store, nil, logger)
	coordinator.SetBackend(nopBackend{})

	notifier := &dispatch.MockNotifier{}
	notifier.On("Notify", mock.Anything, mock.Anything).Return(nil).Maybe()

	dispatchers := dispatch.Dispatchers{Notifier: notifier}
	ruleRunner := rules.NewCoordinator(store, rules.NewEvaluator(), rules.NewExecutor(dispatchers, logger), nil, nil, logger)

	handlers := web.NewAPIHandlers(
		services.NewDefinitionService(store, validation.NewValidator(), nil, logger),
		services.NewRuleService(store, nil, logger),
		services.NewStatsService(store),
		coordinator,
		ruleRunner,
		store,
		validator.New(validator.WithRequiredStructEnabled()),
	)

	app := fiber.New()

	d := app.Group("/definitions", web.RequireTenant)
	d.Get("/", handlers.ListDefinitions)
	d.Post("/", handlers.CreateDefinition)
	d.Get("/:id", handlers.GetDefinition)
	d.Patch("/:id", handlers.UpdateDefinition)
	d.Delete("/:id", handlers.DeleteDefinition)
	d.Post("/:id/publish", handlers.PublishDefinition)
	d.Post("/:id/unpublish", handlers.UnpublishDefinition)
	d.Post("/:id/activate", handlers.SetDefinitionActive)
	d.Post("/:id/clone", handlers.CloneDefinition)
	d.Post("/:id/executions", handlers.StartExecution)

	e := app.Group("/executions", web.RequireTenant)
	e.Get("/", handlers.ListExecutions)
	e.Get("/:id", handlers.GetExecution)
	e.Get("/:id/steps", handlers.GetExecutionSteps)
	e.Post("/:id/cancel", handlers.CancelExecution)
	e.Post("/:id/retry", handlers.RetryExecution)

	r := app.Group("/rules", web.RequireTenant)
	r.Get("/", handlers.ListRules)
	r.Post("/", handlers.CreateRule)
	r.Get("/:id", handlers.GetRule)
	r.Put("/:id", handlers.UpdateRule)
	r.Delete("/:id", handlers.DeleteRule)
	r.Post("/:id/activate", handlers.SetRuleActive)
	r.Post("/:id/test", handlers.TestRule)
	r.Get("/:id/executions", handlers.ListRuleExecutions)

	app.Post("/entity-events", web.RequireTenant, handlers.FireEntityRules)
	app.Get("/rule-executions", web.RequireTenant, handlers.ListEntityRuleExecutions)
	app.Get("/stats", web.RequireTenant, handlers.GetTenantStats)

	return app
}

func doJSON(t *testing.T, app *fiber.App, method, path string, body any) (*http.Response, []byte) {
	t.Helper()

	var reader io.Reader

	if body != nil {
		encoded, err := json.Marshal(body)
		require.NoError(t, err)

		reader = bytes.NewReader(encoded)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(web.TenantHeader, "tenant-1")

	resp, err := app.Test(req)
	require.NoError(t, err)

	payload, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp, payload
}

func definitionRequest() web.CreateDefinitionRequest {
	return web.CreateDefinitionRequest{
		Name:     "invoice approval",
		Category: "finance",
		Graph: models.Graph{
			Steps: []*models.Step{
				{ID: "start", Name: "Start", Type: models.StepTypeEvent, Kind: models.StepKindStart},
				{ID: "check", Name: "Check", Type: models.StepTypeScript, Config: map[string]any{
					"script": "checked ${id}",
					"format": "text",
				}},
				{ID: "done", Name: "Done", Type: models.StepTypeEvent, Kind: models.StepKindEnd},
			},
			Connections: []*models.Connection{
				{ID: "c1", From: "start", To: "check"},
				{ID: "c2", From: "check", To: "done"},
			},
		},
	}
}

func createDefinition(t *testing.T, app *fiber.App) models.WorkflowDefinition {
	t.Helper()

	resp, body := doJSON(t, app, http.MethodPost, "/definitions/", definitionRequest())
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))

	var def models.WorkflowDefinition
	require.NoError(t, json.Unmarshal(body, &def))

	return def
}

func TestAPI_RequiresTenantHeader(t *testing.T) {
	app := setupTestApp(t)

	req := httptest.NewRequest(http.MethodGet, "/definitions/", nil)

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPI_CreateDefinition(t *testing.T) {
	app := setupTestApp(t)

	def := createDefinition(t, app)

	assert.NotEmpty(t, def.ID)
	assert.Equal(t, "tenant-1", def.TenantID)
	assert.Equal(t, "1.0", def.Version)
	assert.False(t, def.IsPublished)
}

func TestAPI_CreateDefinition_RejectsInvalidGraph(t *testing.T) {
	app := setupTestApp(t)

	req := definitionRequest()
	req.Graph.Steps = req.Graph.Steps[:2] // no end step

	resp, body := doJSON(t, app, http.MethodPost, "/definitions/", req)

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, string(body), "definition_invalid")
}

func TestAPI_PublishedDefinitionRejectsUpdate(t *testing.T) {
	app := setupTestApp(t)
	def := createDefinition(t, app)

	resp, _ := doJSON(t, app, http.MethodPost, "/definitions/"+def.ID+"/publish", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	name := "renamed approval"
	resp, body := doJSON(t, app, http.MethodPatch, "/definitions/"+def.ID, web.UpdateDefinitionRequest{Name: &name})

	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Contains(t, string(body), "conflict")
}

func TestAPI_StartExecution(t *testing.T) {
	app := setupTestApp(t)
	def := createDefinition(t, app)

	resp, _ := doJSON(t, app, http.MethodPost, "/definitions/"+def.ID+"/publish", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	active := true
	resp, _ = doJSON(t, app, http.MethodPost, "/definitions/"+def.ID+"/activate", web.SetActiveRequest{Active: &active})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := doJSON(t, app, http.MethodPost, "/definitions/"+def.ID+"/executions",
		web.StartExecutionRequest{Variables: map[string]any{"id": "inv-9"}})
	require.Equal(t, http.StatusAccepted, resp.StatusCode, string(body))

	var started models.WorkflowExecution
	require.NoError(t, json.Unmarshal(body, &started))
	assert.Equal(t, models.ExecutionPending, started.Status)
	assert.Equal(t, "inv-9", started.Variables["id"])

	// The row is visible through the read endpoints right away.
	resp, body = doJSON(t, app, http.MethodGet, "/executions/"+started.ID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), started.ExecutionKey)
}

func TestAPI_StartExecution_RejectsDraftDefinition(t *testing.T) {
	app := setupTestApp(t)
	def := createDefinition(t, app)

	resp, body := doJSON(t, app, http.MethodPost, "/definitions/"+def.ID+"/executions", web.StartExecutionRequest{})

	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Contains(t, string(body), "not startable")
}

func TestAPI_CancelExecution(t *testing.T) {
	app := setupTestApp(t)
	def := createDefinition(t, app)

	doJSON(t, app, http.MethodPost, "/definitions/"+def.ID+"/publish", nil)
	active := true
	doJSON(t, app, http.MethodPost, "/definitions/"+def.ID+"/activate", web.SetActiveRequest{Active: &active})

	_, body := doJSON(t, app, http.MethodPost, "/definitions/"+def.ID+"/executions", web.StartExecutionRequest{})

	var started models.WorkflowExecution
	require.NoError(t, json.Unmarshal(body, &started))

	resp, body := doJSON(t, app, http.MethodPost, "/executions/"+started.ID+"/cancel", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var cancelled models.WorkflowExecution
	require.NoError(t, json.Unmarshal(body, &cancelled))
	assert.Equal(t, models.ExecutionCancelled, cancelled.Status)

	// A second cancel is an illegal transition.
	resp, _ = doJSON(t, app, http.MethodPost, "/executions/"+started.ID+"/cancel", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestAPI_GetExecution_UnknownID(t *testing.T) {
	app := setupTestApp(t)

	resp, _ := doJSON(t, app, http.MethodGet, "/executions/missing", nil)

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func ruleRequest() web.RuleRequest {
	return web.RuleRequest{
		Name:       "flag big invoices",
		EntityType: "invoice",
		Priority:   5,
		IsActive:   true,
		Conditions: models.ConditionGroup{
			{Field: "total", Operator: models.OpGreaterThan, Value: 500},
		},
		Actions: []models.Action{
			{Type: models.ActionSendNotification, Params: map[string]any{
				"recipient": "finance",
				"message":   "big invoice ${id}",
			}},
		},
	}
}

func TestAPI_CreateRule(t *testing.T) {
	app := setupTestApp(t)

	resp, body := doJSON(t, app, http.MethodPost, "/rules/", ruleRequest())
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))

	var rule models.BusinessRule
	require.NoError(t, json.Unmarshal(body, &rule))
	assert.NotEmpty(t, rule.ID)
	assert.Equal(t, "tenant-1", rule.TenantID)
}

func TestAPI_CreateRule_RejectsUnknownOperator(t *testing.T) {
	app := setupTestApp(t)

	req := ruleRequest()
	req.Conditions = models.ConditionGroup{{Field: "total", Operator: "roughly", Value: 1}}

	resp, body := doJSON(t, app, http.MethodPost, "/rules/", req)

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, string(body), "roughly")
}

func TestAPI_TestRule_DryRun(t *testing.T) {
	app := setupTestApp(t)

	_, body := doJSON(t, app, http.MethodPost, "/rules/", ruleRequest())

	var rule models.BusinessRule
	require.NoError(t, json.Unmarshal(body, &rule))

	resp, body := doJSON(t, app, http.MethodPost, "/rules/"+rule.ID+"/test",
		web.TestRuleRequest{SampleData: map[string]any{"id": "inv-1", "total": 900}})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var result models.RuleExecution
	require.NoError(t, json.Unmarshal(body, &result))
	assert.Equal(t, models.RuleCompleted, result.Status)

	// Dry runs leave no audit trail.
	resp, body = doJSON(t, app, http.MethodGet, "/rules/"+rule.ID+"/executions", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"count":0`)
}

func TestAPI_FireEntityRules(t *testing.T) {
	app := setupTestApp(t)

	_, body := doJSON(t, app, http.MethodPost, "/rules/", ruleRequest())

	var rule models.BusinessRule
	require.NoError(t, json.Unmarshal(body, &rule))

	resp, body := doJSON(t, app, http.MethodPost, "/entity-events", web.EntityEventRequest{
		EntityType:   "invoice",
		EntityID:     "inv-7",
		TriggerEvent: "created",
		Data:         map[string]any{"id": "inv-7", "total": 900},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	assert.Contains(t, string(body), `"count":1`)
	assert.Contains(t, string(body), string(models.RuleCompleted))

	// Fired rules leave a queryable audit trail for the entity.
	resp, body = doJSON(t, app, http.MethodGet, "/rule-executions?entity_type=invoice&entity_id=inv-7", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), rule.ID)
}

func TestAPI_TenantStats(t *testing.T) {
	app := setupTestApp(t)
	createDefinition(t, app)

	resp, body := doJSON(t, app, http.MethodGet, "/stats", nil)

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var stats services.TenantStats
	require.NoError(t, json.Unmarshal(body, &stats))
	assert.Equal(t, 1, stats.Definitions)
	assert.Equal(t, 0, stats.PublishedDefs)
}
