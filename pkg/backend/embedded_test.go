package backend

import (
	"context"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/helixflow/helixflow/pkg/dispatch"
	"github.com/helixflow/helixflow/pkg/execution"
	"github.com/helixflow/helixflow/pkg/models"
	"github.com/helixflow/helixflow/pkg/persistence/file"
	"github.com/helixflow/helixflow/pkg/rules"
)

type harness struct {
	persistence *file.Persistence
	coordinator *execution.Coordinator
	backend     *Embedded
	webhooks    *dispatch.MockWebhookCaller
	notifier    *dispatch.MockNotifier
	starter     *dispatch.MockWorkflowStarter
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	store := file.NewPersistence(t.TempDir())

	webhooks := &dispatch.MockWebhookCaller{}
	notifier := &dispatch.MockNotifier{}
	starter := &dispatch.MockWorkflowStarter{}
	dispatchers := dispatch.Dispatchers{
		Mailer:   &dispatch.MockMailer{},
		Tasks:    &dispatch.MockTaskCreator{},
		Notifier: notifier,
		Webhooks: webhooks,
		Starter:  starter,
		Records:  &dispatch.MockRecordUpdater{},
	}

	coordinator := execution.NewCoordinator(store, nil, logger)
	tracker := execution.NewTracker(store, nil, logger)
	ruleCoordinator := rules.NewCoordinator(store, rules.NewEvaluator(), rules.NewExecutor(dispatchers, logger), nil, nil, logger)

	embedded := NewEmbedded(store, coordinator, tracker, ruleCoordinator, dispatchers, 1, logger)
	coordinator.SetBackend(embedded)

	return &harness{
		persistence: store,
		coordinator: coordinator,
		backend:     embedded,
		webhooks:    webhooks,
		notifier:    notifier,
		starter:     starter,
	}
}

// driveOnce runs the walk synchronously for one queued execution.
func (h *harness) driveOnce(ctx context.Context, exec *models.WorkflowExecution) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	h.backend.drive(ctx, logger, workItem{tenantID: exec.TenantID, executionID: exec.ID})
}

func linearDefinition() *models.WorkflowDefinition {
	return &models.WorkflowDefinition{
		ID:          "def-1",
		TenantID:    "tenant-1",
		Name:        "notify pipeline",
		Version:     "1.0",
		IsActive:    true,
		IsPublished: true,
		Graph: models.Graph{
			Steps: []*models.Step{
				{ID: "start", Name: "Start", Type: models.StepTypeEvent, Kind: models.StepKindStart},
				{ID: "render", Name: "Render", Type: models.StepTypeScript, Config: map[string]any{"script": "hello ${name}", "format": "text"}},
				{ID: "finish", Name: "Finish", Type: models.StepTypeEvent, Kind: models.StepKindEnd},
			},
			Connections: []*models.Connection{
				{ID: "c1", From: "start", To: "render"},
				{ID: "c2", From: "render", To: "finish"},
			},
		},
	}
}

func TestEmbedded_Drive_CompletesLinearWalk(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.persistence.Definitions().Save(ctx, linearDefinition()))

	exec, err := h.coordinator.Start(ctx, "tenant-1", "def-1", "manual", nil, map[string]any{"name": "Ana"})
	require.NoError(t, err)

	h.driveOnce(ctx, exec)

	final, err := h.persistence.Executions().GetByID(ctx, "tenant-1", exec.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionCompleted, final.Status)
	assert.Equal(t, 100, final.Progress)
	require.NotNil(t, final.StartedAt)
	require.NotNil(t, final.CompletedAt)

	steps, err := h.persistence.Steps().ListByExecution(ctx, exec.ID)
	require.NoError(t, err)
	require.Len(t, steps, 3)

	for _, record := range steps {
		assert.Equal(t, models.StepCompleted, record.Status)
	}

	rendered, err := h.persistence.Steps().GetByExecutionAndStep(ctx, exec.ID, "render")
	require.NoError(t, err)
	assert.Equal(t, "hello Ana", rendered.OutputData["result"])
}

func TestEmbedded_Drive_StepFailureFailsExecution(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	def := linearDefinition()
	// Service step without a url fails at the second of three steps.
	def.Graph.Steps[1] = &models.Step{ID: "render", Name: "Call", Type: models.StepTypeService}
	require.NoError(t, h.persistence.Definitions().Save(ctx, def))

	exec, err := h.coordinator.Start(ctx, "tenant-1", "def-1", "manual", nil, nil)
	require.NoError(t, err)

	h.driveOnce(ctx, exec)

	final, err := h.persistence.Executions().GetByID(ctx, "tenant-1", exec.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionFailed, final.Status)
	assert.Contains(t, final.ErrorMessage, "render")

	// One of three steps settled before the failure: floor(100/3).
	assert.Equal(t, 33, final.Progress)

	failed, err := h.persistence.Steps().GetByExecutionAndStep(ctx, exec.ID, "render")
	require.NoError(t, err)
	assert.Equal(t, models.StepFailed, failed.Status)
}

func TestEmbedded_Drive_ServiceStepCallsWebhook(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	def := linearDefinition()
	def.Graph.Steps[1] = &models.Step{
		ID: "render", Name: "Call", Type: models.StepTypeService,
		Config: map[string]any{"url": "https://example.com/hook", "method": "PUT"},
	}
	require.NoError(t, h.persistence.Definitions().Save(ctx, def))

	h.webhooks.On("CallWebhook", mock.Anything, mock.MatchedBy(func(req dispatch.WebhookRequest) bool {
		return req.URL == "https://example.com/hook" && req.Method == "PUT"
	})).Return(nil)

	exec, err := h.coordinator.Start(ctx, "tenant-1", "def-1", "manual", nil, nil)
	require.NoError(t, err)

	h.driveOnce(ctx, exec)

	final, err := h.persistence.Executions().GetByID(ctx, "tenant-1", exec.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionCompleted, final.Status)
	h.webhooks.AssertExpectations(t)
}

func TestEmbedded_Drive_WaitStepSuspendsAndResumes(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	def := linearDefinition()
	def.Graph.Steps[1] = &models.Step{ID: "render", Name: "Approve", Type: models.StepTypeUser}
	require.NoError(t, h.persistence.Definitions().Save(ctx, def))

	exec, err := h.coordinator.Start(ctx, "tenant-1", "def-1", "manual", nil, nil)
	require.NoError(t, err)

	h.driveOnce(ctx, exec)

	suspended, err := h.persistence.Executions().GetByID(ctx, "tenant-1", exec.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionSuspended, suspended.Status)
	assert.Equal(t, "render", suspended.CurrentStep)

	waiting, err := h.persistence.Steps().GetByExecutionAndStep(ctx, exec.ID, "render")
	require.NoError(t, err)
	assert.Equal(t, models.StepRunning, waiting.Status)

	// External input arrives; resume continues from the wait step.
	resumed, err := h.coordinator.Resume(ctx, "tenant-1", exec.ID)
	require.NoError(t, err)

	h.driveOnce(ctx, resumed)

	final, err := h.persistence.Executions().GetByID(ctx, "tenant-1", exec.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionCompleted, final.Status)
	assert.Equal(t, 100, final.Progress)
}

func TestEmbedded_Drive_SkipsWhenNotEligible(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.persistence.Definitions().Save(ctx, linearDefinition()))

	exec, err := h.coordinator.Start(ctx, "tenant-1", "def-1", "manual", nil, nil)
	require.NoError(t, err)

	// Cancelled between enqueue and pickup: the worker must not touch it.
	_, err = h.coordinator.Cancel(ctx, "tenant-1", exec.ID)
	require.NoError(t, err)

	h.driveOnce(ctx, exec)

	final, err := h.persistence.Executions().GetByID(ctx, "tenant-1", exec.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionCancelled, final.Status)

	steps, err := h.persistence.Steps().ListByExecution(ctx, exec.ID)
	require.NoError(t, err)
	assert.Empty(t, steps)
}

func TestEmbedded_Drive_ExclusiveGatewayPicksOneBranch(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	def := &models.WorkflowDefinition{
		ID:          "def-1",
		TenantID:    "tenant-1",
		Name:        "approval routing",
		Version:     "1.0",
		IsActive:    true,
		IsPublished: true,
		Graph: models.Graph{
			Steps: []*models.Step{
				{ID: "start", Name: "Start", Type: models.StepTypeEvent, Kind: models.StepKindStart},
				{ID: "route", Name: "Route", Type: models.StepTypeGateway, Config: map[string]any{"gateway_kind": "exclusive"}},
				{ID: "approved", Name: "Approved", Type: models.StepTypeScript, Kind: models.StepKindEnd, Config: map[string]any{"script": "ok", "format": "text"}},
				{ID: "rejected", Name: "Rejected", Type: models.StepTypeScript, Kind: models.StepKindEnd, Config: map[string]any{"script": "no", "format": "text"}},
			},
			Connections: []*models.Connection{
				{ID: "c1", From: "start", To: "route"},
				{ID: "c2", From: "route", To: "approved", Condition: "${approved} == true"},
				{ID: "c3", From: "route", To: "rejected"},
			},
		},
	}
	require.NoError(t, h.persistence.Definitions().Save(ctx, def))

	exec, err := h.coordinator.Start(ctx, "tenant-1", "def-1", "manual", nil, map[string]any{"approved": true})
	require.NoError(t, err)

	h.driveOnce(ctx, exec)

	final, err := h.persistence.Executions().GetByID(ctx, "tenant-1", exec.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionCompleted, final.Status)

	_, err = h.persistence.Steps().GetByExecutionAndStep(ctx, exec.ID, "approved")
	assert.NoError(t, err)

	// The rejected branch was never entered.
	_, err = h.persistence.Steps().GetByExecutionAndStep(ctx, exec.ID, "rejected")
	assert.Error(t, err)
}

func chainTriggerRule() *models.BusinessRule {
	return &models.BusinessRule{
		ID:         "rule-chain",
		TenantID:   "tenant-1",
		Name:       "restart pipeline",
		EntityType: "invoice",
		IsActive:   true,
		Conditions: models.ConditionGroup{
			{Field: "amount", Operator: models.OpGreaterThan, Value: 100},
		},
		Actions: []models.Action{
			{Type: models.ActionTriggerWorkflow, Params: map[string]any{
				"tenant_id":     "tenant-1",
				"definition_id": "def-1",
			}},
		},
	}
}

func businessRuleDefinition() *models.WorkflowDefinition {
	def := linearDefinition()
	def.Graph.Steps[1] = &models.Step{
		ID: "render", Name: "Fire rules", Type: models.StepTypeBusinessRule,
		Config: map[string]any{"entity_type": "invoice"},
	}

	return def
}

func TestEmbedded_Drive_BusinessRuleTriggerCarriesChainDepth(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.persistence.Definitions().Save(ctx, businessRuleDefinition()))
	require.NoError(t, h.persistence.Rules().Save(ctx, chainTriggerRule()))

	// An execution at chain depth 2 re-triggers at depth 3.
	h.starter.On("StartWorkflow", mock.Anything, mock.MatchedBy(func(req dispatch.StartWorkflowRequest) bool {
		return req.DefinitionID == "def-1" && req.Depth == 3
	})).Return(nil)

	exec, err := h.coordinator.Start(ctx, "tenant-1", "def-1", "rule",
		map[string]any{"trigger_depth": 2}, map[string]any{"amount": 900})
	require.NoError(t, err)

	h.driveOnce(ctx, exec)

	final, err := h.persistence.Executions().GetByID(ctx, "tenant-1", exec.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionCompleted, final.Status)
	h.starter.AssertExpectations(t)
}

func TestEmbedded_Drive_BusinessRuleTriggerDepthGuardStopsChain(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.persistence.Definitions().Save(ctx, businessRuleDefinition()))
	require.NoError(t, h.persistence.Rules().Save(ctx, chainTriggerRule()))

	// A self-triggering chain that reached the depth limit must not spawn
	// another execution.
	exec, err := h.coordinator.Start(ctx, "tenant-1", "def-1", "rule",
		map[string]any{"trigger_depth": 5}, map[string]any{"amount": 900})
	require.NoError(t, err)

	h.driveOnce(ctx, exec)

	h.starter.AssertNotCalled(t, "StartWorkflow", mock.Anything, mock.Anything)

	audits, err := h.persistence.RuleExecutions().ListByRule(ctx, "tenant-1", "rule-chain")
	require.NoError(t, err)
	require.Len(t, audits, 1)
	assert.Equal(t, models.RuleFailed, audits[0].Status)
	assert.Contains(t, audits[0].ErrorMessage, "depth")
}

func TestEmbedded_Drive_CyclicGraphSettlesEachStepOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	def := &models.WorkflowDefinition{
		ID:          "def-1",
		TenantID:    "tenant-1",
		Name:        "reminder loop",
		Version:     "1.0",
		IsActive:    true,
		IsPublished: true,
		Graph: models.Graph{
			Steps: []*models.Step{
				{ID: "start", Name: "Start", Type: models.StepTypeEvent, Kind: models.StepKindStart},
				{ID: "remind", Name: "Remind", Type: models.StepTypeScript, Config: map[string]any{"script": "ping", "format": "text"}},
				{ID: "check", Name: "Check", Type: models.StepTypeScript, Config: map[string]any{"script": "ok", "format": "text"}},
				{ID: "finish", Name: "Finish", Type: models.StepTypeEvent, Kind: models.StepKindEnd},
			},
			Connections: []*models.Connection{
				{ID: "c1", From: "start", To: "remind"},
				{ID: "c2", From: "remind", To: "check"},
				{ID: "c3", From: "check", To: "remind"},
				{ID: "c4", From: "check", To: "finish"},
			},
		},
	}
	require.NoError(t, h.persistence.Definitions().Save(ctx, def))

	exec, err := h.coordinator.Start(ctx, "tenant-1", "def-1", "manual", nil, nil)
	require.NoError(t, err)

	h.driveOnce(ctx, exec)

	// The back edge does not re-run the loop body; the walk drains and
	// completes with every step settled exactly once.
	final, err := h.persistence.Executions().GetByID(ctx, "tenant-1", exec.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionCompleted, final.Status)

	steps, err := h.persistence.Steps().ListByExecution(ctx, exec.ID)
	require.NoError(t, err)
	assert.Len(t, steps, 4)
}

func TestEmbedded_Drive_RetryRerunsFromStart(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	def := linearDefinition()
	def.Graph.Steps[1] = &models.Step{ID: "render", Name: "Call", Type: models.StepTypeService}
	require.NoError(t, h.persistence.Definitions().Save(ctx, def))

	exec, err := h.coordinator.Start(ctx, "tenant-1", "def-1", "manual", nil, nil)
	require.NoError(t, err)

	h.driveOnce(ctx, exec)

	failed, err := h.persistence.Executions().GetByID(ctx, "tenant-1", exec.ID)
	require.NoError(t, err)
	require.Equal(t, models.ExecutionFailed, failed.Status)

	// Fix the definition, then retry.
	def.Graph.Steps[1] = &models.Step{ID: "render", Name: "Render", Type: models.StepTypeScript, Config: map[string]any{"script": "ok", "format": "text"}}
	require.NoError(t, h.persistence.Definitions().Save(ctx, def))

	retried, err := h.coordinator.Retry(ctx, "tenant-1", exec.ID)
	require.NoError(t, err)
	require.Equal(t, models.ExecutionPending, retried.Status)

	h.driveOnce(ctx, retried)

	// The failed step re-ran against the fixed graph; settled steps from the
	// first walk were not repeated.
	final, err := h.persistence.Executions().GetByID(ctx, "tenant-1", exec.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionCompleted, final.Status)
	assert.Equal(t, 100, final.Progress)
}
