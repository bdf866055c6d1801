// Package backend contains the process backends that drive workflow graph
// walks: an embedded in-process worker pool and a remote backend that
// forwards lifecycle commands over the event bus.
package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/helixflow/helixflow/pkg/dispatch"
	"github.com/helixflow/helixflow/pkg/execution"
	"github.com/helixflow/helixflow/pkg/models"
	"github.com/helixflow/helixflow/pkg/otelhelper"
	"github.com/helixflow/helixflow/pkg/persistence"
	"github.com/helixflow/helixflow/pkg/rules"
)

// errWait signals that the walk reached a wait-state step (user, manual,
// receive, event) and the execution was suspended pending external input.
var errWait = errors.New("execution is waiting on external input")

const defaultQueueSize = 256

type workItem struct {
	tenantID    string
	executionID string
}

// Embedded drives workflow executions in-process with a bounded worker pool.
// The persisted execution status is the abort signal: workers re-read it
// before every step and stop silently the moment it is no longer RUNNING.
type Embedded struct {
	persistence persistence.Persistence
	coordinator *execution.Coordinator
	tracker     *execution.Tracker
	rules       *rules.Coordinator
	dispatchers dispatch.Dispatchers
	queue       chan workItem
	workers     int
	tracer      trace.Tracer
	logger      *slog.Logger
}

func NewEmbedded(
	persistence persistence.Persistence,
	coordinator *execution.Coordinator,
	tracker *execution.Tracker,
	ruleCoordinator *rules.Coordinator,
	dispatchers dispatch.Dispatchers,
	workers int,
	logger *slog.Logger,
) *Embedded {
	if workers <= 0 {
		workers = 1
	}

	return &Embedded{
		persistence: persistence,
		coordinator: coordinator,
		tracker:     tracker,
		rules:       ruleCoordinator,
		dispatchers: dispatchers,
		queue:       make(chan workItem, defaultQueueSize),
		workers:     workers,
		tracer:      otel.Tracer("embedded_backend"),
		logger:      logger.With("module", "embedded_backend"),
	}
}

// Run blocks draining the work queue with the configured number of workers
// until the context is cancelled.
func (b *Embedded) Run(ctx context.Context) {
	done := make(chan struct{})

	for i := 0; i < b.workers; i++ {
		go func(worker int) {
			logger := b.logger.With("worker", worker)

			for {
				select {
				case <-ctx.Done():
					done <- struct{}{}

					return
				case item := <-b.queue:
					b.drive(ctx, logger, item)
				}
			}
		}(i)
	}

	for i := 0; i < b.workers; i++ {
		<-done
	}
}

func (b *Embedded) Start(ctx context.Context, execution *models.WorkflowExecution) error {
	return b.enqueue(ctx, execution)
}

// Cancel is a no-op: the coordinator already persisted the CANCELLED status,
// which the drive loop observes at the next step boundary.
func (b *Embedded) Cancel(_ context.Context, execution *models.WorkflowExecution) error {
	b.logger.Info("Cancellation recorded", "execution_id", execution.ID)

	return nil
}

// Suspend is a no-op for the same reason as Cancel.
func (b *Embedded) Suspend(_ context.Context, execution *models.WorkflowExecution) error {
	b.logger.Info("Suspension recorded", "execution_id", execution.ID)

	return nil
}

func (b *Embedded) Resume(ctx context.Context, execution *models.WorkflowExecution) error {
	return b.enqueue(ctx, execution)
}

func (b *Embedded) enqueue(ctx context.Context, execution *models.WorkflowExecution) error {
	select {
	case b.queue <- workItem{tenantID: execution.TenantID, executionID: execution.ID}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("failed to enqueue execution %s: %w", execution.ID, ctx.Err())
	}
}

// drive walks the graph for one execution until it completes, fails, waits or
// is stopped externally.
func (b *Embedded) drive(ctx context.Context, logger *slog.Logger, item workItem) {
	logger = logger.With("execution_id", item.executionID)

	ctx, span := otelhelper.StartSpan(ctx, b.tracer, "backend.drive",
		attribute.String(otelhelper.TenantIDKey, item.tenantID),
		attribute.String(otelhelper.ExecutionIDKey, item.executionID),
	)
	defer span.End()

	exec, err := b.persistence.Executions().GetByID(ctx, item.tenantID, item.executionID)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to load execution", "error", err)
		otelhelper.SetError(span, err)

		return
	}

	span.SetAttributes(
		attribute.String(otelhelper.DefinitionIDKey, exec.DefinitionID),
		attribute.String(otelhelper.ExecutionKeyKey, exec.ExecutionKey),
	)

	switch exec.Status {
	case models.ExecutionPending:
		exec, err = b.coordinator.MarkRunning(ctx, item.tenantID, item.executionID)
		if err != nil {
			logger.ErrorContext(ctx, "Failed to mark execution running", "error", err)

			return
		}
	case models.ExecutionRunning:
		// Resumed walk continues from the persisted current step.
	default:
		logger.InfoContext(ctx, "Skipping execution not eligible to run", "status", exec.Status)

		return
	}

	def, err := b.persistence.Definitions().GetByID(ctx, exec.TenantID, exec.DefinitionID)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to load definition", "error", err)
		b.fail(ctx, logger, exec, fmt.Sprintf("definition %s unavailable: %v", exec.DefinitionID, err))

		return
	}

	frontier := b.initialFrontier(def, exec)
	// visited caps each step at one run per walk: a cyclic graph executes
	// the loop body once and then drains. Repetition has to be modeled as a
	// subprocess or a rule-triggered execution.
	visited := make(map[string]bool)
	total := len(def.Graph.Steps)

	for len(frontier) > 0 {
		stepID := frontier[0]
		frontier = frontier[1:]

		if visited[stepID] {
			continue
		}

		visited[stepID] = true

		// The persisted status is the source of truth. A cancel or
		// suspend written since the last step wins; abort silently.
		exec, err = b.persistence.Executions().GetByID(ctx, exec.TenantID, exec.ID)
		if err != nil {
			logger.ErrorContext(ctx, "Failed to re-read execution", "error", err)

			return
		}

		if exec.Status != models.ExecutionRunning {
			logger.InfoContext(ctx, "Stopping walk, execution no longer running", "status", exec.Status)

			return
		}

		step, ok := def.Graph.StepByID(stepID)
		if !ok {
			b.fail(ctx, logger, exec, fmt.Sprintf("step %s not present in definition graph", stepID))

			return
		}

		if err := b.setCurrentStep(ctx, exec, step.ID); err != nil {
			logger.ErrorContext(ctx, "Failed to record current step", "error", err)
		}

		// A wait step found RUNNING on re-entry means the execution was
		// resumed: the external input arrived, the wait is over.
		if isWaitStep(step) {
			existing, err := b.persistence.Steps().GetByExecutionAndStep(ctx, exec.ID, step.ID)
			if err == nil && existing.Status == models.StepRunning {
				if _, err := b.tracker.UpdateStep(ctx, exec.ID, step.ID, models.StepCompleted, nil, ""); err != nil {
					logger.ErrorContext(ctx, "Failed to settle wait step", "step_id", step.ID, "error", err)
				}

				if err := b.tracker.RecomputeProgress(ctx, exec, total); err != nil {
					logger.ErrorContext(ctx, "Failed to recompute progress", "error", err)
				}

				if step.Role() != models.StepKindEnd {
					frontier = append(frontier, b.nextSteps(def, step, exec.Variables)...)
				}

				continue
			}
		}

		record, err := b.tracker.CreateStep(ctx, exec.ID, step, exec.Variables)
		if err != nil {
			logger.ErrorContext(ctx, "Failed to record step", "step_id", step.ID, "error", err)

			return
		}

		// Already settled in an earlier walk (retry or resume); advance.
		if record.Status.Done() {
			frontier = append(frontier, b.nextSteps(def, step, exec.Variables)...)

			continue
		}

		output, err := b.runStep(ctx, def, exec, step)
		if errors.Is(err, errWait) {
			logger.InfoContext(ctx, "Execution waiting on external input", "step_id", step.ID)

			return
		}

		if err != nil {
			message := fmt.Sprintf("step %s (%s) failed: %v", step.ID, step.Type, err)

			if _, uerr := b.tracker.UpdateStep(ctx, exec.ID, step.ID, models.StepFailed, nil, message); uerr != nil {
				logger.ErrorContext(ctx, "Failed to record step failure", "step_id", step.ID, "error", uerr)
			}

			b.fail(ctx, logger, exec, message)

			return
		}

		if _, err := b.tracker.UpdateStep(ctx, exec.ID, step.ID, models.StepCompleted, output, ""); err != nil {
			logger.ErrorContext(ctx, "Failed to record step completion", "step_id", step.ID, "error", err)
		}

		if err := b.tracker.RecomputeProgress(ctx, exec, total); err != nil {
			logger.ErrorContext(ctx, "Failed to recompute progress", "error", err)
		}

		if step.Role() != models.StepKindEnd {
			frontier = append(frontier, b.nextSteps(def, step, exec.Variables)...)
		}
	}

	if _, err := b.coordinator.MarkCompleted(ctx, exec.TenantID, exec.ID); err != nil {
		logger.ErrorContext(ctx, "Failed to mark execution completed", "error", err)

		return
	}

	logger.InfoContext(ctx, "Execution completed")
}

// initialFrontier resumes from the persisted current step when one is
// recorded, otherwise begins at the graph's start steps.
func (b *Embedded) initialFrontier(def *models.WorkflowDefinition, exec *models.WorkflowExecution) []string {
	if exec.CurrentStep != "" {
		if _, ok := def.Graph.StepByID(exec.CurrentStep); ok {
			return []string{exec.CurrentStep}
		}
	}

	starts := def.Graph.StartSteps()
	frontier := make([]string, 0, len(starts))

	for _, step := range starts {
		frontier = append(frontier, step.ID)
	}

	return frontier
}

// nextSteps selects the outgoing edges to follow. Exclusive gateways take the
// first edge whose condition holds; every other step follows all holding
// edges, which is also the parallel and inclusive gateway behavior.
func (b *Embedded) nextSteps(def *models.WorkflowDefinition, step *models.Step, vars map[string]any) []string {
	outgoing := def.Graph.OutgoingConnections(step.ID)
	exclusive := step.Type == models.StepTypeGateway && gatewayKind(step) == models.GatewayExclusive

	var next []string

	for _, conn := range outgoing {
		if !evaluateCondition(conn.Condition, vars) {
			continue
		}

		next = append(next, conn.To)

		if exclusive {
			break
		}
	}

	return next
}

// isWaitStep reports whether the step blocks on external input.
func isWaitStep(step *models.Step) bool {
	switch step.Type {
	case models.StepTypeUser, models.StepTypeManual, models.StepTypeReceive:
		return true
	case models.StepTypeEvent:
		return step.Role() == models.StepKindTask
	default:
		return false
	}
}

func gatewayKind(step *models.Step) models.GatewayKind {
	kind, _ := step.Config["gateway_kind"].(string)

	return models.GatewayKind(kind)
}

// runStep performs one step's work and returns its output. Wait-state steps
// suspend the execution and return errWait.
func (b *Embedded) runStep(
	ctx context.Context,
	def *models.WorkflowDefinition,
	exec *models.WorkflowExecution,
	step *models.Step,
) (output map[string]any, err error) {
	ctx, span := otelhelper.StartSpan(ctx, b.tracer, "backend.step",
		attribute.String(otelhelper.StepIDKey, step.ID),
		attribute.String(otelhelper.StepTypeKey, string(step.Type)),
	)

	defer func() {
		if err != nil && !errors.Is(err, errWait) {
			otelhelper.SetError(span, err)
		}

		span.End()
	}()

	switch step.Type {
	case models.StepTypeService:
		return b.runService(ctx, step)
	case models.StepTypeSend:
		return b.runSend(ctx, step, exec.Variables)
	case models.StepTypeScript:
		return b.runScript(step, exec.Variables)
	case models.StepTypeBusinessRule:
		return b.runBusinessRule(ctx, exec, step)
	case models.StepTypeSubprocess:
		return b.runSubprocess(ctx, exec, step)
	case models.StepTypeGateway:
		return map[string]any{"gateway_kind": string(gatewayKind(step))}, nil
	case models.StepTypeUser, models.StepTypeManual, models.StepTypeReceive:
		return nil, b.wait(ctx, exec, step)
	case models.StepTypeEvent:
		// Start and end events pass through; intermediate events wait.
		if step.Role() == models.StepKindTask {
			return nil, b.wait(ctx, exec, step)
		}

		return nil, nil
	default:
		return nil, fmt.Errorf("unsupported step type %q", step.Type)
	}
}

// wait suspends the execution at a wait-state step. The step record stays
// RUNNING; a later resume re-enters the walk at this step.
func (b *Embedded) wait(ctx context.Context, exec *models.WorkflowExecution, step *models.Step) error {
	if _, err := b.coordinator.Suspend(ctx, exec.TenantID, exec.ID); err != nil {
		return fmt.Errorf("failed to suspend at wait step %s: %w", step.ID, err)
	}

	return errWait
}

func (b *Embedded) runService(ctx context.Context, step *models.Step) (map[string]any, error) {
	url, _ := step.Config["url"].(string)
	if url == "" {
		return nil, errors.New("service step requires a url in config")
	}

	method, _ := step.Config["method"].(string)
	if method == "" {
		method = "POST"
	}

	payload, _ := step.Config["payload"].(map[string]any)

	err := b.dispatchers.Webhooks.CallWebhook(ctx, dispatch.WebhookRequest{URL: url, Method: method, Payload: payload})
	if err != nil {
		return nil, err
	}

	return map[string]any{"url": url, "method": method}, nil
}

func (b *Embedded) runSend(ctx context.Context, step *models.Step, vars map[string]any) (map[string]any, error) {
	recipient, _ := step.Config["recipient"].(string)
	message, _ := step.Config["message"].(string)

	if recipient == "" || message == "" {
		return nil, errors.New("send step requires recipient and message in config")
	}

	rendered := interpolate(message, vars)

	err := b.dispatchers.Notifier.Notify(ctx, dispatch.NotificationRequest{Recipient: recipient, Message: rendered})
	if err != nil {
		return nil, err
	}

	return map[string]any{"recipient": recipient}, nil
}

// runScript renders the script body against the execution variables. Scripts
// here are templates, not programs: placeholders resolve, nothing executes.
func (b *Embedded) runScript(step *models.Step, vars map[string]any) (map[string]any, error) {
	script, _ := step.Config["script"].(string)
	format, _ := step.Config["format"].(string)

	if script == "" || format == "" {
		return nil, errors.New("script step requires script and format in config")
	}

	return map[string]any{"result": interpolate(script, vars), "format": format}, nil
}

func (b *Embedded) runBusinessRule(ctx context.Context, exec *models.WorkflowExecution, step *models.Step) (map[string]any, error) {
	entityType, _ := step.Config["entity_type"].(string)
	if entityType == "" {
		return nil, errors.New("business_rule step requires an entity_type in config")
	}

	executions, err := b.rules.FireRules(ctx, exec.TenantID, entityType, exec.ID, "workflow_step", ruleRecord(exec))
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int)
	for _, ruleExecution := range executions {
		counts[string(ruleExecution.Status)]++
	}

	return map[string]any{"rules_fired": len(executions), "outcomes": counts}, nil
}

// ruleRecord builds the record rules evaluate against: the execution's
// variables plus the chained-trigger counter from its trigger data. Without
// the counter a rule chain of trigger_workflow into a business_rule step
// firing the same rule would spawn executions without bound.
func ruleRecord(exec *models.WorkflowExecution) map[string]any {
	record := make(map[string]any, len(exec.Variables)+1)

	for key, value := range exec.Variables {
		record[key] = value
	}

	if depth, ok := exec.TriggerData["trigger_depth"]; ok {
		record["trigger_depth"] = depth
	}

	return record
}

func (b *Embedded) runSubprocess(ctx context.Context, exec *models.WorkflowExecution, step *models.Step) (map[string]any, error) {
	definitionID, _ := step.Config["definition_id"].(string)
	if definitionID == "" {
		return nil, errors.New("subprocess step requires a definition_id in config")
	}

	child, err := b.coordinator.Start(ctx, exec.TenantID, definitionID, "subprocess", map[string]any{
		"parent_execution_id": exec.ID,
	}, exec.Variables)
	if err != nil {
		return nil, err
	}

	return map[string]any{"child_execution_id": child.ID}, nil
}

// setCurrentStep persists the walk position, retrying one optimistic-lock
// conflict against a fresh row.
func (b *Embedded) setCurrentStep(ctx context.Context, exec *models.WorkflowExecution, stepID string) error {
	exec.CurrentStep = stepID

	err := b.persistence.Executions().Update(ctx, exec)
	if !errors.Is(err, persistence.ErrConcurrentUpdate) {
		return err
	}

	fresh, err := b.persistence.Executions().GetByID(ctx, exec.TenantID, exec.ID)
	if err != nil {
		return err
	}

	*exec = *fresh
	exec.CurrentStep = stepID

	return b.persistence.Executions().Update(ctx, exec)
}

func (b *Embedded) fail(ctx context.Context, logger *slog.Logger, exec *models.WorkflowExecution, message string) {
	if _, err := b.coordinator.MarkFailed(ctx, exec.TenantID, exec.ID, message); err != nil {
		logger.ErrorContext(ctx, "Failed to mark execution failed", "error", err)
	}
}
