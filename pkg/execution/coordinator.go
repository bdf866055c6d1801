// Package execution manages the workflow execution lifecycle: status
// transitions, per-step tracking and progress accounting.
package execution

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/helixflow/helixflow/pkg/eventbus"
	"github.com/helixflow/helixflow/pkg/events"
	"github.com/helixflow/helixflow/pkg/models"
	"github.com/helixflow/helixflow/pkg/persistence"
)

// ErrIllegalTransition indicates a lifecycle operation that the execution's
// current status does not admit, e.g. cancelling a COMPLETED execution.
var ErrIllegalTransition = errors.New("illegal execution status transition")

// ErrDefinitionNotStartable indicates a start request against a definition
// that is unpublished, inactive or deleted.
var ErrDefinitionNotStartable = errors.New("definition is not startable")

// transitions is the closed lifecycle graph. Any pair not listed here is an
// illegal transition.
var transitions = map[models.ExecutionStatus][]models.ExecutionStatus{
	models.ExecutionPending:   {models.ExecutionRunning, models.ExecutionCancelled},
	models.ExecutionRunning:   {models.ExecutionSuspended, models.ExecutionCompleted, models.ExecutionFailed, models.ExecutionCancelled},
	models.ExecutionSuspended: {models.ExecutionRunning, models.ExecutionCancelled},
	models.ExecutionFailed:    {models.ExecutionPending},
}

func canTransition(from, to models.ExecutionStatus) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}

	return false
}

// ProcessBackend drives (or forwards) the actual graph walk for an execution.
// The embedded backend runs it in-process; the remote backend publishes a
// command for a worker to pick up.
type ProcessBackend interface {
	Start(ctx context.Context, execution *models.WorkflowExecution) error
	Cancel(ctx context.Context, execution *models.WorkflowExecution) error
	Suspend(ctx context.Context, execution *models.WorkflowExecution) error
	Resume(ctx context.Context, execution *models.WorkflowExecution) error
}

// Coordinator owns every status transition of workflow executions. The
// persisted status is the source of truth: backends consult it before
// advancing, so transitions written here take effect even mid-walk.
type Coordinator struct {
	persistence persistence.Persistence
	backend     ProcessBackend
	publisher   eventbus.EventPublisher
	locks       *keyedMutex
	logger      *slog.Logger
}

func NewCoordinator(persistence persistence.Persistence, publisher eventbus.EventPublisher, logger *slog.Logger) *Coordinator {
	return &Coordinator{
		persistence: persistence,
		publisher:   publisher,
		locks:       newKeyedMutex(),
		logger:      logger.With("module", "execution_coordinator"),
	}
}

// SetBackend wires the process backend after construction. The embedded
// backend needs the coordinator for its own completion callbacks, so the two
// cannot be built in one shot.
func (c *Coordinator) SetBackend(backend ProcessBackend) {
	c.backend = backend
}

// Start creates a PENDING execution for a startable definition and hands it
// to the process backend. The returned execution reflects the persisted row;
// the backend transitions it to RUNNING asynchronously.
func (c *Coordinator) Start(
	ctx context.Context,
	tenantID, definitionID, triggerType string,
	triggerData, variables map[string]any,
) (*models.WorkflowExecution, error) {
	def, err := c.persistence.Definitions().GetByID(ctx, tenantID, definitionID)
	if err != nil {
		return nil, err
	}

	if !def.Startable() {
		return nil, fmt.Errorf("%w: %s", ErrDefinitionNotStartable, definitionID)
	}

	now := time.Now().UTC()
	execution := &models.WorkflowExecution{
		ID:           uuid.New().String(),
		TenantID:     tenantID,
		DefinitionID: definitionID,
		ExecutionKey: newExecutionKey(tenantID, definitionID),
		Status:       models.ExecutionPending,
		TriggerType:  triggerType,
		TriggerData:  triggerData,
		Variables:    applyVariableDefaults(def.Graph.Variables, variables),
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := c.persistence.Executions().Create(ctx, execution); err != nil {
		return nil, err
	}

	c.logger.InfoContext(ctx, "Execution created",
		"execution_id", execution.ID,
		"definition_id", definitionID,
		"trigger_type", triggerType,
	)

	if err := c.backend.Start(ctx, execution); err != nil {
		return execution, fmt.Errorf("failed to hand execution to backend: %w", err)
	}

	return execution, nil
}

// Cancel stops an execution that has not finished. Allowed from PENDING,
// RUNNING and SUSPENDED.
func (c *Coordinator) Cancel(ctx context.Context, tenantID, executionID string) (*models.WorkflowExecution, error) {
	execution, err := c.transition(ctx, tenantID, executionID, models.ExecutionCancelled, events.ExecutionCancelledEvent, func(e *models.WorkflowExecution) {
		now := time.Now().UTC()
		e.CompletedAt = &now
	})
	if err != nil {
		return nil, err
	}

	if err := c.backend.Cancel(ctx, execution); err != nil {
		c.logger.ErrorContext(ctx, "Backend cancel notification failed", "execution_id", executionID, "error", err)
	}

	return execution, nil
}

// Suspend pauses a RUNNING execution. The backend aborts its walk at the next
// step boundary when it observes the persisted status.
func (c *Coordinator) Suspend(ctx context.Context, tenantID, executionID string) (*models.WorkflowExecution, error) {
	execution, err := c.transition(ctx, tenantID, executionID, models.ExecutionSuspended, events.ExecutionSuspendedEvent, nil)
	if err != nil {
		return nil, err
	}

	if err := c.backend.Suspend(ctx, execution); err != nil {
		c.logger.ErrorContext(ctx, "Backend suspend notification failed", "execution_id", executionID, "error", err)
	}

	return execution, nil
}

// Resume puts a SUSPENDED execution back to RUNNING and re-enqueues it with
// the backend, which continues from the persisted current step.
func (c *Coordinator) Resume(ctx context.Context, tenantID, executionID string) (*models.WorkflowExecution, error) {
	execution, err := c.transition(ctx, tenantID, executionID, models.ExecutionRunning, events.ExecutionResumedEvent, nil)
	if err != nil {
		return nil, err
	}

	if err := c.backend.Resume(ctx, execution); err != nil {
		return execution, fmt.Errorf("failed to re-enqueue execution: %w", err)
	}

	return execution, nil
}

// Retry moves a FAILED execution back to PENDING with its progress cleared
// and hands it to the backend for a fresh walk from the start steps.
func (c *Coordinator) Retry(ctx context.Context, tenantID, executionID string) (*models.WorkflowExecution, error) {
	execution, err := c.transition(ctx, tenantID, executionID, models.ExecutionPending, events.ExecutionRetriedEvent, func(e *models.WorkflowExecution) {
		e.Progress = 0
		e.CurrentStep = ""
		e.ErrorMessage = ""
		e.StartedAt = nil
		e.CompletedAt = nil
	})
	if err != nil {
		return nil, err
	}

	if err := c.backend.Start(ctx, execution); err != nil {
		return execution, fmt.Errorf("failed to hand execution to backend: %w", err)
	}

	return execution, nil
}

// MarkRunning is the backend callback for PENDING -> RUNNING.
func (c *Coordinator) MarkRunning(ctx context.Context, tenantID, executionID string) (*models.WorkflowExecution, error) {
	return c.transition(ctx, tenantID, executionID, models.ExecutionRunning, events.ExecutionStartedEvent, func(e *models.WorkflowExecution) {
		now := time.Now().UTC()
		e.StartedAt = &now
	})
}

// MarkCompleted is the backend callback for a walk that reached an end step.
func (c *Coordinator) MarkCompleted(ctx context.Context, tenantID, executionID string) (*models.WorkflowExecution, error) {
	return c.transition(ctx, tenantID, executionID, models.ExecutionCompleted, events.ExecutionCompletedEvent, func(e *models.WorkflowExecution) {
		now := time.Now().UTC()
		e.Progress = 100
		e.CompletedAt = &now
	})
}

// MarkFailed is the backend callback for a step failure.
func (c *Coordinator) MarkFailed(ctx context.Context, tenantID, executionID, errorMessage string) (*models.WorkflowExecution, error) {
	return c.transition(ctx, tenantID, executionID, models.ExecutionFailed, events.ExecutionFailedEvent, func(e *models.WorkflowExecution) {
		now := time.Now().UTC()
		e.ErrorMessage = errorMessage
		e.CompletedAt = &now
	})
}

const maxTransitionAttempts = 3

// transition applies one status change under the per-execution lock, retrying
// optimistic-lock conflicts against a freshly loaded row.
func (c *Coordinator) transition(
	ctx context.Context,
	tenantID, executionID string,
	to models.ExecutionStatus,
	eventType events.EventType,
	mutate func(*models.WorkflowExecution),
) (*models.WorkflowExecution, error) {
	c.locks.Lock(executionID)
	defer c.locks.Unlock(executionID)

	var lastErr error

	for attempt := 0; attempt < maxTransitionAttempts; attempt++ {
		execution, err := c.persistence.Executions().GetByID(ctx, tenantID, executionID)
		if err != nil {
			return nil, err
		}

		from := execution.Status
		if !canTransition(from, to) {
			return nil, fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, from, to)
		}

		execution.Status = to
		execution.UpdatedAt = time.Now().UTC()

		if mutate != nil {
			mutate(execution)
		}

		err = c.persistence.Executions().Update(ctx, execution)
		if errors.Is(err, persistence.ErrConcurrentUpdate) {
			lastErr = err

			continue
		}

		if err != nil {
			return nil, err
		}

		c.logger.InfoContext(ctx, "Execution transitioned",
			"execution_id", executionID,
			"from", from,
			"to", to,
		)
		c.announce(ctx, eventType, execution)

		return execution, nil
	}

	return nil, fmt.Errorf("giving up after %d conflicting updates: %w", maxTransitionAttempts, lastErr)
}

// announce publishes the lifecycle notification matching the transition.
// Delivery failures are logged, never fatal.
func (c *Coordinator) announce(ctx context.Context, eventType events.EventType, execution *models.WorkflowExecution) {
	if c.publisher == nil {
		return
	}

	payload := events.ExecutionTransitioned{
		BaseEvent:    events.NewBaseEvent(eventType, execution.TenantID),
		ExecutionID:  execution.ID,
		DefinitionID: execution.DefinitionID,
		Status:       execution.Status,
		Progress:     execution.Progress,
		ErrorMessage: execution.ErrorMessage,
	}

	var event eventbus.Event

	switch eventType {
	case events.ExecutionStartedEvent:
		event = events.ExecutionStarted{ExecutionTransitioned: payload}
	case events.ExecutionCompletedEvent:
		event = events.ExecutionCompleted{ExecutionTransitioned: payload}
	case events.ExecutionFailedEvent:
		event = events.ExecutionFailed{ExecutionTransitioned: payload}
	case events.ExecutionCancelledEvent:
		event = events.ExecutionCancelled{ExecutionTransitioned: payload}
	case events.ExecutionSuspendedEvent:
		event = events.ExecutionSuspended{ExecutionTransitioned: payload}
	case events.ExecutionResumedEvent:
		event = events.ExecutionResumed{ExecutionTransitioned: payload}
	case events.ExecutionRetriedEvent:
		event = events.ExecutionRetried{ExecutionTransitioned: payload}
	default:
		return
	}

	if err := c.publisher.Publish(ctx, execution.ID, event); err != nil {
		c.logger.ErrorContext(ctx, "Failed to publish execution event",
			"execution_id", execution.ID,
			"event_type", event.GetType(),
			"error", err,
		)
	}
}

// newExecutionKey builds the unique, human-scannable identifier recorded on
// each execution row.
func newExecutionKey(tenantID, definitionID string) string {
	return fmt.Sprintf("%s-%s-%d-%s", tenantID, definitionID, time.Now().UnixNano(), uuid.New().String()[:8])
}

// applyVariableDefaults fills declared defaults for variables the trigger did
// not provide. The caller's map is not modified.
func applyVariableDefaults(declared []*models.Variable, provided map[string]any) map[string]any {
	merged := make(map[string]any, len(provided)+len(declared))

	for _, variable := range declared {
		if variable.Default != nil {
			merged[variable.Name] = variable.Default
		}
	}

	for name, value := range provided {
		merged[name] = value
	}

	return merged
}
