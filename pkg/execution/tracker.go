package execution

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/helixflow/helixflow/pkg/eventbus"
	"github.com/helixflow/helixflow/pkg/events"
	"github.com/helixflow/helixflow/pkg/models"
	"github.com/helixflow/helixflow/pkg/persistence"
)

// Tracker records per-step execution state and keeps the parent execution's
// progress percentage in sync. Step writes are last-write-wins: the process
// backend is the only writer and retries are expected to overwrite.
type Tracker struct {
	persistence persistence.Persistence
	publisher   eventbus.EventPublisher
	logger      *slog.Logger
}

func NewTracker(persistence persistence.Persistence, publisher eventbus.EventPublisher, logger *slog.Logger) *Tracker {
	return &Tracker{
		persistence: persistence,
		publisher:   publisher,
		logger:      logger.With("module", "step_tracker"),
	}
}

// CreateStep records that a graph node was reached. It is idempotent: a
// retried walk reaching an already-recorded step gets the existing record
// back instead of a duplicate.
func (t *Tracker) CreateStep(ctx context.Context, executionID string, step *models.Step, input map[string]any) (*models.WorkflowStepExecution, error) {
	existing, err := t.persistence.Steps().GetByExecutionAndStep(ctx, executionID, step.ID)
	if err == nil {
		return existing, nil
	}

	if !errors.Is(err, persistence.ErrStepExecutionNotFound) {
		return nil, err
	}

	now := time.Now().UTC()
	record := &models.WorkflowStepExecution{
		ID:          uuid.New().String(),
		ExecutionID: executionID,
		StepID:      step.ID,
		StepName:    step.Name,
		StepType:    step.Type,
		Status:      models.StepRunning,
		InputData:   input,
		StartedAt:   &now,
	}

	if err := t.persistence.Steps().Save(ctx, record); err != nil {
		return nil, err
	}

	t.announce(ctx, record)

	return record, nil
}

// UpdateStep overwrites the status of an existing step record and, when the
// step reached a settled state, recomputes the execution's progress.
func (t *Tracker) UpdateStep(
	ctx context.Context,
	executionID, stepID string,
	status models.StepStatus,
	output map[string]any,
	errorMessage string,
) (*models.WorkflowStepExecution, error) {
	record, err := t.persistence.Steps().GetByExecutionAndStep(ctx, executionID, stepID)
	if err != nil {
		return nil, err
	}

	record.Status = status
	record.ErrorMessage = errorMessage

	if output != nil {
		record.OutputData = output
	}

	if status != models.StepRunning {
		now := time.Now().UTC()
		record.CompletedAt = &now
	}

	if err := t.persistence.Steps().Save(ctx, record); err != nil {
		return nil, err
	}

	t.announce(ctx, record)

	return record, nil
}

// RecomputeProgress recalculates the execution's progress percentage from its
// settled step counts: floor(100 * (completed + skipped) / total graph steps).
// A zero-step graph stays at 0 until completion forces 100.
func (t *Tracker) RecomputeProgress(ctx context.Context, execution *models.WorkflowExecution, totalSteps int) error {
	if totalSteps <= 0 {
		return nil
	}

	counts, err := t.persistence.Steps().CountByStatus(ctx, execution.ID)
	if err != nil {
		return err
	}

	done := counts[models.StepCompleted] + counts[models.StepSkipped]

	progress := 100 * done / totalSteps
	if progress > 100 {
		progress = 100
	}

	if progress == execution.Progress {
		return nil
	}

	execution.Progress = progress
	execution.UpdatedAt = time.Now().UTC()

	return t.persistence.Executions().Update(ctx, execution)
}

func (t *Tracker) announce(ctx context.Context, record *models.WorkflowStepExecution) {
	if t.publisher == nil {
		return
	}

	event := events.StepTransitioned{
		BaseEvent:    events.NewBaseEvent(events.StepTransitionedEvent, ""),
		ExecutionID:  record.ExecutionID,
		StepID:       record.StepID,
		Status:       record.Status,
		ErrorMessage: record.ErrorMessage,
	}

	if err := t.publisher.Publish(ctx, record.ExecutionID, event); err != nil {
		t.logger.ErrorContext(ctx, "Failed to publish step event",
			"execution_id", record.ExecutionID,
			"step_id", record.StepID,
			"error", err,
		)
	}
}
