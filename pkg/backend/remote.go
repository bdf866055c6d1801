package backend

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/helixflow/helixflow/pkg/eventbus"
	"github.com/helixflow/helixflow/pkg/events"
	"github.com/helixflow/helixflow/pkg/models"
)

// Remote forwards lifecycle commands over the event bus for a worker running
// the embedded backend to pick up. Used by the API binary, which never walks
// graphs itself.
type Remote struct {
	publisher eventbus.EventPublisher
	logger    *slog.Logger
}

func NewRemote(publisher eventbus.EventPublisher, logger *slog.Logger) *Remote {
	return &Remote{
		publisher: publisher,
		logger:    logger.With("module", "remote_backend"),
	}
}

func (r *Remote) Start(ctx context.Context, execution *models.WorkflowExecution) error {
	return r.publish(ctx, execution, events.ExecutionStartRequested{
		ExecutionCommand: r.command(events.ExecutionStartRequestedEvent, execution),
	})
}

func (r *Remote) Cancel(ctx context.Context, execution *models.WorkflowExecution) error {
	return r.publish(ctx, execution, events.ExecutionCancelRequested{
		ExecutionCommand: r.command(events.ExecutionCancelRequestedEvent, execution),
	})
}

func (r *Remote) Suspend(ctx context.Context, execution *models.WorkflowExecution) error {
	return r.publish(ctx, execution, events.ExecutionSuspendRequested{
		ExecutionCommand: r.command(events.ExecutionSuspendRequestedEvent, execution),
	})
}

func (r *Remote) Resume(ctx context.Context, execution *models.WorkflowExecution) error {
	return r.publish(ctx, execution, events.ExecutionResumeRequested{
		ExecutionCommand: r.command(events.ExecutionResumeRequestedEvent, execution),
	})
}

func (r *Remote) command(eventType events.EventType, execution *models.WorkflowExecution) events.ExecutionCommand {
	return events.ExecutionCommand{
		BaseEvent:    events.NewBaseEvent(eventType, execution.TenantID),
		ExecutionID:  execution.ID,
		DefinitionID: execution.DefinitionID,
		ExecutionKey: execution.ExecutionKey,
	}
}

func (r *Remote) publish(ctx context.Context, execution *models.WorkflowExecution, event eventbus.Event) error {
	if err := r.publisher.Publish(ctx, execution.ID, event); err != nil {
		return fmt.Errorf("failed to publish %s for execution %s: %w", event.GetType(), execution.ID, err)
	}

	r.logger.InfoContext(ctx, "Execution command published",
		"execution_id", execution.ID,
		"event_type", event.GetType(),
	)

	return nil
}
