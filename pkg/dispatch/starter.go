package dispatch

import (
	"context"
	"fmt"

	"github.com/helixflow/helixflow/pkg/execution"
)

// CoordinatorStarter starts workflow executions through the execution
// coordinator on behalf of trigger_workflow rule actions. The chained-trigger
// depth travels in the new execution's trigger data so downstream rules see it.
type CoordinatorStarter struct {
	coordinator *execution.Coordinator
}

func NewCoordinatorStarter(coordinator *execution.Coordinator) *CoordinatorStarter {
	return &CoordinatorStarter{coordinator: coordinator}
}

func (s *CoordinatorStarter) StartWorkflow(ctx context.Context, req StartWorkflowRequest) error {
	triggerData := map[string]any{"trigger_depth": req.Depth}

	_, err := s.coordinator.Start(ctx, req.TenantID, req.DefinitionID, req.TriggerType, triggerData, req.Variables)
	if err != nil {
		return fmt.Errorf("failed to start workflow %s: %w", req.DefinitionID, err)
	}

	return nil
}
