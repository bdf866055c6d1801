package execution

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/helixflow/helixflow/pkg/mocks"
	"github.com/helixflow/helixflow/pkg/models"
	"github.com/helixflow/helixflow/pkg/persistence"
)

func approvalStep() *models.Step {
	return &models.Step{ID: "step-1", Name: "Approve order", Type: models.StepTypeUser}
}

func TestTracker_CreateStep_NewRecord(t *testing.T) {
	p := mocks.NewMockPersistence()
	p.StepRepo.On("GetByExecutionAndStep", mock.Anything, "exec-1", "step-1").Return(nil, persistence.ErrStepExecutionNotFound)
	p.StepRepo.On("Save", mock.Anything, mock.Anything).Return(nil)

	tracker := NewTracker(p, nil, testLogger())

	record, err := tracker.CreateStep(context.Background(), "exec-1", approvalStep(), map[string]any{"order_id": "o-1"})

	require.NoError(t, err)
	assert.Equal(t, models.StepRunning, record.Status)
	assert.Equal(t, "Approve order", record.StepName)
	assert.NotEmpty(t, record.ID)
	require.NotNil(t, record.StartedAt)
}

func TestTracker_CreateStep_IdempotentOnRetry(t *testing.T) {
	existing := &models.WorkflowStepExecution{
		ID:          "step-exec-1",
		ExecutionID: "exec-1",
		StepID:      "step-1",
		Status:      models.StepCompleted,
	}

	p := mocks.NewMockPersistence()
	p.StepRepo.On("GetByExecutionAndStep", mock.Anything, "exec-1", "step-1").Return(existing, nil)

	tracker := NewTracker(p, nil, testLogger())

	record, err := tracker.CreateStep(context.Background(), "exec-1", approvalStep(), nil)

	require.NoError(t, err)
	assert.Same(t, existing, record)
	p.StepRepo.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
}

func TestTracker_UpdateStep_LastWriteWins(t *testing.T) {
	existing := &models.WorkflowStepExecution{
		ID:          "step-exec-1",
		ExecutionID: "exec-1",
		StepID:      "step-1",
		Status:      models.StepRunning,
	}

	p := mocks.NewMockPersistence()
	p.StepRepo.On("GetByExecutionAndStep", mock.Anything, "exec-1", "step-1").Return(existing, nil)
	p.StepRepo.On("Save", mock.Anything, mock.Anything).Return(nil)

	tracker := NewTracker(p, nil, testLogger())

	record, err := tracker.UpdateStep(context.Background(), "exec-1", "step-1", models.StepCompleted, map[string]any{"approved": true}, "")

	require.NoError(t, err)
	assert.Equal(t, models.StepCompleted, record.Status)
	assert.Equal(t, map[string]any{"approved": true}, record.OutputData)
	require.NotNil(t, record.CompletedAt)
}

func TestTracker_UpdateStep_UnknownStep(t *testing.T) {
	p := mocks.NewMockPersistence()
	p.StepRepo.On("GetByExecutionAndStep", mock.Anything, "exec-1", "step-404").Return(nil, persistence.ErrStepExecutionNotFound)

	tracker := NewTracker(p, nil, testLogger())

	_, err := tracker.UpdateStep(context.Background(), "exec-1", "step-404", models.StepCompleted, nil, "")

	assert.ErrorIs(t, err, persistence.ErrStepExecutionNotFound)
}

func TestTracker_RecomputeProgress_FloorsPercentage(t *testing.T) {
	p := mocks.NewMockPersistence()
	p.StepRepo.On("CountByStatus", mock.Anything, "exec-1").Return(map[models.StepStatus]int{
		models.StepCompleted: 1,
		models.StepFailed:    1,
	}, nil)
	p.ExecutionRepo.On("Update", mock.Anything, mock.Anything).Return(nil)

	tracker := NewTracker(p, nil, testLogger())
	execution := &models.WorkflowExecution{ID: "exec-1", TenantID: "tenant-1", Status: models.ExecutionRunning}

	// One of three steps done: floor(100/3) = 33.
	err := tracker.RecomputeProgress(context.Background(), execution, 3)

	require.NoError(t, err)
	assert.Equal(t, 33, execution.Progress)
}

func TestTracker_RecomputeProgress_CountsSkippedAsDone(t *testing.T) {
	p := mocks.NewMockPersistence()
	p.StepRepo.On("CountByStatus", mock.Anything, "exec-1").Return(map[models.StepStatus]int{
		models.StepCompleted: 2,
		models.StepSkipped:   1,
	}, nil)
	p.ExecutionRepo.On("Update", mock.Anything, mock.Anything).Return(nil)

	tracker := NewTracker(p, nil, testLogger())
	execution := &models.WorkflowExecution{ID: "exec-1", Status: models.ExecutionRunning}

	err := tracker.RecomputeProgress(context.Background(), execution, 4)

	require.NoError(t, err)
	assert.Equal(t, 75, execution.Progress)
}

func TestTracker_RecomputeProgress_NoWriteWhenUnchanged(t *testing.T) {
	p := mocks.NewMockPersistence()
	p.StepRepo.On("CountByStatus", mock.Anything, "exec-1").Return(map[models.StepStatus]int{
		models.StepCompleted: 1,
	}, nil)

	tracker := NewTracker(p, nil, testLogger())
	execution := &models.WorkflowExecution{ID: "exec-1", Progress: 50, Status: models.ExecutionRunning}

	err := tracker.RecomputeProgress(context.Background(), execution, 2)

	require.NoError(t, err)
	p.ExecutionRepo.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
}
