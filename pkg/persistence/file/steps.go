package file

import (
	"context"
	"os"
	"sort"

	"github.com/helixflow/helixflow/pkg/models"
	"github.com/helixflow/helixflow/pkg/persistence"
)

const stepsDir = "steps"

// StepExecutionRepository stores step execution records as JSON files.
type StepExecutionRepository struct {
	store *store
}

func (r *StepExecutionRepository) Save(_ context.Context, step *models.WorkflowStepExecution) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if err := r.store.write(stepsDir, step.ID, step); err != nil {
		return persistence.NewStoreError("Save", "step_execution", step.ID, err)
	}

	return nil
}

func (r *StepExecutionRepository) GetByID(_ context.Context, id string) (*models.WorkflowStepExecution, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	return r.getLocked(id)
}

func (r *StepExecutionRepository) GetByExecutionAndStep(_ context.Context, executionID, stepID string) (*models.WorkflowStepExecution, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	all, err := r.loadAllLocked(executionID)
	if err != nil {
		return nil, err
	}

	for _, record := range all {
		if record.StepID == stepID {
			return record, nil
		}
	}

	return nil, persistence.ErrStepExecutionNotFound
}

func (r *StepExecutionRepository) ListByExecution(_ context.Context, executionID string) ([]*models.WorkflowStepExecution, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	return r.loadAllLocked(executionID)
}

func (r *StepExecutionRepository) CountByStatus(_ context.Context, executionID string) (map[models.StepStatus]int, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	all, err := r.loadAllLocked(executionID)
	if err != nil {
		return nil, err
	}

	counts := make(map[models.StepStatus]int)
	for _, record := range all {
		counts[record.Status]++
	}

	return counts, nil
}

func (r *StepExecutionRepository) getLocked(id string) (*models.WorkflowStepExecution, error) {
	var record models.WorkflowStepExecution

	err := r.store.read(stepsDir, id, &record)
	if os.IsNotExist(err) {
		return nil, persistence.ErrStepExecutionNotFound
	}

	if err != nil {
		return nil, persistence.NewStoreError("GetByID", "step_execution", id, err)
	}

	return &record, nil
}

func (r *StepExecutionRepository) loadAllLocked(executionID string) ([]*models.WorkflowStepExecution, error) {
	ids, err := r.store.ids(stepsDir)
	if err != nil {
		return nil, persistence.NewStoreError("List", "step_execution", "", err)
	}

	records := make([]*models.WorkflowStepExecution, 0, len(ids))

	for _, id := range ids {
		record, err := r.getLocked(id)
		if err != nil {
			continue
		}

		if executionID != "" && record.ExecutionID != executionID {
			continue
		}

		records = append(records, record)
	}

	sort.Slice(records, func(i, j int) bool {
		if records[i].StartedAt == nil || records[j].StartedAt == nil {
			return records[i].ID < records[j].ID
		}

		return records[i].StartedAt.Before(*records[j].StartedAt)
	})

	return records, nil
}
