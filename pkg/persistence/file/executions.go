package file

import (
	"context"
	"os"
	"sort"

	"github.com/helixflow/helixflow/pkg/models"
	"github.com/helixflow/helixflow/pkg/persistence"
)

const executionsDir = "executions"

// ExecutionRepository stores workflow executions as JSON files. The stored
// document carries the lock version, so the optimistic-locking contract works
// the same as in the SQL implementation.
type ExecutionRepository struct {
	store *store
}

// executionDocument is the on-disk shape; LockVersion is json-ignored on the
// model so it needs an explicit column here.
type executionDocument struct {
	models.WorkflowExecution

	LockVersion int64 `json:"lock_version"`
}

func (r *ExecutionRepository) Create(_ context.Context, execution *models.WorkflowExecution) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	execution.LockVersion = 1

	if err := r.writeLocked(execution); err != nil {
		return persistence.NewStoreError("Create", "execution", execution.ID, err)
	}

	return nil
}

func (r *ExecutionRepository) Update(_ context.Context, execution *models.WorkflowExecution) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	current, err := r.getLocked(execution.TenantID, execution.ID)
	if err != nil {
		return err
	}

	if current.LockVersion != execution.LockVersion {
		return persistence.ErrConcurrentUpdate
	}

	execution.LockVersion++

	if err := r.writeLocked(execution); err != nil {
		execution.LockVersion--

		return persistence.NewStoreError("Update", "execution", execution.ID, err)
	}

	return nil
}

func (r *ExecutionRepository) GetByID(_ context.Context, tenantID, id string) (*models.WorkflowExecution, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	return r.getLocked(tenantID, id)
}

func (r *ExecutionRepository) GetByKey(_ context.Context, executionKey string) (*models.WorkflowExecution, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	all, err := r.loadAllLocked("")
	if err != nil {
		return nil, err
	}

	for _, execution := range all {
		if execution.ExecutionKey == executionKey {
			return execution, nil
		}
	}

	return nil, persistence.ErrExecutionNotFound
}

func (r *ExecutionRepository) ListByStatus(_ context.Context, tenantID string, status models.ExecutionStatus) ([]*models.WorkflowExecution, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	all, err := r.loadAllLocked(tenantID)
	if err != nil {
		return nil, err
	}

	matched := make([]*models.WorkflowExecution, 0, len(all))

	for _, execution := range all {
		if execution.Status == status {
			matched = append(matched, execution)
		}
	}

	return matched, nil
}

func (r *ExecutionRepository) ListByDefinition(_ context.Context, tenantID, definitionID string) ([]*models.WorkflowExecution, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	all, err := r.loadAllLocked(tenantID)
	if err != nil {
		return nil, err
	}

	matched := make([]*models.WorkflowExecution, 0, len(all))

	for _, execution := range all {
		if execution.DefinitionID == definitionID {
			matched = append(matched, execution)
		}
	}

	return matched, nil
}

func (r *ExecutionRepository) CountByStatus(_ context.Context, tenantID string) (map[models.ExecutionStatus]int64, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	all, err := r.loadAllLocked(tenantID)
	if err != nil {
		return nil, err
	}

	counts := make(map[models.ExecutionStatus]int64)
	for _, execution := range all {
		counts[execution.Status]++
	}

	return counts, nil
}

func (r *ExecutionRepository) writeLocked(execution *models.WorkflowExecution) error {
	doc := executionDocument{WorkflowExecution: *execution, LockVersion: execution.LockVersion}

	return r.store.write(executionsDir, execution.ID, &doc)
}

func (r *ExecutionRepository) getLocked(tenantID, id string) (*models.WorkflowExecution, error) {
	var doc executionDocument

	err := r.store.read(executionsDir, id, &doc)
	if os.IsNotExist(err) || (err == nil && tenantID != "" && doc.TenantID != tenantID) {
		return nil, persistence.ErrExecutionNotFound
	}

	if err != nil {
		return nil, persistence.NewStoreError("GetByID", "execution", id, err)
	}

	execution := doc.WorkflowExecution
	execution.LockVersion = doc.LockVersion

	return &execution, nil
}

func (r *ExecutionRepository) loadAllLocked(tenantID string) ([]*models.WorkflowExecution, error) {
	ids, err := r.store.ids(executionsDir)
	if err != nil {
		return nil, persistence.NewStoreError("List", "execution", "", err)
	}

	executions := make([]*models.WorkflowExecution, 0, len(ids))

	for _, id := range ids {
		execution, err := r.getLocked(tenantID, id)
		if err != nil {
			continue
		}

		executions = append(executions, execution)
	}

	sort.Slice(executions, func(i, j int) bool {
		return executions[i].CreatedAt.Before(executions[j].CreatedAt)
	})

	return executions, nil
}
