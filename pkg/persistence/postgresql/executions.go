package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"

	"github.com/helixflow/helixflow/pkg/models"
	"github.com/helixflow/helixflow/pkg/persistence"
)

// ExecutionRepository handles workflow execution database operations. Updates
// use optimistic locking on lock_version.
type ExecutionRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewExecutionRepository(db *sql.DB, logger *slog.Logger) *ExecutionRepository {
	return &ExecutionRepository{db: db, logger: logger}
}

const executionColumns = `
	id
  , tenant_id
  , definition_id
  , execution_key
  , status
  , trigger_type
  , trigger_data
  , variables
  , current_step
  , progress_percentage
  , started_at
  , completed_at
  , error_message
  , created_at
  , updated_at
  , lock_version
`

func (r *ExecutionRepository) Create(ctx context.Context, execution *models.WorkflowExecution) error {
	triggerData, err := marshalJSON(execution.TriggerData)
	if err != nil {
		return err
	}

	variables, err := marshalJSON(execution.Variables)
	if err != nil {
		return err
	}

	execution.LockVersion = 1

	query := `
		INSERT INTO workflow_executions (` + executionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`

	_, err = r.db.ExecContext(ctx, query,
		execution.ID,
		execution.TenantID,
		execution.DefinitionID,
		execution.ExecutionKey,
		execution.Status,
		execution.TriggerType,
		triggerData,
		variables,
		execution.CurrentStep,
		execution.Progress,
		nullableTime(execution.StartedAt),
		nullableTime(execution.CompletedAt),
		execution.ErrorMessage,
		execution.CreatedAt,
		execution.UpdatedAt,
		execution.LockVersion,
	)
	if err != nil {
		return persistence.NewStoreError("Create", "execution", execution.ID, err)
	}

	return nil
}

// Update writes the execution only when the caller holds the current lock
// version; a stale write returns ErrConcurrentUpdate. On success the passed
// execution carries the incremented version.
func (r *ExecutionRepository) Update(ctx context.Context, execution *models.WorkflowExecution) error {
	triggerData, err := marshalJSON(execution.TriggerData)
	if err != nil {
		return err
	}

	variables, err := marshalJSON(execution.Variables)
	if err != nil {
		return err
	}

	query := `
		UPDATE workflow_executions SET
			status = $1,
			trigger_data = $2,
			variables = $3,
			current_step = $4,
			progress_percentage = $5,
			started_at = $6,
			completed_at = $7,
			error_message = $8,
			updated_at = $9,
			lock_version = lock_version + 1
		WHERE id = $10 AND tenant_id = $11 AND lock_version = $12
	`

	result, err := r.db.ExecContext(ctx, query,
		execution.Status,
		triggerData,
		variables,
		execution.CurrentStep,
		execution.Progress,
		nullableTime(execution.StartedAt),
		nullableTime(execution.CompletedAt),
		execution.ErrorMessage,
		execution.UpdatedAt,
		execution.ID,
		execution.TenantID,
		execution.LockVersion,
	)
	if err != nil {
		return persistence.NewStoreError("Update", "execution", execution.ID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return persistence.NewStoreError("Update", "execution", execution.ID, err)
	}

	if affected == 0 {
		_, err := r.GetByID(ctx, execution.TenantID, execution.ID)
		if err != nil {
			return err
		}

		return persistence.ErrConcurrentUpdate
	}

	execution.LockVersion++

	return nil
}

func (r *ExecutionRepository) GetByID(ctx context.Context, tenantID, id string) (*models.WorkflowExecution, error) {
	query := `
		SELECT ` + executionColumns + `
		FROM workflow_executions
		WHERE id = $1 AND tenant_id = $2
	`

	execution, err := scanExecution(r.db.QueryRowContext(ctx, query, id, tenantID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrExecutionNotFound
		}

		return nil, persistence.NewStoreError("GetByID", "execution", id, err)
	}

	return execution, nil
}

func (r *ExecutionRepository) GetByKey(ctx context.Context, executionKey string) (*models.WorkflowExecution, error) {
	query := `
		SELECT ` + executionColumns + `
		FROM workflow_executions
		WHERE execution_key = $1
	`

	execution, err := scanExecution(r.db.QueryRowContext(ctx, query, executionKey))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrExecutionNotFound
		}

		return nil, persistence.NewStoreError("GetByKey", "execution", executionKey, err)
	}

	return execution, nil
}

func (r *ExecutionRepository) ListByStatus(ctx context.Context, tenantID string, status models.ExecutionStatus) ([]*models.WorkflowExecution, error) {
	query := `
		SELECT ` + executionColumns + `
		FROM workflow_executions
		WHERE tenant_id = $1 AND status = $2
		ORDER BY created_at ASC
	`

	return r.list(ctx, query, tenantID, status)
}

func (r *ExecutionRepository) ListByDefinition(ctx context.Context, tenantID, definitionID string) ([]*models.WorkflowExecution, error) {
	query := `
		SELECT ` + executionColumns + `
		FROM workflow_executions
		WHERE tenant_id = $1 AND definition_id = $2
		ORDER BY created_at ASC
	`

	return r.list(ctx, query, tenantID, definitionID)
}

func (r *ExecutionRepository) CountByStatus(ctx context.Context, tenantID string) (map[models.ExecutionStatus]int64, error) {
	query := `
		SELECT status, COUNT(*)
		FROM workflow_executions
		WHERE tenant_id = $1
		GROUP BY status
	`

	rows, err := r.db.QueryContext(ctx, query, tenantID)
	if err != nil {
		return nil, persistence.NewStoreError("CountByStatus", "execution", tenantID, err)
	}

	defer closeRows(ctx, r.logger, rows)

	counts := make(map[models.ExecutionStatus]int64)

	for rows.Next() {
		var (
			status models.ExecutionStatus
			count  int64
		)

		if err := rows.Scan(&status, &count); err != nil {
			return nil, persistence.NewStoreError("CountByStatus", "execution", tenantID, err)
		}

		counts[status] = count
	}

	if err := rows.Err(); err != nil {
		return nil, persistence.NewStoreError("CountByStatus", "execution", tenantID, err)
	}

	return counts, nil
}

func (r *ExecutionRepository) list(ctx context.Context, query string, args ...any) ([]*models.WorkflowExecution, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, persistence.NewStoreError("List", "execution", "", err)
	}

	defer closeRows(ctx, r.logger, rows)

	executions := make([]*models.WorkflowExecution, 0)

	for rows.Next() {
		execution, err := scanExecution(rows)
		if err != nil {
			return nil, persistence.NewStoreError("List", "execution", "", err)
		}

		executions = append(executions, execution)
	}

	if err := rows.Err(); err != nil {
		return nil, persistence.NewStoreError("List", "execution", "", err)
	}

	return executions, nil
}

func scanExecution(row rowScanner) (*models.WorkflowExecution, error) {
	var (
		execution   models.WorkflowExecution
		triggerData []byte
		variables   []byte
		startedAt   sql.NullTime
		completedAt sql.NullTime
	)

	err := row.Scan(
		&execution.ID,
		&execution.TenantID,
		&execution.DefinitionID,
		&execution.ExecutionKey,
		&execution.Status,
		&execution.TriggerType,
		&triggerData,
		&variables,
		&execution.CurrentStep,
		&execution.Progress,
		&startedAt,
		&completedAt,
		&execution.ErrorMessage,
		&execution.CreatedAt,
		&execution.UpdatedAt,
		&execution.LockVersion,
	)
	if err != nil {
		return nil, err
	}

	if err := unmarshalJSON(triggerData, &execution.TriggerData); err != nil {
		return nil, err
	}

	if err := unmarshalJSON(variables, &execution.Variables); err != nil {
		return nil, err
	}

	execution.StartedAt = timePtr(startedAt)
	execution.CompletedAt = timePtr(completedAt)

	return &execution, nil
}
