package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"

	"github.com/helixflow/helixflow/pkg/models"
	"github.com/helixflow/helixflow/pkg/persistence"
)

// StepExecutionRepository handles per-step execution records.
type StepExecutionRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewStepExecutionRepository(db *sql.DB, logger *slog.Logger) *StepExecutionRepository {
	return &StepExecutionRepository{db: db, logger: logger}
}

const stepColumns = `
	id
  , execution_id
  , step_id
  , step_name
  , step_type
  , status
  , input_data
  , output_data
  , started_at
  , completed_at
  , error_message
`

func (r *StepExecutionRepository) Save(ctx context.Context, step *models.WorkflowStepExecution) error {
	inputData, err := marshalJSON(step.InputData)
	if err != nil {
		return err
	}

	outputData, err := marshalJSON(step.OutputData)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO workflow_step_executions (` + stepColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			input_data = EXCLUDED.input_data,
			output_data = EXCLUDED.output_data,
			started_at = EXCLUDED.started_at,
			completed_at = EXCLUDED.completed_at,
			error_message = EXCLUDED.error_message
	`

	_, err = r.db.ExecContext(ctx, query,
		step.ID,
		step.ExecutionID,
		step.StepID,
		step.StepName,
		step.StepType,
		step.Status,
		inputData,
		outputData,
		nullableTime(step.StartedAt),
		nullableTime(step.CompletedAt),
		step.ErrorMessage,
	)
	if err != nil {
		return persistence.NewStoreError("Save", "step_execution", step.ID, err)
	}

	return nil
}

func (r *StepExecutionRepository) GetByID(ctx context.Context, id string) (*models.WorkflowStepExecution, error) {
	query := `
		SELECT ` + stepColumns + `
		FROM workflow_step_executions
		WHERE id = $1
	`

	step, err := scanStep(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrStepExecutionNotFound
		}

		return nil, persistence.NewStoreError("GetByID", "step_execution", id, err)
	}

	return step, nil
}

func (r *StepExecutionRepository) GetByExecutionAndStep(ctx context.Context, executionID, stepID string) (*models.WorkflowStepExecution, error) {
	query := `
		SELECT ` + stepColumns + `
		FROM workflow_step_executions
		WHERE execution_id = $1 AND step_id = $2
	`

	step, err := scanStep(r.db.QueryRowContext(ctx, query, executionID, stepID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrStepExecutionNotFound
		}

		return nil, persistence.NewStoreError("GetByExecutionAndStep", "step_execution", stepID, err)
	}

	return step, nil
}

func (r *StepExecutionRepository) ListByExecution(ctx context.Context, executionID string) ([]*models.WorkflowStepExecution, error) {
	query := `
		SELECT ` + stepColumns + `
		FROM workflow_step_executions
		WHERE execution_id = $1
		ORDER BY started_at ASC
	`

	rows, err := r.db.QueryContext(ctx, query, executionID)
	if err != nil {
		return nil, persistence.NewStoreError("ListByExecution", "step_execution", executionID, err)
	}

	defer closeRows(ctx, r.logger, rows)

	steps := make([]*models.WorkflowStepExecution, 0)

	for rows.Next() {
		step, err := scanStep(rows)
		if err != nil {
			return nil, persistence.NewStoreError("ListByExecution", "step_execution", executionID, err)
		}

		steps = append(steps, step)
	}

	if err := rows.Err(); err != nil {
		return nil, persistence.NewStoreError("ListByExecution", "step_execution", executionID, err)
	}

	return steps, nil
}

func (r *StepExecutionRepository) CountByStatus(ctx context.Context, executionID string) (map[models.StepStatus]int, error) {
	query := `
		SELECT status, COUNT(*)
		FROM workflow_step_executions
		WHERE execution_id = $1
		GROUP BY status
	`

	rows, err := r.db.QueryContext(ctx, query, executionID)
	if err != nil {
		return nil, persistence.NewStoreError("CountByStatus", "step_execution", executionID, err)
	}

	defer closeRows(ctx, r.logger, rows)

	counts := make(map[models.StepStatus]int)

	for rows.Next() {
		var (
			status models.StepStatus
			count  int
		)

		if err := rows.Scan(&status, &count); err != nil {
			return nil, persistence.NewStoreError("CountByStatus", "step_execution", executionID, err)
		}

		counts[status] = count
	}

	if err := rows.Err(); err != nil {
		return nil, persistence.NewStoreError("CountByStatus", "step_execution", executionID, err)
	}

	return counts, nil
}

func scanStep(row rowScanner) (*models.WorkflowStepExecution, error) {
	var (
		step        models.WorkflowStepExecution
		inputData   []byte
		outputData  []byte
		startedAt   sql.NullTime
		completedAt sql.NullTime
	)

	err := row.Scan(
		&step.ID,
		&step.ExecutionID,
		&step.StepID,
		&step.StepName,
		&step.StepType,
		&step.Status,
		&inputData,
		&outputData,
		&startedAt,
		&completedAt,
		&step.ErrorMessage,
	)
	if err != nil {
		return nil, err
	}

	if err := unmarshalJSON(inputData, &step.InputData); err != nil {
		return nil, err
	}

	if err := unmarshalJSON(outputData, &step.OutputData); err != nil {
		return nil, err
	}

	step.StartedAt = timePtr(startedAt)
	step.CompletedAt = timePtr(completedAt)

	return &step, nil
}
