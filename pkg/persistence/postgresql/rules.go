package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"

	"github.com/helixflow/helixflow/pkg/models"
	"github.com/helixflow/helixflow/pkg/persistence"
)

// RuleRepository handles business rule database operations.
type RuleRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewRuleRepository(db *sql.DB, logger *slog.Logger) *RuleRepository {
	return &RuleRepository{db: db, logger: logger}
}

const ruleColumns = `
	id
  , tenant_id
  , name
  , entity_type
  , rule_type
  , priority
  , is_active
  , conditions
  , actions
  , created_at
  , updated_at
`

func (r *RuleRepository) Save(ctx context.Context, rule *models.BusinessRule) error {
	conditions, err := marshalJSON(rule.Conditions)
	if err != nil {
		return err
	}

	actions, err := marshalJSON(rule.Actions)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO business_rules (` + ruleColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			entity_type = EXCLUDED.entity_type,
			rule_type = EXCLUDED.rule_type,
			priority = EXCLUDED.priority,
			is_active = EXCLUDED.is_active,
			conditions = EXCLUDED.conditions,
			actions = EXCLUDED.actions,
			updated_at = EXCLUDED.updated_at
	`

	_, err = r.db.ExecContext(ctx, query,
		rule.ID,
		rule.TenantID,
		rule.Name,
		rule.EntityType,
		rule.RuleType,
		rule.Priority,
		rule.IsActive,
		conditions,
		actions,
		rule.CreatedAt,
		rule.UpdatedAt,
	)
	if err != nil {
		return persistence.NewStoreError("Save", "rule", rule.ID, err)
	}

	return nil
}

func (r *RuleRepository) GetByID(ctx context.Context, tenantID, id string) (*models.BusinessRule, error) {
	query := `
		SELECT ` + ruleColumns + `
		FROM business_rules
		WHERE id = $1 AND tenant_id = $2
	`

	rule, err := scanRule(r.db.QueryRowContext(ctx, query, id, tenantID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrRuleNotFound
		}

		return nil, persistence.NewStoreError("GetByID", "rule", id, err)
	}

	return rule, nil
}

func (r *RuleRepository) List(ctx context.Context, tenantID string) ([]*models.BusinessRule, error) {
	query := `
		SELECT ` + ruleColumns + `
		FROM business_rules
		WHERE tenant_id = $1
		ORDER BY priority DESC, id ASC
	`

	return r.list(ctx, query, tenantID)
}

func (r *RuleRepository) ListActive(ctx context.Context, tenantID, entityType string) ([]*models.BusinessRule, error) {
	query := `
		SELECT ` + ruleColumns + `
		FROM business_rules
		WHERE tenant_id = $1 AND entity_type = $2 AND is_active
		ORDER BY priority DESC, id ASC
	`

	return r.list(ctx, query, tenantID, entityType)
}

func (r *RuleRepository) Delete(ctx context.Context, tenantID, id string) error {
	result, err := r.db.ExecContext(ctx,
		"DELETE FROM business_rules WHERE id = $1 AND tenant_id = $2", id, tenantID)
	if err != nil {
		return persistence.NewStoreError("Delete", "rule", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return persistence.NewStoreError("Delete", "rule", id, err)
	}

	if affected == 0 {
		return persistence.ErrRuleNotFound
	}

	return nil
}

func (r *RuleRepository) list(ctx context.Context, query string, args ...any) ([]*models.BusinessRule, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, persistence.NewStoreError("List", "rule", "", err)
	}

	defer closeRows(ctx, r.logger, rows)

	rules := make([]*models.BusinessRule, 0)

	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, persistence.NewStoreError("List", "rule", "", err)
		}

		rules = append(rules, rule)
	}

	if err := rows.Err(); err != nil {
		return nil, persistence.NewStoreError("List", "rule", "", err)
	}

	return rules, nil
}

func scanRule(row rowScanner) (*models.BusinessRule, error) {
	var (
		rule       models.BusinessRule
		conditions []byte
		actions    []byte
	)

	err := row.Scan(
		&rule.ID,
		&rule.TenantID,
		&rule.Name,
		&rule.EntityType,
		&rule.RuleType,
		&rule.Priority,
		&rule.IsActive,
		&conditions,
		&actions,
		&rule.CreatedAt,
		&rule.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := unmarshalJSON(conditions, &rule.Conditions); err != nil {
		return nil, err
	}

	if err := unmarshalJSON(actions, &rule.Actions); err != nil {
		return nil, err
	}

	return &rule, nil
}

// RuleExecutionRepository stores immutable rule audit records.
type RuleExecutionRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewRuleExecutionRepository(db *sql.DB, logger *slog.Logger) *RuleExecutionRepository {
	return &RuleExecutionRepository{db: db, logger: logger}
}

const ruleExecutionColumns = `
	id
  , tenant_id
  , rule_id
  , entity_id
  , entity_type
  , trigger_event
  , input_data
  , status
  , output_data
  , error_message
  , duration_ms
  , created_at
`

func (r *RuleExecutionRepository) Save(ctx context.Context, record *models.RuleExecution) error {
	inputData, err := marshalJSON(record.InputData)
	if err != nil {
		return err
	}

	outputData, err := marshalJSON(record.OutputData)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO rule_executions (` + ruleExecutionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	_, err = r.db.ExecContext(ctx, query,
		record.ID,
		record.TenantID,
		record.RuleID,
		record.EntityID,
		record.EntityType,
		record.TriggerEvent,
		inputData,
		record.Status,
		outputData,
		record.ErrorMessage,
		record.DurationMs,
		record.CreatedAt,
	)
	if err != nil {
		return persistence.NewStoreError("Save", "rule_execution", record.ID, err)
	}

	return nil
}

func (r *RuleExecutionRepository) ListByRule(ctx context.Context, tenantID, ruleID string) ([]*models.RuleExecution, error) {
	query := `
		SELECT ` + ruleExecutionColumns + `
		FROM rule_executions
		WHERE tenant_id = $1 AND rule_id = $2
		ORDER BY created_at ASC
	`

	return r.list(ctx, query, tenantID, ruleID)
}

func (r *RuleExecutionRepository) ListByEntity(ctx context.Context, tenantID, entityType, entityID string) ([]*models.RuleExecution, error) {
	query := `
		SELECT ` + ruleExecutionColumns + `
		FROM rule_executions
		WHERE tenant_id = $1 AND entity_type = $2 AND entity_id = $3
		ORDER BY created_at ASC
	`

	return r.list(ctx, query, tenantID, entityType, entityID)
}

func (r *RuleExecutionRepository) CountByStatus(ctx context.Context, tenantID string) (map[models.RuleExecutionStatus]int64, error) {
	query := `
		SELECT status, COUNT(*)
		FROM rule_executions
		WHERE tenant_id = $1
		GROUP BY status
	`

	rows, err := r.db.QueryContext(ctx, query, tenantID)
	if err != nil {
		return nil, persistence.NewStoreError("CountByStatus", "rule_execution", tenantID, err)
	}

	defer closeRows(ctx, r.logger, rows)

	counts := make(map[models.RuleExecutionStatus]int64)

	for rows.Next() {
		var (
			status models.RuleExecutionStatus
			count  int64
		)

		if err := rows.Scan(&status, &count); err != nil {
			return nil, persistence.NewStoreError("CountByStatus", "rule_execution", tenantID, err)
		}

		counts[status] = count
	}

	if err := rows.Err(); err != nil {
		return nil, persistence.NewStoreError("CountByStatus", "rule_execution", tenantID, err)
	}

	return counts, nil
}

func (r *RuleExecutionRepository) list(ctx context.Context, query string, args ...any) ([]*models.RuleExecution, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, persistence.NewStoreError("List", "rule_execution", "", err)
	}

	defer closeRows(ctx, r.logger, rows)

	records := make([]*models.RuleExecution, 0)

	for rows.Next() {
		record, err := scanRuleExecution(rows)
		if err != nil {
			return nil, persistence.NewStoreError("List", "rule_execution", "", err)
		}

		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, persistence.NewStoreError("List", "rule_execution", "", err)
	}

	return records, nil
}

func scanRuleExecution(row rowScanner) (*models.RuleExecution, error) {
	var (
		record     models.RuleExecution
		inputData  []byte
		outputData []byte
	)

	err := row.Scan(
		&record.ID,
		&record.TenantID,
		&record.RuleID,
		&record.EntityID,
		&record.EntityType,
		&record.TriggerEvent,
		&inputData,
		&record.Status,
		&outputData,
		&record.ErrorMessage,
		&record.DurationMs,
		&record.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := unmarshalJSON(inputData, &record.InputData); err != nil {
		return nil, err
	}

	if err := unmarshalJSON(outputData, &record.OutputData); err != nil {
		return nil, err
	}

	return &record, nil
}
