// Package persistence provides the data storage abstraction for definitions,
// executions and business rules. All lookups are tenant-scoped.
package persistence

import (
	"context"

	"github.com/helixflow/helixflow/pkg/models"
)

// ListDefinitionsOptions filters and pages definition listings.
type ListDefinitionsOptions struct {
	Limit         int
	Offset        int
	Category      string
	OnlyPublished bool
	OnlyActive    bool
}

// DefinitionRepository stores workflow definitions.
type DefinitionRepository interface {
	Save(ctx context.Context, def *models.WorkflowDefinition) error
	GetByID(ctx context.Context, tenantID, id string) (*models.WorkflowDefinition, error)
	List(ctx context.Context, tenantID string, opts ListDefinitionsOptions) ([]*models.WorkflowDefinition, error)
	// LatestVersion returns the highest version string recorded for a
	// definition name, or "" when the name is unused.
	LatestVersion(ctx context.Context, tenantID, name string) (string, error)
	Delete(ctx context.Context, tenantID, id string) error
}

// ExecutionRepository stores workflow executions. Update enforces optimistic
// locking via WorkflowExecution.LockVersion and returns ErrConcurrentUpdate
// on a stale write.
type ExecutionRepository interface {
	Create(ctx context.Context, execution *models.WorkflowExecution) error
	Update(ctx context.Context, execution *models.WorkflowExecution) error
	GetByID(ctx context.Context, tenantID, id string) (*models.WorkflowExecution, error)
	GetByKey(ctx context.Context, executionKey string) (*models.WorkflowExecution, error)
	ListByStatus(ctx context.Context, tenantID string, status models.ExecutionStatus) ([]*models.WorkflowExecution, error)
	ListByDefinition(ctx context.Context, tenantID, definitionID string) ([]*models.WorkflowExecution, error)
	CountByStatus(ctx context.Context, tenantID string) (map[models.ExecutionStatus]int64, error)
}

// StepExecutionRepository stores per-step execution records.
type StepExecutionRepository interface {
	Save(ctx context.Context, step *models.WorkflowStepExecution) error
	GetByID(ctx context.Context, id string) (*models.WorkflowStepExecution, error)
	GetByExecutionAndStep(ctx context.Context, executionID, stepID string) (*models.WorkflowStepExecution, error)
	ListByExecution(ctx context.Context, executionID string) ([]*models.WorkflowStepExecution, error)
	CountByStatus(ctx context.Context, executionID string) (map[models.StepStatus]int, error)
}

// RuleRepository stores business rules.
type RuleRepository interface {
	Save(ctx context.Context, rule *models.BusinessRule) error
	GetByID(ctx context.Context, tenantID, id string) (*models.BusinessRule, error)
	List(ctx context.Context, tenantID string) ([]*models.BusinessRule, error)
	// ListActive returns active rules for the entity type ordered by
	// descending priority, ties broken by rule id.
	ListActive(ctx context.Context, tenantID, entityType string) ([]*models.BusinessRule, error)
	Delete(ctx context.Context, tenantID, id string) error
}

// RuleExecutionRepository stores immutable rule audit records.
type RuleExecutionRepository interface {
	Save(ctx context.Context, record *models.RuleExecution) error
	ListByRule(ctx context.Context, tenantID, ruleID string) ([]*models.RuleExecution, error)
	ListByEntity(ctx context.Context, tenantID, entityType, entityID string) ([]*models.RuleExecution, error)
	CountByStatus(ctx context.Context, tenantID string) (map[models.RuleExecutionStatus]int64, error)
}

type Persistence interface {
	Definitions() DefinitionRepository
	Executions() ExecutionRepository
	Steps() StepExecutionRepository
	Rules() RuleRepository
	RuleExecutions() RuleExecutionRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}
