package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/helixflow/helixflow/pkg/models"
	"github.com/helixflow/helixflow/pkg/persistence"
)

// MockDefinitionRepository is a mock implementation of persistence.DefinitionRepository interface.
type MockDefinitionRepository struct {
	mock.Mock
}

func (m *MockDefinitionRepository) Save(ctx context.Context, def *models.WorkflowDefinition) error {
	args := m.Called(ctx, def)

	return args.Error(0)
}

func (m *MockDefinitionRepository) GetByID(ctx context.Context, tenantID, id string) (*models.WorkflowDefinition, error) {
	args := m.Called(ctx, tenantID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.WorkflowDefinition), args.Error(1)
}

func (m *MockDefinitionRepository) List(ctx context.Context, tenantID string, opts persistence.ListDefinitionsOptions) ([]*models.WorkflowDefinition, error) {
	args := m.Called(ctx, tenantID, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.WorkflowDefinition), args.Error(1)
}

func (m *MockDefinitionRepository) LatestVersion(ctx context.Context, tenantID, name string) (string, error) {
	args := m.Called(ctx, tenantID, name)

	return args.String(0), args.Error(1)
}

func (m *MockDefinitionRepository) Delete(ctx context.Context, tenantID, id string) error {
	args := m.Called(ctx, tenantID, id)

	return args.Error(0)
}

// MockExecutionRepository is a mock implementation of persistence.ExecutionRepository interface.
type MockExecutionRepository struct {
	mock.Mock
}

func (m *MockExecutionRepository) Create(ctx context.Context, execution *models.WorkflowExecution) error {
	args := m.Called(ctx, execution)

	return args.Error(0)
}

func (m *MockExecutionRepository) Update(ctx context.Context, execution *models.WorkflowExecution) error {
	args := m.Called(ctx, execution)

	return args.Error(0)
}

func (m *MockExecutionRepository) GetByID(ctx context.Context, tenantID, id string) (*models.WorkflowExecution, error) {
	args := m.Called(ctx, tenantID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.WorkflowExecution), args.Error(1)
}

func (m *MockExecutionRepository) GetByKey(ctx context.Context, executionKey string) (*models.WorkflowExecution, error) {
	args := m.Called(ctx, executionKey)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.WorkflowExecution), args.Error(1)
}

func (m *MockExecutionRepository) ListByStatus(ctx context.Context, tenantID string, status models.ExecutionStatus) ([]*models.WorkflowExecution, error) {
	args := m.Called(ctx, tenantID, status)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.WorkflowExecution), args.Error(1)
}

func (m *MockExecutionRepository) ListByDefinition(ctx context.Context, tenantID, definitionID string) ([]*models.WorkflowExecution, error) {
	args := m.Called(ctx, tenantID, definitionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.WorkflowExecution), args.Error(1)
}

func (m *MockExecutionRepository) CountByStatus(ctx context.Context, tenantID string) (map[models.ExecutionStatus]int64, error) {
	args := m.Called(ctx, tenantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(map[models.ExecutionStatus]int64), args.Error(1)
}

// MockStepExecutionRepository is a mock implementation of persistence.StepExecutionRepository interface.
type MockStepExecutionRepository struct {
	mock.Mock
}

func (m *MockStepExecutionRepository) Save(ctx context.Context, step *models.WorkflowStepExecution) error {
	args := m.Called(ctx, step)

	return args.Error(0)
}

func (m *MockStepExecutionRepository) GetByID(ctx context.Context, id string) (*models.WorkflowStepExecution, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.WorkflowStepExecution), args.Error(1)
}

func (m *MockStepExecutionRepository) GetByExecutionAndStep(ctx context.Context, executionID, stepID string) (*models.WorkflowStepExecution, error) {
	args := m.Called(ctx, executionID, stepID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.WorkflowStepExecution), args.Error(1)
}

func (m *MockStepExecutionRepository) ListByExecution(ctx context.Context, executionID string) ([]*models.WorkflowStepExecution, error) {
	args := m.Called(ctx, executionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.WorkflowStepExecution), args.Error(1)
}

func (m *MockStepExecutionRepository) CountByStatus(ctx context.Context, executionID string) (map[models.StepStatus]int, error) {
	args := m.Called(ctx, executionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(map[models.StepStatus]int), args.Error(1)
}

// MockRuleRepository is a mock implementation of persistence.RuleRepository interface.
type MockRuleRepository struct {
	mock.Mock
}

func (m *MockRuleRepository) Save(ctx context.Context, rule *models.BusinessRule) error {
	args := m.Called(ctx, rule)

	return args.Error(0)
}

func (m *MockRuleRepository) GetByID(ctx context.Context, tenantID, id string) (*models.BusinessRule, error) {
	args := m.Called(ctx, tenantID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.BusinessRule), args.Error(1)
}

func (m *MockRuleRepository) List(ctx context.Context, tenantID string) ([]*models.BusinessRule, error) {
	args := m.Called(ctx, tenantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.BusinessRule), args.Error(1)
}

func (m *MockRuleRepository) ListActive(ctx context.Context, tenantID, entityType string) ([]*models.BusinessRule, error) {
	args := m.Called(ctx, tenantID, entityType)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.BusinessRule), args.Error(1)
}

func (m *MockRuleRepository) Delete(ctx context.Context, tenantID, id string) error {
	args := m.Called(ctx, tenantID, id)

	return args.Error(0)
}

// MockRuleExecutionRepository is a mock implementation of persistence.RuleExecutionRepository interface.
type MockRuleExecutionRepository struct {
	mock.Mock
}

func (m *MockRuleExecutionRepository) Save(ctx context.Context, record *models.RuleExecution) error {
	args := m.Called(ctx, record)

	return args.Error(0)
}

func (m *MockRuleExecutionRepository) ListByRule(ctx context.Context, tenantID, ruleID string) ([]*models.RuleExecution, error) {
	args := m.Called(ctx, tenantID, ruleID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.RuleExecution), args.Error(1)
}

func (m *MockRuleExecutionRepository) ListByEntity(ctx context.Context, tenantID, entityType, entityID string) ([]*models.RuleExecution, error) {
	args := m.Called(ctx, tenantID, entityType, entityID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.RuleExecution), args.Error(1)
}

func (m *MockRuleExecutionRepository) CountByStatus(ctx context.Context, tenantID string) (map[models.RuleExecutionStatus]int64, error) {
	args := m.Called(ctx, tenantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(map[models.RuleExecutionStatus]int64), args.Error(1)
}

// MockPersistence bundles the repository mocks behind the persistence.Persistence interface.
type MockPersistence struct {
	mock.Mock

	DefinitionRepo    *MockDefinitionRepository
	ExecutionRepo     *MockExecutionRepository
	StepRepo          *MockStepExecutionRepository
	RuleRepo          *MockRuleRepository
	RuleExecutionRepo *MockRuleExecutionRepository
}

func NewMockPersistence() *MockPersistence {
	return &MockPersistence{
		DefinitionRepo:    &MockDefinitionRepository{},
		ExecutionRepo:     &MockExecutionRepository{},
		StepRepo:          &MockStepExecutionRepository{},
		RuleRepo:          &MockRuleRepository{},
		RuleExecutionRepo: &MockRuleExecutionRepository{},
	}
}

func (m *MockPersistence) Definitions() persistence.DefinitionRepository { return m.DefinitionRepo }

func (m *MockPersistence) Executions() persistence.ExecutionRepository { return m.ExecutionRepo }

func (m *MockPersistence) Steps() persistence.StepExecutionRepository { return m.StepRepo }

func (m *MockPersistence) Rules() persistence.RuleRepository { return m.RuleRepo }

func (m *MockPersistence) RuleExecutions() persistence.RuleExecutionRepository {
	return m.RuleExecutionRepo
}

func (m *MockPersistence) HealthCheck(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}

func (m *MockPersistence) Close(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}
