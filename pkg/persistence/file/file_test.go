package file

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixflow/helixflow/pkg/models"
	"github.com/helixflow/helixflow/pkg/persistence"
)

func testPersistence(t *testing.T) *Persistence {
	t.Helper()

	return NewPersistence(t.TempDir())
}

func TestDefinitionRepository_TenantIsolation(t *testing.T) {
	p := testPersistence(t)
	ctx := context.Background()

	def := &models.WorkflowDefinition{ID: "def-1", TenantID: "tenant-1", Name: "order approval", Version: "1.0"}
	require.NoError(t, p.Definitions().Save(ctx, def))

	loaded, err := p.Definitions().GetByID(ctx, "tenant-1", "def-1")
	require.NoError(t, err)
	assert.Equal(t, "order approval", loaded.Name)

	// Another tenant sees not-found, not an authorization error.
	_, err = p.Definitions().GetByID(ctx, "tenant-2", "def-1")
	assert.ErrorIs(t, err, persistence.ErrDefinitionNotFound)
}

func TestDefinitionRepository_LatestVersion(t *testing.T) {
	p := testPersistence(t)
	ctx := context.Background()

	for i, version := range []string{"1.0", "1.2", "1.10", "2.0"} {
		def := &models.WorkflowDefinition{
			ID:       "def-" + string(rune('a'+i)),
			TenantID: "tenant-1",
			Name:     "order approval",
			Version:  version,
		}
		require.NoError(t, p.Definitions().Save(ctx, def))
	}

	latest, err := p.Definitions().LatestVersion(ctx, "tenant-1", "order approval")
	require.NoError(t, err)
	assert.Equal(t, "2.0", latest)

	// Numeric segment comparison: 1.10 > 1.2.
	assert.True(t, versionLess("1.2", "1.10"))

	latest, err = p.Definitions().LatestVersion(ctx, "tenant-1", "unknown")
	require.NoError(t, err)
	assert.Empty(t, latest)
}

func TestDefinitionRepository_ListFilters(t *testing.T) {
	p := testPersistence(t)
	ctx := context.Background()

	require.NoError(t, p.Definitions().Save(ctx, &models.WorkflowDefinition{
		ID: "def-1", TenantID: "tenant-1", Name: "a", Version: "1.0", Category: "finance", IsPublished: true, IsActive: true,
	}))
	require.NoError(t, p.Definitions().Save(ctx, &models.WorkflowDefinition{
		ID: "def-2", TenantID: "tenant-1", Name: "b", Version: "1.0", Category: "hr",
	}))

	published, err := p.Definitions().List(ctx, "tenant-1", persistence.ListDefinitionsOptions{OnlyPublished: true})
	require.NoError(t, err)
	require.Len(t, published, 1)
	assert.Equal(t, "def-1", published[0].ID)

	hr, err := p.Definitions().List(ctx, "tenant-1", persistence.ListDefinitionsOptions{Category: "hr"})
	require.NoError(t, err)
	require.Len(t, hr, 1)
	assert.Equal(t, "def-2", hr[0].ID)
}

func TestExecutionRepository_OptimisticLocking(t *testing.T) {
	p := testPersistence(t)
	ctx := context.Background()

	execution := &models.WorkflowExecution{ID: "exec-1", TenantID: "tenant-1", Status: models.ExecutionPending}
	require.NoError(t, p.Executions().Create(ctx, execution))

	first, err := p.Executions().GetByID(ctx, "tenant-1", "exec-1")
	require.NoError(t, err)

	second, err := p.Executions().GetByID(ctx, "tenant-1", "exec-1")
	require.NoError(t, err)

	first.Status = models.ExecutionRunning
	require.NoError(t, p.Executions().Update(ctx, first))

	// The second copy still carries the old version.
	second.Status = models.ExecutionCancelled
	err = p.Executions().Update(ctx, second)
	assert.ErrorIs(t, err, persistence.ErrConcurrentUpdate)

	current, err := p.Executions().GetByID(ctx, "tenant-1", "exec-1")
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionRunning, current.Status)
}

func TestExecutionRepository_GetByKey(t *testing.T) {
	p := testPersistence(t)
	ctx := context.Background()

	execution := &models.WorkflowExecution{
		ID:           "exec-1",
		TenantID:     "tenant-1",
		ExecutionKey: "tenant-1-def-1-123-abcd",
		Status:       models.ExecutionPending,
	}
	require.NoError(t, p.Executions().Create(ctx, execution))

	loaded, err := p.Executions().GetByKey(ctx, "tenant-1-def-1-123-abcd")
	require.NoError(t, err)
	assert.Equal(t, "exec-1", loaded.ID)

	_, err = p.Executions().GetByKey(ctx, "missing")
	assert.ErrorIs(t, err, persistence.ErrExecutionNotFound)
}

func TestStepExecutionRepository_CountByStatus(t *testing.T) {
	p := testPersistence(t)
	ctx := context.Background()

	for i, status := range []models.StepStatus{models.StepCompleted, models.StepCompleted, models.StepFailed} {
		record := &models.WorkflowStepExecution{
			ID:          "step-exec-" + string(rune('a'+i)),
			ExecutionID: "exec-1",
			StepID:      "step-" + string(rune('a'+i)),
			Status:      status,
		}
		require.NoError(t, p.Steps().Save(ctx, record))
	}

	counts, err := p.Steps().CountByStatus(ctx, "exec-1")
	require.NoError(t, err)
	assert.Equal(t, 2, counts[models.StepCompleted])
	assert.Equal(t, 1, counts[models.StepFailed])
}

func TestRuleRepository_ListActiveOrdering(t *testing.T) {
	p := testPersistence(t)
	ctx := context.Background()

	rules := []*models.BusinessRule{
		{ID: "rule-b", TenantID: "tenant-1", Name: "b", EntityType: "order", Priority: 10, IsActive: true},
		{ID: "rule-a", TenantID: "tenant-1", Name: "a", EntityType: "order", Priority: 10, IsActive: true},
		{ID: "rule-c", TenantID: "tenant-1", Name: "c", EntityType: "order", Priority: 99, IsActive: true},
		{ID: "rule-d", TenantID: "tenant-1", Name: "d", EntityType: "order", Priority: 50, IsActive: false},
		{ID: "rule-e", TenantID: "tenant-1", Name: "e", EntityType: "invoice", Priority: 50, IsActive: true},
	}
	for _, rule := range rules {
		require.NoError(t, p.Rules().Save(ctx, rule))
	}

	active, err := p.Rules().ListActive(ctx, "tenant-1", "order")
	require.NoError(t, err)
	require.Len(t, active, 3)

	// Priority desc, id asc on ties. Inactive and other entity types excluded.
	assert.Equal(t, "rule-c", active[0].ID)
	assert.Equal(t, "rule-a", active[1].ID)
	assert.Equal(t, "rule-b", active[2].ID)
}

func TestRuleExecutionRepository_ListByEntity(t *testing.T) {
	p := testPersistence(t)
	ctx := context.Background()

	records := []*models.RuleExecution{
		{ID: "re-1", TenantID: "tenant-1", RuleID: "rule-1", EntityType: "order", EntityID: "o-1", Status: models.RuleCompleted},
		{ID: "re-2", TenantID: "tenant-1", RuleID: "rule-1", EntityType: "order", EntityID: "o-2", Status: models.RuleSkipped},
		{ID: "re-3", TenantID: "tenant-2", RuleID: "rule-9", EntityType: "order", EntityID: "o-1", Status: models.RuleCompleted},
	}
	for _, record := range records {
		require.NoError(t, p.RuleExecutions().Save(ctx, record))
	}

	matched, err := p.RuleExecutions().ListByEntity(ctx, "tenant-1", "order", "o-1")
	require.NoError(t, err)
	require.Len(t, matched, 1)
	assert.Equal(t, "re-1", matched[0].ID)

	counts, err := p.RuleExecutions().CountByStatus(ctx, "tenant-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts[models.RuleCompleted])
	assert.Equal(t, int64(1), counts[models.RuleSkipped])
}
