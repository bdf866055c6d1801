package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixflow/helixflow/pkg/cache"
	"github.com/helixflow/helixflow/pkg/models"
	"github.com/helixflow/helixflow/pkg/persistence/file"
)

func newRuleService(t *testing.T) (*RuleService, *cache.Memory) {
	t.Helper()

	store := file.NewPersistence(t.TempDir())
	ruleCache := cache.NewMemory(time.Minute)

	return NewRuleService(store, ruleCache, testLogger()), ruleCache
}

func draftRule() *models.BusinessRule {
	return &models.BusinessRule{
		TenantID:   "tenant-1",
		Name:       "notify on large orders",
		EntityType: "order",
		Priority:   10,
		IsActive:   true,
		Conditions: models.ConditionGroup{
			{Field: "total", Operator: models.OpGreaterThan, Value: 1000},
		},
		Actions: []models.Action{
			{Type: models.ActionSendNotification, Params: map[string]any{
				"recipient": "ops",
				"message":   "large order ${id}",
			}},
		},
	}
}

func TestRuleService_Create_AssignsIdentity(t *testing.T) {
	service, _ := newRuleService(t)

	created, err := service.Create(context.Background(), draftRule())

	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.False(t, created.CreatedAt.IsZero())
	assert.Equal(t, created.CreatedAt, created.UpdatedAt)
}

func TestRuleService_Create_RejectsUnknownOperator(t *testing.T) {
	service, _ := newRuleService(t)

	rule := draftRule()
	rule.Conditions = models.ConditionGroup{
		{Field: "total", Operator: "approximately", Value: 1000},
	}

	_, err := service.Create(context.Background(), rule)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidRuleShape)
	assert.True(t, IsValidationError(err))
	assert.Contains(t, err.Error(), "approximately")
}

func TestRuleService_Create_RejectsUnknownActionType(t *testing.T) {
	service, _ := newRuleService(t)

	rule := draftRule()
	rule.Actions = []models.Action{{Type: "launch_missiles"}}

	_, err := service.Create(context.Background(), rule)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidRuleShape)
}

func TestRuleService_Create_RejectsMissingFields(t *testing.T) {
	service, _ := newRuleService(t)

	rule := draftRule()
	rule.EntityType = ""

	_, err := service.Create(context.Background(), rule)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidRuleShape)
}

func TestRuleService_Update_PreservesIdentity(t *testing.T) {
	service, _ := newRuleService(t)
	ctx := context.Background()

	created, err := service.Create(ctx, draftRule())
	require.NoError(t, err)

	replacement := draftRule()
	replacement.Name = "notify on huge orders"
	replacement.Priority = 50

	updated, err := service.Update(ctx, "tenant-1", created.ID, replacement)
	require.NoError(t, err)

	assert.Equal(t, created.ID, updated.ID)
	assert.Equal(t, created.TenantID, updated.TenantID)
	assert.Equal(t, created.CreatedAt, updated.CreatedAt)
	assert.Equal(t, "notify on huge orders", updated.Name)
	assert.Equal(t, 50, updated.Priority)
}

func TestRuleService_SetActive_TogglesWithoutContentChange(t *testing.T) {
	service, _ := newRuleService(t)
	ctx := context.Background()

	created, err := service.Create(ctx, draftRule())
	require.NoError(t, err)

	disabled, err := service.SetActive(ctx, "tenant-1", created.ID, false)
	require.NoError(t, err)
	assert.False(t, disabled.IsActive)
	assert.Equal(t, created.Name, disabled.Name)

	stored, err := service.Get(ctx, "tenant-1", created.ID)
	require.NoError(t, err)
	assert.False(t, stored.IsActive)
}

func TestRuleService_Mutations_InvalidateCache(t *testing.T) {
	service, ruleCache := newRuleService(t)
	ctx := context.Background()

	created, err := service.Create(ctx, draftRule())
	require.NoError(t, err)

	// Simulate the rule coordinator warming the cache.
	ruleCache.SetRules(ctx, "tenant-1", "order", []*models.BusinessRule{created})

	_, ok := ruleCache.GetRules(ctx, "tenant-1", "order")
	require.True(t, ok)

	_, err = service.SetActive(ctx, "tenant-1", created.ID, false)
	require.NoError(t, err)

	_, ok = ruleCache.GetRules(ctx, "tenant-1", "order")
	assert.False(t, ok, "mutation should drop the tenant's cached listings")
}

func TestRuleService_Delete_RemovesRule(t *testing.T) {
	service, _ := newRuleService(t)
	ctx := context.Background()

	created, err := service.Create(ctx, draftRule())
	require.NoError(t, err)

	require.NoError(t, service.Delete(ctx, "tenant-1", created.ID))

	_, err = service.Get(ctx, "tenant-1", created.ID)
	require.Error(t, err)
}
