package schedule

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixflow/helixflow/pkg/models"
	"github.com/helixflow/helixflow/pkg/persistence/file"
)

type recordingStarter struct {
	mu      sync.Mutex
	started []string
}

func (r *recordingStarter) Start(
	_ context.Context,
	tenantID, definitionID, _ string,
	_, _ map[string]any,
) (*models.WorkflowExecution, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.started = append(r.started, tenantID+"/"+definitionID)

	return &models.WorkflowExecution{TenantID: tenantID, DefinitionID: definitionID}, nil
}

func newTestScheduler(t *testing.T) (*Scheduler, *file.Persistence, *recordingStarter) {
	t.Helper()

	store := file.NewPersistence(t.TempDir())
	starter := &recordingStarter{}
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	return NewScheduler(store, starter, logger), store, starter
}

func storeDefinition(t *testing.T, store *file.Persistence, cronExpr string, startable bool) *models.WorkflowDefinition {
	t.Helper()

	def := &models.WorkflowDefinition{
		ID:          uuid.New().String(),
		TenantID:    "tenant-1",
		Name:        "nightly sweep",
		Version:     "1.0",
		IsActive:    startable,
		IsPublished: startable,
		Graph: models.Graph{
			Steps: []*models.Step{
				{ID: "start", Name: "Start", Type: models.StepTypeEvent, Kind: models.StepKindStart},
				{ID: "end", Name: "End", Type: models.StepTypeEvent, Kind: models.StepKindEnd},
			},
			Connections: []*models.Connection{{ID: "c1", From: "start", To: "end"}},
		},
	}

	if cronExpr != "" {
		def.TriggerConfig = map[string]any{"type": "schedule", "cron": cronExpr}
	}

	if startable {
		now := time.Now().UTC()
		def.PublishedAt = &now
	}

	require.NoError(t, store.Definitions().Save(context.Background(), def))

	return def
}

func TestScheduler_Sync_RegistersStartableDefinitions(t *testing.T) {
	scheduler, store, _ := newTestScheduler(t)
	ctx := context.Background()

	scheduled := storeDefinition(t, store, "0 3 * * *", true)
	storeDefinition(t, store, "", true) // no schedule trigger

	draft := storeDefinition(t, store, "0 3 * * *", false)

	require.NoError(t, scheduler.Sync(ctx, "tenant-1"))

	expr, ok := scheduler.Scheduled("tenant-1", scheduled.ID)
	require.True(t, ok)
	assert.Equal(t, "0 3 * * *", expr)

	_, ok = scheduler.Scheduled("tenant-1", draft.ID)
	assert.False(t, ok, "draft definitions must not be scheduled")
}

func TestScheduler_Sync_FollowsExpressionChanges(t *testing.T) {
	scheduler, store, _ := newTestScheduler(t)
	ctx := context.Background()

	def := storeDefinition(t, store, "0 3 * * *", true)
	require.NoError(t, scheduler.Sync(ctx, "tenant-1"))

	def.TriggerConfig["cron"] = "30 6 * * *"
	require.NoError(t, store.Definitions().Save(ctx, def))
	require.NoError(t, scheduler.Sync(ctx, "tenant-1"))

	expr, ok := scheduler.Scheduled("tenant-1", def.ID)
	require.True(t, ok)
	assert.Equal(t, "30 6 * * *", expr)
}

func TestScheduler_Sync_DropsUnpublishedDefinitions(t *testing.T) {
	scheduler, store, _ := newTestScheduler(t)
	ctx := context.Background()

	def := storeDefinition(t, store, "0 3 * * *", true)
	require.NoError(t, scheduler.Sync(ctx, "tenant-1"))

	def.IsPublished = false
	require.NoError(t, store.Definitions().Save(ctx, def))
	require.NoError(t, scheduler.Sync(ctx, "tenant-1"))

	_, ok := scheduler.Scheduled("tenant-1", def.ID)
	assert.False(t, ok)
}

func TestScheduler_Sync_SkipsInvalidCronExpression(t *testing.T) {
	scheduler, store, _ := newTestScheduler(t)

	def := storeDefinition(t, store, "not a cron line", true)

	require.NoError(t, scheduler.Sync(context.Background(), "tenant-1"))

	_, ok := scheduler.Scheduled("tenant-1", def.ID)
	assert.False(t, ok)
}

func TestScheduler_Job_StartsExecution(t *testing.T) {
	scheduler, store, starter := newTestScheduler(t)

	def := storeDefinition(t, store, "0 3 * * *", true)

	scheduler.job("tenant-1", def.ID)()

	starter.mu.Lock()
	defer starter.mu.Unlock()
	require.Len(t, starter.started, 1)
	assert.Equal(t, "tenant-1/"+def.ID, starter.started[0])
}
