// Package schedule starts workflow executions on cron expressions declared in
// a definition's trigger configuration.
package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/helixflow/helixflow/pkg/models"
	"github.com/helixflow/helixflow/pkg/persistence"
)

// Starter launches executions. Satisfied by the execution coordinator.
type Starter interface {
	Start(
		ctx context.Context,
		tenantID, definitionID, triggerType string,
		triggerData, variables map[string]any,
	) (*models.WorkflowExecution, error)
}

type entry struct {
	cronID cron.EntryID
	expr   string
}

// Scheduler keeps one cron job per startable definition that declares a
// schedule trigger. Sync reconciles the job table against the store; the
// definition itself stays the source of truth.
type Scheduler struct {
	persistence persistence.Persistence
	starter     Starter
	logger      *slog.Logger

	cron *cron.Cron

	mu      sync.Mutex
	entries map[string]entry
}

func NewScheduler(persistence persistence.Persistence, starter Starter, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		persistence: persistence,
		starter:     starter,
		logger:      logger.With("module", "scheduler"),
		cron: cron.New(cron.WithChain(
			cron.SkipIfStillRunning(cron.DefaultLogger),
			cron.Recover(cron.DefaultLogger),
		)),
		entries: make(map[string]entry),
	}
}

// Run reconciles on start and then on every refresh tick until the context
// is cancelled.
func (s *Scheduler) Run(ctx context.Context, tenants []string, refresh time.Duration) error {
	s.cron.Start()
	defer s.cron.Stop()

	sync := func() {
		for _, tenantID := range tenants {
			if err := s.Sync(ctx, tenantID); err != nil {
				s.logger.ErrorContext(ctx, "Failed to sync schedules", "tenant_id", tenantID, "error", err)
			}
		}
	}

	sync()

	ticker := time.NewTicker(refresh)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			sync()
		}
	}
}

// Sync registers a cron job for every startable definition of the tenant that
// declares a schedule trigger, and drops jobs whose definition no longer
// qualifies.
func (s *Scheduler) Sync(ctx context.Context, tenantID string) error {
	definitions, err := s.persistence.Definitions().List(ctx, tenantID, persistence.ListDefinitionsOptions{
		OnlyPublished: true,
		OnlyActive:    true,
	})
	if err != nil {
		return fmt.Errorf("failed to list definitions for scheduling: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]bool, len(definitions))

	for _, def := range definitions {
		expr := scheduleExpr(def)
		if expr == "" {
			continue
		}

		key := tenantID + "/" + def.ID
		seen[key] = true

		if existing, ok := s.entries[key]; ok {
			if existing.expr == expr {
				continue
			}

			s.cron.Remove(existing.cronID)
			delete(s.entries, key)
		}

		cronID, err := s.cron.AddFunc(expr, s.job(tenantID, def.ID))
		if err != nil {
			s.logger.WarnContext(ctx, "Skipping definition with invalid cron expression",
				"definition_id", def.ID,
				"cron", expr,
				"error", err,
			)

			continue
		}

		s.entries[key] = entry{cronID: cronID, expr: expr}
		s.logger.InfoContext(ctx, "Scheduled definition", "definition_id", def.ID, "cron", expr)
	}

	for key, existing := range s.entries {
		if tenantKey(key) != tenantID || seen[key] {
			continue
		}

		s.cron.Remove(existing.cronID)
		delete(s.entries, key)
		s.logger.InfoContext(ctx, "Unscheduled definition", "key", key)
	}

	return nil
}

// Scheduled returns the cron expression registered for a definition, if any.
func (s *Scheduler) Scheduled(tenantID, definitionID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.entries[tenantID+"/"+definitionID]

	return existing.expr, ok
}

func (s *Scheduler) job(tenantID, definitionID string) func() {
	return func() {
		ctx := context.Background()

		triggerData := map[string]any{
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		}

		_, err := s.starter.Start(ctx, tenantID, definitionID, "schedule", triggerData, nil)
		if err != nil {
			s.logger.ErrorContext(ctx, "Failed to start scheduled execution",
				"tenant_id", tenantID,
				"definition_id", definitionID,
				"error", err,
			)

			return
		}

		s.logger.InfoContext(ctx, "Started scheduled execution",
			"tenant_id", tenantID,
			"definition_id", definitionID,
		)
	}
}

// scheduleExpr extracts the cron expression from a definition's trigger
// configuration, or "" when the definition is not schedule-triggered.
func scheduleExpr(def *models.WorkflowDefinition) string {
	if def.TriggerConfig == nil {
		return ""
	}

	if kind, _ := def.TriggerConfig["type"].(string); kind != "schedule" {
		return ""
	}

	expr, _ := def.TriggerConfig["cron"].(string)

	return expr
}

func tenantKey(key string) string {
	for i := range key {
		if key[i] == '/' {
			return key[:i]
		}
	}

	return key
}
