package rules

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/helixflow/helixflow/pkg/cache"
	"github.com/helixflow/helixflow/pkg/eventbus"
	"github.com/helixflow/helixflow/pkg/events"
	"github.com/helixflow/helixflow/pkg/models"
	"github.com/helixflow/helixflow/pkg/otelhelper"
	"github.com/helixflow/helixflow/pkg/persistence"
)

// Coordinator looks up applicable rules for an entity event, evaluates their
// conditions, runs their actions and records one audit record per rule per
// trigger. One rule's failure never blocks evaluation of subsequent rules.
type Coordinator struct {
	persistence persistence.Persistence
	evaluator   *Evaluator
	executor    *Executor
	ruleCache   cache.RuleCache
	publisher   eventbus.EventPublisher
	tracer      trace.Tracer
	logger      *slog.Logger
}

func NewCoordinator(
	persistence persistence.Persistence,
	evaluator *Evaluator,
	executor *Executor,
	ruleCache cache.RuleCache,
	publisher eventbus.EventPublisher,
	logger *slog.Logger,
) *Coordinator {
	return &Coordinator{
		persistence: persistence,
		evaluator:   evaluator,
		executor:    executor,
		ruleCache:   ruleCache,
		publisher:   publisher,
		tracer:      otel.Tracer("rule_coordinator"),
		logger:      logger.With("module", "rule_coordinator"),
	}
}

// FireRules evaluates every active rule for (tenantID, entityType) against
// the record, in descending priority order (ties broken by rule id), and
// returns the audit records it persisted.
func (c *Coordinator) FireRules(
	ctx context.Context,
	tenantID, entityType, entityID, triggerEvent string,
	record map[string]any,
) ([]*models.RuleExecution, error) {
	rules, err := c.activeRules(ctx, tenantID, entityType)
	if err != nil {
		return nil, err
	}

	logger := c.logger.With(
		"tenant_id", tenantID,
		"entity_type", entityType,
		"entity_id", entityID,
		"trigger_event", triggerEvent,
	)
	logger.InfoContext(ctx, "Firing rules", "rule_count", len(rules))

	executions := make([]*models.RuleExecution, 0, len(rules))

	for _, rule := range rules {
		execution := c.fireOne(ctx, rule, entityID, triggerEvent, record)

		err := c.persistence.RuleExecutions().Save(ctx, execution)
		if err != nil {
			logger.ErrorContext(ctx, "Failed to record rule execution", "rule_id", rule.ID, "error", err)
		}

		c.announce(ctx, execution)
		executions = append(executions, execution)
	}

	return executions, nil
}

// fireOne evaluates and executes a single rule, capturing any failure into
// the audit record instead of propagating it.
func (c *Coordinator) fireOne(
	ctx context.Context,
	rule *models.BusinessRule,
	entityID, triggerEvent string,
	record map[string]any,
) *models.RuleExecution {
	started := time.Now()

	ctx, span := otelhelper.StartSpan(ctx, c.tracer, "rules.fire",
		attribute.String(otelhelper.TenantIDKey, rule.TenantID),
		attribute.String(otelhelper.RuleIDKey, rule.ID),
		attribute.String(otelhelper.EntityTypeKey, rule.EntityType),
	)
	defer span.End()

	execution := &models.RuleExecution{
		ID:           uuid.New().String(),
		TenantID:     rule.TenantID,
		RuleID:       rule.ID,
		EntityID:     entityID,
		EntityType:   rule.EntityType,
		TriggerEvent: triggerEvent,
		// The audit record must not change when the caller keeps using the
		// map it passed in.
		InputData: copyRecord(record),
		CreatedAt: started.UTC(),
	}

	matched, err := c.evaluator.Evaluate(rule.Conditions, record)
	if err != nil {
		execution.Status = models.RuleFailed
		execution.ErrorMessage = err.Error()
		execution.DurationMs = time.Since(started).Milliseconds()
		otelhelper.SetError(span, err)

		return execution
	}

	if !matched {
		execution.Status = models.RuleSkipped
		execution.DurationMs = time.Since(started).Milliseconds()

		return execution
	}

	// Actions run against a copy so a failed rule leaves the caller's
	// record untouched.
	working := copyRecord(record)

	results, err := c.executor.Execute(ctx, rule.Actions, working)
	execution.OutputData = results
	execution.DurationMs = time.Since(started).Milliseconds()

	if err != nil {
		execution.Status = models.RuleFailed
		execution.ErrorMessage = err.Error()
		otelhelper.SetError(span, err)

		return execution
	}

	execution.Status = models.RuleCompleted

	return execution
}

// TestRule performs the same evaluate+execute path as FireRules for a single
// rule without touching execution history. Intended for rule-authoring tools.
func (c *Coordinator) TestRule(ctx context.Context, rule *models.BusinessRule, sampleData map[string]any) (*models.RuleExecution, error) {
	execution := c.fireOne(ctx, rule, "test", "test", sampleData)

	return execution, nil
}

func (c *Coordinator) activeRules(ctx context.Context, tenantID, entityType string) ([]*models.BusinessRule, error) {
	if c.ruleCache != nil {
		if rules, ok := c.ruleCache.GetRules(ctx, tenantID, entityType); ok {
			return rules, nil
		}
	}

	rules, err := c.persistence.Rules().ListActive(ctx, tenantID, entityType)
	if err != nil {
		return nil, err
	}

	// Repositories already order by priority; re-sorting keeps the
	// contract independent of the backing store.
	sort.SliceStable(rules, func(i, j int) bool {
		if rules[i].Priority != rules[j].Priority {
			return rules[i].Priority > rules[j].Priority
		}

		return rules[i].ID < rules[j].ID
	})

	if c.ruleCache != nil {
		c.ruleCache.SetRules(ctx, tenantID, entityType, rules)
	}

	return rules, nil
}

// announce publishes the audit record to the event bus. Delivery failures are
// logged, never fatal.
func (c *Coordinator) announce(ctx context.Context, execution *models.RuleExecution) {
	if c.publisher == nil {
		return
	}

	event := events.RuleExecuted{
		BaseEvent:    events.NewBaseEvent(events.RuleExecutedEvent, execution.TenantID),
		RuleID:       execution.RuleID,
		EntityType:   execution.EntityType,
		EntityID:     execution.EntityID,
		TriggerEvent: execution.TriggerEvent,
		Status:       execution.Status,
		DurationMs:   execution.DurationMs,
	}

	err := c.publisher.Publish(ctx, execution.RuleID, event)
	if err != nil {
		c.logger.ErrorContext(ctx, "Failed to publish rule executed event", "rule_id", execution.RuleID, "error", err)
	}
}

func copyRecord(record map[string]any) map[string]any {
	working := make(map[string]any, len(record))
	for k, v := range record {
		working[k] = v
	}

	return working
}
