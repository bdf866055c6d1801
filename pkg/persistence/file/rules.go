package file

import (
	"context"
	"os"
	"sort"

	"github.com/helixflow/helixflow/pkg/models"
	"github.com/helixflow/helixflow/pkg/persistence"
)

const (
	rulesDir          = "rules"
	ruleExecutionsDir = "rule_executions"
)

// RuleRepository stores business rules as JSON files.
type RuleRepository struct {
	store *store
}

func (r *RuleRepository) Save(_ context.Context, rule *models.BusinessRule) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if err := r.store.write(rulesDir, rule.ID, rule); err != nil {
		return persistence.NewStoreError("Save", "rule", rule.ID, err)
	}

	return nil
}

func (r *RuleRepository) GetByID(_ context.Context, tenantID, id string) (*models.BusinessRule, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	return r.getLocked(tenantID, id)
}

func (r *RuleRepository) List(_ context.Context, tenantID string) ([]*models.BusinessRule, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	return r.loadAllLocked(tenantID)
}

func (r *RuleRepository) ListActive(_ context.Context, tenantID, entityType string) ([]*models.BusinessRule, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	all, err := r.loadAllLocked(tenantID)
	if err != nil {
		return nil, err
	}

	active := make([]*models.BusinessRule, 0, len(all))

	for _, rule := range all {
		if rule.IsActive && rule.EntityType == entityType {
			active = append(active, rule)
		}
	}

	sort.SliceStable(active, func(i, j int) bool {
		if active[i].Priority != active[j].Priority {
			return active[i].Priority > active[j].Priority
		}

		return active[i].ID < active[j].ID
	})

	return active, nil
}

func (r *RuleRepository) Delete(_ context.Context, tenantID, id string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if _, err := r.getLocked(tenantID, id); err != nil {
		return err
	}

	if err := r.store.remove(rulesDir, id); err != nil {
		return persistence.NewStoreError("Delete", "rule", id, err)
	}

	return nil
}

func (r *RuleRepository) getLocked(tenantID, id string) (*models.BusinessRule, error) {
	var rule models.BusinessRule

	err := r.store.read(rulesDir, id, &rule)
	if os.IsNotExist(err) || (err == nil && rule.TenantID != tenantID) {
		return nil, persistence.ErrRuleNotFound
	}

	if err != nil {
		return nil, persistence.NewStoreError("GetByID", "rule", id, err)
	}

	return &rule, nil
}

func (r *RuleRepository) loadAllLocked(tenantID string) ([]*models.BusinessRule, error) {
	ids, err := r.store.ids(rulesDir)
	if err != nil {
		return nil, persistence.NewStoreError("List", "rule", "", err)
	}

	rules := make([]*models.BusinessRule, 0, len(ids))

	for _, id := range ids {
		rule, err := r.getLocked(tenantID, id)
		if err != nil {
			continue
		}

		rules = append(rules, rule)
	}

	return rules, nil
}

// RuleExecutionRepository stores immutable rule audit records as JSON files.
type RuleExecutionRepository struct {
	store *store
}

func (r *RuleExecutionRepository) Save(_ context.Context, record *models.RuleExecution) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if err := r.store.write(ruleExecutionsDir, record.ID, record); err != nil {
		return persistence.NewStoreError("Save", "rule_execution", record.ID, err)
	}

	return nil
}

func (r *RuleExecutionRepository) ListByRule(_ context.Context, tenantID, ruleID string) ([]*models.RuleExecution, error) {
	return r.list(tenantID, func(record *models.RuleExecution) bool {
		return record.RuleID == ruleID
	})
}

func (r *RuleExecutionRepository) ListByEntity(_ context.Context, tenantID, entityType, entityID string) ([]*models.RuleExecution, error) {
	return r.list(tenantID, func(record *models.RuleExecution) bool {
		return record.EntityType == entityType && record.EntityID == entityID
	})
}

func (r *RuleExecutionRepository) CountByStatus(_ context.Context, tenantID string) (map[models.RuleExecutionStatus]int64, error) {
	all, err := r.list(tenantID, func(*models.RuleExecution) bool { return true })
	if err != nil {
		return nil, err
	}

	counts := make(map[models.RuleExecutionStatus]int64)
	for _, record := range all {
		counts[record.Status]++
	}

	return counts, nil
}

func (r *RuleExecutionRepository) list(tenantID string, keep func(*models.RuleExecution) bool) ([]*models.RuleExecution, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	ids, err := r.store.ids(ruleExecutionsDir)
	if err != nil {
		return nil, persistence.NewStoreError("List", "rule_execution", "", err)
	}

	records := make([]*models.RuleExecution, 0, len(ids))

	for _, id := range ids {
		var record models.RuleExecution
		if err := r.store.read(ruleExecutionsDir, id, &record); err != nil {
			continue
		}

		if record.TenantID != tenantID || !keep(&record) {
			continue
		}

		records = append(records, &record)
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].CreatedAt.Before(records[j].CreatedAt)
	})

	return records, nil
}
