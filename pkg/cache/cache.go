// Package cache provides tenant-scoped, TTL-based caching for active rules
// and published definitions, with explicit invalidation at mutation points.
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/helixflow/helixflow/pkg/models"
)

// RuleCache caches the active-rule listing per (tenant, entity type).
type RuleCache interface {
	GetRules(ctx context.Context, tenantID, entityType string) ([]*models.BusinessRule, bool)
	SetRules(ctx context.Context, tenantID, entityType string, rules []*models.BusinessRule)
	// InvalidateRules drops every cached listing for the tenant.
	InvalidateRules(ctx context.Context, tenantID string)
}

// DefinitionCache caches published definitions by id.
type DefinitionCache interface {
	GetDefinition(ctx context.Context, tenantID, id string) (*models.WorkflowDefinition, bool)
	SetDefinition(ctx context.Context, def *models.WorkflowDefinition)
	InvalidateDefinition(ctx context.Context, tenantID, id string)
}

type memoryEntry struct {
	value     any
	expiresAt time.Time
}

// Memory is an in-process TTL cache suitable for single-node deployments and
// tests.
type Memory struct {
	ttl     time.Duration
	mu      sync.RWMutex
	entries map[string]memoryEntry
}

func NewMemory(ttl time.Duration) *Memory {
	return &Memory{
		ttl:     ttl,
		entries: make(map[string]memoryEntry),
	}
}

func (m *Memory) get(key string) (any, bool) {
	m.mu.RLock()
	entry, ok := m.entries[key]
	m.mu.RUnlock()

	if !ok || time.Now().After(entry.expiresAt) {
		return nil, false
	}

	return entry.value, true
}

func (m *Memory) set(key string, value any) {
	m.mu.Lock()
	m.entries[key] = memoryEntry{value: value, expiresAt: time.Now().Add(m.ttl)}
	m.mu.Unlock()
}

func (m *Memory) GetRules(_ context.Context, tenantID, entityType string) ([]*models.BusinessRule, bool) {
	value, ok := m.get(rulesKey(tenantID, entityType))
	if !ok {
		return nil, false
	}

	rules, ok := value.([]*models.BusinessRule)

	return rules, ok
}

func (m *Memory) SetRules(_ context.Context, tenantID, entityType string, rules []*models.BusinessRule) {
	m.set(rulesKey(tenantID, entityType), rules)
}

func (m *Memory) InvalidateRules(_ context.Context, tenantID string) {
	prefix := rulesKey(tenantID, "")

	m.mu.Lock()
	defer m.mu.Unlock()

	for key := range m.entries {
		if len(key) >= len(prefix) && key[:len(prefix)] == prefix {
			delete(m.entries, key)
		}
	}
}

func (m *Memory) GetDefinition(_ context.Context, tenantID, id string) (*models.WorkflowDefinition, bool) {
	value, ok := m.get(definitionKey(tenantID, id))
	if !ok {
		return nil, false
	}

	def, ok := value.(*models.WorkflowDefinition)

	return def, ok
}

func (m *Memory) SetDefinition(_ context.Context, def *models.WorkflowDefinition) {
	m.set(definitionKey(def.TenantID, def.ID), def)
}

func (m *Memory) InvalidateDefinition(_ context.Context, tenantID, id string) {
	m.mu.Lock()
	delete(m.entries, definitionKey(tenantID, id))
	m.mu.Unlock()
}

func rulesKey(tenantID, entityType string) string {
	return "rules:" + tenantID + ":" + entityType
}

func definitionKey(tenantID, id string) string {
	return "definition:" + tenantID + ":" + id
}
