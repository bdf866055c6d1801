// Package web provides the HTTP layer of the workflow API: request types,
// fiber handlers and RFC 7807 error responses.
package web

import "github.com/helixflow/helixflow/pkg/models"

// CreateDefinitionRequest is the request body for creating a draft definition.
type CreateDefinitionRequest struct {
	Name          string         `json:"name"           validate:"required,min=3"`
	Category      string         `json:"category,omitempty"`
	Graph         models.Graph   `json:"graph"          validate:"required"`
	TriggerConfig map[string]any `json:"trigger_config,omitempty"`
}

// UpdateDefinitionRequest is the request body for updating a draft definition.
// All fields are optional to support partial updates.
type UpdateDefinitionRequest struct {
	Name          *string        `json:"name,omitempty" validate:"omitempty,min=3"`
	Category      *string        `json:"category,omitempty"`
	Graph         *models.Graph  `json:"graph,omitempty"`
	TriggerConfig map[string]any `json:"trigger_config,omitempty"`
}

// SetActiveRequest toggles the activation flag of a definition or rule.
type SetActiveRequest struct {
	Active *bool `json:"active" validate:"required"`
}

// StartExecutionRequest is the request body for starting a workflow execution.
type StartExecutionRequest struct {
	TriggerType string         `json:"trigger_type,omitempty"`
	TriggerData map[string]any `json:"trigger_data,omitempty"`
	Variables   map[string]any `json:"variables,omitempty"`
}

// RuleRequest is the request body for creating or replacing a business rule.
type RuleRequest struct {
	Name       string                `json:"name"        validate:"required"`
	EntityType string                `json:"entity_type" validate:"required"`
	RuleType   string                `json:"rule_type,omitempty"`
	Priority   int                   `json:"priority"`
	IsActive   bool                  `json:"is_active"`
	Conditions models.ConditionGroup `json:"conditions"`
	Actions    []models.Action       `json:"actions"`
}

// TestRuleRequest carries the sample record for a dry-run evaluation.
type TestRuleRequest struct {
	SampleData map[string]any `json:"sample_data" validate:"required"`
}

// EntityEventRequest fires the active rules of an entity type against the
// given record.
type EntityEventRequest struct {
	EntityType   string         `json:"entity_type"   validate:"required"`
	EntityID     string         `json:"entity_id"     validate:"required"`
	TriggerEvent string         `json:"trigger_event" validate:"required"`
	Data         map[string]any `json:"data"          validate:"required"`
}

func (r *RuleRequest) toModel(tenantID string) *models.BusinessRule {
	return &models.BusinessRule{
		TenantID:   tenantID,
		Name:       r.Name,
		EntityType: r.EntityType,
		RuleType:   r.RuleType,
		Priority:   r.Priority,
		IsActive:   r.IsActive,
		Conditions: r.Conditions,
		Actions:    r.Actions,
	}
}
