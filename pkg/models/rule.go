package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// Operator is the closed set of condition operators.
type Operator string

const (
	OpEquals             Operator = "equals"
	OpNotEquals          Operator = "not_equals"
	OpGreaterThan        Operator = "greater_than"
	OpLessThan           Operator = "less_than"
	OpGreaterThanOrEqual Operator = "greater_than_or_equal"
	OpLessThanOrEqual    Operator = "less_than_or_equal"
	OpContains           Operator = "contains"
	OpStartsWith         Operator = "starts_with"
	OpEndsWith           Operator = "ends_with"
	OpIn                 Operator = "in"
	OpNotIn              Operator = "not_in"
	OpIsNull             Operator = "is_null"
	OpIsNotNull          Operator = "is_not_null"
	OpMatchesRegex       Operator = "matches_regex"
)

// Operators lists every valid operator.
var Operators = []Operator{
	OpEquals, OpNotEquals,
	OpGreaterThan, OpLessThan, OpGreaterThanOrEqual, OpLessThanOrEqual,
	OpContains, OpStartsWith, OpEndsWith,
	OpIn, OpNotIn,
	OpIsNull, OpIsNotNull,
	OpMatchesRegex,
}

// Condition is a single field/operator/value check against a data record.
// Field supports dot-separated lookup into nested records.
type Condition struct {
	Field    string   `json:"field"    validate:"required"`
	Operator Operator `json:"operator" validate:"required"`
	Value    any      `json:"value,omitempty"`
}

// ConditionGroup is a condition tree: either a single condition or a list of
// conditions combined with implicit AND. It accepts both JSON shapes.
type ConditionGroup []Condition

func (g *ConditionGroup) UnmarshalJSON(data []byte) error {
	var list []Condition
	if err := json.Unmarshal(data, &list); err == nil {
		*g = list

		return nil
	}

	var single Condition
	if err := json.Unmarshal(data, &single); err != nil {
		return fmt.Errorf("conditions must be a condition object or an array of conditions: %w", err)
	}

	*g = ConditionGroup{single}

	return nil
}

// ActionType is the closed set of rule action types.
type ActionType string

const (
	ActionSetField         ActionType = "set_field"
	ActionSendEmail        ActionType = "send_email"
	ActionCreateTask       ActionType = "create_task"
	ActionTriggerWorkflow  ActionType = "trigger_workflow"
	ActionSendNotification ActionType = "send_notification"
	ActionCallWebhook      ActionType = "call_webhook"
	ActionUpdateRecord     ActionType = "update_record"
)

// ActionTypes lists every valid action type.
var ActionTypes = []ActionType{
	ActionSetField,
	ActionSendEmail,
	ActionCreateTask,
	ActionTriggerWorkflow,
	ActionSendNotification,
	ActionCallWebhook,
	ActionUpdateRecord,
}

// Action is one declarative side effect of a rule. Params carry the
// type-specific fields (recipient, url, field, ...).
type Action struct {
	Type   ActionType     `json:"type" validate:"required"`
	Params map[string]any `json:"params,omitempty"`
}

// ActionResult records the translation of one action into a side-effect
// request. The executor does not wait for delivery.
type ActionResult struct {
	ActionType ActionType     `json:"action_type"`
	Status     string         `json:"status"`
	Details    map[string]any `json:"details,omitempty"`
}

// ActionRequested is the result status for a successfully issued request.
const ActionRequested = "requested"

// BusinessRule is a tenant-owned condition+action pair evaluated against an
// entity on a trigger event.
type BusinessRule struct {
	ID         string         `json:"id"`
	TenantID   string         `json:"tenant_id"   validate:"required"`
	Name       string         `json:"name"        validate:"required"`
	EntityType string         `json:"entity_type" validate:"required"`
	RuleType   string         `json:"rule_type,omitempty"`
	Priority   int            `json:"priority"`
	IsActive   bool           `json:"is_active"`
	Conditions ConditionGroup `json:"conditions"`
	Actions    []Action       `json:"actions"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// RuleExecutionStatus is the outcome of one rule invocation.
type RuleExecutionStatus string

const (
	RuleCompleted RuleExecutionStatus = "completed"
	RuleSkipped   RuleExecutionStatus = "skipped"
	RuleFailed    RuleExecutionStatus = "failed"
)

// RuleExecution is an immutable audit record: one per rule per trigger
// invocation.
type RuleExecution struct {
	ID           string              `json:"id"`
	TenantID     string              `json:"tenant_id"`
	RuleID       string              `json:"rule_id"`
	EntityID     string              `json:"entity_id"`
	EntityType   string              `json:"entity_type"`
	TriggerEvent string              `json:"trigger_event"`
	InputData    map[string]any      `json:"input_data,omitempty"`
	Status       RuleExecutionStatus `json:"status"`
	OutputData   []ActionResult      `json:"output_data,omitempty"`
	ErrorMessage string              `json:"error_message,omitempty"`
	DurationMs   int64               `json:"duration_ms"`
	CreatedAt    time.Time           `json:"created_at"`
}
