// Package models defines the core domain models for tenant-scoped workflow
// definitions, executions and business rules.
package models

import "time"

// StepType is the closed set of step kinds a definition graph may contain.
type StepType string

const (
	StepTypeService      StepType = "service"
	StepTypeUser         StepType = "user"
	StepTypeScript       StepType = "script"
	StepTypeSend         StepType = "send"
	StepTypeReceive      StepType = "receive"
	StepTypeBusinessRule StepType = "business_rule"
	StepTypeManual       StepType = "manual"
	StepTypeGateway      StepType = "gateway"
	StepTypeEvent        StepType = "event"
	StepTypeSubprocess   StepType = "subprocess"
)

// StepTypes lists every valid step type.
var StepTypes = []StepType{
	StepTypeService,
	StepTypeUser,
	StepTypeScript,
	StepTypeSend,
	StepTypeReceive,
	StepTypeBusinessRule,
	StepTypeManual,
	StepTypeGateway,
	StepTypeEvent,
	StepTypeSubprocess,
}

// StepKind marks the flow role of a step inside the graph.
type StepKind string

const (
	StepKindStart StepKind = "start"
	StepKindTask  StepKind = "task"
	StepKindEnd   StepKind = "end"
)

// GatewayKind is the closed set of supported gateway semantics.
type GatewayKind string

const (
	GatewayExclusive GatewayKind = "exclusive"
	GatewayInclusive GatewayKind = "inclusive"
	GatewayParallel  GatewayKind = "parallel"
	GatewayEvent     GatewayKind = "event"
)

var GatewayKinds = []GatewayKind{GatewayExclusive, GatewayInclusive, GatewayParallel, GatewayEvent}

// Step is one node of a definition graph. Type-specific settings (script
// body/format, gateway kind, service endpoint, ...) live in Config and are
// checked by the definition validator.
type Step struct {
	ID     string         `json:"id"     validate:"required"`
	Name   string         `json:"name"   validate:"required"`
	Type   StepType       `json:"type"   validate:"required"`
	Kind   StepKind       `json:"kind,omitempty"`
	Config map[string]any `json:"config,omitempty"`
}

// Role returns the flow role of the step, defaulting to a regular task.
func (s *Step) Role() StepKind {
	if s.Kind == "" {
		return StepKindTask
	}

	return s.Kind
}

// Connection is a directed edge between two steps. Condition, when present,
// is an interpolation expression ("${...}") evaluated by the process backend.
type Connection struct {
	ID        string `json:"id"`
	From      string `json:"from" validate:"required"`
	To        string `json:"to"   validate:"required"`
	Condition string `json:"condition,omitempty"`
}

// VariableType is the closed set of declared variable types.
type VariableType string

const (
	VariableString  VariableType = "string"
	VariableNumber  VariableType = "number"
	VariableBoolean VariableType = "boolean"
	VariableDate    VariableType = "date"
	VariableObject  VariableType = "object"
	VariableArray   VariableType = "array"
)

var VariableTypes = []VariableType{
	VariableString, VariableNumber, VariableBoolean, VariableDate, VariableObject, VariableArray,
}

// Variable declares one entry of a definition's variables schema.
type Variable struct {
	Name    string       `json:"name" validate:"required"`
	Type    VariableType `json:"type" validate:"required"`
	Default any          `json:"default,omitempty"`
}

// Graph is the structural part of a workflow definition. It is kept as plain
// data: the validator and the process backend only need to traverse it.
type Graph struct {
	Steps       []*Step       `json:"steps"`
	Connections []*Connection `json:"connections"`
	Variables   []*Variable   `json:"variables,omitempty"`
}

// StepByID returns the step with the given id, if any.
func (g *Graph) StepByID(id string) (*Step, bool) {
	for _, step := range g.Steps {
		if step.ID == id {
			return step, true
		}
	}

	return nil, false
}

// StartSteps returns all steps marked as start steps.
func (g *Graph) StartSteps() []*Step {
	var starts []*Step

	for _, step := range g.Steps {
		if step.Role() == StepKindStart {
			starts = append(starts, step)
		}
	}

	return starts
}

// OutgoingConnections returns the connections leaving the given step.
func (g *Graph) OutgoingConnections(stepID string) []*Connection {
	var out []*Connection

	for _, conn := range g.Connections {
		if conn.From == stepID {
			out = append(out, conn)
		}
	}

	return out
}

// WorkflowDefinition is a versioned, tenant-owned description of a multi-step
// process graph. A name may have multiple versions; published versions are
// immutable except for the activation flags.
type WorkflowDefinition struct {
	ID            string         `json:"id"`
	TenantID      string         `json:"tenant_id"      validate:"required"`
	Name          string         `json:"name"           validate:"required,min=3"`
	Version       string         `json:"version"`
	Category      string         `json:"category,omitempty"`
	IsActive      bool           `json:"is_active"`
	IsPublished   bool           `json:"is_published"`
	Graph         Graph          `json:"graph"`
	TriggerConfig map[string]any `json:"trigger_config,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	PublishedAt   *time.Time     `json:"published_at,omitempty"`
	DeletedAt     *time.Time     `json:"deleted_at,omitempty"`
}

// Startable reports whether the definition may be used to start an execution.
func (d *WorkflowDefinition) Startable() bool {
	return d.IsActive && d.IsPublished && d.DeletedAt == nil
}
