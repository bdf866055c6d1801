package models

import "time"

// ExecutionStatus is the lifecycle state of a workflow execution.
type ExecutionStatus string

const (
	ExecutionPending   ExecutionStatus = "PENDING"
	ExecutionRunning   ExecutionStatus = "RUNNING"
	ExecutionSuspended ExecutionStatus = "SUSPENDED"
	ExecutionCompleted ExecutionStatus = "COMPLETED"
	ExecutionFailed    ExecutionStatus = "FAILED"
	ExecutionCancelled ExecutionStatus = "CANCELLED"
)

// Terminal reports whether the status admits no further transitions.
// FAILED is terminal except for an explicit retry.
func (s ExecutionStatus) Terminal() bool {
	return s == ExecutionCompleted || s == ExecutionFailed || s == ExecutionCancelled
}

// WorkflowExecution is one run of one definition version. It is owned
// exclusively by the execution coordinator; step executions cascade with it.
type WorkflowExecution struct {
	ID           string          `json:"id"`
	TenantID     string          `json:"tenant_id"`
	DefinitionID string          `json:"definition_id"`
	ExecutionKey string          `json:"execution_key"`
	Status       ExecutionStatus `json:"status"`
	TriggerType  string          `json:"trigger_type,omitempty"`
	TriggerData  map[string]any  `json:"trigger_data,omitempty"`
	Variables    map[string]any  `json:"variables,omitempty"`
	CurrentStep  string          `json:"current_step,omitempty"`
	Progress     int             `json:"progress_percentage"`
	StartedAt    *time.Time      `json:"started_at,omitempty"`
	CompletedAt  *time.Time      `json:"completed_at,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`

	// LockVersion backs optimistic locking on status/progress updates.
	LockVersion int64 `json:"-"`
}

// StepStatus is the lifecycle state of a single step execution.
type StepStatus string

const (
	StepRunning   StepStatus = "RUNNING"
	StepCompleted StepStatus = "COMPLETED"
	StepFailed    StepStatus = "FAILED"
	StepSkipped   StepStatus = "SKIPPED"
)

// Done reports whether the step counts toward execution progress.
func (s StepStatus) Done() bool {
	return s == StepCompleted || s == StepSkipped
}

// WorkflowStepExecution records one graph node being reached at run time.
// Created lazily as the process backend reaches each step.
type WorkflowStepExecution struct {
	ID           string         `json:"id"`
	ExecutionID  string         `json:"execution_id"`
	StepID       string         `json:"step_id"`
	StepName     string         `json:"step_name"`
	StepType     StepType       `json:"step_type"`
	Status       StepStatus     `json:"status"`
	InputData    map[string]any `json:"input_data,omitempty"`
	OutputData   map[string]any `json:"output_data,omitempty"`
	StartedAt    *time.Time     `json:"started_at,omitempty"`
	CompletedAt  *time.Time     `json:"completed_at,omitempty"`
	ErrorMessage string         `json:"error_message,omitempty"`
}
