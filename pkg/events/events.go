// Package events defines the typed lifecycle notifications published to the
// event bus for executions, steps and rule invocations.
package events

import (
	"time"

	"github.com/google/uuid"
	"github.com/helixflow/helixflow/pkg/models"
)

type EventType string

// Topic is the Kafka topic carrying all engine events.
const Topic = "helixflow.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// Commands from the API toward the execution workers.
	ExecutionStartRequestedEvent   EventType = "execution.start.requested"
	ExecutionCancelRequestedEvent  EventType = "execution.cancel.requested"
	ExecutionSuspendRequestedEvent EventType = "execution.suspend.requested"
	ExecutionResumeRequestedEvent  EventType = "execution.resume.requested"

	// Execution lifecycle notifications.
	ExecutionStartedEvent   EventType = "execution.started"
	ExecutionCompletedEvent EventType = "execution.completed"
	ExecutionFailedEvent    EventType = "execution.failed"
	ExecutionCancelledEvent EventType = "execution.cancelled"
	ExecutionSuspendedEvent EventType = "execution.suspended"
	ExecutionResumedEvent   EventType = "execution.resumed"
	ExecutionRetriedEvent   EventType = "execution.retried"

	// Step lifecycle notifications.
	StepTransitionedEvent EventType = "execution.step.transitioned"

	// Rule engine notifications.
	RuleExecutedEvent EventType = "rule.executed"
)

type BaseEvent struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	TenantID  string         `json:"tenant_id"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

func NewBaseEvent(eventType EventType, tenantID string) BaseEvent {
	return BaseEvent{
		ID:        uuid.New().String(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		TenantID:  tenantID,
		Metadata:  make(map[string]any),
	}
}

// ExecutionCommand carries a requested lifecycle operation to the worker
// driving the process backend.
type ExecutionCommand struct {
	BaseEvent

	ExecutionID  string `json:"execution_id"`
	DefinitionID string `json:"definition_id,omitempty"`
	ExecutionKey string `json:"execution_key,omitempty"`
}

type ExecutionStartRequested struct{ ExecutionCommand }

func (e ExecutionStartRequested) GetType() EventType { return ExecutionStartRequestedEvent }

type ExecutionCancelRequested struct{ ExecutionCommand }

func (e ExecutionCancelRequested) GetType() EventType { return ExecutionCancelRequestedEvent }

type ExecutionSuspendRequested struct{ ExecutionCommand }

func (e ExecutionSuspendRequested) GetType() EventType { return ExecutionSuspendRequestedEvent }

type ExecutionResumeRequested struct{ ExecutionCommand }

func (e ExecutionResumeRequested) GetType() EventType { return ExecutionResumeRequestedEvent }

// ExecutionTransitioned is the shared payload of lifecycle notifications.
type ExecutionTransitioned struct {
	BaseEvent

	ExecutionID  string                 `json:"execution_id"`
	DefinitionID string                 `json:"definition_id"`
	Status       models.ExecutionStatus `json:"status"`
	Progress     int                    `json:"progress_percentage"`
	ErrorMessage string                 `json:"error_message,omitempty"`
}

type ExecutionStarted struct{ ExecutionTransitioned }

func (e ExecutionStarted) GetType() EventType { return ExecutionStartedEvent }

type ExecutionCompleted struct{ ExecutionTransitioned }

func (e ExecutionCompleted) GetType() EventType { return ExecutionCompletedEvent }

type ExecutionFailed struct{ ExecutionTransitioned }

func (e ExecutionFailed) GetType() EventType { return ExecutionFailedEvent }

type ExecutionCancelled struct{ ExecutionTransitioned }

func (e ExecutionCancelled) GetType() EventType { return ExecutionCancelledEvent }

type ExecutionSuspended struct{ ExecutionTransitioned }

func (e ExecutionSuspended) GetType() EventType { return ExecutionSuspendedEvent }

type ExecutionResumed struct{ ExecutionTransitioned }

func (e ExecutionResumed) GetType() EventType { return ExecutionResumedEvent }

type ExecutionRetried struct{ ExecutionTransitioned }

func (e ExecutionRetried) GetType() EventType { return ExecutionRetriedEvent }

// StepTransitioned announces one step execution status change.
type StepTransitioned struct {
	BaseEvent

	ExecutionID  string            `json:"execution_id"`
	StepID       string            `json:"step_id"`
	Status       models.StepStatus `json:"status"`
	ErrorMessage string            `json:"error_message,omitempty"`
}

func (e StepTransitioned) GetType() EventType { return StepTransitionedEvent }

// RuleExecuted announces one rule audit record.
type RuleExecuted struct {
	BaseEvent

	RuleID       string                     `json:"rule_id"`
	EntityType   string                     `json:"entity_type"`
	EntityID     string                     `json:"entity_id"`
	TriggerEvent string                     `json:"trigger_event"`
	Status       models.RuleExecutionStatus `json:"status"`
	DurationMs   int64                      `json:"duration_ms"`
}

func (e RuleExecuted) GetType() EventType { return RuleExecutedEvent }
