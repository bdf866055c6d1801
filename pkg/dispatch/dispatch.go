// Package dispatch defines the side-effect collaborators invoked by the rule
// action executor. Dispatchers acknowledge that a request was accepted; they
// never block on delivery.
package dispatch

import "context"

// EmailRequest asks the mail collaborator to send one message.
type EmailRequest struct {
	To      string         `json:"to"`
	Subject string         `json:"subject"`
	Body    string         `json:"body,omitempty"`
	Context map[string]any `json:"context,omitempty"`
}

// TaskRequest asks the task collaborator to create a work item.
type TaskRequest struct {
	Title    string         `json:"title"`
	Assignee string         `json:"assignee,omitempty"`
	DueDate  string         `json:"due_date,omitempty"`
	Context  map[string]any `json:"context,omitempty"`
}

// NotificationRequest asks the notification collaborator to deliver a message.
type NotificationRequest struct {
	Recipient string         `json:"recipient"`
	Message   string         `json:"message"`
	Channel   string         `json:"channel,omitempty"`
	Context   map[string]any `json:"context,omitempty"`
}

// WebhookRequest asks the HTTP collaborator to call an external endpoint.
type WebhookRequest struct {
	URL     string         `json:"url"`
	Method  string         `json:"method"`
	Payload map[string]any `json:"payload,omitempty"`
}

// StartWorkflowRequest asks the workflow starter to begin a new execution.
// Depth counts chained trigger_workflow actions to guard against
// self-triggering rules.
type StartWorkflowRequest struct {
	TenantID     string         `json:"tenant_id"`
	DefinitionID string         `json:"definition_id"`
	TriggerType  string         `json:"trigger_type"`
	Variables    map[string]any `json:"variables,omitempty"`
	Depth        int            `json:"depth"`
}

// RecordUpdateRequest asks the record collaborator to patch an entity.
type RecordUpdateRequest struct {
	EntityType string         `json:"entity_type,omitempty"`
	EntityID   string         `json:"entity_id,omitempty"`
	Fields     map[string]any `json:"fields"`
}

type Mailer interface {
	SendEmail(ctx context.Context, req EmailRequest) error
}

type TaskCreator interface {
	CreateTask(ctx context.Context, req TaskRequest) error
}

type Notifier interface {
	Notify(ctx context.Context, req NotificationRequest) error
}

type WebhookCaller interface {
	CallWebhook(ctx context.Context, req WebhookRequest) error
}

type WorkflowStarter interface {
	StartWorkflow(ctx context.Context, req StartWorkflowRequest) error
}

type RecordUpdater interface {
	UpdateRecord(ctx context.Context, req RecordUpdateRequest) error
}

// Dispatchers bundles every collaborator the action executor can reach.
type Dispatchers struct {
	Mailer   Mailer
	Tasks    TaskCreator
	Notifier Notifier
	Webhooks WebhookCaller
	Starter  WorkflowStarter
	Records  RecordUpdater
}
