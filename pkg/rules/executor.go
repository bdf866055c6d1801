package rules

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/helixflow/helixflow/pkg/dispatch"
	"github.com/helixflow/helixflow/pkg/models"
)

// ErrUnknownActionType indicates an action outside the supported set.
var ErrUnknownActionType = errors.New("unknown action type")

// ErrTriggerDepthExceeded guards against rules that trigger workflows whose
// rules trigger workflows again, without bound.
var ErrTriggerDepthExceeded = errors.New("trigger_workflow recursion depth exceeded")

// triggerDepthKey is the record key carrying the chained-trigger counter.
const triggerDepthKey = "trigger_depth"

// defaultMaxTriggerDepth bounds chained trigger_workflow actions.
const defaultMaxTriggerDepth = 5

// Executor translates declarative rule actions into side-effect requests for
// the external dispatchers. It does not perform the side effects and does not
// wait for delivery confirmation.
type Executor struct {
	dispatchers     dispatch.Dispatchers
	maxTriggerDepth int
	logger          *slog.Logger
}

func NewExecutor(dispatchers dispatch.Dispatchers, logger *slog.Logger) *Executor {
	return &Executor{
		dispatchers:     dispatchers,
		maxTriggerDepth: defaultMaxTriggerDepth,
		logger:          logger.With("module", "action_executor"),
	}
}

// Execute runs the actions strictly in declaration order, producing one
// result per issued request. The first action that fails to translate aborts
// the remaining actions; the partial results are returned alongside the error.
func (e *Executor) Execute(ctx context.Context, actions []models.Action, record map[string]any) ([]models.ActionResult, error) {
	results := make([]models.ActionResult, 0, len(actions))

	for i, action := range actions {
		result, err := e.executeOne(ctx, action, record)
		if err != nil {
			return results, fmt.Errorf("action %d (%s) failed: %w", i, action.Type, err)
		}

		results = append(results, result)
	}

	return results, nil
}

func (e *Executor) executeOne(ctx context.Context, action models.Action, record map[string]any) (models.ActionResult, error) {
	switch action.Type {
	case models.ActionSetField:
		return e.setField(action, record)
	case models.ActionSendEmail:
		return e.sendEmail(ctx, action)
	case models.ActionCreateTask:
		return e.createTask(ctx, action)
	case models.ActionTriggerWorkflow:
		return e.triggerWorkflow(ctx, action, record)
	case models.ActionSendNotification:
		return e.sendNotification(ctx, action)
	case models.ActionCallWebhook:
		return e.callWebhook(ctx, action)
	case models.ActionUpdateRecord:
		return e.updateRecord(ctx, action, record)
	default:
		return models.ActionResult{}, fmt.Errorf("%w: %q", ErrUnknownActionType, action.Type)
	}
}

// setField writes into the working copy of the record and echoes field/value.
// It is the only action applied locally instead of dispatched.
func (e *Executor) setField(action models.Action, record map[string]any) (models.ActionResult, error) {
	field, ok := action.Params["field"].(string)
	if !ok || field == "" {
		return models.ActionResult{}, errors.New("set_field requires a field name")
	}

	value := action.Params["value"]
	record[field] = value

	return models.ActionResult{
		ActionType: models.ActionSetField,
		Status:     models.ActionRequested,
		Details:    map[string]any{"field": field, "value": value},
	}, nil
}

func (e *Executor) sendEmail(ctx context.Context, action models.Action) (models.ActionResult, error) {
	to, _ := action.Params["to"].(string)
	subject, _ := action.Params["subject"].(string)

	if to == "" || subject == "" {
		return models.ActionResult{}, errors.New("send_email requires to and subject")
	}

	body, _ := action.Params["body"].(string)

	err := e.dispatchers.Mailer.SendEmail(ctx, dispatch.EmailRequest{To: to, Subject: subject, Body: body})
	if err != nil {
		return models.ActionResult{}, fmt.Errorf("mail dispatcher rejected request: %w", err)
	}

	return models.ActionResult{
		ActionType: models.ActionSendEmail,
		Status:     models.ActionRequested,
		Details:    map[string]any{"to": to, "subject": subject},
	}, nil
}

func (e *Executor) createTask(ctx context.Context, action models.Action) (models.ActionResult, error) {
	title, _ := action.Params["title"].(string)
	if title == "" {
		return models.ActionResult{}, errors.New("create_task requires a title")
	}

	assignee, _ := action.Params["assignee"].(string)
	dueDate, _ := action.Params["due_date"].(string)

	err := e.dispatchers.Tasks.CreateTask(ctx, dispatch.TaskRequest{Title: title, Assignee: assignee, DueDate: dueDate})
	if err != nil {
		return models.ActionResult{}, fmt.Errorf("task dispatcher rejected request: %w", err)
	}

	return models.ActionResult{
		ActionType: models.ActionCreateTask,
		Status:     models.ActionRequested,
		Details:    map[string]any{"title": title, "assignee": assignee},
	}, nil
}

func (e *Executor) triggerWorkflow(ctx context.Context, action models.Action, record map[string]any) (models.ActionResult, error) {
	definitionID, _ := action.Params["definition_id"].(string)
	if definitionID == "" {
		return models.ActionResult{}, errors.New("trigger_workflow requires a definition_id")
	}

	depth := triggerDepth(record)
	if depth >= e.maxTriggerDepth {
		return models.ActionResult{}, fmt.Errorf("%w: depth %d", ErrTriggerDepthExceeded, depth)
	}

	tenantID, _ := action.Params["tenant_id"].(string)
	variables, _ := action.Params["variables"].(map[string]any)

	err := e.dispatchers.Starter.StartWorkflow(ctx, dispatch.StartWorkflowRequest{
		TenantID:     tenantID,
		DefinitionID: definitionID,
		TriggerType:  "rule",
		Variables:    variables,
		Depth:        depth + 1,
	})
	if err != nil {
		return models.ActionResult{}, fmt.Errorf("workflow starter rejected request: %w", err)
	}

	return models.ActionResult{
		ActionType: models.ActionTriggerWorkflow,
		Status:     models.ActionRequested,
		Details:    map[string]any{"definition_id": definitionID},
	}, nil
}

func (e *Executor) sendNotification(ctx context.Context, action models.Action) (models.ActionResult, error) {
	recipient, _ := action.Params["recipient"].(string)
	message, _ := action.Params["message"].(string)

	if recipient == "" || message == "" {
		return models.ActionResult{}, errors.New("send_notification requires recipient and message")
	}

	channel, _ := action.Params["channel"].(string)

	err := e.dispatchers.Notifier.Notify(ctx, dispatch.NotificationRequest{
		Recipient: recipient,
		Message:   message,
		Channel:   channel,
	})
	if err != nil {
		return models.ActionResult{}, fmt.Errorf("notification dispatcher rejected request: %w", err)
	}

	return models.ActionResult{
		ActionType: models.ActionSendNotification,
		Status:     models.ActionRequested,
		Details:    map[string]any{"recipient": recipient, "message": message},
	}, nil
}

func (e *Executor) callWebhook(ctx context.Context, action models.Action) (models.ActionResult, error) {
	url, _ := action.Params["url"].(string)
	if url == "" {
		return models.ActionResult{}, errors.New("call_webhook requires a url")
	}

	method, _ := action.Params["method"].(string)
	if method == "" {
		method = "POST"
	}

	payload, _ := action.Params["payload"].(map[string]any)

	err := e.dispatchers.Webhooks.CallWebhook(ctx, dispatch.WebhookRequest{URL: url, Method: method, Payload: payload})
	if err != nil {
		return models.ActionResult{}, fmt.Errorf("webhook dispatcher rejected request: %w", err)
	}

	return models.ActionResult{
		ActionType: models.ActionCallWebhook,
		Status:     models.ActionRequested,
		Details:    map[string]any{"url": url, "method": method},
	}, nil
}

func (e *Executor) updateRecord(ctx context.Context, action models.Action, record map[string]any) (models.ActionResult, error) {
	fields, _ := action.Params["fields"].(map[string]any)
	if len(fields) == 0 {
		return models.ActionResult{}, errors.New("update_record requires a non-empty fields map")
	}

	entityType, _ := record["entity_type"].(string)
	entityID, _ := record["entity_id"].(string)

	err := e.dispatchers.Records.UpdateRecord(ctx, dispatch.RecordUpdateRequest{
		EntityType: entityType,
		EntityID:   entityID,
		Fields:     fields,
	})
	if err != nil {
		return models.ActionResult{}, fmt.Errorf("record dispatcher rejected request: %w", err)
	}

	return models.ActionResult{
		ActionType: models.ActionUpdateRecord,
		Status:     models.ActionRequested,
		Details:    map[string]any{"fields": fields},
	}, nil
}

func triggerDepth(record map[string]any) int {
	switch d := record[triggerDepthKey].(type) {
	case int:
		return d
	case int64:
		return int(d)
	case float64:
		return int(d)
	default:
		return 0
	}
}
