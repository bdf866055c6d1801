package rules

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/helixflow/helixflow/pkg/dispatch"
	"github.com/helixflow/helixflow/pkg/models"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, nil))
}

func testDispatchers() (dispatch.Dispatchers, *dispatch.MockMailer, *dispatch.MockNotifier, *dispatch.MockWorkflowStarter) {
	mailer := &dispatch.MockMailer{}
	notifier := &dispatch.MockNotifier{}
	starter := &dispatch.MockWorkflowStarter{}

	return dispatch.Dispatchers{
		Mailer:   mailer,
		Tasks:    &dispatch.MockTaskCreator{},
		Notifier: notifier,
		Webhooks: &dispatch.MockWebhookCaller{},
		Starter:  starter,
		Records:  &dispatch.MockRecordUpdater{},
	}, mailer, notifier, starter
}

func TestExecutor_Execute_OrderedResults(t *testing.T) {
	dispatchers, mailer, notifier, _ := testDispatchers()
	mailer.On("SendEmail", mock.Anything, mock.Anything).Return(nil)
	notifier.On("Notify", mock.Anything, mock.Anything).Return(nil)

	executor := NewExecutor(dispatchers, testLogger())
	record := map[string]any{"status": "open"}

	results, err := executor.Execute(context.Background(), []models.Action{
		{Type: models.ActionSetField, Params: map[string]any{"field": "priority", "value": "high"}},
		{Type: models.ActionSendEmail, Params: map[string]any{"to": "ops@example.com", "subject": "Escalated"}},
		{Type: models.ActionSendNotification, Params: map[string]any{"recipient": "ops", "message": "escalated"}},
	}, record)

	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, models.ActionSetField, results[0].ActionType)
	assert.Equal(t, models.ActionSendEmail, results[1].ActionType)
	assert.Equal(t, models.ActionSendNotification, results[2].ActionType)

	for _, result := range results {
		assert.Equal(t, models.ActionRequested, result.Status)
	}

	// set_field applied to the working record.
	assert.Equal(t, "high", record["priority"])

	mailer.AssertExpectations(t)
	notifier.AssertExpectations(t)
}

func TestExecutor_Execute_FirstFailureAbortsRemainder(t *testing.T) {
	dispatchers, mailer, notifier, _ := testDispatchers()
	mailer.On("SendEmail", mock.Anything, mock.Anything).Return(errors.New("smtp relay unavailable"))

	executor := NewExecutor(dispatchers, testLogger())

	results, err := executor.Execute(context.Background(), []models.Action{
		{Type: models.ActionSetField, Params: map[string]any{"field": "priority", "value": "high"}},
		{Type: models.ActionSendEmail, Params: map[string]any{"to": "ops@example.com", "subject": "Escalated"}},
		{Type: models.ActionSendNotification, Params: map[string]any{"recipient": "ops", "message": "escalated"}},
	}, map[string]any{})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "send_email")

	// Partial results cover only the actions that completed.
	require.Len(t, results, 1)
	assert.Equal(t, models.ActionSetField, results[0].ActionType)

	notifier.AssertNotCalled(t, "Notify", mock.Anything, mock.Anything)
}

func TestExecutor_Execute_UnknownActionType(t *testing.T) {
	dispatchers, _, _, _ := testDispatchers()
	executor := NewExecutor(dispatchers, testLogger())

	_, err := executor.Execute(context.Background(), []models.Action{
		{Type: "teleport", Params: map[string]any{}},
	}, map[string]any{})

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownActionType)
}

func TestExecutor_Execute_MissingRequiredParams(t *testing.T) {
	dispatchers, _, _, _ := testDispatchers()
	executor := NewExecutor(dispatchers, testLogger())

	cases := []struct {
		name   string
		action models.Action
	}{
		{"set_field without field", models.Action{Type: models.ActionSetField, Params: map[string]any{"value": 1}}},
		{"send_email without subject", models.Action{Type: models.ActionSendEmail, Params: map[string]any{"to": "a@b.c"}}},
		{"create_task without title", models.Action{Type: models.ActionCreateTask, Params: map[string]any{}}},
		{"trigger_workflow without definition", models.Action{Type: models.ActionTriggerWorkflow, Params: map[string]any{}}},
		{"send_notification without message", models.Action{Type: models.ActionSendNotification, Params: map[string]any{"recipient": "ops"}}},
		{"call_webhook without url", models.Action{Type: models.ActionCallWebhook, Params: map[string]any{}}},
		{"update_record without fields", models.Action{Type: models.ActionUpdateRecord, Params: map[string]any{}}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := executor.Execute(context.Background(), []models.Action{tc.action}, map[string]any{})
			assert.Error(t, err)
		})
	}
}

func TestExecutor_Execute_TriggerWorkflowDepthGuard(t *testing.T) {
	dispatchers, _, _, starter := testDispatchers()
	starter.On("StartWorkflow", mock.Anything, mock.Anything).Return(nil)

	executor := NewExecutor(dispatchers, testLogger())
	action := models.Action{Type: models.ActionTriggerWorkflow, Params: map[string]any{"definition_id": "def-1"}}

	// Below the limit the request goes out with an incremented depth.
	_, err := executor.Execute(context.Background(), []models.Action{action}, map[string]any{"trigger_depth": 2})
	require.NoError(t, err)
	starter.AssertCalled(t, "StartWorkflow", mock.Anything, mock.MatchedBy(func(req dispatch.StartWorkflowRequest) bool {
		return req.DefinitionID == "def-1" && req.Depth == 3
	}))

	// At the limit the chain is cut.
	_, err = executor.Execute(context.Background(), []models.Action{action}, map[string]any{"trigger_depth": 5})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTriggerDepthExceeded)
}

func TestExecutor_Execute_WebhookDefaultsToPost(t *testing.T) {
	webhooks := &dispatch.MockWebhookCaller{}
	webhooks.On("CallWebhook", mock.Anything, mock.MatchedBy(func(req dispatch.WebhookRequest) bool {
		return req.Method == "POST" && req.URL == "https://example.com/hook"
	})).Return(nil)

	executor := NewExecutor(dispatch.Dispatchers{Webhooks: webhooks}, testLogger())

	_, err := executor.Execute(context.Background(), []models.Action{
		{Type: models.ActionCallWebhook, Params: map[string]any{"url": "https://example.com/hook"}},
	}, map[string]any{})

	require.NoError(t, err)
	webhooks.AssertExpectations(t)
}
