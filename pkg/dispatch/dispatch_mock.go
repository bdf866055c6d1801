package dispatch

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// MockMailer is a mock implementation of dispatch.Mailer interface.
type MockMailer struct {
	mock.Mock
}

func (m *MockMailer) SendEmail(ctx context.Context, req EmailRequest) error {
	args := m.Called(ctx, req)

	return args.Error(0)
}

// MockTaskCreator is a mock implementation of dispatch.TaskCreator interface.
type MockTaskCreator struct {
	mock.Mock
}

func (m *MockTaskCreator) CreateTask(ctx context.Context, req TaskRequest) error {
	args := m.Called(ctx, req)

	return args.Error(0)
}

// MockNotifier is a mock implementation of dispatch.Notifier interface.
type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) Notify(ctx context.Context, req NotificationRequest) error {
	args := m.Called(ctx, req)

	return args.Error(0)
}

// MockWebhookCaller is a mock implementation of dispatch.WebhookCaller interface.
type MockWebhookCaller struct {
	mock.Mock
}

func (m *MockWebhookCaller) CallWebhook(ctx context.Context, req WebhookRequest) error {
	args := m.Called(ctx, req)

	return args.Error(0)
}

// MockWorkflowStarter is a mock implementation of dispatch.WorkflowStarter interface.
type MockWorkflowStarter struct {
	mock.Mock
}

func (m *MockWorkflowStarter) StartWorkflow(ctx context.Context, req StartWorkflowRequest) error {
	args := m.Called(ctx, req)

	return args.Error(0)
}

// MockRecordUpdater is a mock implementation of dispatch.RecordUpdater interface.
type MockRecordUpdater struct {
	mock.Mock
}

func (m *MockRecordUpdater) UpdateRecord(ctx context.Context, req RecordUpdateRequest) error {
	args := m.Called(ctx, req)

	return args.Error(0)
}
