package eventbus_test

import (
	"context"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixflow/helixflow/pkg/channels/gochannel"
	"github.com/helixflow/helixflow/pkg/eventbus"
	"github.com/helixflow/helixflow/pkg/events"
)

func newTestBus(t *testing.T) eventbus.EventBus {
	t.Helper()

	pub, sub, err := gochannel.CreateTestChannel(watermill.NopLogger{})
	require.NoError(t, err)

	bus := eventbus.NewWatermillEventBus(pub, sub)
	t.Cleanup(func() { _ = bus.Close() })

	return bus
}

func TestWatermillEventBus_DeliversTypedEvents(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := newTestBus(t)

	received := make(chan *events.ExecutionStartRequested, 1)

	err := bus.Handle(events.ExecutionStartRequestedEvent, func(ctx context.Context, event any) error {
		command, ok := event.(*events.ExecutionStartRequested)
		require.True(t, ok)

		received <- command

		return nil
	})
	require.NoError(t, err)

	require.NoError(t, bus.Subscribe(ctx))

	command := events.ExecutionStartRequested{ExecutionCommand: events.ExecutionCommand{
		BaseEvent:    events.NewBaseEvent(events.ExecutionStartRequestedEvent, "tenant-1"),
		ExecutionID:  "exec-1",
		DefinitionID: "def-1",
		ExecutionKey: "key-1",
	}}

	require.NoError(t, bus.Publish(ctx, "exec-1", command))

	select {
	case got := <-received:
		assert.Equal(t, "exec-1", got.ExecutionID)
		assert.Equal(t, "def-1", got.DefinitionID)
		assert.Equal(t, "key-1", got.ExecutionKey)
		assert.Equal(t, "tenant-1", got.TenantID)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for event delivery")
	}
}

func TestWatermillEventBus_IgnoresUnhandledEventTypes(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := newTestBus(t)

	received := make(chan *events.ExecutionResumeRequested, 1)

	err := bus.Handle(events.ExecutionResumeRequestedEvent, func(ctx context.Context, event any) error {
		command, ok := event.(*events.ExecutionResumeRequested)
		require.True(t, ok)

		received <- command

		return nil
	})
	require.NoError(t, err)

	require.NoError(t, bus.Subscribe(ctx))

	// A type without a handler is acked and dropped, it must not block the
	// delivery of the handled type behind it.
	cancelled := events.ExecutionCancelled{ExecutionTransitioned: events.ExecutionTransitioned{
		BaseEvent:   events.NewBaseEvent(events.ExecutionCancelledEvent, "tenant-1"),
		ExecutionID: "exec-1",
	}}
	require.NoError(t, bus.Publish(ctx, "exec-1", cancelled))

	resume := events.ExecutionResumeRequested{ExecutionCommand: events.ExecutionCommand{
		BaseEvent:   events.NewBaseEvent(events.ExecutionResumeRequestedEvent, "tenant-1"),
		ExecutionID: "exec-2",
	}}
	require.NoError(t, bus.Publish(ctx, "exec-2", resume))

	select {
	case got := <-received:
		assert.Equal(t, "exec-2", got.ExecutionID)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for event delivery")
	}
}

func TestWatermillEventBus_GenerateID(t *testing.T) {
	bus := newTestBus(t)

	first := bus.GenerateID()
	second := bus.GenerateID()

	assert.NotEmpty(t, first)
	assert.NotEqual(t, first, second)
}
