// Package main provides the HelixFlow execution worker implementation.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/helixflow/helixflow/pkg/backend"
	"github.com/helixflow/helixflow/pkg/dispatch"
	"github.com/helixflow/helixflow/pkg/eventbus"
	"github.com/helixflow/helixflow/pkg/events"
	"github.com/helixflow/helixflow/pkg/execution"
	"github.com/helixflow/helixflow/pkg/otelhelper"
	"github.com/helixflow/helixflow/pkg/persistence"
	"github.com/helixflow/helixflow/pkg/rules"
	"github.com/helixflow/helixflow/pkg/schedule"
)

// Worker consumes execution command events and drives the embedded backend.
// The persisted execution status stays the source of truth: cancel and
// suspend need no handling here because the drive loop re-reads status at
// every step boundary.
type Worker struct {
	id              string
	persistence     persistence.Persistence
	eventBus        eventbus.EventBus
	embedded        *backend.Embedded
	scheduler       *schedule.Scheduler
	scheduleTenants []string
	scheduleRefresh time.Duration
	tracer          trace.Tracer
	logger          *slog.Logger
}

func NewWorker(
	id string,
	store persistence.Persistence,
	eventBus eventbus.EventBus,
	redisClient redis.UniversalClient,
	workers int,
	scheduleTenants []string,
	scheduleRefresh time.Duration,
	logger *slog.Logger,
) *Worker {
	coordinator := execution.NewCoordinator(store, eventBus, logger)
	tracker := execution.NewTracker(store, eventBus, logger)

	dispatchers := dispatch.Dispatchers{
		Mailer:   dispatch.NewRedisQueueDispatcher(redisClient, logger),
		Tasks:    dispatch.NewRedisQueueDispatcher(redisClient, logger),
		Notifier: dispatch.NewRedisQueueDispatcher(redisClient, logger),
		Records:  dispatch.NewRedisQueueDispatcher(redisClient, logger),
		Webhooks: dispatch.NewHTTPWebhookCaller(logger),
		Starter:  dispatch.NewCoordinatorStarter(coordinator),
	}

	ruleCoordinator := rules.NewCoordinator(
		store,
		rules.NewEvaluator(),
		rules.NewExecutor(dispatchers, logger),
		nil,
		eventBus,
		logger,
	)

	embedded := backend.NewEmbedded(store, coordinator, tracker, ruleCoordinator, dispatchers, workers, logger)
	coordinator.SetBackend(embedded)

	return &Worker{
		id:              id,
		persistence:     store,
		eventBus:        eventBus,
		embedded:        embedded,
		scheduler:       schedule.NewScheduler(store, coordinator, logger),
		scheduleTenants: scheduleTenants,
		scheduleRefresh: scheduleRefresh,
		tracer:          otel.Tracer("helixflow-worker"),
		logger:          logger,
	}
}

func (w *Worker) Start(ctx context.Context) error {
	tracerProvider, err := otelhelper.NewTracerProvider(ctx, "helixflow-worker")
	if err != nil {
		return err
	}

	defer func() {
		if err := tracerProvider.Shutdown(ctx); err != nil {
			w.logger.ErrorContext(ctx, "Failed to shutdown tracer provider", "error", err)
		}
	}()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go w.embedded.Run(runCtx)

	if len(w.scheduleTenants) > 0 {
		go func() {
			if err := w.scheduler.Run(runCtx, w.scheduleTenants, w.scheduleRefresh); err != nil {
				w.logger.ErrorContext(runCtx, "Scheduler stopped", "error", err)
			}
		}()
	}

	if err := w.eventBus.Handle(events.ExecutionStartRequestedEvent, w.handleStartRequested); err != nil {
		return err
	}

	if err := w.eventBus.Handle(events.ExecutionResumeRequestedEvent, w.handleResumeRequested); err != nil {
		return err
	}

	if err := w.eventBus.Subscribe(runCtx); err != nil {
		return err
	}

	w.logger.InfoContext(ctx, "Worker started successfully")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigChan:
		w.logger.InfoContext(ctx, "Shutting down worker")
	case <-ctx.Done():
	}

	cancel()

	return nil
}

func (w *Worker) handleStartRequested(ctx context.Context, event any) error {
	command, ok := event.(*events.ExecutionStartRequested)
	if !ok {
		w.logger.ErrorContext(ctx, "Invalid event type for ExecutionStartRequested")

		return nil
	}

	return w.pickup(ctx, command.ExecutionCommand)
}

func (w *Worker) handleResumeRequested(ctx context.Context, event any) error {
	command, ok := event.(*events.ExecutionResumeRequested)
	if !ok {
		w.logger.ErrorContext(ctx, "Invalid event type for ExecutionResumeRequested")

		return nil
	}

	return w.pickup(ctx, command.ExecutionCommand)
}

// pickup loads the persisted execution and enqueues it on the embedded
// backend. The drive loop decides from the stored status whether anything is
// left to do, so duplicate deliveries are harmless.
func (w *Worker) pickup(ctx context.Context, command events.ExecutionCommand) error {
	ctx, span := otelhelper.StartSpan(ctx, w.tracer, "worker.pickup",
		attribute.String(otelhelper.WorkerIDKey, w.id),
		attribute.String(otelhelper.TenantIDKey, command.TenantID),
		attribute.String(otelhelper.ExecutionIDKey, command.ExecutionID),
	)
	defer span.End()

	execution, err := w.persistence.Executions().GetByID(ctx, command.TenantID, command.ExecutionID)
	if err != nil {
		w.logger.ErrorContext(ctx, "Failed to load execution for command",
			"execution_id", command.ExecutionID,
			"error", err,
		)
		otelhelper.SetError(span, err)

		return err
	}

	w.logger.InfoContext(ctx, "Picking up execution",
		"execution_id", execution.ID,
		"execution_key", execution.ExecutionKey,
		"status", execution.Status,
	)

	return w.embedded.Start(ctx, execution)
}
