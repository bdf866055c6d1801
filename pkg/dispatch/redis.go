package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	redis "github.com/redis/go-redis/v9"
)

// Queue names consumed by the delivery workers outside this engine.
const (
	mailQueue         = "helixflow:queue:mail"
	taskQueue         = "helixflow:queue:tasks"
	notificationQueue = "helixflow:queue:notifications"
	recordQueue       = "helixflow:queue:records"
)

// RedisQueueDispatcher hands side-effect requests to Redis lists for external
// delivery workers. Enqueueing is the acknowledgement; delivery is not awaited.
type RedisQueueDispatcher struct {
	client redis.UniversalClient
	logger *slog.Logger
}

func NewRedisQueueDispatcher(client redis.UniversalClient, logger *slog.Logger) *RedisQueueDispatcher {
	return &RedisQueueDispatcher{
		client: client,
		logger: logger.With("module", "queue_dispatcher"),
	}
}

func (d *RedisQueueDispatcher) SendEmail(ctx context.Context, req EmailRequest) error {
	return d.push(ctx, mailQueue, req)
}

func (d *RedisQueueDispatcher) CreateTask(ctx context.Context, req TaskRequest) error {
	return d.push(ctx, taskQueue, req)
}

func (d *RedisQueueDispatcher) Notify(ctx context.Context, req NotificationRequest) error {
	return d.push(ctx, notificationQueue, req)
}

func (d *RedisQueueDispatcher) UpdateRecord(ctx context.Context, req RecordUpdateRequest) error {
	return d.push(ctx, recordQueue, req)
}

func (d *RedisQueueDispatcher) push(ctx context.Context, queue string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode request for %s: %w", queue, err)
	}

	if err := d.client.LPush(ctx, queue, data).Err(); err != nil {
		return fmt.Errorf("failed to enqueue request on %s: %w", queue, err)
	}

	d.logger.InfoContext(ctx, "Request enqueued", "queue", queue)

	return nil
}
