package main

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/urfave/cli/v3"

	"github.com/helixflow/helixflow/pkg/cmd"
	"github.com/helixflow/helixflow/pkg/log"
)

const defaultWorkers = 4

func NewRunCommand() *cli.Command {
	return &cli.Command{
		Name:    "run",
		Aliases: []string{"r"},
		Usage:   "Start workers to drive workflow executions",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "worker-id",
				Aliases: []string{"id"},
				Usage:   "Custom worker ID (auto-generated if not provided)",
				Value:   "",
				Sources: cli.EnvVars("WORKER_ID"),
			},
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL for persistence",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:     "event-bus",
				Usage:    "Event bus type (kafka, gochannel)",
				Required: true,
				Sources:  cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:     "redis-url",
				Usage:    "Redis connection URL for caching and side-effect queues",
				Required: true,
				Sources:  cli.EnvVars("REDIS_URL"),
			},
			&cli.IntFlag{
				Name:    "workers",
				Usage:   "Number of concurrent execution workers",
				Value:   defaultWorkers,
				Sources: cli.EnvVars("WORKERS"),
			},
			&cli.StringSliceFlag{
				Name:    "schedule-tenants",
				Usage:   "Tenants whose schedule-triggered definitions this worker runs",
				Sources: cli.EnvVars("SCHEDULE_TENANTS"),
			},
			&cli.DurationFlag{
				Name:    "schedule-refresh",
				Usage:   "Interval for reconciling schedule triggers against the store",
				Value:   time.Minute,
				Sources: cli.EnvVars("SCHEDULE_REFRESH"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			workerID := command.String("worker-id")
			if workerID == "" {
				workerID = fmt.Sprintf("worker-%s", uuid.New().String()[:8])
			}

			logger := log.WithModule("helixflow-worker").With("worker_id", workerID)

			logger.InfoContext(ctx, "Initializing HelixFlow Worker")

			eventBus := cmd.NewEventBus(command.String("event-bus"), logger)
			defer func() {
				if err := eventBus.Close(); err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			persistence := cmd.NewPersistence(ctx, logger, command.String("database-url"))
			defer func() {
				if err := persistence.Close(ctx); err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			redisClient := cmd.NewRedisClient(command.String("redis-url"))
			defer func() {
				if err := redisClient.Close(); err != nil {
					logger.ErrorContext(ctx, "Failed to close Redis client", "error", err)
				}
			}()

			worker := NewWorker(
				workerID,
				persistence,
				eventBus,
				redisClient,
				command.Int("workers"),
				command.StringSlice("schedule-tenants"),
				command.Duration("schedule-refresh"),
				logger,
			)

			if err := worker.Start(ctx); err != nil {
				logger.ErrorContext(ctx, "Failed to start execution worker", "error", err)
			}

			return nil
		},
	}
}
