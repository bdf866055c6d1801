// Package main provides the HelixFlow API server implementation.
package main

import (
	"log/slog"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/redis/go-redis/v9"

	"github.com/helixflow/helixflow/pkg/backend"
	"github.com/helixflow/helixflow/pkg/cache"
	"github.com/helixflow/helixflow/pkg/dispatch"
	"github.com/helixflow/helixflow/pkg/eventbus"
	"github.com/helixflow/helixflow/pkg/execution"
	"github.com/helixflow/helixflow/pkg/persistence"
	"github.com/helixflow/helixflow/pkg/rules"
	"github.com/helixflow/helixflow/pkg/services"
	"github.com/helixflow/helixflow/pkg/validation"
	"github.com/helixflow/helixflow/pkg/web"
)

type API struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	eventBus    eventbus.EventBus
	redisClient redis.UniversalClient
	cacheTTL    time.Duration
	validate    *validator.Validate
}

func NewAPI(
	logger *slog.Logger,
	persistence persistence.Persistence,
	eventBus eventbus.EventBus,
	redisClient redis.UniversalClient,
	cacheTTL time.Duration,
) *API {
	return &API{
		logger:      logger,
		persistence: persistence,
		eventBus:    eventBus,
		redisClient: redisClient,
		cacheTTL:    cacheTTL,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) App() *fiber.App {
	sharedCache := cache.NewRedis(a.redisClient, a.cacheTTL, a.logger)

	// The API runs the remote backend: lifecycle operations persist state and
	// publish command events; workers do the walking.
	coordinator := execution.NewCoordinator(a.persistence, a.eventBus, a.logger)
	coordinator.SetBackend(backend.NewRemote(a.eventBus, a.logger))

	dispatchers := dispatch.Dispatchers{
		Mailer:   dispatch.NewRedisQueueDispatcher(a.redisClient, a.logger),
		Tasks:    dispatch.NewRedisQueueDispatcher(a.redisClient, a.logger),
		Notifier: dispatch.NewRedisQueueDispatcher(a.redisClient, a.logger),
		Records:  dispatch.NewRedisQueueDispatcher(a.redisClient, a.logger),
		Webhooks: dispatch.NewHTTPWebhookCaller(a.logger),
		Starter:  dispatch.NewCoordinatorStarter(coordinator),
	}

	ruleRunner := rules.NewCoordinator(
		a.persistence,
		rules.NewEvaluator(),
		rules.NewExecutor(dispatchers, a.logger),
		sharedCache,
		a.eventBus,
		a.logger,
	)

	handlers := web.NewAPIHandlers(
		services.NewDefinitionService(a.persistence, validation.NewValidator(), sharedCache, a.logger),
		services.NewRuleService(a.persistence, sharedCache, a.logger),
		services.NewStatsService(a.persistence),
		coordinator,
		ruleRunner,
		a.persistence,
		a.validate,
	)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("HelixFlow API")
	})

	d := app.Group("/definitions", web.RequireTenant)
	d.Get("/", handlers.ListDefinitions)
	d.Post("/", handlers.CreateDefinition)
	d.Get("/:id", handlers.GetDefinition)
	d.Patch("/:id", handlers.UpdateDefinition)
	d.Delete("/:id", handlers.DeleteDefinition)
	d.Post("/:id/publish", handlers.PublishDefinition)
	d.Post("/:id/unpublish", handlers.UnpublishDefinition)
	d.Post("/:id/activate", handlers.SetDefinitionActive)
	d.Post("/:id/clone", handlers.CloneDefinition)
	d.Post("/:id/executions", handlers.StartExecution)

	e := app.Group("/executions", web.RequireTenant)
	e.Get("/", handlers.ListExecutions)
	e.Get("/:id", handlers.GetExecution)
	e.Get("/:id/steps", handlers.GetExecutionSteps)
	e.Post("/:id/cancel", handlers.CancelExecution)
	e.Post("/:id/suspend", handlers.SuspendExecution)
	e.Post("/:id/resume", handlers.ResumeExecution)
	e.Post("/:id/retry", handlers.RetryExecution)

	r := app.Group("/rules", web.RequireTenant)
	r.Get("/", handlers.ListRules)
	r.Post("/", handlers.CreateRule)
	r.Get("/:id", handlers.GetRule)
	r.Put("/:id", handlers.UpdateRule)
	r.Delete("/:id", handlers.DeleteRule)
	r.Post("/:id/activate", handlers.SetRuleActive)
	r.Post("/:id/test", handlers.TestRule)
	r.Get("/:id/executions", handlers.ListRuleExecutions)

	app.Post("/entity-events", web.RequireTenant, handlers.FireEntityRules)
	app.Get("/rule-executions", web.RequireTenant, handlers.ListEntityRuleExecutions)
	app.Get("/stats", web.RequireTenant, handlers.GetTenantStats)

	app.Get("/health", handlers.HealthCheck)

	return app
}

func (a *API) Start(port int) error {
	app := a.App()

	err := app.Listen(":" + strconv.Itoa(port))

	return err
}
