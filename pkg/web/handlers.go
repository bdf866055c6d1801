package web

import (
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"

	"github.com/helixflow/helixflow/pkg/execution"
	"github.com/helixflow/helixflow/pkg/persistence"
	"github.com/helixflow/helixflow/pkg/rules"
	"github.com/helixflow/helixflow/pkg/services"
)

// TenantHeader carries the tenant on every request. The API trusts the
// gateway in front of it to have authenticated the value.
const TenantHeader = "X-Tenant-ID"

type APIHandlers struct {
	definitions *services.DefinitionService
	rules       *services.RuleService
	stats       *services.StatsService
	coordinator *execution.Coordinator
	ruleRunner  *rules.Coordinator
	persistence persistence.Persistence
	validator   *validator.Validate
}

func NewAPIHandlers(
	definitions *services.DefinitionService,
	ruleService *services.RuleService,
	stats *services.StatsService,
	coordinator *execution.Coordinator,
	ruleRunner *rules.Coordinator,
	persistence persistence.Persistence,
	validator *validator.Validate,
) *APIHandlers {
	return &APIHandlers{
		definitions: definitions,
		rules:       ruleService,
		stats:       stats,
		coordinator: coordinator,
		ruleRunner:  ruleRunner,
		persistence: persistence,
		validator:   validator,
	}
}

// tenant extracts the tenant id header; an empty value fails the request
// before any handler logic runs.
func tenant(c fiber.Ctx) string {
	return c.Get(TenantHeader)
}

// RequireTenant rejects requests without a tenant header.
func RequireTenant(c fiber.Ctx) error {
	if tenant(c) == "" {
		return badRequest(c, "missing "+TenantHeader+" header")
	}

	return c.Next()
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	repositoryErr := h.persistence.HealthCheck(c.Context())

	status := "healthy"
	httpStatus := http.StatusOK
	repository := "ok"

	if repositoryErr != nil {
		status = "unhealthy"
		httpStatus = http.StatusInternalServerError
		repository = repositoryErr.Error()
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status": status,
		"checkers": fiber.Map{
			"repository": repository,
		},
		"timestamp": time.Now().UTC(),
	})
}

func (h *APIHandlers) GetTenantStats(c fiber.Ctx) error {
	stats, err := h.stats.TenantStats(c.Context(), tenant(c))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(stats)
}
